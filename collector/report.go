package collector

import (
	"time"

	"github.com/justapithecus/pydust/types"
)

// Outcome is the verdict of one test item.
type Outcome string

const (
	// OutcomePassed means the test ran without failure or leak.
	OutcomePassed Outcome = "passed"
	// OutcomeFailed means the test failed or leaked memory.
	OutcomeFailed Outcome = "failed"
	// OutcomeSkipped means the test skipped itself.
	OutcomeSkipped Outcome = "skipped"
	// OutcomeError means the session aborted before a result was read.
	OutcomeError Outcome = "error"
)

// Report section keys.
const (
	SectionStderr = "stderr"
	SectionLeaks  = "memory leaks"
	// WhenCall is the phase every section is attached to.
	WhenCall = "call"
)

// FailureMessage is the message of a failed item.
const FailureMessage = "Failure in Zig test"

// Section is a named block of captured output attached to a report.
type Section struct {
	When    string `json:"when" yaml:"when" msgpack:"when"`
	Key     string `json:"key" yaml:"key" msgpack:"key"`
	Content string `json:"content" yaml:"content" msgpack:"content"`
}

// Report is the result of running one test item.
type Report struct {
	NodeID     string            `json:"node_id" yaml:"node_id" msgpack:"node_id"`
	Module     string            `json:"module" yaml:"module" msgpack:"module"`
	Test       string            `json:"test" yaml:"test" msgpack:"test"`
	Outcome    Outcome           `json:"outcome" yaml:"outcome" msgpack:"outcome"`
	Message    string            `json:"message,omitempty" yaml:"message,omitempty" msgpack:"message,omitempty"`
	Flags      types.TestOutcome `json:"flags" yaml:"flags" msgpack:"flags"`
	Sections   []Section         `json:"sections,omitempty" yaml:"sections,omitempty" msgpack:"sections,omitempty"`
	DurationMs int64             `json:"duration_ms" yaml:"duration_ms" msgpack:"duration_ms"`
	duration   time.Duration
}

// Duration returns the wall time of the test session.
func (r *Report) Duration() time.Duration {
	return r.duration
}

// Section returns the content of the section with key, if present.
func (r *Report) Section(key string) (string, bool) {
	for _, s := range r.Sections {
		if s.Key == key {
			return s.Content, true
		}
	}
	return "", false
}

// Summary tallies a set of reports.
type Summary struct {
	Passed     int   `json:"passed" yaml:"passed" msgpack:"passed"`
	Failed     int   `json:"failed" yaml:"failed" msgpack:"failed"`
	Skipped    int   `json:"skipped" yaml:"skipped" msgpack:"skipped"`
	Errors     int   `json:"errors" yaml:"errors" msgpack:"errors"`
	Leaked     int   `json:"leaked" yaml:"leaked" msgpack:"leaked"`
	DurationMs int64 `json:"duration_ms" yaml:"duration_ms" msgpack:"duration_ms"`
}

// Summarize tallies reports by outcome.
func Summarize(reports []*Report) Summary {
	var s Summary
	for _, r := range reports {
		switch r.Outcome {
		case OutcomePassed:
			s.Passed++
		case OutcomeFailed:
			s.Failed++
		case OutcomeSkipped:
			s.Skipped++
		case OutcomeError:
			s.Errors++
		}
		if r.Flags.Leaked {
			s.Leaked++
		}
		s.DurationMs += r.DurationMs
	}
	return s
}

// OK reports whether no test failed or errored.
func (s Summary) OK() bool {
	return s.Failed == 0 && s.Errors == 0
}
