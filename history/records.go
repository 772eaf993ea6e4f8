package history

import (
	"time"

	"github.com/justapithecus/pydust/collector"
)

// Record kinds. Every stored record carries one in its record_kind field.
const (
	RecordKindReport  = "test_report"
	RecordKindSummary = "run_summary"
)

// partitionKeys is the Hive layout of the dataset, outermost first.
var partitionKeys = []string{"project", "day", "session_id", "record_kind"}

// dayFormat names the day partition.
const dayFormat = "2006-01-02"

// Run is the metadata shared by every record of one test run.
type Run struct {
	SessionID   string
	Project     string
	ZigVersion  string
	CompletedAt time.Time
}

func (r Run) partition(kind string) map[string]any {
	return map[string]any{
		"record_kind": kind,
		"session_id":  r.SessionID,
		"project":     r.Project,
		"day":         r.CompletedAt.UTC().Format(dayFormat),
		"ts":          r.CompletedAt.UTC().Format(time.RFC3339Nano),
	}
}

// toReportRecord flattens one report into its stored form, sections in
// report order.
func toReportRecord(run Run, r *collector.Report) map[string]any {
	record := run.partition(RecordKindReport)
	record["node_id"] = r.NodeID
	record["module"] = r.Module
	record["test"] = r.Test
	record["outcome"] = string(r.Outcome)
	record["failed"] = r.Flags.Failed
	record["skipped"] = r.Flags.Skipped
	record["leaked"] = r.Flags.Leaked
	record["duration_ms"] = r.DurationMs
	if r.Message != "" {
		record["message"] = r.Message
	}
	if len(r.Sections) > 0 {
		sections := make([]any, 0, len(r.Sections))
		for _, sec := range r.Sections {
			sections = append(sections, map[string]any{
				"when":    sec.When,
				"key":     sec.Key,
				"content": sec.Content,
			})
		}
		record["sections"] = sections
	}
	return record
}

func toSummaryRecord(run Run, s collector.Summary) map[string]any {
	record := run.partition(RecordKindSummary)
	record["zig_version"] = run.ZigVersion
	record["passed"] = s.Passed
	record["failed"] = s.Failed
	record["skipped"] = s.Skipped
	record["errors"] = s.Errors
	record["leaked"] = s.Leaked
	record["duration_ms"] = s.DurationMs
	return record
}

// RunSummary is a stored run summary read back from the dataset.
type RunSummary struct {
	SessionID   string            `json:"session_id" yaml:"session_id" msgpack:"session_id"`
	Project     string            `json:"project" yaml:"project" msgpack:"project"`
	ZigVersion  string            `json:"zig_version,omitempty" yaml:"zig_version,omitempty" msgpack:"zig_version,omitempty"`
	CompletedAt string            `json:"completed_at" yaml:"completed_at" msgpack:"completed_at"`
	Summary     collector.Summary `json:"summary" yaml:"summary" msgpack:"summary"`
}

// StoredReport is a stored test report read back from the dataset.
type StoredReport struct {
	NodeID     string              `json:"node_id" yaml:"node_id" msgpack:"node_id"`
	Module     string              `json:"module" yaml:"module" msgpack:"module"`
	Outcome    collector.Outcome   `json:"outcome" yaml:"outcome" msgpack:"outcome"`
	Leaked     bool                `json:"leaked" yaml:"leaked" msgpack:"leaked"`
	DurationMs int64               `json:"duration_ms" yaml:"duration_ms" msgpack:"duration_ms"`
	Message    string              `json:"message,omitempty" yaml:"message,omitempty" msgpack:"message,omitempty"`
	Stderr     string              `json:"stderr,omitempty" yaml:"stderr,omitempty" msgpack:"stderr,omitempty"`
	Sections   []collector.Section `json:"sections,omitempty" yaml:"sections,omitempty" msgpack:"sections,omitempty"`
}

// Section returns the content of the stored section with key, if present.
func (r StoredReport) Section(key string) (string, bool) {
	for _, s := range r.Sections {
		if s.Key == key {
			return s.Content, true
		}
	}
	return "", false
}

func fromSummaryRecord(record map[string]any) *RunSummary {
	return &RunSummary{
		SessionID:   toString(record["session_id"]),
		Project:     toString(record["project"]),
		ZigVersion:  toString(record["zig_version"]),
		CompletedAt: toString(record["ts"]),
		Summary: collector.Summary{
			Passed:     int(toInt64(record["passed"])),
			Failed:     int(toInt64(record["failed"])),
			Skipped:    int(toInt64(record["skipped"])),
			Errors:     int(toInt64(record["errors"])),
			Leaked:     int(toInt64(record["leaked"])),
			DurationMs: toInt64(record["duration_ms"]),
		},
	}
}

func fromReportRecord(record map[string]any) StoredReport {
	leaked, _ := record["leaked"].(bool)
	report := StoredReport{
		NodeID:     toString(record["node_id"]),
		Module:     toString(record["module"]),
		Outcome:    collector.Outcome(toString(record["outcome"])),
		Leaked:     leaked,
		DurationMs: toInt64(record["duration_ms"]),
		Message:    toString(record["message"]),
		Sections:   toSections(record["sections"]),
	}
	report.Stderr, _ = report.Section(collector.SectionStderr)
	return report
}

// toSections decodes stored sections. JSON codecs return []any of maps.
func toSections(v any) []collector.Section {
	var items []any
	switch s := v.(type) {
	case []any:
		items = s
	case []map[string]any:
		for _, m := range s {
			items = append(items, m)
		}
	default:
		return nil
	}

	sections := make([]collector.Section, 0, len(items))
	for _, item := range items {
		m, ok := item.(map[string]any)
		if !ok {
			continue
		}
		sections = append(sections, collector.Section{
			When:    toString(m["when"]),
			Key:     toString(m["key"]),
			Content: toString(m["content"]),
		})
	}
	return sections
}

func toString(v any) string {
	if s, ok := v.(string); ok {
		return s
	}
	return ""
}

// toInt64 accepts the numeric types a codec may decode into.
func toInt64(v any) int64 {
	switch n := v.(type) {
	case int64:
		return n
	case int:
		return int64(n)
	case float64:
		return int64(n)
	default:
		return 0
	}
}
