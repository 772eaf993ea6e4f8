// Package adapter publishes test-run completion notices to downstream
// systems such as CI dashboards or chat bots.
//
// The CLI owns adapter lifecycle; users provide configuration only. A
// failed publish never changes the verdict of the run it describes.
package adapter

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/multierr"

	"github.com/justapithecus/pydust/collector"
)

// EventTypeTestRunFinished is the only event type published.
const EventTypeTestRunFinished = "test_run_finished"

// Run outcomes, from worst to best.
const (
	OutcomeError  = "error"
	OutcomeFailed = "failed"
	OutcomePassed = "passed"
)

// TestRunEvent is the payload published when a test run finishes.
type TestRunEvent struct {
	EventType  string `json:"event_type"`
	SessionID  string `json:"session_id"`
	Project    string `json:"project"`
	ZigVersion string `json:"zig_version,omitempty"`
	// Outcome is error when a session broke, failed when any test failed,
	// and passed otherwise.
	Outcome string `json:"outcome"`
	// HistoryPath is where the run was recorded, if anywhere.
	HistoryPath string            `json:"history_path,omitempty"`
	Timestamp   string            `json:"timestamp"`
	Summary     collector.Summary `json:"summary"`
}

// NewTestRunEvent builds the event for a finished run. sessionErr is the
// first session error of the run, if any.
func NewTestRunEvent(sessionID, project string, summary collector.Summary, sessionErr error, at time.Time) *TestRunEvent {
	outcome := OutcomePassed
	switch {
	case sessionErr != nil || summary.Errors > 0:
		outcome = OutcomeError
	case !summary.OK():
		outcome = OutcomeFailed
	}
	return &TestRunEvent{
		EventType: EventTypeTestRunFinished,
		SessionID: sessionID,
		Project:   project,
		Outcome:   outcome,
		Timestamp: at.UTC().Format(time.RFC3339),
		Summary:   summary,
	}
}

// Adapter publishes test-run events to a downstream system.
type Adapter interface {
	// Publish sends one event. Must respect context cancellation.
	Publish(ctx context.Context, event *TestRunEvent) error

	// Close releases adapter resources.
	Close() error
}

// BackoffBase is the delay before the first retry. Each further retry
// doubles it.
var BackoffBase = 500 * time.Millisecond

// Retry calls attempt up to 1+retries times with exponential backoff
// between calls. It stops early when attempt succeeds, when permanent
// reports the error as non-retriable, or when ctx is done. name prefixes
// returned errors.
func Retry(ctx context.Context, name string, retries int, attempt func(context.Context) error, permanent func(error) bool) error {
	attempts := 1 + retries
	var lastErr error
	for i := range attempts {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("%s: context canceled: %w", name, err)
		}

		if i > 0 {
			backoff := time.Duration(1<<uint(i-1)) * BackoffBase
			select {
			case <-ctx.Done():
				return fmt.Errorf("%s: context canceled during backoff: %w", name, ctx.Err())
			case <-time.After(backoff):
			}
		}

		lastErr = attempt(ctx)
		if lastErr == nil {
			return nil
		}
		if permanent != nil && permanent(lastErr) {
			return fmt.Errorf("%s: non-retriable error: %w", name, lastErr)
		}
	}
	return fmt.Errorf("%s: failed after %d attempts: %w", name, attempts, lastErr)
}

// Multi fans an event out to several adapters. Every adapter is tried;
// the errors of those that fail are joined.
type Multi []Adapter

// Publish sends event to every adapter.
func (m Multi) Publish(ctx context.Context, event *TestRunEvent) error {
	var errs []error
	for _, a := range m {
		if err := a.Publish(ctx, event); err != nil {
			errs = append(errs, err)
		}
	}
	return multierr.Combine(errs...)
}

// Close closes every adapter.
func (m Multi) Close() error {
	var errs []error
	for _, a := range m {
		if err := a.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return multierr.Combine(errs...)
}

var _ Adapter = Multi(nil)
