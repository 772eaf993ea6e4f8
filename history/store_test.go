package history

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/justapithecus/lode/lode"

	"github.com/justapithecus/pydust/collector"
	"github.com/justapithecus/pydust/types"
)

// sharedFactory returns a StoreFactory that always returns store, so
// separate Stores see the same in-memory state.
func sharedFactory(store lode.Store) lode.StoreFactory {
	return func() (lode.Store, error) { return store, nil }
}

func sampleReports() []*collector.Report {
	return []*collector.Report{
		{
			NodeID:     "src/ex.zig::test.add",
			Module:     "example.ex",
			Test:       "test.add",
			Outcome:    collector.OutcomePassed,
			DurationMs: 3,
		},
		{
			NodeID:     "src/ex.zig::test.leak",
			Module:     "example.ex",
			Test:       "test.leak",
			Outcome:    collector.OutcomeFailed,
			Message:    collector.FailureMessage,
			Flags:      types.TestOutcome{Leaked: true},
			Sections: []collector.Section{
				{When: collector.WhenCall, Key: collector.SectionStderr, Content: "leaked 16 bytes\n"},
				{When: collector.WhenCall, Key: collector.SectionLeaks, Content: "Zig detected a memory leak in 'src/ex.zig::test.leak'"},
			},
			DurationMs: 5,
		},
	}
}

func sampleRun(session string, at time.Time) Run {
	return Run{SessionID: session, Project: "example", ZigVersion: "0.11.0", CompletedAt: at}
}

func TestStore_RecordAndLatest(t *testing.T) {
	factory := sharedFactory(lode.NewMemory())

	writer, err := NewStoreWithFactory("", "example", factory)
	if err != nil {
		t.Fatalf("NewStoreWithFactory failed: %v", err)
	}
	at := time.Date(2026, 10, 19, 12, 0, 0, 0, time.UTC)
	if err := writer.Record(t.Context(), sampleRun("session-1", at), sampleReports()); err != nil {
		t.Fatalf("Record failed: %v", err)
	}

	reader, err := NewStoreWithFactory(DefaultDataset, "example", factory)
	if err != nil {
		t.Fatalf("NewStoreWithFactory failed: %v", err)
	}
	summary, reports, err := reader.Latest(t.Context(), "")
	if err != nil {
		t.Fatalf("Latest failed: %v", err)
	}

	if summary.SessionID != "session-1" {
		t.Errorf("SessionID = %q, want %q", summary.SessionID, "session-1")
	}
	if summary.ZigVersion != "0.11.0" {
		t.Errorf("ZigVersion = %q, want %q", summary.ZigVersion, "0.11.0")
	}
	if summary.CompletedAt != at.Format(time.RFC3339Nano) {
		t.Errorf("CompletedAt = %q, want %q", summary.CompletedAt, at.Format(time.RFC3339Nano))
	}
	want := collector.Summary{Passed: 1, Failed: 1, Leaked: 1, DurationMs: 8}
	if summary.Summary != want {
		t.Errorf("Summary = %+v, want %+v", summary.Summary, want)
	}

	if len(reports) != 2 {
		t.Fatalf("len(reports) = %d, want 2", len(reports))
	}
	leak := reports[1]
	if leak.NodeID != "src/ex.zig::test.leak" {
		t.Errorf("NodeID = %q, want %q", leak.NodeID, "src/ex.zig::test.leak")
	}
	if leak.Outcome != collector.OutcomeFailed || !leak.Leaked {
		t.Errorf("Outcome = %q, Leaked = %v, want failed and leaked", leak.Outcome, leak.Leaked)
	}
	if leak.Stderr != "leaked 16 bytes\n" {
		t.Errorf("Stderr = %q, want %q", leak.Stderr, "leaked 16 bytes\n")
	}
	note, ok := leak.Section(collector.SectionLeaks)
	if !ok || note != "Zig detected a memory leak in 'src/ex.zig::test.leak'" {
		t.Errorf("Section(%q) = %q, %v, want the leak note", collector.SectionLeaks, note, ok)
	}
	if len(leak.Sections) != 2 || leak.Sections[0].Key != collector.SectionStderr {
		t.Errorf("Sections = %+v, want stderr then memory leaks", leak.Sections)
	}
	if leak.Message != collector.FailureMessage {
		t.Errorf("Message = %q, want %q", leak.Message, collector.FailureMessage)
	}
}

func TestStore_LatestPicksMostRecentRun(t *testing.T) {
	factory := sharedFactory(lode.NewMemory())
	store, err := NewStoreWithFactory("", "example", factory)
	if err != nil {
		t.Fatalf("NewStoreWithFactory failed: %v", err)
	}

	at := time.Date(2026, 10, 19, 12, 0, 0, 0, time.UTC)
	for i := 1; i <= 3; i++ {
		run := sampleRun(fmt.Sprintf("session-%d", i), at.Add(time.Duration(i)*time.Minute))
		if err := store.Record(t.Context(), run, sampleReports()[:i%2+1]); err != nil {
			t.Fatalf("Record %d failed: %v", i, err)
		}
	}

	summary, _, err := store.Latest(t.Context(), "")
	if err != nil {
		t.Fatalf("Latest failed: %v", err)
	}
	if summary.SessionID != "session-3" {
		t.Errorf("SessionID = %q, want %q", summary.SessionID, "session-3")
	}

	summary, reports, err := store.Latest(t.Context(), "session-1")
	if err != nil {
		t.Fatalf("Latest(session-1) failed: %v", err)
	}
	if summary.SessionID != "session-1" {
		t.Errorf("SessionID = %q, want %q", summary.SessionID, "session-1")
	}
	if len(reports) != 2 {
		t.Errorf("len(reports) = %d, want 2", len(reports))
	}
}

func TestStore_LatestFiltersByProject(t *testing.T) {
	factory := sharedFactory(lode.NewMemory())
	other, err := NewStoreWithFactory("", "other", factory)
	if err != nil {
		t.Fatalf("NewStoreWithFactory failed: %v", err)
	}
	at := time.Date(2026, 10, 19, 12, 0, 0, 0, time.UTC)
	if err := other.Record(t.Context(), Run{SessionID: "s", CompletedAt: at}, sampleReports()); err != nil {
		t.Fatalf("Record failed: %v", err)
	}

	store, err := NewStoreWithFactory("", "example", factory)
	if err != nil {
		t.Fatalf("NewStoreWithFactory failed: %v", err)
	}
	if _, _, err := store.Latest(t.Context(), ""); !errors.Is(err, ErrNoHistory) {
		t.Errorf("Latest error = %v, want ErrNoHistory", err)
	}

	summary, _, err := other.Latest(t.Context(), "")
	if err != nil {
		t.Fatalf("Latest failed: %v", err)
	}
	if summary.Project != "other" {
		t.Errorf("Project = %q, want %q", summary.Project, "other")
	}
}

func TestStore_LatestEmpty(t *testing.T) {
	store, err := NewStoreWithFactory("", "example", lode.NewMemoryFactory())
	if err != nil {
		t.Fatalf("NewStoreWithFactory failed: %v", err)
	}
	_, _, err = store.Latest(t.Context(), "")
	if !errors.Is(err, ErrNoHistory) {
		t.Errorf("Latest error = %v, want ErrNoHistory", err)
	}
}

func TestStore_RecordRequiresSession(t *testing.T) {
	store, err := NewStoreWithFactory("", "example", lode.NewMemoryFactory())
	if err != nil {
		t.Fatalf("NewStoreWithFactory failed: %v", err)
	}
	if err := store.Record(t.Context(), Run{}, sampleReports()); err == nil {
		t.Error("Record without session id succeeded, want error")
	}
}

func TestStore_FilesystemRoundTrip(t *testing.T) {
	dir := t.TempDir()
	store, err := NewFSStore("", "example", dir)
	if err != nil {
		t.Fatalf("NewFSStore failed: %v", err)
	}
	at := time.Date(2026, 10, 19, 12, 0, 0, 0, time.UTC)
	if err := store.Record(t.Context(), sampleRun("fs-session", at), sampleReports()); err != nil {
		t.Fatalf("Record failed: %v", err)
	}

	reopened, err := NewFSStore("", "example", dir)
	if err != nil {
		t.Fatalf("NewFSStore failed: %v", err)
	}
	summary, _, err := reopened.Latest(t.Context(), "")
	if err != nil {
		t.Fatalf("Latest failed: %v", err)
	}
	if summary.SessionID != "fs-session" {
		t.Errorf("SessionID = %q, want %q", summary.SessionID, "fs-session")
	}
	if summary.Summary.Failed != 1 {
		t.Errorf("Failed = %d, want 1", summary.Summary.Failed)
	}
}

func TestParseTarget(t *testing.T) {
	tests := []struct {
		target     string
		wantDir    string
		wantBucket string
		wantPrefix string
		wantErr    bool
	}{
		{target: ".pydust/history", wantDir: ".pydust/history"},
		{target: "s3://bucket", wantBucket: "bucket"},
		{target: "s3://bucket/ci/runs/", wantBucket: "bucket", wantPrefix: "ci/runs"},
		{target: "s3://", wantErr: true},
		{target: "", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.target, func(t *testing.T) {
			got, err := ParseTarget(tt.target)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("ParseTarget(%q) succeeded, want error", tt.target)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseTarget(%q) failed: %v", tt.target, err)
			}
			if got.Dir != tt.wantDir {
				t.Errorf("Dir = %q, want %q", got.Dir, tt.wantDir)
			}
			if tt.wantBucket == "" {
				if got.S3 != nil {
					t.Errorf("S3 = %+v, want nil", got.S3)
				}
				return
			}
			if got.S3 == nil {
				t.Fatal("S3 = nil, want config")
			}
			if got.S3.Bucket != tt.wantBucket || got.S3.Prefix != tt.wantPrefix {
				t.Errorf("S3 = %s/%s, want %s/%s", got.S3.Bucket, got.S3.Prefix, tt.wantBucket, tt.wantPrefix)
			}
		})
	}
}
