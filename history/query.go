package history

import (
	"context"
	"fmt"
	"strings"

	"github.com/justapithecus/lode/lode"
)

// Latest returns the most recent run recorded for the store's project.
// sessionID narrows the lookup to one run when non-empty. ErrNoHistory is
// returned when nothing matches.
func (s *Store) Latest(ctx context.Context, sessionID string) (*RunSummary, []StoredReport, error) {
	snapshots, err := s.dataset.Snapshots(ctx)
	if err != nil {
		return nil, nil, wrap("read", "snapshots", err)
	}

	// Snapshots are ordered by creation time.
	for i := len(snapshots) - 1; i >= 0; i-- {
		snap := snapshots[i]
		if !snapshotMatches(snap, "record_kind", RecordKindSummary) ||
			!snapshotMatches(snap, "project", s.project) ||
			!snapshotMatches(snap, "session_id", sessionID) {
			continue
		}

		data, err := s.dataset.Read(ctx, snap.ID)
		if err != nil {
			return nil, nil, wrap("read", fmt.Sprintf("snapshot/%s", snap.ID), err)
		}

		// Partition paths only pre-filter; record fields decide.
		var summary *RunSummary
		var reports []StoredReport
		for _, item := range data {
			record, ok := item.(map[string]any)
			if !ok || !recordMatches(record, s.project, sessionID) {
				continue
			}
			switch record["record_kind"] {
			case RecordKindSummary:
				summary = fromSummaryRecord(record)
			case RecordKindReport:
				reports = append(reports, fromReportRecord(record))
			}
		}
		if summary != nil {
			return summary, reports, nil
		}
	}
	return nil, nil, ErrNoHistory
}

func recordMatches(record map[string]any, project, sessionID string) bool {
	if project != "" && toString(record["project"]) != project {
		return false
	}
	return sessionID == "" || toString(record["session_id"]) == sessionID
}

// snapshotMatches reports whether any file of snap lies under the exact
// key=value partition. An empty value matches everything.
func snapshotMatches(snap *lode.DatasetSnapshot, key, value string) bool {
	if value == "" {
		return true
	}
	segment := key + "=" + value
	for _, f := range snap.Manifest.Files {
		for _, part := range strings.Split(f.Path, "/") {
			if part == segment {
				return true
			}
		}
	}
	return false
}
