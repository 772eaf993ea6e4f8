package tui

import (
	"errors"
	"fmt"
	"strings"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/justapithecus/pydust/collector"
)

// Row is one test in the browser.
type Row struct {
	NodeID     string
	Outcome    string
	DurationMs int64
	// Detail is shown when the row is opened: the failure message and
	// captured output.
	Detail string
}

// View is the data a browser shows.
type View struct {
	Title   string
	Summary collector.Summary
	Rows    []Row
}

// ErrEmpty is returned when there is nothing to browse.
var ErrEmpty = errors.New("no test reports to browse")

// Run opens the browser on the alternate screen and blocks until the user
// quits.
func Run(v View, opts ...tea.ProgramOption) error {
	if len(v.Rows) == 0 {
		return ErrEmpty
	}
	opts = append([]tea.ProgramOption{tea.WithAltScreen()}, opts...)
	_, err := tea.NewProgram(NewBrowserModel(v), opts...).Run()
	return err
}

// FromReports builds a View over freshly run reports.
func FromReports(title string, reports []*collector.Report) View {
	v := View{Title: title, Summary: collector.Summarize(reports)}
	for _, r := range reports {
		v.Rows = append(v.Rows, Row{
			NodeID:     r.NodeID,
			Outcome:    string(r.Outcome),
			DurationMs: r.DurationMs,
			Detail:     ReportDetail(r.Message, r.Sections),
		})
	}
	return v
}

// ReportDetail joins a failure message and captured sections.
func ReportDetail(message string, sections []collector.Section) string {
	var parts []string
	if message != "" {
		parts = append(parts, message)
	}
	for _, s := range sections {
		if s.Content == "" {
			continue
		}
		parts = append(parts, fmt.Sprintf("--- Captured %s %s ---\n%s", s.Key, s.When, strings.TrimRight(s.Content, "\n")))
	}
	if len(parts) == 0 {
		return "(no output)"
	}
	return strings.Join(parts, "\n\n")
}
