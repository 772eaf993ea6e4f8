package render

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/justapithecus/pydust/collector"
)

// Color palette.
var (
	successColor = lipgloss.Color("#10B981") // Green
	warningColor = lipgloss.Color("#F59E0B") // Amber
	errorColor   = lipgloss.Color("#EF4444") // Red
	mutedColor   = lipgloss.Color("#6B7280") // Gray
)

// Styles for outcome text.
var (
	// PassedStyle for passing tests.
	PassedStyle = lipgloss.NewStyle().Foreground(successColor)

	// SkippedStyle for skipped tests.
	SkippedStyle = lipgloss.NewStyle().Foreground(warningColor)

	// FailedStyle for failed or errored tests.
	FailedStyle = lipgloss.NewStyle().Foreground(errorColor).Bold(true)

	// MutedStyle for secondary text.
	MutedStyle = lipgloss.NewStyle().Foreground(mutedColor)

	plainStyle = lipgloss.NewStyle()
)

// OutcomeStyle returns the style for an outcome string.
func OutcomeStyle(outcome string) lipgloss.Style {
	switch collector.Outcome(outcome) {
	case collector.OutcomePassed:
		return PassedStyle
	case collector.OutcomeSkipped:
		return SkippedStyle
	case collector.OutcomeFailed, collector.OutcomeError:
		return FailedStyle
	default:
		return plainStyle
	}
}

// FormatSummary returns a one-line run summary such as
// "3 passed, 1 failed, 1 leaked in 0.42s". Zero counts are omitted.
func FormatSummary(s collector.Summary, noColor bool) string {
	style := func(st lipgloss.Style, text string) string {
		if noColor {
			return text
		}
		return st.Render(text)
	}

	var parts []string
	add := func(n int, label string, st lipgloss.Style) {
		if n > 0 {
			parts = append(parts, style(st, fmt.Sprintf("%d %s", n, label)))
		}
	}
	add(s.Passed, "passed", PassedStyle)
	add(s.Failed, "failed", FailedStyle)
	add(s.Errors, "errors", FailedStyle)
	add(s.Skipped, "skipped", SkippedStyle)
	add(s.Leaked, "leaked", FailedStyle)
	if len(parts) == 0 {
		parts = append(parts, style(MutedStyle, "no tests ran"))
	}

	elapsed := time.Duration(s.DurationMs) * time.Millisecond
	return fmt.Sprintf("%s in %.2fs", strings.Join(parts, ", "), elapsed.Seconds())
}

// RenderSummary writes the summary line for table output. Structured
// formats carry the summary in their document and write nothing here.
func (r *Renderer) RenderSummary(s collector.Summary) error {
	if r.format != FormatTable {
		return nil
	}
	return writeLine(r.out, FormatSummary(s, r.noColor))
}

// RenderSections writes captured output sections of failed reports for
// table output.
func (r *Renderer) RenderSections(reports []*collector.Report) error {
	if r.format != FormatTable {
		return nil
	}
	for _, report := range reports {
		if report.Outcome != collector.OutcomeFailed && report.Outcome != collector.OutcomeError {
			continue
		}
		header := fmt.Sprintf("___ %s ___", report.NodeID)
		if !r.noColor {
			header = FailedStyle.Render(header)
		}
		if err := writeLine(r.out, header); err != nil {
			return err
		}
		if report.Message != "" {
			if err := writeLine(r.out, report.Message); err != nil {
				return err
			}
		}
		for _, s := range report.Sections {
			if s.Content == "" {
				continue
			}
			title := fmt.Sprintf("--- Captured %s %s ---", s.Key, s.When)
			if !r.noColor {
				title = MutedStyle.Render(title)
			}
			if err := writeLine(r.out, title); err != nil {
				return err
			}
			if err := writeLine(r.out, strings.TrimRight(s.Content, "\n")); err != nil {
				return err
			}
		}
	}
	return nil
}

func writeLine(w io.Writer, line string) error {
	_, err := fmt.Fprintln(w, line)
	return err
}
