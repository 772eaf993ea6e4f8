package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

type keyMap struct {
	Up     key.Binding
	Down   key.Binding
	Open   key.Binding
	Back   key.Binding
	Failed key.Binding
	Quit   key.Binding
}

var keys = keyMap{
	Up: key.NewBinding(
		key.WithKeys("up", "k"),
		key.WithHelp("↑/k", "up"),
	),
	Down: key.NewBinding(
		key.WithKeys("down", "j"),
		key.WithHelp("↓/j", "down"),
	),
	Open: key.NewBinding(
		key.WithKeys("enter"),
		key.WithHelp("enter", "show output"),
	),
	Back: key.NewBinding(
		key.WithKeys("esc", "backspace"),
		key.WithHelp("esc", "back"),
	),
	Failed: key.NewBinding(
		key.WithKeys("f"),
		key.WithHelp("f", "next failure"),
	),
	Quit: key.NewBinding(
		key.WithKeys("q", "ctrl+c"),
		key.WithHelp("q", "quit"),
	),
}

// Fallback size before the first WindowSizeMsg.
const (
	defaultWidth  = 80
	defaultHeight = 24
)

// BrowserModel is a Bubble Tea model listing test reports. Opening a row
// shows its detail in a scrollable viewport.
type BrowserModel struct {
	view     View
	cursor   int
	detail   bool
	viewport viewport.Model
	width    int
	height   int
	quitting bool
}

// NewBrowserModel creates a browser over v.
func NewBrowserModel(v View) BrowserModel {
	return BrowserModel{
		view:     v,
		viewport: viewport.New(defaultWidth, defaultHeight-4),
		width:    defaultWidth,
		height:   defaultHeight,
	}
}

// Cursor returns the index of the selected row.
func (m BrowserModel) Cursor() int {
	return m.cursor
}

// Detail reports whether the selected row is open.
func (m BrowserModel) Detail() bool {
	return m.detail
}

// Init implements tea.Model.
func (m BrowserModel) Init() tea.Cmd {
	return nil
}

// Update implements tea.Model.
func (m BrowserModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.viewport.Width = msg.Width
		m.viewport.Height = max(msg.Height-4, 1)
		return m, nil

	case tea.KeyMsg:
		if key.Matches(msg, keys.Quit) {
			m.quitting = true
			return m, tea.Quit
		}
		if m.detail {
			return m.updateDetail(msg)
		}
		switch {
		case key.Matches(msg, keys.Up):
			if m.cursor > 0 {
				m.cursor--
			}
		case key.Matches(msg, keys.Down):
			if m.cursor < len(m.view.Rows)-1 {
				m.cursor++
			}
		case key.Matches(msg, keys.Failed):
			m.cursor = m.nextFailure()
		case key.Matches(msg, keys.Open):
			if len(m.view.Rows) > 0 {
				m.detail = true
				m.viewport.SetContent(m.view.Rows[m.cursor].Detail)
				m.viewport.GotoTop()
			}
		}
	}
	return m, nil
}

func (m BrowserModel) updateDetail(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if key.Matches(msg, keys.Back) {
		m.detail = false
		return m, nil
	}
	var cmd tea.Cmd
	m.viewport, cmd = m.viewport.Update(msg)
	return m, cmd
}

// nextFailure returns the first failed or errored row after the cursor,
// wrapping around, or the cursor when there is none.
func (m BrowserModel) nextFailure() int {
	n := len(m.view.Rows)
	for step := 1; step <= n; step++ {
		i := (m.cursor + step) % n
		switch m.view.Rows[i].Outcome {
		case "failed", "error":
			return i
		}
	}
	return m.cursor
}

// View implements tea.Model.
func (m BrowserModel) View() string {
	if m.quitting {
		return ""
	}
	if m.detail {
		row := m.view.Rows[m.cursor]
		header := TitleStyle.Render(row.NodeID) + " " + OutcomeStyle(row.Outcome).Render(row.Outcome)
		help := HelpStyle.Render("esc back • ↑/↓ scroll • q quit")
		return header + "\n" + m.viewport.View() + "\n" + help
	}

	var b strings.Builder
	if m.view.Title != "" {
		b.WriteString(TitleStyle.Render(m.view.Title))
		b.WriteString("\n")
	}
	b.WriteString(m.renderSummary())
	b.WriteString("\n")
	b.WriteString(BoxStyle.Render(m.renderRows()))
	b.WriteString("\n")
	b.WriteString(HelpStyle.Render("↑/↓ move • enter show output • f next failure • q quit"))
	return b.String()
}

func (m BrowserModel) renderSummary() string {
	s := m.view.Summary
	boxes := []string{
		renderStatBox("passed", s.Passed, successColor),
		renderStatBox("failed", s.Failed, errorColor),
		renderStatBox("skipped", s.Skipped, warningColor),
		renderStatBox("errors", s.Errors, errorColor),
		renderStatBox("leaked", s.Leaked, warningColor),
	}
	return lipgloss.JoinHorizontal(lipgloss.Top, boxes...)
}

func renderStatBox(label string, value int, color lipgloss.Color) string {
	valueStr := StatValueStyle.Foreground(color).Render(fmt.Sprintf("%d", value))
	labelStr := StatLabelStyle.Render(label)
	content := lipgloss.JoinVertical(lipgloss.Center, valueStr, labelStr)
	return StatBoxStyle.BorderForeground(color).Render(content)
}

// renderRows renders the rows that fit the window, keeping the cursor
// visible.
func (m BrowserModel) renderRows() string {
	visible := max(m.height-12, 1)
	start := 0
	if m.cursor >= visible {
		start = m.cursor - visible + 1
	}
	end := min(start+visible, len(m.view.Rows))

	lines := make([]string, 0, end-start)
	for i := start; i < end; i++ {
		row := m.view.Rows[i]
		marker := "  "
		nodeID := ValueStyle.Render(row.NodeID)
		if i == m.cursor {
			marker = "> "
			nodeID = SelectedStyle.Render(row.NodeID)
		}
		outcome := OutcomeStyle(row.Outcome).Width(8).Render(row.Outcome)
		lines = append(lines, fmt.Sprintf("%s%s %s %s", marker, outcome, nodeID,
			LabelStyle.Render(fmt.Sprintf("%dms", row.DurationMs))))
	}
	return strings.Join(lines, "\n")
}
