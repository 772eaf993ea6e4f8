package buildzig

import (
	"fmt"
	"io"
	"strings"
)

// indentWidth is the number of spaces added per scope.
const indentWidth = 4

// Writer emits indentation-scoped source text. The first write error is
// retained and reported by Err; later writes are dropped.
type Writer struct {
	out    io.Writer
	indent int
	// blank defers a separating empty line until the next non-closing line.
	blank bool
	err   error
}

// NewWriter returns a Writer emitting to out.
func NewWriter(out io.Writer) *Writer {
	return &Writer{out: out}
}

// Line writes s as a single line at the current indentation.
func (w *Writer) Line(s string) {
	w.flushBlank()
	if s == "" {
		w.emit("\n")
		return
	}
	w.emit(strings.Repeat(" ", w.indent) + s + "\n")
}

// Linef writes a formatted line.
func (w *Writer) Linef(format string, args ...any) {
	w.Line(fmt.Sprintf(format, args...))
}

// Text writes a multi-line fragment. The fragment is dedented and trimmed of
// surrounding blank lines, then re-indented to the current level and
// followed by a blank separator line.
func (w *Writer) Text(s string) {
	if !strings.Contains(s, "\n") {
		w.Line(s)
		return
	}
	for _, line := range strings.Split(strings.Trim(Dedent(s), "\n"), "\n") {
		w.Line(line)
	}
	w.Blank()
}

// Blank requests an empty line before the next emitted line. Consecutive
// requests collapse, and a block's closing line discards a pending request.
func (w *Writer) Blank() {
	w.blank = true
}

// Indent runs fn one scope deeper.
func (w *Writer) Indent(fn func()) {
	w.indent += indentWidth
	defer func() { w.indent -= indentWidth }()
	fn()
}

// Block writes "header {", runs fn one scope deeper and closes the brace at
// the original indentation. An empty header opens a bare scope.
func (w *Writer) Block(header string, fn func()) {
	if header == "" {
		w.Scope("{", "}", fn)
		return
	}
	w.Scope(header+" {", "}", fn)
}

// Scope writes open, runs fn one scope deeper and writes close at the
// original indentation.
func (w *Writer) Scope(open, close string, fn func()) {
	w.Line(open)
	w.Indent(fn)
	w.blank = false
	w.Line(close)
}

// Err returns the first write error.
func (w *Writer) Err() error {
	return w.err
}

func (w *Writer) flushBlank() {
	if w.blank {
		w.blank = false
		w.emit("\n")
	}
}

func (w *Writer) emit(s string) {
	if w.err != nil {
		return
	}
	_, w.err = io.WriteString(w.out, s)
}

// Dedent removes the longest common leading whitespace from every non-blank
// line of s. Whitespace-only lines are emptied.
func Dedent(s string) string {
	lines := strings.Split(s, "\n")

	var margin string
	first := true
	for _, line := range lines {
		if strings.TrimSpace(line) == "" {
			continue
		}
		lead := line[:len(line)-len(strings.TrimLeft(line, " \t"))]
		if first {
			margin, first = lead, false
			continue
		}
		margin = commonPrefix(margin, lead)
	}

	for i, line := range lines {
		if strings.TrimSpace(line) == "" {
			lines[i] = ""
			continue
		}
		lines[i] = line[len(margin):]
	}
	return strings.Join(lines, "\n")
}

func commonPrefix(a, b string) string {
	n := min(len(a), len(b))
	for i := 0; i < n; i++ {
		if a[i] != b[i] {
			return a[:i]
		}
	}
	return a[:n]
}
