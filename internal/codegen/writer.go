package codegen

import (
	"fmt"
	"strings"
)

// writer accumulates generated C text with indentation tracking.
type writer struct {
	sb     strings.Builder
	indent int
	bol    bool
}

func newWriter() *writer { return &writer{bol: true} }

func (w *writer) pad() {
	if w.bol {
		for range w.indent {
			w.sb.WriteByte('\t')
		}
		w.bol = false
	}
}

// write appends s without a newline.
func (w *writer) write(s string) {
	if s == "" {
		return
	}
	w.pad()
	w.sb.WriteString(s)
}

func (w *writer) writef(format string, args ...any) {
	w.write(fmt.Sprintf(format, args...))
}

// line appends a full line.
func (w *writer) line(format string, args ...any) {
	w.writef(format, args...)
	w.newline()
}

func (w *writer) newline() {
	w.sb.WriteByte('\n')
	w.bol = true
}

// open writes s (typically ending in "{") and indents.
func (w *writer) open(s string) {
	w.line("%s", s)
	w.indent++
}

// close dedents and writes s (typically "}").
func (w *writer) close(s string) {
	w.indent--
	w.line("%s", s)
}

// append copies another writer's text, re-indented to the current level.
func (w *writer) append(o *writer) {
	text := o.sb.String()
	if text == "" {
		return
	}
	for _, ln := range strings.SplitAfter(text, "\n") {
		if ln == "" {
			continue
		}
		if ln == "\n" {
			w.newline()
			continue
		}
		w.write(strings.TrimSuffix(ln, "\n"))
		if strings.HasSuffix(ln, "\n") {
			w.newline()
		}
	}
}

// Write implements io.Writer for fragments produced outside the package.
func (w *writer) Write(p []byte) (int, error) {
	o := newWriter()
	o.sb.Write(p)
	w.append(o)
	return len(p), nil
}

func (w *writer) len() int { return w.sb.Len() }

func (w *writer) String() string { return w.sb.String() }
