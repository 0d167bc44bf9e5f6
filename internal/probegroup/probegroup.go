// Package probegroup partitions probes by category and writes the
// registration code of each category. The module assembler stitches the
// fragments together without looking inside them.
package probegroup

import (
	"fmt"
	"io"
	"slices"
	"strings"

	"tapgen/internal/ast"
	"tapgen/internal/source"
)

// Entry is one probe registered by a group.
type Entry struct {
	Probe   int    // index in Program.Probes
	Point   string // probe point as written
	Handler string // C routine run when the probe fires
	Pos     source.Pos
}

// Group contributes the registration code of one probe category.
//
// EmitInit runs inside the module init routine with an int rc in scope; a
// fragment signals failure by leaving rc non-zero after undoing its own
// partial work. EmitExit must be safe to run after a successful EmitInit.
type Group interface {
	Name() string
	Entries() []Entry
	EmitDecls(w io.Writer) error
	EmitInit(w io.Writer) error
	EmitRefresh(w io.Writer) error
	EmitExit(w io.Writer) error
}

// PointError rejects a probe point a group cannot register.
type PointError struct {
	Probe int
	Pos   source.Pos
	Msg   string
}

func (e *PointError) Error() string { return fmt.Sprintf("%s: %s", e.Pos, e.Msg) }

// Partition groups the probes of prog. handler names the routine of each
// probe, which may be shared. Groups come in registration order: end
// first, so that the reverse teardown runs end handlers after every other
// group is gone, then begin, timers and the remaining categories sorted by
// name. Empty groups are omitted.
func Partition(prog *ast.Program, handler func(int) string) ([]Group, error) {
	begin := &beGroup{name: "begin", end: false}
	end := &beGroup{name: "end", end: true}
	timers := &timerGroup{}
	generic := map[string]*genericGroup{}
	var order []string

	for i, pr := range prog.Probes {
		e := Entry{Probe: i, Point: pr.Name, Handler: handler(i), Pos: pr.Pos}
		switch cat := category(pr); cat {
		case "begin":
			begin.entries = append(begin.entries, e)
		case "end":
			end.entries = append(end.entries, e)
		case "timer":
			t, err := parseTimer(e)
			if err != nil {
				return nil, err
			}
			timers.entries = append(timers.entries, t)
		default:
			g, ok := generic[cat]
			if !ok {
				g = &genericGroup{category: cat}
				generic[cat] = g
				order = append(order, cat)
			}
			g.entries = append(g.entries, e)
		}
	}

	var out []Group
	if len(end.entries) > 0 {
		out = append(out, end)
	}
	if len(begin.entries) > 0 {
		out = append(out, begin)
	}
	if len(timers.entries) > 0 {
		out = append(out, timers)
	}
	slices.Sort(order)
	for _, cat := range order {
		out = append(out, generic[cat])
	}
	return out, nil
}

// category is the probe's explicit group, or the first component of its
// probe point.
func category(pr *ast.Probe) string {
	if pr.Group != "" {
		return pr.Group
	}
	name := pr.Name
	if i := strings.IndexAny(name, ".("); i >= 0 {
		name = name[:i]
	}
	return name
}

// ident turns a category into a C identifier fragment.
func ident(s string) string {
	var sb strings.Builder
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9':
			sb.WriteByte(c)
		default:
			sb.WriteByte('_')
		}
	}
	return sb.String()
}

// cw is a line writer that remembers the first error.
type cw struct {
	w   io.Writer
	err error
}

func (c *cw) line(format string, args ...any) {
	if c.err != nil {
		return
	}
	_, c.err = fmt.Fprintf(c.w, format+"\n", args...)
}
