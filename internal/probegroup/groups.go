package probegroup

import (
	"io"

	"tapgen/internal/cstr"
)

// beGroup runs begin handlers at init or end handlers at exit.
type beGroup struct {
	name    string
	end     bool
	entries []Entry
}

func (g *beGroup) Name() string     { return g.name }
func (g *beGroup) Entries() []Entry { return g.entries }

func (g *beGroup) table() string { return "stap_" + g.name + "_probes" }

func (g *beGroup) EmitDecls(w io.Writer) error {
	c := &cw{w: w}
	c.line("static struct stap_be_probe %s[] = {", g.table())
	for _, e := range g.entries {
		c.line("\t{ .ph = &%s, .pp = %s, .probe_index = %d },", e.Handler, cstr.Quote(e.Point), e.Probe)
	}
	c.line("};")
	return c.err
}

func (g *beGroup) EmitInit(w io.Writer) error {
	if g.end {
		return nil
	}
	c := &cw{w: w}
	c.line("for (i = 0; i < ARRAY_SIZE(%s); i++) {", g.table())
	c.line("\tif (stp_probe_enabled[%s[i].probe_index])", g.table())
	c.line("\t\tenter_be_probe (&%s[i]);", g.table())
	c.line("}")
	c.line("if (unlikely (atomic_read (&session_state) == STAP_SESSION_ERROR))")
	c.line("\trc = -EINVAL;")
	return c.err
}

func (g *beGroup) EmitRefresh(io.Writer) error { return nil }

func (g *beGroup) EmitExit(w io.Writer) error {
	if !g.end {
		return nil
	}
	c := &cw{w: w}
	c.line("for (i = 0; i < ARRAY_SIZE(%s); i++) {", g.table())
	c.line("\tif (stp_probe_enabled[%s[i].probe_index])", g.table())
	c.line("\t\tenter_be_probe (&%s[i]);", g.table())
	c.line("}")
	return c.err
}

// genericGroup hands its probes to the runtime registrar of a category.
type genericGroup struct {
	category string
	entries  []Entry
}

func (g *genericGroup) Name() string     { return g.category }
func (g *genericGroup) Entries() []Entry { return g.entries }

func (g *genericGroup) table() string { return "stap_" + ident(g.category) + "_probes" }

func (g *genericGroup) EmitDecls(w io.Writer) error {
	c := &cw{w: w}
	c.line("static struct stap_generic_probe %s[] = {", g.table())
	for _, e := range g.entries {
		c.line("\t{ .ph = &%s, .pp = %s, .probe_index = %d },", e.Handler, cstr.Quote(e.Point), e.Probe)
	}
	c.line("};")
	return c.err
}

func (g *genericGroup) EmitInit(w io.Writer) error {
	c := &cw{w: w}
	c.line("rc = stap_register_probes (%s, %s, ARRAY_SIZE(%s));", cstr.Quote(g.category), g.table(), g.table())
	return c.err
}

func (g *genericGroup) EmitRefresh(w io.Writer) error {
	c := &cw{w: w}
	c.line("stap_refresh_probes (%s, ARRAY_SIZE(%s), stp_probe_enabled);", g.table(), g.table())
	return c.err
}

func (g *genericGroup) EmitExit(w io.Writer) error {
	c := &cw{w: w}
	c.line("stap_unregister_probes (%s, ARRAY_SIZE(%s));", g.table(), g.table())
	return c.err
}
