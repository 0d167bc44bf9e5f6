package probegroup

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"tapgen/internal/cstr"
)

// timerEntry is a timer probe with its period in nanoseconds, or in
// jiffies when jiffies is set.
type timerEntry struct {
	Entry
	period  int64
	jiffies bool
}

var timerUnits = map[string]int64{
	"ns": 1, "nsec": 1,
	"us": 1_000, "usec": 1_000,
	"ms": 1_000_000, "msec": 1_000_000,
	"s": 1_000_000_000, "sec": 1_000_000_000,
}

// parseTimer reads timer.UNIT(N) and timer.hz(N).
func parseTimer(e Entry) (timerEntry, error) {
	bad := func(msg string) (timerEntry, error) {
		return timerEntry{}, &PointError{Probe: e.Probe, Pos: e.Pos, Msg: fmt.Sprintf("timer probe %q: %s", e.Point, msg)}
	}
	rest, ok := strings.CutPrefix(e.Point, "timer.")
	if !ok {
		return bad("expected timer.UNIT(N)")
	}
	unit, arg, ok := strings.Cut(rest, "(")
	if !ok || !strings.HasSuffix(arg, ")") {
		return bad("expected timer.UNIT(N)")
	}
	n, err := strconv.ParseInt(strings.TrimSuffix(arg, ")"), 10, 64)
	if err != nil || n <= 0 {
		return bad("period must be a positive integer")
	}
	t := timerEntry{Entry: e}
	switch unit {
	case "jiffies":
		t.period, t.jiffies = n, true
	case "hz":
		if n > 1_000_000_000 {
			return bad("frequency too high")
		}
		t.period = 1_000_000_000 / n
	default:
		mul, ok := timerUnits[unit]
		if !ok {
			return bad("unknown unit " + unit)
		}
		if n > (1<<63-1)/mul {
			return bad("period overflows")
		}
		t.period = n * mul
	}
	return t, nil
}

// timerGroup registers interval timers.
type timerGroup struct {
	entries []timerEntry
}

func (g *timerGroup) Name() string { return "timer" }

func (g *timerGroup) Entries() []Entry {
	out := make([]Entry, len(g.entries))
	for i, t := range g.entries {
		out[i] = t.Entry
	}
	return out
}

func (g *timerGroup) EmitDecls(w io.Writer) error {
	c := &cw{w: w}
	c.line("static struct stap_timer_probe stap_timer_probes[] = {")
	for _, t := range g.entries {
		c.line("\t{ .ph = &%s, .pp = %s, .probe_index = %d, .period = %dLL, .jiffies = %d },",
			t.Handler, cstr.Quote(t.Point), t.Probe, t.period, b2i(t.jiffies))
	}
	c.line("};")
	return c.err
}

func (g *timerGroup) EmitInit(w io.Writer) error {
	c := &cw{w: w}
	c.line("for (i = 0; i < ARRAY_SIZE(stap_timer_probes); i++) {")
	c.line("\trc = _stp_timer_register (&stap_timer_probes[i]);")
	c.line("\tif (rc) {")
	c.line("\t\tfor (j = i - 1; j >= 0; j--)")
	c.line("\t\t\t_stp_timer_unregister (&stap_timer_probes[j]);")
	c.line("\t\tbreak;")
	c.line("\t}")
	c.line("}")
	return c.err
}

func (g *timerGroup) EmitRefresh(w io.Writer) error {
	c := &cw{w: w}
	c.line("for (i = 0; i < ARRAY_SIZE(stap_timer_probes); i++)")
	c.line("\t_stp_timer_refresh (&stap_timer_probes[i], stp_probe_enabled[stap_timer_probes[i].probe_index]);")
	return c.err
}

func (g *timerGroup) EmitExit(w io.Writer) error {
	c := &cw{w: w}
	c.line("for (i = 0; i < ARRAY_SIZE(stap_timer_probes); i++)")
	c.line("\t_stp_timer_unregister (&stap_timer_probes[i]);")
	return c.err
}

func b2i(b bool) int {
	if b {
		return 1
	}
	return 0
}
