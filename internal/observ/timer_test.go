package observ

import (
	"math"
	"strings"
	"testing"
)

func TestTimerReport(t *testing.T) {
	tm := NewTimer()
	a := tm.Begin("analyze")
	tm.End(a, 3)
	e := tm.Begin("emit")
	tm.End(e, 0)
	tm.End(42, 1) // ignored

	rep := tm.Report()
	if len(rep.Phases) != 2 {
		t.Fatalf("got %d phases, want 2", len(rep.Phases))
	}
	if rep.Phases[0].Units != 3 || rep.Phases[1].Name != "emit" {
		t.Fatalf("unexpected phases: %+v", rep.Phases)
	}
	sum := rep.Summary()
	if !strings.Contains(sum, "analyze") || !strings.Contains(sum, "3 units") || !strings.Contains(sum, "total") {
		t.Fatalf("unexpected summary:\n%s", sum)
	}
}

func TestReportShares(t *testing.T) {
	rep := Report{TotalMS: 4, Phases: []PhaseReport{
		{Name: "analyze", DurationMS: 1, Share: 0.25},
		{Name: "emit", DurationMS: 3, Share: 0.75},
	}}
	slow, ok := rep.Slowest()
	if !ok || slow.Name != "emit" {
		t.Fatalf("slowest = %+v, %v", slow, ok)
	}
	if !strings.Contains(rep.Summary(), " 75.0%") {
		t.Fatalf("summary:\n%s", rep.Summary())
	}
	if _, ok := (Report{}).Slowest(); ok {
		t.Fatal("empty report has no slowest phase")
	}

	tm := NewTimer()
	tm.End(tm.Begin("a"), 0)
	tm.End(tm.Begin("b"), 0)
	var total float64
	for _, p := range tm.Report().Phases {
		total += p.Share
	}
	if total != 0 && math.Abs(total-1) > 1e-9 {
		t.Fatalf("shares sum to %v", total)
	}
}
