package observ

import (
	"fmt"
	"strings"
	"time"
)

// Phase records the duration of one translation phase.
type Phase struct {
	Name  string
	Start time.Time
	Dur   time.Duration
	Units int // probes/functions processed, 0 when not applicable
}

// Timer tracks the phases of a single translation. Not goroutine-safe: only
// the driver goroutine begins and ends phases.
type Timer struct {
	phases []Phase
}

func NewTimer() *Timer { return &Timer{phases: make([]Phase, 0, 6)} }

// Begin starts a phase and returns its index.
func (t *Timer) Begin(name string) int {
	t.phases = append(t.phases, Phase{Name: name, Start: time.Now()})
	return len(t.phases) - 1
}

// End closes phase idx, recording how many units it covered.
func (t *Timer) End(idx, units int) {
	if idx < 0 || idx >= len(t.phases) {
		return
	}
	p := &t.phases[idx]
	p.Dur = time.Since(p.Start)
	p.Units = units
}

// PhaseReport is the serializable form of a Phase.
type PhaseReport struct {
	Name       string  `json:"name" yaml:"name" msgpack:"name"`
	DurationMS float64 `json:"duration_ms" yaml:"duration_ms" msgpack:"duration_ms"`
	Share      float64 `json:"share" yaml:"share" msgpack:"share"` // fraction of the total, 0..1
	Units      int     `json:"units,omitempty" yaml:"units,omitempty" msgpack:"units"`
}

// Report aggregates all phases.
type Report struct {
	TotalMS float64       `json:"total_ms" yaml:"total_ms" msgpack:"total_ms"`
	Phases  []PhaseReport `json:"phases" yaml:"phases" msgpack:"phases"`
}

func (t *Timer) Report() Report {
	if t == nil || len(t.phases) == 0 {
		return Report{}
	}
	var total time.Duration
	for _, p := range t.phases {
		total += p.Dur
	}
	r := Report{TotalMS: millis(total), Phases: make([]PhaseReport, 0, len(t.phases))}
	for _, p := range t.phases {
		pr := PhaseReport{Name: p.Name, DurationMS: millis(p.Dur), Units: p.Units}
		if total > 0 {
			pr.Share = float64(p.Dur) / float64(total)
		}
		r.Phases = append(r.Phases, pr)
	}
	return r
}

// Slowest returns the phase that took longest, or false for an empty report.
func (r Report) Slowest() (PhaseReport, bool) {
	if len(r.Phases) == 0 {
		return PhaseReport{}, false
	}
	best := r.Phases[0]
	for _, p := range r.Phases[1:] {
		if p.DurationMS > best.DurationMS {
			best = p
		}
	}
	return best, true
}

// Summary renders the report as aligned text with a share column.
func (r Report) Summary() string {
	var sb strings.Builder
	sb.WriteString("timings:\n")
	for _, p := range r.Phases {
		fmt.Fprintf(&sb, "  %-10s %8.2f ms %5.1f%%", p.Name, p.DurationMS, 100*p.Share)
		if p.Units > 0 {
			fmt.Fprintf(&sb, "  %d units", p.Units)
		}
		sb.WriteByte('\n')
	}
	fmt.Fprintf(&sb, "  %-10s %8.2f ms\n", "total", r.TotalMS)
	return sb.String()
}

func millis(d time.Duration) float64 {
	return float64(d) / float64(time.Millisecond)
}
