package diag

import (
	"sync"

	"tapgen/internal/source"
)

// Reporter is the minimal sink phases report into.
type Reporter interface {
	Report(code Code, sev Severity, primary source.Pos, msg string, notes []Note)
}

// BagReporter appends into a Bag.
type BagReporter struct{ Bag *Bag }

func (r BagReporter) Report(code Code, sev Severity, primary source.Pos, msg string, notes []Note) {
	if r.Bag == nil {
		return
	}
	r.Bag.Add(Diagnostic{
		Severity: sev, Code: code, Message: msg,
		Primary: primary, Notes: notes,
	})
}

// LockedReporter serializes reports coming from concurrent analysis workers.
type LockedReporter struct {
	mu   sync.Mutex
	Next Reporter
}

func (r *LockedReporter) Report(code Code, sev Severity, primary source.Pos, msg string, notes []Note) {
	if r == nil || r.Next == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Next.Report(code, sev, primary, msg, notes)
}

// NopReporter drops everything.
type NopReporter struct{}

func (NopReporter) Report(Code, Severity, source.Pos, string, []Note) {}

// ReportDiagnostic forwards a prepared Diagnostic.
func ReportDiagnostic(r Reporter, d Diagnostic) {
	if r == nil {
		return
	}
	r.Report(d.Code, d.Severity, d.Primary, d.Message, d.Notes)
}
