// Package lockpush decides where a probe body acquires and releases its
// global-variable locks.
//
// Without pushdown the whole body runs locked. With pushdown the lock moves
// down to the first statement that touches a global and the unlock moves to
// the last one, so statements outside that window run unlocked.
package lockpush

import (
	"tapgen/internal/ast"
	"tapgen/internal/rwset"
)

// Obligation is a set of lock actions attached to one statement.
type Obligation uint8

const (
	// LockBefore acquires the probe locks before the statement runs.
	LockBefore Obligation = 1 << iota
	// UnlockAfter releases them after the statement finishes.
	UnlockAfter
	// UnlockAfterCond releases them once an if condition is evaluated,
	// before either branch runs.
	UnlockAfterCond

	both = LockBefore | UnlockAfter
)

func (o Obligation) String() string {
	s := ""
	if o&LockBefore != 0 {
		s += "L"
	}
	if o&UnlockAfterCond != 0 {
		s += "Uc"
	}
	if o&UnlockAfter != 0 {
		s += "U"
	}
	if s == "" {
		return "-"
	}
	return s
}

// Options control placement.
type Options struct {
	// Pushdown enables moving obligations below the body root.
	Pushdown bool
	// KeepUnlockAtRoot pins the release to the body root, for probes that
	// must update enable conditions while still locked.
	KeepUnlockAtRoot bool
}

// Plan is an index-addressed table of obligations keyed by StmtID.
type Plan struct {
	ob []Obligation
	// Fallback is set when the lock landed on a block with no touching
	// child, which happens when only condition updates need the lock.
	Fallback bool
	// Placed counts statements carrying at least one obligation.
	Placed int
}

// At returns the obligations of s.
func (p *Plan) At(s *ast.Stmt) Obligation {
	if p == nil || s == nil || int(s.ID) >= len(p.ob) {
		return 0
	}
	return p.ob[s.ID]
}

// Empty reports whether the plan places no lock at all.
func (p *Plan) Empty() bool { return p == nil || p.Placed == 0 }

func (p *Plan) add(s *ast.Stmt, o Obligation) {
	if p.ob[s.ID] == 0 {
		p.Placed++
	}
	p.ob[s.ID] |= o
}

// Compute builds the plan for a probe body that needs locks. numStmts is
// the unit's statement count from ast.Number.
func Compute(body *ast.Stmt, numStmts int, info *rwset.Unit, opts Options) *Plan {
	p := &Plan{ob: make([]Obligation, numStmts+1)}
	if body == nil {
		return p
	}
	if !opts.Pushdown {
		p.add(body, both)
		return p
	}
	if opts.KeepUnlockAtRoot {
		p.add(body, UnlockAfter)
		if !info.Touches(body) {
			p.add(body, LockBefore)
			p.Fallback = true
			return p
		}
		pd := pusher{plan: p, info: info}
		pd.push(body, LockBefore)
		return p
	}
	pd := pusher{plan: p, info: info}
	pd.push(body, both)
	return p
}

type pusher struct {
	plan *Plan
	info *rwset.Unit
}

func (pd *pusher) push(s *ast.Stmt, ob Obligation) {
	switch s.Kind {
	case ast.StmtBlock:
		pd.pushBlock(s, ob)
	case ast.StmtIf:
		pd.pushIf(s, ob)
	default:
		// loops and try keep the pair around themselves
		pd.plan.add(s, ob)
	}
}

func (pd *pusher) pushBlock(s *ast.Stmt, ob Obligation) {
	first, last := -1, -1
	for i, c := range s.Stmts {
		if pd.info.Touches(c) {
			if first < 0 {
				first = i
			}
			last = i
		}
	}
	if first < 0 {
		pd.plan.add(s, ob)
		pd.plan.Fallback = true
		return
	}
	if first == last {
		pd.push(s.Stmts[first], ob)
		return
	}
	if ob&LockBefore != 0 {
		pd.push(s.Stmts[first], LockBefore)
	}
	if ob&UnlockAfter != 0 {
		pd.push(s.Stmts[last], UnlockAfter)
	}
}

func (pd *pusher) pushIf(s *ast.Stmt, ob Obligation) {
	if ob != both {
		pd.plan.add(s, ob)
		return
	}
	condT := pd.info.OwnTouches(s)
	thenT := pd.info.Touches(s.If.Then)
	elseT := pd.info.Touches(s.If.Else)
	switch {
	case condT && !thenT && !elseT:
		pd.plan.add(s, LockBefore|UnlockAfterCond)
	case condT:
		pd.plan.add(s, both)
	case thenT && elseT:
		pd.push(s.If.Then, both)
		pd.push(s.If.Else, both)
	case thenT:
		pd.push(s.If.Then, both)
	case elseT:
		pd.push(s.If.Else, both)
	default:
		pd.plan.add(s, both)
		pd.plan.Fallback = true
	}
}
