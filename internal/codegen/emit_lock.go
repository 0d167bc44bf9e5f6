package codegen

import (
	"tapgen/internal/ast"
	"tapgen/internal/diag"
)

// lockState tracks the probe lock along the path being emitted.
type lockState uint8

const (
	lockUnlocked lockState = iota
	lockLocked
	lockReleased
)

func (s lockState) String() string {
	switch s {
	case lockUnlocked:
		return "unlocked"
	case lockLocked:
		return "locked"
	}
	return "released"
}

// lockTable declares the probe's lock array, sorted by global declaration
// order so that every probe acquires locks in the same global order.
func (ue *unitEmitter) lockTable() {
	w := ue.w
	w.open("static const struct stp_probe_lock locks[] = {")
	for _, l := range ue.plan.Locks {
		write := 0
		if l.Write {
			write = 1
		}
		n := globalName(l.Name)
		w.open("{")
		w.line(".lock = global_lock(%s),", n)
		w.line(".write_p = %d,", write)
		w.line(".skipped = global_skipped(%s),", n)
		w.line(".contention = global_contention(%s),", n)
		w.close("},")
	}
	w.close("};")
}

// acquire emits the lock. Acquiring while locked is a no-op; acquiring
// after release means the placement pass produced an impossible plan.
func (ue *unitEmitter) acquire(s *ast.Stmt) {
	switch ue.lock {
	case lockLocked:
		return
	case lockReleased:
		diag.Internalf("%s: lock re-acquired after release at %s", ue.unit.Name(), s.Pos)
	}
	ue.flushBudget()
	ue.w.line("if (!_stp_lock_probe(locks, ARRAY_SIZE(locks))) goto out;")
	ue.w.line("c->locked = 1;")
	ue.lock = lockLocked
}

// release emits the unlock when the lock is held on this path.
func (ue *unitEmitter) release(s *ast.Stmt) {
	if ue.lock != lockLocked {
		diag.Internalf("%s: unlock without lock at %s", ue.unit.Name(), s.Pos)
	}
	ue.flushBudget()
	ue.w.line("_stp_unlock_probe(locks, ARRAY_SIZE(locks));")
	ue.w.line("c->locked = 2;")
	ue.lock = lockReleased
}

// mergeLock joins the states of two branches of s. A path that never
// locked and a path that already released end the same way: the lock may
// not be taken again.
func mergeLock(a, b lockState, s *ast.Stmt) lockState {
	switch {
	case a == b:
		return a
	case a != lockLocked && b != lockLocked:
		return lockReleased
	}
	diag.Internalf("branches of statement at %s disagree on lock state (%s vs %s)", s.Pos, a, b)
	return a
}
