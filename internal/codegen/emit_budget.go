package codegen

import (
	"fmt"

	"tapgen/internal/ast"
	"tapgen/internal/budget"
)

// abortBudget is the C run when the action budget is exhausted. It always
// leaves through out: a catch block re-raises when c->aborted is set.
func (ue *unitEmitter) abortBudget() {
	ue.w.line("c->last_error = \"MAXACTION exceeded\";")
	ue.w.line("c->aborted = 1;")
	ue.w.line("goto out;")
}

// budgetEntry emits the entry guard of a unit with a finite count. Callers
// of a function fold its count into their own charge, so a finite function
// only checks.
func (ue *unitEmitter) budgetEntry() {
	if ue.g.opts.Compat.SuppressTimeLimits || ue.incremental {
		return
	}
	w := ue.w
	if ue.unit.Kind == ast.UnitFunction {
		w.open("if (unlikely (c->actionremaining < 0)) {")
		ue.abortBudget()
		w.close("}")
		return
	}
	n := ue.plan.Count
	if n <= 0 {
		return
	}
	w.open(fmt.Sprintf("if (unlikely (c->actionremaining < %d)) {", n))
	ue.abortBudget()
	w.close("}")
	w.line("c->actionremaining -= %d;", n)
}

// charge adds one executed statement to the pending count. Statements that
// call functions flush first, so callees start from a settled budget.
func (ue *unitEmitter) charge(s *ast.Stmt) {
	if !ue.incremental {
		return
	}
	cost := 1
	calls := false
	for _, e := range s.Exprs() {
		cost += ue.callCost(e)
		calls = calls || ue.hasCall(e)
	}
	ue.pending += cost
	if calls || ue.pending >= ue.g.opts.Limits.BudgetFlush {
		ue.flushBudget()
	}
}

// flushBudget charges the pending count and checks for exhaustion.
func (ue *unitEmitter) flushBudget() {
	if !ue.incremental || ue.pending == 0 {
		return
	}
	w := ue.w
	w.line("c->actionremaining -= %d;", ue.pending)
	w.open("if (unlikely (c->actionremaining < 0)) {")
	ue.abortBudget()
	w.close("}")
	ue.pending = 0
}

// callCost is the folded count of finite callees called by e. Unbounded
// callees charge themselves.
func (ue *unitEmitter) callCost(e *ast.Expr) int {
	if !ue.incremental {
		return 0
	}
	n := 0
	ast.WalkExpr(e, func(x *ast.Expr) bool {
		if x.Kind == ast.ExprCall {
			if c := ue.g.bud.Callee(x.Name); c != budget.Unbounded {
				n += c
			}
		}
		return true
	})
	return n
}

func (ue *unitEmitter) hasCall(e *ast.Expr) bool {
	found := false
	ast.WalkExpr(e, func(x *ast.Expr) bool {
		if x.Kind == ast.ExprCall {
			found = true
		}
		return !found
	})
	return found
}
