package codegen

import (
	"fmt"
	"strings"

	"tapgen/internal/ast"
	"tapgen/internal/diag"
	"tapgen/internal/lockpush"
)

func (ue *unitEmitter) stmt(s *ast.Stmt) {
	if s == nil {
		return
	}
	ob := ue.plan.Plan.At(s)
	if ob&lockpush.LockBefore != 0 {
		ue.acquire(s)
	}
	switch s.Kind {
	case ast.StmtBlock:
		ue.block(s)
	case ast.StmtExpr:
		ue.charge(s)
		ue.exprStmt(s.Expr)
	case ast.StmtIf:
		ue.ifStmt(s, ob)
	case ast.StmtFor:
		ue.forStmt(s)
	case ast.StmtForeach:
		ue.foreachStmt(s)
	case ast.StmtReturn:
		ue.charge(s)
		ue.returnStmt(s)
	case ast.StmtDelete:
		ue.charge(s)
		ue.deleteStmt(s)
	case ast.StmtNext:
		ue.charge(s)
		ue.flushBudget()
		if ue.unit.Kind != ast.UnitProbe {
			ue.errorf(s.Pos, diag.TransUnexpectedNode, "next outside a probe")
			return
		}
		ue.w.line("goto out;")
	case ast.StmtBreak, ast.StmtContinue:
		ue.charge(s)
		ue.flushBudget()
		if len(ue.loops) == 0 {
			ue.errorf(s.Pos, diag.TransLoopControlOutside, "%s outside a loop", s.Kind)
			return
		}
		top := ue.loops[len(ue.loops)-1]
		if s.Kind == ast.StmtBreak {
			ue.w.line("goto %s;", top.brk)
		} else {
			ue.w.line("goto %s;", top.cont)
		}
	case ast.StmtNull:
		ue.charge(s)
		ue.w.line(";")
	case ast.StmtTry:
		ue.tryStmt(s)
	case ast.StmtEmbedded:
		ue.charge(s)
		if ue.unit.Kind != ast.UnitFunction {
			ue.errorf(s.Pos, diag.TransEmbeddedOutsideFunc, "embedded code is only allowed in functions")
			return
		}
		ue.embedded(s)
	default:
		diag.Internalf("unexpected statement kind %s at %s", s.Kind, s.Pos)
	}
	if s == ue.unit.Body() && ue.unit.Kind == ast.UnitProbe {
		ue.condUpdates()
	}
	if ob&lockpush.UnlockAfter != 0 {
		ue.release(s)
	}
}

func (ue *unitEmitter) block(s *ast.Stmt) {
	ue.w.open("{")
	ue.pass.openRegion(true)
	for _, c := range s.Stmts {
		ue.pass.openRegion(false)
		ue.stmt(c)
		ue.pass.closeRegion()
	}
	ue.pass.closeRegion()
	ue.flushBudget()
	ue.w.close("}")
}

func (ue *unitEmitter) exprStmt(e *ast.Expr) {
	if e == nil {
		return
	}
	ue.w.write("(void) ")
	ue.expr(e)
	ue.w.write(";")
	ue.w.newline()
}

// cond writes a truth-valued expression.
func (ue *unitEmitter) cond(e *ast.Expr) {
	if e == nil {
		ue.w.write("1")
		return
	}
	if e.Type != ast.TypeLong {
		ue.errorf(e.Pos, diag.TransTypeMismatch, "condition must be a number, not %s", e.Type)
		ue.w.write("0")
		return
	}
	ue.expr(e)
}

func (ue *unitEmitter) ifStmt(s *ast.Stmt, ob lockpush.Obligation) {
	is := s.If
	ue.pending += 1 + ue.callCost(is.Cond)
	ue.flushBudget()
	w := ue.w
	if ob&lockpush.UnlockAfterCond != 0 {
		t := ue.tmp(ast.TypeLong)
		w.writef("%s = ", t)
		ue.cond(is.Cond)
		w.write(";")
		w.newline()
		ue.release(s)
		w.open(fmt.Sprintf("if (%s) {", t))
	} else {
		w.write("if (")
		ue.cond(is.Cond)
		w.write(") {")
		w.newline()
		w.indent++
	}
	startLock := ue.lock
	ue.pass.openRegion(true)
	ue.pass.openRegion(false)
	ue.stmt(is.Then)
	ue.flushBudget()
	ue.pass.closeRegion()
	thenLock := ue.lock
	ue.lock = startLock
	if is.Else != nil {
		w.close("} else {")
		w.indent++
		ue.pass.openRegion(false)
		ue.stmt(is.Else)
		ue.flushBudget()
		ue.pass.closeRegion()
	}
	ue.pass.closeRegion()
	w.close("}")
	ue.lock = mergeLock(thenLock, ue.lock, s)
}

func (ue *unitEmitter) forStmt(s *ast.Stmt) {
	fs := s.For
	ue.flushBudget()
	top, cont, brk := ue.label("top"), ue.label("continue"), ue.label("break")
	w := ue.w
	w.open("{")
	if fs.Init != nil {
		ue.exprStmt(fs.Init)
	}
	w.indent--
	w.line("%s:", top)
	w.indent++
	if fs.Cond != nil {
		w.write("if (! (")
		ue.cond(fs.Cond)
		w.writef(")) goto %s;", brk)
		w.newline()
	}
	ue.pending = 1 + ue.callCost(fs.Cond) + ue.callCost(fs.Incr)
	ue.loopBody(s, fs.Body, loopScope{brk: brk, cont: cont})
	w.indent--
	w.line("%s:", cont)
	w.indent++
	if fs.Incr != nil {
		ue.exprStmt(fs.Incr)
	}
	w.line("goto %s;", top)
	ue.loopEnd(brk)
}

// loopBody emits a loop body in its own region and checks that the lock
// state is the same on every iteration.
func (ue *unitEmitter) loopBody(s, body *ast.Stmt, ls loopScope) {
	before := ue.lock
	ue.loops = append(ue.loops, ls)
	ue.pass.openRegion(false)
	ue.stmt(body)
	ue.flushBudget()
	ue.pass.closeRegion()
	ue.loops = ue.loops[:len(ue.loops)-1]
	if ue.lock != before {
		diag.Internalf("lock state changed inside loop at %s", s.Pos)
	}
}

func (ue *unitEmitter) returnStmt(s *ast.Stmt) {
	if ue.unit.Kind != ast.UnitFunction {
		ue.errorf(s.Pos, diag.TransUnexpectedNode, "return outside a function")
		return
	}
	f := ue.unit.Func
	if s.Expr != nil {
		if f.Result == ast.TypeUnknown || s.Expr.Type != f.Result {
			ue.errorf(s.Pos, diag.TransTypeMismatch, "function %s returns %s, not %s", f.Name, f.Result, s.Expr.Type)
			return
		}
		if f.Result == ast.TypeString {
			ue.w.write("strlcpy (l->__retvalue, ")
			ue.expr(s.Expr)
			ue.w.write(", MAXSTRINGLEN);")
		} else {
			ue.w.write("l->__retvalue = ")
			ue.expr(s.Expr)
			ue.w.write(";")
		}
		ue.w.newline()
	}
	ue.flushBudget()
	ue.w.line("goto out;")
}

func (ue *unitEmitter) tryStmt(s *ast.Stmt) {
	ts := s.Try
	ue.flushBudget()
	catch, end := ue.label("catch"), ue.label("end_try")
	w := ue.w
	w.open("{")
	before := ue.lock
	ue.pass.openRegion(true)
	ue.pass.openRegion(false)
	ue.errLabels = append(ue.errLabels, catch)
	ue.stmt(ts.Body)
	ue.flushBudget()
	ue.errLabels = ue.errLabels[:len(ue.errLabels)-1]
	ue.pass.closeRegion()
	w.line("goto %s;", end)
	w.indent--
	w.line("%s:", catch)
	w.indent++
	w.line("if (unlikely (c->aborted)) goto out;")
	if ts.CatchVar != "" {
		ref := ue.localRef(s.Pos, ts.CatchVar, ast.TypeString)
		w.line("strlcpy (%s, c->last_error ?: \"\", MAXSTRINGLEN);", ref)
	}
	w.line("c->last_error = 0;")
	ue.pass.openRegion(false)
	ue.stmt(ts.Catch)
	ue.flushBudget()
	ue.pass.closeRegion()
	ue.pass.closeRegion()
	w.indent--
	w.line("%s:", end)
	w.indent++
	w.line(";")
	w.close("}")
	if ue.lock != before {
		diag.Internalf("lock state changed inside try at %s", s.Pos)
	}
}

func (ue *unitEmitter) embedded(s *ast.Stmt) {
	w := ue.w
	w.open("{")
	w.line("/* embedded code */")
	for _, ln := range strings.Split(strings.TrimRight(s.Code, "\n"), "\n") {
		if ln == "" {
			w.newline()
			continue
		}
		w.line("%s", ln)
	}
	w.close("}")
}

// condUpdates re-evaluates the enable conditions this probe affects. It
// runs at the end of the body, before the root unlock.
func (ue *unitEmitter) condUpdates() {
	for _, j := range ue.unit.Probe.Affects {
		if j < 0 || j >= len(ue.g.prog.Probes) {
			continue
		}
		cond := ue.g.prog.Probes[j].Cond
		if cond == nil {
			continue
		}
		ue.pass.openRegion(false)
		t := ue.tmp(ast.TypeLong)
		ue.w.writef("%s = !! (", t)
		ue.cond(cond)
		ue.w.write(");")
		ue.w.newline()
		ue.w.open(fmt.Sprintf("if (stp_probe_enabled[%d] != %s) {", j, t))
		ue.w.line("stp_probe_enabled[%d] = %s;", j, t)
		ue.w.line("atomic_set (&need_module_refresh, 1);")
		ue.w.close("}")
		ue.pass.closeRegion()
	}
}
