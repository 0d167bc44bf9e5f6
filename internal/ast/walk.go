package ast

import "fortio.org/safecast"

// Number assigns dense statement IDs (1..n) inside every unit and records
// n on the unit. It must run once before any analysis.
func Number(p *Program) {
	for _, f := range p.Functions {
		f.NumStmts = numberStmt(f.Body, 0)
	}
	for _, pr := range p.Probes {
		pr.NumStmts = numberStmt(pr.Body, 0)
	}
}

func numberStmt(s *Stmt, next int) int {
	if s == nil {
		return next
	}
	next++
	s.ID = safecast.MustConv[StmtID](next)
	for _, c := range s.Children() {
		next = numberStmt(c, next)
	}
	return next
}

// WalkStmts calls fn for s and every nested statement in pre-order; a false
// return skips the children of that statement.
func WalkStmts(s *Stmt, fn func(*Stmt) bool) {
	if s == nil {
		return
	}
	if !fn(s) {
		return
	}
	for _, c := range s.Children() {
		WalkStmts(c, fn)
	}
}

// WalkExpr calls fn for e and every nested expression in pre-order.
func WalkExpr(e *Expr, fn func(*Expr) bool) {
	if e == nil {
		return
	}
	if !fn(e) {
		return
	}
	for _, c := range e.Children() {
		WalkExpr(c, fn)
	}
}

// WalkAllExprs visits every expression reachable from s, including the
// expressions of nested statements.
func WalkAllExprs(s *Stmt, fn func(*Expr) bool) {
	WalkStmts(s, func(st *Stmt) bool {
		for _, e := range st.Exprs() {
			WalkExpr(e, fn)
		}
		return true
	})
}

// Children returns the direct sub-expressions of e in evaluation order.
func (e *Expr) Children() []*Expr {
	if e == nil {
		return nil
	}
	var out []*Expr
	switch e.Kind {
	case ExprIndex:
		out = appendNonNilExpr(out, e.Base)
		out = append(out, e.Args...)
	case ExprIn:
		out = append(out, e.Args...)
		out = appendNonNilExpr(out, e.Base)
	case ExprTernary:
		out = appendNonNilExpr(out, e.Cond, e.Left, e.Right)
	case ExprCall:
		out = append(out, e.Args...)
	case ExprPrint:
		out = append(out, e.Args...)
		if e.Print != nil {
			out = appendNonNilExpr(out, e.Print.Hist)
		}
	case ExprStatOp, ExprHist:
		out = appendNonNilExpr(out, e.Base)
	default:
		out = appendNonNilExpr(out, e.Left, e.Right)
	}
	return out
}
