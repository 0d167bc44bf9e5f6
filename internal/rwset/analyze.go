package rwset

import (
	"tapgen/internal/ast"
)

// Analysis holds the transitive effects of every function of a program.
type Analysis struct {
	prog  *ast.Program
	funcs []Set
	calls [][]int
}

// Analyze computes per-function effects, following calls to a fixpoint so
// that recursion and mutual recursion converge.
func Analyze(prog *ast.Program) *Analysis {
	a := &Analysis{
		prog:  prog,
		funcs: make([]Set, len(prog.Functions)),
		calls: make([][]int, len(prog.Functions)),
	}
	for i, f := range prog.Functions {
		u := ast.Unit{Kind: ast.UnitFunction, Index: i, Func: f}
		c := collector{prog: prog, unit: u, set: NewSet(len(prog.Globals))}
		c.stmt(f.Body)
		a.funcs[i] = c.set
		a.calls[i] = c.callees
	}
	for changed := true; changed; {
		changed = false
		for i := range a.funcs {
			for _, callee := range a.calls[i] {
				if a.funcs[i].Union(a.funcs[callee]) {
					changed = true
				}
			}
		}
	}
	return a
}

// Function returns the transitive effects of function i.
func (a *Analysis) Function(i int) Set { return a.funcs[i] }

// Callees lists the functions function i calls directly.
func (a *Analysis) Callees(i int) []int { return a.calls[i] }

// Unit describes one probe or function body.
type Unit struct {
	// Total is everything the body may touch.
	Total Set
	// Own holds, per StmtID, what the statement's own expressions touch:
	// an if's condition, a loop's header, an expression statement.
	Own []Set
	// Tree holds, per StmtID, what the statement and its descendants touch.
	Tree []Set
	// Calls lists every function called anywhere in the body.
	Calls []int
}

// Touches reports whether the subtree of s touches any global.
func (u *Unit) Touches(s *ast.Stmt) bool {
	if s == nil || int(s.ID) >= len(u.Tree) {
		return false
	}
	return !u.Tree[s.ID].Empty()
}

// OwnTouches reports whether s's own expressions touch any global.
func (u *Unit) OwnTouches(s *ast.Stmt) bool {
	if s == nil || int(s.ID) >= len(u.Own) {
		return false
	}
	return !u.Own[s.ID].Empty()
}

// Unit analyzes one body. ast.Number must have run.
func (a *Analysis) Unit(u ast.Unit) *Unit {
	n := u.NumStmts() + 1
	res := &Unit{
		Own:  make([]Set, n),
		Tree: make([]Set, n),
	}
	seen := map[int]bool{}
	var visit func(s *ast.Stmt) Set
	visit = func(s *ast.Stmt) Set {
		if s == nil {
			return Set{}
		}
		c := collector{prog: a.prog, unit: u, set: NewSet(len(a.prog.Globals))}
		c.own(s)
		for _, callee := range c.callees {
			c.set.Union(a.funcs[callee])
			if !seen[callee] {
				seen[callee] = true
				res.Calls = append(res.Calls, callee)
			}
		}
		tree := c.set.Clone()
		for _, ch := range s.Children() {
			tree.Union(visit(ch))
		}
		if int(s.ID) < n {
			res.Own[s.ID] = c.set
			res.Tree[s.ID] = tree
		}
		return tree
	}
	res.Total = visit(u.Body())
	return res
}

// ProbeCondReads returns the globals a probe's enable condition reads.
func (a *Analysis) ProbeCondReads(p *ast.Probe) Set {
	c := collector{prog: a.prog, set: NewSet(len(a.prog.Globals))}
	c.expr(p.Cond)
	for _, callee := range c.callees {
		c.set.Union(a.funcs[callee])
	}
	return c.set
}

type collector struct {
	prog    *ast.Program
	unit    ast.Unit
	set     Set
	callees []int
}

func (c *collector) stmt(s *ast.Stmt) {
	ast.WalkStmts(s, func(st *ast.Stmt) bool {
		c.own(st)
		return true
	})
}

// own records the effects of s's own expressions.
func (c *collector) own(s *ast.Stmt) {
	switch s.Kind {
	case ast.StmtDelete:
		c.lvalue(s.Expr, Write)
	case ast.StmtForeach:
		fe := s.Foreach
		c.iterBase(fe.Base)
		c.expr(fe.Limit)
		if fe.SortDir != 0 || c.deletesIterated(fe) {
			if sym := fe.Base.Symbol(); sym != nil {
				c.global(sym, Write)
			}
		}
	default:
		for _, e := range s.Exprs() {
			c.expr(e)
		}
	}
}

func (c *collector) global(sym *ast.Expr, a Access) {
	if sym == nil || sym.Scope != ast.ScopeGlobal {
		return
	}
	c.set.Add(c.prog.GlobalIndex(sym.Name), a)
}

func (c *collector) isStats(sym *ast.Expr) bool {
	if sym == nil || sym.Scope != ast.ScopeGlobal {
		return false
	}
	g := c.prog.Global(sym.Name)
	return g != nil && g.Type == ast.TypeStats
}

// iterBase records the effect of iterating base: plain arrays are read,
// statistics are aggregated and thus written. A sorted loop reorders the
// array in place, which own records as a write.
func (c *collector) iterBase(base *ast.Expr) {
	if base == nil {
		return
	}
	if base.Kind == ast.ExprHist {
		c.aggregate(base.Base)
		return
	}
	sym := base.Symbol()
	if c.isStats(sym) {
		c.global(sym, Write)
	} else {
		c.global(sym, Read)
	}
	if base.Kind == ast.ExprIndex {
		for _, k := range base.Args {
			c.expr(k)
		}
	}
}

// deletesIterated reports whether the loop body deletes from the array it
// iterates.
func (c *collector) deletesIterated(fe *ast.ForeachStmt) bool {
	sym := fe.Base.Symbol()
	if sym == nil {
		return false
	}
	found := false
	ast.WalkStmts(fe.Body, func(s *ast.Stmt) bool {
		if s.Kind == ast.StmtDelete {
			if t := s.Expr.Symbol(); t != nil && t.Name == sym.Name && t.Scope == sym.Scope {
				found = true
			}
		}
		return !found
	})
	return found
}

// aggregate records an extraction from a statistic, which aggregates
// per-cpu data and so needs exclusive access.
func (c *collector) aggregate(e *ast.Expr) {
	if e == nil {
		return
	}
	c.global(e.Symbol(), Write)
	if e.Kind == ast.ExprIndex {
		for _, k := range e.Args {
			c.expr(k)
		}
	}
}

func (c *collector) lvalue(e *ast.Expr, a Access) {
	if e == nil {
		return
	}
	switch e.Kind {
	case ast.ExprSym:
		c.global(e, a)
	case ast.ExprIndex:
		c.global(e.Base.Symbol(), a)
		for _, k := range e.Args {
			c.expr(k)
		}
	default:
		c.expr(e)
	}
}

func (c *collector) expr(e *ast.Expr) {
	if e == nil {
		return
	}
	switch e.Kind {
	case ast.ExprSym:
		if c.isStats(e) {
			c.global(e, Write)
		} else {
			c.global(e, Read)
		}
	case ast.ExprIndex:
		if e.Base != nil && e.Base.Kind == ast.ExprHist {
			c.expr(e.Base)
		} else if c.isStats(e.Base.Symbol()) {
			c.aggregate(e)
			return
		} else {
			c.global(e.Base.Symbol(), Read)
		}
		for _, k := range e.Args {
			c.expr(k)
		}
	case ast.ExprAssign:
		switch {
		case e.Op == "<<<":
			// per-cpu accumulation only needs shared access
			c.lvalue(e.Left, Read)
		case e.Op == "=":
			c.lvalue(e.Left, Write)
		default:
			c.lvalue(e.Left, Read|Write)
		}
		c.expr(e.Right)
	case ast.ExprIncDec:
		c.lvalue(e.Left, Read|Write)
	case ast.ExprIn:
		for _, k := range e.Args {
			c.expr(k)
		}
		if sym := e.Base.Symbol(); c.isStats(sym) {
			c.global(sym, Write)
		} else {
			c.global(sym, Read)
		}
	case ast.ExprStatOp, ast.ExprHist:
		c.aggregate(e.Base)
	case ast.ExprCall:
		for _, a := range e.Args {
			c.expr(a)
		}
		if i := c.prog.FunctionIndex(e.Name); i >= 0 {
			c.callees = appendUnique(c.callees, i)
		}
	default:
		for _, ch := range e.Children() {
			c.expr(ch)
		}
	}
}

func appendUnique(xs []int, x int) []int {
	for _, y := range xs {
		if y == x {
			return xs
		}
	}
	return append(xs, x)
}
