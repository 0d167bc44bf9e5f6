// Package budget computes static action counts for probe and function
// bodies. A body whose count is finite can be charged once on entry; loops
// and recursion make a body Unbounded and force incremental charging.
package budget

import (
	"tapgen/internal/ast"
)

// Unbounded marks a body whose action count has no static bound.
const Unbounded = -1

// Add sums two counts, propagating Unbounded.
func Add(a, b int) int {
	if a == Unbounded || b == Unbounded {
		return Unbounded
	}
	return a + b
}

// Max returns the larger count, Unbounded winning.
func Max(a, b int) int {
	if a == Unbounded || b == Unbounded {
		return Unbounded
	}
	return max(a, b)
}

// Analysis holds the counts of every function of a program.
type Analysis struct {
	prog  *ast.Program
	funcs []int
}

const (
	stateNew = iota
	stateActive
	stateDone
)

// Analyze computes function counts. Functions on a call cycle, and
// functions that call them, are Unbounded.
func Analyze(prog *ast.Program) *Analysis {
	a := &Analysis{prog: prog, funcs: make([]int, len(prog.Functions))}
	state := make([]int, len(prog.Functions))
	var visit func(i int) int
	visit = func(i int) int {
		switch state[i] {
		case stateActive:
			return Unbounded
		case stateDone:
			return a.funcs[i]
		}
		state[i] = stateActive
		n := a.stmt(prog.Functions[i].Body, visit)
		a.funcs[i] = n
		state[i] = stateDone
		return n
	}
	for i := range prog.Functions {
		visit(i)
	}
	return a
}

// Function returns the count of function i.
func (a *Analysis) Function(i int) int { return a.funcs[i] }

// Callee returns the count of the named function, or 0 when unknown.
func (a *Analysis) Callee(name string) int {
	if i := a.prog.FunctionIndex(name); i >= 0 {
		return a.funcs[i]
	}
	return 0
}

// Unit returns the count of a probe or function body.
func (a *Analysis) Unit(u ast.Unit) int {
	if u.Kind == ast.UnitFunction {
		return a.funcs[u.Index]
	}
	return a.Stmt(u.Body())
}

// Stmt returns the count of a statement subtree with callee counts folded in.
func (a *Analysis) Stmt(s *ast.Stmt) int {
	return a.stmt(s, func(j int) int { return a.funcs[j] })
}

// Calls returns the folded count of the calls made by s's own expressions.
func (a *Analysis) Calls(s *ast.Stmt) int {
	return a.calls(s, func(j int) int { return a.funcs[j] })
}

func (a *Analysis) stmt(s *ast.Stmt, callee func(int) int) int {
	if s == nil {
		return 0
	}
	switch s.Kind {
	case ast.StmtBlock:
		n := 0
		for _, c := range s.Stmts {
			n = Add(n, a.stmt(c, callee))
		}
		return n
	case ast.StmtIf:
		n := Add(1, a.calls(s, callee))
		return Add(n, Max(a.stmt(s.If.Then, callee), a.stmt(s.If.Else, callee)))
	case ast.StmtFor, ast.StmtForeach:
		return Unbounded
	case ast.StmtTry:
		n := Add(1, a.stmt(s.Try.Body, callee))
		return Add(n, a.stmt(s.Try.Catch, callee))
	}
	return Add(1, a.calls(s, callee))
}

func (a *Analysis) calls(s *ast.Stmt, callee func(int) int) int {
	n := 0
	for _, e := range s.Exprs() {
		ast.WalkExpr(e, func(x *ast.Expr) bool {
			if x.Kind == ast.ExprCall {
				if i := a.prog.FunctionIndex(x.Name); i >= 0 {
					n = Add(n, callee(i))
				}
			}
			return true
		})
	}
	return n
}

// Mode says how a unit's budget is enforced.
type Mode uint8

const (
	// ModeEntry charges the whole count once, on entry.
	ModeEntry Mode = iota
	// ModeIncremental charges as statements execute.
	ModeIncremental
)

func (m Mode) String() string {
	if m == ModeEntry {
		return "entry"
	}
	return "incremental"
}

// Decide picks the enforcement mode for a count.
func Decide(count int) Mode {
	if count == Unbounded {
		return ModeIncremental
	}
	return ModeEntry
}
