package budget

import (
	"testing"

	"tapgen/internal/ast"
)

func numbered(t *testing.T, p *ast.Program) *ast.Program {
	t.Helper()
	if err := p.Index(); err != nil {
		t.Fatal(err)
	}
	ast.Number(p)
	return p
}

func stmt() *ast.Stmt { return ast.ExprStmt(ast.Num(1)) }

func TestStraightLineCount(t *testing.T) {
	body := ast.Block(stmt(), stmt(), ast.Block(stmt(), stmt()))
	p := numbered(t, &ast.Program{Probes: []*ast.Probe{{Name: "p", Body: body}}})
	a := Analyze(p)
	if got := a.Unit(p.Units()[0]); got != 4 {
		t.Fatalf("count = %d, want 4", got)
	}
	if Decide(4) != ModeEntry {
		t.Fatalf("finite count must be charged on entry")
	}
}

func TestIfTakesLongerBranch(t *testing.T) {
	body := ast.Block(ast.If(ast.Num(1), ast.Block(stmt(), stmt(), stmt()), stmt()))
	a := Analyze(numbered(t, &ast.Program{}))
	if got := a.Stmt(body); got != 4 {
		t.Fatalf("count = %d, want 4", got)
	}
}

func TestLoopIsUnbounded(t *testing.T) {
	body := ast.Block(stmt(), ast.While(ast.Num(1), ast.Block(stmt())))
	a := Analyze(numbered(t, &ast.Program{}))
	if got := a.Stmt(body); got != Unbounded {
		t.Fatalf("count = %d, want Unbounded", got)
	}
	if Decide(Unbounded) != ModeIncremental {
		t.Fatalf("unbounded count must be charged incrementally")
	}
}

func TestCalleeFolded(t *testing.T) {
	f := &ast.Function{Name: "f", Result: ast.TypeLong, Body: ast.Block(stmt(), ast.Return(ast.Num(2)))}
	body := ast.Block(ast.ExprStmt(ast.Call("f", ast.TypeLong)), stmt())
	p := numbered(t, &ast.Program{Functions: []*ast.Function{f}, Probes: []*ast.Probe{{Name: "p", Body: body}}})
	a := Analyze(p)
	if a.Function(0) != 2 {
		t.Fatalf("f = %d, want 2", a.Function(0))
	}
	if got := a.Unit(p.Units()[1]); got != 4 {
		t.Fatalf("probe = %d, want 4", got)
	}
}

func TestRecursionIsUnbounded(t *testing.T) {
	f := &ast.Function{Name: "f", Result: ast.TypeLong, Body: ast.Block(ast.Return(ast.Call("g", ast.TypeLong)))}
	g := &ast.Function{Name: "g", Result: ast.TypeLong, Body: ast.Block(ast.Return(ast.Call("f", ast.TypeLong)))}
	h := &ast.Function{Name: "h", Result: ast.TypeLong, Body: ast.Block(ast.Return(ast.Call("g", ast.TypeLong)))}
	p := numbered(t, &ast.Program{Functions: []*ast.Function{f, g, h}})
	a := Analyze(p)
	for i := range p.Functions {
		if a.Function(i) != Unbounded {
			t.Fatalf("function %d = %d, want Unbounded", i, a.Function(i))
		}
	}
}
