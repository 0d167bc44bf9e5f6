package rwset

import (
	"testing"

	"tapgen/internal/ast"
)

func prog(globals []*ast.Variable, funcs []*ast.Function, probes ...*ast.Probe) *ast.Program {
	p := &ast.Program{Globals: globals, Functions: funcs, Probes: probes}
	if err := p.Index(); err != nil {
		panic(err)
	}
	ast.Number(p)
	return p
}

func TestAssignAndReadAccess(t *testing.T) {
	g := ast.GlobalRef("g", ast.TypeLong)
	h := ast.GlobalRef("h", ast.TypeLong)
	body := ast.Block(
		ast.ExprStmt(ast.Assign("=", g, ast.Binary("+", h, ast.Num(1)))),
		ast.ExprStmt(ast.IncDec("++", true, ast.GlobalRef("h", ast.TypeLong))),
	)
	p := prog([]*ast.Variable{ast.Var("g", ast.TypeLong), ast.Var("h", ast.TypeLong)}, nil,
		&ast.Probe{Name: "begin", Body: body})
	a := Analyze(p)
	u := a.Unit(p.Units()[0])
	if got := u.Own[2].Get(0); got != Write {
		t.Fatalf("g access = %v, want w", got)
	}
	if got := u.Own[2].Get(1); got != Read {
		t.Fatalf("h access in first stmt = %v, want r", got)
	}
	if got := u.Total.Get(1); got != Read|Write {
		t.Fatalf("h total = %v, want rw", got)
	}
}

func TestStatisticPolarity(t *testing.T) {
	s := ast.GlobalRef("s", ast.TypeStats)
	p := prog([]*ast.Variable{ast.Var("s", ast.TypeStats)}, nil,
		&ast.Probe{Name: "a", Body: ast.Block(ast.ExprStmt(ast.Assign("<<<", s, ast.Num(3))))},
		&ast.Probe{Name: "b", Body: ast.Block(ast.ExprStmt(ast.Printf(true, "%d", ast.StatOp(ast.StatCount, ast.GlobalRef("s", ast.TypeStats)))))},
	)
	a := Analyze(p)
	units := p.Units()
	if got := a.Unit(units[0]).Total.Get(0); got != Read {
		t.Fatalf("<<< access = %v, want r", got)
	}
	if got := a.Unit(units[1]).Total.Get(0); got != Write {
		t.Fatalf("@count access = %v, want w", got)
	}
}

func TestTransitiveCalls(t *testing.T) {
	// f calls g, g calls f and writes x.
	f := &ast.Function{Name: "f", Result: ast.TypeLong,
		Body: ast.Block(ast.Return(ast.Call("g", ast.TypeLong)))}
	g := &ast.Function{Name: "g", Result: ast.TypeLong,
		Body: ast.Block(
			ast.ExprStmt(ast.Assign("=", ast.GlobalRef("x", ast.TypeLong), ast.Num(1))),
			ast.Return(ast.Call("f", ast.TypeLong)),
		)}
	probe := &ast.Probe{Name: "p", Body: ast.Block(ast.ExprStmt(ast.Call("f", ast.TypeLong)))}
	p := prog([]*ast.Variable{ast.Var("x", ast.TypeLong)}, []*ast.Function{f, g}, probe)
	a := Analyze(p)
	if a.Function(0).Get(0) != Write {
		t.Fatalf("f effects = %v", a.Function(0))
	}
	u := a.Unit(p.Units()[2])
	if u.Total.Get(0) != Write {
		t.Fatalf("probe effects = %v", u.Total)
	}
	if len(u.Calls) != 1 || u.Calls[0] != 0 {
		t.Fatalf("calls = %v", u.Calls)
	}
}

func TestForeachDeleteIsWrite(t *testing.T) {
	arr := ast.GlobalRef("a", ast.TypeLong)
	body := ast.Block(ast.Foreach([]string{"k"}, arr,
		ast.Block(ast.Delete(ast.Index(ast.GlobalRef("a", ast.TypeLong), ast.TypeLong, ast.Local("k", ast.TypeString))))))
	p := prog([]*ast.Variable{ast.ArrayVar("a", ast.TypeLong, ast.TypeString)}, nil,
		&ast.Probe{Name: "p", Body: body, Locals: []*ast.Variable{ast.Var("k", ast.TypeString)}})
	u := Analyze(p).Unit(p.Units()[0])
	foreach := body.Stmts[0]
	if got := u.Own[foreach.ID].Get(0); got != Read|Write {
		t.Fatalf("foreach own = %v, want rw", got)
	}
}

func TestSortedForeachIsWrite(t *testing.T) {
	loop := ast.Foreach([]string{"k"}, ast.GlobalRef("a", ast.TypeLong), ast.Block())
	loop.Foreach.SortDir = -1
	plain := ast.Foreach([]string{"k"}, ast.GlobalRef("a", ast.TypeLong), ast.Block())
	body := ast.Block(loop, plain)
	p := prog([]*ast.Variable{ast.ArrayVar("a", ast.TypeLong, ast.TypeString)}, nil,
		&ast.Probe{Name: "p", Body: body, Locals: []*ast.Variable{ast.Var("k", ast.TypeString)}})
	u := Analyze(p).Unit(p.Units()[0])
	if got := u.Own[loop.ID].Get(0); got != Read|Write {
		t.Fatalf("sorted foreach own = %v, want rw", got)
	}
	if got := u.Own[plain.ID].Get(0); got != Read {
		t.Fatalf("unsorted foreach own = %v, want r", got)
	}
}

func TestLocalsDoNotTouch(t *testing.T) {
	body := ast.Block(ast.ExprStmt(ast.Assign("=", ast.Local("x", ast.TypeLong), ast.Num(1))))
	p := prog(nil, nil, &ast.Probe{Name: "p", Body: body, Locals: []*ast.Variable{ast.Var("x", ast.TypeLong)}})
	u := Analyze(p).Unit(p.Units()[0])
	if u.Touches(body) {
		t.Fatalf("local assignment reported as touching globals")
	}
}

func TestSetString(t *testing.T) {
	var s Set
	s.Add(2, Read)
	s.Add(0, Write)
	if got := s.String(); got != "{0:w 2:r}" {
		t.Fatalf("got %q", got)
	}
}
