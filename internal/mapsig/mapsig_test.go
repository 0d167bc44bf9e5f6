package mapsig

import (
	"testing"

	"tapgen/internal/ast"
)

func TestCollectDistinctSignatures(t *testing.T) {
	p := &ast.Program{
		Globals: []*ast.Variable{
			ast.ArrayVar("lat", ast.TypeStats, ast.TypeLong, ast.TypeString),
			ast.ArrayVar("hits", ast.TypeLong, ast.TypeLong),
			ast.ArrayVar("more", ast.TypeLong, ast.TypeLong),
			ast.Var("total", ast.TypeLong),
		},
	}
	for range 5 {
		p.Probes = append(p.Probes, &ast.Probe{Name: "p", Body: ast.Block(
			ast.ExprStmt(ast.IncDec("++", true, ast.Index(ast.GlobalRef("hits", ast.TypeLong), ast.TypeLong, ast.Num(1)))),
		)})
	}
	sigs := Collect(p)
	if len(sigs) != 2 {
		t.Fatalf("got %d signatures, want 2: %v", len(sigs), sigs)
	}
	if sigs[0].Name() != "ii" || sigs[1].Name() != "isx" {
		t.Fatalf("names = %s, %s", sigs[0].Name(), sigs[1].Name())
	}
	if sigs[0].Parallel() || !sigs[1].Parallel() || !HasParallel(sigs) {
		t.Fatalf("parallel flags wrong")
	}
}

func TestCollectEmpty(t *testing.T) {
	p := &ast.Program{Globals: []*ast.Variable{ast.Var("x", ast.TypeString)}}
	if sigs := Collect(p); len(sigs) != 0 {
		t.Fatalf("got %v, want none", sigs)
	}
}
