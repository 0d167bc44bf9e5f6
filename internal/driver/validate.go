package driver

import (
	"fmt"

	"tapgen/internal/ast"
	"tapgen/internal/diag"
	"tapgen/internal/source"
)

// validate checks the structural shape of a decoded program: known node
// kinds, payloads present, unique names. Everything deeper is left to the
// translator, which reports with positions.
func validate(prog *ast.Program, rep diag.Reporter) {
	dup := func(kind, name string, pos, first source.Pos) {
		rep.Report(diag.InputDuplicateName, diag.SevError, pos,
			fmt.Sprintf("duplicate %s %q", kind, name),
			[]diag.Note{{Pos: first, Msg: "first declared here"}})
	}
	globals := map[string]source.Pos{}
	for _, g := range prog.Globals {
		if first, ok := globals[g.Name]; ok {
			dup("global", g.Name, g.Pos, first)
			continue
		}
		globals[g.Name] = g.Pos
	}
	funcs := map[string]source.Pos{}
	for _, f := range prog.Functions {
		if first, ok := funcs[f.Name]; ok {
			dup("function", f.Name, f.Pos, first)
			continue
		}
		funcs[f.Name] = f.Pos
		if f.Body == nil {
			rep.Report(diag.InputMalformed, diag.SevError, f.Pos, fmt.Sprintf("function %q has no body", f.Name), nil)
			continue
		}
		validateBody(f.Body, rep)
	}
	for _, p := range prog.Probes {
		if p.Body == nil {
			rep.Report(diag.InputMalformed, diag.SevError, p.Pos, fmt.Sprintf("probe %q has no body", p.Name), nil)
			continue
		}
		validateBody(p.Body, rep)
		if p.Cond != nil {
			ast.WalkExpr(p.Cond, func(e *ast.Expr) bool { return validExpr(e, rep) })
		}
		for _, j := range p.Affects {
			if j < 0 || j >= len(prog.Probes) {
				rep.Report(diag.InputMalformed, diag.SevError, p.Pos, fmt.Sprintf("probe %q affects unknown probe %d", p.Name, j), nil)
			}
		}
	}
}

func validateBody(body *ast.Stmt, rep diag.Reporter) {
	ast.WalkStmts(body, func(s *ast.Stmt) bool {
		if !validStmt(s, rep) {
			return false
		}
		for _, e := range s.Exprs() {
			ast.WalkExpr(e, func(x *ast.Expr) bool { return validExpr(x, rep) })
		}
		return true
	})
}

func validStmt(s *ast.Stmt, rep diag.Reporter) bool {
	if !s.Kind.Valid() {
		rep.Report(diag.InputUnknownKind, diag.SevError, s.Pos, fmt.Sprintf("unknown statement kind %d", s.Kind), nil)
		return false
	}
	missing := ""
	switch s.Kind {
	case ast.StmtIf:
		if s.If == nil || s.If.Cond == nil {
			missing = "condition"
		}
	case ast.StmtFor:
		if s.For == nil || s.For.Body == nil {
			missing = "loop body"
		}
	case ast.StmtForeach:
		if s.Foreach == nil || s.Foreach.Base == nil {
			missing = "iteration source"
		}
	case ast.StmtTry:
		if s.Try == nil {
			missing = "try payload"
		}
	case ast.StmtExpr, ast.StmtDelete:
		if s.Expr == nil {
			missing = "expression"
		}
	}
	if missing != "" {
		rep.Report(diag.InputMalformed, diag.SevError, s.Pos, fmt.Sprintf("%s statement without %s", s.Kind, missing), nil)
		return false
	}
	return true
}

func validExpr(e *ast.Expr, rep diag.Reporter) bool {
	if !e.Kind.Valid() {
		rep.Report(diag.InputUnknownKind, diag.SevError, e.Pos, fmt.Sprintf("unknown expression kind %d", e.Kind), nil)
		return false
	}
	ok := true
	switch e.Kind {
	case ast.ExprBinary, ast.ExprCompare, ast.ExprLogical, ast.ExprConcat, ast.ExprAssign:
		ok = e.Left != nil && e.Right != nil
	case ast.ExprUnary, ast.ExprIncDec:
		ok = e.Left != nil
	case ast.ExprTernary:
		ok = e.Cond != nil && e.Left != nil && e.Right != nil
	case ast.ExprIndex, ast.ExprIn, ast.ExprStatOp, ast.ExprHist:
		ok = e.Base != nil
	case ast.ExprPrint:
		ok = e.Print != nil
	}
	if !ok {
		rep.Report(diag.InputMalformed, diag.SevError, e.Pos, fmt.Sprintf("%s expression is missing an operand", e.Kind), nil)
	}
	return ok
}
