package codegen

import (
	"strings"

	"tapgen/internal/ast"
	"tapgen/internal/diag"
)

var compoundOps = map[string]string{
	"+=": "+", "-=": "-", "*=": "*", "/=": "/", "%=": "%",
	"<<=": "<<", ">>=": ">>", "&=": "&", "|=": "|", "^=": "^",
}

const overflowMsg = "Array overflow, check MAXMAPENTRIES"

func (ue *unitEmitter) assign(e *ast.Expr) {
	if e.Op == "<<<" {
		ue.statAdd(e)
		return
	}
	if e.Op != "=" && e.Op != ".=" && compoundOps[e.Op] == "" {
		ue.errorf(e.Pos, diag.TransUnexpectedNode, "unknown assignment operator %q", e.Op)
		ue.w.write("0")
		return
	}
	lhs := e.Left
	switch {
	case lhs == nil:
		diag.Internalf("assignment without target at %s", e.Pos)
	case lhs.Type != e.Right.Type:
		ue.errorf(e.Pos, diag.TransTypeMismatch, "cannot assign %s to %s", e.Right.Type, lhs.Type)
		ue.w.write("0")
		return
	case lhs.Type == ast.TypeStats:
		ue.errorf(e.Pos, diag.TransTypeMismatch, "statistics only accept <<<")
		ue.w.write("0")
		return
	case lhs.Type == ast.TypeString && e.Op != "=" && e.Op != ".=":
		ue.errorf(e.Pos, diag.TransTypeMismatch, "operator %s needs numbers", e.Op)
		ue.w.write("0")
		return
	case lhs.Type == ast.TypeLong && e.Op == ".=":
		ue.errorf(e.Pos, diag.TransTypeMismatch, "operator .= needs strings")
		ue.w.write("0")
		return
	}
	switch lhs.Kind {
	case ast.ExprSym:
		ue.assignScalar(e)
	case ast.ExprIndex:
		ue.assignIndex(e)
	default:
		ue.errorf(lhs.Pos, diag.TransUnsupportedLvalue, "cannot assign to %s expression", lhs.Kind)
		ue.w.write("0")
	}
}

func (ue *unitEmitter) assignScalar(e *ast.Expr) {
	w := ue.w
	lv := ue.symRef(e.Left)
	if e.Left.Type == ast.TypeString {
		fn := "strlcpy"
		if e.Op == ".=" {
			fn = "strlcat"
		}
		w.writef("({ %s (%s, ", fn, lv)
		ue.expr(e.Right)
		w.writef(", MAXSTRINGLEN); %s; })", lv)
		return
	}
	switch e.Op {
	case "/=", "%=":
		w.write("({ ")
		r := ue.operand(e.Right)
		w.writef("if (unlikely (!%s)) %s ", r, ue.fail("division by 0"))
		w.writef("%s %s %s; })", lv, e.Op, r)
	default:
		w.writef("(%s %s (", lv, e.Op)
		ue.expr(e.Right)
		w.write("))")
	}
}

// arrayTarget resolves base[keys] to a global array, checking arity and key
// types.
func (ue *unitEmitter) arrayTarget(e *ast.Expr) *ast.Variable {
	base := e.Base
	if base == nil || base.Kind != ast.ExprSym {
		ue.errorf(e.Pos, diag.TransInvalidArrayRef, "only named arrays can be indexed")
		return nil
	}
	if base.Scope != ast.ScopeGlobal {
		if ue.unit.Local(base.Name) == nil {
			ue.errorf(base.Pos, diag.TransUnknownVariable, "unknown array %q", base.Name)
		} else {
			ue.errorf(base.Pos, diag.TransArrayLocal, "local %q cannot be indexed", base.Name)
		}
		return nil
	}
	v := ue.g.prog.Global(base.Name)
	switch {
	case v == nil:
		ue.errorf(base.Pos, diag.TransUnknownVariable, "unknown array %q", base.Name)
		return nil
	case !v.IsArray():
		ue.errorf(base.Pos, diag.TransInvalidArrayRef, "%q is not an array", base.Name)
		return nil
	case len(e.Args) != v.Arity():
		ue.errorf(e.Pos, diag.TransIndexArity, "array %q takes %d indexes, got %d", v.Name, v.Arity(), len(e.Args))
		return nil
	}
	for i, k := range e.Args {
		if k.Type != v.Index[i] {
			ue.errorf(k.Pos, diag.TransTypeMismatch, "index %d of %q is %s, want %s", i+1, v.Name, k.Type, v.Index[i])
			return nil
		}
	}
	return v
}

// keys evaluates index operands in order.
func (ue *unitEmitter) keys(args []*ast.Expr) string {
	texts := make([]string, len(args))
	for i, a := range args {
		texts[i] = ue.operand(a).text
	}
	return strings.Join(texts, ", ")
}

// mapSet writes a checked store of val under keys.
func (ue *unitEmitter) mapSet(v *ast.Variable, keys, val string) {
	ue.w.writef("{ int rc = %s (%s, %s, %s); if (unlikely (rc)) %s } ",
		mapOp("set", v), globalRef(v.Name), keys, val, ue.fail(overflowMsg))
}

// mapGet is the C expression fetching keys from a plain array, with the
// empty string standing in for a missing string value.
func mapGet(v *ast.Variable, m, keys string) string {
	get := mapOp("get", v) + " (" + m + ", " + keys + ")"
	if v.Type == ast.TypeString {
		return "(" + get + " ?: \"\")"
	}
	return get
}

func (ue *unitEmitter) assignIndex(e *ast.Expr) {
	v := ue.arrayTarget(e.Left)
	if v == nil {
		ue.w.write("0")
		return
	}
	if v.Type == ast.TypeStats {
		ue.errorf(e.Pos, diag.TransTypeMismatch, "statistics arrays only accept <<<")
		ue.w.write("0")
		return
	}
	w := ue.w
	w.write("({ ")
	keys := ue.keys(e.Left.Args)
	r := ue.operand(e.Right)
	var val string
	switch {
	case e.Op == "=":
		val = r.text
	case v.Type == ast.TypeString:
		val = ue.tmp(ast.TypeString)
		w.writef("strlcpy (%s, %s, MAXSTRINGLEN); ", val, mapGet(v, globalRef(v.Name), keys))
		w.writef("strlcat (%s, %s, MAXSTRINGLEN); ", val, r)
	default:
		old := ue.tmp(ast.TypeLong)
		w.writef("%s = %s; ", old, mapGet(v, globalRef(v.Name), keys))
		op := compoundOps[e.Op]
		if op == "/" || op == "%" {
			w.writef("if (unlikely (!%s)) %s ", r, ue.fail("division by 0"))
		}
		val = ue.tmp(ast.TypeLong)
		w.writef("%s = %s %s %s; ", val, old, op, r)
	}
	ue.mapSet(v, keys, val)
	w.writef("%s; })", val)
}

func (ue *unitEmitter) incdec(e *ast.Expr) {
	if e.Op != "++" && e.Op != "--" {
		ue.errorf(e.Pos, diag.TransUnexpectedNode, "unknown operator %q", e.Op)
		ue.w.write("0")
		return
	}
	lhs := e.Left
	if lhs.Type != ast.TypeLong {
		ue.errorf(e.Pos, diag.TransTypeMismatch, "operator %s needs a number, got %s", e.Op, lhs.Type)
		ue.w.write("0")
		return
	}
	w := ue.w
	switch lhs.Kind {
	case ast.ExprSym:
		lv := ue.symRef(lhs)
		if e.Post {
			w.writef("(%s%s)", lv, e.Op)
		} else {
			w.writef("(%s%s)", e.Op, lv)
		}
	case ast.ExprIndex:
		v := ue.arrayTarget(lhs)
		if v == nil {
			w.write("0")
			return
		}
		if v.Type != ast.TypeLong {
			ue.errorf(e.Pos, diag.TransTypeMismatch, "operator %s needs a numeric array", e.Op)
			w.write("0")
			return
		}
		w.write("({ ")
		keys := ue.keys(lhs.Args)
		old := ue.tmp(ast.TypeLong)
		w.writef("%s = %s; ", old, mapGet(v, globalRef(v.Name), keys))
		val := ue.tmp(ast.TypeLong)
		w.writef("%s = %s %s 1; ", val, old, e.Op[:1])
		ue.mapSet(v, keys, val)
		if e.Post {
			w.writef("%s; })", old)
		} else {
			w.writef("%s; })", val)
		}
	default:
		ue.errorf(lhs.Pos, diag.TransUnsupportedLvalue, "cannot modify %s expression", lhs.Kind)
		w.write("0")
	}
}

func (ue *unitEmitter) deleteStmt(s *ast.Stmt) {
	e := s.Expr
	w := ue.w
	if e == nil {
		ue.errorf(s.Pos, diag.TransBadDeleteTarget, "delete without a target")
		return
	}
	switch e.Kind {
	case ast.ExprSym:
		if e.Scope == ast.ScopeGlobal {
			v := ue.g.prog.Global(e.Name)
			if v == nil {
				ue.errorf(e.Pos, diag.TransUnknownVariable, "unknown global %q", e.Name)
				return
			}
			ue.deleteGlobal(s, v)
			return
		}
		lv := ue.localRef(e.Pos, e.Name, e.Type)
		if e.Type == ast.TypeString {
			w.line("%s[0] = '\\0';", lv)
		} else {
			w.line("%s = 0;", lv)
		}
	case ast.ExprIndex:
		v := ue.arrayTarget(e)
		if v == nil {
			return
		}
		for i := len(ue.iters) - 1; i >= 0; i-- {
			it := ue.iters[i]
			if it.global != v.Name {
				continue
			}
			if it.parallel {
				ue.errorf(s.Pos, diag.TransIterDelParallel, "cannot delete from statistics array %q while iterating it", v.Name)
				return
			}
			if iteratedElement(e, it) {
				w.line("_stp_map_iterdel (%s, %s);", globalRef(v.Name), it.node)
				return
			}
		}
		op := mapOp("del", v)
		if v.Type == ast.TypeStats {
			op = pmapOp("del", v)
		}
		w.write("(void) ({ ")
		keys := ue.keys(e.Args)
		w.writef("%s (%s, %s); });", op, globalRef(v.Name), keys)
		w.newline()
	default:
		ue.errorf(e.Pos, diag.TransBadDeleteTarget, "cannot delete %s expression", e.Kind)
	}
}

func (ue *unitEmitter) deleteGlobal(s *ast.Stmt, v *ast.Variable) {
	w := ue.w
	for _, it := range ue.iters {
		if it.global == v.Name && it.parallel {
			ue.errorf(s.Pos, diag.TransIterDelParallel, "cannot clear statistics array %q while iterating it", v.Name)
			return
		}
	}
	ref := globalRef(v.Name)
	switch {
	case v.IsArray() && v.Type == ast.TypeStats:
		w.line("_stp_pmap_clear (%s);", ref)
	case v.IsArray():
		w.line("_stp_map_clear (%s);", ref)
	case v.Type == ast.TypeStats:
		w.line("_stp_stat_clear (%s);", ref)
	case v.Type == ast.TypeString:
		w.line("%s[0] = '\\0';", ref)
	default:
		w.line("%s = 0;", ref)
	}
}

// iteratedElement reports whether e names exactly the element the iterator
// is positioned on: its keys are the loop's index variables, in order.
func iteratedElement(e *ast.Expr, it iterScope) bool {
	if len(e.Args) != len(it.keys) {
		return false
	}
	for i, k := range e.Args {
		if k.Kind != ast.ExprSym || k.Scope != ast.ScopeLocal || k.Name != it.keys[i] {
			return false
		}
	}
	return true
}
