package codegen

import (
	"fmt"

	"tapgen/internal/ast"
	"tapgen/internal/diag"
	"tapgen/internal/source"
)

func (ue *unitEmitter) expr(e *ast.Expr) {
	if e == nil {
		diag.Internalf("%s: nil expression", ue.unit.Name())
	}
	w := ue.w
	switch e.Kind {
	case ast.ExprNumber:
		w.write(cInt(e.Num))
	case ast.ExprString:
		w.write(cString(e.Str))
	case ast.ExprSym:
		w.write(ue.symRef(e))
	case ast.ExprIndex:
		if e.Base != nil && e.Base.Kind == ast.ExprHist {
			ue.histBucket(e)
			return
		}
		ue.indexRead(e)
	case ast.ExprBinary:
		ue.binary(e)
	case ast.ExprUnary:
		ue.unary(e)
	case ast.ExprLogical:
		if e.Op != "&&" && e.Op != "||" {
			ue.errorf(e.Pos, diag.TransUnexpectedNode, "unknown logical operator %q", e.Op)
			w.write("0")
			return
		}
		w.write("((")
		ue.cond(e.Left)
		w.writef(") %s (", e.Op)
		ue.cond(e.Right)
		w.write("))")
	case ast.ExprCompare:
		ue.compare(e)
	case ast.ExprConcat:
		ue.concat(e)
	case ast.ExprTernary:
		if e.Left.Type != e.Right.Type {
			ue.errorf(e.Pos, diag.TransTypeMismatch, "ternary arms differ: %s vs %s", e.Left.Type, e.Right.Type)
		}
		w.write("((")
		ue.cond(e.Cond)
		w.write(") ? (")
		ue.expr(e.Left)
		w.write(") : (")
		ue.expr(e.Right)
		w.write("))")
	case ast.ExprAssign:
		ue.assign(e)
	case ast.ExprIncDec:
		ue.incdec(e)
	case ast.ExprIn:
		ue.inExpr(e)
	case ast.ExprCall:
		ue.call(e)
	case ast.ExprPrint:
		ue.print(e)
	case ast.ExprStatOp:
		ue.statOp(e)
	case ast.ExprHist:
		ue.errorf(e.Pos, diag.TransHistogramMisuse, "histogram can only be printed, indexed or iterated")
		w.write("0")
	default:
		diag.Internalf("unexpected expression kind %s at %s", e.Kind, e.Pos)
	}
}

// literal returns the C text of a literal operand.
func literal(e *ast.Expr) string {
	if e.Kind == ast.ExprString {
		return cString(e.Str)
	}
	return cInt(e.Num)
}

// operand evaluates e into a fresh temporary, emitting the assignment as a
// statement of an enclosing ({ ... }). Literals are substituted directly
// and allocate nothing.
func (ue *unitEmitter) operand(e *ast.Expr) value {
	if e.IsLiteral() {
		return value{text: literal(e), typ: e.Type}
	}
	t := ue.tmp(e.Type)
	if e.Type == ast.TypeString {
		ue.w.writef("strlcpy (%s, ", t)
		ue.expr(e)
		ue.w.write(", MAXSTRINGLEN); ")
	} else {
		ue.w.writef("%s = ", t)
		ue.expr(e)
		ue.w.write("; ")
	}
	return value{text: t, typ: e.Type}
}

// symRef resolves a scalar symbol to a C lvalue.
func (ue *unitEmitter) symRef(e *ast.Expr) string {
	if e.Scope == ast.ScopeGlobal {
		v := ue.g.prog.Global(e.Name)
		switch {
		case v == nil:
			ue.errorf(e.Pos, diag.TransUnknownVariable, "unknown global %q", e.Name)
			return "0"
		case v.IsArray():
			ue.errorf(e.Pos, diag.TransInvalidArrayRef, "array %q used as a scalar", e.Name)
			return "0"
		case v.Type == ast.TypeStats:
			ue.errorf(e.Pos, diag.TransStatOpOnNonStat, "statistic %q read without an extractor", e.Name)
			return "0"
		}
		return globalRef(e.Name)
	}
	return ue.localRef(e.Pos, e.Name, e.Type)
}

// localRef resolves a local, declaring its frame slot on first use.
func (ue *unitEmitter) localRef(pos source.Pos, name string, t ast.Type) string {
	v := ue.unit.Local(name)
	if v == nil {
		ue.errorf(pos, diag.TransUnknownVariable, "unknown local %q", name)
		return "0"
	}
	if v.IsArray() {
		ue.errorf(pos, diag.TransArrayLocal, "local %q cannot be an array", name)
		return "0"
	}
	if t != ast.TypeUnknown && v.Type != t {
		ue.errorf(pos, diag.TransTypeMismatch, "local %q is %s, used as %s", name, v.Type, t)
	}
	mangled := ue.g.localName(name)
	ue.pass.declareLocal(mangled, ctype(v.Type))
	return "l->" + mangled
}

func (ue *unitEmitter) binary(e *ast.Expr) {
	w := ue.w
	if e.Left.Type != ast.TypeLong || e.Right.Type != ast.TypeLong {
		ue.errorf(e.Pos, diag.TransTypeMismatch, "operator %s needs numbers, got %s and %s", e.Op, e.Left.Type, e.Right.Type)
		w.write("0")
		return
	}
	switch e.Op {
	case "+", "-", "*", "&", "|", "^", "<<", ">>":
		w.write("((")
		ue.expr(e.Left)
		w.writef(") %s (", e.Op)
		ue.expr(e.Right)
		w.write("))")
	case "/", "%":
		w.write("({ ")
		l := ue.operand(e.Left)
		r := ue.operand(e.Right)
		w.writef("if (unlikely (!%s)) %s ", r, ue.fail("division by 0"))
		w.writef("%s %s %s; })", l, e.Op, r)
	default:
		ue.errorf(e.Pos, diag.TransUnexpectedNode, "unknown binary operator %q", e.Op)
		w.write("0")
	}
}

func (ue *unitEmitter) unary(e *ast.Expr) {
	if e.Left.Type != ast.TypeLong {
		ue.errorf(e.Pos, diag.TransTypeMismatch, "operator %s needs a number, got %s", e.Op, e.Left.Type)
		ue.w.write("0")
		return
	}
	switch e.Op {
	case "-", "+", "!", "~":
	default:
		ue.errorf(e.Pos, diag.TransUnexpectedNode, "unknown unary operator %q", e.Op)
		ue.w.write("0")
		return
	}
	ue.w.writef("(%s (", e.Op)
	ue.expr(e.Left)
	ue.w.write("))")
}

func (ue *unitEmitter) compare(e *ast.Expr) {
	w := ue.w
	switch e.Op {
	case "<", "<=", ">", ">=", "==", "!=":
	default:
		ue.errorf(e.Pos, diag.TransUnexpectedNode, "unknown comparison %q", e.Op)
		w.write("0")
		return
	}
	if e.Left.Type != e.Right.Type {
		ue.errorf(e.Pos, diag.TransTypeMismatch, "cannot compare %s with %s", e.Left.Type, e.Right.Type)
		w.write("0")
		return
	}
	if e.Left.Type == ast.TypeString {
		w.write("(strncmp ((")
		ue.expr(e.Left)
		w.write("), (")
		ue.expr(e.Right)
		w.writef("), MAXSTRINGLEN) %s 0)", e.Op)
		return
	}
	w.write("((")
	ue.expr(e.Left)
	w.writef(") %s (", e.Op)
	ue.expr(e.Right)
	w.write("))")
}

func (ue *unitEmitter) concat(e *ast.Expr) {
	if e.Left.Type != ast.TypeString || e.Right.Type != ast.TypeString {
		ue.errorf(e.Pos, diag.TransTypeMismatch, "concatenation needs strings, got %s and %s", e.Left.Type, e.Right.Type)
		ue.w.write("\"\"")
		return
	}
	w := ue.w
	t := ue.tmp(ast.TypeString)
	w.writef("({ strlcpy (%s, ", t)
	ue.expr(e.Left)
	w.write(", MAXSTRINGLEN); ")
	w.writef("strlcat (%s, ", t)
	ue.expr(e.Right)
	w.writef(", MAXSTRINGLEN); %s; })", t)
}

func (ue *unitEmitter) call(e *ast.Expr) {
	w := ue.w
	f := ue.g.prog.Function(e.Name)
	if f == nil {
		ue.errorf(e.Pos, diag.TransUnknownFunction, "unknown function %q", e.Name)
		w.write("0")
		return
	}
	if len(e.Args) != len(f.Args) {
		ue.errorf(e.Pos, diag.TransTypeMismatch, "function %s takes %d arguments, got %d", f.Name, len(f.Args), len(e.Args))
		w.write("0")
		return
	}
	name := "function_" + f.Name
	frame := fmt.Sprintf("c->locals[c->nesting+1].%s", name)
	w.write("({ ")
	vals := make([]value, len(e.Args))
	for i, a := range e.Args {
		if a.Type != f.Args[i].Type {
			ue.errorf(a.Pos, diag.TransTypeMismatch, "argument %d of %s is %s, want %s", i+1, f.Name, a.Type, f.Args[i].Type)
		}
		vals[i] = ue.operand(a)
	}
	for i, v := range vals {
		slot := frame + "." + ue.g.localName(f.Args[i].Name)
		if f.Args[i].Type == ast.TypeString {
			w.writef("strlcpy (%s, %s, MAXSTRINGLEN); ", slot, v)
		} else {
			w.writef("%s = %s; ", slot, v)
		}
	}
	w.writef("%s (c); ", name)
	w.writef("if (unlikely (c->last_error)) goto %s; ", ue.errLabel())
	switch f.Result {
	case ast.TypeString:
		t := ue.tmp(ast.TypeString)
		w.writef("strlcpy (%s, %s.__retvalue, MAXSTRINGLEN); %s; })", t, frame, t)
	case ast.TypeLong:
		w.writef("%s.__retvalue; })", frame)
	default:
		w.write("0; })")
	}
}
