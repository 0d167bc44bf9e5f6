package ast

// Small constructors for hand-built trees. The translator itself never
// builds nodes; these exist for callers that synthesize programs (tests,
// the inspect command's samples).

func Num(n int64) *Expr { return &Expr{Kind: ExprNumber, Type: TypeLong, Num: n} }

func Str(s string) *Expr { return &Expr{Kind: ExprString, Type: TypeString, Str: s} }

// Local references a local variable or argument.
func Local(name string, t Type) *Expr {
	return &Expr{Kind: ExprSym, Type: t, Name: name, Scope: ScopeLocal}
}

// GlobalRef references a global variable.
func GlobalRef(name string, t Type) *Expr {
	return &Expr{Kind: ExprSym, Type: t, Name: name, Scope: ScopeGlobal}
}

// Index builds base[keys...] yielding a value of type t.
func Index(base *Expr, t Type, keys ...*Expr) *Expr {
	return &Expr{Kind: ExprIndex, Type: t, Base: base, Args: keys}
}

func Binary(op string, l, r *Expr) *Expr {
	return &Expr{Kind: ExprBinary, Type: TypeLong, Op: op, Left: l, Right: r}
}

func Compare(op string, l, r *Expr) *Expr {
	return &Expr{Kind: ExprCompare, Type: TypeLong, Op: op, Left: l, Right: r}
}

func Logical(op string, l, r *Expr) *Expr {
	return &Expr{Kind: ExprLogical, Type: TypeLong, Op: op, Left: l, Right: r}
}

func Concat(l, r *Expr) *Expr {
	return &Expr{Kind: ExprConcat, Type: TypeString, Left: l, Right: r}
}

func Unary(op string, x *Expr) *Expr {
	return &Expr{Kind: ExprUnary, Type: TypeLong, Op: op, Left: x}
}

func Ternary(c, a, b *Expr) *Expr {
	return &Expr{Kind: ExprTernary, Type: a.Type, Cond: c, Left: a, Right: b}
}

// Assign builds lhs op rhs; op is "=", "+=", ".=", "<<<" and so on.
func Assign(op string, lhs, rhs *Expr) *Expr {
	t := lhs.Type
	if op == "<<<" {
		t = TypeLong
	}
	return &Expr{Kind: ExprAssign, Type: t, Op: op, Left: lhs, Right: rhs}
}

func IncDec(op string, post bool, x *Expr) *Expr {
	return &Expr{Kind: ExprIncDec, Type: TypeLong, Op: op, Post: post, Left: x}
}

func In(base *Expr, keys ...*Expr) *Expr {
	return &Expr{Kind: ExprIn, Type: TypeLong, Base: base, Args: keys}
}

func Call(name string, t Type, args ...*Expr) *Expr {
	return &Expr{Kind: ExprCall, Type: t, Name: name, Args: args}
}

func StatOp(k StatKind, base *Expr) *Expr {
	return &Expr{Kind: ExprStatOp, Type: TypeLong, Stat: k, Base: base}
}

func Hist(h Histogram, base *Expr) *Expr {
	return &Expr{Kind: ExprHist, Type: TypeUnknown, Hist: h, Base: base}
}

// Printf builds printf (stream) or sprintf.
func Printf(stream bool, format string, args ...*Expr) *Expr {
	t := TypeString
	if stream {
		t = TypeLong
	}
	return &Expr{Kind: ExprPrint, Type: t, Args: args,
		Print: &PrintSpec{Format: format, HasFormat: true, ToStream: stream}}
}

// Print builds print/println/sprint/sprintln and the d variants.
func Print(stream, newline bool, delim string, args ...*Expr) *Expr {
	t := TypeString
	if stream {
		t = TypeLong
	}
	return &Expr{Kind: ExprPrint, Type: t, Args: args,
		Print: &PrintSpec{ToStream: stream, Newline: newline, Delim: delim}}
}

func Block(ss ...*Stmt) *Stmt { return &Stmt{Kind: StmtBlock, Stmts: ss} }

func ExprStmt(e *Expr) *Stmt { return &Stmt{Kind: StmtExpr, Expr: e} }

func If(cond *Expr, then, els *Stmt) *Stmt {
	return &Stmt{Kind: StmtIf, If: &IfStmt{Cond: cond, Then: then, Else: els}}
}

func For(init, cond, incr *Expr, body *Stmt) *Stmt {
	return &Stmt{Kind: StmtFor, For: &ForStmt{Init: init, Cond: cond, Incr: incr, Body: body}}
}

func While(cond *Expr, body *Stmt) *Stmt { return For(nil, cond, nil, body) }

func Foreach(indexes []string, base *Expr, body *Stmt) *Stmt {
	return &Stmt{Kind: StmtForeach, Foreach: &ForeachStmt{Indexes: indexes, Base: base, Body: body}}
}

func Return(e *Expr) *Stmt { return &Stmt{Kind: StmtReturn, Expr: e} }

func Delete(e *Expr) *Stmt { return &Stmt{Kind: StmtDelete, Expr: e} }

func Next() *Stmt { return &Stmt{Kind: StmtNext} }

func Break() *Stmt { return &Stmt{Kind: StmtBreak} }

func Continue() *Stmt { return &Stmt{Kind: StmtContinue} }

func Try(body *Stmt, catchVar string, catch *Stmt) *Stmt {
	return &Stmt{Kind: StmtTry, Try: &TryStmt{Body: body, CatchVar: catchVar, Catch: catch}}
}

func Embedded(code string) *Stmt { return &Stmt{Kind: StmtEmbedded, Code: code} }

// Var declares a scalar variable.
func Var(name string, t Type) *Variable { return &Variable{Name: name, Type: t} }

// ArrayVar declares an associative array with the given key types.
func ArrayVar(name string, val Type, keys ...Type) *Variable {
	return &Variable{Name: name, Type: val, Index: keys}
}
