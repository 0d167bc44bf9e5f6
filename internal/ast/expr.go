package ast

import (
	"fmt"

	"tapgen/internal/source"
)

// ExprKind enumerates expression variants.
type ExprKind uint8

const (
	ExprNumber  ExprKind = iota // Num
	ExprString                  // Str
	ExprSym                     // Name, Scope
	ExprIndex                   // Base[Args...]; Base is a Sym or a Hist (bucket access)
	ExprBinary                  // Left Op Right: + - * / % << >> & | ^
	ExprUnary                   // Op Left: - + ! ~
	ExprLogical                 // Left && Right, Left || Right
	ExprCompare                 // Left Op Right: < <= > >= == !=
	ExprConcat                  // Left . Right
	ExprTernary                 // Cond ? Left : Right
	ExprAssign                  // Left Op Right: = += -= ... .= <<<
	ExprIncDec                  // ++Left, Left-- (Post)
	ExprIn                      // [Args...] in Base
	ExprCall                    // Name(Args...)
	ExprPrint                   // print family, see PrintSpec
	ExprStatOp                  // @Stat(Base)
	ExprHist                    // @hist_*(Base), see Histogram
)

var exprKindNames = [...]string{
	"number", "string", "sym", "index", "binary", "unary", "logical", "compare",
	"concat", "ternary", "assign", "incdec", "in", "call", "print", "statop", "hist",
}

func (k ExprKind) String() string {
	if int(k) < len(exprKindNames) {
		return exprKindNames[k]
	}
	return fmt.Sprintf("expr(%d)", k)
}

func (k ExprKind) MarshalText() ([]byte, error) { return []byte(k.String()), nil }

func (k ExprKind) Valid() bool { return int(k) < len(exprKindNames) }

func (k *ExprKind) UnmarshalText(b []byte) error {
	return unmarshalEnum(b, exprKindNames[:], (*uint8)(k), "expression kind")
}

// StatKind names a statistic extractor.
type StatKind uint8

const (
	StatCount StatKind = iota
	StatSum
	StatMin
	StatMax
	StatAvg
	StatVariance
)

var statKindNames = [...]string{"count", "sum", "min", "max", "avg", "variance"}

func (k StatKind) String() string {
	if int(k) < len(statKindNames) {
		return statKindNames[k]
	}
	return fmt.Sprintf("stat(%d)", k)
}

func (k StatKind) MarshalText() ([]byte, error) { return []byte(k.String()), nil }

func (k *StatKind) UnmarshalText(b []byte) error {
	return unmarshalEnum(b, statKindNames[:], (*uint8)(k), "statistic operator")
}

// PrintSpec configures an ExprPrint node.
//
// Format is set for printf/sprintf. Without a format the values are printed
// one after another separated by Delim, with a trailing newline when Newline
// is set (print, println, sprint, sprintln).
type PrintSpec struct {
	Format    string `msgpack:"format" yaml:"format,omitempty"`
	HasFormat bool   `msgpack:"has_format" yaml:"has_format,omitempty"`
	ToStream  bool   `msgpack:"to_stream" yaml:"to_stream,omitempty"`
	Delim     string `msgpack:"delim" yaml:"delim,omitempty"`
	Newline   bool   `msgpack:"newline" yaml:"newline,omitempty"`
	Hist      *Expr  `msgpack:"hist" yaml:"hist,omitempty"` // print(@hist_*(...))
}

// Expr is an expression node.
type Expr struct {
	Kind  ExprKind   `msgpack:"kind" yaml:"kind"`
	Type  Type       `msgpack:"type" yaml:"type,omitempty"`
	Pos   source.Pos `msgpack:"pos" yaml:"pos,omitempty"`
	Op    string     `msgpack:"op" yaml:"op,omitempty"`
	Num   int64      `msgpack:"num" yaml:"num,omitempty"`
	Str   string     `msgpack:"str" yaml:"str,omitempty"`
	Name  string     `msgpack:"name" yaml:"name,omitempty"`
	Scope Scope      `msgpack:"scope" yaml:"scope,omitempty"`
	Post  bool       `msgpack:"post" yaml:"post,omitempty"`
	Left  *Expr      `msgpack:"left" yaml:"left,omitempty"`
	Right *Expr      `msgpack:"right" yaml:"right,omitempty"`
	Cond  *Expr      `msgpack:"cond" yaml:"cond,omitempty"`
	Base  *Expr      `msgpack:"base" yaml:"base,omitempty"`
	Args  []*Expr    `msgpack:"args" yaml:"args,omitempty"`
	Stat  StatKind   `msgpack:"stat" yaml:"stat,omitempty"`
	Hist  Histogram  `msgpack:"hist" yaml:"hist,omitempty"`
	Print *PrintSpec `msgpack:"print" yaml:"print,omitempty"`
}

// IsLiteral reports whether e is a number or string literal.
func (e *Expr) IsLiteral() bool {
	return e != nil && (e.Kind == ExprNumber || e.Kind == ExprString)
}

// Symbol returns the symbol an lvalue-ish expression names: the Sym itself
// or the base of an index. Nil otherwise.
func (e *Expr) Symbol() *Expr {
	switch {
	case e == nil:
		return nil
	case e.Kind == ExprSym:
		return e
	case e.Kind == ExprIndex && e.Base != nil && e.Base.Kind == ExprSym:
		return e.Base
	}
	return nil
}
