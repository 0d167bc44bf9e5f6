package ast

import (
	"fmt"

	"tapgen/internal/source"
)

// StmtID is a dense per-unit statement number assigned by Number. 0 means
// the statement has not been numbered.
type StmtID uint32

// StmtKind enumerates statement variants.
type StmtKind uint8

const (
	StmtBlock    StmtKind = iota // Stmts
	StmtExpr                     // Expr
	StmtIf                       // If
	StmtFor                      // For (while loops have nil Init/Incr)
	StmtForeach                  // Foreach
	StmtReturn                   // Expr (optional)
	StmtDelete                   // Expr
	StmtNext                     //
	StmtBreak                    //
	StmtContinue                 //
	StmtNull                     //
	StmtTry                      // Try
	StmtEmbedded                 // Code
)

var stmtKindNames = [...]string{
	"block", "expr", "if", "for", "foreach", "return", "delete",
	"next", "break", "continue", "null", "try", "embedded",
}

func (k StmtKind) String() string {
	if int(k) < len(stmtKindNames) {
		return stmtKindNames[k]
	}
	return fmt.Sprintf("stmt(%d)", k)
}

func (k StmtKind) MarshalText() ([]byte, error) { return []byte(k.String()), nil }

// Valid reports whether k is a known statement kind.
func (k StmtKind) Valid() bool { return int(k) < len(stmtKindNames) }

func (k *StmtKind) UnmarshalText(b []byte) error {
	return unmarshalEnum(b, stmtKindNames[:], (*uint8)(k), "statement kind")
}

// IsLoop reports whether k may iterate an unbounded number of times.
func (k StmtKind) IsLoop() bool {
	return k == StmtFor || k == StmtForeach
}

type IfStmt struct {
	Cond *Expr `msgpack:"cond" yaml:"cond"`
	Then *Stmt `msgpack:"then" yaml:"then"`
	Else *Stmt `msgpack:"else" yaml:"else,omitempty"`
}

type ForStmt struct {
	Init *Expr `msgpack:"init" yaml:"init,omitempty"`
	Cond *Expr `msgpack:"cond" yaml:"cond,omitempty"`
	Incr *Expr `msgpack:"incr" yaml:"incr,omitempty"`
	Body *Stmt `msgpack:"body" yaml:"body"`
}

// ForeachStmt iterates an array, a statistics array or histogram buckets.
// SortColumn 0 sorts by value, k>0 by the k-th index; SortDir is +1, -1 or 0
// for unsorted.
type ForeachStmt struct {
	Indexes    []string `msgpack:"indexes" yaml:"indexes"`
	Value      string   `msgpack:"value" yaml:"value,omitempty"`
	Base       *Expr    `msgpack:"base" yaml:"base"`
	SortColumn int      `msgpack:"sort_column" yaml:"sort_column,omitempty"`
	SortDir    int      `msgpack:"sort_dir" yaml:"sort_dir,omitempty"`
	Limit      *Expr    `msgpack:"limit" yaml:"limit,omitempty"`
	Body       *Stmt    `msgpack:"body" yaml:"body"`
}

type TryStmt struct {
	Body     *Stmt  `msgpack:"body" yaml:"body"`
	CatchVar string `msgpack:"catch_var" yaml:"catch_var,omitempty"`
	Catch    *Stmt  `msgpack:"catch" yaml:"catch,omitempty"`
}

// Stmt is a statement node.
type Stmt struct {
	Kind    StmtKind     `msgpack:"kind" yaml:"kind"`
	Pos     source.Pos   `msgpack:"pos" yaml:"pos,omitempty"`
	ID      StmtID       `msgpack:"-" yaml:"-"`
	Stmts   []*Stmt      `msgpack:"stmts" yaml:"stmts,omitempty"`
	Expr    *Expr        `msgpack:"expr" yaml:"expr,omitempty"`
	If      *IfStmt      `msgpack:"if" yaml:"if,omitempty"`
	For     *ForStmt     `msgpack:"for" yaml:"for,omitempty"`
	Foreach *ForeachStmt `msgpack:"foreach" yaml:"foreach,omitempty"`
	Try     *TryStmt     `msgpack:"try" yaml:"try,omitempty"`
	Code    string       `msgpack:"code" yaml:"code,omitempty"`
}

// Children returns the direct child statements in execution order.
func (s *Stmt) Children() []*Stmt {
	if s == nil {
		return nil
	}
	var out []*Stmt
	switch s.Kind {
	case StmtBlock:
		out = s.Stmts
	case StmtIf:
		if s.If != nil {
			out = appendNonNil(out, s.If.Then, s.If.Else)
		}
	case StmtFor:
		if s.For != nil {
			out = appendNonNil(out, s.For.Body)
		}
	case StmtForeach:
		if s.Foreach != nil {
			out = appendNonNil(out, s.Foreach.Body)
		}
	case StmtTry:
		if s.Try != nil {
			out = appendNonNil(out, s.Try.Body, s.Try.Catch)
		}
	}
	return out
}

// Exprs returns the expressions evaluated by s itself (not by children).
func (s *Stmt) Exprs() []*Expr {
	if s == nil {
		return nil
	}
	var out []*Expr
	switch s.Kind {
	case StmtExpr, StmtReturn, StmtDelete:
		out = appendNonNilExpr(out, s.Expr)
	case StmtIf:
		if s.If != nil {
			out = appendNonNilExpr(out, s.If.Cond)
		}
	case StmtFor:
		if s.For != nil {
			out = appendNonNilExpr(out, s.For.Init, s.For.Cond, s.For.Incr)
		}
	case StmtForeach:
		if s.Foreach != nil {
			out = appendNonNilExpr(out, s.Foreach.Base, s.Foreach.Limit)
		}
	}
	return out
}

func appendNonNil(out []*Stmt, ss ...*Stmt) []*Stmt {
	for _, s := range ss {
		if s != nil {
			out = append(out, s)
		}
	}
	return out
}

func appendNonNilExpr(out []*Expr, es ...*Expr) []*Expr {
	for _, e := range es {
		if e != nil {
			out = append(out, e)
		}
	}
	return out
}
