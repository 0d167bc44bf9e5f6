package ast

import (
	"strconv"
	"strings"
)

// Printer renders statements and expressions as canonical script text.
// Positions and statement IDs are never printed, so two structurally equal
// trees always print identically.
type Printer struct {
	sb     strings.Builder
	indent int
}

// StmtString renders s canonically.
func StmtString(s *Stmt) string {
	var p Printer
	p.stmt(s)
	return p.sb.String()
}

// ExprText renders e canonically.
func ExprText(e *Expr) string {
	var p Printer
	p.expr(e)
	return p.sb.String()
}

func (p *Printer) line(s string) {
	for range p.indent {
		p.sb.WriteString("  ")
	}
	p.sb.WriteString(s)
}

func (p *Printer) stmt(s *Stmt) {
	if s == nil {
		p.line(";\n")
		return
	}
	switch s.Kind {
	case StmtBlock:
		p.line("{\n")
		p.indent++
		for _, c := range s.Stmts {
			p.stmt(c)
		}
		p.indent--
		p.line("}\n")
	case StmtExpr:
		p.line(ExprText(s.Expr) + "\n")
	case StmtIf:
		p.line("if (" + ExprText(s.If.Cond) + ")\n")
		p.indent++
		p.stmt(s.If.Then)
		p.indent--
		if s.If.Else != nil {
			p.line("else\n")
			p.indent++
			p.stmt(s.If.Else)
			p.indent--
		}
	case StmtFor:
		p.line("for (" + ExprText(s.For.Init) + "; " + ExprText(s.For.Cond) + "; " + ExprText(s.For.Incr) + ")\n")
		p.indent++
		p.stmt(s.For.Body)
		p.indent--
	case StmtForeach:
		fe := s.Foreach
		var h strings.Builder
		h.WriteString("foreach (")
		if fe.Value != "" {
			h.WriteString(fe.Value + " = ")
		}
		h.WriteString("[" + strings.Join(fe.Indexes, ", ") + "]")
		if fe.SortDir != 0 {
			h.WriteString(" sort " + strconv.Itoa(fe.SortColumn) + sortDirSuffix(fe.SortDir))
		}
		h.WriteString(" in " + ExprText(fe.Base))
		if fe.Limit != nil {
			h.WriteString(" limit " + ExprText(fe.Limit))
		}
		h.WriteString(")\n")
		p.line(h.String())
		p.indent++
		p.stmt(fe.Body)
		p.indent--
	case StmtReturn:
		if s.Expr != nil {
			p.line("return " + ExprText(s.Expr) + "\n")
		} else {
			p.line("return\n")
		}
	case StmtDelete:
		p.line("delete " + ExprText(s.Expr) + "\n")
	case StmtNext:
		p.line("next\n")
	case StmtBreak:
		p.line("break\n")
	case StmtContinue:
		p.line("continue\n")
	case StmtNull:
		p.line(";\n")
	case StmtTry:
		p.line("try\n")
		p.indent++
		p.stmt(s.Try.Body)
		p.indent--
		p.line("catch (" + s.Try.CatchVar + ")\n")
		p.indent++
		p.stmt(s.Try.Catch)
		p.indent--
	case StmtEmbedded:
		p.line("%{" + s.Code + "%}\n")
	default:
		p.line("<" + s.Kind.String() + ">\n")
	}
}

func sortDirSuffix(dir int) string {
	if dir < 0 {
		return "-"
	}
	return "+"
}

func (p *Printer) expr(e *Expr) {
	if e == nil {
		return
	}
	w := &p.sb
	switch e.Kind {
	case ExprNumber:
		w.WriteString(strconv.FormatInt(e.Num, 10))
	case ExprString:
		w.WriteString(strconv.Quote(e.Str))
	case ExprSym:
		if e.Scope == ScopeGlobal {
			w.WriteString("global ")
		}
		w.WriteString(e.Name)
	case ExprIndex:
		p.expr(e.Base)
		w.WriteString("[")
		p.exprList(e.Args)
		w.WriteString("]")
	case ExprBinary, ExprLogical, ExprCompare, ExprAssign:
		w.WriteString("(")
		p.expr(e.Left)
		w.WriteString(" " + e.Op + " ")
		p.expr(e.Right)
		w.WriteString(")")
	case ExprConcat:
		w.WriteString("(")
		p.expr(e.Left)
		w.WriteString(" . ")
		p.expr(e.Right)
		w.WriteString(")")
	case ExprUnary:
		w.WriteString(e.Op)
		p.expr(e.Left)
	case ExprTernary:
		w.WriteString("(")
		p.expr(e.Cond)
		w.WriteString(" ? ")
		p.expr(e.Left)
		w.WriteString(" : ")
		p.expr(e.Right)
		w.WriteString(")")
	case ExprIncDec:
		if e.Post {
			p.expr(e.Left)
			w.WriteString(e.Op)
		} else {
			w.WriteString(e.Op)
			p.expr(e.Left)
		}
	case ExprIn:
		w.WriteString("([")
		p.exprList(e.Args)
		w.WriteString("] in ")
		p.expr(e.Base)
		w.WriteString(")")
	case ExprCall:
		w.WriteString(e.Name + "(")
		p.exprList(e.Args)
		w.WriteString(")")
	case ExprPrint:
		p.printExpr(e)
	case ExprStatOp:
		w.WriteString("@" + e.Stat.String() + "(")
		p.expr(e.Base)
		w.WriteString(")")
	case ExprHist:
		w.WriteString("@hist_" + e.Hist.Kind.String() + "(")
		p.expr(e.Base)
		if e.Hist.Kind == HistLinear {
			w.WriteString(", " + strconv.FormatInt(e.Hist.Lo, 10) + ", " + strconv.FormatInt(e.Hist.Hi, 10) + ", " + strconv.FormatInt(e.Hist.Step, 10))
		}
		w.WriteString(")")
	default:
		w.WriteString("<" + e.Kind.String() + ">")
	}
	if e.Type != TypeUnknown {
		w.WriteString(":" + e.Type.String())
	}
}

func (p *Printer) printExpr(e *Expr) {
	w := &p.sb
	ps := e.Print
	if ps == nil {
		w.WriteString("print?()")
		return
	}
	name := "sprint"
	if ps.ToStream {
		name = "print"
	}
	if ps.HasFormat {
		name += "f"
	}
	if ps.Newline {
		name += "ln"
	}
	if ps.Delim != "" {
		name += "d"
	}
	w.WriteString(name + "(")
	if ps.HasFormat {
		w.WriteString(strconv.Quote(ps.Format))
		if len(e.Args) > 0 {
			w.WriteString(", ")
		}
	}
	if ps.Delim != "" {
		w.WriteString(strconv.Quote(ps.Delim))
		if len(e.Args) > 0 {
			w.WriteString(", ")
		}
	}
	p.exprList(e.Args)
	if ps.Hist != nil {
		p.expr(ps.Hist)
	}
	w.WriteString(")")
}

func (p *Printer) exprList(es []*Expr) {
	for i, a := range es {
		if i > 0 {
			p.sb.WriteString(", ")
		}
		p.expr(a)
	}
}

// DeclString renders a variable declaration canonically.
func DeclString(v *Variable) string {
	var sb strings.Builder
	sb.WriteString(v.Name)
	sb.WriteString(":")
	sb.WriteString(v.Type.String())
	if len(v.Index) > 0 {
		sb.WriteString("[")
		for i, t := range v.Index {
			if i > 0 {
				sb.WriteString(",")
			}
			sb.WriteString(t.String())
		}
		sb.WriteString("]")
	}
	return sb.String()
}
