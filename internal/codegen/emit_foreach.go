package codegen

import (
	"tapgen/internal/ast"
	"tapgen/internal/diag"
)

func (ue *unitEmitter) foreachStmt(s *ast.Stmt) {
	fe := s.Foreach
	ue.flushBudget()
	base := fe.Base
	switch {
	case base == nil:
		diag.Internalf("foreach without base at %s", s.Pos)
	case base.Kind == ast.ExprHist:
		ue.foreachHist(s)
		return
	case base.Kind != ast.ExprSym || base.Scope != ast.ScopeGlobal:
		ue.errorf(base.Pos, diag.TransBadForeachBase, "foreach needs a global array or a histogram, got %s", base.Kind)
		return
	}
	v := ue.g.prog.Global(base.Name)
	switch {
	case v == nil:
		ue.errorf(base.Pos, diag.TransUnknownVariable, "unknown array %q", base.Name)
		return
	case !v.IsArray():
		ue.errorf(base.Pos, diag.TransBadForeachBase, "%q is not an array", v.Name)
		return
	case len(fe.Indexes) != v.Arity():
		ue.errorf(s.Pos, diag.TransIndexArity, "array %q has %d indexes, foreach names %d", v.Name, v.Arity(), len(fe.Indexes))
		return
	case fe.SortColumn < 0 || fe.SortColumn > v.Arity():
		ue.errorf(s.Pos, diag.TransBadForeachBase, "sort column %d out of range for %q", fe.SortColumn, v.Name)
		return
	case fe.Value != "" && v.Type == ast.TypeStats:
		ue.errorf(s.Pos, diag.TransBadForeachBase, "statistics in %q are read with extractors, not a value variable", v.Name)
		return
	}
	parallel := v.Type == ast.TypeStats

	w := ue.w
	top, cont, brk := ue.label("top"), ue.label("continue"), ue.label("break")
	w.open("{")
	lim := ue.foreachLimit(fe)

	m := globalRef(v.Name)
	prevAgg, hadAgg := ue.aggregated[v.Name]
	if parallel {
		agg := ue.tmpC("MAP")
		w.line("%s = _stp_pmap_agg (%s);", agg, m)
		ue.aggregated[v.Name] = agg
		m = agg
	}
	if fe.SortDir != 0 {
		if lim != "" {
			w.line("_stp_map_sortn (%s, %s, %d, %d);", m, lim, fe.SortColumn, fe.SortDir)
		} else {
			w.line("_stp_map_sort (%s, %d, %d);", m, fe.SortColumn, fe.SortDir)
		}
	}
	node := ue.tmpC("struct map_node *")
	next := ue.tmpC("struct map_node *")
	w.line("%s = _stp_map_start (%s);", node, m)
	cnt := ue.foreachCounter(lim)
	w.indent--
	w.line("%s:", top)
	w.indent++
	w.line("if (!%s) goto %s;", node, brk)
	if lim != "" {
		w.line("if (%s++ >= %s) goto %s;", cnt, lim, brk)
	}
	// advance first: the body may delete the current node
	w.line("%s = _stp_map_iter (%s, %s);", next, m, node)
	for i, name := range fe.Indexes {
		ref := ue.localRef(s.Pos, name, v.Index[i])
		if v.Index[i] == ast.TypeString {
			w.line("strlcpy (%s, _stp_map_key_get_str (%s, %d), MAXSTRINGLEN);", ref, node, i+1)
		} else {
			w.line("%s = _stp_map_key_get_int64 (%s, %d);", ref, node, i+1)
		}
	}
	if fe.Value != "" {
		ref := ue.localRef(s.Pos, fe.Value, v.Type)
		if v.Type == ast.TypeString {
			w.line("strlcpy (%s, _stp_map_node_get_str (%s), MAXSTRINGLEN);", ref, node)
		} else {
			w.line("%s = _stp_map_node_get_int64 (%s);", ref, node)
		}
	}

	ue.iters = append(ue.iters, iterScope{global: v.Name, keys: fe.Indexes, node: node, parallel: parallel})
	ue.pending = 1
	ue.loopBody(s, fe.Body, loopScope{brk: brk, cont: cont})
	ue.iters = ue.iters[:len(ue.iters)-1]
	if hadAgg {
		ue.aggregated[v.Name] = prevAgg
	} else {
		delete(ue.aggregated, v.Name)
	}

	w.indent--
	w.line("%s:", cont)
	w.indent++
	w.line("%s = %s;", node, next)
	w.line("goto %s;", top)
	ue.loopEnd(brk)
}

// foreachHist iterates the buckets of a histogram.
func (ue *unitEmitter) foreachHist(s *ast.Stmt) {
	fe := s.Foreach
	h := fe.Base
	if len(fe.Indexes) != 1 {
		ue.errorf(s.Pos, diag.TransIndexArity, "histogram buckets take one index variable, got %d", len(fe.Indexes))
		return
	}
	if fe.SortDir != 0 {
		ue.errorf(s.Pos, diag.TransBadForeachBase, "histogram buckets cannot be sorted")
		return
	}
	v := ue.histTarget(h)
	if v == nil {
		return
	}
	w := ue.w
	top, cont, brk := ue.label("top"), ue.label("continue"), ue.label("break")
	w.open("{")
	lim := ue.foreachLimit(fe)
	a := ue.aggregate(h.Base, v)
	w.newline()
	i := ue.tmp(ast.TypeLong)
	w.line("%s = 0;", i)
	cnt := ue.foreachCounter(lim)
	w.indent--
	w.line("%s:", top)
	w.indent++
	w.line("if (!%s || %s >= %s->hist.buckets) goto %s;", a, i, a, brk)
	if lim != "" {
		w.line("if (%s++ >= %s) goto %s;", cnt, lim, brk)
	}
	w.line("%s = %s;", ue.localRef(s.Pos, fe.Indexes[0], ast.TypeLong), i)
	if fe.Value != "" {
		w.line("%s = %s->histogram[%s];", ue.localRef(s.Pos, fe.Value, ast.TypeLong), a, i)
	}
	ue.pending = 1
	ue.loopBody(s, fe.Body, loopScope{brk: brk, cont: cont})
	w.indent--
	w.line("%s:", cont)
	w.indent++
	w.line("%s++;", i)
	w.line("goto %s;", top)
	ue.loopEnd(brk)
}

// foreachLimit evaluates the limit expression once, before iteration.
func (ue *unitEmitter) foreachLimit(fe *ast.ForeachStmt) string {
	if fe.Limit == nil {
		return ""
	}
	if fe.Limit.Type != ast.TypeLong {
		ue.errorf(fe.Limit.Pos, diag.TransTypeMismatch, "foreach limit must be a number, not %s", fe.Limit.Type)
		return ""
	}
	lim := ue.tmp(ast.TypeLong)
	ue.w.writef("%s = ", lim)
	ue.expr(fe.Limit)
	ue.w.write(";")
	ue.w.newline()
	return lim
}

func (ue *unitEmitter) foreachCounter(lim string) string {
	if lim == "" {
		return ""
	}
	cnt := ue.tmp(ast.TypeLong)
	ue.w.line("%s = 0;", cnt)
	return cnt
}

func (ue *unitEmitter) loopEnd(brk string) {
	w := ue.w
	w.indent--
	w.line("%s:", brk)
	w.indent++
	w.line(";")
	w.close("}")
	ue.pending = 0
}
