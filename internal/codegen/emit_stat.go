package codegen

import (
	"tapgen/internal/ast"
	"tapgen/internal/diag"
)

const emptyAggMsg = "empty aggregate"

// statTarget resolves the operand of a statistic operation: a scalar
// statistic global or an element of a statistics array.
func (ue *unitEmitter) statTarget(e *ast.Expr) *ast.Variable {
	switch {
	case e == nil:
		diag.Internalf("%s: statistic operation without operand", ue.unit.Name())
	case e.Kind == ast.ExprSym && e.Scope == ast.ScopeGlobal:
		v := ue.g.prog.Global(e.Name)
		switch {
		case v == nil:
			ue.errorf(e.Pos, diag.TransUnknownVariable, "unknown global %q", e.Name)
			return nil
		case v.Type != ast.TypeStats:
			ue.errorf(e.Pos, diag.TransStatOpOnNonStat, "%q does not hold statistics", e.Name)
			return nil
		case v.IsArray():
			ue.errorf(e.Pos, diag.TransIndexArity, "statistics array %q needs indexes", e.Name)
			return nil
		}
		return v
	case e.Kind == ast.ExprSym:
		ue.errorf(e.Pos, diag.TransStatLocal, "local %q cannot hold statistics", e.Name)
		return nil
	case e.Kind == ast.ExprIndex:
		v := ue.arrayTarget(e)
		if v != nil && v.Type != ast.TypeStats {
			ue.errorf(e.Pos, diag.TransStatOpOnNonStat, "%q does not hold statistics", v.Name)
			return nil
		}
		return v
	}
	ue.errorf(e.Pos, diag.TransStatOpOnNonStat, "statistic operation on %s expression", e.Kind)
	return nil
}

// aggregate emits the aggregation of a statistic operand inside an open
// ({ ... }) and returns the temporary holding the stat_data pointer, which
// is NULL when nothing was ever accumulated.
func (ue *unitEmitter) aggregate(e *ast.Expr, v *ast.Variable) string {
	t := ue.tmpC("struct stat_data *")
	if !v.IsArray() {
		ue.w.writef("%s = _stp_stat_get (%s, 0); ", t, globalRef(v.Name))
		return t
	}
	keys := ue.keys(e.Args)
	ue.w.writef("%s = %s (%s, %s); ", t, mapOp("get", v), ue.readableMap(v), keys)
	return t
}

func (ue *unitEmitter) statAdd(e *ast.Expr) {
	w := ue.w
	if e.Right.Type != ast.TypeLong {
		ue.errorf(e.Pos, diag.TransTypeMismatch, "<<< needs a number, got %s", e.Right.Type)
		w.write("0")
		return
	}
	v := ue.statTarget(e.Left)
	if v == nil {
		w.write("0")
		return
	}
	w.write("({ ")
	if !v.IsArray() {
		r := ue.operand(e.Right)
		w.writef("_stp_stat_add (%s, %s); 0; })", globalRef(v.Name), r)
		return
	}
	keys := ue.keys(e.Left.Args)
	r := ue.operand(e.Right)
	w.writef("{ int rc = %s (%s, %s, %s); if (unlikely (rc)) %s } 0; })",
		pmapOp("add", v), globalRef(v.Name), keys, r, ue.fail(overflowMsg))
}

func (ue *unitEmitter) statOp(e *ast.Expr) {
	w := ue.w
	v := ue.statTarget(e.Base)
	if v == nil {
		w.write("0")
		return
	}
	w.write("({ ")
	a := ue.aggregate(e.Base, v)
	switch e.Stat {
	case ast.StatCount:
		w.writef("%s ? %s->count : 0; })", a, a)
	case ast.StatSum:
		w.writef("%s ? %s->sum : 0; })", a, a)
	case ast.StatMin, ast.StatMax, ast.StatAvg, ast.StatVariance:
		w.writef("if (unlikely (%s == NULL || %s->count == 0)) %s ", a, a, ue.fail(emptyAggMsg))
		switch e.Stat {
		case ast.StatMin:
			w.writef("%s->min; })", a)
		case ast.StatMax:
			w.writef("%s->max; })", a)
		case ast.StatAvg:
			w.writef("%s->sum / %s->count; })", a, a)
		default:
			w.writef("_stp_stat_variance (%s); })", a)
		}
	default:
		diag.Internalf("unknown statistic operator %s at %s", e.Stat, e.Pos)
	}
}

// histTarget checks a histogram expression against the declaration of the
// statistic it reads.
func (ue *unitEmitter) histTarget(h *ast.Expr) *ast.Variable {
	v := ue.statTarget(h.Base)
	if v == nil {
		return nil
	}
	if v.Hist.Kind != h.Hist.Kind ||
		(h.Hist.Kind == ast.HistLinear && (v.Hist.Lo != h.Hist.Lo || v.Hist.Hi != h.Hist.Hi || v.Hist.Step != h.Hist.Step)) {
		ue.errorf(h.Pos, diag.TransHistogramMisuse, "%q is not declared with a %s histogram of these bounds", v.Name, h.Hist.Kind)
		return nil
	}
	if h.Hist.Kind == ast.HistNone {
		ue.errorf(h.Pos, diag.TransHistogramMisuse, "histogram kind missing")
		return nil
	}
	return v
}

// histBucket reads one bucket of a histogram: @hist_*(s)[i].
func (ue *unitEmitter) histBucket(e *ast.Expr) {
	w := ue.w
	v := ue.histTarget(e.Base)
	if v == nil {
		w.write("0")
		return
	}
	if len(e.Args) != 1 || e.Args[0].Type != ast.TypeLong {
		ue.errorf(e.Pos, diag.TransHistogramMisuse, "histogram buckets take one numeric index")
		w.write("0")
		return
	}
	w.write("({ ")
	a := ue.aggregate(e.Base.Base, v)
	i := ue.operand(e.Args[0])
	w.writef("if (unlikely (%s == NULL)) %s ", a, ue.fail(emptyAggMsg))
	w.writef("if (unlikely (%s < 0 || %s >= %s->hist.buckets)) %s ", i, i, a, ue.fail("histogram index out of range"))
	w.writef("%s->histogram[%s]; })", a, i)
}

// printHist prints a whole histogram.
func (ue *unitEmitter) printHist(h *ast.Expr) {
	w := ue.w
	v := ue.histTarget(h)
	if v == nil {
		w.write("0")
		return
	}
	w.write("({ ")
	a := ue.aggregate(h.Base, v)
	w.writef("if (%s) _stp_stat_print_histogram (&%s->hist, %s); 0; })", a, a, a)
}
