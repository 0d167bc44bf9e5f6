package codegen

import (
	"fmt"

	"tapgen/internal/ast"
	"tapgen/internal/budget"
	"tapgen/internal/diag"
	"tapgen/internal/source"
)

type loopScope struct {
	brk  string
	cont string
}

// iterScope is an active foreach over a global array.
type iterScope struct {
	global   string
	keys     []string
	node     string // C lvalue of the current node
	parallel bool
}

// unitEmitter is the per-unit generation context. All counters live here,
// so units never share mutable state.
type unitEmitter struct {
	g    *Emitter
	idx  int
	unit ast.Unit
	plan UnitPlan
	pass pass
	w    *writer

	tmpID   int
	labelID int

	errLabels []string
	loops     []loopScope
	iters     []iterScope
	// aggregated maps a statistics global to the C expression of an
	// aggregate already computed on the current path.
	aggregated map[string]string

	lock        lockState
	pending     int
	incremental bool

	args   map[string]bool
	failed bool
}

func (g *Emitter) runUnit(i int, p pass) *unitEmitter {
	u := g.units[i]
	ue := &unitEmitter{
		g:          g,
		idx:        i,
		unit:       u,
		plan:       g.plans[i],
		pass:       p,
		w:          p.out(),
		aggregated: map[string]string{},
		args:       map[string]bool{},
	}
	ue.incremental = !g.opts.Compat.SuppressTimeLimits && budget.Decide(ue.plan.Count) == budget.ModeIncremental
	if u.Kind == ast.UnitFunction {
		ue.function()
	} else {
		ue.probe()
	}
	return ue
}

// errorf reports a translation error once, from the shadow pass, and marks
// the unit failed. Emission continues so that later statements can report
// their own errors.
func (ue *unitEmitter) errorf(pos source.Pos, code diag.Code, format string, args ...any) {
	if ue.pass.shadow() {
		ue.g.rep.Report(code, diag.SevError, pos, fmt.Sprintf(format, args...), nil)
	}
	ue.failed = true
}

// tmp allocates a statement-scoped temporary of script type t.
func (ue *unitEmitter) tmp(t ast.Type) string {
	return ue.tmpC(ctype(t))
}

// tmpC allocates a temporary with an explicit C type.
func (ue *unitEmitter) tmpC(ct string) string {
	name := fmt.Sprintf("__tmp%d", ue.tmpID)
	ue.tmpID++
	ue.pass.declare(name, ct)
	return "l->" + name
}

func (ue *unitEmitter) label(prefix string) string {
	l := fmt.Sprintf("%s_%d", prefix, ue.labelID)
	ue.labelID++
	return l
}

// errLabel is where runtime errors jump: the innermost catch, else out.
func (ue *unitEmitter) errLabel() string {
	if n := len(ue.errLabels); n > 0 {
		return ue.errLabels[n-1]
	}
	return "out"
}

// fail is inline C raising a runtime error.
func (ue *unitEmitter) fail(msg string) string {
	return fmt.Sprintf("{ c->last_error = %s; goto %s; }", cString(msg), ue.errLabel())
}

// frameName is the C type name of the unit's frame.
func (ue *unitEmitter) frameName() string { return ue.unit.Name() + "_locals" }

func (ue *unitEmitter) declareFrame() {
	for _, a := range ue.unit.Args() {
		ue.args[a.Name] = true
		ue.pass.declareLocal(ue.g.localName(a.Name), ctype(a.Type))
	}
	if ue.unit.Kind == ast.UnitFunction && ue.unit.Func.Result != ast.TypeUnknown {
		ue.pass.declareLocal("__retvalue", ctype(ue.unit.Func.Result))
	}
}

// initLocals zeroes the frame slots of declared locals.
func (ue *unitEmitter) initLocals() {
	if ue.pass.shadow() {
		return
	}
	for _, s := range ue.g.layouts[ue.idx].locals {
		if ue.args[ue.unitLocalName(s.name)] {
			continue
		}
		if s.ctype == "string_t" {
			ue.w.line("l->%s[0] = '\\0';", s.name)
		} else {
			ue.w.line("l->%s = 0;", s.name)
		}
	}
}

// unitLocalName reverses localName for argument lookups.
func (ue *unitEmitter) unitLocalName(mangled string) string {
	if ue.g.mangleLocals && len(mangled) > 2 && mangled[:2] == "l_" {
		return mangled[2:]
	}
	return mangled
}

// body walks the unit body inside the frame's root region.
func (ue *unitEmitter) body() {
	ue.pass.openRegion(false)
	ue.stmt(ue.unit.Body())
	ue.pass.closeRegion()
	ue.flushBudget()
}

func (ue *unitEmitter) function() {
	f := ue.unit.Func
	name := ue.unit.Name()
	ue.declareFrame()
	w := ue.w
	w.open(fmt.Sprintf("static void %s (struct context * __restrict__ c) {", name))
	w.line("__label__ out;")
	w.line("struct %s * __restrict__ l = &c->locals[c->nesting+1].%s;", ue.frameName(), name)
	w.line("(void) l;")
	w.line("#define CONTEXT c")
	w.line("#define THIS l")
	if f.Result != ast.TypeUnknown {
		w.line("#define STAP_RETVALUE THIS->__retvalue")
	}
	w.line("c->last_stmt = %s;", cString(fmt.Sprintf("identifier '%s' at %s", f.Name, f.Pos)))
	w.open("if (unlikely (c->nesting+1 >= MAXNESTING)) {")
	w.line("c->last_error = \"MAXNESTING exceeded\";")
	w.line("return;")
	w.close("}")
	w.line("c->nesting ++;")
	ue.budgetEntry()
	ue.initLocals()
	if f.Body != nil && f.Body.Kind == ast.StmtEmbedded {
		ue.embedded(f.Body)
	} else {
		ue.body()
	}
	w.line("if (0) goto out;")
	w.indent--
	w.line("out:")
	w.indent++
	w.line("c->nesting --;")
	w.line("#undef CONTEXT")
	w.line("#undef THIS")
	if f.Result != ast.TypeUnknown {
		w.line("#undef STAP_RETVALUE")
	}
	w.close("}")
	w.newline()
}

func (ue *unitEmitter) probe() {
	p := ue.unit.Probe
	name := ue.unit.Name()
	ue.declareFrame()
	w := ue.w
	w.open(fmt.Sprintf("static void %s (struct context * __restrict__ c) {", name))
	w.line("__label__ out;")
	locked := len(ue.plan.Locks) > 0
	if locked {
		ue.lockTable()
	}
	w.line("struct %s * __restrict__ l = &c->probe_locals.%s;", ue.frameName(), name)
	w.line("(void) l;")
	w.line("c->last_stmt = %s;", cString(fmt.Sprintf("probe %s at %s", p.Name, p.Pos)))
	if locked {
		w.line("c->locked = 0;")
	}
	ue.budgetEntry()
	ue.initLocals()
	ue.body()
	w.line("if (0) goto out;")
	w.indent--
	w.line("out:")
	w.indent++
	if locked {
		w.open("if (c->locked == 1) {")
		w.line("_stp_unlock_probe(locks, ARRAY_SIZE(locks));")
		w.line("c->locked = 2;")
		w.close("}")
	}
	w.line("_stp_print_flush();")
	w.close("}")
	w.newline()
}

// frameDecl writes the frame struct of unit i.
func (g *Emitter) frameDecl(w *writer, i int) {
	u := g.units[i]
	lay := g.layouts[i]
	w.open(fmt.Sprintf("struct %s_locals {", u.Name()))
	for _, s := range lay.locals {
		w.line("%s %s;", s.ctype, s.name)
	}
	if lay.body != nil {
		lay.body.renderMembers(w)
	}
	if lay.size() == 0 {
		w.line("char __unused;")
	}
	w.close("};")
	w.newline()
}
