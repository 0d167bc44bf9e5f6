// Package codegen lowers an elaborated program to the C source of a
// loadable instrumentation module.
//
// Every probe and function body is walked twice by the same traversal. The
// first walk sizes the per-invocation frame; the second writes code that
// refers to the slots the first walk registered. The analyses that decide
// lock placement, action budgets and handler sharing run before either walk
// and are passed in as a per-unit plan.
package codegen

import (
	"errors"
	"fmt"

	"tapgen/internal/ast"
	"tapgen/internal/budget"
	"tapgen/internal/config"
	"tapgen/internal/diag"
	"tapgen/internal/lockpush"
	"tapgen/internal/mapsig"
	"tapgen/internal/probegroup"
	"tapgen/internal/rwset"
)

// LockEntry is one global a probe locks.
type LockEntry struct {
	Global int
	Name   string
	Write  bool
}

// UnitPlan carries the analysis results for one unit.
type UnitPlan struct {
	Count       int // static action count, budget.Unbounded for loops and recursion
	Locks       []LockEntry
	Plan        *lockpush.Plan
	Fingerprint string
}

// Input is everything Generate needs.
type Input struct {
	Prog     *ast.Program
	Opts     config.Options
	Budget   *budget.Analysis
	Plans    []UnitPlan // parallel to Prog.Units()
	Reporter diag.Reporter
}

// PlanUnit runs the per-unit analyses. It only reads shared state, so units
// may be planned concurrently once the program is indexed and numbered.
func PlanUnit(prog *ast.Program, rw *rwset.Analysis, bud *budget.Analysis, u ast.Unit, opts config.Options) UnitPlan {
	info := rw.Unit(u)
	up := UnitPlan{Count: bud.Unit(u)}
	if u.Kind != ast.UnitProbe {
		return up
	}
	pr := u.Probe
	if pr.NeedsLocks {
		set := info.Total.Clone()
		for _, j := range pr.Affects {
			if j >= 0 && j < len(prog.Probes) {
				set.Union(rw.ProbeCondReads(prog.Probes[j]))
			}
		}
		for _, e := range set.Entries() {
			up.Locks = append(up.Locks, LockEntry{
				Global: e.Global,
				Name:   prog.Globals[e.Global].Name,
				Write:  e.Access&rwset.Write != 0,
			})
		}
		if len(up.Locks) > 0 {
			up.Plan = lockpush.Compute(pr.Body, u.NumStmts(), info, lockpush.Options{
				Pushdown:         opts.PushdownEnabled(),
				KeepUnlockAtRoot: len(pr.Affects) > 0,
			})
		}
	}
	up.Fingerprint = Fingerprint(pr)
	return up
}

// Prepare indexes and numbers prog, then plans every unit sequentially.
func Prepare(prog *ast.Program, opts config.Options, rep diag.Reporter) (*Input, error) {
	if err := prog.Index(); err != nil {
		return nil, err
	}
	ast.Number(prog)
	rw := rwset.Analyze(prog)
	bud := budget.Analyze(prog)
	units := prog.Units()
	plans := make([]UnitPlan, len(units))
	for i, u := range units {
		plans[i] = PlanUnit(prog, rw, bud, u, opts)
	}
	return &Input{Prog: prog, Opts: opts, Budget: bud, Plans: plans, Reporter: rep}, nil
}

// UnitStats summarizes how one unit was emitted.
type UnitStats struct {
	Name        string
	Count       int
	Mode        budget.Mode
	Locks       int
	Obligations int
	Fallback    bool
	Slots       int
	AliasOf     int // probes: index of the probe whose handler is shared, or -1
	Failed      bool
}

// PrintfInfo describes one compiled format routine.
type PrintfInfo struct {
	Name   string
	Stream bool
	Format string
}

// Output is the generated module.
type Output struct {
	Text    string
	Failed  bool
	Aliases []int // per probe: index of the probe whose handler runs
	Printfs []PrintfInfo
	Sigs    []mapsig.Sig
	Units   []UnitStats
}

// Emitter holds module-wide generation state.
type Emitter struct {
	prog         *ast.Program
	opts         config.Options
	bud          *budget.Analysis
	units        []ast.Unit
	plans        []UnitPlan
	rep          diag.Reporter
	mangleLocals bool

	buf       *writer
	printfs   []*printfRoutine
	printfIdx map[printfKey]int
	layouts   []layout
	failed    []bool
	aliases   []int
	sigs      []mapsig.Sig
	groups    []probegroup.Group
}

// Generate translates the program. Translation errors are reported to
// in.Reporter and leave Output.Failed set with no text; an internal defect
// panics with diag.InternalError.
func Generate(in *Input) (*Output, error) {
	if in == nil || in.Prog == nil {
		return nil, fmt.Errorf("codegen: nil input")
	}
	units := in.Prog.Units()
	if len(in.Plans) != len(units) {
		return nil, fmt.Errorf("codegen: %d plans for %d units", len(in.Plans), len(units))
	}
	rep := in.Reporter
	if rep == nil {
		rep = diag.NopReporter{}
	}
	g := &Emitter{
		prog:         in.Prog,
		opts:         in.Opts,
		bud:          in.Budget,
		units:        units,
		plans:        in.Plans,
		rep:          rep,
		mangleLocals: in.Opts.MangleLocals(),
		buf:          newWriter(),
		printfIdx:    map[printfKey]int{},
		layouts:      make([]layout, len(units)),
		failed:       make([]bool, len(units)),
	}
	if g.bud == nil {
		g.bud = budget.Analyze(in.Prog)
	}
	g.aliases = g.elideDuplicates()
	g.sigs = mapsig.Collect(in.Prog)

	anyFailed := g.checkDecls()
	for i := range units {
		if !g.emitted(i) {
			continue
		}
		sp := newShadowPass()
		ue := g.runUnit(i, sp)
		g.layouts[i] = sp.layout()
		if ue.failed {
			g.failed[i] = true
			anyFailed = true
		}
	}
	out := &Output{Aliases: g.aliases, Sigs: g.sigs}
	out.Units = g.unitStats()
	for _, r := range g.printfs {
		out.Printfs = append(out.Printfs, PrintfInfo{Name: r.name, Stream: r.key.stream, Format: r.key.format})
	}
	if anyFailed {
		out.Failed = true
		return out, nil
	}
	groups, err := probegroup.Partition(in.Prog, g.handlerName)
	if err != nil {
		var pe *probegroup.PointError
		if !errors.As(err, &pe) {
			return nil, fmt.Errorf("codegen: %w", err)
		}
		rep.Report(diag.TransUnexpectedNode, diag.SevError, pe.Pos, pe.Msg, nil)
		out.Failed = true
		return out, nil
	}
	g.groups = groups
	if err := g.emitModule(); err != nil {
		return nil, fmt.Errorf("codegen: %w", err)
	}
	out.Text = g.buf.String()
	return out, nil
}

// emitted reports whether unit i gets its own routine.
func (g *Emitter) emitted(i int) bool {
	u := g.units[i]
	return u.Kind != ast.UnitProbe || g.aliases[u.Index] == u.Index
}

// handlerName is the routine run for probe i.
func (g *Emitter) handlerName(i int) string {
	return fmt.Sprintf("probe_%d", g.aliases[i])
}

func (g *Emitter) unitIndex(kind ast.UnitKind, idx int) int {
	if kind == ast.UnitFunction {
		return idx
	}
	return len(g.prog.Functions) + idx
}

// checkDecls validates declarations that no body walk would visit.
func (g *Emitter) checkDecls() bool {
	bad := false
	report := func(v *ast.Variable, code diag.Code, msg string) {
		g.rep.Report(code, diag.SevError, v.Pos, msg, nil)
		bad = true
	}
	checkLocals := func(vs []*ast.Variable) {
		for _, v := range vs {
			switch {
			case v.IsArray():
				report(v, diag.TransArrayLocal, fmt.Sprintf("local %q cannot be an array", v.Name))
			case v.Type == ast.TypeStats:
				report(v, diag.TransStatLocal, fmt.Sprintf("local %q cannot hold statistics", v.Name))
			}
		}
	}
	for _, f := range g.prog.Functions {
		checkLocals(f.Args)
		checkLocals(f.Locals)
	}
	for _, p := range g.prog.Probes {
		checkLocals(p.Locals)
	}
	for _, v := range g.prog.Globals {
		if v.Hist.Kind != ast.HistNone && v.Type != ast.TypeStats {
			report(v, diag.TransHistogramMisuse, fmt.Sprintf("histogram declared on non-statistic %q", v.Name))
		}
		if v.Init != nil && (v.IsArray() || !v.Init.IsLiteral() || v.Init.Type != v.Type) {
			report(v, diag.TransTypeMismatch, fmt.Sprintf("global %q needs a literal %s initializer", v.Name, v.Type))
		}
		if v.Hist.Kind == ast.HistLinear && (v.Hist.Step <= 0 || v.Hist.Hi <= v.Hist.Lo) {
			report(v, diag.TransHistogramMisuse, fmt.Sprintf("bad linear histogram bounds on %q", v.Name))
		}
	}
	return bad
}

func (g *Emitter) unitStats() []UnitStats {
	out := make([]UnitStats, len(g.units))
	for i, u := range g.units {
		p := g.plans[i]
		st := UnitStats{
			Name:    u.Name(),
			Count:   p.Count,
			Mode:    budget.Decide(p.Count),
			Locks:   len(p.Locks),
			AliasOf: -1,
			Failed:  g.failed[i],
		}
		if p.Plan != nil {
			st.Obligations = p.Plan.Placed
			st.Fallback = p.Plan.Fallback
		}
		if u.Kind == ast.UnitProbe && g.aliases[u.Index] != u.Index {
			st.AliasOf = g.aliases[u.Index]
		}
		st.Slots = g.layouts[i].size()
		out[i] = st
	}
	return out
}
