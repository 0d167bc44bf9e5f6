// Package driver runs a whole translation: input checks, parallel
// per-unit analysis, emission, diagnostics, caching and progress.
package driver

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"tapgen/internal/ast"
	"tapgen/internal/budget"
	"tapgen/internal/codegen"
	"tapgen/internal/config"
	"tapgen/internal/diag"
	"tapgen/internal/observ"
	"tapgen/internal/rwset"
	"tapgen/internal/trace"
)

// Result is the outcome of one translation.
type Result struct {
	Text    string
	Failed  bool
	Cached  bool
	Bag     *diag.Bag
	Units   []codegen.UnitStats
	Printfs []codegen.PrintfInfo
	Sigs    []string
	Aliases []int
	Timings observ.Report
}

// Translate generates the module for prog. Translation errors land in
// Result.Bag with Result.Failed set; the returned error is reserved for
// invalid options, cancellation and internal translator defects.
func Translate(ctx context.Context, prog *ast.Program, opts config.Options, options ...Option) (res *Result, err error) {
	defer recoverInternal(&err)
	if prog == nil {
		return nil, fmt.Errorf("driver: nil program")
	}
	if err := opts.Validate(); err != nil {
		return nil, fmt.Errorf("driver: %w", err)
	}
	s := newSettings(options)
	span := trace.Begin(trace.FromContext(ctx), trace.ScopeDriver, "translate", 0)
	defer func() {
		detail := "ok"
		switch {
		case err != nil:
			detail = err.Error()
		case res != nil && res.Failed:
			detail = "failed"
		case res != nil && res.Cached:
			detail = "cached"
		}
		span.End(detail)
	}()

	timer := observ.NewTimer()
	bag := diag.NewBag(s.maxDiags)
	rep := &diag.LockedReporter{Next: diag.BagReporter{Bag: bag}}
	res = &Result{Bag: bag}
	finish := func() *Result {
		bag.Sort()
		bag.Dedup()
		res.Timings = timer.Report()
		return res
	}

	idx := timer.Begin("validate")
	validate(prog, rep)
	timer.End(idx, len(prog.Functions)+len(prog.Probes))
	if bag.HasErrors() {
		res.Failed = true
		s.progress.OnEvent(Event{Stage: StageValidate, Status: StatusError})
		return finish(), nil
	}
	if err := prog.Index(); err != nil {
		return nil, fmt.Errorf("driver: %w", err)
	}

	key, keyErr := cacheKey(prog, opts)
	if keyErr != nil {
		span.Point(trace.ScopeDriver, "cache", "key: "+keyErr.Error())
	} else if s.cache != nil {
		idx = timer.Begin("cache")
		var ent cacheEntry
		hit, err := s.cache.Get(key, &ent)
		timer.End(idx, 0)
		if err != nil {
			span.Point(trace.ScopeDriver, "cache", err.Error())
		}
		if hit {
			span.Point(trace.ScopeDriver, "cache", "hit "+key.String())
			ent.restore(res)
			s.progress.OnEvent(Event{Stage: StageCache, Status: StatusDone})
			return finish(), nil
		}
	}

	in, err := analyzeUnits(ctx, prog, opts, rep, s, timer, span)
	if err != nil {
		return nil, err
	}

	idx = timer.Begin("emit")
	emitSpan := span.Child(trace.ScopePass, "emit")
	out, err := codegen.Generate(in)
	emitSpan.WithAttr("units", fmt.Sprint(len(in.Plans))).End("")
	timer.End(idx, len(in.Plans))
	if err != nil {
		return nil, fmt.Errorf("driver: %w", err)
	}
	res.Text = out.Text
	res.Failed = out.Failed
	res.Units = out.Units
	res.Printfs = out.Printfs
	res.Aliases = out.Aliases
	for _, sg := range out.Sigs {
		res.Sigs = append(res.Sigs, sg.Name())
	}
	for _, u := range out.Units {
		if u.AliasOf >= 0 {
			span.Point(trace.ScopeUnit, u.Name, fmt.Sprintf("shares probe_%d", u.AliasOf))
		}
		st := StatusDone
		if u.Failed {
			st = StatusError
		}
		s.progress.OnEvent(Event{Unit: u.Name, Stage: StageEmit, Status: st})
	}

	if !res.Failed && keyErr == nil && s.cache != nil {
		if err := s.cache.Put(key, newCacheEntry(res)); err != nil {
			span.Point(trace.ScopeDriver, "cache", err.Error())
		}
	}
	return finish(), nil
}

// analyzeUnits numbers the program, runs the whole-program analyses and then
// plans every unit concurrently.
func analyzeUnits(ctx context.Context, prog *ast.Program, opts config.Options, rep diag.Reporter, s settings, timer *observ.Timer, parent *trace.Span) (*codegen.Input, error) {
	units := prog.Units()
	for _, u := range units {
		s.progress.OnEvent(Event{Unit: u.Name(), Stage: StageAnalyze, Status: StatusQueued})
	}

	idx := timer.Begin("number")
	sp := parent.Child(trace.ScopePass, "number")
	ast.Number(prog)
	sp.End("")
	timer.End(idx, len(units))

	idx = timer.Begin("analyze")
	sp = parent.Child(trace.ScopePass, "analyze")
	rw := rwset.Analyze(prog)
	bud := budget.Analyze(prog)
	plans := make([]codegen.UnitPlan, len(units))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(max(1, min(s.jobs, len(units))))
	for i, u := range units {
		g.Go(func() (err error) {
			defer recoverInternal(&err)
			if err := gctx.Err(); err != nil {
				return err
			}
			us := sp.Child(trace.ScopeUnit, u.Name())
			s.progress.OnEvent(Event{Unit: u.Name(), Stage: StageAnalyze, Status: StatusWorking})
			plans[i] = codegen.PlanUnit(prog, rw, bud, u, opts)
			if p := plans[i].Plan; p != nil && p.Fallback {
				us.Point(trace.ScopeUnit, u.Name(), "lock placed at block boundary")
				rep.Report(diag.TransLockFallback, diag.SevInfo, u.Pos(),
					fmt.Sprintf("%s: lock held around a statement that touches no global", u.Name()), nil)
			}
			us.WithAttr("count", fmt.Sprint(plans[i].Count)).WithAttr("locks", fmt.Sprint(len(plans[i].Locks))).End("")
			return nil
		})
	}
	err := g.Wait()
	sp.End("")
	timer.End(idx, len(units))
	if err != nil {
		return nil, fmt.Errorf("driver: analyze: %w", err)
	}
	return &codegen.Input{Prog: prog, Opts: opts, Budget: bud, Plans: plans, Reporter: rep}, nil
}

// recoverInternal turns an internal translator defect into an error at the
// driver boundary. Other panics keep unwinding.
func recoverInternal(err *error) {
	r := recover()
	if r == nil {
		return
	}
	if ie, ok := r.(diag.InternalError); ok {
		*err = ie
		return
	}
	panic(r)
}
