package codegen

import (
	"fmt"
	"strings"

	"tapgen/internal/ast"
	"tapgen/internal/mapsig"
	"tapgen/internal/version"
)

// emitModule assembles the module: configuration, containers, globals,
// frames, compiled formats, handlers and the lifecycle entry points.
func (g *Emitter) emitModule() error {
	w := g.buf
	g.emitHeader(w)
	g.emitContainers(w)
	g.emitGlobals(w)
	g.emitContext(w)
	g.emitEnabled(w)
	for _, r := range g.printfs {
		r.emit(w, g.opts.Limits.BufferSize)
	}
	for _, f := range g.prog.Functions {
		w.line("static void function_%s (struct context * __restrict__ c);", f.Name)
	}
	if len(g.prog.Functions) > 0 {
		w.newline()
	}
	for i := range g.units {
		if g.emitted(i) {
			g.runUnit(i, &emitPass{w: w})
		}
	}
	g.emitProbeTable(w)
	for _, gr := range g.groups {
		w.line("/* %s probes */", gr.Name())
		if err := gr.EmitDecls(w); err != nil {
			return fmt.Errorf("group %s: %w", gr.Name(), err)
		}
		w.newline()
	}
	if err := g.emitInit(w); err != nil {
		return err
	}
	if err := g.emitRefresh(w); err != nil {
		return err
	}
	if err := g.emitExit(w); err != nil {
		return err
	}
	g.emitParams(w)
	g.emitUnwindRef(w)
	return nil
}

func (g *Emitter) emitHeader(w *writer) {
	l := g.opts.Limits
	w.line("/* generated by tapgen %s, script compatibility %s */", version.Version, g.opts.Compat.Version)
	w.line("#define MAXNESTING %d", l.MaxNesting)
	w.line("#define MAXSTRINGLEN %d", l.MaxStringLen)
	w.line("#define MAXACTION %d", l.MaxAction)
	w.line("#define MAXMAPENTRIES %d", l.MaxMapEntries)
	w.line("#define STP_BUFFER_SIZE %d", l.BufferSize)
	w.line("#define MAXDUMPBYTES %d", l.MaxDumpBytes)
	w.line("#define STP_MODULE_NAME %s", cString(g.opts.Output.ModuleName))
	if g.opts.Compat.SuppressTimeLimits {
		w.line("#define STP_NO_TIME_LIMITS 1")
	}
	w.line("#include \"runtime.h\"")
	w.newline()
}

var sigTypeNames = map[ast.Type]string{
	ast.TypeLong:   "INT64",
	ast.TypeString: "STRING",
	ast.TypeStats:  "STAT",
}

// emitContainers instantiates one container implementation per signature.
func (g *Emitter) emitContainers(w *writer) {
	anyStats := false
	for _, v := range g.prog.Globals {
		if v.Type == ast.TypeStats {
			anyStats = true
		}
	}
	if anyStats {
		w.line("#include \"stat.c\"")
	}
	if len(g.sigs) == 0 {
		if anyStats {
			w.newline()
		}
		return
	}
	w.line("#include \"map.c\"")
	for _, s := range g.sigs {
		w.newline()
		w.line("/* %s */", s.Name())
		w.line("#define MAP_SIG %s", s.Name())
		w.line("#define VALUE_TYPE %s", sigTypeNames[s.Value])
		for i, k := range s.Keys {
			w.line("#define KEY%d_TYPE %s", i+1, sigTypeNames[k])
		}
		w.line("#include \"map-gen.c\"")
		if s.Parallel() {
			w.line("#include \"pmap-gen.c\"")
		}
		w.line("#undef MAP_SIG")
		w.line("#undef VALUE_TYPE")
		for i := range s.Keys {
			w.line("#undef KEY%d_TYPE", i+1)
		}
	}
	w.newline()
}

func (g *Emitter) emitGlobals(w *writer) {
	w.open("struct stp_globals {")
	for _, v := range g.prog.Globals {
		n := globalName(v.Name)
		w.line("%s %s;", globalCType(v), n)
		w.line("rwlock_t %s_lock;", n)
		w.line("atomic_t %s_lock_skip_count;", n)
		w.line("atomic_t %s_lock_contention_count;", n)
	}
	if len(g.prog.Globals) == 0 {
		w.line("char __unused;")
	}
	w.close("};")
	w.line("static struct stp_globals stp_global;")
	w.line("#define global(name) (stp_global.name)")
	w.line("#define global_lock(name) (&stp_global.name ## _lock)")
	w.line("#define global_skipped(name) (&stp_global.name ## _lock_skip_count)")
	w.line("#define global_contention(name) (&stp_global.name ## _lock_contention_count)")
	w.newline()
}

// emitContext writes every frame struct and the per-CPU context holding
// them. Probe frames overlap each other, as do function frames at one
// nesting level.
func (g *Emitter) emitContext(w *writer) {
	var probes, funcs []string
	for i, u := range g.units {
		if !g.emitted(i) {
			continue
		}
		g.frameDecl(w, i)
		if u.Kind == ast.UnitProbe {
			probes = append(probes, u.Name())
		} else {
			funcs = append(funcs, u.Name())
		}
	}
	var routines []string
	for _, r := range g.printfs {
		r.recordDecl(w)
		w.newline()
		routines = append(routines, r.name)
	}
	w.open("struct context {")
	w.line("#include \"common_probe_context.h\"")
	frameUnion(w, "probe_locals", probes, "_locals")
	frameUnion(w, "locals[MAXNESTING+1]", funcs, "_locals")
	frameUnion(w, "printf_locals", routines, "_locals")
	w.close("};")
	w.newline()
	w.line("#include \"probe_context.c\"")
	w.newline()
}

func frameUnion(w *writer, field string, members []string, suffix string) {
	w.open("union {")
	for _, m := range members {
		w.line("struct %s%s %s;", m, suffix, m)
	}
	if len(members) == 0 {
		w.line("char __unused;")
	}
	w.close(fmt.Sprintf("} %s;", field))
}

func (g *Emitter) emitProbeTable(w *writer) {
	if len(g.prog.Probes) == 0 {
		return
	}
	w.open("static struct stap_probe stap_probes[] = {")
	for i, pr := range g.prog.Probes {
		w.line("{ .ph = &%s, .pp = %s, .index = %d },", g.handlerName(i), cString(pr.Name), i)
	}
	w.close("};")
	w.newline()
}

// emitEnabled declares the probe enable flags handlers update.
func (g *Emitter) emitEnabled(w *writer) {
	n := len(g.prog.Probes)
	// conditions are evaluated by the probes that affect them; until then
	// every probe runs
	w.writef("static int stp_probe_enabled[%d] = {", max(n, 1))
	for i := range n {
		if i > 0 {
			w.write(",")
		}
		w.write(" 1")
	}
	w.write(" };")
	w.newline()
	w.line("static atomic_t need_module_refresh = ATOMIC_INIT(0);")
	w.newline()
}

// histArgs renders the histogram parameters of a statistic.
func histArgs(h ast.Histogram) string {
	switch h.Kind {
	case ast.HistLog:
		return "HIST_LOG"
	case ast.HistLinear:
		return fmt.Sprintf("HIST_LINEAR, %s, %s, %s", cInt(h.Lo), cInt(h.Hi), cInt(h.Step))
	}
	return "HIST_NONE"
}

func mapSize(v *ast.Variable) string {
	if v.Max > 0 {
		return fmt.Sprint(v.Max)
	}
	return "MAXMAPENTRIES"
}

func (g *Emitter) emitGlobalInit(w *writer, v *ast.Variable) {
	ref := globalRef(v.Name)
	n := globalName(v.Name)
	wrap := 0
	if v.Wrap {
		wrap = 1
	}
	switch {
	case v.IsArray() && v.Type == ast.TypeStats:
		w.line("%s = _stp_pmap_new_%s (%s, %d, %s);", ref, mapsig.Of(v).Name(), mapSize(v), wrap, histArgs(v.Hist))
		w.line("if (%s == NULL) rc = -ENOMEM;", ref)
	case v.IsArray():
		w.line("%s = _stp_map_new_%s (%s, %d);", ref, mapsig.Of(v).Name(), mapSize(v), wrap)
		w.line("if (%s == NULL) rc = -ENOMEM;", ref)
	case v.Type == ast.TypeStats:
		w.line("%s = _stp_stat_init (%s);", ref, histArgs(v.Hist))
		w.line("if (%s == NULL) rc = -ENOMEM;", ref)
	case v.Type == ast.TypeString:
		init := ""
		if v.Init != nil {
			init = v.Init.Str
		}
		w.line("strlcpy (%s, %s, MAXSTRINGLEN);", ref, cString(init))
	default:
		var init int64
		if v.Init != nil {
			init = v.Init.Num
		}
		w.line("%s = %s;", ref, cInt(init))
	}
	w.line("rwlock_init (global_lock(%s));", n)
	w.line("atomic_set (global_skipped(%s), 0);", n)
	w.line("atomic_set (global_contention(%s), 0);", n)
}

func (g *Emitter) emitGlobalsFree(w *writer) {
	w.open("static void stp_globals_free (void) {")
	for _, v := range g.prog.Globals {
		ref := globalRef(v.Name)
		switch {
		case v.IsArray() && v.Type == ast.TypeStats:
			w.line("if (%s) _stp_pmap_free (%s);", ref, ref)
		case v.IsArray():
			w.line("if (%s) _stp_map_free (%s);", ref, ref)
		case v.Type == ast.TypeStats:
			w.line("if (%s) _stp_stat_free (%s);", ref, ref)
		default:
			continue
		}
		w.line("%s = NULL;", ref)
	}
	w.close("}")
	w.newline()
}

// emitInit registers groups in order. A failing group undoes its own
// work; the groups registered before it are unwound in reverse.
func (g *Emitter) emitInit(w *writer) error {
	g.emitGlobalsFree(w)
	w.open("static int systemtap_module_init (void) {")
	w.line("int rc = 0;")
	w.line("int i = 0, j = 0;")
	w.line("(void) i; (void) j;")
	for _, v := range g.prog.Globals {
		g.emitGlobalInit(w, v)
	}
	w.line("if (rc) goto unwind_0;")
	w.line("atomic_set (&session_state, STAP_SESSION_STARTING);")
	for k, gr := range g.groups {
		w.line("/* %s probes */", gr.Name())
		if err := gr.EmitInit(w); err != nil {
			return fmt.Errorf("group %s: %w", gr.Name(), err)
		}
		w.line("if (rc) goto unwind_%d;", k)
	}
	w.line("atomic_set (&session_state, STAP_SESSION_RUNNING);")
	w.line("return 0;")
	for k := len(g.groups) - 1; k >= 1; k-- {
		w.indent--
		w.line("unwind_%d:", k)
		w.indent++
		if err := g.groups[k-1].EmitExit(w); err != nil {
			return fmt.Errorf("group %s: %w", g.groups[k-1].Name(), err)
		}
	}
	w.indent--
	w.line("unwind_0:")
	w.indent++
	w.line("atomic_set (&session_state, STAP_SESSION_ERROR);")
	w.line("stp_globals_free ();")
	w.line("return rc;")
	w.close("}")
	w.newline()
	return nil
}

func (g *Emitter) emitRefresh(w *writer) error {
	w.open("static void systemtap_module_refresh (void) {")
	w.line("int i = 0, j = 0;")
	w.line("(void) i; (void) j;")
	w.line("if (!atomic_xchg (&need_module_refresh, 0)) return;")
	for _, gr := range g.groups {
		if err := gr.EmitRefresh(w); err != nil {
			return fmt.Errorf("group %s: %w", gr.Name(), err)
		}
	}
	w.close("}")
	w.newline()
	return nil
}

func (g *Emitter) emitExit(w *writer) error {
	w.open("static void systemtap_module_exit (void) {")
	w.line("int i = 0, j = 0;")
	w.line("(void) i; (void) j;")
	w.line("atomic_set (&session_state, STAP_SESSION_STOPPING);")
	for k := len(g.groups) - 1; k >= 0; k-- {
		gr := g.groups[k]
		w.line("/* %s probes */", gr.Name())
		if err := gr.EmitExit(w); err != nil {
			return fmt.Errorf("group %s: %w", gr.Name(), err)
		}
	}
	for _, v := range g.prog.Globals {
		n := globalName(v.Name)
		w.open(fmt.Sprintf("if (atomic_read (global_skipped(%s)) || atomic_read (global_contention(%s))) {", n, n))
		w.line("_stp_warn (\"global '%%s': %%d skipped, %%d contended lock attempts\", %s, atomic_read (global_skipped(%s)), atomic_read (global_contention(%s)));",
			cString(v.Name), n, n)
		w.close("}")
	}
	w.line("stp_globals_free ();")
	w.line("atomic_set (&session_state, STAP_SESSION_STOPPED);")
	w.close("}")
	w.newline()
	return nil
}

// emitParams exposes scalar globals for override at load time.
func (g *Emitter) emitParams(w *writer) {
	if !g.opts.Compat.ExposeParams {
		return
	}
	exposed := false
	for _, v := range g.prog.Globals {
		if v.IsArray() || v.Type == ast.TypeStats {
			continue
		}
		if v.Type == ast.TypeString {
			w.line("module_param_string (%s, %s, MAXSTRINGLEN, 0);", v.Name, globalRef(v.Name))
		} else {
			w.line("module_param_named (%s, %s, int64_t, 0);", v.Name, globalRef(v.Name))
		}
		exposed = true
	}
	if exposed {
		w.newline()
	}
}

// emitUnwindRef references the symbol and unwind table another tool
// appends under a fixed name.
func (g *Emitter) emitUnwindRef(w *writer) {
	name := strings.TrimSpace(g.opts.Output.UnwindTable)
	w.line("extern struct _stp_module *%s[];", name)
	w.line("extern const unsigned %s_count;", name)
	w.line("#define STP_MODULE_TABLE %s", name)
	w.line("#define STP_MODULE_TABLE_COUNT %s_count", name)
}
