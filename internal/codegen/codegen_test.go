package codegen

import (
	"regexp"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"tapgen/internal/ast"
	"tapgen/internal/config"
	"tapgen/internal/diag"
)

func translate(t *testing.T, prog *ast.Program, opts config.Options) (*Output, *diag.Bag) {
	t.Helper()
	bag := diag.NewBag(100)
	in, err := Prepare(prog, opts, diag.BagReporter{Bag: bag})
	if err != nil {
		t.Fatalf("Prepare: %v", err)
	}
	out, err := Generate(in)
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	return out, bag
}

// mustTranslate fails the test on any translation error.
func mustTranslate(t *testing.T, prog *ast.Program, opts config.Options) string {
	t.Helper()
	out, bag := translate(t, prog, opts)
	if out.Failed {
		var sb strings.Builder
		_ = diag.Render(&sb, bag.Items(), false)
		t.Fatalf("translation failed:\n%s", sb.String())
	}
	return out.Text
}

func codes(bag *diag.Bag) []diag.Code {
	var out []diag.Code
	for _, d := range bag.Items() {
		if d.Severity == diag.SevError {
			out = append(out, d.Code)
		}
	}
	return out
}

// section returns the text from the first line starting with start up to
// and including the next line that is exactly end.
func section(t *testing.T, text, start, end string) string {
	t.Helper()
	i := strings.Index(text, start)
	if i < 0 {
		t.Fatalf("%q not found in:\n%s", start, text)
	}
	rest := text[i:]
	j := strings.Index(rest, "\n"+end+"\n")
	if j < 0 {
		t.Fatalf("no %q after %q", end, start)
	}
	return rest[:j+len(end)+2]
}

func xLocal() []*ast.Variable { return []*ast.Variable{ast.Var("x", ast.TypeLong)} }

func quiet() *ast.Stmt {
	return ast.ExprStmt(ast.Assign("=", ast.Local("x", ast.TypeLong), ast.Num(1)))
}

func touch() *ast.Stmt {
	return ast.ExprStmt(ast.Assign("=", ast.GlobalRef("g", ast.TypeLong), ast.Num(1)))
}

func oneProbe(body *ast.Stmt, locals []*ast.Variable, globals ...*ast.Variable) *ast.Program {
	return &ast.Program{
		Globals: globals,
		Probes:  []*ast.Probe{{Name: "begin", Body: body, Locals: locals, NeedsLocks: len(globals) > 0}},
	}
}

func TestPrintfEndToEnd(t *testing.T) {
	prog := oneProbe(ast.Block(ast.ExprStmt(ast.Printf(true, "%d\n", ast.Num(5)))), nil)
	out, _ := translate(t, prog, config.Default())
	if out.Failed {
		t.Fatal("translation failed")
	}
	want := []PrintfInfo{{Name: "stp_printf_1", Stream: true, Format: "%d\n"}}
	if diff := cmp.Diff(want, out.Printfs); diff != "" {
		t.Fatalf("printf table (-want +got):\n%s", diff)
	}
	call := "({ c->printf_locals.stp_printf_1.arg0 = 5LL; if (unlikely (stp_printf_1 (c))) goto out; 0; })"
	if !strings.Contains(out.Text, call) {
		t.Fatalf("missing call %q in:\n%s", call, out.Text)
	}
	routine := section(t, out.Text, "static int stp_printf_1 (struct context * __restrict__ c) {", "}")
	measure := strings.Index(routine, "num_bytes += _stp_vsprint_number_size (l->arg0, 10, width, precision, STP_SIGN);")
	newline := strings.Index(routine, "num_bytes += 1;")
	reserve := strings.Index(routine, "_stp_reserve_bytes (num_bytes)")
	write := strings.Index(routine, "str = _stp_vsprint_number (str, end, l->arg0, 10, width, precision, STP_SIGN);")
	writeNL := strings.Index(routine, `str = _stp_vsprint_chars (str, end, "\n", 1);`)
	if measure < 0 || newline < measure || reserve < newline || write < reserve || writeNL < write {
		t.Fatalf("measure/reserve/write order wrong:\n%s", routine)
	}
	if !strings.Contains(out.Text, "int64_t arg0;") {
		t.Fatalf("argument record missing:\n%s", out.Text)
	}
}

func TestPrintfRoutineShared(t *testing.T) {
	x := ast.Local("x", ast.TypeLong)
	prog := &ast.Program{Probes: []*ast.Probe{
		{Name: "begin", Locals: xLocal(), Body: ast.Block(ast.ExprStmt(ast.Printf(true, "%d items\n", x)))},
		{Name: "end", Locals: xLocal(), Body: ast.Block(quiet(), ast.ExprStmt(ast.Printf(true, "%d items\n", x)))},
		{Name: "end", Locals: []*ast.Variable{ast.Var("x", ast.TypeLong), ast.Var("s", ast.TypeString)},
			Body: ast.Block(ast.ExprStmt(ast.Assign("=", ast.Local("s", ast.TypeString), ast.Printf(false, "%d items\n", x))))},
	}}
	out, _ := translate(t, prog, config.Default())
	if len(out.Printfs) != 2 {
		t.Fatalf("got %d routines, want 2: %+v", len(out.Printfs), out.Printfs)
	}
	if n := strings.Count(out.Text, "static int stp_printf_"); n != 2 {
		t.Fatalf("got %d routine definitions, want 2", n)
	}
	if !strings.Contains(out.Text, "static int stp_printf_2 (struct context * __restrict__ c, char *str) {") {
		t.Fatalf("sprintf routine missing:\n%s", out.Text)
	}
	if !strings.Contains(out.Text, "if (str <= end) *str = '\\0'; else *end = '\\0';") {
		t.Fatal("sprintf routine must terminate the truncated buffer")
	}
}

func TestPrintfFastPaths(t *testing.T) {
	s := ast.Local("s", ast.TypeString)
	locals := []*ast.Variable{ast.Var("s", ast.TypeString)}
	tests := []struct {
		name string
		e    *ast.Expr
		want string
	}{
		{"literal", ast.Printf(true, "hello\n"), `({ _stp_print ("hello\n"); 0; })`},
		{"percent", ast.Printf(true, "100%%"), `({ _stp_print ("100%"); 0; })`},
		{"string", ast.Printf(true, "%s", s), "({ _stp_print (l->l_s); 0; })"},
		{"string newline", ast.Printf(true, "%s\n", s), "({ _stp_print (l->l_s); _stp_print_char ('\\n'); 0; })"},
		{"println", ast.Print(true, true, "", s), "({ _stp_print (l->l_s); _stp_print_char ('\\n'); 0; })"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, _ := translate(t, oneProbe(ast.Block(ast.ExprStmt(tt.e)), locals), config.Default())
			if out.Failed {
				t.Fatal("translation failed")
			}
			if !strings.Contains(out.Text, tt.want) {
				t.Fatalf("missing %q in:\n%s", tt.want, out.Text)
			}
			if len(out.Printfs) != 0 {
				t.Fatalf("fast path compiled a routine: %+v", out.Printfs)
			}
		})
	}
}

func TestPrintSynthesizedFormat(t *testing.T) {
	e := ast.Print(true, true, ", ", ast.Num(1), ast.Str("a"))
	out, _ := translate(t, oneProbe(ast.Block(ast.ExprStmt(e)), nil), config.Default())
	want := []PrintfInfo{{Name: "stp_printf_1", Stream: true, Format: "%d, %s\n"}}
	if diff := cmp.Diff(want, out.Printfs); diff != "" {
		t.Fatalf("printf table (-want +got):\n%s", diff)
	}
}

func TestPrintfLegacy(t *testing.T) {
	opts := config.Default()
	opts.Compat.LegacyPrintf = true
	text := mustTranslate(t, oneProbe(ast.Block(ast.ExprStmt(ast.Printf(true, "%d\n", ast.Num(5)))), nil), opts)
	if !strings.Contains(text, `_stp_printf ("%d\n", 5LL);`) {
		t.Fatalf("legacy printf call missing:\n%s", text)
	}
	if strings.Contains(text, "stp_printf_1") {
		t.Fatal("legacy mode must not compile routines")
	}
}

func TestPrintfErrors(t *testing.T) {
	tests := []struct {
		name string
		e    *ast.Expr
		want diag.Code
	}{
		{"bad conversion", ast.Printf(true, "%q", ast.Num(1)), diag.TransBadFormat},
		{"too few", ast.Printf(true, "%d %d", ast.Num(1)), diag.TransFormatArgs},
		{"wrong type", ast.Printf(true, "%s", ast.Num(1)), diag.TransFormatArgs},
		{"dynamic width", ast.Printf(true, "%*d", ast.Num(1)), diag.TransFormatArgs},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, bag := translate(t, oneProbe(ast.Block(ast.ExprStmt(tt.e)), nil), config.Default())
			if !out.Failed || out.Text != "" {
				t.Fatal("expected a failed translation without text")
			}
			if diff := cmp.Diff([]diag.Code{tt.want}, codes(bag)); diff != "" {
				t.Fatalf("codes (-want +got):\n%s", diff)
			}
		})
	}
}

func TestMemoryDumpCheck(t *testing.T) {
	text := mustTranslate(t, oneProbe(ast.Block(ast.ExprStmt(ast.Printf(true, "%.*m", ast.Num(4), ast.Num(0)))), nil), config.Default())
	routine := section(t, text, "static int stp_printf_1", "}")
	check := strings.Index(routine, "if (unlikely (precision > MAXDUMPBYTES)) {")
	reserve := strings.Index(routine, "_stp_reserve_bytes")
	if check < 0 || reserve < check {
		t.Fatalf("dump size must be checked before reserving:\n%s", routine)
	}
}

func TestMapIncrement(t *testing.T) {
	counts := ast.ArrayVar("counts", ast.TypeLong, ast.TypeString)
	inc := ast.IncDec("++", true, ast.Index(ast.GlobalRef("counts", ast.TypeLong), ast.TypeLong, ast.Str("a")))
	text := mustTranslate(t, oneProbe(ast.Block(ast.ExprStmt(inc)), nil, counts), config.Default())
	for _, want := range []string{
		`l->__tmp0 = _stp_map_get_si (global(s_counts), "a"); `,
		`l->__tmp1 = l->__tmp0 + 1; `,
		`{ int rc = _stp_map_set_si (global(s_counts), "a", l->__tmp1); if (unlikely (rc)) { c->last_error = "Array overflow, check MAXMAPENTRIES"; goto out; } } `,
		`l->__tmp0; })`,
		"#define MAP_SIG si",
	} {
		if !strings.Contains(text, want) {
			t.Errorf("missing %q", want)
		}
	}
	frame := section(t, text, "struct probe_0_locals {", "};")
	if !strings.Contains(frame, "int64_t __tmp0;") || !strings.Contains(frame, "int64_t __tmp1;") {
		t.Errorf("temporaries not declared:\n%s", frame)
	}
	if t.Failed() {
		t.Log(text)
	}
}

func TestStringMapGetDefaultsEmpty(t *testing.T) {
	names := ast.ArrayVar("names", ast.TypeString, ast.TypeLong)
	read := ast.Assign("=", ast.Local("s", ast.TypeString), ast.Index(ast.GlobalRef("names", ast.TypeString), ast.TypeString, ast.Num(3)))
	text := mustTranslate(t, oneProbe(ast.Block(ast.ExprStmt(read)), []*ast.Variable{ast.Var("s", ast.TypeString)}, names), config.Default())
	if !strings.Contains(text, `(_stp_map_get_is (global(s_names), 3LL) ?: "")`) {
		t.Fatalf("string get must default to the empty string:\n%s", text)
	}
}

func TestSignatureInstantiation(t *testing.T) {
	stats := ast.ArrayVar("lat", ast.TypeStats, ast.TypeLong, ast.TypeString)
	hits := ast.ArrayVar("hits", ast.TypeLong, ast.TypeLong)
	add := func() *ast.Stmt {
		return ast.ExprStmt(ast.Assign("<<<",
			ast.Index(ast.GlobalRef("lat", ast.TypeStats), ast.TypeStats, ast.Num(1), ast.Str("r")), ast.Num(5)))
	}
	hit := func(k int64) *ast.Stmt {
		return ast.ExprStmt(ast.Assign("=", ast.Index(ast.GlobalRef("hits", ast.TypeLong), ast.TypeLong, ast.Num(k)), ast.Num(1)))
	}
	prog := &ast.Program{
		Globals: []*ast.Variable{stats, hits},
		Probes: []*ast.Probe{
			{Name: "begin", NeedsLocks: true, Body: ast.Block(add(), hit(1))},
			{Name: "end", NeedsLocks: true, Body: ast.Block(hit(2))},
			{Name: "timer.ms(10)", NeedsLocks: true, Body: ast.Block(add(), hit(3))},
		},
	}
	out, _ := translate(t, prog, config.Default())
	if out.Failed {
		t.Fatal("translation failed")
	}
	var got []string
	for _, s := range out.Sigs {
		got = append(got, s.Name())
	}
	if diff := cmp.Diff([]string{"ii", "isx"}, got); diff != "" {
		t.Fatalf("signatures (-want +got):\n%s", diff)
	}
	if n := strings.Count(out.Text, "#include \"map-gen.c\""); n != 2 {
		t.Fatalf("got %d container instantiations, want 2", n)
	}
	if n := strings.Count(out.Text, "#include \"pmap-gen.c\""); n != 1 {
		t.Fatalf("got %d parallel instantiations, want 1", n)
	}
	if !strings.Contains(out.Text, "_stp_pmap_add_isx (global(s_lat), 1LL, \"r\", 5LL)") {
		t.Fatalf("accumulate must go through the parallel add:\n%s", out.Text)
	}
}

func TestNoContainers(t *testing.T) {
	text := mustTranslate(t, oneProbe(ast.Block(quiet()), xLocal()), config.Default())
	for _, s := range []string{"map.c", "map-gen.c", "stat.c"} {
		if strings.Contains(text, s) {
			t.Errorf("no containers are used, but %s is included", s)
		}
	}
}

func TestDuplicateElision(t *testing.T) {
	g := ast.Var("g", ast.TypeLong)
	build := func(secondLocks bool) *ast.Program {
		return &ast.Program{
			Globals: []*ast.Variable{g},
			Probes: []*ast.Probe{
				{Name: "begin", NeedsLocks: true, Body: ast.Block(touch())},
				{Name: "end", NeedsLocks: secondLocks, Body: ast.Block(touch())},
			},
		}
	}
	out, bag := translate(t, build(true), config.Default())
	if diff := cmp.Diff([]int{0, 0}, out.Aliases); diff != "" {
		t.Fatalf("aliases (-want +got):\n%s", diff)
	}
	if n := strings.Count(out.Text, "static void probe_"); n != 1 {
		t.Fatalf("got %d handlers, want 1", n)
	}
	if strings.Contains(out.Text, "probe_1") {
		t.Fatal("aliased probe must not get its own handler")
	}
	info := false
	for _, d := range bag.Items() {
		info = info || d.Code == diag.TransDuplicateHandlerInfo
	}
	if !info {
		t.Fatal("aliasing should be reported")
	}

	out, _ = translate(t, build(false), config.Default())
	if diff := cmp.Diff([]int{0, 1}, out.Aliases); diff != "" {
		t.Fatalf("different locking must not merge (-want +got):\n%s", diff)
	}

	opts := config.Default()
	opts.Compat.Unoptimized = true
	out, _ = translate(t, build(true), opts)
	if diff := cmp.Diff([]int{0, 1}, out.Aliases); diff != "" {
		t.Fatalf("unoptimized mode must not merge (-want +got):\n%s", diff)
	}
}

func TestBudgetFinite(t *testing.T) {
	text := mustTranslate(t, oneProbe(ast.Block(quiet(), quiet(), quiet()), xLocal()), config.Default())
	if n := strings.Count(text, "if (unlikely (c->actionremaining < 3)) {"); n != 1 {
		t.Fatalf("got %d entry guards, want 1:\n%s", n, text)
	}
	if n := strings.Count(text, "c->actionremaining"); n != 2 {
		t.Fatalf("finite probe should only guard and charge once, got %d mentions", n)
	}
}

func TestBudgetFoldsCallee(t *testing.T) {
	f := &ast.Function{Name: "f", Result: ast.TypeLong, Body: ast.Block(ast.Return(ast.Num(1)))}
	prog := oneProbe(ast.Block(ast.ExprStmt(ast.Call("f", ast.TypeLong))), nil)
	prog.Functions = []*ast.Function{f}
	text := mustTranslate(t, prog, config.Default())
	fn := section(t, text, "static void function_f (struct context * __restrict__ c) {", "}")
	if !strings.Contains(fn, "if (unlikely (c->actionremaining < 0)) {") || strings.Contains(fn, "actionremaining -=") {
		t.Fatalf("finite function should only check:\n%s", fn)
	}
	pr := section(t, text, "static void probe_0 (struct context * __restrict__ c) {", "}")
	if !strings.Contains(pr, "c->actionremaining < 2") {
		t.Fatalf("probe should charge its own statement plus the callee:\n%s", pr)
	}
}

func TestBudgetIncremental(t *testing.T) {
	var stmts []*ast.Stmt
	for range 25 {
		stmts = append(stmts, quiet())
	}
	x := ast.Local("x", ast.TypeLong)
	stmts = append(stmts, ast.While(ast.Compare("<", x, ast.Num(10)), ast.Block(ast.ExprStmt(ast.IncDec("++", true, x)))))
	text := mustTranslate(t, oneProbe(ast.Block(stmts...), xLocal()), config.Default())
	if regexp.MustCompile(`actionremaining < [1-9]`).MatchString(text) {
		t.Fatalf("unbounded probe must not get an entry guard:\n%s", text)
	}
	if n := strings.Count(text, "c->actionremaining -= 10;"); n != 2 {
		t.Fatalf("expected a flush every 10 statements, got %d:\n%s", n, text)
	}
	pr := section(t, text, "static void probe_0 (struct context * __restrict__ c) {", "}")
	// between two checks no more than budget_flush statements may run
	run := 0
	for _, ln := range strings.Split(pr, "\n") {
		ln = strings.TrimSpace(ln)
		switch {
		case strings.HasPrefix(ln, "(void) (l->l_x"):
			run++
			if run > 10 {
				t.Fatalf("more than 10 statements without a budget check:\n%s", pr)
			}
		case strings.HasPrefix(ln, "c->actionremaining -="):
			run = 0
		}
	}
}

func TestBudgetSuppressed(t *testing.T) {
	opts := config.Default()
	opts.Compat.SuppressTimeLimits = true
	x := ast.Local("x", ast.TypeLong)
	body := ast.Block(quiet(), ast.While(ast.Compare("<", x, ast.Num(3)), ast.Block(quiet())))
	text := mustTranslate(t, oneProbe(body, xLocal()), opts)
	if strings.Contains(text, "actionremaining") {
		t.Fatalf("suppressed limits must not emit budget code:\n%s", text)
	}
}

func TestLockMinimal(t *testing.T) {
	text := mustTranslate(t, oneProbe(ast.Block(quiet(), touch(), quiet()), xLocal(), ast.Var("g", ast.TypeLong)), config.Default())
	const q = "(void) (l->l_x = (1LL));"
	first, last := strings.Index(text, q), strings.LastIndex(text, q)
	lock := strings.Index(text, "if (!_stp_lock_probe(locks, ARRAY_SIZE(locks))) goto out;")
	tch := strings.Index(text, "(void) (global(s_g) = (1LL));")
	unlock := strings.Index(text, "_stp_unlock_probe(locks, ARRAY_SIZE(locks));")
	if !(first < lock && lock < tch && tch < unlock && unlock < last) {
		t.Fatalf("lock should wrap only the global access:\n%s", text)
	}
	if n := strings.Count(text, "_stp_lock_probe(locks"); n != 1 {
		t.Fatalf("got %d lock calls, want 1", n)
	}
	if !strings.Contains(text, ".lock = global_lock(s_g),") || !strings.Contains(text, ".write_p = 1,") {
		t.Fatalf("lock table missing:\n%s", text)
	}
}

func TestLockCompatFallback(t *testing.T) {
	opts := config.Default()
	opts.Compat.Version = "4.0"
	text := mustTranslate(t, oneProbe(ast.Block(quiet(), touch(), quiet()), xLocal(), ast.Var("g", ast.TypeLong)), opts)
	const q = "(void) (l->l_x = (1LL));"
	lock := strings.Index(text, "_stp_lock_probe(locks")
	unlock := strings.Index(text, "_stp_unlock_probe(locks")
	if lock < 0 || lock > strings.Index(text, q) || unlock < strings.LastIndex(text, q) {
		t.Fatalf("legacy mode must lock around the whole body:\n%s", text)
	}
}

func TestLockMergeInternalError(t *testing.T) {
	if got := mergeLock(lockUnlocked, lockReleased, &ast.Stmt{}); got != lockReleased {
		t.Fatalf("merge = %s, want released", got)
	}
	defer func() {
		r := recover()
		if _, ok := r.(diag.InternalError); !ok {
			t.Fatalf("recovered %v, want diag.InternalError", r)
		}
	}()
	mergeLock(lockLocked, lockUnlocked, &ast.Stmt{})
}

func TestConditionUpdates(t *testing.T) {
	g := ast.Var("g", ast.TypeLong)
	prog := &ast.Program{
		Globals: []*ast.Variable{g},
		Probes: []*ast.Probe{
			{Name: "timer.ms(5)", NeedsLocks: true, Affects: []int{1}, Body: ast.Block(touch())},
			{Name: "timer.ms(7)", NeedsLocks: true, Cond: ast.Compare(">", ast.GlobalRef("g", ast.TypeLong), ast.Num(0)),
				Body: ast.Block(ast.ExprStmt(ast.Printf(true, "on\n")))},
		},
	}
	text := mustTranslate(t, prog, config.Default())
	pr := section(t, text, "static void probe_0 (struct context * __restrict__ c) {", "}")
	update := strings.Index(pr, "stp_probe_enabled[1] = l->__tmp0;")
	refresh := strings.Index(pr, "atomic_set (&need_module_refresh, 1);")
	unlock := strings.Index(pr, "_stp_unlock_probe(locks")
	if update < 0 || refresh < update || unlock < refresh {
		t.Fatalf("condition must be updated before the unlock:\n%s", pr)
	}
	if !strings.Contains(pr, "l->__tmp0 = !! (((global(s_g)) > (0LL)));") {
		t.Fatalf("condition evaluation missing:\n%s", pr)
	}
}

func TestRegionsOverlap(t *testing.T) {
	s := ast.Local("s", ast.TypeString)
	x := ast.Local("x", ast.TypeLong)
	body := ast.Block(ast.If(ast.Compare(">", x, ast.Num(0)),
		ast.Block(ast.ExprStmt(ast.Assign("=", s, ast.Concat(s, s)))),
		ast.Block(ast.ExprStmt(ast.Assign("=", x, ast.Binary("/", x, x))))))
	locals := []*ast.Variable{ast.Var("x", ast.TypeLong), ast.Var("s", ast.TypeString)}
	out, _ := translate(t, oneProbe(body, locals), config.Default())
	if out.Failed {
		t.Fatal("translation failed")
	}
	frame := section(t, out.Text, "struct probe_0_locals {", "};")
	if n := strings.Count(frame, "union {"); n != 1 {
		t.Fatalf("branches should share one union, got %d:\n%s", n, frame)
	}
	for _, want := range []string{"int64_t l_x;", "string_t l_s;", "string_t __tmp0;", "int64_t __tmp1;", "int64_t __tmp2;"} {
		if !strings.Contains(frame, want) {
			t.Fatalf("missing %q in frame:\n%s", want, frame)
		}
	}
	if !strings.Contains(out.Text, "if (unlikely (!l->__tmp2)) { c->last_error = \"division by 0\"; goto out; }") {
		t.Fatalf("division guard missing:\n%s", out.Text)
	}
	if got := out.Units[len(out.Units)-1].Slots; got != 5 {
		t.Fatalf("probe frame has %d slots, want 5", got)
	}
}

func TestEmptyRegionsVanish(t *testing.T) {
	x := ast.Local("x", ast.TypeLong)
	body := ast.Block(ast.If(ast.Compare(">", x, ast.Num(0)), ast.Block(quiet()), nil), quiet())
	text := mustTranslate(t, oneProbe(body, xLocal()), config.Default())
	frame := section(t, text, "struct probe_0_locals {", "};")
	if want := "struct probe_0_locals {\n\tint64_t l_x;\n};\n"; frame != want {
		t.Fatalf("frame = %q, want %q", frame, want)
	}
}

func TestTryCatch(t *testing.T) {
	x := ast.Local("x", ast.TypeLong)
	body := ast.Block(ast.Try(
		ast.Block(ast.ExprStmt(ast.Assign("=", x, ast.Binary("%", x, x)))),
		"msg",
		ast.Block(ast.ExprStmt(ast.Printf(true, "%s", ast.Local("msg", ast.TypeString))))))
	locals := []*ast.Variable{ast.Var("x", ast.TypeLong), ast.Var("msg", ast.TypeString)}
	text := mustTranslate(t, oneProbe(body, locals), config.Default())
	for _, want := range []string{
		`{ c->last_error = "division by 0"; goto catch_0; }`,
		"catch_0:",
		"if (unlikely (c->aborted)) goto out;",
		`strlcpy (l->l_msg, c->last_error ?: "", MAXSTRINGLEN);`,
		"c->last_error = 0;",
		"end_try_1:",
	} {
		if !strings.Contains(text, want) {
			t.Errorf("missing %q", want)
		}
	}
	if t.Failed() {
		t.Log(text)
	}
}

func TestForeachDeleteCurrent(t *testing.T) {
	arr := ast.ArrayVar("arr", ast.TypeLong, ast.TypeString)
	body := ast.Block(ast.Foreach([]string{"k"}, ast.GlobalRef("arr", ast.TypeLong),
		ast.Block(ast.Delete(ast.Index(ast.GlobalRef("arr", ast.TypeLong), ast.TypeLong, ast.Local("k", ast.TypeString))))))
	text := mustTranslate(t, oneProbe(body, []*ast.Variable{ast.Var("k", ast.TypeString)}, arr), config.Default())
	advance := strings.Index(text, "l->__tmp1 = _stp_map_iter (global(s_arr), l->__tmp0);")
	key := strings.Index(text, "strlcpy (l->l_k, _stp_map_key_get_str (l->__tmp0, 1), MAXSTRINGLEN);")
	del := strings.Index(text, "_stp_map_iterdel (global(s_arr), l->__tmp0);")
	if advance < 0 || key < advance || del < key {
		t.Fatalf("iterator must advance before the body deletes:\n%s", text)
	}
}

func TestSortedForeachLocksForWrite(t *testing.T) {
	counts := ast.ArrayVar("counts", ast.TypeLong, ast.TypeString)
	fe := ast.Foreach([]string{"k"}, ast.GlobalRef("counts", ast.TypeLong),
		ast.Block(ast.ExprStmt(ast.Printf(true, "%s\n", ast.Local("k", ast.TypeString)))))
	fe.Foreach.SortDir = 1
	text := mustTranslate(t, oneProbe(ast.Block(fe), []*ast.Variable{ast.Var("k", ast.TypeString)}, counts), config.Default())
	if !strings.Contains(text, "_stp_map_sort (global(s_counts), 0, 1);") {
		t.Fatalf("sorted loop should sort the map:\n%s", text)
	}
	if !strings.Contains(text, ".lock = global_lock(s_counts),") || !strings.Contains(text, ".write_p = 1,") {
		t.Fatalf("sorting a global needs an exclusive lock:\n%s", text)
	}
	if strings.Contains(text, ".write_p = 0,") {
		t.Fatalf("sorted global locked for reading:\n%s", text)
	}
}

func TestForeachParallelDelete(t *testing.T) {
	st := ast.ArrayVar("st", ast.TypeStats, ast.TypeLong)
	body := ast.Block(ast.Foreach([]string{"k"}, ast.GlobalRef("st", ast.TypeStats),
		ast.Block(ast.Delete(ast.Index(ast.GlobalRef("st", ast.TypeStats), ast.TypeStats, ast.Local("k", ast.TypeLong))))))
	out, bag := translate(t, oneProbe(body, []*ast.Variable{ast.Var("k", ast.TypeLong)}, st), config.Default())
	if !out.Failed {
		t.Fatal("deleting from an iterated statistics array must fail")
	}
	if diff := cmp.Diff([]diag.Code{diag.TransIterDelParallel}, codes(bag)); diff != "" {
		t.Fatalf("codes (-want +got):\n%s", diff)
	}
}

func TestForeachParallelUsesAggregate(t *testing.T) {
	st := ast.ArrayVar("st", ast.TypeStats, ast.TypeLong)
	k := ast.Local("k", ast.TypeLong)
	count := ast.StatOp(ast.StatCount, ast.Index(ast.GlobalRef("st", ast.TypeStats), ast.TypeStats, k))
	fe := ast.Foreach([]string{"k"}, ast.GlobalRef("st", ast.TypeStats), ast.Block(ast.ExprStmt(ast.Printf(true, "%d\n", count))))
	fe.Foreach.SortDir = -1
	text := mustTranslate(t, oneProbe(ast.Block(fe), []*ast.Variable{ast.Var("k", ast.TypeLong)}, st), config.Default())
	for _, want := range []string{
		"l->__tmp0 = _stp_pmap_agg (global(s_st));",
		"_stp_map_sort (l->__tmp0, 0, -1);",
		"_stp_map_get_ix (l->__tmp0, l->__tmp",
	} {
		if !strings.Contains(text, want) {
			t.Errorf("missing %q", want)
		}
	}
	if n := strings.Count(text, "_stp_pmap_agg"); n != 1 {
		t.Errorf("aggregate computed %d times, want once", n)
	}
	if t.Failed() {
		t.Log(text)
	}
}

func TestStatistics(t *testing.T) {
	st := ast.Var("st", ast.TypeStats)
	ref := ast.GlobalRef("st", ast.TypeStats)
	body := ast.Block(
		ast.ExprStmt(ast.Assign("<<<", ref, ast.Num(5))),
		ast.ExprStmt(ast.Printf(true, "%d %d\n", ast.StatOp(ast.StatCount, ref), ast.StatOp(ast.StatMin, ref))),
	)
	text := mustTranslate(t, oneProbe(body, nil, st), config.Default())
	for _, want := range []string{
		"_stp_stat_add (global(s_st), 5LL);",
		"_stp_stat_get (global(s_st), 0);",
		`c->last_error = "empty aggregate";`,
		"_stp_stat_init (HIST_NONE);",
		"#include \"stat.c\"",
	} {
		if !strings.Contains(text, want) {
			t.Errorf("missing %q", want)
		}
	}
}

func TestHistogram(t *testing.T) {
	h := ast.Histogram{Kind: ast.HistLinear, Lo: 0, Hi: 100, Step: 10}
	st := ast.Var("st", ast.TypeStats)
	st.Hist = h
	ref := ast.GlobalRef("st", ast.TypeStats)
	hist := ast.Hist(h, ref)
	pr := &ast.Expr{Kind: ast.ExprPrint, Type: ast.TypeLong, Print: &ast.PrintSpec{ToStream: true, Hist: hist}}
	bucket := ast.Index(ast.Hist(h, ref), ast.TypeLong, ast.Num(3))
	body := ast.Block(ast.ExprStmt(pr), ast.ExprStmt(ast.Printf(true, "%d\n", bucket)))
	text := mustTranslate(t, oneProbe(body, nil, st), config.Default())
	for _, want := range []string{
		"_stp_stat_print_histogram (&",
		`c->last_error = "histogram index out of range";`,
		"_stp_stat_init (HIST_LINEAR, 0LL, 100LL, 10LL);",
	} {
		if !strings.Contains(text, want) {
			t.Errorf("missing %q", want)
		}
	}

	wrong := ast.Hist(ast.Histogram{Kind: ast.HistLog}, ast.GlobalRef("st", ast.TypeStats))
	bad := &ast.Expr{Kind: ast.ExprPrint, Type: ast.TypeLong, Print: &ast.PrintSpec{ToStream: true, Hist: wrong}}
	out, bag := translate(t, oneProbe(ast.Block(ast.ExprStmt(bad)), nil, ast.Var("st", ast.TypeStats)), config.Default())
	if !out.Failed {
		t.Fatal("histogram kind mismatch must fail")
	}
	if diff := cmp.Diff([]diag.Code{diag.TransHistogramMisuse}, codes(bag)); diff != "" {
		t.Fatalf("codes (-want +got):\n%s", diff)
	}
}

func TestErrorsAreBatched(t *testing.T) {
	prog := &ast.Program{Probes: []*ast.Probe{
		{Name: "begin", Locals: xLocal(), Body: ast.Block(
			ast.ExprStmt(ast.Assign("=", ast.Local("x", ast.TypeLong), ast.Str("a"))),
			ast.Break(),
		)},
		{Name: "end", Body: ast.Block(ast.ExprStmt(ast.Assign("=", ast.GlobalRef("nosuch", ast.TypeLong), ast.Num(1))))},
		{Name: "end", Body: ast.Block(ast.Embedded("x = 1;"))},
	}}
	out, bag := translate(t, prog, config.Default())
	if !out.Failed || out.Text != "" {
		t.Fatal("expected failure without output")
	}
	want := []diag.Code{diag.TransTypeMismatch, diag.TransLoopControlOutside, diag.TransUnknownVariable, diag.TransEmbeddedOutsideFunc}
	if diff := cmp.Diff(want, codes(bag)); diff != "" {
		t.Fatalf("codes (-want +got):\n%s", diff)
	}
	failed := 0
	for _, u := range out.Units {
		if u.Failed {
			failed++
		}
	}
	if failed != 3 {
		t.Fatalf("%d units failed, want 3", failed)
	}
}

func TestDeclarationErrors(t *testing.T) {
	bad := ast.ArrayVar("a", ast.TypeLong, ast.TypeLong)
	prog := oneProbe(ast.Block(ast.ExprStmt(ast.Printf(true, "x\n"))), []*ast.Variable{bad})
	out, bag := translate(t, prog, config.Default())
	if !out.Failed {
		t.Fatal("array local must fail")
	}
	if diff := cmp.Diff([]diag.Code{diag.TransArrayLocal}, codes(bag)); diff != "" {
		t.Fatalf("codes (-want +got):\n%s", diff)
	}
}

func TestEmbeddedFunction(t *testing.T) {
	f := &ast.Function{Name: "pid", Result: ast.TypeLong, Body: ast.Embedded("STAP_RETVALUE = current->pid;")}
	prog := oneProbe(ast.Block(ast.ExprStmt(ast.Printf(true, "%d\n", ast.Call("pid", ast.TypeLong)))), nil)
	prog.Functions = []*ast.Function{f}
	text := mustTranslate(t, prog, config.Default())
	fn := section(t, text, "static void function_pid (struct context * __restrict__ c) {", "}")
	for _, want := range []string{"#define STAP_RETVALUE THIS->__retvalue", "STAP_RETVALUE = current->pid;", "c->nesting --;"} {
		if !strings.Contains(fn, want) {
			t.Errorf("missing %q in:\n%s", want, fn)
		}
	}
	if !strings.Contains(text, "c->locals[c->nesting+1].function_pid.__retvalue") {
		t.Errorf("caller must read the callee frame")
	}
}

func TestLegacyLocalNames(t *testing.T) {
	opts := config.Default()
	opts.Compat.Version = "1.7"
	text := mustTranslate(t, oneProbe(ast.Block(quiet()), xLocal()), opts)
	if !strings.Contains(text, "(void) (l->x = (1LL));") {
		t.Fatalf("legacy mode must not mangle locals:\n%s", text)
	}
}

func TestModuleLifecycle(t *testing.T) {
	prog := &ast.Program{
		Globals: []*ast.Variable{ast.Var("g", ast.TypeLong)},
		Probes: []*ast.Probe{
			{Name: "begin", NeedsLocks: true, Body: ast.Block(touch())},
			{Name: "end", Body: ast.Block(ast.ExprStmt(ast.Printf(true, "bye\n")))},
			{Name: "timer.s(1)", Body: ast.Block(ast.ExprStmt(ast.Printf(true, "tick\n")))},
		},
	}
	text := mustTranslate(t, prog, config.Default())
	init := section(t, text, "static int systemtap_module_init (void) {", "}")
	endInit := strings.Index(init, "/* end probes */")
	beginInit := strings.Index(init, "enter_be_probe (&stap_begin_probes[i]);")
	timerInit := strings.Index(init, "_stp_timer_register")
	if endInit < 0 || beginInit < endInit || timerInit < beginInit {
		t.Fatalf("groups must register as end, begin, timer:\n%s", init)
	}
	for _, want := range []string{"unwind_2:", "unwind_1:", "unwind_0:", "stp_globals_free ();"} {
		if !strings.Contains(init, want) {
			t.Errorf("missing %q in init", want)
		}
	}
	exit := section(t, text, "static void systemtap_module_exit (void) {", "}")
	timerExit := strings.Index(exit, "_stp_timer_unregister")
	endExit := strings.Index(exit, "enter_be_probe (&stap_end_probes[i]);")
	if timerExit < 0 || endExit < timerExit {
		t.Fatalf("teardown must run in reverse order:\n%s", exit)
	}
	if !strings.Contains(exit, "global_skipped(s_g)") {
		t.Errorf("exit should report lock skips")
	}
	if !strings.Contains(text, "module_param_named (g, global(s_g), int64_t, 0);") {
		t.Errorf("scalar globals should be exposed as parameters")
	}
	if !strings.Contains(text, "extern struct _stp_module *_stp_module_table[];") {
		t.Errorf("unwind table reference missing")
	}
}

func TestBadTimerPoint(t *testing.T) {
	prog := &ast.Program{Probes: []*ast.Probe{{Name: "timer.ms(0)", Body: ast.Block(ast.ExprStmt(ast.Printf(true, "x\n")))}}}
	out, bag := translate(t, prog, config.Default())
	if !out.Failed {
		t.Fatal("bad timer must fail")
	}
	if diff := cmp.Diff([]diag.Code{diag.TransUnexpectedNode}, codes(bag)); diff != "" {
		t.Fatalf("codes (-want +got):\n%s", diff)
	}
}
