package driver

import (
	"bytes"
	"context"
	"strings"
	"sync"
	"testing"

	"github.com/google/go-cmp/cmp"
	"gopkg.in/yaml.v3"

	"tapgen/internal/ast"
	"tapgen/internal/config"
	"tapgen/internal/diag"
	"tapgen/internal/source"
	"tapgen/internal/tcache"
	"tapgen/internal/trace"
)

func touch() *ast.Stmt {
	return ast.ExprStmt(ast.Assign("=", ast.GlobalRef("g", ast.TypeLong), ast.Num(1)))
}

func sample() *ast.Program {
	return &ast.Program{
		Globals: []*ast.Variable{ast.Var("g", ast.TypeLong)},
		Functions: []*ast.Function{{
			Name: "f", Result: ast.TypeLong,
			Body: ast.Block(ast.Return(ast.Num(1))),
		}},
		Probes: []*ast.Probe{
			{Name: "begin", Body: ast.Block(touch(), ast.ExprStmt(ast.Printf(true, "%d\n", ast.GlobalRef("g", ast.TypeLong)))), NeedsLocks: true},
			{Name: "end", Body: ast.Block(touch()), NeedsLocks: true},
		},
	}
}

func posAt(line uint32) source.Pos { return source.Pos{File: "t.stp", Line: line, Col: 1} }

func errorCodes(bag *diag.Bag) []diag.Code {
	var out []diag.Code
	for _, d := range bag.Items() {
		if d.Severity >= diag.SevError {
			out = append(out, d.Code)
		}
	}
	return out
}

func TestTranslate(t *testing.T) {
	res, err := Translate(context.Background(), sample(), config.Default())
	if err != nil {
		t.Fatalf("Translate: %v", err)
	}
	if res.Failed || res.Text == "" {
		t.Fatalf("failed=%v, text empty=%v", res.Failed, res.Text == "")
	}
	var names []string
	for _, u := range res.Units {
		names = append(names, u.Name)
	}
	if diff := cmp.Diff([]string{"function_f", "probe_0", "probe_1"}, names); diff != "" {
		t.Fatalf("units (-want +got):\n%s", diff)
	}
	if len(res.Printfs) != 1 {
		t.Fatalf("printfs = %+v", res.Printfs)
	}
	var phases []string
	for _, p := range res.Timings.Phases {
		phases = append(phases, p.Name)
	}
	if diff := cmp.Diff([]string{"validate", "number", "analyze", "emit"}, phases); diff != "" {
		t.Fatalf("phases (-want +got):\n%s", diff)
	}
}

func TestTranslateInvalidInput(t *testing.T) {
	tests := []struct {
		name string
		prog *ast.Program
		want []diag.Code
	}{
		{
			name: "duplicate global",
			prog: &ast.Program{
				Globals: []*ast.Variable{ast.Var("g", ast.TypeLong), ast.Var("g", ast.TypeLong)},
				Probes:  []*ast.Probe{{Name: "begin", Body: ast.Block()}},
			},
			want: []diag.Code{diag.InputDuplicateName},
		},
		{
			name: "missing body",
			prog: &ast.Program{Probes: []*ast.Probe{{Name: "begin"}}},
			want: []diag.Code{diag.InputMalformed},
		},
		{
			name: "unknown statement",
			prog: &ast.Program{Probes: []*ast.Probe{{Name: "begin", Body: ast.Block(&ast.Stmt{Kind: ast.StmtKind(200)})}}},
			want: []diag.Code{diag.InputUnknownKind},
		},
		{
			name: "affects out of range",
			prog: &ast.Program{Probes: []*ast.Probe{{Name: "begin", Body: ast.Block(), Affects: []int{3}}}},
			want: []diag.Code{diag.InputMalformed},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := Translate(context.Background(), tt.prog, config.Default())
			if err != nil {
				t.Fatalf("Translate: %v", err)
			}
			if !res.Failed || res.Text != "" {
				t.Fatal("expected a failed translation without text")
			}
			if diff := cmp.Diff(tt.want, errorCodes(res.Bag)); diff != "" {
				t.Fatalf("codes (-want +got):\n%s", diff)
			}
		})
	}
}

func TestTranslateBadOptions(t *testing.T) {
	opts := config.Default()
	opts.Compat.Version = "not-a-version"
	if _, err := Translate(context.Background(), sample(), opts); err == nil {
		t.Fatal("expected an options error")
	}
	if _, err := Translate(context.Background(), nil, config.Default()); err == nil {
		t.Fatal("expected an error for a nil program")
	}
}

func TestTranslateErrorsSorted(t *testing.T) {
	prog := &ast.Program{Probes: []*ast.Probe{
		{Name: "begin", Body: ast.Block(ast.ExprStmt(ast.Printf(true, "%q", ast.Num(1)))), Pos: posAt(9)},
		{Name: "end", Body: ast.Block(ast.ExprStmt(ast.Printf(true, "%d %d", ast.Num(1)))), Pos: posAt(2)},
	}}
	res, err := Translate(context.Background(), prog, config.Default())
	if err != nil {
		t.Fatalf("Translate: %v", err)
	}
	if !res.Failed || res.Text != "" {
		t.Fatal("expected a failed translation without text")
	}
	if n := len(errorCodes(res.Bag)); n != 2 {
		t.Fatalf("got %d errors, want both units reported", n)
	}
	items := res.Bag.Items()
	for i := 1; i < len(items); i++ {
		if items[i].Primary.Before(items[i-1].Primary) {
			t.Fatalf("diagnostics not sorted: %v", items)
		}
	}
}

func TestLockFallbackReported(t *testing.T) {
	prog := &ast.Program{
		Globals: []*ast.Variable{ast.Var("g", ast.TypeLong)},
		Probes: []*ast.Probe{
			{Name: "timer.ms(5)", NeedsLocks: true, Affects: []int{1}, Locals: []*ast.Variable{ast.Var("x", ast.TypeLong)},
				Body: ast.Block(ast.ExprStmt(ast.Assign("=", ast.Local("x", ast.TypeLong), ast.Num(1))))},
			{Name: "timer.ms(7)", NeedsLocks: true, Cond: ast.Compare(">", ast.GlobalRef("g", ast.TypeLong), ast.Num(0)),
				Body: ast.Block(ast.ExprStmt(ast.Printf(true, "on\n")))},
		},
	}
	ring := trace.NewRingTracer(256, trace.LevelDetail)
	ctx := trace.WithTracer(context.Background(), ring)
	res, err := Translate(ctx, prog, config.Default())
	if err != nil {
		t.Fatalf("Translate: %v", err)
	}
	if res.Failed {
		t.Fatal("translation failed")
	}
	found := false
	for _, d := range res.Bag.Items() {
		found = found || (d.Code == diag.TransLockFallback && d.Severity == diag.SevInfo)
	}
	if !found {
		t.Fatalf("fallback not reported: %v", res.Bag.Items())
	}
	if !res.Units[0].Fallback {
		t.Fatalf("unit stats = %+v", res.Units[0])
	}
	point := false
	for _, ev := range ring.Snapshot() {
		point = point || ev.Kind == trace.KindPoint && ev.Name == "probe_0"
	}
	if !point {
		t.Fatal("fallback trace point missing")
	}
}

func TestTranslateCache(t *testing.T) {
	c, err := tcache.OpenDir(t.TempDir())
	if err != nil {
		t.Fatalf("OpenDir: %v", err)
	}
	first, err := Translate(context.Background(), sample(), config.Default(), WithCache(c))
	if err != nil {
		t.Fatalf("Translate: %v", err)
	}
	if first.Cached {
		t.Fatal("first run cannot be a cache hit")
	}
	second, err := Translate(context.Background(), sample(), config.Default(), WithCache(c))
	if err != nil {
		t.Fatalf("Translate: %v", err)
	}
	if !second.Cached {
		t.Fatal("second run should hit the cache")
	}
	if diff := cmp.Diff(first.Text, second.Text); diff != "" {
		t.Fatalf("cached text differs (-first +second):\n%s", diff)
	}
	if diff := cmp.Diff(first.Units, second.Units); diff != "" {
		t.Fatalf("cached units differ (-first +second):\n%s", diff)
	}
	if diff := cmp.Diff(first.Bag.Items(), second.Bag.Items()); diff != "" {
		t.Fatalf("cached diagnostics differ (-first +second):\n%s", diff)
	}

	opts := config.Default()
	opts.Limits.MaxAction = 5
	third, err := Translate(context.Background(), sample(), opts, WithCache(c))
	if err != nil {
		t.Fatalf("Translate: %v", err)
	}
	if third.Cached {
		t.Fatal("different options must not hit the cache")
	}
}

type recordSink struct {
	mu     sync.Mutex
	events []Event
}

func (s *recordSink) OnEvent(ev Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, ev)
}

func TestProgressEvents(t *testing.T) {
	sink := &recordSink{}
	if _, err := Translate(context.Background(), sample(), config.Default(), WithProgress(sink), WithJobs(2)); err != nil {
		t.Fatalf("Translate: %v", err)
	}
	last := map[string]Event{}
	queued := map[string]bool{}
	for _, ev := range sink.events {
		if ev.Status == StatusQueued {
			queued[ev.Unit] = true
		}
		last[ev.Unit] = ev
	}
	for _, name := range []string{"function_f", "probe_0", "probe_1"} {
		if !queued[name] {
			t.Errorf("%s never queued", name)
		}
		if ev := last[name]; ev.Stage != StageEmit || ev.Status != StatusDone {
			t.Errorf("%s ended with %+v", name, ev)
		}
	}
}

func TestTranslateCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := Translate(ctx, sample(), config.Default()); err == nil {
		t.Fatal("expected cancellation error")
	}
}

func TestInspect(t *testing.T) {
	prog := sample()
	prog.Probes[1].Body = ast.Block(touch(), ast.ExprStmt(ast.Printf(true, "%d\n", ast.GlobalRef("g", ast.TypeLong))))
	rep, err := Inspect(context.Background(), prog, config.Default())
	if err != nil {
		t.Fatalf("Inspect: %v", err)
	}
	if len(rep.Units) != 3 {
		t.Fatalf("units = %+v", rep.Units)
	}
	fn, p0, p1 := rep.Units[0], rep.Units[1], rep.Units[2]
	if fn.Kind != "function" || p0.Kind != "probe" {
		t.Fatalf("kinds = %q %q", fn.Kind, p0.Kind)
	}
	if diff := cmp.Diff([]string{"g write"}, p0.Locks); diff != "" {
		t.Fatalf("locks (-want +got):\n%s", diff)
	}
	if p0.Fingerprint == "" || p0.Fingerprint != p1.Fingerprint {
		t.Fatalf("identical handlers should share a fingerprint: %q %q", p0.Fingerprint, p1.Fingerprint)
	}
	if p1.AliasOf != "probe_0" {
		t.Fatalf("alias_of = %q", p1.AliasOf)
	}

	var text bytes.Buffer
	if err := rep.WriteText(&text); err != nil {
		t.Fatalf("WriteText: %v", err)
	}
	if !strings.Contains(text.String(), "shares probe_0") {
		t.Fatalf("text report:\n%s", text.String())
	}

	var buf bytes.Buffer
	if err := rep.WriteYAML(&buf); err != nil {
		t.Fatalf("WriteYAML: %v", err)
	}
	var back Report
	if err := yaml.Unmarshal(buf.Bytes(), &back); err != nil {
		t.Fatalf("yaml: %v", err)
	}
	if diff := cmp.Diff(rep.Units, back.Units); diff != "" {
		t.Fatalf("yaml units (-want +got):\n%s", diff)
	}
}

func TestRecoverInternal(t *testing.T) {
	run := func() (err error) {
		defer recoverInternal(&err)
		diag.Internalf("broken %d", 1)
		return nil
	}
	err := run()
	if _, ok := err.(diag.InternalError); !ok {
		t.Fatalf("err = %v, want diag.InternalError", err)
	}
}
