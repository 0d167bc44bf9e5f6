package ast

import (
	"bytes"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
)

func sampleProgram() *Program {
	return &Program{
		Globals: []*Variable{
			ArrayVar("counts", TypeLong, TypeString),
			Var("total", TypeLong),
		},
		Functions: []*Function{{
			Name:   "bump",
			Args:   []*Variable{Var("k", TypeString)},
			Result: TypeLong,
			Body: Block(
				ExprStmt(Assign("+=", Index(GlobalRef("counts", TypeLong), TypeLong, Local("k", TypeString)), Num(1))),
				Return(Index(GlobalRef("counts", TypeLong), TypeLong, Local("k", TypeString))),
			),
		}},
		Probes: []*Probe{{
			Name:       "timer.s(1)",
			Group:      "timer",
			NeedsLocks: true,
			Locals:     []*Variable{Var("x", TypeLong)},
			Body: Block(
				ExprStmt(Assign("=", Local("x", TypeLong), Call("bump", TypeLong, Str("a")))),
				If(Compare(">", Local("x", TypeLong), Num(3)),
					ExprStmt(Printf(true, "x=%d\n", Local("x", TypeLong))),
					nil),
			),
		}},
	}
}

func TestNumberAssignsDenseIDs(t *testing.T) {
	p := sampleProgram()
	Number(p)
	if got := p.Functions[0].NumStmts; got != 3 {
		t.Fatalf("function NumStmts = %d, want 3", got)
	}
	if got := p.Probes[0].NumStmts; got != 4 {
		t.Fatalf("probe NumStmts = %d, want 4", got)
	}
	seen := map[StmtID]bool{}
	WalkStmts(p.Probes[0].Body, func(s *Stmt) bool {
		if s.ID == 0 || seen[s.ID] {
			t.Fatalf("bad or repeated id %d", s.ID)
		}
		seen[s.ID] = true
		return true
	})
}

func TestProgramLookup(t *testing.T) {
	p := sampleProgram()
	if err := p.Index(); err != nil {
		t.Fatal(err)
	}
	if p.GlobalIndex("total") != 1 || p.GlobalIndex("nope") != -1 {
		t.Fatalf("GlobalIndex mismatch")
	}
	if p.Function("bump") == nil || p.FunctionIndex("bump") != 0 {
		t.Fatalf("Function lookup failed")
	}
	units := p.Units()
	if len(units) != 2 || units[0].Name() != "function_bump" || units[1].Name() != "probe_0" {
		t.Fatalf("units = %+v", units)
	}
	if units[0].Local("k") == nil || units[1].Local("x") == nil {
		t.Fatalf("Local lookup failed")
	}
}

func TestIndexRejectsDuplicates(t *testing.T) {
	p := &Program{Globals: []*Variable{Var("a", TypeLong), Var("a", TypeString)}}
	if err := p.Index(); err == nil {
		t.Fatalf("expected duplicate error")
	}
}

func TestPrinterIgnoresPositionsAndIDs(t *testing.T) {
	a := sampleProgram().Probes[0].Body
	b := sampleProgram().Probes[0].Body
	b.Stmts[0].Pos.Line = 42
	b.ID = 9
	if StmtString(a) != StmtString(b) {
		t.Fatalf("printer output depends on position:\n%s\n%s", StmtString(a), StmtString(b))
	}
	b.Stmts[1].If.Cond.Right.Num = 4
	if StmtString(a) == StmtString(b) {
		t.Fatalf("printer output ignores a literal change")
	}
}

func TestPrinterText(t *testing.T) {
	got := ExprText(Assign("=", Local("x", TypeLong), Binary("+", GlobalRef("g", TypeLong), Num(1))))
	want := "(x:long = (global g:long + 1:long):long):long"
	if got != want {
		t.Fatalf("got %q, want %q", got, want)
	}
}

func TestCodecRoundTrip(t *testing.T) {
	for _, f := range []Format{FormatYAML, FormatMsgpack} {
		p := sampleProgram()
		var buf bytes.Buffer
		if err := EncodeProgram(&buf, p, f); err != nil {
			t.Fatalf("encode %d: %v", f, err)
		}
		got, err := Decode(buf.Bytes(), f)
		if err != nil {
			t.Fatalf("decode %d: %v", f, err)
		}
		Number(p)
		opts := cmp.Options{
			cmpopts.IgnoreUnexported(Program{}),
			cmpopts.IgnoreFields(Stmt{}, "ID"),
			cmpopts.IgnoreFields(Probe{}, "NumStmts"),
			cmpopts.IgnoreFields(Function{}, "NumStmts"),
			cmpopts.EquateEmpty(),
		}
		if diff := cmp.Diff(p, got, opts); diff != "" {
			t.Fatalf("format %d round trip (-want +got):\n%s", f, diff)
		}
		if got.Probes[0].NumStmts != 4 {
			t.Fatalf("decoded program was not numbered")
		}
	}
}

func TestDecodeYAMLRejectsUnknownFields(t *testing.T) {
	_, err := Decode([]byte("globals:\n  - name: a\n    type: long\n    bogus: 1\n"), FormatYAML)
	if err == nil {
		t.Fatalf("expected error for unknown field")
	}
}

func TestDecodeYAMLEnums(t *testing.T) {
	src := strings.Join([]string{
		"probes:",
		"  - name: begin",
		"    group: begin",
		"    body:",
		"      kind: block",
		"      stmts:",
		"        - kind: expr",
		"          expr:",
		"            kind: print",
		"            type: long",
		"            print: {format: \"hi\\n\", has_format: true, to_stream: true}",
	}, "\n")
	p, err := Decode([]byte(src), FormatYAML)
	if err != nil {
		t.Fatal(err)
	}
	e := p.Probes[0].Body.Stmts[0].Expr
	if e.Kind != ExprPrint || e.Type != TypeLong || e.Print.Format != "hi\n" {
		t.Fatalf("decoded %+v", e)
	}
}

func TestFormatFromPath(t *testing.T) {
	if f, err := FormatFromPath("x.YML"); err != nil || f != FormatYAML {
		t.Fatalf("yml: %v %v", f, err)
	}
	if f, err := FormatFromPath("x.tapb"); err != nil || f != FormatMsgpack {
		t.Fatalf("tapb: %v %v", f, err)
	}
	if _, err := FormatFromPath("x.stp"); err == nil {
		t.Fatalf("expected error")
	}
}
