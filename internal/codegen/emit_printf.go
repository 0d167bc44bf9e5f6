package codegen

import (
	"fmt"
	"strings"

	"tapgen/internal/ast"
	"tapgen/internal/diag"
	"tapgen/internal/fmtspec"
)

// printfKey identifies a compiled format routine.
type printfKey struct {
	stream bool
	format string
}

// printfRoutine is one specialized formatter and its argument record.
type printfRoutine struct {
	key   printfKey
	name  string
	comps []fmtspec.Component
	slots []fmtspec.Slot
}

// routine returns the compiled routine for key, creating it on first use.
func (g *Emitter) routine(key printfKey, comps []fmtspec.Component) *printfRoutine {
	if i, ok := g.printfIdx[key]; ok {
		return g.printfs[i]
	}
	r := &printfRoutine{
		key:   key,
		name:  fmt.Sprintf("stp_printf_%d", len(g.printfs)+1),
		comps: comps,
		slots: fmtspec.SlotsOf(comps),
	}
	g.printfIdx[key] = len(g.printfs)
	g.printfs = append(g.printfs, r)
	return r
}

// printFormat returns the format a print node formats with. Print
// variants without a format print each argument by type, separated by the
// delimiter.
func printFormat(ps *ast.PrintSpec, args []*ast.Expr) string {
	if ps.HasFormat {
		return ps.Format
	}
	var sb strings.Builder
	delim := strings.ReplaceAll(ps.Delim, "%", "%%")
	for i, a := range args {
		if i > 0 {
			sb.WriteString(delim)
		}
		if a.Type == ast.TypeString {
			sb.WriteString("%s")
		} else {
			sb.WriteString("%d")
		}
	}
	if ps.Newline {
		sb.WriteByte('\n')
	}
	return sb.String()
}

func (ue *unitEmitter) print(e *ast.Expr) {
	w := ue.w
	ps := e.Print
	if ps == nil {
		diag.Internalf("print node without a format payload at %s", e.Pos)
	}
	if ps.Hist != nil {
		if !ps.ToStream {
			ue.errorf(e.Pos, diag.TransHistogramMisuse, "histograms can only be printed to the output stream")
			w.write("\"\"")
			return
		}
		ue.printHist(ps.Hist)
		return
	}
	format := printFormat(ps, e.Args)
	comps, err := fmtspec.Parse(format)
	if err != nil {
		ue.errorf(e.Pos, diag.TransBadFormat, "%v", err)
		ue.printFallback(ps)
		return
	}
	slots := fmtspec.SlotsOf(comps)
	if len(slots) != len(e.Args) {
		ue.errorf(e.Pos, diag.TransFormatArgs, "format %q takes %d arguments, got %d", format, len(slots), len(e.Args))
		ue.printFallback(ps)
		return
	}
	for i, sl := range slots {
		want := ast.TypeLong
		if sl.Kind == fmtspec.SlotString {
			want = ast.TypeString
		}
		if e.Args[i].Type != want {
			ue.errorf(e.Args[i].Pos, diag.TransFormatArgs, "argument %d of format %q is %s, want %s", i+1, format, e.Args[i].Type, want)
			ue.printFallback(ps)
			return
		}
	}
	if ue.g.opts.Compat.LegacyPrintf {
		ue.printLegacy(ps, format, e.Args)
		return
	}
	switch fmtspec.Classify(comps) {
	case fmtspec.FastLiteral:
		lit := ""
		if len(comps) == 1 {
			lit = comps[0].Literal
		}
		if ps.ToStream {
			w.writef("({ _stp_print (%s); 0; })", cString(lit))
		} else {
			w.write(cString(lit))
		}
		return
	case fmtspec.FastString:
		if ps.ToStream {
			w.write("({ _stp_print (")
			ue.expr(e.Args[0])
			w.write("); 0; })")
		} else {
			ue.expr(e.Args[0])
		}
		return
	case fmtspec.FastStringNewline:
		if ps.ToStream {
			w.write("({ _stp_print (")
			ue.expr(e.Args[0])
			w.write("); _stp_print_char ('\\n'); 0; })")
			return
		}
		t := ue.tmp(ast.TypeString)
		w.writef("({ strlcpy (%s, ", t)
		ue.expr(e.Args[0])
		w.writef(", MAXSTRINGLEN); strlcat (%s, \"\\n\", MAXSTRINGLEN); %s; })", t, t)
		return
	}
	r := ue.g.routine(printfKey{stream: ps.ToStream, format: format}, comps)
	w.write("({ ")
	vals := make([]value, len(e.Args))
	for i, a := range e.Args {
		vals[i] = ue.operand(a)
	}
	rec := "c->printf_locals." + r.name
	for i, v := range vals {
		w.writef("%s.arg%d = %s; ", rec, i, v)
	}
	if ps.ToStream {
		w.writef("if (unlikely (%s (c))) goto %s; 0; })", r.name, ue.errLabel())
		return
	}
	t := ue.tmp(ast.TypeString)
	w.writef("if (unlikely (%s (c, %s))) goto %s; %s; })", r.name, t, ue.errLabel(), t)
}

// printFallback writes a placeholder of the right type after an error.
func (ue *unitEmitter) printFallback(ps *ast.PrintSpec) {
	if ps.ToStream {
		ue.w.write("0")
	} else {
		ue.w.write("\"\"")
	}
}

// printLegacy hands the format to the runtime's generic formatter.
func (ue *unitEmitter) printLegacy(ps *ast.PrintSpec, format string, args []*ast.Expr) {
	w := ue.w
	w.write("({ ")
	var sb strings.Builder
	for _, a := range args {
		v := ue.operand(a)
		sb.WriteString(", ")
		sb.WriteString(v.text)
	}
	if ps.ToStream {
		w.writef("_stp_printf (%s%s); 0; })", cString(format), sb.String())
		return
	}
	t := ue.tmp(ast.TypeString)
	w.writef("_stp_snprintf (%s, MAXSTRINGLEN, %s%s); %s; })", t, cString(format), sb.String(), t)
}

// recordDecl writes the argument record of r.
func (r *printfRoutine) recordDecl(w *writer) {
	w.open(fmt.Sprintf("struct %s_locals {", r.name))
	for i, sl := range r.slots {
		if sl.Kind == fmtspec.SlotString {
			w.line("const char *arg%d;", i)
		} else {
			w.line("int64_t arg%d;", i)
		}
	}
	if len(r.slots) == 0 {
		w.line("char __unused;")
	}
	w.close("};")
}

func (r *printfRoutine) signature() string {
	if r.key.stream {
		return fmt.Sprintf("static int %s (struct context * __restrict__ c)", r.name)
	}
	return fmt.Sprintf("static int %s (struct context * __restrict__ c, char *str)", r.name)
}

// emit writes the routine. Stream routines measure, reserve and then
// write; string routines write into a MAXSTRINGLEN buffer and truncate.
func (r *printfRoutine) emit(w *writer, bufSize int) {
	kind := "sprintf"
	if r.key.stream {
		kind = "printf"
	}
	w.line("/* %s %s */", kind, strings.ReplaceAll(cString(r.key.format), "*/", "*\\/"))
	w.open(r.signature() + " {")
	w.line("struct %s_locals * __restrict__ l = &c->printf_locals.%s;", r.name, r.name)
	w.line("int width, precision;")
	if r.key.stream {
		w.line("char *str = NULL, *end = NULL;")
		w.line("ssize_t num_bytes = 0;")
	} else {
		w.line("char *end = str + MAXSTRINGLEN - 1;")
	}
	w.line("(void) l; (void) width; (void) precision;")
	r.dumpChecks(w)
	if r.key.stream {
		r.walk(w, bufSize, true)
		w.line("num_bytes = clamp_t (ssize_t, num_bytes, 0, STP_BUFFER_SIZE);")
		w.line("if (num_bytes == 0) return 0;")
		w.line("str = (char *) _stp_reserve_bytes (num_bytes);")
		w.open("if (str == NULL) {")
		w.line("_stp_error (\"Couldn't reserve any print buffer space\\n\");")
		w.line("return 0;")
		w.close("}")
		w.line("end = str + num_bytes - 1;")
		r.walk(w, bufSize, false)
	} else {
		r.walk(w, bufSize, false)
		w.line("if (str <= end) *str = '\\0'; else *end = '\\0';")
	}
	w.line("return 0;")
	w.close("}")
	w.newline()
}

// dumpChecks rejects memory dumps larger than MAXDUMPBYTES before anything
// is reserved or written.
func (r *printfRoutine) dumpChecks(w *writer) {
	for ci, c := range r.comps {
		if c.Kind != fmtspec.KindMemory && c.Kind != fmtspec.KindMemoryHex {
			continue
		}
		w.line("precision = %s;", r.precision(ci, c, 0))
		w.open("if (unlikely (precision > MAXDUMPBYTES)) {")
		w.line("c->last_error = \"%%m/%%M dump exceeds MAXDUMPBYTES\";")
		w.line("return 1;")
		w.close("}")
	}
}

// walk replays the component list in measure or write mode.
func (r *printfRoutine) walk(w *writer, bufSize int, measure bool) {
	for ci, c := range r.comps {
		if c.Kind == fmtspec.KindLiteral {
			if measure {
				w.line("num_bytes += %d;", len(c.Literal))
			} else {
				w.line("str = _stp_vsprint_chars (str, end, %s, %d);", cString(c.Literal), len(c.Literal))
			}
			continue
		}
		w.line("width = %s;", r.width(ci, c, bufSize))
		w.line("precision = %s;", r.precision(ci, c, bufSize))
		call := r.conversion(ci, c)
		if measure {
			w.line("num_bytes += _stp_vsprint_%s_size (%s);", call.fn, call.args)
		} else {
			w.line("str = _stp_vsprint_%s (str, end, %s);", call.fn, call.args)
		}
	}
}

type convCall struct {
	fn   string
	args string
}

func (r *printfRoutine) conversion(ci int, c fmtspec.Component) convCall {
	val := r.arg(ci, fmtspec.RoleValue)
	flags := cFlags(c)
	switch c.Kind {
	case fmtspec.KindSigned:
		return convCall{"number", fmt.Sprintf("%s, 10, width, precision, %s", val, orFlags(flags, "STP_SIGN"))}
	case fmtspec.KindUnsigned:
		return convCall{"number", fmt.Sprintf("%s, 10, width, precision, %s", val, flags)}
	case fmtspec.KindOctal:
		return convCall{"number", fmt.Sprintf("%s, 8, width, precision, %s", val, flags)}
	case fmtspec.KindHex:
		return convCall{"number", fmt.Sprintf("%s, 16, width, precision, %s", val, flags)}
	case fmtspec.KindHexUpper:
		return convCall{"number", fmt.Sprintf("%s, 16, width, precision, %s", val, orFlags(flags, "STP_LARGE"))}
	case fmtspec.KindChar:
		return convCall{"char", fmt.Sprintf("%s, width, %s", val, flags)}
	case fmtspec.KindString:
		return convCall{"str", fmt.Sprintf("%s, width, precision, %s", val, flags)}
	case fmtspec.KindPointer:
		return convCall{"pointer", fmt.Sprintf("(void *) (long) %s, width, %s", val, flags)}
	case fmtspec.KindMemory:
		return convCall{"memory", fmt.Sprintf("(const char *) (long) %s, width, precision, 'm', %s", val, flags)}
	case fmtspec.KindMemoryHex:
		return convCall{"memory", fmt.Sprintf("(const char *) (long) %s, width, precision, 'M', %s", val, flags)}
	case fmtspec.KindBinary:
		return convCall{"binary", fmt.Sprintf("%s, width, precision, %s", val, flags)}
	}
	diag.Internalf("unexpected format component %s", c.Kind)
	return convCall{}
}

// arg names the record slot feeding role of component ci.
func (r *printfRoutine) arg(ci int, role fmtspec.Role) string {
	for i, sl := range r.slots {
		if sl.Component == ci && sl.Role == role {
			return fmt.Sprintf("l->arg%d", i)
		}
	}
	diag.Internalf("%s: component %d has no slot for role %d", r.name, ci, role)
	return ""
}

func (r *printfRoutine) width(ci int, c fmtspec.Component, bufSize int) string {
	switch c.Width {
	case fmtspec.SizeStatic:
		return fmt.Sprint(min(c.WidthVal, bufSize))
	case fmtspec.SizeDynamic:
		return fmt.Sprintf("clamp_t (int, %s, -1, STP_BUFFER_SIZE)", r.arg(ci, fmtspec.RoleWidth))
	}
	return "-1"
}

// precision returns the precision expression; bufSize 0 skips clamping.
func (r *printfRoutine) precision(ci int, c fmtspec.Component, bufSize int) string {
	switch c.Prec {
	case fmtspec.SizeStatic:
		if bufSize > 0 {
			return fmt.Sprint(min(c.PrecVal, bufSize))
		}
		return fmt.Sprint(c.PrecVal)
	case fmtspec.SizeDynamic:
		if bufSize > 0 {
			return fmt.Sprintf("clamp_t (int, %s, -1, STP_BUFFER_SIZE)", r.arg(ci, fmtspec.RolePrec))
		}
		return fmt.Sprintf("(int) %s", r.arg(ci, fmtspec.RolePrec))
	}
	if c.Kind == fmtspec.KindMemory || c.Kind == fmtspec.KindMemoryHex {
		return "1"
	}
	return "-1"
}

func cFlags(c fmtspec.Component) string {
	var fs []string
	for _, f := range []struct {
		bit  fmtspec.Flags
		name string
	}{
		{fmtspec.FlagZero, "STP_ZEROPAD"},
		{fmtspec.FlagPlus, "STP_PLUS"},
		{fmtspec.FlagSpace, "STP_SPACE"},
		{fmtspec.FlagLeft, "STP_LEFT"},
		{fmtspec.FlagAlt, "STP_SPECIAL"},
	} {
		if c.Flags&f.bit != 0 {
			fs = append(fs, f.name)
		}
	}
	if len(fs) == 0 {
		return "0"
	}
	return strings.Join(fs, " | ")
}

func orFlags(flags, extra string) string {
	if flags == "0" {
		return extra
	}
	return flags + " | " + extra
}
