package codegen

import (
	"tapgen/internal/ast"
	"tapgen/internal/cstr"
	"tapgen/internal/mapsig"
)

// value is a lowered expression: C text plus its script type.
type value struct {
	text string
	typ  ast.Type
}

func (v value) String() string { return v.text }

// ctype is the C storage type of a script type.
func ctype(t ast.Type) string {
	switch t {
	case ast.TypeString:
		return "string_t"
	case ast.TypeStats:
		return "Stat"
	}
	return "int64_t"
}

// globalName is the mangled storage name of a global.
func globalName(name string) string { return "s_" + name }

// globalRef is a C lvalue for a global.
func globalRef(name string) string { return "global(" + globalName(name) + ")" }

// localName mangles a local unless legacy naming is selected.
func (g *Emitter) localName(name string) string {
	if g.mangleLocals {
		return "l_" + name
	}
	return name
}

// mapKind is the container family a global array lives in.
func mapKind(v *ast.Variable) string {
	if v.Type == ast.TypeStats {
		return "PMAP"
	}
	return "MAP"
}

// globalCType is the storage type of a global declaration.
func globalCType(v *ast.Variable) string {
	if v.IsArray() {
		return mapKind(v)
	}
	return ctype(v.Type)
}

// mapOp names a container routine for the signature of v.
func mapOp(op string, v *ast.Variable) string {
	return "_stp_map_" + op + "_" + mapsig.Of(v).Name()
}

func pmapOp(op string, v *ast.Variable) string {
	return "_stp_pmap_" + op + "_" + mapsig.Of(v).Name()
}

// cString quotes s as a C string literal.
func cString(s string) string { return cstr.Quote(s) }

// cInt renders a 64-bit literal.
func cInt(n int64) string { return cstr.Int(n) }
