package codegen

import (
	"tapgen/internal/ast"
	"tapgen/internal/diag"
)

func (ue *unitEmitter) indexRead(e *ast.Expr) {
	v := ue.arrayTarget(e)
	if v == nil {
		ue.w.write("0")
		return
	}
	if v.Type == ast.TypeStats {
		ue.errorf(e.Pos, diag.TransInvalidArrayRef, "statistics array %q read without an extractor", v.Name)
		ue.w.write("0")
		return
	}
	ue.w.write("({ ")
	keys := ue.keys(e.Args)
	ue.w.writef("%s; })", mapGet(v, globalRef(v.Name), keys))
}

func (ue *unitEmitter) inExpr(e *ast.Expr) {
	v := ue.arrayTarget(&ast.Expr{Kind: ast.ExprIndex, Pos: e.Pos, Base: e.Base, Args: e.Args})
	if v == nil {
		ue.w.write("0")
		return
	}
	ue.w.write("({ ")
	keys := ue.keys(e.Args)
	ue.w.writef("%s (%s, %s); })", mapOp("exists", v), ue.readableMap(v), keys)
}

// readableMap is the C expression of a map that can be read directly:
// the map itself, or for statistics the current aggregate.
func (ue *unitEmitter) readableMap(v *ast.Variable) string {
	if v.Type != ast.TypeStats {
		return globalRef(v.Name)
	}
	if agg, ok := ue.aggregated[v.Name]; ok {
		return agg
	}
	return "_stp_pmap_agg (" + globalRef(v.Name) + ")"
}
