package codegen

import (
	"fmt"
	"strings"

	"tapgen/internal/ast"
	"tapgen/internal/diag"
)

// Fingerprint is the canonical text of everything a probe handler is
// generated from. Probes with equal fingerprints get identical handlers.
// Comparison is by exact text: nothing is hashed, so two probes are merged
// only when their handlers would be byte-identical.
func Fingerprint(pr *ast.Probe) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "locks=%t\n", pr.NeedsLocks)
	if len(pr.Affects) > 0 {
		fmt.Fprintf(&sb, "affects=%v\n", pr.Affects)
	}
	for _, v := range pr.Locals {
		sb.WriteString(ast.DeclString(v))
		sb.WriteByte('\n')
	}
	sb.WriteString(ast.StmtString(pr.Body))
	return sb.String()
}

// elideDuplicates maps every probe to the first probe with the same
// fingerprint; a probe maps to itself when it keeps its own handler.
func (g *Emitter) elideDuplicates() []int {
	aliases := make([]int, len(g.prog.Probes))
	for i := range aliases {
		aliases[i] = i
	}
	if g.opts.Compat.Unoptimized {
		return aliases
	}
	first := map[string]int{}
	for i, pr := range g.prog.Probes {
		fp := g.plans[g.unitIndex(ast.UnitProbe, i)].Fingerprint
		if fp == "" {
			fp = Fingerprint(pr)
		}
		if j, ok := first[fp]; ok {
			aliases[i] = j
			g.rep.Report(diag.TransDuplicateHandlerInfo, diag.SevInfo, pr.Pos,
				fmt.Sprintf("probe %s shares the handler of probe %s", pr.Name, g.prog.Probes[j].Name),
				[]diag.Note{{Pos: g.prog.Probes[j].Pos, Msg: "handler emitted here"}})
			continue
		}
		first[fp] = i
	}
	return aliases
}
