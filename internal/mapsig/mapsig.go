// Package mapsig collects the distinct container type signatures a program
// uses, so each can be instantiated exactly once.
package mapsig

import (
	"slices"
	"strings"

	"tapgen/internal/ast"
)

// Sig is an ordered index-type list mapped to a value type.
type Sig struct {
	Keys  []ast.Type
	Value ast.Type
}

// Letter is the short code of a type inside container names.
func Letter(t ast.Type) byte {
	switch t {
	case ast.TypeString:
		return 's'
	case ast.TypeStats:
		return 'x'
	}
	return 'i'
}

// Name is the signature suffix used by container routines: the key
// letters followed by the value letter, "si" for string -> long.
func (s Sig) Name() string {
	var sb strings.Builder
	for _, k := range s.Keys {
		sb.WriteByte(Letter(k))
	}
	sb.WriteByte(Letter(s.Value))
	return sb.String()
}

// Parallel reports whether the container holds per-cpu statistics.
func (s Sig) Parallel() bool { return s.Value == ast.TypeStats }

// Of returns the signature of an array variable.
func Of(v *ast.Variable) Sig {
	return Sig{Keys: slices.Clone(v.Index), Value: v.Type}
}

// Collect walks every global and every function and probe local and returns
// the distinct signatures sorted by name. Scalars contribute nothing.
func Collect(p *ast.Program) []Sig {
	seen := map[string]Sig{}
	add := func(vs []*ast.Variable) {
		for _, v := range vs {
			if !v.IsArray() {
				continue
			}
			s := Of(v)
			seen[s.Name()] = s
		}
	}
	add(p.Globals)
	for _, f := range p.Functions {
		add(f.Args)
		add(f.Locals)
	}
	for _, pr := range p.Probes {
		add(pr.Locals)
	}
	out := make([]Sig, 0, len(seen))
	for _, s := range seen {
		out = append(out, s)
	}
	slices.SortFunc(out, func(a, b Sig) int { return strings.Compare(a.Name(), b.Name()) })
	return out
}

// HasParallel reports whether any signature needs the per-cpu wrapper.
func HasParallel(sigs []Sig) bool {
	return slices.ContainsFunc(sigs, Sig.Parallel)
}
