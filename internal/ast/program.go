package ast

import (
	"fmt"

	"tapgen/internal/source"
)

// Probe is one instrumentation handler.
type Probe struct {
	Name   string      `msgpack:"name" yaml:"name"`   // probe point as written
	Group  string      `msgpack:"group" yaml:"group"` // probe category, selects the registration group
	Body   *Stmt       `msgpack:"body" yaml:"body"`
	Locals []*Variable `msgpack:"locals" yaml:"locals,omitempty"`
	// NeedsLocks is false for probes elaboration proved never touch
	// globals (or run single-threaded, like begin/end).
	NeedsLocks bool `msgpack:"needs_locks" yaml:"needs_locks,omitempty"`
	// Cond is the enable condition; Affects lists the probes (by index)
	// whose Cond reads globals this probe writes.
	Cond     *Expr      `msgpack:"cond" yaml:"cond,omitempty"`
	Affects  []int      `msgpack:"affects" yaml:"affects,omitempty"`
	Pos      source.Pos `msgpack:"pos" yaml:"pos,omitempty"`
	NumStmts int        `msgpack:"-" yaml:"-"`
}

// Function is a script function. Args are also visible as locals.
type Function struct {
	Name     string      `msgpack:"name" yaml:"name"`
	Args     []*Variable `msgpack:"args" yaml:"args,omitempty"`
	Locals   []*Variable `msgpack:"locals" yaml:"locals,omitempty"`
	Result   Type        `msgpack:"result" yaml:"result"`
	Body     *Stmt       `msgpack:"body" yaml:"body"`
	Pos      source.Pos  `msgpack:"pos" yaml:"pos,omitempty"`
	NumStmts int         `msgpack:"-" yaml:"-"`
}

// Program is the whole elaborated script.
type Program struct {
	Globals   []*Variable `msgpack:"globals" yaml:"globals,omitempty"`
	Functions []*Function `msgpack:"functions" yaml:"functions,omitempty"`
	Probes    []*Probe    `msgpack:"probes" yaml:"probes,omitempty"`

	globalIdx map[string]int
	funcIdx   map[string]int
}

// Index builds the name lookup tables. It reports duplicate names.
func (p *Program) Index() error {
	p.globalIdx = make(map[string]int, len(p.Globals))
	for i, g := range p.Globals {
		if _, dup := p.globalIdx[g.Name]; dup {
			return fmt.Errorf("%s: duplicate global %q", g.Pos, g.Name)
		}
		p.globalIdx[g.Name] = i
	}
	p.funcIdx = make(map[string]int, len(p.Functions))
	for i, f := range p.Functions {
		if _, dup := p.funcIdx[f.Name]; dup {
			return fmt.Errorf("%s: duplicate function %q", f.Pos, f.Name)
		}
		p.funcIdx[f.Name] = i
	}
	return nil
}

// Global returns the global named name, or nil.
func (p *Program) Global(name string) *Variable {
	if p.globalIdx == nil {
		if err := p.Index(); err != nil {
			return nil
		}
	}
	if i, ok := p.globalIdx[name]; ok {
		return p.Globals[i]
	}
	return nil
}

// GlobalIndex returns the declaration index of a global, or -1.
func (p *Program) GlobalIndex(name string) int {
	if p.Global(name) == nil {
		return -1
	}
	return p.globalIdx[name]
}

// Function returns the function named name, or nil.
func (p *Program) Function(name string) *Function {
	if p.funcIdx == nil {
		if err := p.Index(); err != nil {
			return nil
		}
	}
	if i, ok := p.funcIdx[name]; ok {
		return p.Functions[i]
	}
	return nil
}

// FunctionIndex returns the declaration index of a function, or -1.
func (p *Program) FunctionIndex(name string) int {
	if p.Function(name) == nil {
		return -1
	}
	return p.funcIdx[name]
}

// UnitKind distinguishes probes from functions.
type UnitKind uint8

const (
	UnitProbe UnitKind = iota
	UnitFunction
)

// Unit is a probe or a function seen uniformly by the analyses.
type Unit struct {
	Kind  UnitKind
	Index int
	Probe *Probe
	Func  *Function
}

// Units lists functions first, then probes, in declaration order.
func (p *Program) Units() []Unit {
	units := make([]Unit, 0, len(p.Functions)+len(p.Probes))
	for i, f := range p.Functions {
		units = append(units, Unit{Kind: UnitFunction, Index: i, Func: f})
	}
	for i, pr := range p.Probes {
		units = append(units, Unit{Kind: UnitProbe, Index: i, Probe: pr})
	}
	return units
}

func (u Unit) Body() *Stmt {
	if u.Kind == UnitProbe {
		return u.Probe.Body
	}
	return u.Func.Body
}

func (u Unit) Locals() []*Variable {
	if u.Kind == UnitProbe {
		return u.Probe.Locals
	}
	return u.Func.Locals
}

func (u Unit) Args() []*Variable {
	if u.Kind == UnitFunction {
		return u.Func.Args
	}
	return nil
}

func (u Unit) NumStmts() int {
	if u.Kind == UnitProbe {
		return u.Probe.NumStmts
	}
	return u.Func.NumStmts
}

func (u Unit) Pos() source.Pos {
	if u.Kind == UnitProbe {
		return u.Probe.Pos
	}
	return u.Func.Pos
}

// Name is the unit's C-level identity: probe_N or function_NAME.
func (u Unit) Name() string {
	if u.Kind == UnitProbe {
		return fmt.Sprintf("probe_%d", u.Index)
	}
	return "function_" + u.Func.Name
}

// Local returns the local or argument named name, or nil.
func (u Unit) Local(name string) *Variable {
	for _, v := range u.Args() {
		if v.Name == name {
			return v
		}
	}
	for _, v := range u.Locals() {
		if v.Name == name {
			return v
		}
	}
	return nil
}
