package ast

import (
	"fmt"

	"fortio.org/safecast"

	"tapgen/internal/source"
)

// Type is the semantic type of a value.
type Type uint8

const (
	TypeUnknown Type = iota
	TypeLong
	TypeString
	TypeStats
)

var typeNames = [...]string{"unknown", "long", "string", "stats"}

func (t Type) String() string {
	if int(t) < len(typeNames) {
		return typeNames[t]
	}
	return fmt.Sprintf("type(%d)", t)
}

func (t Type) MarshalText() ([]byte, error) { return []byte(t.String()), nil }

func (t *Type) UnmarshalText(b []byte) error {
	return unmarshalEnum(b, typeNames[:], (*uint8)(t), "type")
}

// Scope says where a symbol lives.
type Scope uint8

const (
	ScopeLocal Scope = iota
	ScopeGlobal
)

var scopeNames = [...]string{"local", "global"}

func (s Scope) String() string {
	if int(s) < len(scopeNames) {
		return scopeNames[s]
	}
	return fmt.Sprintf("scope(%d)", s)
}

func (s Scope) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

func (s *Scope) UnmarshalText(b []byte) error {
	return unmarshalEnum(b, scopeNames[:], (*uint8)(s), "scope")
}

// HistKind selects a histogram layout for a statistic.
type HistKind uint8

const (
	HistNone HistKind = iota
	HistLinear
	HistLog
)

var histNames = [...]string{"none", "linear", "log"}

func (h HistKind) String() string {
	if int(h) < len(histNames) {
		return histNames[h]
	}
	return fmt.Sprintf("hist(%d)", h)
}

func (h HistKind) MarshalText() ([]byte, error) { return []byte(h.String()), nil }

func (h *HistKind) UnmarshalText(b []byte) error {
	return unmarshalEnum(b, histNames[:], (*uint8)(h), "histogram kind")
}

// Histogram describes histogram parameters; Lo/Hi/Step only for HistLinear.
type Histogram struct {
	Kind HistKind `msgpack:"kind" yaml:"kind"`
	Lo   int64    `msgpack:"lo" yaml:"lo,omitempty"`
	Hi   int64    `msgpack:"hi" yaml:"hi,omitempty"`
	Step int64    `msgpack:"step" yaml:"step,omitempty"`
}

// Variable declares a global, a local or a formal argument.
type Variable struct {
	Name  string     `msgpack:"name" yaml:"name"`
	Type  Type       `msgpack:"type" yaml:"type"`
	Index []Type     `msgpack:"index" yaml:"index,omitempty"` // non-empty for arrays
	Hist  Histogram  `msgpack:"hist" yaml:"hist,omitempty"`   // statistics only
	Max   int        `msgpack:"max" yaml:"max,omitempty"`     // array bound, 0 = default
	Wrap  bool       `msgpack:"wrap" yaml:"wrap,omitempty"`   // arrays: overwrite oldest on overflow
	Init  *Expr      `msgpack:"init" yaml:"init,omitempty"`   // globals: literal initializer
	Pos   source.Pos `msgpack:"pos" yaml:"pos,omitempty"`
}

// Arity is the number of index columns; 0 for scalars.
func (v *Variable) Arity() int { return len(v.Index) }

func (v *Variable) IsArray() bool { return len(v.Index) > 0 }

func unmarshalEnum(b []byte, names []string, out *uint8, what string) error {
	s := string(b)
	for i, n := range names {
		if n == s {
			v, err := safecast.Conv[uint8](i)
			if err != nil {
				return err
			}
			*out = v
			return nil
		}
	}
	return fmt.Errorf("unknown %s %q", what, s)
}
