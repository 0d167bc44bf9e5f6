// Package rwset computes which globals each statement reads and writes,
// including the effects of the functions it calls.
package rwset

import (
	"strconv"
	"strings"
)

// Access is a bit set of access kinds.
type Access uint8

const (
	Read Access = 1 << iota
	Write
)

func (a Access) String() string {
	switch a {
	case 0:
		return "-"
	case Read:
		return "r"
	case Write:
		return "w"
	}
	return "rw"
}

// Set maps global declaration indexes to access kinds. The zero Set is empty.
type Set struct {
	acc []Access
}

// NewSet returns an empty set sized for n globals.
func NewSet(n int) Set { return Set{acc: make([]Access, n)} }

func (s *Set) grow(i int) {
	if i >= len(s.acc) {
		acc := make([]Access, i+1)
		copy(acc, s.acc)
		s.acc = acc
	}
}

// Add records access a to global i.
func (s *Set) Add(i int, a Access) {
	if i < 0 || a == 0 {
		return
	}
	s.grow(i)
	s.acc[i] |= a
}

// Union adds every access of o; it reports whether s changed.
func (s *Set) Union(o Set) bool {
	changed := false
	for i, a := range o.acc {
		if a == 0 {
			continue
		}
		s.grow(i)
		if s.acc[i]|a != s.acc[i] {
			s.acc[i] |= a
			changed = true
		}
	}
	return changed
}

// Get returns the access recorded for global i.
func (s Set) Get(i int) Access {
	if i < 0 || i >= len(s.acc) {
		return 0
	}
	return s.acc[i]
}

// Empty reports whether no global is touched.
func (s Set) Empty() bool {
	for _, a := range s.acc {
		if a != 0 {
			return false
		}
	}
	return true
}

// Entry is one touched global.
type Entry struct {
	Global int
	Access Access
}

// Entries lists touched globals in declaration order.
func (s Set) Entries() []Entry {
	var out []Entry
	for i, a := range s.acc {
		if a != 0 {
			out = append(out, Entry{Global: i, Access: a})
		}
	}
	return out
}

// Clone returns an independent copy.
func (s Set) Clone() Set {
	if s.acc == nil {
		return Set{}
	}
	acc := make([]Access, len(s.acc))
	copy(acc, s.acc)
	return Set{acc: acc}
}

func (s Set) String() string {
	var sb strings.Builder
	sb.WriteByte('{')
	for i, e := range s.Entries() {
		if i > 0 {
			sb.WriteByte(' ')
		}
		sb.WriteString(strconv.Itoa(e.Global))
		sb.WriteByte(':')
		sb.WriteString(e.Access.String())
	}
	sb.WriteByte('}')
	return sb.String()
}
