// Package fmtspec parses printf-style format strings into components.
package fmtspec

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"fortio.org/safecast"
)

// Kind classifies a component.
type Kind uint8

const (
	KindLiteral   Kind = iota
	KindSigned         // %d %i
	KindUnsigned       // %u
	KindOctal          // %o
	KindHex            // %x
	KindHexUpper       // %X
	KindChar           // %c
	KindString         // %s
	KindPointer        // %p
	KindMemory         // %m
	KindMemoryHex      // %M
	KindBinary         // %b
)

var kindNames = [...]string{
	"literal", "signed", "unsigned", "octal", "hex", "HEX",
	"char", "string", "pointer", "memory", "memory-hex", "binary",
}

func (k Kind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return fmt.Sprintf("kind(%d)", k)
}

// Flags are the conversion flags.
type Flags uint8

const (
	FlagZero  Flags = 1 << iota // 0
	FlagPlus                    // +
	FlagSpace                   // ' '
	FlagLeft                    // -
	FlagAlt                     // #
)

// Size is how a width or precision is supplied.
type Size uint8

const (
	SizeNone    Size = iota
	SizeStatic       // digits in the format
	SizeDynamic      // '*', taken from the argument list
)

// Component is one literal run or one conversion.
type Component struct {
	Kind     Kind
	Flags    Flags
	Width    Size
	WidthVal int
	Prec     Size
	PrecVal  int
	Literal  string // KindLiteral only, with %% already folded
}

// IsString reports whether the conversion consumes a string argument.
func (c Component) IsString() bool { return c.Kind == KindString }

// Slots is the number of argument slots the component consumes: one per
// dynamic width or precision plus one for the value.
func (c Component) Slots() int {
	if c.Kind == KindLiteral {
		return 0
	}
	n := 1
	if c.Width == SizeDynamic {
		n++
	}
	if c.Prec == SizeDynamic {
		n++
	}
	return n
}

// ErrBadFormat wraps every parse error.
var ErrBadFormat = errors.New("bad format string")

// Parse splits format into components. Adjacent literal text, including
// folded "%%", becomes a single literal component.
func Parse(format string) ([]Component, error) {
	var out []Component
	var lit strings.Builder
	flush := func() {
		if lit.Len() > 0 {
			out = append(out, Component{Kind: KindLiteral, Literal: lit.String()})
			lit.Reset()
		}
	}
	for i := 0; i < len(format); {
		ch := format[i]
		if ch != '%' {
			lit.WriteByte(ch)
			i++
			continue
		}
		i++
		if i >= len(format) {
			return nil, fmt.Errorf("%w: trailing '%%' in %q", ErrBadFormat, format)
		}
		if format[i] == '%' {
			lit.WriteByte('%')
			i++
			continue
		}
		var c Component
	flags:
		for ; i < len(format); i++ {
			switch format[i] {
			case '0':
				c.Flags |= FlagZero
			case '+':
				c.Flags |= FlagPlus
			case ' ':
				c.Flags |= FlagSpace
			case '-':
				c.Flags |= FlagLeft
			case '#':
				c.Flags |= FlagAlt
			default:
				break flags
			}
		}
		var err error
		if i, err = parseSize(format, i, &c.Width, &c.WidthVal); err != nil {
			return nil, err
		}
		if i < len(format) && format[i] == '.' {
			i++
			c.Prec = SizeStatic
			if i, err = parseSize(format, i, &c.Prec, &c.PrecVal); err != nil {
				return nil, err
			}
		}
		// length modifiers are accepted and ignored; every integer is 64-bit
		for i < len(format) && (format[i] == 'l' || format[i] == 'h' || format[i] == 'L' || format[i] == 'j' || format[i] == 'z') {
			i++
		}
		if i >= len(format) {
			return nil, fmt.Errorf("%w: incomplete conversion in %q", ErrBadFormat, format)
		}
		k, ok := convKind(format[i])
		if !ok {
			return nil, fmt.Errorf("%w: unknown conversion %%%c in %q", ErrBadFormat, format[i], format)
		}
		c.Kind = k
		i++
		flush()
		out = append(out, c)
	}
	flush()
	return out, nil
}

// parseSize reads a width or precision. Static values must fit a C int.
func parseSize(format string, i int, size *Size, val *int) (int, error) {
	if i < len(format) && format[i] == '*' {
		*size = SizeDynamic
		return i + 1, nil
	}
	start := i
	for i < len(format) && format[i] >= '0' && format[i] <= '9' {
		i++
	}
	if i == start {
		return i, nil
	}
	u, err := strconv.ParseUint(format[start:i], 10, 64)
	if err != nil {
		return i, fmt.Errorf("%w: size %s out of range in %q", ErrBadFormat, format[start:i], format)
	}
	n, err := safecast.Conv[int32](u)
	if err != nil {
		return i, fmt.Errorf("%w: size %s out of range in %q", ErrBadFormat, format[start:i], format)
	}
	*size = SizeStatic
	*val = int(n)
	return i, nil
}

func convKind(ch byte) (Kind, bool) {
	switch ch {
	case 'd', 'i':
		return KindSigned, true
	case 'u':
		return KindUnsigned, true
	case 'o':
		return KindOctal, true
	case 'x':
		return KindHex, true
	case 'X':
		return KindHexUpper, true
	case 'c':
		return KindChar, true
	case 's':
		return KindString, true
	case 'p':
		return KindPointer, true
	case 'm':
		return KindMemory, true
	case 'M':
		return KindMemoryHex, true
	case 'b':
		return KindBinary, true
	}
	return 0, false
}

// Conversions returns the non-literal components in order.
func Conversions(comps []Component) []Component {
	var out []Component
	for _, c := range comps {
		if c.Kind != KindLiteral {
			out = append(out, c)
		}
	}
	return out
}

// ArgCount is the number of script arguments the format consumes.
func ArgCount(comps []Component) int {
	n := 0
	for _, c := range comps {
		n += c.Slots()
	}
	return n
}

// SlotKind is the type of one argument slot.
type SlotKind uint8

const (
	SlotInt SlotKind = iota
	SlotString
)

// Slot describes one consumed argument.
type Slot struct {
	Kind      SlotKind
	Component int  // index into the component list
	Role      Role // width, precision or value
}

// Role names what a slot feeds.
type Role uint8

const (
	RoleValue Role = iota
	RoleWidth
	RolePrec
)

// SlotsOf lists argument slots in the order arguments are consumed:
// dynamic width, dynamic precision, then the value.
func SlotsOf(comps []Component) []Slot {
	var out []Slot
	for i, c := range comps {
		if c.Kind == KindLiteral {
			continue
		}
		if c.Width == SizeDynamic {
			out = append(out, Slot{Kind: SlotInt, Component: i, Role: RoleWidth})
		}
		if c.Prec == SizeDynamic {
			out = append(out, Slot{Kind: SlotInt, Component: i, Role: RolePrec})
		}
		k := SlotInt
		if c.IsString() {
			k = SlotString
		}
		out = append(out, Slot{Kind: k, Component: i, Role: RoleValue})
	}
	return out
}

// FastPath classifies formats that need no formatter at all.
type FastPath uint8

const (
	FastNone FastPath = iota
	// FastLiteral is a format with no conversions.
	FastLiteral
	// FastString is exactly "%s".
	FastString
	// FastStringNewline is "%s" followed by a literal newline.
	FastStringNewline
)

// Classify reports which fast path, if any, applies.
func Classify(comps []Component) FastPath {
	switch {
	case len(comps) == 0:
		return FastLiteral
	case len(comps) == 1 && comps[0].Kind == KindLiteral:
		return FastLiteral
	case len(comps) == 1 && isBareString(comps[0]):
		return FastString
	case len(comps) == 2 && isBareString(comps[0]) &&
		comps[1].Kind == KindLiteral && comps[1].Literal == "\n":
		return FastStringNewline
	}
	return FastNone
}

func isBareString(c Component) bool {
	return c.Kind == KindString && c.Flags == 0 && c.Width == SizeNone && c.Prec == SizeNone
}
