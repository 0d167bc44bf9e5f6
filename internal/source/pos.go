package source

import (
	"fmt"
)

// Pos points at a token of the original script. The translator never reads
// script text itself; positions arrive already resolved from elaboration.
type Pos struct {
	File string `msgpack:"file" yaml:"file,omitempty"`
	Line uint32 `msgpack:"line" yaml:"line,omitempty"` // 1-based
	Col  uint32 `msgpack:"col" yaml:"col,omitempty"`   // 1-based
}

// NoPos is the zero position used for synthetic nodes.
var NoPos = Pos{}

func (p Pos) IsValid() bool {
	return p.Line > 0
}

func (p Pos) String() string {
	file := p.File
	if file == "" {
		file = "<input>"
	}
	if !p.IsValid() {
		return file
	}
	if p.Col == 0 {
		return fmt.Sprintf("%s:%d", file, p.Line)
	}
	return fmt.Sprintf("%s:%d:%d", file, p.Line, p.Col)
}

// Before reports whether p sorts before other (file, line, column).
func (p Pos) Before(other Pos) bool {
	if p.File != other.File {
		return p.File < other.File
	}
	if p.Line != other.Line {
		return p.Line < other.Line
	}
	return p.Col < other.Col
}
