package diag

import (
	"fmt"
)

type Code uint16

const (
	UnknownCode Code = 0

	// input decoding
	InputInfo          Code = 1000
	InputMalformed     Code = 1001
	InputUnknownKind   Code = 1002
	InputDuplicateName Code = 1003

	// translation
	TransInfo                 Code = 4000
	TransUnsupportedLvalue    Code = 4001
	TransTypeMismatch         Code = 4002
	TransInvalidArrayRef      Code = 4003
	TransArrayLocal           Code = 4004
	TransStatLocal            Code = 4005
	TransIndexArity           Code = 4006
	TransBadDeleteTarget      Code = 4007
	TransUnknownVariable      Code = 4008
	TransUnknownFunction      Code = 4009
	TransIterDelParallel      Code = 4010
	TransBadFormat            Code = 4011
	TransFormatArgs           Code = 4012
	TransHistogramMisuse      Code = 4013
	TransEmbeddedOutsideFunc  Code = 4014
	TransUnexpectedNode       Code = 4015
	TransStatOpOnNonStat      Code = 4016
	TransBadForeachBase       Code = 4017
	TransLoopControlOutside   Code = 4018
	TransLockFallback         Code = 4019
	TransDuplicateHandlerInfo Code = 4020
)

var codeDescription = map[Code]string{
	UnknownCode:               "Unknown error",
	InputInfo:                 "Input information",
	InputMalformed:            "Malformed elaborated program",
	InputUnknownKind:          "Unknown node kind",
	InputDuplicateName:        "Duplicate declaration",
	TransInfo:                 "Translation information",
	TransUnsupportedLvalue:    "Unsupported assignment target",
	TransTypeMismatch:         "Operand type mismatch",
	TransInvalidArrayRef:      "Invalid array reference",
	TransArrayLocal:           "Array-typed local variable",
	TransStatLocal:            "Statistic-typed local variable",
	TransIndexArity:           "Array index arity mismatch",
	TransBadDeleteTarget:      "Invalid delete target",
	TransUnknownVariable:      "Unresolved variable",
	TransUnknownFunction:      "Unresolved function",
	TransIterDelParallel:      "Deletion while iterating a statistics array",
	TransBadFormat:            "Malformed format string",
	TransFormatArgs:           "Format argument mismatch",
	TransHistogramMisuse:      "Invalid histogram usage",
	TransEmbeddedOutsideFunc:  "Embedded code outside a function",
	TransUnexpectedNode:       "Unexpected node",
	TransStatOpOnNonStat:      "Statistic operation on a non-statistic",
	TransBadForeachBase:       "Invalid foreach source",
	TransLoopControlOutside:   "Loop control outside a loop",
	TransLockFallback:         "Lock placed at block boundary",
	TransDuplicateHandlerInfo: "Probe handler shared",
}

func (c Code) ID() string {
	switch ic := int(c); {
	case ic >= 1000 && ic < 2000:
		return fmt.Sprintf("IN%04d", ic)
	case ic >= 4000 && ic < 5000:
		return fmt.Sprintf("TR%04d", ic)
	}
	return "E0000"
}

func (c Code) Title() string {
	if d, ok := codeDescription[c]; ok {
		return d
	}
	return codeDescription[UnknownCode]
}

func (c Code) String() string {
	return fmt.Sprintf("[%s]: %s", c.ID(), c.Title())
}
