// Package cstr renders Go values as C literals.
package cstr

import (
	"strconv"
	"strings"
)

// Quote quotes s as a C string literal. Bytes outside printable ASCII are
// written as three-digit octal escapes, which never absorb a following
// digit.
func Quote(s string) string {
	var sb strings.Builder
	sb.Grow(len(s) + 2)
	sb.WriteByte('"')
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch c {
		case '"':
			sb.WriteString(`\"`)
		case '\\':
			sb.WriteString(`\\`)
		case '\n':
			sb.WriteString(`\n`)
		case '\t':
			sb.WriteString(`\t`)
		case '\r':
			sb.WriteString(`\r`)
		case '?':
			// keep trigraphs out of the output
			sb.WriteString(`\?`)
		default:
			if c < 0x20 || c >= 0x7f {
				sb.WriteString(`\` + strconv.FormatInt(int64(c)+0o1000, 8)[1:])
			} else {
				sb.WriteByte(c)
			}
		}
	}
	sb.WriteByte('"')
	return sb.String()
}

// Int renders a 64-bit integer literal.
func Int(n int64) string {
	if n == -1<<63 {
		return "(-9223372036854775807LL-1)"
	}
	return strconv.FormatInt(n, 10) + "LL"
}
