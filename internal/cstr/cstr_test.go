package cstr

import "testing"

func TestQuote(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"", `""`},
		{"abc", `"abc"`},
		{"a\"b\\c", `"a\"b\\c"`},
		{"line\n", `"line\n"`},
		{"??=", `"\?\?="`},
		{"\x01" + "7", `"\0017"`},
		{"\xff", `"\377"`},
	}
	for _, tt := range tests {
		if got := Quote(tt.in); got != tt.want {
			t.Errorf("Quote(%q) = %s, want %s", tt.in, got, tt.want)
		}
	}
}

func TestInt(t *testing.T) {
	tests := []struct {
		in   int64
		want string
	}{
		{0, "0LL"},
		{-5, "-5LL"},
		{1 << 40, "1099511627776LL"},
		{-1 << 63, "(-9223372036854775807LL-1)"},
	}
	for _, tt := range tests {
		if got := Int(tt.in); got != tt.want {
			t.Errorf("Int(%d) = %s, want %s", tt.in, got, tt.want)
		}
	}
}
