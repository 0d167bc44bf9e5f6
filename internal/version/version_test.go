package version

import (
	"strings"
	"testing"

	"github.com/fatih/color"
)

func TestBannerPlain(t *testing.T) {
	prev := color.NoColor
	color.NoColor = true
	defer func() { color.NoColor = prev }()

	b := Banner()
	if !strings.HasPrefix(b, "tapgen "+Version) || !strings.Contains(b, ScriptCompat) {
		t.Fatalf("unexpected banner %q", b)
	}
}
