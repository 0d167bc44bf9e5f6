package version

import "github.com/fatih/color"

// Build metadata; overridable via -ldflags.
var (
	// Version is the translator version.
	Version = "0.4.0"

	// ScriptCompat is the newest script-language compatibility level the
	// translator understands; --compatible defaults to it.
	ScriptCompat = "5.0"

	GitCommit = ""
	BuildDate = ""
)

var (
	nameColor    = color.New(color.FgCyan, color.Bold)
	versionColor = color.New(color.FgGreen, color.Bold)
)

// Banner is the human readable version line. Color is controlled globally
// through color.NoColor.
func Banner() string {
	s := nameColor.Sprint("tapgen") + " " + versionColor.Sprint(Version) + " (script compat " + ScriptCompat + ")"
	if GitCommit != "" {
		s += " commit " + GitCommit
	}
	if BuildDate != "" {
		s += " built " + BuildDate
	}
	return s
}
