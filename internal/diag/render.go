package diag

import (
	"fmt"
	"io"

	"github.com/fatih/color"
)

var (
	errorColor   = color.New(color.FgRed, color.Bold)
	warningColor = color.New(color.FgYellow, color.Bold)
	infoColor    = color.New(color.FgCyan)
	noteColor    = color.New(color.Faint)
)

// Render writes one line per diagnostic plus indented notes. Colors are
// applied only when useColor is set.
func Render(w io.Writer, diags []Diagnostic, useColor bool) error {
	for _, d := range diags {
		sev := d.Severity.String()
		if useColor {
			sev = severityColor(d.Severity).Sprint(sev)
		}
		if _, err := fmt.Fprintf(w, "%s: %s %s: %s\n", d.Primary, sev, d.Code.ID(), d.Message); err != nil {
			return err
		}
		for _, n := range d.Notes {
			line := fmt.Sprintf("  note: %s: %s", n.Pos, n.Msg)
			if useColor {
				line = noteColor.Sprint(line)
			}
			if _, err := fmt.Fprintln(w, line); err != nil {
				return err
			}
		}
	}
	return nil
}

func severityColor(s Severity) *color.Color {
	switch s {
	case SevError:
		return errorColor
	case SevWarning:
		return warningColor
	default:
		return infoColor
	}
}
