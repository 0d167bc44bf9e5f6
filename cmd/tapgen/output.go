package main

import (
	"fmt"
	"io"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"tapgen/internal/diag"
	"tapgen/internal/driver"
)

func printTimings(out io.Writer, res *driver.Result) {
	if out == nil || res == nil {
		return
	}
	if res.Cached {
		fmt.Fprintln(out, "translation reused from cache")
	}
	fmt.Fprint(out, res.Timings.Summary())
	if slow, ok := res.Timings.Slowest(); ok && len(res.Timings.Phases) > 1 {
		fmt.Fprintf(out, "slowest phase: %s\n", slow.Name)
	}
}

// renderDiagnostics writes diags to the command's stderr in the format
// chosen by --diag-format.
func renderDiagnostics(cmd *cobra.Command, diags []diag.Diagnostic) error {
	format, err := cmd.Root().PersistentFlags().GetString("diag-format")
	if err != nil {
		return err
	}
	switch format {
	case "json":
		maxDiags, _ := cmd.Root().PersistentFlags().GetInt("max-diagnostics")
		return diag.RenderJSON(cmd.ErrOrStderr(), diags, maxDiags)
	case "", "pretty":
		return diag.Render(cmd.ErrOrStderr(), diags, !color.NoColor)
	default:
		return fmt.Errorf("unsupported diagnostics format %q (must be pretty or json)", format)
	}
}
