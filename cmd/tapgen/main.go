package main

import (
	"os"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"tapgen/internal/version"
)

var rootCmd = &cobra.Command{
	Use:   "tapgen",
	Short: "Translate elaborated probe scripts into kernel module C",
	Long: `tapgen is the code generation backend of the probe script translator.
It reads an elaborated program (YAML or msgpack) and emits the module source.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return applyColorFlag(cmd)
	},
}

// main registers the subcommands and persistent flags and runs the root
// command, exiting with status 1 on error.
func main() {
	rootCmd.Version = version.Version

	rootCmd.AddCommand(translateCmd)
	rootCmd.AddCommand(inspectCmd)
	rootCmd.AddCommand(versionCmd)

	pf := rootCmd.PersistentFlags()
	pf.String("color", "auto", "colorize output (auto|on|off)")
	pf.Bool("timings", false, "show timing information")
	pf.Int("max-diagnostics", 100, "maximum number of diagnostics to show")
	pf.String("diag-format", "pretty", "diagnostics format (pretty|json)")
	pf.String("config", "", "TOML options file")
	pf.String("trace", "", "trace output file (- for stderr)")
	pf.String("trace-level", "off", "trace level (off|error|phase|detail|debug)")
	pf.String("trace-mode", "stream", "trace storage mode (stream|ring|both)")
	pf.Int("trace-ring-size", 4096, "events kept by the ring tracer")
	pf.String("cpu-profile", "", "write a CPU profile to this file")
	pf.String("mem-profile", "", "write a heap profile to this file on exit")
	pf.String("runtime-trace", "", "write a Go runtime trace to this file")

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func isTerminal(f *os.File) bool {
	return term.IsTerminal(int(f.Fd()))
}
