package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"tapgen/internal/driver"
)

var inspectCmd = &cobra.Command{
	Use:   "inspect [flags] <program.yaml|program.tapb|->",
	Short: "Show per-unit analysis results without writing a module",
	Long: `inspect runs every analysis and prints what it decided for each probe and
function: action counts and budget mode, lock sets and placement, handler
fingerprints and aliases, plus the container signatures and printf routines
the module would contain.`,
	Args: cobra.ExactArgs(1),
	RunE: runInspect,
}

func init() {
	addTranslateFlags(inspectCmd)
	inspectCmd.Flags().String("format", "text", "output format (text|yaml)")
}

func runInspect(cmd *cobra.Command, args []string) error {
	format, _ := cmd.Flags().GetString("format")
	format = strings.ToLower(format)
	if format != "text" && format != "yaml" {
		return fmt.Errorf("unsupported format %q (must be text or yaml)", format)
	}
	stopProfiles, err := setupProfiling(cmd)
	if err != nil {
		return err
	}
	defer stopProfiles()
	cleanup, err := setupTracing(cmd)
	if err != nil {
		return err
	}
	defer cleanup()

	prog, err := readProgram(cmd, args[0])
	if err != nil {
		return err
	}
	opts, err := loadOptions(cmd)
	if err != nil {
		return err
	}
	dopts, err := driverOptions(cmd)
	if err != nil {
		return err
	}
	rep, err := driver.Inspect(cmd.Context(), prog, opts, dopts...)
	if err != nil {
		return err
	}
	if err := renderDiagnostics(cmd, rep.Diags); err != nil {
		return err
	}
	if format == "yaml" {
		err = rep.WriteYAML(cmd.OutOrStdout())
	} else {
		err = rep.WriteText(cmd.OutOrStdout())
	}
	if err != nil {
		return err
	}
	if timings, _ := cmd.Root().PersistentFlags().GetBool("timings"); timings {
		fmt.Fprint(cmd.ErrOrStderr(), rep.Timings.Summary())
	}
	if rep.Failed {
		return errTranslationFailed
	}
	return nil
}
