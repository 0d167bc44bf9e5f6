package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"tapgen/internal/ast"
	"tapgen/internal/driver"
)

var errTranslationFailed = errors.New("translation failed")

var translateCmd = &cobra.Command{
	Use:   "translate [flags] <program.yaml|program.tapb|->",
	Short: "Generate the module source for an elaborated program",
	Args:  cobra.ExactArgs(1),
	RunE:  runTranslate,
}

func init() {
	addTranslateFlags(translateCmd)
	translateCmd.Flags().StringP("output", "o", "", "write the module to this file instead of stdout")
	translateCmd.Flags().String("ui", "auto", "progress UI (auto|on|off)")
}

func runTranslate(cmd *cobra.Command, args []string) error {
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
	outPath, _ := cmd.Flags().GetString("output")
	uiValue, _ := cmd.Flags().GetString("ui")
	mode, err := readUIMode(uiValue)
	if err != nil {
		return err
	}

	var res *driver.Result
	if shouldUseTUI(mode, outPath == "") {
		res, err = runTranslateWithUI(cmd.Context(), "translate "+args[0], unitNames(prog), prog, opts, dopts)
	} else {
		res, err = driver.Translate(cmd.Context(), prog, opts, dopts...)
	}
	if err != nil {
		return err
	}

	if err := renderDiagnostics(cmd, res.Bag.Items()); err != nil {
		return err
	}
	if timings, _ := cmd.Root().PersistentFlags().GetBool("timings"); timings {
		printTimings(cmd.ErrOrStderr(), res)
	}
	if res.Failed {
		return errTranslationFailed
	}

	if outPath == "" {
		_, err = fmt.Fprint(cmd.OutOrStdout(), res.Text)
		return err
	}
	if err := os.WriteFile(outPath, []byte(res.Text), 0o644); err != nil {
		return fmt.Errorf("write %s: %w", outPath, err)
	}
	return nil
}

func unitNames(prog *ast.Program) []string {
	units := prog.Units()
	names := make([]string, 0, len(units))
	for _, u := range units {
		names = append(names, u.Name())
	}
	return names
}
