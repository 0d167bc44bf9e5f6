package main

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"tapgen/internal/ast"
	"tapgen/internal/config"
	"tapgen/internal/driver"
	"tapgen/internal/tcache"
)

// addTranslateFlags registers the option overrides shared by translate and
// inspect.
func addTranslateFlags(cmd *cobra.Command) {
	f := cmd.Flags()
	f.String("compatible", "", "script compatibility version")
	f.Bool("unoptimized", false, "disable optimizations")
	f.Bool("legacy-printf", false, "use the runtime printf instead of compiled routines")
	f.Bool("suppress-time-limits", false, "do not enforce the action budget")
	f.Int("max-action", 0, "action budget per probe invocation")
	f.Int("jobs", 0, "units analyzed concurrently (0 = GOMAXPROCS)")
	f.Bool("no-cache", false, "do not read or write the translation cache")
	f.String("input-format", "yaml", "encoding of a program read from stdin (yaml|msgpack)")
}

// loadOptions applies --config and then the per-command overrides.
func loadOptions(cmd *cobra.Command) (config.Options, error) {
	path, err := cmd.Root().PersistentFlags().GetString("config")
	if err != nil {
		return config.Options{}, err
	}
	opts := config.Default()
	if path != "" {
		if opts, err = config.Load(path); err != nil {
			return config.Options{}, err
		}
	}
	f := cmd.Flags()
	if f.Changed("compatible") {
		opts.Compat.Version, _ = f.GetString("compatible")
	}
	if f.Changed("unoptimized") {
		opts.Compat.Unoptimized, _ = f.GetBool("unoptimized")
	}
	if f.Changed("legacy-printf") {
		opts.Compat.LegacyPrintf, _ = f.GetBool("legacy-printf")
	}
	if f.Changed("suppress-time-limits") {
		opts.Compat.SuppressTimeLimits, _ = f.GetBool("suppress-time-limits")
	}
	if f.Changed("max-action") {
		opts.Limits.MaxAction, _ = f.GetInt("max-action")
	}
	if err := opts.Validate(); err != nil {
		return config.Options{}, fmt.Errorf("invalid options: %w", err)
	}
	return opts, nil
}

// driverOptions collects the driver settings from flags.
func driverOptions(cmd *cobra.Command) ([]driver.Option, error) {
	maxDiags, err := cmd.Root().PersistentFlags().GetInt("max-diagnostics")
	if err != nil {
		return nil, err
	}
	jobs, err := cmd.Flags().GetInt("jobs")
	if err != nil {
		return nil, err
	}
	out := []driver.Option{driver.WithMaxDiagnostics(maxDiags), driver.WithJobs(jobs)}
	if noCache, _ := cmd.Flags().GetBool("no-cache"); !noCache {
		c, err := tcache.Open("tapgen")
		if err != nil {
			fmt.Fprintf(cmd.ErrOrStderr(), "warning: translation cache disabled: %v\n", err)
		} else {
			out = append(out, driver.WithCache(c))
		}
	}
	return out, nil
}

// readProgram decodes path, or stdin when path is "-". Stdin is YAML unless
// --input-format says otherwise.
func readProgram(cmd *cobra.Command, path string) (*ast.Program, error) {
	if path != "-" {
		return ast.DecodeProgram(path)
	}
	format := ast.FormatYAML
	if name, _ := cmd.Flags().GetString("input-format"); name == "msgpack" {
		format = ast.FormatMsgpack
	}
	data, err := io.ReadAll(os.Stdin)
	if err != nil {
		return nil, fmt.Errorf("read stdin: %w", err)
	}
	prog, err := ast.Decode(data, format)
	if err != nil {
		return nil, fmt.Errorf("<stdin>: %w", err)
	}
	return prog, nil
}
