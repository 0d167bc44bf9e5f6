// Package config holds translator options and the compatibility policy.
package config

import (
	"fmt"
	"strings"

	"golang.org/x/mod/semver"

	"tapgen/internal/version"
)

// Limits are the resource bounds baked into generated code.
type Limits struct {
	MaxAction     int `toml:"max_action"`
	MaxNesting    int `toml:"max_nesting"`
	MaxMapEntries int `toml:"max_map_entries"`
	MaxStringLen  int `toml:"max_string_len"`
	BufferSize    int `toml:"buffer_size"`
	BudgetFlush   int `toml:"budget_flush"`
	MaxDumpBytes  int `toml:"max_dump_bytes"`
}

// Compat selects version-dependent behavior.
type Compat struct {
	Version            string `toml:"version"`
	Unoptimized        bool   `toml:"unoptimized"`
	LegacyPrintf       bool   `toml:"legacy_printf"`
	SuppressTimeLimits bool   `toml:"suppress_time_limits"`
	ExposeParams       bool   `toml:"expose_params"`
}

// Policy lists the compatibility thresholds. They are data, not logic:
// a behavior is enabled when Compat.Version >= threshold.
type Policy struct {
	LockPushdownSince  string `toml:"lock_pushdown_since"`
	MangledLocalsSince string `toml:"mangled_locals_since"`
}

// Output configures names shared with external collaborators.
type Output struct {
	ModuleName  string `toml:"module_name"`
	UnwindTable string `toml:"unwind_table"`
}

// Options is the complete translator configuration.
type Options struct {
	Limits Limits `toml:"limits"`
	Compat Compat `toml:"compat"`
	Policy Policy `toml:"policy"`
	Output Output `toml:"output"`
}

// Default returns the options used when nothing is configured.
func Default() Options {
	return Options{
		Limits: Limits{
			MaxAction:     1000,
			MaxNesting:    10,
			MaxMapEntries: 2048,
			MaxStringLen:  128,
			BufferSize:    8192,
			BudgetFlush:   10,
			MaxDumpBytes:  1024,
		},
		Compat: Compat{
			Version:      version.ScriptCompat,
			ExposeParams: true,
		},
		Policy: Policy{
			LockPushdownSince:  "4.3",
			MangledLocalsSince: "1.8",
		},
		Output: Output{
			ModuleName:  "tapgen_module",
			UnwindTable: "_stp_module_table",
		},
	}
}

// Validate checks that limits are usable and versions parse.
func (o Options) Validate() error {
	l := o.Limits
	switch {
	case l.MaxAction <= 0:
		return fmt.Errorf("limits.max_action must be positive, got %d", l.MaxAction)
	case l.MaxNesting <= 0:
		return fmt.Errorf("limits.max_nesting must be positive, got %d", l.MaxNesting)
	case l.MaxMapEntries <= 0:
		return fmt.Errorf("limits.max_map_entries must be positive, got %d", l.MaxMapEntries)
	case l.MaxStringLen < 16:
		return fmt.Errorf("limits.max_string_len must be at least 16, got %d", l.MaxStringLen)
	case l.BufferSize < l.MaxStringLen:
		return fmt.Errorf("limits.buffer_size (%d) must not be smaller than max_string_len (%d)", l.BufferSize, l.MaxStringLen)
	case l.BudgetFlush <= 0:
		return fmt.Errorf("limits.budget_flush must be positive, got %d", l.BudgetFlush)
	case l.MaxDumpBytes <= 0:
		return fmt.Errorf("limits.max_dump_bytes must be positive, got %d", l.MaxDumpBytes)
	}
	for name, v := range map[string]string{
		"compat.version":              o.Compat.Version,
		"policy.lock_pushdown_since":  o.Policy.LockPushdownSince,
		"policy.mangled_locals_since": o.Policy.MangledLocalsSince,
	} {
		if !semver.IsValid(canonical(v)) {
			return fmt.Errorf("%s: invalid version %q", name, v)
		}
	}
	if strings.TrimSpace(o.Output.UnwindTable) == "" {
		return fmt.Errorf("output.unwind_table must not be empty")
	}
	return nil
}

// CompatAtLeast reports whether the selected compatibility level is at or
// above threshold.
func (o Options) CompatAtLeast(threshold string) bool {
	return CompareVersions(o.Compat.Version, threshold) >= 0
}

// PushdownEnabled reports whether lock pushdown applies. Below the policy
// threshold every probe locks at its outermost body boundary.
func (o Options) PushdownEnabled() bool {
	return o.CompatAtLeast(o.Policy.LockPushdownSince)
}

// MangleLocals reports whether locals get the l_ prefix.
func (o Options) MangleLocals() bool {
	return o.CompatAtLeast(o.Policy.MangledLocalsSince)
}

// CompareVersions compares dotted script versions ("1.8", "4.3.1").
// Unparseable versions sort lowest.
func CompareVersions(a, b string) int {
	return semver.Compare(canonical(a), canonical(b))
}

func canonical(v string) string {
	v = strings.TrimSpace(v)
	if v == "" {
		return ""
	}
	if !strings.HasPrefix(v, "v") {
		v = "v" + v
	}
	return v
}
