package driver

import (
	"context"
	"fmt"
	"io"
	"strings"

	"gopkg.in/yaml.v3"

	"tapgen/internal/ast"
	"tapgen/internal/budget"
	"tapgen/internal/codegen"
	"tapgen/internal/config"
	"tapgen/internal/diag"
	"tapgen/internal/observ"
	"tapgen/internal/tcache"
)

// UnitReport is what the analyses decided for one unit.
type UnitReport struct {
	Name        string   `yaml:"name"`
	Kind        string   `yaml:"kind"`
	Count       string   `yaml:"count"`
	Mode        string   `yaml:"mode"`
	Locks       []string `yaml:"locks,omitempty"`
	Obligations int      `yaml:"obligations,omitempty"`
	Fallback    bool     `yaml:"fallback,omitempty"`
	Fingerprint string   `yaml:"fingerprint,omitempty"`
	AliasOf     string   `yaml:"alias_of,omitempty"`
	Slots       int      `yaml:"slots"`
	Failed      bool     `yaml:"failed,omitempty"`
}

// PrintfReport names one compiled format routine.
type PrintfReport struct {
	Name   string `yaml:"name"`
	Stream bool   `yaml:"stream,omitempty"`
	Format string `yaml:"format"`
}

// Report is the inspection of a program: the per-unit plan, the container
// signatures and format routines the module would contain.
type Report struct {
	Units   []UnitReport      `yaml:"units"`
	Sigs    []string          `yaml:"signatures,omitempty"`
	Printfs []PrintfReport    `yaml:"printfs,omitempty"`
	Diags   []diag.Diagnostic `yaml:"-"`
	Failed  bool              `yaml:"failed,omitempty"`
	Timings observ.Report     `yaml:"-"`
}

// Inspect translates prog without producing a module and reports the
// decisions each pass made.
func Inspect(ctx context.Context, prog *ast.Program, opts config.Options, options ...Option) (*Report, error) {
	res, err := Translate(ctx, prog, opts, options...)
	if err != nil {
		return nil, err
	}
	rep := &Report{
		Sigs:    res.Sigs,
		Diags:   res.Bag.Items(),
		Failed:  res.Failed,
		Timings: res.Timings,
	}
	for _, p := range res.Printfs {
		rep.Printfs = append(rep.Printfs, PrintfReport(p))
	}
	if len(res.Units) == 0 {
		return rep, nil
	}

	// Locks and fingerprints are not kept in the module stats; plan again.
	units := prog.Units()
	in, err := codegen.Prepare(prog, opts, diag.NopReporter{})
	if err != nil {
		return nil, fmt.Errorf("driver: %w", err)
	}
	for i, st := range res.Units {
		ur := UnitReport{
			Name:        st.Name,
			Kind:        "probe",
			Count:       countString(st.Count),
			Mode:        st.Mode.String(),
			Obligations: st.Obligations,
			Fallback:    st.Fallback,
			Slots:       st.Slots,
			Failed:      st.Failed,
		}
		if i < len(units) && units[i].Kind == ast.UnitFunction {
			ur.Kind = "function"
		}
		if i < len(in.Plans) {
			plan := in.Plans[i]
			for _, l := range plan.Locks {
				mode := "read"
				if l.Write {
					mode = "write"
				}
				ur.Locks = append(ur.Locks, l.Name+" "+mode)
			}
			if plan.Fingerprint != "" {
				k, err := tcache.NewKey([]byte(plan.Fingerprint))
				if err != nil {
					return nil, fmt.Errorf("driver: %w", err)
				}
				ur.Fingerprint = k.String()[:16]
			}
		}
		if st.AliasOf >= 0 {
			ur.AliasOf = fmt.Sprintf("probe_%d", st.AliasOf)
		}
		rep.Units = append(rep.Units, ur)
	}
	return rep, nil
}

func countString(n int) string {
	if n == budget.Unbounded {
		return "unbounded"
	}
	return fmt.Sprint(n)
}

// WriteYAML encodes the report.
func (r *Report) WriteYAML(w io.Writer) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(r); err != nil {
		return err
	}
	return enc.Close()
}

// WriteText renders the report as an aligned table.
func (r *Report) WriteText(w io.Writer) error {
	var sb strings.Builder
	width := len("unit")
	for _, u := range r.Units {
		width = max(width, len(u.Name))
	}
	fmt.Fprintf(&sb, "%-*s  %-8s  %-9s  %-11s  %s\n", width, "unit", "kind", "count", "mode", "locks")
	for _, u := range r.Units {
		locks := strings.Join(u.Locks, ", ")
		if u.Fallback {
			locks += " (whole body)"
		}
		if u.AliasOf != "" {
			locks = "shares " + u.AliasOf
		}
		fmt.Fprintf(&sb, "%-*s  %-8s  %-9s  %-11s  %s\n", width, u.Name, u.Kind, u.Count, u.Mode, strings.TrimSpace(locks))
	}
	if len(r.Sigs) > 0 {
		sb.WriteString("\nsignatures:\n")
		for _, s := range r.Sigs {
			fmt.Fprintf(&sb, "  %s\n", s)
		}
	}
	if len(r.Printfs) > 0 {
		sb.WriteString("\nprintf routines:\n")
		for _, p := range r.Printfs {
			fmt.Fprintf(&sb, "  %s %q\n", p.Name, p.Format)
		}
	}
	_, err := io.WriteString(w, sb.String())
	return err
}
