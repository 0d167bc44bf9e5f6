package diag

import (
	"encoding/json"
	"io"
)

// LocationJSON is a source position in JSON output.
type LocationJSON struct {
	File string `json:"file"`
	Line uint32 `json:"line,omitempty"`
	Col  uint32 `json:"col,omitempty"`
}

type NoteJSON struct {
	Message  string       `json:"message"`
	Location LocationJSON `json:"location"`
}

// DiagnosticJSON is one diagnostic in JSON output.
type DiagnosticJSON struct {
	Severity string       `json:"severity"`
	Code     string       `json:"code"`
	Title    string       `json:"title,omitempty"`
	Message  string       `json:"message"`
	Location LocationJSON `json:"location"`
	Notes    []NoteJSON   `json:"notes,omitempty"`
}

// DiagnosticsOutput is the root of the JSON document.
type DiagnosticsOutput struct {
	Diagnostics []DiagnosticJSON `json:"diagnostics"`
	Count       int              `json:"count"`
	Errors      int              `json:"errors"`
}

// BuildJSON converts diags; max > 0 truncates the list, Count keeps the
// full number.
func BuildJSON(diags []Diagnostic, max int) DiagnosticsOutput {
	n := len(diags)
	if max > 0 && max < n {
		n = max
	}
	out := DiagnosticsOutput{Diagnostics: make([]DiagnosticJSON, 0, n), Count: len(diags)}
	for i, d := range diags {
		if d.Severity >= SevError {
			out.Errors++
		}
		if i >= n {
			continue
		}
		dj := DiagnosticJSON{
			Severity: d.Severity.String(),
			Code:     d.Code.ID(),
			Title:    d.Code.Title(),
			Message:  d.Message,
			Location: LocationJSON{File: d.Primary.File, Line: d.Primary.Line, Col: d.Primary.Col},
		}
		for _, note := range d.Notes {
			dj.Notes = append(dj.Notes, NoteJSON{
				Message:  note.Msg,
				Location: LocationJSON{File: note.Pos.File, Line: note.Pos.Line, Col: note.Pos.Col},
			})
		}
		out.Diagnostics = append(out.Diagnostics, dj)
	}
	return out
}

// RenderJSON writes diags as one indented JSON document.
func RenderJSON(w io.Writer, diags []Diagnostic, max int) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(BuildJSON(diags, max))
}
