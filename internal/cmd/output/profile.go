package output

import (
	"io"

	"github.com/agentstation/taxamap/internal/cmd/table"
	"github.com/agentstation/taxamap/pkg/taxa"
)

// Profile writes one resolved profile. Table formats show the property
// view; JSON and YAML write the full profile with its child records.
func Profile(w io.Writer, format Format, p *taxa.Profile) error {
	if format.IsTable() {
		return NewFormatter(format).Format(w, table.ProfileToTableData(p, format == FormatWide))
	}
	return NewFormatter(format).Format(w, p)
}

// Resolutions writes the results of a batch resolve. Structured formats
// carry the profile or the error message for each query.
func Resolutions(w io.Writer, format Format, results []table.Resolution) error {
	if format.IsTable() {
		return NewFormatter(format).Format(w, table.ResolutionsToTableData(results))
	}

	type entry struct {
		Query   string        `json:"query" yaml:"query"`
		Profile *taxa.Profile `json:"profile,omitempty" yaml:"profile,omitempty"`
		Error   string        `json:"error,omitempty" yaml:"error,omitempty"`
	}
	out := make([]entry, len(results))
	for i, r := range results {
		out[i] = entry{Query: r.Query, Profile: r.Profile}
		if r.Err != nil {
			out[i].Error = r.Err.Error()
		}
	}
	return NewFormatter(format).Format(w, out)
}

// Provenance writes the per-field sources of an entity.
func Provenance(w io.Writer, format Format, e *taxa.Entity, fields []string) error {
	if format.IsTable() {
		return NewFormatter(format).Format(w, table.ProvenanceToTableData(e.Provenance, fields))
	}
	filtered := make(map[string]taxa.FieldSource, len(e.Provenance))
	for field, fs := range e.Provenance {
		if table.MatchField(field, fields) {
			filtered[field] = fs
		}
	}
	return NewFormatter(format).Format(w, filtered)
}

// Captures writes raw captures, oldest first.
func Captures(w io.Writer, format Format, captures []taxa.RawCapture) error {
	if format.IsTable() {
		return NewFormatter(format).Format(w, table.CapturesToTableData(captures))
	}
	if captures == nil {
		captures = []taxa.RawCapture{}
	}
	return NewFormatter(format).Format(w, captures)
}
