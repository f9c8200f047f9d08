package table

import (
	"fmt"
	"path/filepath"
	"slices"
	"sort"
	"strconv"
	"strings"

	"github.com/agentstation/taxamap/internal/cmd/emoji"
	"github.com/agentstation/taxamap/pkg/taxa"
)

// morphologyWidth limits the morphology text in the narrow profile view.
const morphologyWidth = 80

// ProfileToTableData converts a profile to a property/value table.
// The wide view adds provenance counts and the full morphology text.
func ProfileToTableData(p *taxa.Profile, wide bool) Data {
	headers := []string{"Property", "Value"}
	if p == nil || p.Entity == nil {
		return Data{Headers: headers}
	}
	e := p.Entity

	morphology := e.Morphology.Description
	if !wide {
		morphology = truncate(morphology, morphologyWidth)
	}

	rows := [][]string{
		{"ID", e.ID},
		{"Scientific Name", e.ScientificName},
		{"Authority", orDash(e.Authority)},
		{"Rank", orDash(e.Rank)},
		{"Status", orDash(string(e.Status))},
		{"Accepted Name", orDash(e.AcceptedName)},
		{"Classification", orDash(classificationPath(e.Classification))},
		{"Synonyms", orDash(strings.Join(e.Synonyms, ", "))},
		{"External IDs", orDash(externalIDs(e))},
		{"Habitat", orDash(e.Ecology.Habitat)},
		{"Environments", orDash(environments(e.Ecology))},
		{"Morphology", orDash(morphology)},
		{"Distributions", strconv.Itoa(len(p.Distributions))},
		{"Literature", strconv.Itoa(len(p.Literature))},
		{"Media", strconv.Itoa(len(p.Media))},
		{"Completeness", fmt.Sprintf("%.0f%%", p.Completeness*100)},
		{"Origin", origin(p)},
	}
	if wide {
		rows = append(rows,
			[]string{"Morphology Source", orDash(e.Morphology.SourceURL)},
			[]string{"Tracked Fields", strconv.Itoa(len(e.Provenance))},
			[]string{"Updated", formatTimestamp(e.UpdatedAt.Time)},
		)
	}

	return Data{
		Headers:         headers,
		Rows:            rows,
		ColumnAlignment: []Align{AlignLeft, AlignLeft},
	}
}

// Resolution is the outcome of resolving one query from the command line.
type Resolution struct {
	Query   string
	Profile *taxa.Profile
	Err     error
}

// ResolutionsToTableData converts the results of a batch resolve to one row per query.
func ResolutionsToTableData(results []Resolution) Data {
	rows := make([][]string, 0, len(results))
	for _, r := range results {
		if r.Err != nil || r.Profile == nil || r.Profile.Entity == nil {
			msg := "no result"
			if r.Err != nil {
				msg = r.Err.Error()
			}
			rows = append(rows, []string{r.Query, "-", "-", "-", emoji.Error + " " + msg})
			continue
		}
		p := r.Profile
		rows = append(rows, []string{
			r.Query,
			p.Entity.ScientificName,
			p.Entity.ID,
			fmt.Sprintf("%.0f%%", p.Completeness*100),
			emoji.Success + " " + origin(p),
		})
	}
	return Data{
		Headers: []string{"Query", "Scientific Name", "ID", "Completeness", "Origin"},
		Rows:    rows,
		ColumnAlignment: []Align{
			AlignLeft,  // Query
			AlignLeft,  // Scientific Name
			AlignLeft,  // ID
			AlignRight, // Completeness
			AlignLeft,  // Origin
		},
	}
}

// ProvenanceToTableData converts the per-field sources of an entity to a
// table, keeping only fields matching patterns.
func ProvenanceToTableData(prov map[string]taxa.FieldSource, patterns []string) Data {
	fields := make([]string, 0, len(prov))
	for field := range prov {
		if MatchField(field, patterns) {
			fields = append(fields, field)
		}
	}
	sort.Strings(fields)

	rows := make([][]string, 0, len(fields))
	for _, field := range fields {
		fs := prov[field]
		rows = append(rows, []string{field, string(fs.Source), formatTimestamp(fs.FetchedAt.Time)})
	}

	return Data{
		Headers:         []string{"Field", "Source", "Fetched"},
		Rows:            rows,
		ColumnAlignment: []Align{AlignLeft, AlignLeft, AlignLeft},
	}
}

// CapturesToTableData converts raw captures to a table, oldest first.
func CapturesToTableData(captures []taxa.RawCapture) Data {
	rows := make([][]string, 0, len(captures))
	for _, c := range captures {
		rows = append(rows, []string{
			c.ID,
			string(c.Source),
			string(c.Capability),
			c.QueryKey,
			formatTimestamp(c.FetchedAt.Time),
			strconv.Itoa(len(c.Payload)),
			orDash(strings.Join(c.Retracted, ", ")),
		})
	}
	return Data{
		Headers: []string{"ID", "Source", "Capability", "Query Key", "Fetched", "Bytes", "Retracted"},
		Rows:    rows,
		ColumnAlignment: []Align{
			AlignLeft,  // ID
			AlignLeft,  // Source
			AlignLeft,  // Capability
			AlignLeft,  // Query Key
			AlignLeft,  // Fetched
			AlignRight, // Bytes
			AlignLeft,  // Retracted
		},
	}
}

// MatchField checks if a field matches any of the provided patterns.
// Supports wildcard matching (e.g., "ecology.*" matches "ecology.marine").
// Matching is case-insensitive.
func MatchField(field string, patterns []string) bool {
	if len(patterns) == 0 {
		return true
	}

	fieldLower := strings.ToLower(field)
	for _, pattern := range patterns {
		patternLower := strings.ToLower(pattern)

		if matched, err := filepath.Match(patternLower, fieldLower); err == nil && matched {
			return true
		}

		if prefix, ok := strings.CutSuffix(patternLower, ".*"); ok {
			if strings.HasPrefix(fieldLower, prefix+".") || fieldLower == prefix {
				return true
			}
		}
	}
	return false
}

func classificationPath(c taxa.Classification) string {
	var parts []string
	for _, rank := range []string{c.Kingdom, c.Phylum, c.Class, c.Order, c.Family, c.Genus} {
		if rank != "" {
			parts = append(parts, rank)
		}
	}
	return strings.Join(parts, " > ")
}

func externalIDs(e *taxa.Entity) string {
	parts := make([]string, 0, len(e.ExternalIDs))
	for source, id := range e.ExternalIDs {
		parts = append(parts, string(source)+":"+id)
	}
	slices.Sort(parts)
	return strings.Join(parts, ", ")
}

func environments(eco taxa.Ecology) string {
	var envs []string
	for _, f := range []struct {
		name string
		v    *bool
	}{
		{"marine", eco.Marine},
		{"brackish", eco.Brackish},
		{"freshwater", eco.Freshwater},
		{"terrestrial", eco.Terrestrial},
	} {
		if f.v != nil && *f.v {
			envs = append(envs, f.name)
		}
	}
	return strings.Join(envs, ", ")
}

func origin(p *taxa.Profile) string {
	switch {
	case p.FromStore:
		return "store"
	case p.Partial:
		return "research (partial)"
	default:
		return "research"
	}
}
