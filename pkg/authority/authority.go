// Package authority holds the source priority table used to resolve
// field-level conflicts between sources. The table is a required
// configuration input: there is no built-in ordering.
package authority

import (
	"os"
	"path/filepath"
	"slices"

	"github.com/goccy/go-yaml"

	"github.com/agentstation/taxamap/pkg/errors"
	"github.com/agentstation/taxamap/pkg/types"
)

// Field defines a source's priority for one field path pattern.
type Field struct {
	Path     string         `json:"path" yaml:"path"`         // e.g. "classification.*", "morphology.description", "*"
	Source   types.SourceID `json:"source" yaml:"source"`     // Source the entry applies to
	Priority int            `json:"priority" yaml:"priority"` // Priority (higher = more authoritative)
}

// Table is an immutable priority table.
type Table struct {
	fields []Field
}

// file is the on-disk layout of a priority table.
type file struct {
	Authorities []Field `yaml:"authorities"`
}

// New validates fields and builds a table.
func New(fields []Field) (*Table, error) {
	if len(fields) == 0 {
		return nil, errors.NewValidationError("authorities", nil, "priority table is empty")
	}
	for i, f := range fields {
		if f.Path == "" {
			return nil, errors.NewValidationError("authorities.path", i, "path is required")
		}
		if f.Source == "" {
			return nil, errors.NewValidationError("authorities.source", i, "source is required")
		}
		if f.Priority < 0 {
			return nil, errors.NewValidationError("authorities.priority", f.Priority, "priority must not be negative")
		}
		if _, err := filepath.Match(f.Path, ""); err != nil {
			return nil, errors.NewValidationError("authorities.path", f.Path, err.Error())
		}
	}
	return &Table{fields: slices.Clone(fields)}, nil
}

// Parse reads a YAML priority table.
func Parse(data []byte) (*Table, error) {
	var f file
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, errors.WrapParse("yaml", "", err)
	}
	return New(f.Authorities)
}

// Load reads a YAML priority table from path.
func Load(path string) (*Table, error) {
	if path == "" {
		return nil, errors.NewConfigError("authority", "priority table path is required", nil)
	}
	data, err := os.ReadFile(path) //nolint:gosec // path comes from operator configuration
	if err != nil {
		return nil, errors.NewConfigError("authority", "reading priority table "+path, err)
	}
	t, err := Parse(data)
	if err != nil {
		return nil, errors.NewConfigError("authority", "invalid priority table "+path, err)
	}
	return t, nil
}

// Priority returns the priority of source for field. Sources with no
// matching entry rank 0, below every listed source.
func (t *Table) Priority(field string, source types.SourceID) int {
	if t == nil {
		return 0
	}
	var matching []Field
	for _, f := range t.fields {
		if f.Source == source {
			matching = append(matching, f)
		}
	}
	if best := ByField(field, matching); best != nil {
		return best.Priority
	}
	return 0
}

// Fields returns a copy of the table entries.
func (t *Table) Fields() []Field {
	return slices.Clone(t.fields)
}

// ByField returns the most specific matching authority for a field path.
// Specificity is pattern length; among equally specific patterns the higher
// priority wins.
func ByField(fieldPath string, authorities []Field) *Field {
	var bestMatch *Field
	bestLength := -1

	for i, auth := range authorities {
		if !MatchesPattern(fieldPath, auth.Path) {
			continue
		}
		length := len(auth.Path)
		if length > bestLength || (length == bestLength && auth.Priority > bestMatch.Priority) {
			bestMatch = &authorities[i]
			bestLength = length
		}
	}

	return bestMatch
}

// MatchesPattern checks if a field path matches a pattern (supports * wildcards)
func MatchesPattern(fieldPath, pattern string) bool {
	if fieldPath == pattern || pattern == "*" {
		return true
	}

	if len(pattern) > 0 && pattern[len(pattern)-1] == '*' {
		prefix := pattern[:len(pattern)-1]
		return len(fieldPath) >= len(prefix) && fieldPath[:len(prefix)] == prefix
	}

	matched, err := filepath.Match(pattern, fieldPath)
	if err != nil {
		return false
	}
	return matched
}
