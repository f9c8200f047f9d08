// Package provenance records, per entity field, which source values were
// considered during a merge, which one won and why.
package provenance

import (
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/agentstation/taxamap/pkg/types"
)

// Provenance is one candidate value for a field.
type Provenance struct {
	Source        types.SourceID `json:"source" yaml:"source"`
	Field         string         `json:"field" yaml:"field"`
	Value         string         `json:"value" yaml:"value"`
	Timestamp     time.Time      `json:"timestamp" yaml:"timestamp"` // fetch time of the capture that carried the value
	Priority      int            `json:"priority" yaml:"priority"`
	Reason        string         `json:"reason,omitempty" yaml:"reason,omitempty"`
	PreviousValue string         `json:"previous_value,omitempty" yaml:"previous_value,omitempty"`
}

// Map tracks provenance for the fields of one entity, keyed by field path.
type Map map[string][]Provenance

// Tracker manages provenance tracking during a merge.
type Tracker interface {
	// Track records provenance for a field
	Track(field string, p Provenance)

	// FindByField retrieves provenance for a specific field
	FindByField(field string) []Provenance

	// Map returns a copy of the complete provenance map
	Map() Map

	// Clear removes all provenance data
	Clear()
}

// tracker is the default implementation.
type tracker struct {
	mu         sync.Mutex
	provenance Map
	enabled    bool
}

// NewTracker creates a new provenance tracker. A disabled tracker records nothing.
func NewTracker(enabled bool) Tracker {
	return &tracker{
		provenance: make(Map),
		enabled:    enabled,
	}
}

// Track records provenance for a field.
func (p *tracker) Track(field string, history Provenance) {
	if !p.enabled {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	history.Field = field
	p.provenance[field] = append(p.provenance[field], history)
}

// FindByField retrieves provenance for a specific field.
func (p *tracker) FindByField(field string) []Provenance {
	if !p.enabled {
		return nil
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]Provenance(nil), p.provenance[field]...)
}

// Map returns the complete provenance map.
func (p *tracker) Map() Map {
	if !p.enabled {
		return nil
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	result := make(Map, len(p.provenance))
	for k, v := range p.provenance {
		result[k] = append([]Provenance{}, v...)
	}
	return result
}

// Clear removes all provenance data.
func (p *tracker) Clear() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.provenance = make(Map)
}

// ConflictInfo describes a field where sources disagreed and how it was settled.
type ConflictInfo struct {
	Field          string           `json:"field" yaml:"field"`
	Sources        []types.SourceID `json:"sources" yaml:"sources"`
	Values         []string         `json:"values" yaml:"values"`
	Resolution     string           `json:"resolution" yaml:"resolution"`
	SelectedSource types.SourceID   `json:"selected_source" yaml:"selected_source"`
	SelectedValue  string           `json:"selected_value" yaml:"selected_value"`
}

// Report is a human-readable view of a provenance map.
type Report struct {
	EntityID string
	Fields   map[string]Field
}

// Field contains provenance history for a single field.
type Field struct {
	Current   Provenance   // winning value; Reason is non-empty on the winner
	History   []Provenance // every candidate, newest first
	Conflicts []ConflictInfo
}

// GenerateReport creates a report for one entity. The winner of a field is
// the candidate carrying a Reason.
func GenerateReport(entityID string, provenance Map, conflicts []ConflictInfo) *Report {
	report := &Report{EntityID: entityID, Fields: make(map[string]Field, len(provenance))}

	byField := make(map[string][]ConflictInfo)
	for _, c := range conflicts {
		byField[c.Field] = append(byField[c.Field], c)
	}

	for field, infos := range provenance {
		infos = append([]Provenance(nil), infos...)
		sort.SliceStable(infos, func(i, j int) bool {
			return infos[i].Timestamp.After(infos[j].Timestamp)
		})
		f := Field{History: infos, Conflicts: byField[field]}
		for _, info := range infos {
			if info.Reason != "" {
				f.Current = info
				break
			}
		}
		report.Fields[field] = f
	}
	return report
}

// String generates a string representation of the provenance report.
func (r *Report) String() string {
	var sb strings.Builder

	sb.WriteString("Provenance Report\n")
	sb.WriteString("=================\n\n")
	if r.EntityID != "" {
		fmt.Fprintf(&sb, "entity: %s\n", r.EntityID)
		sb.WriteString(strings.Repeat("-", 40))
		sb.WriteString("\n")
	}

	fieldKeys := make([]string, 0, len(r.Fields))
	for field := range r.Fields {
		fieldKeys = append(fieldKeys, field)
	}
	sort.Strings(fieldKeys)

	for _, field := range fieldKeys {
		fieldProv := r.Fields[field]
		fmt.Fprintf(&sb, "  %s:\n", field)
		fmt.Fprintf(&sb, "    Current: %s (from %s)\n", fieldProv.Current.Value, fieldProv.Current.Source)

		if len(fieldProv.Conflicts) > 0 {
			sb.WriteString("    Conflicts:\n")
			for _, conflict := range fieldProv.Conflicts {
				fmt.Fprintf(&sb, "      - Sources: %v\n", conflict.Sources)
				fmt.Fprintf(&sb, "        Selected: %s\n", conflict.SelectedSource)
				fmt.Fprintf(&sb, "        Reason: %s\n", conflict.Resolution)
			}
		}

		if len(fieldProv.History) > 1 {
			sb.WriteString("    History:\n")
			for i, info := range fieldProv.History {
				if i > 3 {
					fmt.Fprintf(&sb, "      ... and %d more\n", len(fieldProv.History)-i)
					break
				}
				fmt.Fprintf(&sb, "      - %s from %s at %s\n",
					info.Value, info.Source, info.Timestamp.Format(time.RFC3339))
			}
		}
	}

	return sb.String()
}
