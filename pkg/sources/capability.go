package sources

import (
	"time"

	"github.com/agentstation/taxamap/pkg/constants"
	"github.com/agentstation/taxamap/pkg/types"
)

// Param describes one capability argument.
type Param struct {
	Name        string `json:"name"`
	Type        string `json:"type"` // "string" or "integer"
	Description string `json:"description"`
	Required    bool   `json:"required"`
}

// Schema is the static contract of a capability as shown to a reasoner.
type Schema struct {
	Capability  types.Capability `json:"capability"`
	Description string           `json:"description"`
	Params      []Param          `json:"params"`
	Sources     []types.SourceID `json:"sources,omitempty"` // filled per registry
}

// Required returns the names of the required params.
func (s Schema) Required() []string {
	var names []string
	for _, p := range s.Params {
		if p.Required {
			names = append(names, p.Name)
		}
	}
	return names
}

var nameParam = Param{Name: "name", Type: "string", Description: "Scientific name of the taxon.", Required: true}

// schemas holds the closed capability set.
var schemas = map[types.Capability]Schema{
	types.LookupByName: {
		Capability:  types.LookupByName,
		Description: "Resolve a scientific name to its accepted name, authority, rank, status, classification, synonyms and external identifiers.",
		Params:      []Param{nameParam},
	},
	types.GetOccurrences: {
		Capability:  types.GetOccurrences,
		Description: "Fetch georeferenced occurrence records (coordinates, event date, country).",
		Params: []Param{
			nameParam,
			{Name: "limit", Type: "integer", Description: "Maximum number of records."},
			{Name: "country", Type: "string", Description: "ISO 3166-1 alpha-2 country filter."},
		},
	},
	types.GetMedia: {
		Capability:  types.GetMedia,
		Description: "Fetch images of the taxon: field photographs or scientific figures and plates.",
		Params: []Param{
			nameParam,
			{Name: "limit", Type: "integer", Description: "Maximum number of images."},
		},
	},
	types.GetLiterature: {
		Capability:  types.GetLiterature,
		Description: "Search scientific literature about the taxon; returns citations, abstracts and a relevance score.",
		Params: []Param{
			nameParam,
			{Name: "limit", Type: "integer", Description: "Maximum number of references."},
		},
	},
	types.GetMorphology: {
		Capability:  types.GetMorphology,
		Description: "Fetch a descriptive morphology and habitat text for the taxon.",
		Params: []Param{
			nameParam,
			{Name: "algaebase_id", Type: "string", Description: "AlgaeBase species id, as returned in external identifiers by lookup_by_name."},
		},
	},
}

// defaultTimeouts holds the per-capability default timeout.
var defaultTimeouts = map[types.Capability]time.Duration{
	types.LookupByName:   constants.LookupTimeout,
	types.GetOccurrences: constants.OccurrencesTimeout,
	types.GetMedia:       constants.MediaTimeout,
	types.GetLiterature:  constants.LiteratureTimeout,
	types.GetMorphology:  constants.MorphologyTimeout,
}

// SchemaFor returns the static schema of a capability.
func SchemaFor(c types.Capability) (Schema, bool) {
	s, ok := schemas[c]
	return s, ok
}

// DefaultTimeout returns the default timeout declared for a capability.
func DefaultTimeout(c types.Capability) time.Duration {
	return defaultTimeouts[c]
}
