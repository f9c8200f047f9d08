package taxa

import (
	"maps"
	"slices"
	"strconv"

	"github.com/agentstation/utc"

	"github.com/agentstation/taxamap/pkg/types"
)

// Status is the nomenclatural status of a name.
type Status string

// Statuses.
const (
	StatusAccepted Status = "accepted"
	StatusSynonym  Status = "synonym"
)

// Classification is the full classification path of an entity.
type Classification struct {
	Kingdom string `json:"kingdom,omitempty" yaml:"kingdom,omitempty"`
	Phylum  string `json:"phylum,omitempty" yaml:"phylum,omitempty"`
	Class   string `json:"class,omitempty" yaml:"class,omitempty"`
	Order   string `json:"order,omitempty" yaml:"order,omitempty"`
	Family  string `json:"family,omitempty" yaml:"family,omitempty"`
	Genus   string `json:"genus,omitempty" yaml:"genus,omitempty"`
}

// Morphology holds descriptive morphology text.
type Morphology struct {
	Description string `json:"description,omitempty" yaml:"description,omitempty"`
	SourceURL   string `json:"source_url,omitempty" yaml:"source_url,omitempty"`
}

// Ecology holds habitat information. Nil flags are unknown, not false.
type Ecology struct {
	Habitat     string `json:"habitat,omitempty" yaml:"habitat,omitempty"`
	Marine      *bool  `json:"marine,omitempty" yaml:"marine,omitempty"`
	Brackish    *bool  `json:"brackish,omitempty" yaml:"brackish,omitempty"`
	Freshwater  *bool  `json:"freshwater,omitempty" yaml:"freshwater,omitempty"`
	Terrestrial *bool  `json:"terrestrial,omitempty" yaml:"terrestrial,omitempty"`
}

// FieldSource records which source supplied a field value and when it was fetched.
type FieldSource struct {
	Source    types.SourceID `json:"source" yaml:"source"`
	FetchedAt utc.Time       `json:"fetched_at" yaml:"fetched_at"`
}

// Entity is one canonical taxonomic unit.
type Entity struct {
	ID             string                    `json:"id" yaml:"id"`
	ScientificName string                    `json:"scientific_name" yaml:"scientific_name"`
	Authority      string                    `json:"authority,omitempty" yaml:"authority,omitempty"`
	Rank           string                    `json:"rank,omitempty" yaml:"rank,omitempty"`
	Status         Status                    `json:"status,omitempty" yaml:"status,omitempty"`
	AcceptedName   string                    `json:"accepted_name,omitempty" yaml:"accepted_name,omitempty"`
	Classification Classification            `json:"classification" yaml:"classification"`
	Synonyms       []string                  `json:"synonyms,omitempty" yaml:"synonyms,omitempty"`
	ExternalIDs    map[types.SourceID]string `json:"external_ids,omitempty" yaml:"external_ids,omitempty"`
	Morphology     Morphology                `json:"morphology" yaml:"morphology"`
	Ecology        Ecology                   `json:"ecology" yaml:"ecology"`
	Provenance     map[string]FieldSource    `json:"provenance,omitempty" yaml:"provenance,omitempty"`
	CreatedAt      utc.Time                  `json:"created_at" yaml:"created_at"`
	UpdatedAt      utc.Time                  `json:"updated_at" yaml:"updated_at"`
}

// Clone returns a deep copy of e.
func (e *Entity) Clone() *Entity {
	if e == nil {
		return nil
	}
	out := *e
	out.Synonyms = slices.Clone(e.Synonyms)
	out.ExternalIDs = maps.Clone(e.ExternalIDs)
	out.Provenance = maps.Clone(e.Provenance)
	out.Ecology.Marine = cloneBool(e.Ecology.Marine)
	out.Ecology.Brackish = cloneBool(e.Ecology.Brackish)
	out.Ecology.Freshwater = cloneBool(e.Ecology.Freshwater)
	out.Ecology.Terrestrial = cloneBool(e.Ecology.Terrestrial)
	return &out
}

// Names returns every name that should index this entity: the scientific
// name, the accepted name and all synonyms.
func (e *Entity) Names() []string {
	names := make([]string, 0, len(e.Synonyms)+2)
	if e.ScientificName != "" {
		names = append(names, e.ScientificName)
	}
	if e.AcceptedName != "" {
		names = append(names, e.AcceptedName)
	}
	return append(names, e.Synonyms...)
}

// Field is one addressable scalar entity field.
type Field struct {
	Path string
	Get  func(*Entity) string
	Set  func(*Entity, string)
}

// Field paths.
const (
	FieldScientificName = "scientific_name"
	FieldAuthority      = "authority"
	FieldRank           = "rank"
	FieldStatus         = "status"
	FieldAcceptedName   = "accepted_name"
	FieldKingdom        = "classification.kingdom"
	FieldPhylum         = "classification.phylum"
	FieldClass          = "classification.class"
	FieldOrder          = "classification.order"
	FieldFamily         = "classification.family"
	FieldGenus          = "classification.genus"
	FieldMorphology     = "morphology.description"
	FieldMorphologyURL  = "morphology.source_url"
	FieldHabitat        = "ecology.habitat"
	FieldMarine         = "ecology.marine"
	FieldBrackish       = "ecology.brackish"
	FieldFreshwater     = "ecology.freshwater"
	FieldTerrestrial    = "ecology.terrestrial"
)

// Fields lists every scalar field in a fixed order.
var Fields = []Field{
	strField(FieldScientificName, func(e *Entity) *string { return &e.ScientificName }),
	strField(FieldAuthority, func(e *Entity) *string { return &e.Authority }),
	strField(FieldRank, func(e *Entity) *string { return &e.Rank }),
	{
		Path: FieldStatus,
		Get:  func(e *Entity) string { return string(e.Status) },
		Set:  func(e *Entity, v string) { e.Status = Status(v) },
	},
	strField(FieldAcceptedName, func(e *Entity) *string { return &e.AcceptedName }),
	strField(FieldKingdom, func(e *Entity) *string { return &e.Classification.Kingdom }),
	strField(FieldPhylum, func(e *Entity) *string { return &e.Classification.Phylum }),
	strField(FieldClass, func(e *Entity) *string { return &e.Classification.Class }),
	strField(FieldOrder, func(e *Entity) *string { return &e.Classification.Order }),
	strField(FieldFamily, func(e *Entity) *string { return &e.Classification.Family }),
	strField(FieldGenus, func(e *Entity) *string { return &e.Classification.Genus }),
	strField(FieldMorphology, func(e *Entity) *string { return &e.Morphology.Description }),
	strField(FieldMorphologyURL, func(e *Entity) *string { return &e.Morphology.SourceURL }),
	strField(FieldHabitat, func(e *Entity) *string { return &e.Ecology.Habitat }),
	boolField(FieldMarine, func(e *Entity) **bool { return &e.Ecology.Marine }),
	boolField(FieldBrackish, func(e *Entity) **bool { return &e.Ecology.Brackish }),
	boolField(FieldFreshwater, func(e *Entity) **bool { return &e.Ecology.Freshwater }),
	boolField(FieldTerrestrial, func(e *Entity) **bool { return &e.Ecology.Terrestrial }),
}

// FieldByPath returns the field with the given path.
func FieldByPath(path string) (Field, bool) {
	for _, f := range Fields {
		if f.Path == path {
			return f, true
		}
	}
	return Field{}, false
}

func strField(path string, ref func(*Entity) *string) Field {
	return Field{
		Path: path,
		Get:  func(e *Entity) string { return *ref(e) },
		Set:  func(e *Entity, v string) { *ref(e) = v },
	}
}

func boolField(path string, ref func(*Entity) **bool) Field {
	return Field{
		Path: path,
		Get: func(e *Entity) string {
			if p := *ref(e); p != nil {
				return strconv.FormatBool(*p)
			}
			return ""
		},
		Set: func(e *Entity, v string) {
			b, err := strconv.ParseBool(v)
			if err != nil {
				*ref(e) = nil
				return
			}
			*ref(e) = &b
		},
	}
}

func cloneBool(p *bool) *bool {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

// Bool returns a pointer to b.
func Bool(b bool) *bool { return &b }
