package taxa

import (
	"encoding/json"

	"github.com/agentstation/utc"
	"github.com/google/uuid"

	"github.com/agentstation/taxamap/pkg/errors"
	"github.com/agentstation/taxamap/pkg/types"
)

// RawCapture is an unmodified fetch result from one source. Captures are
// append-only: once stored they are never updated, only superseded by newer
// captures from the same source.
type RawCapture struct {
	ID         string           `json:"id" yaml:"id"`
	Source     types.SourceID   `json:"source" yaml:"source"`
	Capability types.Capability `json:"capability" yaml:"capability"`
	QueryKey   string           `json:"query_key" yaml:"query_key"`
	EntityID   string           `json:"entity_id,omitempty" yaml:"entity_id,omitempty"` // empty until merged
	FetchedAt  utc.Time         `json:"fetched_at" yaml:"fetched_at"`
	Payload    json.RawMessage  `json:"payload" yaml:"payload"`

	// Retracted lists field paths the source explicitly withdraws.
	Retracted []string `json:"retracted,omitempty" yaml:"retracted,omitempty"`
}

// NewCapture builds a capture for payload fetched now.
func NewCapture(source types.SourceID, capability types.Capability, queryKey string, payload any) (RawCapture, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return RawCapture{}, errors.WrapParse("json", "", err)
	}
	return RawCapture{
		ID:         uuid.NewString(),
		Source:     source,
		Capability: capability,
		QueryKey:   queryKey,
		FetchedAt:  utc.Now(),
		Payload:    data,
	}, nil
}

// Decode unmarshals the payload into v.
func (c RawCapture) Decode(v any) error {
	if err := json.Unmarshal(c.Payload, v); err != nil {
		return errors.WrapParse("json", string(c.Capability), err)
	}
	return nil
}

// TaxonomyPayload is the payload of lookup_by_name.
type TaxonomyPayload struct {
	SourceRecordID string                    `json:"source_record_id,omitempty"`
	ScientificName string                    `json:"scientific_name"`
	Authority      string                    `json:"authority,omitempty"`
	Rank           string                    `json:"rank,omitempty"`
	Status         Status                    `json:"status,omitempty"`
	AcceptedName   string                    `json:"accepted_name,omitempty"`
	Classification Classification            `json:"classification"`
	Synonyms       []string                  `json:"synonyms,omitempty"`
	ExternalIDs    map[types.SourceID]string `json:"external_ids,omitempty"`
	Ecology        *Ecology                  `json:"ecology,omitempty"`
	URL            string                    `json:"url,omitempty"`
}

// OccurrencePayload is the payload of get_occurrences.
type OccurrencePayload struct {
	Total       int                  `json:"total"`
	Occurrences []DistributionRecord `json:"occurrences"`
}

// MediaPayload is the payload of get_media.
type MediaPayload struct {
	Media []MediaRecord `json:"media"`
}

// LiteraturePayload is the payload of get_literature.
type LiteraturePayload struct {
	Total      int                `json:"total"`
	References []LiteratureRecord `json:"references"`
}

// MorphologyPayload is the payload of get_morphology.
type MorphologyPayload struct {
	Description string        `json:"description"`
	Habitat     string        `json:"habitat,omitempty"`
	SourceURL   string        `json:"source_url,omitempty"`
	Media       []MediaRecord `json:"media,omitempty"`
}
