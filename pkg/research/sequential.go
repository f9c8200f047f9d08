package research

import (
	"context"
	"encoding/json"

	"github.com/agentstation/taxamap/pkg/sources"
	"github.com/agentstation/taxamap/pkg/taxa"
	"github.com/agentstation/taxamap/pkg/types"
)

// SequentialReasoner is a deterministic reasoner for running without a
// language model. It looks the name up with each taxonomy source until one
// answers, then calls every other capability once per serving source using
// the accepted name, then stops.
type SequentialReasoner struct{}

// Next implements Reasoner.
func (SequentialReasoner) Next(_ context.Context, p Prompt) (Decision, error) {
	type attempt struct {
		capability types.Capability
		source     types.SourceID
	}
	tried := make(map[attempt]bool)
	var found *taxa.TaxonomyPayload
	for _, t := range p.Transcript {
		inv := t.Invocation
		if inv == nil {
			continue
		}
		tried[attempt{inv.Call.Capability, inv.Call.Source}] = true
		tried[attempt{inv.Call.Capability, inv.Source}] = true
		if found == nil && inv.Call.Capability == types.LookupByName && !inv.Failed() {
			var tp taxa.TaxonomyPayload
			if json.Unmarshal(inv.Payload, &tp) == nil && tp.ScientificName != "" {
				found = &tp
			}
		}
	}

	name := p.Key
	var algaeBaseID string
	if found != nil {
		name = found.ScientificName
		if found.Status == taxa.StatusSynonym && found.AcceptedName != "" {
			name = found.AcceptedName
		}
		algaeBaseID = found.ExternalIDs[types.AlgaeBaseID]
	}

	for _, schema := range p.Capabilities {
		if schema.Capability != types.LookupByName || found != nil {
			continue
		}
		for _, id := range schema.Sources {
			if !tried[attempt{types.LookupByName, id}] {
				return CallTool(types.LookupByName, id, sources.Args{"name": p.Key}), nil
			}
		}
		return Stop("no taxonomy source recognizes " + p.Key), nil
	}

	for _, schema := range p.Capabilities {
		if schema.Capability == types.LookupByName {
			continue
		}
		for _, id := range schema.Sources {
			if tried[attempt{schema.Capability, id}] {
				continue
			}
			args := sources.Args{"name": name}
			if schema.Capability == types.GetMorphology && algaeBaseID != "" {
				args["algaebase_id"] = algaeBaseID
			}
			return CallTool(schema.Capability, id, args), nil
		}
	}
	return Stop("every capability has been queried"), nil
}
