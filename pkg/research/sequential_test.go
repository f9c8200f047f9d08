package research_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	pkgerrors "github.com/agentstation/taxamap/pkg/errors"
	"github.com/agentstation/taxamap/pkg/research"
	"github.com/agentstation/taxamap/pkg/sources"
	"github.com/agentstation/taxamap/pkg/sources/sourcestest"
	"github.com/agentstation/taxamap/pkg/taxa"
	"github.com/agentstation/taxamap/pkg/types"
)

func TestSequentialReasoner(t *testing.T) {
	worms := sourcestest.New(types.WoRMSID).Returns(types.LookupByName, taxa.TaxonomyPayload{
		ScientificName: "Ulva fasciata",
		Status:         taxa.StatusSynonym,
		AcceptedName:   "Ulva lactuca",
		ExternalIDs:    map[types.SourceID]string{types.AlgaeBaseID: "39"},
	})
	gbif := sourcestest.New(types.GBIFID).
		Fails(types.LookupByName, pkgerrors.NewAPIError("gbif", 404, "none")).
		Returns(types.GetOccurrences, taxa.OccurrencePayload{}).
		Returns(types.GetMedia, taxa.MediaPayload{})
	zenodo := sourcestest.New(types.ZenodoID).Returns(types.GetMedia, taxa.MediaPayload{})
	pubmed := sourcestest.New(types.PubMedID).Returns(types.GetLiterature, taxa.LiteraturePayload{})
	algaebase := sourcestest.New(types.AlgaeBaseID).Returns(types.GetMorphology, taxa.MorphologyPayload{Description: "Thallus"})

	o, err := research.New(registry(t, worms, gbif, zenodo, pubmed, algaebase), research.SequentialReasoner{})
	require.NoError(t, err)

	res, err := o.Research(context.Background(), "Ulva fasciata")
	require.NoError(t, err)
	assert.Equal(t, research.Completed, res.Outcome)
	assert.Len(t, res.Captures, 6)
	assert.Equal(t, 1, worms.Calls(), "lookup stops at the first source that answers")
	assert.Equal(t, 2, gbif.Calls())
	assert.Equal(t, 1, zenodo.Calls())

	morph := algaebase.Invocations()
	require.Len(t, morph, 1)
	assert.Equal(t, "Ulva lactuca", morph[0].Args.Get("name"))
	assert.Equal(t, "39", morph[0].Args.Get("algaebase_id"))
	assert.Equal(t, "Ulva lactuca", pubmed.Invocations()[0].Args.Get("name"))
}

func TestSequentialReasonerFallsBackToNextLookup(t *testing.T) {
	worms := sourcestest.New(types.WoRMSID).Fails(types.LookupByName, pkgerrors.NewAPIError("worms", 404, "none"))
	gbif := sourcestest.New(types.GBIFID).Returns(types.LookupByName, taxa.TaxonomyPayload{ScientificName: "Ulva lactuca"})

	r := research.SequentialReasoner{}
	reg := registry(t, worms, gbif)
	p := research.Prompt{Key: "ulva lactuca", Capabilities: reg.Schemas()}

	d, err := r.Next(context.Background(), p)
	require.NoError(t, err)
	assert.Equal(t, research.CallTool(types.LookupByName, types.WoRMSID, sources.Args{"name": "ulva lactuca"}), d)

	p.Transcript = []research.Turn{{Decision: d, Invocation: &research.Invocation{
		Call: d.Call, Source: types.WoRMSID, Error: "not found", ErrorKind: "not_found",
	}}}
	d, err = r.Next(context.Background(), p)
	require.NoError(t, err)
	assert.Equal(t, types.GBIFID, d.Call.Source)

	p.Transcript = append(p.Transcript, research.Turn{Decision: d, Invocation: &research.Invocation{
		Call: d.Call, Source: types.GBIFID, Error: "not found", ErrorKind: "not_found",
	}})
	d, err = r.Next(context.Background(), p)
	require.NoError(t, err)
	assert.Equal(t, research.DecisionStop, d.Kind)
}
