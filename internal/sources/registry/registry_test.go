package registry

import (
	"context"
	"net/http"
	"os"
	"path/filepath"
	"testing"

	"github.com/jarcoal/httpmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentstation/taxamap/internal/sources/algaebase"
	"github.com/agentstation/taxamap/internal/sources/worms"
	"github.com/agentstation/taxamap/pkg/errors"
	"github.com/agentstation/taxamap/pkg/sources"
	"github.com/agentstation/taxamap/pkg/taxa"
	"github.com/agentstation/taxamap/pkg/types"
)

func TestNew(t *testing.T) {
	reg, err := New(Config{UserAgent: "taxamap-test"})
	require.NoError(t, err)

	assert.Equal(t, List(), reg.List())
	assert.Equal(t, []types.SourceID{types.WoRMSID, types.GBIFID}, reg.Sources(types.LookupByName))
	assert.Equal(t, []types.SourceID{types.GBIFID, types.ZenodoID}, reg.Sources(types.GetMedia))
	assert.Equal(t, []types.SourceID{types.AlgaeBaseID}, reg.Sources(types.GetMorphology))
	assert.Equal(t, []types.SourceID{types.PubMedID}, reg.Sources(types.GetLiterature))
	assert.Len(t, reg.Schemas(), len(types.Capabilities()))
}

func TestNewEnabledSubset(t *testing.T) {
	reg, err := New(Config{Enabled: []types.SourceID{types.GBIFID}})
	require.NoError(t, err)
	assert.Equal(t, []types.SourceID{types.GBIFID}, reg.List())
	assert.Empty(t, reg.Sources(types.GetLiterature))

	_, err = New(Config{Enabled: []types.SourceID{"itis"}})
	assert.True(t, errors.IsValidationError(err))
}

func TestMorphologyWithoutIDAsksWoRMS(t *testing.T) {
	hc := &http.Client{}
	httpmock.ActivateNonDefault(hc)
	t.Cleanup(httpmock.DeactivateAndReset)

	httpmock.RegisterResponder(http.MethodGet, worms.BaseURL+"/AphiaRecordsByMatchNames",
		httpmock.NewStringResponder(200, `[[{"AphiaID":145990,"scientificname":"Ulva lactuca","status":"accepted","rank":"Species"}]]`))
	httpmock.RegisterResponder(http.MethodGet, worms.BaseURL+"/AphiaSynonymsByAphiaID/145990",
		httpmock.NewStringResponder(200, `[]`))
	httpmock.RegisterResponder(http.MethodGet, worms.BaseURL+"/AphiaExternalIDByAphiaID/145990",
		httpmock.NewStringResponder(200, `["39"]`))
	page, err := os.ReadFile(filepath.Join("..", "algaebase", "testdata", "species_39.html"))
	require.NoError(t, err)
	httpmock.RegisterResponder(http.MethodGet, algaebase.BaseURL+"/search/species/detail/",
		func(req *http.Request) (*http.Response, error) {
			assert.Equal(t, "39", req.URL.Query().Get("species_id"))
			resp := httpmock.NewBytesResponse(200, page)
			resp.Header.Set("Content-Type", "text/html; charset=utf-8")
			return resp, nil
		})

	reg, err := New(Config{HTTPClient: hc})
	require.NoError(t, err)

	capture, err := reg.Invoke(context.Background(), sources.Call{
		Capability: types.GetMorphology,
		Args:       sources.Args{"name": "Ulva lactuca"},
	})
	require.NoError(t, err)

	var p taxa.MorphologyPayload
	require.NoError(t, capture.Decode(&p))
	assert.Contains(t, p.SourceURL, "species_id=39")
	assert.Equal(t, 1, httpmock.GetCallCountInfo()["GET "+worms.BaseURL+"/AphiaExternalIDByAphiaID/145990"])
}

func TestHas(t *testing.T) {
	for _, id := range types.SourceIDs() {
		if id == types.LocalID {
			assert.False(t, Has(id))
			continue
		}
		assert.True(t, Has(id), id)
	}
}
