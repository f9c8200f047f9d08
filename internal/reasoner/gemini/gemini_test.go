package gemini

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/genai"

	pkgerrors "github.com/agentstation/taxamap/pkg/errors"
	"github.com/agentstation/taxamap/pkg/research"
	"github.com/agentstation/taxamap/pkg/sources"
	"github.com/agentstation/taxamap/pkg/types"
)

type fakeGenerator struct {
	resp     *genai.GenerateContentResponse
	err      error
	model    string
	contents []*genai.Content
	config   *genai.GenerateContentConfig
}

func (f *fakeGenerator) GenerateContent(_ context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error) {
	f.model, f.contents, f.config = model, contents, config
	return f.resp, f.err
}

func respond(parts ...*genai.Part) *genai.GenerateContentResponse {
	return &genai.GenerateContentResponse{Candidates: []*genai.Candidate{{
		Content: genai.NewContentFromParts(parts, genai.RoleModel),
	}}}
}

func schemas(t *testing.T) []sources.Schema {
	t.Helper()
	lookup, ok := sources.SchemaFor(types.LookupByName)
	require.True(t, ok)
	lookup.Sources = []types.SourceID{types.WoRMSID, types.GBIFID}
	occ, ok := sources.SchemaFor(types.GetOccurrences)
	require.True(t, ok)
	occ.Sources = []types.SourceID{types.GBIFID}
	return []sources.Schema{lookup, occ}
}

func TestNewRequiresKey(t *testing.T) {
	_, err := New(context.Background(), "")
	var cfgErr *pkgerrors.ConfigError
	assert.ErrorAs(t, err, &cfgErr)
}

func TestNextFunctionCall(t *testing.T) {
	gen := &fakeGenerator{resp: respond(genai.NewPartFromFunctionCall("get_occurrences", map[string]any{
		"name":  "Ulva lactuca",
		"limit": float64(25),
	}))}
	r, err := New(context.Background(), "", WithGenerator(gen), WithModel("gemini-test"))
	require.NoError(t, err)
	assert.Equal(t, "gemini-test", r.Model())

	d, err := r.Next(context.Background(), research.Prompt{
		Key:          "ulva lactuca",
		Instructions: research.DefaultInstructions,
		Capabilities: schemas(t),
	})
	require.NoError(t, err)
	assert.Equal(t, research.CallTool(types.GetOccurrences, "", sources.Args{"name": "Ulva lactuca", "limit": "25"}), d)
	assert.Equal(t, "gemini-test", gen.model)

	decls := gen.config.Tools[0].FunctionDeclarations
	require.Len(t, decls, 3)
	assert.Equal(t, "lookup_by_name", decls[0].Name)
	assert.Equal(t, []string{"worms", "gbif"}, decls[0].Parameters.Properties["source"].Enum)
	assert.NotContains(t, decls[1].Parameters.Properties, "source")
	assert.Equal(t, genai.TypeInteger, decls[1].Parameters.Properties["limit"].Type)
	assert.Equal(t, stopFunction, decls[2].Name)
}

func TestNextSourceAndStop(t *testing.T) {
	gen := &fakeGenerator{resp: respond(genai.NewPartFromFunctionCall("lookup_by_name", map[string]any{
		"name": "Ulva", "source": "gbif",
	}))}
	r, err := New(context.Background(), "", WithGenerator(gen))
	require.NoError(t, err)

	d, err := r.Next(context.Background(), research.Prompt{Key: "ulva", Capabilities: schemas(t)})
	require.NoError(t, err)
	assert.Equal(t, types.GBIFID, d.Call.Source)
	assert.NotContains(t, d.Call.Args, "source")

	gen.resp = respond(genai.NewPartFromFunctionCall(stopFunction, map[string]any{"reason": "complete"}))
	d, err = r.Next(context.Background(), research.Prompt{Key: "ulva"})
	require.NoError(t, err)
	assert.Equal(t, research.Stop("complete"), d)
}

func TestNextTextIsReport(t *testing.T) {
	gen := &fakeGenerator{resp: respond(genai.NewPartFromText("Looking up the accepted name first."))}
	r, err := New(context.Background(), "", WithGenerator(gen))
	require.NoError(t, err)

	d, err := r.Next(context.Background(), research.Prompt{Key: "ulva"})
	require.NoError(t, err)
	assert.Equal(t, research.Report("Looking up the accepted name first."), d)
}

func TestNextErrors(t *testing.T) {
	gen := &fakeGenerator{err: errors.New("quota exhausted")}
	r, err := New(context.Background(), "", WithGenerator(gen))
	require.NoError(t, err)

	_, err = r.Next(context.Background(), research.Prompt{Key: "ulva"})
	assert.ErrorContains(t, err, "quota exhausted")

	gen.err = nil
	gen.resp = &genai.GenerateContentResponse{}
	_, err = r.Next(context.Background(), research.Prompt{Key: "ulva"})
	assert.True(t, pkgerrors.IsMalformed(err))

	gen.resp = respond()
	_, err = r.Next(context.Background(), research.Prompt{Key: "ulva"})
	assert.True(t, pkgerrors.IsMalformed(err))
}

func TestTranscriptReplay(t *testing.T) {
	payload, err := json.Marshal(map[string]any{"scientific_name": "Ulva lactuca"})
	require.NoError(t, err)
	call := research.CallTool(types.LookupByName, types.WoRMSID, sources.Args{"name": "ulva"})
	failed := research.CallTool(types.GetOccurrences, "", sources.Args{"name": "Ulva lactuca"})

	got := contents(research.Prompt{Key: "ulva", Transcript: []research.Turn{
		{Index: 0, Decision: research.Report("starting")},
		{Index: 1, Decision: call, Invocation: &research.Invocation{Call: call.Call, Source: types.WoRMSID, Payload: payload}},
		{Index: 2, Decision: failed, Invocation: &research.Invocation{Call: failed.Call, Error: "gbif/get_occurrences: unavailable", ErrorKind: "unavailable"}},
	}})

	require.Len(t, got, 6)
	assert.Equal(t, string(genai.RoleUser), got[0].Role)
	assert.Equal(t, "starting", got[1].Parts[0].Text)

	fc := got[2].Parts[0].FunctionCall
	require.NotNil(t, fc)
	assert.Equal(t, "lookup_by_name", fc.Name)
	assert.Equal(t, "worms", fc.Args["source"])

	fr := got[3].Parts[0].FunctionResponse
	require.NotNil(t, fr)
	assert.Equal(t, map[string]any{"scientific_name": "Ulva lactuca"}, fr.Response["output"])

	assert.Equal(t, "unavailable", got[5].Parts[0].FunctionResponse.Response["kind"])
}
