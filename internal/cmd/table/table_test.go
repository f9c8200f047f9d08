package table

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/agentstation/utc"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentstation/taxamap/pkg/taxa"
	"github.com/agentstation/taxamap/pkg/types"
)

func pinNow(t *testing.T, at time.Time) {
	t.Helper()
	old := now
	now = func() time.Time { return at }
	t.Cleanup(func() { now = old })
}

func testProfile() *taxa.Profile {
	marine := true
	e := &taxa.Entity{
		ID:             "5b1c6a3e-3f5e-4b7a-9a53-2f0f7cfa1f10",
		ScientificName: "Ulva lactuca",
		Authority:      "Linnaeus, 1753",
		Rank:           "Species",
		Status:         taxa.StatusAccepted,
		Classification: taxa.Classification{Kingdom: "Plantae", Phylum: "Chlorophyta", Genus: "Ulva"},
		Synonyms:       []string{"Ulva fasciata", "Ulva lobata"},
		ExternalIDs:    map[types.SourceID]string{types.WoRMSID: "145984", types.GBIFID: "2659920"},
		Ecology:        taxa.Ecology{Marine: &marine},
		Morphology:     taxa.Morphology{Description: "Thallus foliose, bright green, up to 30 cm long and irregularly lobed with a ruffled margin."},
	}
	p := taxa.NewProfile(e, taxa.Children{
		Media: []taxa.MediaRecord{{URL: "https://example.org/ulva.jpg", Source: types.GBIFID}},
	})
	p.FromStore = true
	return p
}

func rowValue(t *testing.T, d Data, property string) string {
	t.Helper()
	for _, row := range d.Rows {
		if row[0] == property {
			return row[1]
		}
	}
	t.Fatalf("property %q not in table", property)
	return ""
}

func TestProfileToTableData(t *testing.T) {
	d := ProfileToTableData(testProfile(), false)

	assert.Equal(t, []string{"Property", "Value"}, d.Headers)
	assert.Equal(t, "Ulva lactuca", rowValue(t, d, "Scientific Name"))
	assert.Equal(t, "Plantae > Chlorophyta > Ulva", rowValue(t, d, "Classification"))
	assert.Equal(t, "gbif:2659920, worms:145984", rowValue(t, d, "External IDs"))
	assert.Equal(t, "marine", rowValue(t, d, "Environments"))
	assert.Equal(t, "-", rowValue(t, d, "Accepted Name"))
	assert.Equal(t, "1", rowValue(t, d, "Media"))
	assert.Equal(t, "store", rowValue(t, d, "Origin"))
	assert.LessOrEqual(t, len([]rune(rowValue(t, d, "Morphology"))), morphologyWidth)

	wide := ProfileToTableData(testProfile(), true)
	assert.Greater(t, len(wide.Rows), len(d.Rows))
	assert.Equal(t, testProfile().Entity.Morphology.Description, rowValue(t, wide, "Morphology"))
}

func TestProfileToTableDataEmpty(t *testing.T) {
	d := ProfileToTableData(nil, false)
	assert.Empty(t, d.Rows)
	assert.Len(t, d.Headers, 2)
}

func TestResolutionsToTableData(t *testing.T) {
	researched := testProfile()
	researched.FromStore = false
	researched.Partial = true

	d := ResolutionsToTableData([]Resolution{
		{Query: "ulva lactuca", Profile: testProfile()},
		{Query: "sea lettuce", Profile: researched},
		{Query: "zzz", Err: errors.New("entity zzz not found")},
	})

	require.Len(t, d.Rows, 3)
	assert.Contains(t, d.Rows[0][4], "store")
	assert.Contains(t, d.Rows[1][4], "research (partial)")
	assert.Equal(t, "-", d.Rows[2][1])
	assert.Contains(t, d.Rows[2][4], "not found")
	assert.Len(t, d.ColumnAlignment, len(d.Headers))
}

func TestProvenanceToTableData(t *testing.T) {
	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	pinNow(t, at.Add(2*time.Hour))

	prov := map[string]taxa.FieldSource{
		"scientific_name":  {Source: types.WoRMSID, FetchedAt: utc.New(at)},
		"ecology.marine":   {Source: types.WoRMSID, FetchedAt: utc.New(at)},
		"morphology.text":  {Source: types.AlgaeBaseID, FetchedAt: utc.New(at)},
		"ecology.brackish": {Source: types.GBIFID, FetchedAt: utc.New(at)},
	}

	all := ProvenanceToTableData(prov, nil)
	require.Len(t, all.Rows, 4)
	assert.Equal(t, "ecology.brackish", all.Rows[0][0])
	assert.Equal(t, "2 hr ago", all.Rows[0][2])

	eco := ProvenanceToTableData(prov, []string{"Ecology.*"})
	require.Len(t, eco.Rows, 2)
	assert.Equal(t, "gbif", eco.Rows[0][1])
}

func TestCapturesToTableData(t *testing.T) {
	at := time.Date(2026, 1, 2, 3, 4, 0, 0, time.UTC)
	pinNow(t, at.Add(30*24*time.Hour))

	d := CapturesToTableData([]taxa.RawCapture{{
		ID:         "c1",
		Source:     types.WoRMSID,
		Capability: types.LookupByName,
		QueryKey:   "ulva lactuca",
		FetchedAt:  utc.New(at),
		Payload:    json.RawMessage(`{"AphiaID":145984}`),
		Retracted:  []string{"ecology.brackish"},
	}})

	require.Len(t, d.Rows, 1)
	assert.Equal(t, "2026-01-02 03:04", d.Rows[0][4])
	assert.Equal(t, "18", d.Rows[0][5])
	assert.Equal(t, "ecology.brackish", d.Rows[0][6])
}

func TestMatchField(t *testing.T) {
	tests := []struct {
		field    string
		patterns []string
		want     bool
	}{
		{"ecology.marine", nil, true},
		{"ecology.marine", []string{"ecology.*"}, true},
		{"ecology", []string{"ecology.*"}, true},
		{"Ecology.Marine", []string{"ecology.marine"}, true},
		{"classification.genus", []string{"class*"}, true},
		{"morphology.text", []string{"ecology.*", "rank"}, false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, MatchField(tt.field, tt.patterns), "%s %v", tt.field, tt.patterns)
	}
}

func TestFormatTimestamp(t *testing.T) {
	at := time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)
	pinNow(t, at)

	assert.Equal(t, "-", formatTimestamp(time.Time{}))
	assert.Equal(t, "just now", formatTimestamp(at.Add(-10*time.Second)))
	assert.Equal(t, "5 min ago", formatTimestamp(at.Add(-5*time.Minute)))
	assert.Equal(t, "3 days ago", formatTimestamp(at.Add(-72*time.Hour)))
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "short", truncate("short", 10))
	assert.Equal(t, "a b", truncate("a   b", 10))
	assert.Equal(t, "abcd…", truncate("abcdefgh", 5))
}
