package store

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/agentstation/taxamap/pkg/types"
)

func TestParseRef(t *testing.T) {
	tests := []struct {
		in   string
		want Ref
	}{
		{"6F9619FF-8B86-D011-B42D-00C04FC964FF", Ref{Kind: RefID, Value: "6f9619ff-8b86-d011-b42d-00c04fc964ff"}},
		{"worms:145990", Ref{Kind: RefExternal, Source: types.WoRMSID, Value: "145990"}},
		{" GBIF : 2668937 ", Ref{Kind: RefExternal, Source: types.GBIFID, Value: "2668937"}},
		{"Ulva  Lactuca", Ref{Kind: RefName, Value: "ulva lactuca"}},
		{"Ulva lactuca var. latissima", Ref{Kind: RefName, Value: "ulva lactuca var. latissima"}},
		{"itis:12345", Ref{Kind: RefName, Value: "itis:12345"}},
		{"worms:", Ref{Kind: RefName, Value: "worms:"}},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, ParseRef(tt.in))
		})
	}
}
