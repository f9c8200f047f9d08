// Package registry wires the concrete source fetchers into a
// sources.Registry. It is separate from the fetchers to avoid circular
// dependencies.
package registry

import (
	"fmt"
	"net/http"
	"slices"

	"github.com/agentstation/taxamap/internal/sources/algaebase"
	"github.com/agentstation/taxamap/internal/sources/gbif"
	"github.com/agentstation/taxamap/internal/sources/pubmed"
	"github.com/agentstation/taxamap/internal/sources/worms"
	"github.com/agentstation/taxamap/internal/sources/zenodo"
	"github.com/agentstation/taxamap/internal/transport"
	"github.com/agentstation/taxamap/pkg/errors"
	"github.com/agentstation/taxamap/pkg/sources"
	"github.com/agentstation/taxamap/pkg/types"
)

// Config carries the settings shared by all fetchers.
type Config struct {
	UserAgent    string
	HTTPClient   *http.Client
	PubMedAPIKey string

	// Enabled restricts the registry to these sources; empty means all.
	Enabled []types.SourceID
}

// defaultOrder is the registration order; the first source serving a
// capability answers calls that name none.
var defaultOrder = []types.SourceID{
	types.WoRMSID,
	types.GBIFID,
	types.AlgaeBaseID,
	types.ZenodoID,
	types.PubMedID,
}

// Has checks if a source ID has a fetcher implementation.
func Has(id types.SourceID) bool {
	return slices.Contains(defaultOrder, id)
}

// List returns all source IDs that have fetcher implementations.
func List() []types.SourceID {
	return slices.Clone(defaultOrder)
}

// New builds a registry with the configured fetchers.
func New(cfg Config, opts ...sources.Option) (*sources.Registry, error) {
	for _, id := range cfg.Enabled {
		if !Has(id) {
			return nil, &errors.ValidationError{
				Field:   "sources",
				Value:   id,
				Message: fmt.Sprintf("unsupported source, want one of %v", List()),
			}
		}
	}

	common := []transport.Option{
		transport.WithUserAgent(cfg.UserAgent),
		transport.WithHTTPClient(cfg.HTTPClient),
	}
	wormsClient := worms.New(common...)

	fetchers := map[types.SourceID]sources.Fetcher{
		types.WoRMSID:     wormsClient,
		types.GBIFID:      gbif.New(common...),
		types.AlgaeBaseID: algaebase.New(wormsClient.AlgaeBaseID, common...),
		types.ZenodoID:    zenodo.New(common...),
		types.PubMedID: pubmed.New(append(common,
			transport.WithAuth(&transport.QueryAuth{Param: "api_key"}, cfg.PubMedAPIKey))...),
	}

	all := make([]sources.Option, 0, len(fetchers)+len(opts))
	for _, id := range defaultOrder {
		if len(cfg.Enabled) > 0 && !slices.Contains(cfg.Enabled, id) {
			continue
		}
		all = append(all, sources.WithFetcher(fetchers[id]))
	}
	return sources.NewRegistry(append(all, opts...)...)
}
