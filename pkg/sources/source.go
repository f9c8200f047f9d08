// Package sources defines the closed set of capabilities external data
// sources expose, the Fetcher contract each source implements, and the
// Registry the research orchestrator invokes them through.
//
// Dispatch is an explicit map lookup over capabilities and source IDs fixed
// at construction; there is no reflection-based tool discovery.
//
// Example usage:
//
//	reg, err := sources.NewRegistry(
//	    sources.WithFetcher(worms.New()),
//	    sources.WithFetcher(gbif.New()),
//	)
//	capture, err := reg.Invoke(ctx, sources.Call{
//	    Capability: types.LookupByName,
//	    Args:       sources.Args{"name": "Ulva lactuca"},
//	})
package sources

import (
	"context"
	"strconv"
	"strings"
	"time"

	"github.com/agentstation/taxamap/pkg/types"
)

// Args are the named inputs of one capability call.
type Args map[string]string

// Get returns the trimmed value of key.
func (a Args) Get(key string) string {
	return strings.TrimSpace(a[key])
}

// Int returns key parsed as a positive integer, or def.
func (a Args) Int(key string, def int) int {
	n, err := strconv.Atoi(a.Get(key))
	if err != nil || n <= 0 {
		return def
	}
	return n
}

// Fetcher is one external source. Fetch is a pure request to result
// boundary: implementations must not keep mutable state between calls.
type Fetcher interface {
	// ID returns the source identifier
	ID() types.SourceID

	// Capabilities lists the capabilities this source serves
	Capabilities() []types.Capability

	// Fetch performs one capability call and returns its typed payload
	// (one of the taxa.*Payload types). Errors should be, or wrap,
	// *errors.SourceError, *errors.APIError or a pkg/errors sentinel.
	Fetch(ctx context.Context, capability types.Capability, args Args) (any, error)
}

// Retractor is implemented by payloads that explicitly withdraw previously
// published field values.
type Retractor interface {
	RetractedFields() []string
}

// Call is one request to the registry.
type Call struct {
	Capability types.Capability
	Source     types.SourceID // optional; defaults to the first registered source serving Capability
	Args       Args
	Timeout    time.Duration // optional; overrides the capability default
	QueryKey   string        // normalized query the resulting capture belongs to
}
