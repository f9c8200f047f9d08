// Package sourcestest provides an in-memory Fetcher for tests.
package sourcestest

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/agentstation/taxamap/pkg/sources"
	"github.com/agentstation/taxamap/pkg/types"
)

// Handler answers one capability call.
type Handler func(ctx context.Context, args sources.Args) (any, error)

// Fetcher is a scripted source. Handlers are registered per capability and
// every call is counted.
type Fetcher struct {
	id       types.SourceID
	handlers map[types.Capability]Handler
	order    []types.Capability

	calls atomic.Int64
	mu    sync.Mutex
	log   []Invocation
}

// Invocation records one Fetch call.
type Invocation struct {
	Capability types.Capability
	Args       sources.Args
}

// New creates a fake fetcher for id.
func New(id types.SourceID) *Fetcher {
	return &Fetcher{id: id, handlers: make(map[types.Capability]Handler)}
}

// Handle registers h for capability c.
func (f *Fetcher) Handle(c types.Capability, h Handler) *Fetcher {
	if _, ok := f.handlers[c]; !ok {
		f.order = append(f.order, c)
	}
	f.handlers[c] = h
	return f
}

// Returns registers a handler answering c with payload.
func (f *Fetcher) Returns(c types.Capability, payload any) *Fetcher {
	return f.Handle(c, func(context.Context, sources.Args) (any, error) { return payload, nil })
}

// Fails registers a handler answering c with err.
func (f *Fetcher) Fails(c types.Capability, err error) *Fetcher {
	return f.Handle(c, func(context.Context, sources.Args) (any, error) { return nil, err })
}

// ID implements sources.Fetcher.
func (f *Fetcher) ID() types.SourceID { return f.id }

// Capabilities implements sources.Fetcher.
func (f *Fetcher) Capabilities() []types.Capability {
	return append([]types.Capability(nil), f.order...)
}

// Fetch implements sources.Fetcher.
func (f *Fetcher) Fetch(ctx context.Context, c types.Capability, args sources.Args) (any, error) {
	f.calls.Add(1)
	f.mu.Lock()
	f.log = append(f.log, Invocation{Capability: c, Args: args})
	f.mu.Unlock()
	return f.handlers[c](ctx, args)
}

// Calls returns the number of Fetch calls so far.
func (f *Fetcher) Calls() int { return int(f.calls.Load()) }

// Invocations returns a copy of the call log.
func (f *Fetcher) Invocations() []Invocation {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Invocation(nil), f.log...)
}
