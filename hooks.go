package taxamap

import (
	"sync"

	"github.com/agentstation/taxamap/pkg/research"
	"github.com/agentstation/taxamap/pkg/taxa"
)

// Hook function types for resolve events
type (
	// ResolvedHook is called with every profile returned by Resolve
	ResolvedHook func(profile *taxa.Profile)

	// ResearchedHook is called once per finished research session
	ResearchedHook func(summary research.Summary)
)

// hooks manages event callbacks
type hooks struct {
	mu           sync.RWMutex
	onResolved   []ResolvedHook
	onResearched []ResearchedHook
}

// newHooks creates a new hooks instance
func newHooks() *hooks {
	return &hooks{}
}

// OnResolved registers a callback for resolved profiles
func (h *hooks) OnResolved(fn ResolvedHook) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.onResolved = append(h.onResolved, fn)
}

// OnResearched registers a callback for finished research sessions
func (h *hooks) OnResearched(fn ResearchedHook) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.onResearched = append(h.onResearched, fn)
}

func (h *hooks) triggerResolved(p *taxa.Profile) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, hook := range h.onResolved {
		hook(p)
	}
}

func (h *hooks) triggerResearched(s research.Summary) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, hook := range h.onResearched {
		hook(s)
	}
}
