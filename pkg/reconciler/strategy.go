package reconciler

import (
	"fmt"
	"strings"
	"time"

	"github.com/agentstation/taxamap/pkg/authority"
	"github.com/agentstation/taxamap/pkg/types"
)

// StrategyType represents the type of reconciliation strategy.
type StrategyType string

// String returns the string representation of a strategy type.
func (s StrategyType) String() string {
	return string(s)
}

const (
	// StrategyTypeFieldAuthority uses the configured priority table.
	StrategyTypeFieldAuthority StrategyType = "field-authority"
	// StrategyTypeSourceOrder uses a single source ordering for every field.
	StrategyTypeSourceOrder StrategyType = "source-order"
)

// Strategy ranks sources per field. Higher ranks win.
type Strategy interface {
	// Type returns the strategy type
	Type() StrategyType

	// Description returns a human-readable description
	Description() string

	// Priority returns the rank of source for field
	Priority(field string, source types.SourceID) int
}

// Candidate is one proposed value for a field.
type Candidate struct {
	Source    types.SourceID
	Value     string
	FetchedAt time.Time
}

// choose picks the winning candidate: highest priority, then most recent
// fetch, then smallest value, then smallest source ID. The ordering is total
// so the result never depends on candidate order.
func choose(s Strategy, field string, cands []Candidate) (Candidate, int, string) {
	var (
		best     Candidate
		bestPrio = -1
	)
	for _, c := range cands {
		p := s.Priority(field, c.Source)
		if bestPrio < 0 || beats(c, p, best, bestPrio) {
			best, bestPrio = c, p
		}
	}
	return best, bestPrio, fmt.Sprintf("selected by %s (priority: %d)", s.Type(), bestPrio)
}

func beats(c Candidate, p int, best Candidate, bestPrio int) bool {
	if p != bestPrio {
		return p > bestPrio
	}
	if !c.FetchedAt.Equal(best.FetchedAt) {
		return c.FetchedAt.After(best.FetchedAt)
	}
	if c.Value != best.Value {
		return c.Value < best.Value
	}
	return c.Source < best.Source
}

// AuthorityStrategy uses field authorities to resolve conflicts.
type AuthorityStrategy struct {
	table *authority.Table
}

// NewAuthorityStrategy creates a new authority-based strategy.
func NewAuthorityStrategy(table *authority.Table) Strategy {
	return &AuthorityStrategy{table: table}
}

// Type returns the strategy type.
func (s *AuthorityStrategy) Type() StrategyType { return StrategyTypeFieldAuthority }

// Description returns a human-readable description.
func (s *AuthorityStrategy) Description() string {
	return "Resolves conflicts using field authority priorities"
}

// Priority looks the source up in the priority table.
func (s *AuthorityStrategy) Priority(field string, source types.SourceID) int {
	return s.table.Priority(field, source)
}

// SourceOrderStrategy resolves conflicts using a fixed source precedence order.
// Sources earlier in the slice have higher precedence; unlisted sources rank 0.
type SourceOrderStrategy struct {
	order []types.SourceID
}

// NewSourceOrderStrategy creates a new source priority order strategy.
func NewSourceOrderStrategy(priorityOrder []types.SourceID) Strategy {
	return &SourceOrderStrategy{order: priorityOrder}
}

// Type returns the strategy type.
func (s *SourceOrderStrategy) Type() StrategyType { return StrategyTypeSourceOrder }

// Description returns a human-readable description.
func (s *SourceOrderStrategy) Description() string {
	names := make([]string, len(s.order))
	for i, id := range s.order {
		names[i] = id.String()
	}
	return "Resolves conflicts using source priority order: " + strings.Join(names, " > ")
}

// Priority ranks by position in the order.
func (s *SourceOrderStrategy) Priority(_ string, source types.SourceID) int {
	for i, id := range s.order {
		if id == source {
			return len(s.order) - i
		}
	}
	return 0
}
