// Package store defines the record store contract: the only owner of
// persisted entities, their child records and raw captures.
package store

import (
	"context"
	"strings"

	"github.com/google/uuid"

	"github.com/agentstation/taxamap/pkg/taxa"
	"github.com/agentstation/taxamap/pkg/types"
)

// Store persists entities transactionally and raw captures append-only.
// Implementations must be safe for concurrent use.
type Store interface {
	// Get finds an entity by canonical id, "source:id" external id, or
	// name (accepted, synonym or a previously researched query key).
	// Returns an error matching errors.ErrNotFound on a miss.
	Get(ctx context.Context, ref string) (*taxa.Entity, error)

	// Children returns the distributions, literature and media of an entity.
	Children(ctx context.Context, id string) (taxa.Children, error)

	// Upsert writes an entity and its children in one transaction and
	// returns the canonical id, assigning one when e.ID is empty. Extra
	// names are indexed as query keys of the entity.
	Upsert(ctx context.Context, e *taxa.Entity, c taxa.Children, names ...string) (string, error)

	// Update is a read-merge-write on the first entity any of refs names,
	// holding that entity's write lock throughout. fn receives the stored
	// entity, or nil when no ref matches, and returns what to write; a new
	// entity gets a fresh id. An error from fn aborts the write and is
	// returned as is.
	Update(ctx context.Context, refs []string, fn UpdateFunc, names ...string) (string, error)

	// AppendRaw stores a capture. Captures are never updated or deleted.
	AppendRaw(ctx context.Context, capture taxa.RawCapture) error

	// Captures returns the raw captures linked to an entity, oldest first.
	Captures(ctx context.Context, entityID string) ([]taxa.RawCapture, error)

	// Close releases the underlying resources.
	Close() error
}

// UpdateFunc builds the record Update writes from the stored one.
type UpdateFunc func(existing *taxa.Entity) (*taxa.Entity, taxa.Children, error)

// RefKind tells how a reference addresses an entity.
type RefKind int

// Reference kinds.
const (
	RefName RefKind = iota
	RefID
	RefExternal
)

// Ref is a parsed entity reference.
type Ref struct {
	Kind   RefKind
	Value  string         // canonical id, external id, or normalized name
	Source types.SourceID // set for RefExternal
}

// ParseRef classifies a reference. Canonical ids are UUIDs; external ids
// are "source:id" with a known source; anything else is a name.
func ParseRef(s string) Ref {
	s = strings.TrimSpace(s)
	if u, err := uuid.Parse(s); err == nil {
		return Ref{Kind: RefID, Value: u.String()}
	}
	if src, id, ok := strings.Cut(s, ":"); ok {
		source := types.SourceID(strings.ToLower(strings.TrimSpace(src)))
		id = strings.TrimSpace(id)
		if source.IsValid() && source != types.LocalID && id != "" {
			return Ref{Kind: RefExternal, Source: source, Value: id}
		}
	}
	return Ref{Kind: RefName, Value: taxa.NormalizeName(s)}
}
