package taxamap

import (
	"context"
	stderrors "errors"
	"fmt"
	"slices"

	"github.com/agentstation/taxamap/pkg/errors"
	"github.com/agentstation/taxamap/pkg/logging"
	"github.com/agentstation/taxamap/pkg/reconciler"
	"github.com/agentstation/taxamap/pkg/research"
	"github.com/agentstation/taxamap/pkg/store"
	"github.com/agentstation/taxamap/pkg/taxa"
	"github.com/agentstation/taxamap/pkg/types"
)

// outcome is what one research-merge-commit flight hands its callers.
type outcome struct {
	id        string
	partial   bool
	fromStore bool
}

// Resolve returns the profile of the taxon query names.
func (c *client) Resolve(ctx context.Context, query string) (*taxa.Profile, error) {
	key := taxa.NormalizeName(query)
	if key == "" {
		return nil, errors.NewValidationError("query", query, "cannot be empty")
	}
	ctx = logging.WithQuery(logging.WithLogger(ctx, c.logger), key)
	logger := logging.FromContext(ctx)

	p, err := c.fromStore(ctx, query)
	switch {
	case err == nil:
		logger.Debug().Str("entity_id", p.Entity.ID).Msg("resolved from store")
		c.hooks.triggerResolved(p)
		return p, nil
	case !errors.IsNotFound(err):
		return nil, err
	}

	// only names are researched; ids that miss are unknown to this store
	if ref := store.ParseRef(query); ref.Kind != store.RefName {
		return nil, errors.NewNotFoundError("entity", query, "no stored record with this identifier")
	}

	ch := c.group.DoChan(key, func() (any, error) {
		// a flight that committed between our miss and this one is not
		// researched again
		e, err := c.store.Get(ctx, query)
		switch {
		case err == nil:
			return outcome{id: e.ID, fromStore: true}, nil
		case !errors.IsNotFound(err):
			return outcome{}, err
		}
		return c.research(ctx, key)
	})
	var out outcome
	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("%w: %w", errors.ErrCanceled, ctx.Err())
	case r := <-ch:
		if r.Err != nil {
			return nil, r.Err
		}
		out = r.Val.(outcome)
	}

	p, err = c.profile(ctx, out.id)
	if err != nil {
		return nil, err
	}
	p.Partial = out.partial
	p.FromStore = out.fromStore
	c.hooks.triggerResolved(p)
	return p, nil
}

// fromStore serves a query from the store alone.
func (c *client) fromStore(ctx context.Context, query string) (*taxa.Profile, error) {
	e, err := c.store.Get(ctx, query)
	if err != nil {
		return nil, err
	}
	children, err := c.store.Children(ctx, e.ID)
	if err != nil {
		return nil, err
	}
	p := taxa.NewProfile(e, children)
	p.FromStore = true
	return p, nil
}

// profile loads the stored profile of a canonical id.
func (c *client) profile(ctx context.Context, id string) (*taxa.Profile, error) {
	e, err := c.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	children, err := c.store.Children(ctx, id)
	if err != nil {
		return nil, err
	}
	return taxa.NewProfile(e, children), nil
}

// research runs a session for key and commits what it found. It runs at
// most once per key at a time.
func (c *client) research(ctx context.Context, key string) (outcome, error) {
	logger := logging.FromContext(ctx)

	res, err := c.orchestrator.Research(ctx, key)
	if err != nil {
		return outcome{}, err
	}
	c.hooks.triggerResearched(res.Session.Summary())
	if ctx.Err() != nil {
		return outcome{}, fmt.Errorf("%w: %w", errors.ErrCanceled, ctx.Err())
	}
	if res.Outcome == research.Failed {
		c.appendCaptures(ctx, "", res.Captures)
		return outcome{}, errors.NewNotFoundError("entity", key, res.Reason)
	}
	if len(res.Captures) == 0 {
		return outcome{}, errors.NewNotFoundError("entity", key, "budget exceeded before any data was found")
	}

	var merged *reconciler.Result
	id, err := c.store.Update(ctx, attachRefs(res.Captures), func(existing *taxa.Entity) (*taxa.Entity, taxa.Children, error) {
		if existing != nil {
			logger.Debug().Str("entity_id", existing.ID).Msg("attaching research to stored entity")
		}
		m, err := c.merger.Merge(existing, res.Captures)
		if err != nil {
			return nil, taxa.Children{}, fmt.Errorf("merging captures: %w", err)
		}
		if m.Entity.ScientificName == "" {
			return nil, taxa.Children{}, errNoScientificName
		}
		merged = m
		return m.Entity, m.Children, nil
	}, key)
	switch {
	case stderrors.Is(err, errNoScientificName):
		c.appendCaptures(ctx, "", res.Captures)
		return outcome{}, errors.NewNotFoundError("entity", key, err.Error())
	case err != nil:
		logger.Error().Err(err).Msg("committing research failed")
		return outcome{}, err
	}
	c.appendCaptures(ctx, id, res.Captures)

	logger.Info().
		Str("entity_id", id).
		Str("outcome", string(res.Outcome)).
		Int("captures", len(res.Captures)).
		Int("conflicts", len(merged.Conflicts)).
		Float64("completeness", merged.Score).
		Msg("research merged into store")
	return outcome{id: id, partial: res.Outcome == research.BudgetExceeded}, nil
}

var errNoScientificName = stderrors.New("no source returned a scientific name")

// attachRefs lists the store references found in taxonomy captures:
// external ids first, then accepted and scientific names.
func attachRefs(captures []taxa.RawCapture) []string {
	var ids, names []string
	for _, capture := range captures {
		if capture.Capability != types.LookupByName {
			continue
		}
		var tp taxa.TaxonomyPayload
		if capture.Decode(&tp) != nil {
			continue
		}
		if tp.SourceRecordID != "" {
			ids = append(ids, string(capture.Source)+":"+tp.SourceRecordID)
		}
		sources := make([]types.SourceID, 0, len(tp.ExternalIDs))
		for source := range tp.ExternalIDs {
			sources = append(sources, source)
		}
		slices.Sort(sources)
		for _, source := range sources {
			ids = append(ids, string(source)+":"+tp.ExternalIDs[source])
		}
		if tp.AcceptedName != "" {
			names = append(names, tp.AcceptedName)
		}
		if tp.ScientificName != "" {
			names = append(names, tp.ScientificName)
		}
	}
	seen := make(map[string]bool)
	refs := make([]string, 0, len(ids)+len(names))
	for _, ref := range append(ids, names...) {
		if !seen[ref] {
			seen[ref] = true
			refs = append(refs, ref)
		}
	}
	return refs
}

// appendCaptures records the raw captures of a session. Failures are
// logged; the merged record is already committed.
func (c *client) appendCaptures(ctx context.Context, entityID string, captures []taxa.RawCapture) {
	logger := logging.FromContext(ctx)
	for _, capture := range captures {
		capture.EntityID = entityID
		if err := c.store.AppendRaw(ctx, capture); err != nil {
			logger.Error().Err(err).Str("capture_id", capture.ID).Msg("appending raw capture failed")
		}
	}
}
