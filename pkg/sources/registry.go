package sources

import (
	"context"
	stderrors "errors"
	"fmt"
	"slices"
	"time"

	"github.com/agentstation/taxamap/pkg/errors"
	"github.com/agentstation/taxamap/pkg/taxa"
	"github.com/agentstation/taxamap/pkg/types"
)

// Registry maps capabilities to the fetchers that serve them. It is built
// once and read-only afterwards, so it is safe for concurrent use.
type Registry struct {
	fetchers     map[types.SourceID]Fetcher
	order        []types.SourceID
	byCapability map[types.Capability][]types.SourceID
	timeouts     map[types.Capability]time.Duration
}

// Option configures a Registry.
type Option func(*registryOptions)

type registryOptions struct {
	fetchers []Fetcher
	timeouts map[types.Capability]time.Duration
}

// WithFetcher registers a fetcher. Registration order decides which source
// serves a capability when a call names none.
func WithFetcher(f Fetcher) Option {
	return func(o *registryOptions) {
		o.fetchers = append(o.fetchers, f)
	}
}

// WithTimeout overrides the default timeout of a capability.
func WithTimeout(c types.Capability, d time.Duration) Option {
	return func(o *registryOptions) {
		o.timeouts[c] = d
	}
}

// NewRegistry builds a registry from the given options.
func NewRegistry(opts ...Option) (*Registry, error) {
	o := &registryOptions{timeouts: make(map[types.Capability]time.Duration)}
	for _, opt := range opts {
		opt(o)
	}

	r := &Registry{
		fetchers:     make(map[types.SourceID]Fetcher, len(o.fetchers)),
		byCapability: make(map[types.Capability][]types.SourceID),
		timeouts:     make(map[types.Capability]time.Duration, len(defaultTimeouts)),
	}
	for c, d := range defaultTimeouts {
		r.timeouts[c] = d
	}
	for c, d := range o.timeouts {
		if !c.IsValid() {
			return nil, errors.NewValidationError("capability", c, "unknown capability")
		}
		if d <= 0 {
			return nil, errors.NewValidationError("timeout", d, "must be positive")
		}
		r.timeouts[c] = d
	}

	for _, f := range o.fetchers {
		if f == nil {
			return nil, errors.NewValidationError("fetcher", nil, "nil fetcher")
		}
		id := f.ID()
		if _, dup := r.fetchers[id]; dup {
			return nil, errors.NewValidationError("source", id, "registered twice")
		}
		r.fetchers[id] = f
		r.order = append(r.order, id)
		for _, c := range f.Capabilities() {
			if !c.IsValid() {
				return nil, errors.NewValidationError("capability", c,
					fmt.Sprintf("source %s declares an unknown capability", id))
			}
			r.byCapability[c] = append(r.byCapability[c], id)
		}
	}
	return r, nil
}

// Get returns the fetcher registered for a source.
func (r *Registry) Get(id types.SourceID) (Fetcher, error) {
	f, ok := r.fetchers[id]
	if !ok {
		return nil, &errors.ValidationError{
			Field:   "source",
			Value:   id,
			Message: "source is not registered",
		}
	}
	return f, nil
}

// Has reports whether source serves capability.
func (r *Registry) Has(id types.SourceID, c types.Capability) bool {
	return slices.Contains(r.byCapability[c], id)
}

// List returns the registered source IDs in registration order.
func (r *Registry) List() []types.SourceID {
	return slices.Clone(r.order)
}

// Sources returns the sources serving a capability in registration order.
func (r *Registry) Sources(c types.Capability) []types.SourceID {
	return slices.Clone(r.byCapability[c])
}

// Timeout returns the effective timeout of a capability.
func (r *Registry) Timeout(c types.Capability) time.Duration {
	return r.timeouts[c]
}

// Schemas returns the schema of every capability at least one registered
// source serves, each annotated with those sources.
func (r *Registry) Schemas() []Schema {
	var out []Schema
	for _, c := range types.Capabilities() {
		ids := r.byCapability[c]
		if len(ids) == 0 {
			continue
		}
		s := schemas[c]
		s.Params = slices.Clone(s.Params)
		s.Sources = slices.Clone(ids)
		out = append(out, s)
	}
	return out
}

// Invoke performs one capability call and wraps its payload in a raw
// capture. Every failure is returned as an *errors.SourceError.
func (r *Registry) Invoke(ctx context.Context, call Call) (taxa.RawCapture, error) {
	source, err := r.route(call)
	if err != nil {
		return taxa.RawCapture{}, err
	}
	fail := func(kind errors.SourceErrorKind, err error) (taxa.RawCapture, error) {
		return taxa.RawCapture{}, errors.NewSourceError(string(source), string(call.Capability), kind, err)
	}

	for _, name := range schemas[call.Capability].Required() {
		if call.Args.Get(name) == "" {
			return taxa.RawCapture{}, errors.NewInvalidCallError(string(source), string(call.Capability),
				errors.NewValidationError(name, nil, "required argument is missing"))
		}
	}

	timeout := call.Timeout
	if timeout <= 0 {
		timeout = r.timeouts[call.Capability]
	}
	callCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	payload, err := r.fetchers[source].Fetch(callCtx, call.Capability, call.Args)
	if err != nil {
		switch {
		case ctx.Err() != nil:
			// the caller gave up; not the source's fault
			return fail(errors.KindUnavailable, fmt.Errorf("%w: %w", errors.ErrCanceled, ctx.Err()))
		case stderrors.Is(callCtx.Err(), context.DeadlineExceeded):
			return fail(errors.KindUnavailable, errors.NewTimeoutError(string(call.Capability), timeout))
		}
		return taxa.RawCapture{}, errors.AsSourceError(string(source), string(call.Capability), err)
	}
	if payload == nil {
		return fail(errors.KindMalformed, stderrors.New("empty payload"))
	}

	capture, err := taxa.NewCapture(source, call.Capability, call.QueryKey, payload)
	if err != nil {
		return fail(errors.KindMalformed, err)
	}
	if rp, ok := payload.(Retractor); ok {
		capture.Retracted = rp.RetractedFields()
	}
	return capture, nil
}

// route picks the source serving a call.
func (r *Registry) route(call Call) (types.SourceID, error) {
	if !call.Capability.IsValid() {
		return call.Source, errors.NewInvalidCallError(string(call.Source), string(call.Capability),
			errors.NewValidationError("capability", call.Capability, "unknown capability"))
	}
	if call.Source == "" {
		ids := r.byCapability[call.Capability]
		if len(ids) == 0 {
			return "", errors.NewInvalidCallError("", string(call.Capability),
				stderrors.New("no registered source serves this capability"))
		}
		return ids[0], nil
	}
	if !r.Has(call.Source, call.Capability) {
		return call.Source, errors.NewInvalidCallError(string(call.Source), string(call.Capability),
			stderrors.New("source does not serve this capability"))
	}
	return call.Source, nil
}
