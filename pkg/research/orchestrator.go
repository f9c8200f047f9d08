package research

import (
	"context"
	stderrors "errors"
	"fmt"
	"slices"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"

	"github.com/agentstation/taxamap/pkg/errors"
	"github.com/agentstation/taxamap/pkg/logging"
	"github.com/agentstation/taxamap/pkg/sources"
	"github.com/agentstation/taxamap/pkg/taxa"
	"github.com/agentstation/taxamap/pkg/types"
)

// Orchestrator runs research sessions. At most one session per normalized
// key is in flight; concurrent callers for the same key share its Result.
type Orchestrator struct {
	invoker  Invoker
	reasoner Reasoner
	opts     *options
	group    singleflight.Group
}

// New creates an orchestrator over the given invoker and reasoner.
func New(invoker Invoker, reasoner Reasoner, opts ...Option) (*Orchestrator, error) {
	if invoker == nil {
		return nil, errors.NewValidationError("invoker", nil, "cannot be nil")
	}
	if reasoner == nil {
		return nil, errors.NewValidationError("reasoner", nil, "cannot be nil")
	}
	o := defaultOptions()
	for _, opt := range opts {
		opt(o)
	}
	return &Orchestrator{invoker: invoker, reasoner: reasoner, opts: o}, nil
}

// MaxTurns returns the turn budget of a session.
func (o *Orchestrator) MaxTurns() int { return o.opts.maxTurns }

// Research runs, or joins, the session for query. The returned error is
// non-nil only for an empty query or when ctx ends before the session does;
// every session termination is reported through Result.Outcome.
//
// The session runs on the context of the caller that started it. A caller
// that joins an in-flight session only stops waiting when its own context
// ends.
func (o *Orchestrator) Research(ctx context.Context, query string) (*Result, error) {
	key := taxa.NormalizeName(query)
	if key == "" {
		return nil, errors.NewValidationError("query", query, "cannot be empty")
	}

	ch := o.group.DoChan(key, func() (any, error) {
		return o.run(ctx, key), nil
	})
	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("%w: %w", errors.ErrCanceled, ctx.Err())
	case res := <-ch:
		if res.Shared {
			logging.FromContext(ctx).Debug().Str("query", key).Msg("joined in-flight research session")
		}
		return res.Val.(*Result), nil
	}
}

// run executes one session to termination.
func (o *Orchestrator) run(parent context.Context, key string) *Result {
	s := newSession(key)
	ctx := logging.WithSession(logging.WithQuery(logging.WithLogger(parent, o.opts.logger), key), s.ID)
	logger := logging.FromContext(ctx)
	ctx, cancel := context.WithTimeout(ctx, o.opts.timeout)
	defer cancel()

	var captures []taxa.RawCapture
	finish := func(outcome Outcome, reason string) *Result {
		s.Outcome = outcome
		s.Reason = reason
		s.Duration = time.Since(s.Started)
		sum := s.Summary()
		logger.Info().
			Str("outcome", string(outcome)).
			Str("reason", reason).
			Int("turns", sum.Turns).
			Int("calls", sum.Calls).
			Int("errors", sum.Errors).
			Int("captures", len(captures)).
			Dur("duration", s.Duration).
			Msg("research session finished")
		return &Result{Outcome: outcome, Captures: captures, Reason: reason, Session: s}
	}

	prompt := Prompt{
		Key:          key,
		Instructions: o.opts.instructions,
		Capabilities: o.invoker.Schemas(),
	}
	logger.Debug().Int("max_turns", o.opts.maxTurns).Dur("timeout", o.opts.timeout).Msg("research session started")

	for {
		if len(s.Turns) >= o.opts.maxTurns {
			return finish(BudgetExceeded, fmt.Sprintf("turn budget of %d exhausted", o.opts.maxTurns))
		}
		if outcome, reason, done := o.interrupted(parent, ctx); done {
			return finish(outcome, reason)
		}

		prompt.Transcript = slices.Clone(s.Turns)
		d, err := o.reasoner.Next(ctx, prompt)
		if err != nil {
			if outcome, reason, done := o.interrupted(parent, ctx); done {
				return finish(outcome, reason)
			}
			return finish(Failed, "reasoner: "+err.Error())
		}

		turn := Turn{Index: len(s.Turns), Decision: d}
		switch d.Kind {
		case DecisionStop:
			s.Turns = append(s.Turns, turn)
			if len(captures) == 0 {
				reason := "no data found"
				if d.Text != "" {
					reason += ": " + d.Text
				}
				return finish(Failed, reason)
			}
			return finish(Completed, d.Text)

		case DecisionReport:
			s.Turns = append(s.Turns, turn)
			logger.Debug().Str("report", d.Text).Msg("partial report")

		case DecisionCall:
			inv, capture := o.invoke(ctx, s, d.Call)
			turn.Invocation = inv
			s.Turns = append(s.Turns, turn)
			if !inv.Failed() {
				s.consecutive = 0
				captures = append(captures, capture)
				continue
			}
			if outcome, reason, done := o.interrupted(parent, ctx); done {
				return finish(outcome, reason)
			}
			// an empty answer is not a failing source; it neither counts
			// toward nor resets the consecutive error run
			if inv.ErrorKind == string(errors.KindNotFound) {
				continue
			}
			s.consecutive++
			if s.consecutive >= o.opts.maxConsecutive {
				return finish(Failed, fmt.Sprintf("%d consecutive tool errors, last: %s", s.consecutive, inv.Error))
			}

		default:
			return finish(Failed, fmt.Sprintf("reasoner returned unknown decision %q", d.Kind))
		}
	}
}

// interrupted reports whether the session context has ended, telling apart
// caller cancellation from the wall-clock budget.
func (o *Orchestrator) interrupted(parent, session context.Context) (Outcome, string, bool) {
	if err := parent.Err(); err != nil {
		return Failed, "canceled: " + err.Error(), true
	}
	if session.Err() != nil {
		return BudgetExceeded, fmt.Sprintf("wall-clock budget of %s exhausted", o.opts.timeout), true
	}
	return "", "", false
}

// invoke executes one tool call with the retry policy and returns the
// recorded invocation and, on success, its capture.
func (o *Orchestrator) invoke(ctx context.Context, s *Session, call ToolCall) (*Invocation, taxa.RawCapture) {
	start := time.Now()
	inv := &Invocation{Call: call}
	logger := logging.FromContext(ctx).With().
		Str("capability", string(call.Capability)).
		Logger()

	source, err := o.pick(s, call)
	if err != nil {
		inv.fail(err)
		logger.Warn().Err(err).Msg("tool call rejected")
		return inv, taxa.RawCapture{}
	}
	inv.Source = source
	logger = logger.With().Str("source", string(source)).Logger()

	var unavailable int
	var rateWaited bool
	for {
		inv.Attempts++
		capture, err := o.invoker.Invoke(ctx, sources.Call{
			Capability: call.Capability,
			Source:     source,
			Args:       call.Args,
			QueryKey:   s.Key,
			Timeout:    o.callTimeout(ctx, call),
		})
		if err == nil {
			inv.Source = capture.Source
			inv.CaptureID = capture.ID
			inv.Payload = capture.Payload
			inv.Duration = time.Since(start)
			logger.Debug().Int("attempts", inv.Attempts).Dur("duration", inv.Duration).Msg("tool call succeeded")
			return inv, capture
		}

		se := errors.AsSourceError(string(source), string(call.Capability), err)
		var wait time.Duration
		retry := false
		switch se.Kind {
		case errors.KindUnavailable:
			if unavailable < o.opts.unavailableRetry && !errors.IsCanceled(se) {
				wait, retry = o.backoff(unavailable), true
				unavailable++
			}
		case errors.KindRateLimited:
			if !rateWaited {
				rateWaited = true
				wait = min(se.RetryAfter, o.opts.maxBackoff)
				if wait <= 0 {
					wait = o.opts.backoff
				}
				retry = fits(ctx, wait)
			}
		case errors.KindMalformed:
			// a call the registry rejected says nothing about the source
			if source != "" && !errors.IsInvalidCall(se) {
				s.skipped[source] = true
			}
		}

		if retry && sleep(ctx, wait) {
			logger.Debug().Err(se).Dur("wait", wait).Int("attempt", inv.Attempts).Msg("retrying tool call")
			continue
		}
		inv.fail(se)
		inv.Duration = time.Since(start)
		level := zerolog.WarnLevel
		if se.Kind == errors.KindNotFound {
			level = zerolog.InfoLevel
		}
		logger.WithLevel(level).Err(se).Int("attempts", inv.Attempts).Msg("tool call failed")
		return inv, taxa.RawCapture{}
	}
}

// callTimeout is the per-call override for call, clamped to what is left of
// the session. Zero leaves the registry default in place.
func (o *Orchestrator) callTimeout(ctx context.Context, call ToolCall) time.Duration {
	d := call.Timeout
	if d <= 0 {
		d = o.opts.callTimeouts[call.Capability]
	}
	if d <= 0 {
		return 0
	}
	if deadline, ok := ctx.Deadline(); ok {
		if left := time.Until(deadline); left < d {
			d = max(left, time.Millisecond)
		}
	}
	return d
}

// pick chooses the source for a call, honoring sources skipped earlier in
// the session. An empty result lets the invoker route the call itself.
func (o *Orchestrator) pick(s *Session, call ToolCall) (types.SourceID, error) {
	if call.Source != "" {
		if s.skipped[call.Source] {
			return "", errors.NewSourceError(string(call.Source), string(call.Capability), errors.KindMalformed,
				errSkipped)
		}
		return call.Source, nil
	}
	ids := o.invoker.Sources(call.Capability)
	for _, id := range ids {
		if !s.skipped[id] {
			return id, nil
		}
	}
	if len(ids) == 0 {
		return "", nil
	}
	return "", errors.NewSourceError("", string(call.Capability), errors.KindMalformed, errSkipped)
}

var errSkipped = stderrors.New("source skipped for the rest of the session after a malformed response")

// backoff returns the wait before retry n (zero based).
func (o *Orchestrator) backoff(n int) time.Duration {
	return min(o.opts.backoff<<n, o.opts.maxBackoff)
}

// fits reports whether waiting d still leaves time in ctx.
func fits(ctx context.Context, d time.Duration) bool {
	deadline, ok := ctx.Deadline()
	return !ok || time.Until(deadline) > d
}

// sleep waits d or until ctx ends, reporting whether the full wait elapsed.
func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

func (i *Invocation) fail(err error) {
	i.Error = err.Error()
	var se *errors.SourceError
	if stderrors.As(err, &se) {
		i.ErrorKind = string(se.Kind)
	}
}
