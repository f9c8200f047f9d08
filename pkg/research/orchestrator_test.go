package research_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	pkgerrors "github.com/agentstation/taxamap/pkg/errors"
	"github.com/agentstation/taxamap/pkg/research"
	"github.com/agentstation/taxamap/pkg/sources"
	"github.com/agentstation/taxamap/pkg/sources/sourcestest"
	"github.com/agentstation/taxamap/pkg/taxa"
	"github.com/agentstation/taxamap/pkg/types"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func registry(t *testing.T, fetchers ...sources.Fetcher) *sources.Registry {
	t.Helper()
	var opts []sources.Option
	for _, f := range fetchers {
		opts = append(opts, sources.WithFetcher(f))
	}
	reg, err := sources.NewRegistry(opts...)
	require.NoError(t, err)
	return reg
}

// scripted answers turn n with decisions[n], then stops.
func scripted(decisions ...research.Decision) research.Reasoner {
	return research.ReasonerFunc(func(_ context.Context, p research.Prompt) (research.Decision, error) {
		if n := len(p.Transcript); n < len(decisions) {
			return decisions[n], nil
		}
		return research.Stop("script finished"), nil
	})
}

func lookup(name string) research.Decision {
	return research.CallTool(types.LookupByName, "", sources.Args{"name": name})
}

func fastRetries() research.Option {
	return research.WithRetryPolicy(2, time.Millisecond)
}

func TestNew(t *testing.T) {
	_, err := research.New(nil, research.SequentialReasoner{})
	assert.True(t, pkgerrors.IsValidationError(err))

	_, err = research.New(registry(t), nil)
	assert.True(t, pkgerrors.IsValidationError(err))
}

func TestResearchEmptyQuery(t *testing.T) {
	o, err := research.New(registry(t), research.SequentialReasoner{})
	require.NoError(t, err)

	_, err = o.Research(context.Background(), "  \t")
	assert.True(t, pkgerrors.IsValidationError(err))
}

func TestResearchCompleted(t *testing.T) {
	worms := sourcestest.New(types.WoRMSID).Returns(types.LookupByName, taxa.TaxonomyPayload{ScientificName: "Ulva lactuca"})
	o, err := research.New(registry(t, worms), scripted(lookup("Ulva lactuca")))
	require.NoError(t, err)

	res, err := o.Research(context.Background(), "Ulva  Lactuca")
	require.NoError(t, err)
	assert.Equal(t, research.Completed, res.Outcome)
	require.Len(t, res.Captures, 1)
	assert.Equal(t, "ulva lactuca", res.Captures[0].QueryKey)
	assert.Equal(t, types.WoRMSID, res.Captures[0].Source)

	sum := res.Session.Summary()
	assert.Equal(t, 2, sum.Turns)
	assert.Equal(t, 1, sum.Calls)
	assert.Equal(t, 1, sum.Captures)
	assert.NotEmpty(t, sum.ID)
	assert.Equal(t, research.Completed, sum.Outcome)
}

func TestTurnBudget(t *testing.T) {
	gbif := sourcestest.New(types.GBIFID).
		Returns(types.GetOccurrences, taxa.OccurrencePayload{Total: 1}).
		Returns(types.GetMedia, taxa.MediaPayload{})
	var asked atomic.Int32
	var calls []research.Decision
	for range 5 {
		calls = append(calls, research.CallTool(types.GetOccurrences, "", sources.Args{"name": "Ulva lactuca"}))
	}
	inner := scripted(calls...)
	reasoner := research.ReasonerFunc(func(ctx context.Context, p research.Prompt) (research.Decision, error) {
		asked.Add(1)
		return inner.Next(ctx, p)
	})

	o, err := research.New(registry(t, gbif), reasoner, research.WithMaxTurns(2))
	require.NoError(t, err)
	assert.Equal(t, 2, o.MaxTurns())

	res, err := o.Research(context.Background(), "Ulva lactuca")
	require.NoError(t, err)
	assert.Equal(t, research.BudgetExceeded, res.Outcome)
	assert.Len(t, res.Captures, 2)
	assert.Len(t, res.Session.Turns, 2)
	assert.Equal(t, int32(2), asked.Load())
	assert.Equal(t, 2, gbif.Calls())
	assert.Contains(t, res.Reason, "turn budget")
}

func TestWallClockBudget(t *testing.T) {
	gbif := sourcestest.New(types.GBIFID).Returns(types.GetOccurrences, taxa.OccurrencePayload{Total: 1})
	reasoner := research.ReasonerFunc(func(ctx context.Context, p research.Prompt) (research.Decision, error) {
		if len(p.Transcript) == 0 {
			return research.CallTool(types.GetOccurrences, "", sources.Args{"name": "x"}), nil
		}
		<-ctx.Done()
		return research.Decision{}, ctx.Err()
	})

	o, err := research.New(registry(t, gbif), reasoner, research.WithTimeout(30*time.Millisecond))
	require.NoError(t, err)

	res, err := o.Research(context.Background(), "x")
	require.NoError(t, err)
	assert.Equal(t, research.BudgetExceeded, res.Outcome)
	assert.Len(t, res.Captures, 1)
	assert.Contains(t, res.Reason, "wall-clock")
}

func TestConsecutiveErrors(t *testing.T) {
	worms := sourcestest.New(types.WoRMSID).Returns(types.LookupByName, taxa.TaxonomyPayload{ScientificName: "Ulva"})
	gbif := sourcestest.New(types.GBIFID).Fails(types.GetMedia, pkgerrors.NewAPIError("gbif", 503, "down"))
	media := research.CallTool(types.GetMedia, types.GBIFID, sources.Args{"name": "Ulva"})

	o, err := research.New(registry(t, worms, gbif),
		scripted(lookup("Ulva"), media, media, media, lookup("Ulva")),
		research.WithRetryPolicy(0, time.Millisecond))
	require.NoError(t, err)

	res, err := o.Research(context.Background(), "Ulva")
	require.NoError(t, err)
	assert.Equal(t, research.Failed, res.Outcome)
	assert.Contains(t, res.Reason, "3 consecutive tool errors")
	assert.Len(t, res.Captures, 1, "captures gathered before the failure are kept")
	assert.Equal(t, 1, worms.Calls())
	assert.Equal(t, 3, gbif.Calls())
}

func TestErrorCountResetsOnSuccess(t *testing.T) {
	worms := sourcestest.New(types.WoRMSID).Returns(types.LookupByName, taxa.TaxonomyPayload{ScientificName: "Ulva"})
	gbif := sourcestest.New(types.GBIFID).Fails(types.GetMedia, pkgerrors.NewAPIError("gbif", 503, "down"))
	media := research.CallTool(types.GetMedia, types.GBIFID, sources.Args{"name": "Ulva"})

	o, err := research.New(registry(t, worms, gbif),
		scripted(media, media, lookup("Ulva"), media, media),
		research.WithRetryPolicy(0, time.Millisecond))
	require.NoError(t, err)

	res, err := o.Research(context.Background(), "Ulva")
	require.NoError(t, err)
	assert.Equal(t, research.Completed, res.Outcome)
	assert.Equal(t, 4, res.Session.Summary().Errors)
}

func TestRetryPolicy(t *testing.T) {
	ctx := context.Background()

	t.Run("unavailable is retried", func(t *testing.T) {
		var n atomic.Int32
		gbif := sourcestest.New(types.GBIFID).Handle(types.GetMedia, func(context.Context, sources.Args) (any, error) {
			if n.Add(1) < 3 {
				return nil, pkgerrors.NewAPIError("gbif", 502, "bad gateway")
			}
			return taxa.MediaPayload{}, nil
		})
		o, err := research.New(registry(t, gbif),
			scripted(research.CallTool(types.GetMedia, "", sources.Args{"name": "x"})), fastRetries())
		require.NoError(t, err)

		res, err := o.Research(ctx, "x")
		require.NoError(t, err)
		assert.Equal(t, research.Completed, res.Outcome)
		inv := res.Session.Turns[0].Invocation
		require.NotNil(t, inv)
		assert.Equal(t, 3, inv.Attempts)
		assert.False(t, inv.Failed())
	})

	t.Run("unavailable retries are bounded", func(t *testing.T) {
		gbif := sourcestest.New(types.GBIFID).Fails(types.GetMedia, errors.New("connection reset"))
		o, err := research.New(registry(t, gbif),
			scripted(research.CallTool(types.GetMedia, "", sources.Args{"name": "x"})), fastRetries())
		require.NoError(t, err)

		res, err := o.Research(ctx, "x")
		require.NoError(t, err)
		assert.Equal(t, research.Failed, res.Outcome)
		inv := res.Session.Turns[0].Invocation
		assert.Equal(t, 3, inv.Attempts)
		assert.Equal(t, string(pkgerrors.KindUnavailable), inv.ErrorKind)
		assert.Equal(t, 3, gbif.Calls())
	})

	t.Run("rate limit waits once", func(t *testing.T) {
		limited := pkgerrors.NewAPIError("pubmed", 429, "slow down")
		limited.RetryAfter = 5 * time.Millisecond
		pubmed := sourcestest.New(types.PubMedID).Fails(types.GetLiterature, limited)
		o, err := research.New(registry(t, pubmed),
			scripted(research.CallTool(types.GetLiterature, "", sources.Args{"name": "x"})), fastRetries())
		require.NoError(t, err)

		res, err := o.Research(ctx, "x")
		require.NoError(t, err)
		inv := res.Session.Turns[0].Invocation
		assert.Equal(t, 2, inv.Attempts)
		assert.Equal(t, string(pkgerrors.KindRateLimited), inv.ErrorKind)
	})

	t.Run("rate limit beyond the budget is skipped", func(t *testing.T) {
		limited := pkgerrors.NewAPIError("pubmed", 429, "slow down")
		limited.RetryAfter = 20 * time.Second
		pubmed := sourcestest.New(types.PubMedID).Fails(types.GetLiterature, limited)
		o, err := research.New(registry(t, pubmed),
			scripted(research.CallTool(types.GetLiterature, "", sources.Args{"name": "x"})),
			research.WithTimeout(time.Second))
		require.NoError(t, err)

		res, err := o.Research(ctx, "x")
		require.NoError(t, err)
		assert.Equal(t, 1, res.Session.Turns[0].Invocation.Attempts)
		assert.Equal(t, 1, pubmed.Calls())
	})

	t.Run("malformed source is skipped for the session", func(t *testing.T) {
		gbif := sourcestest.New(types.GBIFID).Fails(types.GetMedia, pkgerrors.WrapParse("json", "", errors.New("unexpected EOF")))
		zenodo := sourcestest.New(types.ZenodoID).Returns(types.GetMedia, taxa.MediaPayload{})
		call := research.CallTool(types.GetMedia, "", sources.Args{"name": "x"})
		explicit := research.CallTool(types.GetMedia, types.GBIFID, sources.Args{"name": "x"})
		o, err := research.New(registry(t, gbif, zenodo), scripted(call, explicit, call), fastRetries())
		require.NoError(t, err)

		res, err := o.Research(ctx, "x")
		require.NoError(t, err)
		assert.Equal(t, research.Completed, res.Outcome)
		assert.Equal(t, 1, gbif.Calls())
		assert.Equal(t, 1, zenodo.Calls())

		turns := res.Session.Turns
		require.Len(t, turns, 4)
		assert.Equal(t, string(pkgerrors.KindMalformed), turns[0].Invocation.ErrorKind)
		assert.Equal(t, string(pkgerrors.KindMalformed), turns[1].Invocation.ErrorKind)
		assert.Equal(t, types.ZenodoID, turns[2].Invocation.Source)
	})

	t.Run("rejected call does not skip the source", func(t *testing.T) {
		worms := sourcestest.New(types.WoRMSID).Returns(types.LookupByName, taxa.TaxonomyPayload{ScientificName: "Ulva lactuca"})
		bad := research.CallTool(types.LookupByName, types.WoRMSID, sources.Args{})
		good := research.CallTool(types.LookupByName, types.WoRMSID, sources.Args{"name": "Ulva lactuca"})
		o, err := research.New(registry(t, worms), scripted(bad, good), fastRetries())
		require.NoError(t, err)

		res, err := o.Research(ctx, "Ulva lactuca")
		require.NoError(t, err)
		assert.Equal(t, research.Completed, res.Outcome)
		assert.Equal(t, 1, worms.Calls())
		require.Len(t, res.Captures, 1)

		turns := res.Session.Turns
		assert.Equal(t, string(pkgerrors.KindMalformed), turns[0].Invocation.ErrorKind)
		assert.False(t, turns[1].Invocation.Failed())
	})
}

func TestNotFoundDoesNotAbort(t *testing.T) {
	worms := sourcestest.New(types.WoRMSID).Fails(types.LookupByName, pkgerrors.NewAPIError("worms", 404, "no match"))
	l := lookup("Nonexistus fakeus")
	o, err := research.New(registry(t, worms), scripted(l, l, l, l))
	require.NoError(t, err)

	res, err := o.Research(context.Background(), "Nonexistus fakeus")
	require.NoError(t, err)
	assert.Equal(t, research.Failed, res.Outcome)
	assert.Contains(t, res.Reason, "no data found")
	assert.Equal(t, 4, worms.Calls())
	assert.Empty(t, res.Captures)
}

func TestNotFoundNeitherCountsNorResetsErrors(t *testing.T) {
	var n atomic.Int32
	worms := sourcestest.New(types.WoRMSID).Handle(types.LookupByName, func(context.Context, sources.Args) (any, error) {
		if n.Add(1) == 2 {
			return nil, pkgerrors.NewAPIError("worms", 404, "no match")
		}
		return nil, pkgerrors.NewAPIError("worms", 502, "bad gateway")
	})
	l := lookup("Ulva lactuca")
	o, err := research.New(registry(t, worms), scripted(l, l, l, l, l), research.WithRetryPolicy(0, time.Millisecond))
	require.NoError(t, err)

	res, err := o.Research(context.Background(), "Ulva lactuca")
	require.NoError(t, err)
	assert.Equal(t, research.Failed, res.Outcome)
	assert.Contains(t, res.Reason, "3 consecutive tool errors")
	assert.Equal(t, 4, worms.Calls())
	assert.Len(t, res.Session.Turns, 4)
}

func TestCallTimeout(t *testing.T) {
	deadlines := make(chan time.Duration, 1)
	worms := sourcestest.New(types.WoRMSID).Handle(types.LookupByName, func(ctx context.Context, _ sources.Args) (any, error) {
		deadline, ok := ctx.Deadline()
		assert.True(t, ok)
		deadlines <- time.Until(deadline)
		return taxa.TaxonomyPayload{ScientificName: "Ulva lactuca"}, nil
	})
	reg := registry(t, worms)

	t.Run("capability override", func(t *testing.T) {
		o, err := research.New(reg, scripted(lookup("Ulva lactuca")),
			research.WithTimeout(time.Minute),
			research.WithCallTimeout(types.LookupByName, 300*time.Millisecond))
		require.NoError(t, err)

		_, err = o.Research(context.Background(), "Ulva lactuca")
		require.NoError(t, err)
		left := <-deadlines
		assert.LessOrEqual(t, left, 300*time.Millisecond)
		assert.Greater(t, left, time.Duration(0))
	})

	t.Run("tool call override wins", func(t *testing.T) {
		call := research.CallTool(types.LookupByName, "", sources.Args{"name": "Ulva lactuca"})
		call.Call.Timeout = 200 * time.Millisecond
		o, err := research.New(reg, scripted(call),
			research.WithTimeout(time.Minute),
			research.WithCallTimeout(types.LookupByName, 30*time.Second))
		require.NoError(t, err)

		_, err = o.Research(context.Background(), "ulva lactuca")
		require.NoError(t, err)
		assert.LessOrEqual(t, <-deadlines, 200*time.Millisecond)
	})

	t.Run("clamped to the session budget", func(t *testing.T) {
		call := research.CallTool(types.LookupByName, "", sources.Args{"name": "Ulva lactuca"})
		call.Call.Timeout = time.Hour
		o, err := research.New(reg, scripted(call), research.WithTimeout(2*time.Second))
		require.NoError(t, err)

		_, err = o.Research(context.Background(), "Ulva lactuca ")
		require.NoError(t, err)
		assert.LessOrEqual(t, <-deadlines, 2*time.Second)
	})
}

func TestReasonerFailures(t *testing.T) {
	t.Run("error", func(t *testing.T) {
		reasoner := research.ReasonerFunc(func(context.Context, research.Prompt) (research.Decision, error) {
			return research.Decision{}, errors.New("model unavailable")
		})
		o, err := research.New(registry(t), reasoner)
		require.NoError(t, err)

		res, err := o.Research(context.Background(), "x")
		require.NoError(t, err)
		assert.Equal(t, research.Failed, res.Outcome)
		assert.Contains(t, res.Reason, "model unavailable")
	})

	t.Run("unknown decision", func(t *testing.T) {
		o, err := research.New(registry(t), scripted(research.Decision{Kind: "dance"}))
		require.NoError(t, err)

		res, err := o.Research(context.Background(), "x")
		require.NoError(t, err)
		assert.Equal(t, research.Failed, res.Outcome)
	})
}

func TestReportsAreTurns(t *testing.T) {
	worms := sourcestest.New(types.WoRMSID).Returns(types.LookupByName, taxa.TaxonomyPayload{ScientificName: "Ulva"})
	var seen []int
	inner := scripted(research.Report("thinking"), lookup("Ulva"))
	reasoner := research.ReasonerFunc(func(ctx context.Context, p research.Prompt) (research.Decision, error) {
		seen = append(seen, len(p.Transcript))
		assert.Equal(t, research.DefaultInstructions, p.Instructions)
		assert.Equal(t, "ulva", p.Key)
		return inner.Next(ctx, p)
	})
	o, err := research.New(registry(t, worms), reasoner)
	require.NoError(t, err)

	res, err := o.Research(context.Background(), "Ulva")
	require.NoError(t, err)
	assert.Equal(t, research.Completed, res.Outcome)
	assert.Equal(t, []int{0, 1, 2}, seen)
	assert.Equal(t, research.DecisionReport, res.Session.Turns[0].Decision.Kind)
	assert.Nil(t, res.Session.Turns[0].Invocation)
}

func TestSingleFlight(t *testing.T) {
	started := make(chan struct{})
	release := make(chan struct{})
	var once sync.Once
	worms := sourcestest.New(types.WoRMSID).Handle(types.LookupByName, func(context.Context, sources.Args) (any, error) {
		once.Do(func() { close(started) })
		<-release
		return taxa.TaxonomyPayload{ScientificName: "Ulva lactuca"}, nil
	})
	var sessions atomic.Int32
	reasoner := research.ReasonerFunc(func(_ context.Context, p research.Prompt) (research.Decision, error) {
		if len(p.Transcript) == 0 {
			sessions.Add(1)
			return lookup("Ulva lactuca"), nil
		}
		return research.Stop("done"), nil
	})
	o, err := research.New(registry(t, worms), reasoner)
	require.NoError(t, err)

	ctx := context.Background()
	const callers = 8
	results := make([]*research.Result, callers)
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		results[0], _ = o.Research(ctx, "Ulva lactuca")
	}()
	<-started
	for i := 1; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results[i], _ = o.Research(ctx, "ulva LACTUCA")
		}()
	}
	time.Sleep(50 * time.Millisecond)
	close(release)
	wg.Wait()

	assert.Equal(t, int32(1), sessions.Load())
	assert.Equal(t, 1, worms.Calls())
	for _, r := range results {
		require.NotNil(t, r)
		assert.Same(t, results[0], r)
	}
}

func TestJoinerCancellation(t *testing.T) {
	started := make(chan struct{})
	release := make(chan struct{})
	worms := sourcestest.New(types.WoRMSID).Handle(types.LookupByName, func(context.Context, sources.Args) (any, error) {
		close(started)
		<-release
		return taxa.TaxonomyPayload{ScientificName: "Ulva"}, nil
	})
	o, err := research.New(registry(t, worms), scripted(lookup("Ulva")))
	require.NoError(t, err)

	done := make(chan *research.Result)
	go func() {
		res, _ := o.Research(context.Background(), "Ulva")
		done <- res
	}()
	<-started

	joinCtx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = o.Research(joinCtx, "Ulva")
	assert.True(t, pkgerrors.IsCanceled(err))

	close(release)
	res := <-done
	require.NotNil(t, res)
	assert.Equal(t, research.Completed, res.Outcome)
}

func TestOriginatorCancellation(t *testing.T) {
	worms := sourcestest.New(types.WoRMSID).Handle(types.LookupByName, func(ctx context.Context, _ sources.Args) (any, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	})
	o, err := research.New(registry(t, worms), scripted(lookup("Ulva")))
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = o.Research(ctx, "Ulva")
	assert.True(t, pkgerrors.IsCanceled(err))
}
