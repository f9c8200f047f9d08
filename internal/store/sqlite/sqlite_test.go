package sqlite

import (
	"context"
	"encoding/json"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/agentstation/utc"
	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentstation/taxamap/pkg/errors"
	"github.com/agentstation/taxamap/pkg/taxa"
	"github.com/agentstation/taxamap/pkg/types"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(context.Background(), filepath.Join(t.TempDir(), "taxamap.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func ulva() *taxa.Entity {
	fetched := utc.New(time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC))
	return &taxa.Entity{
		ScientificName: "Ulva lactuca",
		Authority:      "Linnaeus, 1753",
		Rank:           "Species",
		Status:         taxa.StatusAccepted,
		Classification: taxa.Classification{
			Kingdom: "Plantae", Phylum: "Chlorophyta", Class: "Ulvophyceae",
			Order: "Ulvales", Family: "Ulvaceae", Genus: "Ulva",
		},
		Synonyms:    []string{"Ulva fasciata", "Ulva lactuca var. latissima"},
		ExternalIDs: map[types.SourceID]string{types.WoRMSID: "145990", types.AlgaeBaseID: "39"},
		Ecology:     taxa.Ecology{Marine: taxa.Bool(true), Freshwater: taxa.Bool(false)},
		Provenance: map[string]taxa.FieldSource{
			taxa.FieldScientificName: {Source: types.WoRMSID, FetchedAt: fetched},
			taxa.FieldRank:           {Source: types.WoRMSID, FetchedAt: fetched},
		},
	}
}

func children() taxa.Children {
	return taxa.Children{
		Distributions: []taxa.DistributionRecord{
			{Latitude: 43.46231, Longitude: -3.80476, EventDate: "2019-05-12", CountryCode: "ES", Source: types.GBIFID},
		},
		Literature: []taxa.LiteratureRecord{
			{Title: "Ecology of Ulva lactuca", DOI: "10.1/abc", Relevance: 0.5, Source: types.PubMedID},
		},
		Media: []taxa.MediaRecord{
			{URL: "https://example.org/ulva.jpg", Caption: "thallus", Source: types.GBIFID},
		},
	}
}

func TestOpenIsIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "taxamap.db")
	s, err := Open(context.Background(), path)
	require.NoError(t, err)
	require.NoError(t, s.Close())

	s, err = Open(context.Background(), path)
	require.NoError(t, err)
	require.NoError(t, s.Close())

	_, err = Open(context.Background(), " ")
	assert.True(t, errors.IsValidationError(err))
}

func TestMemoryStore(t *testing.T) {
	s, err := Open(context.Background(), MemoryPath)
	require.NoError(t, err)
	defer s.Close()

	id, err := s.Upsert(context.Background(), ulva(), taxa.Children{})
	require.NoError(t, err)
	_, err = s.Get(context.Background(), id)
	require.NoError(t, err)
}

func TestUpsertAndGet(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	id, err := s.Upsert(ctx, ulva(), children(), "Sea lettuce")
	require.NoError(t, err)
	require.NotEmpty(t, id)

	got, err := s.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, id, got.ID)
	assert.Equal(t, "Ulva lactuca", got.ScientificName)
	assert.Equal(t, "Ulvales", got.Classification.Order)
	assert.Equal(t, []string{"Ulva fasciata", "Ulva lactuca var. latissima"}, got.Synonyms)
	assert.Equal(t, ulva().ExternalIDs, got.ExternalIDs)
	assert.Equal(t, ulva().Provenance, got.Provenance)
	require.NotNil(t, got.Ecology.Marine)
	assert.True(t, *got.Ecology.Marine)
	assert.Nil(t, got.Ecology.Brackish)
	assert.False(t, got.CreatedAt.IsZero())

	for _, ref := range []string{"ULVA  lactuca", "Ulva fasciata", "sea lettuce", "worms:145990", "algaebase:39"} {
		t.Run(ref, func(t *testing.T) {
			e, err := s.Get(ctx, ref)
			require.NoError(t, err)
			assert.Equal(t, id, e.ID)
		})
	}

	_, err = s.Get(ctx, "Chloropicon laureae")
	assert.True(t, errors.IsNotFound(err))
	_, err = s.Get(ctx, "gbif:1")
	assert.True(t, errors.IsNotFound(err))
	_, err = s.Get(ctx, "6f9619ff-8b86-d011-b42d-00c04fc964ff")
	assert.True(t, errors.IsNotFound(err))
}

func TestUpsertUpdatesAndDeduplicatesChildren(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	id, err := s.Upsert(ctx, ulva(), children())
	require.NoError(t, err)
	first, err := s.Get(ctx, id)
	require.NoError(t, err)

	e := ulva()
	e.ID = id
	e.CreatedAt = first.CreatedAt
	e.Morphology.Description = "Thallus membranous"
	more := children()
	more.Literature[0].Relevance = 0.9
	more.Literature[0].Abstract = "abstract"
	more.Distributions = append(more.Distributions, taxa.DistributionRecord{
		Latitude: 50.1, Longitude: -5.2, EventDate: "2008-07", Source: types.GBIFID,
	})

	got, err := s.Upsert(ctx, e, more)
	require.NoError(t, err)
	assert.Equal(t, id, got, "canonical id never changes")

	updated, err := s.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "Thallus membranous", updated.Morphology.Description)
	assert.Equal(t, first.CreatedAt, updated.CreatedAt)

	c, err := s.Children(ctx, id)
	require.NoError(t, err)
	assert.Len(t, c.Distributions, 2)
	require.Len(t, c.Literature, 1)
	assert.InDelta(t, 0.9, c.Literature[0].Relevance, 1e-9)
	assert.Equal(t, "abstract", c.Literature[0].Abstract)
	assert.Len(t, c.Media, 1)

	// a lower relevance never lowers the stored one
	e2 := e.Clone()
	low := children()
	low.Literature[0].Relevance = 0.1
	_, err = s.Upsert(ctx, e2, low)
	require.NoError(t, err)
	c, err = s.Children(ctx, id)
	require.NoError(t, err)
	assert.InDelta(t, 0.9, c.Literature[0].Relevance, 1e-9)
}

func TestUpsertIsAtomic(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	id, err := s.Upsert(ctx, ulva(), children())
	require.NoError(t, err)
	before, err := s.Get(ctx, id)
	require.NoError(t, err)
	beforeChildren, err := s.Children(ctx, id)
	require.NoError(t, err)

	e := before.Clone()
	e.Authority = "changed"
	bad := children()
	bad.Distributions[0].EventDate = "2020-01-01"
	bad.Literature = append(bad.Literature, taxa.LiteratureRecord{
		Title: "Broken", URL: "https://example.org/broken", Relevance: 1.5, Source: types.PubMedID,
	})

	_, err = s.Upsert(ctx, e, bad)
	require.Error(t, err)
	assert.ErrorIs(t, err, errors.ErrStoreWrite)
	assert.True(t, errors.IsRetryable(err))

	after, err := s.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, before, after)
	afterChildren, err := s.Children(ctx, id)
	require.NoError(t, err)
	if diff := cmp.Diff(beforeChildren, afterChildren); diff != "" {
		t.Errorf("children changed after failed upsert (-before +after):\n%s", diff)
	}

	// a failed first write leaves nothing behind
	fresh := ulva()
	fresh.ScientificName = "Chloropicon laureae"
	fresh.ExternalIDs = nil
	fresh.Synonyms = nil
	_, err = s.Upsert(ctx, fresh, bad)
	require.Error(t, err)
	_, err = s.Get(ctx, "Chloropicon laureae")
	assert.True(t, errors.IsNotFound(err))
}

func TestUpsertValidation(t *testing.T) {
	s := openTestStore(t)
	_, err := s.Upsert(context.Background(), &taxa.Entity{}, taxa.Children{})
	assert.True(t, errors.IsValidationError(err))

	e := ulva()
	e.ID = "not-a-uuid"
	_, err = s.Upsert(context.Background(), e, taxa.Children{})
	assert.True(t, errors.IsValidationError(err))
}

func TestConcurrentUpsertsSameID(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	id, err := s.Upsert(ctx, ulva(), taxa.Children{})
	require.NoError(t, err)

	var wg sync.WaitGroup
	errs := make(chan error, 8)
	for i := range 8 {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			e := ulva()
			e.ID = id
			c := taxa.Children{Distributions: []taxa.DistributionRecord{
				{Latitude: float64(i), Longitude: float64(i), Source: types.GBIFID},
			}}
			_, err := s.Upsert(ctx, e, c)
			errs <- err
		}(i)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		assert.NoError(t, err)
	}

	c, err := s.Children(ctx, id)
	require.NoError(t, err)
	assert.Len(t, c.Distributions, 8)
	assert.Empty(t, s.locks.locks, "per-id locks are released")
}

func TestCaptures(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	id, err := s.Upsert(ctx, ulva(), taxa.Children{})
	require.NoError(t, err)

	older, err := taxa.NewCapture(types.WoRMSID, types.LookupByName, "ulva lactuca",
		taxa.TaxonomyPayload{ScientificName: "Ulva lactuca"})
	require.NoError(t, err)
	older.EntityID = id
	older.FetchedAt = utc.New(time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC))

	newer, err := taxa.NewCapture(types.AlgaeBaseID, types.GetMorphology, "ulva lactuca",
		taxa.MorphologyPayload{Description: "Thallus"})
	require.NoError(t, err)
	newer.EntityID = id
	newer.Retracted = []string{taxa.FieldHabitat}

	require.NoError(t, s.AppendRaw(ctx, newer))
	require.NoError(t, s.AppendRaw(ctx, older))

	got, err := s.Captures(ctx, id)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, older.ID, got[0].ID)
	assert.Nil(t, got[0].Retracted)
	assert.Equal(t, []string{taxa.FieldHabitat}, got[1].Retracted)
	assert.JSONEq(t, string(newer.Payload), string(got[1].Payload))
	assert.True(t, newer.FetchedAt.Equal(got[1].FetchedAt.Time))

	t.Run("append only", func(t *testing.T) {
		err := s.AppendRaw(ctx, older)
		assert.ErrorIs(t, err, errors.ErrStoreWrite)
	})

	t.Run("rejects bad captures", func(t *testing.T) {
		bad := newer
		bad.ID = ""
		bad.Payload = json.RawMessage(`{`)
		assert.True(t, errors.IsValidationError(s.AppendRaw(ctx, bad)))

		bad.Payload = json.RawMessage(`{}`)
		bad.Source = "itis"
		assert.True(t, errors.IsValidationError(s.AppendRaw(ctx, bad)))
	})

	t.Run("unlinked entity", func(t *testing.T) {
		none, err := s.Captures(ctx, "6f9619ff-8b86-d011-b42d-00c04fc964ff")
		require.NoError(t, err)
		assert.Empty(t, none)
	})
}

func TestUpdateCreatesThenMerges(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	id, err := s.Update(ctx, []string{"worms:145990"}, func(existing *taxa.Entity) (*taxa.Entity, taxa.Children, error) {
		assert.Nil(t, existing)
		return ulva(), children(), nil
	}, "sea lettuce")
	require.NoError(t, err)

	again, err := s.Update(ctx, []string{"algaebase:39"}, func(existing *taxa.Entity) (*taxa.Entity, taxa.Children, error) {
		require.NotNil(t, existing)
		existing.Morphology.Description = "foliose"
		return existing, taxa.Children{}, nil
	})
	require.NoError(t, err)
	assert.Equal(t, id, again)

	e, err := s.Get(ctx, "sea lettuce")
	require.NoError(t, err)
	assert.Equal(t, "foliose", e.Morphology.Description)
	assert.Equal(t, "Linnaeus, 1753", e.Authority)
}

func TestUpdateFuncErrorAbortsWrite(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)
	boom := errors.NewValidationError("entity", nil, "boom")

	_, err := s.Update(ctx, []string{"Ulva lactuca"}, func(*taxa.Entity) (*taxa.Entity, taxa.Children, error) {
		return nil, taxa.Children{}, boom
	})
	assert.ErrorIs(t, err, boom)

	_, err = s.Get(ctx, "Ulva lactuca")
	assert.True(t, errors.IsNotFound(err))
}

func TestConcurrentUpdatesKeepEachOthersFields(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)
	id, err := s.Upsert(ctx, ulva(), taxa.Children{})
	require.NoError(t, err)

	edits := []func(*taxa.Entity){
		func(e *taxa.Entity) { e.Morphology.Description = "Thallus foliose" },
		func(e *taxa.Entity) { e.Ecology.Habitat = "intertidal" },
		func(e *taxa.Entity) { e.AcceptedName = "Ulva lactuca" },
		func(e *taxa.Entity) { e.Ecology.Brackish = taxa.Bool(true) },
	}
	var wg sync.WaitGroup
	for _, edit := range edits {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := s.Update(ctx, []string{"worms:145990"}, func(existing *taxa.Entity) (*taxa.Entity, taxa.Children, error) {
				// widen the read-to-write window
				time.Sleep(10 * time.Millisecond)
				edit(existing)
				return existing, taxa.Children{}, nil
			})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	e, err := s.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "Thallus foliose", e.Morphology.Description)
	assert.Equal(t, "intertidal", e.Ecology.Habitat)
	assert.Equal(t, "Ulva lactuca", e.AcceptedName)
	require.NotNil(t, e.Ecology.Brackish)
	assert.True(t, *e.Ecology.Brackish)
}

func TestConcurrentUpdatesCreateOneEntity(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	const writers = 6
	ids := make([]string, writers)
	var wg sync.WaitGroup
	for i := range writers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			id, err := s.Update(ctx, []string{"worms:145990", "Ulva lactuca"}, func(existing *taxa.Entity) (*taxa.Entity, taxa.Children, error) {
				if existing == nil {
					return ulva(), taxa.Children{}, nil
				}
				return existing, taxa.Children{}, nil
			})
			assert.NoError(t, err)
			ids[i] = id
		}()
	}
	wg.Wait()

	for i := range writers {
		assert.Equal(t, ids[0], ids[i])
	}
	var count int
	require.NoError(t, s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM entities`).Scan(&count))
	assert.Equal(t, 1, count)
}
