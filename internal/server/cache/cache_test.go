package cache

import (
	"sync"
	"testing"
	"time"

	"github.com/agentstation/taxamap/pkg/taxa"
)

func profile(id, name string) *taxa.Profile {
	return taxa.NewProfile(&taxa.Entity{ID: id, ScientificName: name, Rank: "Species"}, taxa.Children{})
}

func TestGetNormalizesQuery(t *testing.T) {
	c := New(time.Minute, 2*time.Minute)
	p := profile("e1", "Ulva lactuca")
	c.Set("Ulva lactuca", p)

	got, ok := c.Get("  ulva   LACTUCA ")
	if !ok {
		t.Fatal("expected hit for differently formatted query")
	}
	if got != p {
		t.Error("cache returned a different profile")
	}
	if _, ok := c.Get("Ulva fasciata"); ok {
		t.Error("unexpected hit")
	}

	stats := c.GetStats()
	if stats.Hits != 1 || stats.Misses != 1 {
		t.Errorf("hits=%d misses=%d, want 1/1", stats.Hits, stats.Misses)
	}
}

func TestSetIgnoresEmptyProfiles(t *testing.T) {
	c := New(time.Minute, 2*time.Minute)
	c.Set("x", nil)
	c.Set("y", &taxa.Profile{})
	if n := c.ItemCount(); n != 0 {
		t.Errorf("expected empty cache, got %d items", n)
	}
}

func TestInvalidateDropsAllAliases(t *testing.T) {
	c := New(time.Minute, 2*time.Minute)
	ulva := profile("e1", "Ulva lactuca")
	c.Set("Ulva lactuca", ulva)
	c.Set("Ulva fasciata", ulva)
	c.Set("e1", ulva)
	c.Set("Fucus vesiculosus", profile("e2", "Fucus vesiculosus"))

	if n := c.Invalidate("e1"); n != 3 {
		t.Errorf("invalidated %d keys, want 3", n)
	}
	for _, q := range []string{"Ulva lactuca", "Ulva fasciata", "e1"} {
		if _, ok := c.Get(q); ok {
			t.Errorf("%q still cached", q)
		}
	}
	if _, ok := c.Get("Fucus vesiculosus"); !ok {
		t.Error("unrelated entity evicted")
	}
	if n := c.Invalidate("unknown"); n != 0 {
		t.Errorf("invalidated %d keys for unknown entity", n)
	}
}

func TestExpiryForgetsAliases(t *testing.T) {
	c := New(20*time.Millisecond, 10*time.Millisecond)
	c.Set("Ulva lactuca", profile("e1", "Ulva lactuca"))

	deadline := time.Now().Add(2 * time.Second)
	for c.GetStats().Entities != 0 {
		if time.Now().After(deadline) {
			t.Fatal("expired entry still tracked")
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestClear(t *testing.T) {
	c := New(time.Minute, 2*time.Minute)
	c.Set("a", profile("e1", "A"))
	c.Set("b", profile("e2", "B"))
	c.Clear()
	stats := c.GetStats()
	if stats.ItemCount != 0 || stats.Entities != 0 {
		t.Errorf("cache not cleared: %+v", stats)
	}
}

func TestConcurrentAccess(t *testing.T) {
	c := New(time.Minute, 2*time.Minute)
	p := profile("e1", "Ulva lactuca")

	var wg sync.WaitGroup
	for i := range 50 {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			c.Set("Ulva lactuca", p)
			c.Get("Ulva lactuca")
			if i%10 == 0 {
				c.Invalidate("e1")
			}
		}(i)
	}
	wg.Wait()
}
