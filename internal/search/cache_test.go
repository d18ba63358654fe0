package search

import (
	"fmt"
	"testing"
	"time"

	"medbrand/searchservice/internal/domain"
)

func TestCacheGetSet(t *testing.T) {
	cache := NewCache(time.Minute)

	if _, ok := cache.Get("missing"); ok {
		t.Fatal("expected miss for unknown key")
	}

	records := []domain.Medicine{{ID: "1", BrandName: "Aspirin"}}
	cache.Set("key", records)

	got, ok := cache.Get("key")
	if !ok {
		t.Fatal("expected hit")
	}
	if len(got) != 1 || got[0].BrandName != "Aspirin" {
		t.Fatalf("unexpected records: %v", got)
	}
}

func TestCacheExpiry(t *testing.T) {
	cache := NewCache(time.Minute)
	current := time.Now()
	cache.now = func() time.Time { return current }

	cache.Set("key", []domain.Medicine{{ID: "1"}})

	current = current.Add(30 * time.Second)
	if _, ok := cache.Get("key"); !ok {
		t.Fatal("expected hit before TTL")
	}

	current = current.Add(45 * time.Second)
	if _, ok := cache.Get("key"); ok {
		t.Fatal("expected miss after TTL")
	}
	if cache.Len() != 0 {
		t.Fatalf("expected expired entry removed, got %d", cache.Len())
	}
}

func TestCacheCloneIsolation(t *testing.T) {
	cache := NewCache(time.Minute)
	records := []domain.Medicine{{
		ID:     "1",
		RxNorm: &domain.RxNormConcept{RxCUI: "161", Name: "Acetaminophen"},
	}}
	cache.Set("key", records)

	records[0].ID = "mutated"
	records[0].RxNorm.RxCUI = "mutated"

	got, ok := cache.Get("key")
	if !ok {
		t.Fatal("expected hit")
	}
	if got[0].ID != "1" || got[0].RxNorm.RxCUI != "161" {
		t.Fatalf("cache entry mutated through caller slice: %#v", got[0])
	}

	got[0].RxNorm.Name = "mutated"
	again, _ := cache.Get("key")
	if again[0].RxNorm.Name != "Acetaminophen" {
		t.Fatal("cache entry mutated through returned slice")
	}
}

func TestCacheEvictsOldestBeyondCapacity(t *testing.T) {
	cache := NewCache(time.Hour)
	current := time.Now()
	cache.now = func() time.Time { return current }
	cache.maxEntries = 3

	for i := 0; i < 4; i++ {
		cache.Set(fmt.Sprintf("key%d", i), []domain.Medicine{{ID: fmt.Sprintf("%d", i)}})
		current = current.Add(time.Second)
	}

	if cache.Len() != 3 {
		t.Fatalf("expected 3 entries after eviction, got %d", cache.Len())
	}
	if _, ok := cache.Get("key0"); ok {
		t.Fatal("expected oldest entry evicted")
	}
	if _, ok := cache.Get("key3"); !ok {
		t.Fatal("expected newest entry kept")
	}
}

func TestBuildCacheKeyProviderOrderIndependent(t *testing.T) {
	a := buildCacheKey("Aspirin", "Germany", []string{"rxnorm", "openfda"})
	b := buildCacheKey("aspirin", "germany", []string{"OpenFDA", "RxNorm"})
	if a != b {
		t.Fatalf("expected identical keys, got %q vs %q", a, b)
	}
}

func TestBuildCacheKeyEmptyCountry(t *testing.T) {
	key := buildCacheKey("aspirin", "", []string{"rxnorm"})
	if key != "q=aspirin|c=all|p=rxnorm" {
		t.Fatalf("unexpected key: %q", key)
	}
}

func TestBuildCacheKeyScopesDiffer(t *testing.T) {
	a := buildCacheKey("aspirin", "", []string{"rxnorm"})
	b := buildCacheKey("aspirin", "", []string{"rxnorm", "openfda"})
	if a == b {
		t.Fatal("expected provider scope to change the key")
	}
}
