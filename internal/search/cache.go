package search

import (
	"sort"
	"strings"
	"sync"
	"time"

	"medbrand/searchservice/internal/domain"
)

const (
	// DefaultCacheTTL bounds how long an aggregation is reused before the
	// providers are queried again.
	DefaultCacheTTL = 5 * time.Minute
	// ComprehensiveCacheTTL is the ceiling allowed for expensive
	// multi-provider aggregations.
	ComprehensiveCacheTTL = 60 * time.Minute

	defaultCacheMaxEntries = 400
)

type cacheEntry struct {
	records    []domain.Medicine
	insertedAt time.Time
	ttl        time.Duration
}

// Cache is an in-memory result cache with lazy per-entry expiry. Entries past
// their TTL are treated as absent on Get; no background sweep runs. The clock
// is injectable so tests can simulate elapsed time.
type Cache struct {
	mu         sync.Mutex
	entries    map[string]cacheEntry
	ttl        time.Duration
	maxEntries int
	now        func() time.Time
}

func NewCache(ttl time.Duration) *Cache {
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	return &Cache{
		entries:    make(map[string]cacheEntry),
		ttl:        ttl,
		maxEntries: defaultCacheMaxEntries,
		now:        time.Now,
	}
}

func (c *Cache) Get(key string) ([]domain.Medicine, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.entries[key]
	if !ok {
		return nil, false
	}
	if c.now().Sub(entry.insertedAt) > entry.ttl {
		delete(c.entries, key)
		return nil, false
	}
	return cloneRecords(entry.records), true
}

func (c *Cache) Set(key string, records []domain.Medicine) {
	c.SetTTL(key, records, c.ttl)
}

func (c *Cache) SetTTL(key string, records []domain.Medicine, ttl time.Duration) {
	if ttl <= 0 {
		ttl = c.ttl
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries[key] = cacheEntry{
		records:    cloneRecords(records),
		insertedAt: c.now(),
		ttl:        ttl,
	}
	c.trimLocked()
}

func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

func (c *Cache) trimLocked() {
	now := c.now()
	for key, entry := range c.entries {
		if now.Sub(entry.insertedAt) > entry.ttl {
			delete(c.entries, key)
		}
	}
	if len(c.entries) <= c.maxEntries {
		return
	}

	type pair struct {
		key   string
		entry cacheEntry
	}
	items := make([]pair, 0, len(c.entries))
	for key, entry := range c.entries {
		items = append(items, pair{key: key, entry: entry})
	}
	sort.Slice(items, func(i, j int) bool {
		return items[i].entry.insertedAt.Before(items[j].entry.insertedAt)
	})
	for i := 0; i < len(items)-c.maxEntries; i++ {
		delete(c.entries, items[i].key)
	}
}

func cloneRecords(records []domain.Medicine) []domain.Medicine {
	if records == nil {
		return nil
	}
	cloned := make([]domain.Medicine, len(records))
	for i, record := range records {
		copied := record
		if record.RxNorm != nil {
			concept := *record.RxNorm
			copied.RxNorm = &concept
		}
		cloned[i] = copied
	}
	return cloned
}

// buildCacheKey scopes a cached aggregation by term, country and the provider
// group that produced it, so differently-scoped aggregations never collide.
func buildCacheKey(term, country string, providerNames []string) string {
	names := append([]string(nil), providerNames...)
	for i, name := range names {
		names[i] = strings.ToLower(strings.TrimSpace(name))
	}
	sort.Strings(names)

	if country == "" {
		country = domain.CountryAll
	}
	return strings.Join([]string{
		"q=" + strings.ToLower(strings.TrimSpace(term)),
		"c=" + strings.ToLower(strings.TrimSpace(country)),
		"p=" + strings.Join(names, ","),
	}, "|")
}
