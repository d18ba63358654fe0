package search

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"
	"time"

	"medbrand/searchservice/internal/domain"
)

var (
	ErrInvalidTerm     = errors.New("search term is required")
	ErrNoProviders     = errors.New("no search providers configured")
	ErrUnknownProvider = errors.New("unknown provider")
	// ErrLocalStore wraps local-store infrastructure failures, which are
	// fatal to the current search rather than degraded like provider errors.
	ErrLocalStore = errors.New("local store failure")
)

// Provider is one remote medicine source. Search returns zero or more
// candidate records; it must return an empty list for "no results" and an
// error only for transport or parse failure. Implementations should honor
// ctx cancellation, but the orchestrator does not depend on it: a provider
// that keeps running past its timeout only wastes its own goroutine.
type Provider interface {
	Name() string
	Info() domain.ProviderInfo
	Search(ctx context.Context, term, country string) ([]domain.Medicine, error)
}

// ProviderSpec binds a provider to its invocation budget. Specs are fixed at
// service construction and never mutated during a search.
type ProviderSpec struct {
	Provider Provider
	Timeout  time.Duration
}

// LocalStore is the persistent store consulted alongside remote providers.
type LocalStore interface {
	SearchLocal(ctx context.Context, term, country string) ([]domain.Medicine, error)
}

type Service struct {
	specs          []ProviderSpec
	byName         map[string]ProviderSpec
	defaultTimeout time.Duration
	retryCfg       RetryConfig

	cacheDisabled bool
	cache         *Cache
	redisCache    *RedisCache

	local   LocalStore
	tracker *Tracker

	healthMu sync.Mutex
	health   map[string]*providerHealth
}

type ServiceOption func(*Service)

func WithCacheTTL(ttl time.Duration) ServiceOption {
	return func(s *Service) {
		if ttl > 0 {
			s.cache = NewCache(ttl)
		}
	}
}

func WithCacheDisabled(disabled bool) ServiceOption {
	return func(s *Service) {
		s.cacheDisabled = disabled
	}
}

func WithRedisCache(backend *RedisCache) ServiceOption {
	return func(s *Service) {
		s.redisCache = backend
	}
}

func WithLocalStore(store LocalStore) ServiceOption {
	return func(s *Service) {
		s.local = store
	}
}

func WithRetryConfig(cfg RetryConfig) ServiceOption {
	return func(s *Service) {
		s.retryCfg = cfg
	}
}

func NewService(specs []ProviderSpec, defaultTimeout time.Duration, opts ...ServiceOption) *Service {
	registered := make([]ProviderSpec, 0, len(specs))
	byName := make(map[string]ProviderSpec, len(specs))
	for _, spec := range specs {
		if spec.Provider == nil {
			continue
		}
		name := strings.ToLower(strings.TrimSpace(spec.Provider.Name()))
		if name == "" {
			continue
		}
		if _, exists := byName[name]; exists {
			continue
		}
		byName[name] = spec
		registered = append(registered, spec)
	}

	if defaultTimeout <= 0 {
		defaultTimeout = 8 * time.Second
	}

	svc := &Service{
		specs:          registered,
		byName:         byName,
		defaultTimeout: defaultTimeout,
		retryCfg:       DefaultRetryConfig(),
		cache:          NewCache(DefaultCacheTTL),
		tracker:        NewTracker(),
		health:         make(map[string]*providerHealth),
	}
	for _, opt := range opts {
		opt(svc)
	}
	return svc
}

// Progress exposes the tracker so callers can subscribe to fan-out progress
// and reset it between searches.
func (s *Service) Progress() *Tracker {
	return s.tracker
}

func (s *Service) Providers() []domain.ProviderInfo {
	if len(s.specs) == 0 {
		return nil
	}
	items := make([]domain.ProviderInfo, 0, len(s.specs))
	for _, spec := range s.specs {
		info := spec.Provider.Info()
		if info.Name == "" {
			info.Name = strings.ToLower(strings.TrimSpace(spec.Provider.Name()))
		}
		info.Name = strings.ToLower(strings.TrimSpace(info.Name))
		if info.Name == "" {
			continue
		}
		if info.Label == "" {
			info.Label = info.Name
		}
		items = append(items, info)
	}
	sort.Slice(items, func(i, j int) bool {
		return items[i].Name < items[j].Name
	})
	return items
}

func (s *Service) providerNames() []string {
	names := make([]string, 0, len(s.specs))
	for _, spec := range s.specs {
		names = append(names, strings.ToLower(strings.TrimSpace(spec.Provider.Name())))
	}
	return names
}
