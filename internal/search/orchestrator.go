package search

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"medbrand/searchservice/internal/domain"
	"medbrand/searchservice/internal/metrics"
)

// maxConcurrentProviders limits the number of provider queries that can run
// simultaneously, so a wide provider roster does not open a burst of upstream
// connections at once.
const maxConcurrentProviders = 10

// minResultsBeforeFallback triggers the alternative-name fallback pass when a
// first pass yields fewer unique records than this.
const minResultsBeforeFallback = 5

type preparedSearch struct {
	term          string
	country       string
	selected      []ProviderSpec
	providerNames []string
}

// Search runs one aggregation: local store and cache first, then a bounded
// concurrent fan-out across the selected providers, then the fixed pipeline
// of dedupe, country filter, enrichment and ranking. Provider failures
// degrade the response via statuses; only input validation and local-store
// failures surface as errors.
func (s *Service) Search(ctx context.Context, request domain.SearchRequest, providerNames []string) (domain.SearchResponse, error) {
	prepared, err := s.prepareSearch(request, providerNames)
	if err != nil {
		return domain.SearchResponse{}, err
	}

	startedAt := time.Now()
	metrics.SearchRequestsTotal.Inc()
	defer func() {
		metrics.SearchDuration.Observe(time.Since(startedAt).Seconds())
	}()

	local, err := s.localLookup(ctx, prepared.term, prepared.country)
	if err != nil {
		return domain.SearchResponse{}, err
	}

	var (
		remote   []domain.Medicine
		statuses []domain.ProviderStatus
	)
	cacheKey := buildCacheKey(prepared.term, prepared.country, prepared.providerNames)
	useCache := !s.cacheDisabled && !request.NoCache
	hit := false
	if useCache {
		remote, hit = s.cacheLookup(ctx, cacheKey)
	}
	if hit {
		metrics.CacheHitsTotal.Inc()
	} else {
		if useCache {
			metrics.CacheMissesTotal.Inc()
		}
		remote, statuses = s.fanOut(ctx, prepared)
		if useCache {
			s.cacheStore(ctx, cacheKey, remote)
		}
	}

	results := s.assemble(local, remote, prepared)

	slog.Info("search completed",
		slog.String("term", prepared.term),
		slog.String("country", prepared.country),
		slog.Int("results", len(results)),
		slog.Bool("cacheHit", hit),
		slog.Int64("elapsedMs", time.Since(startedAt).Milliseconds()),
	)

	return domain.SearchResponse{
		Term:       prepared.term,
		Results:    results,
		TotalFound: len(results),
		Providers:  statuses,
		ElapsedMS:  time.Since(startedAt).Milliseconds(),
		Final:      true,
	}, nil
}

// assemble merges local records ahead of remote ones so dedupe keeps the
// local copy, then applies the rest of the pipeline.
func (s *Service) assemble(local, remote []domain.Medicine, prepared preparedSearch) []domain.Medicine {
	merged := make([]domain.Medicine, 0, len(local)+len(remote))
	merged = append(merged, local...)
	merged = append(merged, remote...)
	merged = Dedupe(merged)
	merged = FilterByCountry(merged, prepared.country)
	Enhance(merged)
	Rank(merged, prepared.term, prepared.country)
	return merged
}

func (s *Service) prepareSearch(request domain.SearchRequest, providerNames []string) (preparedSearch, error) {
	term := strings.TrimSpace(request.Term)
	if term == "" {
		return preparedSearch{}, ErrInvalidTerm
	}

	country := strings.TrimSpace(request.Country)
	if strings.EqualFold(country, domain.CountryAll) {
		country = ""
	}

	selected, err := s.resolveProviders(providerNames)
	if err != nil {
		return preparedSearch{}, err
	}

	keys := make([]string, 0, len(selected))
	for _, spec := range selected {
		keys = append(keys, strings.ToLower(strings.TrimSpace(spec.Provider.Name())))
	}

	return preparedSearch{
		term:          term,
		country:       country,
		selected:      selected,
		providerNames: keys,
	}, nil
}

func (s *Service) resolveProviders(providerNames []string) ([]ProviderSpec, error) {
	if len(s.specs) == 0 {
		return nil, ErrNoProviders
	}

	if len(providerNames) == 0 {
		return s.specs, nil
	}

	selected := make([]ProviderSpec, 0, len(providerNames))
	seen := make(map[string]struct{}, len(providerNames))
	for _, rawName := range providerNames {
		name := strings.ToLower(strings.TrimSpace(rawName))
		if name == "" {
			continue
		}
		spec, ok := s.byName[name]
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrUnknownProvider, name)
		}
		if _, exists := seen[name]; exists {
			continue
		}
		seen[name] = struct{}{}
		selected = append(selected, spec)
	}

	if len(selected) == 0 {
		return nil, ErrNoProviders
	}
	return selected, nil
}

func (s *Service) localLookup(ctx context.Context, term, country string) ([]domain.Medicine, error) {
	if s.local == nil {
		return nil, nil
	}
	records, err := s.local.SearchLocal(ctx, term, country)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrLocalStore, err)
	}
	for i := range records {
		records[i].Local = true
	}
	return records, nil
}

func (s *Service) cacheLookup(ctx context.Context, key string) ([]domain.Medicine, bool) {
	if s.redisCache != nil {
		records, ok, err := s.redisCache.Get(ctx, key)
		if err != nil {
			slog.Warn("redis cache lookup failed", slog.String("error", err.Error()))
		} else if ok {
			return records, true
		}
	}
	return s.cache.Get(key)
}

func (s *Service) cacheStore(ctx context.Context, key string, records []domain.Medicine) {
	s.cache.Set(key, records)
	if s.redisCache != nil {
		if err := s.redisCache.Set(ctx, key, records, s.cache.ttl); err != nil {
			slog.Warn("redis cache store failed", slog.String("error", err.Error()))
		}
	}
}

// fanOut dispatches every selected provider concurrently and collects their
// candidates. Each goroutine owns its slot in the per-index slices, so the
// collection itself needs no lock; only the tracker and health state
// synchronize internally. Results flatten in registration order, which fixes
// dedupe precedence regardless of completion order.
func (s *Service) fanOut(ctx context.Context, prepared preparedSearch) ([]domain.Medicine, []domain.ProviderStatus) {
	s.tracker.Reset()
	s.tracker.SetTotal(len(prepared.selected))

	statuses := make([]domain.ProviderStatus, len(prepared.selected))
	resultsByIndex := make([][]domain.Medicine, len(prepared.selected))

	s.runPass(ctx, prepared.selected, allIndices(len(prepared.selected)), prepared.term, prepared.country, statuses, resultsByIndex, true, nil)

	s.runFallbackPass(ctx, prepared, statuses, resultsByIndex, nil)

	records := flattenResults(resultsByIndex)
	return records, statuses
}

// runFallbackPass re-queries providers that succeeded with zero results using
// known alternative ingredient names, once per alternative, until the unique
// record count clears the threshold.
func (s *Service) runFallbackPass(ctx context.Context, prepared preparedSearch, statuses []domain.ProviderStatus, resultsByIndex [][]domain.Medicine, onUpdate func()) {
	if uniqueCount(resultsByIndex) >= minResultsBeforeFallback {
		return
	}
	for _, alternative := range AlternativeNames(prepared.term) {
		retry := make([]int, 0, len(statuses))
		for i, status := range statuses {
			if status.OK && status.Count == 0 {
				retry = append(retry, i)
			}
		}
		if len(retry) == 0 {
			return
		}
		slog.Info("retrying empty providers with alternative name",
			slog.String("term", prepared.term),
			slog.String("alternative", alternative),
			slog.Int("providers", len(retry)),
		)
		s.runPass(ctx, prepared.selected, retry, alternative, prepared.country, statuses, resultsByIndex, false, onUpdate)
		if uniqueCount(resultsByIndex) >= minResultsBeforeFallback {
			return
		}
	}
}

// runPass queries the given provider indices concurrently under the shared
// concurrency bound. With track=true each provider counts toward tracker
// completion and reports its error; fallback passes run with track=false and
// only add records. onUpdate, when set, fires after each slot is written.
func (s *Service) runPass(
	ctx context.Context,
	specs []ProviderSpec,
	indices []int,
	term, country string,
	statuses []domain.ProviderStatus,
	resultsByIndex [][]domain.Medicine,
	track bool,
	onUpdate func(),
) {
	sem := semaphore.NewWeighted(maxConcurrentProviders)
	var wg sync.WaitGroup
	for _, i := range indices {
		spec := specs[i]
		wg.Add(1)
		go func(index int, current ProviderSpec) {
			defer wg.Done()

			name := strings.ToLower(strings.TrimSpace(current.Provider.Name()))

			if err := sem.Acquire(ctx, 1); err != nil {
				if track {
					statuses[index] = domain.ProviderStatus{Name: name, OK: false, Error: "context cancelled"}
					s.tracker.Update(name, true, fmt.Errorf("context cancelled"))
				}
				return
			}
			defer sem.Release(1)

			now := time.Now()
			if blocked, until, lastErr := s.isProviderBlocked(name, now); blocked {
				if track {
					blockErr := fmt.Errorf("provider temporarily unhealthy until %s: %s", until.UTC().Format(time.RFC3339), lastErr)
					statuses[index] = domain.ProviderStatus{Name: name, OK: false, Error: blockErr.Error()}
					s.tracker.Update(name, true, blockErr)
					if onUpdate != nil {
						onUpdate()
					}
				}
				return
			}

			if track {
				s.tracker.Update(name, false, nil)
			}

			providerStartedAt := time.Now()
			records, searchErr := s.invokeWithTimeout(ctx, current, term, country)
			s.recordProviderResult(name, term, searchErr, time.Since(providerStartedAt), time.Now())

			if !track {
				// Fallback pass: accumulate on success, stay silent on failure.
				if searchErr == nil && len(records) > 0 {
					resultsByIndex[index] = append(resultsByIndex[index], records...)
					statuses[index].Count += len(records)
					if onUpdate != nil {
						onUpdate()
					}
				}
				return
			}

			status := domain.ProviderStatus{
				Name:  name,
				OK:    searchErr == nil,
				Count: len(records),
			}
			if searchErr != nil {
				status.Error = searchErr.Error()
				slog.Warn("provider failed",
					slog.String("provider", name),
					slog.String("term", term),
					slog.String("error", searchErr.Error()),
				)
			}
			statuses[index] = status
			resultsByIndex[index] = records
			s.tracker.Update(name, true, searchErr)
			if onUpdate != nil {
				onUpdate()
			}
		}(i, spec)
	}
	wg.Wait()
}

// invokeWithTimeout races the provider call against its timeout budget. The
// call runs in its own goroutine writing to a buffered channel; on timeout
// the late result is simply dropped when it eventually arrives.
func (s *Service) invokeWithTimeout(ctx context.Context, spec ProviderSpec, term, country string) ([]domain.Medicine, error) {
	timeout := spec.Timeout
	if timeout <= 0 {
		timeout = s.defaultTimeout
	}
	callCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	type outcome struct {
		records []domain.Medicine
		err     error
	}
	done := make(chan outcome, 1)
	go func() {
		var records []domain.Medicine
		err := RetryWithBackoff(callCtx, s.retryCfg, func() error {
			var callErr error
			records, callErr = spec.Provider.Search(callCtx, term, country)
			return callErr
		})
		done <- outcome{records: records, err: err}
	}()

	select {
	case out := <-done:
		return out.records, out.err
	case <-callCtx.Done():
		return nil, fmt.Errorf("provider %s timeout after %s: %w", spec.Provider.Name(), timeout, callCtx.Err())
	}
}

// SearchStream runs the same aggregation as Search but emits an intermediate
// response snapshot after every provider completion, then a final one with
// Final set. The channel closes when the search ends; a cache hit produces a
// single final snapshot.
func (s *Service) SearchStream(ctx context.Context, request domain.SearchRequest, providerNames []string) <-chan domain.SearchResponse {
	ch := make(chan domain.SearchResponse, 8)

	prepared, err := s.prepareSearch(request, providerNames)
	if err != nil {
		close(ch)
		return ch
	}

	startedAt := time.Now()
	metrics.SearchRequestsTotal.Inc()

	local, err := s.localLookup(ctx, prepared.term, prepared.country)
	if err != nil {
		close(ch)
		return ch
	}

	cacheKey := buildCacheKey(prepared.term, prepared.country, prepared.providerNames)
	useCache := !s.cacheDisabled && !request.NoCache
	if useCache {
		if remote, ok := s.cacheLookup(ctx, cacheKey); ok {
			metrics.CacheHitsTotal.Inc()
			results := s.assemble(local, remote, prepared)
			ch <- domain.SearchResponse{
				Term:       prepared.term,
				Results:    results,
				TotalFound: len(results),
				ElapsedMS:  time.Since(startedAt).Milliseconds(),
				Final:      true,
			}
			close(ch)
			return ch
		}
		metrics.CacheMissesTotal.Inc()
	}

	go s.executeStream(ctx, prepared, local, cacheKey, useCache, startedAt, ch)
	return ch
}

func (s *Service) executeStream(
	ctx context.Context,
	prepared preparedSearch,
	local []domain.Medicine,
	cacheKey string,
	useCache bool,
	startedAt time.Time,
	ch chan<- domain.SearchResponse,
) {
	defer close(ch)
	defer func() { metrics.SearchDuration.Observe(time.Since(startedAt).Seconds()) }()

	s.tracker.Reset()
	s.tracker.SetTotal(len(prepared.selected))

	statuses := make([]domain.ProviderStatus, len(prepared.selected))
	resultsByIndex := make([][]domain.Medicine, len(prepared.selected))

	// Snapshot reads cross goroutine slots, so streaming serializes both the
	// slot writes and the snapshot build under one lock via onUpdate.
	var mu sync.Mutex
	emit := func(final bool) {
		results := s.assemble(local, flattenResults(resultsByIndex), prepared)
		statusesCopy := make([]domain.ProviderStatus, len(statuses))
		copy(statusesCopy, statuses)
		snapshot := domain.SearchResponse{
			Term:       prepared.term,
			Results:    results,
			TotalFound: len(results),
			Providers:  statusesCopy,
			ElapsedMS:  time.Since(startedAt).Milliseconds(),
			Final:      final,
		}
		select {
		case ch <- snapshot:
		case <-ctx.Done():
		}
	}
	onUpdate := func() {
		emit(false)
	}

	runStream := func(indices []int, term string, track bool) {
		s.runPassLocked(ctx, prepared.selected, indices, term, prepared.country, statuses, resultsByIndex, track, &mu, onUpdate)
	}
	runStream(allIndices(len(prepared.selected)), prepared.term, true)

	mu.Lock()
	short := uniqueCount(resultsByIndex) < minResultsBeforeFallback
	mu.Unlock()
	if short {
		for _, alternative := range AlternativeNames(prepared.term) {
			mu.Lock()
			retry := make([]int, 0, len(statuses))
			for i, status := range statuses {
				if status.OK && status.Count == 0 {
					retry = append(retry, i)
				}
			}
			enough := uniqueCount(resultsByIndex) >= minResultsBeforeFallback
			mu.Unlock()
			if len(retry) == 0 || enough {
				break
			}
			runStream(retry, alternative, false)
		}
	}

	mu.Lock()
	remote := flattenResults(resultsByIndex)
	mu.Unlock()
	if useCache {
		s.cacheStore(ctx, cacheKey, remote)
	}

	failed := 0
	for _, status := range statuses {
		if !status.OK {
			failed++
		}
	}
	slog.Info("stream search completed",
		slog.String("term", prepared.term),
		slog.Int("providers", len(statuses)),
		slog.Int("failed", failed),
		slog.Int64("elapsedMs", time.Since(startedAt).Milliseconds()),
	)

	emit(true)
}

// runPassLocked is runPass with slot writes and onUpdate serialized under mu,
// for the streaming path where snapshots read every slot mid-flight.
func (s *Service) runPassLocked(
	ctx context.Context,
	specs []ProviderSpec,
	indices []int,
	term, country string,
	statuses []domain.ProviderStatus,
	resultsByIndex [][]domain.Medicine,
	track bool,
	mu *sync.Mutex,
	onUpdate func(),
) {
	sem := semaphore.NewWeighted(maxConcurrentProviders)
	var wg sync.WaitGroup
	for _, i := range indices {
		spec := specs[i]
		wg.Add(1)
		go func(index int, current ProviderSpec) {
			defer wg.Done()

			name := strings.ToLower(strings.TrimSpace(current.Provider.Name()))

			if err := sem.Acquire(ctx, 1); err != nil {
				if track {
					mu.Lock()
					statuses[index] = domain.ProviderStatus{Name: name, OK: false, Error: "context cancelled"}
					mu.Unlock()
					s.tracker.Update(name, true, fmt.Errorf("context cancelled"))
				}
				return
			}
			defer sem.Release(1)

			now := time.Now()
			if blocked, until, lastErr := s.isProviderBlocked(name, now); blocked {
				if track {
					blockErr := fmt.Errorf("provider temporarily unhealthy until %s: %s", until.UTC().Format(time.RFC3339), lastErr)
					mu.Lock()
					statuses[index] = domain.ProviderStatus{Name: name, OK: false, Error: blockErr.Error()}
					onUpdate()
					mu.Unlock()
					s.tracker.Update(name, true, blockErr)
				}
				return
			}

			if track {
				s.tracker.Update(name, false, nil)
			}

			providerStartedAt := time.Now()
			records, searchErr := s.invokeWithTimeout(ctx, current, term, country)
			s.recordProviderResult(name, term, searchErr, time.Since(providerStartedAt), time.Now())

			mu.Lock()
			if !track {
				if searchErr == nil && len(records) > 0 {
					resultsByIndex[index] = append(resultsByIndex[index], records...)
					statuses[index].Count += len(records)
					onUpdate()
				}
				mu.Unlock()
				return
			}
			status := domain.ProviderStatus{
				Name:  name,
				OK:    searchErr == nil,
				Count: len(records),
			}
			if searchErr != nil {
				status.Error = searchErr.Error()
			}
			statuses[index] = status
			resultsByIndex[index] = records
			onUpdate()
			mu.Unlock()
			s.tracker.Update(name, true, searchErr)
		}(i, spec)
	}
	wg.Wait()
}

func allIndices(n int) []int {
	indices := make([]int, n)
	for i := range indices {
		indices[i] = i
	}
	return indices
}

func flattenResults(resultsByIndex [][]domain.Medicine) []domain.Medicine {
	total := 0
	for _, records := range resultsByIndex {
		total += len(records)
	}
	flat := make([]domain.Medicine, 0, total)
	for _, records := range resultsByIndex {
		flat = append(flat, records...)
	}
	return flat
}

// uniqueCount reports how many distinct products the collected results hold,
// using the same identity as Dedupe.
func uniqueCount(resultsByIndex [][]domain.Medicine) int {
	seen := make(map[string]struct{})
	for _, records := range resultsByIndex {
		for _, record := range records {
			seen[dedupeKey(record)] = struct{}{}
		}
	}
	return len(seen)
}
