package apihttp

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"medbrand/searchservice/internal/domain"
	"medbrand/searchservice/internal/localstore"
	"medbrand/searchservice/internal/search"
)

type SearchService interface {
	Search(ctx context.Context, request domain.SearchRequest, providers []string) (domain.SearchResponse, error)
	SearchStream(ctx context.Context, request domain.SearchRequest, providers []string) <-chan domain.SearchResponse
	Providers() []domain.ProviderInfo
	ProviderDiagnostics() []domain.ProviderDiagnostics
	Progress() *search.Tracker
}

type ProviderSettingsService interface {
	ListProviderConfigs() []domain.ProviderRuntimeConfig
	UpdateProviderConfig(ctx context.Context, patch domain.ProviderRuntimePatch) (domain.ProviderRuntimeConfig, error)
}

type LocalStoreService interface {
	Count(ctx context.Context) (int, error)
	Statistics(ctx context.Context) (domain.StoreStatistics, error)
	BulkInsert(ctx context.Context, records []domain.Medicine) (domain.ImportReport, error)
	Clear(ctx context.Context) error
}

type Server struct {
	search   SearchService
	settings ProviderSettingsService
	store    LocalStoreService
	logger   *slog.Logger
}

const (
	maxTermLength   = 200
	maxImportBytes  = 16 << 20
	maxImportBodies = 100000
)

type ServerOption func(*Server)

func WithLogger(logger *slog.Logger) ServerOption {
	return func(s *Server) {
		s.logger = logger
	}
}

func WithProviderSettings(settings ProviderSettingsService) ServerOption {
	return func(s *Server) {
		s.settings = settings
	}
}

func WithLocalStore(store LocalStoreService) ServerOption {
	return func(s *Server) {
		s.store = store
	}
}

func NewServer(searchService SearchService, options ...ServerOption) *Server {
	server := &Server{
		search: searchService,
		logger: slog.Default(),
	}
	for _, option := range options {
		if option != nil {
			option(server)
		}
	}
	if server.logger == nil {
		server.logger = slog.Default()
	}
	return server
}

func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", s.handleHealth)
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/search/providers", s.handleProviders)
	mux.HandleFunc("/search/providers/health", s.handleProvidersHealth)
	mux.HandleFunc("/search/settings/providers", s.handleProviderSettings)
	mux.HandleFunc("/search/stream", s.handleSearchStream)
	mux.HandleFunc("/search", s.handleSearch)
	mux.HandleFunc("/db/count", s.handleStoreCount)
	mux.HandleFunc("/db/stats", s.handleStoreStats)
	mux.HandleFunc("/db/sources", s.handleStoreSources)
	mux.HandleFunc("/db/import", s.handleStoreImport)
	mux.HandleFunc("/db/clear", s.handleStoreClear)
	traced := otelhttp.NewHandler(loggingMiddleware(s.logger, mux), "medicine-search",
		otelhttp.WithFilter(func(r *http.Request) bool {
			p := r.URL.Path
			return p != "/metrics" && p != "/health"
		}),
	)
	return recoveryMiddleware(s.logger, rateLimitMiddleware(50, 100, metricsMiddleware(traced)))
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":    "ok",
		"timestamp": time.Now().UTC(),
	})
}

func (s *Server) parseSearchRequest(r *http.Request) (domain.SearchRequest, []string, error) {
	term := strings.TrimSpace(r.URL.Query().Get("term"))
	if term == "" {
		// Legacy alias.
		term = strings.TrimSpace(r.URL.Query().Get("q"))
	}
	if term == "" {
		return domain.SearchRequest{}, nil, errors.New("search term is required")
	}
	if len(term) > maxTermLength {
		return domain.SearchRequest{}, nil, fmt.Errorf("search term too long (max %d characters)", maxTermLength)
	}
	country := strings.TrimSpace(r.URL.Query().Get("country"))
	providers := parseCSV(r.URL.Query().Get("providers"))
	noCache := parseOptionalBool(r.URL.Query().Get("nocache")) || parseOptionalBool(r.URL.Query().Get("noCache"))
	return domain.SearchRequest{
		Term:    term,
		Country: country,
		NoCache: noCache,
	}, providers, nil
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/search" {
		http.NotFound(w, r)
		return
	}
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if s.search == nil {
		writeError(w, http.StatusInternalServerError, "internal_error", "search service is not configured")
		return
	}

	request, providers, err := s.parseSearchRequest(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}

	response, err := s.search.Search(r.Context(), request, providers)
	if err != nil {
		s.logger.Warn("search request failed",
			slog.String("term", truncate(request.Term, 80)),
			slog.Any("providers", providers),
			slog.String("error", err.Error()),
		)
		switch {
		case errors.Is(err, search.ErrInvalidTerm):
			writeError(w, http.StatusBadRequest, "invalid_request", err.Error())
		case errors.Is(err, search.ErrUnknownProvider):
			writeError(w, http.StatusBadRequest, "invalid_request", err.Error())
		case errors.Is(err, search.ErrNoProviders):
			writeError(w, http.StatusServiceUnavailable, "service_unavailable", err.Error())
		case errors.Is(err, search.ErrLocalStore):
			writeError(w, http.StatusInternalServerError, "internal_error", "local store failure")
		default:
			writeError(w, http.StatusInternalServerError, "internal_error", "search failed")
		}
		return
	}

	failedProviders := make([]string, 0, len(response.Providers))
	for _, providerStatus := range response.Providers {
		if !providerStatus.OK {
			failedProviders = append(failedProviders, providerStatus.Name)
		}
	}
	s.logger.Info("search completed",
		slog.String("term", truncate(request.Term, 80)),
		slog.Any("providers", providers),
		slog.Int("totalFound", response.TotalFound),
		slog.Int64("elapsedMs", response.ElapsedMS),
		slog.Int("failedProviders", len(failedProviders)),
	)
	if len(failedProviders) > 0 {
		s.logger.Warn("search providers partially failed",
			slog.String("term", truncate(request.Term, 80)),
			slog.Any("failedProviders", failedProviders),
		)
	}

	writeJSON(w, http.StatusOK, response)
}

func (s *Server) handleSearchStream(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/search/stream" {
		http.NotFound(w, r)
		return
	}
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if s.search == nil {
		writeError(w, http.StatusInternalServerError, "internal_error", "search service is not configured")
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "internal_error", "streaming is not supported")
		return
	}

	request, providers, err := s.parseSearchRequest(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}

	w.Header().Set("Content-Type", "text/event-stream; charset=utf-8")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")

	if err := writeSSEEvent(w, flusher, "bootstrap", map[string]any{
		"phase":  "bootstrap",
		"final":  false,
		"term":   request.Term,
		"status": "started",
	}); err != nil {
		return // Client disconnected
	}

	ch := s.search.SearchStream(r.Context(), request, providers)
	for response := range ch {
		select {
		case <-r.Context().Done():
			return // Client disconnected
		default:
		}
		// Progress rides alongside each snapshot so the client can render
		// per-provider completion without a second subscription.
		if err := writeSSEEvent(w, flusher, "progress", s.search.Progress().Snapshot()); err != nil {
			return
		}
		event := "update"
		if response.Final {
			event = "result"
		}
		response.Phase = event
		if err := writeSSEEvent(w, flusher, event, response); err != nil {
			return // Client disconnected
		}
	}

	_ = writeSSEEvent(w, flusher, "done", map[string]any{"final": true})
}

func (s *Server) handleProviders(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/search/providers" {
		http.NotFound(w, r)
		return
	}
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if s.search == nil {
		writeError(w, http.StatusInternalServerError, "internal_error", "search service is not configured")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"items": s.search.Providers(),
	})
}

func (s *Server) handleProvidersHealth(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/search/providers/health" {
		http.NotFound(w, r)
		return
	}
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if s.search == nil {
		writeError(w, http.StatusInternalServerError, "internal_error", "search service is not configured")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"checkedAt": time.Now().UTC(),
		"items":     s.search.ProviderDiagnostics(),
	})
}

func (s *Server) handleProviderSettings(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/search/settings/providers" {
		http.NotFound(w, r)
		return
	}
	if s.settings == nil {
		writeError(w, http.StatusNotImplemented, "not_configured", "provider settings service is not configured")
		return
	}

	switch r.Method {
	case http.MethodGet:
		writeJSON(w, http.StatusOK, map[string]any{
			"items": s.settings.ListProviderConfigs(),
		})
	case http.MethodPatch:
		var payload struct {
			Provider string  `json:"provider"`
			Endpoint *string `json:"endpoint"`
			Model    *string `json:"model"`
			APIKey   *string `json:"apiKey"`
		}
		if err := decodeJSONBody(r, &payload); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request", err.Error())
			return
		}
		provider := strings.ToLower(strings.TrimSpace(payload.Provider))
		if provider == "" {
			writeError(w, http.StatusBadRequest, "invalid_request", "provider is required")
			return
		}
		item, err := s.settings.UpdateProviderConfig(r.Context(), domain.ProviderRuntimePatch{
			Name:     provider,
			Endpoint: payload.Endpoint,
			Model:    payload.Model,
			APIKey:   payload.APIKey,
		})
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request", err.Error())
			return
		}
		writeJSON(w, http.StatusOK, item)
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func (s *Server) handleStoreCount(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if s.store == nil {
		writeError(w, http.StatusNotImplemented, "not_configured", "local store is not configured")
		return
	}
	total, err := s.store.Count(r.Context())
	if err != nil {
		s.logger.Error("store count failed", slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "internal_error", "store count failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"count": total})
}

func (s *Server) handleStoreStats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if s.store == nil {
		writeError(w, http.StatusNotImplemented, "not_configured", "local store is not configured")
		return
	}
	stats, err := s.store.Statistics(r.Context())
	if err != nil {
		s.logger.Error("store statistics failed", slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "internal_error", "store statistics failed")
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func (s *Server) handleStoreSources(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"items": localstore.ImportSources(),
	})
}

func (s *Server) handleStoreImport(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if s.store == nil {
		writeError(w, http.StatusNotImplemented, "not_configured", "local store is not configured")
		return
	}

	defer r.Body.Close()
	payload, err := io.ReadAll(io.LimitReader(r.Body, maxImportBytes))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "read request body failed")
		return
	}
	var records []domain.Medicine
	if err := json.Unmarshal(payload, &records); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "body must be a JSON array of medicine records")
		return
	}
	if len(records) == 0 {
		writeError(w, http.StatusBadRequest, "invalid_request", "no records to import")
		return
	}
	if len(records) > maxImportBodies {
		writeError(w, http.StatusBadRequest, "invalid_request", fmt.Sprintf("too many records (max %d)", maxImportBodies))
		return
	}

	report, err := s.store.BulkInsert(r.Context(), records)
	if err != nil {
		s.logger.Error("store import failed",
			slog.Int("records", len(records)),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "internal_error", "import failed")
		return
	}
	s.logger.Info("store import completed",
		slog.Int("inserted", report.Inserted),
		slog.Int("failed", report.Failed),
	)
	writeJSON(w, http.StatusOK, report)
}

func (s *Server) handleStoreClear(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost && r.Method != http.MethodDelete {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if s.store == nil {
		writeError(w, http.StatusNotImplemented, "not_configured", "local store is not configured")
		return
	}
	if err := s.store.Clear(r.Context()); err != nil {
		s.logger.Error("store clear failed", slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "internal_error", "clear failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "cleared"})
}

func parseCSV(raw string) []string {
	if strings.TrimSpace(raw) == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	seen := make(map[string]struct{}, len(parts))
	for _, part := range parts {
		value := strings.ToLower(strings.TrimSpace(part))
		if value == "" {
			continue
		}
		if _, exists := seen[value]; exists {
			continue
		}
		seen[value] = struct{}{}
		out = append(out, value)
	}
	return out
}

func decodeJSONBody(r *http.Request, dest any) error {
	if r.Body == nil {
		return nil
	}
	defer r.Body.Close()

	payload, err := io.ReadAll(io.LimitReader(r.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("read request body: %w", err)
	}
	if len(bytes.TrimSpace(payload)) == 0 {
		return nil
	}

	decoder := json.NewDecoder(bytes.NewReader(payload))
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(dest); err != nil {
		if errors.Is(err, io.EOF) {
			return nil
		}
		return fmt.Errorf("invalid json body: %w", err)
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, map[string]any{
		"error": map[string]string{
			"code":    code,
			"message": message,
		},
	})
}

func parseOptionalBool(raw string) bool {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "1", "true", "yes", "on":
		return true
	default:
		return false
	}
}

func writeSSEEvent(w http.ResponseWriter, flusher http.Flusher, event string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	if event != "" {
		if _, err := fmt.Fprintf(w, "event: %s\n", event); err != nil {
			return err // Client disconnected
		}
	}
	if _, err := fmt.Fprintf(w, "data: %s\n\n", data); err != nil {
		return err // Client disconnected
	}
	flusher.Flush()
	return nil
}
