package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	apihttp "medbrand/searchservice/internal/api/http"
	"medbrand/searchservice/internal/app"
	"medbrand/searchservice/internal/localstore"
	"medbrand/searchservice/internal/metrics"
	"medbrand/searchservice/internal/providers/clinicaltrials"
	"medbrand/searchservice/internal/providers/ema"
	"medbrand/searchservice/internal/providers/llm"
	"medbrand/searchservice/internal/providers/openfda"
	"medbrand/searchservice/internal/providers/pubchem"
	"medbrand/searchservice/internal/providers/rxnorm"
	"medbrand/searchservice/internal/providers/who"
	"medbrand/searchservice/internal/providers/wikidata"
	"medbrand/searchservice/internal/search"
	"medbrand/searchservice/internal/telemetry"
)

// Completion backends routinely take longer than registry REST lookups.
const llmTimeout = 20 * time.Second

func main() {
	cfg := app.LoadConfig()
	logger := newLogger(cfg.LogLevel, cfg.LogFormat)
	slog.SetDefault(logger)
	metrics.Register(prometheus.DefaultRegisterer)

	shutdownTracer, err := telemetry.Init(context.Background(), "medicine-search")
	if err != nil {
		logger.Warn("otel init failed", slog.String("error", err.Error()))
	}
	defer func() {
		if shutdownTracer != nil {
			_ = shutdownTracer(context.Background())
		}
	}()

	logger.Info("configuration loaded",
		slog.String("service", "medicine-search"),
		slog.String("httpAddr", cfg.HTTPAddr),
		slog.String("logLevel", cfg.LogLevel),
		slog.String("logFormat", cfg.LogFormat),
		slog.Duration("requestTimeout", cfg.RequestTimeout),
		slog.String("databasePath", cfg.DatabasePath),
		slog.Bool("hasRedis", strings.TrimSpace(cfg.RedisURL) != ""),
		slog.Bool("hasOpenAIKey", cfg.OpenAIAPIKey != ""),
		slog.Bool("hasPerplexityKey", cfg.PerplexityAPIKey != ""),
		slog.Bool("hasDeepSeekKey", cfg.DeepSeekAPIKey != ""),
		slog.Duration("cacheTTL", cfg.CacheTTL),
		slog.Bool("cacheDisabled", cfg.CacheDisabled),
	)

	redisClient := newRedisClient(cfg, logger)

	var store *localstore.Store
	if cfg.DatabasePath == "" {
		logger.Info("local store disabled")
	} else {
		store, err = openLocalStore(cfg.DatabasePath)
		if err != nil {
			logger.Error("local store unavailable", slog.String("error", err.Error()))
			os.Exit(1)
		}
		defer store.Close()
	}

	restClient := &http.Client{Timeout: cfg.RequestTimeout, Transport: otelhttp.NewTransport(http.DefaultTransport)}
	llmClient := &http.Client{Timeout: llmTimeout, Transport: otelhttp.NewTransport(http.DefaultTransport)}

	openAI := llm.NewOpenAI(cfg.OpenAIAPIKey, llmClient)
	perplexity := llm.NewPerplexity(cfg.PerplexityAPIKey, llmClient)
	deepSeek := llm.NewDeepSeek(cfg.DeepSeekAPIKey, llmClient)

	specs := []search.ProviderSpec{
		{Provider: rxnorm.NewProvider(rxnorm.Config{
			Endpoint:  cfg.RxNormEndpoint,
			UserAgent: cfg.UserAgent,
			Client:    restClient,
		})},
		{Provider: openfda.NewProvider(openfda.Config{
			Endpoint:  cfg.OpenFDAEndpoint,
			UserAgent: cfg.UserAgent,
			Client:    restClient,
		})},
		{Provider: ema.NewProvider(ema.Config{
			Endpoint:  cfg.EMAEndpoint,
			UserAgent: cfg.UserAgent,
			Client:    restClient,
		})},
		{Provider: who.NewProvider(who.Config{
			Endpoint:  cfg.WHOEndpoint,
			UserAgent: cfg.UserAgent,
			Client:    restClient,
		})},
		{Provider: clinicaltrials.NewProvider(clinicaltrials.Config{
			Endpoint:  cfg.ClinicalTrialsEndpoint,
			UserAgent: cfg.UserAgent,
			Client:    restClient,
		})},
		{Provider: pubchem.NewProvider(pubchem.Config{
			Endpoint:  cfg.PubChemEndpoint,
			UserAgent: cfg.UserAgent,
			Client:    restClient,
		})},
		{Provider: wikidata.NewProvider(wikidata.Config{
			Endpoint:  cfg.WikidataEndpoint,
			UserAgent: cfg.UserAgent,
			Client:    restClient,
		})},
		{Provider: openAI, Timeout: llmTimeout},
		{Provider: perplexity, Timeout: llmTimeout},
		{Provider: deepSeek, Timeout: llmTimeout},
	}

	searchService := search.NewService(specs, cfg.RequestTimeout,
		buildServiceOptions(cfg, redisClient, store)...)

	var runtimeConfigStore llm.RuntimeConfigStore
	if redisClient != nil {
		runtimeConfigStore = llm.NewRedisRuntimeConfigStore(redisClient, "")
	}
	providerSettings := llm.NewRuntimeConfigService(runtimeConfigStore, openAI, perplexity, deepSeek)

	serverOptions := []apihttp.ServerOption{
		apihttp.WithLogger(logger),
		apihttp.WithProviderSettings(providerSettings),
	}
	if store != nil {
		serverOptions = append(serverOptions, apihttp.WithLocalStore(store))
	}
	handler := apihttp.NewServer(searchService, serverOptions...).Handler()
	server := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		// SSE streaming (/search/stream) can legitimately exceed short write timeouts.
		// Keep it disabled at the server level; rely on per-provider timeouts and upstream limits.
		WriteTimeout: 0,
		IdleTimeout:  60 * time.Second,
	}

	rootCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.ListenAndServe()
	}()

	logger.Info("medicine search service started",
		slog.String("addr", cfg.HTTPAddr),
		slog.Duration("timeout", cfg.RequestTimeout),
	)

	select {
	case <-rootCtx.Done():
		logger.Info("shutdown signal received")
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", slog.String("error", err.Error()))
			os.Exit(1)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Warn("shutdown error", slog.String("error", err.Error()))
	}
	logger.Info("medicine search service stopped")
}

func openLocalStore(path string) (*localstore.Store, error) {
	if path != ":memory:" {
		if dir := filepath.Dir(path); dir != "" && dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, err
			}
		}
	}
	return localstore.Open(path)
}

func newRedisClient(cfg app.Config, logger *slog.Logger) *redis.Client {
	redisURL := strings.TrimSpace(cfg.RedisURL)
	if redisURL == "" {
		return nil
	}
	redisOpts, err := redis.ParseURL(redisURL)
	if err != nil {
		logger.Warn("invalid redis url, redis features disabled", slog.String("error", err.Error()))
		return nil
	}
	client := redis.NewClient(redisOpts)
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		logger.Warn("redis not reachable, redis features disabled", slog.String("error", err.Error()))
		return nil
	}
	logger.Info("redis connected", slog.String("addr", redisOpts.Addr))
	return client
}

func buildServiceOptions(cfg app.Config, redisClient *redis.Client, store *localstore.Store) []search.ServiceOption {
	var opts []search.ServiceOption
	// A typed nil would survive the nil check behind the LocalStore interface.
	if store != nil {
		opts = append(opts, search.WithLocalStore(store))
	}

	if cfg.CacheDisabled {
		opts = append(opts, search.WithCacheDisabled(true))
		return opts
	}

	if cfg.CacheTTL > 0 {
		opts = append(opts, search.WithCacheTTL(cfg.CacheTTL))
	}
	if redisClient != nil {
		opts = append(opts, search.WithRedisCache(search.NewRedisCache(redisClient)))
	}
	return opts
}

func newLogger(levelRaw, formatRaw string) *slog.Logger {
	level := parseLogLevel(levelRaw)
	options := &slog.HandlerOptions{Level: level}
	format := strings.ToLower(strings.TrimSpace(formatRaw))
	if format == "json" {
		return slog.New(slog.NewJSONHandler(os.Stdout, options))
	}
	return slog.New(slog.NewTextHandler(os.Stdout, options))
}

func parseLogLevel(raw string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
