package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/bassam-ai/bassam/internal/cache"
	"github.com/bassam-ai/bassam/internal/classifier"
	"github.com/bassam-ai/bassam/internal/config"
	"github.com/bassam-ai/bassam/internal/db"
	"github.com/bassam-ai/bassam/internal/db/disk"
	dbRedis "github.com/bassam-ai/bassam/internal/db/redis"
	"github.com/bassam-ai/bassam/internal/db/sqlite"
	"github.com/bassam-ai/bassam/internal/domain"
	"github.com/bassam-ai/bassam/internal/ledger"
	"github.com/bassam-ai/bassam/internal/llm"
	logpkg "github.com/bassam-ai/bassam/internal/logger"
	"github.com/bassam-ai/bassam/internal/mathskill"
	"github.com/bassam-ai/bassam/internal/metrics"
	"github.com/bassam-ai/bassam/internal/orchestrator"
	"github.com/bassam-ai/bassam/internal/retriever"
	"github.com/bassam-ai/bassam/internal/session"
	chiTransport "github.com/bassam-ai/bassam/internal/transport/chi"
	healthuc "github.com/bassam-ai/bassam/internal/usecase/health"
	usageuc "github.com/bassam-ai/bassam/internal/usecase/usage"
	"github.com/bassam-ai/bassam/internal/version"
	"github.com/bassam-ai/bassam/internal/websearch"
)

const (
	flushInterval   = time.Minute
	dailyCounterTTL = 48 * time.Hour
	monthCounterTTL = 62 * 24 * time.Hour
)

func main() {
	env := config.GetEnv()

	cfg, err := config.Load(env)
	if err != nil {
		var cerr *domain.ConfigError
		if errors.As(err, &cerr) {
			fmt.Fprintln(os.Stderr, "configuration error:", cerr.Error())
		} else {
			fmt.Fprintln(os.Stderr, "failed to load config:", err)
		}
		os.Exit(1)
	}

	logger, err := logpkg.NewLogger(env, cfg.Logging.Level)
	if err != nil {
		panic("failed to create logger: " + err.Error())
	}
	defer func() { _ = logger.Sync() }()

	logger.Info("Starting bassam API server",
		zap.String("version", version.Version),
		zap.String("commit", version.Commit),
		zap.String("env", env),
		zap.Int("http_port", cfg.HTTP.Port),
		zap.String("data_dir", cfg.Paths.DataDir),
		zap.Strings("redis_addrs", cfg.Redis.Addrs),
	)

	ctx := context.Background()
	metrics.RegisterAssistantMetrics()

	// Relational store
	rows, err := sqlite.Open(ctx, cfg.Paths.SQLitePath, cfg.Database.MaxConnections)
	if err != nil {
		logger.Fatal("Failed to open relational store", zap.Error(err))
	}
	defer func() { _ = rows.Close() }()

	// Durable KV: Redis when configured, a local directory otherwise
	kv, sweeper, err := openKV(cfg)
	if err != nil {
		logger.Fatal("Failed to create durable KV store", zap.Error(err))
	}
	defer kv.Close()
	if err := kv.WaitForReady(ctx, time.Duration(cfg.Redis.ReadinessTimeout)*time.Second); err != nil {
		logger.Fatal("Durable KV store not ready", zap.Error(err))
	}
	logger.Info("Connected to durable stores")

	// Ledger shared by the dispatcher, the fetcher and the usage endpoint
	quotas := make(map[string]ledger.Quota, len(cfg.Providers))
	for name, p := range cfg.Providers {
		quotas[name] = ledger.Quota{DailyRequests: p.DailyRequests, DailyTokens: p.DailyTokens}
	}
	counterStore, err := openCounters(cfg, kv)
	if err != nil {
		logger.Fatal("Failed to open usage counters", zap.Error(err))
	}
	usage := ledger.New(quotas, logger, ledger.WithLogWriter(rows)).WithStore(ctx, counterStore)

	cacheOpts := []cache.Option{cache.WithKV(kv), cache.WithRows(rows)}
	if sweeper != nil {
		cacheOpts = append(cacheOpts, cache.WithSweeper(sweeper))
	}
	answers := cache.New(cache.Config{
		MaxBytes:   cfg.CacheBytes(),
		MaxEntries: cfg.Cache.MaxEntries,
	}, logger, cacheOpts...)

	// Providers, cheapest first
	providers, err := buildProviders(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("Failed to create providers", zap.Error(err))
	}
	registry := llm.NewRegistry(ctx, providers, llm.RegistryConfig{EnableLocal: cfg.Local.LocalEnabled()}, logger)
	dispatcher := llm.NewDispatcher(registry, usage,
		time.Duration(cfg.Orchestrator.ProviderTimeoutSec)*time.Second, logger)
	names := make([]string, 0, len(registry.Available()))
	for _, d := range registry.Available() {
		names = append(names, d.Name)
	}
	logger.Info("Providers available", zap.Strings("providers", names))

	fetchTimeout := time.Duration(cfg.Search.FetchTimeoutSec) * time.Second
	searcher := websearch.NewSearcher(websearch.SearcherConfig{
		Endpoint:       cfg.Search.Endpoint,
		UserAgent:      cfg.Search.UserAgent,
		Timeout:        fetchTimeout,
		PreferredHosts: cfg.Search.PreferredHosts,
		Bandwidth:      usage,
	}, logger)
	fetcher := websearch.NewFetcher(websearch.FetcherConfig{
		UserAgent: cfg.Search.UserAgent,
		Timeout:   fetchTimeout,
		Bandwidth: usage,
	}, logger)

	local, err := retriever.Build(cfg.Paths.CorpusDirs, logger)
	if err != nil {
		logger.Fatal("Failed to index local corpus", zap.Error(err))
	}
	logger.Info("Local corpus indexed", zap.Int("documents", local.Len()))

	sessions := session.NewStore(logger, session.WithPersister(rows))

	orch := orchestrator.New(orchestrator.Deps{
		Cache:      answers,
		Classifier: classifier.New(),
		Math:       mathskill.New(),
		LLM:        dispatcher,
		Search:     searcher,
		Fetch:      fetcher,
		Local:      local,
		Sessions:   sessions,
		Build:      usage,
	}, orchestrator.Config{
		RequestTimeout: time.Duration(cfg.Orchestrator.RequestTimeoutSec) * time.Second,
		MaxSources:     cfg.Search.MaxSources,
		MaxTokens:      cfg.Orchestrator.MaxTokens,
	}, logger)

	healthSvc := healthuc.New(rows, kv, dispatcher)
	usageSvc := usageuc.New(usage, dispatcher, rows)

	server := chiTransport.NewServer(orch, healthSvc, usageSvc, logger)

	r := chi.NewRouter()
	r.Use(jsonRecoverer(logger))
	r.Use(chiMiddleware.RequestID)
	r.Use(wideEventMiddleware(logger))
	r.Use(chiTransport.BearerAuthMiddleware(cfg.Auth.APIKeys))
	r.Use(metrics.Middleware())
	server.Routes(r)

	addr := fmt.Sprintf(":%d", cfg.HTTP.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  time.Duration(cfg.HTTP.ReadTimeoutSec) * time.Second,
		WriteTimeout: time.Duration(cfg.HTTP.WriteTimeoutSec) * time.Second,
	}

	bgCtx, stopBackground := context.WithCancel(ctx)
	done := make(chan struct{})
	go func() {
		defer close(done)
		maintain(bgCtx, answers, usage,
			time.Duration(cfg.Cache.MaintenanceIntervalMin)*time.Minute, logger)
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)

	go func() {
		logger.Info("Starting HTTP server", zap.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("HTTP server error", zap.Error(err))
		}
	}()

	<-quit
	logger.Info("Received shutdown signal")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Duration(cfg.HTTP.ShutdownSec)*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Error during shutdown", zap.Error(err))
	}
	stopBackground()
	<-done

	if err := usage.Flush(shutdownCtx); err != nil {
		logger.Error("Final usage flush failed", zap.Error(err))
	}

	logger.Info("Server stopped gracefully")
}

func openKV(cfg config.Config) (db.Store, cache.Sweeper, error) {
	if len(cfg.Redis.Addrs) > 0 {
		store, err := dbRedis.NewStore(dbRedis.Config{
			Addrs:    cfg.Redis.Addrs,
			Password: cfg.Redis.Password,
		})
		return store, nil, err
	}
	store, err := disk.NewStore(cfg.Paths.KVDir)
	if err != nil {
		return nil, nil, err
	}
	return store, store, nil
}

// openCounters keeps ledger counters next to the answers when Redis is
// configured and in a JSON file otherwise.
func openCounters(cfg config.Config, kv db.Store) (ledger.CounterStore, error) {
	if len(cfg.Redis.Addrs) > 0 {
		return ledger.NewKVCounters(kv, dailyCounterTTL, monthCounterTTL), nil
	}
	return ledger.OpenFileCounters(cfg.Paths.CountersFile)
}

// buildProviders turns the provider table into transports. Access is decided
// later by the registry.
func buildProviders(ctx context.Context, cfg config.Config, logger *zap.Logger) ([]llm.Provider, error) {
	out := make([]llm.Provider, 0, len(cfg.Providers))
	for name, p := range cfg.Providers {
		desc := domain.ProviderDescriptor{
			Name:           name,
			Kind:           domain.ProviderKind(p.Kind),
			CostTier:       p.CostTier,
			QualityScore:   p.QualityScore,
			MaxTokens:      p.MaxTokens,
			SupportsArabic: true,
			CredentialRef:  p.APIKey,
		}
		if desc.Kind == domain.ProviderLocalHosted {
			desc.Endpoint = p.BaseURL
		}
		if name == "bassam" && !weightsPresent(cfg.Local.ModelPath) {
			logger.Info("Provider disabled: no local weights", zap.String("provider", name),
				zap.String("model_path", cfg.Local.ModelPath))
			continue
		}

		switch p.Transport {
		case "gemini":
			g, err := llm.NewGeminiProvider(ctx, &llm.GeminiConfig{Descriptor: desc, Model: p.Model, BaseURL: p.BaseURL})
			if err != nil {
				return nil, fmt.Errorf("provider %s: %w", name, err)
			}
			out = append(out, g)
		case "anthropic":
			out = append(out, llm.NewAnthropicProvider(&llm.AnthropicConfig{
				Descriptor: desc, BaseURL: p.BaseURL, Model: p.Model,
			}))
		case "openai":
			oc := &llm.OpenAIConfig{Descriptor: desc, BaseURL: p.BaseURL, Model: p.Model}
			if desc.Kind == domain.ProviderLocalHosted {
				base := strings.TrimRight(p.BaseURL, "/")
				oc.ProbeURL = base
				oc.BaseURL = base + "/v1"
			}
			out = append(out, llm.NewOpenAIProvider(oc))
		}
	}
	return out, nil
}

func weightsPresent(path string) bool {
	if path == "" {
		return false
	}
	st, err := os.Stat(path)
	return err == nil && !st.IsDir()
}

// maintain flushes the ledger every minute and optimizes the cache on its own interval.
func maintain(ctx context.Context, c *cache.Cache, l *ledger.Ledger, every time.Duration, logger *zap.Logger) {
	flush := time.NewTicker(flushInterval)
	defer flush.Stop()
	optimize := time.NewTicker(every)
	defer optimize.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-flush.C:
			if err := l.Flush(ctx); err != nil {
				logger.Warn("Usage flush failed", zap.Error(err))
			}
		case <-optimize.C:
			if _, err := c.Optimize(ctx); err != nil {
				logger.Warn("Cache optimize failed", zap.Error(err))
			}
		}
	}
}

// jsonRecoverer is a recovery middleware that returns JSON instead of a plain text stacktrace.
func jsonRecoverer(logger *zap.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if rvr := recover(); rvr != nil {
					logger.Error("panic recovered",
						zap.Any("panic", rvr),
						zap.Stack("stacktrace"),
					)
					w.Header().Set("Content-Type", "application/json")
					w.WriteHeader(http.StatusInternalServerError)
					_ = json.NewEncoder(w).Encode(chiTransport.ErrorResponse{
						OK:      false,
						Code:    chiTransport.CodeInternal,
						Message: "internal error",
					})
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}

// wideEventMiddleware emits a canonical log line per request and propagates X-Request-ID.
func wideEventMiddleware(logger *zap.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			requestID := chiMiddleware.GetReqID(r.Context())
			if requestID != "" {
				w.Header().Set("X-Request-ID", requestID)
			}

			reqLogger := logger.With(zap.String("request_id", requestID))
			ctx := logpkg.ContextWithLogger(r.Context(), reqLogger)

			ww := chiMiddleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r.WithContext(ctx))

			// One line per request
			reqLogger.Info("http_request",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", ww.Status()),
				zap.Duration("latency", time.Since(start)),
				zap.String("ip", r.RemoteAddr),
				zap.Int64("content_length", r.ContentLength),
				zap.String("upstream_calls", ww.Header().Get("X-Upstream-Calls")),
				zap.Int("response_bytes", ww.BytesWritten()),
			)
		})
	}
}
