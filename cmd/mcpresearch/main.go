// research-mcp is an MCP research server exposing google_search,
// scrape_page, and search_and_scrape over stdio or streamable HTTP.
package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/codeready-toolchain/research-mcp/pkg/adminapi"
	"github.com/codeready-toolchain/research-mcp/pkg/cache"
	"github.com/codeready-toolchain/research-mcp/pkg/config"
	"github.com/codeready-toolchain/research-mcp/pkg/eventstore"
	"github.com/codeready-toolchain/research-mcp/pkg/mcpserver"
	"github.com/codeready-toolchain/research-mcp/pkg/orchestrator"
	"github.com/codeready-toolchain/research-mcp/pkg/scrape"
	"github.com/codeready-toolchain/research-mcp/pkg/search"
	"github.com/codeready-toolchain/research-mcp/pkg/version"
)

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func main() {
	configDir := flag.String("config-dir",
		getEnv("CONFIG_DIR", "./deploy/config"),
		"Path to configuration directory")
	flag.Parse()

	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))
	slog.SetDefault(logger)

	envPath := filepath.Join(*configDir, ".env")
	if err := godotenv.Load(envPath); err != nil {
		logger.Warn("could not load .env file, continuing with existing environment", "path", envPath, "error", err)
	} else {
		logger.Info("loaded environment file", "path", envPath)
	}

	logger.Info("starting research-mcp", "version", version.Full(), "config_dir", *configDir)

	cfg, err := config.Load(*configDir)
	if err != nil {
		logger.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}
	logger.Info("configuration loaded", "summary", cfg.Summary())

	c := buildCache(cfg.Cache, logger)
	defer c.Dispose()

	es, err := buildEventStore(cfg.EventStore, logger)
	if err != nil {
		logger.Error("failed to build event store", "error", err)
		os.Exit(1)
	}
	defer es.Dispose()

	orch := buildOrchestrator(cfg, c)
	srv := mcpserver.New(orch, es, logger)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	admin := adminapi.NewServer(c, es, orch.Metrics())
	if cfg.Server.AdminAddr != "" {
		go func() {
			logger.Info("admin API listening", "addr", cfg.Server.AdminAddr)
			if err := admin.Start(cfg.Server.AdminAddr); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("admin API server failed", "error", err)
			}
		}()
	}

	switch cfg.Server.Transport {
	case "http":
		runHTTP(ctx, cfg.Server.HTTPAddr, srv, admin, logger)
	default:
		if err := srv.RunStdio(ctx); err != nil {
			logger.Error("stdio server exited with error", "error", err)
			os.Exit(1)
		}
	}
}

func buildCache(cfg config.CacheConfig, logger *slog.Logger) *cache.Cache {
	var strategy cache.PersistenceStrategy
	switch cfg.Strategy {
	case "write_through":
		strategy = &cache.WriteThroughStrategy{}
	case "periodic":
		strategy = &cache.PeriodicStrategy{Interval: cfg.PersistInterval}
	case "hybrid":
		critical := make(map[string]bool, len(cfg.CriticalNamespaces))
		for _, ns := range cfg.CriticalNamespaces {
			critical[ns] = true
		}
		strategy = &cache.HybridStrategy{CriticalNamespaces: critical, Interval: cfg.PersistInterval}
	default:
		strategy = &cache.OnShutdownStrategy{}
	}

	return cache.New(cache.Config{
		DefaultTTL:       cfg.DefaultTTL,
		MaxSize:          cfg.MaxSize,
		EvictionFraction: cfg.EvictionFraction,
		SweepInterval:    cfg.SweepInterval,
		PersistenceRoot:  cfg.PersistenceRoot,
		EagerLoad:        cfg.EagerLoad,
		Strategy:         strategy,
	}, logger)
}

func buildEventStore(cfg config.EventStoreConfig, logger *slog.Logger) (*eventstore.Store, error) {
	critical := make(map[string]bool, len(cfg.CriticalStreams))
	for _, s := range cfg.CriticalStreams {
		critical[s] = true
	}

	var keyProvider eventstore.KeyProvider
	if cfg.EncryptionEnabled {
		hexKey := os.Getenv(cfg.EncryptionKeyEnv)
		kp, err := eventstore.NewStaticKeyProvider(hexKey)
		if err != nil {
			return nil, err
		}
		keyProvider = kp
	}

	return eventstore.New(eventstore.Config{
		MaxEventsPerStream: cfg.MaxEventsPerStream,
		MaxTotalEvents:     cfg.MaxTotalEvents,
		EventTTL:           cfg.EventTTL,
		CriticalStreams:    critical,
		PersistenceRoot:    cfg.PersistenceRoot,
		EncryptionEnabled:  cfg.EncryptionEnabled,
		KeyProvider:        keyProvider,
		AccessControl:      cfg.AccessControl,
	}, logger), nil
}

func buildOrchestrator(cfg *config.Config, c *cache.Cache) *orchestrator.Orchestrator {
	validator := scrape.NewValidator(cfg.Scrape.AllowedDomains, cfg.Scrape.AllowPrivateIPs)
	fetcher := scrape.NewFetcher(scrape.FetchConfig{
		RequestTimeout:    cfg.Scrape.RequestTimeout,
		NavigationTimeout: cfg.Scrape.NavigationTimeout,
		MaxRedirects:      cfg.Scrape.MaxRedirects,
		TruncateBytes:     cfg.Scrape.TruncateBytes,
		MinContentChars:   cfg.Scrape.MinContentChars,
	}, validator, nil)

	transcriptFetcher := scrape.NewHTTPTranscriptFetcher(nil, "")
	transcripts := scrape.NewTranscriptExtractor(transcriptFetcher, scrape.RetryConfig{
		MaxAttempts: cfg.Scrape.TranscriptMaxAttempts,
	})

	breakerCfg := scrape.BreakerConfig{
		FailureThreshold: cfg.Scrape.CircuitFailureThreshold,
		ResetTimeout:     cfg.Scrape.CircuitResetTimeout,
	}

	searchClient := search.NewClient(search.Config{
		APIKey:  os.Getenv(cfg.Search.APIKeyEnv),
		CSEID:   os.Getenv(cfg.Search.CSEIDEnv),
		Timeout: cfg.Search.Timeout,
	})

	return orchestrator.New(orchestrator.Config{
		Cache:             c,
		Validator:         validator,
		Fetcher:           fetcher,
		Transcripts:       transcripts,
		Search:            searchClient,
		SearchBreaker:     scrape.NewBreaker(breakerCfg),
		ScrapeBreaker:     scrape.NewBreaker(breakerCfg),
		TranscriptBreaker: scrape.NewBreaker(breakerCfg),
		Dedup: orchestrator.DedupConfig{
			MinParagraphLength:  cfg.Dedup.MinParagraphLength,
			SimilarityThreshold: cfg.Dedup.SimilarityThreshold,
		},
		MetricsReservoir: cfg.Metrics.ReservoirSize,
	})
}

func runHTTP(ctx context.Context, addr string, srv *mcpserver.Server, admin *adminapi.Server, logger *slog.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/mcp", srv.HTTPHandler())
	mux.Handle("GET /mcp/resume/{sessionID}", srv.ResumeHandler())

	httpServer := &http.Server{Addr: addr, Handler: mux}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = httpServer.Shutdown(shutdownCtx)
		_ = admin.Shutdown(shutdownCtx)
	}()

	logger.Info("MCP HTTP server listening", "addr", addr)
	if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("MCP HTTP server failed", "error", err)
		os.Exit(1)
	}
}
