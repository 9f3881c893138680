package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/nidhogg/secgraph/internal/agent"
	"github.com/nidhogg/secgraph/internal/api"
	"github.com/nidhogg/secgraph/internal/cache"
	"github.com/nidhogg/secgraph/internal/config"
	"github.com/nidhogg/secgraph/internal/embedding"
	"github.com/nidhogg/secgraph/internal/enrich"
	"github.com/nidhogg/secgraph/internal/gateway"
	"github.com/nidhogg/secgraph/internal/graph"
	"github.com/nidhogg/secgraph/internal/ingest"
	"github.com/nidhogg/secgraph/internal/provider"
	"github.com/nidhogg/secgraph/internal/semantic"
	pgstore "github.com/nidhogg/secgraph/internal/store"
	"github.com/nidhogg/secgraph/internal/vectormemory"
)

func main() {
	_ = godotenv.Load()

	logger, _ := zap.NewDevelopment()
	defer logger.Sync()

	logger.Info("Starting secgraph...")

	// Load configuration
	cfgPath := os.Getenv("CONFIG_PATH")
	if cfgPath == "" {
		cfgPath = "configs/secgraph.json"
	}
	cfg, err := config.Load(cfgPath)
	if err != nil {
		logger.Fatal("failed to load config", zap.String("path", cfgPath), zap.Error(err))
	}
	logger.Info("Config loaded", zap.String("path", cfgPath))

	// Initialize provider router
	router := provider.NewRouter(logger)
	for _, pc := range cfg.Providers {
		provCfg := provider.ProviderConfig{
			ID: pc.ID, Type: pc.Type, Name: pc.Name,
			Endpoint: pc.Endpoint, APIKey: pc.APIKey, Model: pc.Model,
		}
		switch pc.Type {
		case "openai":
			router.Register(provider.NewOpenAIProvider(provCfg, logger))
		case "anthropic":
			router.Register(provider.NewAnthropicProvider(provCfg, logger))
		default:
			logger.Warn("unknown provider type", zap.String("id", pc.ID), zap.String("type", pc.Type))
		}
	}

	// Initialize graph store
	graphStore, err := graph.NewStore(cfg.Database.Neo4j.URI, cfg.Database.Neo4j.User, cfg.Database.Neo4j.Password, logger)
	if err != nil {
		logger.Fatal("Neo4j unavailable", zap.Error(err))
	}

	// Initialize embedding provider, with Redis caching when available
	embedCfg := embedding.Config{
		Provider:  cfg.Embedding.Provider,
		Endpoint:  cfg.Embedding.Endpoint,
		Model:     cfg.Embedding.Model,
		APIKey:    cfg.Embedding.APIKey,
		Dimension: cfg.Embedding.Dimension,
	}
	var embedder embedding.Provider
	switch cfg.Embedding.Provider {
	case "local":
		embedder = embedding.NewLocalProvider(embedCfg)
	default:
		embedder = embedding.NewAPIProvider(embedCfg)
	}
	if cfg.Database.Redis.URL != "" {
		cached, cacheErr := cache.New(cfg.Database.Redis.URL, embedder, 24*time.Hour, logger)
		if cacheErr != nil {
			logger.Warn("Redis unavailable, embedding cache disabled", zap.Error(cacheErr))
		} else {
			embedder = cached
		}
	}

	// Initialize conversation memory
	var memory vectormemory.Store
	if cfg.Database.Qdrant.Enabled {
		qs, qErr := vectormemory.NewQdrantStore(context.Background(), vectormemory.QdrantConfig{
			Host:       cfg.Database.Qdrant.Host,
			Port:       cfg.Database.Qdrant.Port,
			Collection: cfg.Database.Qdrant.Collection,
			Dimension:  cfg.Embedding.Dimension,
		})
		if qErr != nil {
			logger.Warn("Qdrant unavailable, using in-memory conversation store", zap.Error(qErr))
			memory = vectormemory.NewInMemoryStore()
		} else {
			memory = qs
		}
	} else {
		memory = vectormemory.NewInMemoryStore()
	}

	// Initialize PostgreSQL session store
	var pgStore *pgstore.Store
	if cfg.Database.Postgres.DSN != "" {
		ps, pgErr := pgstore.New(cfg.Database.Postgres.DSN, logger)
		if pgErr != nil {
			logger.Warn("PostgreSQL unavailable, running without session persistence", zap.Error(pgErr))
		} else {
			if mErr := ps.Migrate(context.Background(), "migrations"); mErr != nil {
				logger.Fatal("migration failed", zap.Error(mErr))
			}
			pgStore = ps
		}
	}

	// Initialize agent orchestrator
	orch := agent.New(router, graphStore, embedder, memory, agent.Config{
		RecallTopK:      cfg.Agent.RecallTopK,
		MemoryThreshold: cfg.Agent.MemoryThreshold,
	}, logger)

	// Initialize enrichment engine, ingestion and search
	enricher := enrich.NewEngine(graphStore, router, enrich.Config{
		PairConcurrency: cfg.Enrichment.PairConcurrency,
	}, logger)
	ingester := ingest.New(graphStore, logger)
	populator := ingest.NewPopulator(graphStore, embedder, logger)
	searcher := semantic.NewSearcher(graphStore, embedder, logger)

	// Initialize gateway
	gw := gateway.NewGateway(logger)

	// Wire dispatcher BEFORE registering adapters (Register captures handler)
	var sessions gateway.SessionStore
	if pgStore != nil {
		sessions = pgStore
	}
	gateway.NewDispatcher(gw, orch, sessions, logger)

	if cfg.Gateway.Slack.Enabled && cfg.Gateway.Slack.BotToken != "" {
		slackAdapter := gateway.NewSlackAdapter(cfg.Gateway.Slack.BotToken, cfg.Gateway.Slack.AppToken, logger)
		gw.Register(slackAdapter)
	}

	if cfg.Gateway.Discord.Enabled && cfg.Gateway.Discord.BotToken != "" {
		discordAdapter := gateway.NewDiscordAdapter(cfg.Gateway.Discord.BotToken, logger)
		gw.Register(discordAdapter)
	}

	gwCtx := context.Background()
	if err := gw.ConnectAll(gwCtx); err != nil {
		logger.Warn("some gateway adapters failed to connect", zap.Error(err))
	}

	// Build HTTP handler
	handler := api.NewHandler(orch, enricher, ingester, populator, searcher, graphStore, logger)

	// Start server
	port := fmt.Sprintf("%d", cfg.Server.Port)
	if port == "0" {
		port = "8080"
	}
	srv := &http.Server{
		Addr:    ":" + port,
		Handler: handler.Router(),
	}

	go func() {
		logger.Info("secgraph listening", zap.String("port", port))
		if err := srv.ListenAndServe(); err != http.ErrServerClosed {
			logger.Fatal("server error", zap.Error(err))
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down secgraph...")
	ctx := context.Background()
	srv.Shutdown(ctx)
	orch.Close()
	if qs, ok := memory.(*vectormemory.QdrantStore); ok {
		qs.Close()
	}
	graphStore.Close(ctx)
	if pgStore != nil {
		pgStore.Close()
	}
	gw.Close()
}
