package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/pysugar/agent-nexus/internal/agent"
	"github.com/pysugar/agent-nexus/internal/api"
	"github.com/pysugar/agent-nexus/internal/auth/oauth"
	"github.com/pysugar/agent-nexus/internal/auth/token"
	"github.com/pysugar/agent-nexus/internal/config"
	"github.com/pysugar/agent-nexus/internal/db"
	"github.com/pysugar/agent-nexus/internal/db/models"
	"github.com/pysugar/agent-nexus/internal/llm"
	"github.com/pysugar/agent-nexus/internal/rag"
	"github.com/pysugar/agent-nexus/internal/version"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Initialize database
	database, err := db.InitDB(cfg.Database.Path)
	if err != nil {
		log.Fatalf("Failed to initialize database: %v", err)
	}

	// OAuth clients and the token manager that refreshes their credentials
	providers := oauth.NewProviders(cfg)
	for _, p := range models.Providers {
		if !providers.Configured(p) {
			log.Printf("⚠️ %s OAuth client not configured, connect flow disabled", p.Label())
		}
	}
	tokenManager := token.NewManager(database, providers.Refreshers())
	tokenManager.StartRefreshLoop(ctx, cfg.RefreshIntervalDuration())

	// Retrieval: embeddings, vector index and document ingestion
	if cfg.OpenAI.APIKey == "" {
		log.Printf("⚠️ OPENAI_API_KEY is not set, chat and document search will fail")
	}
	embedder := rag.NewOpenAIEmbedder(cfg.OpenAI.APIKey, cfg.OpenAI.BaseURL, cfg.OpenAI.EmbeddingModel)
	index, err := rag.NewChromemIndex(rag.IndexConfig{
		PersistPath: cfg.Vector.PersistPath,
		Compress:    cfg.Vector.Compress,
		Collection:  cfg.Vector.Collection,
	})
	if err != nil {
		log.Fatalf("Failed to open vector index: %v", err)
	}
	ingester := rag.NewIngester(database, embedder, index, cfg.Storage.Path)

	// Agents
	assembler := agent.NewAssembler(database, tokenManager, embedder, index, agent.Options{
		Model:            cfg.OpenAI.ChatModel,
		HTTPClient:       &http.Client{Timeout: cfg.ProviderTimeoutDuration()},
		CalendarEndpoint: providers.APIBaseURL(models.ProviderGoogleCalendar),
		HubSpotBaseURL:   providers.APIBaseURL(models.ProviderHubSpot),
	})
	agents := agent.NewCache(assembler)
	chat := llm.NewClient(cfg.OpenAI.APIKey, cfg.OpenAI.BaseURL, database)

	router := api.NewRouter(api.Deps{
		DB:            database,
		Agents:        agents,
		Chat:          chat,
		Tokens:        tokenManager,
		Ingester:      ingester,
		OAuth:         oauth.NewHandler(database, providers),
		AdminPassword: cfg.Server.AdminPassword,
	})

	srv := &http.Server{Addr: cfg.Addr(), Handler: router}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Printf("⚠️ Shutdown: %v", err)
		}
	}()

	log.Printf("🚀 AgentNexus %s starting on http://%s", version.String(), cfg.Addr())
	log.Printf("🔐 Connect: POST %s/api/connect/{provider}?name=<display name> (callback %s/auth/{provider}/callback)", cfg.Server.BaseURL, cfg.Server.BaseURL)
	log.Printf("🔌 API: http://%s/api", cfg.Addr())
	log.Printf("📊 Metrics: http://%s/metrics", cfg.Addr())

	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Fatalf("Server failed: %v", err)
	}
	log.Printf("👋 AgentNexus stopped")
}
