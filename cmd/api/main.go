// Package main implements the PlanSight API server: diagram upload,
// scene-graph queries, and diagram browsing.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/nats-io/nats.go"
	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	"github.com/PlanSightAI/plansight-mvp/engine/docproc"
	"github.com/PlanSightAI/plansight-mvp/engine/extract"
	"github.com/PlanSightAI/plansight-mvp/engine/graph"
	"github.com/PlanSightAI/plansight-mvp/engine/ingest"
	"github.com/PlanSightAI/plansight-mvp/engine/rag"
	"github.com/PlanSightAI/plansight-mvp/engine/semantic"
	"github.com/PlanSightAI/plansight-mvp/pkg/llm"
	"github.com/PlanSightAI/plansight-mvp/pkg/metrics"
	"github.com/PlanSightAI/plansight-mvp/pkg/mid"
	"github.com/PlanSightAI/plansight-mvp/pkg/resilience"
)

// Config holds all environment-based configuration.
type Config struct {
	Port       string
	Neo4jURL   string
	Neo4jUser  string
	Neo4jPass  string
	OpenAIKey  string
	QdrantURL  string
	Collection string
	NATSURL    string
	CORSOrigin string
}

func loadConfig() Config {
	// Local development keeps settings in a .env file; absence is fine.
	_ = godotenv.Load()

	return Config{
		Port:       envOr("PORT", "8080"),
		Neo4jURL:   envOr("NEO4J_URL", "neo4j://localhost:7687"),
		Neo4jUser:  envOr("NEO4J_USER", "neo4j"),
		Neo4jPass:  envOr("NEO4J_PASS", "password"),
		OpenAIKey:  os.Getenv("OPENAI_API_KEY"),
		QdrantURL:  os.Getenv("QDRANT_URL"),
		Collection: envOr("QDRANT_COLLECTION", "plansight-components"),
		NATSURL:    os.Getenv("NATS_URL"),
		CORSOrigin: envOr("CORS_ORIGIN", "*"),
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	cfg := loadConfig()

	if err := run(cfg, logger); err != nil {
		logger.Error("server exited with error", "err", err)
		os.Exit(1)
	}
}

func run(cfg Config, logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	reg := metrics.New()

	// --- Connect to Neo4j ---
	driver, err := neo4j.NewDriverWithContext(cfg.Neo4jURL, neo4j.BasicAuth(cfg.Neo4jUser, cfg.Neo4jPass, ""))
	if err != nil {
		return fmt.Errorf("neo4j driver: %w", err)
	}
	defer driver.Close(ctx)

	store := graph.NewStore(driver, logger).WithMetrics(reg)
	store.EnsureSchema(ctx)

	// --- Inference client, rate limited and circuit broken ---
	if cfg.OpenAIKey == "" {
		logger.Warn("OPENAI_API_KEY not set; extraction and queries will fail")
	}
	llmClient := llm.NewGuard(
		llm.New(cfg.OpenAIKey, ""),
		resilience.NewLimiter(resilience.LimiterOpts{Rate: 2, Burst: 4}),
		resilience.NewBreaker(resilience.DefaultBreakerOpts),
	)

	// --- Optional component index (Qdrant) ---
	var index *semantic.Index
	if cfg.QdrantURL != "" {
		index, err = semantic.New(cfg.QdrantURL, cfg.Collection, llmClient, logger)
		if err != nil {
			logger.Warn("qdrant connect failed, continuing without component index", "err", err)
		} else {
			defer index.Close()
			if err := index.EnsureCollection(ctx); err != nil {
				logger.Warn("qdrant collection setup failed, continuing without component index", "err", err)
				index = nil
			}
		}
	}

	// --- Optional NATS for ingest events ---
	var nc *nats.Conn
	if cfg.NATSURL != "" {
		nc, err = nats.Connect(cfg.NATSURL)
		if err != nil {
			logger.Warn("nats connect failed, continuing without events", "err", err)
		} else {
			defer nc.Close()
		}
	}

	// --- Ingestion pipeline (runs inline on upload) ---
	deps := ingest.Deps{
		Normalizer: docproc.New(logger),
		Extractor:  extract.New(llmClient, extract.DefaultOptions(), logger),
		Builder:    graph.NewBuilder(logger),
		Store:      store,
		Logger:     logger,
	}
	if index != nil {
		deps.Index = index
	}
	pipeline := ingest.NewPipeline(deps)

	// --- Query service ---
	var focus rag.Focuser
	if index != nil {
		focus = index
	}
	ragSvc := rag.New(store, llmClient, focus, rag.DefaultOptions(), logger)

	transcripts := newMemTranscripts()

	// --- Build HTTP server ---
	api := &server{
		store:       store,
		pipeline:    pipeline,
		rag:         ragSvc,
		transcripts: transcripts,
		nats:        nc,
		openaiSet:   cfg.OpenAIKey != "",
		logger:      logger,
		metrics:     reg,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/upload", api.handleUpload)
	mux.HandleFunc("POST /api/query", api.handleQuery)
	mux.HandleFunc("GET /api/diagrams", api.handleListDiagrams)
	mux.HandleFunc("GET /api/diagrams/{id}", api.handleGetDiagram)
	mux.HandleFunc("GET /api/diagrams/{id}/components", api.handleGetComponents)
	mux.HandleFunc("GET /api/chat/history/{id}", api.handleChatHistory)
	mux.HandleFunc("POST /api/chat/clear/{id}", api.handleChatClear)
	mux.HandleFunc("GET /api/health", api.handleHealth)
	mux.Handle("GET /metrics", reg.Handler())

	handler := mid.Chain(mux,
		mid.Recover(logger),
		mid.Logger(logger),
		mid.CORS(cfg.CORSOrigin),
		mid.OTel("plansight-api"),
	)

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      handler,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 120 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	// --- Graceful shutdown ---
	errCh := make(chan error, 1)
	go func() {
		logger.Info("api server starting", "port", cfg.Port)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err != nil && err != http.ErrServerClosed {
			return err
		}
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	}

	shutCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutCtx)
}
