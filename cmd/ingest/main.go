// Command ingest processes engineering diagrams into the graph store. It
// watches a directory for diagram files and, when a NATS URL is given,
// also consumes uploads published on the wire.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	"github.com/PlanSightAI/plansight-mvp/engine/docproc"
	"github.com/PlanSightAI/plansight-mvp/engine/extract"
	"github.com/PlanSightAI/plansight-mvp/engine/graph"
	"github.com/PlanSightAI/plansight-mvp/engine/ingest"
	"github.com/PlanSightAI/plansight-mvp/engine/semantic"
	"github.com/PlanSightAI/plansight-mvp/pkg/fn"
	"github.com/PlanSightAI/plansight-mvp/pkg/llm"
	"github.com/PlanSightAI/plansight-mvp/pkg/metrics"
	"github.com/PlanSightAI/plansight-mvp/pkg/resilience"
)

var met = metrics.New()

// Ingest metrics
var (
	mDiagramsTotal  = met.Counter("plansight_ingest_diagrams_total", "Diagrams ingested")
	mErrorsTotal    = func(stage string) *metrics.Counter { return met.Counter(metrics.WithLabels("plansight_ingest_errors_total", "stage", stage), "Ingestion errors") }
	mFilesProcessed = met.Counter("plansight_ingest_files_processed_total", "Files processed")
	mBytesProcessed = met.Counter("plansight_ingest_bytes_processed_total", "Bytes of diagram files processed")
	mQueueDepth     = met.Gauge("plansight_ingest_queue_depth", "Files waiting to process")
	mLastScan       = met.Gauge("plansight_ingest_last_scan_timestamp", "Epoch of last directory scan")
	mPipelineDur    = met.Histogram("plansight_ingest_pipeline_duration_seconds", "Per-diagram pipeline time", nil)
)

func main() {
	var (
		dataDir     = flag.String("dir", "/tmp/plansight-diagrams", "directory to watch for diagram files")
		natsURL     = flag.String("nats", "", "NATS URL for upload consumption (empty disables)")
		objectsDir  = flag.String("objects", "/tmp/plansight-objects", "local object store root for staged uploads")
		neo4jURL    = flag.String("neo4j", "neo4j://localhost:7687", "Neo4j bolt URL")
		neo4jUser   = flag.String("neo4j-user", "neo4j", "Neo4j username")
		neo4jPass   = flag.String("neo4j-pass", "password", "Neo4j password")
		qdrantAddr  = flag.String("qdrant", "", "Qdrant gRPC address (empty disables component index)")
		collection  = flag.String("collection", "plansight-components", "Qdrant collection name")
		interval    = flag.Duration("interval", 30*time.Second, "scan interval")
		stateFile   = flag.String("state", "/tmp/plansight-diagrams/.ingest-state.json", "processed files state")
		metricsPort = flag.Int("metrics-port", 9091, "metrics listen port")
	)
	flag.Parse()

	log := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(log)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	go serveMetrics(*metricsPort, log)

	// Connect Neo4j
	driver, err := neo4j.NewDriverWithContext(*neo4jURL, neo4j.BasicAuth(*neo4jUser, *neo4jPass, ""))
	if err != nil {
		log.Error("neo4j connect failed", "error", err)
		os.Exit(1)
	}
	defer driver.Close(ctx)
	if err := driver.VerifyConnectivity(ctx); err != nil {
		log.Error("neo4j verify failed", "error", err)
		os.Exit(1)
	}
	log.Info("connected to Neo4j")

	store := graph.NewStore(driver, log).WithMetrics(met)
	store.EnsureSchema(ctx)

	// Inference client, rate limited and circuit broken
	apiKey := os.Getenv("OPENAI_API_KEY")
	if apiKey == "" {
		log.Error("OPENAI_API_KEY is required")
		os.Exit(1)
	}
	llmClient := llm.NewGuard(
		llm.New(apiKey, ""),
		resilience.NewLimiter(resilience.LimiterOpts{Rate: 2, Burst: 4}),
		resilience.NewBreaker(resilience.DefaultBreakerOpts),
	)

	// Optional component index
	var index *semantic.Index
	if *qdrantAddr != "" {
		index, err = semantic.New(*qdrantAddr, *collection, llmClient, log)
		if err != nil {
			log.Error("qdrant connect failed", "error", err)
			os.Exit(1)
		}
		defer index.Close()
		if err := index.EnsureCollection(ctx); err != nil {
			log.Error("qdrant ensure collection failed", "error", err)
			os.Exit(1)
		}
		log.Info("connected to Qdrant", "collection", *collection)
	}

	deps := ingest.Deps{
		Normalizer: docproc.New(log),
		Extractor:  extract.New(llmClient, extract.DefaultOptions(), log),
		Builder:    graph.NewBuilder(log),
		Store:      store,
		Logger:     log,
	}
	if index != nil {
		deps.Index = index
	}

	pipeline := ingest.NewPipeline(deps)

	// Optional NATS consumer
	if *natsURL != "" {
		nc, err := nats.Connect(*natsURL)
		if err != nil {
			log.Error("nats connect failed", "error", err)
			os.Exit(1)
		}
		defer nc.Close()

		objects := newLocalObjects(*objectsDir)
		sub, err := ingest.StartConsumer(nc, objects, deps)
		if err != nil {
			log.Error("consumer start failed", "error", err)
			os.Exit(1)
		}
		defer sub.Unsubscribe()
		log.Info("consuming uploads", "subject", ingest.UploadSubject)
	}

	// Load state
	processed := loadState(*stateFile)

	// Ensure data dir
	os.MkdirAll(*dataDir, 0o755)

	log.Info("watching for diagrams", "dir", *dataDir, "interval", *interval)

	scan := func() {
		mLastScan.Set(time.Now().Unix())
		entries, err := os.ReadDir(*dataDir)
		if err != nil {
			mErrorsTotal("scan").Inc()
			log.Error("readdir failed", "error", err)
			return
		}

		for _, e := range entries {
			if e.IsDir() || e.Name()[0] == '.' || !diagramFile(e.Name()) {
				continue
			}
			if ctx.Err() != nil {
				return
			}
			path := filepath.Join(*dataDir, e.Name())
			info, _ := e.Info()
			key := e.Name()
			if info != nil {
				key = fmt.Sprintf("%s:%d", e.Name(), info.Size())
			}

			if processed[key] {
				continue
			}

			mQueueDepth.Inc()
			log.Info("processing file", "file", e.Name())
			if info != nil {
				mBytesProcessed.Add(info.Size())
			}
			ok := processFile(ctx, path, pipeline, log)
			mQueueDepth.Dec()
			mFilesProcessed.Inc()

			// Only mark as processed on success so failures retry next scan.
			if ok {
				processed[key] = true
				saveState(*stateFile, processed)
			} else {
				log.Warn("file failed, will retry on next scan", "file", e.Name())
			}
		}
	}

	// Initial scan
	scan()

	ticker := time.NewTicker(*interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			log.Info("shutting down")
			return
		case <-ticker.C:
			scan()
		}
	}
}

func diagramFile(name string) bool {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".png", ".jpg", ".jpeg", ".pdf":
		return true
	}
	return false
}

func processFile(ctx context.Context, path string, pipeline fn.Stage[ingest.Upload, graph.SceneGraph], log *slog.Logger) bool {
	data, err := os.ReadFile(path)
	if err != nil {
		mErrorsTotal("read").Inc()
		log.Error("read failed", "file", path, "error", err)
		return false
	}

	start := time.Now()
	result := pipeline(ctx, ingest.Upload{Filename: filepath.Base(path), Data: data})
	mPipelineDur.Since(start)

	g, err := result.Unwrap()
	if err != nil {
		mErrorsTotal("pipeline").Inc()
		log.Error("pipeline error", "file", path, "error", err)
		return false
	}

	mDiagramsTotal.Inc()
	log.Info("diagram ingested",
		"file", path,
		"diagram_id", g.DiagramID,
		"components", len(g.Components),
		"relationships", len(g.Relationships),
	)
	return true
}

func serveMetrics(port int, log *slog.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", met.Handler())
	mux.HandleFunc("/", func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte("ok\n"))
	})
	if err := http.ListenAndServe(fmt.Sprintf(":%d", port), mux); err != nil {
		log.Error("metrics server error", "port", port, "error", err)
	}
}

func loadState(path string) map[string]bool {
	m := make(map[string]bool)
	data, err := os.ReadFile(path)
	if err != nil {
		return m
	}
	json.Unmarshal(data, &m)
	return m
}

func saveState(path string, m map[string]bool) {
	data, _ := json.Marshal(m)
	os.WriteFile(path, data, 0o644)
}
