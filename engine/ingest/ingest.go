// Package ingest provides the diagram ingestion pipeline that processes
// uploaded files through normalization, extraction, graph building, and
// storage stages.
package ingest

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/nats-io/nats.go"

	"github.com/PlanSightAI/plansight-mvp/engine/docproc"
	"github.com/PlanSightAI/plansight-mvp/engine/domain"
	"github.com/PlanSightAI/plansight-mvp/engine/graph"
	"github.com/PlanSightAI/plansight-mvp/pkg/fn"
	"github.com/PlanSightAI/plansight-mvp/pkg/natsutil"
)

const (
	// UploadSubject is the NATS subject for incoming diagram uploads.
	UploadSubject = "engine.diagram.upload"
	// IngestedSubject announces stored diagrams.
	IngestedSubject = "engine.diagram.ingested"
	// DLQSubject is the dead letter queue subject for failed uploads.
	DLQSubject = "engine.diagram.upload.dlq"
	// MaxRetries before sending to DLQ.
	MaxRetries = 3
)

// Normalizer validates and normalizes an uploaded file.
type Normalizer interface {
	Normalize(filename string, data []byte) (docproc.Document, error)
}

// Extractor turns a normalized document into a raw candidate graph.
type Extractor interface {
	Extract(ctx context.Context, doc docproc.Document) (map[string]any, error)
}

// Builder validates a raw candidate graph into a scene graph.
type Builder interface {
	Build(raw map[string]any, filename string) graph.SceneGraph
}

// Writer persists a scene graph.
type Writer interface {
	Store(ctx context.Context, g graph.SceneGraph) error
}

// Indexer maintains the component similarity index.
type Indexer interface {
	IndexGraph(ctx context.Context, g graph.SceneGraph) error
}

// Deps holds the external dependencies for the ingestion pipeline.
// Index may be nil; indexing is then skipped.
type Deps struct {
	Normalizer Normalizer
	Extractor  Extractor
	Builder    Builder
	Store      Writer
	Index      Indexer
	Logger     *slog.Logger
}

// NewNormalize creates the normalization stage.
func NewNormalize(n Normalizer) fn.Stage[Upload, Normalized] {
	return func(_ context.Context, up Upload) fn.Result[Normalized] {
		doc, err := n.Normalize(up.Filename, up.Data)
		if err != nil {
			return fn.Err[Normalized](fmt.Errorf("normalize %s: %w", up.Filename, err))
		}
		return fn.Ok(Normalized{Filename: up.Filename, Doc: doc})
	}
}

// NewExtract creates the vision extraction stage.
func NewExtract(e Extractor) fn.Stage[Normalized, Extracted] {
	return func(ctx context.Context, n Normalized) fn.Result[Extracted] {
		raw, err := e.Extract(ctx, n.Doc)
		if err != nil {
			return fn.Err[Extracted](fmt.Errorf("extract %s: %w", n.Filename, err))
		}
		return fn.Ok(Extracted{Filename: n.Filename, Raw: raw})
	}
}

// NewBuild creates the graph building stage. Building never fails; invalid
// entries are skipped inside the builder.
func NewBuild(b Builder) fn.Stage[Extracted, graph.SceneGraph] {
	return func(_ context.Context, e Extracted) fn.Result[graph.SceneGraph] {
		return fn.Ok(b.Build(e.Raw, e.Filename))
	}
}

// NewStore creates the persistence stage.
func NewStore(w Writer) fn.Stage[graph.SceneGraph, graph.SceneGraph] {
	return func(ctx context.Context, g graph.SceneGraph) fn.Result[graph.SceneGraph] {
		if err := w.Store(ctx, g); err != nil {
			return fn.Err[graph.SceneGraph](err)
		}
		return fn.Ok(g)
	}
}

// NewIndex creates the optional indexing stage. Index failures are logged
// and do not fail the pipeline; the graph store remains the source of
// truth.
func NewIndex(x Indexer, log *slog.Logger) fn.Stage[graph.SceneGraph, graph.SceneGraph] {
	return func(ctx context.Context, g graph.SceneGraph) fn.Result[graph.SceneGraph] {
		if x != nil {
			if err := x.IndexGraph(ctx, g); err != nil {
				log.Warn("ingest: component indexing failed, continuing", "diagram_id", g.DiagramID, "error", err)
			}
		}
		return fn.Ok(g)
	}
}

// NewPipeline constructs the full ingestion pipeline with all stages wired
// and traced.
func NewPipeline(deps Deps) fn.Stage[Upload, graph.SceneGraph] {
	log := deps.Logger
	if log == nil {
		log = slog.Default()
	}

	normalize := fn.Traced("ingest.normalize", NewNormalize(deps.Normalizer))
	extractStage := fn.Traced("ingest.extract", NewExtract(deps.Extractor))
	build := fn.Traced("ingest.build", NewBuild(deps.Builder))
	store := fn.Traced("ingest.store", NewStore(deps.Store))
	index := fn.Traced("ingest.index", NewIndex(deps.Index, log))

	return fn.Then(fn.Then(fn.Then(fn.Then(normalize, extractStage), build), store), index)
}

// dlqMessage is published to the DLQ on repeated failure. The inline
// payload is dropped; the object key survives for replay.
type dlqMessage struct {
	Filename  string `json:"filename"`
	ObjectKey string `json:"object_key,omitempty"`
	Error     string `json:"error"`
	Retries   int    `json:"retries"`
}

// StartConsumer starts a NATS consumer that runs uploads through the
// ingestion pipeline with retry and DLQ support. objects may be nil when
// all uploads carry their payload inline.
func StartConsumer(nc *nats.Conn, objects domain.ObjectStore, deps Deps) (*nats.Subscription, error) {
	pipeline := NewPipeline(deps)
	log := deps.Logger
	if log == nil {
		log = slog.Default()
	}

	return nc.Subscribe(UploadSubject, func(msg *nats.Msg) {
		var up Upload
		if err := json.Unmarshal(msg.Data, &up); err != nil {
			log.Error("ingest: unmarshal failed", "error", err)
			return
		}

		ctx := context.Background()

		if len(up.Data) == 0 && up.ObjectKey != "" && objects != nil {
			data, err := objects.Resolve(ctx, up.ObjectKey)
			if err != nil {
				log.Error("ingest: object resolve failed", "object_key", up.ObjectKey, "error", err)
				return
			}
			up.Data = data
		}

		retries := 0
		if msg.Header != nil {
			if v := msg.Header.Get("X-Retry-Count"); v != "" {
				fmt.Sscanf(v, "%d", &retries)
			}
		}

		result := pipeline(ctx, up)
		if result.IsErr() {
			_, pipeErr := result.Unwrap()
			retries++
			log.Error("ingest: pipeline failed",
				"error", pipeErr,
				"filename", up.Filename,
				"retry", retries,
			)

			if retries >= MaxRetries {
				dlq := dlqMessage{
					Filename:  up.Filename,
					ObjectKey: up.ObjectKey,
					Error:     pipeErr.Error(),
					Retries:   retries,
				}
				data, _ := json.Marshal(dlq)
				if err := nc.Publish(DLQSubject, data); err != nil {
					log.Error("ingest: DLQ publish failed", "error", err)
				}
			} else {
				retryMsg := nats.NewMsg(UploadSubject)
				retryMsg.Data = msg.Data
				retryMsg.Header = nats.Header{}
				retryMsg.Header.Set("X-Retry-Count", fmt.Sprintf("%d", retries))
				if err := nc.PublishMsg(retryMsg); err != nil {
					log.Error("ingest: retry publish failed", "error", err)
				}
			}
		} else {
			g, _ := result.Unwrap()
			log.Info("ingest: success", "diagram_id", g.DiagramID, "filename", up.Filename)

			event := IngestedEvent{
				DiagramID:      g.DiagramID,
				Title:          g.Title,
				SourceFilename: g.Metadata["source_filename"],
				Components:     len(g.Components),
				Relationships:  len(g.Relationships),
			}
			if err := natsutil.Publish(ctx, nc, IngestedSubject, event); err != nil {
				log.Warn("ingest: event publish failed", "error", err)
			}

			if up.ObjectKey != "" && objects != nil {
				if _, err := objects.Delete(ctx, up.ObjectKey); err != nil {
					log.Warn("ingest: object cleanup failed", "object_key", up.ObjectKey, "error", err)
				}
			}
		}

		if msg.Reply != "" {
			_ = msg.Ack()
		}
	})
}
