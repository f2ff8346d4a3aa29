// Package rag answers natural-language questions about stored diagrams.
// It reconstructs the complete scene graph of one diagram, serializes it
// into the prompt, optionally marks the components most similar to the
// question, and makes a single chat call for the answer.
package rag

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/PlanSightAI/plansight-mvp/engine/domain"
	"github.com/PlanSightAI/plansight-mvp/engine/graph"
	"github.com/PlanSightAI/plansight-mvp/engine/semantic"
	"github.com/PlanSightAI/plansight-mvp/pkg/llm"
)

// GraphReader is the store surface the service reads graphs through.
type GraphReader interface {
	GetAllDiagrams(ctx context.Context) ([]graph.DiagramInfo, error)
	GetDiagramInfo(ctx context.Context, diagramID string) (graph.DiagramInfo, error)
	GetComponents(ctx context.Context, diagramID string) ([]graph.Component, error)
	GetRelationships(ctx context.Context, diagramID string) ([]graph.Relationship, error)
}

// Completer is the inference surface for the final answer.
type Completer interface {
	Complete(ctx context.Context, req llm.Request) (string, error)
}

// Focuser finds the components of a diagram most similar to a question.
type Focuser interface {
	Focus(ctx context.Context, question, diagramID string, topK int) ([]semantic.Hit, error)
}

// Options configures the answering call.
type Options struct {
	Model        string
	Temperature  float32
	MaxTokens    int
	FocusTopK    int
	FocusTimeout time.Duration
	Confidence   float64
}

// DefaultOptions returns the production call parameters.
func DefaultOptions() Options {
	return Options{
		Model:        "gpt-4o-mini",
		Temperature:  0.1,
		MaxTokens:    2000,
		FocusTopK:    5,
		FocusTimeout: 5 * time.Second,
		Confidence:   0.9,
	}
}

const systemPrompt = `You are an expert engineer analyzing scene graphs from engineering diagrams.

You will receive complete scene graph data including components and relationships.
Analyze this data and answer questions about the engineering system.

Provide detailed, technical answers that demonstrate understanding of:
- System topology and connections
- Material properties and specifications
- Spatial relationships and flow patterns
- Potential failure modes and impacts

Always explain your reasoning and cite specific components when relevant.`

// Service answers questions against the graph store.
type Service struct {
	graph  GraphReader
	chat   Completer
	focus  Focuser
	opts   Options
	logger *slog.Logger
}

// New creates a Service. focus may be nil; focusing is then skipped.
func New(reader GraphReader, chat Completer, focus Focuser, opts Options, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	if opts.Model == "" {
		opts = DefaultOptions()
	}
	return &Service{graph: reader, chat: chat, focus: focus, opts: opts, logger: logger}
}

// Answer is the structured response for one question.
type Answer struct {
	Text       string  `json:"answer"`
	Confidence float64 `json:"confidence"`
	DiagramID  string  `json:"diagram_id"`
}

// graphContext is the serialized prompt payload.
type graphContext struct {
	Diagram       diagramContext       `json:"diagram"`
	Components    []graph.Component    `json:"components"`
	Relationships []graph.Relationship `json:"relationships"`
	Focus         []semantic.Hit       `json:"focus_components,omitempty"`
	Summary       summaryContext       `json:"summary"`
}

type diagramContext struct {
	ID             string `json:"id"`
	Title          string `json:"title"`
	DiagramType    string `json:"diagram_type"`
	SourceFilename string `json:"source_filename"`
	BuildingZone   string `json:"building_zone"`
	FloorLevel     string `json:"floor_level"`
	Scale          string `json:"scale"`
}

type summaryContext struct {
	TotalComponents    int `json:"total_components"`
	TotalRelationships int `json:"total_relationships"`
}

// Query answers a question about one diagram. An empty diagramID selects
// the most recently created diagram; an empty store yields
// domain.ErrNoDiagramsFound.
func (s *Service) Query(ctx context.Context, question, diagramID string) (*Answer, error) {
	s.logger.Info("rag: query start", "question_len", len(question), "diagram_id", diagramID)

	if diagramID == "" {
		infos, err := s.graph.GetAllDiagrams(ctx)
		if err != nil {
			return nil, fmt.Errorf("rag: list diagrams: %w", err)
		}
		if len(infos) == 0 {
			return nil, domain.ErrNoDiagramsFound
		}
		diagramID = infos[0].ID
	}

	gc, err := s.loadGraphContext(ctx, diagramID)
	if err != nil {
		return nil, err
	}

	if s.focus != nil {
		focusCtx, cancel := context.WithTimeout(ctx, s.opts.FocusTimeout)
		hits, err := s.focus.Focus(focusCtx, question, diagramID, s.opts.FocusTopK)
		cancel()
		if err != nil {
			s.logger.Warn("rag: focus lookup failed, continuing without", "error", err)
		} else {
			gc.Focus = hits
		}
	}

	payload, err := json.MarshalIndent(gc, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("rag: serialize graph context: %w", err)
	}

	reply, err := s.chat.Complete(ctx, llm.Request{
		Model:       s.opts.Model,
		System:      systemPrompt,
		User:        fmt.Sprintf("Question: %s\n\nComplete Scene Graph Data:\n%s", question, payload),
		Temperature: s.opts.Temperature,
		MaxTokens:   s.opts.MaxTokens,
	})
	if err != nil {
		return nil, fmt.Errorf("rag: chat: %w", err)
	}
	if reply == "" {
		return nil, fmt.Errorf("rag: chat returned no content")
	}

	s.logger.Info("rag: question answered", "diagram_id", diagramID, "answer_len", len(reply))
	return &Answer{
		Text:       reply,
		Confidence: clampConfidence(s.opts.Confidence),
		DiagramID:  diagramID,
	}, nil
}

func (s *Service) loadGraphContext(ctx context.Context, diagramID string) (*graphContext, error) {
	info, err := s.graph.GetDiagramInfo(ctx, diagramID)
	if err != nil {
		return nil, fmt.Errorf("rag: load diagram: %w", err)
	}
	comps, err := s.graph.GetComponents(ctx, diagramID)
	if err != nil {
		return nil, fmt.Errorf("rag: load components: %w", err)
	}
	rels, err := s.graph.GetRelationships(ctx, diagramID)
	if err != nil {
		return nil, fmt.Errorf("rag: load relationships: %w", err)
	}

	return &graphContext{
		Diagram: diagramContext{
			ID:             info.ID,
			Title:          info.Title,
			DiagramType:    info.DiagramType,
			SourceFilename: info.SourceFilename,
			BuildingZone:   info.BuildingZone,
			FloorLevel:     info.FloorLevel,
			Scale:          info.Scale,
		},
		Components:    comps,
		Relationships: rels,
		Summary: summaryContext{
			TotalComponents:    len(comps),
			TotalRelationships: len(rels),
		},
	}, nil
}

func clampConfidence(c float64) float64 {
	if c < 0 {
		return 0
	}
	if c > 1 {
		return 1
	}
	return c
}
