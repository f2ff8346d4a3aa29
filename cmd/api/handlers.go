package main

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/PlanSightAI/plansight-mvp/engine/docproc"
	"github.com/PlanSightAI/plansight-mvp/engine/domain"
	"github.com/PlanSightAI/plansight-mvp/engine/graph"
	"github.com/PlanSightAI/plansight-mvp/engine/ingest"
	"github.com/PlanSightAI/plansight-mvp/engine/rag"
	"github.com/PlanSightAI/plansight-mvp/pkg/fn"
	"github.com/PlanSightAI/plansight-mvp/pkg/metrics"
	"github.com/PlanSightAI/plansight-mvp/pkg/natsutil"
)

// server carries the wired services for the HTTP handlers.
type server struct {
	store       *graph.Store
	pipeline    fn.Stage[ingest.Upload, graph.SceneGraph]
	rag         *rag.Service
	transcripts domain.TranscriptStore
	nats        *nats.Conn
	openaiSet   bool
	logger      *slog.Logger
	metrics     *metrics.Registry
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, detail string) {
	writeJSON(w, status, map[string]string{"detail": detail})
}

// UploadResponse is the JSON response for POST /api/upload.
type UploadResponse struct {
	DiagramID          string            `json:"diagram_id"`
	Title              string            `json:"title"`
	ComponentsCount    int               `json:"components_count"`
	RelationshipsCount int               `json:"relationships_count"`
	Metadata           map[string]string `json:"metadata"`
	Message            string            `json:"message"`
}

func (s *server) handleUpload(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	s.metrics.Counter("plansight_uploads_total", "Diagram upload requests.").Inc()

	// A hard cap slightly above the documented limit; the normalizer
	// reports the friendly 413 for payloads between the two.
	r.Body = http.MaxBytesReader(w, r.Body, docproc.DefaultMaxBytes*2)

	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "file field is required")
		return
	}
	defer file.Close()

	if header.Filename == "" {
		writeError(w, http.StatusBadRequest, "No filename provided")
		return
	}

	data, err := io.ReadAll(file)
	if err != nil {
		writeError(w, http.StatusBadRequest, "failed to read file")
		return
	}

	result := s.pipeline(r.Context(), ingest.Upload{Filename: header.Filename, Data: data})
	g, err := result.Unwrap()
	if err != nil {
		s.metrics.Counter("plansight_upload_failures_total", "Diagram uploads that failed.").Inc()
		s.logger.Error("upload failed", "filename", header.Filename, "err", err)
		switch {
		case errors.Is(err, domain.ErrUnsupportedFormat):
			writeError(w, http.StatusBadRequest, err.Error())
		case errors.Is(err, domain.ErrFileTooLarge):
			writeError(w, http.StatusRequestEntityTooLarge, err.Error())
		default:
			writeError(w, http.StatusInternalServerError, "Internal server error")
		}
		return
	}

	s.metrics.Histogram("plansight_upload_duration_seconds", "Upload processing time.", nil).Since(start)

	if s.nats != nil {
		event := ingest.IngestedEvent{
			DiagramID:      g.DiagramID,
			Title:          g.Title,
			SourceFilename: g.Metadata["source_filename"],
			Components:     len(g.Components),
			Relationships:  len(g.Relationships),
		}
		if err := natsutil.Publish(r.Context(), s.nats, ingest.IngestedSubject, event); err != nil {
			s.logger.Warn("ingest event publish failed", "err", err)
		}
	}

	writeJSON(w, http.StatusOK, UploadResponse{
		DiagramID:          g.DiagramID,
		Title:              g.Title,
		ComponentsCount:    len(g.Components),
		RelationshipsCount: len(g.Relationships),
		Metadata:           g.Metadata,
		Message:            "Scene graph created successfully",
	})
}

// QueryRequest is the JSON body for POST /api/query.
type QueryRequest struct {
	Question  string `json:"question"`
	DiagramID string `json:"graph_id,omitempty"`
}

// QueryResponse is the JSON response for POST /api/query.
type QueryResponse struct {
	Answer     string  `json:"answer"`
	Confidence float64 `json:"confidence"`
	DiagramID  string  `json:"diagram_id"`
}

func (s *server) handleQuery(w http.ResponseWriter, r *http.Request) {
	s.metrics.Counter("plansight_queries_total", "Scene graph query requests.").Inc()

	var req QueryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if strings.TrimSpace(req.Question) == "" {
		writeError(w, http.StatusBadRequest, "Question cannot be empty")
		return
	}

	answer, err := s.rag.Query(r.Context(), req.Question, req.DiagramID)
	if err != nil {
		s.metrics.Counter("plansight_query_failures_total", "Scene graph queries that failed.").Inc()
		s.logger.Error("query failed", "err", err)
		switch {
		case errors.Is(err, domain.ErrNoDiagramsFound), errors.Is(err, domain.ErrDiagramNotFound):
			writeError(w, http.StatusNotFound, err.Error())
		default:
			writeError(w, http.StatusInternalServerError, "Internal server error")
		}
		return
	}

	ctx := r.Context()
	if err := s.transcripts.Append(ctx, answer.DiagramID, "user", req.Question, 0); err != nil {
		s.logger.Warn("transcript append failed", "err", err)
	}
	if err := s.transcripts.Append(ctx, answer.DiagramID, "assistant", answer.Text, answer.Confidence); err != nil {
		s.logger.Warn("transcript append failed", "err", err)
	}

	writeJSON(w, http.StatusOK, QueryResponse{
		Answer:     answer.Text,
		Confidence: answer.Confidence,
		DiagramID:  answer.DiagramID,
	})
}

func (s *server) handleListDiagrams(w http.ResponseWriter, r *http.Request) {
	infos, err := s.store.GetAllDiagrams(r.Context())
	if err != nil {
		s.logger.Error("list diagrams failed", "err", err)
		writeError(w, http.StatusInternalServerError, "Internal server error")
		return
	}
	if infos == nil {
		infos = []graph.DiagramInfo{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"diagrams": infos,
		"count":    len(infos),
	})
}

// DiagramSummary is the JSON response for GET /api/diagrams/{id}.
type DiagramSummary struct {
	graph.DiagramInfo
	SampleComponents []SampleComponent `json:"sample_components"`
}

// SampleComponent is a short component preview in the diagram summary.
type SampleComponent struct {
	Name       string         `json:"name"`
	Type       string         `json:"type"`
	Properties map[string]any `json:"properties,omitempty"`
}

func (s *server) handleGetDiagram(w http.ResponseWriter, r *http.Request) {
	diagramID := r.PathValue("id")

	info, err := s.store.GetDiagramInfo(r.Context(), diagramID)
	if err != nil {
		if errors.Is(err, domain.ErrDiagramNotFound) {
			writeError(w, http.StatusNotFound, "Diagram not found")
			return
		}
		s.logger.Error("get diagram failed", "err", err)
		writeError(w, http.StatusInternalServerError, "Internal server error")
		return
	}

	comps, err := s.store.GetComponents(r.Context(), diagramID)
	if err != nil {
		s.logger.Error("get diagram components failed", "err", err)
		writeError(w, http.StatusInternalServerError, "Internal server error")
		return
	}

	samples := make([]SampleComponent, 0, 5)
	for _, c := range comps {
		if len(samples) == 5 {
			break
		}
		samples = append(samples, SampleComponent{
			Name:       c.Name,
			Type:       string(c.Type),
			Properties: c.Properties,
		})
	}

	writeJSON(w, http.StatusOK, DiagramSummary{DiagramInfo: info, SampleComponents: samples})
}

// OverlayComponent is one component formatted for frontend overlay badges.
type OverlayComponent struct {
	ID          string            `json:"id"`
	BadgeNumber int               `json:"badge_number"`
	Name        string            `json:"name"`
	Type        string            `json:"type"`
	Position    map[string]any    `json:"position"`
	Properties  map[string]string `json:"properties"`
}

func (s *server) handleGetComponents(w http.ResponseWriter, r *http.Request) {
	diagramID := r.PathValue("id")

	if _, err := s.store.GetDiagramInfo(r.Context(), diagramID); err != nil {
		if errors.Is(err, domain.ErrDiagramNotFound) {
			writeError(w, http.StatusNotFound, "Diagram not found")
			return
		}
		s.logger.Error("get components failed", "err", err)
		writeError(w, http.StatusInternalServerError, "Internal server error")
		return
	}

	comps, err := s.store.GetComponents(r.Context(), diagramID)
	if err != nil {
		s.logger.Error("get components failed", "err", err)
		writeError(w, http.StatusInternalServerError, "Internal server error")
		return
	}

	out := make([]OverlayComponent, len(comps))
	for i, c := range comps {
		pos := map[string]any{"x": 0.0, "y": 0.0}
		if c.Position != nil {
			pos["x"] = c.Position.X
			pos["y"] = c.Position.Y
		}
		out[i] = OverlayComponent{
			ID:          c.ID,
			BadgeNumber: i + 1, // 1-indexed badges
			Name:        c.Name,
			Type:        string(c.Type),
			Position:    pos,
			Properties: map[string]string{
				"material":       propString(c.Properties, "material"),
				"diameter":       propString(c.Properties, "diameter"),
				"flow_direction": propString(c.Properties, "flow_direction"),
			},
		}
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"diagram_id":       diagramID,
		"components":       out,
		"total_components": len(out),
	})
}

func (s *server) handleChatHistory(w http.ResponseWriter, r *http.Request) {
	diagramID := r.PathValue("id")

	entries, err := s.transcripts.History(r.Context(), diagramID)
	if err != nil {
		s.logger.Error("chat history failed", "err", err)
		writeError(w, http.StatusInternalServerError, "Internal server error")
		return
	}
	if entries == nil {
		entries = []domain.TranscriptEntry{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"diagram_id": diagramID,
		"messages":   entries,
		"count":      len(entries),
	})
}

func (s *server) handleChatClear(w http.ResponseWriter, r *http.Request) {
	diagramID := r.PathValue("id")

	if err := s.transcripts.Clear(r.Context(), diagramID); err != nil {
		s.logger.Error("chat clear failed", "err", err)
		writeError(w, http.StatusInternalServerError, "Internal server error")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "Chat history cleared"})
}

func (s *server) handleHealth(w http.ResponseWriter, r *http.Request) {
	dbHealthy := s.store.HealthCheck(r.Context())

	status := "healthy"
	code := http.StatusOK
	if !dbHealthy || !s.openaiSet {
		status = "unhealthy"
		code = http.StatusServiceUnavailable
	}

	database := "disconnected"
	if dbHealthy {
		database = "connected"
	}
	openai := "not_configured"
	if s.openaiSet {
		openai = "configured"
	}

	writeJSON(w, code, map[string]string{
		"status":   status,
		"database": database,
		"openai":   openai,
		"version":  "1.0.0",
	})
}

func propString(props map[string]any, key string) string {
	if props == nil {
		return ""
	}
	if s, ok := props[key].(string); ok {
		return s
	}
	return ""
}
