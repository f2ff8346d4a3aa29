// Package semantic maintains a vector index of diagram components in
// Qdrant. It is a supplementary lookup: indexing and search failures are
// reported to callers but never fail ingestion or querying.
package semantic

import "context"

// Hit is one similarity match against the component index.
type Hit struct {
	ComponentID string  `json:"component_id"`
	DiagramID   string  `json:"diagram_id"`
	Name        string  `json:"name"`
	Type        string  `json:"type"`
	Score       float32 `json:"score"`
}

// Embedder produces one embedding vector per input text.
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}
