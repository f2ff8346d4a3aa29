package main

import (
	"context"
	"sync"
	"time"

	"github.com/PlanSightAI/plansight-mvp/engine/domain"
)

// memTranscripts keeps chat history per diagram in memory. History does
// not survive a restart; the graph store remains the durable record.
type memTranscripts struct {
	mu      sync.RWMutex
	entries map[string][]domain.TranscriptEntry
	now     func() time.Time
}

func newMemTranscripts() *memTranscripts {
	return &memTranscripts{
		entries: make(map[string][]domain.TranscriptEntry),
		now:     time.Now,
	}
}

func (m *memTranscripts) Append(_ context.Context, diagramID, role, content string, confidence float64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[diagramID] = append(m.entries[diagramID], domain.TranscriptEntry{
		Role:       role,
		Content:    content,
		Confidence: confidence,
		At:         m.now().UTC(),
	})
	return nil
}

func (m *memTranscripts) History(_ context.Context, diagramID string) ([]domain.TranscriptEntry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	entries := m.entries[diagramID]
	out := make([]domain.TranscriptEntry, len(entries))
	copy(out, entries)
	return out, nil
}

func (m *memTranscripts) Clear(_ context.Context, diagramID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.entries, diagramID)
	return nil
}
