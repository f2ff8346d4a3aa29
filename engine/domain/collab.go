package domain

import (
	"context"
	"time"
)

// ObjectStore is the boundary to the binary-object storage collaborator that
// keeps raw uploaded files. Its internals are not part of this engine.
type ObjectStore interface {
	Save(ctx context.Context, data []byte, filename string, ownerKeys map[string]string) (fileID, locator string, err error)
	Resolve(ctx context.Context, locator string) ([]byte, error)
	Delete(ctx context.Context, locator string) (bool, error)
}

// TranscriptEntry is one question or answer in a diagram's chat history.
type TranscriptEntry struct {
	Role       string    `json:"role"`
	Content    string    `json:"content"`
	Confidence float64   `json:"confidence,omitempty"`
	At         time.Time `json:"at"`
}

// TranscriptStore is the boundary to the chat-transcript collaborator.
type TranscriptStore interface {
	Append(ctx context.Context, diagramID, role, content string, confidence float64) error
	History(ctx context.Context, diagramID string) ([]TranscriptEntry, error)
	Clear(ctx context.Context, diagramID string) error
}
