package main

import (
	"context"
	"testing"
	"time"
)

func TestTranscriptsAppendAndHistory(t *testing.T) {
	m := newMemTranscripts()
	m.now = func() time.Time { return time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC) }
	ctx := context.Background()

	m.Append(ctx, "d1", "user", "What does the valve do?", 0)
	m.Append(ctx, "d1", "assistant", "It isolates the main line.", 0.9)
	m.Append(ctx, "d2", "user", "unrelated", 0)

	hist, err := m.History(ctx, "d1")
	if err != nil {
		t.Fatalf("History: %v", err)
	}
	if len(hist) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(hist))
	}
	if hist[0].Role != "user" || hist[1].Role != "assistant" {
		t.Fatalf("unexpected order: %+v", hist)
	}
	if hist[1].Confidence != 0.9 {
		t.Fatalf("confidence = %v", hist[1].Confidence)
	}
	if !hist[0].At.Equal(time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)) {
		t.Fatalf("timestamp = %v", hist[0].At)
	}
}

func TestTranscriptsHistoryIsACopy(t *testing.T) {
	m := newMemTranscripts()
	ctx := context.Background()
	m.Append(ctx, "d1", "user", "original", 0)

	hist, _ := m.History(ctx, "d1")
	hist[0].Content = "mutated"

	again, _ := m.History(ctx, "d1")
	if again[0].Content != "original" {
		t.Fatal("History must return a copy")
	}
}

func TestTranscriptsClear(t *testing.T) {
	m := newMemTranscripts()
	ctx := context.Background()
	m.Append(ctx, "d1", "user", "hello", 0)
	m.Append(ctx, "d2", "user", "keep me", 0)

	if err := m.Clear(ctx, "d1"); err != nil {
		t.Fatalf("Clear: %v", err)
	}
	if hist, _ := m.History(ctx, "d1"); len(hist) != 0 {
		t.Fatalf("expected empty history, got %d", len(hist))
	}
	if hist, _ := m.History(ctx, "d2"); len(hist) != 1 {
		t.Fatal("other diagrams must be untouched")
	}
}
