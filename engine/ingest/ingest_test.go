package ingest

import (
	"context"
	"errors"
	"testing"

	"github.com/PlanSightAI/plansight-mvp/engine/docproc"
	"github.com/PlanSightAI/plansight-mvp/engine/domain"
	"github.com/PlanSightAI/plansight-mvp/engine/graph"
)

type fakeNormalizer struct {
	err   error
	calls int
}

func (f *fakeNormalizer) Normalize(filename string, data []byte) (docproc.Document, error) {
	f.calls++
	if f.err != nil {
		return docproc.Document{}, f.err
	}
	return docproc.Document{ImageB64: "aW1n"}, nil
}

type fakeExtractor struct {
	err   error
	calls int
}

func (f *fakeExtractor) Extract(_ context.Context, doc docproc.Document) (map[string]any, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return map[string]any{"components": []any{}}, nil
}

type fakeBuilder struct{ calls int }

func (f *fakeBuilder) Build(raw map[string]any, filename string) graph.SceneGraph {
	f.calls++
	return graph.SceneGraph{
		DiagramID:  "d1",
		Title:      "Diagram from " + filename,
		Components: []graph.Component{{ID: "c1", Type: domain.ComponentPipe}},
	}
}

type fakeWriter struct {
	err   error
	calls int
	last  graph.SceneGraph
}

func (f *fakeWriter) Store(_ context.Context, g graph.SceneGraph) error {
	f.calls++
	f.last = g
	return f.err
}

type fakeIndexer struct {
	err   error
	calls int
}

func (f *fakeIndexer) IndexGraph(_ context.Context, g graph.SceneGraph) error {
	f.calls++
	return f.err
}

func testDeps() (Deps, *fakeNormalizer, *fakeExtractor, *fakeWriter, *fakeIndexer) {
	n := &fakeNormalizer{}
	e := &fakeExtractor{}
	w := &fakeWriter{}
	x := &fakeIndexer{}
	return Deps{
		Normalizer: n,
		Extractor:  e,
		Builder:    &fakeBuilder{},
		Store:      w,
		Index:      x,
	}, n, e, w, x
}

func TestPipelineEndToEnd(t *testing.T) {
	deps, n, e, w, x := testDeps()
	pipeline := NewPipeline(deps)

	g, err := pipeline(context.Background(), Upload{Filename: "plan.png", Data: []byte("img")}).Unwrap()
	if err != nil {
		t.Fatalf("pipeline: %v", err)
	}
	if g.DiagramID != "d1" {
		t.Fatalf("unexpected graph: %+v", g)
	}
	if n.calls != 1 || e.calls != 1 || w.calls != 1 || x.calls != 1 {
		t.Fatalf("expected each stage once: n=%d e=%d w=%d x=%d", n.calls, e.calls, w.calls, x.calls)
	}
	if w.last.DiagramID != "d1" {
		t.Fatalf("store saw wrong graph: %+v", w.last)
	}
}

func TestPipelineNormalizeFailureShortCircuits(t *testing.T) {
	deps, _, e, w, _ := testDeps()
	deps.Normalizer = &fakeNormalizer{err: domain.ErrUnsupportedFormat}
	pipeline := NewPipeline(deps)

	_, err := pipeline(context.Background(), Upload{Filename: "plan.bmp"}).Unwrap()
	if !errors.Is(err, domain.ErrUnsupportedFormat) {
		t.Fatalf("expected ErrUnsupportedFormat, got %v", err)
	}
	if e.calls != 0 || w.calls != 0 {
		t.Fatal("later stages must not run after normalize failure")
	}
}

func TestPipelineStoreFailurePropagates(t *testing.T) {
	deps, _, _, _, x := testDeps()
	deps.Store = &fakeWriter{err: domain.ErrStoreWriteFailed}
	pipeline := NewPipeline(deps)

	_, err := pipeline(context.Background(), Upload{Filename: "plan.png"}).Unwrap()
	if !errors.Is(err, domain.ErrStoreWriteFailed) {
		t.Fatalf("expected ErrStoreWriteFailed, got %v", err)
	}
	if x.calls != 0 {
		t.Fatal("indexing must not run when the store write failed")
	}
}

func TestPipelineIndexFailureIsNonFatal(t *testing.T) {
	deps, _, _, _, _ := testDeps()
	deps.Index = &fakeIndexer{err: errors.New("qdrant down")}
	pipeline := NewPipeline(deps)

	g, err := pipeline(context.Background(), Upload{Filename: "plan.png"}).Unwrap()
	if err != nil {
		t.Fatalf("index failures must not fail ingestion, got %v", err)
	}
	if g.DiagramID != "d1" {
		t.Fatalf("unexpected graph: %+v", g)
	}
}

func TestPipelineNilIndexSkipped(t *testing.T) {
	deps, _, _, w, _ := testDeps()
	deps.Index = nil
	pipeline := NewPipeline(deps)

	if _, err := pipeline(context.Background(), Upload{Filename: "plan.png"}).Unwrap(); err != nil {
		t.Fatalf("pipeline with nil index: %v", err)
	}
	if w.calls != 1 {
		t.Fatalf("store should still run, got %d calls", w.calls)
	}
}
