package extract

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/PlanSightAI/plansight-mvp/engine/docproc"
	"github.com/PlanSightAI/plansight-mvp/engine/domain"
	"github.com/PlanSightAI/plansight-mvp/pkg/llm"
)

// fakeCompleter replays scripted responses and records the requests it saw.
type fakeCompleter struct {
	responses []string
	errs      []error
	requests  []llm.Request
}

func (f *fakeCompleter) Complete(_ context.Context, req llm.Request) (string, error) {
	i := len(f.requests)
	f.requests = append(f.requests, req)
	var resp string
	if i < len(f.responses) {
		resp = f.responses[i]
	}
	var err error
	if i < len(f.errs) {
		err = f.errs[i]
	}
	return resp, err
}

func TestExtractPrimarySuccess(t *testing.T) {
	fake := &fakeCompleter{responses: []string{`{"components": [{"id": "c1"}], "relationships": []}`}}
	e := New(fake, DefaultOptions(), nil)

	raw, err := e.Extract(context.Background(), docproc.Document{ImageB64: "aW1n"})
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if len(fake.requests) != 1 {
		t.Fatalf("expected a single call, got %d", len(fake.requests))
	}
	req := fake.requests[0]
	if req.Model != "gpt-4o" {
		t.Fatalf("primary model = %q", req.Model)
	}
	if req.ImageDetail != llm.DetailHigh {
		t.Fatalf("primary detail = %q", req.ImageDetail)
	}
	if _, ok := raw["components"]; !ok {
		t.Fatal("expected components key")
	}
}

func TestExtractFallsBackOnEmptyPrimary(t *testing.T) {
	fake := &fakeCompleter{responses: []string{"   ", `{"components": []}`}}
	e := New(fake, DefaultOptions(), nil)

	raw, err := e.Extract(context.Background(), docproc.Document{ImageB64: "aW1n"})
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if len(fake.requests) != 2 {
		t.Fatalf("expected fallback call, got %d calls", len(fake.requests))
	}
	second := fake.requests[1]
	if second.Model != "gpt-4o-mini" {
		t.Fatalf("fallback model = %q", second.Model)
	}
	if second.ImageDetail != llm.DetailLow {
		t.Fatalf("fallback detail = %q", second.ImageDetail)
	}
	if raw == nil {
		t.Fatal("expected parsed graph")
	}
}

func TestExtractBothEmpty(t *testing.T) {
	fake := &fakeCompleter{responses: []string{"", ""}}
	e := New(fake, DefaultOptions(), nil)

	_, err := e.Extract(context.Background(), docproc.Document{ImageB64: "aW1n"})
	if !errors.Is(err, domain.ErrExtractionEmpty) {
		t.Fatalf("expected ErrExtractionEmpty, got %v", err)
	}
}

func TestExtractWrapsTransportError(t *testing.T) {
	cause := errors.New("connection reset")
	fake := &fakeCompleter{errs: []error{cause}}
	e := New(fake, DefaultOptions(), nil)

	_, err := e.Extract(context.Background(), docproc.Document{ImageB64: "aW1n"})
	if !errors.Is(err, cause) {
		t.Fatalf("expected wrapped transport error, got %v", err)
	}
}

func TestExtractNoRetryOnParseFailure(t *testing.T) {
	fake := &fakeCompleter{responses: []string{"not json at all", `{"components": []}`}}
	e := New(fake, DefaultOptions(), nil)

	_, err := e.Extract(context.Background(), docproc.Document{ImageB64: "aW1n"})
	var pe *domain.ParseError
	if !errors.As(err, &pe) {
		t.Fatalf("expected *domain.ParseError, got %v", err)
	}
	if len(fake.requests) != 1 {
		t.Fatalf("parse failure must not trigger another call, got %d calls", len(fake.requests))
	}
}

func TestExtractAppendsDocumentText(t *testing.T) {
	fake := &fakeCompleter{responses: []string{`{"components": []}`}}
	opts := DefaultOptions()
	opts.TextPrefixLimit = 10
	e := New(fake, opts, nil)

	long := strings.Repeat("x", 50)
	if _, err := e.Extract(context.Background(), docproc.Document{ImageB64: "aW1n", Text: long}); err != nil {
		t.Fatalf("Extract: %v", err)
	}
	user := fake.requests[0].User
	if !strings.Contains(user, "Additional text content") {
		t.Fatal("expected text preamble in user prompt")
	}
	if strings.Contains(user, strings.Repeat("x", 11)) {
		t.Fatal("text prefix should be truncated to the limit")
	}
}
