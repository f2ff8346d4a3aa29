// Package extract drives the vision-model call that turns a normalized
// diagram into a raw candidate scene graph. The model's output is
// semi-trusted text; recovery of the embedded JSON is handled by an ordered
// sequence of parse strategies.
package extract

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/PlanSightAI/plansight-mvp/engine/docproc"
	"github.com/PlanSightAI/plansight-mvp/engine/domain"
	"github.com/PlanSightAI/plansight-mvp/pkg/llm"
)

// Completer is the inference surface the extractor depends on.
type Completer interface {
	Complete(ctx context.Context, req llm.Request) (string, error)
}

// Options configures the extraction calls.
type Options struct {
	PrimaryModel      string
	FallbackModel     string
	Temperature       float32
	MaxTokens         int
	FallbackMaxTokens int
	TextPrefixLimit   int
}

// DefaultOptions returns the production call parameters.
func DefaultOptions() Options {
	return Options{
		PrimaryModel:      "gpt-4o",
		FallbackModel:     "gpt-4o-mini",
		Temperature:       0.1,
		MaxTokens:         4000,
		FallbackMaxTokens: 2000,
		TextPrefixLimit:   1000,
	}
}

// Extractor issues at most two inference calls per invocation: the primary
// schema-bearing call, and one fallback against a smaller model if the
// primary returns no usable content. It never retries on parse failure.
type Extractor struct {
	client Completer
	opts   Options
	logger *slog.Logger
}

// New creates an Extractor.
func New(client Completer, opts Options, logger *slog.Logger) *Extractor {
	if logger == nil {
		logger = slog.Default()
	}
	if opts.PrimaryModel == "" {
		opts = DefaultOptions()
	}
	return &Extractor{client: client, opts: opts, logger: logger}
}

// Extract produces the raw candidate graph for a normalized document.
func (e *Extractor) Extract(ctx context.Context, doc docproc.Document) (map[string]any, error) {
	user := userPrompt
	if doc.Text != "" {
		prefix := doc.Text
		if e.opts.TextPrefixLimit > 0 && len(prefix) > e.opts.TextPrefixLimit {
			prefix = prefix[:e.opts.TextPrefixLimit]
		}
		user += "\n\nAdditional text content extracted from document:\n" + prefix
	}

	e.logger.Info("extract: primary call", "model", e.opts.PrimaryModel, "image_chars", len(doc.ImageB64))
	content, err := e.client.Complete(ctx, llm.Request{
		Model:       e.opts.PrimaryModel,
		System:      systemPrompt,
		User:        user,
		ImageB64:    doc.ImageB64,
		ImageDetail: llm.DetailHigh,
		Temperature: e.opts.Temperature,
		MaxTokens:   e.opts.MaxTokens,
	})
	if err != nil {
		return nil, fmt.Errorf("extract: primary call: %w", err)
	}

	if strings.TrimSpace(content) == "" {
		e.logger.Warn("extract: empty primary response, trying fallback", "model", e.opts.FallbackModel)
		content, err = e.client.Complete(ctx, llm.Request{
			Model:       e.opts.FallbackModel,
			System:      fallbackSystemPrompt,
			User:        fallbackUserPrompt,
			ImageB64:    doc.ImageB64,
			ImageDetail: llm.DetailLow,
			Temperature: e.opts.Temperature,
			MaxTokens:   e.opts.FallbackMaxTokens,
		})
		if err != nil {
			return nil, fmt.Errorf("extract: fallback call: %w", err)
		}
		if strings.TrimSpace(content) == "" {
			return nil, domain.ErrExtractionEmpty
		}
	}

	raw, err := decodeCandidate(content)
	if err != nil {
		e.logger.Error("extract: response parse failed", "error", err, "content_len", len(content))
		return nil, err
	}

	if comps, ok := raw["components"].([]any); ok {
		e.logger.Info("extract: analysis complete", "components", len(comps))
	}
	return raw, nil
}
