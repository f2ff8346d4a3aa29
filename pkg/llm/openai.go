// Package llm wraps the OpenAI chat API behind the narrow surface the
// engine needs: a single completion call (optionally multimodal) and an
// embedding call. Higher layers depend on small interfaces satisfied here
// so tests can substitute fakes.
package llm

import (
	"context"
	"fmt"

	openai "github.com/sashabaranov/go-openai"
)

// Image detail hints forwarded to the vision model.
const (
	DetailHigh = "high"
	DetailLow  = "low"
)

// Request describes one completion round trip.
type Request struct {
	Model       string
	System      string
	User        string
	ImageB64    string // base64 PNG, embedded as a data URL when non-empty
	ImageDetail string
	Temperature float32
	MaxTokens   int
}

// Client is a thin wrapper over the OpenAI SDK.
type Client struct {
	api        *openai.Client
	embedModel openai.EmbeddingModel
}

// New creates a Client. embedModel may be empty; it defaults to
// text-embedding-3-small.
func New(apiKey, embedModel string) *Client {
	em := openai.SmallEmbedding3
	if embedModel != "" {
		em = openai.EmbeddingModel(embedModel)
	}
	return &Client{api: openai.NewClient(apiKey), embedModel: em}
}

// Complete issues one chat completion and returns the generated text.
// An empty response is returned as ("", nil); callers decide whether empty
// content is an error.
func (c *Client) Complete(ctx context.Context, req Request) (string, error) {
	msg := openai.ChatCompletionMessage{Role: openai.ChatMessageRoleUser}
	if req.ImageB64 == "" {
		msg.Content = req.User
	} else {
		detail := openai.ImageURLDetail(req.ImageDetail)
		if detail == "" {
			detail = openai.ImageURLDetailAuto
		}
		msg.MultiContent = []openai.ChatMessagePart{
			{Type: openai.ChatMessagePartTypeText, Text: req.User},
			{
				Type: openai.ChatMessagePartTypeImageURL,
				ImageURL: &openai.ChatMessageImageURL{
					URL:    "data:image/png;base64," + req.ImageB64,
					Detail: detail,
				},
			},
		}
	}

	resp, err := c.api.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: req.Model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: req.System},
			msg,
		},
		Temperature:         req.Temperature,
		MaxCompletionTokens: req.MaxTokens,
	})
	if err != nil {
		return "", fmt.Errorf("llm: chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", nil
	}
	return resp.Choices[0].Message.Content, nil
}

// Embed returns one embedding vector per input text.
func (c *Client) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	resp, err := c.api.CreateEmbeddings(ctx, openai.EmbeddingRequestStrings{
		Input: texts,
		Model: c.embedModel,
	})
	if err != nil {
		return nil, fmt.Errorf("llm: embeddings: %w", err)
	}
	out := make([][]float32, len(resp.Data))
	for i, d := range resp.Data {
		out[i] = d.Embedding
	}
	return out, nil
}
