package extract

import (
	"encoding/json"
	"strings"

	"github.com/PlanSightAI/plansight-mvp/engine/domain"
)

// decodeCandidate recovers a JSON object from model output, tolerating the
// known wrapping conventions in priority order: a ```json fence, a generic
// ``` fence, then raw content. A missing closing fence is tolerated by
// taking the remainder of the content. Exhaustion of all strategies yields
// a single typed ParseError carrying the raw content.
func decodeCandidate(content string) (map[string]any, error) {
	var lastErr error
	for _, extract := range []func(string) (string, bool){
		extractJSONFence,
		extractGenericFence,
		func(s string) (string, bool) { return strings.TrimSpace(s), true },
	} {
		candidate, ok := extract(content)
		if !ok {
			continue
		}
		var out map[string]any
		if err := json.Unmarshal([]byte(candidate), &out); err != nil {
			lastErr = err
			continue
		}
		return out, nil
	}
	return nil, &domain.ParseError{Raw: content, Err: lastErr}
}

// extractJSONFence pulls the substring between a case-insensitive ```json
// marker and the next closing fence.
func extractJSONFence(content string) (string, bool) {
	lower := strings.ToLower(content)
	start := strings.Index(lower, "```json")
	if start == -1 {
		return "", false
	}
	start += len("```json")
	rest := content[start:]
	if end := strings.Index(rest, "```"); end != -1 {
		rest = rest[:end]
	}
	return strings.TrimSpace(rest), true
}

// extractGenericFence pulls the substring between the first ``` and the
// last ```.
func extractGenericFence(content string) (string, bool) {
	start := strings.Index(content, "```")
	if start == -1 {
		return "", false
	}
	start += len("```")
	end := strings.LastIndex(content, "```")
	if end <= start {
		return strings.TrimSpace(content[start:]), true
	}
	return strings.TrimSpace(content[start:end]), true
}
