package analysis

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/lokutor-ai/assist-core/pkg/providers/llm"
)

// Dependencies are the shared collaborators every analyzer constructor
// receives: the ai_call capability (an llm.Provider) and metric_compute is
// just plain Go, so it needs nothing (spec §4.7 "polymorphic over the
// capability set {ai_call, metric_compute}").
type Dependencies struct {
	LLM llm.Provider
}

// getAIAnalysis sends prompt plus a JSON-format instruction derived from
// expectedFormat to the LLM and parses its reply as JSON, falling back to
// {"text": reply} if the reply isn't valid JSON (mirrors the original's
// BaseAnalyzer._get_ai_analysis).
func getAIAnalysis(ctx context.Context, provider llm.Provider, prompt string, expectedFormat map[string]any) (map[string]any, error) {
	formatJSON, err := json.MarshalIndent(expectedFormat, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("analysis: marshal expected format: %w", err)
	}

	fullPrompt := fmt.Sprintf(
		"%s\n\nProvide response in the following JSON format:\n%s\nEnsure all fields are present and properly typed.",
		prompt, string(formatJSON),
	)

	reply, err := provider.Complete(ctx, llm.CompletionRequest{Prompt: fullPrompt, MaxTokens: 1000})
	if err != nil {
		return nil, fmt.Errorf("analysis: ai analysis failed: %w", err)
	}

	var parsed map[string]any
	if err := json.Unmarshal([]byte(reply), &parsed); err != nil {
		return map[string]any{"text": reply}, nil
	}
	return parsed, nil
}

func getString(m map[string]any, key, fallback string) string {
	if v, ok := m[key].(string); ok {
		return v
	}
	return fallback
}

func getFloat(m map[string]any, key string, fallback float64) float64 {
	if v, ok := m[key].(float64); ok {
		return v
	}
	return fallback
}

func getSlice(m map[string]any, key string) []any {
	if v, ok := m[key].([]any); ok {
		return v
	}
	return nil
}
