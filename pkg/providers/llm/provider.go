// Package llm abstracts the large-language-model backend used by the
// analyzer "ai_call" capability (spec §4.7) and the response generator's
// AI candidate stage (spec §4.9).
package llm

import "context"

// CompletionRequest carries one prompt/response round trip. Callers that
// need multi-turn history should fold it into Prompt themselves — every
// call site in this module is a single-shot structured-output request.
type CompletionRequest struct {
	// SystemPrompt is an optional instruction prepended ahead of Prompt.
	SystemPrompt string

	// Prompt is the user-role content sent to the model.
	Prompt string

	// Temperature controls output randomness; 0 is not sent, so the
	// provider default applies.
	Temperature float64

	// MaxTokens caps generated tokens; 0 uses the provider default.
	MaxTokens int
}

// Provider is the narrow abstraction analyzers and the response generator
// depend on: send a prompt, get back the model's text. Implementations
// must be safe for concurrent use.
type Provider interface {
	Complete(ctx context.Context, req CompletionRequest) (string, error)
}
