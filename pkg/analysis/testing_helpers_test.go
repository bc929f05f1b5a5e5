package analysis

import (
	"context"

	"github.com/lokutor-ai/assist-core/pkg/providers/llm"
)

// fakeProvider is a canned llm.Provider test double returning a fixed JSON
// reply (or error) for every Complete call.
type fakeProvider struct {
	reply string
	err   error
}

func (f *fakeProvider) Complete(ctx context.Context, req llm.CompletionRequest) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	return f.reply, nil
}

const canonicalAIJSON = `{"sentiment":"neutral","confidence":0.6,"indicators":[],"emotions":[]}`
