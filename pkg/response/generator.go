package response

import (
	"context"
	"encoding/json"
	"sort"
	"sync"
	"time"

	"github.com/lokutor-ai/assist-core/pkg/bus"
	ctxstore "github.com/lokutor-ai/assist-core/pkg/context"
	"github.com/lokutor-ai/assist-core/pkg/analysis"
	"github.com/lokutor-ai/assist-core/pkg/logging"
	"github.com/lokutor-ai/assist-core/pkg/providers/llm"
)

// Generator runs the four-step response strategy from spec §4.9:
// generate AI and template candidates in parallel, select by confidence
// threshold and rank, finalize the best as content with the rest as
// alternatives, and fall back to a fixed response on empty selection or
// an internal failure (grounded on
// original_source/src/response/generator.py ResponseGenerator).
type Generator struct {
	llm       llm.Provider
	templates *Registry
	bus       *bus.Bus
	logger    logging.Logger
}

// NewGenerator constructs a Generator. A nil templates Registry defaults to
// NewDefaultRegistry(); a nil eventBus/logger disables publishing/logging.
func NewGenerator(provider llm.Provider, templates *Registry, eventBus *bus.Bus, logger logging.Logger) *Generator {
	if templates == nil {
		templates = NewDefaultRegistry()
	}
	if logger == nil {
		logger = logging.NoOp{}
	}
	return &Generator{llm: provider, templates: templates, bus: eventBus, logger: logger}
}

// Generate produces a Result for req, never returning an error: a failed
// LLM call only drops the AI candidates, and when no candidate passes
// selection a FALLBACK result is returned instead (spec §4.9 step 4).
func (g *Generator) Generate(ctx context.Context, req Request) Result {
	start := time.Now()
	cfg := DefaultConfig()
	if req.Config != nil {
		cfg = *req.Config
	}

	candidates := g.generateCandidates(ctx, req, cfg)
	selected := selectCandidates(candidates, cfg)
	if len(selected) == 0 {
		return g.fallback(req, cfg, start, "no viable candidates")
	}

	best := selected[0]
	meta := make(map[string]any, len(best.Metadata)+1)
	for k, v := range best.Metadata {
		meta[k] = v
	}
	meta["candidates_generated"] = len(selected)

	result := Result{
		Content:      best.Content,
		Type:         best.Type,
		Confidence:   best.Confidence,
		Alternatives: selected[1:],
		ContextUsed:  best.ContextRefs,
		Metadata:     meta,
		Duration:     time.Since(start),
		Timestamp:    time.Now(),
	}

	if g.bus != nil {
		g.bus.Publish(bus.New(bus.ResponseReceived, map[string]any{
			"status":     "response_generated",
			"type":       string(result.Type),
			"confidence": result.Confidence,
		}))
	}
	return result
}

func (g *Generator) generateCandidates(ctx context.Context, req Request, cfg Config) []Candidate {
	var wg sync.WaitGroup
	var ai, tmpl []Candidate

	wg.Add(2)
	go func() {
		defer wg.Done()
		ai = g.aiCandidates(ctx, req)
	}()
	go func() {
		defer wg.Done()
		tmpl = g.templateCandidates(req, cfg)
	}()
	wg.Wait()

	return append(ai, tmpl...)
}

type aiCandidateEnvelope struct {
	Candidates []struct {
		Content     string         `json:"content"`
		Type        string         `json:"type"`
		Confidence  float64        `json:"confidence"`
		ContextRefs []string       `json:"context_refs"`
		Metadata    map[string]any `json:"metadata"`
	} `json:"candidates"`
}

func (g *Generator) aiCandidates(ctx context.Context, req Request) []Candidate {
	if g.llm == nil {
		return nil
	}

	reply, err := g.llm.Complete(ctx, llm.CompletionRequest{Prompt: g.buildPrompt(req), MaxTokens: 500})
	if err != nil {
		g.logger.Warn("ai candidate generation failed", "error", err)
		return nil
	}

	var env aiCandidateEnvelope
	if err := json.Unmarshal([]byte(reply), &env); err != nil {
		// Unstructured reply: treat the whole thing as one direct candidate
		// (mirrors the original's fallback on json.JSONDecodeError).
		return []Candidate{{Content: reply, Type: TypeDirect, Confidence: 0.5}}
	}

	out := make([]Candidate, 0, len(env.Candidates))
	for _, c := range env.Candidates {
		typ := Type(c.Type)
		if typ == "" {
			typ = TypeDirect
		}
		conf := c.Confidence
		if conf == 0 {
			conf = 0.5
		}
		out = append(out, Candidate{
			Content: c.Content, Type: typ, Confidence: conf,
			ContextRefs: c.ContextRefs, Metadata: c.Metadata,
		})
	}
	return out
}

func (g *Generator) buildPrompt(req Request) string {
	prompt := "Generate response candidates as a JSON object: " +
		`{"candidates": [{"content": str, "type": str, "confidence": float, "context_refs": [str], "metadata": {}}]}` +
		"\n\nQuery: " + req.Query
	if req.Role != "" {
		prompt += "\nRole: " + req.Role
	}
	return prompt
}

func (g *Generator) templateCandidates(req Request, cfg Config) []Candidate {
	typ := req.ResponseType
	if typ == "" {
		typ = cfg.DefaultType
	}

	values := templateValues(req)
	var out []Candidate
	for _, tmpl := range g.templates.Find(typ, req.Role) {
		rendered, ok := tmpl.Render(req.Role, values)
		if !ok {
			continue
		}
		out = append(out, Candidate{
			Content:    rendered,
			Type:       typ,
			Confidence: 0.7,
			Metadata:   map[string]any{"source": "template", "template": tmpl.Name},
		})
	}
	return out
}

// templateValues gathers the variables available for template rendering:
// the query, an optional role, scalar fields pulled from the context
// entry's content, and scalar fields from the analysis result's insights
// prefixed "analysis_" (spec §4.9, mirrors
// original_source/src/response/templates.py TemplateRenderer._prepare_variables).
func templateValues(req Request) map[string]any {
	values := map[string]any{"query": req.Query}
	if req.Role != "" {
		values["role"] = req.Role
	}

	if entry, ok := req.ContextEntry.(*ctxstore.Entry); ok && entry != nil {
		if m, ok := entry.Content.(map[string]any); ok {
			for k, v := range m {
				if isScalar(v) {
					values[k] = v
				}
			}
		}
	}

	if result, ok := req.Analysis.(*analysis.Result); ok && result != nil {
		for _, insight := range result.Insights {
			if m, ok := insight.Content.(map[string]any); ok {
				for k, v := range m {
					if isScalar(v) {
						values["analysis_"+k] = v
					}
				}
			}
		}
	}

	return values
}

func isScalar(v any) bool {
	switch v.(type) {
	case string, int, int64, float64, float32, bool:
		return true
	default:
		return false
	}
}

func selectCandidates(candidates []Candidate, cfg Config) []Candidate {
	viable := make([]Candidate, 0, len(candidates))
	for _, c := range candidates {
		if c.Confidence >= cfg.MinConfidence {
			viable = append(viable, c)
		}
	}
	sort.SliceStable(viable, func(i, j int) bool { return viable[i].Confidence > viable[j].Confidence })
	if len(viable) > cfg.MaxCandidates {
		viable = viable[:cfg.MaxCandidates]
	}
	return viable
}

func (g *Generator) fallback(req Request, cfg Config, start time.Time, reason string) Result {
	typ := req.ResponseType
	if typ == "" {
		typ = cfg.DefaultType
	}
	return Result{
		Content:    defaultFallbackText(typ),
		Type:       TypeFallback,
		Confidence: 0.5,
		Metadata:   map[string]any{"reason": reason, "original_type": string(typ)},
		Duration:   time.Since(start),
		Timestamp:  time.Now(),
	}
}

func defaultFallbackText(typ Type) string {
	switch typ {
	case TypeClarification:
		return "Could you clarify what you mean?"
	case TypeFollowUp:
		return "Could you tell me more about that?"
	case TypeSuggestion:
		return "I don't have a specific suggestion right now."
	case TypeSummary:
		return "I don't have enough information to summarize yet."
	default:
		return "I'm not sure how to respond to that."
	}
}
