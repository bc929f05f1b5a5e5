package response

import (
	"context"
	"testing"

	ctxstore "github.com/lokutor-ai/assist-core/pkg/context"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTemplate_RenderFailsClosedOnMissingVariable(t *testing.T) {
	tmpl := NewTemplate("t1", TypeClarification, "Could you clarify {topic}?", nil)
	_, ok := tmpl.Render("", map[string]any{})
	assert.False(t, ok)

	rendered, ok := tmpl.Render("", map[string]any{"topic": "the deadline"})
	assert.True(t, ok)
	assert.Equal(t, "Could you clarify the deadline?", rendered)
}

func TestTemplate_RoleSpecificOverride(t *testing.T) {
	tmpl := NewTemplate("t1", TypeClarification, "Could you clarify {topic}?", map[string]string{
		"interviewer": "Could you elaborate on {topic}, particularly {aspect}?",
	})
	rendered, ok := tmpl.Render("interviewer", map[string]any{"topic": "scaling", "aspect": "load testing"})
	require.True(t, ok)
	assert.Equal(t, "Could you elaborate on scaling, particularly load testing?", rendered)
}

func TestTemplate_MatchesRole(t *testing.T) {
	tmpl := NewTemplate("t1", TypeSuggestion, "Have you considered {suggestion}?", map[string]string{
		"support_agent": "One solution would be to {suggestion}.",
	})
	assert.True(t, tmpl.matchesRole(""))
	assert.True(t, tmpl.matchesRole("support_agent"))
	assert.False(t, tmpl.matchesRole("meeting_host"))
}

func TestRegistry_FindFiltersByTypeAndRole(t *testing.T) {
	reg := NewDefaultRegistry()
	matches := reg.Find(TypeClarification, "")
	require.NotEmpty(t, matches)

	matchesRole := reg.Find(TypeClarification, "interviewer")
	require.NotEmpty(t, matchesRole)

	noMatch := reg.Find(TypeClarification, "customer")
	assert.Empty(t, noMatch)
}

func TestSelectCandidates_FiltersSortsAndTruncates(t *testing.T) {
	cfg := Config{MinConfidence: 0.4, MaxCandidates: 2}
	candidates := []Candidate{
		{Content: "a", Confidence: 0.9},
		{Content: "b", Confidence: 0.2},
		{Content: "c", Confidence: 0.5},
		{Content: "d", Confidence: 0.6},
	}
	selected := selectCandidates(candidates, cfg)
	require.Len(t, selected, 2)
	assert.Equal(t, "a", selected[0].Content)
	assert.Equal(t, "d", selected[1].Content)
}

func TestGenerator_FallsBackOnEmptySelection(t *testing.T) {
	gen := NewGenerator(nil, NewRegistry(), nil, nil)
	cfg := Config{MinConfidence: 0.9, MaxCandidates: 3, DefaultType: TypeDirect}
	result := gen.Generate(context.Background(), Request{Query: "hi", Config: &cfg})
	assert.Equal(t, TypeFallback, result.Type)
	assert.Equal(t, 0.5, result.Confidence)
}

func TestGenerator_TemplateCandidateSelectedAsResult(t *testing.T) {
	reg := NewRegistry()
	reg.Add(NewTemplate("clarify", TypeClarification, "Could you clarify {topic}?", nil))
	gen := NewGenerator(nil, reg, nil, nil)

	entry := &ctxstore.Entry{Content: map[string]any{"topic": "the schedule"}}
	result := gen.Generate(context.Background(), Request{
		Query: "what do you mean", ResponseType: TypeClarification, ContextEntry: entry,
	})
	assert.Equal(t, TypeClarification, result.Type)
	assert.Equal(t, "Could you clarify the schedule?", result.Content)
	assert.Equal(t, 0.7, result.Confidence)
}

func TestTemplateValues_ExtractsScalarsFromContextEntry(t *testing.T) {
	entry := &ctxstore.Entry{Content: map[string]any{
		"topic": "pricing", "count": 3, "flag": true, "nested": map[string]any{"x": 1},
	}}
	values := templateValues(Request{Query: "q", ContextEntry: entry})
	assert.Equal(t, "pricing", values["topic"])
	assert.Equal(t, 3, values["count"])
	assert.Equal(t, true, values["flag"])
	_, hasNested := values["nested"]
	assert.False(t, hasNested)
}
