package analysis

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistry_BuildsAllSixAnalyzers(t *testing.T) {
	reg := NewRegistry()
	deps := Dependencies{LLM: &fakeProvider{reply: canonicalAIJSON}}

	for _, typ := range []Type{TypeSentiment, TypeTopic, TypeQuality, TypeEngagement, TypeBehavioral, TypeCompliance} {
		analyzer, err := reg.Get(typ, deps, nil)
		require.NoError(t, err, "type %s", typ)
		require.NotNil(t, analyzer)
	}
}

func TestRegistry_UnknownTypeReturnsError(t *testing.T) {
	reg := NewRegistry()
	_, err := reg.Get(Type("unknown"), Dependencies{}, nil)
	assert.ErrorIs(t, err, ErrAnalyzerNotFound)
}

func TestRegistry_EveryAnalyzerReturnsAIAndMetricInsights(t *testing.T) {
	reg := NewRegistry()
	deps := Dependencies{LLM: &fakeProvider{reply: canonicalAIJSON}}
	content := map[string]any{"text": "good good bad, is this ok? yes it is."}

	for _, typ := range []Type{TypeSentiment, TypeTopic, TypeQuality, TypeEngagement, TypeBehavioral, TypeCompliance} {
		analyzer, err := reg.Get(typ, deps, nil)
		require.NoError(t, err)

		insights, err := analyzer.Analyze(context.Background(), content, nil, nil)
		require.NoError(t, err, "type %s", typ)
		require.GreaterOrEqual(t, len(insights), 2, "type %s", typ)

		var hasAI, hasMetricOrRule bool
		for _, ins := range insights {
			switch ins.Source {
			case "ai_analysis":
				hasAI = true
			case "metric_analysis", "rule_analysis":
				hasMetricOrRule = true
			}
		}
		assert.True(t, hasAI, "type %s missing ai_analysis insight", typ)
		assert.True(t, hasMetricOrRule, "type %s missing metric/rule insight", typ)
	}
}
