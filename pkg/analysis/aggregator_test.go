package analysis

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAggregator_ScoresAreMeanPerType(t *testing.T) {
	agg := NewAggregator(nil)
	agg.AddResult("s1", Result{Insights: []Insight{
		{Type: TypeSentiment, Confidence: 0.8, Timestamp: time.Now()},
		{Type: TypeSentiment, Confidence: 0.4, Timestamp: time.Now()},
	}})
	summary := agg.GetSummary("s1")
	assert.InDelta(t, 0.6, summary.Scores[TypeSentiment], 1e-9)
}

func TestAggregator_FindsCorrelationOnReferenceOverlap(t *testing.T) {
	agg := NewAggregator(nil)
	refsA := map[string]struct{}{"x": {}, "y": {}}
	refsB := map[string]struct{}{"y": {}, "z": {}}
	agg.AddResult("s1", Result{Insights: []Insight{
		{Type: TypeSentiment, Confidence: 0.5, References: refsA, Timestamp: time.Now()},
	}})
	agg.AddResult("s1", Result{Insights: []Insight{
		{Type: TypeTopic, Confidence: 0.5, References: refsB, Timestamp: time.Now()},
	}})
	summary := agg.GetSummary("s1")
	require.Len(t, summary.Correlations, 1)
	// jaccard({x,y},{y,z}) = 1/3
	assert.InDelta(t, 1.0/3.0, summary.Correlations[0].Score, 1e-9)
}

func TestAggregator_NoCorrelationForSameType(t *testing.T) {
	agg := NewAggregator(nil)
	refs := map[string]struct{}{"x": {}}
	agg.AddResult("s1", Result{Insights: []Insight{
		{Type: TypeSentiment, Confidence: 0.5, References: refs, Timestamp: time.Now()},
		{Type: TypeSentiment, Confidence: 0.6, References: refs, Timestamp: time.Now()},
	}})
	summary := agg.GetSummary("s1")
	assert.Empty(t, summary.Correlations)
}

func TestAggregator_DedupsByContentHash(t *testing.T) {
	agg := NewAggregator(nil)
	content := map[string]any{"a": 1}
	agg.AddResult("s1", Result{Insights: []Insight{
		{Type: TypeSentiment, Content: content, Confidence: 0.9, Timestamp: time.Now()},
		{Type: TypeTopic, Content: content, Confidence: 0.3, Timestamp: time.Now()},
	}})
	summary := agg.GetSummary("s1")
	assert.Len(t, summary.TopInsights, 1)
	assert.Equal(t, 0.9, summary.TopInsights[0].Confidence)
}

func TestAggregator_TopInsightsCappedAtFive(t *testing.T) {
	agg := NewAggregator(nil)
	var insights []Insight
	for i := 0; i < 8; i++ {
		insights = append(insights, Insight{
			Type:       TypeSentiment,
			Content:    map[string]any{"i": i},
			Confidence: float64(i) / 10,
			Timestamp:  time.Now(),
		})
	}
	agg.AddResult("s1", Result{Insights: insights})
	summary := agg.GetSummary("s1")
	require.Len(t, summary.TopInsights, 5)
	assert.Equal(t, 0.7, summary.TopInsights[0].Confidence)
}

func TestAggregator_RecommendationsPulledFromContent(t *testing.T) {
	agg := NewAggregator(nil)
	agg.AddResult("s1", Result{Insights: []Insight{
		{Type: TypeEngagement, Content: map[string]any{
			"recommendations": []any{"slow down", "ask more questions"},
		}, Confidence: 0.5, Timestamp: time.Now()},
	}})
	summary := agg.GetSummary("s1")
	assert.ElementsMatch(t, []string{"slow down", "ask more questions"}, summary.Recommendations)
}

func TestAggregator_UnknownSessionReturnsEmptySummary(t *testing.T) {
	agg := NewAggregator(nil)
	summary := agg.GetSummary("missing")
	assert.Empty(t, summary.TopInsights)
	assert.Empty(t, summary.Scores)
}
