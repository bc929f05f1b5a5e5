package analysis

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSentimentMetrics_BitExactScore(t *testing.T) {
	// S4: "good good bad" -> positive=2, negative=1, score=(2-1)/(2+1).
	metrics := sentimentMetrics("good good bad")
	assert.InDelta(t, 0.3333333, metrics["sentiment_score"], 1e-6)
	assert.Equal(t, 2, metrics["positive_words"])
	assert.Equal(t, 1, metrics["negative_words"])
	assert.Equal(t, 3, metrics["word_count"])
}

func TestSentimentMetrics_ZeroWhenNoMatches(t *testing.T) {
	metrics := sentimentMetrics("the quick brown fox")
	assert.Equal(t, 0.0, metrics["sentiment_score"])
}

func TestTopicDistribution_GroupsByFourCharPrefix(t *testing.T) {
	dist := topicDistribution("testing testing tester topic topics")
	groups := dist["topic_groups"].(map[string]any)
	group, ok := groups["test"]
	require.True(t, ok)
	g := group.(map[string]any)
	assert.Equal(t, 3, g["count"])
}

func TestTopicDistribution_ExcludesStopwords(t *testing.T) {
	dist := topicDistribution("the cat and the dog")
	topWords := dist["top_words"].(map[string]any)
	_, hasThe := topWords["the"]
	_, hasAnd := topWords["and"]
	assert.False(t, hasThe)
	assert.False(t, hasAnd)
}

func TestQualityMetrics_TurnTakingRatio(t *testing.T) {
	// 2 questions, 1 non-question sentence -> min(2,1)/max(2,1) = 0.5
	metrics := qualityMetrics("Is this ok? What about this? Yes it is.")
	assert.Equal(t, 2, metrics["question_count"])
	assert.Equal(t, 1, metrics["response_count"])
	assert.InDelta(t, 0.5, metrics["turn_taking_ratio"], 1e-9)
}

func TestQualityMetrics_ZeroRatioWhenNoSentences(t *testing.T) {
	metrics := qualityMetrics("")
	assert.Equal(t, 0.0, metrics["turn_taking_ratio"])
}
