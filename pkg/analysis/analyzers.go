package analysis

import (
	"context"
	"regexp"
	"sort"
	"strings"
	"time"
)

var wordPattern = regexp.MustCompile(`\w+`)

// SentimentAnalyzer scores sentiment polarity from a fixed lexicon
// alongside an AI-generated read (spec §4.7, grounded on
// original_source/src/analysis/analyzers.py SentimentAnalyzer).
type SentimentAnalyzer struct {
	deps Dependencies
}

func NewSentimentAnalyzer(deps Dependencies) *SentimentAnalyzer {
	return &SentimentAnalyzer{deps: deps}
}

var positiveWords = set("good", "great", "excellent", "happy", "positive",
	"wonderful", "fantastic", "amazing", "helpful")
var negativeWords = set("bad", "poor", "terrible", "unhappy", "negative",
	"awful", "horrible", "useless", "disappointing")

func (a *SentimentAnalyzer) Analyze(ctx context.Context, content map[string]any, contextEntry any, taskConfig map[string]any) ([]Insight, error) {
	text, _ := content["text"].(string)

	prompt := "Analyze the sentiment in this text. Consider:\n" +
		"1. Overall sentiment polarity (positive/negative/neutral)\n" +
		"2. Confidence in analysis (0-1)\n" +
		"3. Specific sentiment indicators (words/phrases)\n" +
		"4. Emotional undertones\n" +
		"5. Sentiment intensity\n" +
		"6. Key sentiment-bearing phrases\n\nText: " + text + "\n\n"

	expectedFormat := map[string]any{
		"sentiment":  "string (positive/negative/neutral)",
		"confidence": "float (0-1)",
		"indicators": []string{"list of string"},
		"emotions":   []string{"list of string"},
	}

	ai, err := getAIAnalysis(ctx, a.deps.LLM, prompt, expectedFormat)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	insights := []Insight{
		{
			Type: TypeSentiment,
			Content: map[string]any{
				"sentiment":  getString(ai, "sentiment", "neutral"),
				"indicators": getSlice(ai, "indicators"),
				"emotions":   getSlice(ai, "emotions"),
			},
			Confidence: getFloat(ai, "confidence", 0.5),
			Source:     "ai_analysis",
			Timestamp:  now,
		},
		{
			Type:       TypeSentiment,
			Content:    sentimentMetrics(text),
			Confidence: 0.7,
			Source:     "metric_analysis",
			Timestamp:  now,
		},
	}
	return insights, nil
}

// sentimentMetrics implements the bit-exact lexicon score (spec §4.7):
// (pos − neg) / (pos + neg), 0 when both are 0.
func sentimentMetrics(text string) map[string]any {
	words := strings.Fields(strings.ToLower(text))
	pos, neg := 0, 0
	for _, w := range words {
		if positiveWords[w] {
			pos++
		}
		if negativeWords[w] {
			neg++
		}
	}

	var score float64
	if total := pos + neg; total != 0 {
		score = float64(pos-neg) / float64(total)
	}

	return map[string]any{
		"sentiment_score": score,
		"positive_words":  pos,
		"negative_words":  neg,
		"word_count":      len(words),
	}
}

// TopicAnalyzer extracts a statistical topic distribution alongside an
// AI-generated topic/relationship read (spec §4.7, grounded on
// original_source/src/analysis/analyzers.py TopicAnalyzer).
type TopicAnalyzer struct {
	deps Dependencies
}

func NewTopicAnalyzer(deps Dependencies) *TopicAnalyzer {
	return &TopicAnalyzer{deps: deps}
}

var topicStopwords = set("the", "be", "to", "of", "and", "a", "in", "that",
	"have", "i", "it", "for", "not", "on", "with", "he", "as", "you", "do", "at")

func (a *TopicAnalyzer) Analyze(ctx context.Context, content map[string]any, contextEntry any, taskConfig map[string]any) ([]Insight, error) {
	text, _ := content["text"].(string)

	prompt := "Analyze the main topics in this text, providing:\n" +
		"1. List of topics (name, relevance (0-1), mentions, related terms)\n" +
		"2. Relationships between topics (strength, type)\n" +
		"3. Importance of each topic\n\nText: " + text

	expectedFormat := map[string]any{
		"topics":        []string{"list of topic objects"},
		"relationships": []string{"list of relationship objects"},
		"importance":    map[string]any{"topic_name": "float (0-1)"},
	}

	ai, err := getAIAnalysis(ctx, a.deps.LLM, prompt, expectedFormat)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	insights := []Insight{
		{
			Type: TypeTopic,
			Content: map[string]any{
				"topics":        getSlice(ai, "topics"),
				"relationships": getSlice(ai, "relationships"),
				"importance":    ai["importance"],
			},
			Confidence: getFloat(ai, "confidence", 0.5),
			Source:     "ai_analysis",
			Timestamp:  now,
		},
		{
			Type:       TypeTopic,
			Content:    topicDistribution(text),
			Confidence: 0.8,
			Source:     "metric_analysis",
			Timestamp:  now,
		},
	}
	return insights, nil
}

type topicGroup struct {
	Count int
	Words []string
}

// topicDistribution implements the bit-exact top-10-by-frequency, 4-char
// prefix grouping described in spec §4.7.
func topicDistribution(text string) map[string]any {
	raw := wordPattern.FindAllString(text, -1)

	words := make([]string, 0, len(raw))
	freq := make(map[string]int)
	order := make([]string, 0, len(raw))
	for _, w := range raw {
		lw := strings.ToLower(w)
		if topicStopwords[lw] {
			continue
		}
		words = append(words, lw)
		if freq[lw] == 0 {
			order = append(order, lw)
		}
		freq[lw]++
	}

	// most_common(10): stable by first-seen order on frequency ties, as
	// Python's Counter.most_common preserves insertion order for ties.
	sort.SliceStable(order, func(i, j int) bool {
		return freq[order[i]] > freq[order[j]]
	})
	if len(order) > 10 {
		order = order[:10]
	}

	topWords := make(map[string]any, len(order))
	groups := make(map[string]*topicGroup)
	groupOrder := make([]string, 0, len(order))
	for _, w := range order {
		topWords[w] = freq[w]

		stem := w
		if len(stem) > 4 {
			stem = stem[:4]
		}
		g, ok := groups[stem]
		if !ok {
			g = &topicGroup{}
			groups[stem] = g
			groupOrder = append(groupOrder, stem)
		}
		g.Count += freq[w]
		g.Words = append(g.Words, w)
	}

	topicGroups := make(map[string]any, len(groupOrder))
	for _, stem := range groupOrder {
		g := groups[stem]
		topicGroups[stem] = map[string]any{"count": g.Count, "words": g.Words}
	}

	return map[string]any{
		"top_words":    topWords,
		"topic_groups": topicGroups,
		"total_words":  len(words),
	}
}

// QualityAnalyzer scores conversation quality via sentence-level turn
// metrics and an AI read (spec §4.7, grounded on
// original_source/src/analysis/analyzers.py QualityAnalyzer).
type QualityAnalyzer struct {
	deps Dependencies
}

func NewQualityAnalyzer(deps Dependencies) *QualityAnalyzer {
	return &QualityAnalyzer{deps: deps}
}

var sentenceWithTerminator = regexp.MustCompile(`[^.!?]+[.!?]+`)

func (a *QualityAnalyzer) Analyze(ctx context.Context, content map[string]any, contextEntry any, taskConfig map[string]any) ([]Insight, error) {
	text, _ := content["text"].(string)

	prompt := "Analyze the conversation quality, providing:\n" +
		"1. Clarity score (0-1)\n2. Engagement level (0-1)\n" +
		"3. Communication effectiveness (0-1)\n" +
		"4. Suggestions for improvement\n5. Metrics for coherence, relevance, completeness\n\n" +
		"Text: " + text

	expectedFormat := map[string]any{
		"clarity":      "float (0-1)",
		"engagement":   "float (0-1)",
		"effectiveness": "float (0-1)",
		"improvements": []string{"list of improvement objects"},
	}

	ai, err := getAIAnalysis(ctx, a.deps.LLM, prompt, expectedFormat)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	insights := []Insight{
		{
			Type: TypeQuality,
			Content: map[string]any{
				"clarity":      getFloat(ai, "clarity", 0.0),
				"engagement":   getFloat(ai, "engagement", 0.0),
				"effectiveness": getFloat(ai, "effectiveness", 0.0),
				"improvements": getSlice(ai, "improvements"),
			},
			Confidence: getFloat(ai, "confidence", 0.5),
			Source:     "ai_analysis",
			Timestamp:  now,
		},
		{
			Type:       TypeQuality,
			Content:    qualityMetrics(text),
			Confidence: 0.9,
			Source:     "metric_analysis",
			Timestamp:  now,
		},
	}
	return insights, nil
}

// qualityMetrics implements the bit-exact turn-taking ratio (spec §4.7):
// min(q, r) / max(q, r), 0 when max is 0.
func qualityMetrics(text string) map[string]any {
	var sentences []string
	questions := 0
	for _, clause := range sentenceWithTerminator.FindAllString(text, -1) {
		if strings.ContainsRune(clause, '?') {
			questions++
		}
		body := strings.TrimRight(clause, ".!?")
		body = strings.TrimSpace(body)
		if body != "" {
			sentences = append(sentences, body)
		}
	}
	// A trailing clause with no terminator still counts as a sentence
	// (mirrors splitting on the terminator pattern: text past the last
	// match is its own segment).
	if rest := strings.TrimSpace(sentenceWithTerminator.ReplaceAllString(text, "")); rest != "" {
		sentences = append(sentences, rest)
	}

	var avgLen float64
	if len(sentences) > 0 {
		total := 0
		for _, s := range sentences {
			total += len(strings.Fields(s))
		}
		avgLen = float64(total) / float64(len(sentences))
	}

	responses := len(sentences) - questions

	var turnRatio float64
	if max := maxInt(questions, responses); max > 0 {
		turnRatio = float64(minInt(questions, responses)) / float64(max)
	}

	return map[string]any{
		"avg_sentence_length": avgLen,
		"turn_taking_ratio":   turnRatio,
		"question_count":      questions,
		"response_count":      responses,
		"total_turns":         len(sentences),
	}
}

func set(words ...string) map[string]bool {
	out := make(map[string]bool, len(words))
	for _, w := range words {
		out[w] = true
	}
	return out
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}
