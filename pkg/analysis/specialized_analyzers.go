package analysis

import (
	"context"
	"strings"
	"time"
)

// EngagementAnalyzer scores conversation engagement from per-turn
// statistics alongside an AI read (spec §4.7, grounded on
// original_source/src/analysis/specialized_analyzers.py EngagementAnalyzer).
type EngagementAnalyzer struct {
	deps Dependencies
}

func NewEngagementAnalyzer(deps Dependencies) *EngagementAnalyzer {
	return &EngagementAnalyzer{deps: deps}
}

// Turn is one conversation turn fed to EngagementAnalyzer/BehavioralAnalyzer.
type Turn struct {
	Speaker   string
	Text      string
	Timestamp time.Time
}

func turnsFrom(content map[string]any) []Turn {
	raw, _ := content["turns"].([]Turn)
	return raw
}

func (a *EngagementAnalyzer) Analyze(ctx context.Context, content map[string]any, contextEntry any, taskConfig map[string]any) ([]Insight, error) {
	turns := turnsFrom(content)

	prompt := "Analyze the conversation engagement level. Consider:\n" +
		"1. Participant responsiveness\n2. Turn-taking patterns\n" +
		"3. Response depth and relevance\n4. Active listening indicators\n\n"

	expectedFormat := map[string]any{
		"engagement_score":      "float (0-1)",
		"participation_balance": "float (0-1)",
		"interaction_quality":   []string{"list of aspect objects"},
		"recommendations":       []string{"list of string"},
	}

	ai, err := getAIAnalysis(ctx, a.deps.LLM, prompt, expectedFormat)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	return []Insight{
		{Type: TypeEngagement, Content: ai, Confidence: 0.8, Source: "ai_analysis", Timestamp: now},
		{Type: TypeEngagement, Content: engagementMetrics(turns), Confidence: 0.9, Source: "metric_analysis", Timestamp: now},
	}, nil
}

func engagementMetrics(turns []Turn) map[string]any {
	if len(turns) == 0 {
		return map[string]any{
			"response_rate":       0.0,
			"avg_response_time":   0.0,
			"turn_distribution":   map[string]any{},
			"engagement_patterns": []any{},
		}
	}

	distribution := make(map[string]int)
	var responseTimes []float64
	var prev time.Time
	for _, t := range turns {
		distribution[t.Speaker]++
		if !prev.IsZero() && !t.Timestamp.IsZero() {
			responseTimes = append(responseTimes, t.Timestamp.Sub(prev).Seconds())
		}
		prev = t.Timestamp
	}

	var avgResponse float64
	if len(responseTimes) > 0 {
		sum := 0.0
		for _, r := range responseTimes {
			sum += r
		}
		avgResponse = sum / float64(len(responseTimes))
	}

	turnDist := make(map[string]any, len(distribution))
	for k, v := range distribution {
		turnDist[k] = v
	}

	return map[string]any{
		"response_rate":       float64(len(responseTimes)) / float64(len(turns)),
		"avg_response_time":   avgResponse,
		"turn_distribution":   turnDist,
		"engagement_patterns": detectEngagementPatterns(turns),
	}
}

var activeListeningPhrases = []string{
	"i see", "understood", "right", "got it", "makes sense", "exactly",
}

// detectEngagementPatterns scans 3-turn sliding windows for QA,
// topic-continuation, or active-listening signals (spec §4.7 supplement).
func detectEngagementPatterns(turns []Turn) []map[string]any {
	const windowSize = 3
	var patterns []map[string]any
	for i := 0; i+windowSize <= len(turns); i++ {
		window := turns[i : i+windowSize]
		if p := analyzeTurnSequence(window); p != nil {
			patterns = append(patterns, p)
		}
	}
	if patterns == nil {
		patterns = []map[string]any{}
	}
	return patterns
}

func analyzeTurnSequence(window []Turn) map[string]any {
	isQA := false
	for _, t := range window {
		if strings.Contains(t.Text, "?") {
			isQA = true
			break
		}
	}
	isTopicContinuation := checkTopicContinuation(window)
	hasActiveListening := checkActiveListening(window)

	if !isQA && !isTopicContinuation && !hasActiveListening {
		return nil
	}

	kind := "active_listening"
	switch {
	case isQA:
		kind = "qa"
	case isTopicContinuation:
		kind = "topic_continuation"
	}

	speakerSet := make(map[string]struct{})
	for _, t := range window {
		speakerSet[t.Speaker] = struct{}{}
	}
	speakers := make([]string, 0, len(speakerSet))
	for s := range speakerSet {
		speakers = append(speakers, s)
	}

	return map[string]any{"type": kind, "turns": len(window), "speakers": speakers}
}

func checkTopicContinuation(window []Turn) bool {
	terms := make(map[string]struct{})
	for _, t := range window {
		words := wordPattern.FindAllString(strings.ToLower(t.Text), -1)
		if len(terms) > 0 {
			for _, w := range words {
				if _, ok := terms[w]; ok {
					return true
				}
			}
		}
		for _, w := range words {
			terms[w] = struct{}{}
		}
	}
	return false
}

func checkActiveListening(window []Turn) bool {
	for _, t := range window {
		lower := strings.ToLower(t.Text)
		for _, phrase := range activeListeningPhrases {
			if strings.Contains(lower, phrase) {
				return true
			}
		}
	}
	return false
}

// BehavioralAnalyzer classifies communication style and decisiveness
// alongside an AI read (spec §4.7, grounded on
// original_source/src/analysis/specialized_analyzers.py BehavioralAnalyzer).
type BehavioralAnalyzer struct {
	deps Dependencies
}

func NewBehavioralAnalyzer(deps Dependencies) *BehavioralAnalyzer {
	return &BehavioralAnalyzer{deps: deps}
}

var assertiveWords = set("definitely", "certainly", "absolutely", "must", "should", "will")
var collaborativeWords = set("we", "together", "let's", "agree", "share", "help")
var analyticalWords = set("analyze", "consider", "evaluate", "data", "evidence", "logic")
var decisiveIndicators = set("decide", "chosen", "selected", "will", "going", "plan")
var uncertainIndicators = set("maybe", "perhaps", "might", "could", "possibly")

var turnTakingIndicators = []string{"you mentioned", "as you said", "to add to that", "building on"}
var discussionIndicators = []string{"what if", "how about", "another approach", "alternatively"}
var problemSolvingIndicators = []string{"solution", "resolve", "address", "fix", "improve", "optimize"}

func (a *BehavioralAnalyzer) Analyze(ctx context.Context, content map[string]any, contextEntry any, taskConfig map[string]any) ([]Insight, error) {
	text, _ := content["text"].(string)

	prompt := "Analyze behavioral patterns in this conversation. Consider:\n" +
		"1. Communication styles\n2. Decision-making patterns\n" +
		"3. Problem-solving approaches\n4. Interpersonal dynamics\n\nText: " + text

	expectedFormat := map[string]any{
		"behaviors":       []string{"list of behavior objects"},
		"patterns":        []string{"list of pattern objects"},
		"recommendations": []string{"list of string"},
	}

	ai, err := getAIAnalysis(ctx, a.deps.LLM, prompt, expectedFormat)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	return []Insight{
		{Type: TypeBehavioral, Content: ai, Confidence: 0.7, Source: "ai_analysis", Timestamp: now},
		{Type: TypeBehavioral, Content: behavioralMetrics(text), Confidence: 0.8, Source: "metric_analysis", Timestamp: now},
	}, nil
}

func behavioralMetrics(text string) map[string]any {
	words := strings.Fields(strings.ToLower(text))
	total := len(words)
	if total == 0 {
		return map[string]any{
			"communication_style": "unknown",
			"style_scores":        map[string]any{},
			"interaction_patterns": []any{},
			"decisiveness":         0.0,
		}
	}

	scores := map[string]float64{
		"assertive":     countIn(words, assertiveWords) / float64(total),
		"collaborative": countIn(words, collaborativeWords) / float64(total),
		"analytical":    countIn(words, analyticalWords) / float64(total),
	}

	dominant := "assertive"
	best := scores["assertive"]
	for _, style := range []string{"collaborative", "analytical"} {
		if scores[style] > best {
			best = scores[style]
			dominant = style
		}
	}

	styleScores := make(map[string]any, len(scores))
	for k, v := range scores {
		styleScores[k] = v
	}

	return map[string]any{
		"communication_style":  dominant,
		"style_scores":         styleScores,
		"interaction_patterns": detectInteractionPatterns(text),
		"decisiveness":         decisiveness(words),
	}
}

func countIn(words []string, lexicon map[string]bool) float64 {
	n := 0
	for _, w := range words {
		if lexicon[w] {
			n++
		}
	}
	return float64(n)
}

func decisiveness(words []string) float64 {
	decisive, uncertain := 0, 0
	for _, w := range words {
		if decisiveIndicators[w] {
			decisive++
		}
		if uncertainIndicators[w] {
			uncertain++
		}
	}
	total := decisive + uncertain
	if total == 0 {
		return 0.5
	}
	return float64(decisive) / float64(total)
}

func detectInteractionPatterns(text string) []map[string]any {
	lower := strings.ToLower(text)
	var patterns []map[string]any
	if containsAny(lower, turnTakingIndicators) {
		patterns = append(patterns, map[string]any{"type": "turn_taking", "strength": "high"})
	}
	if containsAny(lower, discussionIndicators) {
		patterns = append(patterns, map[string]any{"type": "active_discussion", "strength": "medium"})
	}
	if containsAny(lower, problemSolvingIndicators) {
		patterns = append(patterns, map[string]any{"type": "problem_solving", "strength": "high"})
	}
	if patterns == nil {
		patterns = []map[string]any{}
	}
	return patterns
}

func containsAny(text string, indicators []string) bool {
	for _, ind := range indicators {
		if strings.Contains(text, ind) {
			return true
		}
	}
	return false
}
