package analysis

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"sync"

	"github.com/lokutor-ai/assist-core/pkg/bus"
)

// Correlation records a relationship the aggregator found between two
// insights (spec §4.8 Aggregation).
type Correlation struct {
	InsightAType Type
	InsightBType Type
	Score        float64
}

// Summary is the output of Aggregator.GetSummary (spec §4.8).
type Summary struct {
	TopInsights     []Insight
	Scores          map[Type]float64
	Correlations    []Correlation
	Recommendations []string
}

type sessionAggregate struct {
	insights     []Insight
	typeSums     map[Type]float64
	typeCounts   map[Type]int
	correlations []Correlation
	contentHash  map[string]struct{}
}

// Aggregator accumulates AnalysisResults per session: per-type mean
// confidence, reference-overlap correlations, and content-hash dedup
// (spec §4.8 Aggregation, grounded on
// original_source/src/analysis/compliance_analyzer.py AnalysisAggregator).
type Aggregator struct {
	mu       sync.Mutex
	sessions map[string]*sessionAggregate
	bus      *bus.Bus
}

// NewAggregator constructs an Aggregator. A nil eventBus disables publishing.
func NewAggregator(eventBus *bus.Bus) *Aggregator {
	return &Aggregator{sessions: make(map[string]*sessionAggregate), bus: eventBus}
}

func (agg *Aggregator) session(sessionID string) *sessionAggregate {
	s, ok := agg.sessions[sessionID]
	if !ok {
		s = &sessionAggregate{
			typeSums:    make(map[Type]float64),
			typeCounts:  make(map[Type]int),
			contentHash: make(map[string]struct{}),
		}
		agg.sessions[sessionID] = s
	}
	return s
}

// AddResult folds result's insights into sessionID's running aggregate,
// updates per-type mean confidence, finds new correlations, and publishes
// a bus.Assistance progress event.
func (agg *Aggregator) AddResult(sessionID string, result Result) {
	agg.mu.Lock()
	defer agg.mu.Unlock()

	s := agg.session(sessionID)
	startIdx := len(s.insights)
	s.insights = append(s.insights, result.Insights...)

	for _, ins := range result.Insights {
		s.typeSums[ins.Type] += ins.Confidence
		s.typeCounts[ins.Type]++
	}

	agg.findCorrelations(s, startIdx)

	if agg.bus != nil {
		agg.bus.Publish(bus.New(bus.Assistance, map[string]any{
			"session_id": sessionID,
			"scores":     agg.scoresLocked(s),
		}))
	}
}

func (agg *Aggregator) scoresLocked(s *sessionAggregate) map[Type]float64 {
	out := make(map[Type]float64, len(s.typeSums))
	for t, sum := range s.typeSums {
		out[t] = sum / float64(s.typeCounts[t])
	}
	return out
}

// findCorrelations computes Jaccard reference overlap between every newly
// added insight and every previously seen insight of a different type,
// recording a Correlation when the score is > 0 (spec §4.8).
func (agg *Aggregator) findCorrelations(s *sessionAggregate, newStart int) {
	for i := newStart; i < len(s.insights); i++ {
		a := s.insights[i]
		for j := 0; j < i; j++ {
			b := s.insights[j]
			if a.Type == b.Type {
				continue
			}
			score := jaccard(a.References, b.References)
			if score > 0 {
				s.correlations = append(s.correlations, Correlation{
					InsightAType: a.Type, InsightBType: b.Type, Score: score,
				})
			}
		}
	}
}

func jaccard(a, b map[string]struct{}) float64 {
	if len(a) == 0 && len(b) == 0 {
		return 0
	}
	intersection := 0
	for k := range a {
		if _, ok := b[k]; ok {
			intersection++
		}
	}
	union := len(a) + len(b) - intersection
	if union == 0 {
		return 0
	}
	return float64(intersection) / float64(union)
}

// contentHash renders a stable digest of an insight's content for dedup.
func contentHash(content any) string {
	sum := sha256.Sum256([]byte(fmt.Sprintf("%v", content)))
	return hex.EncodeToString(sum[:])
}

// GetSummary returns the top-5 insights by confidence (deduplicated by
// content hash), per-type mean scores, correlations, and recommendations
// pulled from insight contents (spec §4.8).
func (agg *Aggregator) GetSummary(sessionID string) Summary {
	agg.mu.Lock()
	defer agg.mu.Unlock()

	s, ok := agg.sessions[sessionID]
	if !ok {
		return Summary{Scores: map[Type]float64{}}
	}

	deduped := make([]Insight, 0, len(s.insights))
	seen := make(map[string]struct{})
	for _, ins := range s.insights {
		h := contentHash(ins.Content)
		if _, dup := seen[h]; dup {
			continue
		}
		seen[h] = struct{}{}
		deduped = append(deduped, ins)
	}

	sort.SliceStable(deduped, func(i, j int) bool {
		return deduped[i].Confidence > deduped[j].Confidence
	})
	if len(deduped) > 5 {
		deduped = deduped[:5]
	}

	var recommendations []string
	for _, ins := range s.insights {
		if m, ok := ins.Content.(map[string]any); ok {
			if recs, ok := m["recommendations"].([]any); ok {
				for _, r := range recs {
					if str, ok := r.(string); ok {
						recommendations = append(recommendations, str)
					}
				}
			}
		}
	}

	return Summary{
		TopInsights:     deduped,
		Scores:          agg.scoresLocked(s),
		Correlations:    s.correlations,
		Recommendations: recommendations,
	}
}
