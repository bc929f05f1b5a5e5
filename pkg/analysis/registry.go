package analysis

import (
	"context"
)

// Analyzer is the single operation every analysis implementation exposes
// (spec §4.7): given content, optional context-entry content, and an
// optional task config, produce a list of insights.
type Analyzer interface {
	Analyze(ctx context.Context, content map[string]any, contextEntry any, taskConfig map[string]any) ([]Insight, error)
}

// Constructor builds an Analyzer from shared Dependencies and a task's
// per-call config.
type Constructor func(deps Dependencies, config map[string]any) Analyzer

// Registry maps analysis Types to Constructors. It is built once at
// startup and never mutated afterward (spec §9 design note), so no
// internal locking is needed beyond what a map read requires once
// construction is done.
type Registry struct {
	constructors map[Type]Constructor
}

// NewRegistry returns a Registry with the six required analyzers
// pre-registered (spec §4.7).
func NewRegistry() *Registry {
	r := &Registry{constructors: make(map[Type]Constructor)}
	r.Register(TypeSentiment, func(deps Dependencies, cfg map[string]any) Analyzer { return NewSentimentAnalyzer(deps) })
	r.Register(TypeTopic, func(deps Dependencies, cfg map[string]any) Analyzer { return NewTopicAnalyzer(deps) })
	r.Register(TypeQuality, func(deps Dependencies, cfg map[string]any) Analyzer { return NewQualityAnalyzer(deps) })
	r.Register(TypeEngagement, func(deps Dependencies, cfg map[string]any) Analyzer { return NewEngagementAnalyzer(deps) })
	r.Register(TypeBehavioral, func(deps Dependencies, cfg map[string]any) Analyzer { return NewBehavioralAnalyzer(deps) })
	r.Register(TypeCompliance, func(deps Dependencies, cfg map[string]any) Analyzer { return NewComplianceAnalyzer(deps, cfg) })
	return r
}

// Register adds or replaces the constructor for analyzerType.
func (r *Registry) Register(analyzerType Type, ctor Constructor) {
	r.constructors[analyzerType] = ctor
}

// Get builds an Analyzer instance for analyzerType, or ErrAnalyzerNotFound.
func (r *Registry) Get(analyzerType Type, deps Dependencies, config map[string]any) (Analyzer, error) {
	ctor, ok := r.constructors[analyzerType]
	if !ok {
		return nil, ErrAnalyzerNotFound
	}
	return ctor(deps, config), nil
}
