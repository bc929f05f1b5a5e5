// Package analysis implements the analyzer registry (C7) and the analysis
// engine (C8): a pipeline of dependency-ordered stages executed by a fixed
// worker pool, producing weighted-confidence AnalysisResults that feed an
// Aggregator.
package analysis

import "time"

// Type is the closed set of analysis kinds a task can request (spec §4.7).
type Type string

const (
	TypeSentiment  Type = "sentiment"
	TypeTopic      Type = "topic"
	TypeQuality    Type = "quality"
	TypeEngagement Type = "engagement"
	TypeBehavioral Type = "behavioral"
	TypeCompliance Type = "compliance"
)

// Priority orders tasks for scheduling hints; the engine itself runs a
// single FIFO work queue, so Priority is informational metadata carried
// through to results rather than a scheduler input.
type Priority float64

const (
	PriorityCritical Priority = 3.0
	PriorityHigh     Priority = 2.0
	PriorityMedium   Priority = 1.0
	PriorityLow      Priority = 0.5
)

// State is a task's lifecycle stage (spec §4.8).
type State string

const (
	StatePending   State = "pending"
	StateRunning   State = "running"
	StateCompleted State = "completed"
	StateFailed    State = "failed"
	StateCanceled  State = "canceled"
)

// Insight is one finding produced by an analyzer (spec §4.7). Every
// concrete analyzer returns at least one insight sourced "ai_analysis"
// and one sourced "metric_analysis"/"rule_analysis".
type Insight struct {
	Type       Type
	Content    any
	Confidence float64
	Source     string
	Timestamp  time.Time
	Metadata   map[string]any
	References map[string]struct{}
}

// Task configures one unit of analyzer work within a pipeline stage
// (spec §4.8).
type Task struct {
	ID           string
	Type         Type
	Priority     Priority
	Role         string
	Config       map[string]any
	Dependencies []string
	Timeout      time.Duration
}

// Result is the outcome of running one Task (spec §4.8).
type Result struct {
	TaskID     string
	Type       Type
	Insights   []Insight
	Confidence float64
	Duration   time.Duration
	Timestamp  time.Time
	Metadata   map[string]any
}

// Stage is one set of tasks within a Pipeline. Tasks within a stage become
// runnable once every id in their Dependencies is in the pipeline's
// completed-task set.
type Stage struct {
	Tasks []Task
}

// Pipeline describes how a request's tasks are grouped into stages and
// executed (spec §4.8).
type Pipeline struct {
	Stages          []Stage
	ParallelStages  bool
	MaxStageDuration time.Duration
	ErrorHandling   ErrorHandling
}

// ErrorHandling selects what happens when a task fails mid-pipeline.
type ErrorHandling string

const (
	// ErrorHandlingContinue skips the failing task; anything depending on
	// it never becomes runnable, but the rest of the pipeline proceeds.
	ErrorHandlingContinue ErrorHandling = "continue"
	// ErrorHandlingFail aborts the pipeline at the first failing task: no
	// further tasks run and the result channel is closed. The task's error
	// itself is not delivered to the caller.
	ErrorHandlingFail ErrorHandling = "fail"
)

// Request asks the engine to run a Pipeline for one session (spec §4.8).
type Request struct {
	SessionID string
	Content   map[string]any
	Context   any // typically a *context.Entry; opaque here to avoid an import cycle
	Pipeline  Pipeline
}

// Config tunes engine capacity and the analyzer allow-list (spec §4.8
// Resource guards).
type Config struct {
	EnabledAnalyzers   map[Type]bool
	MaxConcurrentTasks int
	DefaultTimeout     time.Duration
}

// DefaultConfig enables all six required analyzers with 10 workers and a
// 30s default per-task timeout, matching the original's AnalysisConfig
// defaults.
func DefaultConfig() Config {
	return Config{
		EnabledAnalyzers: map[Type]bool{
			TypeSentiment:  true,
			TypeTopic:      true,
			TypeQuality:    true,
			TypeEngagement: true,
			TypeBehavioral: true,
			TypeCompliance: true,
		},
		MaxConcurrentTasks: 10,
		DefaultTimeout:     30 * time.Second,
	}
}

// confidenceWeights gives the per-type weight used to compute a Result's
// aggregate confidence: Σ(w_t × c_t) / Σw_t over its insights (spec §4.8).
var confidenceWeights = map[Type]float64{
	TypeSentiment:  1.0,
	TypeTopic:      0.8,
	TypeQuality:    1.0,
	TypeEngagement: 0.9,
	TypeBehavioral: 0.7,
	TypeCompliance: 1.0,
}

func weightFor(t Type) float64 {
	if w, ok := confidenceWeights[t]; ok {
		return w
	}
	return 0.5
}
