// Package response implements the response generator (C9): AI and
// template candidate generation, confidence-threshold selection, and a
// fail-closed fallback (spec.md §4.9, grounded on
// original_source/src/response/{generator,templates,types}.py).
package response

import "time"

// Type is the closed set of response kinds a candidate or result can carry
// (spec §4.9).
type Type string

const (
	TypeDirect        Type = "direct"
	TypeClarification  Type = "clarify"
	TypeFollowUp       Type = "follow_up"
	TypeSuggestion     Type = "suggest"
	TypeSummary        Type = "summary"
	TypeAction         Type = "action"
	TypeFallback       Type = "fallback"
)

// Priority mirrors analysis.Priority's scale for response scheduling hints.
type Priority float64

const (
	PriorityCritical Priority = 3.0
	PriorityHigh     Priority = 2.0
	PriorityMedium   Priority = 1.0
	PriorityLow      Priority = 0.5
)

// Candidate is one proposed response before selection (spec §4.9 step 1).
type Candidate struct {
	Content     string
	Type        Type
	Confidence  float64
	ContextRefs []string
	Metadata    map[string]any
}

// Request asks the generator to produce a response for a query, optionally
// scoped by role, response type, a context entry, and an analysis result
// (spec §4.9). ContextEntry/Analysis are typed any; template rendering reads
// them only when they hold a *context.Entry / *analysis.Result.
type Request struct {
	Query        string
	Role         string
	ResponseType Type
	Priority     Priority
	ContextEntry any
	Analysis     any
	Config       *Config
}

// Config tunes candidate selection (spec §4.9 step 2).
type Config struct {
	MinConfidence float64
	MaxCandidates int
	DefaultType   Type
}

// DefaultConfig matches the original's ResponseConfig defaults.
func DefaultConfig() Config {
	return Config{MinConfidence: 0.3, MaxCandidates: 3, DefaultType: TypeDirect}
}

// Result is the finalized response: the best candidate's content plus the
// remaining selected candidates as alternatives (spec §4.9 step 3).
type Result struct {
	Content       string
	Type          Type
	Confidence    float64
	Alternatives  []Candidate
	ContextUsed   []string
	Metadata      map[string]any
	Duration      time.Duration
	Timestamp     time.Time
}
