package transcription

import (
	"sync"
	"time"
)

type sessionRecord struct {
	startTime time.Time
	config    Config

	state   SessionState
	metrics SessionMetrics

	stable   []Result
	partials map[string]Result // keyed by result id

	speakers map[string]*SpeakerProfile
}

func newSessionRecord(config Config) *sessionRecord {
	return &sessionRecord{
		startTime: time.Now(),
		config:    config,
		state:     SessionState{SpeakersSeen: make(map[string]bool)},
		metrics:   SessionMetrics{SpeakerTimes: make(map[string]float64)},
		partials:  make(map[string]Result),
		speakers:  make(map[string]*SpeakerProfile),
	}
}

// Store holds per-session transcription state: stable results, the
// latest-partial map, per-speaker profiles, and session metrics (spec §3
// TranscriptionSession, §4.5 C5).
type Store struct {
	mu       sync.RWMutex
	sessions map[string]*sessionRecord
}

// NewStore constructs an empty Store.
func NewStore() *Store {
	return &Store{sessions: make(map[string]*sessionRecord)}
}

// OpenSession registers a new session under sessionID. Re-opening an
// existing id resets its state.
func (s *Store) OpenSession(sessionID string, config Config) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[sessionID] = newSessionRecord(config)
}

func wordCount(words []Word) int { return len(words) }

// IngestResult records a Result against its session: partial results
// upsert the partial map by result id and increment PartialUpdates; a
// stable result appends to the stable list, removes any partial sharing
// its result id, and updates word/speaker/segment counters and rolling
// per-speaker confidence (spec §4.5).
func (s *Store) IngestResult(result Result) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.sessions[result.SessionID]
	if !ok {
		return ErrSessionNotFound
	}

	rec.metrics.ProcessedChunks++
	rec.state.LastUpdate = time.Now()
	rec.state.LastSequence++

	if result.IsPartial {
		rec.partials[result.ResultID] = result
		rec.metrics.PartialUpdates++
		return nil
	}

	delete(rec.partials, result.ResultID)
	rec.stable = append(rec.stable, result)
	rec.metrics.StableSegments += len(result.Segments)
	rec.metrics.TotalWords += wordCount(result.Words)
	rec.metrics.StableWords += wordCount(result.Words)

	for _, seg := range result.Segments {
		if seg.Speaker == "" {
			continue
		}
		rec.state.SpeakersSeen[seg.Speaker] = true
		rec.state.CurrentSpeaker = seg.Speaker

		duration := seg.EndTime - seg.StartTime
		rec.metrics.SpeakerTimes[seg.Speaker] += duration

		profile, ok := rec.speakers[seg.Speaker]
		if !ok {
			profile = &SpeakerProfile{Speaker: seg.Speaker, FirstSeen: time.Now()}
			rec.speakers[seg.Speaker] = profile
		}
		profile.TotalSegments++
		profile.TotalDuration += duration
		// incremental mean: avg_n = avg_{n-1} + (x_n - avg_{n-1}) / n
		profile.AverageConfidence += (seg.Confidence - profile.AverageConfidence) / float64(profile.TotalSegments)
	}

	return nil
}

// Snapshot is the structured view get_session_results returns (spec
// §4.5).
type Snapshot struct {
	SessionID       string
	Duration        time.Duration
	Metrics         SessionMetrics
	StableResults   []Result
	Partials        map[string]Result // nil when not requested
	SpeakerProfiles map[string]SpeakerProfile
}

// GetSessionResults returns a Snapshot for sessionID. When includePartial
// is false, Partials is nil.
func (s *Store) GetSessionResults(sessionID string, includePartial bool) (Snapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.sessions[sessionID]
	if !ok {
		return Snapshot{}, ErrSessionNotFound
	}

	snap := Snapshot{
		SessionID:     sessionID,
		Duration:      time.Since(rec.startTime),
		Metrics:       rec.metrics,
		StableResults: append([]Result(nil), rec.stable...),
	}
	snap.SpeakerProfiles = make(map[string]SpeakerProfile, len(rec.speakers))
	for k, v := range rec.speakers {
		snap.SpeakerProfiles[k] = *v
	}
	if includePartial {
		snap.Partials = make(map[string]Result, len(rec.partials))
		for k, v := range rec.partials {
			snap.Partials[k] = v
		}
	}
	return snap, nil
}

// CleanupSession drops every per-session table for sessionID.
func (s *Store) CleanupSession(sessionID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, sessionID)
}
