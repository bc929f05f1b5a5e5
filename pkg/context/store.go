package context

import (
	stdcontext "context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/lokutor-ai/assist-core/pkg/bus"
	"github.com/lokutor-ai/assist-core/pkg/logging"
)

// Store holds ContextEntry records keyed by id with source/tag/reference
// secondary indexes, maintained atomically alongside the primary table
// (spec §4.6 C6, grounded on original_source's ContextManager).
type Store struct {
	mu      sync.RWMutex
	cfg     Config
	entries map[string]*Entry
	bySource map[Source]map[string]struct{}
	byTag    map[string]map[string]struct{}
	byRef    map[string]map[string]struct{}

	bus    *bus.Bus
	logger logging.Logger

	stopSweep stdcontext.CancelFunc
}

// NewStore constructs a Store. A nil eventBus/logger disables publishing
// and logging respectively.
func NewStore(cfg Config, eventBus *bus.Bus, logger logging.Logger) *Store {
	if logger == nil {
		logger = logging.NoOp{}
	}
	return &Store{
		cfg:      cfg,
		entries:  make(map[string]*Entry),
		bySource: make(map[Source]map[string]struct{}),
		byTag:    make(map[string]map[string]struct{}),
		byRef:    make(map[string]map[string]struct{}),
		bus:      eventBus,
		logger:   logger,
	}
}

// Add stores a new entry, assigning it a generated id, and returns it.
// Fails if metadata.Source is not in the store's enabled set (spec §4.6).
func (s *Store) Add(content any, metadata Metadata) (*Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cfg.EnabledSources != nil && !s.cfg.EnabledSources[metadata.Source] {
		return nil, ErrSourceDisabled
	}

	if metadata.Timestamp.IsZero() {
		metadata.Timestamp = time.Now()
	}
	if metadata.State == "" {
		metadata.State = StateActive
	}
	if metadata.Tags == nil {
		metadata.Tags = map[string]struct{}{}
	}
	if metadata.References == nil {
		metadata.References = map[string]struct{}{}
	}

	entry := &Entry{ID: uuid.New().String(), Content: content, Metadata: metadata}

	if s.cfg.MaxEntries > 0 && len(s.entries) >= s.cfg.MaxEntries {
		s.archiveOldestLocked()
	}

	s.storeLocked(entry)
	s.publish("add", entry.ID, string(metadata.Source))
	return entry, nil
}

func (s *Store) storeLocked(entry *Entry) {
	s.entries[entry.ID] = entry
	s.indexLocked(entry)
}

func (s *Store) indexLocked(entry *Entry) {
	if s.bySource[entry.Metadata.Source] == nil {
		s.bySource[entry.Metadata.Source] = make(map[string]struct{})
	}
	s.bySource[entry.Metadata.Source][entry.ID] = struct{}{}

	for tag := range entry.Metadata.Tags {
		if s.byTag[tag] == nil {
			s.byTag[tag] = make(map[string]struct{})
		}
		s.byTag[tag][entry.ID] = struct{}{}
	}
	for ref := range entry.Metadata.References {
		if s.byRef[ref] == nil {
			s.byRef[ref] = make(map[string]struct{})
		}
		s.byRef[ref][entry.ID] = struct{}{}
	}
}

func (s *Store) deindexLocked(entry *Entry) {
	if set := s.bySource[entry.Metadata.Source]; set != nil {
		delete(set, entry.ID)
	}
	for tag := range entry.Metadata.Tags {
		if set := s.byTag[tag]; set != nil {
			delete(set, entry.ID)
		}
	}
	for ref := range entry.Metadata.References {
		if set := s.byRef[ref]; set != nil {
			delete(set, entry.ID)
		}
	}
}

// Get returns entries matching query, intersected across every supplied
// filter dimension, sorted by timestamp descending and capped at
// query.Limit when positive (spec §4.6).
func (s *Store) Get(query Query) []*Entry {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := make(map[string]struct{}, len(s.entries))
	for id := range s.entries {
		ids[id] = struct{}{}
	}

	if len(query.Sources) > 0 {
		matched := make(map[string]struct{})
		for _, src := range query.Sources {
			for id := range s.bySource[src] {
				matched[id] = struct{}{}
			}
		}
		ids = intersect(ids, matched)
	}

	if len(query.Tags) > 0 {
		matched := make(map[string]struct{})
		for _, tag := range query.Tags {
			for id := range s.byTag[tag] {
				matched[id] = struct{}{}
			}
		}
		ids = intersect(ids, matched)
	}

	if len(query.Levels) > 0 {
		levelSet := make(map[Level]struct{}, len(query.Levels))
		for _, l := range query.Levels {
			levelSet[l] = struct{}{}
		}
		for id := range ids {
			if _, ok := levelSet[s.entries[id].Metadata.Level]; !ok {
				delete(ids, id)
			}
		}
	}

	if len(query.States) > 0 {
		stateSet := make(map[State]struct{}, len(query.States))
		for _, st := range query.States {
			stateSet[st] = struct{}{}
		}
		for id := range ids {
			if _, ok := stateSet[s.entries[id].Metadata.State]; !ok {
				delete(ids, id)
			}
		}
	}

	if query.StartTime != nil || query.EndTime != nil {
		for id := range ids {
			ts := s.entries[id].Metadata.Timestamp
			if query.StartTime != nil && ts.Before(*query.StartTime) {
				delete(ids, id)
			}
			if query.EndTime != nil && ts.After(*query.EndTime) {
				delete(ids, id)
			}
		}
	}

	results := make([]*Entry, 0, len(ids))
	for id := range ids {
		results = append(results, s.entries[id])
	}
	sort.Slice(results, func(i, j int) bool {
		return results[i].Metadata.Timestamp.After(results[j].Metadata.Timestamp)
	})

	if query.Limit > 0 && len(results) > query.Limit {
		results = results[:query.Limit]
	}
	return results
}

func intersect(a, b map[string]struct{}) map[string]struct{} {
	out := make(map[string]struct{})
	for id := range a {
		if _, ok := b[id]; ok {
			out[id] = struct{}{}
		}
	}
	return out
}

// Update applies a content and/or metadata change to an existing entry,
// re-indexing it (spec §4.6 "add/remove operations maintain every index
// atomically" applies equally to re-indexing on update).
func (s *Store) Update(id string, content *any, metadataUpdates func(*Metadata)) (*Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.entries[id]
	if !ok {
		return nil, ErrNotFound
	}

	s.deindexLocked(entry)

	if content != nil {
		entry.Content = *content
	}
	if metadataUpdates != nil {
		metadataUpdates(&entry.Metadata)
	}
	entry.Metadata.Timestamp = time.Now()

	s.indexLocked(entry)
	s.publish("update", id, string(entry.Metadata.Source))
	return entry, nil
}

// Remove deletes an entry and removes it from every index.
func (s *Store) Remove(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.removeLocked(id)
}

func (s *Store) removeLocked(id string) error {
	entry, ok := s.entries[id]
	if !ok {
		return ErrNotFound
	}
	s.deindexLocked(entry)
	delete(s.entries, id)
	s.publish("remove", id, string(entry.Metadata.Source))
	return nil
}

// Merge combines the entries named by ids into one new entry using
// strategy, stores the result, and returns it (spec §4.6 Merge). The
// source entries are left untouched.
func (s *Store) Merge(ids []string, strategy Strategy) (*Entry, error) {
	if len(ids) == 0 {
		return nil, ErrEmptyMerge
	}

	s.mu.Lock()
	sources := make([]*Entry, 0, len(ids))
	for _, id := range ids {
		e, ok := s.entries[id]
		if !ok {
			s.mu.Unlock()
			return nil, ErrNotFound
		}
		sources = append(sources, e)
	}
	s.mu.Unlock()

	switch strategy {
	case LatestWins, CombineAll, PriorityBased:
	default:
		return nil, ErrUnknownStrategy
	}

	// A single-element merge returns that element unchanged, with no new
	// ID or timestamp minted (matches original_source/src/context/utils.py
	// merge_entries's `if len(entries) == 1: return entries[0]`).
	if len(sources) == 1 {
		return sources[0], nil
	}

	var merged *Entry
	var err error
	switch strategy {
	case LatestWins:
		merged, err = mergeLatestWins(sources)
	case CombineAll:
		merged, err = mergeCombineAll(sources)
	case PriorityBased:
		merged, err = mergePriorityBased(sources)
	}
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	s.storeLocked(merged)
	s.publish("merge", merged.ID, string(merged.Metadata.Source))
	s.mu.Unlock()
	return merged, nil
}

// mergeLatestWins takes the newest entry's content and metadata, unioning
// tags and references across all sources.
func mergeLatestWins(sources []*Entry) (*Entry, error) {
	newest := newestOf(sources)
	meta := newest.Metadata
	meta.Tags = unionAllTags(sources)
	meta.References = unionAllRefs(sources)
	meta.Timestamp = time.Now()
	return &Entry{ID: uuid.New().String(), Content: newest.Content, Metadata: meta}, nil
}

// mergeCombineAll deep-merges map contents key by key, or concatenates
// stringified contents with newlines when not every content is a map.
// Level becomes the maximum across sources, state is forced ACTIVE,
// tags/refs are unioned, and custom_data is merged key by key.
func mergeCombineAll(sources []*Entry) (*Entry, error) {
	allMaps := true
	for _, e := range sources {
		if _, ok := e.Content.(map[string]any); !ok {
			allMaps = false
			break
		}
	}

	var content any
	if allMaps {
		var deepMerge func(dst, src map[string]any)
		deepMerge = func(dst, src map[string]any) {
			for k, v := range src {
				if sv, ok := v.(map[string]any); ok {
					dv, ok := dst[k].(map[string]any)
					if !ok {
						dv = make(map[string]any, len(sv))
						dst[k] = dv
					}
					deepMerge(dv, sv)
					continue
				}
				dst[k] = v
			}
		}
		combined := make(map[string]any)
		for _, e := range sources {
			deepMerge(combined, e.Content.(map[string]any))
		}
		content = combined
	} else {
		parts := make([]string, 0, len(sources))
		for _, e := range sources {
			parts = append(parts, fmt.Sprintf("%v", e.Content))
		}
		content = strings.Join(parts, "\n")
	}

	maxLevel := sources[0].Metadata.Level
	customData := make(map[string]any)
	for _, e := range sources {
		if e.Metadata.Level > maxLevel {
			maxLevel = e.Metadata.Level
		}
		for k, v := range e.Metadata.CustomData {
			customData[k] = v
		}
	}

	meta := Metadata{
		Source:     sources[0].Metadata.Source,
		Level:      maxLevel,
		State:      StateActive,
		Timestamp:  time.Now(),
		Tags:       unionAllTags(sources),
		References: unionAllRefs(sources),
		CustomData: customData,
	}
	return &Entry{ID: uuid.New().String(), Content: content, Metadata: meta}, nil
}

// mergePriorityBased takes the highest-level entry's content and
// metadata, unioning tags and references across all sources.
func mergePriorityBased(sources []*Entry) (*Entry, error) {
	best := sources[0]
	for _, e := range sources[1:] {
		if e.Metadata.Level > best.Metadata.Level {
			best = e
		}
	}
	meta := best.Metadata
	meta.Tags = unionAllTags(sources)
	meta.References = unionAllRefs(sources)
	meta.Timestamp = time.Now()
	return &Entry{ID: uuid.New().String(), Content: best.Content, Metadata: meta}, nil
}

func newestOf(sources []*Entry) *Entry {
	newest := sources[0]
	for _, e := range sources[1:] {
		if e.Metadata.Timestamp.After(newest.Metadata.Timestamp) {
			newest = e
		}
	}
	return newest
}

func unionAllTags(sources []*Entry) map[string]struct{} {
	out := make(map[string]struct{})
	for _, e := range sources {
		out = unionStringSets(out, e.Metadata.Tags)
	}
	return out
}

func unionAllRefs(sources []*Entry) map[string]struct{} {
	out := make(map[string]struct{})
	for _, e := range sources {
		out = unionStringSets(out, e.Metadata.References)
	}
	return out
}

func (s *Store) publish(action, id, source string) {
	if s.bus == nil {
		return
	}
	s.bus.Publish(bus.New(bus.ContextUpdate, map[string]any{
		"action":   action,
		"entry_id": id,
		"source":   source,
	}))
}

// archiveOldestLocked removes the oldest entries, whatever their state,
// from the store and from every index until the store is back under
// MaxEntries (spec §4.6 Archival). Each entry's State is set to ARCHIVED
// just before it is deleted; archived entries are not retained, so no
// query returns them. No-op if AutoArchive is disabled.
func (s *Store) archiveOldestLocked() {
	if !s.cfg.AutoArchive {
		return
	}

	ordered := make([]*Entry, 0, len(s.entries))
	for _, e := range s.entries {
		ordered = append(ordered, e)
	}
	sort.Slice(ordered, func(i, j int) bool {
		return ordered[i].Metadata.Timestamp.Before(ordered[j].Metadata.Timestamp)
	})

	for _, e := range ordered {
		if len(s.entries) < s.cfg.MaxEntries {
			return
		}
		e.Metadata.State = StateArchived
		_ = s.removeLocked(e.ID)
	}
}

// RunSweep removes entries past RetentionPeriod or their individual
// expiry, once. StartSweepLoop wraps this in a periodic background
// goroutine (spec §4.6: "a background sweep additionally removes entries
// past retention_period or their individual expiry").
func (s *Store) RunSweep() {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	var cutoff time.Time
	if s.cfg.RetentionPeriod > 0 {
		cutoff = now.Add(-s.cfg.RetentionPeriod)
	}

	for id, e := range s.entries {
		if s.cfg.RetentionPeriod > 0 && e.Metadata.Timestamp.Before(cutoff) {
			_ = s.removeLocked(id)
			continue
		}
		if e.Metadata.Expiry != nil && now.After(*e.Metadata.Expiry) {
			_ = s.removeLocked(id)
		}
	}
}

// StartSweepLoop runs RunSweep every interval until ctx is cancelled.
func (s *Store) StartSweepLoop(ctx stdcontext.Context, interval time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				s.RunSweep()
			case <-ctx.Done():
				return
			}
		}
	}()
}
