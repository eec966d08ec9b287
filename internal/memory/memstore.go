package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// InMemoryStore keeps entries in process memory. It backs tests and lets
// the service boot when no external store is configured.
type InMemoryStore struct {
	mu      sync.RWMutex
	entries map[string][]*Entry // characterID -> entries, append order
}

// NewInMemoryStore creates an empty in-memory store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{entries: make(map[string][]*Entry)}
}

// Add appends one entry.
func (s *InMemoryStore) Add(_ context.Context, e *Entry) error {
	if e.ID == "" {
		e.ID = uuid.New().String()
	}
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now()
	}
	e.Importance = ClampImportance(e.Importance)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[e.CharacterID] = append(s.entries[e.CharacterID], e)
	return nil
}

// Retrieve scores entries by rune overlap with the query, newest first on
// ties, and returns the top matches above the importance threshold.
func (s *InMemoryStore) Retrieve(_ context.Context, characterID, query string, types []Type, limit int, minImportance float64) ([]*Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	typeSet := make(map[Type]bool, len(types))
	for _, t := range types {
		typeSet[t] = true
	}

	type scored struct {
		e     *Entry
		score float64
	}
	var candidates []scored
	for _, e := range s.entries[characterID] {
		if len(typeSet) > 0 && !typeSet[e.Type] {
			continue
		}
		if e.Importance < minImportance {
			continue
		}
		candidates = append(candidates, scored{e: e, score: overlapScore(query, e.Content)})
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		if candidates[i].score != candidates[j].score {
			return candidates[i].score > candidates[j].score
		}
		return candidates[i].e.Timestamp.After(candidates[j].e.Timestamp)
	})

	if limit > 0 && len(candidates) > limit {
		candidates = candidates[:limit]
	}
	out := make([]*Entry, len(candidates))
	for i, c := range candidates {
		out[i] = c.e
	}
	return out, nil
}

// Recent returns the latest entries, newest first.
func (s *InMemoryStore) Recent(_ context.Context, characterID string, limit int) ([]*Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	all := s.entries[characterID]
	out := make([]*Entry, 0, limit)
	for i := len(all) - 1; i >= 0 && (limit <= 0 || len(out) < limit); i-- {
		out = append(out, all[i])
	}
	return out, nil
}

// ClearType removes all entries of one type for a character.
func (s *InMemoryStore) ClearType(_ context.Context, characterID string, t Type) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	kept := s.entries[characterID][:0]
	for _, e := range s.entries[characterID] {
		if e.Type != t {
			kept = append(kept, e)
		}
	}
	s.entries[characterID] = kept
	return nil
}

// overlapScore counts query runes present in content, a cheap relevance
// proxy that works for CJK text where word splitting is unreliable.
func overlapScore(query, content string) float64 {
	if query == "" {
		return 0
	}
	contentRunes := make(map[rune]bool)
	for _, r := range content {
		contentRunes[r] = true
	}
	var hits, total int
	for _, r := range query {
		if r == ' ' || r == '\n' {
			continue
		}
		total++
		if contentRunes[r] {
			hits++
		}
	}
	if total == 0 {
		return 0
	}
	return float64(hits) / float64(total)
}
