package memory

import (
	"context"
	"time"
)

// Type classifies a memory entry's retention class.
type Type string

const (
	// TypeWorking holds recent conversational turns (short-term).
	TypeWorking Type = "working"
	// TypeEpisodic holds consolidated long-term memories.
	TypeEpisodic Type = "episodic"
)

// Entry is a single append-only memory record.
type Entry struct {
	ID          string            `json:"id"`
	CharacterID string            `json:"character_id"`
	Content     string            `json:"content"`
	Type        Type              `json:"type"`
	Importance  float64           `json:"importance"`
	Timestamp   time.Time         `json:"timestamp"`
	Metadata    map[string]string `json:"metadata,omitempty"`
}

// Store is the memory collaborator boundary. Entries are appended and
// queried, never mutated in place.
type Store interface {
	// Add appends one entry. Importance is clamped to [0,1].
	Add(ctx context.Context, e *Entry) error
	// Retrieve returns up to limit entries of the given types relevant to
	// query, filtered to importance >= minImportance. Result order is
	// retrieval relevance, not strictly chronological.
	Retrieve(ctx context.Context, characterID, query string, types []Type, limit int, minImportance float64) ([]*Entry, error)
	// Recent returns the latest entries for a character, newest first.
	Recent(ctx context.Context, characterID string, limit int) ([]*Entry, error)
	// ClearType removes all entries of one type for a character.
	ClearType(ctx context.Context, characterID string, t Type) error
}

// ClampImportance bounds an importance value to [0,1].
func ClampImportance(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
