package affinity

import (
	"context"
	"sync"
	"time"
)

// Record is one stored relationship score between a character and a
// counterpart, usually a player.
type Record struct {
	CharacterID   string    `json:"character_id"`
	CounterpartID string    `json:"counterpart_id"`
	Score         int       `json:"score"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// Store persists affinity records.
type Store interface {
	// Get returns the record, or nil when the pair has never met.
	Get(ctx context.Context, characterID, counterpartID string) (*Record, error)
	// Put inserts or replaces the record.
	Put(ctx context.Context, r *Record) error
	// List returns every record for the character.
	List(ctx context.Context, characterID string) ([]*Record, error)
	// ListAll returns every record in the store.
	ListAll(ctx context.Context) ([]*Record, error)
}

// MemStore is the in-process Store used when Postgres is unavailable and
// in tests.
type MemStore struct {
	mu      sync.RWMutex
	records map[string]*Record
}

// NewMemStore creates an empty MemStore.
func NewMemStore() *MemStore {
	return &MemStore{records: make(map[string]*Record)}
}

func pairKey(characterID, counterpartID string) string {
	return characterID + "\x00" + counterpartID
}

func (s *MemStore) Get(ctx context.Context, characterID, counterpartID string) (*Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.records[pairKey(characterID, counterpartID)]
	if !ok {
		return nil, nil
	}
	rc := *r
	return &rc, nil
}

func (s *MemStore) Put(ctx context.Context, r *Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rc := *r
	s.records[pairKey(r.CharacterID, r.CounterpartID)] = &rc
	return nil
}

func (s *MemStore) List(ctx context.Context, characterID string) ([]*Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*Record
	for _, r := range s.records {
		if r.CharacterID == characterID {
			rc := *r
			out = append(out, &rc)
		}
	}
	return out, nil
}

func (s *MemStore) ListAll(ctx context.Context) ([]*Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*Record, 0, len(s.records))
	for _, r := range s.records {
		rc := *r
		out = append(out, &rc)
	}
	return out, nil
}
