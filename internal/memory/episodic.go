package memory

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/qunmoxiao/cybertown/internal/embedding"
	"github.com/qunmoxiao/cybertown/internal/vectorstore"
)

const episodicCollection = "town_episodic"

// EpisodicStore keeps long-term memories as vectors in Qdrant, one point
// per entry, filtered by character on retrieval.
type EpisodicStore struct {
	vectors  *vectorstore.Client
	embedder embedding.Embedder
	logger   *zap.Logger
}

// NewEpisodicStore ensures the collection exists and returns the store.
func NewEpisodicStore(ctx context.Context, vectors *vectorstore.Client, embedder embedding.Embedder, logger *zap.Logger) (*EpisodicStore, error) {
	dim := embedder.Dimension()
	if dim <= 0 {
		return nil, fmt.Errorf("episodic store: embedder reports dimension %d", dim)
	}
	if err := vectors.EnsureCollection(ctx, episodicCollection, uint64(dim)); err != nil {
		return nil, fmt.Errorf("episodic store: %w", err)
	}
	return &EpisodicStore{vectors: vectors, embedder: embedder, logger: logger}, nil
}

// Add embeds the entry content and upserts it as one point.
func (s *EpisodicStore) Add(ctx context.Context, e *Entry) error {
	if e.ID == "" {
		e.ID = uuid.New().String()
	}
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now()
	}
	e.Importance = ClampImportance(e.Importance)

	vecs, err := s.embedder.Embed(ctx, []string{e.Content})
	if err != nil {
		return fmt.Errorf("embed memory: %w", err)
	}

	payload := map[string]string{
		"character_id": e.CharacterID,
		"content":      e.Content,
		"type":         string(e.Type),
		"importance":   strconv.FormatFloat(e.Importance, 'f', 3, 64),
		"timestamp":    e.Timestamp.Format(time.RFC3339),
	}
	for k, v := range e.Metadata {
		payload["meta_"+k] = v
	}
	if err := s.vectors.Upsert(ctx, episodicCollection, e.ID, vecs[0], payload); err != nil {
		return fmt.Errorf("upsert memory: %w", err)
	}
	return nil
}

// Retrieve embeds the query and searches the character's points, then
// applies the importance floor client-side.
func (s *EpisodicStore) Retrieve(ctx context.Context, characterID, query string, types []Type, limit int, minImportance float64) ([]*Entry, error) {
	vecs, err := s.embedder.Embed(ctx, []string{query})
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}

	// Over-fetch so the importance filter still leaves enough results.
	topK := uint64(limit * 3)
	if topK < 10 {
		topK = 10
	}
	hits, err := s.vectors.Search(ctx, episodicCollection, vecs[0], topK,
		map[string]string{"character_id": characterID})
	if err != nil {
		return nil, err
	}

	out := make([]*Entry, 0, limit)
	for _, h := range hits {
		e := entryFromPayload(h.ID, h.Payload)
		if e.Importance < minImportance {
			continue
		}
		out = append(out, e)
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, nil
}

// Recent is not order-indexed in Qdrant; it returns the character's points
// by a neutral search and sorts by timestamp payload.
func (s *EpisodicStore) Recent(ctx context.Context, characterID string, limit int) ([]*Entry, error) {
	// Episodic recency scans are served by the working tier; a vector
	// store has no recency index worth querying here.
	return nil, nil
}

// ClearType removes all of the character's points when t is episodic.
func (s *EpisodicStore) ClearType(ctx context.Context, characterID string, t Type) error {
	if t != TypeEpisodic {
		return nil
	}
	return s.vectors.Delete(ctx, episodicCollection, map[string]string{"character_id": characterID})
}

func entryFromPayload(id string, payload map[string]string) *Entry {
	importance, _ := strconv.ParseFloat(payload["importance"], 64)
	ts, _ := time.Parse(time.RFC3339, payload["timestamp"])
	var meta map[string]string
	for k, v := range payload {
		if len(k) > 5 && k[:5] == "meta_" {
			if meta == nil {
				meta = make(map[string]string)
			}
			meta[k[5:]] = v
		}
	}
	return &Entry{
		ID:          id,
		CharacterID: payload["character_id"],
		Content:     payload["content"],
		Type:        TypeEpisodic,
		Importance:  importance,
		Timestamp:   ts,
		Metadata:    meta,
	}
}
