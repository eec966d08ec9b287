package memory

import (
	"context"
	"sort"

	"go.uber.org/zap"
)

// TieredStore routes working memories to a fast store and episodic
// memories to the vector-backed store, merging results on retrieval.
// The episodic tier is optional; without it all entries land in the
// working tier.
type TieredStore struct {
	working  Store
	episodic Store
	logger   *zap.Logger
}

// NewTieredStore wires the two tiers together. episodic may be nil.
func NewTieredStore(working, episodic Store, logger *zap.Logger) *TieredStore {
	return &TieredStore{working: working, episodic: episodic, logger: logger}
}

func (s *TieredStore) tierFor(t Type) Store {
	if t == TypeEpisodic && s.episodic != nil {
		return s.episodic
	}
	return s.working
}

// Add stores the entry in the tier matching its type.
func (s *TieredStore) Add(ctx context.Context, e *Entry) error {
	return s.tierFor(e.Type).Add(ctx, e)
}

// Retrieve queries each tier the requested types map to and merges the
// results, best score first per tier order, trimmed to limit. A failing
// episodic tier degrades to working-only results.
func (s *TieredStore) Retrieve(ctx context.Context, characterID, query string, types []Type, limit int, minImportance float64) ([]*Entry, error) {
	if len(types) == 0 {
		types = []Type{TypeWorking, TypeEpisodic}
	}

	var workingTypes, episodicTypes []Type
	for _, t := range types {
		if t == TypeEpisodic && s.episodic != nil {
			episodicTypes = append(episodicTypes, t)
		} else {
			workingTypes = append(workingTypes, t)
		}
	}

	var merged []*Entry
	if len(workingTypes) > 0 {
		entries, err := s.working.Retrieve(ctx, characterID, query, workingTypes, limit, minImportance)
		if err != nil {
			return nil, err
		}
		merged = append(merged, entries...)
	}
	if len(episodicTypes) > 0 {
		entries, err := s.episodic.Retrieve(ctx, characterID, query, episodicTypes, limit, minImportance)
		if err != nil {
			s.logger.Warn("episodic tier unavailable, serving working memory only",
				zap.String("character", characterID), zap.Error(err))
		} else {
			merged = append(merged, entries...)
		}
	}

	sort.SliceStable(merged, func(i, j int) bool {
		return merged[i].Importance > merged[j].Importance
	})
	if limit > 0 && len(merged) > limit {
		merged = merged[:limit]
	}
	return merged, nil
}

// Recent reads recency from the working tier only.
func (s *TieredStore) Recent(ctx context.Context, characterID string, limit int) ([]*Entry, error) {
	return s.working.Recent(ctx, characterID, limit)
}

// ClearType clears the matching tier.
func (s *TieredStore) ClearType(ctx context.Context, characterID string, t Type) error {
	if err := s.working.ClearType(ctx, characterID, t); err != nil {
		return err
	}
	if t == TypeEpisodic && s.episodic != nil {
		return s.episodic.ClearType(ctx, characterID, t)
	}
	return nil
}
