package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const (
	keyPrefix = "town:memory:"
	// scanWindow bounds how many recent entries one Retrieve call scores.
	scanWindow = 200
	// maxPerCharacter caps the working-memory list length per character.
	maxPerCharacter = 500
)

// RedisStore keeps working memory in per-character Redis lists, newest at
// the head. Entries are JSON blobs; relevance is scored client-side over a
// bounded recent window.
type RedisStore struct {
	rdb    *redis.Client
	logger *zap.Logger
}

// NewRedisStore connects to Redis and verifies the connection.
func NewRedisStore(redisURL string, logger *zap.Logger) (*RedisStore, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	rdb := redis.NewClient(opts)
	if err := rdb.Ping(context.Background()).Err(); err != nil {
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return &RedisStore{rdb: rdb, logger: logger}, nil
}

func listKey(characterID string, t Type) string {
	return keyPrefix + characterID + ":" + string(t)
}

// Add appends one entry to the character's list for its type.
func (s *RedisStore) Add(ctx context.Context, e *Entry) error {
	if e.ID == "" {
		e.ID = uuid.New().String()
	}
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now()
	}
	e.Importance = ClampImportance(e.Importance)

	data, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("marshal entry: %w", err)
	}

	key := listKey(e.CharacterID, e.Type)
	pipe := s.rdb.TxPipeline()
	pipe.LPush(ctx, key, data)
	pipe.LTrim(ctx, key, 0, maxPerCharacter-1)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("append memory: %w", err)
	}
	return nil
}

// Retrieve loads a recent window per requested type, filters by importance
// and ranks by rune-overlap relevance, newest first on ties.
func (s *RedisStore) Retrieve(ctx context.Context, characterID, query string, types []Type, limit int, minImportance float64) ([]*Entry, error) {
	if len(types) == 0 {
		types = []Type{TypeWorking, TypeEpisodic}
	}

	type scored struct {
		e     *Entry
		score float64
	}
	var candidates []scored
	for _, t := range types {
		raws, err := s.rdb.LRange(ctx, listKey(characterID, t), 0, scanWindow-1).Result()
		if err != nil {
			return nil, fmt.Errorf("range %s memory: %w", t, err)
		}
		for _, raw := range raws {
			var e Entry
			if err := json.Unmarshal([]byte(raw), &e); err != nil {
				s.logger.Warn("skipping undecodable memory entry",
					zap.String("character", characterID), zap.Error(err))
				continue
			}
			if e.Importance < minImportance {
				continue
			}
			ec := e
			candidates = append(candidates, scored{e: &ec, score: overlapScore(query, e.Content)})
		}
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

// Recent returns the latest entries across both types, newest first.
func (s *RedisStore) Recent(ctx context.Context, characterID string, limit int) ([]*Entry, error) {
	var all []*Entry
	for _, t := range []Type{TypeWorking, TypeEpisodic} {
		raws, err := s.rdb.LRange(ctx, listKey(characterID, t), 0, int64(limit)-1).Result()
		if err != nil {
			return nil, fmt.Errorf("range %s memory: %w", t, err)
		}
		for _, raw := range raws {
			var e Entry
			if err := json.Unmarshal([]byte(raw), &e); err != nil {
				continue
			}
			ec := e
			all = append(all, &ec)
		}
	}
	sort.SliceStable(all, func(i, j int) bool {
		return all[i].Timestamp.After(all[j].Timestamp)
	})
	if limit > 0 && len(all) > limit {
		all = all[:limit]
	}
	return all, nil
}

// ClearType drops the whole list for one type.
func (s *RedisStore) ClearType(ctx context.Context, characterID string, t Type) error {
	if err := s.rdb.Del(ctx, listKey(characterID, t)).Err(); err != nil {
		return fmt.Errorf("clear %s memory: %w", t, err)
	}
	return nil
}

// Close shuts down the Redis connection.
func (s *RedisStore) Close() error {
	return s.rdb.Close()
}
