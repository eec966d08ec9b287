package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/qunmoxiao/cybertown/internal/affinity"
)

// AffinityStore implements affinity.Store on the shared Postgres pool.
type AffinityStore struct {
	s *Store
}

// NewAffinityStore returns the Postgres-backed affinity store.
func NewAffinityStore(s *Store) *AffinityStore {
	return &AffinityStore{s: s}
}

func (a *AffinityStore) Get(ctx context.Context, characterID, counterpartID string) (*affinity.Record, error) {
	row := a.s.pool.QueryRow(ctx,
		`SELECT character_id, counterpart_id, score, updated_at
		 FROM affinities WHERE character_id=$1 AND counterpart_id=$2`,
		characterID, counterpartID)

	var r affinity.Record
	err := row.Scan(&r.CharacterID, &r.CounterpartID, &r.Score, &r.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get affinity: %w", err)
	}
	return &r, nil
}

func (a *AffinityStore) Put(ctx context.Context, r *affinity.Record) error {
	_, err := a.s.pool.Exec(ctx,
		`INSERT INTO affinities (character_id, counterpart_id, score, updated_at)
		 VALUES ($1, $2, $3, $4)
		 ON CONFLICT (character_id, counterpart_id)
		 DO UPDATE SET score=EXCLUDED.score, updated_at=EXCLUDED.updated_at`,
		r.CharacterID, r.CounterpartID, r.Score, r.UpdatedAt)
	if err != nil {
		return fmt.Errorf("upsert affinity: %w", err)
	}
	return nil
}

func (a *AffinityStore) List(ctx context.Context, characterID string) ([]*affinity.Record, error) {
	return a.query(ctx,
		`SELECT character_id, counterpart_id, score, updated_at
		 FROM affinities WHERE character_id=$1 ORDER BY updated_at DESC`, characterID)
}

func (a *AffinityStore) ListAll(ctx context.Context) ([]*affinity.Record, error) {
	return a.query(ctx,
		`SELECT character_id, counterpart_id, score, updated_at
		 FROM affinities ORDER BY character_id, counterpart_id`)
}

func (a *AffinityStore) query(ctx context.Context, sql string, args ...any) ([]*affinity.Record, error) {
	rows, err := a.s.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("query affinities: %w", err)
	}
	defer rows.Close()

	var out []*affinity.Record
	for rows.Next() {
		var r affinity.Record
		if err := rows.Scan(&r.CharacterID, &r.CounterpartID, &r.Score, &r.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan affinity: %w", err)
		}
		out = append(out, &r)
	}
	return out, rows.Err()
}
