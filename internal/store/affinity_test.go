package store

import (
	"context"
	"testing"
	"time"

	tcpg "github.com/testcontainers/testcontainers-go/modules/postgres"
	"go.uber.org/zap"

	"github.com/qunmoxiao/cybertown/internal/affinity"
)

// startStore spins up a disposable Postgres and migrates it.
func startStore(t *testing.T) *Store {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping container test in short mode")
	}
	ctx := context.Background()

	container, err := tcpg.Run(ctx, "postgres:16-alpine",
		tcpg.WithDatabase("town_test"),
		tcpg.WithUsername("test"),
		tcpg.WithPassword("test"),
		tcpg.BasicWaitStrategies(),
	)
	if err != nil {
		t.Fatalf("start postgres: %v", err)
	}
	t.Cleanup(func() { container.Terminate(ctx) })

	dsn, err := container.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		t.Fatalf("connection string: %v", err)
	}

	s, err := New(dsn, zap.NewNop())
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	t.Cleanup(s.Close)

	if err := s.Migrate(ctx, "../../migrations"); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return s
}

func TestAffinityStoreRoundTrip(t *testing.T) {
	s := startStore(t)
	as := NewAffinityStore(s)
	ctx := context.Background()

	got, err := as.Get(ctx, "青年李白", "p1")
	if err != nil {
		t.Fatalf("Get absent: %v", err)
	}
	if got != nil {
		t.Fatalf("expected nil for unmet pair, got %+v", got)
	}

	r := &affinity.Record{
		CharacterID: "青年李白", CounterpartID: "p1",
		Score: 55, UpdatedAt: time.Now(),
	}
	if err := as.Put(ctx, r); err != nil {
		t.Fatalf("Put: %v", err)
	}

	got, err = as.Get(ctx, "青年李白", "p1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got == nil || got.Score != 55 {
		t.Fatalf("got %+v, want score 55", got)
	}

	// Upsert replaces in place.
	r.Score = 60
	r.UpdatedAt = time.Now()
	if err := as.Put(ctx, r); err != nil {
		t.Fatalf("Put update: %v", err)
	}
	got, _ = as.Get(ctx, "青年李白", "p1")
	if got.Score != 60 {
		t.Errorf("score after upsert = %d, want 60", got.Score)
	}
}

func TestAffinityStoreList(t *testing.T) {
	s := startStore(t)
	as := NewAffinityStore(s)
	ctx := context.Background()
	now := time.Now()

	records := []*affinity.Record{
		{CharacterID: "青年李白", CounterpartID: "p1", Score: 50, UpdatedAt: now},
		{CharacterID: "青年李白", CounterpartID: "p2", Score: 70, UpdatedAt: now},
		{CharacterID: "老年李白", CounterpartID: "p1", Score: 40, UpdatedAt: now},
	}
	for _, r := range records {
		if err := as.Put(ctx, r); err != nil {
			t.Fatalf("Put: %v", err)
		}
	}

	list, err := as.List(ctx, "青年李白")
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(list) != 2 {
		t.Errorf("List returned %d records, want 2", len(list))
	}

	all, err := as.ListAll(ctx)
	if err != nil {
		t.Fatalf("ListAll: %v", err)
	}
	if len(all) != 3 {
		t.Errorf("ListAll returned %d records, want 3", len(all))
	}
}
