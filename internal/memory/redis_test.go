package memory

import (
	"context"
	"testing"
	"time"

	tcredis "github.com/testcontainers/testcontainers-go/modules/redis"
	"go.uber.org/zap"
)

func startRedisStore(t *testing.T) *RedisStore {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping container test in short mode")
	}
	ctx := context.Background()

	container, err := tcredis.Run(ctx, "redis:7-alpine")
	if err != nil {
		t.Fatalf("start redis: %v", err)
	}
	t.Cleanup(func() { container.Terminate(ctx) })

	url, err := container.ConnectionString(ctx)
	if err != nil {
		t.Fatalf("connection string: %v", err)
	}

	s, err := NewRedisStore(url, zap.NewNop())
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestRedisStoreRoundTrip(t *testing.T) {
	s := startRedisStore(t)
	ctx := context.Background()
	base := time.Now().Add(-time.Hour).Truncate(time.Second)

	entries := []*Entry{
		{CharacterID: "青年李白", Content: "玩家(p1)说:你的理想是什么", Type: TypeWorking, Importance: 0.5, Timestamp: base},
		{CharacterID: "青年李白", Content: "我回答:愿乘长风破万里浪", Type: TypeWorking, Importance: 0.6, Timestamp: base.Add(time.Minute)},
		{CharacterID: "青年李白", Content: "闲聊一句", Type: TypeWorking, Importance: 0.1, Timestamp: base.Add(2 * time.Minute)},
	}
	for _, e := range entries {
		if err := s.Add(ctx, e); err != nil {
			t.Fatalf("Add: %v", err)
		}
		if e.ID == "" {
			t.Error("expected generated ID")
		}
	}

	got, err := s.Retrieve(ctx, "青年李白", "理想", []Type{TypeWorking}, 5, 0.3)
	if err != nil {
		t.Fatalf("Retrieve: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("got %d entries, want 2 (importance floor)", len(got))
	}
	if got[0].Content != "玩家(p1)说:你的理想是什么" {
		t.Errorf("top entry = %q", got[0].Content)
	}

	recent, err := s.Recent(ctx, "青年李白", 2)
	if err != nil {
		t.Fatalf("Recent: %v", err)
	}
	if len(recent) != 2 {
		t.Fatalf("got %d recent, want 2", len(recent))
	}
	if !recent[0].Timestamp.After(recent[1].Timestamp) {
		t.Error("recent not newest-first")
	}
}

func TestRedisStoreIsolatesCharacters(t *testing.T) {
	s := startRedisStore(t)
	ctx := context.Background()

	if err := s.Add(ctx, &Entry{CharacterID: "青年李白", Content: "甲", Type: TypeWorking, Importance: 0.5}); err != nil {
		t.Fatalf("Add: %v", err)
	}
	if err := s.Add(ctx, &Entry{CharacterID: "老年李白", Content: "乙", Type: TypeWorking, Importance: 0.5}); err != nil {
		t.Fatalf("Add: %v", err)
	}

	got, err := s.Recent(ctx, "老年李白", 10)
	if err != nil {
		t.Fatalf("Recent: %v", err)
	}
	if len(got) != 1 || got[0].Content != "乙" {
		t.Errorf("got %+v", got)
	}
}

func TestRedisStoreClearType(t *testing.T) {
	s := startRedisStore(t)
	ctx := context.Background()

	if err := s.Add(ctx, &Entry{CharacterID: "青年李白", Content: "短期", Type: TypeWorking, Importance: 0.5}); err != nil {
		t.Fatalf("Add: %v", err)
	}
	if err := s.Add(ctx, &Entry{CharacterID: "青年李白", Content: "长期", Type: TypeEpisodic, Importance: 0.8}); err != nil {
		t.Fatalf("Add: %v", err)
	}

	if err := s.ClearType(ctx, "青年李白", TypeWorking); err != nil {
		t.Fatalf("ClearType: %v", err)
	}

	got, err := s.Recent(ctx, "青年李白", 10)
	if err != nil {
		t.Fatalf("Recent: %v", err)
	}
	if len(got) != 1 || got[0].Type != TypeEpisodic {
		t.Errorf("surviving entries = %+v", got)
	}
}
