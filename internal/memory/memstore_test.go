package memory

import (
	"context"
	"testing"
	"time"
)

func seedStore(t *testing.T) *InMemoryStore {
	t.Helper()
	s := NewInMemoryStore()
	ctx := context.Background()
	base := time.Now().Add(-time.Hour)

	entries := []*Entry{
		{CharacterID: "青年李白", Content: "玩家(p1)说:你的理想是什么", Type: TypeWorking, Importance: 0.5, Timestamp: base},
		{CharacterID: "青年李白", Content: "我回答:愿乘长风破万里浪", Type: TypeWorking, Importance: 0.6, Timestamp: base.Add(time.Minute)},
		{CharacterID: "青年李白", Content: "玩家(p1)说:今天天气不错", Type: TypeWorking, Importance: 0.2, Timestamp: base.Add(2 * time.Minute)},
		{CharacterID: "老年李白", Content: "玩家(p2)说:你的理想呢", Type: TypeWorking, Importance: 0.5, Timestamp: base.Add(3 * time.Minute)},
	}
	for _, e := range entries {
		if err := s.Add(ctx, e); err != nil {
			t.Fatalf("Add: %v", err)
		}
	}
	return s
}

func TestAddAssignsIDAndTimestamp(t *testing.T) {
	s := NewInMemoryStore()
	e := &Entry{CharacterID: "青年李白", Content: "测试", Type: TypeWorking, Importance: 0.5}
	if err := s.Add(context.Background(), e); err != nil {
		t.Fatalf("Add: %v", err)
	}
	if e.ID == "" {
		t.Error("expected generated ID")
	}
	if e.Timestamp.IsZero() {
		t.Error("expected default timestamp")
	}
}

func TestRetrieveFiltersByImportance(t *testing.T) {
	s := seedStore(t)

	entries, err := s.Retrieve(context.Background(), "青年李白", "理想", []Type{TypeWorking}, 5, 0.3)
	if err != nil {
		t.Fatalf("Retrieve: %v", err)
	}
	for _, e := range entries {
		if e.Importance < 0.3 {
			t.Errorf("entry %q below floor: %.2f", e.Content, e.Importance)
		}
	}
	if len(entries) != 2 {
		t.Errorf("got %d entries, want 2", len(entries))
	}
}

func TestRetrieveDoesNotLeakAcrossCharacters(t *testing.T) {
	s := seedStore(t)

	entries, err := s.Retrieve(context.Background(), "老年李白", "理想", []Type{TypeWorking}, 5, 0)
	if err != nil {
		t.Fatalf("Retrieve: %v", err)
	}
	for _, e := range entries {
		if e.CharacterID != "老年李白" {
			t.Errorf("leaked entry from %q", e.CharacterID)
		}
	}
	if len(entries) != 1 {
		t.Errorf("got %d entries, want 1", len(entries))
	}
}

func TestRetrieveRanksByRelevance(t *testing.T) {
	s := seedStore(t)

	entries, err := s.Retrieve(context.Background(), "青年李白", "你的理想是什么", nil, 1, 0)
	if err != nil {
		t.Fatalf("Retrieve: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("got %d entries, want 1", len(entries))
	}
	if entries[0].Content != "玩家(p1)说:你的理想是什么" {
		t.Errorf("top entry = %q", entries[0].Content)
	}
}

func TestRecentNewestFirst(t *testing.T) {
	s := seedStore(t)

	entries, err := s.Recent(context.Background(), "青年李白", 2)
	if err != nil {
		t.Fatalf("Recent: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("got %d entries, want 2", len(entries))
	}
	if !entries[0].Timestamp.After(entries[1].Timestamp) {
		t.Error("entries not newest-first")
	}
}

func TestClearType(t *testing.T) {
	s := seedStore(t)
	ctx := context.Background()

	if err := s.Add(ctx, &Entry{CharacterID: "青年李白", Content: "往事", Type: TypeEpisodic, Importance: 0.8}); err != nil {
		t.Fatalf("Add: %v", err)
	}
	if err := s.ClearType(ctx, "青年李白", TypeWorking); err != nil {
		t.Fatalf("ClearType: %v", err)
	}

	entries, err := s.Recent(ctx, "青年李白", 10)
	if err != nil {
		t.Fatalf("Recent: %v", err)
	}
	if len(entries) != 1 || entries[0].Type != TypeEpisodic {
		t.Errorf("expected only the episodic entry to survive, got %d", len(entries))
	}
}

func TestClampImportance(t *testing.T) {
	cases := []struct{ in, want float64 }{
		{-1, 0}, {0, 0}, {0.5, 0.5}, {1, 1}, {2, 1},
	}
	for _, c := range cases {
		if got := ClampImportance(c.in); got != c.want {
			t.Errorf("ClampImportance(%v) = %v, want %v", c.in, got, c.want)
		}
	}
}
