package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/qunmoxiao/cybertown/internal/affinity"
	"github.com/qunmoxiao/cybertown/internal/ambient"
	"github.com/qunmoxiao/cybertown/internal/chat"
	"github.com/qunmoxiao/cybertown/internal/gateway"
	"github.com/qunmoxiao/cybertown/internal/hooks"
	"github.com/qunmoxiao/cybertown/internal/keyword"
	"github.com/qunmoxiao/cybertown/internal/memory"
	"github.com/qunmoxiao/cybertown/internal/npc"
	"github.com/qunmoxiao/cybertown/internal/provider"
	"github.com/qunmoxiao/cybertown/internal/quiz"
)

// stubChatter routes on the prompt so one fake serves every caller.
type stubChatter struct{}

func (stubChatter) Chat(_ context.Context, req *provider.ChatRequest) (*provider.ChatResponse, error) {
	prompt := req.Messages[0].Content
	switch {
	case strings.Contains(prompt, "情感分析助手"):
		return &provider.ChatResponse{Content: `{"sentiment": "positive", "delta": 1}`}, nil
	case strings.Contains(prompt, "语义匹配助手"):
		// Only the NPC's reply carries this marker, so a hit proves the
		// matcher was fed the generated text rather than the player's.
		if strings.Contains(prompt, "仗剑天涯") {
			return &provider.ChatResponse{Content: "[0]"}, nil
		}
		return &provider.ChatResponse{Content: "[]"}, nil
	case strings.Contains(prompt, "出题助手"):
		return &provider.ChatResponse{Content: `[{"type":"story","question":"李白年轻时在做什么?","options":["游历","做官","经商","隐居"],"correct":0}]`}, nil
	case strings.Contains(prompt, "对话生成器"):
		return &provider.ChatResponse{Content: `{"老年李白": "a", "青年李白": "b", "中年李白": "c"}`}, nil
	default:
		return &provider.ChatResponse{Content: "我的抱负是仗剑天涯,遍访名山大川。"}, nil
	}
}

// newTestHandler wires a Handler with in-process deps and a stub model.
func newTestHandler(t *testing.T) http.Handler {
	t.Helper()
	logger := zap.NewNop()
	chatter := stubChatter{}

	roster := npc.DefaultRoster()
	memories := memory.NewInMemoryStore()
	engine := affinity.NewEngine(affinity.NewMemStore(), chatter, logger)
	bus := hooks.NewBus(logger)

	registry := gateway.NewRegistry(logger)
	broadcaster := gateway.NewBroadcaster(registry, nil, logger)
	scheduler := ambient.NewScheduler(roster, chatter, broadcaster, bus, time.Hour, logger)
	orchestrator := chat.NewOrchestrator(roster, chatter, memories, engine, bus, scheduler, logger)
	wsHandler := gateway.NewWSHandler(registry, orchestrator, logger)
	matcher := keyword.NewMatcher([]keyword.Quest{
		{ID: "young_libai_ambition", NPC: "青年李白", Groups: []keyword.Group{{"理想", "抱负"}}},
	}, chatter, logger)
	quizzes := quiz.NewGenerator(roster, chatter, memories, logger)

	h := NewHandler(roster, orchestrator, scheduler, engine, memories, matcher, quizzes, broadcaster, wsHandler, logger)
	return h.Router()
}

func postJSON(t *testing.T, ts *httptest.Server, path string, body interface{}) *http.Response {
	t.Helper()
	b, _ := json.Marshal(body)
	resp, err := http.Post(ts.URL+path, "application/json", bytes.NewReader(b))
	if err != nil {
		t.Fatalf("POST %s: %v", path, err)
	}
	return resp
}

func getJSON(t *testing.T, ts *httptest.Server, path string) *http.Response {
	t.Helper()
	resp, err := http.Get(ts.URL + path)
	if err != nil {
		t.Fatalf("GET %s: %v", path, err)
	}
	return resp
}

func decodeJSON(t *testing.T, resp *http.Response, v interface{}) {
	t.Helper()
	defer resp.Body.Close()
	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		t.Fatalf("decode response: %v", err)
	}
}

// --- Tests ---

func TestHealthCheck(t *testing.T) {
	ts := httptest.NewServer(newTestHandler(t))
	defer ts.Close()

	resp := getJSON(t, ts, "/api/health")
	if resp.StatusCode != 200 {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	var body map[string]string
	decodeJSON(t, resp, &body)
	if body["status"] != "ok" {
		t.Errorf("status = %q", body["status"])
	}
}

func TestListAndGetNPCs(t *testing.T) {
	ts := httptest.NewServer(newTestHandler(t))
	defer ts.Close()

	resp := getJSON(t, ts, "/api/npcs")
	if resp.StatusCode != 200 {
		t.Fatalf("list: expected 200, got %d", resp.StatusCode)
	}
	var profiles []*npc.Profile
	decodeJSON(t, resp, &profiles)
	if len(profiles) != 3 {
		t.Fatalf("got %d npcs, want 3", len(profiles))
	}

	resp = getJSON(t, ts, "/api/npcs/青年李白")
	if resp.StatusCode != 200 {
		t.Fatalf("get: expected 200, got %d", resp.StatusCode)
	}
	var p npc.Profile
	decodeJSON(t, resp, &p)
	if p.Name != "青年李白" {
		t.Errorf("name = %q", p.Name)
	}

	resp = getJSON(t, ts, "/api/npcs/杜甫")
	resp.Body.Close()
	if resp.StatusCode != 404 {
		t.Errorf("unknown npc: expected 404, got %d", resp.StatusCode)
	}
}

func TestNPCStatusAndRefresh(t *testing.T) {
	ts := httptest.NewServer(newTestHandler(t))
	defer ts.Close()

	resp := getJSON(t, ts, "/api/npcs/status")
	if resp.StatusCode != 200 {
		t.Fatalf("status: expected 200, got %d", resp.StatusCode)
	}
	var status ambient.Status
	decodeJSON(t, resp, &status)
	if len(status.NPCs) != 3 {
		t.Fatalf("got %d states, want 3", len(status.NPCs))
	}

	resp = postJSON(t, ts, "/api/npcs/status/refresh", nil)
	if resp.StatusCode != 200 {
		t.Fatalf("refresh: expected 200, got %d", resp.StatusCode)
	}
	decodeJSON(t, resp, &status)
	for _, st := range status.NPCs {
		if st.Fallback {
			t.Errorf("%s still fallback after refresh with live model", st.Name)
		}
	}
	if status.LastUpdate.IsZero() {
		t.Error("last_update not set after refresh")
	}
}

func TestChatEndpoint(t *testing.T) {
	ts := httptest.NewServer(newTestHandler(t))
	defer ts.Close()

	// The player message carries no quest keyword; the match must come
	// from the NPC's reply.
	resp := postJSON(t, ts, "/api/chat", map[string]string{
		"npc_name": "青年李白", "player_id": "p1", "message": "你好",
	})
	if resp.StatusCode != 200 {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	var body struct {
		Reply           string           `json:"reply"`
		Degraded        bool             `json:"degraded"`
		Affinity        *affinity.Result `json:"affinity"`
		MatchedKeywords []string         `json:"matched_keywords"`
	}
	decodeJSON(t, resp, &body)
	if body.Reply == "" || body.Degraded {
		t.Errorf("reply=%q degraded=%v", body.Reply, body.Degraded)
	}
	if body.Affinity == nil || body.Affinity.Delta != 1 {
		t.Errorf("affinity = %+v", body.Affinity)
	}
	if len(body.MatchedKeywords) != 1 || body.MatchedKeywords[0] != "理想" {
		t.Errorf("matched = %v", body.MatchedKeywords)
	}

	// Each matched keyword is broadcast as its own envelope.
	resp = getJSON(t, ts, "/api/broadcasts")
	if resp.StatusCode != 200 {
		t.Fatalf("broadcasts: expected 200, got %d", resp.StatusCode)
	}
	var records []gateway.Record
	decodeJSON(t, resp, &records)
	if len(records) != 1 {
		t.Fatalf("got %d broadcast records, want 1", len(records))
	}
	env := records[0].Envelope
	if env.Kind != gateway.KindQuestKeywordMatched {
		t.Fatalf("envelope kind = %q", env.Kind)
	}
	data, ok := env.Data.(map[string]any)
	if !ok {
		t.Fatalf("envelope data = %T", env.Data)
	}
	if data["npc_name"] != "青年李白" || data["quest_id"] != "young_libai_ambition" ||
		data["matched_keyword"] != "理想" || data["content"] != body.Reply {
		t.Errorf("envelope data = %v", data)
	}
}

func TestChatValidation(t *testing.T) {
	ts := httptest.NewServer(newTestHandler(t))
	defer ts.Close()

	resp := postJSON(t, ts, "/api/chat", map[string]string{"npc_name": "青年李白"})
	resp.Body.Close()
	if resp.StatusCode != 400 {
		t.Errorf("empty message: expected 400, got %d", resp.StatusCode)
	}

	resp = postJSON(t, ts, "/api/chat", map[string]string{"npc_name": "杜甫", "message": "你好"})
	resp.Body.Close()
	if resp.StatusCode != 404 {
		t.Errorf("unknown npc: expected 404, got %d", resp.StatusCode)
	}
}

func TestAffinityEndpoints(t *testing.T) {
	ts := httptest.NewServer(newTestHandler(t))
	defer ts.Close()

	resp := getJSON(t, ts, "/api/npcs/青年李白/affinity?player_id=p1")
	if resp.StatusCode != 200 {
		t.Fatalf("get: expected 200, got %d", resp.StatusCode)
	}
	var got map[string]any
	decodeJSON(t, resp, &got)
	if got["score"].(float64) != affinity.DefaultScore {
		t.Errorf("stranger score = %v", got["score"])
	}
	if got["level"] != "熟悉" {
		t.Errorf("level = %v", got["level"])
	}

	resp = postJSON(t, ts, "/api/chat", map[string]string{
		"npc_name": "青年李白", "player_id": "p1", "message": "久仰!",
	})
	resp.Body.Close()

	resp = getJSON(t, ts, "/api/npcs/青年李白/affinity?player_id=p1")
	decodeJSON(t, resp, &got)
	if got["score"].(float64) != affinity.DefaultScore+1 {
		t.Errorf("score after chat = %v", got["score"])
	}

	// PUT clamps out-of-range scores.
	req, _ := http.NewRequest("PUT", ts.URL+"/api/npcs/青年李白/affinity",
		bytes.NewReader([]byte(`{"player_id": "p1", "score": 300}`)))
	req.Header.Set("Content-Type", "application/json")
	putResp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("PUT: %v", err)
	}
	var result affinity.Result
	decodeJSON(t, putResp, &result)
	if result.New != affinity.MaxScore {
		t.Errorf("clamped score = %d", result.New)
	}

	resp = getJSON(t, ts, "/api/affinities")
	if resp.StatusCode != 200 {
		t.Fatalf("list: expected 200, got %d", resp.StatusCode)
	}
	var records []*affinity.Record
	decodeJSON(t, resp, &records)
	if len(records) != 1 {
		t.Errorf("got %d records, want 1", len(records))
	}
}

func TestMemoryEndpoints(t *testing.T) {
	ts := httptest.NewServer(newTestHandler(t))
	defer ts.Close()

	resp := postJSON(t, ts, "/api/chat", map[string]string{
		"npc_name": "老年李白", "player_id": "p1", "message": "晚年过得如何?",
	})
	resp.Body.Close()

	resp = getJSON(t, ts, "/api/npcs/老年李白/memories")
	if resp.StatusCode != 200 {
		t.Fatalf("get: expected 200, got %d", resp.StatusCode)
	}
	var entries []*memory.Entry
	decodeJSON(t, resp, &entries)
	if len(entries) != 2 {
		t.Fatalf("got %d entries, want 2", len(entries))
	}

	req, _ := http.NewRequest("DELETE", ts.URL+"/api/npcs/老年李白/memories", nil)
	delResp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("DELETE: %v", err)
	}
	delResp.Body.Close()
	if delResp.StatusCode != 200 {
		t.Fatalf("delete: expected 200, got %d", delResp.StatusCode)
	}

	resp = getJSON(t, ts, "/api/npcs/老年李白/memories")
	decodeJSON(t, resp, &entries)
	if len(entries) != 0 {
		t.Errorf("got %d entries after clear, want 0", len(entries))
	}

	resp = getJSON(t, ts, "/api/npcs/杜甫/memories")
	resp.Body.Close()
	if resp.StatusCode != 404 {
		t.Errorf("unknown npc: expected 404, got %d", resp.StatusCode)
	}
}

func TestQuizEndpoint(t *testing.T) {
	ts := httptest.NewServer(newTestHandler(t))
	defer ts.Close()

	resp := getJSON(t, ts, "/api/quizzes/generated?npc_name=青年李白&quiz_id=q1&count=3")
	if resp.StatusCode != 200 {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	var q quiz.Quiz
	decodeJSON(t, resp, &q)
	if q.QuizID != "q1" || len(q.Questions) != 1 {
		t.Errorf("quiz = %+v", q)
	}

	resp = getJSON(t, ts, "/api/quizzes/generated?npc_name=青年李白&count=0")
	resp.Body.Close()
	if resp.StatusCode != 400 {
		t.Errorf("zero count: expected 400, got %d", resp.StatusCode)
	}

	resp = getJSON(t, ts, "/api/quizzes/generated?npc_name=杜甫")
	resp.Body.Close()
	if resp.StatusCode != 404 {
		t.Errorf("unknown npc: expected 404, got %d", resp.StatusCode)
	}
}
