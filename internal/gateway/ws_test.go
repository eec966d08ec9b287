package gateway

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

type capturingSink struct {
	mu    sync.Mutex
	lines []*DialogueLine
}

func (s *capturingSink) IngestExternalDialogue(_ context.Context, line *DialogueLine) error {
	s.mu.Lock()
	s.lines = append(s.lines, line)
	s.mu.Unlock()
	return nil
}

func (s *capturingSink) waitFor(t *testing.T, n int) []*DialogueLine {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		s.mu.Lock()
		if len(s.lines) >= n {
			out := make([]*DialogueLine, len(s.lines))
			copy(out, s.lines)
			s.mu.Unlock()
			return out
		}
		s.mu.Unlock()
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("sink never received %d lines", n)
	return nil
}

func dialWS(t *testing.T, ts *httptest.Server) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(ts.URL, "http")
	ws, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	return ws
}

func TestWSHandlerGreetsOnConnect(t *testing.T) {
	registry := NewRegistry(zap.NewNop())
	h := NewWSHandler(registry, nil, zap.NewNop())
	ts := httptest.NewServer(h)
	defer ts.Close()

	ws := dialWS(t, ts)
	defer ws.Close()

	ws.SetReadDeadline(time.Now().Add(2 * time.Second))
	var env Envelope
	if err := ws.ReadJSON(&env); err != nil {
		t.Fatalf("read greeting: %v", err)
	}
	if env.Kind != KindDialogueWSStatus {
		t.Errorf("greeting kind = %q", env.Kind)
	}
	if registry.Count() != 1 {
		t.Errorf("registry count = %d, want 1", registry.Count())
	}
}

func TestWSHandlerInjectsValidLines(t *testing.T) {
	registry := NewRegistry(zap.NewNop())
	sink := &capturingSink{}
	h := NewWSHandler(registry, sink, zap.NewNop())
	ts := httptest.NewServer(h)
	defer ts.Close()

	ws := dialWS(t, ts)
	defer ws.Close()
	ws.SetReadDeadline(time.Now().Add(2 * time.Second))
	var env Envelope
	if err := ws.ReadJSON(&env); err != nil {
		t.Fatalf("read greeting: %v", err)
	}

	line := DialogueLine{NPCName: "青年李白", Speaker: SpeakerPlayer, Content: "久仰", PlayerID: "p1"}
	if err := ws.WriteJSON(line); err != nil {
		t.Fatalf("write: %v", err)
	}

	got := sink.waitFor(t, 1)
	if got[0].NPCName != "青年李白" || got[0].Content != "久仰" {
		t.Errorf("line = %+v", got[0])
	}
	if got[0].Timestamp.IsZero() {
		t.Error("timestamp not defaulted")
	}
}

func TestWSHandlerDropsMalformedLinesButStaysOpen(t *testing.T) {
	registry := NewRegistry(zap.NewNop())
	sink := &capturingSink{}
	h := NewWSHandler(registry, sink, zap.NewNop())
	ts := httptest.NewServer(h)
	defer ts.Close()

	ws := dialWS(t, ts)
	defer ws.Close()
	ws.SetReadDeadline(time.Now().Add(2 * time.Second))
	var env Envelope
	if err := ws.ReadJSON(&env); err != nil {
		t.Fatalf("read greeting: %v", err)
	}

	// Undecodable, then invalid, then valid. Only the last lands.
	if err := ws.WriteMessage(websocket.TextMessage, []byte("not json")); err != nil {
		t.Fatalf("write garbage: %v", err)
	}
	bad, _ := json.Marshal(DialogueLine{NPCName: "青年李白", Speaker: "narrator", Content: "x"})
	if err := ws.WriteMessage(websocket.TextMessage, bad); err != nil {
		t.Fatalf("write invalid: %v", err)
	}
	if err := ws.WriteJSON(DialogueLine{NPCName: "青年李白", Speaker: SpeakerNPC, Content: "有朋自远方来"}); err != nil {
		t.Fatalf("write valid: %v", err)
	}

	got := sink.waitFor(t, 1)
	if len(got) != 1 || got[0].Speaker != SpeakerNPC {
		t.Errorf("lines = %+v", got)
	}
}

func TestWSHandlerUnregistersOnClose(t *testing.T) {
	registry := NewRegistry(zap.NewNop())
	h := NewWSHandler(registry, nil, zap.NewNop())
	ts := httptest.NewServer(h)
	defer ts.Close()

	ws := dialWS(t, ts)
	ws.SetReadDeadline(time.Now().Add(2 * time.Second))
	var env Envelope
	if err := ws.ReadJSON(&env); err != nil {
		t.Fatalf("read greeting: %v", err)
	}
	ws.Close()

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if registry.Count() == 0 {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("registry count = %d after close, want 0", registry.Count())
}
