package ambient

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/qunmoxiao/cybertown/internal/gateway"
	"github.com/qunmoxiao/cybertown/internal/npc"
	"github.com/qunmoxiao/cybertown/internal/provider"
)

type fakeChatter struct {
	reply string
	err   error
}

func (f *fakeChatter) Chat(context.Context, *provider.ChatRequest) (*provider.ChatResponse, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &provider.ChatResponse{Content: f.reply}, nil
}

type capturingPublisher struct {
	mu        sync.Mutex
	envelopes []*gateway.Envelope
}

func (p *capturingPublisher) Publish(_ context.Context, env *gateway.Envelope) {
	p.mu.Lock()
	p.envelopes = append(p.envelopes, env)
	p.mu.Unlock()
}

func (p *capturingPublisher) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.envelopes)
}

const batchReply = `{"老年李白": "举杯邀明月,对影成三人。", "青年李白": "仗剑去国,辞亲远游!", "中年李白": "仰天大笑出门去,我辈岂是蓬蒿人。"}`

func TestSnapshotSeededWithPresets(t *testing.T) {
	s := NewScheduler(npc.DefaultRoster(), nil, nil, nil, time.Minute, zap.NewNop())

	snap := s.Snapshot()
	if len(snap) != 3 {
		t.Fatalf("snapshot has %d states, want 3", len(snap))
	}
	for _, st := range snap {
		if st.Dialogue == "" {
			t.Errorf("%s has empty dialogue", st.Name)
		}
		if !st.Fallback {
			t.Errorf("%s not marked fallback before first generation", st.Name)
		}
	}
}

func TestForceUpdateWithModel(t *testing.T) {
	pub := &capturingPublisher{}
	s := NewScheduler(npc.DefaultRoster(), &fakeChatter{reply: batchReply}, pub, nil, time.Minute, zap.NewNop())

	s.ForceUpdate(context.Background())

	for _, st := range s.Snapshot() {
		if st.Fallback {
			t.Errorf("%s still marked fallback after successful generation", st.Name)
		}
	}
	if pub.count() != 1 {
		t.Errorf("published %d envelopes, want 1", pub.count())
	}
	pub.mu.Lock()
	kind := pub.envelopes[0].Kind
	pub.mu.Unlock()
	if kind != gateway.KindNPCStatus {
		t.Errorf("envelope kind = %q", kind)
	}
}

func TestForceUpdateFallsBackOnModelError(t *testing.T) {
	s := NewScheduler(npc.DefaultRoster(), &fakeChatter{err: errors.New("down")}, nil, nil, time.Minute, zap.NewNop())

	s.ForceUpdate(context.Background())

	snap := s.Snapshot()
	if len(snap) != 3 {
		t.Fatalf("snapshot has %d states, want 3", len(snap))
	}
	for _, st := range snap {
		if !st.Fallback || st.Dialogue == "" {
			t.Errorf("%s: fallback=%v dialogue=%q", st.Name, st.Fallback, st.Dialogue)
		}
	}
}

func TestForceUpdateFallsBackOnGarbage(t *testing.T) {
	s := NewScheduler(npc.DefaultRoster(), &fakeChatter{reply: "今天大家都很忙"}, nil, nil, time.Minute, zap.NewNop())

	s.ForceUpdate(context.Background())

	for _, st := range s.Snapshot() {
		if !st.Fallback {
			t.Errorf("%s not marked fallback on unparseable output", st.Name)
		}
	}
}

func TestForceUpdateRejectsPartialBatch(t *testing.T) {
	// A prose-wrapped object naming only one character must not leave
	// that one on model output while the others keep presets.
	s := NewScheduler(npc.DefaultRoster(), &fakeChatter{reply: `生成结果:{"老年李白": "举杯邀明月"} 以上。`}, nil, nil, time.Minute, zap.NewNop())

	s.ForceUpdate(context.Background())

	for _, st := range s.Snapshot() {
		if !st.Fallback {
			t.Errorf("%s left on generated dialogue from a partial batch", st.Name)
		}
	}
}

func TestForceUpdateLenientExtraction(t *testing.T) {
	s := NewScheduler(npc.DefaultRoster(), &fakeChatter{reply: "生成结果如下:\n" + batchReply + "\n以上。"}, nil, nil, time.Minute, zap.NewNop())

	s.ForceUpdate(context.Background())

	for _, st := range s.Snapshot() {
		if st.Fallback {
			t.Errorf("%s marked fallback despite extractable JSON", st.Name)
		}
	}
}

func TestStartStopIdempotent(t *testing.T) {
	s := NewScheduler(npc.DefaultRoster(), nil, nil, nil, time.Hour, zap.NewNop())

	if !s.Start() {
		t.Error("first Start reported already running")
	}
	if s.Start() {
		t.Error("second Start did not signal already running")
	}
	s.Stop()
	s.Stop()

	// Restart works after a stop.
	if !s.Start() {
		t.Error("restart after Stop reported already running")
	}
	s.Stop()
}

func TestNoRefreshAfterStop(t *testing.T) {
	pub := &capturingPublisher{}
	s := NewScheduler(npc.DefaultRoster(), &fakeChatter{reply: batchReply}, pub, nil, time.Hour, zap.NewNop())

	s.Start()
	s.Stop()

	// Stop waits for the startup refresh, so the state is populated and
	// the counter is settled before we read it.
	if len(s.Snapshot()) != 3 {
		t.Fatalf("snapshot has %d states, want 3", len(s.Snapshot()))
	}
	settled := pub.count()
	time.Sleep(50 * time.Millisecond)
	if pub.count() != settled {
		t.Errorf("refresh ran after Stop: %d -> %d", settled, pub.count())
	}
}

func TestStatusReportsCountdown(t *testing.T) {
	s := NewScheduler(npc.DefaultRoster(), &fakeChatter{reply: batchReply}, nil, nil, time.Minute, zap.NewNop())

	s.ForceUpdate(context.Background())

	status := s.Status()
	if len(status.NPCs) != 3 {
		t.Fatalf("status has %d npcs, want 3", len(status.NPCs))
	}
	if status.LastUpdate.IsZero() {
		t.Error("last_update not set")
	}
	if status.NextRefreshSec <= 0 || status.NextRefreshSec > 60 {
		t.Errorf("next_refresh_seconds = %d, want (0,60]", status.NextRefreshSec)
	}
}

func TestActivityReportsProfileState(t *testing.T) {
	s := NewScheduler(npc.DefaultRoster(), nil, nil, nil, time.Minute, zap.NewNop())

	location, activity, ok := s.Activity("青年李白")
	if !ok {
		t.Fatal("expected activity for known npc")
	}
	if location == "" || activity == "" {
		t.Errorf("location=%q activity=%q", location, activity)
	}
	if _, _, ok := s.Activity("杜甫"); ok {
		t.Error("unexpected activity for unknown npc")
	}
}

func TestPeriodAt(t *testing.T) {
	cases := []struct {
		hour int
		want Period
	}{
		{7, PeriodMorning}, {11, PeriodMorning}, {12, PeriodNoon},
		{13, PeriodNoon}, {15, PeriodAfternoon}, {19, PeriodEvening}, {2, PeriodEvening},
	}
	for _, c := range cases {
		at := time.Date(2025, 3, 1, c.hour, 0, 0, 0, time.Local)
		if got := PeriodAt(at); got != c.want {
			t.Errorf("PeriodAt(%02d:00) = %s, want %s", c.hour, got, c.want)
		}
	}
}
