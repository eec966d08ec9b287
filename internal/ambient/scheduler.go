package ambient

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/qunmoxiao/cybertown/internal/gateway"
	"github.com/qunmoxiao/cybertown/internal/hooks"
	"github.com/qunmoxiao/cybertown/internal/npc"
	"github.com/qunmoxiao/cybertown/internal/provider"
)

// State is one character's current ambient snapshot.
type State struct {
	Name      string    `json:"name"`
	Location  string    `json:"location"`
	Activity  string    `json:"activity"`
	Dialogue  string    `json:"dialogue"`
	Fallback  bool      `json:"fallback"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Chatter is the slice of the provider router the scheduler needs.
type Chatter interface {
	Chat(ctx context.Context, req *provider.ChatRequest) (*provider.ChatResponse, error)
}

// Publisher pushes an envelope to all listeners.
type Publisher interface {
	Publish(ctx context.Context, env *gateway.Envelope)
}

const (
	refreshTimeout  = 30 * time.Second
	defaultInterval = 90 * time.Second
)

// Scheduler periodically refreshes every character's ambient dialogue in
// one batched model call, falling back to the preset table when the
// model is unavailable. Refreshes never overlap.
type Scheduler struct {
	roster    *npc.Roster
	chatter   Chatter
	publisher Publisher
	bus       *hooks.Bus
	interval  time.Duration
	logger    *zap.Logger

	mu          sync.RWMutex
	states      map[string]*State
	lastRefresh time.Time
	nextRefresh time.Time

	runMu   sync.Mutex
	running bool
	cancel  context.CancelFunc
	done    chan struct{}

	refreshMu sync.Mutex // serializes refresh passes
}

// NewScheduler builds a stopped scheduler seeded with preset dialogue so
// Snapshot is never empty. chatter and publisher may be nil.
func NewScheduler(roster *npc.Roster, chatter Chatter, publisher Publisher, bus *hooks.Bus, interval time.Duration, logger *zap.Logger) *Scheduler {
	if interval <= 0 {
		interval = defaultInterval
	}
	s := &Scheduler{
		roster:    roster,
		chatter:   chatter,
		publisher: publisher,
		bus:       bus,
		interval:  interval,
		logger:    logger,
		states:    make(map[string]*State),
	}
	s.applyDialogues(PresetDialogues(PeriodAt(time.Now())), true)
	return s
}

// Start launches the refresh loop. It reports false, without side
// effects, when the scheduler is already running.
func (s *Scheduler) Start() bool {
	s.runMu.Lock()
	defer s.runMu.Unlock()
	if s.running {
		return false
	}
	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	s.done = make(chan struct{})
	s.running = true

	go func() {
		defer close(s.done)
		s.refresh(ctx)
		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.refresh(ctx)
			}
		}
	}()
	s.logger.Info("ambient scheduler started", zap.Duration("interval", s.interval))
	return true
}

// Stop halts the loop and waits for an in-flight refresh to finish.
func (s *Scheduler) Stop() {
	s.runMu.Lock()
	defer s.runMu.Unlock()
	if !s.running {
		return
	}
	s.cancel()
	<-s.done
	s.running = false
	s.logger.Info("ambient scheduler stopped")
}

// ForceUpdate runs one refresh immediately. Errors are absorbed; the
// preset table guarantees a populated snapshot either way.
func (s *Scheduler) ForceUpdate(ctx context.Context) {
	s.refresh(ctx)
}

// Status is the externally visible view of the ambient loop.
type Status struct {
	NPCs           []*State  `json:"npcs"`
	LastUpdate     time.Time `json:"last_update"`
	NextRefreshSec int       `json:"next_refresh_seconds"`
}

// Status reports the current dialogues, the last refresh time and the
// seconds remaining until the next scheduled refresh. Never blocks on a
// refresh in progress.
func (s *Scheduler) Status() *Status {
	states := s.Snapshot()
	s.mu.RLock()
	last, next := s.lastRefresh, s.nextRefresh
	s.mu.RUnlock()

	remaining := int(time.Until(next).Seconds())
	if remaining < 0 {
		remaining = 0
	}
	return &Status{NPCs: states, LastUpdate: last, NextRefreshSec: remaining}
}

// Snapshot returns a copy of every character's current state.
func (s *Scheduler) Snapshot() []*State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*State, 0, len(s.states))
	for _, name := range s.roster.Names() {
		if st, ok := s.states[name]; ok {
			sc := *st
			out = append(out, &sc)
		}
	}
	return out
}

// Activity reports the character's current location and activity.
func (s *Scheduler) Activity(npcName string) (location, activity string, ok bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	st, ok := s.states[npcName]
	if !ok {
		return "", "", false
	}
	return st.Location, st.Activity, true
}

func (s *Scheduler) refresh(ctx context.Context) {
	s.refreshMu.Lock()
	defer s.refreshMu.Unlock()

	dialogues, fallback := s.generate(ctx)
	s.applyDialogues(dialogues, fallback)

	if s.publisher != nil {
		s.publisher.Publish(ctx, gateway.NewEnvelope(gateway.KindNPCStatus, s.Snapshot()))
	}
	if s.bus != nil {
		s.bus.Trigger(ctx, hooks.EventAmbientRefreshed, &hooks.AmbientRefreshed{
			Fallback: fallback,
			Count:    len(dialogues),
			At:       time.Now(),
		})
	}
	s.logger.Info("ambient dialogues refreshed",
		zap.Int("count", len(dialogues)), zap.Bool("fallback", fallback))
}

// generate runs one batched model call. Any failure returns the preset
// table for the current period.
func (s *Scheduler) generate(ctx context.Context) (map[string]string, bool) {
	now := time.Now()
	if s.chatter == nil {
		return PresetDialogues(PeriodAt(now)), true
	}

	ctx, cancel := context.WithTimeout(ctx, refreshTimeout)
	defer cancel()

	resp, err := s.chatter.Chat(ctx, &provider.ChatRequest{
		Messages: []provider.Message{
			{Role: "system", Content: "你是一个游戏NPC对话生成器,擅长创作自然真实的诗人对话,了解李白不同时期的创作风格和人生经历。"},
			{Role: "user", Content: s.buildPrompt(ContextAt(now))},
		},
		Temperature: 0.9,
		MaxTokens:   2000,
	})
	if err != nil {
		s.logger.Warn("batched generation failed, using presets", zap.Error(err))
		return PresetDialogues(PeriodAt(now)), true
	}

	dialogues, ok := s.parse(resp.Content)
	if !ok {
		s.logger.Warn("unparseable batched dialogues, using presets",
			zap.String("raw", truncate(resp.Content, 100)))
		return PresetDialogues(PeriodAt(now)), true
	}
	return dialogues, false
}

func (s *Scheduler) buildPrompt(scene string) string {
	var desc strings.Builder
	for _, p := range s.roster.List() {
		fmt.Fprintf(&desc, "- %s(%s): 在%s%s,性格%s\n",
			p.Name, p.Title, p.Location, p.Activity, p.Personality)
	}

	return fmt.Sprintf(`请为李白三个时期的NPC生成当前的对话或行为描述。

【场景】%s

【NPC信息】
%s
【生成要求】
1. 每个NPC生成1句话(20-40字)
2. 内容要符合角色设定、当前活动和场景氛围
3. 可以是自言自语、创作状态描述、或简单的思考
4. 要自然真实,像真实的诗人李白
5. 可以体现不同时期的性格特点和情绪
6. 可以适当引用或模仿李白的诗句风格
7. 可以适当引用李白在对应时期的经典故事,吸引玩家继续对话
8. 在对话中谈及李白在对应时期有交集的其它人物,吸引玩家继续对话
9. 同一NPC在短时间内的多次发言,内容和表达方式应明显不同,不要重复上一轮的句式或意象
10. 主动推动剧情或心境变化,可以提及新的细节、新的感受或新的动作,而不是简单改写上一轮的话
11. 必须严格按照JSON格式返回

【输出格式】(严格遵守)
{"老年李白": "...", "青年李白": "...", "中年李白": "..."}

请生成(只返回JSON,不要其他内容):`, scene, desc.String())
}

// parse tries strict JSON first, then one extraction of the outermost
// braces. Either way the object must name every character: a partial
// batch would leave some characters on stale presets, mixing generated
// and default dialogue within one refresh.
func (s *Scheduler) parse(raw string) (map[string]string, bool) {
	var dialogues map[string]string
	if err := json.Unmarshal([]byte(raw), &dialogues); err == nil {
		return dialogues, s.complete(dialogues)
	}

	start := strings.Index(raw, "{")
	end := strings.LastIndex(raw, "}")
	if start < 0 || end <= start {
		return nil, false
	}
	if err := json.Unmarshal([]byte(raw[start:end+1]), &dialogues); err != nil {
		return nil, false
	}
	return dialogues, s.complete(dialogues)
}

func (s *Scheduler) complete(dialogues map[string]string) bool {
	for _, name := range s.roster.Names() {
		if dialogues[name] == "" {
			return false
		}
	}
	return true
}

func (s *Scheduler) applyDialogues(dialogues map[string]string, fallback bool) {
	now := time.Now()
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastRefresh = now
	s.nextRefresh = now.Add(s.interval)
	for _, p := range s.roster.List() {
		dialogue, ok := dialogues[p.Name]
		if !ok {
			continue
		}
		s.states[p.Name] = &State{
			Name:      p.Name,
			Location:  p.Location,
			Activity:  p.Activity,
			Dialogue:  dialogue,
			Fallback:  fallback,
			UpdatedAt: now,
		}
	}
}

func truncate(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n]) + "..."
}
