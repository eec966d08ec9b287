package chat

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/qunmoxiao/cybertown/internal/affinity"
	"github.com/qunmoxiao/cybertown/internal/gateway"
	"github.com/qunmoxiao/cybertown/internal/hooks"
	"github.com/qunmoxiao/cybertown/internal/memory"
	"github.com/qunmoxiao/cybertown/internal/npc"
	"github.com/qunmoxiao/cybertown/internal/provider"
)

// FallbackReply is spoken when the model cannot answer in time.
const FallbackReply = "抱歉,我现在有点忙,等会儿再聊吧。"

// Retrieval tuning for one turn.
const (
	memoryLimit         = 5
	memoryMinImportance = 0.3
	playerImportance    = 0.5
	npcImportance       = 0.6
	generateTimeout     = 60 * time.Second
)

// ErrUnknownNPC is returned when the named character does not exist.
var ErrUnknownNPC = fmt.Errorf("unknown npc")

// Chatter is the slice of the provider router the orchestrator needs.
type Chatter interface {
	Chat(ctx context.Context, req *provider.ChatRequest) (*provider.ChatResponse, error)
}

// ActivitySource reports what a character is currently doing, fed by the
// ambient scheduler. May be nil.
type ActivitySource interface {
	Activity(npcName string) (location, activity string, ok bool)
}

// Request is one player utterance aimed at a character.
type Request struct {
	NPCName  string `json:"npc_name"`
	PlayerID string `json:"player_id"`
	Message  string `json:"message"`
}

// Response is the character's side of the exchange.
type Response struct {
	NPCName  string           `json:"npc_name"`
	Reply    string           `json:"reply"`
	Degraded bool             `json:"degraded"`
	Affinity *affinity.Result `json:"affinity,omitempty"`
}

// Orchestrator runs chat turns: affinity lookup, memory retrieval,
// prompt assembly, generation, then affinity and memory writes. A model
// failure degrades to FallbackReply; the turn still persists and fires
// hooks.
type Orchestrator struct {
	roster   *npc.Roster
	chatter  Chatter
	memories memory.Store
	engine   *affinity.Engine
	bus      *hooks.Bus
	activity ActivitySource
	logger   *zap.Logger
}

// NewOrchestrator wires the chat pipeline together.
func NewOrchestrator(roster *npc.Roster, chatter Chatter, memories memory.Store, engine *affinity.Engine, bus *hooks.Bus, activity ActivitySource, logger *zap.Logger) *Orchestrator {
	return &Orchestrator{
		roster:   roster,
		chatter:  chatter,
		memories: memories,
		engine:   engine,
		bus:      bus,
		activity: activity,
		logger:   logger,
	}
}

// Chat runs one full turn.
func (o *Orchestrator) Chat(ctx context.Context, req *Request) (*Response, error) {
	profile, ok := o.roster.Get(req.NPCName)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownNPC, req.NPCName)
	}
	if req.Message == "" {
		return nil, fmt.Errorf("empty message")
	}
	if req.PlayerID == "" {
		req.PlayerID = "anonymous"
	}

	o.bus.Trigger(ctx, hooks.EventBeforeChat, &hooks.BeforeChat{
		NPCName:  req.NPCName,
		PlayerID: req.PlayerID,
		Message:  req.Message,
		At:       time.Now(),
	})

	score, err := o.engine.Get(ctx, req.NPCName, req.PlayerID)
	if err != nil {
		o.logger.Warn("affinity lookup failed, assuming default",
			zap.String("npc", req.NPCName), zap.Error(err))
		score = affinity.DefaultScore
	}
	band := affinity.BandFor(score)

	entries, err := o.memories.Retrieve(ctx, req.NPCName, req.Message,
		[]memory.Type{memory.TypeWorking, memory.TypeEpisodic},
		memoryLimit, memoryMinImportance)
	if err != nil {
		o.logger.Warn("memory retrieval failed, chatting without context",
			zap.String("npc", req.NPCName), zap.Error(err))
		entries = nil
	}

	messages := o.assemble(profile, band, score, entries, req)

	reply, degraded := o.generate(ctx, messages)

	// The turn is scored with whatever reply was actually shown, fallback
	// included, so relationship state matches what the player saw.
	result, err := o.engine.AnalyzeAndUpdate(ctx, req.NPCName, req.PlayerID, req.Message, reply)
	if err != nil {
		o.logger.Warn("affinity update failed",
			zap.String("npc", req.NPCName), zap.Error(err))
		result = nil
	}

	o.persistTurn(ctx, req, reply, result)

	o.bus.Trigger(ctx, hooks.EventAfterChat, &hooks.AfterChat{
		NPCName:  req.NPCName,
		PlayerID: req.PlayerID,
		Message:  req.Message,
		Reply:    reply,
		Degraded: degraded,
		At:       time.Now(),
	})

	if result != nil && result.Changed {
		o.bus.Trigger(ctx, hooks.EventAffinityChange, &hooks.AffinityChange{
			NPCName:   req.NPCName,
			PlayerID:  req.PlayerID,
			Old:       result.Old,
			New:       result.New,
			Delta:     result.Delta,
			Sentiment: result.Sentiment,
			At:        time.Now(),
		})
	}

	return &Response{
		NPCName:  req.NPCName,
		Reply:    reply,
		Degraded: degraded,
		Affinity: result,
	}, nil
}

// assemble builds the message list: role prompt with tone modifier and
// knowledge guard in the system slot, memory digest and the player's
// line as the user turn.
func (o *Orchestrator) assemble(profile *npc.Profile, band affinity.Band, score int, entries []*memory.Entry, req *Request) []provider.Message {
	var system strings.Builder
	system.WriteString(profile.SystemPrompt())

	fmt.Fprintf(&system, "\n\n【当前与玩家的关系】好感度 %d(%s)。对话语气要求:%s。",
		score, band.Name, band.Modifier)

	if o.activity != nil {
		if location, activity, ok := o.activity.Activity(profile.Name); ok {
			fmt.Fprintf(&system, "\n【当前状态】你正在%s,%s。", location, activity)
		}
	}

	system.WriteString("\n\n")
	system.WriteString(profile.KnowledgeReminder())

	var user strings.Builder
	if len(entries) > 0 {
		sorted := make([]*memory.Entry, len(entries))
		copy(sorted, entries)
		sort.SliceStable(sorted, func(i, j int) bool {
			return sorted[i].Timestamp.Before(sorted[j].Timestamp)
		})
		user.WriteString("【相关记忆】\n")
		for _, e := range sorted {
			user.WriteString("- ")
			user.WriteString(e.Content)
			user.WriteString("\n")
		}
		user.WriteString("\n")
	}
	fmt.Fprintf(&user, "玩家对你说:%s", req.Message)

	return []provider.Message{
		{Role: "system", Content: system.String()},
		{Role: "user", Content: user.String()},
	}
}

func (o *Orchestrator) generate(ctx context.Context, messages []provider.Message) (reply string, degraded bool) {
	ctx, cancel := context.WithTimeout(ctx, generateTimeout)
	defer cancel()

	resp, err := o.chatter.Chat(ctx, &provider.ChatRequest{
		Messages:    messages,
		Temperature: 0.8,
		MaxTokens:   500,
	})
	if err != nil {
		o.logger.Warn("generation failed, using fallback reply", zap.Error(err))
		return FallbackReply, true
	}
	reply = strings.TrimSpace(resp.Content)
	if reply == "" {
		return FallbackReply, true
	}
	return reply, false
}

// persistTurn writes both sides of the exchange into working memory,
// stamping each entry with the affinity state the turn produced.
// Failures are logged; the reply has already been produced.
func (o *Orchestrator) persistTurn(ctx context.Context, req *Request, reply string, result *affinity.Result) {
	meta := func(speaker string) map[string]string {
		m := map[string]string{"player_id": req.PlayerID, "speaker": speaker}
		if result != nil {
			m["affinity"] = strconv.Itoa(result.New)
			m["sentiment"] = result.Sentiment
		}
		return m
	}

	now := time.Now()
	turns := []*memory.Entry{
		{
			CharacterID: req.NPCName,
			Content:     fmt.Sprintf("玩家(%s)说:%s", req.PlayerID, req.Message),
			Type:        memory.TypeWorking,
			Importance:  playerImportance,
			Timestamp:   now,
			Metadata:    meta("player"),
		},
		{
			CharacterID: req.NPCName,
			Content:     fmt.Sprintf("我回答:%s", reply),
			Type:        memory.TypeWorking,
			Importance:  npcImportance,
			Timestamp:   now.Add(time.Millisecond),
			Metadata:    meta("npc"),
		},
	}
	for _, e := range turns {
		if err := o.memories.Add(ctx, e); err != nil {
			o.logger.Warn("memory persist failed",
				zap.String("npc", req.NPCName), zap.Error(err))
		}
	}
}

// IngestExternalDialogue stores one externally observed line into the
// character's working memory. Implements gateway.DialogueSink.
func (o *Orchestrator) IngestExternalDialogue(ctx context.Context, line *gateway.DialogueLine) error {
	if _, ok := o.roster.Get(line.NPCName); !ok {
		return fmt.Errorf("%w: %s", ErrUnknownNPC, line.NPCName)
	}

	importance := playerImportance
	content := fmt.Sprintf("玩家(%s)说:%s", line.PlayerID, line.Content)
	if line.Speaker == gateway.SpeakerNPC {
		importance = npcImportance
		content = fmt.Sprintf("我说过:%s", line.Content)
	}

	e := &memory.Entry{
		CharacterID: line.NPCName,
		Content:     content,
		Type:        memory.TypeWorking,
		Importance:  importance,
		Timestamp:   line.Timestamp,
		Metadata:    map[string]string{"source": "external_ws", "speaker": line.Speaker},
	}
	if line.PlayerID != "" {
		e.Metadata["player_id"] = line.PlayerID
	}
	if err := o.memories.Add(ctx, e); err != nil {
		return fmt.Errorf("ingest dialogue: %w", err)
	}
	return nil
}
