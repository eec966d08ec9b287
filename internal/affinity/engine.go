package affinity

import (
	"context"
	"encoding/json"
	"fmt"
	"hash/fnv"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/qunmoxiao/cybertown/internal/provider"
)

// Chatter is the slice of the provider router the engine needs.
type Chatter interface {
	Chat(ctx context.Context, req *provider.ChatRequest) (*provider.ChatResponse, error)
}

// Sentiment labels the model can assign to a player utterance.
const (
	SentimentPositive = "positive"
	SentimentNeutral  = "neutral"
	SentimentNegative = "negative"
)

// Result describes one affinity update.
type Result struct {
	CharacterID   string `json:"character_id"`
	CounterpartID string `json:"counterpart_id"`
	Old           int    `json:"old"`
	New           int    `json:"new"`
	Delta         int    `json:"delta"`
	Sentiment     string `json:"sentiment"`
	Changed       bool   `json:"changed"`
}

const stripeCount = 64

// Engine owns read-modify-write cycles on affinity scores. Per-pair
// updates are serialized through striped locks so concurrent chats with
// the same character cannot lose increments.
type Engine struct {
	store   Store
	chatter Chatter
	logger  *zap.Logger
	stripes [stripeCount]sync.Mutex
}

// NewEngine creates an Engine over the given store. chatter may be nil,
// in which case AnalyzeAndUpdate always reports neutral.
func NewEngine(store Store, chatter Chatter, logger *zap.Logger) *Engine {
	return &Engine{store: store, chatter: chatter, logger: logger}
}

func (e *Engine) stripeFor(characterID, counterpartID string) *sync.Mutex {
	h := fnv.New32a()
	h.Write([]byte(characterID))
	h.Write([]byte{0})
	h.Write([]byte(counterpartID))
	return &e.stripes[h.Sum32()%stripeCount]
}

// Get returns the current score, defaulting to DefaultScore for pairs
// that have never met. The default is not persisted until a write.
func (e *Engine) Get(ctx context.Context, characterID, counterpartID string) (int, error) {
	r, err := e.store.Get(ctx, characterID, counterpartID)
	if err != nil {
		return 0, fmt.Errorf("affinity get: %w", err)
	}
	if r == nil {
		return DefaultScore, nil
	}
	return r.Score, nil
}

// Set overwrites the score, clamped to the valid range, and returns the
// resulting Result with sentiment left empty.
func (e *Engine) Set(ctx context.Context, characterID, counterpartID string, score int) (*Result, error) {
	mu := e.stripeFor(characterID, counterpartID)
	mu.Lock()
	defer mu.Unlock()

	old, err := e.Get(ctx, characterID, counterpartID)
	if err != nil {
		return nil, err
	}
	clamped := ClampScore(score)
	if err := e.store.Put(ctx, &Record{
		CharacterID:   characterID,
		CounterpartID: counterpartID,
		Score:         clamped,
		UpdatedAt:     time.Now(),
	}); err != nil {
		return nil, fmt.Errorf("affinity set: %w", err)
	}
	return &Result{
		CharacterID:   characterID,
		CounterpartID: counterpartID,
		Old:           old,
		New:           clamped,
		Delta:         clamped - old,
		Changed:       clamped != old,
	}, nil
}

// List returns every stored affinity record.
func (e *Engine) List(ctx context.Context) ([]*Record, error) {
	return e.store.ListAll(ctx)
}

const sentimentPrompt = `你是情感分析助手。分析下面这轮对话中玩家消息的情感倾向,并给出好感度变化建议。

玩家消息:%s
NPC回复:%s

只返回JSON,格式如下,不要输出其他内容:
{"sentiment": "positive|neutral|negative", "delta": 整数(-5到5)}`

type sentimentVerdict struct {
	Sentiment string `json:"sentiment"`
	Delta     int    `json:"delta"`
}

// AnalyzeAndUpdate asks the model to judge the completed turn, clamps
// the suggested delta, and applies it under the pair's stripe lock. Any
// model or parse failure degrades to a neutral no-op rather than an
// error; only store failures propagate.
func (e *Engine) AnalyzeAndUpdate(ctx context.Context, characterID, counterpartID, playerMessage, npcReply string) (*Result, error) {
	sentiment, delta := e.analyze(ctx, playerMessage, npcReply)

	mu := e.stripeFor(characterID, counterpartID)
	mu.Lock()
	defer mu.Unlock()

	old, err := e.Get(ctx, characterID, counterpartID)
	if err != nil {
		return nil, err
	}
	next := ClampScore(old + delta)
	if next != old {
		if err := e.store.Put(ctx, &Record{
			CharacterID:   characterID,
			CounterpartID: counterpartID,
			Score:         next,
			UpdatedAt:     time.Now(),
		}); err != nil {
			return nil, fmt.Errorf("affinity update: %w", err)
		}
	}
	return &Result{
		CharacterID:   characterID,
		CounterpartID: counterpartID,
		Old:           old,
		New:           next,
		Delta:         next - old,
		Sentiment:     sentiment,
		Changed:       next != old,
	}, nil
}

func (e *Engine) analyze(ctx context.Context, playerMessage, npcReply string) (string, int) {
	if e.chatter == nil {
		return SentimentNeutral, 0
	}

	ctx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()

	resp, err := e.chatter.Chat(ctx, &provider.ChatRequest{
		Messages: []provider.Message{
			{Role: "user", Content: fmt.Sprintf(sentimentPrompt, playerMessage, npcReply)},
		},
		Temperature: 0.1,
		MaxTokens:   100,
	})
	if err != nil {
		e.logger.Warn("sentiment analysis failed, treating as neutral", zap.Error(err))
		return SentimentNeutral, 0
	}

	verdict, ok := parseVerdict(resp.Content)
	if !ok {
		e.logger.Warn("unparseable sentiment verdict, treating as neutral",
			zap.String("raw", resp.Content))
		return SentimentNeutral, 0
	}
	return verdict.Sentiment, ClampDelta(verdict.Delta)
}

// parseVerdict tries strict JSON first, then a single extraction of the
// outermost braces for models that wrap JSON in prose or code fences.
func parseVerdict(raw string) (sentimentVerdict, bool) {
	var v sentimentVerdict
	if err := json.Unmarshal([]byte(raw), &v); err == nil && validSentiment(v.Sentiment) {
		return v, true
	}
	start := strings.Index(raw, "{")
	end := strings.LastIndex(raw, "}")
	if start < 0 || end <= start {
		return sentimentVerdict{}, false
	}
	if err := json.Unmarshal([]byte(raw[start:end+1]), &v); err != nil || !validSentiment(v.Sentiment) {
		return sentimentVerdict{}, false
	}
	return v, true
}

func validSentiment(s string) bool {
	switch s {
	case SentimentPositive, SentimentNeutral, SentimentNegative:
		return true
	}
	return false
}
