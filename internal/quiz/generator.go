package quiz

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/qunmoxiao/cybertown/internal/memory"
	"github.com/qunmoxiao/cybertown/internal/npc"
	"github.com/qunmoxiao/cybertown/internal/provider"
)

// Question is one generated multiple-choice question.
type Question struct {
	Type     string   `json:"type"`
	Question string   `json:"question"`
	Options  []string `json:"options"`
	Correct  int      `json:"correct"`
}

// Quiz is the generated set for one character. Empty Questions signals
// the client to fall back to its local bank.
type Quiz struct {
	QuizID    string     `json:"quiz_id"`
	NPCName   string     `json:"npc_name"`
	Title     string     `json:"title"`
	Questions []Question `json:"questions"`
}

// Chatter is the slice of the provider router the generator needs.
type Chatter interface {
	Chat(ctx context.Context, req *provider.ChatRequest) (*provider.ChatResponse, error)
}

const (
	defaultCount    = 3
	memoryContext   = 8
	generateTimeout = 45 * time.Second
)

// Generator builds quizzes from a character's profile and recent
// conversation memory.
type Generator struct {
	roster   *npc.Roster
	chatter  Chatter
	memories memory.Store
	logger   *zap.Logger
}

// NewGenerator wires the quiz generator. chatter may be nil; generation
// then always returns an empty question set.
func NewGenerator(roster *npc.Roster, chatter Chatter, memories memory.Store, logger *zap.Logger) *Generator {
	return &Generator{roster: roster, chatter: chatter, memories: memories, logger: logger}
}

// Generate produces up to count questions for the character. Model or
// parse failures yield a quiz with no questions rather than an error;
// only an unknown character is an error.
func (g *Generator) Generate(ctx context.Context, npcName, quizID string, count int) (*Quiz, error) {
	profile, ok := g.roster.Get(npcName)
	if !ok {
		return nil, fmt.Errorf("unknown npc: %s", npcName)
	}
	if count <= 0 {
		count = defaultCount
	}

	quiz := &Quiz{
		QuizID:    quizID,
		NPCName:   npcName,
		Title:     fmt.Sprintf("%s知识问答(动态生成)", npcName),
		Questions: []Question{},
	}
	if g.chatter == nil {
		return quiz, nil
	}

	entries, err := g.memories.Recent(ctx, npcName, memoryContext)
	if err != nil {
		g.logger.Warn("quiz memory lookup failed, using profile only",
			zap.String("npc", npcName), zap.Error(err))
		entries = nil
	}

	ctx, cancel := context.WithTimeout(ctx, generateTimeout)
	defer cancel()

	resp, err := g.chatter.Chat(ctx, &provider.ChatRequest{
		Messages: []provider.Message{
			{Role: "system", Content: "你是一个游戏出题助手,需要基于给定的NPC设定和历史对话,为该NPC生成多选题。"},
			{Role: "user", Content: g.buildPrompt(profile, entries, count)},
		},
		Temperature: 0.7,
		MaxTokens:   1500,
	})
	if err != nil {
		g.logger.Warn("quiz generation failed, returning empty set",
			zap.String("npc", npcName), zap.Error(err))
		return quiz, nil
	}

	quiz.Questions = parseQuestions(resp.Content, count)
	if len(quiz.Questions) == 0 {
		g.logger.Warn("no usable quiz questions in model output",
			zap.String("npc", npcName))
	}
	return quiz, nil
}

func (g *Generator) buildPrompt(p *npc.Profile, entries []*memory.Entry, count int) string {
	var dialogue strings.Builder
	n := 0
	for _, e := range entries {
		if e.Content == "" {
			continue
		}
		n++
		fmt.Fprintf(&dialogue, "%d. %s\n", n, e.Content)
	}
	block := dialogue.String()
	if block == "" {
		block = "暂无历史对话"
	}

	return fmt.Sprintf(`你是一个游戏出题助手,需要根据下面这位NPC的设定和与玩家的历史对话,为该NPC生成多选题。

【NPC信息】
名字: %s
时期: %s
背景: %s
性格: %s
位置: %s
当前活动: %s

【历史对话节选】(如果为空,则更多依赖NPC设定出题)
%s

【出题要求】
1. 一共生成 %d 道多选题。
2. 题目内容要能从NPC的形象、经历或历史对话中"推导出来",不要完全无中生有。
3. 题目以考察玩家对NPC形象、情绪和对话含义的理解为主,可以少量包含记忆型题目。
4. 每道题使用如下字段:
   - "type": "story" 或 "poem" 或 "knowledge" 等
   - "question": 题干文本
   - "options": 4个备选项,字符串数组
   - "correct": 正确选项在 options 中的下标(从0开始)
5. 严格以JSON数组形式输出,不要添加任何注释或额外文本。

【输出格式示例】
[
  {
    "type": "story",
    "question": "...",
    "options": ["...", "...", "...", "..."],
    "correct": 0
  }
]

现在请生成题目:`,
		p.Name, p.Period, p.Background, p.Personality, p.Location, p.Activity, block, count)
}

// parseQuestions reads a JSON array, strict first then one bracket
// extraction, and keeps only structurally valid questions up to count.
func parseQuestions(raw string, count int) []Question {
	var items []Question
	if err := json.Unmarshal([]byte(raw), &items); err != nil {
		start := strings.Index(raw, "[")
		end := strings.LastIndex(raw, "]")
		if start < 0 || end <= start {
			return []Question{}
		}
		if err := json.Unmarshal([]byte(raw[start:end+1]), &items); err != nil {
			return []Question{}
		}
	}

	out := make([]Question, 0, count)
	for _, q := range items {
		if q.Question == "" || len(q.Options) < 2 {
			continue
		}
		if q.Correct < 0 || q.Correct >= len(q.Options) {
			continue
		}
		if q.Type == "" {
			q.Type = "story"
		}
		out = append(out, q)
		if len(out) >= count {
			break
		}
	}
	return out
}
