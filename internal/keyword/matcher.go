package keyword

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/qunmoxiao/cybertown/internal/provider"
)

// Group is one synonym group inside a quest. The first member is the
// canonical label reported on a match; the rest are synonyms.
type Group []string

// Quest ties keyword groups to the NPC whose dialogue can advance it.
type Quest struct {
	ID     string  `json:"quest_id"`
	NPC    string  `json:"npc"`
	Groups []Group `json:"keywords"`
}

// Hit is one matched keyword group within a quest.
type Hit struct {
	QuestID string `json:"quest_id"`
	Keyword string `json:"matched_keyword"`
}

// Chatter is the slice of the provider router the matcher needs.
type Chatter interface {
	Chat(ctx context.Context, req *provider.ChatRequest) (*provider.ChatResponse, error)
}

// Matcher finds quest keywords in NPC replies, preferring semantic
// matching through the model and falling back to plain substring scan.
type Matcher struct {
	quests  []Quest
	chatter Chatter
	logger  *zap.Logger
}

// NewMatcher creates a Matcher over the configured quests. chatter may
// be nil, which forces the substring path.
func NewMatcher(quests []Quest, chatter Chatter, logger *zap.Logger) *Matcher {
	return &Matcher{quests: quests, chatter: chatter, logger: logger}
}

// Quests returns the configured quests.
func (m *Matcher) Quests() []Quest {
	return m.quests
}

const matchPrompt = `你是语义匹配助手。下面是若干关键词组,每组含义相近:

%s

NPC回复:%s

判断NPC回复在语义上命中了哪些关键词组。只返回命中组的编号JSON数组,例如 [0,2]。没有命中返回 []。不要输出其他内容。`

// Match checks the reply against every quest belonging to npcName and
// returns one Hit per matched group, de-duplicated, in group order. It
// never fails: model errors degrade to the substring scan.
func (m *Matcher) Match(ctx context.Context, npcName, reply string) []*Hit {
	groups, owners := m.groupsFor(npcName)
	if len(groups) == 0 || reply == "" {
		return nil
	}

	if m.chatter != nil {
		if hits, ok := m.semanticMatch(ctx, reply, groups, owners); ok {
			return hits
		}
	}
	return m.substringMatch(reply, groups, owners)
}

// groupsFor flattens the NPC's quests into one numbered group list,
// remembering which quest owns each group.
func (m *Matcher) groupsFor(npcName string) ([]Group, []string) {
	var groups []Group
	var owners []string
	for _, q := range m.quests {
		if q.NPC != npcName {
			continue
		}
		for _, g := range q.Groups {
			if len(g) == 0 {
				continue
			}
			groups = append(groups, g)
			owners = append(owners, q.ID)
		}
	}
	return groups, owners
}

func (m *Matcher) semanticMatch(ctx context.Context, reply string, groups []Group, owners []string) ([]*Hit, bool) {
	var sb strings.Builder
	for i, g := range groups {
		fmt.Fprintf(&sb, "%d: %s\n", i, strings.Join(g, "、"))
	}

	ctx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()

	resp, err := m.chatter.Chat(ctx, &provider.ChatRequest{
		Messages: []provider.Message{
			{Role: "user", Content: fmt.Sprintf(matchPrompt, sb.String(), reply)},
		},
		Temperature: 0,
		MaxTokens:   50,
	})
	if err != nil {
		m.logger.Warn("semantic keyword match failed, using substring scan", zap.Error(err))
		return nil, false
	}

	indices, ok := parseIndices(resp.Content)
	if !ok {
		m.logger.Warn("unparseable keyword match verdict, using substring scan",
			zap.String("raw", resp.Content))
		return nil, false
	}

	seen := make(map[int]bool)
	var hits []*Hit
	for _, idx := range indices {
		if idx < 0 || idx >= len(groups) || seen[idx] {
			continue
		}
		seen[idx] = true
		hits = append(hits, &Hit{QuestID: owners[idx], Keyword: groups[idx][0]})
	}
	return hits, true
}

// parseIndices tries strict JSON first, then a single extraction of the
// outermost bracket pair.
func parseIndices(raw string) ([]int, bool) {
	var indices []int
	if err := json.Unmarshal([]byte(raw), &indices); err == nil {
		return indices, true
	}
	start := strings.Index(raw, "[")
	end := strings.LastIndex(raw, "]")
	if start < 0 || end <= start {
		return nil, false
	}
	if err := json.Unmarshal([]byte(raw[start:end+1]), &indices); err != nil {
		return nil, false
	}
	return indices, true
}

func (m *Matcher) substringMatch(reply string, groups []Group, owners []string) []*Hit {
	var hits []*Hit
	for i, g := range groups {
		for _, kw := range g {
			if strings.Contains(reply, kw) {
				hits = append(hits, &Hit{QuestID: owners[i], Keyword: g[0]})
				break
			}
		}
	}
	return hits
}
