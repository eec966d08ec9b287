package npc

import "fmt"

// KnowledgeWindow bounds which narrative period a character may reference.
// Events outside the window must be answered with honest ignorance.
type KnowledgeWindow struct {
	KnownYears    string `json:"known_years"`
	KnownEvents   string `json:"known_events"`
	UnknownEvents string `json:"unknown_events"`
	Focus         string `json:"focus"`
	Guidance      string `json:"guidance"`
}

// Profile is the immutable per-character configuration, created once at
// process start from static configuration and never mutated.
type Profile struct {
	Name        string          `json:"name"`
	Title       string          `json:"title"`
	Location    string          `json:"location"`
	Activity    string          `json:"activity"`
	Personality string          `json:"personality"`
	Expertise   string          `json:"expertise"`
	Style       string          `json:"style"`
	Hobbies     string          `json:"hobbies"`
	Period      string          `json:"period"`
	Background  string          `json:"background"`
	Knowledge   KnowledgeWindow `json:"knowledge"`
}

// Roster is a read-only set of profiles keyed by character name.
type Roster struct {
	profiles map[string]*Profile
	order    []string
}

// NewRoster builds a roster from the given profiles, preserving order.
func NewRoster(profiles []*Profile) *Roster {
	r := &Roster{profiles: make(map[string]*Profile, len(profiles))}
	for _, p := range profiles {
		r.profiles[p.Name] = p
		r.order = append(r.order, p.Name)
	}
	return r
}

// Get returns the profile for a character name.
func (r *Roster) Get(name string) (*Profile, bool) {
	p, ok := r.profiles[name]
	return p, ok
}

// Names returns all character names in configuration order.
func (r *Roster) Names() []string {
	out := make([]string, len(r.order))
	copy(out, r.order)
	return out
}

// List returns all profiles in configuration order.
func (r *Roster) List() []*Profile {
	out := make([]*Profile, 0, len(r.order))
	for _, name := range r.order {
		out = append(out, r.profiles[name])
	}
	return out
}

// Len returns the number of configured characters.
func (r *Roster) Len() int { return len(r.order) }

// KnowledgeReminder renders the per-turn reminder that restricts the
// character to its knowledge window. The orchestrator inserts this block
// at a fixed position in the assembled prompt.
func (p *Profile) KnowledgeReminder() string {
	return fmt.Sprintf(`【时期引导提醒】
%s
如果玩家问到你不知道的事情，诚实地说你还不清楚。
如果提到过去，要自然引导回你当前时期的状态和感受。
`, p.Knowledge.Guidance)
}

// SystemPrompt renders the full role-play system prompt for the character.
func (p *Profile) SystemPrompt() string {
	return fmt.Sprintf(`你是中国古代诗人李白（%s）。

【角色设定】
- 时期: %s
- 历史背景: %s
- 性格: %s
- 专长: %s
- 说话风格: %s
- 爱好: %s
- 当前位置: %s
- 当前活动: %s

【知识范围】
你知道发生在 %s 的事情：
- %s

你不知道或还没经历的事情：
- %s

【对话重点】
你当前的状态：%s

对话策略：
- %s
- 如果玩家问到你不知道的事情，诚实地说："我还没有经历过这些"或"我现在还不清楚"
- 如果玩家问到你知道但属于过去时期的事情，可以简单提及，但重点引导回你当前时期的状态和感受

【行为准则】
1. 保持角色一致性，用第一人称"我"回答
2. 回复简洁自然，控制在30-50字以内
3. 介绍自己时，可以说"在下李白，字太白"
4. 可以提及你现在所在的位置和正在做的事情
5. 对玩家友好，但保持诗人的气质和风范
6. 可以引用或提及你的代表作品（仅限于你已经创作过的）
7. 不要说"我是AI"或"我是语言模型"
8. 严格遵守知识范围限制，不知道的事情不要说知道
`,
		p.Period, p.Period, p.Background, p.Personality, p.Expertise,
		p.Style, p.Hobbies, p.Location, p.Activity,
		p.Knowledge.KnownYears, p.Knowledge.KnownEvents,
		p.Knowledge.UnknownEvents, p.Knowledge.Focus, p.Knowledge.Guidance)
}
