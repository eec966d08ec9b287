package gateway

import (
	"encoding/json"
	"fmt"
	"time"
)

// Envelope kinds pushed to live listeners.
const (
	KindQuestKeywordMatched = "quest_keyword_matched"
	KindDialogueWSStatus    = "external_dialogue_ws_status"
	KindNPCStatus           = "npc_status"
)

// Envelope is the one wire shape every push shares.
type Envelope struct {
	Kind      string    `json:"type"`
	Data      any       `json:"data"`
	Timestamp time.Time `json:"timestamp"`
}

// NewEnvelope stamps the envelope with the current time.
func NewEnvelope(kind string, data any) *Envelope {
	return &Envelope{Kind: kind, Data: data, Timestamp: time.Now()}
}

// Marshal serializes the envelope once for fan-out.
func (e *Envelope) Marshal() ([]byte, error) {
	data, err := json.Marshal(e)
	if err != nil {
		return nil, fmt.Errorf("marshal envelope: %w", err)
	}
	return data, nil
}

// Speaker values accepted in an injected dialogue line.
const (
	SpeakerPlayer = "player"
	SpeakerNPC    = "npc"
)

// DialogueLine is one externally observed exchange pushed in over the
// dialogue websocket.
type DialogueLine struct {
	NPCName   string    `json:"npc_name"`
	Speaker   string    `json:"speaker"`
	Content   string    `json:"content"`
	PlayerID  string    `json:"player_id,omitempty"`
	Timestamp time.Time `json:"timestamp,omitempty"`
}

// Validate reports why the line cannot be accepted, or nil.
func (l *DialogueLine) Validate() error {
	if l.NPCName == "" {
		return fmt.Errorf("npc_name is required")
	}
	if l.Speaker != SpeakerPlayer && l.Speaker != SpeakerNPC {
		return fmt.Errorf("speaker must be %q or %q, got %q", SpeakerPlayer, SpeakerNPC, l.Speaker)
	}
	if l.Content == "" {
		return fmt.Errorf("content is required")
	}
	return nil
}
