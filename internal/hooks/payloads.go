package hooks

import "time"

// BeforeChat is the payload for EventBeforeChat.
type BeforeChat struct {
	NPCName  string    `json:"npc_name"`
	PlayerID string    `json:"player_id"`
	Message  string    `json:"message"`
	At       time.Time `json:"at"`
}

// AfterChat is the payload for EventAfterChat.
type AfterChat struct {
	NPCName  string    `json:"npc_name"`
	PlayerID string    `json:"player_id"`
	Message  string    `json:"message"`
	Reply    string    `json:"reply"`
	Degraded bool      `json:"degraded"`
	At       time.Time `json:"at"`
}

// AffinityChange is the payload for EventAffinityChange.
type AffinityChange struct {
	NPCName   string    `json:"npc_name"`
	PlayerID  string    `json:"player_id"`
	Old       int       `json:"old"`
	New       int       `json:"new"`
	Delta     int       `json:"delta"`
	Sentiment string    `json:"sentiment"`
	At        time.Time `json:"at"`
}

// AmbientRefreshed is the payload for EventAmbientRefreshed.
type AmbientRefreshed struct {
	Fallback bool      `json:"fallback"`
	Count    int       `json:"count"`
	At       time.Time `json:"at"`
}
