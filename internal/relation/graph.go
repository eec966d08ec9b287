package relation

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"go.uber.org/zap"

	"github.com/qunmoxiao/cybertown/internal/hooks"
)

// Bond is one directed player-NPC tie in the graph. Strength lives in
// [0,1] and grows with affinity movement.
type Bond struct {
	PlayerID  string    `json:"player_id"`
	NPCName   string    `json:"npc_name"`
	Strength  float64   `json:"strength"`
	Sentiment string    `json:"sentiment"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Graph mirrors affinity movement into Neo4j so player-NPC social ties
// can be queried as a graph.
type Graph struct {
	driver neo4j.DriverWithContext
	logger *zap.Logger
}

// NewGraph wraps an existing Neo4j driver.
func NewGraph(driver neo4j.DriverWithContext, logger *zap.Logger) *Graph {
	return &Graph{driver: driver, logger: logger}
}

// RecordInteraction strengthens the player's tie to the NPC. boost is
// clamped to [0,1]; strength saturates at 1.
func (g *Graph) RecordInteraction(ctx context.Context, playerID, npcName, sentiment string, boost float64) error {
	boost = math.Min(math.Max(boost, 0), 1)

	session := g.driver.NewSession(ctx, neo4j.SessionConfig{})
	defer session.Close(ctx)

	_, err := session.Run(ctx,
		`MERGE (p:Player {id: $player})
		 MERGE (n:NPC {name: $npc})
		 MERGE (p)-[r:KNOWS]->(n)
		 ON CREATE SET r.strength = $boost, r.sentiment = $sentiment, r.updated_at = datetime()
		 ON MATCH SET r.strength = CASE WHEN r.strength + $boost > 1.0 THEN 1.0 ELSE r.strength + $boost END,
		              r.sentiment = $sentiment,
		              r.updated_at = datetime()`,
		map[string]any{
			"player":    playerID,
			"npc":       npcName,
			"boost":     boost,
			"sentiment": sentiment,
		})
	if err != nil {
		return fmt.Errorf("record interaction: %w", err)
	}
	return nil
}

// Bonds returns every tie originating from the player.
func (g *Graph) Bonds(ctx context.Context, playerID string) ([]*Bond, error) {
	session := g.driver.NewSession(ctx, neo4j.SessionConfig{})
	defer session.Close(ctx)

	result, err := session.Run(ctx,
		`MATCH (p:Player {id: $player})-[r:KNOWS]->(n:NPC)
		 RETURN n.name, r.strength, r.sentiment`,
		map[string]any{"player": playerID})
	if err != nil {
		return nil, fmt.Errorf("list bonds: %w", err)
	}

	var bonds []*Bond
	for result.Next(ctx) {
		rec := result.Record()
		name, _ := rec.Get("n.name")
		strength, _ := rec.Get("r.strength")
		sentiment, _ := rec.Get("r.sentiment")

		b := &Bond{PlayerID: playerID}
		if s, ok := name.(string); ok {
			b.NPCName = s
		}
		if f, ok := strength.(float64); ok {
			b.Strength = f
		}
		if s, ok := sentiment.(string); ok {
			b.Sentiment = s
		}
		bonds = append(bonds, b)
	}
	return bonds, nil
}

// AffinityHook returns a background hook callback that feeds affinity
// changes into the graph. Boost is the absolute delta scaled to [0,1].
func (g *Graph) AffinityHook() hooks.Callback {
	return hooks.Func{
		ID:  "relation-graph",
		Tag: hooks.Background,
		Body: func(ctx context.Context, event string, payload any) {
			change, ok := payload.(*hooks.AffinityChange)
			if !ok {
				return
			}
			boost := math.Abs(float64(change.Delta)) / 100
			if err := g.RecordInteraction(ctx, change.PlayerID, change.NPCName, change.Sentiment, boost); err != nil {
				g.logger.Warn("relation graph update failed",
					zap.String("npc", change.NPCName),
					zap.String("player", change.PlayerID),
					zap.Error(err))
			}
		},
	}
}

// Close shuts down the underlying driver.
func (g *Graph) Close(ctx context.Context) error {
	return g.driver.Close(ctx)
}
