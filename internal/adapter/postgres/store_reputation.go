package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"
)

type reputationEntry struct {
	Score  float64   `json:"score"`
	Reason string    `json:"reason"`
	At     time.Time `json:"at"`
}

func (s *Store) RecordReputation(ctx context.Context, agentID string, score float64, reason string, at time.Time) error {
	entry, err := json.Marshal(reputationEntry{Score: score, Reason: reason, At: at})
	if err != nil {
		return fmt.Errorf("marshal reputation entry: %w", err)
	}
	_, err = s.pool.Exec(ctx,
		`INSERT INTO reputation_scores (agent_id, score, history, updated_at)
		 VALUES ($1, $2, jsonb_build_array($3::jsonb), $4)
		 ON CONFLICT (agent_id) DO UPDATE SET
		   score = EXCLUDED.score,
		   history = reputation_scores.history || EXCLUDED.history,
		   updated_at = EXCLUDED.updated_at`,
		agentID, score, entry, at)
	if err != nil {
		return fmt.Errorf("record reputation for %s: %w", agentID, err)
	}
	return nil
}

func (s *Store) LatestReputation(ctx context.Context, agentID string) (float64, error) {
	var score float64
	err := s.pool.QueryRow(ctx, `SELECT score FROM reputation_scores WHERE agent_id = $1`, agentID).Scan(&score)
	if err != nil {
		return 0, notFoundWrap(err, "latest reputation for %s", agentID)
	}
	return score, nil
}
