package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/agentorg/runtime/internal/domain/intention"
)

func (s *Store) CreateIntention(ctx context.Context, i *intention.Intention) error {
	ctxJSON, err := json.Marshal(i.Context)
	if err != nil {
		return fmt.Errorf("marshal context: %w", err)
	}
	targetsJSON, err := json.Marshal(orEmpty(i.TargetAgents))
	if err != nil {
		return fmt.Errorf("marshal target_agents: %w", err)
	}

	_, err = s.pool.Exec(ctx,
		`INSERT INTO intentions (id, agent_id, kind, priority, status, context, target_agents,
		                          autonomous_scope, autonomous_approved, expires_at, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		i.ID, i.AgentID, string(i.Kind), i.Priority, string(i.Status), ctxJSON,
		targetsJSON, i.AutonomousScope, i.AutonomousApproved, nullableTime(i.ExpiresAt), i.CreatedAt)
	if err != nil {
		return fmt.Errorf("create intention %s: %w", i.ID, err)
	}
	return nil
}

func (s *Store) UpdateIntention(ctx context.Context, i *intention.Intention) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE intentions SET status = $2, autonomous_approved = $3 WHERE id = $1`,
		i.ID, string(i.Status), i.AutonomousApproved)
	return execExpectOne(tag, err, "update intention %s", i.ID)
}

func (s *Store) ListOpenIntentions(ctx context.Context, agentID string) ([]*intention.Intention, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, agent_id, kind, priority, status, context, target_agents, autonomous_scope,
		        autonomous_approved, expires_at, created_at
		 FROM intentions WHERE agent_id = $1 AND status = $2 ORDER BY created_at`,
		agentID, string(intention.StatusOpen))
	if err != nil {
		return nil, fmt.Errorf("list open intentions: %w", err)
	}
	defer rows.Close()

	var intentions []*intention.Intention
	for rows.Next() {
		i, err := scanIntention(rows)
		if err != nil {
			return nil, err
		}
		intentions = append(intentions, &i)
	}
	return intentions, rows.Err()
}

func scanIntention(row scannable) (intention.Intention, error) {
	var i intention.Intention
	var kind, status string
	var ctxJSON, targetsJSON []byte
	var expiresAt *time.Time
	err := row.Scan(&i.ID, &i.AgentID, &kind, &i.Priority, &status, &ctxJSON, &targetsJSON,
		&i.AutonomousScope, &i.AutonomousApproved, &expiresAt, &i.CreatedAt)
	if err != nil {
		return i, err
	}
	i.Kind = intention.Kind(kind)
	i.Status = intention.Status(status)
	i.ExpiresAt = expiresAt
	if ctxJSON != nil {
		if err := json.Unmarshal(ctxJSON, &i.Context); err != nil {
			return i, fmt.Errorf("unmarshal context: %w", err)
		}
	}
	if targetsJSON != nil {
		if err := json.Unmarshal(targetsJSON, &i.TargetAgents); err != nil {
			return i, fmt.Errorf("unmarshal target_agents: %w", err)
		}
	}
	return i, nil
}
