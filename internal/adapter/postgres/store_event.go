package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/agentorg/runtime/internal/port/store"
)

func (s *Store) AppendEvent(ctx context.Context, e store.Event) error {
	if e.ID == "" {
		e.ID = newRowID("evt")
	}
	payloadJSON, err := json.Marshal(e.Payload)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}
	_, err = s.pool.Exec(ctx,
		`INSERT INTO events (id, type, agent_id, payload, created_at) VALUES ($1, $2, $3, $4, $5)`,
		e.ID, e.Type, e.AgentID, payloadJSON, e.CreatedAt)
	if err != nil {
		return fmt.Errorf("append event %s: %w", e.ID, err)
	}
	return nil
}

func (s *Store) ListEvents(ctx context.Context, agentID string, since time.Time, limit int) ([]store.Event, error) {
	var rows pgx.Rows
	var err error
	if agentID == "" {
		rows, err = s.pool.Query(ctx,
			`SELECT id, type, agent_id, payload, created_at FROM events
			 WHERE created_at >= $1 ORDER BY created_at DESC LIMIT $2`, since, limit)
	} else {
		rows, err = s.pool.Query(ctx,
			`SELECT id, type, agent_id, payload, created_at FROM events
			 WHERE agent_id = $1 AND created_at >= $2 ORDER BY created_at DESC LIMIT $3`, agentID, since, limit)
	}
	if err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}
	defer rows.Close()

	var events []store.Event
	for rows.Next() {
		e, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		events = append(events, e)
	}
	return events, rows.Err()
}

func scanEvent(row scannable) (store.Event, error) {
	var e store.Event
	var payloadJSON []byte
	err := row.Scan(&e.ID, &e.Type, &e.AgentID, &payloadJSON, &e.CreatedAt)
	if err != nil {
		return e, err
	}
	if payloadJSON != nil {
		if err := json.Unmarshal(payloadJSON, &e.Payload); err != nil {
			return e, fmt.Errorf("unmarshal payload: %w", err)
		}
	}
	return e, nil
}
