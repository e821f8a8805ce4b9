package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/agentorg/runtime/internal/domain/topic"
)

func (s *Store) CreateTopic(ctx context.Context, t *topic.Topic) error {
	secondsJSON, err := json.Marshal(orEmpty(t.Seconds))
	if err != nil {
		return fmt.Errorf("marshal seconds: %w", err)
	}
	participantsJSON, err := json.Marshal(orEmpty(t.SuggestedParticipants))
	if err != nil {
		return fmt.Errorf("marshal suggested_participants: %w", err)
	}
	actionItemsJSON, err := json.Marshal(orEmpty(t.ActionItems))
	if err != nil {
		return fmt.Errorf("marshal action_items: %w", err)
	}

	_, err = s.pool.Exec(ctx,
		`INSERT INTO topics (id, category, title, description, priority, status, proposer, seconds,
		                      required_seconds, suggested_participants, scheduled_at, expires_at, resolution,
		                      action_items, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)`,
		t.ID, string(t.Category), t.Title, t.Description, string(t.Priority), string(t.Status), t.Proposer,
		secondsJSON, t.RequiredSeconds, participantsJSON, nullableTime(t.ScheduledAt),
		nullableTime(t.ExpiresAt), t.Resolution, actionItemsJSON, t.CreatedAt, t.UpdatedAt)
	if err != nil {
		return fmt.Errorf("create topic %s: %w", t.ID, err)
	}
	return nil
}

func (s *Store) GetTopic(ctx context.Context, id string) (*topic.Topic, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT id, category, title, description, priority, status, proposer, seconds, required_seconds,
		        suggested_participants, scheduled_at, expires_at, resolution, action_items, created_at, updated_at
		 FROM topics WHERE id = $1`, id)

	t, err := scanTopic(row)
	if err != nil {
		return nil, notFoundWrap(err, "get topic %s", id)
	}
	return &t, nil
}

func (s *Store) ListTopics(ctx context.Context, status topic.Status) ([]*topic.Topic, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, category, title, description, priority, status, proposer, seconds, required_seconds,
		        suggested_participants, scheduled_at, expires_at, resolution, action_items, created_at, updated_at
		 FROM topics WHERE status = $1 ORDER BY created_at`, string(status))
	if err != nil {
		return nil, fmt.Errorf("list topics: %w", err)
	}
	defer rows.Close()

	var topics []*topic.Topic
	for rows.Next() {
		t, err := scanTopic(rows)
		if err != nil {
			return nil, err
		}
		topics = append(topics, &t)
	}
	return topics, rows.Err()
}

func (s *Store) UpdateTopic(ctx context.Context, t *topic.Topic) error {
	secondsJSON, err := json.Marshal(orEmpty(t.Seconds))
	if err != nil {
		return fmt.Errorf("marshal seconds: %w", err)
	}
	actionItemsJSON, err := json.Marshal(orEmpty(t.ActionItems))
	if err != nil {
		return fmt.Errorf("marshal action_items: %w", err)
	}
	tag, err := s.pool.Exec(ctx,
		`UPDATE topics SET priority = $2, status = $3, seconds = $4, scheduled_at = $5, expires_at = $6,
		                    resolution = $7, action_items = $8, updated_at = $9
		 WHERE id = $1`,
		t.ID, string(t.Priority), string(t.Status), secondsJSON, nullableTime(t.ScheduledAt),
		nullableTime(t.ExpiresAt), t.Resolution, actionItemsJSON, t.UpdatedAt)
	return execExpectOne(tag, err, "update topic %s", t.ID)
}

func scanTopic(row scannable) (topic.Topic, error) {
	var t topic.Topic
	var category, priority, status string
	var secondsJSON, participantsJSON, actionItemsJSON []byte
	var scheduledAt, expiresAt *time.Time
	err := row.Scan(&t.ID, &category, &t.Title, &t.Description, &priority, &status, &t.Proposer,
		&secondsJSON, &t.RequiredSeconds, &participantsJSON, &scheduledAt, &expiresAt, &t.Resolution,
		&actionItemsJSON, &t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		return t, err
	}
	t.Category = topic.Category(category)
	t.Priority = topic.Priority(priority)
	t.Status = topic.Status(status)
	t.ScheduledAt = scheduledAt
	t.ExpiresAt = expiresAt
	if secondsJSON != nil {
		if err := json.Unmarshal(secondsJSON, &t.Seconds); err != nil {
			return t, fmt.Errorf("unmarshal seconds: %w", err)
		}
	}
	if participantsJSON != nil {
		if err := json.Unmarshal(participantsJSON, &t.SuggestedParticipants); err != nil {
			return t, fmt.Errorf("unmarshal suggested_participants: %w", err)
		}
	}
	if actionItemsJSON != nil {
		if err := json.Unmarshal(actionItemsJSON, &t.ActionItems); err != nil {
			return t, fmt.Errorf("unmarshal action_items: %w", err)
		}
	}
	return t, nil
}
