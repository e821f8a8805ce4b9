package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"
)

func (s *Store) CreateMeetingRequest(ctx context.Context, roomID, title, host string, participants []string, at time.Time) error {
	participantsJSON, err := json.Marshal(orEmpty(participants))
	if err != nil {
		return fmt.Errorf("marshal participants: %w", err)
	}
	_, err = s.pool.Exec(ctx,
		`INSERT INTO meeting_requests (id, title, host, participants, started_at) VALUES ($1, $2, $3, $4, $5)`,
		roomID, title, host, participantsJSON, at)
	if err != nil {
		return fmt.Errorf("create meeting request %s: %w", roomID, err)
	}
	return nil
}

func (s *Store) AppendMeetingArtifact(ctx context.Context, roomID string, kind, title string, data any, presenter string, at time.Time) error {
	dataJSON, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("marshal artifact data: %w", err)
	}
	_, err = s.pool.Exec(ctx,
		`INSERT INTO meeting_artifacts (id, room_id, kind, title, data, presenter, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		newRowID("artifact"), roomID, kind, title, dataJSON, presenter, at)
	if err != nil {
		return fmt.Errorf("append meeting artifact for room %s: %w", roomID, err)
	}
	return nil
}
