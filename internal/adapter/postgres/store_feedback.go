package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/agentorg/runtime/internal/domain/feedback"
)

func (s *Store) UpsertFeedbackItem(ctx context.Context, item *feedback.Item) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO feedback_entries (id, agent_id, category, tool_name, description, request_count, deployed,
		                                urgency, feasibility, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		 ON CONFLICT (id) DO UPDATE SET
		   request_count = EXCLUDED.request_count,
		   deployed = EXCLUDED.deployed,
		   urgency = EXCLUDED.urgency,
		   feasibility = EXCLUDED.feasibility,
		   description = EXCLUDED.description,
		   updated_at = EXCLUDED.updated_at`,
		item.ID, item.AgentID, string(item.Category), item.ToolName, item.Description, item.RequestCount,
		item.Deployed, item.Urgency, item.Feasibility, item.CreatedAt, item.UpdatedAt)
	if err != nil {
		return fmt.Errorf("upsert feedback item %s: %w", item.ID, err)
	}
	return nil
}

func (s *Store) FindOpenToolRequest(ctx context.Context, toolName string) (*feedback.Item, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT id, agent_id, category, tool_name, description, request_count, deployed, urgency, feasibility,
		        created_at, updated_at
		 FROM feedback_entries
		 WHERE tool_name = $1 AND category = $2 AND deployed = FALSE
		 ORDER BY created_at DESC LIMIT 1`,
		toolName, string(feedback.CategoryToolRequest))

	item, err := scanFeedbackItem(row)
	if err != nil {
		return nil, notFoundWrap(err, "find open tool request %s", toolName)
	}
	return &item, nil
}

func (s *Store) ListFeedbackItems(ctx context.Context, category feedback.Category) ([]*feedback.Item, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, agent_id, category, tool_name, description, request_count, deployed, urgency, feasibility,
		        created_at, updated_at
		 FROM feedback_entries WHERE category = $1 ORDER BY created_at DESC`, string(category))
	if err != nil {
		return nil, fmt.Errorf("list feedback items: %w", err)
	}
	defer rows.Close()

	var items []*feedback.Item
	for rows.Next() {
		item, err := scanFeedbackItem(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, &item)
	}
	return items, rows.Err()
}

func (s *Store) AppendCapabilityGapReport(ctx context.Context, r *feedback.CapabilityGapReport) error {
	usageJSON, err := json.Marshal(orEmpty(r.ToolUsage))
	if err != nil {
		return fmt.Errorf("marshal tool_usage: %w", err)
	}
	mostJSON, err := json.Marshal(orEmpty(r.MostRequestedTools))
	if err != nil {
		return fmt.Errorf("marshal most_requested_tools: %w", err)
	}
	depJSON, err := json.Marshal(orEmpty(r.DeprecationCandidates))
	if err != nil {
		return fmt.Errorf("marshal deprecation_candidates: %w", err)
	}
	devJSON, err := json.Marshal(orEmpty(r.DevelopmentPriorities))
	if err != nil {
		return fmt.Errorf("marshal development_priorities: %w", err)
	}

	_, err = s.pool.Exec(ctx,
		`INSERT INTO capability_gap_reports (id, period_start, period_end, tool_usage, most_requested_tools,
		                                      deprecation_candidates, development_priorities, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		r.ID, r.PeriodStart, r.PeriodEnd, usageJSON, mostJSON, depJSON, devJSON, r.CreatedAt)
	if err != nil {
		return fmt.Errorf("append capability gap report %s: %w", r.ID, err)
	}
	return nil
}

// --- Tool requests (bare append log, distinct from feedback_entries) ---

func (s *Store) RecordToolRequest(ctx context.Context, toolName, agentID string, at time.Time) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO tool_requests (id, tool_name, agent_id, created_at) VALUES ($1, $2, $3, $4)`,
		newRowID("toolreq"), toolName, agentID, at)
	if err != nil {
		return fmt.Errorf("record tool request %s: %w", toolName, err)
	}
	return nil
}

func scanFeedbackItem(row scannable) (feedback.Item, error) {
	var item feedback.Item
	var category string
	err := row.Scan(&item.ID, &item.AgentID, &category, &item.ToolName, &item.Description,
		&item.RequestCount, &item.Deployed, &item.Urgency, &item.Feasibility, &item.CreatedAt, &item.UpdatedAt)
	if err != nil {
		return item, err
	}
	item.Category = feedback.Category(category)
	return item, nil
}
