package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/agentorg/runtime/internal/domain/researchcycle"
)

func (s *Store) CreateCycle(ctx context.Context, c *researchcycle.ResearchCycle) error {
	auditJSON, err := json.Marshal(orEmpty(c.Audit))
	if err != nil {
		return fmt.Errorf("marshal audit: %w", err)
	}
	_, err = s.pool.Exec(ctx,
		`INSERT INTO research_cycles (id, title, owner_agent_id, current_state, rejections, audit, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		c.ID, c.Title, c.OwnerAgentID, string(c.CurrentState), c.Rejections, auditJSON, c.CreatedAt, c.UpdatedAt)
	if err != nil {
		return fmt.Errorf("create research cycle %s: %w", c.ID, err)
	}
	return nil
}

func (s *Store) GetCycle(ctx context.Context, id string) (*researchcycle.ResearchCycle, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT id, title, owner_agent_id, current_state, rejections, audit, created_at, updated_at
		 FROM research_cycles WHERE id = $1`, id)

	c, err := scanResearchCycle(row)
	if err != nil {
		return nil, notFoundWrap(err, "get research cycle %s", id)
	}
	return &c, nil
}

func (s *Store) ListCycles(ctx context.Context) ([]*researchcycle.ResearchCycle, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, title, owner_agent_id, current_state, rejections, audit, created_at, updated_at
		 FROM research_cycles ORDER BY created_at`)
	if err != nil {
		return nil, fmt.Errorf("list research cycles: %w", err)
	}
	defer rows.Close()

	var cycles []*researchcycle.ResearchCycle
	for rows.Next() {
		c, err := scanResearchCycle(rows)
		if err != nil {
			return nil, err
		}
		cycles = append(cycles, &c)
	}
	return cycles, rows.Err()
}

func (s *Store) UpdateCycle(ctx context.Context, c *researchcycle.ResearchCycle) error {
	auditJSON, err := json.Marshal(orEmpty(c.Audit))
	if err != nil {
		return fmt.Errorf("marshal audit: %w", err)
	}
	tag, err := s.pool.Exec(ctx,
		`UPDATE research_cycles SET title = $2, current_state = $3, rejections = $4, audit = $5, updated_at = $6
		 WHERE id = $1`,
		c.ID, c.Title, string(c.CurrentState), c.Rejections, auditJSON, c.UpdatedAt)
	return execExpectOne(tag, err, "update research cycle %s", c.ID)
}

func scanResearchCycle(row scannable) (researchcycle.ResearchCycle, error) {
	var c researchcycle.ResearchCycle
	var state string
	var auditJSON []byte
	err := row.Scan(&c.ID, &c.Title, &c.OwnerAgentID, &state, &c.Rejections, &auditJSON, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		return c, err
	}
	c.CurrentState = researchcycle.State(state)
	if auditJSON != nil {
		if err := json.Unmarshal(auditJSON, &c.Audit); err != nil {
			return c, fmt.Errorf("unmarshal audit: %w", err)
		}
	}
	return c, nil
}
