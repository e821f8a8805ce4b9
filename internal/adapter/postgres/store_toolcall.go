package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/agentorg/runtime/internal/domain/toolcall"
)

func (s *Store) AppendToolCall(ctx context.Context, c *toolcall.Call) error {
	argsJSON, err := json.Marshal(c.Args)
	if err != nil {
		return fmt.Errorf("marshal args: %w", err)
	}
	var resultJSON []byte
	if c.Result != nil {
		resultJSON, err = json.Marshal(c.Result)
		if err != nil {
			return fmt.Errorf("marshal result: %w", err)
		}
	}

	_, err = s.pool.Exec(ctx,
		`INSERT INTO tool_calls (id, agent_id, tool, args, estimated_cost, actual_cost, status, result, error,
		                         data_version_hash, experiment_id, "timestamp")
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
		c.ID, c.AgentID, c.Tool, argsJSON, c.EstimatedCost, c.ActualCost, string(c.Status), resultJSON,
		c.Error, c.DataVersionHash, c.ExperimentID, c.Timestamp)
	if err != nil {
		return fmt.Errorf("append tool call %s: %w", c.ID, err)
	}
	return nil
}

func (s *Store) ListToolCalls(ctx context.Context, agentID string, since time.Time) ([]*toolcall.Call, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, agent_id, tool, args, estimated_cost, actual_cost, status, result, error,
		        data_version_hash, experiment_id, "timestamp"
		 FROM tool_calls WHERE agent_id = $1 AND "timestamp" >= $2 ORDER BY "timestamp"`,
		agentID, since)
	if err != nil {
		return nil, fmt.Errorf("list tool calls: %w", err)
	}
	defer rows.Close()

	var calls []*toolcall.Call
	for rows.Next() {
		c, err := scanToolCall(rows)
		if err != nil {
			return nil, err
		}
		calls = append(calls, &c)
	}
	return calls, rows.Err()
}

func scanToolCall(row scannable) (toolcall.Call, error) {
	var c toolcall.Call
	var status string
	var argsJSON, resultJSON []byte
	err := row.Scan(&c.ID, &c.AgentID, &c.Tool, &argsJSON, &c.EstimatedCost, &c.ActualCost, &status,
		&resultJSON, &c.Error, &c.DataVersionHash, &c.ExperimentID, &c.Timestamp)
	if err != nil {
		return c, err
	}
	c.Status = toolcall.Status(status)
	if argsJSON != nil {
		if err := json.Unmarshal(argsJSON, &c.Args); err != nil {
			return c, fmt.Errorf("unmarshal args: %w", err)
		}
	}
	if resultJSON != nil {
		if err := json.Unmarshal(resultJSON, &c.Result); err != nil {
			return c, fmt.Errorf("unmarshal result: %w", err)
		}
	}
	return c, nil
}
