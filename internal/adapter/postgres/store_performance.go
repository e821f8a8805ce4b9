package postgres

import (
	"context"
	"fmt"

	"github.com/agentorg/runtime/internal/domain/performance"
)

// Scorecard has no ID field in the domain; row_id is an internal serial
// key never surfaced to callers.
func (s *Store) AppendScorecard(ctx context.Context, sc *performance.Scorecard) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO performance_scorecards (agent_id, period_start, period_end, tasks_completed, tasks_failed,
		                                      tool_calls_approved, tool_calls_rejected, research_cycle_wins,
		                                      research_rejections, reputation_delta, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		sc.AgentID, sc.PeriodStart, sc.PeriodEnd, sc.TasksCompleted, sc.TasksFailed, sc.ToolCallsApproved,
		sc.ToolCallsRejected, sc.ResearchCycleWins, sc.ResearchRejections, sc.ReputationDelta, sc.CreatedAt)
	if err != nil {
		return fmt.Errorf("append scorecard for %s: %w", sc.AgentID, err)
	}
	return nil
}

func (s *Store) ListScorecards(ctx context.Context, agentID string) ([]*performance.Scorecard, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT agent_id, period_start, period_end, tasks_completed, tasks_failed, tool_calls_approved,
		        tool_calls_rejected, research_cycle_wins, research_rejections, reputation_delta, created_at
		 FROM performance_scorecards WHERE agent_id = $1 ORDER BY period_start`, agentID)
	if err != nil {
		return nil, fmt.Errorf("list scorecards: %w", err)
	}
	defer rows.Close()

	var scorecards []*performance.Scorecard
	for rows.Next() {
		sc, err := scanScorecard(rows)
		if err != nil {
			return nil, err
		}
		scorecards = append(scorecards, &sc)
	}
	return scorecards, rows.Err()
}

func scanScorecard(row scannable) (performance.Scorecard, error) {
	var sc performance.Scorecard
	err := row.Scan(&sc.AgentID, &sc.PeriodStart, &sc.PeriodEnd, &sc.TasksCompleted, &sc.TasksFailed,
		&sc.ToolCallsApproved, &sc.ToolCallsRejected, &sc.ResearchCycleWins, &sc.ResearchRejections,
		&sc.ReputationDelta, &sc.CreatedAt)
	return sc, err
}
