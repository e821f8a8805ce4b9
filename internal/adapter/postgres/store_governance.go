package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/agentorg/runtime/internal/domain/risk"
)

func (s *Store) CreateRule(ctx context.Context, r *risk.RiskRule) error {
	paramsJSON, err := json.Marshal(r.Parameters)
	if err != nil {
		return fmt.Errorf("marshal parameters: %w", err)
	}
	votersJSON, err := json.Marshal(orEmpty(r.RequiredVoters))
	if err != nil {
		return fmt.Errorf("marshal required_voters: %w", err)
	}
	votesJSON, err := json.Marshal(orEmpty(r.Votes))
	if err != nil {
		return fmt.Errorf("marshal votes: %w", err)
	}

	_, err = s.pool.Exec(ctx,
		`INSERT INTO governance_rules (id, kind, name, parameters, status, required_voters, required_approval_rate,
		                                votes, effective_from, suspended_reason, proposed_by, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`,
		r.ID, string(r.Kind), r.Name, paramsJSON, string(r.Status), votersJSON, r.RequiredApprovalRate,
		votesJSON, nullableTime(r.EffectiveFrom), r.SuspendedReason, r.ProposedBy, r.CreatedAt, r.UpdatedAt)
	if err != nil {
		return fmt.Errorf("create governance rule %s: %w", r.ID, err)
	}
	return nil
}

func (s *Store) GetRule(ctx context.Context, id string) (*risk.RiskRule, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT id, kind, name, parameters, status, required_voters, required_approval_rate, votes,
		        effective_from, suspended_reason, proposed_by, created_at, updated_at
		 FROM governance_rules WHERE id = $1`, id)

	r, err := scanRiskRule(row)
	if err != nil {
		return nil, notFoundWrap(err, "get governance rule %s", id)
	}
	return &r, nil
}

func (s *Store) ListActiveRules(ctx context.Context) ([]*risk.RiskRule, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, kind, name, parameters, status, required_voters, required_approval_rate, votes,
		        effective_from, suspended_reason, proposed_by, created_at, updated_at
		 FROM governance_rules WHERE status = $1 ORDER BY created_at`, string(risk.StatusActive))
	if err != nil {
		return nil, fmt.Errorf("list active governance rules: %w", err)
	}
	defer rows.Close()

	var rules []*risk.RiskRule
	for rows.Next() {
		r, err := scanRiskRule(rows)
		if err != nil {
			return nil, err
		}
		rules = append(rules, &r)
	}
	return rules, rows.Err()
}

func (s *Store) UpdateRule(ctx context.Context, r *risk.RiskRule) error {
	votesJSON, err := json.Marshal(orEmpty(r.Votes))
	if err != nil {
		return fmt.Errorf("marshal votes: %w", err)
	}
	tag, err := s.pool.Exec(ctx,
		`UPDATE governance_rules SET status = $2, votes = $3, effective_from = $4, suspended_reason = $5,
		                              updated_at = $6
		 WHERE id = $1`,
		r.ID, string(r.Status), votesJSON, nullableTime(r.EffectiveFrom), r.SuspendedReason, r.UpdatedAt)
	return execExpectOne(tag, err, "update governance rule %s", r.ID)
}

func (s *Store) AppendDecision(ctx context.Context, d *risk.GovernanceDecision) error {
	participantsJSON, err := json.Marshal(orEmpty(d.Participants))
	if err != nil {
		return fmt.Errorf("marshal participants: %w", err)
	}
	if d.ID == "" {
		d.ID = newRowID("decision")
	}
	_, err = s.pool.Exec(ctx,
		`INSERT INTO governance_decisions (id, rule_id, participants, approval_rate, resolution, decided_at)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		d.ID, d.RuleID, participantsJSON, d.ApprovalRate, string(d.Resolution), d.DecidedAt)
	if err != nil {
		return fmt.Errorf("append governance decision %s: %w", d.ID, err)
	}
	return nil
}

func (s *Store) AppendGovernanceAlert(ctx context.Context, ruleID, severity, message string, at time.Time) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO governance_alerts (id, rule_id, severity, message, created_at) VALUES ($1, $2, $3, $4, $5)`,
		newRowID("alert"), ruleID, severity, message, at)
	if err != nil {
		return fmt.Errorf("append governance alert for rule %s: %w", ruleID, err)
	}
	return nil
}

func scanRiskRule(row scannable) (risk.RiskRule, error) {
	var r risk.RiskRule
	var kind, status string
	var paramsJSON, votersJSON, votesJSON []byte
	var effectiveFrom *time.Time
	err := row.Scan(&r.ID, &kind, &r.Name, &paramsJSON, &status, &votersJSON, &r.RequiredApprovalRate,
		&votesJSON, &effectiveFrom, &r.SuspendedReason, &r.ProposedBy, &r.CreatedAt, &r.UpdatedAt)
	if err != nil {
		return r, err
	}
	r.Kind = risk.Kind(kind)
	r.Status = risk.Status(status)
	r.EffectiveFrom = effectiveFrom
	if paramsJSON != nil {
		if err := json.Unmarshal(paramsJSON, &r.Parameters); err != nil {
			return r, fmt.Errorf("unmarshal parameters: %w", err)
		}
	}
	if votersJSON != nil {
		if err := json.Unmarshal(votersJSON, &r.RequiredVoters); err != nil {
			return r, fmt.Errorf("unmarshal required_voters: %w", err)
		}
	}
	if votesJSON != nil {
		if err := json.Unmarshal(votesJSON, &r.Votes); err != nil {
			return r, fmt.Errorf("unmarshal votes: %w", err)
		}
	}
	return r, nil
}
