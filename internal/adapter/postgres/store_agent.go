package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/agentorg/runtime/internal/domain/agent"
)

// --- Agents ---

func (s *Store) CreateAgent(ctx context.Context, a *agent.Agent) error {
	traitsJSON, err := json.Marshal(orEmpty(a.PersonaTraits))
	if err != nil {
		return fmt.Errorf("marshal persona_traits: %w", err)
	}

	_, err = s.pool.Exec(ctx,
		`INSERT INTO agents (id, name, name_en, department, team, reports_to, is_lead, capability_tier,
		                      role_kind, veto_power, can_force_retest, persona_traits, remaining_budget,
		                      reputation_score, status, version, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18)`,
		a.ID, a.Name, a.NameEN, a.Department, a.Team, a.ReportsTo, a.IsLead, a.CapabilityTier,
		string(a.RoleKind), a.VetoPower, a.CanForceRetest, traitsJSON, a.RemainingBudget,
		a.ReputationScore, string(a.Status), a.Version, a.CreatedAt, a.UpdatedAt)
	if err != nil {
		return fmt.Errorf("create agent %s: %w", a.ID, err)
	}
	return nil
}

func (s *Store) GetAgent(ctx context.Context, id string) (*agent.Agent, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT id, name, name_en, department, team, reports_to, is_lead, capability_tier, role_kind,
		        veto_power, can_force_retest, persona_traits, remaining_budget, reputation_score, status,
		        version, created_at, updated_at
		 FROM agents WHERE id = $1`, id)

	a, err := scanAgent(row)
	if err != nil {
		return nil, notFoundWrap(err, "get agent %s", id)
	}
	return &a, nil
}

func (s *Store) ListAgents(ctx context.Context) ([]*agent.Agent, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, name, name_en, department, team, reports_to, is_lead, capability_tier, role_kind,
		        veto_power, can_force_retest, persona_traits, remaining_budget, reputation_score, status,
		        version, created_at, updated_at
		 FROM agents ORDER BY created_at`)
	if err != nil {
		return nil, fmt.Errorf("list agents: %w", err)
	}
	defer rows.Close()

	var agents []*agent.Agent
	for rows.Next() {
		a, err := scanAgent(rows)
		if err != nil {
			return nil, err
		}
		agents = append(agents, &a)
	}
	return agents, rows.Err()
}

func (s *Store) UpdateAgent(ctx context.Context, a *agent.Agent) error {
	traitsJSON, err := json.Marshal(orEmpty(a.PersonaTraits))
	if err != nil {
		return fmt.Errorf("marshal persona_traits: %w", err)
	}

	tag, err := s.pool.Exec(ctx,
		`UPDATE agents SET name = $2, name_en = $3, department = $4, team = $5, reports_to = $6,
		                    is_lead = $7, capability_tier = $8, role_kind = $9, veto_power = $10,
		                    can_force_retest = $11, persona_traits = $12, remaining_budget = $13,
		                    reputation_score = $14, status = $15, version = version + 1, updated_at = $16
		 WHERE id = $1 AND version = $17`,
		a.ID, a.Name, a.NameEN, a.Department, a.Team, a.ReportsTo, a.IsLead, a.CapabilityTier,
		string(a.RoleKind), a.VetoPower, a.CanForceRetest, traitsJSON, a.RemainingBudget,
		a.ReputationScore, string(a.Status), a.UpdatedAt, a.Version)
	if err := execExpectOne(tag, err, "update agent %s", a.ID); err != nil {
		return err
	}
	a.Version++
	return nil
}

// --- Lifecycle proposals ---

func (s *Store) CreateLifecycleProposal(ctx context.Context, p *agent.LifecycleProposal) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO lifecycle_proposals (id, kind, agent_id, requester, reason, status, decision_by, decided_at, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		p.ID, string(p.Kind), p.AgentID, p.Requester, p.Reason, string(p.Status), p.DecisionBy,
		nullableTime(p.DecidedAt), p.CreatedAt)
	if err != nil {
		return fmt.Errorf("create lifecycle proposal %s: %w", p.ID, err)
	}
	return nil
}

func (s *Store) UpdateLifecycleProposal(ctx context.Context, p *agent.LifecycleProposal) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE lifecycle_proposals SET status = $2, decision_by = $3, decided_at = $4 WHERE id = $1`,
		p.ID, string(p.Status), p.DecisionBy, nullableTime(p.DecidedAt))
	return execExpectOne(tag, err, "update lifecycle proposal %s", p.ID)
}

func (s *Store) ListLifecycleProposals(ctx context.Context, status agent.ProposalStatus) ([]*agent.LifecycleProposal, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, kind, agent_id, requester, reason, status, decision_by, decided_at, created_at
		 FROM lifecycle_proposals WHERE status = $1 ORDER BY created_at`, string(status))
	if err != nil {
		return nil, fmt.Errorf("list lifecycle proposals: %w", err)
	}
	defer rows.Close()

	var proposals []*agent.LifecycleProposal
	for rows.Next() {
		p, err := scanLifecycleProposal(rows)
		if err != nil {
			return nil, err
		}
		proposals = append(proposals, &p)
	}
	return proposals, rows.Err()
}

// --- Freezes ---

func (s *Store) CreateFreeze(ctx context.Context, f *agent.Freeze) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO agent_freezes (id, agent_id, reason, frozen_by, frozen_at, lifted_at)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		f.ID, f.AgentID, f.Reason, f.FrozenBy, f.FrozenAt, nullableTime(f.LiftedAt))
	if err != nil {
		return fmt.Errorf("create freeze %s: %w", f.ID, err)
	}
	return nil
}

func (s *Store) LiftFreeze(ctx context.Context, id string, liftedAt time.Time) error {
	tag, err := s.pool.Exec(ctx, `UPDATE agent_freezes SET lifted_at = $2 WHERE id = $1`, id, liftedAt)
	return execExpectOne(tag, err, "lift freeze %s", id)
}

// --- Scanners ---

func scanAgent(row scannable) (agent.Agent, error) {
	var a agent.Agent
	var roleKind, status string
	var traitsJSON []byte
	err := row.Scan(&a.ID, &a.Name, &a.NameEN, &a.Department, &a.Team, &a.ReportsTo, &a.IsLead,
		&a.CapabilityTier, &roleKind, &a.VetoPower, &a.CanForceRetest, &traitsJSON, &a.RemainingBudget,
		&a.ReputationScore, &status, &a.Version, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		return a, err
	}
	a.RoleKind = agent.RoleKind(roleKind)
	a.Status = agent.Status(status)
	if traitsJSON != nil {
		if err := json.Unmarshal(traitsJSON, &a.PersonaTraits); err != nil {
			return a, fmt.Errorf("unmarshal persona_traits: %w", err)
		}
	}
	return a, nil
}

func scanLifecycleProposal(row scannable) (agent.LifecycleProposal, error) {
	var p agent.LifecycleProposal
	var kind, status string
	var decidedAt *time.Time
	err := row.Scan(&p.ID, &kind, &p.AgentID, &p.Requester, &p.Reason, &status, &p.DecisionBy,
		&decidedAt, &p.CreatedAt)
	if err != nil {
		return p, err
	}
	p.Kind = agent.ProposalKind(kind)
	p.Status = agent.ProposalStatus(status)
	p.DecidedAt = decidedAt
	return p, nil
}
