// Package agent defines the Agent domain entity: the worker identity driven
// by an LLM backend that participates in the organization.
package agent

import "time"

// Status represents the lifecycle state of an agent.
type Status string

const (
	StatusActive     Status = "ACTIVE"
	StatusFrozen     Status = "FROZEN"
	StatusSuspended  Status = "SUSPENDED"
	StatusTerminated Status = "TERMINATED"
)

// IsTerminal reports whether the agent can no longer act.
func (s Status) IsTerminal() bool {
	return s == StatusTerminated
}

// IsActive reports whether the agent's loop should keep draining work.
func (s Status) IsActive() bool {
	return s == StatusActive
}

// RoleKind identifies the behavioral variant an agent runs; role differences
// live entirely in the CheckForWork/ExecuteTask override for that kind.
type RoleKind string

const (
	RoleResearcher   RoleKind = "researcher"
	RoleRisk         RoleKind = "risk"
	RoleTrader       RoleKind = "trader"
	RoleIntelligence RoleKind = "intelligence"
	RoleLead         RoleKind = "lead"
	RoleDirector     RoleKind = "director"
	RoleExecutive    RoleKind = "executive"
)

// ValidRoleKind reports whether r is a known role kind.
func ValidRoleKind(r string) bool {
	switch RoleKind(r) {
	case RoleResearcher, RoleRisk, RoleTrader, RoleIntelligence, RoleLead, RoleDirector, RoleExecutive:
		return true
	}
	return false
}

// Agent is the worker identity. Created at startup from agents.yaml; mutated
// by the scheduler and by governance (freeze/suspend/terminate, reputation
// adjustments); destroyed only on termination.
type Agent struct {
	ID              string   `json:"id"`
	Name            string   `json:"name"`
	NameEN          string   `json:"name_en,omitempty"`
	Department      string   `json:"department"`
	Team            string   `json:"team,omitempty"`
	ReportsTo       string   `json:"reports_to,omitempty"` // weak reference: id only, resolved at read time
	IsLead          bool     `json:"is_lead"`
	CapabilityTier  int      `json:"capability_tier"`
	RoleKind        RoleKind `json:"role_kind"`
	VetoPower       bool     `json:"veto_power"`
	CanForceRetest  bool     `json:"can_force_retest"`
	PersonaTraits   []string `json:"persona_traits,omitempty"`
	RemainingBudget float64  `json:"remaining_budget"`
	ReputationScore float64  `json:"reputation_score"`
	Status          Status   `json:"status"`
	Version         int      `json:"version"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// CreateRequest holds the fields parsed out of agents.yaml for one agent.
type CreateRequest struct {
	ID             string
	Name           string
	NameEN         string
	Department     string
	Team           string
	ReportsTo      string
	IsLead         bool
	CapabilityTier int
	RoleKind       RoleKind
	VetoPower      bool
	CanForceRetest bool
	PersonaTraits  []string
}

// New builds an Agent in ACTIVE status from a CreateRequest, stamping
// creation/update timestamps with the supplied now.
func New(req CreateRequest, now time.Time) *Agent {
	return &Agent{
		ID:             req.ID,
		Name:           req.Name,
		NameEN:         req.NameEN,
		Department:     req.Department,
		Team:           req.Team,
		ReportsTo:      req.ReportsTo,
		IsLead:         req.IsLead,
		CapabilityTier: req.CapabilityTier,
		RoleKind:       req.RoleKind,
		VetoPower:      req.VetoPower,
		CanForceRetest: req.CanForceRetest,
		PersonaTraits:  req.PersonaTraits,
		Status:         StatusActive,
		Version:        1,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
}
