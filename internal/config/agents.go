package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/agentorg/runtime/internal/domain/agent"
	"github.com/agentorg/runtime/internal/service"
)

// AgentsFile is the parsed contents of agents.yaml: a map from agent id to
// its definition (spec.md §6).
type AgentsFile struct {
	Agents map[string]AgentDefinition `yaml:"agents"`
}

// AgentDefinition is one agent's row in agents.yaml.
type AgentDefinition struct {
	Name           string   `yaml:"name"`
	NameEN         string   `yaml:"name_en"`
	Department     string   `yaml:"department"`
	Team           string   `yaml:"team"`
	ReportsTo      string   `yaml:"reports_to"`
	IsLead         bool     `yaml:"is_lead"`
	CapabilityTier int      `yaml:"capability_tier"`
	RoleKind       string   `yaml:"role_kind"`
	VetoPower      bool     `yaml:"veto_power"`
	CanForceRetest bool     `yaml:"can_force_retest"`
	PersonaTraits  []string `yaml:"persona_traits"`
}

// LoadAgentsYAML reads and parses an agents.yaml file at path.
func LoadAgentsYAML(path string) (map[string]AgentDefinition, error) {
	data, err := os.ReadFile(path) //nolint:gosec // G304: path comes from trusted config
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	var file AgentsFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return file.Agents, nil
}

// CreateRequest converts one parsed agents.yaml row into the domain's
// agent.CreateRequest, validating the declared role_kind.
func (d AgentDefinition) CreateRequest(id string) (agent.CreateRequest, error) {
	if !agent.ValidRoleKind(d.RoleKind) {
		return agent.CreateRequest{}, fmt.Errorf("agents.yaml: agent %q has unknown role_kind %q", id, d.RoleKind)
	}
	return agent.CreateRequest{
		ID:             id,
		Name:           d.Name,
		NameEN:         d.NameEN,
		Department:     d.Department,
		Team:           d.Team,
		ReportsTo:      d.ReportsTo,
		IsLead:         d.IsLead,
		CapabilityTier: d.CapabilityTier,
		RoleKind:       agent.RoleKind(d.RoleKind),
		VetoPower:      d.VetoPower,
		CanForceRetest: d.CanForceRetest,
		PersonaTraits:  d.PersonaTraits,
	}, nil
}

// LoadPermissionsYAML reads and parses a permissions.yaml file at path into
// the service layer's PermissionSet.
func LoadPermissionsYAML(path string) (service.PermissionSet, error) {
	data, err := os.ReadFile(path) //nolint:gosec // G304: path comes from trusted config
	if err != nil {
		return service.PermissionSet{}, fmt.Errorf("read %s: %w", path, err)
	}
	var set service.PermissionSet
	if err := yaml.Unmarshal(data, &set); err != nil {
		return service.PermissionSet{}, fmt.Errorf("parse %s: %w", path, err)
	}
	return set, nil
}
