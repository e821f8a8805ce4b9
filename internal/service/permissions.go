package service

import (
	"path/filepath"
	"strings"
)

// ToolPermission is one tool's row from permissions.yaml: allow-lists,
// parameter caps, and approval thresholds layered on top of the tool's own
// ToolSchema declaration.
type ToolPermission struct {
	AllowedAgents         []string       `yaml:"allowed_agents"`
	AllowedDepartments    []string       `yaml:"allowed_departments"`
	MaxCost               *float64       `yaml:"max_cost"`
	RequiresApprovalAbove *float64       `yaml:"requires_approval_above"`
	Approvers             []string       `yaml:"approvers"`
	MaxLimit              *float64       `yaml:"max_limit"`
	AllowedTimeframes     []string       `yaml:"allowed_timeframes"`
	ScopeApproval         map[string]any `yaml:"scope_approval"`
}

// PermissionSet is the parsed contents of permissions.yaml: tool name to
// ToolPermission.
type PermissionSet struct {
	Tools map[string]ToolPermission `yaml:"tools"`
}

// AgentAllowed reports whether agentID matches perm's allow-list, honoring
// glob patterns (e.g. "researcher_*"). An empty allow-list permits anyone.
func (p ToolPermission) AgentAllowed(agentID string) bool {
	if len(p.AllowedAgents) == 0 {
		return true
	}
	for _, pattern := range p.AllowedAgents {
		if ok, _ := filepath.Match(pattern, agentID); ok {
			return true
		}
	}
	return false
}

// DepartmentAllowed reports whether dept matches perm's department
// allow-list. An empty allow-list permits any department.
func (p ToolPermission) DepartmentAllowed(dept string) bool {
	if len(p.AllowedDepartments) == 0 {
		return true
	}
	for _, d := range p.AllowedDepartments {
		if strings.EqualFold(d, dept) {
			return true
		}
	}
	return false
}

// CheckParamCaps verifies args against MaxLimit/AllowedTimeframes, the two
// parameter caps spec.md §4.2 names explicitly.
func (p ToolPermission) CheckParamCaps(args map[string]any) error {
	if p.MaxLimit != nil {
		if limit, ok := numericArg(args, "limit"); ok && limit > *p.MaxLimit {
			return &PermissionError{Reason: "limit exceeds max_limit"}
		}
	}
	if len(p.AllowedTimeframes) > 0 {
		if tf, ok := args["timeframe"].(string); ok {
			allowed := false
			for _, t := range p.AllowedTimeframes {
				if t == tf {
					allowed = true
					break
				}
			}
			if !allowed {
				return &PermissionError{Reason: "timeframe not allowed"}
			}
		}
	}
	return nil
}

// PermissionError is returned by CheckParamCaps for a capped-parameter
// violation.
type PermissionError struct {
	Reason string
}

func (e *PermissionError) Error() string {
	return "permission denied: " + e.Reason
}

func numericArg(args map[string]any, key string) (float64, bool) {
	v, ok := args[key]
	if !ok {
		return 0, false
	}
	switch n := v.(type) {
	case float64:
		return n, true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	}
	return 0, false
}
