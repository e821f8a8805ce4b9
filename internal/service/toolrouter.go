// Package service implements the application-layer components of the
// runtime: ToolRouter, AgentRuntime, Scheduler, TopicManager, RiskGovernance,
// IntentionSystem, FeedbackChannel, PerformanceSystem, and the root
// Runtime that composes them. Grounded throughout on the teacher's
// internal/service package shape (constructor takes store + port
// dependencies, exported methods take ctx first, errors wrapped with
// component context).
package service

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/agentorg/runtime/internal/adapter/otel"
	"github.com/agentorg/runtime/internal/domain"
	"github.com/agentorg/runtime/internal/domain/budget"
	"github.com/agentorg/runtime/internal/domain/toolcall"
	"github.com/agentorg/runtime/internal/port/store"
	"github.com/agentorg/runtime/internal/port/toolhandler"
)

// ToolRegistry holds frozen tool schemas declared once at startup (spec.md
// §4.2: "Tool contracts are declared once and frozen at startup").
// Grounded on toolhandler.Registry's map-keyed-by-category shape, here
// keyed by tool name instead.
type ToolRegistry struct {
	mu      sync.RWMutex
	schemas map[string]toolcall.Schema
}

// NewToolRegistry returns an empty registry.
func NewToolRegistry() *ToolRegistry {
	return &ToolRegistry{schemas: make(map[string]toolcall.Schema)}
}

// Register freezes a tool's schema under its name. Intended to be called
// only during startup wiring.
func (r *ToolRegistry) Register(schema toolcall.Schema) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.schemas[schema.Name] = schema
}

// Lookup returns the frozen schema for name, if declared.
func (r *ToolRegistry) Lookup(name string) (toolcall.Schema, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.schemas[name]
	return s, ok
}

// SchemaValidator validates call arguments against a schema's declared
// parameters; satisfied by adapter/jsonschema.Validator.
type SchemaValidator interface {
	Validate(schema toolcall.Schema, args map[string]any) error
}

// ToolRouter is the permission+budget+audit gate every tool call passes
// through. Grounded on the teacher's policy-evaluation-then-execute
// sequence (service/policy.go + service/runtime_execution.go), generalized
// from coding-agent command permissions to the spec's cost/budget/approval
// gate.
type ToolRouter struct {
	registry   *ToolRegistry
	perms      PermissionSet
	handlers   *toolhandler.Registry
	validator  SchemaValidator
	store      store.Store
	metrics    *otel.Metrics
	budgetMu   sync.Mutex // serializes account deduction per spec.md §5
	agentTeams func(agentID string) (team, department string) // resolves an agent's scoping info
}

// NewToolRouter constructs a ToolRouter. agentTeams resolves an agent id to
// its team and department, used for budget-account fallback and
// department permission checks.
func NewToolRouter(registry *ToolRegistry, perms PermissionSet, handlers *toolhandler.Registry, validator SchemaValidator, st store.Store, agentTeams func(string) (string, string)) *ToolRouter {
	return &ToolRouter{
		registry: registry, perms: perms, handlers: handlers,
		validator: validator, store: st, agentTeams: agentTeams,
	}
}

// SetMetrics attaches an OTEL metrics instrument set. Pass nil to disable.
func (r *ToolRouter) SetMetrics(m *otel.Metrics) {
	r.metrics = m
}

// Execute runs the full gate sequence of spec.md §4.2 steps 1-7.
func (r *ToolRouter) Execute(ctx context.Context, agentID, tool string, args map[string]any, meetingID, cycleID string) (toolcall.Result, error) {
	ctx, span := otel.StartToolCallSpan(ctx, newCallID(), agentID, tool)
	defer span.End()

	schema, ok := r.registry.Lookup(tool)
	if !ok {
		return toolcall.Result{}, fmt.Errorf("toolrouter: %w: %s", domain.ErrUnknownTool, tool)
	}

	team, dept := "", ""
	if r.agentTeams != nil {
		team, dept = r.agentTeams(agentID)
	}

	if err := r.checkPermissions(schema, agentID, dept, args); err != nil {
		r.audit(ctx, agentID, tool, args, 0, toolcall.StatusRejected, nil, err.Error())
		r.recordRejected(ctx)
		return toolcall.Result{}, err
	}

	cost := schema.EstimateCost(args)

	if r.validator != nil {
		if err := r.validator.Validate(schema, args); err != nil {
			wrapped := fmt.Errorf("toolrouter: %w: %v", domain.ErrPreconditionFailed, err)
			r.audit(ctx, agentID, tool, args, cost, toolcall.StatusRejected, nil, wrapped.Error())
			r.recordRejected(ctx)
			return toolcall.Result{}, wrapped
		}
	}

	perm := r.perms.Tools[tool]
	if perm.RequiresApprovalAbove != nil && cost > *perm.RequiresApprovalAbove {
		err := fmt.Errorf("toolrouter: %w: cost %.2f exceeds threshold %.2f, approvers=%v",
			domain.ErrApprovalRequired, cost, *perm.RequiresApprovalAbove, perm.Approvers)
		r.audit(ctx, agentID, tool, args, cost, toolcall.StatusRejected, nil, err.Error())
		r.recordRejected(ctx)
		return toolcall.Result{}, err
	}

	account, err := r.resolveAccount(ctx, agentID, team)
	if err != nil {
		return toolcall.Result{}, fmt.Errorf("toolrouter: resolve budget account: %w", err)
	}
	if account.Remaining() < cost {
		err := fmt.Errorf("toolrouter: %w: remaining %.2f < cost %.2f", domain.ErrInsufficientBudget, account.Remaining(), cost)
		r.audit(ctx, agentID, tool, args, cost, toolcall.StatusRejected, nil, err.Error())
		r.recordRejected(ctx)
		return toolcall.Result{}, err
	}

	callID := newCallID()
	r.audit(ctx, agentID, tool, args, cost, toolcall.StatusRequested, nil, "")

	handler, ok := r.handlers.Lookup(schema.Category)
	if !ok {
		err := fmt.Errorf("toolrouter: %w: no handler for category %s", domain.ErrToolNotInitialized, schema.Category)
		r.appendCall(ctx, callID, agentID, tool, args, cost, 0, toolcall.StatusFailed, nil, err.Error())
		return toolcall.Result{}, err
	}

	result, err := handler.Execute(ctx, agentID, tool, args, meetingID, cycleID)
	if err != nil {
		wrapped := fmt.Errorf("toolrouter: %w: %v", domain.ErrHandlerFailure, err)
		r.appendCall(ctx, callID, agentID, tool, args, cost, 0, toolcall.StatusFailed, nil, wrapped.Error())
		return toolcall.Result{}, wrapped
	}
	if !result.Success {
		r.appendCall(ctx, callID, agentID, tool, args, cost, 0, toolcall.StatusFailed, result.Data, result.Error)
		return result, fmt.Errorf("toolrouter: %w: %s", domain.ErrHandlerFailure, result.Error)
	}

	// Budget is deducted iff the handler reported success (spec.md §4.2 invariant).
	r.budgetMu.Lock()
	account.MaybeResetPeriod(time.Now())
	deductErr := account.Deduct(cost, time.Now())
	if deductErr == nil {
		_ = r.store.UpsertAccount(ctx, account)
	}
	r.budgetMu.Unlock()
	if deductErr != nil {
		r.appendCall(ctx, callID, agentID, tool, args, cost, 0, toolcall.StatusFailed, result.Data, deductErr.Error())
		return toolcall.Result{}, fmt.Errorf("toolrouter: %w", deductErr)
	}

	r.appendCall(ctx, callID, agentID, tool, args, cost, cost, toolcall.StatusCompleted, result.Data, "")
	if r.metrics != nil {
		r.metrics.ToolCallsAllowed.Add(ctx, 1)
		r.metrics.ToolCallCost.Record(ctx, cost)
	}
	return result, nil
}

// recordRejected increments the rejected-tool-call counter, if metrics are
// attached.
func (r *ToolRouter) recordRejected(ctx context.Context) {
	if r.metrics != nil {
		r.metrics.ToolCallsRejected.Add(ctx, 1)
	}
}

func (r *ToolRouter) checkPermissions(schema toolcall.Schema, agentID, dept string, args map[string]any) error {
	if len(schema.AllowedDepartments) > 0 && !containsFold(schema.AllowedDepartments, dept) {
		return fmt.Errorf("toolrouter: %w: department %s not allowed for %s", domain.ErrPermissionDenied, dept, schema.Name)
	}
	perm, ok := r.perms.Tools[schema.Name]
	if !ok {
		return nil
	}
	if !perm.AgentAllowed(agentID) {
		return fmt.Errorf("toolrouter: %w: agent %s not allowed for %s", domain.ErrPermissionDenied, agentID, schema.Name)
	}
	if !perm.DepartmentAllowed(dept) {
		return fmt.Errorf("toolrouter: %w: department %s not allowed for %s", domain.ErrPermissionDenied, dept, schema.Name)
	}
	if err := perm.CheckParamCaps(args); err != nil {
		return fmt.Errorf("toolrouter: %w: %v", domain.ErrPermissionDenied, err)
	}
	return nil
}

func containsFold(list []string, v string) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}

// resolveAccount looks up the agent's own budget account, falling back to
// its team's account per spec.md §4.2 step 3.
func (r *ToolRouter) resolveAccount(ctx context.Context, agentID, team string) (*budget.Account, error) {
	acct, err := r.store.GetAccount(ctx, agentID, budget.AccountAgent)
	if err == nil {
		return acct, nil
	}
	if team == "" {
		return nil, err
	}
	return r.store.GetAccount(ctx, team, budget.AccountTeam)
}

func (r *ToolRouter) audit(ctx context.Context, agentID, tool string, args map[string]any, cost float64, status toolcall.Status, result map[string]any, errMsg string) {
	r.appendCall(ctx, newCallID(), agentID, tool, args, cost, 0, status, result, errMsg)
}

func (r *ToolRouter) appendCall(ctx context.Context, id, agentID, tool string, args map[string]any, estimated, actual float64, status toolcall.Status, result map[string]any, errMsg string) {
	call := &toolcall.Call{
		ID: id, AgentID: agentID, Tool: tool, Args: args,
		EstimatedCost: estimated, ActualCost: actual, Status: status,
		Result: result, Error: errMsg, Timestamp: time.Now(),
	}
	if err := r.store.AppendToolCall(ctx, call); err != nil {
		slog.Error("toolrouter: failed to append audit row", "tool", tool, "agent", agentID, "error", err)
	}
}

func newCallID() string {
	buf := make([]byte, 8)
	_, _ = rand.Read(buf)
	return "call_" + hex.EncodeToString(buf)
}
