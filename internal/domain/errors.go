// Package domain provides shared domain-level sentinel errors.
package domain

import "errors"

// ErrNotFound indicates the requested entity does not exist.
var ErrNotFound = errors.New("not found")

// ErrConflict indicates a concurrent modification conflict (optimistic locking).
var ErrConflict = errors.New("conflict: resource was modified by another request")

// Error kinds carried through ToolRouter/AgentRuntime return values per
// spec.md §7 ("Error Handling Design") — returned, never thrown, so
// callers can branch on kind without string-matching messages.
var (
	// ErrPermissionDenied: permission check failed. No budget charged.
	ErrPermissionDenied = errors.New("permission denied")
	// ErrInsufficientBudget: cost exceeds the resolved account's remaining points.
	ErrInsufficientBudget = errors.New("insufficient budget")
	// ErrApprovalRequired: cost exceeds requires_approval_above; caller is told the approver list.
	ErrApprovalRequired = errors.New("approval required")
	// ErrUnknownTool: tool name has no registered schema.
	ErrUnknownTool = errors.New("unknown tool")
	// ErrToolNotInitialized: schema exists but no handler is bound to its category.
	ErrToolNotInitialized = errors.New("tool not initialized")
	// ErrPreconditionFailed: e.g. meeting.present outside an active meeting.
	ErrPreconditionFailed = errors.New("precondition failed")
	// ErrHandlerFailure: the bound ToolHandler itself reported failure.
	ErrHandlerFailure = errors.New("tool handler failure")
	// ErrTransient: task-level failure eligible for retry up to max_retries.
	ErrTransient = errors.New("transient failure")
)
