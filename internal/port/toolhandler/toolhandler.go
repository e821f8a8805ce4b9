// Package toolhandler defines the ToolHandler port: the category-bound
// external capability the ToolRouter dispatches to after permission, budget
// and approval checks pass. Grounded on the teacher's
// port/notifier.Notifier "thin external capability, registered by name"
// shape.
package toolhandler

import (
	"context"

	"github.com/agentorg/runtime/internal/domain/toolcall"
)

// Handler executes one tool invocation for all tools in its category.
// New handlers are registered at startup keyed by category; the Router
// never needs modification to support a new handler (spec.md §9).
type Handler interface {
	// Category returns the toolcall.Category this handler serves.
	Category() toolcall.Category

	// Execute runs tool with args and returns a Result. meetingID and
	// cycleID are optional context (set when the call originates inside an
	// active meeting room or research cycle), required by side-constraints
	// like meeting.present.
	Execute(ctx context.Context, agentID, tool string, args map[string]any, meetingID, cycleID string) (toolcall.Result, error)
}

// Registry is a factory lookup for handlers, keyed by category, so new
// handlers can be added without modifying the Router.
type Registry struct {
	handlers map[toolcall.Category]Handler
}

// NewRegistry returns an empty handler registry.
func NewRegistry() *Registry {
	return &Registry{handlers: make(map[toolcall.Category]Handler)}
}

// Register binds h under its own declared category.
func (r *Registry) Register(h Handler) {
	r.handlers[h.Category()] = h
}

// Lookup returns the handler registered for category, if any.
func (r *Registry) Lookup(category toolcall.Category) (Handler, bool) {
	h, ok := r.handlers[category]
	return h, ok
}
