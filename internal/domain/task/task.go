// Package task defines the Task entity and the per-agent priority queue
// that orders task execution.
package task

import "time"

// Priority orders task execution within a single agent's queue.
type Priority int

const (
	PriorityLow Priority = iota
	PriorityNormal
	PriorityHigh
	PriorityUrgent
)

// Status is the lifecycle state of a task.
type Status string

const (
	StatusEnqueued Status = "enqueued"
	StatusRunning  Status = "running"
	StatusDone     Status = "completed"
	StatusFailed   Status = "failed"
)

// Kind identifies the handler ProcessNextTask dispatches to. Role-specific
// kinds (find_research_opportunity, run_backtest, ...) are declared by the
// role packages but carried as plain strings here so the queue never needs
// to know the full set.
type Kind string

const (
	KindThink    Kind = "think"
	KindRespond  Kind = "respond"
	KindReview   Kind = "review"
	KindReport   Kind = "report"
	KindMeeting  Kind = "meeting"
	KindExecute  Kind = "execute"
)

// Task is a unit of work belonging to exactly one agent's queue.
type Task struct {
	ID         string         `json:"id"`
	AgentID    string         `json:"agent_id"`
	Kind       Kind           `json:"kind"`
	Payload    map[string]any `json:"payload"`
	Priority   Priority       `json:"priority"`
	Deadline   *time.Time     `json:"deadline,omitempty"`
	RetriesUsed int           `json:"retries_used"`
	MaxRetries  int           `json:"max_retries"`
	Status      Status        `json:"status"`
	CreatedAt   time.Time     `json:"created_at"`
	Result      map[string]any `json:"result,omitempty"`
	Err         string         `json:"error,omitempty"`
}

// Expired reports whether the task's deadline has passed as of now. A task
// whose deadline has already passed before it starts is failed without
// execution.
func (t *Task) Expired(now time.Time) bool {
	return t.Deadline != nil && now.After(*t.Deadline)
}

// CanRetry reports whether the task may be re-enqueued after a transient
// failure.
func (t *Task) CanRetry() bool {
	return t.RetriesUsed < t.MaxRetries
}

// New constructs a task in the enqueued state for agentID, stamped with now.
func New(id, agentID string, kind Kind, payload map[string]any, priority Priority, maxRetries int, now time.Time) *Task {
	return &Task{
		ID:         id,
		AgentID:    agentID,
		Kind:       kind,
		Payload:    payload,
		Priority:   priority,
		MaxRetries: maxRetries,
		Status:     StatusEnqueued,
		CreatedAt:  now,
	}
}
