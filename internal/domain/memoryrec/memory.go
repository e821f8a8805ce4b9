// Package memoryrec defines the Memory entity: a scoped, approval-gated
// knowledge fragment an agent commits for later recall. Named memoryrec
// (not memory) to avoid colliding with the Go stdlib-adjacent connotation
// of "memory" in this codebase's adapter/cache layer. Grounded on the
// teacher's domain/memory.Memory composite-score shape, with scope/approval
// generalized per spec.
package memoryrec

import (
	"errors"
	"time"
)

// Scope is the visibility domain for a memory record.
type Scope string

const (
	ScopePrivate Scope = "private"
	ScopeTeam    Scope = "team"
	ScopeOrg     Scope = "org"
)

// ApprovalStatus tracks the review state of team/org-scoped memories.
type ApprovalStatus string

const (
	ApprovalApproved ApprovalStatus = "APPROVED"
	ApprovalPending  ApprovalStatus = "PENDING"
	ApprovalRejected ApprovalStatus = "REJECTED"
)

// MaxContentLength is the hard cap on memory content length.
const MaxContentLength = 500

var (
	// ErrContentTooLong is returned when content exceeds MaxContentLength.
	ErrContentTooLong = errors.New("memoryrec: content exceeds 500 characters")
	// ErrNoRefs is returned when none of the three allowed reference kinds
	// are present.
	ErrNoRefs = errors.New("memoryrec: refs must contain at least one of experiment_id, data_version_hash, artifact_id")
)

// Refs names the provenance references a memory must carry at least one of.
type Refs struct {
	ExperimentID    string `json:"experiment_id,omitempty"`
	DataVersionHash string `json:"data_version_hash,omitempty"`
	ArtifactID      string `json:"artifact_id,omitempty"`
}

// Empty reports whether none of the three reference fields are populated.
func (r Refs) Empty() bool {
	return r.ExperimentID == "" && r.DataVersionHash == "" && r.ArtifactID == ""
}

// Memory is a scoped knowledge fragment committed by an agent.
//
// Invariant: scope == private implies approval_status == APPROVED;
// scope in {team, org} requires N approvers per policy before APPROVED.
type Memory struct {
	ID             string         `json:"id"`
	AgentID        string         `json:"agent_id"`
	Content        string         `json:"content"`
	Tags           []string       `json:"tags,omitempty"`
	Scope          Scope          `json:"scope"`
	Confidence     float64        `json:"confidence"` // [0,1]
	Refs           Refs           `json:"refs"`
	Embedding      []float32      `json:"embedding,omitempty"`
	ApprovalStatus ApprovalStatus `json:"approval_status"`
	Approvers      []string       `json:"approvers,omitempty"`
	TTL            *time.Duration `json:"ttl,omitempty"`
	CreatedAt      time.Time      `json:"created_at"`
}

// CreateRequest holds the fields needed to write a memory.
type CreateRequest struct {
	AgentID    string
	Content    string
	Tags       []string
	Scope      Scope
	Confidence float64
	Refs       Refs
	Embedding  []float32
	TTL        *time.Duration
}

// Validate enforces the content-length and refs invariants.
func (r *CreateRequest) Validate() error {
	if len(r.Content) > MaxContentLength {
		return ErrContentTooLong
	}
	if r.Refs.Empty() {
		return ErrNoRefs
	}
	return nil
}

// New builds a Memory from a validated request. Private-scope memories
// auto-approve; team/org scoped memories start PENDING and require the
// configured number of approvers (enforced by the approval service).
func New(id string, r CreateRequest, now time.Time) *Memory {
	status := ApprovalPending
	if r.Scope == ScopePrivate {
		status = ApprovalApproved
	}
	return &Memory{
		ID:             id,
		AgentID:        r.AgentID,
		Content:        r.Content,
		Tags:           r.Tags,
		Scope:          r.Scope,
		Confidence:     r.Confidence,
		Refs:           r.Refs,
		Embedding:      r.Embedding,
		ApprovalStatus: status,
		TTL:            r.TTL,
		CreatedAt:      now,
	}
}

// Approve records one approver; once the count meets requiredApprovers the
// memory transitions to APPROVED.
func (m *Memory) Approve(approver string, requiredApprovers int, now time.Time) {
	for _, a := range m.Approvers {
		if a == approver {
			return
		}
	}
	m.Approvers = append(m.Approvers, approver)
	if len(m.Approvers) >= requiredApprovers {
		m.ApprovalStatus = ApprovalApproved
	}
}
