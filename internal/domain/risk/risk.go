// Package risk defines the RiskRule governance entity: a weighted-vote
// proposal that, once active, participates in every compliance check.
// Grounded on the teacher's domain/policy.PolicyProfile/PermissionRule/
// Decision model plus the weighted-audit pattern observed in
// other_examples' tool_approval.go.
package risk

import "time"

// Kind classifies the subject matter the rule constrains.
type Kind string

const (
	KindPosition      Kind = "position"
	KindRisk          Kind = "risk"
	KindTrading       Kind = "trading"
	KindExposure      Kind = "exposure"
	KindLoss          Kind = "loss"
	KindConcentration Kind = "concentration"
	KindLiquidity     Kind = "liquidity"
	KindAllocation    Kind = "allocation"
)

// Status is the rule's lifecycle state.
type Status string

const (
	StatusProposed  Status = "PROPOSED"
	StatusApproved  Status = "APPROVED"
	StatusRejected  Status = "REJECTED"
	StatusActive    Status = "ACTIVE"
	StatusSuspended Status = "SUSPENDED"
)

// Choice is a voter's decision on a rule.
type Choice string

const (
	ChoiceApprove Choice = "APPROVE"
	ChoiceReject  Choice = "REJECT"
	ChoiceAbstain Choice = "ABSTAIN"
)

// Vote is one voter's recorded decision.
type Vote struct {
	VoterID   string    `json:"voter_id"`
	Choice    Choice    `json:"choice"`
	Reason    string    `json:"reason,omitempty"`
	Weight    float64   `json:"weight"`
	Timestamp time.Time `json:"timestamp"`
}

// RequiredVotersForKind returns the roles whose vote is mandatory before a
// rule of this kind can be tallied. Mirrors the source's per-kind voter
// table (e.g. a position-limit rule requires risk-officer, portfolio-
// manager, investment-officer).
func RequiredVotersForKind(k Kind) []string {
	switch k {
	case KindPosition, KindConcentration, KindExposure, KindAllocation:
		return []string{"risk-officer", "portfolio-manager", "investment-officer"}
	case KindLoss, KindRisk:
		return []string{"risk-officer", "chief-risk-officer"}
	case KindTrading, KindLiquidity:
		return []string{"trading-lead", "risk-officer"}
	default:
		return []string{"risk-officer"}
	}
}

// RiskRule is a governance rule proposal that, once ACTIVE, is included in
// every compliance check.
type RiskRule struct {
	ID                  string         `json:"id"`
	Kind                Kind           `json:"kind"`
	Name                string         `json:"name"`
	Parameters          map[string]any `json:"parameters"`
	Status              Status         `json:"status"`
	RequiredVoters      []string       `json:"required_voters"`
	RequiredApprovalRate float64       `json:"required_approval_rate"`
	Votes               []Vote         `json:"votes"`
	EffectiveFrom        *time.Time    `json:"effective_from,omitempty"`
	SuspendedReason      string        `json:"suspended_reason,omitempty"`
	ProposedBy           string        `json:"proposed_by"`
	CreatedAt            time.Time     `json:"created_at"`
	UpdatedAt            time.Time     `json:"updated_at"`
}

// HasVoted reports whether voterID has already cast a vote.
func (r *RiskRule) HasVoted(voterID string) bool {
	for _, v := range r.Votes {
		if v.VoterID == voterID {
			return true
		}
	}
	return false
}

// AllRequiredVoted reports whether every required voter has cast a vote.
func (r *RiskRule) AllRequiredVoted() bool {
	for _, req := range r.RequiredVoters {
		found := false
		for _, v := range r.Votes {
			if v.VoterID == req {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}

// ApprovalRate computes sum(weight|APPROVE) / sum(weight|APPROVE∪REJECT),
// excluding abstentions from the denominator.
func (r *RiskRule) ApprovalRate() float64 {
	var approve, total float64
	for _, v := range r.Votes {
		switch v.Choice {
		case ChoiceApprove:
			approve += v.Weight
			total += v.Weight
		case ChoiceReject:
			total += v.Weight
		}
	}
	if total == 0 {
		return 0
	}
	return approve / total
}

// GovernanceDecision records the outcome of a completed vote tally.
type GovernanceDecision struct {
	ID           string    `json:"id"`
	RuleID       string    `json:"rule_id"`
	Participants []string  `json:"participants"`
	ApprovalRate float64   `json:"approval_rate"`
	Resolution   Status    `json:"resolution"`
	DecidedAt    time.Time `json:"decided_at"`
}

// DefaultVoteWeights are the role-keyed default vote weights; unlisted
// roles fall back to 1.0.
var DefaultVoteWeights = map[string]float64{
	"chairman":           3.0,
	"risk-officer":       2.0,
	"investment-officer": 2.0,
	"chief-risk-officer": 2.5,
	"portfolio-manager":  1.5,
	"trading-lead":       1.5,
}

// WeightForRole returns the configured vote weight for role, defaulting to
// 1.0 for unlisted roles.
func WeightForRole(weights map[string]float64, role string) float64 {
	if w, ok := weights[role]; ok {
		return w
	}
	return 1.0
}

// Position is a snapshot of portfolio exposure used by compliance checks.
type Position struct {
	AssetShares  map[string]float64 `json:"asset_shares"` // fraction of portfolio per asset, sums to ~1.0
	DailyPnLPct  float64            `json:"daily_pnl_pct"`
	Leverage     float64            `json:"leverage"`
}

// Severity classifies a compliance finding.
type Severity string

const (
	SeverityWarning  Severity = "warning"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// Finding is one compliance violation or warning produced by CheckCompliance.
type Finding struct {
	RuleID   string   `json:"rule_id"`
	Kind     Kind     `json:"kind"`
	Severity Severity `json:"severity"`
	Message  string   `json:"message"`
}

// ComplianceResult is the outcome of evaluating a position against the
// active rule set.
type ComplianceResult struct {
	Compliant  bool      `json:"compliant"`
	Violations []Finding `json:"violations"`
	Warnings   []Finding `json:"warnings"`
}
