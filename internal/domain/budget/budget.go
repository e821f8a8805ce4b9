// Package budget defines the BudgetAccount entity: an abstract compute-point
// currency debited atomically on every successful tool call. Grounded on
// the teacher's domain/cost.Summary aggregation shape, generalized to a
// debit/credit account with period resets.
package budget

import (
	"errors"
	"time"
)

// AccountType is the level at which a budget account is held.
type AccountType string

const (
	AccountAgent      AccountType = "agent"
	AccountTeam       AccountType = "team"
	AccountDepartment AccountType = "department"
)

// ErrInsufficientBudget is returned when a deduction would make the account
// go negative.
var ErrInsufficientBudget = errors.New("budget: insufficient remaining points")

// Account tracks a weekly compute-point budget for an agent, team, or
// department. An agent's account resolves to its team's account if none
// exists at agent level (see resolution in the service layer).
type Account struct {
	ID                 string      `json:"id"`
	OwnerID            string      `json:"owner_id"`
	AccountType        AccountType `json:"account_type"`
	BaseWeeklyPoints   float64     `json:"base_weekly_points"`
	CurrentPeriodStart time.Time   `json:"current_period_start"`
	CurrentPeriodPoints float64    `json:"current_period_points"`
	PointsSpent        float64     `json:"points_spent"`
	UpdatedAt          time.Time   `json:"updated_at"`
}

// Remaining returns the points left in the current period.
func (a *Account) Remaining() float64 {
	return a.CurrentPeriodPoints - a.PointsSpent
}

// New creates an account at the start of a fresh weekly period.
func New(id, ownerID string, accountType AccountType, baseWeeklyPoints float64, now time.Time) *Account {
	return &Account{
		ID:                  id,
		OwnerID:              ownerID,
		AccountType:          accountType,
		BaseWeeklyPoints:     baseWeeklyPoints,
		CurrentPeriodStart:   now,
		CurrentPeriodPoints:  baseWeeklyPoints,
		PointsSpent:          0,
		UpdatedAt:            now,
	}
}

// MaybeResetPeriod resets the spend counter if the weekly period boundary
// has passed, returning true if a reset occurred.
func (a *Account) MaybeResetPeriod(now time.Time) bool {
	if now.Sub(a.CurrentPeriodStart) < 7*24*time.Hour {
		return false
	}
	a.CurrentPeriodStart = now
	a.CurrentPeriodPoints = a.BaseWeeklyPoints
	a.PointsSpent = 0
	a.UpdatedAt = now
	return true
}

// Deduct atomically debits cost from the account, rejecting if remaining is
// insufficient. Callers are responsible for serializing calls on the same
// account (see service.ToolRouter).
func (a *Account) Deduct(cost float64, now time.Time) error {
	if a.Remaining() < cost {
		return ErrInsufficientBudget
	}
	a.PointsSpent += cost
	a.UpdatedAt = now
	return nil
}
