package postgres

import (
	"context"
	"fmt"

	"github.com/agentorg/runtime/internal/domain/budget"
)

func (s *Store) GetAccount(ctx context.Context, ownerID string, accountType budget.AccountType) (*budget.Account, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT id, owner_id, account_type, base_weekly_points, current_period_start, current_period_points,
		        points_spent, updated_at
		 FROM budget_accounts WHERE owner_id = $1 AND account_type = $2`, ownerID, string(accountType))

	a, err := scanBudgetAccount(row)
	if err != nil {
		return nil, notFoundWrap(err, "get budget account %s/%s", ownerID, accountType)
	}
	return &a, nil
}

func (s *Store) UpsertAccount(ctx context.Context, a *budget.Account) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO budget_accounts (id, owner_id, account_type, base_weekly_points, current_period_start,
		                               current_period_points, points_spent, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		 ON CONFLICT (owner_id, account_type) DO UPDATE SET
		   base_weekly_points = EXCLUDED.base_weekly_points,
		   current_period_start = EXCLUDED.current_period_start,
		   current_period_points = EXCLUDED.current_period_points,
		   points_spent = EXCLUDED.points_spent,
		   updated_at = EXCLUDED.updated_at`,
		a.ID, a.OwnerID, string(a.AccountType), a.BaseWeeklyPoints, a.CurrentPeriodStart,
		a.CurrentPeriodPoints, a.PointsSpent, a.UpdatedAt)
	if err != nil {
		return fmt.Errorf("upsert budget account %s: %w", a.ID, err)
	}
	return nil
}

func scanBudgetAccount(row scannable) (budget.Account, error) {
	var a budget.Account
	var accountType string
	err := row.Scan(&a.ID, &a.OwnerID, &accountType, &a.BaseWeeklyPoints, &a.CurrentPeriodStart,
		&a.CurrentPeriodPoints, &a.PointsSpent, &a.UpdatedAt)
	if err != nil {
		return a, err
	}
	a.AccountType = budget.AccountType(accountType)
	return a, nil
}
