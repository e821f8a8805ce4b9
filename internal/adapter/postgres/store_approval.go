package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/agentorg/runtime/internal/port/store"
)

func (s *Store) CreateApproval(ctx context.Context, item *store.ApprovalItem) error {
	dataJSON, err := json.Marshal(item.Data)
	if err != nil {
		return fmt.Errorf("marshal data: %w", err)
	}
	_, err = s.pool.Exec(ctx,
		`INSERT INTO approvals (id, kind, title, description, requester, data, status, decision_by,
		                         decision_reason, expires_at, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		item.ID, item.Kind, item.Title, item.Description, item.Requester, dataJSON, string(item.Status),
		item.DecisionBy, item.DecisionReason, item.ExpiresAt, item.CreatedAt)
	if err != nil {
		return fmt.Errorf("create approval %s: %w", item.ID, err)
	}
	return nil
}

func (s *Store) GetApproval(ctx context.Context, id string) (*store.ApprovalItem, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT id, kind, title, description, requester, data, status, decision_by, decision_reason,
		        expires_at, created_at
		 FROM approvals WHERE id = $1`, id)

	item, err := scanApproval(row)
	if err != nil {
		return nil, notFoundWrap(err, "get approval %s", id)
	}
	return &item, nil
}

func (s *Store) ListApprovals(ctx context.Context, status store.ApprovalStatus) ([]*store.ApprovalItem, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, kind, title, description, requester, data, status, decision_by, decision_reason,
		        expires_at, created_at
		 FROM approvals WHERE status = $1 ORDER BY created_at`, string(status))
	if err != nil {
		return nil, fmt.Errorf("list approvals: %w", err)
	}
	defer rows.Close()

	var items []*store.ApprovalItem
	for rows.Next() {
		item, err := scanApproval(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, &item)
	}
	return items, rows.Err()
}

func (s *Store) UpdateApproval(ctx context.Context, item *store.ApprovalItem) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE approvals SET status = $2, decision_by = $3, decision_reason = $4 WHERE id = $1`,
		item.ID, string(item.Status), item.DecisionBy, item.DecisionReason)
	return execExpectOne(tag, err, "update approval %s", item.ID)
}

func scanApproval(row scannable) (store.ApprovalItem, error) {
	var item store.ApprovalItem
	var status string
	var dataJSON []byte
	err := row.Scan(&item.ID, &item.Kind, &item.Title, &item.Description, &item.Requester, &dataJSON,
		&status, &item.DecisionBy, &item.DecisionReason, &item.ExpiresAt, &item.CreatedAt)
	if err != nil {
		return item, err
	}
	item.Status = store.ApprovalStatus(status)
	if dataJSON != nil {
		if err := json.Unmarshal(dataJSON, &item.Data); err != nil {
			return item, fmt.Errorf("unmarshal data: %w", err)
		}
	}
	return item, nil
}
