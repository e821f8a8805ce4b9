package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/agentorg/runtime/internal/domain/memoryrec"
)

func (s *Store) CreateMemory(ctx context.Context, m *memoryrec.Memory) error {
	var embeddingJSON []byte
	var err error
	if m.Embedding != nil {
		embeddingJSON, err = json.Marshal(m.Embedding)
		if err != nil {
			return fmt.Errorf("marshal embedding: %w", err)
		}
	}
	approversJSON, err := json.Marshal(orEmpty(m.Approvers))
	if err != nil {
		return fmt.Errorf("marshal approvers: %w", err)
	}

	_, err = s.pool.Exec(ctx,
		`INSERT INTO agent_memory (id, agent_id, content, tags, scope, confidence, experiment_id,
		                            data_version_hash, artifact_id, embedding, approval_status, approvers,
		                            ttl_seconds, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)`,
		m.ID, m.AgentID, m.Content, pgTextArray(m.Tags), string(m.Scope), m.Confidence, m.Refs.ExperimentID,
		m.Refs.DataVersionHash, m.Refs.ArtifactID, embeddingJSON, string(m.ApprovalStatus), approversJSON,
		ttlSeconds(m.TTL), m.CreatedAt)
	if err != nil {
		return fmt.Errorf("create memory %s: %w", m.ID, err)
	}
	return nil
}

func (s *Store) GetMemory(ctx context.Context, id string) (*memoryrec.Memory, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT id, agent_id, content, tags, scope, confidence, experiment_id, data_version_hash, artifact_id,
		        embedding, approval_status, approvers, ttl_seconds, created_at
		 FROM agent_memory WHERE id = $1`, id)

	m, err := scanMemory(row)
	if err != nil {
		return nil, notFoundWrap(err, "get memory %s", id)
	}
	return &m, nil
}

func (s *Store) UpdateMemory(ctx context.Context, m *memoryrec.Memory) error {
	approversJSON, err := json.Marshal(orEmpty(m.Approvers))
	if err != nil {
		return fmt.Errorf("marshal approvers: %w", err)
	}
	tag, err := s.pool.Exec(ctx,
		`UPDATE agent_memory SET confidence = $2, approval_status = $3, approvers = $4 WHERE id = $1`,
		m.ID, m.Confidence, string(m.ApprovalStatus), approversJSON)
	return execExpectOne(tag, err, "update memory %s", m.ID)
}

func (s *Store) RecallMemories(ctx context.Context, scope memoryrec.Scope, tags []string, limit int) ([]*memoryrec.Memory, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, agent_id, content, tags, scope, confidence, experiment_id, data_version_hash, artifact_id,
		        embedding, approval_status, approvers, ttl_seconds, created_at
		 FROM agent_memory
		 WHERE scope = $1 AND approval_status = $2 AND ($3::text[] = '{}' OR tags && $3::text[])
		 ORDER BY created_at DESC LIMIT $4`,
		string(scope), string(memoryrec.ApprovalApproved), pgTextArray(tags), limit)
	if err != nil {
		return nil, fmt.Errorf("recall memories: %w", err)
	}
	defer rows.Close()

	var memories []*memoryrec.Memory
	for rows.Next() {
		m, err := scanMemory(rows)
		if err != nil {
			return nil, err
		}
		memories = append(memories, &m)
	}
	return memories, rows.Err()
}

func (s *Store) RecordMemoryApproval(ctx context.Context, memoryID, approver string, at time.Time) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO memory_approvals (id, memory_id, approver, created_at) VALUES ($1, $2, $3, $4)`,
		newRowID("memapproval"), memoryID, approver, at)
	if err != nil {
		return fmt.Errorf("record memory approval for %s: %w", memoryID, err)
	}
	return nil
}

func ttlSeconds(ttl *time.Duration) any {
	if ttl == nil {
		return nil
	}
	return int64(*ttl / time.Second)
}

func scanMemory(row scannable) (memoryrec.Memory, error) {
	var m memoryrec.Memory
	var scope, approvalStatus string
	var embeddingJSON, approversJSON []byte
	var ttlSecs *int64
	err := row.Scan(&m.ID, &m.AgentID, &m.Content, &m.Tags, &scope, &m.Confidence, &m.Refs.ExperimentID,
		&m.Refs.DataVersionHash, &m.Refs.ArtifactID, &embeddingJSON, &approvalStatus, &approversJSON,
		&ttlSecs, &m.CreatedAt)
	if err != nil {
		return m, err
	}
	m.Scope = memoryrec.Scope(scope)
	m.ApprovalStatus = memoryrec.ApprovalStatus(approvalStatus)
	if ttlSecs != nil {
		d := time.Duration(*ttlSecs) * time.Second
		m.TTL = &d
	}
	if embeddingJSON != nil {
		if err := json.Unmarshal(embeddingJSON, &m.Embedding); err != nil {
			return m, fmt.Errorf("unmarshal embedding: %w", err)
		}
	}
	if approversJSON != nil {
		if err := json.Unmarshal(approversJSON, &m.Approvers); err != nil {
			return m, fmt.Errorf("unmarshal approvers: %w", err)
		}
	}
	return m, nil
}
