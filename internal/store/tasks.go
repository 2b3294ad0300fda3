package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/sorcerai/storm-mcp/internal/swarm"
)

// TaskRecord is a persisted ledger entry. Payload and Result are kept as
// raw JSON since payload variants do not round-trip through an interface.
type TaskRecord struct {
	ID          string           `json:"id"`
	SwarmID     string           `json:"swarm_id"`
	Type        swarm.TaskType   `json:"type"`
	AgentID     string           `json:"agent_id,omitempty"`
	Backend     string           `json:"backend,omitempty"`
	Status      swarm.TaskStatus `json:"status"`
	Payload     json.RawMessage  `json:"payload,omitempty"`
	Result      json.RawMessage  `json:"result,omitempty"`
	Error       string           `json:"error,omitempty"`
	CreatedAt   time.Time        `json:"created_at"`
	StartedAt   *time.Time       `json:"started_at,omitempty"`
	CompletedAt *time.Time       `json:"completed_at,omitempty"`
}

// SaveTasks replaces the stored ledger of swarmID with tasks.
func (s *Store) SaveTasks(ctx context.Context, swarmID string, tasks []swarm.Task) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM swarm_tasks WHERE swarm_id = ?`, swarmID); err != nil {
		return fmt.Errorf("clear tasks: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO swarm_tasks (id, swarm_id, type, agent_id, backend, status, payload, result, error, created_at, started_at, completed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare: %w", err)
	}
	defer stmt.Close()

	for _, t := range tasks {
		payload, err := json.Marshal(t.Payload)
		if err != nil {
			return fmt.Errorf("encode payload %s: %w", t.ID, err)
		}
		var result *string
		if t.Result != nil {
			data, err := json.Marshal(t.Result)
			if err != nil {
				return fmt.Errorf("encode result %s: %w", t.ID, err)
			}
			r := string(data)
			result = &r
		}
		_, err = stmt.ExecContext(ctx, t.ID, swarmID, t.Type, nullString(t.AgentID), nullString(string(t.Backend)),
			t.Status, string(payload), result, nullString(t.Err),
			t.CreatedAt.UTC(), timePtr(t.StartedAt), timePtr(t.CompletedAt))
		if err != nil {
			return fmt.Errorf("insert task %s: %w", t.ID, err)
		}
	}
	return tx.Commit()
}

// ListTasks returns the ledger of swarmID in creation order. Task ids sort
// by creation time.
func (s *Store) ListTasks(swarmID string) ([]TaskRecord, error) {
	rows, err := s.db.Query(`
		SELECT id, swarm_id, type, agent_id, backend, status, payload, result, error, created_at, started_at, completed_at
		FROM swarm_tasks WHERE swarm_id = ? ORDER BY id`, swarmID)
	if err != nil {
		return nil, fmt.Errorf("list tasks: %w", err)
	}
	defer rows.Close()

	var tasks []TaskRecord
	for rows.Next() {
		var (
			t                                       TaskRecord
			agentID, backend, payload, result, errs sql.NullString
		)
		if err := rows.Scan(&t.ID, &t.SwarmID, &t.Type, &agentID, &backend, &t.Status, &payload, &result, &errs,
			&t.CreatedAt, &t.StartedAt, &t.CompletedAt); err != nil {
			return nil, fmt.Errorf("scan task: %w", err)
		}
		t.AgentID = agentID.String
		t.Backend = backend.String
		t.Error = errs.String
		if payload.Valid {
			t.Payload = json.RawMessage(payload.String)
		}
		if result.Valid {
			t.Result = json.RawMessage(result.String)
		}
		tasks = append(tasks, t)
	}
	return tasks, rows.Err()
}
