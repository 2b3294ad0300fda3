package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/sorcerai/storm-mcp/internal/swarm"
)

// SwarmRun is the persisted summary of one pipeline run.
type SwarmRun struct {
	ID          string        `json:"id"`
	Topic       string        `json:"topic"`
	Status      swarm.Status  `json:"status"`
	Phase       swarm.Phase   `json:"phase"`
	Topology    string        `json:"topology"`
	Error       string        `json:"error,omitempty"`
	Metrics     swarm.Metrics `json:"metrics"`
	StartedAt   time.Time     `json:"started_at"`
	CompletedAt *time.Time    `json:"completed_at,omitempty"`
}

func scanSwarmRun(scanner interface {
	Scan(dest ...any) error
}) (*SwarmRun, error) {
	r := &SwarmRun{}
	var errMsg *string
	var metrics string
	err := scanner.Scan(&r.ID, &r.Topic, &r.Status, &r.Phase, &r.Topology, &errMsg, &metrics, &r.StartedAt, &r.CompletedAt)
	if err != nil {
		return nil, err
	}
	if errMsg != nil {
		r.Error = *errMsg
	}
	if err := json.Unmarshal([]byte(metrics), &r.Metrics); err != nil {
		return nil, fmt.Errorf("decode metrics: %w", err)
	}
	return r, nil
}

const swarmColumns = `id, topic, status, phase, topology, error, metrics, started_at, completed_at`

func (s *Store) SaveSwarmRun(r *SwarmRun) error {
	metrics, err := json.Marshal(r.Metrics)
	if err != nil {
		return fmt.Errorf("encode metrics: %w", err)
	}
	_, err = s.db.Exec(`
		INSERT INTO swarm_runs (`+swarmColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			status = excluded.status,
			phase = excluded.phase,
			error = excluded.error,
			metrics = excluded.metrics,
			completed_at = excluded.completed_at`,
		r.ID, r.Topic, r.Status, r.Phase, r.Topology, nullString(r.Error), string(metrics), r.StartedAt.UTC(), utcPtr(r.CompletedAt))
	if err != nil {
		return fmt.Errorf("save swarm run: %w", err)
	}
	return nil
}

// GetSwarmRun returns nil without error when no run has the id.
func (s *Store) GetSwarmRun(id string) (*SwarmRun, error) {
	row := s.db.QueryRow(`SELECT `+swarmColumns+` FROM swarm_runs WHERE id = ?`, id)
	r, err := scanSwarmRun(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get swarm run: %w", err)
	}
	return r, nil
}

// ListSwarmRuns returns runs newest first.
func (s *Store) ListSwarmRuns() ([]SwarmRun, error) {
	rows, err := s.db.Query(`SELECT ` + swarmColumns + ` FROM swarm_runs ORDER BY started_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("list swarm runs: %w", err)
	}
	defer rows.Close()

	var runs []SwarmRun
	for rows.Next() {
		r, err := scanSwarmRun(rows)
		if err != nil {
			return nil, fmt.Errorf("scan swarm run: %w", err)
		}
		runs = append(runs, *r)
	}
	return runs, rows.Err()
}

func (s *Store) DeleteSwarmRun(id string) error {
	_, err := s.db.Exec(`DELETE FROM swarm_runs WHERE id = ?`, id)
	return err
}

func nullString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func utcPtr(t *time.Time) *time.Time {
	if t == nil || t.IsZero() {
		return nil
	}
	u := t.UTC()
	return &u
}

func timePtr(t time.Time) *time.Time {
	return utcPtr(&t)
}
