package store

import (
	"database/sql"
	"fmt"
	"strings"
	"time"
)

// Schedule is the run state of a configured recurring article.
type Schedule struct {
	Name        string     `json:"name"`
	Cron        string     `json:"cron"`
	Topic       string     `json:"topic"`
	Length      string     `json:"length,omitempty"`
	Depth       string     `json:"depth,omitempty"`
	NextRunAt   *time.Time `json:"next_run_at,omitempty"`
	LastRunAt   *time.Time `json:"last_run_at,omitempty"`
	LastStatus  string     `json:"last_status,omitempty"`
	LastError   string     `json:"last_error,omitempty"`
	LastSwarmID string     `json:"last_swarm_id,omitempty"`
}

const scheduleColumns = `name, cron, topic, length, depth, next_run_at, last_run_at, last_status, last_error, last_swarm_id`

func scanSchedule(scanner interface {
	Scan(dest ...any) error
}) (*Schedule, error) {
	sc := &Schedule{}
	var length, depth, lastStatus, lastError, lastSwarm sql.NullString
	err := scanner.Scan(&sc.Name, &sc.Cron, &sc.Topic, &length, &depth,
		&sc.NextRunAt, &sc.LastRunAt, &lastStatus, &lastError, &lastSwarm)
	if err != nil {
		return nil, err
	}
	sc.Length = length.String
	sc.Depth = depth.String
	sc.LastStatus = lastStatus.String
	sc.LastError = lastError.String
	sc.LastSwarmID = lastSwarm.String
	return sc, nil
}

// SaveSchedule upserts the definition of sc. A changed cron expression
// replaces the stored next run; otherwise the stored one is kept.
func (s *Store) SaveSchedule(sc *Schedule) error {
	_, err := s.db.Exec(`
		INSERT INTO schedules (name, cron, topic, length, depth, next_run_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(name) DO UPDATE SET
			topic = excluded.topic,
			length = excluded.length,
			depth = excluded.depth,
			next_run_at = CASE WHEN schedules.cron = excluded.cron AND schedules.next_run_at IS NOT NULL
				THEN schedules.next_run_at ELSE excluded.next_run_at END,
			cron = excluded.cron`,
		sc.Name, sc.Cron, sc.Topic, nullString(sc.Length), nullString(sc.Depth), utcPtr(sc.NextRunAt))
	if err != nil {
		return fmt.Errorf("save schedule: %w", err)
	}
	return nil
}

// GetSchedule returns nil without error when no schedule has the name.
func (s *Store) GetSchedule(name string) (*Schedule, error) {
	row := s.db.QueryRow(`SELECT `+scheduleColumns+` FROM schedules WHERE name = ?`, name)
	sc, err := scanSchedule(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get schedule: %w", err)
	}
	return sc, nil
}

func (s *Store) ListSchedules() ([]Schedule, error) {
	return s.querySchedules(`SELECT ` + scheduleColumns + ` FROM schedules ORDER BY name`)
}

// GetDueSchedules returns schedules whose next run is at or before now.
func (s *Store) GetDueSchedules(now time.Time) ([]Schedule, error) {
	return s.querySchedules(`SELECT `+scheduleColumns+` FROM schedules
		WHERE next_run_at IS NOT NULL AND next_run_at <= ?
		ORDER BY next_run_at`, now.UTC())
}

func (s *Store) querySchedules(query string, args ...any) ([]Schedule, error) {
	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("query schedules: %w", err)
	}
	defer rows.Close()

	var out []Schedule
	for rows.Next() {
		sc, err := scanSchedule(rows)
		if err != nil {
			return nil, fmt.Errorf("scan schedule: %w", err)
		}
		out = append(out, *sc)
	}
	return out, rows.Err()
}

// UpdateScheduleRun records the outcome of a triggered run and the next
// due time.
func (s *Store) UpdateScheduleRun(name, status, errMsg, swarmID string, ranAt time.Time, next *time.Time) error {
	_, err := s.db.Exec(`
		UPDATE schedules
		SET last_run_at = ?, last_status = ?, last_error = ?, last_swarm_id = ?, next_run_at = ?
		WHERE name = ?`, ranAt.UTC(), status, nullString(errMsg), nullString(swarmID), utcPtr(next), name)
	if err != nil {
		return fmt.Errorf("update schedule run: %w", err)
	}
	return nil
}

// DeleteSchedulesNotIn removes schedules dropped from the config.
func (s *Store) DeleteSchedulesNotIn(names []string) error {
	if len(names) == 0 {
		_, err := s.db.Exec(`DELETE FROM schedules`)
		return err
	}
	placeholders := strings.Repeat("?, ", len(names))
	placeholders = placeholders[:len(placeholders)-2]
	args := make([]any, len(names))
	for i, n := range names {
		args[i] = n
	}
	_, err := s.db.Exec(`DELETE FROM schedules WHERE name NOT IN (`+placeholders+`)`, args...)
	return err
}
