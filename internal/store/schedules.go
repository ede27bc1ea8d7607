package store

import (
	"database/sql"
	"fmt"
	"time"
)

// Schedule is a recurring project run: the same description started on a
// cron expression.
type Schedule struct {
	ID          string     `json:"id"`
	Name        string     `json:"name"`
	Description string     `json:"description"`
	Cron        string     `json:"cron"`
	Status      string     `json:"status"`
	NextRunAt   *time.Time `json:"next_run_at,omitempty"`
	LastRunAt   *time.Time `json:"last_run_at,omitempty"`
	LastStatus  string     `json:"last_status,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
}

func scanSchedule(scanner interface {
	Scan(dest ...any) error
}) (*Schedule, error) {
	sc := &Schedule{}
	var lastStatus *string
	err := scanner.Scan(&sc.ID, &sc.Name, &sc.Description, &sc.Cron, &sc.Status,
		&sc.NextRunAt, &sc.LastRunAt, &lastStatus, &sc.CreatedAt)
	if err != nil {
		return nil, err
	}
	if lastStatus != nil {
		sc.LastStatus = *lastStatus
	}
	return sc, nil
}

const scheduleColumns = `id, name, description, cron, status, next_run_at, last_run_at, last_status, created_at`

func (s *Store) SaveSchedule(sc *Schedule) error {
	_, err := s.db.Exec(`
		INSERT INTO scheduled_projects (id, name, description, cron, status, next_run_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			description = excluded.description,
			cron = excluded.cron,
			status = excluded.status,
			next_run_at = excluded.next_run_at`,
		sc.ID, sc.Name, sc.Description, sc.Cron, sc.Status, sc.NextRunAt)
	if err != nil {
		return fmt.Errorf("save schedule: %w", err)
	}
	return nil
}

func (s *Store) GetSchedule(id string) (*Schedule, error) {
	row := s.db.QueryRow(`SELECT `+scheduleColumns+` FROM scheduled_projects WHERE id = ?`, id)
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
	rows, err := s.db.Query(`SELECT ` + scheduleColumns + ` FROM scheduled_projects ORDER BY created_at`)
	if err != nil {
		return nil, fmt.Errorf("list schedules: %w", err)
	}
	defer rows.Close()

	var schedules []Schedule
	for rows.Next() {
		sc, err := scanSchedule(rows)
		if err != nil {
			return nil, fmt.Errorf("scan schedule: %w", err)
		}
		schedules = append(schedules, *sc)
	}
	return schedules, rows.Err()
}

func (s *Store) GetDueSchedules(now time.Time) ([]Schedule, error) {
	rows, err := s.db.Query(`
		SELECT `+scheduleColumns+`
		FROM scheduled_projects
		WHERE status = 'active' AND next_run_at <= ?
		ORDER BY next_run_at`, now)
	if err != nil {
		return nil, fmt.Errorf("get due schedules: %w", err)
	}
	defer rows.Close()

	var schedules []Schedule
	for rows.Next() {
		sc, err := scanSchedule(rows)
		if err != nil {
			return nil, fmt.Errorf("scan schedule: %w", err)
		}
		schedules = append(schedules, *sc)
	}
	return schedules, rows.Err()
}

func (s *Store) UpdateScheduleRun(id, lastStatus string, nextRunAt *time.Time) error {
	_, err := s.db.Exec(`
		UPDATE scheduled_projects
		SET last_run_at = CURRENT_TIMESTAMP, last_status = ?, next_run_at = ?
		WHERE id = ?`, lastStatus, nextRunAt, id)
	return err
}

func (s *Store) DeleteSchedule(id string) error {
	_, err := s.db.Exec(`DELETE FROM scheduled_projects WHERE id = ?`, id)
	return err
}
