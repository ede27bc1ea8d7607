package store

import (
	"fmt"
	"time"

	"github.com/mtzanidakis/helios/internal/state"
)

// RunLogEntry is one persisted execution-history record: a single worker
// invocation with its outcome.
type RunLogEntry struct {
	ID        int64         `json:"id"`
	ProjectID string        `json:"project_id"`
	Role      state.Role    `json:"role"`
	StartedAt time.Time     `json:"started_at"`
	Duration  time.Duration `json:"duration"`
	Success   bool          `json:"success"`
	Error     string        `json:"error,omitempty"`
}

func (s *Store) AppendRunLog(projectID string, e RunLogEntry) error {
	_, err := s.db.Exec(`
		INSERT INTO run_log (project_id, role, started_at, duration_ms, success, error)
		VALUES (?, ?, ?, ?, ?, ?)`,
		projectID, string(e.Role), e.StartedAt, e.Duration.Milliseconds(), e.Success, e.Error)
	if err != nil {
		return fmt.Errorf("append run log: %w", err)
	}
	return nil
}

func (s *Store) ListRunLog(projectID string) ([]RunLogEntry, error) {
	rows, err := s.db.Query(`
		SELECT id, project_id, role, started_at, duration_ms, success, error
		FROM run_log WHERE project_id = ? ORDER BY id`, projectID)
	if err != nil {
		return nil, fmt.Errorf("list run log: %w", err)
	}
	defer rows.Close()

	var entries []RunLogEntry
	for rows.Next() {
		var e RunLogEntry
		var role string
		var durationMS int64
		var errMsg *string
		if err := rows.Scan(&e.ID, &e.ProjectID, &role, &e.StartedAt, &durationMS, &e.Success, &errMsg); err != nil {
			return nil, fmt.Errorf("scan run log: %w", err)
		}
		e.Role = state.Role(role)
		e.Duration = time.Duration(durationMS) * time.Millisecond
		if errMsg != nil {
			e.Error = *errMsg
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

func (s *Store) AppendRunError(projectID string, rec state.ErrorRecord) error {
	_, err := s.db.Exec(`
		INSERT INTO run_errors (project_id, role, kind, message, attempts, terminal, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		projectID, string(rec.Role), string(rec.Kind), rec.Message, rec.Attempts, rec.Terminal, rec.At)
	if err != nil {
		return fmt.Errorf("append run error: %w", err)
	}
	return nil
}

func (s *Store) ListRunErrors(projectID string) ([]state.ErrorRecord, error) {
	rows, err := s.db.Query(`
		SELECT role, kind, message, attempts, terminal, created_at
		FROM run_errors WHERE project_id = ? ORDER BY id`, projectID)
	if err != nil {
		return nil, fmt.Errorf("list run errors: %w", err)
	}
	defer rows.Close()

	var records []state.ErrorRecord
	for rows.Next() {
		var rec state.ErrorRecord
		var role, kind string
		if err := rows.Scan(&role, &kind, &rec.Message, &rec.Attempts, &rec.Terminal, &rec.At); err != nil {
			return nil, fmt.Errorf("scan run error: %w", err)
		}
		rec.Role = state.Role(role)
		rec.Kind = state.ErrorKind(kind)
		records = append(records, rec)
	}
	return records, rows.Err()
}

func (s *Store) AppendHandoff(projectID string, h state.Handoff) error {
	_, err := s.db.Exec(`
		INSERT INTO handoffs (project_id, from_role, to_role, reason, task_id, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		projectID, string(h.From), string(h.To), h.Reason, h.TaskID, h.At)
	if err != nil {
		return fmt.Errorf("append handoff: %w", err)
	}
	return nil
}

func (s *Store) ListHandoffs(projectID string) ([]state.Handoff, error) {
	rows, err := s.db.Query(`
		SELECT from_role, to_role, reason, task_id, created_at
		FROM handoffs WHERE project_id = ? ORDER BY id`, projectID)
	if err != nil {
		return nil, fmt.Errorf("list handoffs: %w", err)
	}
	defer rows.Close()

	var handoffs []state.Handoff
	for rows.Next() {
		var h state.Handoff
		var from, to string
		var taskID *string
		if err := rows.Scan(&from, &to, &h.Reason, &taskID, &h.At); err != nil {
			return nil, fmt.Errorf("scan handoff: %w", err)
		}
		h.From = state.Role(from)
		h.To = state.Role(to)
		if taskID != nil {
			h.TaskID = *taskID
		}
		handoffs = append(handoffs, h)
	}
	return handoffs, rows.Err()
}
