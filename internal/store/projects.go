package store

import (
	"database/sql"
	"fmt"
	"time"
)

type Project struct {
	ID          string     `json:"id"`
	Name        string     `json:"name"`
	Description string     `json:"description"`
	Status      string     `json:"status"`
	FinalOutput string     `json:"final_output,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

func scanProject(scanner interface {
	Scan(dest ...any) error
}) (*Project, error) {
	p := &Project{}
	var finalOutput *string
	err := scanner.Scan(&p.ID, &p.Name, &p.Description, &p.Status, &finalOutput, &p.CreatedAt, &p.CompletedAt)
	if err != nil {
		return nil, err
	}
	if finalOutput != nil {
		p.FinalOutput = *finalOutput
	}
	return p, nil
}

const projectColumns = `id, name, description, status, final_output, created_at, completed_at`

func (s *Store) SaveProject(p *Project) error {
	_, err := s.db.Exec(`
		INSERT INTO projects (id, name, description, status)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			status = excluded.status`,
		p.ID, p.Name, p.Description, p.Status)
	if err != nil {
		return fmt.Errorf("save project: %w", err)
	}
	return nil
}

func (s *Store) GetProject(id string) (*Project, error) {
	row := s.db.QueryRow(`SELECT `+projectColumns+` FROM projects WHERE id = ?`, id)
	p, err := scanProject(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get project: %w", err)
	}
	return p, nil
}

func (s *Store) ListProjects() ([]Project, error) {
	rows, err := s.db.Query(`SELECT ` + projectColumns + ` FROM projects ORDER BY created_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("list projects: %w", err)
	}
	defer rows.Close()

	var projects []Project
	for rows.Next() {
		p, err := scanProject(rows)
		if err != nil {
			return nil, fmt.Errorf("scan project: %w", err)
		}
		projects = append(projects, *p)
	}
	return projects, rows.Err()
}

// UpdateProjectStatus records a status transition; terminal states also set
// the completion timestamp and the final output summary.
func (s *Store) UpdateProjectStatus(id, status, finalOutput string) error {
	_, err := s.db.Exec(`
		UPDATE projects
		SET status = ?, final_output = ?,
		    completed_at = CASE WHEN ? IN ('completed', 'failed') THEN CURRENT_TIMESTAMP ELSE completed_at END
		WHERE id = ?`, status, finalOutput, status, id)
	return err
}
