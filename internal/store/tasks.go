package store

import (
	"encoding/json"
	"fmt"

	"github.com/mtzanidakis/helios/internal/state"
)

// SaveTask upserts a task snapshot for a project. Tasks are never deleted;
// the engine re-saves them as statuses change.
func (s *Store) SaveTask(projectID string, t state.Task) error {
	dependsOn, _ := json.Marshal(t.DependsOn)
	artifactIDs, _ := json.Marshal(t.ArtifactIDs)
	_, err := s.db.Exec(`
		INSERT INTO tasks (id, project_id, title, description, assigned_role, status, depends_on, artifact_ids, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			status = excluded.status,
			artifact_ids = excluded.artifact_ids`,
		t.ID, projectID, t.Title, t.Description, string(t.AssignedRole), string(t.Status),
		string(dependsOn), string(artifactIDs), t.CreatedAt)
	if err != nil {
		return fmt.Errorf("save task: %w", err)
	}
	return nil
}

func (s *Store) ListProjectTasks(projectID string) ([]state.Task, error) {
	rows, err := s.db.Query(`
		SELECT id, title, description, assigned_role, status, depends_on, artifact_ids, created_at
		FROM tasks WHERE project_id = ? ORDER BY created_at, id`, projectID)
	if err != nil {
		return nil, fmt.Errorf("list tasks: %w", err)
	}
	defer rows.Close()

	var tasks []state.Task
	for rows.Next() {
		var t state.Task
		var role, status string
		var dependsOn, artifactIDs *string
		if err := rows.Scan(&t.ID, &t.Title, &t.Description, &role, &status, &dependsOn, &artifactIDs, &t.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan task: %w", err)
		}
		t.AssignedRole = state.Role(role)
		t.Status = state.TaskStatus(status)
		if dependsOn != nil {
			_ = json.Unmarshal([]byte(*dependsOn), &t.DependsOn)
		}
		if artifactIDs != nil {
			_ = json.Unmarshal([]byte(*artifactIDs), &t.ArtifactIDs)
		}
		tasks = append(tasks, t)
	}
	return tasks, rows.Err()
}
