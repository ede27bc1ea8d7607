package store

import (
	"fmt"

	"github.com/mtzanidakis/helios/internal/state"
)

// SaveArtifact appends one artifact version. Older versions are retained
// here; the in-memory state only keeps the latest per key.
func (s *Store) SaveArtifact(projectID string, a state.Artifact) error {
	_, err := s.db.Exec(`
		INSERT INTO artifacts (id, project_id, key, version, content, created_by, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(project_id, key, version) DO UPDATE SET
			content = excluded.content,
			created_by = excluded.created_by`,
		a.ID, projectID, a.Key, a.Version, a.Content, string(a.CreatedBy), a.CreatedAt)
	if err != nil {
		return fmt.Errorf("save artifact: %w", err)
	}
	return nil
}

// ListLatestArtifacts returns the highest version per key for a project —
// the supersession view matching the in-memory artifact map.
func (s *Store) ListLatestArtifacts(projectID string) ([]state.Artifact, error) {
	rows, err := s.db.Query(`
		SELECT a.id, a.key, a.version, a.content, a.created_by, a.created_at
		FROM artifacts a
		JOIN (
			SELECT key, MAX(version) AS version FROM artifacts
			WHERE project_id = ? GROUP BY key
		) latest ON a.key = latest.key AND a.version = latest.version
		WHERE a.project_id = ?
		ORDER BY a.key`, projectID, projectID)
	if err != nil {
		return nil, fmt.Errorf("list latest artifacts: %w", err)
	}
	defer rows.Close()

	return scanArtifacts(rows)
}

// ListArtifactVersions returns every stored version for one key, oldest first.
func (s *Store) ListArtifactVersions(projectID, key string) ([]state.Artifact, error) {
	rows, err := s.db.Query(`
		SELECT id, key, version, content, created_by, created_at
		FROM artifacts WHERE project_id = ? AND key = ?
		ORDER BY version`, projectID, key)
	if err != nil {
		return nil, fmt.Errorf("list artifact versions: %w", err)
	}
	defer rows.Close()

	return scanArtifacts(rows)
}

func scanArtifacts(rows interface {
	Next() bool
	Scan(dest ...any) error
	Err() error
}) ([]state.Artifact, error) {
	var artifacts []state.Artifact
	for rows.Next() {
		var a state.Artifact
		var createdBy string
		if err := rows.Scan(&a.ID, &a.Key, &a.Version, &a.Content, &createdBy, &a.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan artifact: %w", err)
		}
		a.CreatedBy = state.Role(createdBy)
		artifacts = append(artifacts, a)
	}
	return artifacts, rows.Err()
}
