// Package workspace manages the per-project directories where artifact
// contents are materialized. All paths are confined to the project's
// directory and writes are atomic (temp file + rename).
package workspace

import (
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	goarchive "github.com/moby/go-archive"
	"github.com/klauspost/compress/zstd"
	"github.com/mtzanidakis/helios/internal/config"
)

type Manager struct {
	base string
}

func NewManager(cfg config.WorkspaceConfig) (*Manager, error) {
	abs, err := filepath.Abs(cfg.BasePath)
	if err != nil {
		return nil, fmt.Errorf("resolve workspace base: %w", err)
	}
	if err := os.MkdirAll(abs, 0o755); err != nil {
		return nil, fmt.Errorf("create workspace base: %w", err)
	}
	return &Manager{base: abs}, nil
}

func (m *Manager) ProjectDir(projectID string) string {
	return filepath.Join(m.base, projectID)
}

// resolve maps a workspace-relative path to an absolute one and rejects
// anything that escapes the project directory.
func (m *Manager) resolve(projectID, rel string) (string, error) {
	dir := m.ProjectDir(projectID)
	full := filepath.Join(dir, filepath.FromSlash(rel))
	if full != dir && !strings.HasPrefix(full, dir+string(filepath.Separator)) {
		return "", fmt.Errorf("path %q escapes project workspace", rel)
	}
	return full, nil
}

// WriteFile atomically writes content: the data lands in a temp file in the
// target directory and is renamed into place, so readers never observe a
// partial write.
func (m *Manager) WriteFile(projectID, rel string, content []byte) error {
	target, err := m.resolve(projectID, rel)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return fmt.Errorf("create parent dir: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(target), ".tmp_*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(content); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("close temp file: %w", err)
	}

	if err := os.Rename(tmpName, target); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("rename into place: %w", err)
	}
	return nil
}

func (m *Manager) ReadFile(projectID, rel string) ([]byte, error) {
	target, err := m.resolve(projectID, rel)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(target)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", rel, err)
	}
	return data, nil
}

// ListFiles returns all file paths in the project workspace, relative to it.
func (m *Manager) ListFiles(projectID string) ([]string, error) {
	dir := m.ProjectDir(projectID)
	var files []string
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(dir, path)
		if err != nil {
			return err
		}
		files = append(files, filepath.ToSlash(rel))
		return nil
	})
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("walk workspace: %w", err)
	}
	return files, nil
}

// Export streams the project workspace as a zstd-compressed tar archive.
func (m *Manager) Export(projectID string, w io.Writer) error {
	dir := m.ProjectDir(projectID)
	if _, err := os.Stat(dir); err != nil {
		return fmt.Errorf("workspace for %s: %w", projectID, err)
	}

	tar, err := goarchive.TarWithOptions(dir, &goarchive.TarOptions{})
	if err != nil {
		return fmt.Errorf("create tar stream: %w", err)
	}
	defer tar.Close()

	zw, err := zstd.NewWriter(w)
	if err != nil {
		return fmt.Errorf("create zstd writer: %w", err)
	}

	if _, err := io.Copy(zw, tar); err != nil {
		zw.Close()
		return fmt.Errorf("compress workspace: %w", err)
	}
	return zw.Close()
}
