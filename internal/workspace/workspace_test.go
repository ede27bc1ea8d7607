package workspace

import (
	"bytes"
	"path/filepath"
	"sort"
	"testing"

	"github.com/klauspost/compress/zstd"
	"github.com/mtzanidakis/helios/internal/config"
)

func testManager(t *testing.T) *Manager {
	t.Helper()
	m, err := NewManager(config.WorkspaceConfig{BasePath: filepath.Join(t.TempDir(), "ws")})
	if err != nil {
		t.Fatalf("new manager: %v", err)
	}
	return m
}

func TestWriteAndReadFile(t *testing.T) {
	m := testManager(t)

	if err := m.WriteFile("p1", "backend/api.md", []byte("# API")); err != nil {
		t.Fatalf("write: %v", err)
	}
	got, err := m.ReadFile("p1", "backend/api.md")
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if string(got) != "# API" {
		t.Errorf("got %q", got)
	}

	// Overwrite replaces content
	if err := m.WriteFile("p1", "backend/api.md", []byte("# API v2")); err != nil {
		t.Fatalf("rewrite: %v", err)
	}
	got, _ = m.ReadFile("p1", "backend/api.md")
	if string(got) != "# API v2" {
		t.Errorf("got %q after rewrite", got)
	}
}

func TestWriteRejectsEscapingPaths(t *testing.T) {
	m := testManager(t)

	for _, rel := range []string{"../outside.txt", "a/../../outside.txt", "../../etc/passwd"} {
		if err := m.WriteFile("p1", rel, []byte("x")); err == nil {
			t.Errorf("expected rejection for %q", rel)
		}
	}
	if _, err := m.ReadFile("p1", "../outside.txt"); err == nil {
		t.Error("expected read rejection")
	}
}

func TestListFiles(t *testing.T) {
	m := testManager(t)

	files, err := m.ListFiles("empty")
	if err != nil || files != nil {
		t.Errorf("expected nil for missing workspace, got %v (err %v)", files, err)
	}

	_ = m.WriteFile("p1", "README.md", []byte("readme"))
	_ = m.WriteFile("p1", "backend/api.md", []byte("api"))
	_ = m.WriteFile("p1", "frontend/ui.md", []byte("ui"))

	files, err = m.ListFiles("p1")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	sort.Strings(files)
	want := []string{"README.md", "backend/api.md", "frontend/ui.md"}
	if len(files) != len(want) {
		t.Fatalf("expected %d files, got %v", len(want), files)
	}
	for i := range want {
		if files[i] != want[i] {
			t.Errorf("file %d: got %q, want %q", i, files[i], want[i])
		}
	}
}

func TestExport(t *testing.T) {
	m := testManager(t)
	_ = m.WriteFile("p1", "README.md", []byte("hello export"))

	var buf bytes.Buffer
	if err := m.Export("p1", &buf); err != nil {
		t.Fatalf("export: %v", err)
	}
	if buf.Len() == 0 {
		t.Fatal("empty export stream")
	}

	// The stream must be valid zstd containing the written file
	zr, err := zstd.NewReader(bytes.NewReader(buf.Bytes()))
	if err != nil {
		t.Fatalf("open zstd stream: %v", err)
	}
	defer zr.Close()
	var tarData bytes.Buffer
	if _, err := tarData.ReadFrom(zr); err != nil {
		t.Fatalf("decompress: %v", err)
	}
	if !bytes.Contains(tarData.Bytes(), []byte("README.md")) {
		t.Error("archive does not mention README.md")
	}
	if !bytes.Contains(tarData.Bytes(), []byte("hello export")) {
		t.Error("archive does not contain file content")
	}

	if err := m.Export("missing", &bytes.Buffer{}); err == nil {
		t.Error("expected error for missing workspace")
	}
}
