package hosttools

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/itsmostafa/replbridge/internal/sandbox"
)

func setupTree(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	os.WriteFile(filepath.Join(dir, "file1.txt"), []byte("content1"), 0644)
	os.WriteFile(filepath.Join(dir, "file2.go"), []byte("package main"), 0644)
	os.MkdirAll(filepath.Join(dir, "subdir", "deep"), 0755)
	os.WriteFile(filepath.Join(dir, "subdir", "inner.go"), []byte("package sub"), 0644)
	os.MkdirAll(filepath.Join(dir, ".git"), 0755)
	return dir
}

func TestFS_List(t *testing.T) {
	fs := NewFS(setupTree(t))

	result, err := fs.List(".")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(result) != 3 {
		t.Fatalf("expected 3 entries (excluding .git), got %d", len(result))
	}

	names := make(map[string]bool)
	for _, entry := range result {
		names[entry.(map[string]any)["name"].(string)] = true
	}
	if !names["file1.txt"] || !names["file2.go"] || !names["subdir"] {
		t.Errorf("expected file1.txt, file2.go, subdir; got %v", names)
	}
}

func TestFS_Read(t *testing.T) {
	dir := t.TempDir()
	os.WriteFile(filepath.Join(dir, "test.txt"), []byte("Hello, World!\nLine 2\n"), 0644)
	os.WriteFile(filepath.Join(dir, "large.txt"), []byte(strings.Repeat("x", 100)), 0644)

	fs := NewFS(dir)
	fs.MaxFileSize = 10

	got, err := fs.Read("large.txt")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.HasPrefix(got, strings.Repeat("x", 10)) || !strings.Contains(got, "[truncated]") {
		t.Errorf("expected truncated content, got %q", got)
	}

	fs.MaxFileSize = 1024
	got, err = fs.Read("test.txt")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "Hello, World!\nLine 2\n" {
		t.Errorf("unexpected content: %q", got)
	}

	if _, err := fs.Read("."); err == nil {
		t.Error("expected error reading a directory")
	}
}

func TestFS_ConfinedToRoot(t *testing.T) {
	fs := NewFS(setupTree(t))

	tests := []string{"../outside.txt", "subdir/../../x", "/etc/passwd"}
	for _, path := range tests {
		t.Run(path, func(t *testing.T) {
			if _, err := fs.Read(path); !errors.Is(err, ErrOutsideRoot) {
				t.Errorf("expected ErrOutsideRoot, got %v", err)
			}
			if fs.Exists(path) {
				t.Error("paths outside root must not exist")
			}
		})
	}

	if _, err := fs.Glob("../*"); !errors.Is(err, ErrOutsideRoot) {
		t.Errorf("expected ErrOutsideRoot for glob, got %v", err)
	}
}

func TestFS_Glob(t *testing.T) {
	fs := NewFS(setupTree(t))

	matches, err := fs.Glob("*/*.go")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(matches) != 1 || matches[0] != "subdir/inner.go" {
		t.Errorf("unexpected matches: %v", matches)
	}
}

func TestFS_Tree(t *testing.T) {
	fs := NewFS(setupTree(t))

	tree, err := fs.Tree(".", 1)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for _, node := range tree {
		if _, ok := node.(map[string]any)["children"]; ok {
			t.Errorf("depth 1 should not include children: %v", node)
		}
	}

	tree, err = fs.Tree(".", 3)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	found := false
	for _, node := range tree {
		m := node.(map[string]any)
		if m["name"] == "subdir" {
			found = len(m["children"].([]any)) > 0
		}
	}
	if !found {
		t.Error("expected subdir to have children")
	}
}

func TestFS_Tools(t *testing.T) {
	fs := NewFS(setupTree(t))
	tools := fs.Tools()

	got, err := tools["fs_read"](context.Background(), nil, sandbox.Kwargs{{Name: "path", Value: "file1.txt"}})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "content1" {
		t.Errorf("unexpected content: %v", got)
	}

	exists, err := tools["fs_exists"](context.Background(), []any{"file2.go"}, nil)
	if err != nil || exists != true {
		t.Errorf("expected file2.go to exist, got %v, %v", exists, err)
	}

	if _, err := tools["fs_read"](context.Background(), nil, nil); err == nil {
		t.Error("expected error for missing path argument")
	}
	if _, err := tools["fs_read"](context.Background(), []any{int64(1)}, nil); err == nil {
		t.Error("expected error for non-string path")
	}
}
