package hosttools

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/itsmostafa/replbridge/internal/bridge"
	"github.com/itsmostafa/replbridge/internal/sandbox"
)

// ErrOutsideRoot is returned for paths that resolve outside the FS root.
var ErrOutsideRoot = errors.New("path escapes root")

// FS exposes read-only filesystem access confined to a root directory.
type FS struct {
	// Root is the directory every path is resolved against.
	Root string

	// MaxFileSize is the maximum file size in bytes to read (default: 1MB).
	// Larger files are truncated.
	MaxFileSize int64

	// ExcludeDirs are directory names skipped by list, glob and tree.
	ExcludeDirs []string
}

// NewFS creates an FS rooted at root with default settings.
func NewFS(root string) *FS {
	return &FS{
		Root:        root,
		MaxFileSize: 1024 * 1024,
		ExcludeDirs: []string{".git", "node_modules", "__pycache__", ".venv", "vendor"},
	}
}

// resolvePath converts path to an absolute path inside Root.
func (f *FS) resolvePath(path string) (string, error) {
	root, err := filepath.Abs(f.Root)
	if err != nil {
		return "", err
	}
	resolved := filepath.Clean(path)
	if !filepath.IsAbs(resolved) {
		resolved = filepath.Join(root, resolved)
	}
	rel, err := filepath.Rel(root, resolved)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("%w: %s", ErrOutsideRoot, path)
	}
	return resolved, nil
}

// List returns the entries of the directory at path.
func (f *FS) List(path string) ([]any, error) {
	resolved, err := f.resolvePath(path)
	if err != nil {
		return nil, err
	}
	entries, err := os.ReadDir(resolved)
	if err != nil {
		return nil, err
	}

	result := []any{}
	for _, entry := range entries {
		if entry.IsDir() && f.isExcludedDir(entry.Name()) {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		result = append(result, map[string]any{
			"name":   entry.Name(),
			"is_dir": entry.IsDir(),
			"size":   info.Size(),
		})
	}
	return result, nil
}

// Read returns the contents of the file at path, truncated to MaxFileSize.
func (f *FS) Read(path string) (string, error) {
	resolved, err := f.resolvePath(path)
	if err != nil {
		return "", err
	}
	info, err := os.Stat(resolved)
	if err != nil {
		return "", err
	}
	if info.IsDir() {
		return "", fmt.Errorf("%s is a directory", path)
	}

	if f.MaxFileSize > 0 && info.Size() > f.MaxFileSize {
		file, err := os.Open(resolved)
		if err != nil {
			return "", err
		}
		defer file.Close()

		buf := make([]byte, f.MaxFileSize)
		n, err := io.ReadFull(file, buf)
		if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) {
			return "", err
		}
		return string(buf[:n]) + "\n... [truncated]", nil
	}

	content, err := os.ReadFile(resolved)
	if err != nil {
		return "", err
	}
	return string(content), nil
}

// Glob returns the paths under Root matching pattern, relative to Root.
func (f *FS) Glob(pattern string) ([]string, error) {
	root, err := filepath.Abs(f.Root)
	if err != nil {
		return nil, err
	}
	if filepath.IsAbs(pattern) {
		return nil, fmt.Errorf("%w: glob patterns must be relative", ErrOutsideRoot)
	}
	if _, err := f.resolvePath(pattern); err != nil {
		return nil, err
	}

	matches, err := filepath.Glob(filepath.Join(root, pattern))
	if err != nil {
		return nil, err
	}
	result := []string{}
	for _, match := range matches {
		rel, err := filepath.Rel(root, match)
		if err != nil || f.containsExcludedDir(rel) {
			continue
		}
		result = append(result, filepath.ToSlash(rel))
	}
	return result, nil
}

// Exists reports whether path exists inside Root.
func (f *FS) Exists(path string) bool {
	resolved, err := f.resolvePath(path)
	if err != nil {
		return false
	}
	_, err = os.Stat(resolved)
	return err == nil
}

// Tree returns the directory tree at path down to maxDepth levels.
func (f *FS) Tree(path string, maxDepth int) ([]any, error) {
	resolved, err := f.resolvePath(path)
	if err != nil {
		return nil, err
	}
	return f.buildTree(resolved, 0, maxDepth)
}

func (f *FS) buildTree(path string, depth, maxDepth int) ([]any, error) {
	if depth >= maxDepth {
		return nil, nil
	}
	entries, err := os.ReadDir(path)
	if err != nil {
		return nil, err
	}

	result := []any{}
	for _, entry := range entries {
		if entry.IsDir() && f.isExcludedDir(entry.Name()) {
			continue
		}
		node := map[string]any{
			"name":   entry.Name(),
			"is_dir": entry.IsDir(),
		}
		if entry.IsDir() {
			children, err := f.buildTree(filepath.Join(path, entry.Name()), depth+1, maxDepth)
			if err == nil && len(children) > 0 {
				node["children"] = children
			}
		}
		result = append(result, node)
	}
	return result, nil
}

func (f *FS) isExcludedDir(name string) bool {
	return slices.Contains(f.ExcludeDirs, name)
}

func (f *FS) containsExcludedDir(path string) bool {
	for _, part := range strings.Split(filepath.ToSlash(path), "/") {
		if f.isExcludedDir(part) {
			return true
		}
	}
	return false
}

// Tools returns fs_list, fs_read, fs_glob, fs_exists and fs_tree.
func (f *FS) Tools() map[string]bridge.ToolFunc {
	return map[string]bridge.ToolFunc{
		"fs_list": func(_ context.Context, args []any, kwargs sandbox.Kwargs) (any, error) {
			path, err := newParams("fs_list", args, kwargs).optString(0, "path", ".")
			if err != nil {
				return nil, err
			}
			return f.List(path)
		},
		"fs_read": func(_ context.Context, args []any, kwargs sandbox.Kwargs) (any, error) {
			path, err := newParams("fs_read", args, kwargs).requireString(0, "path")
			if err != nil {
				return nil, err
			}
			return f.Read(path)
		},
		"fs_glob": func(_ context.Context, args []any, kwargs sandbox.Kwargs) (any, error) {
			pattern, err := newParams("fs_glob", args, kwargs).requireString(0, "pattern")
			if err != nil {
				return nil, err
			}
			matches, err := f.Glob(pattern)
			if err != nil {
				return nil, err
			}
			return stringList(matches), nil
		},
		"fs_exists": func(_ context.Context, args []any, kwargs sandbox.Kwargs) (any, error) {
			path, err := newParams("fs_exists", args, kwargs).requireString(0, "path")
			if err != nil {
				return nil, err
			}
			return f.Exists(path), nil
		},
		"fs_tree": func(_ context.Context, args []any, kwargs sandbox.Kwargs) (any, error) {
			p := newParams("fs_tree", args, kwargs)
			path, err := p.optString(0, "path", ".")
			if err != nil {
				return nil, err
			}
			depth, err := p.optInt(1, "depth", 3)
			if err != nil {
				return nil, err
			}
			return f.Tree(path, depth)
		},
	}
}
