package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"
)

var (
	ErrNotFound          = errors.New("storage: not found")
	ErrDirectoryNotEmpty = errors.New("storage: directory not empty")
	ErrInvalidPath       = errors.New("storage: invalid path")
)

// Store is the object-storage surface the sweeper works against. Paths are
// slash-separated, relative to the store root and carry no trailing slash.
type Store interface {
	// ListDirectories returns the immediate child directories of prefix.
	ListDirectories(ctx context.Context, prefix string) ([]string, error)
	// ListDirectoriesRecursive returns every descendant directory of prefix.
	ListDirectoriesRecursive(ctx context.Context, prefix string) ([]string, error)
	// ListFilesRecursive returns every file below prefix.
	ListFilesRecursive(ctx context.Context, prefix string) ([]string, error)
	FileSize(ctx context.Context, name string) (int64, error)
	// DeleteFile removes a file. A missing file is not an error.
	DeleteFile(ctx context.Context, name string) error
	// DeleteDirectory removes an empty directory. It returns
	// ErrDirectoryNotEmpty when anything is left below it and nil when the
	// directory is already gone.
	DeleteDirectory(ctx context.Context, name string) error
	Put(ctx context.Context, name string, body io.Reader) error
}

// Clean normalises a store path and rejects anything that climbs above the
// store root.
func Clean(name string) (string, error) {
	trimmed := strings.TrimSpace(strings.ReplaceAll(name, "\\", "/"))
	trimmed = strings.Trim(trimmed, "/")
	if trimmed == "" {
		return "", nil
	}
	for _, part := range strings.Split(trimmed, "/") {
		if part == ".." {
			return "", fmt.Errorf("%w: %s", ErrInvalidPath, name)
		}
	}
	cleaned := path.Clean(trimmed)
	if cleaned == "." {
		return "", nil
	}
	return cleaned, nil
}

// Within reports whether name sits strictly below dir.
func Within(dir, name string) bool {
	if dir == "" {
		return name != ""
	}
	return strings.HasPrefix(name, dir+"/")
}

// Parent returns the parent directory of name, or "" for top-level entries.
func Parent(name string) string {
	idx := strings.LastIndex(name, "/")
	if idx < 0 {
		return ""
	}
	return name[:idx]
}
