package local

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"syscall"

	"github.com/bit2swaz/tmpsweep/pkg/storage"
)

// LocalDriver implements storage.Store on top of a filesystem directory.
type LocalDriver struct {
	root string
}

// New creates a LocalDriver rooted at root, creating the directory if needed.
func New(root string) (*LocalDriver, error) {
	if root == "" {
		return nil, fmt.Errorf("local storage root is not set")
	}

	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolve local root %s: %w", root, err)
	}

	if err := os.MkdirAll(abs, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create local root directory: %w", err)
	}

	return &LocalDriver{root: abs}, nil
}

// Root returns the absolute directory backing the store.
func (d *LocalDriver) Root() string {
	return d.root
}

func (d *LocalDriver) resolve(name string) (string, string, error) {
	cleaned, err := storage.Clean(name)
	if err != nil {
		return "", "", err
	}
	return cleaned, filepath.Join(d.root, filepath.FromSlash(cleaned)), nil
}

func (d *LocalDriver) ListDirectories(ctx context.Context, prefix string) ([]string, error) {
	cleaned, full, err := d.resolve(prefix)
	if err != nil {
		return nil, err
	}

	entries, err := os.ReadDir(full)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("list %s: %w", cleaned, storage.ErrNotFound)
		}
		return nil, fmt.Errorf("list %s: %w", cleaned, err)
	}

	dirs := make([]string, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() {
			dirs = append(dirs, join(cleaned, entry.Name()))
		}
	}
	return dirs, nil
}

func (d *LocalDriver) ListDirectoriesRecursive(ctx context.Context, prefix string) ([]string, error) {
	return d.walk(ctx, prefix, true)
}

func (d *LocalDriver) ListFilesRecursive(ctx context.Context, prefix string) ([]string, error) {
	return d.walk(ctx, prefix, false)
}

func (d *LocalDriver) walk(ctx context.Context, prefix string, wantDirs bool) ([]string, error) {
	cleaned, full, err := d.resolve(prefix)
	if err != nil {
		return nil, err
	}

	var out []string
	err = filepath.WalkDir(full, func(p string, entry fs.DirEntry, err error) error {
		if err != nil {
			// Entries below the prefix may vanish while a concurrent sweep prunes them.
			if p != full && errors.Is(err, fs.ErrNotExist) {
				return nil
			}
			return err
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		if p == full || entry.IsDir() != wantDirs {
			return nil
		}
		rel, err := filepath.Rel(d.root, p)
		if err != nil {
			return err
		}
		out = append(out, filepath.ToSlash(rel))
		return nil
	})
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("walk %s: %w", cleaned, storage.ErrNotFound)
		}
		return nil, fmt.Errorf("walk %s: %w", cleaned, err)
	}

	sort.Strings(out)
	return out, nil
}

func (d *LocalDriver) FileSize(ctx context.Context, name string) (int64, error) {
	cleaned, full, err := d.resolve(name)
	if err != nil {
		return 0, err
	}

	info, err := os.Stat(full)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return 0, fmt.Errorf("stat %s: %w", cleaned, storage.ErrNotFound)
		}
		return 0, fmt.Errorf("stat %s: %w", cleaned, err)
	}
	if !info.Mode().IsRegular() {
		return 0, fmt.Errorf("stat %s is not a regular file", cleaned)
	}
	return info.Size(), nil
}

func (d *LocalDriver) DeleteFile(ctx context.Context, name string) error {
	cleaned, full, err := d.resolve(name)
	if err != nil {
		return err
	}
	if cleaned == "" {
		return fmt.Errorf("%w: refusing to delete store root", storage.ErrInvalidPath)
	}

	if err := os.Remove(full); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("remove %s: %w", cleaned, err)
	}
	return nil
}

func (d *LocalDriver) DeleteDirectory(ctx context.Context, name string) error {
	cleaned, full, err := d.resolve(name)
	if err != nil {
		return err
	}
	if cleaned == "" {
		return fmt.Errorf("%w: refusing to delete store root", storage.ErrInvalidPath)
	}

	err = os.Remove(full)
	switch {
	case err == nil, errors.Is(err, os.ErrNotExist):
		return nil
	case errors.Is(err, syscall.ENOTEMPTY), errors.Is(err, syscall.EEXIST):
		return fmt.Errorf("remove dir %s: %w", cleaned, storage.ErrDirectoryNotEmpty)
	default:
		return fmt.Errorf("remove dir %s: %w", cleaned, err)
	}
}

func (d *LocalDriver) Put(ctx context.Context, name string, body io.Reader) error {
	cleaned, full, err := d.resolve(name)
	if err != nil {
		return err
	}
	if cleaned == "" {
		return fmt.Errorf("%w: empty object name", storage.ErrInvalidPath)
	}

	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		return fmt.Errorf("put ensure dir %s: %w", filepath.Dir(cleaned), err)
	}

	out, err := os.Create(full)
	if err != nil {
		return fmt.Errorf("create %s: %w", cleaned, err)
	}

	_, copyErr := io.Copy(out, body)
	closeErr := out.Close()
	if copyErr != nil {
		return fmt.Errorf("write %s: %w", cleaned, copyErr)
	}
	if closeErr != nil {
		return fmt.Errorf("close %s: %w", cleaned, closeErr)
	}
	return nil
}

func join(dir, name string) string {
	if dir == "" {
		return name
	}
	return dir + "/" + name
}
