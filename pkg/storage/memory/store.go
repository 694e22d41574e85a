// Package memory provides an in-process storage.Store used by tests and
// dry runs against fixture trees.
package memory

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"

	"github.com/bit2swaz/tmpsweep/pkg/storage"
)

// Op names a Store operation for failure injection.
type Op string

const (
	OpList            Op = "list"
	OpSize            Op = "size"
	OpDeleteFile      Op = "delete_file"
	OpDeleteDirectory Op = "delete_directory"
)

// Store keeps files and explicit directories in maps. Every ancestor of a
// file is treated as an existing directory.
type Store struct {
	mu       sync.Mutex
	files    map[string][]byte
	dirs     map[string]struct{}
	failures map[Op]map[string]error
	deletes  int
}

func New() *Store {
	return &Store{
		files:    make(map[string][]byte),
		dirs:     make(map[string]struct{}),
		failures: make(map[Op]map[string]error),
	}
}

// AddFile stores a file of the given size, creating its directories.
func (s *Store) AddFile(name string, size int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.files[name] = bytes.Repeat([]byte{'x'}, size)
}

// AddDir registers an empty directory.
func (s *Store) AddDir(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.dirs[name] = struct{}{}
}

// FailOn makes op on name return err until cleared with a nil err.
func (s *Store) FailOn(op Op, name string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failures[op] == nil {
		s.failures[op] = make(map[string]error)
	}
	if err == nil {
		delete(s.failures[op], name)
		return
	}
	s.failures[op][name] = err
}

// HasFile reports whether name is stored as a file.
func (s *Store) HasFile(name string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.files[name]
	return ok
}

// HasDir reports whether name exists as a directory.
func (s *Store) HasDir(name string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dirExists(name)
}

// Deletes counts successful DeleteFile and DeleteDirectory calls.
func (s *Store) Deletes() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.deletes
}

func (s *Store) fail(op Op, name string) error {
	if err, ok := s.failures[op][name]; ok {
		return err
	}
	return nil
}

func (s *Store) allDirs() map[string]struct{} {
	all := make(map[string]struct{}, len(s.dirs))
	for d := range s.dirs {
		for p := d; p != ""; p = storage.Parent(p) {
			all[p] = struct{}{}
		}
	}
	for f := range s.files {
		for p := storage.Parent(f); p != ""; p = storage.Parent(p) {
			all[p] = struct{}{}
		}
	}
	return all
}

func (s *Store) dirExists(name string) bool {
	_, ok := s.allDirs()[name]
	return ok
}

func (s *Store) ListDirectories(ctx context.Context, prefix string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.fail(OpList, prefix); err != nil {
		return nil, err
	}
	if prefix != "" && !s.dirExists(prefix) {
		return nil, fmt.Errorf("list %s: %w", prefix, storage.ErrNotFound)
	}

	var out []string
	for d := range s.allDirs() {
		if storage.Parent(d) == prefix {
			out = append(out, d)
		}
	}
	sort.Strings(out)
	return out, nil
}

func (s *Store) ListDirectoriesRecursive(ctx context.Context, prefix string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.fail(OpList, prefix); err != nil {
		return nil, err
	}

	var out []string
	for d := range s.allDirs() {
		if storage.Within(prefix, d) {
			out = append(out, d)
		}
	}
	sort.Strings(out)
	return out, nil
}

func (s *Store) ListFilesRecursive(ctx context.Context, prefix string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.fail(OpList, prefix); err != nil {
		return nil, err
	}

	var out []string
	for f := range s.files {
		if storage.Within(prefix, f) {
			out = append(out, f)
		}
	}
	sort.Strings(out)
	return out, nil
}

func (s *Store) FileSize(ctx context.Context, name string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.fail(OpSize, name); err != nil {
		return 0, err
	}
	data, ok := s.files[name]
	if !ok {
		return 0, fmt.Errorf("stat %s: %w", name, storage.ErrNotFound)
	}
	return int64(len(data)), nil
}

func (s *Store) DeleteFile(ctx context.Context, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.fail(OpDeleteFile, name); err != nil {
		return err
	}
	if _, ok := s.files[name]; ok {
		delete(s.files, name)
		if parent := storage.Parent(name); parent != "" {
			s.dirs[parent] = struct{}{}
		}
		s.deletes++
	}
	return nil
}

func (s *Store) DeleteDirectory(ctx context.Context, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.fail(OpDeleteDirectory, name); err != nil {
		return err
	}
	if !s.dirExists(name) {
		return nil
	}
	for d := range s.allDirs() {
		if storage.Within(name, d) {
			return fmt.Errorf("remove dir %s: %w", name, storage.ErrDirectoryNotEmpty)
		}
	}
	for f := range s.files {
		if storage.Within(name, f) {
			return fmt.Errorf("remove dir %s: %w", name, storage.ErrDirectoryNotEmpty)
		}
	}

	delete(s.dirs, name)
	// Directories outlive their last child, as on a filesystem.
	if parent := storage.Parent(name); parent != "" {
		s.dirs[parent] = struct{}{}
	}
	s.deletes++
	return nil
}

func (s *Store) Put(ctx context.Context, name string, body io.Reader) error {
	if strings.TrimSpace(name) == "" {
		return fmt.Errorf("%w: empty object name", storage.ErrInvalidPath)
	}
	data, err := io.ReadAll(body)
	if err != nil {
		return fmt.Errorf("read body for %s: %w", name, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.files[name] = data
	return nil
}

var _ storage.Store = (*Store)(nil)
