package sweeper

import (
	"sync"
	"time"
)

// Failure ops.
const (
	OpList   = "list"
	OpDate   = "date"
	OpSize   = "size"
	OpDelete = "delete"
)

// Failure is an isolated error for one directory or file. It never stops the
// rest of the sweep.
type Failure struct {
	Path string
	Op   string
	Err  error
}

type Summary struct {
	Root        string
	Cutoff      time.Time
	DryRun      bool
	Files       int
	Bytes       int64
	DirsRemoved int
	Undated     int
	Excluded    int
	Failures    []Failure
	// RootErr is set when the root itself could not be listed; no work was
	// done in that case.
	RootErr  error
	Canceled bool
}

// FailuresByOp counts failures per operation.
func (s Summary) FailuresByOp() map[string]int {
	counts := make(map[string]int, len(s.Failures))
	for _, f := range s.Failures {
		counts[f.Op]++
	}
	return counts
}

// Clean reports whether the sweep finished without any isolated failures.
func (s Summary) Clean() bool {
	return s.RootErr == nil && len(s.Failures) == 0 && !s.Canceled
}

type tally struct {
	mu      sync.Mutex
	sum     *Summary
	removed map[string]struct{}
}

func (t *tally) file(size int64) {
	t.mu.Lock()
	t.sum.Files++
	t.sum.Bytes += size
	t.mu.Unlock()
}

func (t *tally) fail(path, op string, err error) {
	t.mu.Lock()
	t.sum.Failures = append(t.sum.Failures, Failure{Path: path, Op: op, Err: err})
	t.mu.Unlock()
}

func (t *tally) excluded() {
	t.mu.Lock()
	t.sum.Excluded++
	t.mu.Unlock()
}

// dirRemoved counts dir once per run and reports whether it was new.
func (t *tally) dirRemoved(dir string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.removed[dir]; ok {
		return false
	}
	if t.removed == nil {
		t.removed = make(map[string]struct{})
	}
	t.removed[dir] = struct{}{}
	t.sum.DirsRemoved++
	return true
}

func (t *tally) wasRemoved(dir string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	_, ok := t.removed[dir]
	return ok
}

func (t *tally) canceled() {
	t.mu.Lock()
	t.sum.Canceled = true
	t.mu.Unlock()
}
