// Package sweeper removes orphaned temporary uploads from a date-partitioned
// object store (<root>/yyyy/mm/dd/...) once they fall outside the retention
// window, then prunes the directories they leave empty.
package sweeper

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/bit2swaz/tmpsweep/pkg/storage"
)

const DefaultRoot = "tmp"

// ErrInvalidWindow is a configuration error: it is returned before any I/O.
var ErrInvalidWindow = errors.New("retention window must not be negative")

type Options struct {
	// WindowDays is the retention window in whole days. Zero makes anything
	// dated before today eligible.
	WindowDays int
	DryRun     bool
	// Now overrides the clock; the zero value means time.Now.
	Now time.Time
	// Concurrency bounds how many dated directories are processed at once.
	Concurrency int
}

type Sweeper struct {
	store    storage.Store
	root     string
	pattern  datePattern
	loc      *time.Location
	reporter Reporter
	excluder Excluder
	logger   *zap.Logger
	now      func() time.Time
}

type Option func(*Sweeper)

// WithRoot changes the retention root (default "tmp").
func WithRoot(root string) Option {
	return func(s *Sweeper) {
		if cleaned, err := storage.Clean(root); err == nil && cleaned != "" {
			s.root = cleaned
		}
	}
}

func WithLocation(loc *time.Location) Option {
	return func(s *Sweeper) {
		if loc != nil {
			s.loc = loc
		}
	}
}

func WithReporter(r Reporter) Option {
	return func(s *Sweeper) { s.reporter = r }
}

func WithExcluder(e Excluder) Option {
	return func(s *Sweeper) { s.excluder = e }
}

func WithLogger(l *zap.Logger) Option {
	return func(s *Sweeper) {
		if l != nil {
			s.logger = l
		}
	}
}

func New(store storage.Store, opts ...Option) *Sweeper {
	s := &Sweeper{
		store:  store,
		root:   DefaultRoot,
		loc:    time.UTC,
		logger: zap.NewNop(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.pattern = newDatePattern(s.root)
	return s
}

// Root returns the retention root the sweeper is confined to.
func (s *Sweeper) Root() string {
	return s.root
}

// Run performs one sweep. Only configuration errors are returned; I/O
// failures are isolated per directory or file and recorded in the summary.
func (s *Sweeper) Run(ctx context.Context, opts Options) (Summary, error) {
	if opts.WindowDays < 0 {
		return Summary{}, fmt.Errorf("%w: %d", ErrInvalidWindow, opts.WindowDays)
	}

	now := opts.Now
	if now.IsZero() {
		now = s.now()
	}
	cutoff := Cutoff(now.In(s.loc), opts.WindowDays)

	sum := Summary{Root: s.root, Cutoff: cutoff, DryRun: opts.DryRun}
	t := &tally{sum: &sum}
	log := s.logger.With(zap.String("root", s.root), zap.Time("cutoff", cutoff), zap.Bool("dry_run", opts.DryRun))

	top, err := s.store.ListDirectories(ctx, s.root)
	if err != nil {
		log.Error("list retention root failed", zap.Error(err))
		sum.RootErr = fmt.Errorf("list %s: %w", s.root, err)
		return sum, nil
	}

	dated, order, partial := s.discover(ctx, top, t, log)

	var g errgroup.Group
	g.SetLimit(max(1, opts.Concurrency))
	for _, path := range order {
		if ctx.Err() != nil {
			t.canceled()
			break
		}
		rd := dated[path]
		g.Go(func() error {
			s.processDir(ctx, rd, opts.DryRun, cutoff, t, log)
			return nil
		})
	}
	_ = g.Wait()

	if !opts.DryRun && ctx.Err() == nil {
		s.pruneIntermediate(ctx, partial, cutoff, t, log)
	}

	log.Info("sweep finished",
		zap.Int("files", sum.Files),
		zap.Int64("bytes", sum.Bytes),
		zap.Int("dirs_removed", sum.DirsRemoved),
		zap.Int("failures", len(sum.Failures)),
		zap.Bool("canceled", sum.Canceled),
	)
	return sum, nil
}

type datedDir struct {
	RetentionDir
	nested []string
}

// discover builds the candidate pool: every first-level child of the root
// plus all of its descendants. Candidates collapse onto their dated
// directory so each file is visited once. Year and month directories are
// returned separately for the final prune pass.
func (s *Sweeper) discover(ctx context.Context, top []string, t *tally, log *zap.Logger) (map[string]*datedDir, []string, []string) {
	pool := make([]string, 0, len(top))
	for _, dir := range top {
		pool = append(pool, dir)
		sub, err := s.store.ListDirectoriesRecursive(ctx, dir)
		if err != nil {
			if errors.Is(err, storage.ErrNotFound) {
				log.Debug("directory already removed", zap.String("dir", dir))
				continue
			}
			log.Error("list directory failed", zap.String("dir", dir), zap.Error(err))
			t.fail(dir, OpList, err)
			s.report(Event{Kind: EventDirFailed, Path: dir, Err: err})
			continue
		}
		pool = append(pool, sub...)
	}

	dated := make(map[string]*datedDir)
	var order, partial []string
	for _, candidate := range pool {
		if !storage.Within(s.root, candidate) {
			continue
		}
		rd, ok := s.pattern.match(candidate)
		if !ok {
			if s.pattern.intermediate(candidate) {
				partial = append(partial, candidate)
			} else {
				t.sum.Undated++
				log.Debug("skipping undated directory", zap.String("dir", candidate))
			}
			continue
		}
		entry, seen := dated[rd.Path]
		if !seen {
			entry = &datedDir{RetentionDir: rd}
			dated[rd.Path] = entry
			order = append(order, rd.Path)
		}
		if candidate != rd.Path {
			entry.nested = append(entry.nested, candidate)
		}
	}
	sort.Strings(order)
	return dated, order, partial
}

func (s *Sweeper) processDir(ctx context.Context, dir *datedDir, dryRun bool, cutoff time.Time, t *tally, log *zap.Logger) {
	if ctx.Err() != nil {
		t.canceled()
		return
	}
	log = log.With(zap.String("dir", dir.Path))

	date, err := dir.Date(cutoff.Location())
	if err != nil {
		log.Error("unparseable retention directory", zap.Error(err))
		t.fail(dir.Path, OpDate, err)
		s.report(Event{Kind: EventDirFailed, Path: dir.Path, Err: err})
		return
	}
	if !date.Before(cutoff) {
		return
	}

	files, err := s.store.ListFilesRecursive(ctx, dir.Path)
	if err != nil {
		switch {
		case ctx.Err() != nil:
			t.canceled()
			return
		case errors.Is(err, storage.ErrNotFound):
			log.Debug("directory already removed")
			return
		}
		log.Error("list files failed", zap.Error(err))
		t.fail(dir.Path, OpList, err)
		s.report(Event{Kind: EventDirFailed, Path: dir.Path, Err: err})
		return
	}

	for _, file := range files {
		if ctx.Err() != nil {
			t.canceled()
			return
		}
		s.processFile(ctx, file, dryRun, t, log)
	}

	if !dryRun {
		s.prune(ctx, dir, t, log)
	}
}

func (s *Sweeper) processFile(ctx context.Context, file string, dryRun bool, t *tally, log *zap.Logger) {
	if !storage.Within(s.root, file) {
		return
	}
	if s.excluder != nil && s.excluder.Match(file) {
		t.excluded()
		s.report(Event{Kind: EventExcluded, Path: file})
		return
	}

	size, err := s.store.FileSize(ctx, file)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			// Removed by an overlapping run.
			return
		}
		log.Warn("read file size failed", zap.String("file", file), zap.Error(err))
		t.fail(file, OpSize, err)
		return
	}

	if dryRun {
		t.file(size)
		s.report(Event{Kind: EventWouldDelete, Path: file, Size: size})
		return
	}

	if err := s.store.DeleteFile(ctx, file); err != nil {
		log.Warn("delete file failed", zap.String("file", file), zap.Error(err))
		t.fail(file, OpDelete, err)
		s.report(Event{Kind: EventDeleteFailed, Path: file, Size: size, Err: err})
		return
	}
	t.file(size)
	s.report(Event{Kind: EventDeleted, Path: file, Size: size})
}

// prune removes directories emptied by the sweep, post-order: nested
// directories deepest first, then the dated directory and its ancestors up
// to, but never including, the root. Failures only end the walk.
func (s *Sweeper) prune(ctx context.Context, dir *datedDir, t *tally, log *zap.Logger) {
	nested := append([]string(nil), dir.nested...)
	sortDeepestFirst(nested)
	for _, sub := range nested {
		s.pruneDir(ctx, sub, t, log)
	}

	for p := dir.Path; storage.Within(s.root, p); p = storage.Parent(p) {
		if !s.pruneDir(ctx, p, t, log) {
			return
		}
	}
}

// pruneIntermediate retries year and month directories whose whole span is
// past the cutoff. It picks up ancestors an earlier run failed to remove,
// since no dated directory is left below them to trigger the upward walk.
func (s *Sweeper) pruneIntermediate(ctx context.Context, dirs []string, cutoff time.Time, t *tally, log *zap.Logger) {
	var expired []string
	for _, dir := range dirs {
		if s.pattern.expired(dir, cutoff) && !t.wasRemoved(dir) {
			expired = append(expired, dir)
		}
	}
	sortDeepestFirst(expired)
	for _, dir := range expired {
		if ctx.Err() != nil {
			return
		}
		s.pruneDir(ctx, dir, t, log)
	}
}

func sortDeepestFirst(paths []string) {
	sort.Slice(paths, func(i, j int) bool {
		di, dj := strings.Count(paths[i], "/"), strings.Count(paths[j], "/")
		if di != dj {
			return di > dj
		}
		return paths[i] < paths[j]
	})
}

func (s *Sweeper) pruneDir(ctx context.Context, dir string, t *tally, log *zap.Logger) bool {
	remaining, err := s.store.ListFilesRecursive(ctx, dir)
	if err != nil || len(remaining) > 0 {
		return false
	}
	if err := s.store.DeleteDirectory(ctx, dir); err != nil {
		log.Debug("prune directory skipped", zap.String("prune", dir), zap.Error(err))
		return false
	}
	if t.dirRemoved(dir) {
		s.report(Event{Kind: EventDirRemoved, Path: dir})
	}
	return true
}

func (s *Sweeper) report(e Event) {
	if s.reporter != nil {
		s.reporter.Report(e)
	}
}
