// Package index keeps an incrementally updated map of the video files under
// a root directory, backed by a cache store so unchanged files are never
// probed twice.
package index

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"maps"
	"os"
	"path/filepath"
	"slices"
	"sort"
	"strings"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/marco/videomap/internal/cache"
	"github.com/marco/videomap/internal/metrics"
	"github.com/marco/videomap/internal/probe"
	"github.com/marco/videomap/internal/scanner"
	"github.com/marco/videomap/internal/video"
)

var (
	// ErrRunInProgress is returned by Run while another run on the same manager is active.
	ErrRunInProgress = errors.New("index run already in progress")

	// ErrNotLoaded is returned when Prune or ScanAndRefresh is called before Load.
	ErrNotLoaded = errors.New("index not loaded")
)

// FileError reports a file whose metadata could not be refreshed.
type FileError struct {
	Path string
	Err  error
}

func (e *FileError) Error() string {
	return fmt.Sprintf("%s: %v", e.Path, e.Err)
}

func (e *FileError) Unwrap() error {
	return e.Err
}

// Options configures a Manager.
type Options struct {
	Root    string
	Store   cache.Store
	Prober  probe.Prober
	Scanner *scanner.Scanner

	Staleness video.StalenessPolicy
	Failure   FailurePolicy
	Workers   int

	// Update enables the scan and refresh phase in Run. When false, Run only
	// loads and prunes.
	Update bool

	Observer Observer
	Metrics  *metrics.Metrics
	Logger   *slog.Logger
}

// Summary describes the outcome of a run.
type Summary struct {
	RunID      string
	Root       string
	StartedAt  time.Time
	FinishedAt time.Time

	Directories int // directories visited
	Persisted   int // directory groups written to the store
	Probed      int
	Fresh       int
	Failed      int
	Pruned      int
	Records     int

	Failures []*FileError
}

func (s *Summary) add(o Summary) {
	s.Directories += o.Directories
	s.Persisted += o.Persisted
	s.Probed += o.Probed
	s.Fresh += o.Fresh
	s.Failed += o.Failed
	s.Pruned += o.Pruned
	s.Failures = append(s.Failures, o.Failures...)
}

// Manager owns the in-memory record map for one root. Load, Prune and
// ScanAndRefresh must not be called concurrently; Run guards itself.
type Manager struct {
	opts    Options
	logger  *slog.Logger
	metrics *metrics.Metrics

	root    string
	rootDir bool
	groups  cache.Groups
	// linked holds directories outside root that the walk reached through a
	// symlink and whose records have been loaded on demand.
	linked  map[string]bool
	state   State
	running atomic.Bool
}

// New validates opts and fills in defaults.
func New(opts Options) (*Manager, error) {
	if opts.Root == "" {
		return nil, errors.New("index root is required")
	}
	if opts.Update && opts.Prober == nil {
		return nil, errors.New("a prober is required to update the index")
	}
	if opts.Failure == "" {
		opts.Failure = SkipFile
	}
	if !opts.Failure.Valid() {
		return nil, &video.ConfigurationError{Field: "failure policy", Value: string(opts.Failure)}
	}
	if opts.Store == nil {
		opts.Store = cache.Nop{}
	}
	if opts.Scanner == nil {
		opts.Scanner = scanner.New(nil)
	}
	if opts.Staleness == nil {
		opts.Staleness = video.SizePolicy{}
	}
	if opts.Workers <= 0 {
		opts.Workers = 1
	}
	if opts.Observer == nil {
		opts.Observer = NopObserver{}
	}
	if opts.Metrics == nil {
		opts.Metrics = metrics.New()
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	return &Manager{
		opts:    opts,
		logger:  opts.Logger,
		metrics: opts.Metrics,
		groups:  cache.Groups{},
		linked:  map[string]bool{},
		state:   StateIdle,
	}, nil
}

// State returns the current lifecycle state.
func (m *Manager) State() State {
	return m.state
}

// Root returns the canonical root once loaded, otherwise the configured root.
func (m *Manager) Root() string {
	if m.root != "" {
		return m.root
	}
	return m.opts.Root
}

// Groups returns a copy of the in-memory record map.
func (m *Manager) Groups() cache.Groups {
	out := make(cache.Groups, len(m.groups))
	for dir, recs := range m.groups {
		out[dir] = slices.Clone(recs)
	}
	return out
}

// Records returns every in-memory record sorted by full path.
func (m *Manager) Records() []*video.Record {
	var out []*video.Record
	for _, recs := range m.groups {
		out = append(out, recs...)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].FullPath() < out[j].FullPath()
	})
	return out
}

// Load resolves the root and reads its records from the store. Records
// written under an older schema are reset so the next refresh re-probes them.
func (m *Manager) Load(ctx context.Context) error {
	root := video.CanonicalDir(m.opts.Root)
	info, err := os.Stat(root)
	if err != nil {
		return fmt.Errorf("scan root %s: %w", m.opts.Root, err)
	}
	m.root = root
	m.rootDir = info.IsDir()
	m.linked = map[string]bool{}

	groups := m.opts.Store.Load(ctx, root)
	if groups == nil {
		groups = cache.Groups{}
	}

	invalidated := 0
	for _, recs := range groups {
		invalidated += resetOutdated(recs)
	}

	m.groups = groups
	m.state = StateLoaded

	m.logger.Info("index loaded",
		"root", root,
		"directories", len(groups),
		"records", groups.Len(),
		"invalidated", invalidated,
	)
	return nil
}

// Prune drops records whose directory or file no longer exists and removes
// them from the store in one call. It returns the removed paths, sorted.
// Running it again without filesystem changes removes nothing.
func (m *Manager) Prune(ctx context.Context) ([]string, error) {
	if m.state == StateIdle {
		return nil, ErrNotLoaded
	}
	m.state = StatePruning

	// Iterate a snapshot; m.groups is rebuilt as we go.
	snapshot := maps.Clone(m.groups)

	var removed []string
	for dir, recs := range snapshot {
		if !dirExists(dir) {
			m.logger.Debug("removing vanished directory from index", "directory", dir, "records", len(recs))
			delete(m.groups, dir)
			for _, rec := range recs {
				removed = append(removed, rec.FullPath())
			}
			continue
		}

		kept := make([]*video.Record, 0, len(recs))
		for _, rec := range recs {
			if fileExists(rec.FullPath()) {
				kept = append(kept, rec)
				continue
			}
			m.logger.Debug("removing vanished file from index", "path", rec.FullPath())
			removed = append(removed, rec.FullPath())
		}
		if len(kept) == 0 {
			delete(m.groups, dir)
		} else {
			m.groups[dir] = kept
		}
	}

	sort.Strings(removed)
	if len(removed) > 0 {
		if err := m.opts.Store.Remove(ctx, removed); err != nil {
			m.storeFailed("remove", err)
		}
		m.metrics.RecordsPruned.Add(float64(len(removed)))
	}

	m.logger.Info("prune complete", "removed", len(removed))
	return removed, nil
}

// ScanAndRefresh walks the root, refreshes every candidate file and persists
// each directory's group before moving to the next. Under the abort policy
// the first failure is returned as a *FileError after the current directory
// is persisted.
func (m *Manager) ScanAndRefresh(ctx context.Context) (Summary, error) {
	var sum Summary
	if m.state == StateIdle {
		return sum, ErrNotLoaded
	}
	m.state = StateScanning

	err := m.opts.Scanner.Walk(ctx, m.root, func(dir scanner.Dir) error {
		return m.processDir(ctx, dir, &sum)
	})
	m.state = StatePersisted

	if err != nil {
		return sum, err
	}
	return sum, nil
}

// Run performs Load, Prune and, when Update is set, ScanAndRefresh, then
// records the run in the store's history.
func (m *Manager) Run(ctx context.Context) (Summary, error) {
	if !m.running.CompareAndSwap(false, true) {
		return Summary{}, ErrRunInProgress
	}
	defer m.running.Store(false)

	runID := uuid.NewString()
	base := m.logger
	m.logger = base.With("run_id", runID)
	defer func() { m.logger = base }()

	sum := Summary{
		RunID:     runID,
		Root:      m.opts.Root,
		StartedAt: time.Now(),
	}

	if err := m.Load(ctx); err != nil {
		return sum, err
	}
	sum.Root = m.root

	removed, err := m.Prune(ctx)
	if err != nil {
		return sum, err
	}
	sum.Pruned = len(removed)

	var runErr error
	if m.opts.Update {
		var scanned Summary
		scanned, runErr = m.ScanAndRefresh(ctx)
		sum.add(scanned)
	} else {
		m.state = StatePersisted
	}

	sum.FinishedAt = time.Now()
	sum.Records = m.groups.Len()
	m.metrics.ObserveRun(sum.StartedAt, sum.FinishedAt, sum.Records)

	if m.opts.Update {
		run := cache.RunRecord{
			ID:          runID,
			Root:        sum.Root,
			StartedAt:   sum.StartedAt,
			FinishedAt:  sum.FinishedAt,
			Directories: sum.Directories,
			Probed:      sum.Probed,
			Fresh:       sum.Fresh,
			Failed:      sum.Failed,
			Pruned:      sum.Pruned,
		}
		if err := m.opts.Store.RecordRun(context.WithoutCancel(ctx), run); err != nil {
			m.storeFailed("record run", err)
		}
	}

	m.logger.Info("index run complete",
		"root", sum.Root,
		"duration_sec", sum.FinishedAt.Sub(sum.StartedAt).Seconds(),
		"directories", sum.Directories,
		"probed", sum.Probed,
		"fresh", sum.Fresh,
		"failed", sum.Failed,
		"pruned", sum.Pruned,
		"records", sum.Records,
	)
	return sum, runErr
}

// processDir refreshes one directory's candidates and commits the result.
func (m *Manager) processDir(ctx context.Context, dir scanner.Dir, sum *Summary) error {
	m.state = StateRefreshing
	sum.Directories++
	m.opts.Observer.DirectoryStarted(dir.Path, len(dir.Files))

	if !m.covers(dir.Path) {
		m.loadLinked(ctx, dir.Path, sum)
	}

	old := m.groups[dir.Path]
	existing := make(map[string]*video.Record, len(old))
	for _, rec := range old {
		existing[rec.FullPath()] = rec
	}

	candidates := make([]*video.Record, 0, len(dir.Files))
	for _, name := range dir.Files {
		rec := video.NewRecord(dir.Path, name)
		if prev, ok := existing[rec.FullPath()]; ok {
			rec = prev.Clone()
		}
		candidates = append(candidates, rec)
	}

	// Stop the rest of the directory on the first failure unless skipping files.
	dirCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	stopOnFailure := m.opts.Failure != SkipFile

	results := scanner.ProcessConcurrently(dirCtx, candidates,
		func(ctx context.Context, rec *video.Record) (bool, error) {
			start := time.Now()
			changed, err := video.Refresh(ctx, rec, m.opts.Prober, m.opts.Staleness)
			if changed {
				m.metrics.ProbeDuration.Observe(time.Since(start).Seconds())
			}
			if err != nil && stopOnFailure && isFailure(err) {
				cancel()
			}
			m.opts.Observer.FileDone(rec.FullPath(), err)
			return changed, err
		}, m.opts.Workers, nil)

	var (
		group        []*video.Record
		removals     []string
		changed      bool
		firstFailure *FileError
		handled      = make(map[string]bool, len(results))
	)

	for _, r := range results {
		rec := r.Item
		path := rec.FullPath()
		prev, had := existing[path]
		handled[path] = true

		switch {
		case r.Err == nil:
			group = append(group, rec)
			if r.Value {
				sum.Probed++
				changed = true
				m.metrics.FilesProbed.Inc()
			} else {
				sum.Fresh++
				m.metrics.FilesFresh.Inc()
			}

		case errors.Is(r.Err, video.ErrPathVanished):
			m.logger.Debug("file vanished during scan", "path", path)
			if had {
				removals = append(removals, path)
				sum.Pruned++
				changed = true
				m.metrics.RecordsPruned.Inc()
			}

		case !isFailure(r.Err):
			// Not attempted; the previous record stands.
			if had {
				group = append(group, prev)
			}

		default:
			fe := &FileError{Path: path, Err: r.Err}
			sum.Failed++
			sum.Failures = append(sum.Failures, fe)
			m.metrics.FilesFailed.WithLabelValues(failureReason(r.Err)).Inc()
			m.logger.Warn("failed to refresh video", "path", path, "error", r.Err)
			if had {
				// Drop the stale record so the next run retries the file.
				removals = append(removals, path)
				changed = true
			}
			if firstFailure == nil {
				firstFailure = fe
			}
		}
	}

	if firstFailure != nil && m.opts.Failure == SkipDirectory {
		m.logger.Warn("skipping directory after failure",
			"directory", dir.Path,
			"path", firstFailure.Path,
		)
		return ctx.Err()
	}

	// Records not offered by the walk stay until a prune decides otherwise.
	for _, rec := range old {
		if !handled[rec.FullPath()] {
			group = append(group, rec)
		}
	}

	if len(group) == 0 {
		delete(m.groups, dir.Path)
	} else {
		m.groups[dir.Path] = group
	}

	if changed {
		m.persist(ctx, dir.Path, group, removals)
		sum.Persisted++
	}

	if firstFailure != nil && m.opts.Failure == Abort {
		m.logger.Error("aborting scan after failure", "path", firstFailure.Path, "error", firstFailure.Err)
		return firstFailure
	}
	return ctx.Err()
}

// covers reports whether records for dir were read by Load.
func (m *Manager) covers(dir string) bool {
	if !m.rootDir || m.linked[dir] {
		return true
	}
	prefix := strings.TrimSuffix(m.root, string(filepath.Separator)) + string(filepath.Separator)
	return dir == m.root || strings.HasPrefix(dir, prefix)
}

// loadLinked reads the stored group of a directory that resolves outside the
// root. Records whose file is gone are removed from the store here; Prune
// never sees this directory.
func (m *Manager) loadLinked(ctx context.Context, dir string, sum *Summary) {
	m.linked[dir] = true

	var (
		kept    []*video.Record
		removed []string
	)
	for _, rec := range m.opts.Store.Load(ctx, dir)[dir] {
		if !fileExists(rec.FullPath()) {
			removed = append(removed, rec.FullPath())
			continue
		}
		kept = append(kept, rec)
	}
	resetOutdated(kept)

	if len(removed) > 0 {
		if err := m.opts.Store.Remove(context.WithoutCancel(ctx), removed); err != nil {
			m.storeFailed("remove", err)
		}
		sum.Pruned += len(removed)
		m.metrics.RecordsPruned.Add(float64(len(removed)))
	}
	if len(kept) > 0 {
		m.groups[dir] = kept
	}

	m.logger.Debug("loaded linked directory",
		"directory", dir,
		"records", len(kept),
		"removed", len(removed),
	)
}

// resetOutdated replaces records written under an older schema with fresh
// ones so the next refresh re-probes them. It returns how many were reset.
func resetOutdated(recs []*video.Record) int {
	n := 0
	for i, rec := range recs {
		if rec.SchemaVersion != video.SchemaVersion {
			recs[i] = video.NewRecord(rec.Directory, rec.Name)
			n++
		}
	}
	return n
}

// persist writes one directory's group and its removals. Store failures are
// logged; the records remain in memory and the next run redoes the work.
func (m *Manager) persist(ctx context.Context, dir string, group []*video.Record, removals []string) {
	ctx = context.WithoutCancel(ctx)

	if err := m.opts.Store.Save(ctx, group); err != nil {
		m.storeFailed("save", err)
	}
	if err := m.opts.Store.Remove(ctx, removals); err != nil {
		m.storeFailed("remove", err)
	}

	m.metrics.DirectoriesPersisted.Inc()
	m.opts.Observer.DirectoryPersisted(dir, len(group))
	m.logger.Debug("directory persisted",
		"directory", dir,
		"records", len(group),
		"removed", len(removals),
	)
}

func (m *Manager) storeFailed(op string, err error) {
	m.metrics.StoreErrors.WithLabelValues(op).Inc()
	m.logger.Error("cache store operation failed", "op", op, "error", err)
}

// isFailure separates real refresh failures from work that was cancelled.
func isFailure(err error) bool {
	return !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded)
}

func failureReason(err error) string {
	switch {
	case errors.Is(err, video.ErrNoVideoTrack):
		return metrics.ReasonNoVideo
	case errors.As(err, new(*video.ProbeError)):
		return metrics.ReasonProbe
	default:
		return metrics.ReasonOther
	}
}

func dirExists(path string) bool {
	info, err := os.Stat(path)
	if err != nil {
		// Only a definite "not there" prunes; permission errors keep the group.
		return !errors.Is(err, fs.ErrNotExist)
	}
	return info.IsDir()
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	if err != nil {
		return !errors.Is(err, fs.ErrNotExist)
	}
	return !info.IsDir()
}
