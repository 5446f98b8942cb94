package main

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/marco/videomap/internal/cache"
	"github.com/marco/videomap/internal/config"
	"github.com/marco/videomap/internal/index"
	"github.com/marco/videomap/internal/logging"
	"github.com/marco/videomap/internal/metrics"
	"github.com/marco/videomap/internal/probe"
	"github.com/marco/videomap/internal/scanner"
)

// app bundles the collaborators a command needs.
type app struct {
	cfg     *config.Config
	logger  *slog.Logger
	store   cache.Store
	metrics *metrics.Metrics
	out     io.Writer
}

func newApp(opts *globalOptions, noCache bool, out io.Writer) (*app, error) {
	cfg, err := config.Load(opts.configPath)
	if err != nil {
		return nil, err
	}
	if opts.dbPath != "" {
		cfg.Cache.Path = opts.dbPath
	}
	if noCache {
		cfg.Cache.Disabled = true
	}

	logger := logging.New(opts.verbose)
	logger.Debug("configuration loaded",
		"config", opts.configPath,
		"cache", cfg.Cache.Path,
		"cache_disabled", cfg.Cache.Disabled,
		"directories", cfg.Scanner.Directories,
	)

	return &app{
		cfg:     cfg,
		logger:  logger,
		store:   openStore(cfg.Cache, logger),
		metrics: metrics.New(),
		out:     out,
	}, nil
}

// openStore opens the SQLite cache. A disabled cache or one that cannot be
// opened falls back to a store that keeps nothing.
func openStore(cfg config.CacheConfig, logger *slog.Logger) cache.Store {
	if cfg.Disabled {
		logger.Info("cache disabled, every file will be probed")
		return cache.Nop{}
	}
	store, err := cache.NewSQLiteStore(cfg.Path, logger)
	if err != nil {
		logger.Warn("cache unavailable, continuing without it", "path", cfg.Path, "error", err)
		return cache.Nop{}
	}
	return store
}

func (a *app) Close() {
	if err := a.store.Close(); err != nil {
		a.logger.Warn("failed to close cache", "error", err)
	}
}

// roots returns the path argument, or the configured directories.
func (a *app) roots(args []string) ([]string, error) {
	if len(args) > 0 {
		return args[:1], nil
	}
	if len(a.cfg.Scanner.Directories) == 0 {
		return nil, errors.New("no path given and no scanner.directories configured")
	}
	return a.cfg.Scanner.Directories, nil
}

func (a *app) newScanner() *scanner.Scanner {
	return scanner.NewWithExclusions(a.cfg.Scanner.Extensions, a.cfg.Scanner.ExcludeDirs).WithLogger(a.logger)
}

// newProber resolves ffprobe and wraps it in the in-memory memo when enabled.
func (a *app) newProber() (probe.Prober, error) {
	path, err := probe.ResolveFFprobe(a.cfg.Probe.FFprobePath)
	if err != nil {
		return nil, err
	}
	a.logger.Debug("using ffprobe", "path", path)

	var p probe.Prober = probe.NewFFprobe(path, a.logger)
	if a.cfg.Probe.MemoSize > 0 {
		p = probe.NewCached(p, a.cfg.Probe.MemoSize, a.cfg.Probe.MemoTTL)
	}
	return p, nil
}

// managerOptions are the per-command overrides of the index settings.
type managerOptions struct {
	update   bool
	prober   probe.Prober
	observer index.Observer
}

func (a *app) newManager(root string, mo managerOptions) (*index.Manager, error) {
	return index.New(index.Options{
		Root:      root,
		Store:     a.store,
		Prober:    mo.prober,
		Scanner:   a.newScanner(),
		Staleness: a.cfg.StalenessPolicy(),
		Failure:   a.cfg.FailurePolicy(),
		Workers:   a.cfg.Index.Workers,
		Update:    mo.update,
		Observer:  mo.observer,
		Metrics:   a.metrics,
		Logger:    a.logger,
	})
}

// writeMetrics exports the run metrics when a textfile is configured.
func (a *app) writeMetrics() {
	if a.cfg.Metrics.Textfile == "" {
		return
	}
	if err := a.metrics.WriteTextfile(a.cfg.Metrics.Textfile); err != nil {
		a.logger.Warn("failed to export metrics", "path", a.cfg.Metrics.Textfile, "error", err)
		return
	}
	a.logger.Debug("metrics exported", "path", a.cfg.Metrics.Textfile)
}

func printSummary(w io.Writer, sum index.Summary) {
	fmt.Fprintf(w, "%s\n", sum.Root)
	fmt.Fprintf(w, "  Directories: %d\n", sum.Directories)
	fmt.Fprintf(w, "  Probed:      %d\n", sum.Probed)
	fmt.Fprintf(w, "  Unchanged:   %d\n", sum.Fresh)
	fmt.Fprintf(w, "  Pruned:      %d\n", sum.Pruned)
	if sum.Failed > 0 {
		fmt.Fprintf(w, "  Failed:      %d\n", sum.Failed)
		for _, f := range sum.Failures {
			fmt.Fprintf(w, "    %s: %v\n", f.Path, f.Err)
		}
	}
	fmt.Fprintf(w, "  Records:     %d\n", sum.Records)
	fmt.Fprintf(w, "  Took:        %s\n", sum.FinishedAt.Sub(sum.StartedAt).Round(time.Millisecond))
}
