package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/spf13/cobra"

	"github.com/marco/videomap/internal/index"
	"github.com/marco/videomap/internal/scanner"
)

type watchFlags struct {
	noCache  bool
	interval time.Duration
	debounce time.Duration
}

func newWatchCmd(opts *globalOptions) *cobra.Command {
	flags := &watchFlags{}

	cmd := &cobra.Command{
		Use:   "watch [path]",
		Short: "Keep the index current by rescanning on changes and on a schedule",
		Long: `Watch the tree for video files being added, changed or removed and rescan
once it has been quiet for the debounce delay. With a non-zero interval a
full rescan also runs periodically. Runs until interrupted.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWatch(cmd, opts, flags, args)
		},
	}

	cmd.Flags().BoolVar(&flags.noCache, "no-cache", false, "Do not read or write the cache database")
	cmd.Flags().DurationVar(&flags.interval, "interval", 0, "Periodic rescan interval, 0 disables (default from config)")
	cmd.Flags().DurationVar(&flags.debounce, "debounce", 0, "Quiet period before a change triggers a rescan (default from config)")
	return cmd
}

func runWatch(cmd *cobra.Command, opts *globalOptions, flags *watchFlags, args []string) error {
	a, err := newApp(opts, flags.noCache, cmd.OutOrStdout())
	if err != nil {
		return err
	}
	defer a.Close()

	if cmd.Flags().Changed("interval") {
		if flags.interval < 0 {
			return fmt.Errorf("--interval must not be negative, got %s", flags.interval)
		}
		a.cfg.Watch.Interval = flags.interval
	}
	if cmd.Flags().Changed("debounce") {
		if flags.debounce <= 0 {
			return fmt.Errorf("--debounce must be positive, got %s", flags.debounce)
		}
		a.cfg.Watch.Debounce = flags.debounce
	}

	roots, err := a.roots(args)
	if err != nil {
		return err
	}
	prober, err := a.newProber()
	if err != nil {
		return err
	}

	s := &scheduler{
		app:      a,
		logger:   a.logger,
		managers: make(map[string]*index.Manager, len(roots)),
		triggers: make(chan string, len(roots)),
	}
	for _, root := range roots {
		m, err := a.newManager(root, managerOptions{update: true, prober: prober})
		if err != nil {
			return err
		}
		s.managers[root] = m
		s.order = append(s.order, root)
	}

	ctx := cmd.Context()
	for _, root := range roots {
		w, err := scanner.NewWatcher(scanner.WatcherConfig{
			Root:          root,
			Extensions:    a.cfg.Scanner.Extensions,
			ExcludeDirs:   a.cfg.Scanner.ExcludeDirs,
			DebounceDelay: a.cfg.Watch.Debounce,
			Logger:        a.logger,
		}, s.changeHandler(root))
		if err != nil {
			return err
		}
		if err := w.Start(); err != nil {
			return err
		}
		defer w.Stop()
	}

	s.run(ctx, a.cfg.Watch.Interval, *a.cfg.Watch.RunOnStartup)
	return nil
}

// scheduler serialises scans triggered by the watchers and the interval ticker.
type scheduler struct {
	app      *app
	logger   *slog.Logger
	managers map[string]*index.Manager
	order    []string
	triggers chan string
}

// changeHandler queues a rescan of root. A rescan already queued absorbs
// later changes.
func (s *scheduler) changeHandler(root string) scanner.ChangeHandler {
	return func(paths []string) {
		s.logger.Info("changes detected", "root", root, "paths", len(paths))
		select {
		case s.triggers <- root:
		default:
			s.logger.Debug("rescan already queued", "root", root)
		}
	}
}

// run performs periodic scans at the configured interval, optionally running
// immediately on startup, plus the scans queued by the watchers.
func (s *scheduler) run(ctx context.Context, interval time.Duration, runOnStartup bool) {
	s.logger.Info("watching for changes",
		"roots", s.order,
		"interval", interval,
		"run_on_startup", runOnStartup,
	)

	if runOnStartup {
		s.logger.Info("running initial scan on startup")
		s.scanAll(ctx)
	}

	var tick <-chan time.Time
	if interval > 0 {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		tick = ticker.C
	}

	for {
		select {
		case <-tick:
			s.logger.Info("scheduled scan triggered", "interval", interval)
			s.scanAll(ctx)

		case root := <-s.triggers:
			s.scan(ctx, root)

		case <-ctx.Done():
			s.logger.Info("watch stopped")
			return
		}
	}
}

func (s *scheduler) scanAll(ctx context.Context) {
	for _, root := range s.order {
		if ctx.Err() != nil {
			return
		}
		s.scan(ctx, root)
	}
}

func (s *scheduler) scan(ctx context.Context, root string) {
	m := s.managers[root]

	sum, err := m.Run(ctx)
	switch {
	case errors.Is(err, index.ErrRunInProgress):
		s.logger.Warn("scan skipped: previous scan still running", "root", root)
		return
	case err != nil && ctx.Err() == nil:
		s.logger.Error("scan failed", "root", root, "error", err)
	}

	s.logger.Info("scan cycle complete",
		"root", root,
		"duration_sec", sum.FinishedAt.Sub(sum.StartedAt).Seconds(),
		"probed", sum.Probed,
		"failed", sum.Failed,
		"pruned", sum.Pruned,
		"records", sum.Records,
	)
	s.app.writeMetrics()
}
