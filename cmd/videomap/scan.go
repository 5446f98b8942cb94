package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/marco/videomap/internal/index"
	"github.com/marco/videomap/internal/logging"
	"github.com/marco/videomap/internal/video"
)

type scanFlags struct {
	noCache    bool
	noUpdate   bool
	noProgress bool
	workers    int
	policy     string
	staleness  string
}

func newScanCmd(opts *globalOptions) *cobra.Command {
	flags := &scanFlags{}

	cmd := &cobra.Command{
		Use:   "scan [path]",
		Short: "Scan a directory and refresh the index",
		Long: `Load the cached records under path, prune the ones whose files are gone,
then walk the tree and probe every new or changed video file. Each directory
is written to the cache before the next one is visited.

Without a path, every configured scanner.directories entry is scanned.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runScan(cmd, opts, flags, args)
		},
	}

	cmd.Flags().BoolVar(&flags.noCache, "no-cache", false, "Do not read or write the cache database")
	cmd.Flags().BoolVar(&flags.noUpdate, "no-update", false, "Only load and prune, do not probe")
	cmd.Flags().BoolVar(&flags.noProgress, "no-progress", false, "Disable the progress bar")
	cmd.Flags().IntVarP(&flags.workers, "workers", "w", 0, "Parallel probes per directory (default from config)")
	cmd.Flags().StringVar(&flags.policy, "policy", "", "Failure policy: skip-file, skip-directory or abort")
	cmd.Flags().StringVar(&flags.staleness, "staleness", "", "Staleness policy: size or size+mtime")
	return cmd
}

func runScan(cmd *cobra.Command, opts *globalOptions, flags *scanFlags, args []string) error {
	a, err := newApp(opts, flags.noCache, cmd.OutOrStdout())
	if err != nil {
		return err
	}
	defer a.Close()

	if err := applyScanFlags(a, flags); err != nil {
		return err
	}

	roots, err := a.roots(args)
	if err != nil {
		return err
	}

	mo := managerOptions{update: !flags.noUpdate}
	if mo.update {
		if mo.prober, err = a.newProber(); err != nil {
			return err
		}
	}
	if !flags.noProgress && logging.IsTerminal(os.Stderr) {
		progress := newProgressObserver(os.Stderr)
		defer progress.Close()
		mo.observer = progress
	}

	ctx := cmd.Context()
	var errs []error
	for _, root := range roots {
		m, err := a.newManager(root, mo)
		if err != nil {
			return err
		}

		sum, err := m.Run(ctx)
		printSummary(a.out, sum)
		if err != nil {
			a.logger.Error("scan failed", "root", root, "error", err)
			errs = append(errs, fmt.Errorf("%s: %w", root, err))
			if ctx.Err() != nil {
				break
			}
		}
	}

	a.writeMetrics()
	return errors.Join(errs...)
}

// applyScanFlags overrides config values with the ones given on the command line.
func applyScanFlags(a *app, flags *scanFlags) error {
	if flags.workers < 0 {
		return fmt.Errorf("--workers must not be negative, got %d", flags.workers)
	}
	if flags.workers > 0 {
		a.cfg.Index.Workers = flags.workers
	}
	if flags.policy != "" {
		if _, err := index.ParseFailurePolicy(flags.policy); err != nil {
			return err
		}
		a.cfg.Index.FailurePolicy = flags.policy
	}
	if flags.staleness != "" {
		if _, err := video.ParseStalenessPolicy(flags.staleness); err != nil {
			return err
		}
		a.cfg.Index.Staleness = flags.staleness
	}
	return nil
}

func newPruneCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "prune [path]",
		Short: "Remove cached records whose files no longer exist",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(opts, false, cmd.OutOrStdout())
			if err != nil {
				return err
			}
			defer a.Close()

			roots, err := a.roots(args)
			if err != nil {
				return err
			}

			for _, root := range roots {
				m, err := a.newManager(root, managerOptions{})
				if err != nil {
					return err
				}
				if err := m.Load(cmd.Context()); err != nil {
					return err
				}
				removed, err := m.Prune(cmd.Context())
				if err != nil {
					return err
				}
				for _, path := range removed {
					fmt.Fprintf(a.out, "removed %s\n", path)
				}
				fmt.Fprintf(a.out, "%s: %d record(s) pruned, %d remaining\n", m.Root(), len(removed), len(m.Records()))
			}

			a.writeMetrics()
			return nil
		},
	}
}
