package main

import (
	"context"
	"fmt"
	"text/tabwriter"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/marco/videomap/internal/report"
	"github.com/marco/videomap/internal/video"
)

// loadRecords reads the cached records under every root without touching
// the filesystem beyond resolving the roots.
func loadRecords(ctx context.Context, a *app, roots []string) ([]*video.Record, error) {
	var records []*video.Record
	for _, root := range roots {
		m, err := a.newManager(root, managerOptions{})
		if err != nil {
			return nil, err
		}
		if err := m.Load(ctx); err != nil {
			return nil, err
		}
		records = append(records, m.Records()...)
	}
	return records, nil
}

func newListCmd(opts *globalOptions) *cobra.Command {
	var format, target string

	cmd := &cobra.Command{
		Use:   "list [path]",
		Short: "List the cached records under a path",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := report.ParseFormat(format)
			if err != nil {
				return err
			}

			a, err := newApp(opts, false, cmd.OutOrStdout())
			if err != nil {
				return err
			}
			defer a.Close()

			if target == "" {
				target = a.cfg.Index.EncoderTarget
			}
			if !video.ValidTarget(target) {
				return fmt.Errorf("unknown encoder target %q (want one of %v)", target, video.Targets)
			}

			roots, err := a.roots(args)
			if err != nil {
				return err
			}
			records, err := loadRecords(cmd.Context(), a, roots)
			if err != nil {
				return err
			}
			return report.WriteListing(a.out, f, records, target)
		},
	}

	cmd.Flags().StringVarP(&format, "format", "f", string(report.FormatTable), "Output format: table, json, yaml or csv")
	cmd.Flags().StringVar(&target, "target", "", "Encoder target for the encoder column: software, nvidia, intel or apple")
	return cmd
}

func newDupesCmd(opts *globalOptions) *cobra.Command {
	var detailed bool

	cmd := &cobra.Command{
		Use:   "dupes [path]",
		Short: "Report episodes stored more than once",
		Long: `Group the cached records by show, season and episode parsed from the file
name, and list every episode with more than one copy. The copy with the best
quality is marked as recommended.`,
		Args: cobra.MaximumNArgs(1),
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
			records, err := loadRecords(cmd.Context(), a, roots)
			if err != nil {
				return err
			}
			return report.WriteDuplicateReport(a.out, report.FindDuplicates(records, a.logger), detailed)
		},
	}

	cmd.Flags().BoolVar(&detailed, "detailed", false, "Show codec and quality score for each copy")
	return cmd
}

func newHistoryCmd(opts *globalOptions) *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show recent scan runs",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(opts, false, cmd.OutOrStdout())
			if err != nil {
				return err
			}
			defer a.Close()

			runs, err := a.store.Runs(cmd.Context(), limit)
			if err != nil {
				return err
			}
			if len(runs) == 0 {
				fmt.Fprintln(a.out, "No scans recorded.")
				return nil
			}

			tw := tabwriter.NewWriter(a.out, 0, 0, 2, ' ', 0)
			fmt.Fprintln(tw, "STARTED\tDURATION\tROOT\tDIRS\tPROBED\tUNCHANGED\tFAILED\tPRUNED")
			for _, r := range runs {
				fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%d\t%d\t%d\t%d\n",
					humanize.Time(r.StartedAt),
					r.Duration(),
					r.Root,
					r.Directories,
					r.Probed,
					r.Fresh,
					r.Failed,
					r.Pruned,
				)
			}
			return tw.Flush()
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "Number of runs to show (0 for all)")
	return cmd
}
