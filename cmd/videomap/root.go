package main

import (
	"github.com/spf13/cobra"
)

// globalOptions holds the persistent flags shared by every command.
type globalOptions struct {
	configPath string
	dbPath     string
	verbose    bool
}

func newRootCmd() *cobra.Command {
	opts := &globalOptions{}

	rootCmd := &cobra.Command{
		Use:   "videomap",
		Short: "Keep an incremental index of the video files in a library",
		Long: `videomap walks media directories, probes each video file with ffprobe and
keeps the results in a local SQLite cache. Later scans only probe files whose
size changed, and records for files that disappeared are pruned.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().StringVar(&opts.configPath, "config", "", "Path to configuration file (default ~/.config/videomap/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&opts.dbPath, "db", "", "Path to the cache database (overrides config)")
	rootCmd.PersistentFlags().BoolVarP(&opts.verbose, "verbose", "v", false, "Enable verbose logging")

	rootCmd.AddCommand(
		newScanCmd(opts),
		newPruneCmd(opts),
		newListCmd(opts),
		newDupesCmd(opts),
		newHistoryCmd(opts),
		newWatchCmd(opts),
	)
	return rootCmd
}
