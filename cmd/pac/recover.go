package main

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/minghe/poetry-annotator/internal/recovery"
	"github.com/minghe/poetry-annotator/internal/util"
	"github.com/spf13/cobra"
)

var recoverCmd = &cobra.Command{
	Use:   "recover-from-logs",
	Short: "Replay annotation event logs into the store",
	Long: `Replay annotation results from event logs, reconstructing database
rows lost to a crash between the LLM call and the store write. The LLM
is never re-invoked.

Two formats are supported: the JSONL event log written by annotation
runs (--format json, the default) and the legacy multi-line dump format
(--format legacy), which needs --model since its entries do not name
one.

The default is a dry run that reports what would be written; pass
--write to persist. Replays are idempotent: poems that already have a
completed annotation are skipped.`,
	RunE: runRecover,
}

func init() {
	rootCmd.AddCommand(recoverCmd)

	recoverCmd.Flags().String("file", "", "one log file to replay")
	recoverCmd.Flags().String("dir", "", "replay every *.jsonl log in this directory")
	recoverCmd.Flags().String("format", "json", "log format: json or legacy")
	recoverCmd.Flags().StringP("model", "m", "", "model identifier (required for legacy logs)")
	recoverCmd.Flags().Bool("write", false, "actually write to the store")
}

func runRecover(cmd *cobra.Command, args []string) error {
	file, _ := cmd.Flags().GetString("file")
	dir, _ := cmd.Flags().GetString("dir")
	if (file == "") == (dir == "") {
		return fmt.Errorf("exactly one of --file or --dir is required")
	}

	format, _ := cmd.Flags().GetString("format")
	if format != "json" && format != "legacy" {
		return fmt.Errorf("unknown format %q (json or legacy)", format)
	}
	if format == "legacy" && dir != "" {
		return fmt.Errorf("legacy logs must be replayed one --file at a time")
	}

	var paths []string
	if file != "" {
		paths = []string{file}
	} else {
		matches, err := filepath.Glob(filepath.Join(dir, "*.jsonl"))
		if err != nil {
			return err
		}
		if len(matches) == 0 {
			return fmt.Errorf("no *.jsonl logs in %s", dir)
		}
		// Log file names carry timestamps; replay oldest first so later
		// results win
		sort.Strings(matches)
		paths = matches
	}

	model, _ := cmd.Flags().GetString("model")

	var entries []recovery.Entry
	for _, path := range paths {
		f, err := os.Open(path)
		if err != nil {
			return fmt.Errorf("failed to open log: %w", err)
		}

		var parsed []recovery.Entry
		if format == "legacy" {
			parsed, err = recovery.ParseLegacyLog(f, model)
		} else {
			parsed, err = recovery.ParseEventLog(f)
		}
		f.Close()
		if err != nil {
			return fmt.Errorf("%s: %w", path, err)
		}

		util.InfoLog("Parsed %d entries from %s", len(parsed), filepath.Base(path))
		entries = append(entries, parsed...)
	}

	if len(entries) == 0 {
		util.WarnLog("No recoverable entries found")
		return nil
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	ss, err := openDataset(cfg, false)
	if err != nil {
		return err
	}
	defer ss.Close()

	index, err := loadTaxonomyIndex(ss)
	if err != nil {
		return err
	}

	write, _ := cmd.Flags().GetBool("write")
	replayer := &recovery.Replayer{Stores: ss, Index: index, Write: write}

	stats, err := replayer.Replay(entries)
	if err != nil {
		return fmt.Errorf("replay failed: %w", err)
	}

	mode := "DRY RUN"
	if write {
		mode = "written"
	}
	util.SuccessLog("Replay (%s): %d entries, %d completed replayed, %d failures restored",
		mode, stats.Entries, stats.Replayed, stats.RestoredFailures)
	if stats.SkippedCompleted > 0 {
		util.InfoLog("  Skipped (already completed): %d", stats.SkippedCompleted)
	}
	if stats.SkippedMissing > 0 {
		util.WarnLog("  Skipped (poem not in raw store): %d", stats.SkippedMissing)
	}
	if stats.Invalid > 0 {
		util.WarnLog("  Rejected (failed re-validation): %d", stats.Invalid)
	}
	if !write && stats.Replayed+stats.RestoredFailures > 0 {
		util.InfoLog("Re-run with --write to persist")
	}
	return nil
}
