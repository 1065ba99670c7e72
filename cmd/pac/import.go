package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/minghe/poetry-annotator/internal/importer"
	"github.com/minghe/poetry-annotator/internal/report"
	"github.com/minghe/poetry-annotator/internal/util"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var importCmd = &cobra.Command{
	Use:   "import",
	Short: "Import a poetry corpus into the raw store",
	Long: `Import poet.*.json and authors.*.json corpus files into the selected
dataset's raw store.

Poem IDs are assigned sequentially in sorted file order, so re-importing
the same corpus is a no-op upsert that keeps existing IDs and any
data_status set by cleaning passes.`,
	RunE: runImport,
}

func init() {
	rootCmd.AddCommand(importCmd)

	importCmd.Flags().StringP("source", "s", "", "corpus source directory (required)")
	importCmd.Flags().Int("concurrency", 4, "concurrent file decoders")
	importCmd.Flags().Int64("start-id", 1, "first poem ID to assign")
}

func runImport(cmd *cobra.Command, args []string) error {
	source, _ := cmd.Flags().GetString("source")
	if source == "" {
		source = viper.GetString("source")
	}
	if source == "" {
		return fmt.Errorf("source directory is required (use --source/-s or set in config)")
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

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger, err := report.NewEventLogger(cfg.LogDir, "")
	if err != nil {
		util.WarnLog("Failed to create event logger: %v", err)
		logger = report.NullLogger()
	}
	defer logger.Close()

	concurrency, _ := cmd.Flags().GetInt("concurrency")
	startID, _ := cmd.Flags().GetInt64("start-id")

	im := importer.New(&importer.Config{
		Stores:      ss,
		Concurrency: concurrency,
		StartID:     startID,
		Logger:      logger,
	})

	start := time.Now()
	result, err := im.Import(ctx, source)
	if err != nil {
		return fmt.Errorf("import failed: %w", err)
	}

	util.InfoLog("Import finished in %v", time.Since(start).Round(time.Millisecond))
	util.InfoLog("  Poem files: %d, author files: %d", result.PoemFiles, result.AuthorFiles)
	util.InfoLog("  Poems: %d, authors: %d", result.PoemsImported, result.AuthorsImported)
	if len(result.Errors) > 0 {
		util.WarnLog("  File errors: %d", len(result.Errors))
	}
	return nil
}
