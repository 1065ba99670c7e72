package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"

	"github.com/minghe/poetry-annotator/internal/annotate"
	"github.com/minghe/poetry-annotator/internal/llm"
	"github.com/minghe/poetry-annotator/internal/report"
	"github.com/minghe/poetry-annotator/internal/store"
	"github.com/minghe/poetry-annotator/internal/taxonomy"
	"github.com/minghe/poetry-annotator/internal/util"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var annotateCmd = &cobra.Command{
	Use:   "annotate",
	Short: "Annotate pending poems with one or more models",
	Long: `Run the annotation pipeline for the selected dataset.

Each --model runs as its own pipeline with its own worker pool, rate
bucket and circuit breaker; up to max_model_pipelines pipelines run
concurrently. Poems that already have a completed annotation for a model
are skipped unless --force-rerun is given. Every result is written to
the event log before the database, so an interrupted run can be replayed
with recover-from-logs.`,
	RunE: runAnnotate,
}

func init() {
	rootCmd.AddCommand(annotateCmd)

	annotateCmd.Flags().StringSliceP("model", "m", nil, "model identifier(s) to annotate with (required)")
	annotateCmd.Flags().IntP("limit", "n", 0, "max poems per model (0 = all pending)")
	annotateCmd.Flags().Bool("force-rerun", false, "re-annotate poems that already completed")
	annotateCmd.Flags().Int64("start-id", 0, "first poem ID (inclusive)")
	annotateCmd.Flags().Int64("end-id", 0, "last poem ID (inclusive)")
	annotateCmd.Flags().String("ids", "", "file with one poem ID per line")
	annotateCmd.Flags().String("report", "", "write a Markdown run summary to this file")
}

func runAnnotate(cmd *cobra.Command, args []string) error {
	models, _ := cmd.Flags().GetStringSlice("model")
	if len(models) == 0 {
		return fmt.Errorf("at least one --model is required")
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

	query, err := buildAnnotateQuery(cmd)
	if err != nil {
		return err
	}

	runID := uuid.NewString()
	logger, err := report.NewEventLogger(cfg.LogDir, runID)
	if err != nil {
		util.WarnLog("Failed to create event logger: %v", err)
		logger = report.NullLogger()
	}
	defer logger.Close()
	if logger.Path() != "" {
		util.InfoLog("Event log: %s", logger.Path())
	}

	runners := make([]*annotate.Runner, 0, len(models))
	for _, id := range models {
		mc, err := cfg.Model(id)
		if err != nil {
			return err
		}
		client, err := llm.NewOpenAIClient(mc)
		if err != nil {
			return fmt.Errorf("model %s: %w", id, err)
		}
		runners = append(runners, annotate.NewRunner(&annotate.Config{
			Stores:       ss,
			Client:       client,
			Model:        mc,
			Index:        index,
			Logger:       logger,
			ShowProgress: len(models) == 1,
		}))
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	start := time.Now()
	results, runErr := annotate.RunAll(ctx, runners, query, cfg.MaxModelPipelines)
	duration := time.Since(start)

	if reportPath, _ := cmd.Flags().GetString("report"); reportPath != "" {
		dataset := viper.GetString("dataset")
		if dataset == "" {
			dataset = cfg.DefaultDataset
		}
		if err := writeRunReport(ss, results, reportPath, runID, dataset, logger.Path(), duration); err != nil {
			util.WarnLog("Failed to write run report: %v", err)
		} else {
			util.InfoLog("Run report: %s", reportPath)
		}
	}

	if runErr != nil {
		if errors.Is(runErr, util.ErrInterrupted) {
			util.WarnLog("Run interrupted; rerun the same command to resume, or replay the event log")
		}
		return runErr
	}
	return nil
}

func buildAnnotateQuery(cmd *cobra.Command) (store.AnnotateQuery, error) {
	limit, _ := cmd.Flags().GetInt("limit")
	forceRerun, _ := cmd.Flags().GetBool("force-rerun")
	startID, _ := cmd.Flags().GetInt64("start-id")
	endID, _ := cmd.Flags().GetInt64("end-id")
	idsFile, _ := cmd.Flags().GetString("ids")

	query := store.AnnotateQuery{
		Limit:      limit,
		StartID:    startID,
		EndID:      endID,
		ForceRerun: forceRerun,
	}

	if idsFile != "" {
		ids, err := readIDFile(idsFile)
		if err != nil {
			return query, err
		}
		query.IDs = ids
	}
	return query, nil
}

// readIDFile reads one poem ID per line, ignoring blanks and # comments
func readIDFile(path string) ([]int64, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open ID file: %w", err)
	}
	defer f.Close()

	var ids []int64
	scanner := bufio.NewScanner(f)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		id, err := strconv.ParseInt(line, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("%s:%d: bad poem ID %q", path, lineNo, line)
		}
		ids = append(ids, id)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read ID file: %w", err)
	}
	if len(ids) == 0 {
		return nil, fmt.Errorf("%s contains no poem IDs", path)
	}
	return ids, nil
}

// loadTaxonomyIndex loads the seeded category tree from the taxonomy
// store
func loadTaxonomyIndex(ss *store.Stores) (*taxonomy.Index, error) {
	categories, err := ss.Taxonomy.LoadCategories()
	if err != nil {
		return nil, err
	}
	if len(categories) == 0 {
		return nil, fmt.Errorf("taxonomy store is empty; run 'pac init-db' first")
	}
	return taxonomy.NewIndex(categories), nil
}

func writeRunReport(ss *store.Stores, results []*annotate.Result, path, runID, dataset, eventLog string, duration time.Duration) error {
	summary := &report.RunSummary{
		GeneratedAt:  time.Now(),
		RunID:        runID,
		Duration:     duration,
		Dataset:      dataset,
		EventLogPath: eventLog,
	}
	for _, r := range results {
		if r == nil {
			continue
		}
		ms := report.ModelSummary{
			Model:     r.Model,
			Pending:   r.Pending,
			Completed: r.Completed,
			Failed:    r.Failed,
		}
		if r.Failed > 0 {
			topErrors, err := report.GatherTopErrors(ss.Annotation, r.Model, 5)
			if err == nil {
				ms.TopErrors = topErrors
			}
		}
		summary.Models = append(summary.Models, ms)
	}
	return report.WriteMarkdownReport(summary, path)
}
