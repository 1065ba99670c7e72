package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/google/uuid"

	"github.com/minghe/poetry-annotator/internal/annotate"
	"github.com/minghe/poetry-annotator/internal/llm"
	"github.com/minghe/poetry-annotator/internal/report"
	"github.com/minghe/poetry-annotator/internal/store"
	"github.com/minghe/poetry-annotator/internal/util"
	"github.com/spf13/cobra"
)

var distributeCmd = &cobra.Command{
	Use:   "distribute",
	Short: "Distribute the corpus across models in checkpointed batches",
	Long: `Walk the whole active corpus in fixed-size ID batches and annotate
each batch with every listed model. After a model finishes a batch the
checkpoint file is updated, so an interrupted distribution resumes at
the next batch instead of rescanning from the start.

Batches are formed from the corpus in ascending ID order, so the same
corpus always yields the same batch boundaries and an old checkpoint
stays valid.`,
	RunE: runDistribute,
}

func init() {
	rootCmd.AddCommand(distributeCmd)

	distributeCmd.Flags().StringSlice("models", nil, "model identifiers (required)")
	distributeCmd.Flags().Int("batch-size", 100, "poems per batch")
	distributeCmd.Flags().String("checkpoint", "distribute-checkpoint.json", "checkpoint file")
}

// checkpoint records, per model, how many batches are fully done
type checkpoint struct {
	BatchSize   int            `json:"batch_size"`
	DoneBatches map[string]int `json:"done_batches"`
}

func loadCheckpoint(path string, batchSize int) (*checkpoint, error) {
	cp := &checkpoint{BatchSize: batchSize, DoneBatches: make(map[string]int)}

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return cp, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read checkpoint: %w", err)
	}
	if err := json.Unmarshal(data, cp); err != nil {
		return nil, fmt.Errorf("corrupt checkpoint %s: %w", path, err)
	}
	if cp.BatchSize != batchSize {
		return nil, fmt.Errorf("checkpoint %s was written with batch size %d, not %d (delete it or match the size)",
			path, cp.BatchSize, batchSize)
	}
	if cp.DoneBatches == nil {
		cp.DoneBatches = make(map[string]int)
	}
	return cp, nil
}

func (cp *checkpoint) save(path string) error {
	data, err := json.MarshalIndent(cp, "", "  ")
	if err != nil {
		return err
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}

func runDistribute(cmd *cobra.Command, args []string) error {
	models, _ := cmd.Flags().GetStringSlice("models")
	if len(models) == 0 {
		return fmt.Errorf("at least one model is required (--models a,b)")
	}
	batchSize, _ := cmd.Flags().GetInt("batch-size")
	if batchSize <= 0 {
		return fmt.Errorf("batch size must be positive")
	}
	checkpointPath, _ := cmd.Flags().GetString("checkpoint")

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

	cp, err := loadCheckpoint(checkpointPath, batchSize)
	if err != nil {
		return err
	}

	// Batch boundaries come from the full active corpus in ID order
	poems, err := ss.Raw.GetPoems(store.PoemQuery{})
	if err != nil {
		return err
	}
	if len(poems) == 0 {
		util.WarnLog("Corpus is empty; nothing to distribute")
		return nil
	}
	var batches [][]int64
	for start := 0; start < len(poems); start += batchSize {
		end := start + batchSize
		if end > len(poems) {
			end = len(poems)
		}
		ids := make([]int64, 0, end-start)
		for _, p := range poems[start:end] {
			ids = append(ids, p.ID)
		}
		batches = append(batches, ids)
	}

	runID := uuid.NewString()
	logger, err := report.NewEventLogger(cfg.LogDir, runID)
	if err != nil {
		util.WarnLog("Failed to create event logger: %v", err)
		logger = report.NullLogger()
	}
	defer logger.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	util.InfoLog("Distributing %d poems in %d batches of %d across %d models",
		len(poems), len(batches), batchSize, len(models))

	maxPipelines := cfg.MaxModelPipelines
	if maxPipelines > len(models) {
		maxPipelines = len(models)
	}
	sem := make(chan struct{}, maxPipelines)

	var mu sync.Mutex // guards cp
	var wg sync.WaitGroup
	modelErrs := make([]error, len(models))

	for i, id := range models {
		mc, err := cfg.Model(id)
		if err != nil {
			return err
		}
		client, err := llm.NewOpenAIClient(mc)
		if err != nil {
			return fmt.Errorf("model %s: %w", id, err)
		}
		runner := annotate.NewRunner(&annotate.Config{
			Stores: ss,
			Client: client,
			Model:  mc,
			Index:  index,
			Logger: logger,
		})

		wg.Add(1)
		go func(i int, model string, runner *annotate.Runner) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()

			mu.Lock()
			next := cp.DoneBatches[model]
			mu.Unlock()
			if next > 0 {
				util.InfoLog("Model %s: resuming at batch %d/%d", model, next+1, len(batches))
			}

			for b := next; b < len(batches); b++ {
				if ctx.Err() != nil {
					modelErrs[i] = util.ErrInterrupted
					return
				}

				result, err := runner.Run(ctx, store.AnnotateQuery{IDs: batches[b]})
				if err != nil {
					modelErrs[i] = err
					return
				}
				util.InfoLog("Model %s: batch %d/%d done (%d completed, %d failed)",
					model, b+1, len(batches), result.Completed, result.Failed)

				mu.Lock()
				cp.DoneBatches[model] = b + 1
				saveErr := cp.save(checkpointPath)
				mu.Unlock()
				if saveErr != nil {
					modelErrs[i] = fmt.Errorf("failed to save checkpoint: %w", saveErr)
					return
				}
			}
		}(i, id, runner)
	}
	wg.Wait()

	for _, err := range modelErrs {
		if err != nil {
			if errors.Is(err, util.ErrInterrupted) {
				util.WarnLog("Distribution interrupted; re-run to resume from %s", checkpointPath)
			}
			return err
		}
	}

	util.SuccessLog("Distribution complete: %d models over %d batches", len(models), len(batches))
	return nil
}
