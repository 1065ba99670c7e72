// Package annotate orchestrates annotation runs: it segments poems,
// drives the LLM capability through rate limiting, circuit breaking and
// retries, validates the output and persists the result.
package annotate

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/schollz/progressbar/v3"

	"github.com/minghe/poetry-annotator/internal/breaker"
	"github.com/minghe/poetry-annotator/internal/llm"
	"github.com/minghe/poetry-annotator/internal/parse"
	"github.com/minghe/poetry-annotator/internal/ratelimit"
	"github.com/minghe/poetry-annotator/internal/report"
	"github.com/minghe/poetry-annotator/internal/store"
	"github.com/minghe/poetry-annotator/internal/taxonomy"
	"github.com/minghe/poetry-annotator/internal/util"
)

// Runner annotates poems with one model
type Runner struct {
	stores       *store.Stores
	client       llm.Client
	cfg          llm.ModelConfig
	validator    *parse.Validator
	index        *taxonomy.Index
	bucket       *ratelimit.Bucket
	breaker      *breaker.Breaker
	logger       *report.EventLogger
	showProgress bool
}

// Config holds runner configuration
type Config struct {
	Stores       *store.Stores
	Client       llm.Client
	Model        llm.ModelConfig
	Index        *taxonomy.Index
	Logger       *report.EventLogger
	ShowProgress bool
}

// NewRunner creates a runner with its own rate bucket and breaker.
// Buckets and breakers are per model and never shared.
func NewRunner(cfg *Config) *Runner {
	m := cfg.Model
	if m.MaxWorkers <= 0 {
		m.MaxWorkers = 2
	}
	if m.MaxRetries <= 0 {
		m.MaxRetries = 3
	}
	if m.RateCapacity <= 0 {
		m.RateCapacity = 5
	}
	if m.RateRefillSec <= 0 {
		m.RateRefillSec = 1
	}

	return &Runner{
		stores:    cfg.Stores,
		client:    cfg.Client,
		cfg:       m,
		validator: parse.NewValidator(cfg.Index),
		index:     cfg.Index,
		bucket:    ratelimit.New(m.RateCapacity, m.RateRefillSec),
		breaker: breaker.New(m.Identifier, breaker.Config{
			FailMax:      m.BreakerFailMax,
			ResetTimeout: m.BreakerResetTimeout,
		}),
		logger:       cfg.Logger,
		showProgress: cfg.ShowProgress,
	}
}

// Model returns the model identifier this runner annotates with
func (r *Runner) Model() string {
	return r.cfg.Identifier
}

// Result summarizes one model's run
type Result struct {
	Model     string
	Pending   int
	Completed int
	Failed    int
}

// Run annotates all pending poems matching the query. Per-poem
// failures are recorded and counted, not returned; only store-level
// failures abort the run.
func (r *Runner) Run(ctx context.Context, query store.AnnotateQuery) (*Result, error) {
	poems, err := r.stores.GetPoemsToAnnotate(r.cfg.Identifier, query)
	if err != nil {
		return nil, fmt.Errorf("failed to select poems: %w", err)
	}

	result := &Result{Model: r.cfg.Identifier, Pending: len(poems)}
	if len(poems) == 0 {
		util.InfoLog("Model %s: nothing to annotate", r.cfg.Identifier)
		return result, nil
	}

	util.InfoLog("Model %s: annotating %d poems with %d workers",
		r.cfg.Identifier, len(poems), r.cfg.MaxWorkers)
	r.logger.LogRunStart(r.cfg.Identifier, len(poems))
	start := time.Now()

	var bar *progressbar.ProgressBar
	if r.showProgress && util.IsTerminal(os.Stdout.Fd()) {
		bar = progressbar.NewOptions(len(poems),
			progressbar.OptionSetDescription(r.cfg.Identifier),
			progressbar.OptionShowCount(),
			progressbar.OptionSetWidth(30),
		)
	}

	var completed, failed atomic.Int64
	var storeErr atomic.Value

	poemsChan := make(chan *store.Poem, r.cfg.MaxWorkers*2)
	var wg sync.WaitGroup

	for i := 0; i < r.cfg.MaxWorkers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for poem := range poemsChan {
				select {
				case <-ctx.Done():
					return
				default:
				}

				err := r.annotatePoem(ctx, poem)
				switch {
				case err == nil:
					completed.Add(1)
				case errors.Is(err, ctx.Err()) && ctx.Err() != nil:
					// Canceled mid-poem; nothing was persisted
					return
				case isStorageFailure(err):
					storeErr.Store(err)
					return
				default:
					failed.Add(1)
				}
				if bar != nil {
					bar.Add(1)
				}
			}
		}()
	}

feed:
	for _, poem := range poems {
		select {
		case <-ctx.Done():
			break feed
		case poemsChan <- poem:
		}
	}
	close(poemsChan)
	wg.Wait()

	if bar != nil {
		bar.Finish()
		fmt.Fprintln(os.Stderr)
	}

	result.Completed = int(completed.Load())
	result.Failed = int(failed.Load())
	r.logger.LogRunEnd(r.cfg.Identifier, result.Completed, result.Failed, time.Since(start))

	if v := storeErr.Load(); v != nil {
		return result, v.(error)
	}
	if ctx.Err() != nil {
		util.WarnLog("Model %s: run interrupted (%d completed, %d failed)",
			r.cfg.Identifier, result.Completed, result.Failed)
		return result, util.ErrInterrupted
	}

	util.SuccessLog("Model %s: %d completed, %d failed (%s)",
		r.cfg.Identifier, result.Completed, result.Failed,
		time.Since(start).Round(time.Second))
	return result, nil
}

// isStorageFailure reports errors that must abort the whole run rather
// than fail a single poem
func isStorageFailure(err error) bool {
	var se *store.StorageError
	return errors.As(err, &se) || errors.Is(err, store.ErrSchemaNotInitialized)
}

// annotatePoem runs the full pipeline for one poem. A nil return means
// a completed annotation was persisted; recorded per-poem failures
// return the underlying cause after persisting the failed record.
func (r *Runner) annotatePoem(ctx context.Context, poem *store.Poem) error {
	sentences := parse.Segment(poem.ID, poem.Paragraphs)
	if len(sentences) == 0 {
		return r.saveFailure(poem, fmt.Errorf("poem has no sentences"), time.Duration(0))
	}

	systemPrompt, userPrompt := llm.BuildPrompts(poem, sentences, r.index)

	start := time.Now()
	raw, err := r.complete(ctx, systemPrompt, userPrompt)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return r.saveFailure(poem, err, time.Since(start))
	}

	annotations, err := parse.ExtractAnnotations(raw)
	if err != nil {
		return r.saveFailure(poem, err, time.Since(start))
	}

	valid, err := r.validator.Validate(annotations, sentences)
	if err != nil {
		return r.saveFailure(poem, err, time.Since(start))
	}

	data, err := json.Marshal(valid)
	if err != nil {
		return fmt.Errorf("failed to encode annotation result: %w", err)
	}

	// Write-ahead: the event line lands on disk before the database
	// write, so an interrupted run can be replayed from the log
	if err := r.logger.LogAnnotationResult(poem.ID, r.cfg.Identifier,
		store.StatusCompleted, data, "", time.Since(start)); err != nil {
		util.WarnLog("Failed to write event log for poem %d: %v", poem.ID, err)
	}

	annotation := &store.Annotation{
		PoemID:          poem.ID,
		ModelIdentifier: r.cfg.Identifier,
		Status:          store.StatusCompleted,
		Result:          string(data),
	}
	if err := r.stores.Annotation.SaveAnnotation(annotation, SentenceRows(valid)); err != nil {
		return err
	}

	util.DebugLog("Poem %d annotated by %s (%d sentences)", poem.ID, r.cfg.Identifier, len(valid))
	return nil
}

// complete performs one rate-limited, breaker-guarded, retried LLM call
func (r *Runner) complete(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	if err := r.bucket.Acquire(ctx, 1); err != nil {
		return "", err
	}
	if r.cfg.RequestDelay > 0 {
		select {
		case <-time.After(r.cfg.RequestDelay):
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}

	retryWait := r.cfg.RetryWait
	if retryWait <= 0 {
		retryWait = 1 * time.Second
	}
	retryCfg := &util.RetryConfig{
		MaxAttempts: r.cfg.MaxRetries,
		InitialWait: retryWait,
		MaxWait:     30 * time.Second,
		Jitter:      0.2,
		Retryable:   llm.IsTransient,
	}

	var raw string
	err := r.breaker.Execute(func() error {
		var callErr error
		raw, callErr = util.RetryWithBackoff(ctx, retryCfg, func() (string, error) {
			return r.client.Complete(ctx, systemPrompt, userPrompt)
		}, r.cfg.Identifier)
		return callErr
	})
	return raw, err
}

// saveFailure persists a failed record for the poem, keeping the cause
// as the error message. Returns the original error unless the write
// itself fails.
func (r *Runner) saveFailure(poem *store.Poem, cause error, duration time.Duration) error {
	util.WarnLog("Poem %d failed (%s): %v", poem.ID, r.cfg.Identifier, cause)

	if err := r.logger.LogAnnotationResult(poem.ID, r.cfg.Identifier,
		store.StatusFailed, nil, cause.Error(), duration); err != nil {
		util.WarnLog("Failed to write event log for poem %d: %v", poem.ID, err)
	}

	annotation := &store.Annotation{
		PoemID:          poem.ID,
		ModelIdentifier: r.cfg.Identifier,
		Status:          store.StatusFailed,
		ErrorMessage:    cause.Error(),
	}
	if err := r.stores.Annotation.SaveAnnotation(annotation, nil); err != nil {
		return err
	}
	return cause
}

// RunAll runs multiple model pipelines concurrently, at most
// maxPipelines at a time. Each runner covers the same query against its
// own model.
func RunAll(ctx context.Context, runners []*Runner, query store.AnnotateQuery, maxPipelines int) ([]*Result, error) {
	if maxPipelines <= 0 {
		maxPipelines = 1
	}
	if maxPipelines > len(runners) {
		maxPipelines = len(runners)
	}

	results := make([]*Result, len(runners))
	errs := make([]error, len(runners))
	sem := make(chan struct{}, maxPipelines)
	var wg sync.WaitGroup

	for i, runner := range runners {
		wg.Add(1)
		go func(i int, runner *Runner) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()

			results[i], errs[i] = runner.Run(ctx, query)
		}(i, runner)
	}
	wg.Wait()

	var firstErr error
	for _, err := range errs {
		if err != nil {
			firstErr = err
			break
		}
	}
	return results, firstErr
}
