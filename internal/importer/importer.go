// Package importer loads the poetry corpus (poet.*.json plus
// authors.*.json files) into the raw store.
package importer

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/schollz/progressbar/v3"

	"github.com/minghe/poetry-annotator/internal/report"
	"github.com/minghe/poetry-annotator/internal/store"
	"github.com/minghe/poetry-annotator/internal/util"
)

// poemRecord matches one entry of a poet.*.json corpus file
type poemRecord struct {
	Title      string   `json:"title"`
	Author     string   `json:"author"`
	Paragraphs []string `json:"paragraphs"`
	AuthorDesc string   `json:"author_desc"`
}

// authorRecord matches one entry of an authors.*.json corpus file.
// The corpus uses "desc" for the biography.
type authorRecord struct {
	Name             string `json:"name"`
	Desc             string `json:"desc"`
	ShortDescription string `json:"short_description"`
}

// Importer loads corpus files into the raw store
type Importer struct {
	stores      *store.Stores
	concurrency int
	batchSize   int
	startID     int64
	logger      *report.EventLogger
}

// Config holds importer configuration
type Config struct {
	Stores      *store.Stores
	Concurrency int
	BatchSize   int
	StartID     int64 // first poem ID to assign; defaults to 1
	Logger      *report.EventLogger
}

// New creates a new Importer
func New(cfg *Config) *Importer {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 4
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 500
	}
	if cfg.StartID <= 0 {
		cfg.StartID = 1
	}
	return &Importer{
		stores:      cfg.Stores,
		concurrency: cfg.Concurrency,
		batchSize:   cfg.BatchSize,
		startID:     cfg.StartID,
		logger:      cfg.Logger,
	}
}

// Result represents an import result
type Result struct {
	PoemFiles       int
	AuthorFiles     int
	PoemsImported   int
	AuthorsImported int
	Errors          []error
}

// Import loads all corpus files under sourceDir. Poem files are decoded
// concurrently but IDs are assigned in sorted file order, so repeated
// imports of the same corpus produce the same IDs.
func (im *Importer) Import(ctx context.Context, sourceDir string) (*Result, error) {
	info, err := os.Stat(sourceDir)
	if err != nil {
		return nil, fmt.Errorf("source directory not accessible: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("source path is not a directory: %s", sourceDir)
	}

	poemFiles, err := filepath.Glob(filepath.Join(sourceDir, "poet.*.json"))
	if err != nil {
		return nil, fmt.Errorf("failed to list poem files: %w", err)
	}
	sort.Strings(poemFiles)

	authorFiles, err := filepath.Glob(filepath.Join(sourceDir, "authors.*.json"))
	if err != nil {
		return nil, fmt.Errorf("failed to list author files: %w", err)
	}
	sort.Strings(authorFiles)

	if len(poemFiles) == 0 && len(authorFiles) == 0 {
		return nil, fmt.Errorf("no poet.*.json or authors.*.json files in %s", sourceDir)
	}

	result := &Result{PoemFiles: len(poemFiles), AuthorFiles: len(authorFiles)}
	util.InfoLog("Importing from %s: %d poem files, %d author files",
		sourceDir, len(poemFiles), len(authorFiles))

	if err := im.importAuthors(authorFiles, result); err != nil {
		return result, err
	}
	if err := im.importPoems(ctx, poemFiles, result); err != nil {
		return result, err
	}

	im.logger.Log(&report.Event{
		Event: report.EventImport,
		Extra: map[string]string{
			"source":  sourceDir,
			"poems":   fmt.Sprintf("%d", result.PoemsImported),
			"authors": fmt.Sprintf("%d", result.AuthorsImported),
		},
	}, true)

	util.SuccessLog("Import complete: %d poems, %d authors, %d errors",
		result.PoemsImported, result.AuthorsImported, len(result.Errors))
	return result, nil
}

func (im *Importer) importAuthors(files []string, result *Result) error {
	var all []*store.Author
	for _, path := range files {
		var records []authorRecord
		if err := decodeFile(path, &records); err != nil {
			util.ErrorLog("Failed to read %s: %v", path, err)
			result.Errors = append(result.Errors, err)
			continue
		}
		for _, rec := range records {
			if rec.Name == "" {
				continue
			}
			all = append(all, &store.Author{
				Name:             rec.Name,
				Description:      rec.Desc,
				ShortDescription: rec.ShortDescription,
			})
		}
		util.DebugLog("Loaded %d authors from %s", len(records), filepath.Base(path))
	}
	if len(all) == 0 {
		return nil
	}
	if err := im.stores.Raw.ImportAuthors(all); err != nil {
		return fmt.Errorf("failed to import authors: %w", err)
	}
	result.AuthorsImported = len(all)
	return nil
}

func (im *Importer) importPoems(ctx context.Context, files []string, result *Result) error {
	if len(files) == 0 {
		return nil
	}

	// Decode concurrently, keyed by file index so ID assignment stays
	// deterministic regardless of which worker finishes first
	decoded := make([][]poemRecord, len(files))
	fileErrs := make([]error, len(files))
	indexes := make(chan int, len(files))
	for i := range files {
		indexes <- i
	}
	close(indexes)

	var decodedCount atomic.Int64
	var wg sync.WaitGroup
	for w := 0; w < im.concurrency; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range indexes {
				select {
				case <-ctx.Done():
					return
				default:
				}
				var records []poemRecord
				if err := decodeFile(files[i], &records); err != nil {
					fileErrs[i] = err
					continue
				}
				decoded[i] = records
				decodedCount.Add(int64(len(records)))
			}
		}()
	}
	wg.Wait()
	if ctx.Err() != nil {
		return util.ErrInterrupted
	}

	for i, err := range fileErrs {
		if err != nil {
			util.ErrorLog("Failed to read %s: %v", files[i], err)
			result.Errors = append(result.Errors, err)
		}
	}

	total := int(decodedCount.Load())
	if total == 0 {
		return nil
	}

	var bar *progressbar.ProgressBar
	if util.IsTerminal(os.Stdout.Fd()) && !util.IsQuiet() {
		bar = progressbar.NewOptions(total,
			progressbar.OptionSetDescription("Importing"),
			progressbar.OptionSetWidth(40),
			progressbar.OptionShowCount(),
			progressbar.OptionShowIts(),
			progressbar.OptionSetItsString("poems"),
			progressbar.OptionThrottle(200*time.Millisecond),
		)
	}

	nextID := im.startID
	batch := make([]*store.Poem, 0, im.batchSize)
	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		if err := im.stores.Raw.ImportPoems(batch); err != nil {
			return fmt.Errorf("failed to import poem batch: %w", err)
		}
		result.PoemsImported += len(batch)
		if bar != nil {
			bar.Add(len(batch))
		}
		batch = batch[:0]
		return nil
	}

	for _, records := range decoded {
		for _, rec := range records {
			select {
			case <-ctx.Done():
				return util.ErrInterrupted
			default:
			}

			poem := &store.Poem{
				ID:         nextID,
				Title:      rec.Title,
				Author:     rec.Author,
				Paragraphs: rec.Paragraphs,
				FullText:   strings.Join(rec.Paragraphs, "\n"),
				AuthorDesc: rec.AuthorDesc,
			}
			nextID++
			batch = append(batch, poem)
			if len(batch) >= im.batchSize {
				if err := flush(); err != nil {
					return err
				}
			}
		}
	}
	if err := flush(); err != nil {
		return err
	}

	if bar != nil {
		bar.Finish()
		fmt.Fprintln(os.Stderr)
	}
	return nil
}

func decodeFile(path string, v any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("%s: %w", filepath.Base(path), err)
	}
	return nil
}
