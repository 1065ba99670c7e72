// Package recovery rebuilds annotation rows from event logs after a
// crash. Two log formats are supported: the JSONL event log written by
// annotation runs, and the legacy multi-line dump format whose model
// must be supplied by the caller.
package recovery

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/minghe/poetry-annotator/internal/annotate"
	"github.com/minghe/poetry-annotator/internal/parse"
	"github.com/minghe/poetry-annotator/internal/report"
	"github.com/minghe/poetry-annotator/internal/store"
	"github.com/minghe/poetry-annotator/internal/taxonomy"
	"github.com/minghe/poetry-annotator/internal/util"
)

// Entry is one recoverable annotation result from a log
type Entry struct {
	PoemID       int64
	Model        string
	Status       string
	Data         json.RawMessage // annotation array for completed entries
	ErrorMessage string
}

// ParseEventLog reads annotation_result events from a JSONL event log.
// Lines that are not valid JSON or not result events are skipped; a
// crashed run may leave a truncated last line.
func ParseEventLog(r io.Reader) ([]Entry, error) {
	var entries []Entry
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 1024*1024), 16*1024*1024)

	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		var event report.Event
		if err := json.Unmarshal([]byte(line), &event); err != nil {
			util.DebugLog("Recovery: skipping unparseable line %d: %v", lineNo, err)
			continue
		}
		if event.Event != report.EventAnnotationResult || event.PoemID == 0 || event.Model == "" {
			continue
		}

		entries = append(entries, Entry{
			PoemID:       event.PoemID,
			Model:        event.Model,
			Status:       event.Status,
			Data:         event.AnnotationData,
			ErrorMessage: event.Error,
		})
	}
	if err := scanner.Err(); err != nil {
		return entries, fmt.Errorf("failed to read event log: %w", err)
	}
	return entries, nil
}

// Legacy log block header, e.g. "--- poem_id: 1234 ---"
const legacyHeaderPrefix = "--- poem_id:"

// ParseLegacyLog reads the old multi-line dump format: a poem header
// line followed by the annotation JSON block. The format predates
// self-describing entries, so the model identifier comes from the
// caller. Blocks whose JSON cannot be parsed are skipped.
func ParseLegacyLog(r io.Reader, model string) ([]Entry, error) {
	if model == "" {
		return nil, fmt.Errorf("%w: legacy logs need an explicit model identifier", util.ErrInvalidConfig)
	}

	var entries []Entry
	var poemID int64
	var block strings.Builder

	flush := func() {
		if poemID == 0 {
			return
		}
		raw := strings.TrimSpace(block.String())
		block.Reset()
		if raw == "" {
			return
		}

		annotations, err := parse.ExtractAnnotations(raw)
		if err != nil {
			util.WarnLog("Recovery: poem %d: unparseable legacy block: %v", poemID, err)
			return
		}
		data, err := json.Marshal(annotations)
		if err != nil {
			return
		}
		entries = append(entries, Entry{
			PoemID: poemID,
			Model:  model,
			Status: store.StatusCompleted,
			Data:   data,
		})
	}

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 1024*1024), 16*1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		trimmed := strings.TrimSpace(line)

		if strings.HasPrefix(trimmed, legacyHeaderPrefix) {
			flush()
			idPart := strings.TrimSpace(strings.TrimSuffix(
				strings.TrimPrefix(trimmed, legacyHeaderPrefix), "---"))
			id, err := strconv.ParseInt(idPart, 10, 64)
			if err != nil {
				util.WarnLog("Recovery: bad legacy header %q", trimmed)
				poemID = 0
				continue
			}
			poemID = id
			continue
		}
		block.WriteString(line)
		block.WriteString("\n")
	}
	flush()

	if err := scanner.Err(); err != nil {
		return entries, fmt.Errorf("failed to read legacy log: %w", err)
	}
	return entries, nil
}

// Stats summarizes a replay
type Stats struct {
	Entries          int // entries considered after per-poem dedup
	Replayed         int // completed annotations written (or would-be, dry run)
	RestoredFailures int // failed records written where nothing existed
	SkippedCompleted int // poems already completed in the store
	SkippedMissing   int // poems absent from the raw store
	Invalid          int // entries whose data failed re-validation
}

// Replayer writes log entries back into the annotation store
type Replayer struct {
	Stores *store.Stores
	Index  *taxonomy.Index

	// Write enables persistence. The default is a dry run that only
	// reports what would change.
	Write bool
}

// Replay applies entries in log order. Later entries for the same
// (poem, model) win. Poems that already have a completed annotation are
// skipped, making repeated replays idempotent. Completed entries are
// re-validated against the poem's segmentation before writing.
func (r *Replayer) Replay(entries []Entry) (*Stats, error) {
	// Last entry per (poem, model) wins
	type key struct {
		poemID int64
		model  string
	}
	latest := make(map[key]Entry)
	var order []key
	for _, e := range entries {
		k := key{e.PoemID, e.Model}
		if _, seen := latest[k]; !seen {
			order = append(order, k)
		}
		latest[k] = e
	}

	stats := &Stats{Entries: len(latest)}
	validator := parse.NewValidator(r.Index)

	for _, k := range order {
		entry := latest[k]

		existing, err := r.Stores.Annotation.GetAnnotation(entry.PoemID, entry.Model)
		if err != nil {
			return stats, err
		}
		if existing != nil && existing.Status == store.StatusCompleted {
			stats.SkippedCompleted++
			continue
		}

		if entry.Status == store.StatusFailed {
			if existing == nil {
				stats.RestoredFailures++
				if r.Write {
					err := r.Stores.Annotation.SaveAnnotation(&store.Annotation{
						PoemID:          entry.PoemID,
						ModelIdentifier: entry.Model,
						Status:          store.StatusFailed,
						ErrorMessage:    entry.ErrorMessage,
					}, nil)
					if err != nil {
						return stats, err
					}
				}
			}
			continue
		}

		poem, err := r.Stores.Raw.GetPoemByID(entry.PoemID)
		if err != nil {
			return stats, err
		}
		if poem == nil {
			util.WarnLog("Recovery: poem %d not in raw store, skipping", entry.PoemID)
			stats.SkippedMissing++
			continue
		}

		var annotations []parse.SentenceAnnotation
		if err := json.Unmarshal(entry.Data, &annotations); err != nil {
			util.WarnLog("Recovery: poem %d: bad annotation data: %v", entry.PoemID, err)
			stats.Invalid++
			continue
		}

		sentences := parse.Segment(poem.ID, poem.Paragraphs)
		valid, err := validator.Validate(annotations, sentences)
		if err != nil {
			util.WarnLog("Recovery: poem %d: %v", entry.PoemID, err)
			stats.Invalid++
			continue
		}

		stats.Replayed++
		if !r.Write {
			continue
		}

		data, err := json.Marshal(valid)
		if err != nil {
			return stats, fmt.Errorf("failed to encode recovered result: %w", err)
		}
		annotation := &store.Annotation{
			PoemID:          entry.PoemID,
			ModelIdentifier: entry.Model,
			Status:          store.StatusCompleted,
			Result:          string(data),
		}
		if err := r.Stores.Annotation.SaveAnnotation(annotation, annotate.SentenceRows(valid)); err != nil {
			return stats, err
		}
	}

	return stats, nil
}
