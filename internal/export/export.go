// Package export renders completed annotations as JSONL or CSV for
// downstream analysis.
package export

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/minghe/poetry-annotator/internal/parse"
	"github.com/minghe/poetry-annotator/internal/store"
)

// Record is one exported poem annotation
type Record struct {
	PoemID      int64           `json:"poem_id"`
	Title       string          `json:"title"`
	Author      string          `json:"author"`
	Model       string          `json:"model_identifier"`
	Status      string          `json:"status"`
	Annotations json.RawMessage `json:"annotations,omitempty"`
	Error       string          `json:"error_message,omitempty"`
}

// Collect joins annotations with their poems. An empty model exports
// every model; failed annotations are included so exports carry the
// full picture.
func Collect(ss *store.Stores, model string) ([]Record, error) {
	annotations, err := ss.Annotation.ListAnnotations(model, "")
	if err != nil {
		return nil, err
	}
	if len(annotations) == 0 {
		return nil, nil
	}

	idSet := make(map[int64]struct{})
	var ids []int64
	for _, a := range annotations {
		if _, ok := idSet[a.PoemID]; !ok {
			idSet[a.PoemID] = struct{}{}
			ids = append(ids, a.PoemID)
		}
	}
	poems, err := ss.Raw.GetPoemsByIDs(ids)
	if err != nil {
		return nil, err
	}
	poemByID := make(map[int64]*store.Poem, len(poems))
	for _, p := range poems {
		poemByID[p.ID] = p
	}

	records := make([]Record, 0, len(annotations))
	for _, a := range annotations {
		rec := Record{
			PoemID: a.PoemID,
			Model:  a.ModelIdentifier,
			Status: a.Status,
			Error:  a.ErrorMessage,
		}
		if p := poemByID[a.PoemID]; p != nil {
			rec.Title = p.Title
			rec.Author = p.Author
		}
		if a.Status == store.StatusCompleted && a.Result != "" {
			rec.Annotations = json.RawMessage(a.Result)
		}
		records = append(records, rec)
	}
	return records, nil
}

// WriteJSONL writes one record per line
func WriteJSONL(w io.Writer, records []Record) error {
	enc := json.NewEncoder(w)
	for _, rec := range records {
		if err := enc.Encode(rec); err != nil {
			return fmt.Errorf("failed to encode record for poem %d: %w", rec.PoemID, err)
		}
	}
	return nil
}

var csvHeader = []string{
	"poem_id", "title", "author", "model_identifier", "sentence_uid",
	"sentence_text", "primary_emotion", "secondary_emotions",
	"relationship_action", "emotional_strategy", "communication_scene",
	"risk_level",
}

// WriteCSV flattens completed annotations to one row per sentence.
// Failed annotations have no sentence detail and are omitted.
func WriteCSV(w io.Writer, records []Record) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(csvHeader); err != nil {
		return fmt.Errorf("failed to write csv header: %w", err)
	}

	for _, rec := range records {
		if rec.Status != store.StatusCompleted || len(rec.Annotations) == 0 {
			continue
		}
		var sentences []parse.SentenceAnnotation
		if err := json.Unmarshal(rec.Annotations, &sentences); err != nil {
			return fmt.Errorf("poem %d: bad stored annotation result: %w", rec.PoemID, err)
		}
		for _, s := range sentences {
			row := []string{
				fmt.Sprintf("%d", rec.PoemID),
				rec.Title,
				rec.Author,
				rec.Model,
				s.SentenceUID,
				s.SentenceText,
				s.PrimaryEmotion,
				strings.Join(s.SecondaryEmotions, "|"),
				s.RelationshipAction,
				s.EmotionalStrategy,
				s.CommunicationScene,
				s.RiskLevel,
			}
			if err := cw.Write(row); err != nil {
				return fmt.Errorf("failed to write csv row: %w", err)
			}
		}
	}

	cw.Flush()
	return cw.Error()
}
