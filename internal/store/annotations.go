package store

import (
	"database/sql"
	"fmt"
	"strings"
)

// SaveAnnotation upserts one model's result for one poem. The annotation
// row, its sentence rows and category links are written in a single
// transaction. A re-annotation replaces all previous sentence detail;
// failed annotations carry only the error message.
func (s *Store) SaveAnnotation(a *Annotation, sentences []SentenceRow) error {
	if a.Status != StatusCompleted && a.Status != StatusFailed {
		return fmt.Errorf("invalid annotation status %q", a.Status)
	}

	return s.Transaction(func(tx *sql.Tx) error {
		_, err := tx.Exec(`
			INSERT INTO annotations (poem_id, model_identifier, status, annotation_result, error_message)
			VALUES (?, ?, ?, ?, ?)
			ON CONFLICT(poem_id, model_identifier) DO UPDATE SET
				status = excluded.status,
				annotation_result = excluded.annotation_result,
				error_message = excluded.error_message,
				updated_at = CURRENT_TIMESTAMP
		`, a.PoemID, a.ModelIdentifier, a.Status, a.Result, a.ErrorMessage)
		if err != nil {
			return wrapErr(fmt.Sprintf("upsert annotation poem=%d model=%s", a.PoemID, a.ModelIdentifier), err)
		}

		var annotationID int64
		err = tx.QueryRow(
			"SELECT id FROM annotations WHERE poem_id = ? AND model_identifier = ?",
			a.PoemID, a.ModelIdentifier,
		).Scan(&annotationID)
		if err != nil {
			return wrapErr("get annotation id", err)
		}
		a.ID = annotationID

		// Stale sentence rows from a previous attempt; links cascade
		if _, err := tx.Exec(
			"DELETE FROM sentence_annotations WHERE annotation_id = ?", annotationID); err != nil {
			return wrapErr("delete stale sentences", err)
		}

		if a.Status != StatusCompleted {
			return nil
		}

		for _, sent := range sentences {
			res, err := tx.Exec(`
				INSERT INTO sentence_annotations (annotation_id, poem_id, sentence_uid, sentence_text)
				VALUES (?, ?, ?, ?)
			`, annotationID, a.PoemID, sent.UID, sent.Text)
			if err != nil {
				return wrapErr("insert sentence "+sent.UID, err)
			}
			sentenceID, err := res.LastInsertId()
			if err != nil {
				return wrapErr("sentence id", err)
			}

			for _, em := range sent.Emotions {
				if _, err := tx.Exec(`
					INSERT INTO sentence_emotion_links (sentence_annotation_id, emotion_id, is_primary)
					VALUES (?, ?, ?)
				`, sentenceID, em.EmotionID, boolToInt(em.IsPrimary)); err != nil {
					return wrapErr("insert emotion link "+em.EmotionID, err)
				}
			}
			for _, st := range sent.Strategies {
				if _, err := tx.Exec(`
					INSERT INTO sentence_strategy_links (sentence_annotation_id, strategy_id, strategy_type, is_primary)
					VALUES (?, ?, ?, ?)
				`, sentenceID, st.StrategyID, st.StrategyType, boolToInt(st.IsPrimary)); err != nil {
					return wrapErr("insert strategy link "+st.StrategyID, err)
				}
			}
		}

		return nil
	})
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

const annotationColumns = `id, poem_id, model_identifier, status,
	COALESCE(annotation_result, ''), COALESCE(error_message, ''),
	created_at, updated_at`

func scanAnnotation(row interface{ Scan(...any) error }) (*Annotation, error) {
	a := &Annotation{}
	err := row.Scan(
		&a.ID, &a.PoemID, &a.ModelIdentifier, &a.Status,
		&a.Result, &a.ErrorMessage,
		&a.CreatedAt, &a.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return a, nil
}

// GetAnnotation retrieves one model's result for one poem, or nil if absent
func (s *Store) GetAnnotation(poemID int64, model string) (*Annotation, error) {
	row := s.db.QueryRow(
		"SELECT "+annotationColumns+" FROM annotations WHERE poem_id = ? AND model_identifier = ?",
		poemID, model)
	a, err := scanAnnotation(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, wrapErr("get annotation", err)
	}
	return a, nil
}

// GetCompletedPoemIDs returns the set of poem IDs with a completed
// annotation for the given model
func (s *Store) GetCompletedPoemIDs(model string) (map[int64]struct{}, error) {
	rows, err := s.db.Query(
		"SELECT poem_id FROM annotations WHERE model_identifier = ? AND status = ?",
		model, StatusCompleted)
	if err != nil {
		return nil, wrapErr("get completed poem ids", err)
	}
	defer rows.Close()

	ids := make(map[int64]struct{})
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, wrapErr("scan poem id", err)
		}
		ids[id] = struct{}{}
	}
	return ids, rows.Err()
}

// ListAnnotations lists annotations, optionally filtered by model and
// status, in ascending poem ID order
func (s *Store) ListAnnotations(model, status string) ([]*Annotation, error) {
	var sb strings.Builder
	var args []any

	sb.WriteString("SELECT " + annotationColumns + " FROM annotations WHERE 1=1")
	if model != "" {
		sb.WriteString(" AND model_identifier = ?")
		args = append(args, model)
	}
	if status != "" {
		sb.WriteString(" AND status = ?")
		args = append(args, status)
	}
	sb.WriteString(" ORDER BY poem_id, model_identifier")

	rows, err := s.db.Query(sb.String(), args...)
	if err != nil {
		return nil, wrapErr("list annotations", err)
	}
	defer rows.Close()

	var annotations []*Annotation
	for rows.Next() {
		a, err := scanAnnotation(rows)
		if err != nil {
			return nil, wrapErr("scan annotation", err)
		}
		annotations = append(annotations, a)
	}
	return annotations, rows.Err()
}

// GetSentenceRows loads the structured sentence detail for an annotation
func (s *Store) GetSentenceRows(annotationID int64) ([]SentenceRow, error) {
	rows, err := s.db.Query(`
		SELECT id, sentence_uid, sentence_text
		FROM sentence_annotations WHERE annotation_id = ? ORDER BY id
	`, annotationID)
	if err != nil {
		return nil, wrapErr("get sentence rows", err)
	}
	defer rows.Close()

	var sentences []SentenceRow
	var sentenceIDs []int64
	for rows.Next() {
		var id int64
		var sent SentenceRow
		if err := rows.Scan(&id, &sent.UID, &sent.Text); err != nil {
			return nil, wrapErr("scan sentence row", err)
		}
		sentences = append(sentences, sent)
		sentenceIDs = append(sentenceIDs, id)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for i, sentenceID := range sentenceIDs {
		emotions, err := s.getEmotionLinks(sentenceID)
		if err != nil {
			return nil, err
		}
		strategies, err := s.getStrategyLinks(sentenceID)
		if err != nil {
			return nil, err
		}
		sentences[i].Emotions = emotions
		sentences[i].Strategies = strategies
	}

	return sentences, nil
}

func (s *Store) getEmotionLinks(sentenceID int64) ([]EmotionLink, error) {
	rows, err := s.db.Query(`
		SELECT emotion_id, is_primary FROM sentence_emotion_links
		WHERE sentence_annotation_id = ? ORDER BY is_primary DESC, emotion_id
	`, sentenceID)
	if err != nil {
		return nil, wrapErr("get emotion links", err)
	}
	defer rows.Close()

	var links []EmotionLink
	for rows.Next() {
		var link EmotionLink
		var primary int
		if err := rows.Scan(&link.EmotionID, &primary); err != nil {
			return nil, wrapErr("scan emotion link", err)
		}
		link.IsPrimary = primary != 0
		links = append(links, link)
	}
	return links, rows.Err()
}

func (s *Store) getStrategyLinks(sentenceID int64) ([]StrategyLink, error) {
	rows, err := s.db.Query(`
		SELECT strategy_id, strategy_type, is_primary FROM sentence_strategy_links
		WHERE sentence_annotation_id = ? ORDER BY strategy_type, strategy_id
	`, sentenceID)
	if err != nil {
		return nil, wrapErr("get strategy links", err)
	}
	defer rows.Close()

	var links []StrategyLink
	for rows.Next() {
		var link StrategyLink
		var primary int
		if err := rows.Scan(&link.StrategyID, &link.StrategyType, &primary); err != nil {
			return nil, wrapErr("scan strategy link", err)
		}
		link.IsPrimary = primary != 0
		links = append(links, link)
	}
	return links, rows.Err()
}

// ModelStatusCounts returns per-model counts keyed by status
func (s *Store) ModelStatusCounts() (map[string]map[string]int, error) {
	rows, err := s.db.Query(`
		SELECT model_identifier, status, COUNT(*)
		FROM annotations GROUP BY model_identifier, status
	`)
	if err != nil {
		return nil, wrapErr("model status counts", err)
	}
	defer rows.Close()

	counts := make(map[string]map[string]int)
	for rows.Next() {
		var model, status string
		var n int
		if err := rows.Scan(&model, &status, &n); err != nil {
			return nil, wrapErr("scan status count", err)
		}
		if counts[model] == nil {
			counts[model] = make(map[string]int)
		}
		counts[model][status] = n
	}
	return counts, rows.Err()
}
