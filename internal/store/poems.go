package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/minghe/poetry-annotator/internal/util"
)

// Data status values for poems
const (
	DataStatusActive       = "active"
	DataStatusMissingChars = "missing_chars"
	DataStatusEmpty        = "empty"
	DataStatusDisputed     = "disputed"
)

// ImportPoems batch-upserts poems inside a single transaction.
// Existing rows keep their data_status; corpus re-imports must not undo
// a cleaning pass.
func (s *Store) ImportPoems(poems []*Poem) error {
	return s.Transaction(func(tx *sql.Tx) error {
		stmt, err := tx.Prepare(`
			INSERT INTO poems (id, title, author, paragraphs, full_text, author_desc, pre_classification)
			VALUES (?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(id) DO UPDATE SET
				title = excluded.title,
				author = excluded.author,
				paragraphs = excluded.paragraphs,
				full_text = excluded.full_text,
				author_desc = excluded.author_desc,
				pre_classification = excluded.pre_classification,
				updated_at = CURRENT_TIMESTAMP
		`)
		if err != nil {
			return wrapErr("prepare import poems", err)
		}
		defer stmt.Close()

		for _, p := range poems {
			paragraphs, err := json.Marshal(p.Paragraphs)
			if err != nil {
				return fmt.Errorf("failed to encode paragraphs for poem %d: %w", p.ID, err)
			}
			if _, err := stmt.Exec(p.ID, p.Title, p.Author, string(paragraphs),
				p.FullText, p.AuthorDesc, p.PreClassification); err != nil {
				return wrapErr(fmt.Sprintf("import poem %d", p.ID), err)
			}
		}
		return nil
	})
}

const poemColumns = `id, title, author, paragraphs, full_text,
	COALESCE(author_desc, ''), data_status, COALESCE(pre_classification, ''),
	created_at, updated_at`

func scanPoem(row interface{ Scan(...any) error }) (*Poem, error) {
	p := &Poem{}
	var paragraphs string
	err := row.Scan(
		&p.ID, &p.Title, &p.Author, &paragraphs, &p.FullText,
		&p.AuthorDesc, &p.DataStatus, &p.PreClassification,
		&p.CreatedAt, &p.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(paragraphs), &p.Paragraphs); err != nil {
		return nil, fmt.Errorf("failed to decode paragraphs for poem %d: %w", p.ID, err)
	}
	return p, nil
}

// GetPoemByID retrieves a poem by its ID, or nil if absent
func (s *Store) GetPoemByID(id int64) (*Poem, error) {
	row := s.db.QueryRow("SELECT "+poemColumns+" FROM poems WHERE id = ?", id)
	p, err := scanPoem(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, wrapErr("get poem", err)
	}
	return p, nil
}

// GetPoemsByIDs retrieves poems for the given IDs in ascending ID order.
// Missing IDs are skipped.
func (s *Store) GetPoemsByIDs(ids []int64) ([]*Poem, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	placeholders := strings.Repeat("?,", len(ids)-1) + "?"
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}

	rows, err := s.db.Query(
		"SELECT "+poemColumns+" FROM poems WHERE id IN ("+placeholders+") ORDER BY id", args...)
	if err != nil {
		return nil, wrapErr("get poems by ids", err)
	}
	defer rows.Close()

	return collectPoems(rows)
}

// PoemQuery filters poem listing
type PoemQuery struct {
	StartID         int64
	EndID           int64
	Limit           int
	IncludeInactive bool
}

// GetPoems lists poems in ascending ID order. Only active poems are
// returned unless IncludeInactive is set.
func (s *Store) GetPoems(q PoemQuery) ([]*Poem, error) {
	var sb strings.Builder
	var args []any

	sb.WriteString("SELECT " + poemColumns + " FROM poems WHERE 1=1")
	if !q.IncludeInactive {
		sb.WriteString(" AND data_status = ?")
		args = append(args, DataStatusActive)
	}
	if q.StartID > 0 {
		sb.WriteString(" AND id >= ?")
		args = append(args, q.StartID)
	}
	if q.EndID > 0 {
		sb.WriteString(" AND id <= ?")
		args = append(args, q.EndID)
	}
	sb.WriteString(" ORDER BY id")
	if q.Limit > 0 {
		sb.WriteString(" LIMIT ?")
		args = append(args, q.Limit)
	}

	rows, err := s.db.Query(sb.String(), args...)
	if err != nil {
		return nil, wrapErr("get poems", err)
	}
	defer rows.Close()

	return collectPoems(rows)
}

// SearchPoems finds poems whose title or author matches the given terms.
// Empty terms match everything.
func (s *Store) SearchPoems(title, author string, limit, offset int) ([]*Poem, error) {
	var sb strings.Builder
	var args []any

	sb.WriteString("SELECT " + poemColumns + " FROM poems WHERE 1=1")
	if title != "" {
		sb.WriteString(" AND title LIKE ?")
		args = append(args, "%"+title+"%")
	}
	if author != "" {
		sb.WriteString(" AND author LIKE ?")
		args = append(args, "%"+author+"%")
	}
	sb.WriteString(" ORDER BY id")
	if limit > 0 {
		sb.WriteString(" LIMIT ? OFFSET ?")
		args = append(args, limit, offset)
	}

	rows, err := s.db.Query(sb.String(), args...)
	if err != nil {
		return nil, wrapErr("search poems", err)
	}
	defer rows.Close()

	return collectPoems(rows)
}

func collectPoems(rows *sql.Rows) ([]*Poem, error) {
	var poems []*Poem
	for rows.Next() {
		p, err := scanPoem(rows)
		if err != nil {
			return nil, wrapErr("scan poem", err)
		}
		poems = append(poems, p)
	}
	return poems, rows.Err()
}

// UpdateDataStatus marks a poem's data quality status
func (s *Store) UpdateDataStatus(poemID int64, status string) error {
	_, err := s.db.Exec(`
		UPDATE poems SET data_status = ?, updated_at = CURRENT_TIMESTAMP
		WHERE id = ?
	`, status, poemID)
	if err != nil {
		return wrapErr("update data status", err)
	}
	return nil
}

// CountPoems returns poem counts keyed by data_status
func (s *Store) CountPoems() (map[string]int, error) {
	rows, err := s.db.Query("SELECT data_status, COUNT(*) FROM poems GROUP BY data_status")
	if err != nil {
		return nil, wrapErr("count poems", err)
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var status string
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, wrapErr("scan poem count", err)
		}
		counts[status] = n
	}
	return counts, rows.Err()
}

// DuplicateGroup holds poem IDs sharing the same normalized full text
type DuplicateGroup struct {
	TextKey string
	PoemIDs []int64
}

// FindDuplicatePoems groups poems whose full text is identical after
// normalization. Only groups with more than one member are returned,
// ordered by lowest member ID.
func (s *Store) FindDuplicatePoems() ([]DuplicateGroup, error) {
	rows, err := s.db.Query("SELECT id, full_text FROM poems ORDER BY id")
	if err != nil {
		return nil, wrapErr("find duplicates", err)
	}
	defer rows.Close()

	byKey := make(map[string][]int64)
	for rows.Next() {
		var id int64
		var text string
		if err := rows.Scan(&id, &text); err != nil {
			return nil, wrapErr("scan poem text", err)
		}
		key := util.TextKey(text)
		byKey[key] = append(byKey[key], id)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	var groups []DuplicateGroup
	for key, ids := range byKey {
		if len(ids) > 1 {
			groups = append(groups, DuplicateGroup{TextKey: key, PoemIDs: ids})
		}
	}
	sort.Slice(groups, func(i, j int) bool {
		return groups[i].PoemIDs[0] < groups[j].PoemIDs[0]
	})
	return groups, nil
}

// PoemTextKeys returns the normalized full-text key for every poem,
// keyed by poem ID. Used for de-duplicated statistics.
func (s *Store) PoemTextKeys() (map[int64]string, error) {
	rows, err := s.db.Query("SELECT id, full_text FROM poems")
	if err != nil {
		return nil, wrapErr("poem text keys", err)
	}
	defer rows.Close()

	keys := make(map[int64]string)
	for rows.Next() {
		var id int64
		var text string
		if err := rows.Scan(&id, &text); err != nil {
			return nil, wrapErr("scan poem text", err)
		}
		keys[id] = util.TextKey(text)
	}
	return keys, rows.Err()
}
