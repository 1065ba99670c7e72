package store

import "database/sql"

// SeedCategories upserts the taxonomy tree in a single transaction.
// Parents must precede children in the slice so the parent_id reference
// resolves.
func (s *Store) SeedCategories(categories []*Category) error {
	return s.Transaction(func(tx *sql.Tx) error {
		stmt, err := tx.Prepare(`
			INSERT INTO categories (id, name_zh, name_en, category_type, parent_id, level)
			VALUES (?, ?, ?, ?, ?, ?)
			ON CONFLICT(id) DO UPDATE SET
				name_zh = excluded.name_zh,
				name_en = excluded.name_en,
				category_type = excluded.category_type,
				parent_id = excluded.parent_id,
				level = excluded.level
		`)
		if err != nil {
			return wrapErr("prepare seed categories", err)
		}
		defer stmt.Close()

		for _, c := range categories {
			var parent any
			if c.ParentID != "" {
				parent = c.ParentID
			}
			if _, err := stmt.Exec(c.ID, c.NameZh, c.NameEn, c.Type, parent, c.Level); err != nil {
				return wrapErr("seed category "+c.ID, err)
			}
		}
		return nil
	})
}

// LoadCategories returns all categories ordered by type, level, id
func (s *Store) LoadCategories() ([]*Category, error) {
	rows, err := s.db.Query(`
		SELECT id, name_zh, COALESCE(name_en, ''), category_type, COALESCE(parent_id, ''), level
		FROM categories ORDER BY category_type, level, id
	`)
	if err != nil {
		return nil, wrapErr("load categories", err)
	}
	defer rows.Close()

	var categories []*Category
	for rows.Next() {
		c := &Category{}
		if err := rows.Scan(&c.ID, &c.NameZh, &c.NameEn, &c.Type, &c.ParentID, &c.Level); err != nil {
			return nil, wrapErr("scan category", err)
		}
		categories = append(categories, c)
	}
	return categories, rows.Err()
}

// CountCategories returns category counts keyed by category_type
func (s *Store) CountCategories() (map[string]int, error) {
	rows, err := s.db.Query("SELECT category_type, COUNT(*) FROM categories GROUP BY category_type")
	if err != nil {
		return nil, wrapErr("count categories", err)
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var categoryType string
		var n int
		if err := rows.Scan(&categoryType, &n); err != nil {
			return nil, wrapErr("scan category count", err)
		}
		counts[categoryType] = n
	}
	return counts, rows.Err()
}
