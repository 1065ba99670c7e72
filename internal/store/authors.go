package store

import "database/sql"

// ImportAuthors batch-upserts author biographies in a single transaction
func (s *Store) ImportAuthors(authors []*Author) error {
	return s.Transaction(func(tx *sql.Tx) error {
		stmt, err := tx.Prepare(`
			INSERT INTO authors (name, description, short_description)
			VALUES (?, ?, ?)
			ON CONFLICT(name) DO UPDATE SET
				description = excluded.description,
				short_description = excluded.short_description
		`)
		if err != nil {
			return wrapErr("prepare import authors", err)
		}
		defer stmt.Close()

		for _, a := range authors {
			if _, err := stmt.Exec(a.Name, a.Description, a.ShortDescription); err != nil {
				return wrapErr("import author "+a.Name, err)
			}
		}
		return nil
	})
}

// GetAuthor retrieves an author by name, or nil if absent
func (s *Store) GetAuthor(name string) (*Author, error) {
	a := &Author{}
	err := s.db.QueryRow(`
		SELECT name, COALESCE(description, ''), COALESCE(short_description, ''), created_at
		FROM authors WHERE name = ?
	`, name).Scan(&a.Name, &a.Description, &a.ShortDescription, &a.CreatedAt)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, wrapErr("get author", err)
	}
	return a, nil
}

// CountAuthors returns the number of author rows
func (s *Store) CountAuthors() (int, error) {
	var count int
	if err := s.db.QueryRow("SELECT COUNT(*) FROM authors").Scan(&count); err != nil {
		return 0, wrapErr("count authors", err)
	}
	return count, nil
}
