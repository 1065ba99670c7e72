package store

import (
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite" // SQLite driver
)

// Kind identifies which of the three physical stores a database holds
type Kind string

const (
	KindRaw        Kind = "raw"
	KindAnnotation Kind = "annotation"
	KindTaxonomy   Kind = "taxonomy"
)

const (
	rawSchemaVersion        = 1
	annotationSchemaVersion = 1
	taxonomySchemaVersion   = 1
)

// Store wraps a single SQLite database holding one store kind
type Store struct {
	db   *sql.DB
	kind Kind
}

// OpenOptions holds options for opening a database
type OpenOptions struct {
	// CreateSchema applies migrations on open. When false, a database
	// without its tables fails with ErrSchemaNotInitialized instead of
	// being silently created (only init-db migrates).
	CreateSchema bool
}

// Open opens a SQLite database and verifies its schema is present
func Open(path string, kind Kind) (*Store, error) {
	return OpenWithOptions(path, kind, nil)
}

// OpenWithOptions opens or creates a SQLite database with custom options
func OpenWithOptions(path string, kind Kind, opts *OpenOptions) (*Store, error) {
	if opts == nil {
		opts = &OpenOptions{}
	}

	dsn := fmt.Sprintf("file:%s?_journal_mode=WAL&_timeout=5000&_busy_timeout=5000", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// SQLite works best with a single writer
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	store := &Store{db: db, kind: kind}

	if opts.CreateSchema {
		if err := store.migrate(); err != nil {
			db.Close()
			return nil, fmt.Errorf("migration failed: %w", err)
		}
	} else {
		version, err := store.getSchemaVersion()
		if err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to read schema version: %w", err)
		}
		if version == 0 {
			db.Close()
			return nil, fmt.Errorf("%s store at %s: %w", kind, path, ErrSchemaNotInitialized)
		}
	}

	return store, nil
}

// Close closes the database connection
func (s *Store) Close() error {
	return s.db.Close()
}

// DB returns the underlying database connection for custom queries
func (s *Store) DB() *sql.DB {
	return s.db
}

// Kind returns the store kind this database holds
func (s *Store) Kind() Kind {
	return s.kind
}

// CheckIntegrity runs PRAGMA integrity_check on the database
func (s *Store) CheckIntegrity() error {
	var result string
	err := s.db.QueryRow("PRAGMA integrity_check").Scan(&result)
	if err != nil {
		return fmt.Errorf("integrity check query failed: %w", err)
	}

	if result != "ok" {
		return fmt.Errorf("integrity check failed: %s", result)
	}

	return nil
}

// SQLiteVersion reports the embedded SQLite library version
func SQLiteVersion() string {
	db, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		return ""
	}
	defer db.Close()

	var version string
	if err := db.QueryRow("SELECT sqlite_version()").Scan(&version); err != nil {
		return ""
	}
	return version
}

func (s *Store) schemaTarget() (string, int) {
	switch s.kind {
	case KindRaw:
		return rawSchemaV1, rawSchemaVersion
	case KindAnnotation:
		return annotationSchemaV1, annotationSchemaVersion
	default:
		return taxonomySchemaV1, taxonomySchemaVersion
	}
}

// migrate applies database migrations for this store's kind
func (s *Store) migrate() error {
	version, err := s.getSchemaVersion()
	if err != nil {
		return err
	}

	schema, target := s.schemaTarget()
	if version >= target {
		return nil
	}

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if version < 1 {
		if _, err := tx.Exec(schema); err != nil {
			return fmt.Errorf("failed to apply %s schema v1: %w", s.kind, err)
		}
		if err := s.setSchemaVersion(tx, 1); err != nil {
			return fmt.Errorf("failed to set schema version: %w", err)
		}
	}

	// Future migrations would go here:
	// if version < 2 { ... }

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit migration: %w", err)
	}

	return nil
}

// getSchemaVersion returns the current schema version
func (s *Store) getSchemaVersion() (int, error) {
	var exists int
	err := s.db.QueryRow(`
		SELECT COUNT(*) FROM sqlite_master
		WHERE type='table' AND name='schema_version'
	`).Scan(&exists)
	if err != nil {
		return 0, err
	}

	if exists == 0 {
		return 0, nil
	}

	var version int
	err = s.db.QueryRow("SELECT COALESCE(MAX(version), 0) FROM schema_version").Scan(&version)
	if err != nil {
		return 0, err
	}

	return version, nil
}

// setSchemaVersion records a schema version in a transaction
func (s *Store) setSchemaVersion(tx *sql.Tx, version int) error {
	_, err := tx.Exec("INSERT INTO schema_version (version) VALUES (?)", version)
	return err
}

// Transaction executes a function within a transaction
func (s *Store) Transaction(fn func(*sql.Tx) error) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := fn(tx); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	return nil
}

// Poem is a corpus poem from the raw store
type Poem struct {
	ID                int64
	Title             string
	Author            string
	Paragraphs        []string
	FullText          string
	AuthorDesc        string
	DataStatus        string
	PreClassification string
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// Author is a corpus author biography
type Author struct {
	Name             string
	Description      string
	ShortDescription string
	CreatedAt        time.Time
}

// Annotation is one model's result for one poem
type Annotation struct {
	ID              int64
	PoemID          int64
	ModelIdentifier string
	Status          string // completed | failed
	Result          string // raw annotation JSON
	ErrorMessage    string
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// Annotation status values
const (
	StatusCompleted = "completed"
	StatusFailed    = "failed"
)

// SentenceRow is the structured per-sentence detail of a completed annotation
type SentenceRow struct {
	UID        string
	Text       string
	Emotions   []EmotionLink
	Strategies []StrategyLink
}

// EmotionLink ties a sentence to an emotion category
type EmotionLink struct {
	EmotionID string
	IsPrimary bool
}

// StrategyLink ties a sentence to a social-strategy category
type StrategyLink struct {
	StrategyID   string
	StrategyType string
	IsPrimary    bool
}

// Category is one node of the taxonomy tree
type Category struct {
	ID       string
	NameZh   string
	NameEn   string
	Type     string
	ParentID string
	Level    int
}
