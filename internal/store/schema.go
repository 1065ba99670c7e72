package store

// Raw corpus schema v1 - poems and authors as imported from corpus files
const rawSchemaV1 = `
-- Schema version tracking
CREATE TABLE IF NOT EXISTS schema_version (
  version INTEGER PRIMARY KEY,
  applied_at DATETIME DEFAULT CURRENT_TIMESTAMP
);

-- Poems imported from corpus files
CREATE TABLE IF NOT EXISTS poems (
  id INTEGER PRIMARY KEY,
  title TEXT NOT NULL,
  author TEXT NOT NULL,
  paragraphs TEXT NOT NULL,
  full_text TEXT NOT NULL,
  author_desc TEXT,
  data_status TEXT NOT NULL DEFAULT 'active',
  pre_classification TEXT,
  created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
  updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
);

CREATE INDEX IF NOT EXISTS idx_poems_author ON poems(author);
CREATE INDEX IF NOT EXISTS idx_poems_data_status ON poems(data_status);

-- Author biographies
CREATE TABLE IF NOT EXISTS authors (
  name TEXT PRIMARY KEY,
  description TEXT,
  short_description TEXT,
  created_at DATETIME DEFAULT CURRENT_TIMESTAMP
);
`

// Annotation schema v1 - model outputs per poem plus per-sentence detail
const annotationSchemaV1 = `
CREATE TABLE IF NOT EXISTS schema_version (
  version INTEGER PRIMARY KEY,
  applied_at DATETIME DEFAULT CURRENT_TIMESTAMP
);

-- One row per (poem, model) attempt; re-annotation overwrites in place
CREATE TABLE IF NOT EXISTS annotations (
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  poem_id INTEGER NOT NULL,
  model_identifier TEXT NOT NULL,
  status TEXT NOT NULL CHECK(status IN ('completed', 'failed')),
  annotation_result TEXT,
  error_message TEXT,
  created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
  updated_at DATETIME DEFAULT CURRENT_TIMESTAMP,
  UNIQUE(poem_id, model_identifier)
);

CREATE INDEX IF NOT EXISTS idx_annotations_model ON annotations(model_identifier, status);
CREATE INDEX IF NOT EXISTS idx_annotations_poem ON annotations(poem_id);

-- Structured per-sentence results for completed annotations
CREATE TABLE IF NOT EXISTS sentence_annotations (
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  annotation_id INTEGER NOT NULL REFERENCES annotations(id) ON DELETE CASCADE,
  poem_id INTEGER NOT NULL,
  sentence_uid TEXT NOT NULL,
  sentence_text TEXT NOT NULL,
  UNIQUE(annotation_id, sentence_uid)
);

CREATE INDEX IF NOT EXISTS idx_sentence_annotations_poem ON sentence_annotations(poem_id);

CREATE TABLE IF NOT EXISTS sentence_emotion_links (
  sentence_annotation_id INTEGER NOT NULL REFERENCES sentence_annotations(id) ON DELETE CASCADE,
  emotion_id TEXT NOT NULL,
  is_primary INTEGER NOT NULL DEFAULT 0,
  PRIMARY KEY (sentence_annotation_id, emotion_id)
);

CREATE TABLE IF NOT EXISTS sentence_strategy_links (
  sentence_annotation_id INTEGER NOT NULL REFERENCES sentence_annotations(id) ON DELETE CASCADE,
  strategy_id TEXT NOT NULL,
  strategy_type TEXT NOT NULL,
  is_primary INTEGER NOT NULL DEFAULT 0,
  PRIMARY KEY (sentence_annotation_id, strategy_id, strategy_type)
);
`

// Taxonomy schema v1 - shared category tree for emotions and strategies
const taxonomySchemaV1 = `
CREATE TABLE IF NOT EXISTS schema_version (
  version INTEGER PRIMARY KEY,
  applied_at DATETIME DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS categories (
  id TEXT PRIMARY KEY,
  name_zh TEXT NOT NULL,
  name_en TEXT,
  category_type TEXT NOT NULL,
  parent_id TEXT REFERENCES categories(id),
  level INTEGER NOT NULL DEFAULT 1
);

CREATE INDEX IF NOT EXISTS idx_categories_type ON categories(category_type);
CREATE INDEX IF NOT EXISTS idx_categories_parent ON categories(parent_id);
`
