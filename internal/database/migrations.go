package database

import "database/sql"

// Migration represents a single schema migration step.
type Migration struct {
	Version     int
	Description string
	Up          func(tx *sql.Tx) error
}

// migrations is the ordered list of all schema migrations.
// Append new migrations to the end with incrementing Version numbers.
var migrations = []Migration{
	{
		Version:     1,
		Description: "items and users",
		Up: func(tx *sql.Tx) error {
			_, err := tx.Exec(`
CREATE TABLE IF NOT EXISTS users (
    id TEXT PRIMARY KEY,
    created INTEGER,
    karma INTEGER DEFAULT 0,
    about TEXT,
    fetched_at TEXT DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS items (
    id INTEGER PRIMARY KEY,
    type TEXT NOT NULL,
    by TEXT REFERENCES users(id),
    time INTEGER NOT NULL,
    title TEXT,
    text TEXT,
    url TEXT,
    score INTEGER DEFAULT 0,
    descendants INTEGER DEFAULT 0,
    parent INTEGER,
    deleted INTEGER DEFAULT 0,
    dead INTEGER DEFAULT 0,
    fetched_at TEXT DEFAULT (datetime('now'))
);
`)
			return err
		},
	},
	{
		Version:     2,
		Description: "sync runs",
		Up: func(tx *sql.Tx) error {
			_, err := tx.Exec(`
CREATE TABLE IF NOT EXISTS sync_runs (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    start_max_item INTEGER NOT NULL,
    target_end_item INTEGER NOT NULL,
    total_items INTEGER NOT NULL DEFAULT 0,
    last_fetched_item INTEGER NOT NULL,
    items_fetched INTEGER NOT NULL DEFAULT 0,
    status TEXT NOT NULL CHECK(status IN ('running', 'paused', 'completed', 'failed')),
    started_at TEXT DEFAULT (datetime('now')),
    completed_at TEXT,
    error_message TEXT,
    CHECK(target_end_item <= last_fetched_item AND last_fetched_item <= start_max_item)
);

-- At most one run may be running or paused.
CREATE UNIQUE INDEX IF NOT EXISTS idx_sync_runs_single_active
    ON sync_runs((status IN ('running', 'paused')))
    WHERE status IN ('running', 'paused');

CREATE INDEX IF NOT EXISTS idx_items_time ON items(time);
CREATE INDEX IF NOT EXISTS idx_items_by ON items(by);
`)
			return err
		},
	},
	{
		Version:     3,
		Description: "keyword rankings, stats and overrides",
		Up: func(tx *sql.Tx) error {
			_, err := tx.Exec(`
CREATE TABLE IF NOT EXISTS daily_keywords (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    date TEXT NOT NULL,
    keyword TEXT NOT NULL,
    stem TEXT,
    score REAL NOT NULL,
    rank INTEGER NOT NULL,
    variant_count INTEGER DEFAULT 1,
    item_count INTEGER DEFAULT 0,
    created_at TEXT DEFAULT (datetime('now')),
    UNIQUE(date, keyword)
);

CREATE TABLE IF NOT EXISTS keyword_stats (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    keyword TEXT UNIQUE NOT NULL,
    stem TEXT,
    last_item_time INTEGER NOT NULL,
    last_item_id INTEGER NOT NULL,
    first_seen_time INTEGER NOT NULL,
    total_days_appeared INTEGER NOT NULL DEFAULT 1,
    updated_at TEXT DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS keyword_variants (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    variant_keyword TEXT NOT NULL,
    variant_stem TEXT UNIQUE NOT NULL,
    parent_keyword TEXT NOT NULL,
    parent_stem TEXT NOT NULL,
    created_at TEXT DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS blacklist_overrides (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    stem TEXT UNIQUE NOT NULL,
    action TEXT NOT NULL CHECK(action IN ('block', 'allow')),
    created_at TEXT DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS extraction_runs (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    date TEXT NOT NULL,
    mode TEXT NOT NULL,
    item_count INTEGER DEFAULT 0,
    keyword_count INTEGER DEFAULT 0,
    status TEXT NOT NULL CHECK(status IN ('ok', 'skipped', 'failed')),
    error_message TEXT,
    created_at TEXT DEFAULT (datetime('now'))
);

CREATE INDEX IF NOT EXISTS idx_daily_keywords_date ON daily_keywords(date);
CREATE INDEX IF NOT EXISTS idx_daily_keywords_keyword ON daily_keywords(keyword);
CREATE INDEX IF NOT EXISTS idx_keyword_variants_parent ON keyword_variants(parent_stem);
CREATE INDEX IF NOT EXISTS idx_extraction_runs_date ON extraction_runs(date);
`)
			return err
		},
	},
	{
		Version:     4,
		Description: "days counted per keyword",
		Up: func(tx *sql.Tx) error {
			_, err := tx.Exec(`
CREATE TABLE IF NOT EXISTS keyword_days (
    keyword TEXT NOT NULL,
    date TEXT NOT NULL,
    created_at TEXT DEFAULT (datetime('now')),
    PRIMARY KEY (keyword, date)
);

INSERT OR IGNORE INTO keyword_days (keyword, date)
SELECT keyword, date FROM daily_keywords;
`)
			return err
		},
	},
}

// latestVersion returns the highest migration version number.
func latestVersion() int {
	if len(migrations) == 0 {
		return 0
	}
	return migrations[len(migrations)-1].Version
}
