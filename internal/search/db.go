package search

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"
)

// schema drops and recreates all tables. The index is rebuilt from scratch
// on each generate run so there is no need for migrations.
const schema = `
DROP TRIGGER IF EXISTS verses_au;
DROP TRIGGER IF EXISTS verses_ad;
DROP TRIGGER IF EXISTS verses_ai;
DROP TABLE IF EXISTS verses_fts;
DROP TABLE IF EXISTS verses;

CREATE TABLE verses (
	id TEXT PRIMARY KEY,
	translation TEXT NOT NULL,
	book TEXT NOT NULL,
	book_index INTEGER NOT NULL,
	chapter INTEGER NOT NULL,
	verse INTEGER NOT NULL,
	path TEXT NOT NULL,
	text TEXT NOT NULL
);

CREATE INDEX verses_order ON verses (book_index, chapter, verse);
CREATE INDEX verses_path ON verses (path);

CREATE VIRTUAL TABLE verses_fts USING fts5(
	text,
	content='verses',
	content_rowid='rowid'
);

CREATE TRIGGER verses_ai AFTER INSERT ON verses BEGIN
	INSERT INTO verses_fts(rowid, text)
	VALUES (new.rowid, new.text);
END;

CREATE TRIGGER verses_ad AFTER DELETE ON verses BEGIN
	INSERT INTO verses_fts(verses_fts, rowid, text)
	VALUES ('delete', old.rowid, old.text);
END;

CREATE TRIGGER verses_au AFTER UPDATE ON verses BEGIN
	INSERT INTO verses_fts(verses_fts, rowid, text)
	VALUES ('delete', old.rowid, old.text);
	INSERT INTO verses_fts(rowid, text)
	VALUES (new.rowid, new.text);
END;
`

func openDB(path string) (*sql.DB, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create db dir: %w", err)
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open search db: %w", err)
	}
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("set WAL mode: %w", err)
	}
	if _, err := db.Exec("PRAGMA busy_timeout=5000"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("set busy timeout: %w", err)
	}
	return db, nil
}
