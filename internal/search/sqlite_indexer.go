package search

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
)

// batchSize is the number of verses committed per transaction. A chapter is
// never split across transactions, so batches may run over.
const batchSize = 500

type SQLiteIndexer struct {
	mu         sync.Mutex
	db         *sql.DB
	insertStmt *sql.Stmt
	deleteStmt *sql.Stmt
	tx         *sql.Tx
	pending    int
}

func NewSQLiteIndexer(path string) (*SQLiteIndexer, error) {
	db, err := openDB(path)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}

	insert, err := db.Prepare(`INSERT OR REPLACE INTO verses (id, translation, book, book_index, chapter, verse, path, text) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("prepare insert: %w", err)
	}
	del, err := db.Prepare(`DELETE FROM verses WHERE path = ?`)
	if err != nil {
		_ = insert.Close()
		_ = db.Close()
		return nil, fmt.Errorf("prepare delete: %w", err)
	}

	return &SQLiteIndexer{db: db, insertStmt: insert, deleteStmt: del}, nil
}

// IndexChapter replaces every verse stored for the chapter at path with
// verses. The chapter is applied as a whole: if one verse fails, none of
// its verses are kept and earlier chapters in the batch are unaffected.
func (s *SQLiteIndexer) IndexChapter(ctx context.Context, path string, verses []Document) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.tx == nil {
		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("begin tx: %w", err)
		}
		s.tx = tx
	}

	if _, err := s.tx.ExecContext(ctx, "SAVEPOINT chapter"); err != nil {
		return fmt.Errorf("savepoint %s: %w", path, err)
	}
	if err := s.writeChapter(ctx, path, verses); err != nil {
		if _, rbErr := s.tx.ExecContext(context.WithoutCancel(ctx), "ROLLBACK TO chapter; RELEASE chapter"); rbErr != nil {
			return fmt.Errorf("%w (rollback: %v)", err, rbErr)
		}
		return err
	}
	if _, err := s.tx.ExecContext(ctx, "RELEASE chapter"); err != nil {
		return fmt.Errorf("release %s: %w", path, err)
	}

	s.pending += len(verses)
	if s.pending >= batchSize {
		return s.flush()
	}
	return nil
}

func (s *SQLiteIndexer) writeChapter(ctx context.Context, path string, verses []Document) error {
	if _, err := s.tx.StmtContext(ctx, s.deleteStmt).ExecContext(ctx, path); err != nil {
		return fmt.Errorf("clear %s: %w", path, err)
	}
	insert := s.tx.StmtContext(ctx, s.insertStmt)
	for _, v := range verses {
		if v.Path != path {
			return fmt.Errorf("index verse %s: path %q outside chapter %q", v.ID, v.Path, path)
		}
		_, err := insert.ExecContext(ctx, v.ID, v.Translation, v.Book, v.BookIndex, v.Chapter, v.Verse, v.Path, v.Text)
		if err != nil {
			return fmt.Errorf("index verse %s: %w", v.ID, err)
		}
	}
	return nil
}

func (s *SQLiteIndexer) flush() error {
	if s.tx == nil {
		return nil
	}
	err := s.tx.Commit()
	s.tx = nil
	s.pending = 0
	if err != nil {
		return fmt.Errorf("commit batch: %w", err)
	}
	return nil
}

func (s *SQLiteIndexer) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.flush(); err != nil {
		return err
	}
	_ = s.insertStmt.Close()
	_ = s.deleteStmt.Close()
	return s.db.Close()
}
