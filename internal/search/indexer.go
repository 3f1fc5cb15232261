package search

import "context"

// Indexer abstracts search indexing so the pipeline package does not depend
// on a specific search implementation.
type Indexer interface {
	IndexChapter(ctx context.Context, path string, verses []Document) error
	Close() error
}

// Document is one verse to be indexed for search.
type Document struct {
	ID          string
	Translation string
	Book        string
	BookIndex   int
	Chapter     int
	Verse       int
	Path        string
	Text        string
}
