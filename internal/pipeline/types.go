package pipeline

import (
	"fmt"
)

// SourceFile is one file unpacked from the input archive.
type SourceFile struct {
	Name         string // base name, e.g. "GEN1.htm"
	Path         string // absolute path on disk
	RelativePath string // slash-separated path inside the archive
}

// RunStatus represents the progress of a generate run.
type RunStatus struct {
	RunID        string
	Stage        string // "extracting", "processing", "done", "error"
	Total        int
	Done         int
	Skipped      int
	Errors       int
	Verses       int
	FailuresPath string
}

// ChapterError wraps a failure while generating one chapter so callers can
// distinguish it from run-level errors (e.g. to treat it as non-fatal).
type ChapterError struct {
	Filename string
	Err      error
}

func (e *ChapterError) Error() string { return fmt.Sprintf("chapter %s: %v", e.Filename, e.Err) }
func (e *ChapterError) Unwrap() error { return e.Err }
