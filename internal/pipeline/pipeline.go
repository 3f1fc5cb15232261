package pipeline

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/everywherebible/generator/internal/catalog"
	"github.com/everywherebible/generator/internal/fragment"
	"github.com/everywherebible/generator/internal/search"
	"github.com/everywherebible/generator/internal/sitemap"
	"github.com/everywherebible/generator/internal/storage"
	"github.com/everywherebible/generator/internal/transform"
)

type Runner struct {
	Catalog          *catalog.Catalog
	Extractor        *Extractor
	Converter        *Converter
	Indexer          search.Indexer
	Storage          *storage.FSStorage
	SitemapGenerator *sitemap.SitemapGenerator
	Logger           *slog.Logger
	FailuresPath     string
	Workers          int
	ContinueOnError  bool
	ForceProcess     bool
	// VerifySize rejects fragments that lost too much of their source.
	VerifySize bool
	// VerifyStructure rejects fragments that are not well-formed XML with
	// exactly one chapter heading.
	VerifyStructure bool

	mu     sync.Mutex
	status RunStatus
	books  []bookTally
}

// bookTally counts chapter outcomes for one book during a run.
type bookTally struct {
	written, skipped, failed int
}

// Run generates every chapter found in archivePath. Chapters are processed
// in canonical order when Workers <= 1. The first chapter failure aborts
// the run unless ContinueOnError is set.
func (r *Runner) Run(ctx context.Context, archivePath string) error {
	if r.Extractor == nil || r.Converter == nil || r.Storage == nil {
		return errors.New("pipeline runner missing dependencies")
	}
	if r.Catalog == nil {
		r.Catalog = r.Converter.Catalog
	}

	r.status = RunStatus{RunID: uuid.NewString(), Stage: "extracting", FailuresPath: r.FailuresPath}
	r.books = make([]bookTally, r.Catalog.Len())
	logger := r.logger().With("run", r.status.RunID)

	// Create the failure log up front so users can tail it during processing.
	if r.FailuresPath != "" {
		_ = os.MkdirAll(filepath.Dir(r.FailuresPath), 0o755)
		_ = os.WriteFile(r.FailuresPath, nil, 0o644)
	}

	logger.Info("extracting archive", "archive", archivePath, "edition", r.Converter.Edition.Name)
	files, cleanup, err := r.Extractor.Extract(ctx, archivePath)
	if err != nil {
		return r.abort(err)
	}
	defer func() { _ = cleanup() }()

	chapters, sources, err := r.discover(logger, files)
	if err != nil {
		return r.abort(err)
	}
	counts := r.Catalog.ChapterCounts(chapters)
	books := 0
	for _, bc := range counts {
		if bc.Chapters > 0 {
			books++
		}
	}
	logger.Info("discovered chapters", "chapters", len(chapters), "expected", r.Catalog.TotalChapters(), "books", books, "catalog_books", r.Catalog.Len())
	for _, bc := range r.Catalog.Mismatches(counts) {
		logger.Warn("chapter count mismatch", "book", bc.Book.Name, "found", bc.Chapters, "expected", bc.Book.Chapters)
	}

	r.mu.Lock()
	r.status.Stage = "processing"
	r.status.Total = len(chapters)
	r.mu.Unlock()

	runErr := r.processAll(ctx, logger, chapters, sources)
	r.logBooks(logger)

	if r.Indexer != nil {
		if err := r.Indexer.Close(); err != nil && runErr == nil {
			runErr = fmt.Errorf("close indexer: %w", err)
		}
	}

	if runErr == nil && r.SitemapGenerator != nil {
		if err := r.SitemapGenerator.Generate(ctx, r.Catalog.Books()); err != nil {
			logger.Error("sitemap generation failed", "error", err)
			// Non-fatal: don't fail the entire run for a sitemap error.
		}
	}

	s := r.Status()
	if runErr != nil {
		r.setStage("error")
		logger.Error("generate failed", "done", s.Done, "total", s.Total, "error", runErr)
		return runErr
	}
	r.setStage("done")
	if s.Errors > 0 {
		logger.Warn("generate completed with failures", "count", s.Errors, "failures", s.FailuresPath)
	}
	logger.Info("generate done", "total", s.Total, "skipped", s.Skipped, "errors", s.Errors, "verses", s.Verses)
	return nil
}

// Status returns a snapshot of the current run's progress.
func (r *Runner) Status() RunStatus {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.status
}

// logBooks writes one summary line per book that had chapters in the run.
func (r *Runner) logBooks(logger *slog.Logger) {
	r.mu.Lock()
	tallies := append([]bookTally(nil), r.books...)
	r.mu.Unlock()
	for i, b := range r.Catalog.Books() {
		t := tallies[i]
		if t.written+t.skipped+t.failed == 0 {
			continue
		}
		logger.Info("book done", "book", b.Name, "written", t.written, "skipped", t.skipped, "failed", t.failed)
	}
}

// abort ends a run that failed before any chapter was processed.
func (r *Runner) abort(err error) error {
	r.setStage("error")
	if r.Indexer != nil {
		_ = r.Indexer.Close()
	}
	return err
}

func (r *Runner) setStage(stage string) {
	r.mu.Lock()
	r.status.Stage = stage
	r.mu.Unlock()
}

// discover maps archive files to chapters. Files that are not chapters are
// skipped; two chapter files with the same name are an error.
func (r *Runner) discover(logger *slog.Logger, files []SourceFile) ([]catalog.Chapter, map[string]string, error) {
	sources := make(map[string]string, len(files))
	names := make([]string, 0, len(files))
	for _, f := range files {
		if _, ok := r.Catalog.Recognize(f.Name); !ok {
			logger.Debug("skipping file", "path", f.RelativePath)
			continue
		}
		if prev, dup := sources[f.Name]; dup {
			return nil, nil, fmt.Errorf("duplicate chapter file %s: %s and %s", f.Name, prev, f.Path)
		}
		sources[f.Name] = f.Path
		names = append(names, f.Name)
	}
	return r.Catalog.Chapters(names), sources, nil
}

func (r *Runner) processAll(ctx context.Context, logger *slog.Logger, chapters []catalog.Chapter, sources map[string]string) error {
	workers := r.Workers
	if workers < 1 {
		workers = 1
	}
	if workers > len(chapters) {
		workers = max(len(chapters), 1)
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	jobs := make(chan catalog.Chapter)
	var wg sync.WaitGroup
	var firstErr error
	var errOnce sync.Once

	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for ch := range jobs {
				skipped, err := r.processChapter(ctx, logger, ch, sources[ch.Filename])
				if err != nil {
					if r.ContinueOnError && ctx.Err() == nil {
						r.recordFailure(logger, ch.Filename, err)
					} else {
						errOnce.Do(func() { firstErr = err })
						cancel()
					}
				}
				r.mu.Lock()
				r.status.Done++
				switch t := &r.books[ch.BookIndex]; {
				case err != nil:
					t.failed++
				case skipped:
					t.skipped++
				default:
					t.written++
				}
				r.mu.Unlock()
			}
		}()
	}

feed:
	for _, ch := range chapters {
		select {
		case jobs <- ch:
		case <-ctx.Done():
			break feed
		}
	}
	close(jobs)
	wg.Wait()

	if firstErr != nil {
		return firstErr
	}
	return ctx.Err()
}

// processChapter generates one chapter and indexes its verses. It reports
// whether the chapter was skipped because its source had not changed.
func (r *Runner) processChapter(ctx context.Context, logger *slog.Logger, ch catalog.Chapter, srcPath string) (bool, error) {
	destPath := ChapterPath(ch)
	logger.Debug("processing chapter", "chapter", ch.Title(), "source", ch.Filename, "dest", destPath)

	fail := func(err error) error {
		return &ChapterError{Filename: ch.Filename, Err: err}
	}

	src, err := os.Open(srcPath)
	if err != nil {
		return false, fail(fmt.Errorf("open source: %w", err))
	}
	defer func() { _ = src.Close() }()

	digest, err := storage.Digest(r.Converter.Edition.Name, src)
	if err != nil {
		return false, fail(err)
	}
	if !r.ForceProcess && r.Storage.CheckCache(destPath, digest) {
		logger.Debug("skipping unchanged chapter", "chapter", ch.Title())
		r.mu.Lock()
		r.status.Skipped++
		r.mu.Unlock()
		return true, r.index(ctx, logger, ch, destPath)
	}

	sourceSize, err := src.Seek(0, io.SeekEnd)
	if err != nil {
		return false, fail(fmt.Errorf("size source: %w", err))
	}
	if _, err := src.Seek(0, io.SeekStart); err != nil {
		return false, fail(fmt.Errorf("rewind source: %w", err))
	}

	if err := r.Storage.EnsureDir(ch.Slug()); err != nil {
		return false, fail(err)
	}
	out, err := r.Storage.Create(destPath)
	if err != nil {
		return false, fail(err)
	}

	// The rendered fragment is only held in memory for the structure check.
	counter := &countingWriter{w: out}
	var rendered *bytes.Buffer
	var dst io.Writer = counter
	if r.VerifyStructure {
		rendered = &bytes.Buffer{}
		dst = io.MultiWriter(counter, rendered)
	}
	if err := r.Converter.Convert(ctx, ch.Filename, src, dst); err != nil {
		_ = out.Abort()
		return false, fail(err)
	}

	var verr error
	if r.VerifyStructure {
		verr = fragment.Verify(rendered)
	}
	if verr == nil && r.VerifySize {
		verr = fragment.CheckSize(int(sourceSize), int(counter.n))
	}
	if verr != nil {
		_ = out.Abort()
		return false, fail(fmt.Errorf("verify %s: %w", destPath, verr))
	}

	if err := out.Commit(); err != nil {
		return false, fail(fmt.Errorf("write %s: %w", destPath, err))
	}
	if err := r.Storage.WriteCache(destPath, digest); err != nil {
		return false, fail(fmt.Errorf("write cache for %s: %w", destPath, err))
	}
	return false, r.index(ctx, logger, ch, destPath)
}

type countingWriter struct {
	w io.Writer
	n int64
}

func (c *countingWriter) Write(p []byte) (int, error) {
	n, err := c.w.Write(p)
	c.n += int64(n)
	return n, err
}

// index reads a written chapter back and stores its verses in the search
// index.
func (r *Runner) index(ctx context.Context, logger *slog.Logger, ch catalog.Chapter, destPath string) error {
	if r.Indexer == nil {
		return nil
	}
	f, err := os.Open(r.Storage.Path(destPath))
	if err != nil {
		return &ChapterError{Filename: ch.Filename, Err: fmt.Errorf("open %s: %w", destPath, err)}
	}
	info, err := fragment.Inspect(f)
	_ = f.Close()
	if err != nil {
		return &ChapterError{Filename: ch.Filename, Err: fmt.Errorf("inspect %s: %w", destPath, err)}
	}
	if info.Headings != 1 {
		logger.Warn("chapter heading count", "chapter", ch.Title(), "headings", info.Headings)
	}

	urlPath := "/" + destPath
	docs := make([]search.Document, 0, len(info.Verses))
	for _, v := range info.Verses {
		docs = append(docs, search.Document{
			ID:          v.ID,
			Translation: r.Converter.Edition.Name,
			Book:        ch.Book,
			BookIndex:   ch.BookIndex,
			Chapter:     ch.Number,
			Verse:       v.Number,
			Path:        urlPath,
			Text:        v.Text,
		})
	}
	if err := r.Indexer.IndexChapter(ctx, urlPath, docs); err != nil {
		return &ChapterError{Filename: ch.Filename, Err: err}
	}
	r.mu.Lock()
	r.status.Verses += len(docs)
	r.mu.Unlock()
	return nil
}

func (r *Runner) recordFailure(logger *slog.Logger, filename string, err error) {
	r.mu.Lock()
	message := strings.TrimSpace(fmt.Sprintf("%s %s: %v", r.status.RunID, filename, err))
	r.status.Errors++
	failPath := r.status.FailuresPath
	r.mu.Unlock()

	// Append to the failure log immediately so users can tail it.
	if failPath != "" {
		f, ferr := os.OpenFile(failPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
		if ferr == nil {
			_, _ = fmt.Fprintln(f, message)
			_ = f.Close()
		}
	}

	logger.Warn("chapter failed", "file", filename, "error", err)
}

func (r *Runner) logger() *slog.Logger {
	if r.Logger == nil {
		return slog.New(slog.DiscardHandler)
	}
	return r.Logger
}

// Generate converts every chapter in archivePath into outDir with the KJV
// defaults: canonical order, no search index, no sitemap, abort on the
// first failure.
func Generate(ctx context.Context, archivePath string, outDir string, logger *slog.Logger) error {
	r := &Runner{
		Extractor: NewExtractor(""),
		Converter: NewConverter(catalog.Canonical(), transform.KJV),
		Storage:   storage.NewFSStorage(outDir),
		Logger:    logger,
	}
	return r.Run(ctx, archivePath)
}
