package web

import (
	"compress/gzip"
	"crypto/sha256"
	"embed"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"html/template"
	"io/fs"
	"log/slog"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/everywherebible/generator/internal/catalog"
	"github.com/everywherebible/generator/internal/config"
	"github.com/everywherebible/generator/internal/fragment"
	"github.com/everywherebible/generator/internal/pipeline"
	"github.com/everywherebible/generator/internal/search"
)

//go:embed templates/base.html templates/index.html templates/book.html templates/chapter.html templates/search.html templates/404.html static/site.css
var webAssets embed.FS

const siteName = "Everywhere Bible"

type Server struct {
	cfg         *config.Config
	logger      *slog.Logger
	catalog     *catalog.Catalog
	index       *template.Template
	bookPage    *template.Template
	chapterPage *template.Template
	searchPage  *template.Template
	notFound    *template.Template
	search      *search.SQLiteSearcher
}

type breadcrumb struct {
	Label string
	Href  string
}

type bookEntry struct {
	Name      string
	Slug      string
	Chapters  int
	Available bool
}

type indexView struct {
	ActiveNav   string
	Translation string
	SiteURL     string
	JSONLD      template.HTML
	Testaments  []testament
}

type testament struct {
	Label string
	Books []bookEntry
}

type chapterLink struct {
	Number    int
	Href      string
	Available bool
}

type bookView struct {
	ActiveNav   string
	Translation string
	SiteURL     string
	JSONLD      template.HTML
	Book        bookEntry
	Chapters    []chapterLink
	Breadcrumbs []breadcrumb
}

type navLink struct {
	Label string
	Href  string
}

type chapterView struct {
	ActiveNav    string
	Translation  string
	SiteURL      string
	CanonicalURL string
	JSONLD       template.HTML
	Title        string
	Body         template.HTML
	Breadcrumbs  []breadcrumb
	Prev         *navLink
	Next         *navLink
	TextHref     string
}

type searchView struct {
	ActiveNav   string
	Translation string
	SiteURL     string
	JSONLD      template.HTML
	Query       string
	Book        string
	Books       []bookEntry
	Total       uint64
	Results     []search.Result
	SearchError bool
}

func NewServer(cfg *config.Config, logger *slog.Logger) *Server {
	parse := func(name string) *template.Template {
		return template.Must(template.ParseFS(webAssets, "templates/base.html", "templates/"+name))
	}
	var searcher *search.SQLiteSearcher
	if _, err := os.Stat(cfg.IndexPath()); err != nil {
		logger.Warn("search index unavailable", "path", cfg.IndexPath(), "error", err)
	} else if searcher, err = search.NewSQLiteSearcher(cfg.IndexPath()); err != nil {
		logger.Warn("search index unavailable", "error", err)
	}
	return &Server{
		cfg:         cfg,
		logger:      logger,
		catalog:     catalog.Canonical(),
		index:       parse("index.html"),
		bookPage:    parse("book.html"),
		chapterPage: parse("chapter.html"),
		searchPage:  parse("search.html"),
		notFound:    parse("404.html"),
		search:      searcher,
	}
}

// Handler returns the full route table wrapped in request logging and gzip.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", s.handleHealth)
	mux.HandleFunc("/robots.txt", s.handleRobotsTxt)
	mux.HandleFunc("/llms.txt", s.handleLlmsTxt)
	mux.HandleFunc("/api/search", s.handleSearch)
	mux.HandleFunc("/search", s.handleSearchPage)
	mux.HandleFunc("/", s.handleBrowse)
	staticFS, _ := fs.Sub(webAssets, "static")
	staticETag := computeStaticETag()
	mux.Handle("/static/", staticCacheHandler(staticETag,
		http.StripPrefix("/static/", http.FileServer(http.FS(staticFS))),
	))
	sitemapDir := filepath.Join(s.cfg.OutputDir, "sitemaps")
	mux.Handle("/sitemaps/", http.StripPrefix("/sitemaps/", http.FileServer(http.Dir(sitemapDir))))
	return s.logRequests(gzipHandler(mux))
}

func (s *Server) ListenAndServe(addr string) error {
	s.logger.Info("listening", "addr", addr, "root", s.cfg.OutputDir)
	return http.ListenAndServe(addr, s.Handler())
}

// Close releases the search index.
func (s *Server) Close() error {
	if s.search == nil {
		return nil
	}
	return s.search.Close()
}

// handleBrowse serves the book list, per-book chapter lists and chapters.
func (s *Server) handleBrowse(w http.ResponseWriter, r *http.Request) {
	clean := path.Clean(r.URL.Path)
	if clean == "/" || clean == "/index.html" {
		s.handleIndex(w, r)
		return
	}

	segments := strings.Split(strings.Trim(clean, "/"), "/")
	book, ok := s.catalog.BookBySlug(segments[0])
	if !ok || len(segments) > 2 {
		s.renderNotFound(w, r)
		return
	}

	if len(segments) == 1 {
		if !strings.HasSuffix(r.URL.Path, "/") {
			http.Redirect(w, r, "/"+book.Slug()+"/", http.StatusMovedPermanently)
			return
		}
		s.serveBook(w, r, book)
		return
	}

	if stem, isText := strings.CutSuffix(segments[1], ".txt"); isText {
		_, n, ok := pipeline.ParseChapterPath(book.Slug() + "/" + stem + ".html")
		if !ok {
			s.renderNotFound(w, r)
			return
		}
		s.serveChapterText(w, r, book, n)
		return
	}

	_, n, ok := pipeline.ParseChapterPath(clean)
	if !ok {
		s.renderNotFound(w, r)
		return
	}
	s.serveChapter(w, r, book, n)
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	view := s.buildIndexView()
	view.ActiveNav = "home"
	view.JSONLD = buildIndexJSONLD(view.SiteURL)
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := s.index.ExecuteTemplate(w, "base", view); err != nil {
		s.logger.Error("render error", "template", "index", "error", err)
		w.WriteHeader(http.StatusInternalServerError)
	}
}

func (s *Server) serveBook(w http.ResponseWriter, r *http.Request, book catalog.Book) {
	entry := s.bookEntry(book)
	if !entry.Available {
		s.renderNotFound(w, r)
		return
	}
	view := bookView{
		ActiveNav:   "books",
		Translation: s.cfg.Translation,
		SiteURL:     s.cfg.SiteURL(),
		Book:        entry,
		Breadcrumbs: []breadcrumb{{Label: book.Name, Href: "/" + entry.Slug + "/"}},
	}
	for n := 1; n <= book.Chapters; n++ {
		rel := chapterPath(book, n)
		view.Chapters = append(view.Chapters, chapterLink{
			Number:    n,
			Href:      "/" + rel,
			Available: s.exists(rel),
		})
	}
	view.JSONLD = buildJSONLD(buildBreadcrumbJSONLD(view.SiteURL, view.Breadcrumbs))

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := s.bookPage.ExecuteTemplate(w, "base", view); err != nil {
		s.logger.Error("render error", "template", "book", "error", err)
	}
}

func (s *Server) serveChapter(w http.ResponseWriter, r *http.Request, book catalog.Book, n int) {
	rel := chapterPath(book, n)
	raw, err := os.ReadFile(s.fsPath(rel))
	if err != nil {
		s.renderNotFound(w, r)
		return
	}

	siteURL := s.cfg.SiteURL()
	view := chapterView{
		ActiveNav:    "books",
		Translation:  s.cfg.Translation,
		SiteURL:      siteURL,
		CanonicalURL: siteURL + "/" + rel,
		Title:        fmt.Sprintf("%s %d", book.Name, n),
		Body:         template.HTML(raw),
		TextHref:     "/" + strings.TrimSuffix(rel, ".html") + ".txt",
		Breadcrumbs: []breadcrumb{
			{Label: book.Name, Href: "/" + book.Slug() + "/"},
			{Label: strconv.Itoa(n), Href: "/" + rel},
		},
	}
	view.Prev, view.Next = s.neighbours(book, n)
	view.JSONLD = buildChapterJSONLD(siteURL, view.CanonicalURL, view.Title, view.Breadcrumbs)

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := s.chapterPage.ExecuteTemplate(w, "base", view); err != nil {
		s.logger.Error("render error", "template", "chapter", "error", err)
	}
}

// serveChapterText renders a chapter as "<heading>" followed by one
// "<verse> <text>" line per verse.
func (s *Server) serveChapterText(w http.ResponseWriter, r *http.Request, book catalog.Book, n int) {
	f, err := os.Open(s.fsPath(chapterPath(book, n)))
	if err != nil {
		s.renderNotFound(w, r)
		return
	}
	defer func() { _ = f.Close() }()

	info, err := fragment.Inspect(f)
	if err != nil {
		s.logger.Error("inspect chapter", "book", book.Name, "chapter", n, "error", err)
		http.Error(w, "chapter unavailable", http.StatusInternalServerError)
		return
	}

	var b strings.Builder
	b.WriteString(info.Heading)
	b.WriteString("\n\n")
	for _, v := range info.Verses {
		fmt.Fprintf(&b, "%d %s\n", v.Number, v.Text)
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = w.Write([]byte(b.String()))
}

// neighbours links to the chapters before and after book n, crossing book
// boundaries in canonical order. Missing chapters are not linked.
func (s *Server) neighbours(book catalog.Book, n int) (prev, next *navLink) {
	books := s.catalog.Books()
	link := func(b catalog.Book, c int) *navLink {
		rel := chapterPath(b, c)
		if !s.exists(rel) {
			return nil
		}
		return &navLink{Label: fmt.Sprintf("%s %d", b.Name, c), Href: "/" + rel}
	}

	switch {
	case n > 1:
		prev = link(book, n-1)
	case book.Index > 0:
		before := books[book.Index-1]
		prev = link(before, before.Chapters)
	}
	switch {
	case n < book.Chapters:
		next = link(book, n+1)
	case book.Index+1 < len(books):
		next = link(books[book.Index+1], 1)
	}
	return prev, next
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	if s.search == nil {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusServiceUnavailable)
		_ = json.NewEncoder(w).Encode(map[string]string{
			"error": "search index unavailable",
		})
		return
	}

	query := r.URL.Query().Get("q")
	book := r.URL.Query().Get("book")
	limit := parseIntQuery(r, "limit", 50)
	offset := parseIntQuery(r, "offset", 0)

	results, err := s.search.Search(r.Context(), query, book, limit, offset)
	if err != nil {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusInternalServerError)
		_ = json.NewEncoder(w).Encode(map[string]string{
			"error": err.Error(),
		})
		return
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(results)
}

func (s *Server) handleSearchPage(w http.ResponseWriter, r *http.Request) {
	idx := s.buildIndexView()
	view := searchView{
		ActiveNav:   "search",
		Translation: idx.Translation,
		SiteURL:     idx.SiteURL,
		Query:       r.URL.Query().Get("q"),
		Book:        r.URL.Query().Get("book"),
	}
	for _, t := range idx.Testaments {
		for _, b := range t.Books {
			if b.Available {
				view.Books = append(view.Books, b)
			}
		}
	}

	if view.Query != "" {
		if s.search == nil {
			view.SearchError = true
		} else {
			results, err := s.search.Search(r.Context(), view.Query, view.Book, 50, 0)
			if err != nil {
				view.SearchError = true
			} else {
				view.Total = results.Total
				view.Results = results.Results
			}
		}
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := s.searchPage.ExecuteTemplate(w, "base", view); err != nil {
		s.logger.Error("render error", "template", "search", "error", err)
	}
}

func (s *Server) renderNotFound(w http.ResponseWriter, r *http.Request) {
	view := s.buildIndexView()
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusNotFound)
	if err := s.notFound.ExecuteTemplate(w, "base", view); err != nil {
		s.logger.Error("render error", "template", "404", "error", err)
	}
}

// responseWriter wraps http.ResponseWriter to capture the status code.
type responseWriter struct {
	http.ResponseWriter
	statusCode int
	written    bool
}

func (rw *responseWriter) WriteHeader(code int) {
	if !rw.written {
		rw.statusCode = code
		rw.written = true
	}
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *responseWriter) Write(b []byte) (int, error) {
	if !rw.written {
		rw.statusCode = http.StatusOK
		rw.written = true
	}
	return rw.ResponseWriter.Write(b)
}

// Flush implements http.Flusher, delegating to the underlying writer.
func (rw *responseWriter) Flush() {
	if f, ok := rw.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rw := &responseWriter{ResponseWriter: w}
		next.ServeHTTP(rw, r)
		s.logger.Info("request",
			"method", r.Method,
			"path", path.Clean(r.URL.Path),
			"status", rw.statusCode,
			"duration", time.Since(start),
		)
	})
}

func computeStaticETag() string {
	h := sha256.New()
	entries, _ := webAssets.ReadDir("static")
	for _, entry := range entries {
		data, _ := webAssets.ReadFile("static/" + entry.Name())
		h.Write([]byte(entry.Name()))
		h.Write(data)
	}
	return `"` + hex.EncodeToString(h.Sum(nil))[:16] + `"`
}

func staticCacheHandler(etag string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Cache-Control", "public, max-age=86400")
		w.Header().Set("ETag", etag)

		if match := r.Header.Get("If-None-Match"); match == etag {
			w.WriteHeader(http.StatusNotModified)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// gzipResponseWriter conditionally compresses responses for compressible content types.
type gzipResponseWriter struct {
	http.ResponseWriter
	gw      *gzip.Writer
	sniffed bool
}

func (grw *gzipResponseWriter) WriteHeader(code int) {
	if code != http.StatusNotModified {
		grw.sniff()
	}
	grw.ResponseWriter.WriteHeader(code)
}

func (grw *gzipResponseWriter) Write(b []byte) (int, error) {
	grw.sniff()
	if grw.gw != nil {
		return grw.gw.Write(b)
	}
	return grw.ResponseWriter.Write(b)
}

func (grw *gzipResponseWriter) sniff() {
	if grw.sniffed {
		return
	}
	grw.sniffed = true

	ct := grw.ResponseWriter.Header().Get("Content-Type")
	if strings.HasPrefix(ct, "text/") ||
		strings.HasPrefix(ct, "application/json") ||
		strings.HasPrefix(ct, "application/xml") {
		grw.ResponseWriter.Header().Set("Content-Encoding", "gzip")
		grw.ResponseWriter.Header().Del("Content-Length")
	} else {
		grw.gw = nil
	}
}

func (grw *gzipResponseWriter) Flush() {
	if grw.gw != nil {
		_ = grw.gw.Flush()
	}
	if f, ok := grw.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func gzipHandler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.Contains(r.Header.Get("Accept-Encoding"), "gzip") {
			next.ServeHTTP(w, r)
			return
		}
		gw := gzip.NewWriter(w)
		grw := &gzipResponseWriter{ResponseWriter: w, gw: gw}
		next.ServeHTTP(grw, r)
		if grw.gw != nil {
			_ = grw.gw.Close()
		}
	})
}

func parseIntQuery(r *http.Request, key string, fallback int) int {
	value := r.URL.Query().Get(key)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil || parsed < 0 {
		return fallback
	}
	return parsed
}

// chapterPath mirrors pipeline.ChapterPath for a book and chapter number.
func chapterPath(book catalog.Book, n int) string {
	return pipeline.ChapterPath(catalog.Chapter{Book: book.Name, BookIndex: book.Index, Number: n})
}

func (s *Server) fsPath(rel string) string {
	return filepath.Join(s.cfg.OutputDir, filepath.FromSlash(rel))
}

func (s *Server) exists(rel string) bool {
	_, err := os.Stat(s.fsPath(rel))
	return err == nil
}

func (s *Server) bookEntry(book catalog.Book) bookEntry {
	info, err := os.Stat(s.fsPath(book.Slug()))
	return bookEntry{
		Name:      book.Name,
		Slug:      book.Slug(),
		Chapters:  book.Chapters,
		Available: err == nil && info.IsDir(),
	}
}

// oldTestamentBooks is the number of books before Matthew.
const oldTestamentBooks = 39

func (s *Server) buildIndexView() indexView {
	view := indexView{
		Translation: s.cfg.Translation,
		SiteURL:     s.cfg.SiteURL(),
		Testaments: []testament{
			{Label: "Old Testament"},
			{Label: "New Testament"},
		},
	}
	for _, book := range s.catalog.Books() {
		t := &view.Testaments[0]
		if book.Index >= oldTestamentBooks {
			t = &view.Testaments[1]
		}
		t.Books = append(t.Books, s.bookEntry(book))
	}
	return view
}

func (s *Server) handleRobotsTxt(w http.ResponseWriter, _ *http.Request) {
	siteURL := s.cfg.SiteURL()
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = fmt.Fprintf(w, `User-agent: *
Allow: /
Disallow: /api/
Disallow: /healthz

Sitemap: %s/sitemaps/sitemap-index.xml
`, siteURL)
}

func (s *Server) handleLlmsTxt(w http.ResponseWriter, _ *http.Request) {
	siteURL := s.cfg.SiteURL()
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")

	_, _ = fmt.Fprintf(w, `# %[2]s

> The %[3]s Bible, one HTML page per chapter, with verse-level anchors and full-text search.

## Content Structure

- %[1]s/{book}/: Chapters of one book
- %[1]s/{book}/{chapter}.html: One chapter
- %[1]s/search?q={query}: Search across all verses

Verse anchors have the form v{BB}{CCC}{VVV}-1: book number (2 digits), chapter (3 digits) and verse (3 digits).

## Plain Text

Replace .html with .txt on any chapter URL for one verse per line:
- %[1]s/{book}/{chapter}.txt

## Books

`, siteURL, siteName, strings.ToUpper(s.cfg.Translation))

	for _, book := range s.catalog.Books() {
		if entry := s.bookEntry(book); entry.Available {
			_, _ = fmt.Fprintf(w, "- %s (%d chapters): %s/%s/\n", book.Name, book.Chapters, siteURL, entry.Slug)
		}
	}

	_, _ = fmt.Fprint(w, `
## API

- GET /api/search?q={query}&book={book}&limit={n}&offset={n}
  Returns JSON with fields: total, results (array of {id, book, chapter, verse, path, text})
`)
}

func buildJSONLD(data any) template.HTML {
	b, err := json.Marshal(data)
	if err != nil {
		return ""
	}
	return template.HTML(`<script type="application/ld+json">` + string(b) + `</script>`)
}

func buildChapterJSONLD(siteURL, canonicalURL, title string, breadcrumbs []breadcrumb) template.HTML {
	return buildJSONLD([]any{
		buildBreadcrumbJSONLD(siteURL, breadcrumbs),
		map[string]any{
			"@context": "https://schema.org",
			"@type":    "Chapter",
			"name":     title,
			"url":      canonicalURL,
			"isPartOf": map[string]any{
				"@type": "WebSite",
				"name":  siteName,
				"url":   siteURL,
			},
		},
	})
}

func buildBreadcrumbJSONLD(siteURL string, breadcrumbs []breadcrumb) map[string]any {
	items := make([]map[string]any, 0, len(breadcrumbs))
	for i, crumb := range breadcrumbs {
		href := crumb.Href
		if href == "" {
			continue
		}
		items = append(items, map[string]any{
			"@type":    "ListItem",
			"position": i + 1,
			"name":     crumb.Label,
			"item":     siteURL + href,
		})
	}
	return map[string]any{
		"@context":        "https://schema.org",
		"@type":           "BreadcrumbList",
		"itemListElement": items,
	}
}

func buildIndexJSONLD(siteURL string) template.HTML {
	return buildJSONLD(map[string]any{
		"@context": "https://schema.org",
		"@type":    "WebSite",
		"name":     siteName,
		"url":      siteURL,
		"potentialAction": map[string]any{
			"@type":       "SearchAction",
			"target":      siteURL + "/search?q={search_term_string}",
			"query-input": "required name=search_term_string",
		},
	})
}
