package sitemap

import (
	"context"
	"encoding/xml"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/everywherebible/generator/internal/catalog"
)

const maxSitemapURLs = 50000

type sitemapURL struct {
	XMLName xml.Name `xml:"url"`
	Loc     string   `xml:"loc"`
	LastMod string   `xml:"lastmod,omitempty"`
}

type sitemapURLSet struct {
	XMLName xml.Name     `xml:"urlset"`
	XMLNS   string       `xml:"xmlns,attr"`
	URLs    []sitemapURL `xml:"url"`
}

type sitemapIndex struct {
	XMLName  xml.Name          `xml:"sitemapindex"`
	XMLNS    string            `xml:"xmlns,attr"`
	Sitemaps []sitemapIndexRef `xml:"sitemap"`
}

type sitemapIndexRef struct {
	XMLName xml.Name `xml:"sitemap"`
	Loc     string   `xml:"loc"`
	LastMod string   `xml:"lastmod,omitempty"`
}

// SitemapGenerator creates sitemap XML files by walking the generated
// chapter tree.
type SitemapGenerator struct {
	Root    string // output directory
	SiteURL string // e.g. "https://everywherebible.org"
	Logger  *slog.Logger
}

// Generate writes one sitemap per book that has generated chapters plus a
// static sitemap and a sitemap index to {Root}/sitemaps/.
func (g *SitemapGenerator) Generate(ctx context.Context, books []catalog.Book) error {
	sitemapDir := filepath.Join(g.Root, "sitemaps")
	if err := os.MkdirAll(sitemapDir, 0o755); err != nil {
		return fmt.Errorf("create sitemaps dir: %w", err)
	}

	now := time.Now().UTC().Format("2006-01-02")
	var indexRefs []sitemapIndexRef

	// Static pages sitemap.
	staticURLs := []sitemapURL{
		{Loc: g.SiteURL + "/", LastMod: now},
	}
	for _, book := range books {
		if _, err := os.Stat(filepath.Join(g.Root, catalog.BookSlug(book.Name))); err != nil {
			continue
		}
		staticURLs = append(staticURLs, sitemapURL{
			Loc:     g.SiteURL + "/" + catalog.BookSlug(book.Name) + "/",
			LastMod: now,
		})
	}
	staticFile := "sitemap-static.xml"
	if err := g.writeSitemap(filepath.Join(sitemapDir, staticFile), staticURLs); err != nil {
		return fmt.Errorf("write static sitemap: %w", err)
	}
	indexRefs = append(indexRefs, sitemapIndexRef{
		Loc:     g.SiteURL + "/sitemaps/" + staticFile,
		LastMod: now,
	})

	// Per-book sitemaps.
	for _, book := range books {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		refs, err := g.generateBook(ctx, sitemapDir, catalog.BookSlug(book.Name))
		if err != nil {
			g.logger().Warn("sitemap book error", "book", book.Name, "error", err)
			continue
		}
		indexRefs = append(indexRefs, refs...)
	}

	// Write the sitemap index.
	idx := sitemapIndex{
		XMLNS:    "http://www.sitemaps.org/schemas/sitemap/0.9",
		Sitemaps: indexRefs,
	}
	indexPath := filepath.Join(sitemapDir, "sitemap-index.xml")
	return writeXML(indexPath, idx)
}

// generateBook creates the sitemap for one book directory. Chapters are
// listed in numeric order.
func (g *SitemapGenerator) generateBook(ctx context.Context, sitemapDir, slug string) ([]sitemapIndexRef, error) {
	bookDir := filepath.Join(g.Root, slug)
	entries, err := os.ReadDir(bookDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	type chapterEntry struct {
		number int
		url    sitemapURL
	}
	var chapters []chapterEntry
	for _, entry := range entries {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		name := entry.Name()
		if entry.IsDir() {
			continue
		}
		n, err := strconv.Atoi(strings.TrimSuffix(name, ".html"))
		if err != nil || !strings.HasSuffix(name, ".html") {
			continue
		}

		var lastmod string
		if info, err := entry.Info(); err == nil {
			lastmod = info.ModTime().UTC().Format("2006-01-02")
		}
		chapters = append(chapters, chapterEntry{
			number: n,
			url: sitemapURL{
				Loc:     fmt.Sprintf("%s/%s/%s", g.SiteURL, slug, name),
				LastMod: lastmod,
			},
		})
	}

	if len(chapters) == 0 {
		return nil, nil
	}
	sort.Slice(chapters, func(i, j int) bool { return chapters[i].number < chapters[j].number })
	urls := make([]sitemapURL, len(chapters))
	for i, ch := range chapters {
		urls[i] = ch.url
	}

	// Split into chunks if exceeding the limit.
	var refs []sitemapIndexRef
	now := time.Now().UTC().Format("2006-01-02")

	chunks := splitURLs(urls, maxSitemapURLs)
	for i, chunk := range chunks {
		filename := "sitemap-" + slug
		if len(chunks) > 1 {
			filename = fmt.Sprintf("%s-%d", filename, i+1)
		}
		filename += ".xml"

		if err := g.writeSitemap(filepath.Join(sitemapDir, filename), chunk); err != nil {
			return nil, err
		}
		refs = append(refs, sitemapIndexRef{
			Loc:     g.SiteURL + "/sitemaps/" + filename,
			LastMod: now,
		})
	}

	return refs, nil
}

func (g *SitemapGenerator) logger() *slog.Logger {
	if g.Logger == nil {
		return slog.New(slog.DiscardHandler)
	}
	return g.Logger
}

func (g *SitemapGenerator) writeSitemap(path string, urls []sitemapURL) error {
	urlset := sitemapURLSet{
		XMLNS: "http://www.sitemaps.org/schemas/sitemap/0.9",
		URLs:  urls,
	}
	return writeXML(path, urlset)
}

func writeXML(path string, v any) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer func() { _ = f.Close() }()

	if _, err := f.WriteString(xml.Header); err != nil {
		return err
	}
	enc := xml.NewEncoder(f)
	enc.Indent("", "  ")
	if err := enc.Encode(v); err != nil {
		return err
	}
	return enc.Close()
}

func splitURLs(urls []sitemapURL, maxPerFile int) [][]sitemapURL {
	if len(urls) <= maxPerFile {
		return [][]sitemapURL{urls}
	}
	var chunks [][]sitemapURL
	for i := 0; i < len(urls); i += maxPerFile {
		end := i + maxPerFile
		if end > len(urls) {
			end = len(urls)
		}
		chunks = append(chunks, urls[i:end])
	}
	return chunks
}
