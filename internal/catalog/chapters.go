package catalog

import (
	"errors"
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"
)

// ErrUnrecognizedFilename is returned by Parts for names outside the
// <CODE><chapter>.<ext> scheme or with a code missing from the catalog.
var ErrUnrecognizedFilename = errors.New("unrecognized chapter filename")

var filenamePattern = regexp.MustCompile(`^([A-Z0-9]{3})(\d{1,3})\.(?:htm|html|xhtml)$`)

// Chapter is the metadata derived from one chapter filename.
type Chapter struct {
	Filename   string
	BookAbbrev string
	Book       string
	BookIndex  int
	Number     int
}

// BookSlug is the output directory name for a book: lowercased with spaces
// replaced by hyphens ("1 Samuel" -> "1-samuel").
func BookSlug(name string) string {
	return strings.ReplaceAll(strings.ToLower(name), " ", "-")
}

// Slug is the output directory name of the chapter's book.
func (ch Chapter) Slug() string {
	return BookSlug(ch.Book)
}

// Title is the display heading, e.g. "Genesis 1".
func (ch Chapter) Title() string {
	return fmt.Sprintf("%s %d", ch.Book, ch.Number)
}

// Recognize reports whether filename follows the chapter naming scheme
// with a code present in the catalog. Chapter 0 is recognized here and
// excluded later by Chapters.
func (c *Catalog) Recognize(filename string) (Chapter, bool) {
	m := filenamePattern.FindStringSubmatch(filename)
	if m == nil {
		return Chapter{}, false
	}
	book, ok := c.Book(m[1])
	if !ok {
		return Chapter{}, false
	}
	n, err := strconv.Atoi(m[2])
	if err != nil {
		return Chapter{}, false
	}
	return Chapter{
		Filename:   filename,
		BookAbbrev: book.Code,
		Book:       book.Name,
		BookIndex:  book.Index,
		Number:     n,
	}, true
}

// Parts returns the metadata for filename, failing with
// ErrUnrecognizedFilename when it is not a chapter file.
func (c *Catalog) Parts(filename string) (Chapter, error) {
	ch, ok := c.Recognize(filename)
	if !ok {
		return Chapter{}, fmt.Errorf("%w: %s", ErrUnrecognizedFilename, filename)
	}
	return ch, nil
}

// Chapters filters filenames down to processable chapters (recognized,
// number > 0) and returns them in canonical book/chapter order.
func (c *Catalog) Chapters(filenames []string) []Chapter {
	var out []Chapter
	for _, name := range filenames {
		ch, ok := c.Recognize(name)
		if !ok || ch.Number < 1 {
			continue
		}
		out = append(out, ch)
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].BookIndex != out[j].BookIndex {
			return out[i].BookIndex < out[j].BookIndex
		}
		return out[i].Number < out[j].Number
	})
	return out
}

// BookCount is the number of distinct chapters found for one book.
type BookCount struct {
	Book     Book
	Chapters int
}

// ChapterCounts counts distinct chapter numbers per book over chapters, in
// canonical order. Books without chapters are present with a zero count.
func (c *Catalog) ChapterCounts(chapters []Chapter) []BookCount {
	seen := make([]map[int]bool, len(c.books))
	for _, ch := range chapters {
		if seen[ch.BookIndex] == nil {
			seen[ch.BookIndex] = map[int]bool{}
		}
		seen[ch.BookIndex][ch.Number] = true
	}
	out := make([]BookCount, len(c.books))
	for i, b := range c.books {
		out[i] = BookCount{Book: b, Chapters: len(seen[i])}
	}
	return out
}

// Mismatches returns the counts that differ from the reference table.
func (c *Catalog) Mismatches(counts []BookCount) []BookCount {
	var out []BookCount
	for _, bc := range counts {
		if bc.Chapters != bc.Book.Chapters {
			out = append(out, bc)
		}
	}
	return out
}
