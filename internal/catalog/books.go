// Package catalog holds the canonical 66-book table and the rules that map
// archive filenames such as "GEN1.htm" to chapter metadata.
package catalog

import (
	"sync"
)

// Book is one entry of the canonical table. Index is the 0-based position
// in canonical order; Chapters is the number of chapters the book has.
type Book struct {
	Code     string
	Name     string
	Index    int
	Chapters int
}

// Slug is the book's output directory name.
func (b Book) Slug() string {
	return BookSlug(b.Name)
}

type bookRow struct {
	code, name string
	chapters   int
}

var bookTable = [...]bookRow{
	{"GEN", "Genesis", 50},
	{"EXO", "Exodus", 40},
	{"LEV", "Leviticus", 27},
	{"NUM", "Numbers", 36},
	{"DEU", "Deuteronomy", 34},
	{"JOS", "Joshua", 24},
	{"JDG", "Judges", 21},
	{"RUT", "Ruth", 4},
	{"1SA", "1 Samuel", 31},
	{"2SA", "2 Samuel", 24},
	{"1KI", "1 Kings", 22},
	{"2KI", "2 Kings", 25},
	{"1CH", "1 Chronicles", 29},
	{"2CH", "2 Chronicles", 36},
	{"EZR", "Ezra", 10},
	{"NEH", "Nehemiah", 13},
	{"EST", "Esther", 10},
	{"JOB", "Job", 42},
	{"PSA", "Psalms", 150},
	{"PRO", "Proverbs", 31},
	{"ECC", "Ecclesiastes", 12},
	{"SNG", "Song of Solomon", 8},
	{"ISA", "Isaiah", 66},
	{"JER", "Jeremiah", 52},
	{"LAM", "Lamentations", 5},
	{"EZK", "Ezekiel", 48},
	{"DAN", "Daniel", 12},
	{"HOS", "Hosea", 14},
	{"JOL", "Joel", 3},
	{"AMO", "Amos", 9},
	{"OBA", "Obadiah", 1},
	{"JON", "Jonah", 4},
	{"MIC", "Micah", 7},
	{"NAM", "Nahum", 3},
	{"HAB", "Habakkuk", 3},
	{"ZEP", "Zephaniah", 3},
	{"HAG", "Haggai", 2},
	{"ZEC", "Zechariah", 14},
	{"MAL", "Malachi", 4},
	{"MAT", "Matthew", 28},
	{"MRK", "Mark", 16},
	{"LUK", "Luke", 24},
	{"JHN", "John", 21},
	{"ACT", "Acts", 28},
	{"ROM", "Romans", 16},
	{"1CO", "1 Corinthians", 16},
	{"2CO", "2 Corinthians", 13},
	{"GAL", "Galatians", 6},
	{"EPH", "Ephesians", 6},
	{"PHP", "Philippians", 4},
	{"COL", "Colossians", 4},
	{"1TH", "1 Thessalonians", 5},
	{"2TH", "2 Thessalonians", 3},
	{"1TI", "1 Timothy", 6},
	{"2TI", "2 Timothy", 4},
	{"TIT", "Titus", 3},
	{"PHM", "Philemon", 1},
	{"HEB", "Hebrews", 13},
	{"JAS", "James", 5},
	{"1PE", "1 Peter", 5},
	{"2PE", "2 Peter", 3},
	{"1JN", "1 John", 5},
	{"2JN", "2 John", 1},
	{"3JN", "3 John", 1},
	{"JUD", "Jude", 1},
	{"REV", "Revelation", 22},
}

// Catalog is the immutable, ordered book table. A *Catalog is safe to share
// between goroutines; nothing mutates it after construction.
type Catalog struct {
	books  []Book
	byCode map[string]int
	bySlug map[string]int
}

var canonical = sync.OnceValue(func() *Catalog {
	c := &Catalog{
		books:  make([]Book, len(bookTable)),
		byCode: make(map[string]int, len(bookTable)),
		bySlug: make(map[string]int, len(bookTable)),
	}
	for i, row := range bookTable {
		c.books[i] = Book{Code: row.code, Name: row.name, Index: i, Chapters: row.chapters}
		c.byCode[row.code] = i
		c.bySlug[BookSlug(row.name)] = i
	}
	return c
})

// Canonical returns the process-wide canonical catalog.
func Canonical() *Catalog {
	return canonical()
}

func (c *Catalog) Len() int {
	return len(c.books)
}

// Books returns the books in canonical order. The slice is a copy.
func (c *Catalog) Books() []Book {
	out := make([]Book, len(c.books))
	copy(out, c.books)
	return out
}

// Book looks a book up by its three-character code.
func (c *Catalog) Book(code string) (Book, bool) {
	i, ok := c.byCode[code]
	if !ok {
		return Book{}, false
	}
	return c.books[i], true
}

// BookBySlug looks a book up by its output directory name.
func (c *Catalog) BookBySlug(slug string) (Book, bool) {
	i, ok := c.bySlug[slug]
	if !ok {
		return Book{}, false
	}
	return c.books[i], true
}

// TotalChapters is the sum of the reference chapter counts (1189).
func (c *Catalog) TotalChapters() int {
	total := 0
	for _, b := range c.books {
		total += b.Chapters
	}
	return total
}
