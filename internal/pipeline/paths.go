package pipeline

import (
	"path"
	"strconv"
	"strings"

	"github.com/everywherebible/generator/internal/catalog"
)

// ChapterPath is the slash-separated output path of a chapter relative to
// the output directory: <book-slug>/<n>.html.
func ChapterPath(ch catalog.Chapter) string {
	return path.Join(ch.Slug(), strconv.Itoa(ch.Number)+".html")
}

// ParseChapterPath is the inverse of ChapterPath. Leading slashes are
// ignored.
func ParseChapterPath(p string) (slug string, chapter int, ok bool) {
	p = strings.TrimPrefix(p, "/")
	slug, file, found := strings.Cut(p, "/")
	if !found || slug == "" || strings.Contains(file, "/") {
		return "", 0, false
	}
	num, found := strings.CutSuffix(file, ".html")
	if !found || num == "" || (len(num) > 1 && num[0] == '0') {
		return "", 0, false
	}
	n, err := strconv.Atoi(num)
	if err != nil || n < 1 {
		return "", 0, false
	}
	return slug, n, true
}
