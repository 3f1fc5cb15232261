package pipeline

import (
	"testing"

	"github.com/everywherebible/generator/internal/catalog"
)

func TestChapterPath(t *testing.T) {
	cat := catalog.Canonical()
	tests := []struct {
		filename string
		want     string
	}{
		{"GEN1.htm", "genesis/1.html"},
		{"1SA3.htm", "1-samuel/3.html"},
		{"SNG8.htm", "song-of-solomon/8.html"},
		{"PSA150.htm", "psalms/150.html"},
	}
	for _, tt := range tests {
		ch, err := cat.Parts(tt.filename)
		if err != nil {
			t.Fatalf("Parts(%s): %v", tt.filename, err)
		}
		if got := ChapterPath(ch); got != tt.want {
			t.Fatalf("ChapterPath(%s) = %s, want %s", tt.filename, got, tt.want)
		}
		slug, n, ok := ParseChapterPath("/" + tt.want)
		if !ok || slug != ch.Slug() || n != ch.Number {
			t.Fatalf("ParseChapterPath(%s) = %s, %d, %v", tt.want, slug, n, ok)
		}
	}
}

func TestParseChapterPathRejects(t *testing.T) {
	for _, p := range []string{
		"",
		"genesis",
		"genesis/",
		"genesis/1",
		"genesis/0.html",
		"genesis/01.html",
		"genesis/x.html",
		"genesis/1/2.html",
		"/1.html",
	} {
		if _, _, ok := ParseChapterPath(p); ok {
			t.Fatalf("ParseChapterPath(%q) should fail", p)
		}
	}
}
