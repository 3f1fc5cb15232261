// Package fragment reads generated chapter fragments back to check their
// structure and pull out the verses they contain.
package fragment

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/antchfx/xmlquery"
	"github.com/antchfx/xpath"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"github.com/everywherebible/generator/internal/transform"
)

var (
	ErrMalformed    = errors.New("fragment is not well-formed")
	ErrHeadingCount = errors.New("fragment must contain exactly one h2")
	ErrTooShort     = errors.New("fragment is too short")
)

// MinFragmentBytes and MinSourceRatio bound the size of a fragment relative
// to the chapter file it came from.
const (
	MinFragmentBytes = 500
	MinSourceRatio   = 0.3
)

var headingExpr = xpath.MustCompile("//h2")

// Classes whose text is not part of the verse itself.
var skipClasses = map[string]bool{
	"verse-num": true,
	"footnote":  true,
}

// Verse is one span.verse wrapper.
type Verse struct {
	ID        string
	BookIndex int
	Chapter   int
	Number    int
	Text      string
}

// Info describes a parsed fragment.
type Info struct {
	Heading  string
	Headings int
	Verses   []Verse
}

// Inspect parses a fragment as HTML and collects its headings and verses.
// Attribute values are written unescaped, so fragments are not always
// well-formed XML; Inspect accepts them regardless.
func Inspect(r io.Reader) (Info, error) {
	body := &html.Node{Type: html.ElementNode, Data: "body", DataAtom: atom.Body}
	nodes, err := html.ParseFragment(r, body)
	if err != nil {
		return Info{}, fmt.Errorf("parse fragment: %w", err)
	}
	var info Info
	for _, n := range nodes {
		info.collect(n)
	}
	return info, nil
}

func (i *Info) collect(n *html.Node) {
	if n.Type == html.ElementNode {
		switch {
		case n.DataAtom == atom.H2:
			i.Headings++
			if i.Headings == 1 {
				var b strings.Builder
				text(&b, n, false)
				i.Heading = strings.TrimSpace(b.String())
			}
			return
		case n.DataAtom == atom.Span && attr(n, "class") == "verse":
			v := Verse{ID: attr(n, "id")}
			if book, chapter, verse, ok := transform.ParseVerseID(v.ID); ok {
				v.BookIndex, v.Chapter, v.Number = book, chapter, verse
			}
			var b strings.Builder
			text(&b, n, true)
			v.Text = strings.Join(strings.Fields(b.String()), " ")
			i.Verses = append(i.Verses, v)
			return
		}
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		i.collect(c)
	}
}

// text appends the character data below n. With skip set, verse numbers
// and footnote markers are left out.
func text(b *strings.Builder, n *html.Node, skip bool) {
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		switch c.Type {
		case html.TextNode:
			b.WriteString(c.Data)
			if skip {
				b.WriteByte(' ')
			}
		case html.ElementNode:
			if !skip || !skipClasses[attr(c, "class")] {
				text(b, c, skip)
			}
		}
	}
}

func attr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}

// Verify checks that a fragment is well-formed XML with exactly one chapter
// heading. Generated chapters only pass when their source had a root
// container and no entity references in attribute values.
func Verify(r io.Reader) error {
	doc, err := xmlquery.Parse(io.MultiReader(
		strings.NewReader("<html><body>"),
		r,
		strings.NewReader("</body></html>"),
	))
	if err != nil {
		return fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if n := len(xmlquery.QuerySelectorAll(doc, headingExpr)); n != 1 {
		return fmt.Errorf("%w: found %d", ErrHeadingCount, n)
	}
	return nil
}

// CheckSize reports fragments that lost too much of their source.
func CheckSize(sourceLen, fragmentLen int) error {
	if fragmentLen <= MinFragmentBytes {
		return fmt.Errorf("%w: %d bytes", ErrTooShort, fragmentLen)
	}
	if float64(fragmentLen) < MinSourceRatio*float64(sourceLen) {
		return fmt.Errorf("%w: %d of %d source bytes", ErrTooShort, fragmentLen, sourceLen)
	}
	return nil
}
