package transform

import (
	"errors"
	"strings"
	"testing"

	"github.com/everywherebible/generator/internal/catalog"
	"github.com/everywherebible/generator/internal/markup"
)

const sampleChapter = `<!DOCTYPE html>
<html><head><title>Genesis 1</title></head><body>
<ul class="tnav"><li><a href="index.htm">Index</a></li></ul>
<div class="main">
<div class="chapterlabel" id="V0">1</div>
<div class="p">
<span class="verse" id="V1">1&#160;</span>Â In the beginning<a href="#FN1" class="notemark">*<span class="popup">note</span></a> God created.
<span class="verse" id="V2">2&#160;</span>And the earth.
</div>
<div class="q">Let there be light.</div>
<div class="footnote"><p class="f" id="FN1"><a href="#V1">1:1</a> note text</p></div>
</div>
<div class="copyright">public domain</div>
</body></html>`

func genesis1(t *testing.T) catalog.Chapter {
	t.Helper()
	ch, err := catalog.Canonical().Parts("GEN1.htm")
	if err != nil {
		t.Fatalf("Parts: %v", err)
	}
	return ch
}

func run(t *testing.T, src string, filters ...Filter) string {
	t.Helper()
	s := Chain(Attach(markup.NewParser(strings.NewReader(src)), genesis1(t)), filters...)
	var b strings.Builder
	if err := markup.Render(&b, Events(s)); err != nil {
		t.Fatalf("render: %v", err)
	}
	return b.String()
}

func TestTrackStackSnapshots(t *testing.T) {
	src := `<div class="a"><p>x</p></div>`
	items, err := Collect(Chain(Attach(markup.NewParser(strings.NewReader(src)), genesis1(t)), TrackStack()))
	if err != nil {
		t.Fatalf("Collect: %v", err)
	}
	depths := []int{0, 1, 2, 2, 1}
	if len(items) != len(depths) {
		t.Fatalf("expected %d items, got %d", len(depths), len(items))
	}
	for i, it := range items {
		if len(it.Stack) != depths[i] {
			t.Fatalf("item %d (%v %s): stack depth %d, want %d", i, it.Event.Kind, it.Event.Tag, len(it.Stack), depths[i])
		}
	}
	last := items[len(items)-1]
	if top, _ := last.Top(); top.Tag != "div" || top.Attrs.Value("class") != "a" {
		t.Fatalf("end event should see its start on top, got %+v", top)
	}
	if items[0].Chapter.Book != "Genesis" || items[0].Chapter.Number != 1 {
		t.Fatalf("metadata not attached: %+v", items[0].Chapter)
	}
}

func TestTrackStackImbalance(t *testing.T) {
	events := markup.FromSlice([]markup.Event{
		markup.NewStart("div"),
		markup.NewEnd("p"),
	})
	_, err := Collect(Chain(Attach(events, genesis1(t)), TrackStack()))
	var imbalance *StackImbalanceError
	if !errors.As(err, &imbalance) {
		t.Fatalf("expected StackImbalanceError, got %v", err)
	}
	if imbalance.Want != "div" || imbalance.Got != "p" {
		t.Fatalf("unexpected error fields: %+v", imbalance)
	}
}

func TestOnlyBody(t *testing.T) {
	got := run(t, `<html><head><title>t</title></head><body><p>x</p></body></html>`, TrackStack(), OnlyBody())
	if got != "<p>x</p>" {
		t.Fatalf("unexpected output: %q", got)
	}
}

func TestStripLeading(t *testing.T) {
	got := run(t, `<p>Â  In the beginning</p><p>keep Â here</p>`, StripLeading(KJV.LeadingMarker))
	if got != "<p>In the beginning</p><p>keep Â here</p>" {
		t.Fatalf("unexpected output: %q", got)
	}
}

func TestTextTransform(t *testing.T) {
	got := run(t, `<p class="a">abc</p>`, TextTransform(strings.ToUpper))
	if got != `<p class="a">ABC</p>` {
		t.Fatalf("unexpected output: %q", got)
	}
}

func TestStripClass(t *testing.T) {
	got := run(t, `<div><span class="popup">a<b>b</b></span>c<span class="other">d</span></div>`, TrackStack(), StripClass("popup"))
	if got != `<div>c<span class="other">d</span></div>` {
		t.Fatalf("unexpected output: %q", got)
	}
}

func TestStripClassAbsentIsIdentity(t *testing.T) {
	src := `<div class="p"><span class="verse" id="V1">1</span>text<br/></div>`
	before := run(t, src, TrackStack())
	after := run(t, src, TrackStack(), StripClass("absent"))
	if before != after {
		t.Fatalf("stripping an absent class changed output:\n%s\n%s", before, after)
	}
}

func TestStripClassNestedSameClassLeaks(t *testing.T) {
	// The inner end tag ends suppression; the rest of the outer region
	// passes through.
	got := run(t, `<div class="x"><div class="x">a</div>b</div>c`, TrackStack(), StripClass("x"))
	if got != "bc" {
		t.Fatalf("unexpected output: %q", got)
	}
}

func TestClassToTag(t *testing.T) {
	got := run(t, `<div class="q" id="k">x<div class="p">y</div></div><span class="q">z</span>`,
		TrackStack(), ClassToTag("q", "blockquote"), ClassToTag("p", "p"))
	want := `<blockquote id="k">x<p>y</p></blockquote><span class="q">z</span>`
	if got != want {
		t.Fatalf("unexpected output:\n got %q\nwant %q", got, want)
	}
}

func TestRenameClass(t *testing.T) {
	got := run(t, `<a href="#FN1" class="notemark">*</a><div class="footnote">n</div>`,
		RenameClass("footnote", "footnotes"), RenameClass("notemark", "footnote"))
	want := `<a href="#FN1" class="footnote">*</a><div class="footnotes">n</div>`
	if got != want {
		t.Fatalf("unexpected output:\n got %q\nwant %q", got, want)
	}
}

func TestFormatVerseID(t *testing.T) {
	tests := []struct {
		book, chapter, verse int
		want                 string
	}{
		{0, 1, 1, "v01001001-1"},
		{18, 119, 176, "v19119176-1"},
		{65, 22, 21, "v66022021-1"},
	}
	for _, tt := range tests {
		if got := FormatVerseID(tt.book, tt.chapter, tt.verse); got != tt.want {
			t.Fatalf("FormatVerseID(%d, %d, %d) = %q, want %q", tt.book, tt.chapter, tt.verse, got, tt.want)
		}
		for _, id := range []string{tt.want, "vt" + tt.want[1:]} {
			b, c, v, ok := ParseVerseID(id)
			if !ok || b != tt.book || c != tt.chapter || v != tt.verse {
				t.Fatalf("ParseVerseID(%q) = %d, %d, %d, %v", id, b, c, v, ok)
			}
		}
	}
	if _, _, _, ok := ParseVerseID("FN1"); ok {
		t.Fatalf("ParseVerseID accepted a non-verse id")
	}
}

func TestTranslateVerseIDs(t *testing.T) {
	got := run(t, `<span id="V3">3</span><a href="#V3">back</a><a href="#FN1">n</a><a href="V3">rel</a>`, TranslateVerseIDs())
	want := `<span id="v01001003-1">3</span><a href="#v01001003-1">back</a><a href="#FN1">n</a><a href="V3">rel</a>`
	if got != want {
		t.Fatalf("unexpected output:\n got %q\nwant %q", got, want)
	}
}

func TestTranslateVerseIDsForwardReference(t *testing.T) {
	src := `<a href="#V3">ahead</a><span id="V3">3</span>`
	s := Chain(Attach(markup.NewParser(strings.NewReader(src)), genesis1(t)), TranslateVerseIDs())
	_, err := Collect(s)
	var unmapped *UnmappedVerseReferenceError
	if !errors.As(err, &unmapped) {
		t.Fatalf("expected UnmappedVerseReferenceError, got %v", err)
	}
	if unmapped.Href != "#V3" {
		t.Fatalf("unexpected href: %q", unmapped.Href)
	}
}

func TestInjectChapterHeader(t *testing.T) {
	got := run(t, `<div class="kjv"><p>x</p></div><div class="other"></div>`, TrackStack(), InjectChapterHeader("kjv"))
	want := `<div class="kjv"><h2>Genesis 1</h2><p>x</p></div><div class="other"></div>`
	if got != want {
		t.Fatalf("unexpected output:\n got %q\nwant %q", got, want)
	}
}

func TestWrapVerses(t *testing.T) {
	got := run(t,
		`<p><span class="verse-num" id="v01001001-1">1</span>In<span class="verse-num" id="v01001002-1">2</span>Out</p><blockquote><span class="verse-num">3</span>Q</blockquote>`,
		TrackStack(), WrapVerses("verse-num"))
	want := `<p><span class="verse" id="vt01001001-1"><span class="verse-num" id="v01001001-1">1</span>In</span>` +
		`<span class="verse" id="vt01001002-1"><span class="verse-num" id="v01001002-1">2</span>Out</span></p>` +
		`<blockquote><span class="verse"><span class="verse-num">3</span>Q</span></blockquote>`
	if got != want {
		t.Fatalf("unexpected output:\n got %q\nwant %q", got, want)
	}
}

func TestWrapVersesClosesAtEOF(t *testing.T) {
	got := run(t, `<span class="verse-num" id="v01001001-1">1</span>tail`, TrackStack(), WrapVerses("verse-num"))
	want := `<span class="verse" id="vt01001001-1"><span class="verse-num" id="v01001001-1">1</span>tail</span>`
	if got != want {
		t.Fatalf("unexpected output:\n got %q\nwant %q", got, want)
	}
}

func TestKJVMinimalChapter(t *testing.T) {
	src := `<html><body><div class="main"><div class="p"><span class="verse" id="V1">1</span>In<span class="verse" id="V2">2</span>Out</div></div></body></html>`
	got := run(t, src, KJV.Filters()...)
	want := `<div class="kjv"><h2>Genesis 1</h2><p>` +
		`<span class="verse" id="vt01001001-1"><span class="verse-num" id="v01001001-1">1</span>In</span>` +
		`<span class="verse" id="vt01001002-1"><span class="verse-num" id="v01001002-1">2</span>Out</span>` +
		`</p></div>`
	if got != want {
		t.Fatalf("unexpected output:\n got %q\nwant %q", got, want)
	}
}

func TestKJVSampleChapter(t *testing.T) {
	s, err := KJV.Transform(catalog.Canonical(), "GEN1.htm", markup.NewParser(strings.NewReader(sampleChapter)))
	if err != nil {
		t.Fatalf("Transform: %v", err)
	}
	var b strings.Builder
	if err := markup.Render(&b, Events(s)); err != nil {
		t.Fatalf("render: %v", err)
	}
	out := b.String()

	if n := strings.Count(out, "<h2>"); n != 1 {
		t.Fatalf("expected exactly one h2, got %d in:\n%s", n, out)
	}
	if !strings.Contains(out, `<div class="kjv"><h2>Genesis 1</h2>`) {
		t.Fatalf("heading not right after the kjv container:\n%s", out)
	}
	for _, gone := range []string{"tnav", "popup", "copyright", "chapterlabel", "public domain", "<body", "<title", "Â"} {
		if strings.Contains(out, gone) {
			t.Fatalf("output still contains %q:\n%s", gone, out)
		}
	}
	for _, want := range []string{
		`<span class="verse" id="vt01001001-1"><span class="verse-num" id="v01001001-1">1` + "\u00a0" + `</span>In the beginning`,
		`<a href="#FN1" class="footnote">*</a>`,
		`<div class="footnotes">`,
		`<a href="#v01001001-1">1:1</a>`,
		`<blockquote>Let there be light.</blockquote>`,
	} {
		if !strings.Contains(out, want) {
			t.Fatalf("output missing %q:\n%s", want, out)
		}
	}
	if n := strings.Count(out, `<span class="verse"`); n != 2 {
		t.Fatalf("expected 2 verse wrappers, got %d", n)
	}
}

func TestKJVWithExtraStripClasses(t *testing.T) {
	ed := KJV.WithStripClasses("footnote")
	if len(KJV.StripClasses) != 4 {
		t.Fatalf("WithStripClasses modified the shared edition")
	}
	s, err := ed.Transform(catalog.Canonical(), "GEN1.htm", markup.NewParser(strings.NewReader(sampleChapter)))
	if err != nil {
		t.Fatalf("Transform: %v", err)
	}
	var b strings.Builder
	if err := markup.Render(&b, Events(s)); err != nil {
		t.Fatalf("render: %v", err)
	}
	out := b.String()
	if strings.Contains(out, "footnotes") || strings.Contains(out, "note text") {
		t.Fatalf("footnote region should be stripped:\n%s", out)
	}
	if !strings.Contains(out, `<span class="verse" id="vt01001002-1">`) {
		t.Fatalf("verse wrapper missing:\n%s", out)
	}
}

func TestChainKeepsNesting(t *testing.T) {
	s, err := KJV.Transform(catalog.Canonical(), "GEN1.htm", markup.NewParser(strings.NewReader(sampleChapter)))
	if err != nil {
		t.Fatalf("Transform: %v", err)
	}
	items, err := Collect(s)
	if err != nil {
		t.Fatalf("Collect: %v", err)
	}
	var open []string
	for _, it := range items {
		switch it.Event.Kind {
		case markup.StartElement:
			open = append(open, it.Event.Tag)
		case markup.EndElement:
			if len(open) == 0 || open[len(open)-1] != it.Event.Tag {
				t.Fatalf("</%s> does not close the innermost element (%v)", it.Event.Tag, open)
			}
			open = open[:len(open)-1]
		}
	}
	if len(open) != 0 {
		t.Fatalf("unclosed elements: %v", open)
	}
}

func TestTransformUnrecognizedFilename(t *testing.T) {
	_, err := KJV.Transform(catalog.Canonical(), "XYZ9.htm", markup.FromSlice(nil))
	if !errors.Is(err, catalog.ErrUnrecognizedFilename) {
		t.Fatalf("expected ErrUnrecognizedFilename, got %v", err)
	}
}

func TestLookupEdition(t *testing.T) {
	ed, err := LookupEdition("kjv")
	if err != nil || ed.Name != "kjv" {
		t.Fatalf("LookupEdition(kjv) = %+v, %v", ed.Name, err)
	}
	if _, err := LookupEdition("asv"); !errors.Is(err, ErrUnknownTranslation) {
		t.Fatalf("expected ErrUnknownTranslation, got %v", err)
	}
	if names := EditionNames(); len(names) != 1 || names[0] != "kjv" {
		t.Fatalf("unexpected edition names: %v", names)
	}
}
