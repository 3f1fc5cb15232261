package markup

import (
	"errors"
	"io"
	"strings"
	"testing"
)

func kinds(events []Event) []Kind {
	out := make([]Kind, len(events))
	for i, ev := range events {
		out[i] = ev.Kind
	}
	return out
}

func TestParserBasicDocument(t *testing.T) {
	src := `<?xml version="1.0" encoding="UTF-8"?>
<!DOCTYPE html>
<html><body class="x"><p id="a" class="b">Hello &amp; welcome</p><!-- note --></body></html>`

	events, err := Parse(strings.NewReader(src))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}

	if events[0].Kind != XMLDecl {
		t.Fatalf("expected xml declaration first, got %v", events[0].Kind)
	}
	if events[0].Decl.Version != "1.0" || events[0].Decl.Encoding != "UTF-8" {
		t.Fatalf("unexpected declaration: %+v", events[0].Decl)
	}

	var p Event
	for _, ev := range events {
		if ev.Kind == StartElement && ev.Tag == "p" {
			p = ev
		}
	}
	if len(p.Attrs) != 2 || p.Attrs[0].Name != "id" || p.Attrs[1].Name != "class" {
		t.Fatalf("expected attributes in source order, got %+v", p.Attrs)
	}

	var text, comment string
	for _, ev := range events {
		switch ev.Kind {
		case Text:
			text += ev.Data
		case Comment:
			comment = ev.Data
		}
	}
	if !strings.Contains(text, "Hello & welcome") {
		t.Fatalf("expected unescaped text, got %q", text)
	}
	if comment != " note " {
		t.Fatalf("unexpected comment %q", comment)
	}
}

func TestParserSelfClosingYieldsStartAndEnd(t *testing.T) {
	events, err := Parse(strings.NewReader(`<div><br/><img src="x.png"><span/></div>`))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	want := []string{"start div", "start br", "end br", "start img", "end img", "start span", "end span", "end div"}
	if len(events) != len(want) {
		t.Fatalf("expected %d events, got %d: %+v", len(want), len(events), events)
	}
	for i, ev := range events {
		got := ev.Kind.String() + " " + ev.Tag
		if got != want[i] {
			t.Errorf("event %d: got %q, want %q", i, got, want[i])
		}
	}
}

func TestParserIgnoresExplicitVoidEndTag(t *testing.T) {
	events, err := Parse(strings.NewReader(`<p>a<br></br>b</p>`))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if len(events) != 6 {
		t.Fatalf("expected 6 events, got %d: %+v", len(events), events)
	}
}

func TestParserCDATAToggle(t *testing.T) {
	events, err := Parse(strings.NewReader(`<svg><x>before<![CDATA[one]]><![CDATA[two]]>after</x></svg>`))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	var got []string
	for _, ev := range events {
		if ev.Kind == Text || ev.Kind == CDATA {
			got = append(got, ev.Kind.String()+":"+ev.Data)
		}
	}
	want := []string{"text:before", "cdata:onetwo", "text:after"}
	if strings.Join(got, "|") != strings.Join(want, "|") {
		t.Fatalf("got %v, want %v", got, want)
	}
}

func TestParserCDATAKeepsEntities(t *testing.T) {
	events, err := Parse(strings.NewReader(`<x><![CDATA[a &amp; <b>]]> &amp; c</x>`))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	var got []string
	for _, ev := range events {
		if ev.Kind == Text || ev.Kind == CDATA {
			got = append(got, ev.Kind.String()+":"+ev.Data)
		}
	}
	want := []string{"cdata:a &amp; <b>", "text: & c"}
	if strings.Join(got, "|") != strings.Join(want, "|") {
		t.Fatalf("got %q, want %q", got, want)
	}
}

func TestParserMismatchedEndTag(t *testing.T) {
	_, err := Parse(strings.NewReader("<div>\n<p>text</div>"))
	var pe *ParseError
	if !errors.As(err, &pe) {
		t.Fatalf("expected ParseError, got %v", err)
	}
	if !errors.Is(err, ErrMismatchedEnd) {
		t.Fatalf("expected ErrMismatchedEnd, got %v", err)
	}
	if pe.Line != 2 {
		t.Fatalf("expected line 2, got %d", pe.Line)
	}
}

func TestParserUnclosedElement(t *testing.T) {
	_, err := Parse(strings.NewReader("<div><p>text</p>"))
	if !errors.Is(err, ErrUnclosed) {
		t.Fatalf("expected ErrUnclosed, got %v", err)
	}
}

func TestParserIsLazy(t *testing.T) {
	pr, pw := io.Pipe()
	p := NewParser(pr)
	go func() {
		_, _ = pw.Write([]byte("<div>"))
	}()

	ev, err := p.Next()
	if err != nil {
		t.Fatalf("Next: %v", err)
	}
	if ev.Kind != StartElement || ev.Tag != "div" {
		t.Fatalf("unexpected first event %+v", ev)
	}
	_ = pw.Close()
}

func TestParserNestingInvariant(t *testing.T) {
	src := `<html><body><div class="a"><p>x<span>y</span></p><blockquote>z</blockquote></div></body></html>`
	events, err := Parse(strings.NewReader(src))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	var open []string
	for _, ev := range events {
		switch ev.Kind {
		case StartElement:
			open = append(open, ev.Tag)
		case EndElement:
			if len(open) == 0 || open[len(open)-1] != ev.Tag {
				t.Fatalf("end %s does not match open stack %v", ev.Tag, open)
			}
			open = open[:len(open)-1]
		}
	}
	if len(open) != 0 {
		t.Fatalf("unclosed elements: %v", open)
	}
	if got := kinds(events); got[0] != StartElement {
		t.Fatalf("unexpected kinds %v", got)
	}
}
