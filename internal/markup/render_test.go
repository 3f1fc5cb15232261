package markup

import (
	"bytes"
	"strings"
	"testing"
)

func TestRenderEscapesTextOnly(t *testing.T) {
	events := []Event{
		NewStart("a", Attr{Name: "href", Value: "#x&y"}, Attr{Name: "class", Value: "k"}),
		NewText(`1 < 2 & "3"`),
		NewEnd("a"),
		{Kind: Comment, Data: "dropped"},
		{Kind: CDATA, Data: "dropped"},
		{Kind: XMLDecl, Decl: Decl{Version: "1.0"}},
	}

	var b bytes.Buffer
	if err := Render(&b, FromSlice(events)); err != nil {
		t.Fatalf("Render: %v", err)
	}
	want := `<a href="#x&y" class="k">1 &lt; 2 &amp; &#34;3&#34;</a>`
	if b.String() != want {
		t.Fatalf("got %q, want %q", b.String(), want)
	}
}

func TestRenderVoidElementGetsClosingTag(t *testing.T) {
	var b bytes.Buffer
	if err := Render(&b, FromSlice([]Event{NewStart("br"), NewEnd("br")})); err != nil {
		t.Fatalf("Render: %v", err)
	}
	if b.String() != "<br></br>" {
		t.Fatalf("got %q", b.String())
	}
}

func TestFragmentsStopsEarly(t *testing.T) {
	src := FromSlice([]Event{NewStart("p"), NewText("a"), NewEnd("p")})
	var got []string
	for s, err := range Fragments(src) {
		if err != nil {
			t.Fatal(err)
		}
		got = append(got, s)
		if len(got) == 2 {
			break
		}
	}
	if strings.Join(got, "") != "<p>a" {
		t.Fatalf("got %v", got)
	}
}

func TestParseRenderRoundTrip(t *testing.T) {
	src := `<div class="main"><p id="V1">In the   beginning &amp; end</p><span class="x">y</span></div>`
	events, err := Parse(strings.NewReader(src))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}

	var b bytes.Buffer
	if err := Render(&b, FromSlice(events)); err != nil {
		t.Fatalf("Render: %v", err)
	}
	again, err := Parse(&b)
	if err != nil {
		t.Fatalf("reparse: %v", err)
	}
	if len(again) != len(events) {
		t.Fatalf("expected %d events after round trip, got %d", len(events), len(again))
	}
	for i := range events {
		a, b := events[i], again[i]
		if a.Kind != b.Kind || a.Tag != b.Tag || a.Data != b.Data {
			t.Fatalf("event %d differs: %+v vs %+v", i, a, b)
		}
	}
}
