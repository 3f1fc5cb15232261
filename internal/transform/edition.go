package transform

import (
	"fmt"
	"regexp"
	"sort"

	"github.com/everywherebible/generator/internal/catalog"
	"github.com/everywherebible/generator/internal/markup"
)

// Rename maps a class marker to its replacement (a tag for ClassTags, a
// class for ClassRenames).
type Rename struct {
	From string
	To   string
}

// Edition describes how one translation's source markup is normalized.
type Edition struct {
	Name string
	// LeadingMarker is stripped from the start of text events.
	LeadingMarker *regexp.Regexp
	// StripClasses are removed with their subtrees, in order.
	StripClasses []string
	// ClassTags promote <div class=From> to <To>, in order.
	ClassTags []Rename
	// ClassRenames rewrite class values, in order.
	ClassRenames []Rename
	// RootClass marks the content container that receives the chapter heading.
	RootClass string
	// VerseClass marks verse-number elements after renaming.
	VerseClass string
}

// KJV is the King James Version as shipped in the eBible.org HTML archive.
var KJV = Edition{
	Name:          "kjv",
	LeadingMarker: regexp.MustCompile(`^\x{00C2}\s*`),
	StripClasses:  []string{"popup", "tnav", "copyright", "chapterlabel"},
	ClassTags: []Rename{
		{From: "q", To: "blockquote"},
		{From: "p", To: "p"},
	},
	ClassRenames: []Rename{
		{From: "footnote", To: "footnotes"},
		{From: "notemark", To: "footnote"},
		{From: "verse", To: "verse-num"},
		{From: "main", To: "kjv"},
	},
	RootClass:  "kjv",
	VerseClass: "verse-num",
}

var editions = map[string]Edition{
	KJV.Name: KJV,
}

// LookupEdition returns the edition registered under name.
func LookupEdition(name string) (Edition, error) {
	e, ok := editions[name]
	if !ok {
		return Edition{}, fmt.Errorf("%w: %q", ErrUnknownTranslation, name)
	}
	return e, nil
}

// EditionNames lists the registered translations.
func EditionNames() []string {
	names := make([]string, 0, len(editions))
	for name := range editions {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// WithStripClasses returns a copy of e that also strips classes, after the
// edition's own strip passes.
func (e Edition) WithStripClasses(classes ...string) Edition {
	out := e
	out.StripClasses = append(append([]string(nil), e.StripClasses...), classes...)
	return out
}

// Filters returns the chain in application order, from the stack tracker
// to the final nesting check.
func (e Edition) Filters() []Filter {
	filters := []Filter{TrackStack(), OnlyBody()}
	if e.LeadingMarker != nil {
		filters = append(filters, StripLeading(e.LeadingMarker))
	}
	for _, class := range e.StripClasses {
		if class != "" {
			filters = append(filters, StripClass(class))
		}
	}
	for _, r := range e.ClassTags {
		filters = append(filters, ClassToTag(r.From, r.To))
	}
	for _, r := range e.ClassRenames {
		filters = append(filters, RenameClass(r.From, r.To))
	}
	filters = append(filters, TranslateVerseIDs())
	if e.RootClass != "" {
		filters = append(filters, InjectChapterHeader(e.RootClass))
	}
	if e.VerseClass != "" {
		filters = append(filters, WrapVerses(e.VerseClass))
	}
	return append(filters, CheckNesting())
}

// Transform attaches the metadata for filename to events and runs them
// through the edition's chain.
func (e Edition) Transform(cat *catalog.Catalog, filename string, events markup.Source) (Stream, error) {
	ch, err := cat.Parts(filename)
	if err != nil {
		return nil, err
	}
	return Chain(Attach(events, ch), e.Filters()...), nil
}
