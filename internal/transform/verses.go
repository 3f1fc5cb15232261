package transform

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/everywherebible/generator/internal/markup"
)

var (
	verseAnchorPattern = regexp.MustCompile(`^V(\d+)`)
	verseIDPattern     = regexp.MustCompile(`^v(\d{2})(\d{3})(\d{3})-1$`)
)

// FormatVerseID builds the global anchor for a verse: "v" + 1-based book
// number (2 digits) + chapter (3 digits) + verse (3 digits) + "-1".
func FormatVerseID(bookIndex, chapter, verse int) string {
	return fmt.Sprintf("v%02d%03d%03d-1", bookIndex+1, chapter, verse)
}

// ParseVerseID is the inverse of FormatVerseID. It also accepts the "vt"
// prefix used by verse wrappers.
func ParseVerseID(id string) (bookIndex, chapter, verse int, ok bool) {
	if rest, found := strings.CutPrefix(id, "vt"); found {
		id = "v" + rest
	}
	m := verseIDPattern.FindStringSubmatch(id)
	if m == nil {
		return 0, 0, 0, false
	}
	book, _ := strconv.Atoi(m[1])
	chapter, _ = strconv.Atoi(m[2])
	verse, _ = strconv.Atoi(m[3])
	return book - 1, chapter, verse, true
}

// TranslateVerseIDs rewrites chapter-local anchors (id="V12") to global
// ones and repoints same-document links (href="#V12") at them. A link to an
// anchor that has not been seen yet fails with UnmappedVerseReferenceError.
func TranslateVerseIDs() Filter {
	return func(src Stream) Stream {
		return newStepStream(src, &verseIDTranslator{ids: map[string]string{}})
	}
}

type verseIDTranslator struct {
	ids map[string]string
}

func (v *verseIDTranslator) step(it Item, emit func(Item)) error {
	if it.Event.Kind != markup.StartElement {
		emit(it)
		return nil
	}
	attrs := it.Event.Attrs

	if id, ok := attrs.Get("id"); ok {
		if m := verseAnchorPattern.FindStringSubmatch(id); m != nil {
			verse, err := strconv.Atoi(m[1])
			if err != nil {
				return fmt.Errorf("verse anchor %q: %w", id, err)
			}
			newID := FormatVerseID(it.Chapter.BookIndex, it.Chapter.Number, verse)
			v.ids[id] = newID
			attrs = attrs.With("id", newID)
		}
	}

	if href, ok := attrs.Get("href"); ok {
		if target, local := strings.CutPrefix(href, "#"); local && verseAnchorPattern.MatchString(target) {
			newID, seen := v.ids[target]
			if !seen {
				return &UnmappedVerseReferenceError{Href: href}
			}
			attrs = attrs.With("href", "#"+newID)
		}
	}

	it.Event.Attrs = attrs
	emit(it)
	return nil
}

func (v *verseIDTranslator) flush(func(Item)) error { return nil }

// InjectChapterHeader emits <h2>Book N</h2> right after the start tag whose
// class is rootClass.
func InjectChapterHeader(rootClass string) Filter {
	return func(src Stream) Stream { return newStepStream(src, headerInjector(rootClass)) }
}

type headerInjector string

func (h headerInjector) step(it Item, emit func(Item)) error {
	emit(it)
	if it.Event.Kind != markup.StartElement || it.Class() != string(h) {
		return nil
	}
	root := append(it.Stack[:len(it.Stack):len(it.Stack)], Frame{Tag: it.Event.Tag, Attrs: it.Event.Attrs})
	heading := Frame{Tag: "h2"}
	inner := append(root[:len(root):len(root)], heading)

	emit(Item{Event: markup.NewStart("h2"), Chapter: it.Chapter, Stack: root})
	emit(Item{Event: markup.NewText(it.Chapter.Title()), Chapter: it.Chapter, Stack: inner})
	emit(Item{Event: markup.NewEnd("h2"), Chapter: it.Chapter, Stack: inner})
	return nil
}

func (headerInjector) flush(func(Item)) error { return nil }

// WrapVerses groups each verse marker and the content after it in
// <span class="verse" id="vt...">. A wrapper closes at the next marker, at
// the end of the enclosing p or blockquote, or at end of input. At most
// one wrapper is open at a time.
func WrapVerses(markerClass string) Filter {
	return func(src Stream) Stream {
		return newStepStream(src, &verseWrapper{markerClass: markerClass})
	}
}

type verseWrapper struct {
	markerClass string
	open        *Frame
	last        Item
}

func (w *verseWrapper) step(it Item, emit func(Item)) error {
	ev := it.Event
	if ev.Kind == markup.StartElement && it.Class() == w.markerClass {
		w.close(it, emit)
		frame := Frame{Tag: "span", Attrs: markup.Attrs{{Name: "class", Value: "verse"}}}
		if id := ev.Attrs.Value("id"); id != "" {
			frame.Attrs = append(frame.Attrs, markup.Attr{Name: "id", Value: "vt" + id[1:]})
		}
		w.open = &frame
		emit(Item{
			Event:   markup.Event{Kind: markup.StartElement, Tag: frame.Tag, Attrs: frame.Attrs},
			Chapter: it.Chapter,
			Stack:   it.Stack,
		})
	}
	if ev.Kind == markup.EndElement && (ev.Tag == "p" || ev.Tag == "blockquote") {
		w.close(it, emit)
	}
	w.last = it
	emit(it)
	return nil
}

func (w *verseWrapper) flush(emit func(Item)) error {
	w.close(w.last, emit)
	return nil
}

func (w *verseWrapper) close(at Item, emit func(Item)) {
	if w.open == nil {
		return
	}
	stack := append(at.Stack[:len(at.Stack):len(at.Stack)], *w.open)
	emit(Item{Event: markup.NewEnd("span"), Chapter: at.Chapter, Stack: stack})
	w.open = nil
}
