package transform

import (
	"github.com/everywherebible/generator/internal/markup"
)

// containerTag is the generic element ClassToTag promotes.
const containerTag = "div"

// StripClass removes every element whose class is exactly class, together
// with its whole subtree.
//
// Only a single inside/outside flag is kept, not a depth counter: an
// element of the same class nested inside a stripped one ends the
// suppression at its own end tag, and the rest of the outer element leaks
// through. Source chapters never nest such regions.
func StripClass(class string) Filter {
	return func(src Stream) Stream { return newStepStream(src, &regionStripper{class: class}) }
}

type regionStripper struct {
	class  string
	inside bool
}

func (r *regionStripper) step(it Item, emit func(Item)) error {
	switch {
	case it.Event.Kind == markup.StartElement && it.Event.Attrs.Value("class") == r.class:
		r.inside = true
	case it.Event.Kind == markup.EndElement && topClass(it) == r.class:
		r.inside = false
	case !r.inside:
		emit(it)
	}
	return nil
}

func (r *regionStripper) flush(func(Item)) error { return nil }

func topClass(it Item) string {
	top, ok := it.Top()
	if !ok {
		return ""
	}
	return top.Attrs.Value("class")
}

// ClassToTag renames <div class="class"> to <tag> and drops the class
// attribute. The matching end tag is found through the stack.
func ClassToTag(class, tag string) Filter {
	return mapFilter(func(it Item) Item {
		ev := it.Event
		if ev.Tag != containerTag {
			return it
		}
		switch {
		case ev.Kind == markup.StartElement && ev.Attrs.Value("class") == class:
			it.Event = markup.Event{Kind: markup.StartElement, Tag: tag, Attrs: ev.Attrs.Without("class")}
		case ev.Kind == markup.EndElement && topClass(it) == class:
			it.Event = markup.NewEnd(tag)
		}
		return it
	})
}

// RenameClass changes class="from" to class="to" on start events. Tag names,
// other attributes and end events are left alone.
func RenameClass(from, to string) Filter {
	return mapFilter(func(it Item) Item {
		if it.Event.Kind == markup.StartElement && it.Event.Attrs.Value("class") == from {
			it.Event.Attrs = it.Event.Attrs.With("class", to)
		}
		return it
	})
}
