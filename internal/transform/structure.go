package transform

import (
	"regexp"

	"github.com/everywherebible/generator/internal/markup"
)

// TrackStack fills Item.Stack. A start event sees its ancestors and is
// pushed afterwards; an end event sees its matching start on top and pops
// it afterwards.
func TrackStack() Filter {
	return func(src Stream) Stream { return newStepStream(src, &stackTracker{}) }
}

type stackTracker struct {
	stack []Frame
}

func (t *stackTracker) step(it Item, emit func(Item)) error {
	snapshot := make([]Frame, len(t.stack))
	copy(snapshot, t.stack)
	it.Stack = snapshot

	switch it.Event.Kind {
	case markup.StartElement:
		t.stack = append(t.stack, Frame{Tag: it.Event.Tag, Attrs: it.Event.Attrs.Clone()})
	case markup.EndElement:
		if len(t.stack) == 0 {
			return &StackImbalanceError{Got: it.Event.Tag}
		}
		if top := t.stack[len(t.stack)-1]; top.Tag != it.Event.Tag {
			return &StackImbalanceError{Want: top.Tag, Got: it.Event.Tag}
		}
		t.stack = t.stack[:len(t.stack)-1]
	}
	emit(it)
	return nil
}

func (t *stackTracker) flush(func(Item)) error { return nil }

// CheckNesting verifies that the events leaving a chain are still properly
// nested. It does not touch Item.Stack.
func CheckNesting() Filter {
	return func(src Stream) Stream { return newStepStream(src, &nestingChecker{}) }
}

type nestingChecker struct {
	open []string
}

func (c *nestingChecker) step(it Item, emit func(Item)) error {
	switch it.Event.Kind {
	case markup.StartElement:
		c.open = append(c.open, it.Event.Tag)
	case markup.EndElement:
		if len(c.open) == 0 {
			return &StackImbalanceError{Got: it.Event.Tag}
		}
		if top := c.open[len(c.open)-1]; top != it.Event.Tag {
			return &StackImbalanceError{Want: top, Got: it.Event.Tag}
		}
		c.open = c.open[:len(c.open)-1]
	}
	emit(it)
	return nil
}

func (c *nestingChecker) flush(func(Item)) error { return nil }

// OnlyBody drops everything outside <body>, and the body tags themselves.
func OnlyBody() Filter {
	return func(src Stream) Stream { return newStepStream(src, &bodyFilter{}) }
}

type bodyFilter struct {
	inBody bool
}

func (b *bodyFilter) step(it Item, emit func(Item)) error {
	switch {
	case it.Event.Kind == markup.StartElement && it.Event.Tag == "body":
		b.inBody = true
	case it.Event.Kind == markup.EndElement && it.Event.Tag == "body":
		b.inBody = false
	case b.inBody:
		emit(it)
	}
	return nil
}

func (b *bodyFilter) flush(func(Item)) error { return nil }

// TextTransform applies fn to the data of every text event.
func TextTransform(fn func(string) string) Filter {
	return mapFilter(func(it Item) Item {
		if it.Event.Kind == markup.Text {
			it.Event.Data = fn(it.Event.Data)
		}
		return it
	})
}

// StripLeading removes a match of pattern from the start of text events.
// pattern must be anchored with ^.
func StripLeading(pattern *regexp.Regexp) Filter {
	return TextTransform(func(s string) string {
		if loc := pattern.FindStringIndex(s); loc != nil && loc[0] == 0 {
			return s[loc[1]:]
		}
		return s
	})
}
