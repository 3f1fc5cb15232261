package transform

import (
	"errors"
	"io"

	"github.com/everywherebible/generator/internal/catalog"
	"github.com/everywherebible/generator/internal/markup"
)

// Frame is a copy of an open start tag.
type Frame struct {
	Tag   string
	Attrs markup.Attrs
}

// Item is one event travelling through the filter chain together with the
// chapter it belongs to and the open-element stack at that point.
//
// For a start event Stack holds its ancestors; for an end event the top
// of Stack is the matching start tag.
type Item struct {
	Event   markup.Event
	Chapter catalog.Chapter
	Stack   []Frame
}

// Top returns the innermost open frame.
func (it Item) Top() (Frame, bool) {
	if len(it.Stack) == 0 {
		return Frame{}, false
	}
	return it.Stack[len(it.Stack)-1], true
}

// Class is the class attribute of a start event ("" otherwise).
func (it Item) Class() string {
	if it.Event.Kind != markup.StartElement {
		return ""
	}
	return it.Event.Attrs.Value("class")
}

// Stream is a pull-based sequence of items. Next returns io.EOF once the
// stream is exhausted; any other error is terminal.
type Stream interface {
	Next() (Item, error)
}

// Filter wraps an upstream stream. Filters allocate their state when
// applied, so one Filter value can be reused across chapters.
type Filter func(Stream) Stream

// Chain applies filters in order; the first filter sits closest to src.
func Chain(src Stream, filters ...Filter) Stream {
	for _, f := range filters {
		src = f(src)
	}
	return src
}

// Attach pairs every event from src with ch. This is the first stage of
// every chain.
func Attach(src markup.Source, ch catalog.Chapter) Stream {
	return &attachStream{src: src, ch: ch}
}

type attachStream struct {
	src markup.Source
	ch  catalog.Chapter
}

func (s *attachStream) Next() (Item, error) {
	ev, err := s.src.Next()
	if err != nil {
		return Item{}, err
	}
	return Item{Event: ev, Chapter: s.ch}, nil
}

// Events strips the metadata back off so the result can be rendered.
func Events(s Stream) markup.Source {
	return eventSource{s}
}

type eventSource struct {
	s Stream
}

func (e eventSource) Next() (markup.Event, error) {
	it, err := e.s.Next()
	if err != nil {
		return markup.Event{}, err
	}
	return it.Event, nil
}

// Collect drains s into a slice.
func Collect(s Stream) ([]Item, error) {
	var out []Item
	for {
		it, err := s.Next()
		if errors.Is(err, io.EOF) {
			return out, nil
		}
		if err != nil {
			return out, err
		}
		out = append(out, it)
	}
}

// stepper is a filter's per-chapter state. step handles one upstream item
// and emits zero or more downstream items; flush runs once at end of input.
type stepper interface {
	step(it Item, emit func(Item)) error
	flush(emit func(Item)) error
}

type stepStream struct {
	src   Stream
	st    stepper
	queue []Item
	done  bool
}

func newStepStream(src Stream, st stepper) *stepStream {
	return &stepStream{src: src, st: st}
}

func (s *stepStream) emit(it Item) {
	s.queue = append(s.queue, it)
}

func (s *stepStream) Next() (Item, error) {
	for len(s.queue) == 0 {
		if s.done {
			return Item{}, io.EOF
		}
		it, err := s.src.Next()
		if errors.Is(err, io.EOF) {
			s.done = true
			if err := s.st.flush(s.emit); err != nil {
				return Item{}, err
			}
			continue
		}
		if err != nil {
			return Item{}, err
		}
		if err := s.st.step(it, s.emit); err != nil {
			return Item{}, err
		}
	}
	it := s.queue[0]
	s.queue = s.queue[1:]
	if len(s.queue) == 0 {
		s.queue = s.queue[:0:0]
	}
	return it, nil
}

// mapper is a stateless 1:1 step.
type mapper func(Item) Item

func (m mapper) step(it Item, emit func(Item)) error {
	emit(m(it))
	return nil
}

func (mapper) flush(func(Item)) error { return nil }

func mapFilter(m mapper) Filter {
	return func(src Stream) Stream { return newStepStream(src, m) }
}
