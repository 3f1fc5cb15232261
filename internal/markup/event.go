// Package markup turns HTML/XHTML bytes into a pull-based sequence of
// structural events and renders such a sequence back to HTML text.
package markup

import (
	"errors"
	"io"
)

// Kind identifies the shape of an Event.
type Kind int

const (
	StartElement Kind = iota + 1
	EndElement
	Text
	CDATA
	Comment
	XMLDecl
)

func (k Kind) String() string {
	switch k {
	case StartElement:
		return "start"
	case EndElement:
		return "end"
	case Text:
		return "text"
	case CDATA:
		return "cdata"
	case Comment:
		return "comment"
	case XMLDecl:
		return "xml-declaration"
	}
	return "unknown"
}

// Attr is a single attribute in source order.
type Attr struct {
	Name  string
	Value string
}

// Attrs is an ordered attribute list. Methods that change the list return
// a new slice and never modify the receiver, so an Attrs value can be shared
// between an event and the stack frames that reference it.
type Attrs []Attr

// Get returns the value of name and whether it is present.
func (a Attrs) Get(name string) (string, bool) {
	for _, attr := range a {
		if attr.Name == name {
			return attr.Value, true
		}
	}
	return "", false
}

// Value returns the value of name, or "" when absent.
func (a Attrs) Value(name string) string {
	v, _ := a.Get(name)
	return v
}

// With returns a copy of a with name set to value. An existing attribute
// keeps its position; a new one is appended.
func (a Attrs) With(name, value string) Attrs {
	out := make(Attrs, 0, len(a)+1)
	found := false
	for _, attr := range a {
		if attr.Name == name {
			attr.Value = value
			found = true
		}
		out = append(out, attr)
	}
	if !found {
		out = append(out, Attr{Name: name, Value: value})
	}
	return out
}

// Without returns a copy of a with name removed.
func (a Attrs) Without(name string) Attrs {
	out := make(Attrs, 0, len(a))
	for _, attr := range a {
		if attr.Name != name {
			out = append(out, attr)
		}
	}
	return out
}

// Clone returns an independent copy of a.
func (a Attrs) Clone() Attrs {
	if a == nil {
		return nil
	}
	out := make(Attrs, len(a))
	copy(out, a)
	return out
}

// Decl holds the pseudo-attributes of an <?xml ...?> declaration.
type Decl struct {
	Version    string
	Encoding   string
	Standalone string
}

// Event is one markup occurrence in document order. Tag and Attrs are set
// for StartElement, Tag alone for EndElement, Data for Text, CDATA and
// Comment, and Decl for XMLDecl.
type Event struct {
	Kind  Kind
	Tag   string
	Attrs Attrs
	Data  string
	Decl  Decl
}

func NewStart(tag string, attrs ...Attr) Event {
	return Event{Kind: StartElement, Tag: tag, Attrs: Attrs(attrs)}
}

func NewEnd(tag string) Event {
	return Event{Kind: EndElement, Tag: tag}
}

func NewText(data string) Event {
	return Event{Kind: Text, Data: data}
}

// Source produces events one at a time. Next returns io.EOF once the
// sequence is exhausted; any other error is terminal.
type Source interface {
	Next() (Event, error)
}

type sliceSource struct {
	events []Event
}

// FromSlice returns a Source replaying events.
func FromSlice(events []Event) Source {
	return &sliceSource{events: events}
}

func (s *sliceSource) Next() (Event, error) {
	if len(s.events) == 0 {
		return Event{}, io.EOF
	}
	ev := s.events[0]
	s.events = s.events[1:]
	return ev, nil
}

// Collect drains src into a slice.
func Collect(src Source) ([]Event, error) {
	var out []Event
	for {
		ev, err := src.Next()
		if errors.Is(err, io.EOF) {
			return out, nil
		}
		if err != nil {
			return out, err
		}
		out = append(out, ev)
	}
}
