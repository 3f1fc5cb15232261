package markup

import (
	"bufio"
	"errors"
	"io"
	"iter"

	"golang.org/x/net/html"
)

// Fragments renders src lazily. Start, end and text events become HTML;
// comments, CDATA and XML declarations produce nothing. Attribute values
// are written as stored, without escaping. Every start tag gets a literal
// closing tag, including void elements.
func Fragments(src Source) iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		for {
			ev, err := src.Next()
			if errors.Is(err, io.EOF) {
				return
			}
			if err != nil {
				yield("", err)
				return
			}
			s := renderEvent(ev)
			if s == "" {
				continue
			}
			if !yield(s, nil) {
				return
			}
		}
	}
}

// Render writes src to w as it is pulled.
func Render(w io.Writer, src Source) error {
	bw := bufio.NewWriter(w)
	for s, err := range Fragments(src) {
		if err != nil {
			return err
		}
		if _, err := bw.WriteString(s); err != nil {
			return err
		}
	}
	return bw.Flush()
}

func renderEvent(ev Event) string {
	switch ev.Kind {
	case StartElement:
		return string(appendStart(nil, ev))
	case EndElement:
		return "</" + ev.Tag + ">"
	case Text:
		return html.EscapeString(ev.Data)
	}
	return ""
}

func appendStart(b []byte, ev Event) []byte {
	b = append(b, '<')
	b = append(b, ev.Tag...)
	for _, attr := range ev.Attrs {
		b = append(b, ' ')
		b = append(b, attr.Name...)
		b = append(b, '=', '"')
		b = append(b, attr.Value...)
		b = append(b, '"')
	}
	return append(b, '>')
}
