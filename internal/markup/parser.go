package markup

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"regexp"
	"strings"

	"golang.org/x/net/html"
)

var (
	ErrMismatchedEnd = errors.New("end tag does not match open element")
	ErrUnclosed      = errors.New("element not closed before end of input")
)

// ParseError reports malformed markup. Parsing does not resume after one.
type ParseError struct {
	Line    int
	Context string
	Err     error
}

func (e *ParseError) Error() string {
	if e.Context == "" {
		return fmt.Sprintf("parse markup: line %d: %v", e.Line, e.Err)
	}
	return fmt.Sprintf("parse markup: line %d: %v near %q", e.Line, e.Err, e.Context)
}

func (e *ParseError) Unwrap() error { return e.Err }

// voidElements never have content; a bare start tag closes itself.
var voidElements = map[string]bool{
	"area": true, "base": true, "br": true, "col": true, "embed": true,
	"hr": true, "img": true, "input": true, "link": true, "meta": true,
	"param": true, "source": true, "track": true, "wbr": true,
}

var (
	cdataOpen     = []byte("<![CDATA[")
	cdataClose    = []byte("]]>")
	pseudoAttr    = regexp.MustCompile(`([A-Za-z]+)\s*=\s*(?:"([^"]*)"|'([^']*)')`)
	contextLength = 40
)

// Parser pulls events out of an HTML or XHTML stream. It reads the input
// incrementally, so the first event is available before the whole document
// has been consumed.
//
// Runs of character data of the same kind (text or CDATA) are coalesced
// into one event. Self-closing and void elements yield a start event
// followed immediately by an end event. Doctype declarations and processing
// instructions other than <?xml ...?> are skipped.
type Parser struct {
	z       *html.Tokenizer
	open    []string
	pending []Event
	line    int
	err     error
}

func NewParser(r io.Reader) *Parser {
	z := html.NewTokenizer(r)
	z.AllowCDATA(true)
	return &Parser{z: z, line: 1}
}

// Next returns the next event, io.EOF at the end of a well-formed document,
// or a *ParseError.
func (p *Parser) Next() (Event, error) {
	ev, err := p.read()
	if err != nil {
		return Event{}, err
	}
	if ev.Kind != Text && ev.Kind != CDATA {
		return ev, nil
	}

	var b strings.Builder
	b.WriteString(ev.Data)
	for {
		next, err := p.read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return Event{}, err
		}
		if next.Kind != ev.Kind {
			p.pending = append([]Event{next}, p.pending...)
			break
		}
		b.WriteString(next.Data)
	}
	ev.Data = b.String()
	return ev, nil
}

func (p *Parser) read() (Event, error) {
	for {
		if len(p.pending) > 0 {
			ev := p.pending[0]
			p.pending = p.pending[1:]
			return ev, nil
		}
		if p.err != nil {
			return Event{}, p.err
		}
		if err := p.scan(); err != nil {
			p.err = err
		}
	}
}

// scan tokenizes one token and queues the events it produces.
func (p *Parser) scan() error {
	tt := p.z.Next()
	raw := p.z.Raw()
	line := p.line
	p.line += bytes.Count(raw, []byte{'\n'})
	context := string(raw)
	if len(context) > contextLength {
		context = context[:contextLength]
	}

	switch tt {
	case html.ErrorToken:
		err := p.z.Err()
		if !errors.Is(err, io.EOF) {
			return &ParseError{Line: line, Err: err}
		}
		if len(p.open) > 0 {
			return &ParseError{Line: line, Context: "<" + p.open[len(p.open)-1] + ">", Err: ErrUnclosed}
		}
		return io.EOF

	case html.TextToken:
		// CDATA content is literal: entity references inside it stay as written.
		if inner, ok := bytes.CutPrefix(raw, cdataOpen); ok {
			inner = bytes.TrimSuffix(inner, cdataClose)
			inner = bytes.ReplaceAll(inner, []byte("\r\n"), []byte("\n"))
			p.pending = append(p.pending, Event{Kind: CDATA, Data: string(inner)})
			return nil
		}
		p.pending = append(p.pending, Event{Kind: Text, Data: string(p.z.Text())})

	case html.StartTagToken, html.SelfClosingTagToken:
		ev := p.startEvent()
		p.pending = append(p.pending, ev)
		if tt == html.SelfClosingTagToken || voidElements[ev.Tag] {
			p.pending = append(p.pending, NewEnd(ev.Tag))
		} else {
			p.open = append(p.open, ev.Tag)
		}

	case html.EndTagToken:
		name, _ := p.z.TagName()
		tag := string(name)
		if len(p.open) == 0 || p.open[len(p.open)-1] != tag {
			if voidElements[tag] {
				// Already closed when its start tag was read.
				return nil
			}
			return &ParseError{Line: line, Context: context, Err: ErrMismatchedEnd}
		}
		p.open = p.open[:len(p.open)-1]
		p.pending = append(p.pending, NewEnd(tag))

	case html.CommentToken:
		data := string(p.z.Text())
		if !strings.HasPrefix(data, "?") {
			p.pending = append(p.pending, Event{Kind: Comment, Data: data})
			return nil
		}
		if body, ok := strings.CutPrefix(data, "?xml"); ok {
			p.pending = append(p.pending, Event{Kind: XMLDecl, Decl: parseDecl(body)})
		}

	case html.DoctypeToken:
	}
	return nil
}

func (p *Parser) startEvent() Event {
	name, hasAttr := p.z.TagName()
	ev := Event{Kind: StartElement, Tag: string(name)}
	for hasAttr {
		var key, val []byte
		key, val, hasAttr = p.z.TagAttr()
		ev.Attrs = append(ev.Attrs, Attr{Name: string(key), Value: string(val)})
	}
	return ev
}

func parseDecl(body string) Decl {
	body = strings.TrimSuffix(strings.TrimSpace(body), "?")
	var d Decl
	for _, m := range pseudoAttr.FindAllStringSubmatch(body, -1) {
		value := m[2]
		if value == "" {
			value = m[3]
		}
		switch m[1] {
		case "version":
			d.Version = value
		case "encoding":
			d.Encoding = value
		case "standalone":
			d.Standalone = value
		}
	}
	return d
}

// Parse is a convenience wrapper that parses all of r into memory.
func Parse(r io.Reader) ([]Event, error) {
	return Collect(NewParser(r))
}
