package pipeline

import (
	"context"
	"fmt"
	"io"

	"github.com/everywherebible/generator/internal/catalog"
	"github.com/everywherebible/generator/internal/markup"
	"github.com/everywherebible/generator/internal/transform"
)

// Converter turns one chapter file into its HTML fragment.
type Converter struct {
	Catalog *catalog.Catalog
	Edition transform.Edition
}

func NewConverter(cat *catalog.Catalog, edition transform.Edition) *Converter {
	if cat == nil {
		cat = catalog.Canonical()
	}
	return &Converter{Catalog: cat, Edition: edition}
}

// Convert parses src, runs the edition's filter chain and writes the
// rendered fragment to w in one streaming pass. filename selects the
// chapter metadata.
func (c *Converter) Convert(ctx context.Context, filename string, src io.Reader, w io.Writer) error {
	stream, err := c.Edition.Transform(c.Catalog, filename, markup.NewParser(contextReader{ctx: ctx, r: src}))
	if err != nil {
		return err
	}
	if err := markup.Render(w, transform.Events(stream)); err != nil {
		return fmt.Errorf("render %s: %w", filename, err)
	}
	return nil
}

// contextReader stops reading once ctx is done.
type contextReader struct {
	ctx context.Context
	r   io.Reader
}

func (c contextReader) Read(p []byte) (int, error) {
	if err := c.ctx.Err(); err != nil {
		return 0, err
	}
	return c.r.Read(p)
}
