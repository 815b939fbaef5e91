package parser

import (
	"bytes"
	"context"
	"errors"
	"fmt"

	"github.com/wudi/pdfimages/ir/raw"
)

// Page is one leaf of the page tree with inheritable attributes
// already resolved.
type Page struct {
	doc       *Document
	dict      raw.Dictionary
	resources raw.Dictionary
	mediaBox  []float64
	rotate    int
	number    int // 1-based
}

// Catalog returns the document's root dictionary.
func (d *Document) Catalog(ctx context.Context) (raw.Dictionary, error) {
	rootObj, ok := raw.DictGet(d.Trailer(), "Root")
	if !ok {
		return nil, errors.New("trailer has no Root")
	}
	dict, ok := d.ResolveDict(ctx, rootObj)
	if !ok {
		return nil, errors.New("Root is not a dictionary")
	}
	return dict, nil
}

// PageCount walks the page tree once and reports the number of leaves.
func (d *Document) PageCount(ctx context.Context) (int, error) {
	pages, err := d.loadPages(ctx)
	if err != nil {
		return 0, err
	}
	return len(pages), nil
}

// Page returns the n-th page, 1-based.
func (d *Document) Page(ctx context.Context, n int) (*Page, error) {
	pages, err := d.loadPages(ctx)
	if err != nil {
		return nil, err
	}
	if n < 1 || n > len(pages) {
		return nil, fmt.Errorf("page %d out of range (document has %d)", n, len(pages))
	}
	return pages[n-1], nil
}

func (d *Document) loadPages(ctx context.Context) ([]*Page, error) {
	if d.pages != nil {
		return d.pages, nil
	}
	catalog, err := d.Catalog(ctx)
	if err != nil {
		return nil, err
	}
	rootObj, ok := raw.DictGet(catalog, "Pages")
	if !ok {
		return nil, errors.New("catalog has no Pages")
	}
	root, ok := d.ResolveDict(ctx, rootObj)
	if !ok {
		return nil, errors.New("Pages is not a dictionary")
	}
	var pages []*Page
	err = d.walkPageTree(ctx, root, inherited{}, 0, &pages)
	if err != nil {
		return nil, err
	}
	d.pages = pages
	return pages, nil
}

// inherited carries the attributes a Pages node passes down to its kids.
type inherited struct {
	resources raw.Dictionary
	mediaBox  []float64
	rotate    *int
}

func (in inherited) overlay(ctx context.Context, d *Document, node raw.Dictionary) inherited {
	out := in
	if res, ok := raw.DictGet(node, "Resources"); ok {
		if dict, ok := d.ResolveDict(ctx, res); ok {
			out.resources = dict
		}
	}
	if mb, ok := raw.DictArray(node, "MediaBox"); ok {
		out.mediaBox = raw.FloatArray(mb)
	}
	if rot, ok := raw.DictInt(node, "Rotate"); ok {
		r := int(rot)
		out.rotate = &r
	}
	return out
}

const maxPageTreeDepth = 64

func (d *Document) walkPageTree(ctx context.Context, node raw.Dictionary, in inherited, depth int, out *[]*Page) error {
	if depth > maxPageTreeDepth {
		return errors.New("page tree too deep")
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	in = in.overlay(ctx, d, node)
	typ, _ := raw.DictName(node, "Type")
	if typ == "Page" {
		rotate := 0
		if in.rotate != nil {
			rotate = ((*in.rotate % 360) + 360) % 360
		}
		*out = append(*out, &Page{
			doc:       d,
			dict:      node,
			resources: in.resources,
			mediaBox:  in.mediaBox,
			rotate:    rotate,
			number:    len(*out) + 1,
		})
		return nil
	}
	kids, ok := raw.DictArray(node, "Kids")
	if !ok {
		return nil
	}
	for i := 0; i < kids.Len(); i++ {
		kidObj, _ := kids.Get(i)
		kid, ok := d.ResolveDict(ctx, kidObj)
		if !ok {
			continue
		}
		if err := d.walkPageTree(ctx, kid, in, depth+1, out); err != nil {
			return err
		}
	}
	return nil
}

func (p *Page) Number() int                { return p.number }
func (p *Page) Dict() raw.Dictionary       { return p.dict }
func (p *Page) Resources() raw.Dictionary  { return p.resources }
func (p *Page) MediaBox() []float64        { return p.mediaBox }
func (p *Page) Document() *Document        { return p.doc }

// Rotation returns the page's display rotation in degrees, reduced
// modulo 360 into [0, 360); values that are not multiples of 90 are
// not rounded.
func (p *Page) Rotation() int { return p.rotate }

// Contents returns the page's content stream with filters applied.
// An array of streams is concatenated with newline separators, as the
// pieces form a single token sequence.
func (p *Page) Contents(ctx context.Context) ([]byte, error) {
	obj, ok := raw.DictGet(p.dict, "Contents")
	if !ok {
		return nil, nil
	}
	resolved, err := p.doc.Resolve(ctx, obj)
	if err != nil {
		return nil, err
	}
	if st, ok := raw.AsStream(resolved); ok {
		return p.doc.StreamDecoded(ctx, st)
	}
	arr, ok := raw.AsArray(resolved)
	if !ok {
		return nil, errors.New("Contents is neither stream nor array")
	}
	var buf bytes.Buffer
	for i := 0; i < arr.Len(); i++ {
		item, _ := arr.Get(i)
		st, ok := p.doc.ResolveStream(ctx, item)
		if !ok {
			continue
		}
		data, err := p.doc.StreamDecoded(ctx, st)
		if err != nil {
			return nil, err
		}
		if buf.Len() > 0 {
			buf.WriteByte('\n')
		}
		buf.Write(data)
	}
	return buf.Bytes(), nil
}
