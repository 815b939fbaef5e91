// Package extractor is the library's public surface: discover the
// images a page paints, then decode any of them to device-space
// pixels.
package extractor

import (
	"context"
	"fmt"

	"github.com/wudi/pdfimages/builder"
	"github.com/wudi/pdfimages/contentstream"
	"github.com/wudi/pdfimages/observability"
	"github.com/wudi/pdfimages/parser"
)

// DecodedImage couples the decoded raster with where the page placed
// it.
type DecodedImage struct {
	*builder.DecodedImage
	Placement contentstream.Placement
}

type Options struct {
	Logger observability.Logger
	Tracer *contentstream.Tracer
}

// Extractor binds the pipeline to one open document.
type Extractor struct {
	doc    *parser.Document
	log    observability.Logger
	tracer *contentstream.Tracer
}

func New(doc *parser.Document, opts Options) *Extractor {
	if opts.Logger == nil {
		opts.Logger = observability.NopLogger{}
	}
	return &Extractor{doc: doc, log: opts.Logger, tracer: opts.Tracer}
}

// ImagesByPage walks the content stream of page n (1-based) and
// returns the images it paints, in stream order. Form XObjects are
// entered at their Do position. Per-image decode problems do not
// surface here; only an unwalkable page fails.
func (e *Extractor) ImagesByPage(ctx context.Context, pageNum int) ([]contentstream.ImageRecord, error) {
	page, err := e.doc.Page(ctx, pageNum)
	if err != nil {
		return nil, err
	}
	content, err := page.Contents(ctx)
	if err != nil {
		return nil, fmt.Errorf("page %d contents: %w", pageNum, err)
	}
	if len(content) == 0 {
		return nil, nil
	}
	switchWH := (page.Rotation()/90)%2 != 0

	opts := []contentstream.WalkerOption{contentstream.WithLogger(e.log)}
	if e.tracer != nil {
		opts = append(opts, contentstream.WithTracer(e.tracer))
	}
	walker := contentstream.NewWalker(e.doc, opts...)
	records, err := walker.Walk(ctx, content, page.Resources(), switchWH)
	if err != nil {
		return nil, fmt.Errorf("page %d: %w", pageNum, err)
	}
	e.log.Debug("page walked",
		observability.Int("page", pageNum),
		observability.Int("images", len(records)))
	return records, nil
}

// Decode runs one record through the full pipeline with the selected
// renderer. Errors abort only this image.
func (e *Extractor) Decode(ctx context.Context, rec contentstream.ImageRecord, renderer builder.Renderer) (*DecodedImage, error) {
	b, err := e.decodeBuilder(ctx, rec.Dict, recordPayload(rec), renderer, true)
	if err != nil {
		return nil, err
	}
	defer b.CleanUp()
	result, err := b.Result()
	if err != nil {
		return nil, err
	}
	return &DecodedImage{DecodedImage: result, Placement: rec.Placement}, nil
}

// ImagesByPage is the package-level convenience form of
// (*Extractor).ImagesByPage.
func ImagesByPage(doc *parser.Document, pageNum int) ([]contentstream.ImageRecord, error) {
	return New(doc, Options{}).ImagesByPage(context.Background(), pageNum)
}

// Decode is the package-level convenience form of (*Extractor).Decode.
func Decode(doc *parser.Document, rec contentstream.ImageRecord, renderer builder.Renderer) (*DecodedImage, error) {
	return New(doc, Options{}).Decode(context.Background(), rec, renderer)
}

func recordPayload(rec contentstream.ImageRecord) []byte {
	if rec.Kind == contentstream.KindInline {
		return rec.Payload
	}
	if rec.Stream != nil {
		return rec.Stream.RawData()
	}
	return nil
}
