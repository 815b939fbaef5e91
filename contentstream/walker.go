package contentstream

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math"

	"github.com/wudi/pdfimages/coords"
	"github.com/wudi/pdfimages/ir/raw"
	"github.com/wudi/pdfimages/observability"
	"github.com/wudi/pdfimages/scanner"
)

// ErrMalformedContent marks an unrecoverable parse error in a page's
// content stream; the page's walk is aborted.
var ErrMalformedContent = errors.New("malformed content stream")

// Source supplies indirect-object resolution and stream decoding;
// *parser.Document satisfies it.
type Source interface {
	Resolve(ctx context.Context, obj raw.Object) (raw.Object, error)
	StreamDecoded(ctx context.Context, st raw.Stream) ([]byte, error)
}

// Walker interprets the subset of content-stream operators that affect
// image discovery: graphics-state handling (q, Q, cm), XObject
// invocation (Do) with Form recursion, and inline images (BI..ID..EI).
// All other operators are ignored.
type Walker struct {
	src      Source
	log      observability.Logger
	tracer   *Tracer
	maxDepth int
}

type WalkerOption func(*Walker)

func WithLogger(log observability.Logger) WalkerOption {
	return func(w *Walker) { w.log = log }
}

func WithTracer(t *Tracer) WalkerOption {
	return func(w *Walker) { w.tracer = t }
}

func WithMaxFormDepth(depth int) WalkerOption {
	return func(w *Walker) { w.maxDepth = depth }
}

func NewWalker(src Source, opts ...WalkerOption) *Walker {
	w := &Walker{src: src, log: observability.NopLogger{}, maxDepth: 20}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Walk interprets content and returns the images it paints, in stream
// order. switchWH swaps the user-space extent for pages whose rotation
// is an odd multiple of 90 degrees.
func (w *Walker) Walk(ctx context.Context, content []byte, resources raw.Dictionary, switchWH bool) ([]ImageRecord, error) {
	gs := NewGraphicsState()
	var records []ImageRecord
	if err := w.walk(ctx, content, resources, gs, switchWH, 0, &records); err != nil {
		return nil, err
	}
	return records, nil
}

// WalkFrom is Walk with a caller-supplied initial graphics state.
func (w *Walker) WalkFrom(ctx context.Context, content []byte, resources raw.Dictionary, gs *GraphicsState, switchWH bool) ([]ImageRecord, error) {
	var records []ImageRecord
	if err := w.walk(ctx, content, resources, gs, switchWH, 0, &records); err != nil {
		return nil, err
	}
	return records, nil
}

func (w *Walker) walk(ctx context.Context, content []byte, resources raw.Dictionary, gs *GraphicsState, switchWH bool, depth int, out *[]ImageRecord) error {
	if depth > w.maxDepth {
		return fmt.Errorf("%w: form nesting too deep", ErrMalformedContent)
	}
	sc := scanner.NewBytes(content, scanner.Config{})
	var operands []raw.Object

	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		tok, err := sc.Next()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("%w: %v", ErrMalformedContent, err)
		}

		switch tok.Type {
		case scanner.TokenKeyword:
			op, _ := tok.Value.(string)
			switch op {
			case "]", ">>":
				// stray delimiters; skip
			case "BI":
				dict, payload, err := readInlineImage(sc)
				if err != nil {
					return fmt.Errorf("%w: %v", ErrMalformedContent, err)
				}
				w.trace("BI", 0)
				*out = append(*out, w.inlineRecord(dict, payload, gs, switchWH))
			default:
				if err := w.handleOperator(ctx, op, operands, resources, gs, switchWH, depth, out); err != nil {
					return err
				}
			}
			operands = operands[:0]
		case scanner.TokenBoolean, scanner.TokenNull:
			operands = append(operands, mustObject(sc, tok))
		default:
			obj, err := scanner.ObjectFromToken(sc, tok)
			if err != nil {
				return fmt.Errorf("%w: %v", ErrMalformedContent, err)
			}
			operands = append(operands, obj)
		}
	}
}

func mustObject(sc scanner.Scanner, tok scanner.Token) raw.Object {
	obj, err := scanner.ObjectFromToken(sc, tok)
	if err != nil {
		return raw.NullObj{}
	}
	return obj
}

func (w *Walker) handleOperator(ctx context.Context, op string, operands []raw.Object, resources raw.Dictionary, gs *GraphicsState, switchWH bool, depth int, out *[]ImageRecord) error {
	w.trace(op, len(operands))
	switch op {
	case "q":
		gs.Save()
	case "Q":
		gs.Restore()
	case "cm":
		if len(operands) >= 6 {
			m, ok := matrixFromOperands(operands[len(operands)-6:])
			if ok {
				gs.Concat(m)
			}
		}
	case "Do":
		if len(operands) == 0 {
			return nil
		}
		name, ok := raw.AsName(operands[len(operands)-1])
		if !ok {
			return nil
		}
		return w.invokeXObject(ctx, name, resources, gs, switchWH, depth, out)
	}
	return nil
}

// invokeXObject resolves a Do target. Unresolvable names are skipped
// silently; the rest of the stream may still be valid.
func (w *Walker) invokeXObject(ctx context.Context, name string, resources raw.Dictionary, gs *GraphicsState, switchWH bool, depth int, out *[]ImageRecord) error {
	xobjects, ok := w.resolveDict(ctx, resources, "XObject")
	if !ok {
		return nil
	}
	obj, ok := raw.DictGet(xobjects, name)
	if !ok {
		w.log.Debug("Do target not in resources", observability.String("name", name))
		return nil
	}
	resolved, err := w.src.Resolve(ctx, obj)
	if err != nil {
		w.log.Warn("Do target unresolvable", observability.String("name", name), observability.Error("err", err))
		return nil
	}
	st, ok := raw.AsStream(resolved)
	if !ok {
		return nil
	}
	subtype, _ := raw.DictName(st.Dictionary(), "Subtype")
	switch subtype {
	case "Form":
		return w.recurseForm(ctx, name, st, resources, gs, switchWH, depth, out)
	case "Image":
		isMask, _ := raw.DictBool(st.Dictionary(), "ImageMask")
		rec := ImageRecord{
			Kind:   KindExternal,
			Name:   name,
			Stream: st,
			Dict:   st.Dictionary(),
			IsMask: isMask,
		}
		pw, ph := imageDims(st.Dictionary())
		rec.Placement = placementFrom(gs.CTM, pw, ph, switchWH)
		*out = append(*out, rec)
		if w.tracer != nil {
			w.tracer.Image(KindExternal.String(), name)
		}
	}
	return nil
}

// recurseForm walks a Form XObject's own stream at the position of the
// Do operator. The graphics state is saved before entering and
// restored on every exit path, including errors.
func (w *Walker) recurseForm(ctx context.Context, name string, st raw.Stream, parentRes raw.Dictionary, gs *GraphicsState, switchWH bool, depth int, out *[]ImageRecord) error {
	content, err := w.src.StreamDecoded(ctx, st)
	if err != nil {
		w.log.Warn("form stream undecodable", observability.String("name", name), observability.Error("err", err))
		return nil
	}
	res := parentRes
	if formRes, ok := w.resolveDict(ctx, st.Dictionary(), "Resources"); ok {
		res = formRes
	}

	gs.Save()
	defer gs.Restore()
	if arr, ok := raw.DictArray(st.Dictionary(), "Matrix"); ok {
		vals := raw.FloatArray(arr)
		if len(vals) == 6 {
			gs.Concat(coords.Matrix{vals[0], vals[1], vals[2], vals[3], vals[4], vals[5]})
		}
	}
	return w.walk(ctx, content, res, gs, switchWH, depth+1, out)
}

func (w *Walker) inlineRecord(dict *raw.DictObj, payload []byte, gs *GraphicsState, switchWH bool) ImageRecord {
	isMask, _ := raw.DictBool(dict, "ImageMask")
	rec := ImageRecord{
		Kind:    KindInline,
		Dict:    dict,
		Payload: payload,
		IsMask:  isMask,
	}
	pw, ph := imageDims(dict)
	rec.Placement = placementFrom(gs.CTM, pw, ph, switchWH)
	if w.tracer != nil {
		w.tracer.Image(KindInline.String(), "")
	}
	return rec
}

func (w *Walker) resolveDict(ctx context.Context, dict raw.Dictionary, key string) (raw.Dictionary, bool) {
	obj, ok := raw.DictGet(dict, key)
	if !ok {
		return nil, false
	}
	resolved, err := w.src.Resolve(ctx, obj)
	if err != nil {
		return nil, false
	}
	return raw.AsDict(resolved)
}

func (w *Walker) trace(op string, operands int) {
	if w.tracer != nil {
		w.tracer.Operator(op, operands)
	}
}

func matrixFromOperands(ops []raw.Object) (coords.Matrix, bool) {
	var m coords.Matrix
	for i := 0; i < 6; i++ {
		n, ok := raw.AsNumber(ops[i])
		if !ok {
			return coords.Matrix{}, false
		}
		m[i] = n.Float()
	}
	return m, true
}

func imageDims(dict raw.Dictionary) (int, int) {
	pw, _ := raw.DictInt(dict, "Width")
	ph, _ := raw.DictInt(dict, "Height")
	return int(pw), int(ph)
}

// placementFrom maps the unit square through the CTM and derives
// user-space extent and DPI. For rotated pages the extent swaps so the
// resolution pairs with the matching pixel axis.
func placementFrom(ctm coords.Matrix, pixelWidth, pixelHeight int, switchWH bool) Placement {
	sq := ctm.MapUnitSquare()
	uw := math.Abs(sq.UR.X - sq.LL.X)
	uh := math.Abs(sq.UR.Y - sq.LL.Y)
	if switchWH {
		uw, uh = uh, uw
	}
	p := Placement{
		LL: sq.LL, UL: sq.UL, UR: sq.UR, LR: sq.LR,
		UserWidth: uw, UserHeight: uh,
		PixelWidth: pixelWidth, PixelHeight: pixelHeight,
	}
	if uw > 0 {
		p.ResolutionX = float64(pixelWidth) / uw * 72
	}
	if uh > 0 {
		p.ResolutionY = float64(pixelHeight) / uh * 72
	}
	return p
}
