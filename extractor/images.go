package extractor

import (
	"context"
	"errors"
	"fmt"

	"github.com/wudi/pdfimages/builder"
	"github.com/wudi/pdfimages/colorspace"
	"github.com/wudi/pdfimages/filters"
	"github.com/wudi/pdfimages/ir/raw"
	"github.com/wudi/pdfimages/observability"
)

// ErrTruncatedImage is returned when the sample payload is shorter
// than width*height*components at the declared bit depth.
var ErrTruncatedImage = errors.New("truncated image")

// decodeBuilder realizes one image dictionary + payload as a finalized
// builder. allowMask guards against mask-of-mask recursion.
func (e *Extractor) decodeBuilder(ctx context.Context, dict raw.Dictionary, payload []byte, renderer builder.Renderer, allowMask bool) (builder.ImageBuilder, error) {
	width, _ := raw.DictInt(dict, "Width")
	height, _ := raw.DictInt(dict, "Height")

	bpc := int64(1)
	if v, ok := raw.DictInt(dict, "BitsPerComponent"); ok {
		bpc = v
	}
	switch bpc {
	case 1, 2, 4, 8:
	default:
		return nil, fmt.Errorf("%w: %d", builder.ErrUnsupportedBitDepth, bpc)
	}

	isStencil, _ := raw.DictBool(dict, "ImageMask")
	var space *colorspace.Descriptor
	if isStencil {
		// stencils carry no color space; samples are 1-bit coverage
		space = &colorspace.Descriptor{Family: colorspace.FamilyGray, Components: 1}
		bpc = 1
	} else {
		csObj, ok := raw.DictGet(dict, "ColorSpace")
		if !ok {
			csObj = raw.NameLiteral("DeviceGray")
		}
		var err error
		space, err = colorspace.Resolve(ctx, e.doc, csObj)
		if err != nil {
			return nil, err
		}
	}

	var mask builder.Mask
	if allowMask {
		var err error
		mask, err = e.resolveMask(ctx, dict, space, renderer)
		if err != nil {
			return nil, err
		}
	}

	var table *builder.DecodeTable
	negated := false
	if arr, ok := raw.DictArray(dict, "Decode"); ok {
		table = builder.NewDecodeTable(raw.FloatArray(arr), int(bpc), space.Components, space.DefaultDecodeMax())
		if table != nil && table.IsNegation() {
			negated = true
			table = nil
		}
	}

	names, params := filters.ExtractFilters(dict)
	for i := range params {
		if resolved, ok := e.doc.ResolveDict(ctx, params[i]); ok {
			params[i] = resolved
		}
	}
	chain := filters.NewChain(filters.Limits{})
	chained, err := chain.Apply(ctx, payload, names, params, dict)
	if err != nil {
		return nil, err
	}

	b, err := builder.New(renderer, builder.Config{
		Width:  int(width),
		Height: int(height),
		Space:  space,
		Decode: table,
		Mask:   mask,
		Logger: e.log,
	})
	if err != nil {
		if mask != nil {
			mask.CleanUp()
		}
		return nil, err
	}
	if negated {
		b.SetNegated(true)
	}

	if chained.Native != "" {
		if !b.CanRead(chained.Native) {
			b.CleanUp()
			return nil, fmt.Errorf("%w: %s for %s", builder.ErrUnsupportedByRenderer, chained.Native, space.Terminal().Family)
		}
		if table != nil {
			// per-sample remapping is impossible inside a native container
			b.CleanUp()
			return nil, builder.ErrUnsupportedDecodeArray
		}
		if err := b.ReadBlob(chained.Data); err != nil {
			b.CleanUp()
			return nil, err
		}
	} else {
		if err := e.writeSamples(b, chained.Data, space, int(width), int(height), int(bpc), !allowMask); err != nil {
			b.CleanUp()
			return nil, err
		}
	}

	if err := b.Finalize(); err != nil {
		b.CleanUp()
		return nil, err
	}
	e.log.Debug("image decoded",
		observability.Int("width", int(width)),
		observability.Int("height", int(height)),
		observability.String("space", space.Terminal().Family),
		observability.String("native", chained.Native))
	return b, nil
}

// resolveMask builds the MaskModel in priority order: SMask first
// (soft), else Mask (stencil image or color-key array).
func (e *Extractor) resolveMask(ctx context.Context, dict raw.Dictionary, space *colorspace.Descriptor, renderer builder.Renderer) (builder.Mask, error) {
	if smObj, ok := raw.DictGet(dict, "SMask"); ok {
		st, ok := e.doc.ResolveStream(ctx, smObj)
		if ok {
			mb, mw, mh, err := e.decodeMaskImage(ctx, st, renderer)
			if err != nil {
				return nil, fmt.Errorf("soft mask: %w", err)
			}
			return builder.NewSoftMask(mb, mw, mh), nil
		}
	}
	maskObj, ok := raw.DictGet(dict, "Mask")
	if !ok {
		return nil, nil
	}
	resolved, err := e.doc.Resolve(ctx, maskObj)
	if err != nil {
		return nil, err
	}
	if st, ok := raw.AsStream(resolved); ok {
		mb, mw, mh, err := e.decodeMaskImage(ctx, st, renderer)
		if err != nil {
			return nil, fmt.Errorf("stencil mask: %w", err)
		}
		// the [1 0] stencil decode is folded into the mask image's
		// negation at finalize, so no extra polarity flip here
		return builder.NewStencilMask(mb, mw, mh, false), nil
	}
	if arr, ok := raw.AsArray(resolved); ok {
		ranges := make([]int, 0, arr.Len())
		for _, v := range raw.IntArray(arr) {
			ranges = append(ranges, int(v))
		}
		return builder.NewColorKeyMask(ranges, space)
	}
	return nil, nil
}

// decodeMaskImage recursively decodes a mask's image stream; masks do
// not mask.
func (e *Extractor) decodeMaskImage(ctx context.Context, st raw.Stream, renderer builder.Renderer) (builder.ImageBuilder, int, int, error) {
	mb, err := e.decodeBuilder(ctx, st.Dictionary(), st.RawData(), renderer, false)
	if err != nil {
		return nil, 0, 0, err
	}
	mw, _ := raw.DictInt(st.Dictionary(), "Width")
	mh, _ := raw.DictInt(st.Dictionary(), "Height")
	return mb, int(mw), int(mh), nil
}

// writeSamples runs the unpacking strategy: whole bytes at 8 BPC, the
// bit reader below that, with row padding discarded at each row end.
// normalize (set for mask images) widens sub-byte samples as
// sample*255/(2^bpc-1) so mask alpha spans the full range.
func (e *Extractor) writeSamples(b builder.ImageBuilder, data []byte, space *colorspace.Descriptor, width, height, bpc int, normalize bool) error {
	comps := space.Components
	indexed := space.Family == colorspace.FamilyIndexed
	if indexed {
		for i := 0; i <= space.HiVal; i++ {
			b.AddIndexedColor(i, space.PaletteColor(i))
		}
	}

	if bpc == 8 {
		if len(data) < width*height*comps {
			return fmt.Errorf("%w: have %d bytes, need %d", ErrTruncatedImage, len(data), width*height*comps)
		}
		for i := 0; i < width*height; i++ {
			if err := b.WritePixel(data[i*comps : (i+1)*comps]); err != nil {
				return err
			}
		}
		return nil
	}

	rowBytes := (width*comps*bpc + 7) / 8
	if len(data) < rowBytes*height {
		return fmt.Errorf("%w: have %d bytes, need %d", ErrTruncatedImage, len(data), rowBytes*height)
	}
	br, err := builder.NewBitReader(data, bpc)
	if err != nil {
		return err
	}
	pixel := make([]byte, comps)
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			for c := 0; c < comps; c++ {
				sample, err := br.ReadSample()
				if err != nil {
					return fmt.Errorf("%w: %v", ErrTruncatedImage, err)
				}
				if indexed {
					pixel[c] = byte(sample)
				} else if normalize {
					pixel[c] = byte(sample * 255 / (1<<uint(bpc) - 1))
				} else {
					pixel[c] = scaleSubByteSample(sample, bpc)
				}
			}
			if err := b.WritePixel(pixel); err != nil {
				return err
			}
		}
		br.AlignRow()
	}
	return nil
}

// scaleSubByteSample widens a packed sample as sample*255/bpc,
// clamped to the byte range. For 2 and 4 bits this does not normalize
// to [0,255]; see DESIGN.md before changing the formula.
func scaleSubByteSample(sample, bpc int) byte {
	v := sample * 255 / bpc
	if v > 255 {
		v = 255
	}
	return byte(v)
}
