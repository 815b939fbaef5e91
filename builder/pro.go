package builder

import (
	"fmt"
	"image"

	"golang.org/x/image/draw"

	"github.com/wudi/pdfimages/filters"
)

// proBuilder ignores the mask while pixels stream in and composes it
// once at finalize, reading the mask's full raster as a blob when it
// can emit one. Native support covers DCT, JPX and CCITT.
type proBuilder struct {
	*rasterCore
}

func (b *proBuilder) ReadsPixelByPixel() bool { return false }

func (b *proBuilder) CanRead(native string) bool {
	switch native {
	case filters.NativeDCT, filters.NativeJPX, filters.NativeCCITT:
		return b.comps == 1 || b.comps == 3 || b.comps == 4
	default:
		return false
	}
}

func (b *proBuilder) WritePixel(rawColor []byte) error {
	return b.writeDecoded(rawColor, false)
}

func (b *proBuilder) ReadBlob(data []byte) error {
	switch sniffNative(data) {
	case filters.NativeDCT:
		return b.readDCT(data)
	case filters.NativeCCITT:
		return b.readCCITT(data)
	case filters.NativeJPX:
		return b.readJPX(data)
	default:
		return fmt.Errorf("%w: unrecognized native container", ErrUnsupportedByRenderer)
	}
}

func (b *proBuilder) readDCT(data []byte) error {
	w, h, comps, pix, err := decodeJPEG(data)
	if err != nil {
		return err
	}
	if w != b.width || h != b.height {
		return fmt.Errorf("container is %dx%d, dictionary says %dx%d", w, h, b.width, b.height)
	}
	if comps != b.comps {
		return fmt.Errorf("%w: DCT with %d components for %s", ErrUnsupportedByRenderer, comps, b.terminal.Family)
	}
	copy(b.pix, pix)
	// CMYK arrives inverted from typical DCT producers; correct at
	// finalize via the negation path.
	if comps == 4 {
		b.SetNegated(true)
	}
	b.cursor = b.width * b.height
	return nil
}

func (b *proBuilder) readCCITT(blob []byte) error {
	if b.comps != 1 {
		return fmt.Errorf("%w: CCITT for %s", ErrUnsupportedByRenderer, b.terminal.Family)
	}
	gray, err := decodeCCITT(blob, b.width, b.height)
	if err != nil {
		return err
	}
	copy(b.pix, gray)
	b.cursor = b.width * b.height
	return nil
}

// readJPX validates the codestream and keeps it whole; downstream
// consumers read JPEG 2000 natively.
func (b *proBuilder) readJPX(data []byte) error {
	info, err := sniffJPX(data)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnsupportedByRenderer, err)
	}
	if info.Width > 0 && (info.Width != b.width || info.Height != b.height) {
		return fmt.Errorf("codestream is %dx%d, dictionary says %dx%d", info.Width, info.Height, b.width, b.height)
	}
	b.native = append([]byte(nil), data...)
	b.nativeFormat = "jpx"
	b.pix = nil
	b.alpha = nil
	b.cursor = b.width * b.height
	return nil
}

func (b *proBuilder) Finalize() error {
	if b.finalized {
		return nil
	}
	if b.negated && b.pix != nil {
		b.negateColors()
	}
	if b.mask != nil && b.pix != nil {
		b.composeMask()
	}
	if b.mask != nil {
		b.mask.CleanUp()
		b.mask = nil
	}
	b.cache = nil
	b.lastRaw = nil
	b.finalized = true
	return nil
}

// composeMask fills the alpha plane: from the mask's emitted raster
// (scaled to the image size) when available, by sampling otherwise.
func (b *proBuilder) composeMask() {
	type sized interface{ Size() (int, int) }
	if b.mask.CanEmitBlob() {
		if ms, ok := b.mask.(sized); ok {
			if blob, err := b.mask.EmitBlob(); err == nil {
				mw, mh := ms.Size()
				b.alpha = scaleGray(blob, mw, mh, b.width, b.height)
				return
			}
		}
	}
	if b.alpha == nil {
		b.alpha = make([]byte, b.width*b.height)
	}
	for y := 0; y < b.height; y++ {
		for x := 0; x < b.width; x++ {
			b.alpha[y*b.width+x] = b.mask.AlphaAt(x, y)
		}
	}
}

// scaleGray resizes a gray plane with bilinear filtering.
func scaleGray(src []byte, sw, sh, dw, dh int) []byte {
	if sw == dw && sh == dh {
		return append([]byte(nil), src...)
	}
	in := &image.Gray{Pix: src, Stride: sw, Rect: image.Rect(0, 0, sw, sh)}
	out := image.NewGray(image.Rect(0, 0, dw, dh))
	draw.ApproxBiLinear.Scale(out, out.Bounds(), in, in.Bounds(), draw.Src, nil)
	return out.Pix
}

func (b *proBuilder) Result() (*DecodedImage, error) { return b.result() }
func (b *proBuilder) CleanUp()                       { b.cleanUp() }
