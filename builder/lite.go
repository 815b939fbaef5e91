package builder

import (
	"fmt"

	"github.com/wudi/pdfimages/filters"
)

// liteBuilder bakes mask alpha into every written pixel, so finalize
// needs no compositing pass. Native support is limited to DCT with at
// most three components.
type liteBuilder struct {
	*rasterCore
}

func (b *liteBuilder) ReadsPixelByPixel() bool { return true }

func (b *liteBuilder) CanRead(native string) bool {
	return native == filters.NativeDCT && b.comps <= 3
}

func (b *liteBuilder) WritePixel(rawColor []byte) error {
	return b.writeDecoded(rawColor, true)
}

func (b *liteBuilder) ReadBlob(data []byte) error {
	if !b.CanRead(filters.NativeDCT) || sniffNative(data) != filters.NativeDCT {
		return fmt.Errorf("%w: lite renderer reads DCT only", ErrUnsupportedByRenderer)
	}
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
	if b.mask != nil {
		for y := 0; y < b.height; y++ {
			for x := 0; x < b.width; x++ {
				b.alpha[y*b.width+x] = b.mask.AlphaAt(x, y)
			}
		}
	}
	b.cursor = b.width * b.height
	return nil
}

func (b *liteBuilder) Finalize() error {
	if b.finalized {
		return nil
	}
	if b.negated {
		b.negateColors()
	}
	b.cache = nil
	b.lastRaw = nil
	if b.mask != nil {
		b.mask.CleanUp()
		b.mask = nil
	}
	b.finalized = true
	return nil
}

func (b *liteBuilder) Result() (*DecodedImage, error) { return b.result() }
func (b *liteBuilder) CleanUp()                       { b.cleanUp() }
