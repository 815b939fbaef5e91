package builder

import (
	"errors"
	"fmt"

	"github.com/wudi/pdfimages/colorspace"
)

// Mask yields per-pixel alpha in the coordinate space of the image it
// masks. Implementations translate coordinates when their raster has
// different dimensions.
type Mask interface {
	// AlphaAt returns 0 for fully transparent, 255 for fully opaque.
	AlphaAt(x, y int) byte
	// ReadsPixelByPixel reports whether alpha is naturally available
	// during a sequential pixel write.
	ReadsPixelByPixel() bool
	// CanEmitBlob reports whether the full alpha plane can be emitted
	// at once.
	CanEmitBlob() bool
	// EmitBlob returns the alpha plane in the mask's own dimensions.
	EmitBlob() ([]byte, error)
	// CleanUp releases the underlying raster.
	CleanUp()
}

// targetSized is implemented by masks that need the owner image's
// dimensions for coordinate scaling; the builder factory wires it.
type targetSized interface {
	setTarget(w, h int)
}

// owned is implemented by masks that sample the image they are
// attached to (color key); the builder factory wires it.
type owned interface {
	setOwner(b ImageBuilder)
}

// SoftMask derives alpha from a decoded grayscale image: full
// grayscale range maps to full alpha range.
type SoftMask struct {
	img              ImageBuilder
	maskW, maskH     int
	targetW, targetH int
}

// NewSoftMask wraps a finalized grayscale builder of the given
// dimensions.
func NewSoftMask(img ImageBuilder, w, h int) *SoftMask {
	return &SoftMask{img: img, maskW: w, maskH: h, targetW: w, targetH: h}
}

func (m *SoftMask) setTarget(w, h int) { m.targetW, m.targetH = w, h }

func (m *SoftMask) AlphaAt(x, y int) byte {
	mx, my := scaleCoord(x, y, m.targetW, m.targetH, m.maskW, m.maskH)
	c := m.img.ColorAt(mx, my)
	if len(c) == 0 {
		return 255
	}
	return c[0]
}

func (m *SoftMask) ReadsPixelByPixel() bool { return m.img.ReadsPixelByPixel() }
func (m *SoftMask) CanEmitBlob() bool       { return !m.img.ReadsPixelByPixel() }

func (m *SoftMask) EmitBlob() ([]byte, error) {
	if !m.CanEmitBlob() {
		return nil, errors.New("mask cannot emit a blob")
	}
	out := make([]byte, m.maskW*m.maskH)
	for y := 0; y < m.maskH; y++ {
		for x := 0; x < m.maskW; x++ {
			c := m.img.ColorAt(x, y)
			if len(c) > 0 {
				out[y*m.maskW+x] = c[0]
			}
		}
	}
	return out, nil
}

func (m *SoftMask) Size() (int, int) { return m.maskW, m.maskH }

func (m *SoftMask) CleanUp() { m.img.CleanUp() }

// StencilMask derives 1-bit alpha from a decoded stencil image: a zero
// sample paints (opaque), a one sample lets the backdrop through.
// A [1 0] decode on the stencil flips the polarity.
type StencilMask struct {
	img              ImageBuilder
	maskW, maskH     int
	targetW, targetH int
	invert           bool
}

func NewStencilMask(img ImageBuilder, w, h int, invert bool) *StencilMask {
	return &StencilMask{img: img, maskW: w, maskH: h, targetW: w, targetH: h, invert: invert}
}

func (m *StencilMask) setTarget(w, h int) { m.targetW, m.targetH = w, h }

func (m *StencilMask) AlphaAt(x, y int) byte {
	mx, my := scaleCoord(x, y, m.targetW, m.targetH, m.maskW, m.maskH)
	c := m.img.ColorAt(mx, my)
	if len(c) == 0 {
		return 255
	}
	opaque := c[0] == 0
	if m.invert {
		opaque = !opaque
	}
	if opaque {
		return 255
	}
	return 0
}

func (m *StencilMask) ReadsPixelByPixel() bool { return m.img.ReadsPixelByPixel() }
func (m *StencilMask) CanEmitBlob() bool       { return !m.img.ReadsPixelByPixel() }

func (m *StencilMask) EmitBlob() ([]byte, error) {
	if !m.CanEmitBlob() {
		return nil, errors.New("mask cannot emit a blob")
	}
	out := make([]byte, m.maskW*m.maskH)
	for y := 0; y < m.maskH; y++ {
		for x := 0; x < m.maskW; x++ {
			out[y*m.maskW+x] = m.alphaAtMask(x, y)
		}
	}
	return out, nil
}

func (m *StencilMask) alphaAtMask(x, y int) byte {
	c := m.img.ColorAt(x, y)
	if len(c) == 0 {
		return 255
	}
	opaque := c[0] == 0
	if m.invert {
		opaque = !opaque
	}
	if opaque {
		return 255
	}
	return 0
}

func (m *StencilMask) Size() (int, int) { return m.maskW, m.maskH }

func (m *StencilMask) CleanUp() { m.img.CleanUp() }

// ColorKeyMask marks pixels transparent when every source component
// falls inside its range. Only Indexed sources are supported; the
// ranges then address palette indices.
type ColorKeyMask struct {
	ranges []int
	owner  ImageBuilder
}

// NewColorKeyMask validates the source space and the range arity.
func NewColorKeyMask(ranges []int, space *colorspace.Descriptor) (*ColorKeyMask, error) {
	if space.Family != colorspace.FamilyIndexed {
		return nil, fmt.Errorf("%w: color key on %s", ErrUnsupportedMaskColorSpace, space.Family)
	}
	if len(ranges) < 2 || len(ranges)%2 != 0 {
		return nil, errors.New("color key ranges must be pairs")
	}
	return &ColorKeyMask{ranges: ranges}, nil
}

func (m *ColorKeyMask) setOwner(b ImageBuilder) { m.owner = b }

func (m *ColorKeyMask) AlphaAt(x, y int) byte {
	// prefer the sequential-write shortcut over a random-access read
	comps := m.owner.CurrentPixel()
	if comps == nil {
		comps = m.owner.ColorAt(x, y)
	}
	if len(comps)*2 < len(m.ranges) {
		return 255
	}
	for i := 0; i*2+1 < len(m.ranges) && i < len(comps); i++ {
		c := int(comps[i])
		if c < m.ranges[i*2] || c > m.ranges[i*2+1] {
			return 255
		}
	}
	return 0
}

func (m *ColorKeyMask) ReadsPixelByPixel() bool { return true }
func (m *ColorKeyMask) CanEmitBlob() bool       { return false }
func (m *ColorKeyMask) EmitBlob() ([]byte, error) {
	return nil, errors.New("color key mask has no blob")
}
func (m *ColorKeyMask) CleanUp() { m.owner = nil }

// scaleCoord maps owner-image coordinates onto the mask raster.
func scaleCoord(x, y, fromW, fromH, toW, toH int) (int, int) {
	if fromW == toW && fromH == toH {
		return x, y
	}
	mx, my := x, y
	if fromW > 0 {
		mx = x * toW / fromW
	}
	if fromH > 0 {
		my = y * toH / fromH
	}
	if mx >= toW {
		mx = toW - 1
	}
	if my >= toH {
		my = toH - 1
	}
	return mx, my
}
