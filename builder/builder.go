// Package builder realizes decoded rasters for the image pipeline.
// Two renderers ship: a per-pixel-alpha renderer that bakes mask alpha
// into each written pixel, and a batch-alpha renderer that composes
// the mask once at finalize.
package builder

import (
	"errors"
	"fmt"

	"github.com/wudi/pdfimages/colorspace"
	"github.com/wudi/pdfimages/filters"
	"github.com/wudi/pdfimages/observability"
)

var (
	ErrUnsupportedBitDepth       = errors.New("unsupported bits per component")
	ErrUnsupportedByRenderer     = errors.New("unsupported by renderer")
	ErrUnsupportedDecodeArray    = errors.New("unsupported decode array")
	ErrUnsupportedMaskColorSpace = errors.New("unsupported mask color space")
)

// Renderer selects one of the two shipped builders.
type Renderer int

const (
	// RendererLite bakes alpha per pixel; native support is DCT with
	// at most three components.
	RendererLite Renderer = iota
	// RendererPro composes alpha in batch at finalize; native support
	// is DCT, JPX and CCITT for 1/3/4-component spaces.
	RendererPro
)

// ImageBuilder receives pixels row by row, or a native blob, then
// applies masks and negation at finalize.
type ImageBuilder interface {
	// CanRead reports whether the builder accepts the native container
	// for its configured color space.
	CanRead(native string) bool
	// WritePixel consumes one pixel's raw color bytes (a palette index
	// for Indexed spaces, component samples otherwise).
	WritePixel(rawColor []byte) error
	// AddIndexedColor registers palette entry i with its raw
	// base-space color.
	AddIndexedColor(i int, color []byte)
	// ReadBlob consumes a native container whole.
	ReadBlob(data []byte) error
	// SetNegated records that color channels must be inverted at
	// finalize; alpha is never negated.
	SetNegated(v bool)
	Negated() bool
	// Finalize flushes buffered samples, applies negation and, for
	// batch builders, composes the mask.
	Finalize() error
	// Result returns the decoded image. Valid after Finalize.
	Result() (*DecodedImage, error)
	// ColorAt returns the source components of pixel (x,y): the
	// palette index for Indexed images, decoded components otherwise.
	ColorAt(x, y int) []byte
	// CurrentPixel returns the raw bytes of the most recently written
	// pixel, or nil outside a sequential write.
	CurrentPixel() []byte
	// ReadsPixelByPixel reports the mask application policy.
	ReadsPixelByPixel() bool
	// CleanUp releases the raster, caches and the owned mask.
	CleanUp()
}

// Config carries everything a builder needs up front.
type Config struct {
	Width, Height int
	// Space is the image's original color space; Indexed is kept so
	// palette lookup can happen inside WritePixel.
	Space  *colorspace.Descriptor
	Decode *DecodeTable
	Mask   Mask
	Logger observability.Logger
}

// DecodedImage is the pipeline's output: device-space pixels plus
// optional alpha. For JPX passthrough Pix is nil and Native carries
// the codestream.
type DecodedImage struct {
	Width, Height int
	Space         string // DeviceGray, DeviceRGB or DeviceCMYK
	Components    int
	Pix           []byte // Width*Height*Components, row-major
	Alpha         []byte // Width*Height or nil
	ICCProfile    []byte
	Native        []byte
	NativeFormat  string
}

// New constructs the selected renderer.
func New(r Renderer, cfg Config) (ImageBuilder, error) {
	if err := filters.ValidateRasterBounds(cfg.Width, cfg.Height); err != nil {
		return nil, err
	}
	if cfg.Space == nil {
		return nil, errors.New("builder requires a color space")
	}
	if cfg.Logger == nil {
		cfg.Logger = observability.NopLogger{}
	}
	core, err := newRasterCore(cfg)
	if err != nil {
		return nil, err
	}
	var b ImageBuilder
	switch r {
	case RendererLite:
		b = &liteBuilder{rasterCore: core}
	case RendererPro:
		b = &proBuilder{rasterCore: core}
	default:
		return nil, fmt.Errorf("unknown renderer %d", r)
	}
	if cfg.Mask != nil {
		if ts, ok := cfg.Mask.(targetSized); ok {
			ts.setTarget(cfg.Width, cfg.Height)
		}
		if o, ok := cfg.Mask.(owned); ok {
			o.setOwner(b)
		}
	}
	return b, nil
}

// rasterCore is the state shared by both renderers.
type rasterCore struct {
	width, height int
	space         *colorspace.Descriptor
	terminal      *colorspace.Descriptor
	comps         int
	decode        *DecodeTable
	mask          Mask
	log           observability.Logger

	pix        []byte
	alpha      []byte
	indexPlane []byte
	palette    [][]byte
	cache      map[string][]byte
	cursor     int
	lastRaw    []byte
	negated    bool
	finalized  bool

	native       []byte
	nativeFormat string
}

func newRasterCore(cfg Config) (*rasterCore, error) {
	terminal := cfg.Space.Terminal()
	c := &rasterCore{
		width:    cfg.Width,
		height:   cfg.Height,
		space:    cfg.Space,
		terminal: terminal,
		comps:    terminal.Components,
		decode:   cfg.Decode,
		mask:     cfg.Mask,
		log:      cfg.Logger,
		pix:      make([]byte, cfg.Width*cfg.Height*terminal.Components),
		cache:    make(map[string][]byte),
	}
	if cfg.Space.Family == colorspace.FamilyIndexed {
		c.indexPlane = make([]byte, cfg.Width*cfg.Height)
		c.palette = make([][]byte, cfg.Space.HiVal+1)
	}
	if cfg.Mask != nil {
		c.alpha = make([]byte, cfg.Width*cfg.Height)
		for i := range c.alpha {
			c.alpha[i] = 255
		}
	}
	return c, nil
}

func (c *rasterCore) AddIndexedColor(i int, color []byte) {
	if i < 0 {
		return
	}
	if i >= len(c.palette) {
		grown := make([][]byte, i+1)
		copy(grown, c.palette)
		c.palette = grown
	}
	c.palette[i] = append([]byte(nil), color...)
}

func (c *rasterCore) SetNegated(v bool) { c.negated = v }
func (c *rasterCore) Negated() bool     { return c.negated }

func (c *rasterCore) CurrentPixel() []byte { return c.lastRaw }

func (c *rasterCore) ColorAt(x, y int) []byte {
	if x < 0 || y < 0 || x >= c.width || y >= c.height {
		return nil
	}
	if c.indexPlane != nil {
		return c.indexPlane[y*c.width+x : y*c.width+x+1]
	}
	off := (y*c.width + x) * c.comps
	if off+c.comps > len(c.pix) {
		return nil
	}
	return c.pix[off : off+c.comps]
}

// writeDecoded is the shared body of WritePixel; perPixelAlpha selects
// the masking policy.
func (c *rasterCore) writeDecoded(rawColor []byte, perPixelAlpha bool) error {
	if c.cursor >= c.width*c.height {
		return errors.New("pixel write past image bounds")
	}
	c.lastRaw = rawColor

	var comps []byte
	if cached, ok := c.cache[string(rawColor)]; ok {
		comps = cached
	} else {
		var err error
		comps, err = c.decodeColor(rawColor)
		if err != nil {
			return err
		}
		c.cache[string(rawColor)] = comps
	}

	if c.indexPlane != nil && len(rawColor) == 1 {
		c.indexPlane[c.cursor] = rawColor[0]
	}
	copy(c.pix[c.cursor*c.comps:], comps)
	if perPixelAlpha && c.mask != nil {
		x := c.cursor % c.width
		y := c.cursor / c.width
		c.alpha[c.cursor] = c.mask.AlphaAt(x, y)
	}
	c.cursor++
	if c.cursor == c.width*c.height {
		c.lastRaw = nil
	}
	return nil
}

// decodeColor turns raw incoming bytes into terminal-space components.
func (c *rasterCore) decodeColor(rawColor []byte) ([]byte, error) {
	if c.space.Family == colorspace.FamilyIndexed {
		if len(rawColor) != 1 {
			return nil, errors.New("indexed pixel must be a single index byte")
		}
		idx := int(rawColor[0])
		if c.decode != nil {
			idx = c.decode.ApplyToIndex(idx)
		}
		if idx >= 0 && idx < len(c.palette) && c.palette[idx] != nil {
			return c.palette[idx], nil
		}
		// unregistered entry: fall back to the descriptor table
		return append([]byte(nil), c.space.PaletteColor(idx)...), nil
	}
	if len(rawColor) != c.comps {
		return nil, fmt.Errorf("expected %d components, got %d", c.comps, len(rawColor))
	}
	if c.decode == nil {
		return append([]byte(nil), rawColor...), nil
	}
	out := make([]byte, c.comps)
	for i := 0; i < c.comps; i++ {
		out[i] = c.decode.Apply(i, int(rawColor[i]))
	}
	return out, nil
}

// negateColors inverts color channels in place; alpha is untouched.
func (c *rasterCore) negateColors() {
	for i := range c.pix {
		c.pix[i] = 255 - c.pix[i]
	}
}

func (c *rasterCore) result() (*DecodedImage, error) {
	if !c.finalized {
		return nil, errors.New("result requested before finalize")
	}
	return &DecodedImage{
		Width:        c.width,
		Height:       c.height,
		Space:        c.terminal.Family,
		Components:   c.comps,
		Pix:          c.pix,
		Alpha:        c.alpha,
		ICCProfile:   c.space.ICCProfile,
		Native:       c.native,
		NativeFormat: c.nativeFormat,
	}, nil
}

func (c *rasterCore) cleanUp() {
	c.pix = nil
	c.alpha = nil
	c.indexPlane = nil
	c.palette = nil
	c.cache = nil
	c.lastRaw = nil
	if c.mask != nil {
		c.mask.CleanUp()
		c.mask = nil
	}
}
