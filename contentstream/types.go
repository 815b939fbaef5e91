package contentstream

import (
	"github.com/wudi/pdfimages/coords"
	"github.com/wudi/pdfimages/ir/raw"
)

// Kind distinguishes how an image entered the content stream.
type Kind int

const (
	KindExternal Kind = iota // Image XObject referenced by Do
	KindInline               // BI ... ID ... EI
)

func (k Kind) String() string {
	if k == KindInline {
		return "inline"
	}
	return "external"
}

// Placement locates an image on the page: the unit square's corners
// mapped through the CTM, user-space extent, pixel extent and the
// resulting resolution in DPI.
type Placement struct {
	LL, UL, UR, LR coords.Point

	UserWidth, UserHeight    float64
	PixelWidth, PixelHeight  int
	ResolutionX, ResolutionY float64
}

// ImageRecord is one discovered image, ready for decoding.
type ImageRecord struct {
	Kind Kind
	// Name is the XObject resource name for external images.
	Name string
	// Stream is the XObject stream for external images; its payload is
	// still filtered.
	Stream raw.Stream
	// Dict is the image dictionary: the stream's for external images,
	// the expanded inline dictionary otherwise.
	Dict raw.Dictionary
	// Payload holds the raw inline bytes for inline images.
	Payload []byte
	// IsMask marks stencils whose role is masking rather than content;
	// callers may filter them out.
	IsMask bool

	Placement Placement
}

// GraphicsState is the current transformation matrix plus the stack of
// saved matrices. Restore at outermost depth is ignored, so damaged
// streams with surplus Q operators do not corrupt placement.
type GraphicsState struct {
	CTM   coords.Matrix
	stack []coords.Matrix
}

func NewGraphicsState() *GraphicsState {
	return &GraphicsState{CTM: coords.Identity()}
}

func NewGraphicsStateFrom(m coords.Matrix) *GraphicsState {
	return &GraphicsState{CTM: m}
}

func (g *GraphicsState) Save() {
	g.stack = append(g.stack, g.CTM)
}

func (g *GraphicsState) Restore() {
	n := len(g.stack)
	if n == 0 {
		return
	}
	g.CTM = g.stack[n-1]
	g.stack = g.stack[:n-1]
}

// Concat right-multiplies the given matrix onto the CTM, so it applies
// before the existing transform.
func (g *GraphicsState) Concat(m coords.Matrix) {
	g.CTM = m.Multiply(g.CTM)
}

func (g *GraphicsState) ToUserSpace(p coords.Point) coords.Point {
	return g.CTM.Transform(p)
}

func (g *GraphicsState) Depth() int { return len(g.stack) + 1 }
