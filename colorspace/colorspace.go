// Package colorspace collapses PDF color space chains to a terminal
// device space (Gray/RGB/CMYK), retaining indexed palettes and ICC
// profiles met along the way.
package colorspace

import (
	"context"
	"errors"
	"fmt"

	"github.com/wudi/pdfimages/cmm"
	"github.com/wudi/pdfimages/ir/raw"
)

// ErrUnsupportedColorSpace is returned when a chain cannot be reduced
// to DeviceGray, DeviceRGB or DeviceCMYK.
var ErrUnsupportedColorSpace = errors.New("unsupported color space")

// Families a descriptor can carry. Only the three device spaces are
// valid terminals.
const (
	FamilyGray       = "DeviceGray"
	FamilyRGB        = "DeviceRGB"
	FamilyCMYK       = "DeviceCMYK"
	FamilyIndexed    = "Indexed"
	FamilyICCBased   = "ICCBased"
	FamilySeparation = "Separation"
	FamilyDeviceN    = "DeviceN"
)

// Descriptor describes one resolved color space. For Indexed spaces
// Base and Palette are set and Components is 1 (the index); the
// terminal device space is Base's.
type Descriptor struct {
	Family     string
	Components int
	Base       *Descriptor
	HiVal      int
	Palette    []byte // HiVal+1 runs of Base.Components bytes
	ICCProfile []byte
}

// Terminal returns the device-space descriptor at the end of the
// chain: the descriptor itself, or its base for Indexed.
func (d *Descriptor) Terminal() *Descriptor {
	if d.Family == FamilyIndexed && d.Base != nil {
		return d.Base
	}
	return d
}

// PaletteColor returns the raw base-space bytes of palette entry i,
// clamped to the table.
func (d *Descriptor) PaletteColor(i int) []byte {
	n := d.Base.Components
	if i < 0 {
		i = 0
	}
	if i > d.HiVal {
		i = d.HiVal
	}
	off := i * n
	if off+n > len(d.Palette) {
		return make([]byte, n)
	}
	return d.Palette[off : off+n]
}

// Source supplies indirect-object resolution and stream decoding;
// *parser.Document satisfies it.
type Source interface {
	Resolve(ctx context.Context, obj raw.Object) (raw.Object, error)
	StreamDecoded(ctx context.Context, st raw.Stream) ([]byte, error)
}

const maxChainDepth = 8

// Resolve reduces a color space object to a Descriptor whose terminal
// is a device space. Indexed keeps its palette; an ICC profile found
// anywhere in the chain is carried outward.
func Resolve(ctx context.Context, src Source, obj raw.Object) (*Descriptor, error) {
	return resolve(ctx, src, obj, 0)
}

func resolve(ctx context.Context, src Source, obj raw.Object, depth int) (*Descriptor, error) {
	if depth > maxChainDepth {
		return nil, fmt.Errorf("%w: chain too deep", ErrUnsupportedColorSpace)
	}
	resolved, err := src.Resolve(ctx, obj)
	if err != nil {
		return nil, err
	}
	if name, ok := raw.AsName(resolved); ok {
		return fromName(name)
	}
	arr, ok := raw.AsArray(resolved)
	if !ok || arr.Len() == 0 {
		return nil, fmt.Errorf("%w: neither name nor array", ErrUnsupportedColorSpace)
	}
	head, _ := arr.Get(0)
	family, ok := raw.AsName(head)
	if !ok {
		return nil, fmt.Errorf("%w: array without family name", ErrUnsupportedColorSpace)
	}
	switch family {
	case "Indexed", "I":
		return resolveIndexed(ctx, src, arr, depth)
	case "ICCBased":
		return resolveICCBased(ctx, src, arr, depth)
	case "CalGray":
		return &Descriptor{Family: FamilyGray, Components: 1}, nil
	case "CalRGB":
		return &Descriptor{Family: FamilyRGB, Components: 3}, nil
	case "DeviceGray", "DeviceRGB", "DeviceCMYK", "G", "RGB", "CMYK":
		return fromName(family)
	default:
		// Separation, DeviceN, Lab, Pattern have no device terminal here
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedColorSpace, family)
	}
}

func fromName(name string) (*Descriptor, error) {
	switch name {
	case "DeviceGray", "G", "CalGray":
		return &Descriptor{Family: FamilyGray, Components: 1}, nil
	case "DeviceRGB", "RGB", "CalRGB":
		return &Descriptor{Family: FamilyRGB, Components: 3}, nil
	case "DeviceCMYK", "CMYK":
		return &Descriptor{Family: FamilyCMYK, Components: 4}, nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedColorSpace, name)
	}
}

func resolveIndexed(ctx context.Context, src Source, arr raw.Array, depth int) (*Descriptor, error) {
	if arr.Len() < 4 {
		return nil, fmt.Errorf("%w: short Indexed array", ErrUnsupportedColorSpace)
	}
	baseObj, _ := arr.Get(1)
	base, err := resolve(ctx, src, baseObj, depth+1)
	if err != nil {
		return nil, err
	}
	// the base itself may be Indexed again; reduce to its terminal
	base = base.Terminal()

	hiObj, _ := arr.Get(2)
	hiResolved, err := src.Resolve(ctx, hiObj)
	if err != nil {
		return nil, err
	}
	hiNum, ok := raw.AsNumber(hiResolved)
	if !ok {
		return nil, fmt.Errorf("%w: Indexed hival not a number", ErrUnsupportedColorSpace)
	}
	hival := int(hiNum.Int())
	if hival < 0 || hival > 255 {
		return nil, fmt.Errorf("%w: Indexed hival %d", ErrUnsupportedColorSpace, hival)
	}

	lookupObj, _ := arr.Get(3)
	lookupResolved, err := src.Resolve(ctx, lookupObj)
	if err != nil {
		return nil, err
	}
	var palette []byte
	if s, ok := raw.AsString(lookupResolved); ok {
		palette = s
	} else if st, ok := raw.AsStream(lookupResolved); ok {
		palette, err = src.StreamDecoded(ctx, st)
		if err != nil {
			return nil, fmt.Errorf("decode Indexed lookup: %w", err)
		}
	} else {
		return nil, fmt.Errorf("%w: Indexed lookup is %s", ErrUnsupportedColorSpace, lookupResolved.Type())
	}

	return &Descriptor{
		Family:     FamilyIndexed,
		Components: 1,
		Base:       base,
		HiVal:      hival,
		Palette:    palette,
		ICCProfile: base.ICCProfile,
	}, nil
}

func resolveICCBased(ctx context.Context, src Source, arr raw.Array, depth int) (*Descriptor, error) {
	if arr.Len() < 2 {
		return nil, fmt.Errorf("%w: short ICCBased array", ErrUnsupportedColorSpace)
	}
	streamObj, _ := arr.Get(1)
	resolved, err := src.Resolve(ctx, streamObj)
	if err != nil {
		return nil, err
	}
	st, ok := raw.AsStream(resolved)
	if !ok {
		return nil, fmt.Errorf("%w: ICCBased without stream", ErrUnsupportedColorSpace)
	}
	dict := st.Dictionary()

	var profile []byte
	if data, err := src.StreamDecoded(ctx, st); err == nil {
		profile = data
	}

	if alt, ok := raw.DictGet(dict, "Alternate"); ok {
		d, err := resolve(ctx, src, alt, depth+1)
		if err != nil {
			return nil, err
		}
		out := *d
		if out.ICCProfile == nil {
			out.ICCProfile = profile
		}
		return &out, nil
	}

	n, ok := raw.DictInt(dict, "N")
	if !ok {
		if p, err := cmm.NewICCProfile(profile); err == nil {
			n = int64(p.Components())
		}
	}
	var d *Descriptor
	switch n {
	case 1:
		d = &Descriptor{Family: FamilyGray, Components: 1}
	case 3:
		d = &Descriptor{Family: FamilyRGB, Components: 3}
	case 4:
		d = &Descriptor{Family: FamilyCMYK, Components: 4}
	default:
		return nil, fmt.Errorf("%w: ICCBased with %d components", ErrUnsupportedColorSpace, n)
	}
	d.ICCProfile = profile
	return d, nil
}

// DefaultDecodeMax reports the implicit decode maximum for a
// component: hival-bounded for Indexed, 1.0 otherwise.
func (d *Descriptor) DefaultDecodeMax() float64 {
	if d.Family == FamilyIndexed {
		return float64(d.HiVal)
	}
	return 1.0
}
