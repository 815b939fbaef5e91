package colorspace

import (
	"context"
	"errors"
	"testing"

	"github.com/wudi/pdfimages/ir/raw"
)

// directSource resolves nothing: objects are already inline.
type directSource struct{}

func (directSource) Resolve(ctx context.Context, obj raw.Object) (raw.Object, error) {
	return obj, nil
}

func (directSource) StreamDecoded(ctx context.Context, st raw.Stream) ([]byte, error) {
	return st.RawData(), nil
}

func resolveName(t *testing.T, name string) *Descriptor {
	t.Helper()
	d, err := Resolve(context.Background(), directSource{}, raw.NameLiteral(name))
	if err != nil {
		t.Fatalf("resolve %s: %v", name, err)
	}
	return d
}

func TestDeviceSpaces(t *testing.T) {
	cases := []struct {
		name  string
		comps int
	}{
		{"DeviceGray", 1}, {"DeviceRGB", 3}, {"DeviceCMYK", 4},
		{"G", 1}, {"RGB", 3}, {"CMYK", 4}, {"CalGray", 1}, {"CalRGB", 3},
	}
	for _, c := range cases {
		d := resolveName(t, c.name)
		if d.Components != c.comps {
			t.Errorf("%s: %d components", c.name, d.Components)
		}
		if d.Terminal() != d {
			t.Errorf("%s: device space must be its own terminal", c.name)
		}
	}
}

func TestUnknownNameFails(t *testing.T) {
	_, err := Resolve(context.Background(), directSource{}, raw.NameLiteral("Pattern"))
	if !errors.Is(err, ErrUnsupportedColorSpace) {
		t.Fatalf("expected ErrUnsupportedColorSpace, got %v", err)
	}
}

func TestIndexedWithStringLookup(t *testing.T) {
	arr := raw.NewArray(
		raw.NameLiteral("Indexed"),
		raw.NameLiteral("DeviceRGB"),
		raw.NumberInt(1),
		raw.Str([]byte{0, 0, 0, 255, 255, 255}),
	)
	d, err := Resolve(context.Background(), directSource{}, arr)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if d.Family != FamilyIndexed || d.HiVal != 1 {
		t.Fatalf("descriptor %+v", d)
	}
	if d.Terminal().Family != FamilyRGB {
		t.Fatalf("terminal %s", d.Terminal().Family)
	}
	white := d.PaletteColor(1)
	if len(white) != 3 || white[0] != 255 {
		t.Fatalf("palette entry %v", white)
	}
	// out-of-range indices clamp to the table
	if c := d.PaletteColor(9); c[0] != 255 {
		t.Fatalf("clamped entry %v", c)
	}
}

func TestIndexedWithStreamLookup(t *testing.T) {
	lookup := raw.NewStream(raw.Dict(), []byte{1, 2, 3})
	arr := raw.NewArray(
		raw.NameLiteral("Indexed"),
		raw.NameLiteral("DeviceGray"),
		raw.NumberInt(2),
		lookup,
	)
	d, err := Resolve(context.Background(), directSource{}, arr)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if d.PaletteColor(2)[0] != 3 {
		t.Fatalf("palette %v", d.Palette)
	}
	if d.DefaultDecodeMax() != 2 {
		t.Fatalf("indexed default decode max %v", d.DefaultDecodeMax())
	}
}

func iccStream(n int64, withAlt string) *raw.StreamObj {
	dict := raw.Dict()
	if n > 0 {
		dict.Set(raw.NameObj{Val: "N"}, raw.NumberInt(n))
	}
	if withAlt != "" {
		dict.Set(raw.NameObj{Val: "Alternate"}, raw.NameLiteral(withAlt))
	}
	profile := make([]byte, 132)
	return raw.NewStream(dict, profile)
}

func TestICCBasedInfersFromN(t *testing.T) {
	for n, family := range map[int64]string{1: FamilyGray, 3: FamilyRGB, 4: FamilyCMYK} {
		arr := raw.NewArray(raw.NameLiteral("ICCBased"), iccStream(n, ""))
		d, err := Resolve(context.Background(), directSource{}, arr)
		if err != nil {
			t.Fatalf("N=%d: %v", n, err)
		}
		if d.Family != family {
			t.Errorf("N=%d: family %s", n, d.Family)
		}
		if d.ICCProfile == nil {
			t.Errorf("N=%d: profile dropped", n)
		}
	}
}

func TestICCBasedBadComponentCount(t *testing.T) {
	arr := raw.NewArray(raw.NameLiteral("ICCBased"), iccStream(2, ""))
	_, err := Resolve(context.Background(), directSource{}, arr)
	if !errors.Is(err, ErrUnsupportedColorSpace) {
		t.Fatalf("expected ErrUnsupportedColorSpace, got %v", err)
	}
}

func TestICCBasedPrefersAlternate(t *testing.T) {
	arr := raw.NewArray(raw.NameLiteral("ICCBased"), iccStream(3, "DeviceCMYK"))
	d, err := Resolve(context.Background(), directSource{}, arr)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if d.Family != FamilyCMYK {
		t.Fatalf("family %s", d.Family)
	}
}

func TestIndexedOverICCBased(t *testing.T) {
	inner := raw.NewArray(raw.NameLiteral("ICCBased"), iccStream(3, ""))
	arr := raw.NewArray(
		raw.NameLiteral("Indexed"),
		inner,
		raw.NumberInt(0),
		raw.Str([]byte{7, 8, 9}),
	)
	d, err := Resolve(context.Background(), directSource{}, arr)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if d.Terminal().Family != FamilyRGB {
		t.Fatalf("terminal %s", d.Terminal().Family)
	}
	if d.ICCProfile == nil {
		t.Fatal("profile must survive the Indexed wrapper")
	}
}

func TestSeparationUnsupported(t *testing.T) {
	arr := raw.NewArray(raw.NameLiteral("Separation"), raw.NameLiteral("Spot"), raw.NameLiteral("DeviceCMYK"))
	_, err := Resolve(context.Background(), directSource{}, arr)
	if !errors.Is(err, ErrUnsupportedColorSpace) {
		t.Fatalf("expected ErrUnsupportedColorSpace, got %v", err)
	}
}
