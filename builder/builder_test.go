package builder

import (
	"bytes"
	"image"
	"image/jpeg"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/wudi/pdfimages/colorspace"
)

func graySpace() *colorspace.Descriptor {
	return &colorspace.Descriptor{Family: colorspace.FamilyGray, Components: 1}
}

func rgbSpace() *colorspace.Descriptor {
	return &colorspace.Descriptor{Family: colorspace.FamilyRGB, Components: 3}
}

func indexedSpace(palette []byte, hival int) *colorspace.Descriptor {
	return &colorspace.Descriptor{
		Family:     colorspace.FamilyIndexed,
		Components: 1,
		Base:       rgbSpace(),
		HiVal:      hival,
		Palette:    palette,
	}
}

func TestRGBPixelsRowMajor(t *testing.T) {
	b, err := New(RendererPro, Config{Width: 2, Height: 2, Space: rgbSpace()})
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	raw := [][]byte{
		{0xFF, 0x00, 0x00},
		{0x00, 0xFF, 0x00},
		{0x00, 0x00, 0xFF},
		{0xFF, 0xFF, 0xFF},
	}
	for _, px := range raw {
		if err := b.WritePixel(px); err != nil {
			t.Fatalf("write: %v", err)
		}
	}
	if err := b.Finalize(); err != nil {
		t.Fatalf("finalize: %v", err)
	}
	res, err := b.Result()
	if err != nil {
		t.Fatalf("result: %v", err)
	}
	want := []byte{
		0xFF, 0x00, 0x00, 0x00, 0xFF, 0x00,
		0x00, 0x00, 0xFF, 0xFF, 0xFF, 0xFF,
	}
	if diff := cmp.Diff(want, res.Pix); diff != "" {
		t.Fatalf("pixels mismatch (-want +got):\n%s", diff)
	}
	if res.Width != 2 || res.Height != 2 || res.Space != colorspace.FamilyRGB {
		t.Fatalf("metadata %+v", res)
	}
}

func TestIndexedPaletteLookup(t *testing.T) {
	palette := []byte{0x00, 0x00, 0x00, 0xFF, 0xFF, 0xFF}
	space := indexedSpace(palette, 1)
	b, err := New(RendererPro, Config{Width: 8, Height: 1, Space: space})
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	for i := 0; i <= space.HiVal; i++ {
		b.AddIndexedColor(i, space.PaletteColor(i))
	}
	// alternating indices starting with black
	for i := 0; i < 8; i++ {
		if err := b.WritePixel([]byte{byte(i % 2)}); err != nil {
			t.Fatalf("write: %v", err)
		}
	}
	if err := b.Finalize(); err != nil {
		t.Fatalf("finalize: %v", err)
	}
	res, _ := b.Result()
	for i := 0; i < 8; i++ {
		want := byte(0x00)
		if i%2 == 1 {
			want = 0xFF
		}
		if res.Pix[i*3] != want || res.Pix[i*3+1] != want || res.Pix[i*3+2] != want {
			t.Fatalf("pixel %d: % x", i, res.Pix[i*3:i*3+3])
		}
	}
}

func TestNegationAppliedAtFinalize(t *testing.T) {
	b, err := New(RendererPro, Config{Width: 1, Height: 1, Space: graySpace()})
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	b.SetNegated(true)
	if err := b.WritePixel([]byte{0x40}); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := b.Finalize(); err != nil {
		t.Fatalf("finalize: %v", err)
	}
	res, _ := b.Result()
	if res.Pix[0] != 0xBF {
		t.Fatalf("negated sample: got %#x want 0xbf", res.Pix[0])
	}
}

func TestNegationLeavesAlphaAlone(t *testing.T) {
	mask, err := NewColorKeyMask([]int{1, 1}, indexedSpace([]byte{0, 0, 0, 9, 9, 9}, 1))
	if err != nil {
		t.Fatalf("mask: %v", err)
	}
	b, err := New(RendererLite, Config{Width: 2, Height: 1, Space: indexedSpace([]byte{0, 0, 0, 9, 9, 9}, 1), Mask: mask})
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	b.SetNegated(true)
	b.WritePixel([]byte{0})
	b.WritePixel([]byte{1})
	if err := b.Finalize(); err != nil {
		t.Fatalf("finalize: %v", err)
	}
	res, _ := b.Result()
	if res.Alpha[0] != 255 || res.Alpha[1] != 0 {
		t.Fatalf("alpha %v", res.Alpha)
	}
}

func TestWritePastBoundsFails(t *testing.T) {
	b, _ := New(RendererPro, Config{Width: 1, Height: 1, Space: graySpace()})
	if err := b.WritePixel([]byte{1}); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := b.WritePixel([]byte{2}); err == nil {
		t.Fatal("expected error past bounds")
	}
}

func TestLiteRejectsCCITT(t *testing.T) {
	b, _ := New(RendererLite, Config{Width: 1, Height: 1, Space: graySpace()})
	if b.CanRead("CCITTFaxDecode") {
		t.Fatal("lite must not read CCITT")
	}
	if !b.CanRead("DCTDecode") {
		t.Fatal("lite must read DCT for gray")
	}
}

func TestProAcceptsNativeSet(t *testing.T) {
	b, _ := New(RendererPro, Config{Width: 1, Height: 1, Space: rgbSpace()})
	for _, native := range []string{"DCTDecode", "JPXDecode", "CCITTFaxDecode"} {
		if !b.CanRead(native) {
			t.Errorf("pro must read %s", native)
		}
	}
	if b.CanRead("FlateDecode") {
		t.Error("Flate is not a native container")
	}
}

func TestLiteRejectsFourComponentDCT(t *testing.T) {
	space := &colorspace.Descriptor{Family: colorspace.FamilyCMYK, Components: 4}
	b, _ := New(RendererLite, Config{Width: 1, Height: 1, Space: space})
	if b.CanRead("DCTDecode") {
		t.Fatal("lite must reject DCT for CMYK")
	}
}

func TestProReadsGrayJPEG(t *testing.T) {
	src := image.NewGray(image.Rect(0, 0, 4, 4))
	for i := range src.Pix {
		src.Pix[i] = 0x80
	}
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, src, nil); err != nil {
		t.Fatalf("encode: %v", err)
	}

	b, _ := New(RendererPro, Config{Width: 4, Height: 4, Space: graySpace()})
	if err := b.ReadBlob(buf.Bytes()); err != nil {
		t.Fatalf("read blob: %v", err)
	}
	if err := b.Finalize(); err != nil {
		t.Fatalf("finalize: %v", err)
	}
	res, _ := b.Result()
	for i, v := range res.Pix {
		if v < 0x78 || v > 0x88 {
			t.Fatalf("pixel %d drifted: %#x", i, v)
		}
	}
}

func TestResultBeforeFinalizeFails(t *testing.T) {
	b, _ := New(RendererPro, Config{Width: 1, Height: 1, Space: graySpace()})
	if _, err := b.Result(); err == nil {
		t.Fatal("expected error before finalize")
	}
}
