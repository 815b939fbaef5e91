package builder

import (
	"encoding/binary"
	"testing"
)

func codestreamWithSIZ(w, h, comps int) []byte {
	out := []byte{0xFF, 0x4F} // SOC
	seg := make([]byte, 38)
	binary.BigEndian.PutUint16(seg[0:2], 38)
	binary.BigEndian.PutUint32(seg[4:8], uint32(w))
	binary.BigEndian.PutUint32(seg[8:12], uint32(h))
	binary.BigEndian.PutUint16(seg[34:36], uint16(comps))
	out = append(out, 0xFF, 0x51)
	return append(out, seg...)
}

func TestSniffCodestream(t *testing.T) {
	info, err := sniffJPX(codestreamWithSIZ(640, 480, 3))
	if err != nil {
		t.Fatalf("sniff: %v", err)
	}
	if info.Width != 640 || info.Height != 480 || info.Components != 3 {
		t.Fatalf("info %+v", info)
	}
}

func TestSniffJP2Boxes(t *testing.T) {
	sig := []byte{0, 0, 0, 12, 'j', 'P', ' ', ' ', 0x0D, 0x0A, 0x87, 0x0A}
	ihdr := make([]byte, 8+10)
	binary.BigEndian.PutUint32(ihdr[0:4], uint32(len(ihdr)))
	copy(ihdr[4:8], "ihdr")
	binary.BigEndian.PutUint32(ihdr[8:12], 200) // height
	binary.BigEndian.PutUint32(ihdr[12:16], 100) // width
	binary.BigEndian.PutUint16(ihdr[16:18], 1)

	jp2h := make([]byte, 8)
	binary.BigEndian.PutUint32(jp2h[0:4], uint32(8+len(ihdr)))
	copy(jp2h[4:8], "jp2h")
	data := append(append(sig, jp2h...), ihdr...)

	info, err := sniffJPX(data)
	if err != nil {
		t.Fatalf("sniff: %v", err)
	}
	if info.Width != 100 || info.Height != 200 || info.Components != 1 {
		t.Fatalf("info %+v", info)
	}
}

func TestSniffRejectsGarbage(t *testing.T) {
	if _, err := sniffJPX([]byte{1, 2, 3, 4}); err == nil {
		t.Fatal("expected error")
	}
}

func TestProJPXPassthrough(t *testing.T) {
	blob := codestreamWithSIZ(2, 2, 1)
	b, err := New(RendererPro, Config{Width: 2, Height: 2, Space: graySpace()})
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	if err := b.ReadBlob(blob); err != nil {
		t.Fatalf("read: %v", err)
	}
	if err := b.Finalize(); err != nil {
		t.Fatalf("finalize: %v", err)
	}
	res, _ := b.Result()
	if res.NativeFormat != "jpx" || len(res.Native) != len(blob) {
		t.Fatalf("native %q len %d", res.NativeFormat, len(res.Native))
	}
	if res.Pix != nil {
		t.Fatal("JPX passthrough must not carry sample pixels")
	}
}
