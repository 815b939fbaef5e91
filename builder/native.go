package builder

import (
	"bytes"
	"fmt"
	"image"
	"image/jpeg"
	"io"

	"golang.org/x/image/ccitt"

	"github.com/wudi/pdfimages/filters"
)

// sniffNative classifies a native blob by signature: JPEG SOI, the
// TIFF wrapper produced for CCITT payloads, JP2 box or bare JPEG 2000
// codestream.
func sniffNative(data []byte) string {
	switch {
	case len(data) >= 2 && data[0] == 0xFF && data[1] == 0xD8:
		return filters.NativeDCT
	case len(data) >= 4 && data[0] == 'I' && data[1] == 'I' && data[2] == 42 && data[3] == 0:
		return filters.NativeCCITT
	case len(data) >= 2 && data[0] == 0xFF && data[1] == 0x4F:
		return filters.NativeJPX
	case len(data) >= 12 && bytes.Equal(data[4:12], []byte{'j', 'P', ' ', ' ', 0x0D, 0x0A, 0x87, 0x0A}):
		return filters.NativeJPX
	default:
		return ""
	}
}

// decodeJPEG reduces a DCT container to interleaved components:
// 1 (gray), 3 (RGB) or 4 (CMYK, raw planes as stored).
func decodeJPEG(data []byte) (w, h, comps int, pix []byte, err error) {
	img, err := jpeg.Decode(bytes.NewReader(data))
	if err != nil {
		return 0, 0, 0, nil, fmt.Errorf("decode DCT: %w", err)
	}
	bounds := img.Bounds()
	w, h = bounds.Dx(), bounds.Dy()

	switch im := img.(type) {
	case *image.Gray:
		pix = make([]byte, w*h)
		for y := 0; y < h; y++ {
			copy(pix[y*w:], im.Pix[y*im.Stride:y*im.Stride+w])
		}
		return w, h, 1, pix, nil
	case *image.CMYK:
		pix = make([]byte, w*h*4)
		for y := 0; y < h; y++ {
			copy(pix[y*w*4:], im.Pix[y*im.Stride:y*im.Stride+w*4])
		}
		return w, h, 4, pix, nil
	default:
		pix = make([]byte, w*h*3)
		i := 0
		for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
			for x := bounds.Min.X; x < bounds.Max.X; x++ {
				r, g, b, _ := img.At(x, y).RGBA()
				pix[i] = byte(r >> 8)
				pix[i+1] = byte(g >> 8)
				pix[i+2] = byte(b >> 8)
				i += 3
			}
		}
		return w, h, 3, pix, nil
	}
}

// decodeCCITT unwraps the TIFF container and decodes the Group 3/4
// strip to an 8-bit gray plane.
func decodeCCITT(blob []byte, width, height int) ([]byte, error) {
	params, strip, err := filters.ReadCCITT(blob)
	if err != nil {
		return nil, err
	}
	sf := ccitt.Group4
	if params.K >= 0 {
		sf = ccitt.Group3
	}
	opts := &ccitt.Options{Invert: params.BlackIs1, Align: params.EncodedByteAlign}
	dst := image.NewGray(image.Rect(0, 0, params.Columns, params.Rows))
	err = ccitt.DecodeIntoGray(dst, bytes.NewReader(strip), ccitt.MSB, sf, opts)
	if err != nil && err != io.ErrUnexpectedEOF {
		return nil, fmt.Errorf("decode CCITT: %w", err)
	}
	out := make([]byte, width*height)
	for y := 0; y < height && y < params.Rows; y++ {
		row := dst.Pix[y*dst.Stride:]
		n := width
		if params.Columns < n {
			n = params.Columns
		}
		copy(out[y*width:], row[:n])
	}
	return out, nil
}
