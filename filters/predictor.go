package filters

import (
	"errors"

	"github.com/wudi/pdfimages/ir/raw"
)

// applyPredictor undoes the Predictor stage declared in a Flate/LZW
// parameter dictionary. Predictor 1 (or absent) is a no-op, 2 is the
// TIFF horizontal differencer, >= 10 are the PNG row filters.
func applyPredictor(data []byte, params raw.Dictionary) ([]byte, error) {
	predictor := int64(1)
	if v, ok := raw.DictInt(params, "Predictor"); ok {
		predictor = v
	}
	if predictor == 1 {
		return data, nil
	}
	colors := int64(1)
	if v, ok := raw.DictInt(params, "Colors"); ok {
		colors = v
	}
	bpc := int64(8)
	if v, ok := raw.DictInt(params, "BitsPerComponent"); ok {
		bpc = v
	}
	columns := int64(1)
	if v, ok := raw.DictInt(params, "Columns"); ok {
		columns = v
	}
	if colors <= 0 || bpc <= 0 || columns <= 0 {
		return nil, errors.New("invalid predictor parameters")
	}

	rowLen := int((colors*bpc*columns + 7) / 8)
	bpp := int((colors*bpc + 7) / 8)

	if predictor == 2 {
		return tiffPredictor(data, rowLen, bpp, int(bpc))
	}
	if predictor >= 10 {
		return pngPredictor(data, rowLen, bpp)
	}
	return nil, errors.New("unknown predictor")
}

func tiffPredictor(data []byte, rowLen, bpp, bpc int) ([]byte, error) {
	if bpc != 8 {
		// sub-byte TIFF prediction is vanishingly rare; reject rather
		// than silently corrupt
		return nil, errors.New("TIFF predictor requires 8 bits per component")
	}
	for r := 0; r+rowLen <= len(data); r += rowLen {
		row := data[r : r+rowLen]
		for i := bpp; i < len(row); i++ {
			row[i] += row[i-bpp]
		}
	}
	return data, nil
}

func pngPredictor(data []byte, rowLen, bpp int) ([]byte, error) {
	stride := rowLen + 1
	if len(data)%stride != 0 {
		// tolerate a short final row from sloppy producers
		data = data[:len(data)/stride*stride]
	}
	rows := len(data) / stride
	out := make([]byte, 0, rows*rowLen)
	prev := make([]byte, rowLen)
	cur := make([]byte, rowLen)
	for r := 0; r < rows; r++ {
		ft := data[r*stride]
		copy(cur, data[r*stride+1:(r+1)*stride])
		switch ft {
		case 0: // None
		case 1: // Sub
			for i := bpp; i < rowLen; i++ {
				cur[i] += cur[i-bpp]
			}
		case 2: // Up
			for i := 0; i < rowLen; i++ {
				cur[i] += prev[i]
			}
		case 3: // Average
			for i := 0; i < rowLen; i++ {
				var left byte
				if i >= bpp {
					left = cur[i-bpp]
				}
				cur[i] += byte((int(left) + int(prev[i])) / 2)
			}
		case 4: // Paeth
			for i := 0; i < rowLen; i++ {
				var left, upLeft byte
				if i >= bpp {
					left = cur[i-bpp]
					upLeft = prev[i-bpp]
				}
				cur[i] += paeth(left, prev[i], upLeft)
			}
		default:
			return nil, errors.New("invalid PNG filter type")
		}
		out = append(out, cur...)
		prev, cur = cur, prev
	}
	return out, nil
}

func paeth(a, b, c byte) byte {
	p := int(a) + int(b) - int(c)
	pa, pb, pc := abs(p-int(a)), abs(p-int(b)), abs(p-int(c))
	if pa <= pb && pa <= pc {
		return a
	}
	if pb <= pc {
		return b
	}
	return c
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
