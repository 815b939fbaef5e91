package filters

import (
	"encoding/binary"
	"errors"

	"github.com/wudi/pdfimages/ir/raw"
)

// CCITTParams carries the CCITTFaxDecode parameters a raster reader
// needs to decode the strip.
type CCITTParams struct {
	K                int
	Columns          int
	Rows             int
	BlackIs1         bool
	EncodedByteAlign bool
}

const ccittNumTags = 10

// tiffHeaderLen is also the StripOffsets value: an 8-byte header, a
// 2-byte tag count, 10 tags, and a 2-byte terminator.
const tiffHeaderLen = 12 + 12*ccittNumTags

// WrapCCITT synthesizes a minimal little-endian TIFF around a raw
// CCITT payload so raster readers can consume it through their blob
// path. Rows falls back to the image dictionary's /Height.
func WrapCCITT(payload []byte, params raw.Dictionary, imageDict raw.Dictionary) ([]byte, error) {
	p := ccittParamsFrom(params, imageDict)
	if p.Columns <= 0 || p.Rows <= 0 {
		return nil, errors.New("CCITT dimensions unavailable")
	}

	compression := uint32(4) // Group 4
	if p.K >= 0 {
		compression = 3 // Group 3
	}
	var groupOptions uint32
	if p.K > 0 {
		groupOptions |= 0x01
	}
	if p.EncodedByteAlign {
		groupOptions |= 0x04
	}
	optionsTag := uint16(293) // T6Options
	if p.K >= 0 {
		optionsTag = 292 // T4Options
	}
	photometric := uint32(0) // WhiteIsZero
	if p.BlackIs1 {
		photometric = 1
	}

	out := make([]byte, 0, tiffHeaderLen+len(payload))
	out = append(out, 'I', 'I', 42, 0)
	out = binary.LittleEndian.AppendUint32(out, 8) // first IFD offset
	out = binary.LittleEndian.AppendUint16(out, ccittNumTags)
	tag := func(id uint16, typ uint16, value uint32) {
		out = binary.LittleEndian.AppendUint16(out, id)
		out = binary.LittleEndian.AppendUint16(out, typ)
		out = binary.LittleEndian.AppendUint32(out, 1) // count
		out = binary.LittleEndian.AppendUint32(out, value)
	}
	tag(256, 4, uint32(p.Columns))     // ImageWidth
	tag(257, 4, uint32(p.Rows))        // ImageLength
	tag(258, 3, 1)                     // BitsPerSample
	tag(259, 3, compression)           // Compression
	tag(262, 3, photometric)           // PhotometricInterpretation
	tag(273, 4, tiffHeaderLen)         // StripOffsets
	tag(277, 3, 1)                     // SamplesPerPixel
	tag(278, 4, uint32(p.Rows))        // RowsPerStrip
	tag(279, 4, uint32(len(payload)))  // StripByteCounts
	tag(optionsTag, 4, groupOptions)   // T4Options / T6Options
	out = binary.LittleEndian.AppendUint16(out, 0)
	out = append(out, payload...)
	return out, nil
}

// ReadCCITT splits a TIFF produced by WrapCCITT back into its decode
// parameters and the raw strip.
func ReadCCITT(blob []byte) (CCITTParams, []byte, error) {
	if len(blob) < tiffHeaderLen || blob[0] != 'I' || blob[1] != 'I' || blob[2] != 42 {
		return CCITTParams{}, nil, errors.New("not a wrapped CCITT TIFF")
	}
	count := int(binary.LittleEndian.Uint16(blob[8:]))
	var p CCITTParams
	var stripOff, stripLen uint32
	compression := uint32(4)
	var options uint32
	for i := 0; i < count; i++ {
		base := 10 + 12*i
		if base+12 > len(blob) {
			return CCITTParams{}, nil, errors.New("truncated TIFF IFD")
		}
		id := binary.LittleEndian.Uint16(blob[base:])
		value := binary.LittleEndian.Uint32(blob[base+8:])
		switch id {
		case 256:
			p.Columns = int(value)
		case 257:
			p.Rows = int(value)
		case 259:
			compression = value
		case 262:
			p.BlackIs1 = value == 1
		case 273:
			stripOff = value
		case 279:
			stripLen = value
		case 292, 293:
			options = value
		}
	}
	switch compression {
	case 3:
		p.K = 0
		if options&0x01 != 0 {
			p.K = 1
		}
	case 4:
		p.K = -1
	default:
		return CCITTParams{}, nil, errors.New("unexpected TIFF compression")
	}
	p.EncodedByteAlign = options&0x04 != 0
	end := int64(stripOff) + int64(stripLen)
	if int64(stripOff) > int64(len(blob)) || end > int64(len(blob)) {
		return CCITTParams{}, nil, errors.New("TIFF strip out of range")
	}
	return p, blob[stripOff:end], nil
}

func ccittParamsFrom(params raw.Dictionary, imageDict raw.Dictionary) CCITTParams {
	p := CCITTParams{K: 0, Columns: 1728}
	if v, ok := raw.DictInt(params, "K"); ok {
		p.K = int(v)
	}
	if v, ok := raw.DictInt(params, "Columns"); ok {
		p.Columns = int(v)
	}
	if v, ok := raw.DictInt(params, "Rows"); ok {
		p.Rows = int(v)
	}
	if p.Rows == 0 {
		if v, ok := raw.DictInt(imageDict, "Height"); ok {
			p.Rows = int(v)
		}
	}
	if v, ok := raw.DictBool(params, "BlackIs1"); ok {
		p.BlackIs1 = v
	}
	if v, ok := raw.DictBool(params, "EncodedByteAlign"); ok {
		p.EncodedByteAlign = v
	}
	return p
}
