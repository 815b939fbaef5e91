package contentstream

import (
	"errors"
	"fmt"

	"github.com/wudi/pdfimages/ir/raw"
	"github.com/wudi/pdfimages/scanner"
)

// Inline image dictionaries abbreviate both keys and color space
// names (PDF 8.9.7); the expansion is bit-exact so downstream code
// sees ordinary image dictionaries.
var inlineKeyExpansion = map[string]string{
	"BPC": "BitsPerComponent",
	"CS":  "ColorSpace",
	"D":   "Decode",
	"DP":  "DecodeParms",
	"F":   "Filter",
	"H":   "Height",
	"IM":  "ImageMask",
	"I":   "Interpolate",
	"W":   "Width",
	"L":   "Length",
}

var inlineColorSpaceExpansion = map[string]string{
	"G":    "DeviceGray",
	"RGB":  "DeviceRGB",
	"CMYK": "DeviceCMYK",
	"I":    "Indexed",
}

var inlineFilterExpansion = map[string]string{
	"AHx": "ASCIIHexDecode",
	"A85": "ASCII85Decode",
	"LZW": "LZWDecode",
	"Fl":  "FlateDecode",
	"RL":  "RunLengthDecode",
	"CCF": "CCITTFaxDecode",
	"DCT": "DCTDecode",
}

// readInlineImage parses key/value pairs after BI up to ID, then the
// payload token. A /L (or /Length) entry switches the scanner to
// exact-length capture, avoiding EI false positives inside binary
// payloads.
func readInlineImage(sc scanner.Scanner) (*raw.DictObj, []byte, error) {
	dict := raw.Dict()
	for {
		tok, err := sc.Next()
		if err != nil {
			return nil, nil, fmt.Errorf("inline image dictionary: %w", err)
		}
		if tok.Type == scanner.TokenInlineImage {
			return expandInlineDict(dict), tok.Value.([]byte), nil
		}
		if tok.Type != scanner.TokenName {
			return nil, nil, errors.New("inline image: name key expected")
		}
		key := tok.Value.(string)
		valTok, err := sc.Next()
		if err != nil {
			return nil, nil, fmt.Errorf("inline image value for %s: %w", key, err)
		}
		val, err := scanner.ObjectFromToken(sc, valTok)
		if err != nil {
			return nil, nil, fmt.Errorf("inline image value for %s: %w", key, err)
		}
		dict.Set(raw.NameObj{Val: key}, val)
		if key == "L" || key == "Length" {
			if n, ok := raw.AsNumber(val); ok {
				sc.SetNextInlineLength(n.Int())
			}
		}
	}
}

// expandInlineDict rewrites abbreviated keys and values to their full
// spellings.
func expandInlineDict(in *raw.DictObj) *raw.DictObj {
	out := raw.Dict()
	for key, val := range in.KV {
		if full, ok := inlineKeyExpansion[key]; ok {
			key = full
		}
		switch key {
		case "ColorSpace":
			val = expandColorSpaceValue(val)
		case "Filter":
			val = expandFilterValue(val)
		}
		out.Set(raw.NameObj{Val: key}, val)
	}
	return out
}

func expandColorSpaceValue(val raw.Object) raw.Object {
	if name, ok := raw.AsName(val); ok {
		if full, ok := inlineColorSpaceExpansion[name]; ok {
			return raw.NameLiteral(full)
		}
		return val
	}
	if arr, ok := raw.AsArray(val); ok && arr.Len() > 0 {
		if head, ok2 := arr.Get(0); ok2 {
			if name, ok3 := raw.AsName(head); ok3 {
				if full, ok4 := inlineColorSpaceExpansion[name]; ok4 && name == "I" {
					items := make([]raw.Object, arr.Len())
					items[0] = raw.NameLiteral(full)
					for i := 1; i < arr.Len(); i++ {
						items[i], _ = arr.Get(i)
					}
					return &raw.ArrayObj{Items: items}
				}
			}
		}
	}
	return val
}

func expandFilterValue(val raw.Object) raw.Object {
	expand := func(name string) string {
		if full, ok := inlineFilterExpansion[name]; ok {
			return full
		}
		return name
	}
	if name, ok := raw.AsName(val); ok {
		return raw.NameLiteral(expand(name))
	}
	if arr, ok := raw.AsArray(val); ok {
		items := make([]raw.Object, arr.Len())
		for i := 0; i < arr.Len(); i++ {
			item, _ := arr.Get(i)
			if name, ok := raw.AsName(item); ok {
				items[i] = raw.NameLiteral(expand(name))
			} else {
				items[i] = item
			}
		}
		return &raw.ArrayObj{Items: items}
	}
	return val
}
