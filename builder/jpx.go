package builder

import (
	"encoding/binary"
	"errors"
)

// jpxInfo is the little the pipeline needs from a JPEG 2000 container:
// enough to validate it against the image dictionary.
type jpxInfo struct {
	Width, Height int
	Components    int
}

// sniffJPX reads the image header from a bare codestream (SIZ segment)
// or a JP2 box file (ihdr box).
func sniffJPX(data []byte) (jpxInfo, error) {
	if len(data) >= 4 && data[0] == 0xFF && data[1] == 0x4F {
		return sniffCodestream(data)
	}
	if len(data) >= 12 && string(data[4:8]) == "jP  " {
		return sniffJP2(data)
	}
	return jpxInfo{}, errors.New("not a JPEG 2000 container")
}

// sniffCodestream scans for the SIZ marker (0xFF51) following SOC.
func sniffCodestream(data []byte) (jpxInfo, error) {
	for i := 2; i+38 <= len(data); {
		if data[i] != 0xFF {
			return jpxInfo{}, errors.New("malformed codestream")
		}
		marker := data[i+1]
		if marker == 0x51 { // SIZ
			seg := data[i+2:]
			xsiz := binary.BigEndian.Uint32(seg[4:8])
			ysiz := binary.BigEndian.Uint32(seg[8:12])
			xo := binary.BigEndian.Uint32(seg[12:16])
			yo := binary.BigEndian.Uint32(seg[16:20])
			csiz := binary.BigEndian.Uint16(seg[34:36])
			return jpxInfo{
				Width:      int(xsiz - xo),
				Height:     int(ysiz - yo),
				Components: int(csiz),
			}, nil
		}
		if i+4 > len(data) {
			break
		}
		segLen := int(binary.BigEndian.Uint16(data[i+2 : i+4]))
		i += 2 + segLen
	}
	return jpxInfo{}, errors.New("SIZ segment not found")
}

// sniffJP2 walks top-level boxes to jp2h/ihdr.
func sniffJP2(data []byte) (jpxInfo, error) {
	pos := 0
	for pos+8 <= len(data) {
		boxLen := int(binary.BigEndian.Uint32(data[pos : pos+4]))
		boxType := string(data[pos+4 : pos+8])
		if boxLen == 0 {
			boxLen = len(data) - pos
		}
		if boxLen < 8 || pos+boxLen > len(data) {
			break
		}
		if boxType == "jp2h" {
			inner := data[pos+8 : pos+boxLen]
			for ip := 0; ip+8 <= len(inner); {
				il := int(binary.BigEndian.Uint32(inner[ip : ip+4]))
				it := string(inner[ip+4 : ip+8])
				if il < 8 || ip+il > len(inner) {
					break
				}
				if it == "ihdr" && il >= 8+10 {
					body := inner[ip+8:]
					return jpxInfo{
						Height:     int(binary.BigEndian.Uint32(body[0:4])),
						Width:      int(binary.BigEndian.Uint32(body[4:8])),
						Components: int(binary.BigEndian.Uint16(body[8:10])),
					}, nil
				}
				ip += il
			}
		}
		pos += boxLen
	}
	return jpxInfo{}, errors.New("ihdr box not found")
}
