package filters

import (
	"bytes"
	"compress/flate"
	"compress/zlib"
	"context"
	stdascii85 "encoding/ascii85"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/hhrutter/lzw"

	"github.com/wudi/pdfimages/ir/raw"
)

// ErrUnsupportedFilter is returned for unknown filter names and for
// native-container filters appearing before the final chain position.
var ErrUnsupportedFilter = errors.New("unsupported filter")

type Decoder interface {
	Name() string
	Decode(ctx context.Context, input []byte, params raw.Dictionary) ([]byte, error)
}

type Pipeline struct {
	decoders []Decoder
	limits   Limits
}

// NewPipeline constructs a pipeline with provided decoders and limits.
func NewPipeline(decoders []Decoder, limits Limits) *Pipeline {
	return &Pipeline{decoders: decoders, limits: limits}
}

// NewStandardPipeline returns a pipeline with the five fully-decoding
// standard filters.
func NewStandardPipeline(limits Limits) *Pipeline {
	return NewPipeline([]Decoder{
		NewFlateDecoder(),
		NewLZWDecoder(),
		NewASCII85Decoder(),
		NewASCIIHexDecoder(),
		NewRunLengthDecoder(),
	}, limits)
}

type Limits struct {
	MaxDecompressedSize int64
	MaxDecodeTime       time.Duration
}

func (p *Pipeline) findDecoder(name string) Decoder {
	for _, d := range p.decoders {
		if d.Name() == name {
			return d
		}
	}
	return nil
}

func (p *Pipeline) Decode(ctx context.Context, input []byte, filterNames []string, params []raw.Dictionary) ([]byte, error) {
	data := input
	for i, name := range filterNames {
		dec := p.findDecoder(name)
		if dec == nil {
			return nil, fmt.Errorf("%w: %s", ErrUnsupportedFilter, name)
		}
		if p.limits.MaxDecompressedSize > 0 && int64(len(data)) > p.limits.MaxDecompressedSize {
			return nil, errors.New("decompressed size exceeds limit")
		}
		var param raw.Dictionary
		if i < len(params) {
			param = params[i]
		}
		out, err := dec.Decode(ctx, data, param)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", name, err)
		}
		if p.limits.MaxDecompressedSize > 0 && int64(len(out)) > p.limits.MaxDecompressedSize {
			return nil, errors.New("decompressed size exceeds limit")
		}
		data = out
	}
	return data, nil
}

type Registry struct{ decoders map[string]Decoder }

func (r *Registry) Register(d Decoder) {
	if r.decoders == nil {
		r.decoders = make(map[string]Decoder)
	}
	r.decoders[d.Name()] = d
}
func (r *Registry) Get(name string) (Decoder, bool) { d, ok := r.decoders[name]; return d, ok }

// FlateDecode

type flateDecoder struct{}

func (flateDecoder) Name() string { return "FlateDecode" }
func NewFlateDecoder() Decoder    { return flateDecoder{} }

func (flateDecoder) Decode(ctx context.Context, in []byte, params raw.Dictionary) ([]byte, error) {
	// some producers emit a zlib wrapper, others raw deflate; try the
	// checksummed form first when the header is plausible
	if len(in) >= 2 && in[0]&0x0f == 8 && (uint16(in[0])<<8|uint16(in[1]))%31 == 0 {
		if zr, err := zlib.NewReader(bytes.NewReader(in)); err == nil {
			var out bytes.Buffer
			_, err := io.Copy(&out, zr)
			zr.Close()
			if err == nil || errors.Is(err, io.ErrUnexpectedEOF) {
				return applyPredictor(out.Bytes(), params)
			}
		}
	}
	r := flate.NewReader(bytes.NewReader(in))
	defer r.Close()

	var out bytes.Buffer
	if _, err := io.Copy(&out, r); err != nil && !errors.Is(err, io.ErrUnexpectedEOF) {
		return nil, err
	}
	return applyPredictor(out.Bytes(), params)
}

// LZWDecode
//
// PDF LZW defaults to EarlyChange=1 (code width bumps one code early),
// which compress/lzw cannot express; the hhrutter fork can.

type lzwDecoder struct{}

func (lzwDecoder) Name() string { return "LZWDecode" }
func NewLZWDecoder() Decoder    { return lzwDecoder{} }

func (lzwDecoder) Decode(ctx context.Context, in []byte, params raw.Dictionary) ([]byte, error) {
	early := true
	if v, ok := raw.DictInt(params, "EarlyChange"); ok {
		early = v != 0
	}
	r := lzw.NewReader(bytes.NewReader(in), early)
	defer r.Close()

	var out bytes.Buffer
	if _, err := io.Copy(&out, r); err != nil && !errors.Is(err, io.ErrUnexpectedEOF) {
		return nil, err
	}
	return applyPredictor(out.Bytes(), params)
}

// ASCII85Decode

type ascii85Decoder struct{}

func (ascii85Decoder) Name() string { return "ASCII85Decode" }
func NewASCII85Decoder() Decoder    { return ascii85Decoder{} }

func (ascii85Decoder) Decode(ctx context.Context, in []byte, params raw.Dictionary) ([]byte, error) {
	trimmed := bytes.TrimSpace(in)
	if bytes.HasPrefix(trimmed, []byte("<~")) {
		trimmed = trimmed[2:]
	}
	if i := bytes.Index(trimmed, []byte("~>")); i >= 0 {
		trimmed = trimmed[:i]
	}
	out := make([]byte, len(trimmed)*2)
	n, _, err := stdascii85.Decode(out, trimmed, true)
	if err != nil {
		return nil, err
	}
	return out[:n], nil
}

// ASCIIHexDecode

type asciiHexDecoder struct{}

func (asciiHexDecoder) Name() string { return "ASCIIHexDecode" }
func NewASCIIHexDecoder() Decoder    { return asciiHexDecoder{} }

func (asciiHexDecoder) Decode(ctx context.Context, in []byte, params raw.Dictionary) ([]byte, error) {
	compact := make([]byte, 0, len(in))
	for _, c := range in {
		switch {
		case c == '>':
			goto done
		case c == 0x00 || c == 0x09 || c == 0x0A || c == 0x0C || c == 0x0D || c == 0x20:
			// whitespace allowed anywhere
		default:
			compact = append(compact, c)
		}
	}
done:
	// odd nibble count implies a trailing 0 per spec
	if len(compact)%2 == 1 {
		compact = append(compact, '0')
	}
	result := make([]byte, hex.DecodedLen(len(compact)))
	n, err := hex.Decode(result, compact)
	if err != nil {
		return nil, err
	}
	return result[:n], nil
}

// RunLengthDecode

type runLengthDecoder struct{}

func (runLengthDecoder) Name() string { return "RunLengthDecode" }
func NewRunLengthDecoder() Decoder    { return runLengthDecoder{} }

func (runLengthDecoder) Decode(ctx context.Context, in []byte, params raw.Dictionary) ([]byte, error) {
	var out bytes.Buffer
	for i := 0; i < len(in); {
		l := in[i]
		i++
		switch {
		case l == 128: // EOD
			return out.Bytes(), nil
		case l < 128:
			n := int(l) + 1
			if i+n > len(in) {
				return nil, errors.New("run length literal truncated")
			}
			out.Write(in[i : i+n])
			i += n
		default:
			if i >= len(in) {
				return nil, errors.New("run length repeat truncated")
			}
			n := 257 - int(l)
			for j := 0; j < n; j++ {
				out.WriteByte(in[i])
			}
			i++
		}
	}
	return out.Bytes(), nil
}
