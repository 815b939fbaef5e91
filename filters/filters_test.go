package filters

import (
	"bytes"
	"compress/flate"
	"context"
	"encoding/ascii85"
	"testing"

	"github.com/hhrutter/lzw"

	"github.com/wudi/pdfimages/ir/raw"
)

func TestFlateDecode(t *testing.T) {
	var buf bytes.Buffer
	w, _ := flate.NewWriter(&buf, flate.BestSpeed)
	w.Write([]byte("hello world"))
	w.Close()

	dec := NewFlateDecoder()
	out, err := dec.Decode(context.Background(), buf.Bytes(), nil)
	if err != nil {
		t.Fatalf("decode error: %v", err)
	}
	if string(out) != "hello world" {
		t.Fatalf("unexpected output: %q", out)
	}
}

func TestFlateDecodeWithPredictor(t *testing.T) {
	var comp bytes.Buffer
	w, _ := flate.NewWriter(&comp, flate.BestSpeed)
	// PNG predictor row: filter byte 1 (Sub), then row bytes.
	w.Write([]byte{1, 10, 12, 20})
	w.Close()

	params := raw.Dict()
	params.Set(raw.NameObj{Val: "Predictor"}, raw.NumberInt(12))
	params.Set(raw.NameObj{Val: "Colors"}, raw.NumberInt(1))
	params.Set(raw.NameObj{Val: "BitsPerComponent"}, raw.NumberInt(8))
	params.Set(raw.NameObj{Val: "Columns"}, raw.NumberInt(3))

	dec := NewFlateDecoder()
	out, err := dec.Decode(context.Background(), comp.Bytes(), params)
	if err != nil {
		t.Fatalf("decode error: %v", err)
	}
	want := []byte{10, 22, 42}
	if !bytes.Equal(out, want) {
		t.Fatalf("predictor output mismatch: got %v want %v", out, want)
	}
}

func TestLZWDecode(t *testing.T) {
	var buf bytes.Buffer
	w := lzw.NewWriter(&buf, true)
	input := []byte("hello hello hello")
	if _, err := w.Write(input); err != nil {
		t.Fatalf("write: %v", err)
	}
	w.Close()

	dec := NewLZWDecoder()
	out, err := dec.Decode(context.Background(), buf.Bytes(), nil)
	if err != nil {
		t.Fatalf("decode error: %v", err)
	}
	if !bytes.Equal(out, input) {
		t.Fatalf("unexpected output: %q", out)
	}
}

func TestASCII85Decode(t *testing.T) {
	input := []byte("Go PDF image data")
	enc := make([]byte, ascii85.MaxEncodedLen(len(input)))
	n := ascii85.Encode(enc, input)
	wrapped := append(append([]byte("<~"), enc[:n]...), []byte("~>")...)

	dec := NewASCII85Decoder()
	out, err := dec.Decode(context.Background(), wrapped, nil)
	if err != nil {
		t.Fatalf("decode error: %v", err)
	}
	if !bytes.Equal(out, input) {
		t.Fatalf("unexpected output: %q", out)
	}
}

func TestASCIIHexDecode(t *testing.T) {
	dec := NewASCIIHexDecoder()
	out, err := dec.Decode(context.Background(), []byte("48 65 6C 6C 6F 7>"), nil)
	if err != nil {
		t.Fatalf("decode error: %v", err)
	}
	if string(out) != "Hellp" {
		t.Fatalf("unexpected output: %q", out)
	}
}

func TestRunLengthDecode(t *testing.T) {
	// literal "ab", then 'c' repeated 4 times, then EOD
	in := []byte{1, 'a', 'b', 254, 'c', 128}
	dec := NewRunLengthDecoder()
	out, err := dec.Decode(context.Background(), in, nil)
	if err != nil {
		t.Fatalf("decode error: %v", err)
	}
	if string(out) != "abcccc" {
		t.Fatalf("unexpected output: %q", out)
	}
}

func TestTIFFPredictor(t *testing.T) {
	params := raw.Dict()
	params.Set(raw.NameObj{Val: "Predictor"}, raw.NumberInt(2))
	params.Set(raw.NameObj{Val: "Colors"}, raw.NumberInt(1))
	params.Set(raw.NameObj{Val: "BitsPerComponent"}, raw.NumberInt(8))
	params.Set(raw.NameObj{Val: "Columns"}, raw.NumberInt(4))

	out, err := applyPredictor([]byte{10, 5, 5, 5}, params)
	if err != nil {
		t.Fatalf("predictor: %v", err)
	}
	want := []byte{10, 15, 20, 25}
	if !bytes.Equal(out, want) {
		t.Fatalf("got %v want %v", out, want)
	}
}

func TestPipelineUnknownFilter(t *testing.T) {
	p := NewStandardPipeline(Limits{})
	if _, err := p.Decode(context.Background(), nil, []string{"BogusDecode"}, nil); err == nil {
		t.Fatal("expected error for unknown filter")
	}
}

func TestChainFullyDecodes(t *testing.T) {
	var buf bytes.Buffer
	w, _ := flate.NewWriter(&buf, flate.BestSpeed)
	w.Write([]byte{1, 2, 3, 4})
	w.Close()

	c := NewChain(Limits{})
	res, err := c.Apply(context.Background(), buf.Bytes(), []string{"FlateDecode"}, nil, raw.Dict())
	if err != nil {
		t.Fatalf("apply: %v", err)
	}
	if res.Native != "" {
		t.Fatalf("unexpected native tag %q", res.Native)
	}
	if !bytes.Equal(res.Data, []byte{1, 2, 3, 4}) {
		t.Fatalf("data %v", res.Data)
	}
}

func TestChainNativeMustBeFinal(t *testing.T) {
	c := NewChain(Limits{})
	_, err := c.Apply(context.Background(), []byte{0xFF, 0xD8}, []string{"DCTDecode", "FlateDecode"}, nil, raw.Dict())
	if err == nil {
		t.Fatal("expected error for DCT before final position")
	}
}

func TestChainPassesThroughDCT(t *testing.T) {
	c := NewChain(Limits{})
	blob := []byte{0xFF, 0xD8, 0xFF, 0xE0}
	res, err := c.Apply(context.Background(), blob, []string{"DCTDecode"}, nil, raw.Dict())
	if err != nil {
		t.Fatalf("apply: %v", err)
	}
	if res.Native != NativeDCT || !bytes.Equal(res.Data, blob) {
		t.Fatalf("res %+v", res)
	}
}

func TestChainFlateThenDCT(t *testing.T) {
	blob := []byte{0xFF, 0xD8, 0xFF, 0xE0, 9, 9}
	var buf bytes.Buffer
	w, _ := flate.NewWriter(&buf, flate.BestSpeed)
	w.Write(blob)
	w.Close()

	c := NewChain(Limits{})
	res, err := c.Apply(context.Background(), buf.Bytes(), []string{"FlateDecode", "DCTDecode"}, nil, raw.Dict())
	if err != nil {
		t.Fatalf("apply: %v", err)
	}
	if res.Native != NativeDCT || !bytes.Equal(res.Data, blob) {
		t.Fatalf("res %+v", res)
	}
}

func TestExtractFilters(t *testing.T) {
	dict := raw.Dict()
	dict.Set(raw.NameObj{Val: "Filter"}, raw.NewArray(raw.NameLiteral("FlateDecode"), raw.NameLiteral("DCTDecode")))
	parms := raw.Dict()
	parms.Set(raw.NameObj{Val: "Predictor"}, raw.NumberInt(12))
	dict.Set(raw.NameObj{Val: "DecodeParms"}, raw.NewArray(parms, raw.NullObj{}))

	names, params := ExtractFilters(dict)
	if len(names) != 2 || names[0] != "FlateDecode" || names[1] != "DCTDecode" {
		t.Fatalf("names %v", names)
	}
	if len(params) != 2 || params[0] == nil || params[1] != nil {
		t.Fatalf("params %v", params)
	}
}
