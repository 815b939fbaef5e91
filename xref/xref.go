package xref

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"

	"github.com/wudi/pdfimages/filters"
	"github.com/wudi/pdfimages/ir/raw"
	"github.com/wudi/pdfimages/recovery"
	"github.com/wudi/pdfimages/scanner"
)

// EntryKind distinguishes the three xref entry types.
type EntryKind int

const (
	KindFree EntryKind = iota
	KindInFile
	KindInStream
)

// Entry locates one indirect object: either a byte offset in the file
// or a slot inside an object stream.
type Entry struct {
	Kind      EntryKind
	Offset    int64
	Gen       int
	StreamNum int // object number of the containing /ObjStm
	StreamIdx int // index within that stream
}

// Table holds merged object locations plus the document trailer.
type Table interface {
	Lookup(objNum int) (Entry, bool)
	Objects() []int
	Trailer() raw.Dictionary
	Type() string
}

// Resolver locates and parses xref information in a PDF.
type Resolver interface {
	Resolve(ctx context.Context, r io.ReaderAt) (Table, error)
}

type ResolverConfig struct {
	MaxXRefDepth int
	Recovery     recovery.Strategy
}

func NewResolver(cfg ResolverConfig) Resolver {
	if cfg.MaxXRefDepth <= 0 {
		cfg.MaxXRefDepth = 64
	}
	return &resolver{cfg: cfg}
}

type resolver struct {
	cfg ResolverConfig
}

func (t *resolver) Resolve(ctx context.Context, r io.ReaderAt) (Table, error) {
	data := readAll(r)
	if len(data) == 0 {
		return nil, errors.New("empty document")
	}

	start, err := findStartXRef(data)
	if err != nil {
		return t.maybeRepair(ctx, r, data, err)
	}

	tbl := &table{entries: make(map[int]Entry), trailer: raw.Dict()}
	seen := make(map[int64]bool)
	queue := []int64{start}
	for depth := 0; len(queue) > 0; depth++ {
		if depth > t.cfg.MaxXRefDepth {
			return nil, errors.New("xref chain too deep")
		}
		off := queue[0]
		queue = queue[1:]
		if seen[off] {
			continue
		}
		seen[off] = true
		if off < 0 || off >= int64(len(data)) {
			return t.maybeRepair(ctx, r, data, fmt.Errorf("xref offset out of range: %d", off))
		}
		next, err := t.parseSection(ctx, data, off, tbl)
		if err != nil {
			return t.maybeRepair(ctx, r, data, err)
		}
		queue = append(queue, next...)
	}
	if len(tbl.entries) == 0 {
		return t.maybeRepair(ctx, r, data, errors.New("xref yielded no entries"))
	}
	return tbl, nil
}

func (t *resolver) maybeRepair(ctx context.Context, r io.ReaderAt, data []byte, cause error) (Table, error) {
	if t.cfg.Recovery == nil {
		return nil, cause
	}
	action := t.cfg.Recovery.OnError(ctx, cause, recovery.Location{Component: "xref"})
	if action != recovery.ActionFix {
		return nil, cause
	}
	tbl, err := repair(ctx, data)
	if err != nil {
		return nil, fmt.Errorf("xref repair after %v: %w", cause, err)
	}
	return tbl, nil
}

// parseSection parses one xref section (classic table or xref stream)
// at off, merging entries into tbl. Returns follow-up offsets (Prev,
// hybrid XRefStm).
func (t *resolver) parseSection(ctx context.Context, data []byte, off int64, tbl *table) ([]int64, error) {
	rest := data[off:]
	if bytes.HasPrefix(bytes.TrimLeft(rest, " \t"), []byte("xref")) {
		return parseClassicSection(rest, tbl)
	}
	return parseStreamSection(ctx, data, off, tbl)
}

func parseClassicSection(data []byte, tbl *table) ([]int64, error) {
	lines := newLineReader(data)
	first, ok := lines.next()
	if !ok || strings.TrimSpace(first) != "xref" {
		return nil, errors.New("xref keyword not found at offset")
	}
	for {
		line, ok := lines.next()
		if !ok {
			return nil, errors.New("unexpected end of xref section")
		}
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if strings.HasPrefix(line, "trailer") {
			break
		}
		parts := strings.Fields(line)
		if len(parts) != 2 {
			return nil, fmt.Errorf("invalid xref subsection header: %q", line)
		}
		startObj, err := strconv.Atoi(parts[0])
		if err != nil {
			return nil, fmt.Errorf("parse xref start: %w", err)
		}
		count, err := strconv.Atoi(parts[1])
		if err != nil {
			return nil, fmt.Errorf("parse xref count: %w", err)
		}
		for i := 0; i < count; i++ {
			line, ok := lines.next()
			if !ok {
				return nil, errors.New("unexpected end of xref section")
			}
			fields := strings.Fields(line)
			if len(fields) < 3 {
				return nil, fmt.Errorf("invalid xref entry: %q", line)
			}
			off, err := strconv.ParseInt(fields[0], 10, 64)
			if err != nil {
				return nil, fmt.Errorf("parse xref offset: %w", err)
			}
			gen, err := strconv.Atoi(fields[1])
			if err != nil {
				return nil, fmt.Errorf("parse xref gen: %w", err)
			}
			if fields[2] != "n" {
				continue // free entry
			}
			tbl.merge(startObj+i, Entry{Kind: KindInFile, Offset: off, Gen: gen})
		}
	}
	// trailer dictionary follows
	trailerStart := bytes.Index(data, []byte("trailer"))
	if trailerStart < 0 {
		return nil, errors.New("trailer not found after xref table")
	}
	sc := scanner.NewBytes(data[trailerStart+len("trailer"):], scanner.Config{})
	obj, err := scanner.ReadObject(sc)
	if err != nil {
		return nil, fmt.Errorf("parse trailer: %w", err)
	}
	trailer, ok := raw.AsDict(obj)
	if !ok {
		return nil, errors.New("trailer is not a dictionary")
	}
	var follow []int64
	if v, ok := raw.DictInt(trailer, "XRefStm"); ok {
		follow = append(follow, v)
	}
	if v, ok := raw.DictInt(trailer, "Prev"); ok {
		follow = append(follow, v)
	}
	tbl.mergeTrailer(trailer)
	return follow, nil
}

func parseStreamSection(ctx context.Context, data []byte, off int64, tbl *table) ([]int64, error) {
	sc := scanner.NewBytes(data[off:], scanner.Config{})
	// "N G obj << ... >> stream"
	if tok, err := sc.Next(); err != nil || tok.Type != scanner.TokenNumber {
		return nil, errors.New("xref stream: object header expected")
	}
	if tok, err := sc.Next(); err != nil || tok.Type != scanner.TokenNumber {
		return nil, errors.New("xref stream: generation expected")
	}
	if tok, err := sc.Next(); err != nil || tok.Type != scanner.TokenKeyword || tok.Value != "obj" {
		return nil, errors.New("xref stream: obj keyword expected")
	}
	obj, err := scanner.ReadObject(sc)
	if err != nil {
		return nil, fmt.Errorf("xref stream dict: %w", err)
	}
	dict, ok := raw.AsDict(obj)
	if !ok {
		return nil, errors.New("xref stream: dictionary expected")
	}
	if typ, _ := raw.DictName(dict, "Type"); typ != "XRef" {
		return nil, fmt.Errorf("object at xref offset has type %q", typ)
	}
	if l, ok := raw.DictInt(dict, "Length"); ok {
		sc.SetNextStreamLength(l)
	}
	tok, err := sc.Next()
	if err != nil || tok.Type != scanner.TokenStream {
		return nil, errors.New("xref stream: stream payload expected")
	}
	payload := tok.Value.([]byte)

	names, params := filters.ExtractFilters(dict)
	decoded, err := filters.NewStandardPipeline(filters.Limits{}).Decode(ctx, payload, names, params)
	if err != nil {
		return nil, fmt.Errorf("decode xref stream: %w", err)
	}

	wArr, ok := raw.DictArray(dict, "W")
	if !ok {
		return nil, errors.New("xref stream missing /W")
	}
	w := raw.IntArray(wArr)
	if len(w) < 3 {
		return nil, errors.New("xref stream /W too short")
	}
	size, _ := raw.DictInt(dict, "Size")
	index := []int64{0, size}
	if idxArr, ok := raw.DictArray(dict, "Index"); ok {
		index = raw.IntArray(idxArr)
	}
	rowLen := int(w[0] + w[1] + w[2])
	if rowLen == 0 {
		return nil, errors.New("xref stream /W all zero")
	}
	pos := 0
	for i := 0; i+1 < len(index); i += 2 {
		start, count := int(index[i]), int(index[i+1])
		for j := 0; j < count; j++ {
			if pos+rowLen > len(decoded) {
				return nil, errors.New("xref stream data truncated")
			}
			f1 := readField(decoded[pos:], int(w[0]), 1) // type defaults to 1
			f2 := readField(decoded[pos+int(w[0]):], int(w[1]), 0)
			f3 := readField(decoded[pos+int(w[0])+int(w[1]):], int(w[2]), 0)
			pos += rowLen
			objNum := start + j
			switch f1 {
			case 0:
				// free
			case 1:
				tbl.merge(objNum, Entry{Kind: KindInFile, Offset: f2, Gen: int(f3)})
			case 2:
				tbl.merge(objNum, Entry{Kind: KindInStream, StreamNum: int(f2), StreamIdx: int(f3)})
			}
		}
	}
	tbl.mergeTrailer(dict)
	if prev, ok := raw.DictInt(dict, "Prev"); ok {
		return []int64{prev}, nil
	}
	return nil, nil
}

// readField reads a big-endian field of width n; zero-width fields take
// the supplied default per PDF 7.5.8.2.
func readField(b []byte, n int, def int64) int64 {
	if n == 0 {
		return def
	}
	var v int64
	for i := 0; i < n; i++ {
		v = v<<8 | int64(b[i])
	}
	return v
}

func findStartXRef(data []byte) (int64, error) {
	tail := data
	if len(tail) > 2048 {
		tail = tail[len(tail)-2048:]
	}
	idx := bytes.LastIndex(tail, []byte("startxref"))
	if idx < 0 {
		return 0, errors.New("startxref not found")
	}
	rest := tail[idx+len("startxref"):]
	for _, line := range strings.Split(string(rest), "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		v, err := strconv.ParseInt(line, 10, 64)
		if err != nil {
			return 0, fmt.Errorf("parse startxref: %w", err)
		}
		return v, nil
	}
	return 0, errors.New("startxref value missing")
}

type table struct {
	entries map[int]Entry
	trailer *raw.DictObj
}

func (t *table) merge(objNum int, e Entry) {
	// first writer wins: sections are visited newest-first
	if _, ok := t.entries[objNum]; !ok {
		t.entries[objNum] = e
	}
}

func (t *table) mergeTrailer(d raw.Dictionary) {
	if t.trailer == nil {
		t.trailer = raw.Dict()
	}
	for _, key := range d.Keys() {
		if _, ok := t.trailer.Get(key); !ok {
			v, _ := d.Get(key)
			t.trailer.Set(key, v)
		}
	}
}

func (t *table) Lookup(objNum int) (Entry, bool) {
	e, ok := t.entries[objNum]
	return e, ok
}

func (t *table) Objects() []int {
	out := make([]int, 0, len(t.entries))
	for k := range t.entries {
		out = append(out, k)
	}
	sort.Ints(out)
	return out
}

func (t *table) Trailer() raw.Dictionary { return t.trailer }
func (t *table) Type() string           { return "table" }

// lineReader yields CR/LF/CRLF-terminated lines from a byte slice.
type lineReader struct {
	data []byte
	pos  int
}

func newLineReader(data []byte) *lineReader { return &lineReader{data: data} }

func (l *lineReader) next() (string, bool) {
	if l.pos >= len(l.data) {
		return "", false
	}
	start := l.pos
	for l.pos < len(l.data) && l.data[l.pos] != '\r' && l.data[l.pos] != '\n' {
		l.pos++
	}
	line := string(l.data[start:l.pos])
	if l.pos < len(l.data) {
		if l.data[l.pos] == '\r' {
			l.pos++
			if l.pos < len(l.data) && l.data[l.pos] == '\n' {
				l.pos++
			}
		} else {
			l.pos++
		}
	}
	return line, true
}

func readAll(r io.ReaderAt) []byte {
	var buf bytes.Buffer
	const chunk = int64(32 * 1024)
	tmp := make([]byte, chunk)
	for off := int64(0); ; off += chunk {
		n, err := r.ReadAt(tmp, off)
		if n > 0 {
			buf.Write(tmp[:n])
		}
		if err != nil || int64(n) < chunk {
			break
		}
	}
	return buf.Bytes()
}
