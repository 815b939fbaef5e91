package xref

import (
	"bytes"
	"context"
	"errors"

	"github.com/wudi/pdfimages/ir/raw"
	"github.com/wudi/pdfimages/scanner"
)

// repair reconstructs the table by scanning the whole buffer for
// "<num> <gen> obj" headers and trailer dictionaries. Later definitions
// of the same object win, matching incremental-update semantics.
func repair(ctx context.Context, data []byte) (Table, error) {
	entries := make(map[int]Entry)
	var trailer *raw.DictObj

	pos := 0
	for pos < len(data) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		idx := bytes.Index(data[pos:], []byte("obj"))
		if idx < 0 {
			break
		}
		at := pos + idx
		pos = at + 3
		// must be a standalone keyword
		if at+3 < len(data) && !isDelim(data[at+3]) {
			continue
		}
		num, gen, start, ok := objHeaderBefore(data, at)
		if !ok {
			continue
		}
		entries[num] = Entry{Kind: KindInFile, Offset: int64(start), Gen: gen}
	}

	// pick the last trailer dictionary in the file
	for search := 0; ; {
		idx := bytes.Index(data[search:], []byte("trailer"))
		if idx < 0 {
			break
		}
		at := search + idx
		search = at + len("trailer")
		sc := scanner.NewBytes(data[at+len("trailer"):], scanner.Config{})
		obj, err := scanner.ReadObject(sc)
		if err != nil {
			continue
		}
		if d, ok := obj.(*raw.DictObj); ok {
			trailer = d
		}
	}

	if len(entries) == 0 {
		return nil, errors.New("repair found no objects")
	}
	if trailer == nil {
		// fall back to locating the catalog so Root resolves
		trailer = raw.Dict()
		trailer.Set(raw.NameObj{Val: "Size"}, raw.NumberInt(int64(len(entries))))
		if root, ok := findCatalog(data, entries); ok {
			trailer.Set(raw.NameObj{Val: "Root"}, raw.Ref(root, 0))
		}
	}
	return &table{entries: entries, trailer: trailer}, nil
}

// objHeaderBefore walks backwards from the "obj" keyword over
// "<num> <gen> " and reports the header's start offset.
func objHeaderBefore(data []byte, at int) (num, gen, start int, ok bool) {
	i := at - 1
	skipWS := func() bool {
		had := false
		for i >= 0 && isWS(data[i]) {
			i--
			had = true
		}
		return had
	}
	digits := func() (int, int, bool) {
		end := i
		for i >= 0 && data[i] >= '0' && data[i] <= '9' {
			i--
		}
		if i == end {
			return 0, 0, false
		}
		v := 0
		for _, c := range data[i+1 : end+1] {
			v = v*10 + int(c-'0')
		}
		return v, i + 1, true
	}
	if !skipWS() {
		return 0, 0, 0, false
	}
	g, _, ok2 := digits()
	if !ok2 {
		return 0, 0, 0, false
	}
	if !skipWS() {
		return 0, 0, 0, false
	}
	n, nStart, ok3 := digits()
	if !ok3 {
		return 0, 0, 0, false
	}
	if nStart > 0 && !isDelim(data[nStart-1]) {
		return 0, 0, 0, false
	}
	return n, g, nStart, true
}

func findCatalog(data []byte, entries map[int]Entry) (int, bool) {
	for num, e := range entries {
		end := e.Offset + 512
		if end > int64(len(data)) {
			end = int64(len(data))
		}
		if bytes.Contains(data[e.Offset:end], []byte("/Type /Catalog")) ||
			bytes.Contains(data[e.Offset:end], []byte("/Type/Catalog")) {
			return num, true
		}
	}
	return 0, false
}

func isWS(c byte) bool {
	return c == 0x00 || c == 0x09 || c == 0x0A || c == 0x0C || c == 0x0D || c == 0x20
}

func isDelim(c byte) bool {
	switch c {
	case '(', ')', '<', '>', '[', ']', '{', '}', '/', '%':
		return true
	default:
		return isWS(c)
	}
}
