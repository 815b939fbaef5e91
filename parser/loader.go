package parser

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/wudi/pdfimages/filters"
	"github.com/wudi/pdfimages/ir/raw"
	"github.com/wudi/pdfimages/scanner"
	"github.com/wudi/pdfimages/security"
	"github.com/wudi/pdfimages/xref"
)

var errObjectCycle = errors.New("indirect object cycle")

// Resolve dereferences obj until it is no longer a reference.
func (d *Document) Resolve(ctx context.Context, obj raw.Object) (raw.Object, error) {
	depth := d.limits.MaxIndirectDepth
	if depth <= 0 {
		depth = 100
	}
	for i := 0; i < depth; i++ {
		ref, ok := raw.AsReference(obj)
		if !ok {
			return obj, nil
		}
		loaded, err := d.load(ctx, ref)
		if err != nil {
			return nil, err
		}
		obj = loaded
	}
	return nil, errors.New("indirect reference chain too deep")
}

// ResolveDict resolves obj and asserts it is a dictionary (a stream's
// dictionary also qualifies).
func (d *Document) ResolveDict(ctx context.Context, obj raw.Object) (raw.Dictionary, bool) {
	r, err := d.Resolve(ctx, obj)
	if err != nil {
		return nil, false
	}
	if dict, ok := raw.AsDict(r); ok {
		return dict, true
	}
	if st, ok := raw.AsStream(r); ok {
		return st.Dictionary(), true
	}
	return nil, false
}

// ResolveStream resolves obj and asserts it is a stream.
func (d *Document) ResolveStream(ctx context.Context, obj raw.Object) (raw.Stream, bool) {
	r, err := d.Resolve(ctx, obj)
	if err != nil {
		return nil, false
	}
	st, ok := raw.AsStream(r)
	return st, ok
}

// StreamDecoded returns a stream's payload with all its filters
// applied; used for content streams and object streams, never for
// image XObjects (their chain is the decoder's business).
func (d *Document) StreamDecoded(ctx context.Context, st raw.Stream) ([]byte, error) {
	names, params := filters.ExtractFilters(st.Dictionary())
	for i := range params {
		if dict, ok := d.ResolveDict(ctx, params[i]); ok {
			params[i] = dict
		}
	}
	return d.pipeline.Decode(ctx, st.RawData(), names, params)
}

func (d *Document) load(ctx context.Context, ref raw.ObjectRef) (raw.Object, error) {
	return d.loadRef(ctx, ref, true)
}

// loadPlain loads without decryption; only the Encrypt dictionary
// itself needs this.
func (d *Document) loadPlain(ctx context.Context, ref raw.ObjectRef) (raw.Object, error) {
	return d.loadRef(ctx, ref, false)
}

func (d *Document) loadRef(ctx context.Context, ref raw.ObjectRef, decrypt bool) (raw.Object, error) {
	if obj, ok := d.cache[ref]; ok {
		return obj, nil
	}
	if d.loading[ref] {
		return nil, fmt.Errorf("%w: %s", errObjectCycle, ref)
	}
	d.loading[ref] = true
	defer delete(d.loading, ref)

	entry, found := d.table.Lookup(ref.Num)
	if !found {
		return raw.NullObj{}, nil
	}
	var obj raw.Object
	var err error
	switch entry.Kind {
	case xref.KindInFile:
		obj, err = d.loadAt(ctx, ref, entry.Offset, decrypt)
	case xref.KindInStream:
		obj, err = d.loadFromObjectStream(ctx, ref, entry.StreamNum, entry.StreamIdx)
	default:
		obj = raw.NullObj{}
	}
	if err != nil {
		return nil, err
	}
	d.cache[ref] = obj
	return obj, nil
}

// loadAt scans one "N G obj ... endobj" definition at a byte offset.
func (d *Document) loadAt(ctx context.Context, ref raw.ObjectRef, offset int64, decrypt bool) (raw.Object, error) {
	sc := scanner.New(d.reader, scanner.Config{
		MaxStringLength: d.limits.MaxStringLength,
		MaxStreamLength: d.limits.MaxStreamLength,
	})
	if err := sc.Seek(offset); err != nil {
		return nil, fmt.Errorf("seek object %s: %w", ref, err)
	}
	numTok, err := sc.Next()
	if err != nil {
		return nil, fmt.Errorf("object %s header: %w", ref, err)
	}
	if numTok.Type != scanner.TokenNumber {
		return nil, fmt.Errorf("object %s: number expected at offset %d", ref, offset)
	}
	if genTok, err := sc.Next(); err != nil || genTok.Type != scanner.TokenNumber {
		return nil, fmt.Errorf("object %s: generation expected", ref)
	}
	if kwTok, err := sc.Next(); err != nil || kwTok.Type != scanner.TokenKeyword || kwTok.Value != "obj" {
		return nil, fmt.Errorf("object %s: obj keyword expected", ref)
	}

	obj, err := scanner.ReadObject(sc)
	if err != nil {
		return nil, fmt.Errorf("object %s body: %w", ref, err)
	}

	dict, isDict := obj.(*raw.DictObj)
	if isDict {
		if length, ok := d.resolveStreamLength(ctx, dict); ok {
			sc.SetNextStreamLength(length)
		}
		tok, err := sc.Next()
		if err == nil && tok.Type == scanner.TokenStream {
			st := raw.NewStream(dict, tok.Value.([]byte))
			if decrypt {
				return d.decryptStream(ref, st)
			}
			return st, nil
		}
		sc.SetNextStreamLength(-1)
	}
	if decrypt {
		d.decryptStrings(ref, obj)
	}
	return obj, nil
}

func (d *Document) resolveStreamLength(ctx context.Context, dict *raw.DictObj) (int64, bool) {
	obj, ok := raw.DictGet(dict, "Length")
	if !ok {
		return 0, false
	}
	if ref, isRef := raw.AsReference(obj); isRef {
		loaded, err := d.loadRef(ctx, ref, false)
		if err != nil {
			return 0, false
		}
		obj = loaded
	}
	n, ok := raw.AsNumber(obj)
	if !ok {
		return 0, false
	}
	return n.Int(), true
}

// loadFromObjectStream extracts the idx-th object of the /ObjStm with
// object number streamNum. Objects inside an object stream are never
// individually encrypted; the container already was.
func (d *Document) loadFromObjectStream(ctx context.Context, ref raw.ObjectRef, streamNum, idx int) (raw.Object, error) {
	container, err := d.loadRef(ctx, raw.ObjectRef{Num: streamNum}, true)
	if err != nil {
		return nil, fmt.Errorf("object stream %d: %w", streamNum, err)
	}
	st, ok := raw.AsStream(container)
	if !ok {
		return nil, fmt.Errorf("object %d is not an object stream", streamNum)
	}
	dict := st.Dictionary()
	if typ, _ := raw.DictName(dict, "Type"); typ != "ObjStm" {
		return nil, fmt.Errorf("object %d has type %q, want ObjStm", streamNum, typ)
	}
	n, _ := raw.DictInt(dict, "N")
	first, _ := raw.DictInt(dict, "First")
	if idx < 0 || int64(idx) >= n {
		return nil, fmt.Errorf("object stream %d: index %d out of range", streamNum, idx)
	}
	data, err := d.StreamDecoded(ctx, st)
	if err != nil {
		return nil, fmt.Errorf("decode object stream %d: %w", streamNum, err)
	}

	sc := scanner.NewBytes(data, scanner.Config{})
	var objOffset int64 = -1
	for i := int64(0); i < n; i++ {
		numTok, err := sc.Next()
		if err != nil || numTok.Type != scanner.TokenNumber {
			return nil, fmt.Errorf("object stream %d: bad pair table", streamNum)
		}
		offTok, err := sc.Next()
		if err != nil || offTok.Type != scanner.TokenNumber {
			return nil, fmt.Errorf("object stream %d: bad pair table", streamNum)
		}
		if int(i) == idx {
			if num := numTok.Value.(int64); num != int64(ref.Num) {
				return nil, fmt.Errorf("object stream %d: slot %d holds object %d, want %d", streamNum, idx, num, ref.Num)
			}
			objOffset = offTok.Value.(int64)
		}
	}
	if objOffset < 0 {
		return nil, fmt.Errorf("object stream %d: index %d not found", streamNum, idx)
	}
	if err := sc.Seek(first + objOffset); err != nil {
		return nil, fmt.Errorf("object stream %d: %w", streamNum, err)
	}
	obj, err := scanner.ReadObject(sc)
	if err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("object stream %d slot %d: %w", streamNum, idx, err)
	}
	return obj, nil
}

// decryptStream replaces a stream's payload with its decrypted form.
// XRef streams are never encrypted; metadata streams honor
// /EncryptMetadata through the handler's data class.
func (d *Document) decryptStream(ref raw.ObjectRef, st *raw.StreamObj) (raw.Object, error) {
	if !d.sec.IsEncrypted() {
		return st, nil
	}
	if typ, _ := raw.DictName(st.Dict, "Type"); typ == "XRef" {
		return st, nil
	}
	class := security.DataClassStream
	if typ, _ := raw.DictName(st.Dict, "Type"); typ == "Metadata" {
		class = security.DataClassMetadataStream
	}
	cryptFilter := streamCryptFilter(st.Dict)
	plain, err := d.sec.DecryptWithFilter(ref.Num, ref.Gen, st.Data, class, cryptFilter)
	if err != nil {
		return nil, fmt.Errorf("decrypt stream %s: %w", ref, err)
	}
	st.Data = plain
	d.decryptStrings(ref, st.Dict)
	return st, nil
}

// streamCryptFilter reports the Crypt filter name when the stream's
// filter list starts with /Crypt.
func streamCryptFilter(dict raw.Dictionary) string {
	names, params := filters.ExtractFilters(dict)
	if len(names) == 0 || names[0] != "Crypt" {
		return ""
	}
	if len(params) > 0 {
		if name, ok := raw.DictName(params[0], "Name"); ok {
			return name
		}
	}
	return "Identity"
}

// decryptStrings decrypts string objects in place throughout obj.
func (d *Document) decryptStrings(ref raw.ObjectRef, obj raw.Object) {
	if !d.sec.IsEncrypted() {
		return
	}
	switch o := obj.(type) {
	case *raw.DictObj:
		for k, v := range o.KV {
			if s, ok := v.(raw.StringObj); ok {
				if plain, err := d.sec.Decrypt(ref.Num, ref.Gen, s.Bytes, security.DataClassString); err == nil {
					o.KV[k] = raw.StringObj{Bytes: plain, Hex: s.Hex}
				}
				continue
			}
			d.decryptStrings(ref, v)
		}
	case *raw.ArrayObj:
		for i, v := range o.Items {
			if s, ok := v.(raw.StringObj); ok {
				if plain, err := d.sec.Decrypt(ref.Num, ref.Gen, s.Bytes, security.DataClassString); err == nil {
					o.Items[i] = raw.StringObj{Bytes: plain, Hex: s.Hex}
				}
				continue
			}
			d.decryptStrings(ref, v)
		}
	}
}
