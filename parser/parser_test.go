package parser

import (
	"bytes"
	"compress/flate"
	"context"
	"fmt"
	"testing"

	"github.com/wudi/pdfimages/ir/raw"
)

// pdfFile assembles a small PDF in memory with a valid classic xref.
type pdfFile struct {
	buf     bytes.Buffer
	offsets map[int]int64
	count   int
}

func newPDFFile() *pdfFile {
	p := &pdfFile{offsets: make(map[int]int64)}
	p.buf.WriteString("%PDF-1.7\n")
	return p
}

func (p *pdfFile) object(num int, body string) {
	p.offsets[num] = int64(p.buf.Len())
	fmt.Fprintf(&p.buf, "%d 0 obj\n%s\nendobj\n", num, body)
	if num >= p.count {
		p.count = num + 1
	}
}

func (p *pdfFile) stream(num int, dict string, data []byte) {
	p.offsets[num] = int64(p.buf.Len())
	fmt.Fprintf(&p.buf, "%d 0 obj\n<< %s /Length %d >>\nstream\n", num, dict, len(data))
	p.buf.Write(data)
	p.buf.WriteString("\nendstream\nendobj\n")
	if num >= p.count {
		p.count = num + 1
	}
}

func (p *pdfFile) finish() []byte {
	xrefOff := p.buf.Len()
	fmt.Fprintf(&p.buf, "xref\n0 %d\n", p.count)
	p.buf.WriteString("0000000000 65535 f \n")
	for i := 1; i < p.count; i++ {
		fmt.Fprintf(&p.buf, "%010d 00000 n \n", p.offsets[i])
	}
	fmt.Fprintf(&p.buf, "trailer\n<< /Size %d /Root 1 0 R >>\n", p.count)
	fmt.Fprintf(&p.buf, "startxref\n%d\n%%%%EOF\n", xrefOff)
	return p.buf.Bytes()
}

func flateCompress(t *testing.T, data []byte) []byte {
	t.Helper()
	var buf bytes.Buffer
	w, _ := flate.NewWriter(&buf, flate.BestSpeed)
	if _, err := w.Write(data); err != nil {
		t.Fatalf("compress: %v", err)
	}
	w.Close()
	return buf.Bytes()
}

func singlePageDoc(t *testing.T) []byte {
	t.Helper()
	p := newPDFFile()
	p.object(1, "<< /Type /Catalog /Pages 2 0 R >>")
	p.object(2, "<< /Type /Pages /Kids [3 0 R] /Count 1 /Resources << /XObject << /Im0 5 0 R >> >> >>")
	p.object(3, "<< /Type /Page /Parent 2 0 R /Rotate 90 /MediaBox [0 0 612 792] /Contents 4 0 R >>")
	p.stream(4, "/Filter /FlateDecode", flateCompress(t, []byte("q 72 0 0 72 0 0 cm /Im0 Do Q")))
	p.stream(5, "/Subtype /Image /Width 2 /Height 2 /BitsPerComponent 8 /ColorSpace /DeviceRGB", []byte{
		0xFF, 0, 0, 0, 0xFF, 0,
		0, 0, 0xFF, 0xFF, 0xFF, 0xFF,
	})
	return p.finish()
}

func TestDocumentPages(t *testing.T) {
	doc, err := NewDocument(bytes.NewReader(singlePageDoc(t)), Config{})
	if err != nil {
		t.Fatalf("new document: %v", err)
	}
	defer doc.Close()

	if doc.Version() != "1.7" {
		t.Errorf("version %q", doc.Version())
	}
	if doc.Encrypted() {
		t.Error("document is not encrypted")
	}
	ctx := context.Background()
	n, err := doc.PageCount(ctx)
	if err != nil || n != 1 {
		t.Fatalf("page count %d err %v", n, err)
	}
	page, err := doc.Page(ctx, 1)
	if err != nil {
		t.Fatalf("page: %v", err)
	}
	if page.Rotation() != 90 {
		t.Errorf("rotation %d", page.Rotation())
	}
	if page.Resources() == nil {
		t.Fatal("inherited resources missing")
	}
	content, err := page.Contents(ctx)
	if err != nil {
		t.Fatalf("contents: %v", err)
	}
	if string(content) != "q 72 0 0 72 0 0 cm /Im0 Do Q" {
		t.Fatalf("contents %q", content)
	}
	if len(page.MediaBox()) != 4 || page.MediaBox()[2] != 612 {
		t.Errorf("media box %v", page.MediaBox())
	}
}

func TestResolveImageStream(t *testing.T) {
	doc, err := NewDocument(bytes.NewReader(singlePageDoc(t)), Config{})
	if err != nil {
		t.Fatalf("new document: %v", err)
	}
	defer doc.Close()
	ctx := context.Background()
	page, _ := doc.Page(ctx, 1)
	xobj, ok := raw.DictDict(page.Resources(), "XObject")
	if !ok {
		t.Fatal("XObject dict missing")
	}
	imRef, _ := raw.DictGet(xobj, "Im0")
	st, ok := doc.ResolveStream(ctx, imRef)
	if !ok {
		t.Fatal("Im0 is not a stream")
	}
	if w, _ := raw.DictInt(st.Dictionary(), "Width"); w != 2 {
		t.Errorf("width %d", w)
	}
	if len(st.RawData()) != 12 {
		t.Errorf("payload %d bytes", len(st.RawData()))
	}
}

func TestPageOutOfRange(t *testing.T) {
	doc, err := NewDocument(bytes.NewReader(singlePageDoc(t)), Config{})
	if err != nil {
		t.Fatalf("new document: %v", err)
	}
	defer doc.Close()
	if _, err := doc.Page(context.Background(), 2); err == nil {
		t.Fatal("expected out-of-range error")
	}
}

func TestObjectStreamLoading(t *testing.T) {
	// objects 1 (catalog) and 2 (pages) live inside object stream 5
	inner := "1 0 2 34 " // pair table: objnum offset
	first := len(inner)
	body1 := "<< /Type /Catalog /Pages 2 0 R >>"
	body2 := "<< /Type /Pages /Kids [] /Count 0 >>"
	payload := inner + body1 + " " + body2
	// offset of body2 within the data area
	if got := len(body1) + 1; got != 34 {
		t.Fatalf("fixture drift: body2 offset %d", got)
	}

	p := newPDFFile()
	p.stream(5, fmt.Sprintf("/Type /ObjStm /N 2 /First %d", first), []byte(payload))

	xrefOff := int64(p.buf.Len())
	var rows bytes.Buffer
	rows.Write([]byte{0, 0, 0, 255})                                    // 0: free
	rows.Write([]byte{2, 0, 5, 0})                                      // 1: in stream 5 slot 0
	rows.Write([]byte{2, 0, 5, 1})                                      // 2: in stream 5 slot 1
	rows.Write([]byte{0, 0, 0, 0})                                      // 3: free
	rows.Write([]byte{0, 0, 0, 0})                                      // 4: free
	rows.Write([]byte{1, byte(p.offsets[5] >> 8), byte(p.offsets[5]), 0}) // 5
	rows.Write([]byte{1, byte(xrefOff >> 8), byte(xrefOff), 0})          // 6: xref stream
	fmt.Fprintf(&p.buf, "6 0 obj\n<< /Type /XRef /Size 7 /W [1 2 1] /Root 1 0 R /Length %d >>\nstream\n", rows.Len())
	p.buf.Write(rows.Bytes())
	p.buf.WriteString("\nendstream\nendobj\n")
	fmt.Fprintf(&p.buf, "startxref\n%d\n%%%%EOF\n", xrefOff)

	doc, err := NewDocument(bytes.NewReader(p.buf.Bytes()), Config{})
	if err != nil {
		t.Fatalf("new document: %v", err)
	}
	defer doc.Close()
	catalog, err := doc.Catalog(context.Background())
	if err != nil {
		t.Fatalf("catalog: %v", err)
	}
	if typ, _ := raw.DictName(catalog, "Type"); typ != "Catalog" {
		t.Fatalf("catalog type %q", typ)
	}
	if n, err := doc.PageCount(context.Background()); err != nil || n != 0 {
		t.Fatalf("pages %d err %v", n, err)
	}
}
