package contentstream

import (
	"context"
	"math"
	"testing"

	"github.com/wudi/pdfimages/ir/raw"
)

// directSource treats embedded objects as already resolved.
type directSource struct{}

func (directSource) Resolve(ctx context.Context, obj raw.Object) (raw.Object, error) {
	return obj, nil
}

func (directSource) StreamDecoded(ctx context.Context, st raw.Stream) ([]byte, error) {
	return st.RawData(), nil
}

func imageXObject(w, h int) *raw.StreamObj {
	dict := raw.Dict()
	dict.Set(raw.NameObj{Val: "Subtype"}, raw.NameLiteral("Image"))
	dict.Set(raw.NameObj{Val: "Width"}, raw.NumberInt(int64(w)))
	dict.Set(raw.NameObj{Val: "Height"}, raw.NumberInt(int64(h)))
	return raw.NewStream(dict, nil)
}

func resourcesWith(objs map[string]raw.Object) *raw.DictObj {
	xobj := raw.Dict()
	for name, o := range objs {
		xobj.Set(raw.NameObj{Val: name}, o)
	}
	res := raw.Dict()
	res.Set(raw.NameObj{Val: "XObject"}, xobj)
	return res
}

func walk(t *testing.T, content string, res raw.Dictionary) []ImageRecord {
	t.Helper()
	w := NewWalker(directSource{})
	records, err := w.Walk(context.Background(), []byte(content), res, false)
	if err != nil {
		t.Fatalf("walk: %v", err)
	}
	return records
}

func TestSimplePlacement(t *testing.T) {
	res := resourcesWith(map[string]raw.Object{"Im0": imageXObject(100, 50)})
	records := walk(t, "q 72 0 0 36 10 20 cm /Im0 Do Q", res)
	if len(records) != 1 {
		t.Fatalf("expected 1 record, got %d", len(records))
	}
	p := records[0].Placement
	if p.LL.X != 10 || p.LL.Y != 20 {
		t.Errorf("LL %+v", p.LL)
	}
	if p.UR.X != 82 || p.UR.Y != 56 {
		t.Errorf("UR %+v", p.UR)
	}
	if p.UserWidth != 72 || p.UserHeight != 36 {
		t.Errorf("user size %v x %v", p.UserWidth, p.UserHeight)
	}
	if math.Abs(p.ResolutionX-100) > 1e-9 {
		t.Errorf("resX %v", p.ResolutionX)
	}
	if math.Abs(p.ResolutionY-50/36.0*72) > 1e-9 {
		t.Errorf("resY %v", p.ResolutionY)
	}
}

func TestFormRecursionPlacement(t *testing.T) {
	img := imageXObject(10, 10)
	formDict := raw.Dict()
	formDict.Set(raw.NameObj{Val: "Subtype"}, raw.NameLiteral("Form"))
	form := raw.NewStream(formDict, []byte("/Im1 Do"))
	res := resourcesWith(map[string]raw.Object{"F1": form, "Im1": img})

	records := walk(t, "q 2 0 0 2 10 20 cm /F1 Do Q", res)
	if len(records) != 1 {
		t.Fatalf("expected 1 record, got %d", len(records))
	}
	ll := records[0].Placement.LL
	if ll.X != 10 || ll.Y != 20 {
		t.Fatalf("nested form LL %+v", ll)
	}
}

func TestFormMatrixConcatenated(t *testing.T) {
	img := imageXObject(10, 10)
	formDict := raw.Dict()
	formDict.Set(raw.NameObj{Val: "Subtype"}, raw.NameLiteral("Form"))
	formDict.Set(raw.NameObj{Val: "Matrix"}, raw.NewArray(
		raw.NumberInt(1), raw.NumberInt(0), raw.NumberInt(0),
		raw.NumberInt(1), raw.NumberInt(5), raw.NumberInt(7),
	))
	form := raw.NewStream(formDict, []byte("/Im1 Do"))
	res := resourcesWith(map[string]raw.Object{"F1": form, "Im1": img})

	records := walk(t, "/F1 Do", res)
	if len(records) != 1 {
		t.Fatalf("records %d", len(records))
	}
	ll := records[0].Placement.LL
	if ll.X != 5 || ll.Y != 7 {
		t.Fatalf("form matrix LL %+v", ll)
	}
}

func TestRestoreAfterForm(t *testing.T) {
	img := imageXObject(4, 4)
	formDict := raw.Dict()
	formDict.Set(raw.NameObj{Val: "Subtype"}, raw.NameLiteral("Form"))
	form := raw.NewStream(formDict, []byte("2 0 0 2 0 0 cm"))
	res := resourcesWith(map[string]raw.Object{"F1": form, "Im1": img})

	// the form scales internally; the image after Do must be unaffected
	records := walk(t, "/F1 Do 1 0 0 1 3 4 cm /Im1 Do", res)
	if len(records) != 1 {
		t.Fatalf("records %d", len(records))
	}
	ll := records[0].Placement.LL
	if ll.X != 3 || ll.Y != 4 {
		t.Fatalf("state leaked from form: %+v", ll)
	}
}

func TestUnmatchedRestoreIgnored(t *testing.T) {
	res := resourcesWith(map[string]raw.Object{"Im0": imageXObject(2, 2)})
	records := walk(t, "Q Q 1 0 0 1 9 9 cm /Im0 Do", res)
	if len(records) != 1 {
		t.Fatalf("records %d", len(records))
	}
	if records[0].Placement.LL.X != 9 {
		t.Fatalf("LL %+v", records[0].Placement.LL)
	}
}

func TestBalancedSaveRestore(t *testing.T) {
	res := resourcesWith(map[string]raw.Object{"Im0": imageXObject(2, 2)})
	records := walk(t, "q 5 0 0 5 0 0 cm Q /Im0 Do", res)
	p := records[0].Placement
	if p.UR.X != 1 || p.UR.Y != 1 {
		t.Fatalf("matrix not restored: %+v", p.UR)
	}
}

func TestUnknownDoSkippedSilently(t *testing.T) {
	res := resourcesWith(map[string]raw.Object{"Im0": imageXObject(2, 2)})
	records := walk(t, "/Nope Do /Im0 Do", res)
	if len(records) != 1 {
		t.Fatalf("records %d", len(records))
	}
}

func TestSwitchWHSwapsExtent(t *testing.T) {
	res := resourcesWith(map[string]raw.Object{"Im0": imageXObject(100, 50)})
	w := NewWalker(directSource{})
	records, err := w.Walk(context.Background(), []byte("q 72 0 0 36 0 0 cm /Im0 Do Q"), res, true)
	if err != nil {
		t.Fatalf("walk: %v", err)
	}
	p := records[0].Placement
	if p.UserWidth != 36 || p.UserHeight != 72 {
		t.Fatalf("extent not swapped: %v x %v", p.UserWidth, p.UserHeight)
	}
}

func TestStencilFlagPropagated(t *testing.T) {
	dict := raw.Dict()
	dict.Set(raw.NameObj{Val: "Subtype"}, raw.NameLiteral("Image"))
	dict.Set(raw.NameObj{Val: "Width"}, raw.NumberInt(2))
	dict.Set(raw.NameObj{Val: "Height"}, raw.NumberInt(2))
	dict.Set(raw.NameObj{Val: "ImageMask"}, raw.Bool(true))
	res := resourcesWith(map[string]raw.Object{"St": raw.NewStream(dict, nil)})
	records := walk(t, "/St Do", res)
	if len(records) != 1 || !records[0].IsMask {
		t.Fatalf("stencil flag: %+v", records)
	}
}

func TestImagesEmittedInStreamOrder(t *testing.T) {
	res := resourcesWith(map[string]raw.Object{
		"A": imageXObject(1, 1),
		"B": imageXObject(2, 2),
	})
	records := walk(t, "/B Do /A Do /B Do", res)
	if len(records) != 3 {
		t.Fatalf("records %d", len(records))
	}
	if records[0].Name != "B" || records[1].Name != "A" || records[2].Name != "B" {
		t.Fatalf("order: %s %s %s", records[0].Name, records[1].Name, records[2].Name)
	}
}
