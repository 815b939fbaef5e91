package security

import (
	"bytes"
	"testing"

	"github.com/wudi/pdfimages/ir/raw"
)

func TestNoopHandlerPassthrough(t *testing.T) {
	h := NoopHandler()
	if h.IsEncrypted() {
		t.Fatal("noop handler must not report encryption")
	}
	data := []byte{1, 2, 3}
	out, err := h.Decrypt(5, 0, data, DataClassStream)
	if err != nil || !bytes.Equal(out, data) {
		t.Fatalf("passthrough: %v %v", out, err)
	}
}

func TestBuildWithoutDictIsNoop(t *testing.T) {
	h, err := (&HandlerBuilder{}).Build()
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	if h.IsEncrypted() {
		t.Fatal("expected noop handler")
	}
}

func TestBuildRejectsNonStandardFilter(t *testing.T) {
	dict := raw.Dict()
	dict.Set(raw.NameObj{Val: "Filter"}, raw.NameLiteral("Custom"))
	if _, err := (&HandlerBuilder{}).WithEncryptDict(dict).Build(); err == nil {
		t.Fatal("expected error for non-Standard filter")
	}
}

func TestDeriveKeyLengths(t *testing.T) {
	owner := bytes.Repeat([]byte{0x11}, 32)
	id := []byte{0xAA, 0xBB}
	key, err := deriveKey([]byte("pw"), owner, -44, id, 5, 2)
	if err != nil {
		t.Fatalf("derive: %v", err)
	}
	if len(key) != 5 {
		t.Fatalf("R2 key length %d", len(key))
	}
	key16, err := deriveKey([]byte("pw"), owner, -44, id, 16, 3)
	if err != nil || len(key16) != 16 {
		t.Fatalf("R3 key length %d err %v", len(key16), err)
	}
}

func TestObjectKeyLengths(t *testing.T) {
	fileKey := bytes.Repeat([]byte{0x42}, 5)
	k := objectKey(fileKey, 7, 0, 2, false)
	if len(k) != 10 {
		t.Fatalf("rc4 object key length %d", len(k))
	}
	k16 := objectKey(bytes.Repeat([]byte{0x42}, 16), 7, 0, 4, true)
	if len(k16) != 16 {
		t.Fatalf("aes object key length %d", len(k16))
	}
	// R>=5 uses the file key untouched
	fk := bytes.Repeat([]byte{9}, 32)
	if !bytes.Equal(objectKey(fk, 1, 0, 6, true), fk) {
		t.Fatal("R6 must keep file key")
	}
}

func TestR2UserPasswordRoundTrip(t *testing.T) {
	owner := bytes.Repeat([]byte{0x5A}, 32)
	id := []byte("fileid")
	key, err := deriveKey(nil, owner, -1, id, 5, 2)
	if err != nil {
		t.Fatalf("derive: %v", err)
	}
	uEntry := rc4Simple(key, passwordPadding)
	if !checkUserPassword(key, uEntry, id, 2) {
		t.Fatal("round-trip user password check failed")
	}
	if checkUserPassword([]byte{1, 2, 3, 4, 5}, uEntry, id, 2) {
		t.Fatal("wrong key must not authenticate")
	}
}

func TestStandardHandlerDecryptsRC4Stream(t *testing.T) {
	owner := bytes.Repeat([]byte{0x5A}, 32)
	id := []byte("fileid")
	key, _ := deriveKey(nil, owner, -1, id, 5, 2)
	uEntry := rc4Simple(key, passwordPadding)

	enc := raw.Dict()
	enc.Set(raw.NameObj{Val: "Filter"}, raw.NameLiteral("Standard"))
	enc.Set(raw.NameObj{Val: "V"}, raw.NumberInt(1))
	enc.Set(raw.NameObj{Val: "R"}, raw.NumberInt(2))
	enc.Set(raw.NameObj{Val: "Length"}, raw.NumberInt(40))
	enc.Set(raw.NameObj{Val: "O"}, raw.Str(owner))
	enc.Set(raw.NameObj{Val: "U"}, raw.Str(uEntry))
	enc.Set(raw.NameObj{Val: "P"}, raw.NumberInt(-1))

	trailer := raw.Dict()
	trailer.Set(raw.NameObj{Val: "ID"}, raw.NewArray(raw.Str(id), raw.Str(id)))

	h, err := (&HandlerBuilder{}).WithEncryptDict(enc).WithTrailer(trailer).Build()
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	if err := h.Authenticate(""); err != nil {
		t.Fatalf("authenticate: %v", err)
	}
	if !h.IsEncrypted() {
		t.Fatal("standard handler must report encryption")
	}

	plain := []byte("raster bytes")
	objKey := objectKey(key, 12, 0, 2, false)
	cipher := rc4Simple(objKey, plain)
	out, err := h.Decrypt(12, 0, cipher, DataClassStream)
	if err != nil {
		t.Fatalf("decrypt: %v", err)
	}
	if !bytes.Equal(out, plain) {
		t.Fatalf("round trip: %q", out)
	}
}

func TestPermissionsBits(t *testing.T) {
	h := &standardHandler{p: 0x4 | 0x10}
	perms := h.Permissions()
	if !perms.Print || !perms.Copy {
		t.Fatalf("perms %+v", perms)
	}
	if perms.Modify || perms.FillForms {
		t.Fatalf("perms %+v", perms)
	}
}

func TestDefaultLimits(t *testing.T) {
	l := DefaultLimits()
	if l.MaxDecompressedSize <= 0 || l.MaxIndirectDepth <= 0 || l.MaxXRefDepth <= 0 {
		t.Fatalf("limits %+v", l)
	}
}
