package security

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"crypto/md5"
	"crypto/rc4"
	"crypto/sha256"
	"crypto/sha512"
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/wudi/pdfimages/ir/raw"
)

type Permissions struct {
	Print, Modify, Copy, ModifyAnnotations, FillForms, ExtractAccessible, Assemble, PrintHighQuality bool
}

// DataClass identifies the kind of payload being decrypted.
type DataClass int

const (
	DataClassStream DataClass = iota
	DataClassString
	DataClassMetadataStream
)

// Handler decrypts document payloads. Extraction never writes, so the
// interface is decrypt-only.
type Handler interface {
	IsEncrypted() bool
	Authenticate(password string) error
	Decrypt(objNum, gen int, data []byte, class DataClass) ([]byte, error)
	DecryptWithFilter(objNum, gen int, data []byte, class DataClass, cryptFilter string) ([]byte, error)
	Permissions() Permissions
	EncryptMetadata() bool
}

type HandlerBuilder struct {
	encryptDict raw.Dictionary
	trailer     raw.Dictionary
	fileID      []byte
}

func (b *HandlerBuilder) WithEncryptDict(d raw.Dictionary) *HandlerBuilder {
	b.encryptDict = d
	return b
}
func (b *HandlerBuilder) WithTrailer(d raw.Dictionary) *HandlerBuilder { b.trailer = d; return b }
func (b *HandlerBuilder) WithFileID(id []byte) *HandlerBuilder         { b.fileID = id; return b }

func (b *HandlerBuilder) Build() (Handler, error) {
	if b.encryptDict == nil {
		return noEncryptionHandler{}, nil
	}
	if filter, ok := raw.DictName(b.encryptDict, "Filter"); ok && filter != "Standard" {
		return nil, errors.New("unsupported encryption filter")
	}
	v := int64(1)
	if n, ok := raw.DictInt(b.encryptDict, "V"); ok && n > 0 {
		v = n
	}
	if v > 6 {
		return nil, errors.New("encryption V>6 not supported")
	}
	r := int64(2)
	if n, ok := raw.DictInt(b.encryptDict, "R"); ok {
		r = n
	}
	if r > 6 {
		return nil, errors.New("encryption R>6 not supported")
	}
	keyLen := 40
	if v >= 5 {
		keyLen = 256
	}
	if n, ok := raw.DictInt(b.encryptDict, "Length"); ok && n > 0 {
		keyLen = int(n)
	}
	if v >= 4 && keyLen < 128 {
		keyLen = 128
	}
	if keyLen%8 != 0 {
		return nil, errors.New("encryption length must be multiple of 8")
	}
	owner, _ := raw.DictString(b.encryptDict, "O")
	user, _ := raw.DictString(b.encryptDict, "U")
	oe, _ := raw.DictString(b.encryptDict, "OE")
	ue, _ := raw.DictString(b.encryptDict, "UE")
	pVal, _ := raw.DictInt(b.encryptDict, "P")
	id := b.fileID
	if len(id) == 0 && b.trailer != nil {
		if arr, ok := raw.DictArray(b.trailer, "ID"); ok && arr.Len() > 0 {
			item, _ := arr.Get(0)
			if s, ok := raw.AsString(item); ok {
				id = s
			}
		}
	}
	encryptMeta := true
	if m, ok := raw.DictBool(b.encryptDict, "EncryptMetadata"); ok {
		encryptMeta = m
	}

	baseAlgo := algoRC4
	if v >= 4 {
		baseAlgo = algoAES
	}
	cryptFilters, err := parseCryptFilters(b.encryptDict, baseAlgo)
	if err != nil {
		return nil, err
	}
	streamAlgo, err := resolveCryptFilter(b.encryptDict, "StmF", baseAlgo, cryptFilters)
	if err != nil {
		return nil, err
	}
	stringAlgo, err := resolveCryptFilter(b.encryptDict, "StrF", baseAlgo, cryptFilters)
	if err != nil {
		return nil, err
	}
	return &standardHandler{
		v:            int(v),
		r:            int(r),
		lengthBits:   keyLen,
		oEntry:       owner,
		uEntry:       user,
		oe:           oe,
		ue:           ue,
		p:            int32(pVal),
		fileID:       id,
		encryptMeta:  encryptMeta,
		useAES:       streamAlgo == algoAES || stringAlgo == algoAES || baseAlgo == algoAES,
		streamAlgo:   streamAlgo,
		stringAlgo:   stringAlgo,
		cryptFilters: cryptFilters,
		trailer:      b.trailer,
	}, nil
}

type cryptAlgo int

const (
	algoUnset cryptAlgo = iota
	algoNone
	algoRC4
	algoAES
)

type standardHandler struct {
	key          []byte
	v            int
	r            int
	lengthBits   int
	oEntry       []byte
	uEntry       []byte
	oe           []byte
	ue           []byte
	p            int32
	fileID       []byte
	encryptMeta  bool
	authed       bool
	useAES       bool
	streamAlgo   cryptAlgo
	stringAlgo   cryptAlgo
	cryptFilters map[string]cryptAlgo
	trailer      raw.Dictionary
}

func (h *standardHandler) IsEncrypted() bool     { return true }
func (h *standardHandler) EncryptMetadata() bool { return h.encryptMeta }

func (h *standardHandler) Authenticate(password string) error {
	if h.v >= 5 || h.r >= 5 {
		if err := h.authenticateAES256([]byte(password)); err != nil {
			return err
		}
		h.authed = true
		return nil
	}
	key, err := deriveKey([]byte(password), h.oEntry, h.p, h.fileID, h.lengthBits/8, h.r)
	if err != nil {
		return err
	}
	if !checkUserPassword(key, h.uEntry, h.fileID, h.r) {
		return errors.New("invalid password")
	}
	h.key = key
	h.authed = true
	return nil
}

func (h *standardHandler) DecryptWithFilter(objNum, gen int, data []byte, class DataClass, cryptFilter string) ([]byte, error) {
	if !h.authed {
		if err := h.Authenticate(""); err != nil {
			return nil, err
		}
	}
	if class == DataClassMetadataStream && !h.encryptMeta {
		return data, nil
	}
	algo, err := h.algoFor(class, cryptFilter)
	if err != nil {
		return nil, err
	}
	if algo == algoNone || len(data) == 0 {
		return data, nil
	}
	key := objectKey(h.key, objNum, gen, h.r, algo == algoAES)
	if algo == algoAES {
		return aesDecrypt(key, data)
	}
	return rc4Crypt(key, data)
}

func (h *standardHandler) Decrypt(objNum, gen int, data []byte, class DataClass) ([]byte, error) {
	return h.DecryptWithFilter(objNum, gen, data, class, "")
}

func (h *standardHandler) pickAlgo(class DataClass) cryptAlgo {
	switch class {
	case DataClassString:
		if h.stringAlgo != algoUnset {
			return h.stringAlgo
		}
	case DataClassStream, DataClassMetadataStream:
		if h.streamAlgo != algoUnset {
			return h.streamAlgo
		}
	}
	if h.useAES {
		return algoAES
	}
	return algoRC4
}

func (h *standardHandler) algoFor(class DataClass, filter string) (cryptAlgo, error) {
	if filter == "Identity" {
		return algoNone, nil
	}
	if filter == "Standard" || filter == "" {
		return h.pickAlgo(class), nil
	}
	if algo, ok := h.cryptFilters[filter]; ok {
		return algo, nil
	}
	return algoUnset, fmt.Errorf("crypt filter %s not defined", filter)
}

func (h *standardHandler) Permissions() Permissions {
	return Permissions{
		Print:             h.p&0x4 != 0,
		Modify:            h.p&0x8 != 0,
		Copy:              h.p&0x10 != 0,
		ModifyAnnotations: h.p&0x20 != 0,
		FillForms:         h.p&0x100 != 0,
		ExtractAccessible: h.p&0x200 != 0,
		Assemble:          h.p&0x400 != 0,
		PrintHighQuality:  h.p&0x800 != 0,
	}
}

func (h *standardHandler) authenticateAES256(pwd []byte) error {
	if len(h.uEntry) >= 48 && len(h.ue) >= 32 {
		if key, ok, err := deriveAES256User(pwd, h.uEntry, h.ue, h.fileID); err == nil && ok {
			h.key = key
			h.setPermsFromEncrypted()
			return nil
		}
	}
	if len(h.oEntry) >= 48 && len(h.oe) >= 32 && len(h.uEntry) >= 48 {
		if key, ok, err := deriveAES256Owner(pwd, h.oEntry, h.oe, h.uEntry); err == nil && ok {
			h.key = key
			h.setPermsFromEncrypted()
			return nil
		}
	}
	return errors.New("invalid password")
}

func (h *standardHandler) setPermsFromEncrypted() {
	if h.key == nil || h.p != 0 {
		return
	}
	if perms, ok := raw.DictString(h.trailer, "Perms"); ok {
		if pval, err := decryptPermsAES256(h.key, perms); err == nil {
			h.p = pval
		}
	}
}

type noEncryptionHandler struct{}

func (noEncryptionHandler) IsEncrypted() bool                { return false }
func (noEncryptionHandler) Authenticate(password string) error { return nil }
func (noEncryptionHandler) DecryptWithFilter(objNum, gen int, data []byte, class DataClass, cryptFilter string) ([]byte, error) {
	return data, nil
}
func (noEncryptionHandler) Decrypt(objNum, gen int, data []byte, class DataClass) ([]byte, error) {
	return data, nil
}
func (noEncryptionHandler) Permissions() Permissions {
	return Permissions{true, true, true, true, true, true, true, true}
}
func (noEncryptionHandler) EncryptMetadata() bool { return false }

func NoopHandler() Handler { return noEncryptionHandler{} }

var passwordPadding = []byte{
	0x28, 0xBF, 0x4E, 0x5E, 0x4E, 0x75, 0x8A, 0x41,
	0x64, 0x00, 0x4E, 0x56, 0xFF, 0xFA, 0x01, 0x08,
	0x2E, 0x2E, 0x00, 0xB6, 0xD0, 0x68, 0x3E, 0x80,
	0x2F, 0x0C, 0xA9, 0xFE, 0x64, 0x53, 0x69, 0x7A,
}

func padPassword(pwd []byte) []byte {
	padded := make([]byte, 32)
	n := copy(padded, pwd)
	copy(padded[n:], passwordPadding)
	return padded
}

func padPasswordRev6(pwd []byte) []byte {
	if len(pwd) > 127 {
		return pwd[:127]
	}
	return pwd
}

// rev6Hash implements the iterative hash used by R=5/6 authentication
// (ISO 32000-2 Algorithm 2.B).
func rev6Hash(pwd []byte, salt []byte, extra []byte) []byte {
	pwd = padPasswordRev6(pwd)
	data := append(append(append([]byte{}, pwd...), salt...), extra...)
	hash := sha256.Sum256(data)
	h := hash[:]
	for i := 0; ; i++ {
		block := make([]byte, 0, 64*(len(pwd)+len(h)+len(extra)))
		for j := 0; j < 64; j++ {
			block = append(block, pwd...)
			block = append(block, h...)
			block = append(block, extra...)
		}
		key := h[:16]
		iv := h[16:32]
		enc, err := aesCBCRaw(key, iv, block)
		if err != nil {
			return h
		}
		mod := 0
		for _, b := range enc[:16] {
			mod += int(b)
		}
		switch mod % 3 {
		case 0:
			sum := sha256.Sum256(enc)
			h = sum[:]
		case 1:
			sum := sha512.Sum384(enc)
			h = sum[:]
		default:
			sum := sha512.Sum512(enc)
			h = sum[:]
		}
		// at least 64 rounds, then stop once the last byte of the
		// encrypted block is at most (rounds done - 32)
		if i >= 63 && int(enc[len(enc)-1]) <= i-31 {
			break
		}
	}
	return h[:32]
}

// deriveKey implements Algorithm 2 (file key from password) for R<=4.
func deriveKey(pwd, owner []byte, pVal int32, fileID []byte, keyLenBytes int, r int) ([]byte, error) {
	if keyLenBytes <= 0 {
		keyLenBytes = 5
	}
	if keyLenBytes > 16 {
		keyLenBytes = 16
	}
	data := make([]byte, 0, 32+len(owner)+4+len(fileID))
	data = append(data, padPassword(pwd)...)
	data = append(data, owner...)
	var pBuf [4]byte
	binary.LittleEndian.PutUint32(pBuf[:], uint32(pVal))
	data = append(data, pBuf[:]...)
	data = append(data, fileID...)

	sum := md5.Sum(data)
	key := sum[:]
	if r >= 3 {
		for i := 0; i < 50; i++ {
			sum = md5.Sum(key[:keyLenBytes])
			key = sum[:]
		}
	}
	return key[:keyLenBytes], nil
}

// checkUserPassword verifies the derived key against /U
// (Algorithm 4 for R=2, Algorithm 5 for R>=3).
func checkUserPassword(key []byte, userEntry []byte, fileID []byte, r int) bool {
	if len(userEntry) < 16 {
		return false
	}
	if r <= 2 {
		expect := rc4Simple(key, passwordPadding)
		return comparePrefix(expect[:16], userEntry)
	}
	h := md5.Sum(append(append([]byte{}, passwordPadding...), fileID...))
	val := rc4Simple(key, h[:])
	for i := 1; i <= 19; i++ {
		tmpKey := make([]byte, len(key))
		for j := range key {
			tmpKey[j] = key[j] ^ byte(i)
		}
		val = rc4Simple(tmpKey, val)
	}
	return comparePrefix(val[:16], userEntry)
}

// AES-256 user-password derivation (ISO 32000-2 Algorithm 8 inverse).
func deriveAES256User(pwd []byte, uEntry []byte, ue []byte, fileID []byte) ([]byte, bool, error) {
	if len(uEntry) < 48 || len(ue) < 16 {
		return nil, false, errors.New("user entry too short")
	}
	validationSalt := uEntry[32:40]
	keySalt := uEntry[40:48]
	hashVal := rev6Hash(pwd, validationSalt, nil)
	if !comparePrefix(hashVal[:32], uEntry[:32]) {
		return nil, false, nil
	}
	keyHash := rev6Hash(pwd, keySalt, nil)
	fileKey, err := aesCBCRawDecrypt(keyHash[:32], make([]byte, aes.BlockSize), ue[:32])
	if err != nil {
		return nil, false, err
	}
	return fileKey, true, nil
}

// AES-256 owner derivation folds the first 48 bytes of /U into the hash.
func deriveAES256Owner(pwd []byte, oEntry []byte, oe []byte, uEntry []byte) ([]byte, bool, error) {
	if len(oEntry) < 48 || len(oe) < 16 || len(uEntry) < 48 {
		return nil, false, errors.New("owner entry too short")
	}
	validationSalt := oEntry[32:40]
	keySalt := oEntry[40:48]
	hashVal := rev6Hash(pwd, validationSalt, uEntry[:48])
	if !comparePrefix(hashVal[:32], oEntry[:32]) {
		return nil, false, nil
	}
	keyHash := rev6Hash(pwd, keySalt, uEntry[:48])
	fileKey, err := aesCBCRawDecrypt(keyHash[:32], make([]byte, aes.BlockSize), oe[:32])
	if err != nil {
		return nil, false, err
	}
	return fileKey, true, nil
}

func parseCryptFilters(dict raw.Dictionary, base cryptAlgo) (map[string]cryptAlgo, error) {
	out := make(map[string]cryptAlgo)
	cf, ok := raw.DictDict(dict, "CF")
	if !ok {
		return out, nil
	}
	for _, key := range cf.Keys() {
		obj, _ := cf.Get(key)
		entry, ok := raw.AsDict(obj)
		if !ok {
			return nil, errors.New("crypt filter entry must be a dictionary")
		}
		algo := base
		if cfm, ok := raw.DictName(entry, "CFM"); ok {
			switch cfm {
			case "V2":
				algo = algoRC4
			case "AESV2", "AESV3":
				algo = algoAES
			case "None":
				algo = algoNone
			default:
				return nil, fmt.Errorf("unsupported crypt filter method %s", cfm)
			}
		}
		out[key.Value()] = algo
	}
	return out, nil
}

func resolveCryptFilter(dict raw.Dictionary, key string, base cryptAlgo, filters map[string]cryptAlgo) (cryptAlgo, error) {
	name, _ := raw.DictName(dict, key)
	if name == "" || name == "Standard" {
		if algo, ok := filters["Standard"]; ok {
			return algo, nil
		}
		if algo, ok := filters["StdCF"]; ok {
			return algo, nil
		}
		return base, nil
	}
	if name == "Identity" {
		return algoNone, nil
	}
	if algo, ok := filters[name]; ok {
		return algo, nil
	}
	return algoUnset, fmt.Errorf("crypt filter %s not defined", name)
}

// objectKey derives the per-object key (Algorithm 1); R>=5 uses the
// file key directly (Algorithm 1.A).
func objectKey(fileKey []byte, objNum, gen int, r int, useAES bool) []byte {
	if r >= 5 {
		return fileKey
	}
	key := append([]byte{}, fileKey...)
	key = append(key,
		byte(objNum), byte(objNum>>8), byte(objNum>>16),
		byte(gen), byte(gen>>8))
	if useAES {
		key = append(key, 0x73, 0x41, 0x6C, 0x54) // "sAlT"
	}
	hashLen := len(fileKey) + 5
	if hashLen > 16 {
		hashLen = 16
	}
	hash := md5.Sum(key)
	return hash[:hashLen]
}

func rc4Simple(key []byte, data []byte) []byte {
	out := make([]byte, len(data))
	c, _ := rc4.NewCipher(key)
	c.XORKeyStream(out, data)
	return out
}

func rc4Crypt(key []byte, data []byte) ([]byte, error) {
	c, err := rc4.NewCipher(key)
	if err != nil {
		return nil, err
	}
	out := make([]byte, len(data))
	c.XORKeyStream(out, data)
	return out, nil
}

// aesDecrypt handles the PDF stream layout: leading IV, CBC body,
// PKCS#7 padding.
func aesDecrypt(key []byte, data []byte) ([]byte, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	if len(data) < aes.BlockSize {
		return nil, errors.New("aes ciphertext too short")
	}
	iv := data[:aes.BlockSize]
	ct := data[aes.BlockSize:]
	if len(ct)%aes.BlockSize != 0 {
		return nil, errors.New("aes ciphertext not multiple of blocksize")
	}
	out := make([]byte, len(ct))
	cipher.NewCBCDecrypter(block, iv).CryptBlocks(out, ct)
	if len(out) == 0 {
		return out, nil
	}
	pad := int(out[len(out)-1])
	if pad <= 0 || pad > aes.BlockSize || pad > len(out) {
		return nil, errors.New("invalid aes padding")
	}
	return out[:len(out)-pad], nil
}

// aesCBCRaw encrypts without IV prefix or padding (block-aligned input
// only); used by the R6 hash.
func aesCBCRaw(key, iv, data []byte) ([]byte, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	if len(data)%aes.BlockSize != 0 {
		return nil, errors.New("aes data not block aligned")
	}
	out := make([]byte, len(data))
	cipher.NewCBCEncrypter(block, iv).CryptBlocks(out, data)
	return out, nil
}

func aesCBCRawDecrypt(key, iv, data []byte) ([]byte, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	if len(data)%aes.BlockSize != 0 {
		return nil, errors.New("aes data not block aligned")
	}
	out := make([]byte, len(data))
	cipher.NewCBCDecrypter(block, iv).CryptBlocks(out, data)
	return out, nil
}

func decryptPermsAES256(key []byte, perms []byte) (int32, error) {
	if len(key) == 0 {
		return 0, errors.New("missing key")
	}
	if len(perms) != 16 {
		return 0, errors.New("perms length must be 16")
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return 0, err
	}
	out := make([]byte, 16)
	block.Decrypt(out, perms)
	if !bytes.Equal([]byte("adb"), out[9:12]) {
		return 0, errors.New("invalid perms signature")
	}
	return int32(binary.LittleEndian.Uint32(out[0:4])), nil
}

func comparePrefix(a, b []byte) bool {
	if len(a) > len(b) {
		return false
	}
	return bytes.Equal(a, b[:len(a)])
}
