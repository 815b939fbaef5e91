package parser

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/wudi/pdfimages/filters"
	"github.com/wudi/pdfimages/ir/raw"
	"github.com/wudi/pdfimages/observability"
	"github.com/wudi/pdfimages/recovery"
	"github.com/wudi/pdfimages/security"
	"github.com/wudi/pdfimages/xref"
)

// Config controls document parsing (xref resolution + object loading).
type Config struct {
	Recovery recovery.Strategy
	Limits   security.Limits
	Password string
	Logger   observability.Logger
}

// Document provides lazy access to the objects of one PDF file.
type Document struct {
	reader   io.ReaderAt
	closer   io.Closer
	table    xref.Table
	sec      security.Handler
	pipeline *filters.Pipeline
	limits   security.Limits
	log      observability.Logger
	version  string

	cache   map[raw.ObjectRef]raw.Object
	loading map[raw.ObjectRef]bool
	pages   []*Page
}

// Open parses the PDF at path. The returned document owns the file
// handle; Close releases it.
func Open(path string) (*Document, error) {
	return OpenWithConfig(path, Config{Recovery: recovery.NewLenientStrategy()})
}

func OpenWithConfig(path string, cfg Config) (*Document, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	doc, err := NewDocument(f, cfg)
	if err != nil {
		f.Close()
		return nil, err
	}
	doc.closer = f
	return doc, nil
}

// NewDocument parses a PDF from r. The reader must stay valid for the
// document's lifetime.
func NewDocument(r io.ReaderAt, cfg Config) (*Document, error) {
	if cfg.Logger == nil {
		cfg.Logger = observability.NopLogger{}
	}
	if cfg.Limits == (security.Limits{}) {
		cfg.Limits = security.DefaultLimits()
	}
	ctx := context.Background()

	resolver := xref.NewResolver(xref.ResolverConfig{
		MaxXRefDepth: cfg.Limits.MaxXRefDepth,
		Recovery:     cfg.Recovery,
	})
	table, err := resolver.Resolve(ctx, r)
	if err != nil {
		return nil, fmt.Errorf("resolve xref: %w", err)
	}

	doc := &Document{
		reader:   r,
		table:    table,
		pipeline: filters.NewStandardPipeline(filters.Limits{MaxDecompressedSize: cfg.Limits.MaxDecompressedSize}),
		limits:   cfg.Limits,
		log:      cfg.Logger,
		version:  detectHeaderVersion(r),
		cache:    make(map[raw.ObjectRef]raw.Object),
		loading:  make(map[raw.ObjectRef]bool),
	}

	sec, err := doc.setupSecurity(ctx, cfg.Password)
	if err != nil {
		return nil, fmt.Errorf("security setup: %w", err)
	}
	doc.sec = sec

	cfg.Logger.Debug("document opened",
		observability.String("version", doc.version),
		observability.Int("objects", len(table.Objects())))
	return doc, nil
}

func (d *Document) Close() error {
	d.cache = nil
	d.pages = nil
	if d.closer != nil {
		return d.closer.Close()
	}
	return nil
}

func (d *Document) Version() string         { return d.version }
func (d *Document) Trailer() raw.Dictionary { return d.table.Trailer() }
func (d *Document) Encrypted() bool         { return d.sec.IsEncrypted() }

func (d *Document) Permissions() security.Permissions { return d.sec.Permissions() }

func (d *Document) setupSecurity(ctx context.Context, password string) (security.Handler, error) {
	trailer := d.table.Trailer()
	encObj, ok := raw.DictGet(trailer, "Encrypt")
	if !ok {
		return security.NoopHandler(), nil
	}
	// the Encrypt dictionary itself is never encrypted
	if ref, isRef := raw.AsReference(encObj); isRef {
		loaded, err := d.loadPlain(ctx, ref)
		if err != nil {
			return nil, fmt.Errorf("load encrypt dict: %w", err)
		}
		encObj = loaded
	}
	encDict, ok := raw.AsDict(encObj)
	if !ok {
		return nil, errors.New("Encrypt is not a dictionary")
	}
	h, err := (&security.HandlerBuilder{}).
		WithEncryptDict(encDict).
		WithTrailer(trailer).
		Build()
	if err != nil {
		return nil, err
	}
	if err := h.Authenticate(password); err != nil {
		return nil, err
	}
	return h, nil
}

func detectHeaderVersion(r io.ReaderAt) string {
	buf := make([]byte, 16)
	n, _ := r.ReadAt(buf, 0)
	buf = buf[:n]
	const prefix = "%PDF-"
	if len(buf) <= len(prefix) || string(buf[:len(prefix)]) != prefix {
		return ""
	}
	end := len(prefix)
	for end < len(buf) && (buf[end] == '.' || (buf[end] >= '0' && buf[end] <= '9')) {
		end++
	}
	return string(buf[len(prefix):end])
}
