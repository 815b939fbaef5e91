package filters

import (
	"context"
	"fmt"

	"github.com/wudi/pdfimages/ir/raw"
)

// Native-container filters deliver a compressed raster the renderer
// reads whole; they are never reduced to samples here and are only
// legal as the last filter of a chain.
const (
	NativeDCT   = "DCTDecode"
	NativeJPX   = "JPXDecode"
	NativeCCITT = "CCITTFaxDecode"
)

func isNative(name string) bool {
	return name == NativeDCT || name == NativeJPX || name == NativeCCITT
}

// ChainResult is the outcome of running an image stream's filter chain.
type ChainResult struct {
	// Data holds fully decoded samples when Native is empty, otherwise
	// the native container bytes (CCITT payloads arrive wrapped as a
	// TIFF).
	Data   []byte
	Native string
}

// Chain applies an image stream's filters in order. Standard filters
// fully decode; a native filter must be final and is passed through.
type Chain struct {
	pipeline *Pipeline
}

func NewChain(limits Limits) *Chain {
	return &Chain{pipeline: NewStandardPipeline(limits)}
}

// Apply runs the chain. imageDict supplies the Height fallback for
// CCITT /Rows.
func (c *Chain) Apply(ctx context.Context, payload []byte, names []string, params []raw.Dictionary, imageDict raw.Dictionary) (ChainResult, error) {
	data := payload
	for i, name := range names {
		var param raw.Dictionary
		if i < len(params) {
			param = params[i]
		}
		if isNative(name) {
			if i != len(names)-1 {
				return ChainResult{}, fmt.Errorf("%w: %s not in final position", ErrUnsupportedFilter, name)
			}
			if name == NativeCCITT {
				wrapped, err := WrapCCITT(data, param, imageDict)
				if err != nil {
					return ChainResult{}, err
				}
				return ChainResult{Data: wrapped, Native: NativeCCITT}, nil
			}
			return ChainResult{Data: data, Native: name}, nil
		}
		out, err := c.pipeline.Decode(ctx, data, []string{name}, []raw.Dictionary{param})
		if err != nil {
			return ChainResult{}, err
		}
		data = out
	}
	return ChainResult{Data: data}, nil
}
