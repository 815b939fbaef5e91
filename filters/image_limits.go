package filters

import "fmt"

const (
	// maxRasterDimension caps width/height for raster allocation when a
	// corrupted dictionary lies about image sizes.
	maxRasterDimension = 32768
	// maxRasterPixels bounds the total pixel count (roughly 64MP),
	// keeping RGBA buffers under 256 MB.
	maxRasterPixels int64 = 64 * 1024 * 1024
)

// ValidateRasterBounds rejects dimensions that would lead to oversized
// or degenerate raster allocations.
func ValidateRasterBounds(width, height int) error {
	if width <= 0 || height <= 0 {
		return fmt.Errorf("image bounds invalid (%d x %d)", width, height)
	}
	if width > maxRasterDimension || height > maxRasterDimension {
		return fmt.Errorf("image dimension exceeds limit (%d x %d)", width, height)
	}
	if int64(width)*int64(height) > maxRasterPixels {
		return fmt.Errorf("image pixel count %d x %d exceeds limit %d", width, height, maxRasterPixels)
	}
	return nil
}
