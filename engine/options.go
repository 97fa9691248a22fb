package engine

import "strings"

// RescaleLimit bounds an image in pixels, zero or less means no limit on that axis
type RescaleLimit struct {
	MaxWidth  int `json:"maxWidth"`
	MaxHeight int `json:"maxHeight"`
}

// ImageToPdfConfig controls how images are resized before becoming pages
type ImageToPdfConfig struct {
	Rescale         RescaleLimit `json:"rescale"`
	KeepAspectRatio bool         `json:"keepAspectRatio"`
}

// DefaultImageToPdfConfig keeps the aspect ratio inside an A4 box at twice the point size
func DefaultImageToPdfConfig() ImageToPdfConfig {
	return ImageToPdfConfig{
		Rescale:         RescaleLimit{MaxWidth: 595 * 2, MaxHeight: 842 * 2},
		KeepAspectRatio: true,
	}
}

// ImageFormat is the raster encoding used for rendered pages
type ImageFormat string

const (
	FormatPNG ImageFormat = "png"
	FormatJPG ImageFormat = "jpg"
)

// ParseImageFormat maps user input onto an ImageFormat, falling back to PNG
func ParseImageFormat(s string) ImageFormat {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "jpg", "jpeg":
		return FormatJPG
	default:
		return FormatPNG
	}
}

// Extension is the file extension without the dot
func (f ImageFormat) Extension() string {
	if f == FormatJPG {
		return "jpg"
	}
	return "png"
}

// Lossless reports whether quality is ignored for this format
func (f ImageFormat) Lossless() bool {
	return f != FormatJPG
}

// ProgressFunc receives 1-indexed progress on the caller's goroutine
type ProgressFunc func(current, total int)

// RasterConfig selects pages and the output encoding for rasterization.
// Build it with NewRasterConfig so Quality is always clamped.
type RasterConfig struct {
	PagesIndex []int // nil means every page in document order
	Format     ImageFormat
	Quality    int
	Progress   ProgressFunc
}

// NewRasterConfig returns a config with quality clamped to [0,100]
func NewRasterConfig(pagesIndex []int, format ImageFormat, quality int) RasterConfig {
	if format == "" {
		format = FormatPNG
	}
	return RasterConfig{
		PagesIndex: pagesIndex,
		Format:     format,
		Quality:    clampQuality(quality),
	}
}

// DefaultRasterConfig renders every page as PNG at full quality
func DefaultRasterConfig() RasterConfig {
	return NewRasterConfig(nil, FormatPNG, 100)
}

func clampQuality(q int) int {
	if q < 0 {
		return 0
	}
	if q > 100 {
		return 100
	}
	return q
}
