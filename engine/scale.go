package engine

import "math"

// ResolveTargetSize computes the pixel size an image should be resampled to.
// Both results are at least 1. The source image is never touched.
func ResolveTargetSize(originalWidth, originalHeight int, config *ImageToPdfConfig) (int, int) {
	if config == nil {
		return originalWidth, originalHeight
	}

	widthLimit := config.Rescale.MaxWidth
	heightLimit := config.Rescale.MaxHeight
	if widthLimit <= 0 && heightLimit <= 0 {
		return originalWidth, originalHeight
	}

	if !config.KeepAspectRatio {
		targetWidth := originalWidth
		if widthLimit > 0 {
			targetWidth = widthLimit
		}
		targetHeight := originalHeight
		if heightLimit > 0 {
			targetHeight = heightLimit
		}
		return atLeastOne(targetWidth), atLeastOne(targetHeight)
	}

	// a degenerate source cannot be scaled proportionally
	if originalWidth <= 0 || originalHeight <= 0 {
		return atLeastOne(originalWidth), atLeastOne(originalHeight)
	}

	switch {
	case widthLimit > 0 && heightLimit > 0:
		widthScale := float64(widthLimit) / float64(originalWidth)
		heightScale := float64(heightLimit) / float64(originalHeight)
		scale := math.Min(widthScale, heightScale)
		return scaled(originalWidth, scale), scaled(originalHeight, scale)

	case widthLimit > 0:
		scale := float64(widthLimit) / float64(originalWidth)
		return atLeastOne(widthLimit), scaled(originalHeight, scale)

	default:
		scale := float64(heightLimit) / float64(originalHeight)
		return scaled(originalWidth, scale), atLeastOne(heightLimit)
	}
}

func scaled(v int, scale float64) int {
	return atLeastOne(int(math.Round(float64(v) * scale)))
}

func atLeastOne(v int) int {
	if v < 1 {
		return 1
	}
	return v
}
