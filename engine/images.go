package engine

import (
	"image"

	"github.com/disintegration/imaging"
)

// ImagesToPdf turns each image into one page of a new PDF, in the given order.
// A nil config uses the worker's ImageDefaults. Images that cannot be decoded
// are skipped rather than failing the batch.
func (w *Worker) ImagesToPdf(imagePaths []string, outputPath string, config *ImageToPdfConfig) (string, error) {
	const op = "imagesToPdf"

	if len(imagePaths) == 0 {
		return "", newError(KindEmptyInput, op, "", nil, "image path list is empty")
	}
	if err := requireFiles(op, imagePaths...); err != nil {
		return "", err
	}
	if config == nil {
		defaults := w.ImageDefaults
		config = &defaults
	}

	doc, err := w.Documents.NewImageDocument()
	if err != nil {
		return "", newError(KindIOError, op, outputPath, err, "unable to create output document")
	}
	defer closeLogged(op, "output", doc)

	skipped := 0
	for _, path := range imagePaths {
		img, err := loadScaledImage(path, config)
		if err != nil {
			logger().Warn("Skipping image that could not be decoded", "path", path, "error", err)
			skipped++
			continue
		}
		if b := img.Bounds(); b.Dx() <= 0 || b.Dy() <= 0 {
			logger().Warn("Skipping image with no area", "path", path)
			skipped++
			continue
		}
		if err := doc.AddImagePage(img); err != nil {
			return "", newError(KindWriteFailed, op, path, err, "unable to add image page")
		}
		// img goes out of scope here, only the encoded page stays in the document
	}

	if doc.PageCount() == 0 {
		return "", newError(KindEmptyInput, op, "", nil, "none of the %d images could be decoded", len(imagePaths))
	}

	if err := ensureParent(op, outputPath); err != nil {
		return "", err
	}
	if err := doc.Save(outputPath); err != nil {
		return "", newError(KindWriteFailed, op, outputPath, err, "unable to save document")
	}

	logger().Info("Converted images to PDF", "images", len(imagePaths), "pages", doc.PageCount(), "skipped", skipped, "output", outputPath)
	return outputPath, nil
}

// loadScaledImage decodes path and resamples it when the policy asks for a different size
func loadScaledImage(path string, config *ImageToPdfConfig) (image.Image, error) {
	img, err := imaging.Open(path, imaging.AutoOrientation(true))
	if err != nil {
		return nil, err
	}
	bounds := img.Bounds()
	width, height := ResolveTargetSize(bounds.Dx(), bounds.Dy(), config)
	if width == bounds.Dx() && height == bounds.Dy() {
		return img, nil
	}
	return imaging.Resize(img, width, height, imaging.Lanczos), nil
}
