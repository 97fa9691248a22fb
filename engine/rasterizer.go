package engine

import (
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"math"
	"os"
	"path/filepath"

	"github.com/disintegration/imaging"
	"github.com/oklog/ulid/v2"

	"github.com/drummonds/pdfworker/engine/pdfrenderer"
)

// PagesToImages renders the selected pages of inputPath, one file per page,
// into outputDir. A nil config renders every page as PNG. File names are
// split_page_<batch>_<page+1>.<ext> where batch is unique per call, a page
// selected more than once gets -<occurrence> from its second copy on.
func (w *Worker) PagesToImages(inputPath, outputDir string, config *RasterConfig) ([]string, error) {
	const op = "pagesToImages"

	if config == nil {
		defaults := DefaultRasterConfig()
		config = &defaults
	}
	if config.PagesIndex != nil && len(config.PagesIndex) == 0 {
		return nil, newError(KindEmptyInput, op, "", nil, "page selection is empty")
	}
	if err := requireFiles(op, inputPath); err != nil {
		return nil, err
	}

	doc, err := w.openForRender(op, inputPath)
	if err != nil {
		return nil, err
	}
	defer closeLogged(op, "render document", doc)

	pages, err := w.selectPages(op, config.PagesIndex, doc.PageCount())
	if err != nil {
		return nil, err
	}

	if err := os.MkdirAll(outputDir, os.ModePerm); err != nil {
		return nil, newError(KindWriteFailed, op, outputDir, err, "unable to create output directory")
	}

	format := config.Format
	if format == "" {
		format = FormatPNG
	}
	quality := clampQuality(config.Quality)
	batch := ulid.Make().String()

	outputs := make([]string, 0, len(pages))
	seen := make(map[int]int, len(pages))
	for i, page := range pages {
		img, err := w.renderPage(doc, page)
		if err != nil {
			return outputs, newError(KindIOError, op, inputPath, err, "unable to render page %d", page)
		}

		seen[page]++
		path := filepath.Join(outputDir, pageImageName(batch, page, seen[page], format))
		if err := writeImage(path, img, format, quality); err != nil {
			return outputs, newError(KindWriteFailed, op, path, err, "unable to write page image")
		}
		outputs = append(outputs, path)

		if config.Progress != nil {
			config.Progress(i+1, len(pages))
		}
	}

	logger().Info("Rendered pages to images", "input", inputPath, "pages", len(outputs), "format", format, "output", outputDir)
	return outputs, nil
}

// PagesToLongImage renders the selected pages and stacks them top to bottom,
// horizontally left aligned on a white canvas as wide as the widest page.
func (w *Worker) PagesToLongImage(inputPath, outputPath string, config *RasterConfig) (string, error) {
	const op = "pagesToLongImage"

	if config == nil {
		defaults := DefaultRasterConfig()
		config = &defaults
	}
	if config.PagesIndex != nil && len(config.PagesIndex) == 0 {
		return "", newError(KindEmptyInput, op, "", nil, "page selection is empty")
	}
	if err := requireFiles(op, inputPath); err != nil {
		return "", err
	}

	doc, err := w.openForRender(op, inputPath)
	if err != nil {
		return "", err
	}
	defer closeLogged(op, "render document", doc)

	pages, err := w.selectPages(op, config.PagesIndex, doc.PageCount())
	if err != nil {
		return "", err
	}

	// first pass: sizes only, so the canvas is allocated once
	sizes := make([]image.Point, len(pages))
	var totalHeight int64
	maxWidth := 0
	for i, page := range pages {
		width, height, err := w.pixelSize(doc, page)
		if err != nil {
			return "", newError(KindIOError, op, inputPath, err, "unable to measure page %d", page)
		}
		sizes[i] = image.Pt(width, height)
		totalHeight += int64(height)
		if width > maxWidth {
			maxWidth = width
		}
	}
	if maxWidth <= 0 || totalHeight <= 0 || totalHeight > math.MaxInt32 {
		return "", newError(KindInvalidSize, op, inputPath, nil, "combined image of %dx%d pixels cannot be allocated", maxWidth, totalHeight)
	}
	if budget := w.canvasBudget(); int64(maxWidth)*totalHeight > budget {
		return "", newError(KindInvalidSize, op, inputPath, nil, "combined image of %dx%d pixels exceeds the %d pixel limit", maxWidth, totalHeight, budget)
	}

	canvas := imaging.New(maxWidth, int(totalHeight), color.White)
	offset := 0
	for i, page := range pages {
		img, err := doc.RenderPage(page, sizes[i].X, sizes[i].Y)
		if err != nil {
			return "", newError(KindIOError, op, inputPath, err, "unable to render page %d", page)
		}
		target := image.Rect(0, offset, sizes[i].X, offset+sizes[i].Y)
		draw.Draw(canvas, target, img, img.Bounds().Min, draw.Src)
		offset += sizes[i].Y

		if config.Progress != nil {
			config.Progress(i+1, len(pages))
		}
	}

	format := config.Format
	if format == "" {
		format = FormatPNG
	}
	quality := clampQuality(config.Quality)
	if format.Lossless() {
		quality = 100
	}

	if err := ensureParent(op, outputPath); err != nil {
		return "", err
	}
	if err := writeImage(outputPath, canvas, format, quality); err != nil {
		return "", newError(KindWriteFailed, op, outputPath, err, "unable to write long image")
	}

	logger().Info("Rendered pages to long image", "input", inputPath, "pages", len(pages), "width", maxWidth, "height", totalHeight, "output", outputPath)
	return outputPath, nil
}

func (w *Worker) canvasBudget() int64 {
	if w.MaxCanvasPixels > 0 {
		return w.MaxCanvasPixels
	}
	return DefaultMaxCanvasPixels
}

// pageImageName encodes the 1-indexed page, occurrence counts from 1
func pageImageName(batch string, page, occurrence int, format ImageFormat) string {
	if occurrence > 1 {
		return fmt.Sprintf("split_page_%s_%d-%d.%s", batch, page+1, occurrence, format.Extension())
	}
	return fmt.Sprintf("split_page_%s_%d.%s", batch, page+1, format.Extension())
}

func (w *Worker) openForRender(op, inputPath string) (pdfrenderer.Document, error) {
	if w.Renderer == nil {
		return nil, newError(KindIOError, op, inputPath, nil, "no renderer is configured")
	}
	doc, err := w.Renderer.Open(inputPath)
	if err != nil {
		return nil, openError(op, inputPath, err)
	}
	return doc, nil
}

// selectPages returns the explicit selection after range checks, or every
// page when selection is nil
func (w *Worker) selectPages(op string, selection []int, pageCount int) ([]int, error) {
	if pageCount == 0 {
		return nil, newError(KindEmptyInput, op, "", nil, "document has no pages")
	}
	if selection == nil {
		pages := make([]int, pageCount)
		for i := range pages {
			pages[i] = i
		}
		return pages, nil
	}
	if err := validateSelection(op, selection, pageCount); err != nil {
		return nil, err
	}
	return selection, nil
}

// pixelSize converts the page size in points to output pixels
func (w *Worker) pixelSize(doc pdfrenderer.Document, page int) (int, int, error) {
	width, height, err := doc.PageSize(page)
	if err != nil {
		return 0, 0, err
	}
	scale := w.RenderScale
	if scale <= 0 {
		scale = DefaultRenderScale
	}
	return atLeastOne(int(width * scale)), atLeastOne(int(height * scale)), nil
}

func (w *Worker) renderPage(doc pdfrenderer.Document, page int) (image.Image, error) {
	width, height, err := w.pixelSize(doc, page)
	if err != nil {
		return nil, err
	}
	return doc.RenderPage(page, width, height)
}

// writeImage encodes img to path, quality only applies to JPEG
func writeImage(path string, img image.Image, format ImageFormat, quality int) error {
	file, err := os.Create(path)
	if err != nil {
		return err
	}

	var encodeErr error
	if format == FormatJPG {
		encodeErr = imaging.Encode(file, img, imaging.JPEG, imaging.JPEGQuality(quality))
	} else {
		encodeErr = imaging.Encode(file, img, imaging.PNG)
	}
	closeErr := file.Close()
	if encodeErr != nil {
		os.Remove(path)
		return encodeErr
	}
	return closeErr
}
