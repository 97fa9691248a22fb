package pdfrenderer

import (
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"log/slog"

	"github.com/disintegration/imaging"
)

// Logger is global since we will need it everywhere
var Logger = slog.Default()

// ErrNotFound is returned by Open when the file does not exist
var ErrNotFound = errors.New("pdf file not found")

// Renderer defines the interface for PDF page rasterization
type Renderer interface {
	// Open loads a PDF for rendering, the caller must Close the result
	Open(filename string) (Document, error)

	// Close cleans up any resources used by the renderer
	Close() error
}

// Document is a PDF opened for rendering
type Document interface {
	PageCount() int

	// PageSize returns the page size in points (1/72 inch)
	PageSize(index int) (width, height float64, err error)

	// RenderPage draws a page scaled to exactly width x height pixels on a white background
	RenderPage(index, width, height int) (image.Image, error)

	Close() error
}

// NewRenderer creates the renderer named by kind, "pdfium" (pure Go) or "fitz" (MuPDF, CGo)
func NewRenderer(kind string) (Renderer, error) {
	switch kind {
	case "", "pdfium":
		return NewPDFiumRenderer()
	case "fitz", "mupdf":
		return NewFitzRenderer()
	default:
		return nil, fmt.Errorf("unknown renderer %q, expected pdfium or fitz", kind)
	}
}

// onWhite flattens img onto a white canvas of exactly width x height pixels,
// resampling when the backend produced a slightly different size
func onWhite(img image.Image, width, height int) *image.NRGBA {
	if b := img.Bounds(); b.Dx() != width || b.Dy() != height {
		img = imaging.Resize(img, width, height, imaging.Lanczos)
	}
	canvas := imaging.New(width, height, color.White)
	draw.Draw(canvas, canvas.Bounds(), img, img.Bounds().Min, draw.Over)
	return canvas
}

func checkPage(index, count int) error {
	if index < 0 || index >= count {
		return fmt.Errorf("page %d out of range, document has %d pages", index, count)
	}
	return nil
}
