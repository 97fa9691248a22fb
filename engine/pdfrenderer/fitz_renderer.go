package pdfrenderer

import (
	"errors"
	"fmt"
	"image"
	"io/fs"
	"os"

	"github.com/gen2brain/go-fitz"
)

// FitzRenderer implements PDF rendering using go-fitz (requires CGo and MuPDF)
type FitzRenderer struct {
}

// NewFitzRenderer creates a new Fitz-based PDF renderer
func NewFitzRenderer() (*FitzRenderer, error) {
	return &FitzRenderer{}, nil
}

// Open opens a PDF document using go-fitz
func (r *FitzRenderer) Open(filename string) (Document, error) {
	if _, err := os.Stat(filename); errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, filename)
	}
	doc, err := fitz.New(filename)
	if err != nil {
		return nil, fmt.Errorf("unable to open PDF document: %w", err)
	}
	return &fitzDocument{doc: doc, pages: doc.NumPage()}, nil
}

// Close cleans up resources (no-op for Fitz renderer as each document is closed by its owner)
func (r *FitzRenderer) Close() error {
	return nil
}

type fitzDocument struct {
	doc   *fitz.Document
	pages int
}

func (d *fitzDocument) PageCount() int {
	return d.pages
}

func (d *fitzDocument) PageSize(index int) (float64, float64, error) {
	if err := checkPage(index, d.pages); err != nil {
		return 0, 0, err
	}
	// Bound is reported at 72 DPI, ie in points
	bounds, err := d.doc.Bound(index)
	if err != nil {
		return 0, 0, fmt.Errorf("unable to get bounds of page %d: %w", index, err)
	}
	return float64(bounds.Dx()), float64(bounds.Dy()), nil
}

func (d *fitzDocument) RenderPage(index, width, height int) (image.Image, error) {
	pageWidth, _, err := d.PageSize(index)
	if err != nil {
		return nil, err
	}
	if pageWidth <= 0 || width <= 0 || height <= 0 {
		return nil, fmt.Errorf("invalid render size %dx%d for page %d", width, height, index)
	}
	dpi := 72 * float64(width) / pageWidth
	img, err := d.doc.ImageDPI(index, dpi)
	if err != nil {
		return nil, fmt.Errorf("unable to render page %d: %w", index, err)
	}
	return onWhite(img, width, height), nil
}

func (d *fitzDocument) Close() error {
	return d.doc.Close()
}
