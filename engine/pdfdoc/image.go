package pdfdoc

import (
	"bytes"
	"fmt"
	"image"

	"github.com/disintegration/imaging"
	"github.com/go-pdf/fpdf"
)

// fpdfImageDocument lays out one image per page, the page measured in points
// equal to the image size in pixels
type fpdfImageDocument struct {
	pdf    *fpdf.Fpdf
	pages  int
	closed bool
}

func newImageDocument() *fpdfImageDocument {
	pdf := fpdf.NewCustom(&fpdf.InitType{
		OrientationStr: "P",
		UnitStr:        "pt",
		Size:           fpdf.SizeType{Wd: 595.28, Ht: 841.89},
	})
	pdf.SetMargins(0, 0, 0)
	pdf.SetAutoPageBreak(false, 0)
	pdf.SetCompression(true)
	return &fpdfImageDocument{pdf: pdf}
}

// AddImagePage appends a page sized exactly to img with img drawn at the origin
func (d *fpdfImageDocument) AddImagePage(img image.Image) error {
	if d.closed {
		return ErrClosed
	}
	bounds := img.Bounds()
	if bounds.Dx() <= 0 || bounds.Dy() <= 0 {
		return fmt.Errorf("image has no area: %dx%d", bounds.Dx(), bounds.Dy())
	}

	// normalise to 8-bit NRGBA, fpdf does not read 16-bit PNGs
	var buf bytes.Buffer
	if err := imaging.Encode(&buf, imaging.Clone(img), imaging.PNG); err != nil {
		return fmt.Errorf("encoding page image: %w", err)
	}

	name := fmt.Sprintf("page-%d", d.pages+1)
	options := fpdf.ImageOptions{ImageType: "PNG"}
	d.pdf.RegisterImageOptionsReader(name, options, &buf)

	width, height := float64(bounds.Dx()), float64(bounds.Dy())
	d.pdf.AddPageFormat("P", fpdf.SizeType{Wd: width, Ht: height})
	d.pdf.ImageOptions(name, 0, 0, width, height, false, options, 0, "")
	if err := d.pdf.Error(); err != nil {
		return fmt.Errorf("adding image page: %w", err)
	}
	d.pages++
	return nil
}

func (d *fpdfImageDocument) PageCount() int {
	return d.pages
}

func (d *fpdfImageDocument) Save(path string) error {
	if d.closed {
		return ErrClosed
	}
	if d.pages == 0 {
		return fmt.Errorf("%w: document has no pages", ErrWriteFailed)
	}
	var buf bytes.Buffer
	if err := d.pdf.Output(&buf); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrWriteFailed, path, err)
	}
	if err := writeFileAtomic(path, buf.Bytes()); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrWriteFailed, path, err)
	}
	Logger.Debug("Saved image pdf", "path", path, "pages", d.pages)
	return nil
}

func (d *fpdfImageDocument) Close() error {
	d.closed = true
	d.pdf = nil
	return nil
}
