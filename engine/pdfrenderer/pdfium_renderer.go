package pdfrenderer

import (
	"errors"
	"fmt"
	"image"
	"io/fs"
	"os"
	"sync"
	"time"

	"github.com/klippa-app/go-pdfium"
	"github.com/klippa-app/go-pdfium/references"
	"github.com/klippa-app/go-pdfium/requests"
	"github.com/klippa-app/go-pdfium/webassembly"
)

// PDFiumRenderer implements PDF rendering using go-pdfium with WebAssembly (pure Go, no CGo)
type PDFiumRenderer struct {
	mu       sync.Mutex // one wasm instance, calls are serialised
	pool     pdfium.Pool
	instance pdfium.Pdfium
}

// NewPDFiumRenderer creates a new PDFium-based PDF renderer using WebAssembly
func NewPDFiumRenderer() (*PDFiumRenderer, error) {
	// Initialize WebAssembly pool with minimal configuration
	pool, err := webassembly.Init(webassembly.Config{
		MinIdle:  1, // Minimum idle workers
		MaxIdle:  1, // Maximum idle workers
		MaxTotal: 1, // Total worker limit
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize PDFium WebAssembly: %w", err)
	}

	// Get a PDFium instance from the pool
	instance, err := pool.GetInstance(time.Second * 30)
	if err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to get PDFium instance: %w", err)
	}

	return &PDFiumRenderer{
		pool:     pool,
		instance: instance,
	}, nil
}

// Open reads the PDF into the WebAssembly instance
func (r *PDFiumRenderer) Open(filename string) (Document, error) {
	pdfBytes, err := os.ReadFile(filename)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, filename)
		}
		return nil, fmt.Errorf("unable to read PDF file: %w", err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.instance == nil {
		return nil, errors.New("pdfium renderer is closed")
	}

	doc, err := r.instance.OpenDocument(&requests.OpenDocument{
		File: &pdfBytes,
	})
	if err != nil {
		return nil, fmt.Errorf("unable to open PDF document: %w", err)
	}

	pageCountResp, err := r.instance.FPDF_GetPageCount(&requests.FPDF_GetPageCount{
		Document: doc.Document,
	})
	if err != nil {
		r.instance.FPDF_CloseDocument(&requests.FPDF_CloseDocument{Document: doc.Document})
		return nil, fmt.Errorf("unable to get page count: %w", err)
	}

	return &pdfiumDocument{
		renderer: r,
		doc:      doc.Document,
		pages:    pageCountResp.PageCount,
	}, nil
}

// Close cleans up resources used by the PDFium renderer
func (r *PDFiumRenderer) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.pool != nil {
		r.pool.Close()
		r.pool = nil
	}
	r.instance = nil
	return nil
}

type pdfiumDocument struct {
	renderer *PDFiumRenderer
	doc      references.FPDF_DOCUMENT
	pages    int
	closed   bool
}

func (d *pdfiumDocument) PageCount() int {
	return d.pages
}

func (d *pdfiumDocument) PageSize(index int) (float64, float64, error) {
	if err := checkPage(index, d.pages); err != nil {
		return 0, 0, err
	}
	d.renderer.mu.Lock()
	defer d.renderer.mu.Unlock()

	size, err := d.renderer.instance.FPDF_GetPageSizeByIndex(&requests.FPDF_GetPageSizeByIndex{
		Document: d.doc,
		Index:    index,
	})
	if err != nil {
		return 0, 0, fmt.Errorf("unable to get size of page %d: %w", index, err)
	}
	return size.Width, size.Height, nil
}

func (d *pdfiumDocument) RenderPage(index, width, height int) (image.Image, error) {
	if err := checkPage(index, d.pages); err != nil {
		return nil, err
	}
	d.renderer.mu.Lock()
	defer d.renderer.mu.Unlock()

	pageRender, err := d.renderer.instance.RenderPageInPixels(&requests.RenderPageInPixels{
		Width:  width,
		Height: height,
		Page: requests.Page{
			ByIndex: &requests.PageByIndex{
				Document: d.doc,
				Index:    index,
			},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("unable to render page %d: %w", index, err)
	}
	// the image lives in WebAssembly memory until Cleanup, copy it out first
	img := onWhite(pageRender.Result.Image, width, height)
	pageRender.Cleanup()
	return img, nil
}

func (d *pdfiumDocument) Close() error {
	if d.closed {
		return nil
	}
	d.closed = true
	d.renderer.mu.Lock()
	defer d.renderer.mu.Unlock()
	if d.renderer.instance == nil {
		return nil
	}
	_, err := d.renderer.instance.FPDF_CloseDocument(&requests.FPDF_CloseDocument{
		Document: d.doc,
	})
	return err
}
