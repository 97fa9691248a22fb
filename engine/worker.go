package engine

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/drummonds/pdfworker/config"
	"github.com/drummonds/pdfworker/engine/pdfdoc"
	"github.com/drummonds/pdfworker/engine/pdfrenderer"
)

// DefaultRenderScale is the oversampling factor applied to page point sizes
const DefaultRenderScale = 3.0

// DefaultMaxCanvasPixels caps the combined long image, about 1 GiB of NRGBA
const DefaultMaxCanvasPixels int64 = 1 << 28

// Worker runs the document operations. It holds no per-call state so one
// Worker can serve concurrent calls on different files.
type Worker struct {
	Documents     pdfdoc.Engine
	Renderer      pdfrenderer.Renderer
	RenderScale   float64
	ImageDefaults ImageToPdfConfig
	// MaxCanvasPixels bounds width*height of a long image, <= 0 means the default
	MaxCanvasPixels int64
}

// NewWorker creates a worker with the default render scale and image limits
func NewWorker(documents pdfdoc.Engine, renderer pdfrenderer.Renderer) *Worker {
	return &Worker{
		Documents:       documents,
		Renderer:        renderer,
		RenderScale:     DefaultRenderScale,
		ImageDefaults:   DefaultImageToPdfConfig(),
		MaxCanvasPixels: DefaultMaxCanvasPixels,
	}
}

// NewWorkerFromConfig builds a worker on pdfcpu with the configured limits.
// renderer may be nil when no rasterization will be requested.
func NewWorkerFromConfig(workerConfig config.WorkerConfig, renderer pdfrenderer.Renderer) *Worker {
	worker := NewWorker(pdfdoc.NewCPUEngine(workerConfig.PdfcpuConfigDir), renderer)
	if workerConfig.RenderScale > 0 {
		worker.RenderScale = workerConfig.RenderScale
	}
	if workerConfig.LongImageMaxPixels > 0 {
		worker.MaxCanvasPixels = int64(workerConfig.LongImageMaxPixels)
	}
	worker.ImageDefaults = ImageToPdfConfig{
		Rescale: RescaleLimit{
			MaxWidth:  workerConfig.ImageMaxWidth,
			MaxHeight: workerConfig.ImageMaxHeight,
		},
		KeepAspectRatio: workerConfig.ImageKeepAspect,
	}
	return worker
}

// Close releases the renderer
func (w *Worker) Close() error {
	if w.Renderer != nil {
		return w.Renderer.Close()
	}
	return nil
}

// requireFiles fails with NotFound listing every path that does not exist
func requireFiles(op string, paths ...string) error {
	var missing []string
	for _, path := range paths {
		info, err := os.Stat(path)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				missing = append(missing, path)
				continue
			}
			return newError(KindIOError, op, path, err, "unable to stat file")
		}
		if info.IsDir() {
			return newError(KindIOError, op, path, nil, "path is a directory")
		}
	}
	if len(missing) > 0 {
		return newError(KindNotFound, op, "", nil, "file does not exist: %s", strings.Join(missing, ", "))
	}
	return nil
}

// validateSelection checks every index against the page count
func validateSelection(op string, selection []int, pageCount int) error {
	for _, index := range selection {
		if index < 0 || index >= pageCount {
			return newError(KindOutOfRange, op, "", nil, "page index %d is out of range, document has %d pages", index, pageCount)
		}
	}
	return nil
}

// ensureParent creates the directory that will hold path
func ensureParent(op, path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, os.ModePerm); err != nil {
		return newError(KindWriteFailed, op, path, err, "unable to create parent directories")
	}
	return nil
}

// openError maps a capability open failure onto the error taxonomy
func openError(op, path string, err error) error {
	switch {
	case errors.Is(err, pdfdoc.ErrNotFound), errors.Is(err, pdfrenderer.ErrNotFound):
		return newError(KindNotFound, op, path, err, "file does not exist")
	case errors.Is(err, pdfdoc.ErrInvalidPassword):
		return newError(KindInvalidPassword, op, path, err, "invalid password")
	default:
		return newError(KindIOError, op, path, err, "unable to open document")
	}
}

// saveError maps a capability save failure onto the error taxonomy
func saveError(op, path string, err error) error {
	if errors.Is(err, pdfdoc.ErrInvalidPassword) {
		return newError(KindInvalidPassword, op, path, err, "invalid password")
	}
	return newError(KindWriteFailed, op, path, err, "unable to save document")
}

// closeLogged is deferred on every handle so release failures are not lost
func closeLogged(op, what string, closer interface{ Close() error }) {
	if err := closer.Close(); err != nil {
		logger().Warn("Failed to release handle", "operation", op, "handle", what, "error", err)
	}
}
