package engine

import (
	"github.com/hashicorp/go-multierror"

	"github.com/drummonds/pdfworker/engine/pdfdoc"
)

// MergeAll copies every page of every file, in file order then page order,
// into a new document written to outputPath
func (w *Worker) MergeAll(filePaths []string, outputPath string) (string, error) {
	const op = "mergeAll"

	if len(filePaths) == 0 {
		return "", newError(KindEmptyInput, op, "", nil, "file path list is empty")
	}
	if err := requireFiles(op, filePaths...); err != nil {
		return "", err
	}

	sources := make([]pdfdoc.Document, 0, len(filePaths))
	defer func() {
		if err := closeAll(sources); err != nil {
			logger().Warn("Failed to release source documents", "operation", op, "error", err)
		}
	}()
	for _, path := range filePaths {
		doc, err := w.Documents.Open(path, "")
		if err != nil {
			return "", openError(op, path, err)
		}
		sources = append(sources, doc)
	}

	merged, err := w.Documents.Create()
	if err != nil {
		return "", newError(KindIOError, op, outputPath, err, "unable to create output document")
	}
	defer closeLogged(op, "output", merged)

	for i, source := range sources {
		for page := 0; page < source.PageCount(); page++ {
			if err := copyPage(source, page, merged); err != nil {
				return "", newError(KindIOError, op, filePaths[i], err, "unable to copy page %d", page)
			}
		}
	}
	if merged.PageCount() == 0 {
		return "", newError(KindEmptyInput, op, "", nil, "source documents have no pages")
	}

	if err := ensureParent(op, outputPath); err != nil {
		return "", err
	}
	if err := merged.Save(outputPath); err != nil {
		return "", saveError(op, outputPath, err)
	}

	logger().Info("Merged PDF files", "files", len(filePaths), "pages", merged.PageCount(), "output", outputPath)
	return outputPath, nil
}

// MergeSelectedPages writes the pages of inputPath named by selection, in
// selection order, to outputPath. Indices are zero-based and may repeat.
// progress, when set, is called once per copied page with (n, len(selection)).
func (w *Worker) MergeSelectedPages(inputPath, outputPath string, selection []int, progress ProgressFunc) (string, error) {
	const op = "mergeSelectedPages"

	if len(selection) == 0 {
		return "", newError(KindEmptyInput, op, "", nil, "page selection is empty")
	}
	if err := requireFiles(op, inputPath); err != nil {
		return "", err
	}

	source, err := w.Documents.Open(inputPath, "")
	if err != nil {
		return "", openError(op, inputPath, err)
	}
	defer closeLogged(op, "source", source)

	if err := validateSelection(op, selection, source.PageCount()); err != nil {
		return "", err
	}

	output, err := w.Documents.Create()
	if err != nil {
		return "", newError(KindIOError, op, outputPath, err, "unable to create output document")
	}
	defer closeLogged(op, "output", output)

	total := len(selection)
	for i, page := range selection {
		if err := copyPage(source, page, output); err != nil {
			return "", newError(KindIOError, op, inputPath, err, "unable to copy page %d", page)
		}
		if progress != nil {
			progress(i+1, total)
		}
	}

	if err := ensureParent(op, outputPath); err != nil {
		return "", err
	}
	if err := output.Save(outputPath); err != nil {
		return "", saveError(op, outputPath, err)
	}

	logger().Info("Merged selected pages", "input", inputPath, "pages", total, "output", outputPath)
	return outputPath, nil
}

// copyPage appends page index of source to the end of target
func copyPage(source pdfdoc.Document, index int, target pdfdoc.Document) error {
	ref, err := source.Page(index)
	if err != nil {
		return err
	}
	return target.InsertPage(ref, target.PageCount())
}

func closeAll(docs []pdfdoc.Document) error {
	var result *multierror.Error
	for _, doc := range docs {
		if err := doc.Close(); err != nil {
			result = multierror.Append(result, err)
		}
	}
	return result.ErrorOrNil()
}
