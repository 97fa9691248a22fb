package pdfdoc

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
)

// CPUEngine implements Engine using pdfcpu for documents and fpdf for image pages
type CPUEngine struct{}

// NewCPUEngine creates a pdfcpu backed engine. configDir is where pdfcpu keeps
// its configuration, "" or "disable" keeps pdfcpu away from the user config dir.
func NewCPUEngine(configDir string) *CPUEngine {
	if configDir == "" {
		configDir = "disable"
	}
	model.ConfigPath = configDir
	return &CPUEngine{}
}

var _ Engine = (*CPUEngine)(nil)

// Open reads the whole file, decrypting with password if the file is encrypted
func (e *CPUEngine) Open(path, password string) (Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, path)
		}
		return nil, fmt.Errorf("%w: %s: %v", ErrUnreadable, path, err)
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: %s: file is empty", ErrUnreadable, path)
	}

	ctx, err := api.ReadContext(bytes.NewReader(data), e.configuration(password, password))
	if err != nil {
		if isPasswordError(err) {
			return nil, fmt.Errorf("%w: %s", ErrInvalidPassword, path)
		}
		return nil, fmt.Errorf("%w: %s: %v", ErrUnreadable, path, err)
	}
	if err := api.ValidateContext(ctx); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrUnreadable, path, err)
	}

	doc := &cpuDocument{
		engine:    e,
		path:      path,
		data:      data,
		password:  password,
		encrypted: ctx.Encrypt != nil,
		pageCount: ctx.PageCount,
	}
	doc.pages = make([]sourcePage, ctx.PageCount)
	for i := range doc.pages {
		doc.pages[i] = sourcePage{doc: doc, index: i}
	}
	Logger.Debug("Opened pdf", "path", path, "pages", ctx.PageCount, "encrypted", doc.encrypted)
	return doc, nil
}

// Create returns an empty document
func (e *CPUEngine) Create() (Document, error) {
	return &cpuDocument{engine: e}, nil
}

// NewImageDocument returns an fpdf backed image document
func (e *CPUEngine) NewImageDocument() (ImageDocument, error) {
	return newImageDocument(), nil
}

func (e *CPUEngine) configuration(userPW, ownerPW string) *model.Configuration {
	conf := model.NewDefaultConfiguration()
	conf.UserPW = userPW
	conf.OwnerPW = ownerPW
	conf.ValidationMode = model.ValidationRelaxed
	return conf
}

// collect builds a new document out of the given zero-based pages, in order, duplicates allowed
func (e *CPUEngine) collect(data []byte, pages []int) ([]byte, error) {
	selected := make([]string, len(pages))
	for i, page := range pages {
		selected[i] = strconv.Itoa(page + 1)
	}
	var buf bytes.Buffer
	if err := api.Collect(bytes.NewReader(data), &buf, selected, e.configuration("", "")); err != nil {
		return nil, fmt.Errorf("collecting pages %v: %w", selected, err)
	}
	return buf.Bytes(), nil
}

func (e *CPUEngine) merge(parts [][]byte) ([]byte, error) {
	readers := make([]io.ReadSeeker, len(parts))
	for i, part := range parts {
		readers[i] = bytes.NewReader(part)
	}
	var buf bytes.Buffer
	if err := api.MergeRaw(readers, &buf, false, e.configuration("", "")); err != nil {
		return nil, fmt.Errorf("merging %d parts: %w", len(parts), err)
	}
	return buf.Bytes(), nil
}

func (e *CPUEngine) encrypt(data []byte, policy ProtectionPolicy) ([]byte, error) {
	keyLength := policy.KeyLength
	if keyLength == 0 {
		keyLength = 128
	}
	conf := model.NewAESConfiguration(policy.UserPassword, policy.OwnerPassword, keyLength)
	conf.Permissions = permissionFlags(policy.Permissions)
	conf.ValidationMode = model.ValidationRelaxed

	var buf bytes.Buffer
	if err := api.Encrypt(bytes.NewReader(data), &buf, conf); err != nil {
		return nil, fmt.Errorf("encrypting: %w", err)
	}
	return buf.Bytes(), nil
}

func (e *CPUEngine) decrypt(data []byte, password string) ([]byte, error) {
	var buf bytes.Buffer
	if err := api.Decrypt(bytes.NewReader(data), &buf, e.configuration(password, password)); err != nil {
		if isPasswordError(err) {
			return nil, fmt.Errorf("%w: %v", ErrInvalidPassword, err)
		}
		return nil, fmt.Errorf("decrypting: %w", err)
	}
	return buf.Bytes(), nil
}

// permissionFlags maps Permissions onto the PDF user access bits (table 22)
func permissionFlags(p Permissions) model.PermissionFlags {
	flags := model.PermissionsNone
	set := func(ok bool, flag model.PermissionFlags) {
		if ok {
			flags |= flag
		}
	}
	set(p.Print, model.PermissionPrintRev2)
	set(p.Modify, model.PermissionModify)
	set(p.Extract, model.PermissionExtract)
	set(p.ModifyAnnotations, model.PermissionModAnnFillForm)
	set(p.FillForms, model.PermissionFillRev3)
	set(p.ExtractForAccess, model.PermissionExtractRev3)
	set(p.Assemble, model.PermissionAssembleRev3)
	set(p.PrintHighQuality, model.PermissionPrintRev3)
	return flags
}

func isPasswordError(err error) bool {
	return strings.Contains(strings.ToLower(err.Error()), "password")
}

// sourcePage is a page of a document that was read from disk
type sourcePage struct {
	doc   *cpuDocument
	index int
}

type cpuDocument struct {
	engine    *CPUEngine
	path      string
	data      []byte // file content as read, nil for created documents
	plain     []byte // decrypted content, filled lazily
	password  string
	encrypted bool
	pageCount int
	pages     []sourcePage
	policy    *ProtectionPolicy
	strip     bool
	closed    bool
}

func (d *cpuDocument) PageCount() int {
	return len(d.pages)
}

func (d *cpuDocument) Page(index int) (PageRef, error) {
	if d.closed {
		return PageRef{}, ErrClosed
	}
	if index < 0 || index >= len(d.pages) {
		return PageRef{}, fmt.Errorf("%w: %d of %d", ErrPageRange, index, len(d.pages))
	}
	return PageRef{Doc: d, Index: index}, nil
}

func (d *cpuDocument) InsertPage(page PageRef, at int) error {
	if d.closed {
		return ErrClosed
	}
	src, ok := page.Doc.(*cpuDocument)
	if !ok {
		return fmt.Errorf("page belongs to a %T, not a pdfcpu document", page.Doc)
	}
	if src.closed {
		return fmt.Errorf("source %w", ErrClosed)
	}
	if page.Index < 0 || page.Index >= len(src.pages) {
		return fmt.Errorf("%w: source page %d of %d", ErrPageRange, page.Index, len(src.pages))
	}
	if at < 0 || at > len(d.pages) {
		return fmt.Errorf("%w: insert position %d of %d", ErrPageRange, at, len(d.pages))
	}

	leaf := src.pages[page.Index]
	d.pages = append(d.pages, sourcePage{})
	copy(d.pages[at+1:], d.pages[at:])
	d.pages[at] = leaf
	return nil
}

func (d *cpuDocument) IsEncrypted() bool {
	return d.encrypted
}

func (d *cpuDocument) Protect(policy ProtectionPolicy) error {
	if d.closed {
		return ErrClosed
	}
	if policy.OwnerPassword == "" {
		return errors.New("owner password is required")
	}
	d.policy = &policy
	return nil
}

func (d *cpuDocument) RemoveAllSecurity() error {
	if d.closed {
		return ErrClosed
	}
	d.strip = true
	d.policy = nil
	return nil
}

// Save writes the document to path through a temp file so an existing file
// is only replaced once the new content is complete
func (d *cpuDocument) Save(path string) error {
	if d.closed {
		return ErrClosed
	}
	if len(d.pages) == 0 {
		return fmt.Errorf("%w: document has no pages", ErrWriteFailed)
	}

	content, err := d.assemble()
	if err != nil {
		if errors.Is(err, ErrInvalidPassword) {
			return err
		}
		return fmt.Errorf("%w: %s: %v", ErrWriteFailed, path, err)
	}
	if d.policy != nil {
		content, err = d.engine.encrypt(content, *d.policy)
		if err != nil {
			return fmt.Errorf("%w: %s: %v", ErrWriteFailed, path, err)
		}
	}
	if err := writeFileAtomic(path, content); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrWriteFailed, path, err)
	}
	Logger.Debug("Saved pdf", "path", path, "pages", len(d.pages), "encrypted", d.policy != nil)
	return nil
}

func (d *cpuDocument) Close() error {
	d.closed = true
	d.data = nil
	d.plain = nil
	d.pages = nil
	return nil
}

// original reports whether the page list is still exactly the file as read
func (d *cpuDocument) original() bool {
	if d.data == nil || len(d.pages) != d.pageCount {
		return false
	}
	for i, p := range d.pages {
		if p.doc != d || p.index != i {
			return false
		}
	}
	return true
}

// content returns the unencrypted bytes of a document read from disk
func (d *cpuDocument) content() ([]byte, error) {
	if !d.encrypted {
		return d.data, nil
	}
	if d.plain == nil {
		plain, err := d.engine.decrypt(d.data, d.password)
		if err != nil {
			return nil, err
		}
		d.plain = plain
	}
	return d.plain, nil
}

func (d *cpuDocument) assemble() ([]byte, error) {
	if d.original() {
		if d.strip || d.policy != nil {
			return d.content()
		}
		return d.data, nil
	}

	type run struct {
		doc     *cpuDocument
		indices []int
	}
	var runs []run
	for _, p := range d.pages {
		if p.doc.closed {
			return nil, fmt.Errorf("source %s %w", p.doc.path, ErrClosed)
		}
		if n := len(runs); n > 0 && runs[n-1].doc == p.doc {
			runs[n-1].indices = append(runs[n-1].indices, p.index)
			continue
		}
		runs = append(runs, run{doc: p.doc, indices: []int{p.index}})
	}

	parts := make([][]byte, 0, len(runs))
	for _, r := range runs {
		data, err := r.doc.content()
		if err != nil {
			return nil, err
		}
		if !wholeInOrder(r.indices, r.doc.pageCount) {
			if data, err = d.engine.collect(data, r.indices); err != nil {
				return nil, err
			}
		}
		parts = append(parts, data)
	}
	if len(parts) == 1 {
		return parts[0], nil
	}
	return d.engine.merge(parts)
}

func wholeInOrder(indices []int, pageCount int) bool {
	if len(indices) != pageCount {
		return false
	}
	for i, idx := range indices {
		if idx != i {
			return false
		}
	}
	return true
}

func writeFileAtomic(path string, content []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, os.ModePerm); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	mode := fs.FileMode(0o644)
	if info, err := os.Stat(path); err == nil {
		mode = info.Mode().Perm()
	}
	if err := tmp.Chmod(mode); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return err
	}
	if _, err := tmp.Write(content); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return err
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return err
	}
	return nil
}
