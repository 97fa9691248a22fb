package pdfdoc

import (
	"errors"
	"image"
	"log/slog"
)

// Logger is global since we will need it everywhere
var Logger = slog.Default()

var (
	ErrNotFound        = errors.New("pdf file not found")
	ErrInvalidPassword = errors.New("invalid or missing password")
	ErrUnreadable      = errors.New("unable to read pdf")
	ErrWriteFailed     = errors.New("unable to write pdf")
	ErrClosed          = errors.New("document is closed")
	ErrPageRange       = errors.New("page index out of range")
)

// Engine opens and creates documents
type Engine interface {
	// Open loads the document at path, decrypting it with password when needed
	Open(path, password string) (Document, error)

	// Create returns an empty document pages can be inserted into
	Create() (Document, error)

	// NewImageDocument returns an empty document built from full-page images
	NewImageDocument() (ImageDocument, error)
}

// PageRef points at one page of an open document
type PageRef struct {
	Doc   Document
	Index int
}

// ProtectionPolicy is applied on the next Save
type ProtectionPolicy struct {
	UserPassword  string
	OwnerPassword string
	KeyLength     int // bits
	Permissions   Permissions
}

// Permissions granted to a user-password holder
type Permissions struct {
	Print             bool
	Modify            bool
	Extract           bool
	ModifyAnnotations bool
	FillForms         bool
	ExtractForAccess  bool
	Assemble          bool
	PrintHighQuality  bool
}

// FullAccess grants every permission
func FullAccess() Permissions {
	return Permissions{
		Print:             true,
		Modify:            true,
		Extract:           true,
		ModifyAnnotations: true,
		FillForms:         true,
		ExtractForAccess:  true,
		Assemble:          true,
		PrintHighQuality:  true,
	}
}

// Document is an open PDF owned by exactly one operation
type Document interface {
	PageCount() int
	Page(index int) (PageRef, error)
	InsertPage(page PageRef, at int) error
	IsEncrypted() bool
	Protect(policy ProtectionPolicy) error
	RemoveAllSecurity() error
	Save(path string) error
	Close() error
}

// ImageDocument is a new PDF where each page is one image drawn at the origin
type ImageDocument interface {
	AddImagePage(img image.Image) error
	PageCount() int
	Save(path string) error
	Close() error
}
