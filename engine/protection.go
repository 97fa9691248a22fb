package engine

import (
	"errors"

	"github.com/drummonds/pdfworker/engine/pdfdoc"
)

// lockKeyLength is the encryption key size in bits used by Lock
const lockKeyLength = 128

// IsProtected opens the document without a password. A password demand means
// protected, otherwise the encryption flag of the opened document decides.
func (w *Worker) IsProtected(filePath string) (bool, error) {
	const op = "isProtected"
	return w.isProtected(op, filePath)
}

func (w *Worker) isProtected(op, filePath string) (bool, error) {
	if err := requireFiles(op, filePath); err != nil {
		return false, err
	}
	doc, err := w.Documents.Open(filePath, "")
	if err != nil {
		if errors.Is(err, pdfdoc.ErrInvalidPassword) {
			return true, nil
		}
		return false, openError(op, filePath, err)
	}
	defer closeLogged(op, "document", doc)
	return doc.IsEncrypted(), nil
}

// Lock encrypts filePath in place with a 128 bit key and full permissions.
// The user password opens the document, the owner password bypasses
// permissions. An empty owner password falls back to the user password.
func (w *Worker) Lock(filePath, userPassword, ownerPassword string) error {
	const op = "lock"

	if userPassword == "" && ownerPassword == "" {
		return newError(KindEmptyInput, op, filePath, nil, "a user or owner password is required")
	}
	if ownerPassword == "" {
		ownerPassword = userPassword
	}

	protected, err := w.isProtected(op, filePath)
	if err != nil {
		return err
	}
	if protected {
		return newError(KindAlreadyProtected, op, filePath, nil, "PDF file is already encrypted")
	}

	doc, err := w.Documents.Open(filePath, "")
	if err != nil {
		return openError(op, filePath, err)
	}
	defer closeLogged(op, "document", doc)

	policy := pdfdoc.ProtectionPolicy{
		UserPassword:  userPassword,
		OwnerPassword: ownerPassword,
		KeyLength:     lockKeyLength,
		Permissions:   pdfdoc.FullAccess(),
	}
	if err := doc.Protect(policy); err != nil {
		return newError(KindIOError, op, filePath, err, "unable to apply protection policy")
	}
	if err := doc.Save(filePath); err != nil {
		return saveError(op, filePath, err)
	}

	logger().Info("Locked PDF", "path", filePath, "pages", doc.PageCount())
	return nil
}

// Unlock decrypts filePath with password and rewrites it without any security.
// A wrong password leaves the file untouched.
func (w *Worker) Unlock(filePath, password string) (bool, error) {
	const op = "unlock"

	protected, err := w.isProtected(op, filePath)
	if err != nil {
		return false, err
	}
	if !protected {
		return false, newError(KindNotProtected, op, filePath, nil, "PDF file is not encrypted")
	}

	doc, err := w.Documents.Open(filePath, password)
	if err != nil {
		return false, openError(op, filePath, err)
	}
	defer closeLogged(op, "document", doc)

	if !doc.IsEncrypted() {
		return false, newError(KindNotProtected, op, filePath, nil, "PDF file is not encrypted")
	}
	if err := doc.RemoveAllSecurity(); err != nil {
		return false, newError(KindIOError, op, filePath, err, "unable to remove security")
	}
	if err := doc.Save(filePath); err != nil {
		return false, saveError(op, filePath, err)
	}

	logger().Info("Unlocked PDF", "path", filePath, "pages", doc.PageCount())
	return true, nil
}
