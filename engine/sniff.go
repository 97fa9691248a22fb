package engine

import (
	"errors"
	"io"
	"io/fs"
	"os"
	"strings"
)

// tailSize is how much of the file end is inspected for the trailer
const tailSize = 4096

// LooksEncrypted guesses whether a PDF is encrypted from the last trailer
// dictionary without parsing the document. False negatives are possible on
// files with several incremental-update trailers, use IsProtected for an
// authoritative answer.
func LooksEncrypted(filePath string) (bool, error) {
	const op = "looksEncrypted"

	file, err := os.Open(filePath)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return false, newError(KindNotFound, op, filePath, err, "file does not exist")
		}
		return false, newError(KindIOError, op, filePath, err, "unable to open file")
	}
	defer file.Close()

	info, err := file.Stat()
	if err != nil {
		return false, newError(KindIOError, op, filePath, err, "unable to stat file")
	}
	size := info.Size()
	if size <= 0 {
		return false, newError(KindIOError, op, filePath, nil, "file is empty")
	}

	readSize := int64(tailSize)
	if size < readSize {
		readSize = size
	}
	buffer := make([]byte, readSize)
	if _, err := file.ReadAt(buffer, size-readSize); err != nil && !errors.Is(err, io.EOF) {
		return false, newError(KindIOError, op, filePath, err, "unable to read file tail")
	}

	return tailHasEncrypt(strings.ToValidUTF8(string(buffer), "�")), nil
}

// tailHasEncrypt scopes the search to the last trailer dictionary when one is
// present and only scans the whole tail when no trailer dictionary is found.
func tailHasEncrypt(tail string) bool {
	if trailerIndex := strings.LastIndex(tail, "trailer"); trailerIndex != -1 {
		rest := tail[trailerIndex:]
		if dictStart := strings.Index(rest, "<<"); dictStart != -1 {
			if dictEnd := strings.Index(rest[dictStart:], ">>"); dictEnd != -1 {
				return strings.Contains(rest[dictStart:dictStart+dictEnd+2], "/Encrypt")
			}
		}
	}
	return strings.Contains(tail, "/Encrypt")
}
