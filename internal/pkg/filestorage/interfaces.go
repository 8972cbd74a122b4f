package filestorage

import (
	"errors"
	"io"
	"mime/multipart"
)

// ErrInvalidPath is returned for paths that escape the storage root.
var ErrInvalidPath = errors.New("invalid storage path")

// FileInfo represents information about a stored file
type FileInfo struct {
	Path     string // Path relative to the storage root
	Filename string // Original filename
	FileSize int64  // Size in bytes
}

// FileStorage defines the storage operations used by uploads and import runs.
// All paths are relative to the storage root.
type FileStorage interface {
	// SaveUpload stores an uploaded file under subPath with a generated name
	SaveUpload(fileHeader *multipart.FileHeader, subPath string) (*FileInfo, error)

	// Open opens a stored file for reading
	Open(path string) (io.ReadCloser, error)

	// Read returns the full content of a stored file
	Read(path string) ([]byte, error)

	// Write creates or truncates a file with the given content
	Write(path string, data []byte) error

	// Delete removes a file; deleting a missing file is not an error
	Delete(path string) error

	// Exists reports whether a file is present
	Exists(path string) (bool, error)
}
