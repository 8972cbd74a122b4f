package filestorage

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"mime/multipart"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"github.com/yigit/registrar/internal/pkg/logger"
)

// LocalStorage stores files on the local filesystem below basePath.
type LocalStorage struct {
	basePath string
}

var _ FileStorage = (*LocalStorage)(nil)

// NewLocalStorage creates a new LocalStorage instance, creating basePath if needed.
func NewLocalStorage(basePath string) (*LocalStorage, error) {
	if err := os.MkdirAll(basePath, os.ModePerm); err != nil {
		logger.Error().Err(err).Str("path", basePath).Msg("Failed to create storage directory")
		return nil, fmt.Errorf("failed to create storage directory %s: %w", basePath, err)
	}
	logger.Info().Str("path", basePath).Msg("Local storage directory ensured")

	return &LocalStorage{basePath: basePath}, nil
}

// resolve maps a relative storage path to a physical path inside basePath.
func (ls *LocalStorage) resolve(path string) (string, error) {
	cleaned := filepath.Clean(filepath.FromSlash(strings.TrimSpace(path)))
	if cleaned == "." || cleaned == "" || filepath.IsAbs(cleaned) || strings.HasPrefix(cleaned, "..") {
		return "", fmt.Errorf("%w: %q", ErrInvalidPath, path)
	}
	return filepath.Join(ls.basePath, cleaned), nil
}

// SaveUpload copies an uploaded file under subPath using a uuid-based name.
func (ls *LocalStorage) SaveUpload(fileHeader *multipart.FileHeader, subPath string) (*FileInfo, error) {
	if fileHeader == nil {
		return nil, errors.New("no file uploaded")
	}

	src, err := fileHeader.Open()
	if err != nil {
		logger.Error().Err(err).Str("filename", fileHeader.Filename).Msg("Failed to open uploaded file")
		return nil, fmt.Errorf("failed to open uploaded file: %w", err)
	}
	defer src.Close()

	// Generate a unique filename to prevent collisions
	relPath := filepath.ToSlash(filepath.Join(subPath, uuid.New().String()+filepath.Ext(fileHeader.Filename)))
	dstPath, err := ls.resolve(relPath)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(filepath.Dir(dstPath), os.ModePerm); err != nil {
		return nil, fmt.Errorf("failed to create subdirectory: %w", err)
	}

	dst, err := os.Create(dstPath)
	if err != nil {
		logger.Error().Err(err).Str("path", dstPath).Msg("Failed to create destination file")
		return nil, fmt.Errorf("failed to create destination file: %w", err)
	}
	defer dst.Close()

	size, err := io.Copy(dst, src)
	if err != nil {
		logger.Error().Err(err).Str("path", dstPath).Msg("Failed to copy uploaded file content")
		_ = os.Remove(dstPath)
		return nil, fmt.Errorf("failed to save file content: %w", err)
	}

	logger.Info().Str("filename", fileHeader.Filename).Str("saved_as", relPath).Msg("File saved successfully")
	return &FileInfo{Path: relPath, Filename: fileHeader.Filename, FileSize: size}, nil
}

// Open opens a stored file for reading.
func (ls *LocalStorage) Open(path string) (io.ReadCloser, error) {
	physical, err := ls.resolve(path)
	if err != nil {
		return nil, err
	}
	return os.Open(physical)
}

// Read returns the content of a stored file.
func (ls *LocalStorage) Read(path string) ([]byte, error) {
	physical, err := ls.resolve(path)
	if err != nil {
		return nil, err
	}
	return os.ReadFile(physical)
}

// Write creates parent directories as needed and replaces the file content.
func (ls *LocalStorage) Write(path string, data []byte) error {
	physical, err := ls.resolve(path)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(physical), os.ModePerm); err != nil {
		return fmt.Errorf("failed to create directory for %s: %w", path, err)
	}
	if err := os.WriteFile(physical, data, 0o644); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return nil
}

// Delete removes a file. Returns nil if the file doesn't exist.
func (ls *LocalStorage) Delete(path string) error {
	if path == "" {
		return nil
	}
	physical, err := ls.resolve(path)
	if err != nil {
		return err
	}

	if err := os.Remove(physical); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			logger.Warn().Str("path", physical).Msg("File to delete does not exist")
			return nil
		}
		logger.Error().Err(err).Str("path", physical).Msg("Failed to delete file")
		return fmt.Errorf("failed to delete file: %w", err)
	}

	logger.Debug().Str("path", physical).Msg("File deleted")
	return nil
}

// Exists reports whether a regular file is present at path.
func (ls *LocalStorage) Exists(path string) (bool, error) {
	physical, err := ls.resolve(path)
	if err != nil {
		return false, err
	}
	info, err := os.Stat(physical)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return false, nil
		}
		return false, err
	}
	return !info.IsDir(), nil
}

// FullPath returns the physical location of a stored file.
func (ls *LocalStorage) FullPath(path string) string {
	physical, err := ls.resolve(path)
	if err != nil {
		return ""
	}
	return physical
}
