// Package docstore keeps uploaded documents in a local folder.
package docstore

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

// Errors returned by document store operations.
var (
	ErrInvalidFileType = errors.New("unsupported file type")
	ErrInvalidName     = errors.New("invalid file name")
	ErrNotFound        = errors.New("document not found")
)

// SupportedExtensions lists the lower-cased extensions accepted for upload.
var SupportedExtensions = []string{".pdf", ".docx", ".txt"}

// FileInfo describes one stored document.
type FileInfo struct {
	Name    string    `json:"name"`
	Size    int64     `json:"size"`
	ModTime time.Time `json:"mod_time"`
}

// Store is a folder of uploaded documents.
type Store struct {
	dir string
}

// New creates the folder if needed and returns a store rooted at it.
func New(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating data directory: %w", err)
	}
	return &Store{dir: dir}, nil
}

// Dir returns the folder backing the store.
func (s *Store) Dir() string { return s.dir }

// ValidateName checks that name is a usable file name with a supported extension.
func ValidateName(name string) error {
	base := filepath.Base(name)
	if base == "" || base == "." || base == ".." || base == string(filepath.Separator) {
		return ErrInvalidName
	}
	if !Supported(base) {
		return ErrInvalidFileType
	}
	return nil
}

// Supported reports whether name has one of SupportedExtensions.
func Supported(name string) bool {
	ext := strings.ToLower(filepath.Ext(name))
	for _, e := range SupportedExtensions {
		if ext == e {
			return true
		}
	}
	return false
}

// Save writes r into the folder under the base name of name and returns the
// stored file's path. An existing file with the same name is replaced.
func (s *Store) Save(name string, r io.Reader) (string, error) {
	if err := ValidateName(name); err != nil {
		return "", err
	}
	dst := filepath.Join(s.dir, filepath.Base(name))

	tmp, err := os.CreateTemp(s.dir, ".upload-*")
	if err != nil {
		return "", fmt.Errorf("creating temp file: %w", err)
	}
	tmpPath := tmp.Name()
	if _, err := io.Copy(tmp, r); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return "", fmt.Errorf("writing upload: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return "", fmt.Errorf("closing temp file: %w", err)
	}
	if err := os.Rename(tmpPath, dst); err != nil {
		os.Remove(tmpPath)
		return "", fmt.Errorf("renaming temp file: %w", err)
	}
	return dst, nil
}

// List returns the supported documents in the folder sorted by name.
func (s *Store) List() ([]FileInfo, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("reading data directory: %w", err)
	}
	var out []FileInfo
	for _, e := range entries {
		if e.IsDir() || !Supported(e.Name()) {
			continue
		}
		info, err := e.Info()
		if err != nil {
			return nil, fmt.Errorf("stat %s: %w", e.Name(), err)
		}
		out = append(out, FileInfo{Name: e.Name(), Size: info.Size(), ModTime: info.ModTime()})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

// HasDocuments reports whether at least one supported document is stored.
func (s *Store) HasDocuments() (bool, error) {
	files, err := s.List()
	if err != nil {
		return false, err
	}
	return len(files) > 0, nil
}

// Paths returns the full paths of every stored document.
func (s *Store) Paths() ([]string, error) {
	files, err := s.List()
	if err != nil {
		return nil, err
	}
	paths := make([]string, len(files))
	for i, f := range files {
		paths[i] = filepath.Join(s.dir, f.Name)
	}
	return paths, nil
}

// Path resolves a stored document name to its full path.
func (s *Store) Path(name string) (string, error) {
	if err := ValidateName(name); err != nil {
		return "", err
	}
	p := filepath.Join(s.dir, filepath.Base(name))
	if _, err := os.Stat(p); err != nil {
		if os.IsNotExist(err) {
			return "", fmt.Errorf("%w: %s", ErrNotFound, filepath.Base(name))
		}
		return "", fmt.Errorf("stat %s: %w", p, err)
	}
	return p, nil
}

// Remove deletes a stored document.
func (s *Store) Remove(name string) error {
	p, err := s.Path(name)
	if err != nil {
		return err
	}
	if err := os.Remove(p); err != nil {
		return fmt.Errorf("removing %s: %w", filepath.Base(name), err)
	}
	return nil
}
