// Package extract turns uploaded PDF, DOCX and TXT files into plain text.
package extract

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"unicode/utf8"
)

// ErrUnsupported is returned for file types without an extractor.
var ErrUnsupported = errors.New("unsupported document type")

// Extractor dispatches text extraction by file extension.
type Extractor struct {
	maxPDFPages int
}

// Option configures an Extractor.
type Option func(*Extractor)

// WithMaxPDFPages limits how many PDF pages are read. Zero means all pages.
func WithMaxPDFPages(n int) Option {
	return func(e *Extractor) {
		e.maxPDFPages = n
	}
}

// New creates an Extractor.
func New(opts ...Option) *Extractor {
	e := &Extractor{}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Extract returns the plain text content of the file at path.
func (e *Extractor) Extract(ctx context.Context, path string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	var (
		text string
		err  error
	)
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".pdf":
		text, err = extractPDF(ctx, path, e.maxPDFPages)
	case ".docx":
		text, err = extractDOCX(path)
	case ".txt":
		text, err = extractTXT(path)
	default:
		return "", fmt.Errorf("%w: %q", ErrUnsupported, ext)
	}
	if err != nil {
		return "", fmt.Errorf("extracting %s: %w", filepath.Base(path), err)
	}
	return text, nil
}

func extractTXT(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	if !utf8.Valid(data) {
		return strings.ToValidUTF8(string(data), "�"), nil
	}
	return string(data), nil
}
