package service

import (
	"context"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"docqa/internal/docstore"
)

// DefaultPreviewChars bounds the text returned by Preview when no limit is given.
const DefaultPreviewChars = 2000

// Preview is the beginning of a document's extracted text.
type Preview struct {
	Name      string `json:"name"`
	Text      string `json:"text"`
	Truncated bool   `json:"truncated"`
}

// Documents lists the stored documents.
func (s *RAGServiceImpl) Documents() ([]docstore.FileInfo, error) {
	return s.Docs.List()
}

// Preview extracts a stored document and returns its first limit characters.
func (s *RAGServiceImpl) Preview(ctx context.Context, name string, limit int) (Preview, error) {
	if limit <= 0 {
		limit = DefaultPreviewChars
	}
	path, err := s.Docs.Path(name)
	if err != nil {
		return Preview{}, err
	}
	text, err := s.Extractor.Extract(ctx, path)
	if err != nil {
		return Preview{}, err
	}
	text = strings.TrimSpace(text)
	p := Preview{Name: filepath.Base(path), Text: text}
	if utf8.RuneCountInString(text) > limit {
		p.Text = string([]rune(text)[:limit])
		p.Truncated = true
	}
	return p, nil
}
