// Package extract turns documents into plain text for content search.
// Each format handler performs its own fallback internally (encoding
// attempts for plain text, shared-strings vs worksheet XML for spreadsheets)
// and reports a single (text, error) outcome per file.
package extract

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	internal "github.com/filehound/filehound/fhound"
)

// ErrUnsupported marks a file type no handler understands.
var ErrUnsupported = errors.New("unsupported file type")

var errTooLarge = errors.New("file too large to extract")

// Service implements the extractor contract consumed by the content search
// engine. An optional on-disk cache avoids re-extracting unchanged files.
type Service struct {
	maxTextBytes int64
	cache        *Cache
}

// ServiceOption configures a Service.
type ServiceOption func(*Service)

// WithMaxTextBytes caps how much extracted text a single file may produce.
func WithMaxTextBytes(n int64) ServiceOption {
	return func(s *Service) {
		if n > 0 {
			s.maxTextBytes = n
		}
	}
}

// WithTextCache attaches an extracted-text cache.
func WithTextCache(c *Cache) ServiceOption {
	return func(s *Service) { s.cache = c }
}

// NewService creates an extractor with the default text cap.
func NewService(opts ...ServiceOption) *Service {
	s := &Service{maxTextBytes: internal.DefaultMaxTextBytes}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Extract returns the plain-text content of the file at path.
func (s *Service) Extract(ctx context.Context, path string) (string, error) {
	if s.cache != nil {
		return s.cache.GetOrExtract(ctx, path, s.extract)
	}
	return s.extract(ctx, path)
}

func (s *Service) extract(ctx context.Context, path string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	ext := strings.ToLower(filepath.Ext(path))
	switch ext {
	case ".txt", ".md", ".log", ".json", ".xml", ".ini", ".yaml", ".yml":
		return textExtract(path, s.maxTextBytes)
	case ".csv":
		return csvExtract(path, s.maxTextBytes)
	case ".xlsx", ".docx", ".pptx":
		return ooxmlExtract(ctx, path, s.maxTextBytes)
	case ".pdf":
		return pdfExtract(ctx, path, s.maxTextBytes)
	default:
		return "", fmt.Errorf("%w: %s", ErrUnsupported, ext)
	}
}

// Supported reports whether a handler exists for the file's extension.
func Supported(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".txt", ".md", ".log", ".json", ".xml", ".ini", ".yaml", ".yml",
		".csv", ".xlsx", ".docx", ".pptx", ".pdf":
		return true
	default:
		return false
	}
}

func statRegular(path string) (os.FileInfo, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, err
	}
	if !info.Mode().IsRegular() {
		return nil, errors.New("not a regular file")
	}
	return info, nil
}
