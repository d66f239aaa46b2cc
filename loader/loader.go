// Copyright 2025 Poiesic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package loader reads source files into text ready for chunking.
//
// PDF files are read page by page so chunks keep their page numbers.
// Plain text and Markdown files are read as a single body.
package loader

import (
	"bytes"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/ledongthuc/pdf"
	"github.com/poiesic/marginalia/chunking"
	"github.com/poiesic/marginalia/core"
)

// DefaultMaxFileSize is the largest file accepted by default (10 MiB).
const DefaultMaxFileSize int64 = 10 * 1024 * 1024

var extensions = map[string]core.DocumentType{
	".pdf":      core.DocumentTypePDF,
	".txt":      core.DocumentTypeText,
	".md":       core.DocumentTypeMarkdown,
	".markdown": core.DocumentTypeMarkdown,
}

// Document is a loaded source file.
type Document struct {
	Title       string
	Path        string
	Type        core.DocumentType
	Size        int64
	ContentHash string

	// Text is the whole body. For PDFs it is the page texts joined by newlines.
	Text string

	// Pages holds per-page text for paged formats, nil otherwise.
	// Pages without text are omitted.
	Pages []chunking.Page

	// TotalPages counts every page of a paged document, including empty ones.
	TotalPages int
}

// Paged reports whether the document carries page boundaries.
func (d *Document) Paged() bool {
	return d.Type == core.DocumentTypePDF
}

// Loader reads files from disk.
type Loader struct {
	maxFileSize int64
	logger      *slog.Logger
}

// Option configures a Loader.
type Option func(*Loader) error

// WithMaxFileSize sets the size limit in bytes.
// Default is DefaultMaxFileSize.
func WithMaxFileSize(size int64) Option {
	return func(l *Loader) error {
		if size < 1 {
			return fmt.Errorf("%w: max file size must be positive, got %d", core.ErrConfiguration, size)
		}
		l.maxFileSize = size
		return nil
	}
}

// WithLogger sets a custom logger.
// Default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(l *Loader) error {
		if logger == nil {
			logger = slog.Default()
		}
		l.logger = logger
		return nil
	}
}

// New creates a loader.
func New(opts ...Option) (*Loader, error) {
	l := &Loader{
		maxFileSize: DefaultMaxFileSize,
		logger:      slog.Default(),
	}
	for _, opt := range opts {
		if err := opt(l); err != nil {
			return nil, err
		}
	}
	l.logger = l.logger.With("component", "loader")
	return l, nil
}

// TypeOf returns the document type for path's extension.
func TypeOf(path string) (core.DocumentType, error) {
	ext := strings.ToLower(filepath.Ext(path))
	t, ok := extensions[ext]
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrUnsupportedType, ext)
	}
	return t, nil
}

// Supported reports whether path has a loadable extension.
func Supported(path string) bool {
	_, err := TypeOf(path)
	return err == nil
}

// Load reads path and extracts its text.
func (l *Loader) Load(path string) (*Document, error) {
	docType, err := TypeOf(path)
	if err != nil {
		return nil, err
	}

	info, err := os.Stat(path)
	if err != nil {
		return nil, err
	}
	if info.IsDir() {
		return nil, fmt.Errorf("%s: is a directory", path)
	}
	if info.Size() > l.maxFileSize {
		return nil, fmt.Errorf("%w: %s is %d bytes, limit %d", ErrFileTooLarge, path, info.Size(), l.maxFileSize)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	doc := &Document{
		Title:       strings.TrimSuffix(filepath.Base(path), filepath.Ext(path)),
		Path:        path,
		Type:        docType,
		Size:        int64(len(data)),
		ContentHash: core.ContentHash(data),
	}

	if docType == core.DocumentTypePDF {
		if err := l.readPDF(doc, data); err != nil {
			return nil, err
		}
	} else {
		doc.Text = string(data)
	}

	if strings.TrimSpace(doc.Text) == "" {
		return nil, fmt.Errorf("%w: %s", ErrNoText, path)
	}

	l.logger.Debug("document loaded", "path", path, "type", docType, "bytes", doc.Size, "pages", doc.TotalPages)
	return doc, nil
}

func (l *Loader) readPDF(doc *Document, data []byte) error {
	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return fmt.Errorf("read pdf %s: %w", doc.Path, err)
	}

	doc.TotalPages = reader.NumPage()
	texts := make([]string, 0, doc.TotalPages)
	for i := 1; i <= doc.TotalPages; i++ {
		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}
		text, err := page.GetPlainText(nil)
		if err != nil {
			l.logger.Warn("failed to extract page text", "path", doc.Path, "page", i, "err", err)
			continue
		}
		if strings.TrimSpace(text) == "" {
			continue
		}
		doc.Pages = append(doc.Pages, chunking.Page{Number: i, Text: text})
		texts = append(texts, text)
	}
	doc.Text = strings.Join(texts, "\n")
	return nil
}
