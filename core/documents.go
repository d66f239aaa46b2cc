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

package core

import (
	"fmt"
	"time"
)

// DocumentType names the format a document was loaded from.
type DocumentType string

const (
	DocumentTypePDF      DocumentType = "pdf"
	DocumentTypeText     DocumentType = "text"
	DocumentTypeMarkdown DocumentType = "markdown"
	DocumentTypeWebPage  DocumentType = "web_page"
)

// DocumentStatus tracks a document through ingestion.
type DocumentStatus string

const (
	DocumentStatusPending    DocumentStatus = "pending"
	DocumentStatusProcessing DocumentStatus = "processing"
	DocumentStatusCompleted  DocumentStatus = "completed"
	DocumentStatusFailed     DocumentStatus = "failed"
)

// ParseDocumentStatus converts a string into a DocumentStatus.
func ParseDocumentStatus(s string) (DocumentStatus, error) {
	switch DocumentStatus(s) {
	case DocumentStatusPending, DocumentStatusProcessing, DocumentStatusCompleted, DocumentStatusFailed:
		return DocumentStatus(s), nil
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidDocumentStatus, s)
}

// DocumentMetadata is the catalog entry for an ingested document.
type DocumentMetadata struct {
	DocumentID  string            `json:"document_id"`
	Title       string            `json:"title"`
	SourceType  DocumentType      `json:"source_type"`
	FilePath    string            `json:"file_path,omitempty"`
	ContentHash string            `json:"content_hash,omitempty"`
	TotalPages  int               `json:"total_pages,omitempty"`
	TotalTokens int               `json:"total_tokens"`
	ChunkCount  int               `json:"chunk_count"`
	Status      DocumentStatus    `json:"status"`
	Error       string            `json:"error,omitempty"`
	CreatedAt   time.Time         `json:"created_at"`
	ProcessedAt *time.Time        `json:"processed_at,omitempty"`
	Metadata    map[string]string `json:"metadata,omitempty"`
}
