package storage

import (
	"context"

	"github.com/poiesic/marginalia/core"
)

// Payload keys written for every indexed chunk.
const (
	PayloadChunkID    = "chunk_id"
	PayloadDocumentID = "document_id"
	PayloadText       = "text"
	PayloadSource     = "source"
	PayloadChunkIndex = "chunk_index"
	PayloadPage       = "page"
)

// Payload is the metadata stored alongside a vector. Values are strings,
// numbers or booleans.
type Payload map[string]any

// Vector is one entry of a vector index.
type Vector struct {
	ID      string
	Values  []float32
	Payload Payload
}

// Match is a query result. Higher Score means more similar.
type Match struct {
	ID      string
	Score   float32
	Payload Payload
}

// VectorIndex stores vectors with payloads and answers nearest-neighbor
// queries. Implementations must be thread-safe and support concurrent access.
type VectorIndex interface {
	// Upsert inserts or replaces vectors by ID.
	// All vectors in one index must have the same dimension.
	Upsert(ctx context.Context, vectors []Vector) error

	// Query returns up to topK matches ordered by descending score.
	// Only vectors whose payload satisfies filter are considered;
	// an empty filter matches everything.
	Query(ctx context.Context, vector []float32, topK int, filter Filter) ([]Match, error)

	// Delete removes every vector whose payload satisfies filter.
	// An empty filter is rejected with ErrEmptyFilter.
	Delete(ctx context.Context, filter Filter) error

	// Close releases resources held by the index.
	Close() error
}

// DocumentRepository is the catalog of ingested documents.
type DocumentRepository interface {
	// SaveDocument inserts or replaces a document's metadata.
	SaveDocument(ctx context.Context, doc *core.DocumentMetadata) error

	// GetDocument retrieves a document by ID.
	// Returns ErrNotFound if the document doesn't exist.
	GetDocument(ctx context.Context, id string) (*core.DocumentMetadata, error)

	// ListDocuments returns every document ordered by creation time.
	ListDocuments(ctx context.Context) ([]*core.DocumentMetadata, error)

	// DeleteDocument removes a document's metadata.
	// Returns ErrNotFound if the document doesn't exist.
	DeleteDocument(ctx context.Context, id string) error

	// Close releases resources held by the repository.
	Close() error
}
