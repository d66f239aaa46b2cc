package ingestion

import "errors"

var (
	// ErrRAGPipelineRequired is returned when a RAG pipeline is not provided.
	ErrRAGPipelineRequired = errors.New("RAG pipeline required")

	// ErrDocumentRepositoryRequired is returned when a document repository is not provided.
	ErrDocumentRepositoryRequired = errors.New("document repository required")

	// ErrCounterRequired is returned when a token counter is not provided.
	ErrCounterRequired = errors.New("token counter required")

	// ErrNoChunks is returned when a document produces no chunks.
	ErrNoChunks = errors.New("document produced no chunks")
)
