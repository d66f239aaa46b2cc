package retrieval

import "errors"

var (
	// ErrIndexRequired is returned when a vector index is not provided.
	ErrIndexRequired = errors.New("vector index required")

	// ErrEmbedderRequired is returned when an embedder is not provided.
	ErrEmbedderRequired = errors.New("embedder required")

	// ErrInvalidTopK is returned when fewer than one result is requested.
	ErrInvalidTopK = errors.New("top k must be positive")
)
