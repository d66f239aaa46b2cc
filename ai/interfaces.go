package ai

import (
	"context"

	"github.com/poiesic/marginalia/core"
)

// Embedder generates vector embeddings from text for semantic similarity search.
// Implementations must be thread-safe for concurrent use.
type Embedder interface {
	// EmbedText generates a vector embedding for a single text string.
	// The returned vector represents the semantic meaning of the text.
	// Returns an error if the embedding generation fails.
	EmbedText(ctx context.Context, text string) ([]float32, error)

	// EmbedTexts generates vector embeddings for multiple text strings in a batch.
	// The returned slice contains embeddings in the same order as the input texts.
	// Returns an error if any embedding generation fails.
	EmbedTexts(ctx context.Context, texts []string) ([][]float32, error)
}

// Completion is the result of a single generation call.
type Completion struct {
	// Text is the generated answer.
	Text string

	// InputTokens is the number of prompt tokens billed by the backend.
	InputTokens int

	// OutputTokens is the number of generated tokens billed by the backend.
	OutputTokens int

	// StopReason is the backend's reason for ending generation, if reported.
	StopReason string
}

// Generator produces a chat completion for a sequence of conversation turns.
// Implementations must be thread-safe for concurrent use.
type Generator interface {
	// Model returns the identifier of the model answering requests.
	Model() string

	// Generate sends the turns to the model and returns its reply.
	// The final turn is the one being answered. maxTokens bounds the reply.
	// Backend errors are returned without translation.
	Generate(ctx context.Context, turns []core.ConversationTurn, maxTokens int) (*Completion, error)
}

// AIProvider aggregates AI services for convenient initialization and lifecycle management.
type AIProvider interface {
	// Embedder returns the text embedding service.
	// The returned Embedder is safe for concurrent use.
	Embedder() Embedder

	// Generator returns the answer generation service.
	// The returned Generator is safe for concurrent use.
	Generator() Generator

	// Close releases resources held by the provider and its services.
	// After Close is called, the provider and its services should not be used.
	Close() error
}
