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

// Package embedding turns texts and chunks into vectors, calling the
// embedding service in fixed-size batches with a pause between calls.
package embedding

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/poiesic/marginalia/ai"
	"github.com/poiesic/marginalia/core"
)

const (
	DefaultBatchSize = 100
	DefaultPacing    = 100 * time.Millisecond
)

var (
	// ErrEmbedderRequired is returned when an embedder is not provided.
	ErrEmbedderRequired = errors.New("embedder required")

	// ErrInvalidBatchSize is returned for a batch size below one.
	ErrInvalidBatchSize = errors.New("batch size must be positive")

	// ErrVectorCountMismatch is returned when the embedder answers a batch
	// with a different number of vectors than texts.
	ErrVectorCountMismatch = errors.New("embedder returned wrong number of vectors")
)

// Batcher embeds texts in contiguous batches. It holds no mutable state and
// is safe for concurrent use.
type Batcher struct {
	embedder  ai.Embedder
	batchSize int
	pacing    time.Duration
	wait      func(ctx context.Context, d time.Duration) error
	logger    *slog.Logger
}

// Option configures a Batcher.
type Option func(*Batcher) error

// WithBatchSize sets the default batch size used by EmbedChunks.
// Default is 100.
func WithBatchSize(size int) Option {
	return func(b *Batcher) error {
		if size < 1 {
			return fmt.Errorf("%w: %w", core.ErrConfiguration, ErrInvalidBatchSize)
		}
		b.batchSize = size
		return nil
	}
}

// WithPacing sets the pause between consecutive batch calls.
// Default is 100ms. Zero disables pacing.
func WithPacing(d time.Duration) Option {
	return func(b *Batcher) error {
		if d < 0 {
			d = 0
		}
		b.pacing = d
		return nil
	}
}

// WithLogger sets a custom logger.
// Default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(b *Batcher) error {
		if logger == nil {
			logger = slog.Default()
		}
		b.logger = logger
		return nil
	}
}

// withWait replaces the pacing sleep. Tests use it to observe pauses.
func withWait(fn func(ctx context.Context, d time.Duration) error) Option {
	return func(b *Batcher) error {
		b.wait = fn
		return nil
	}
}

// NewBatcher creates a batcher over embedder.
func NewBatcher(embedder ai.Embedder, opts ...Option) (*Batcher, error) {
	if embedder == nil {
		return nil, ErrEmbedderRequired
	}

	b := &Batcher{
		embedder:  embedder,
		batchSize: DefaultBatchSize,
		pacing:    DefaultPacing,
		wait:      sleep,
		logger:    slog.Default(),
	}

	for _, opt := range opts {
		if err := opt(b); err != nil {
			return nil, err
		}
	}
	b.logger = b.logger.With("component", "embedding-batcher")

	return b, nil
}

// BatchSize returns the default batch size.
func (b *Batcher) BatchSize() int {
	return b.batchSize
}

// EmbedText embeds a single text, typically a query.
func (b *Batcher) EmbedText(ctx context.Context, text string) ([]float32, error) {
	return b.embedder.EmbedText(ctx, text)
}

// EmbedBatch embeds texts with one embedder call per contiguous slice of at
// most batchSize texts, pausing between calls but not after the last one.
// Vectors are returned in input order. The first failing call aborts the
// whole operation; nothing is retried.
func (b *Batcher) EmbedBatch(ctx context.Context, texts []string, batchSize int) ([][]float32, error) {
	if batchSize < 1 {
		return nil, ErrInvalidBatchSize
	}
	if len(texts) == 0 {
		return [][]float32{}, nil
	}

	vectors := make([][]float32, 0, len(texts))
	batches := (len(texts) + batchSize - 1) / batchSize

	for i := 0; i < batches; i++ {
		start := i * batchSize
		end := min(start+batchSize, len(texts))

		b.logger.Debug("embedding batch", "batch", i+1, "of", batches, "size", end-start)
		batch, err := b.embedder.EmbedTexts(ctx, texts[start:end])
		if err != nil {
			b.logger.Error("embedding batch failed", "batch", i+1, "err", err)
			return nil, fmt.Errorf("embed batch %d/%d: %w", i+1, batches, err)
		}
		if len(batch) != end-start {
			return nil, fmt.Errorf("batch %d/%d: %w: got %d, want %d",
				i+1, batches, ErrVectorCountMismatch, len(batch), end-start)
		}
		vectors = append(vectors, batch...)

		if i < batches-1 && b.pacing > 0 {
			if err := b.wait(ctx, b.pacing); err != nil {
				return nil, err
			}
		}
	}

	return vectors, nil
}

// EmbedChunks embeds the text of every chunk using the default batch size
// and pairs each chunk with its vector. All other chunk fields are kept.
func (b *Batcher) EmbedChunks(ctx context.Context, chunks []core.Chunk) ([]core.EmbeddedChunk, error) {
	texts := make([]string, len(chunks))
	for i := range chunks {
		texts[i] = chunks[i].Text
	}

	vectors, err := b.EmbedBatch(ctx, texts, b.batchSize)
	if err != nil {
		return nil, err
	}

	embedded := make([]core.EmbeddedChunk, len(chunks))
	for i := range chunks {
		embedded[i] = core.EmbeddedChunk{Chunk: chunks[i], Embedding: vectors[i]}
	}
	return embedded, nil
}

// sleep waits for d or until ctx is done.
func sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	select {
	case <-ctx.Done():
		timer.Stop()
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
