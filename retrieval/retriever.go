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

package retrieval

import (
	"context"
	"fmt"
	"log/slog"
	"maps"

	"github.com/poiesic/marginalia/ai"
	"github.com/poiesic/marginalia/core"
	"github.com/poiesic/marginalia/storage"
)

// DefaultSimilarityThreshold is the minimum score a match needs when the
// caller does not override it per request.
const DefaultSimilarityThreshold float32 = 0.7

// Retriever performs similarity search over a vector index.
type Retriever struct {
	index     storage.VectorIndex
	embedder  ai.Embedder
	threshold float32
	logger    *slog.Logger
}

// Option configures a Retriever.
type Option func(*Retriever) error

// WithSimilarityThreshold sets the default minimum score.
// Default is DefaultSimilarityThreshold.
func WithSimilarityThreshold(threshold float32) Option {
	return func(r *Retriever) error {
		if threshold < -1 || threshold > 1 {
			return fmt.Errorf("%w: similarity threshold %v outside [-1, 1]", core.ErrConfiguration, threshold)
		}
		r.threshold = threshold
		return nil
	}
}

// WithLogger sets a custom logger.
// Default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(r *Retriever) error {
		if logger == nil {
			logger = slog.Default()
		}
		r.logger = logger
		return nil
	}
}

// NewRetriever creates a retriever over index, embedding queries with embedder.
func NewRetriever(index storage.VectorIndex, embedder ai.Embedder, opts ...Option) (*Retriever, error) {
	if index == nil {
		return nil, ErrIndexRequired
	}
	if embedder == nil {
		return nil, ErrEmbedderRequired
	}

	r := &Retriever{
		index:     index,
		embedder:  embedder,
		threshold: DefaultSimilarityThreshold,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		if err := opt(r); err != nil {
			return nil, err
		}
	}
	r.logger = r.logger.With("component", "retriever")
	return r, nil
}

// Threshold returns the default minimum score.
func (r *Retriever) Threshold() float32 {
	return r.threshold
}

type retrieveOptions struct {
	filter   storage.Filter
	minScore *float32
}

// RetrieveOption adjusts a single Retrieve call.
type RetrieveOption func(*retrieveOptions)

// WithFilter restricts results to chunks whose payload matches every
// key/value pair of filter exactly.
func WithFilter(filter storage.Filter) RetrieveOption {
	return func(o *retrieveOptions) {
		o.filter = filter
	}
}

// WithMinScore overrides the retriever's similarity threshold for one call.
func WithMinScore(minScore float32) RetrieveOption {
	return func(o *retrieveOptions) {
		o.minScore = &minScore
	}
}

// Retrieve returns up to topK documents similar to query, best first.
// An empty result is not an error.
func (r *Retriever) Retrieve(ctx context.Context, query string, topK int, opts ...RetrieveOption) ([]core.RetrievedDocument, error) {
	if topK < 1 {
		return nil, ErrInvalidTopK
	}

	var o retrieveOptions
	for _, opt := range opts {
		opt(&o)
	}
	minScore := r.threshold
	if o.minScore != nil {
		minScore = *o.minScore
	}

	vector, err := r.embedder.EmbedText(ctx, query)
	if err != nil {
		r.logger.Error("error generating embedding for query", "err", err)
		return nil, fmt.Errorf("embed query: %w", err)
	}

	matches, err := r.index.Query(ctx, vector, topK, o.filter)
	if err != nil {
		r.logger.Error("error querying vector index", "topK", topK, "err", err)
		return nil, fmt.Errorf("query index: %w", err)
	}

	docs := make([]core.RetrievedDocument, 0, len(matches))
	for _, m := range matches {
		if m.Score < minScore {
			continue
		}
		docs = append(docs, FromMatch(m))
	}

	r.logger.Debug("retrieved documents",
		"candidates", len(matches),
		"kept", len(docs),
		"minScore", minScore,
		"filtered", len(o.filter) > 0)
	return docs, nil
}

// FromMatch rebuilds a retrieved document from an index match's payload.
func FromMatch(m storage.Match) core.RetrievedDocument {
	doc := core.RetrievedDocument{
		ChunkID:    m.Payload.String(storage.PayloadChunkID),
		DocumentID: m.Payload.String(storage.PayloadDocumentID),
		Text:       m.Payload.String(storage.PayloadText),
		Source:     m.Payload.String(storage.PayloadSource),
		Score:      m.Score,
		Metadata:   maps.Clone(map[string]any(m.Payload)),
	}
	if doc.ChunkID == "" {
		doc.ChunkID = m.ID
	}
	if doc.Source == "" {
		doc.Source = core.UnknownSource
	}
	if page, ok := m.Payload.Int(storage.PayloadPage); ok {
		doc.Page = core.IntPtr(page)
	}
	if doc.Metadata == nil {
		doc.Metadata = map[string]any{}
	}
	return doc
}
