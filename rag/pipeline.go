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

package rag

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/poiesic/marginalia/ai"
	"github.com/poiesic/marginalia/core"
	"github.com/poiesic/marginalia/embedding"
	"github.com/poiesic/marginalia/retrieval"
	"github.com/poiesic/marginalia/storage"
	"github.com/poiesic/marginalia/synthesis"
)

// FallbackAnswer is returned when no document clears the similarity threshold.
const FallbackAnswer = "I don't have enough information in my knowledge base to answer this question. " +
	"Please upload relevant documents or try a different query."

// QueryRequest is a single question with optional conversation context.
type QueryRequest struct {
	Query string

	// History is sent to the generator ahead of the question, in order.
	History []core.ConversationTurn

	// Filters restricts retrieval to chunks whose payload matches exactly.
	Filters storage.Filter

	// TopK overrides Settings.TopK when positive.
	TopK int

	// MinScore overrides Settings.SimilarityThreshold when set.
	MinScore *float32
}

// Answer is the pipeline's reply to a QueryRequest.
type Answer struct {
	Answer            string
	Citations         []core.Citation
	ModelUsed         string
	TokensUsed        int
	ProcessingTimeMs  float64
	RetrievedDocCount int

	// Metadata is nil when the fallback answer was returned.
	Metadata *synthesis.Metadata
}

// UpsertStats reports the outcome of UpsertChunks.
type UpsertStats struct {
	TotalChunks int
	Upserted    int
}

// Pipeline orchestrates retrieval, synthesis and indexing.
type Pipeline struct {
	index       storage.VectorIndex
	retriever   *retrieval.Retriever
	synthesizer *synthesis.Synthesizer
	batcher     *embedding.Batcher
	settings    Settings
	logger      *slog.Logger
}

// Option configures a Pipeline.
type Option func(*Pipeline) error

// WithSettings replaces the default settings.
func WithSettings(settings Settings) Option {
	return func(p *Pipeline) error {
		if err := settings.Validate(); err != nil {
			return err
		}
		p.settings = settings
		return nil
	}
}

// WithLogger sets a custom logger.
// Default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(p *Pipeline) error {
		if logger == nil {
			logger = slog.Default()
		}
		p.logger = logger
		return nil
	}
}

// NewPipeline creates a pipeline over index using the provider's embedder
// and generator.
func NewPipeline(index storage.VectorIndex, provider ai.AIProvider, opts ...Option) (*Pipeline, error) {
	if index == nil {
		return nil, ErrIndexRequired
	}
	if provider == nil {
		return nil, ErrAIProviderRequired
	}

	p := &Pipeline{
		index:    index,
		settings: DefaultSettings(),
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		if err := opt(p); err != nil {
			return nil, err
		}
	}

	var err error
	p.retriever, err = retrieval.NewRetriever(index, provider.Embedder(),
		retrieval.WithSimilarityThreshold(p.settings.SimilarityThreshold),
		retrieval.WithLogger(p.logger))
	if err != nil {
		return nil, err
	}
	p.synthesizer, err = synthesis.NewSynthesizer(provider.Generator(),
		synthesis.WithMaxTokens(p.settings.MaxTokens),
		synthesis.WithLogger(p.logger))
	if err != nil {
		return nil, err
	}
	p.batcher, err = embedding.NewBatcher(provider.Embedder(),
		embedding.WithBatchSize(p.settings.EmbeddingBatchSize),
		embedding.WithPacing(p.settings.EmbeddingPacing),
		embedding.WithLogger(p.logger))
	if err != nil {
		return nil, err
	}

	p.logger = p.logger.With("component", "rag-pipeline")
	return p, nil
}

// Settings returns the pipeline's settings.
func (p *Pipeline) Settings() Settings {
	return p.settings
}

// Query answers a question from the indexed documents.
// Retrieving nothing is not an error: the answer is FallbackAnswer with no
// citations and zero usage.
func (p *Pipeline) Query(ctx context.Context, req QueryRequest) (*Answer, error) {
	start := time.Now()

	if strings.TrimSpace(req.Query) == "" {
		return nil, ErrEmptyQuery
	}
	if err := core.ValidateHistory(req.History); err != nil {
		return nil, err
	}

	topK := req.TopK
	if topK <= 0 {
		topK = p.settings.TopK
	}
	opts := []retrieval.RetrieveOption{retrieval.WithFilter(req.Filters)}
	if req.MinScore != nil {
		opts = append(opts, retrieval.WithMinScore(*req.MinScore))
	}

	docs, err := p.retriever.Retrieve(ctx, req.Query, topK, opts...)
	if err != nil {
		return nil, err
	}

	if len(docs) == 0 {
		p.logger.Info("no documents above threshold, returning fallback answer", "topK", topK)
		return &Answer{
			Answer:           FallbackAnswer,
			Citations:        []core.Citation{},
			ModelUsed:        p.synthesizer.Model(),
			ProcessingTimeMs: elapsedMs(start),
		}, nil
	}

	text, meta, err := p.synthesizer.Synthesize(ctx, req.Query, docs, req.History)
	if err != nil {
		return nil, err
	}

	citations := make([]core.Citation, len(docs))
	for i, doc := range docs {
		citations[i] = core.NewCitation(doc)
	}

	answer := &Answer{
		Answer:            text,
		Citations:         citations,
		ModelUsed:         meta.Model,
		TokensUsed:        meta.TotalTokens,
		ProcessingTimeMs:  elapsedMs(start),
		RetrievedDocCount: len(docs),
		Metadata:          meta,
	}
	p.logger.Info("query answered",
		"retrieved", answer.RetrievedDocCount,
		"tokens", answer.TokensUsed,
		"elapsedMs", answer.ProcessingTimeMs)
	return answer, nil
}

// UpsertChunks embeds chunks and writes them to the index in slices of
// batchSize. A batchSize below one uses Settings.UpsertBatchSize.
// Chunk IDs are deterministic, so repeating an upsert replaces entries.
func (p *Pipeline) UpsertChunks(ctx context.Context, chunks []core.Chunk, batchSize int) (*UpsertStats, error) {
	stats := &UpsertStats{TotalChunks: len(chunks)}
	if len(chunks) == 0 {
		return stats, nil
	}
	if batchSize < 1 {
		batchSize = p.settings.UpsertBatchSize
	}

	embedded, err := p.batcher.EmbedChunks(ctx, chunks)
	if err != nil {
		return nil, err
	}

	for start := 0; start < len(embedded); start += batchSize {
		end := min(start+batchSize, len(embedded))
		vectors := make([]storage.Vector, 0, end-start)
		for _, chunk := range embedded[start:end] {
			vectors = append(vectors, ToVector(chunk))
		}
		if err := p.index.Upsert(ctx, vectors); err != nil {
			p.logger.Error("error upserting vectors", "offset", start, "count", len(vectors), "err", err)
			return nil, fmt.Errorf("upsert chunks %d-%d: %w", start, end-1, err)
		}
		stats.Upserted += len(vectors)
	}

	p.logger.Debug("chunks upserted", "total", stats.TotalChunks, "batchSize", batchSize)
	return stats, nil
}

// DeleteDocument removes every chunk of documentID from the index.
// Failures are logged and reported as false.
func (p *Pipeline) DeleteDocument(ctx context.Context, documentID string) bool {
	if err := p.index.Delete(ctx, storage.FilterFor(documentID)); err != nil {
		p.logger.Error("error deleting document vectors", "documentID", documentID, "err", err)
		return false
	}
	return true
}

// ToVector builds the index entry for an embedded chunk. The payload holds
// everything needed to rebuild a citation without another lookup.
func ToVector(chunk core.EmbeddedChunk) storage.Vector {
	payload := make(storage.Payload, len(chunk.Metadata)+6)
	for k, v := range chunk.Metadata {
		payload[k] = v
	}
	payload[storage.PayloadChunkID] = chunk.ChunkID
	payload[storage.PayloadDocumentID] = chunk.DocumentID
	payload[storage.PayloadText] = chunk.Text
	payload[storage.PayloadChunkIndex] = chunk.ChunkIndex
	if page, ok := chunk.Page(); ok {
		payload[storage.PayloadPage] = page
	} else {
		delete(payload, storage.PayloadPage)
	}
	if _, ok := payload[storage.PayloadSource]; !ok {
		payload[storage.PayloadSource] = ""
	}

	return storage.Vector{
		ID:      chunk.ChunkID,
		Values:  chunk.Embedding,
		Payload: payload,
	}
}

func elapsedMs(start time.Time) float64 {
	return float64(time.Since(start).Microseconds()) / 1000
}
