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

// Package marginalia answers questions over a private document corpus.
//
// An Engine wires storage, AI services and the RAG pipeline together from a
// config.Config:
//
//	cfg, err := config.Load("marginalia.yaml")
//	engine, err := marginalia.Open(cfg)
//	defer engine.Close()
//
//	_, err = engine.IngestFiles(ctx, []string{"handbook.pdf"}, nil)
//	answer, err := engine.Query(ctx, rag.QueryRequest{Query: "How much vacation do I get?"})
package marginalia

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/poiesic/marginalia/ai"
	"github.com/poiesic/marginalia/ai/anthropic"
	"github.com/poiesic/marginalia/ai/openai"
	"github.com/poiesic/marginalia/config"
	"github.com/poiesic/marginalia/core"
	"github.com/poiesic/marginalia/ingestion"
	"github.com/poiesic/marginalia/loader"
	"github.com/poiesic/marginalia/rag"
	"github.com/poiesic/marginalia/storage"
	"github.com/poiesic/marginalia/storage/badger"
	"github.com/poiesic/marginalia/storage/qdrant"
	"github.com/poiesic/marginalia/tokens"
)

// Engine owns the stores, AI provider and pipelines of one knowledge base.
type Engine struct {
	cfg       *config.Config
	backend   *badger.Backend
	index     storage.VectorIndex
	documents storage.DocumentRepository
	provider  ai.AIProvider
	counter   tokens.Counter
	pipeline  *rag.Pipeline
	ingest    *ingestion.Pipeline
	logger    *slog.Logger
}

// Option configures an Engine.
type Option func(*engineOptions)

type engineOptions struct {
	provider ai.AIProvider
	counter  tokens.Counter
	logger   *slog.Logger
}

// WithProvider uses provider instead of building one from the AI config.
func WithProvider(provider ai.AIProvider) Option {
	return func(o *engineOptions) {
		o.provider = provider
	}
}

// WithTokenCounter uses counter instead of the tokenizer named in the config.
func WithTokenCounter(counter tokens.Counter) Option {
	return func(o *engineOptions) {
		o.counter = counter
	}
}

// WithLogger sets a custom logger.
// Default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(o *engineOptions) {
		o.logger = logger
	}
}

// Open validates cfg and opens everything it describes. A nil cfg means
// config.Default().
func Open(cfg *config.Config, opts ...Option) (*Engine, error) {
	if cfg == nil {
		cfg = config.Default()
	}
	options := &engineOptions{}
	for _, opt := range opts {
		opt(options)
	}
	logger := options.logger
	if logger == nil {
		logger = slog.Default()
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	provider := options.provider
	if provider == nil {
		var err error
		provider, err = NewProvider(cfg.AIConfig())
		if err != nil {
			return nil, err
		}
	}

	e := &Engine{
		cfg:      cfg,
		provider: provider,
		counter:  options.counter,
		logger:   logger.With("component", "engine"),
	}
	if e.counter == nil {
		e.counter = tokens.NewCounter(cfg.AI.TokenizerModel, logger)
	}

	if err := e.openStores(logger); err != nil {
		e.Close()
		return nil, err
	}

	var err error
	e.pipeline, err = rag.NewPipeline(e.index, provider,
		rag.WithSettings(cfg.Settings()),
		rag.WithLogger(logger))
	if err != nil {
		e.Close()
		return nil, err
	}

	e.ingest, err = e.NewIngestionPipeline(ingestion.WithLogger(logger))
	if err != nil {
		e.Close()
		return nil, err
	}

	e.logger.Info("engine opened",
		"backend", cfg.Storage.Backend,
		"path", cfg.Storage.Path,
		"inMemory", cfg.Storage.InMemory)
	return e, nil
}

func (e *Engine) openStores(logger *slog.Logger) error {
	backend, err := badger.OpenBackend(e.cfg.Storage.Path, e.cfg.Storage.InMemory)
	if err != nil {
		return err
	}
	e.backend = backend

	e.documents, err = badger.NewDocumentRepository(backend)
	if err != nil {
		return err
	}

	if strings.EqualFold(e.cfg.Storage.Backend, config.BackendQdrant) {
		q := e.cfg.Storage.Qdrant
		e.index, err = qdrant.New(qdrant.Config{
			URL:        q.URL,
			APIKey:     e.cfg.QdrantAPIKey(),
			Collection: q.Collection,
			Timeout:    time.Duration(q.TimeoutSecs) * time.Second,
		}, qdrant.WithLogger(logger))
		return err
	}

	e.index, err = badger.NewVectorIndex(backend)
	return err
}

// NewProvider builds the AI provider described by cfg. Embeddings always use
// an OpenAI-compatible service; generation uses Anthropic or the same kind of
// service as selected by cfg.Generator.
func NewProvider(cfg *ai.Config) (ai.AIProvider, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.Generator == ai.GeneratorOpenAI {
		return openai.NewProvider(cfg)
	}

	embedder, err := openai.NewEmbedder(cfg)
	if err != nil {
		return nil, err
	}
	generator, err := anthropic.NewGenerator(cfg)
	if err != nil {
		return nil, err
	}
	return ai.NewProvider(embedder, generator)
}

// NewIngestionPipeline creates an ingestion pipeline using the configured
// pool size, file size limit and ID strategy. opts are applied after those.
// The caller must Release it.
func (e *Engine) NewIngestionPipeline(opts ...ingestion.Option) (*ingestion.Pipeline, error) {
	strategy, err := e.cfg.IDStrategy()
	if err != nil {
		return nil, err
	}
	l, err := loader.New(
		loader.WithMaxFileSize(e.cfg.Ingestion.MaxFileSize),
		loader.WithLogger(e.logger))
	if err != nil {
		return nil, err
	}

	base := []ingestion.Option{
		ingestion.WithPoolSize(e.cfg.Ingestion.PoolSize),
		ingestion.WithIDStrategy(strategy),
		ingestion.WithLoader(l),
	}
	return ingestion.NewPipeline(e.pipeline, e.documents, e.counter, append(base, opts...)...)
}

// Query answers a question from the indexed documents.
func (e *Engine) Query(ctx context.Context, req rag.QueryRequest) (*rag.Answer, error) {
	return e.pipeline.Query(ctx, req)
}

// IngestFile indexes a single file.
func (e *Engine) IngestFile(ctx context.Context, path string, metadata map[string]string) (*core.DocumentMetadata, error) {
	return e.ingest.IngestFile(ctx, path, metadata)
}

// IngestFiles indexes files concurrently.
func (e *Engine) IngestFiles(ctx context.Context, paths []string, metadata map[string]string) ([]ingestion.Result, error) {
	return e.ingest.IngestFiles(ctx, paths, metadata)
}

// Documents lists the catalog, oldest first.
func (e *Engine) Documents(ctx context.Context) ([]*core.DocumentMetadata, error) {
	return e.documents.ListDocuments(ctx)
}

// Document returns one catalog entry.
func (e *Engine) Document(ctx context.Context, id string) (*core.DocumentMetadata, error) {
	return e.documents.GetDocument(ctx, id)
}

// DeleteDocument removes a document and its chunks.
func (e *Engine) DeleteDocument(ctx context.Context, id string) error {
	return e.ingest.DeleteDocument(ctx, id)
}

// Pipeline returns the RAG pipeline.
func (e *Engine) Pipeline() *rag.Pipeline {
	return e.pipeline
}

// Close releases every resource the engine opened.
func (e *Engine) Close() error {
	if e.ingest != nil {
		e.ingest.Release()
	}

	var errs []error
	if e.provider != nil {
		if err := e.provider.Close(); err != nil {
			e.logger.Error("error closing AI provider", "err", err)
			errs = append(errs, err)
		}
	}
	if e.index != nil {
		if err := e.index.Close(); err != nil {
			e.logger.Error("error closing vector index", "err", err)
			errs = append(errs, err)
		}
	}
	if e.documents != nil {
		if err := e.documents.Close(); err != nil {
			e.logger.Error("error closing document repository", "err", err)
			errs = append(errs, err)
		}
	}
	if e.backend != nil {
		if err := e.backend.Close(); err != nil {
			e.logger.Error("error closing backend storage", "err", err)
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
