package ingestion

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"maps"
	"path/filepath"
	"sync"
	"time"

	"github.com/panjf2000/ants/v2"
	"github.com/poiesic/marginalia/chunking"
	"github.com/poiesic/marginalia/core"
	"github.com/poiesic/marginalia/loader"
	"github.com/poiesic/marginalia/rag"
	"github.com/poiesic/marginalia/storage"
	"github.com/poiesic/marginalia/tokens"
)

// DefaultPoolSize is the number of documents ingested concurrently.
const DefaultPoolSize = 2

// Pipeline loads files, indexes their chunks through a RAG pipeline and
// tracks each document in the catalog.
type Pipeline struct {
	rag        *rag.Pipeline
	documents  storage.DocumentRepository
	loader     *loader.Loader
	chunker    *chunking.Chunker
	pool       *ants.Pool
	idStrategy core.IDStrategy
	progress   io.Writer
	now        func() time.Time
	logger     *slog.Logger
}

// Option configures a Pipeline.
type Option func(*Pipeline) error

// WithPoolSize sets the worker pool size for IngestFiles.
// Default is DefaultPoolSize.
func WithPoolSize(size int) Option {
	return func(p *Pipeline) error {
		if size < 1 {
			size = 1
		}
		if p.pool != nil {
			p.pool.Release()
		}
		pool, err := ants.NewPool(size)
		if err != nil {
			return err
		}
		p.pool = pool
		return nil
	}
}

// WithIDStrategy selects how document IDs are derived.
// Default is core.IDStrategyContentHash.
func WithIDStrategy(strategy core.IDStrategy) Option {
	return func(p *Pipeline) error {
		p.idStrategy = strategy
		return nil
	}
}

// WithLoader replaces the default file loader.
func WithLoader(l *loader.Loader) Option {
	return func(p *Pipeline) error {
		if l != nil {
			p.loader = l
		}
		return nil
	}
}

// WithProgress reports IngestFiles progress to w.
func WithProgress(w io.Writer) Option {
	return func(p *Pipeline) error {
		p.progress = w
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

// NewPipeline creates an ingestion pipeline. Chunk size and overlap come
// from the RAG pipeline's settings; counter measures chunk tokens.
func NewPipeline(
	ragPipeline *rag.Pipeline,
	documents storage.DocumentRepository,
	counter tokens.Counter,
	opts ...Option,
) (*Pipeline, error) {
	if ragPipeline == nil {
		return nil, ErrRAGPipelineRequired
	}
	if documents == nil {
		return nil, ErrDocumentRepositoryRequired
	}
	if counter == nil {
		return nil, ErrCounterRequired
	}

	pool, err := ants.NewPool(DefaultPoolSize)
	if err != nil {
		return nil, err
	}

	p := &Pipeline{
		rag:        ragPipeline,
		documents:  documents,
		pool:       pool,
		idStrategy: core.IDStrategyContentHash,
		now:        func() time.Time { return time.Now().UTC() },
		logger:     slog.Default(),
	}

	for _, opt := range opts {
		if optErr := opt(p); optErr != nil {
			p.Release()
			return nil, optErr
		}
	}

	if p.loader == nil {
		p.loader, err = loader.New(loader.WithLogger(p.logger))
		if err != nil {
			p.Release()
			return nil, err
		}
	}

	settings := ragPipeline.Settings()
	p.chunker, err = chunking.NewChunker(counter,
		chunking.WithChunkSize(settings.ChunkSize),
		chunking.WithChunkOverlap(settings.ChunkOverlap),
		chunking.WithLogger(p.logger))
	if err != nil {
		p.Release()
		return nil, err
	}

	p.logger = p.logger.With("component", "ingestion")
	return p, nil
}

// IngestFile loads path, indexes its chunks and records the document in the
// catalog. Metadata is attached to the document and every chunk.
//
// Load failures return before anything is written. Later failures leave the
// document in the catalog with status failed and the error message.
func (p *Pipeline) IngestFile(ctx context.Context, path string, metadata map[string]string) (*core.DocumentMetadata, error) {
	src, err := p.loader.Load(path)
	if err != nil {
		p.logger.Error("error loading document", "path", path, "err", err)
		return nil, err
	}

	id, err := core.NewDocumentID(p.idStrategy, src.Title, src.ContentHash)
	if err != nil {
		return nil, err
	}

	doc := &core.DocumentMetadata{
		DocumentID:  id,
		Title:       src.Title,
		SourceType:  src.Type,
		FilePath:    path,
		ContentHash: src.ContentHash,
		TotalPages:  src.TotalPages,
		Status:      core.DocumentStatusProcessing,
		CreatedAt:   p.now(),
		Metadata:    maps.Clone(metadata),
	}

	// Re-ingesting identical content reuses the ID; drop the old chunks
	// first so a shorter chunking leaves no stale tail behind.
	if previous, err := p.documents.GetDocument(ctx, id); err == nil {
		doc.CreatedAt = previous.CreatedAt
		if !p.rag.DeleteDocument(ctx, id) {
			p.logger.Warn("stale chunks may remain", "documentID", id)
		}
	} else if !errors.Is(err, storage.ErrNotFound) {
		return nil, err
	}

	if err := p.documents.SaveDocument(ctx, doc); err != nil {
		return nil, err
	}

	chunks, err := p.chunk(id, src, metadata)
	if err == nil && len(chunks) == 0 {
		err = ErrNoChunks
	}
	if err == nil {
		_, err = p.rag.UpsertChunks(ctx, chunks, p.rag.Settings().UpsertBatchSize)
	}
	if err != nil {
		return nil, p.markFailed(ctx, doc, err)
	}

	processed := p.now()
	doc.Status = core.DocumentStatusCompleted
	doc.ChunkCount = len(chunks)
	doc.TotalTokens = 0
	for _, c := range chunks {
		doc.TotalTokens += c.TokenCount
	}
	doc.ProcessedAt = &processed
	if err := p.documents.SaveDocument(ctx, doc); err != nil {
		return nil, err
	}

	p.logger.Info("document ingested",
		"documentID", id,
		"path", path,
		"chunks", doc.ChunkCount,
		"tokens", doc.TotalTokens)
	return doc, nil
}

func (p *Pipeline) chunk(id string, src *loader.Document, metadata map[string]string) ([]core.Chunk, error) {
	source := filepath.Base(src.Path)

	if !src.Paged() {
		meta := maps.Clone(metadata)
		if meta == nil {
			meta = make(map[string]string, 1)
		}
		meta[chunking.MetaSource] = source
		return p.chunker.ChunkText(id, src.Text, meta)
	}

	chunks, err := p.chunker.ChunkPages(id, source, src.Pages)
	if err != nil {
		return nil, err
	}
	for i := range chunks {
		for k, v := range metadata {
			if _, ok := chunks[i].Metadata[k]; !ok {
				chunks[i].Metadata[k] = v
			}
		}
	}
	return chunks, nil
}

// markFailed records cause on the document and returns it wrapped.
func (p *Pipeline) markFailed(ctx context.Context, doc *core.DocumentMetadata, cause error) error {
	p.logger.Error("error ingesting document", "documentID", doc.DocumentID, "path", doc.FilePath, "err", cause)

	doc.Status = core.DocumentStatusFailed
	doc.Error = cause.Error()
	if err := p.documents.SaveDocument(context.WithoutCancel(ctx), doc); err != nil {
		return errors.Join(cause, fmt.Errorf("record failure: %w", err))
	}
	return cause
}

// Result is the outcome of ingesting one file.
type Result struct {
	Path     string
	Document *core.DocumentMetadata
	Err      error
}

// IngestFiles ingests paths concurrently on the worker pool. Results are
// returned in input order; the error joins every per-file failure.
func (p *Pipeline) IngestFiles(ctx context.Context, paths []string, metadata map[string]string) ([]Result, error) {
	results := make([]Result, len(paths))

	var tracker *ProgressTracker
	if p.progress != nil {
		tracker = NewProgressTracker(p.progress, len(paths))
		tracker.Start()
		defer tracker.Finish()
	}

	var wg sync.WaitGroup
	for i, path := range paths {
		results[i].Path = path
		wg.Add(1)

		task := func() {
			defer wg.Done()
			doc, err := p.IngestFile(ctx, path, metadata)
			results[i].Document = doc
			results[i].Err = err
			if tracker != nil {
				tracker.Done(err)
			}
		}
		if err := p.pool.Submit(task); err != nil {
			results[i].Err = err
			if tracker != nil {
				tracker.Done(err)
			}
			wg.Done()
		}
	}
	wg.Wait()

	var errs []error
	for _, r := range results {
		if r.Err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", r.Path, r.Err))
		}
	}
	return results, errors.Join(errs...)
}

// DeleteDocument removes a document's chunks from the index and its entry
// from the catalog. Index cleanup is best effort: its failure is logged and
// the catalog entry is still removed.
// Returns storage.ErrNotFound if the document is not in the catalog.
func (p *Pipeline) DeleteDocument(ctx context.Context, documentID string) error {
	if _, err := p.documents.GetDocument(ctx, documentID); err != nil {
		return err
	}

	if !p.rag.DeleteDocument(ctx, documentID) {
		p.logger.Warn("document vectors not removed", "documentID", documentID)
	}
	return p.documents.DeleteDocument(ctx, documentID)
}

// Release releases resources including the worker pool.
// The pipeline should not be used after calling Release.
func (p *Pipeline) Release() {
	if p.pool != nil {
		p.pool.Release()
	}
}
