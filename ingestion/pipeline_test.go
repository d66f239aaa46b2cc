package ingestion

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/poiesic/marginalia/ai/mock"
	"github.com/poiesic/marginalia/core"
	"github.com/poiesic/marginalia/loader"
	"github.com/poiesic/marginalia/rag"
	"github.com/poiesic/marginalia/storage"
	"github.com/poiesic/marginalia/storage/badger"
	"github.com/poiesic/marginalia/tokens"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fixture struct {
	pipeline *Pipeline
	rag      *rag.Pipeline
	index    storage.VectorIndex
	docs     storage.DocumentRepository
	provider *mock.MockProvider
}

func newFixture(t *testing.T, opts ...Option) *fixture {
	t.Helper()
	index, docs, backend, err := badger.NewMemoryStores()
	require.NoError(t, err)
	t.Cleanup(func() { backend.Close() })

	settings := rag.DefaultSettings()
	settings.ChunkSize = 200
	settings.ChunkOverlap = 20
	settings.EmbeddingPacing = 0

	provider := mock.NewMockProviderWithServices(mock.NewMockEmbedder(), mock.NewMockGenerator())
	ragPipeline, err := rag.NewPipeline(index, provider, rag.WithSettings(settings))
	require.NoError(t, err)

	p, err := NewPipeline(ragPipeline, docs, tokens.Estimator{}, opts...)
	require.NoError(t, err)
	t.Cleanup(p.Release)

	return &fixture{pipeline: p, rag: ragPipeline, index: index, docs: docs, provider: provider}
}

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func longText(paragraphs int) string {
	parts := make([]string, paragraphs)
	for i := range parts {
		parts[i] = strings.Repeat("Retention policies keep audit logs for a year. ", 3)
	}
	return strings.Join(parts, "\n\n")
}

func TestNewPipeline(t *testing.T) {
	index, docs, backend, err := badger.NewMemoryStores()
	require.NoError(t, err)
	defer backend.Close()
	ragPipeline, err := rag.NewPipeline(index, mock.NewMockProvider())
	require.NoError(t, err)

	t.Run("nil rag pipeline", func(t *testing.T) {
		_, err := NewPipeline(nil, docs, tokens.Estimator{})
		assert.Equal(t, ErrRAGPipelineRequired, err)
	})

	t.Run("nil document repository", func(t *testing.T) {
		_, err := NewPipeline(ragPipeline, nil, tokens.Estimator{})
		assert.Equal(t, ErrDocumentRepositoryRequired, err)
	})

	t.Run("nil counter", func(t *testing.T) {
		_, err := NewPipeline(ragPipeline, docs, nil)
		assert.Equal(t, ErrCounterRequired, err)
	})

	t.Run("with options", func(t *testing.T) {
		l, err := loader.New(loader.WithMaxFileSize(1024))
		require.NoError(t, err)
		p, err := NewPipeline(ragPipeline, docs, tokens.Estimator{},
			WithPoolSize(4), WithIDStrategy(core.IDStrategyRandom), WithLoader(l), WithLogger(nil))
		require.NoError(t, err)
		defer p.Release()
		assert.Equal(t, 4, p.pool.Cap())
		assert.Equal(t, core.IDStrategyRandom, p.idStrategy)
		assert.Same(t, l, p.loader)
	})
}

func TestIngestFile(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	path := writeFile(t, t.TempDir(), "retention.txt", longText(6))

	doc, err := f.pipeline.IngestFile(ctx, path, map[string]string{"team": "compliance"})
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(doc.DocumentID, core.DocumentIDPrefix))
	assert.Equal(t, "retention", doc.Title)
	assert.Equal(t, core.DocumentTypeText, doc.SourceType)
	assert.Equal(t, core.DocumentStatusCompleted, doc.Status)
	assert.Greater(t, doc.ChunkCount, 1)
	assert.Greater(t, doc.TotalTokens, 0)
	require.NotNil(t, doc.ProcessedAt)
	assert.Equal(t, "compliance", doc.Metadata["team"])

	stored, err := f.docs.GetDocument(ctx, doc.DocumentID)
	require.NoError(t, err)
	assert.Equal(t, core.DocumentStatusCompleted, stored.Status)
	assert.Equal(t, doc.ChunkCount, stored.ChunkCount)

	matches, err := f.index.Query(ctx, mock.DeterministicVector("q", mock.DefaultDimension), 100,
		storage.FilterFor(doc.DocumentID))
	require.NoError(t, err)
	assert.Len(t, matches, doc.ChunkCount)
	for _, m := range matches {
		assert.Equal(t, "retention.txt", m.Payload.String(storage.PayloadSource))
		assert.Equal(t, "compliance", m.Payload.String("team"))
	}
}

func TestIngestFile_MetadataFilter(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	dir := t.TempDir()

	current, err := f.pipeline.IngestFile(ctx, writeFile(t, dir, "current.txt", longText(2)),
		map[string]string{"year": "2024", "region": "eu"})
	require.NoError(t, err)
	_, err = f.pipeline.IngestFile(ctx, writeFile(t, dir, "archive.txt", "Older retention rules applied."),
		map[string]string{"year": "2023", "region": "eu"})
	require.NoError(t, err)

	filter, err := storage.ParseFilter([]string{"year=2024", "region=eu"})
	require.NoError(t, err)

	matches, err := f.index.Query(ctx, mock.DeterministicVector("q", mock.DefaultDimension), 100, filter)
	require.NoError(t, err)
	assert.Len(t, matches, current.ChunkCount)
	for _, m := range matches {
		assert.Equal(t, current.DocumentID, m.Payload.String(storage.PayloadDocumentID))
	}

	anyScore := float32(-1)
	answer, err := f.rag.Query(ctx, rag.QueryRequest{Query: "retention", Filters: filter, MinScore: &anyScore})
	require.NoError(t, err)
	assert.NotEqual(t, rag.FallbackAnswer, answer.Answer)
	assert.Positive(t, answer.RetrievedDocCount)
}

func TestIngestFile_PDF(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	raw, err := os.ReadFile(filepath.Join("..", "loader", "testdata", "manual.pdf"))
	require.NoError(t, err)
	path := filepath.Join(t.TempDir(), "manual.pdf")
	require.NoError(t, os.WriteFile(path, raw, 0o644))

	doc, err := f.pipeline.IngestFile(ctx, path, map[string]string{"team": "docs"})
	require.NoError(t, err)
	assert.Equal(t, core.DocumentTypePDF, doc.SourceType)
	assert.Equal(t, 3, doc.TotalPages)
	assert.Equal(t, 2, doc.ChunkCount)

	matches, err := f.index.Query(ctx, mock.DeterministicVector("q", mock.DefaultDimension), 100,
		storage.FilterFor(doc.DocumentID))
	require.NoError(t, err)
	require.Len(t, matches, 2)

	pages := make(map[int]int, len(matches))
	for _, m := range matches {
		idx, ok := m.Payload.Int(storage.PayloadChunkIndex)
		require.True(t, ok)
		page, ok := m.Payload.Int(storage.PayloadPage)
		require.True(t, ok)
		pages[idx] = page
		assert.Equal(t, core.ChunkIDFor(doc.DocumentID, idx), m.ID)
		assert.Equal(t, "manual.pdf", m.Payload.String(storage.PayloadSource))
		assert.Equal(t, "docs", m.Payload.String("team"))
	}
	// indices run on across pages and the empty page yields nothing
	assert.Equal(t, map[int]int{0: 1, 1: 3}, pages)

	anyScore := float32(-1)
	answer, err := f.rag.Query(ctx, rag.QueryRequest{Query: "init command", MinScore: &anyScore})
	require.NoError(t, err)
	require.NotEmpty(t, answer.Citations)
	for _, c := range answer.Citations {
		require.NotNil(t, c.Page)
		assert.Contains(t, []int{1, 3}, *c.Page)
	}
}

func TestIngestFile_IDStrategy(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	path := writeFile(t, dir, "notes.md", "# Notes\n\nShort body.")

	t.Run("content hash is stable across re-ingestion", func(t *testing.T) {
		f := newFixture(t)
		first, err := f.pipeline.IngestFile(ctx, path, nil)
		require.NoError(t, err)
		second, err := f.pipeline.IngestFile(ctx, path, nil)
		require.NoError(t, err)

		assert.Equal(t, first.DocumentID, second.DocumentID)
		assert.True(t, first.CreatedAt.Equal(second.CreatedAt))

		list, err := f.docs.ListDocuments(ctx)
		require.NoError(t, err)
		assert.Len(t, list, 1)
	})

	t.Run("random gives a new id each time", func(t *testing.T) {
		f := newFixture(t, WithIDStrategy(core.IDStrategyRandom))
		first, err := f.pipeline.IngestFile(ctx, path, nil)
		require.NoError(t, err)
		second, err := f.pipeline.IngestFile(ctx, path, nil)
		require.NoError(t, err)

		assert.NotEqual(t, first.DocumentID, second.DocumentID)
	})
}

func TestIngestFile_Failures(t *testing.T) {
	ctx := context.Background()

	t.Run("load failure writes nothing", func(t *testing.T) {
		f := newFixture(t)
		_, err := f.pipeline.IngestFile(ctx, writeFile(t, t.TempDir(), "data.csv", "a,b"), nil)
		assert.ErrorIs(t, err, loader.ErrUnsupportedType)

		list, err := f.docs.ListDocuments(ctx)
		require.NoError(t, err)
		assert.Empty(t, list)
	})

	t.Run("embedding failure marks document failed", func(t *testing.T) {
		f := newFixture(t)
		upstream := errors.New("quota exceeded")
		f.provider.GetMockEmbedder().EmbedTextsFunc = func(ctx context.Context, texts []string) ([][]float32, error) {
			return nil, upstream
		}

		_, err := f.pipeline.IngestFile(ctx, writeFile(t, t.TempDir(), "a.txt", "some content"), nil)
		assert.ErrorIs(t, err, upstream)

		list, err := f.docs.ListDocuments(ctx)
		require.NoError(t, err)
		require.Len(t, list, 1)
		assert.Equal(t, core.DocumentStatusFailed, list[0].Status)
		assert.Contains(t, list[0].Error, "quota exceeded")
		assert.Nil(t, list[0].ProcessedAt)
	})
}

func TestIngestFiles(t *testing.T) {
	var progress bytes.Buffer
	f := newFixture(t, WithPoolSize(3), WithProgress(&progress))
	ctx := context.Background()
	dir := t.TempDir()

	paths := []string{
		writeFile(t, dir, "one.txt", "first document body"),
		writeFile(t, dir, "two.md", "second document body"),
		writeFile(t, dir, "three.csv", "unsupported"),
		writeFile(t, dir, "four.txt", "fourth document body"),
	}

	results, err := f.pipeline.IngestFiles(ctx, paths, nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, loader.ErrUnsupportedType)
	assert.Contains(t, err.Error(), "three.csv")

	require.Len(t, results, 4)
	for i, r := range results {
		assert.Equal(t, paths[i], r.Path)
		if i == 2 {
			assert.Error(t, r.Err)
			assert.Nil(t, r.Document)
			continue
		}
		require.NoError(t, r.Err)
		assert.Equal(t, core.DocumentStatusCompleted, r.Document.Status)
	}

	list, err := f.docs.ListDocuments(ctx)
	require.NoError(t, err)
	assert.Len(t, list, 3)
	assert.Contains(t, progress.String(), "Ingested: 4/4 (100.0%), 1 failed")
}

func TestDeleteDocument(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	dir := t.TempDir()

	keep, err := f.pipeline.IngestFile(ctx, writeFile(t, dir, "keep.txt", "keep this body"), nil)
	require.NoError(t, err)
	drop, err := f.pipeline.IngestFile(ctx, writeFile(t, dir, "drop.txt", "drop this body"), nil)
	require.NoError(t, err)

	require.NoError(t, f.pipeline.DeleteDocument(ctx, drop.DocumentID))

	_, err = f.docs.GetDocument(ctx, drop.DocumentID)
	assert.ErrorIs(t, err, storage.ErrNotFound)

	matches, err := f.index.Query(ctx, mock.DeterministicVector("q", mock.DefaultDimension), 10, nil)
	require.NoError(t, err)
	require.Len(t, matches, keep.ChunkCount)
	for _, m := range matches {
		assert.Equal(t, keep.DocumentID, m.Payload.String(storage.PayloadDocumentID))
	}

	assert.ErrorIs(t, f.pipeline.DeleteDocument(ctx, "doc_missing"), storage.ErrNotFound)
}
