package badger

import (
	"context"
	"testing"
	"time"

	"github.com/poiesic/marginalia/core"
	"github.com/poiesic/marginalia/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDocumentRepository(t *testing.T) {
	_, docs, backend, err := NewMemoryStores()
	require.NoError(t, err)
	defer backend.Close()

	ctx := context.Background()
	base := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

	older := &core.DocumentMetadata{
		DocumentID: "doc_b",
		Title:      "Older",
		SourceType: core.DocumentTypePDF,
		TotalPages: 3,
		Status:     core.DocumentStatusCompleted,
		CreatedAt:  base,
		Metadata:   map[string]string{"team": "infra"},
	}
	newer := &core.DocumentMetadata{
		DocumentID: "doc_a",
		Title:      "Newer",
		SourceType: core.DocumentTypeText,
		Status:     core.DocumentStatusProcessing,
		CreatedAt:  base.Add(time.Hour),
	}

	t.Run("save and get", func(t *testing.T) {
		require.NoError(t, docs.SaveDocument(ctx, newer))
		require.NoError(t, docs.SaveDocument(ctx, older))

		got, err := docs.GetDocument(ctx, "doc_b")
		require.NoError(t, err)
		assert.Equal(t, "Older", got.Title)
		assert.Equal(t, core.DocumentTypePDF, got.SourceType)
		assert.Equal(t, 3, got.TotalPages)
		assert.True(t, base.Equal(got.CreatedAt))
		assert.Equal(t, "infra", got.Metadata["team"])
	})

	t.Run("list orders by creation time", func(t *testing.T) {
		list, err := docs.ListDocuments(ctx)
		require.NoError(t, err)
		require.Len(t, list, 2)
		assert.Equal(t, "doc_b", list[0].DocumentID)
		assert.Equal(t, "doc_a", list[1].DocumentID)
	})

	t.Run("save replaces", func(t *testing.T) {
		processed := base.Add(2 * time.Hour)
		newer.Status = core.DocumentStatusCompleted
		newer.ChunkCount = 12
		newer.ProcessedAt = &processed
		require.NoError(t, docs.SaveDocument(ctx, newer))

		got, err := docs.GetDocument(ctx, "doc_a")
		require.NoError(t, err)
		assert.Equal(t, core.DocumentStatusCompleted, got.Status)
		assert.Equal(t, 12, got.ChunkCount)
		require.NotNil(t, got.ProcessedAt)
		assert.True(t, processed.Equal(*got.ProcessedAt))
	})

	t.Run("missing document", func(t *testing.T) {
		_, err := docs.GetDocument(ctx, "doc_missing")
		assert.ErrorIs(t, err, storage.ErrNotFound)
		assert.ErrorIs(t, docs.DeleteDocument(ctx, "doc_missing"), storage.ErrNotFound)
	})

	t.Run("delete", func(t *testing.T) {
		require.NoError(t, docs.DeleteDocument(ctx, "doc_a"))

		_, err := docs.GetDocument(ctx, "doc_a")
		assert.ErrorIs(t, err, storage.ErrNotFound)

		list, err := docs.ListDocuments(ctx)
		require.NoError(t, err)
		assert.Len(t, list, 1)
	})

	t.Run("invalid document", func(t *testing.T) {
		assert.ErrorIs(t, docs.SaveDocument(ctx, &core.DocumentMetadata{}), storage.ErrInvalidQuery)
		assert.ErrorIs(t, docs.SaveDocument(ctx, nil), storage.ErrInvalidQuery)
	})
}

func TestDocumentsAndVectorsShareBackend(t *testing.T) {
	index, docs, backend, err := NewMemoryStores()
	require.NoError(t, err)
	defer backend.Close()
	ctx := context.Background()

	require.NoError(t, docs.SaveDocument(ctx, &core.DocumentMetadata{DocumentID: "doc_1", CreatedAt: time.Now()}))
	require.NoError(t, index.Upsert(ctx, []storage.Vector{vec("doc_1_chunk_0", "doc_1", 1, 0)}))

	// vector keys and document keys live under separate prefixes
	list, err := docs.ListDocuments(ctx)
	require.NoError(t, err)
	assert.Len(t, list, 1)

	matches, err := index.Query(ctx, []float32{1, 0}, 10, nil)
	require.NoError(t, err)
	assert.Len(t, matches, 1)
}
