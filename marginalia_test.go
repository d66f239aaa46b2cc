package marginalia

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/poiesic/marginalia/ai"
	"github.com/poiesic/marginalia/ai/mock"
	"github.com/poiesic/marginalia/config"
	"github.com/poiesic/marginalia/core"
	"github.com/poiesic/marginalia/rag"
	"github.com/poiesic/marginalia/storage"
	"github.com/poiesic/marginalia/storage/qdrant"
	"github.com/poiesic/marginalia/tokens"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := config.Default()
	cfg.Storage.Path = filepath.Join(t.TempDir(), "db")
	cfg.RAG.EmbeddingPacingMs = 0
	return cfg
}

func openTestEngine(t *testing.T, cfg *config.Config) (*Engine, *mock.MockProvider) {
	t.Helper()
	provider := mock.NewMockProviderWithServices(mock.NewMockEmbedder(), mock.NewMockGenerator())
	engine, err := Open(cfg, WithProvider(provider), WithTokenCounter(tokens.Estimator{}))
	require.NoError(t, err)
	return engine, provider
}

func TestOpen(t *testing.T) {
	t.Run("on disk", func(t *testing.T) {
		engine, _ := openTestEngine(t, testConfig(t))
		assert.NotNil(t, engine.Pipeline())
		assert.NotNil(t, engine.backend)
		assert.NoError(t, engine.Close())
	})

	t.Run("in memory", func(t *testing.T) {
		cfg := testConfig(t)
		cfg.Storage.Path = ""
		cfg.Storage.InMemory = true
		engine, _ := openTestEngine(t, cfg)
		assert.NoError(t, engine.Close())
	})

	t.Run("qdrant vectors", func(t *testing.T) {
		cfg := testConfig(t)
		cfg.Storage.Backend = config.BackendQdrant
		engine, _ := openTestEngine(t, cfg)
		defer engine.Close()
		_, ok := engine.index.(*qdrant.Index)
		assert.True(t, ok)
	})

	t.Run("invalid config", func(t *testing.T) {
		cfg := testConfig(t)
		cfg.RAG.TopK = 0
		_, err := Open(cfg, WithProvider(mock.NewMockProvider()))
		assert.ErrorIs(t, err, core.ErrConfiguration)
	})

	t.Run("missing credentials", func(t *testing.T) {
		t.Setenv("OPENAI_API_KEY", "")
		t.Setenv("ANTHROPIC_API_KEY", "")
		_, err := Open(testConfig(t))
		assert.ErrorIs(t, err, core.ErrConfiguration)
	})

	t.Run("path is a file", func(t *testing.T) {
		cfg := testConfig(t)
		cfg.Storage.Path = filepath.Join(t.TempDir(), "not_a_dir")
		require.NoError(t, os.WriteFile(cfg.Storage.Path, []byte("test"), 0o644))
		_, err := Open(cfg, WithProvider(mock.NewMockProvider()), WithTokenCounter(tokens.Estimator{}))
		assert.Error(t, err)
	})
}

func TestNewProvider(t *testing.T) {
	t.Run("anthropic generation", func(t *testing.T) {
		cfg := ai.NewConfig(ai.WithEmbeddingToken("sk-test"), ai.WithGeneratorToken("sk-ant-test"))
		provider, err := NewProvider(cfg)
		require.NoError(t, err)
		defer provider.Close()
		assert.Equal(t, cfg.GeneratorModel, provider.Generator().Model())
	})

	t.Run("local openai-compatible server", func(t *testing.T) {
		cfg := ai.NewConfig(
			ai.WithEmbeddingHost("http://localhost:11434"),
			ai.WithEmbeddingModel("embeddinggemma"),
			ai.WithGenerator(ai.GeneratorOpenAI),
			ai.WithGeneratorHost("http://localhost:11434"),
			ai.WithGeneratorModel("qwen2.5:7b"),
		)
		provider, err := NewProvider(cfg)
		require.NoError(t, err)
		defer provider.Close()
		assert.Equal(t, "qwen2.5:7b", provider.Generator().Model())
	})

	t.Run("missing token", func(t *testing.T) {
		_, err := NewProvider(ai.NewConfig())
		assert.ErrorIs(t, err, core.ErrConfiguration)
	})
}

func TestEngine_EndToEnd(t *testing.T) {
	engine, provider := openTestEngine(t, testConfig(t))
	defer engine.Close()
	ctx := context.Background()

	body := "Employees accrue two vacation days per month."
	path := filepath.Join(t.TempDir(), "handbook.txt")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))

	doc, err := engine.IngestFile(ctx, path, map[string]string{"team": "people"})
	require.NoError(t, err)
	assert.Equal(t, core.DocumentStatusCompleted, doc.Status)
	assert.Equal(t, 1, doc.ChunkCount)

	docs, err := engine.Documents(ctx)
	require.NoError(t, err)
	require.Len(t, docs, 1)

	answer, err := engine.Query(ctx, rag.QueryRequest{Query: body})
	require.NoError(t, err)
	assert.Equal(t, 1, answer.RetrievedDocCount)
	require.Len(t, answer.Citations, 1)
	assert.Equal(t, "handbook.txt", answer.Citations[0].Source)
	assert.Equal(t, 1, provider.GetMockGenerator().CallCount())

	filtered, err := engine.Query(ctx, rag.QueryRequest{Query: body, Filters: storage.Filter{"team": "sales"}})
	require.NoError(t, err)
	assert.Equal(t, rag.FallbackAnswer, filtered.Answer)

	require.NoError(t, engine.DeleteDocument(ctx, doc.DocumentID))
	_, err = engine.Document(ctx, doc.DocumentID)
	assert.ErrorIs(t, err, storage.ErrNotFound)

	answer, err = engine.Query(ctx, rag.QueryRequest{Query: body})
	require.NoError(t, err)
	assert.Equal(t, rag.FallbackAnswer, answer.Answer)
	assert.Equal(t, 0, answer.RetrievedDocCount)
}
