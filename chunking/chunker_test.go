package chunking

import (
	"fmt"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/poiesic/marginalia/core"
	"github.com/poiesic/marginalia/tokens"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestChunker(t *testing.T, opts ...Option) *Chunker {
	t.Helper()
	c, err := NewChunker(tokens.Estimator{}, opts...)
	require.NoError(t, err)
	return c
}

func sampleText(paragraphs int) string {
	var b strings.Builder
	for i := 0; i < paragraphs; i++ {
		if i > 0 {
			b.WriteString("\n\n")
		}
		fmt.Fprintf(&b, "Paragraph %d talks about topic-%02d. It has a second sentence with several words. And a third one.", i, i)
	}
	return b.String()
}

func TestNewChunker(t *testing.T) {
	t.Run("defaults", func(t *testing.T) {
		c := newTestChunker(t)
		assert.Equal(t, DefaultChunkSize, c.ChunkSize())
		assert.Equal(t, DefaultChunkOverlap, c.ChunkOverlap())
	})

	t.Run("nil counter", func(t *testing.T) {
		_, err := NewChunker(nil)
		assert.ErrorIs(t, err, ErrCounterRequired)
	})

	t.Run("overlap not smaller than size", func(t *testing.T) {
		_, err := NewChunker(tokens.Estimator{}, WithChunkSize(100), WithChunkOverlap(100))
		assert.ErrorIs(t, err, core.ErrConfiguration)
	})

	t.Run("invalid size", func(t *testing.T) {
		_, err := NewChunker(tokens.Estimator{}, WithChunkSize(0))
		assert.ErrorIs(t, err, core.ErrConfiguration)
	})

	t.Run("negative overlap", func(t *testing.T) {
		_, err := NewChunker(tokens.Estimator{}, WithChunkOverlap(-1))
		assert.ErrorIs(t, err, core.ErrConfiguration)
	})
}

func TestChunkText_Empty(t *testing.T) {
	c := newTestChunker(t)

	for _, text := range []string{"", "   ", "\n\n\t"} {
		chunks, err := c.ChunkText("doc_1", text, nil)
		require.NoError(t, err)
		assert.Empty(t, chunks)
	}
}

func TestChunkText_ShortTextIsSingleChunk(t *testing.T) {
	c := newTestChunker(t)
	text := "A short note about retrieval."

	chunks, err := c.ChunkText("doc_1", text, map[string]string{"source": "note.txt"})
	require.NoError(t, err)
	require.Len(t, chunks, 1)

	assert.Equal(t, text, chunks[0].Text)
	assert.Equal(t, "doc_1_chunk_0", chunks[0].ChunkID)
	assert.Equal(t, 0, chunks[0].ChunkIndex)
	assert.Nil(t, chunks[0].PageNumber)
	assert.Equal(t, "note.txt", chunks[0].Metadata["source"])
	assert.Equal(t, tokens.Estimator{}.Count(text), chunks[0].TokenCount)
}

func TestChunkText_LongText(t *testing.T) {
	c := newTestChunker(t, WithChunkSize(200), WithChunkOverlap(40))
	text := sampleText(20)

	chunks, err := c.ChunkText("doc_long", text, nil)
	require.NoError(t, err)
	require.Greater(t, len(chunks), 1)

	for i, chunk := range chunks {
		assert.Equal(t, i, chunk.ChunkIndex, "indices are contiguous from zero")
		assert.Equal(t, core.ChunkIDFor("doc_long", i), chunk.ChunkID)
		assert.LessOrEqual(t, utf8.RuneCountInString(chunk.Text), 200)
		assert.Positive(t, chunk.TokenCount)
		assert.NoError(t, core.ValidateChunk(&chunk))
	}

	// Every sentence survives whole, terminal period included.
	for i := 0; i < 20; i++ {
		for _, sentence := range []string{
			fmt.Sprintf("Paragraph %d talks about topic-%02d.", i, i),
			"It has a second sentence with several words.",
			"And a third one.",
		} {
			assert.True(t, anyChunkContains(chunks, sentence), "missing %q", sentence)
		}
	}
	for _, chunk := range chunks {
		assert.Contains(t, text, chunk.Text, "chunks are verbatim slices of the source")
	}
}

func TestChunkText_SentenceBoundariesKeepPeriods(t *testing.T) {
	c := newTestChunker(t, WithChunkSize(100), WithChunkOverlap(30))

	sentences := make([]string, 30)
	for i := range sentences {
		sentences[i] = fmt.Sprintf("Sentence number %02d has a few words.", i)
	}
	text := strings.Join(sentences, " ")

	chunks, err := c.ChunkText("doc_sent", text, nil)
	require.NoError(t, err)
	require.Greater(t, len(chunks), 1)

	for _, sentence := range sentences {
		assert.True(t, anyChunkContains(chunks, sentence), "missing %q", sentence)
	}
	for _, chunk := range chunks {
		assert.True(t, strings.HasSuffix(chunk.Text, "."), "chunk %d ends mid-sentence: %q", chunk.ChunkIndex, chunk.Text)
		assert.False(t, strings.HasPrefix(chunk.Text, "."), "chunk %d starts with a stray period", chunk.ChunkIndex)
		assert.NotContains(t, chunk.Text, sentenceMark)
		assert.LessOrEqual(t, utf8.RuneCountInString(chunk.Text), 100)
	}
}

func anyChunkContains(chunks []core.Chunk, s string) bool {
	for _, chunk := range chunks {
		if strings.Contains(chunk.Text, s) {
			return true
		}
	}
	return false
}

func TestChunkText_Deterministic(t *testing.T) {
	c := newTestChunker(t, WithChunkSize(150), WithChunkOverlap(30))
	text := sampleText(8)

	first, err := c.ChunkText("doc_x", text, nil)
	require.NoError(t, err)
	second, err := c.ChunkText("doc_x", text, nil)
	require.NoError(t, err)

	assert.Equal(t, first, second)
}

func TestChunkText_UnbrokenTextFallsBackToCharacters(t *testing.T) {
	c := newTestChunker(t, WithChunkSize(50), WithChunkOverlap(10))
	text := strings.Repeat("x", 180)

	chunks, err := c.ChunkText("doc_raw", text, nil)
	require.NoError(t, err)
	require.Greater(t, len(chunks), 1)
	for _, chunk := range chunks {
		assert.LessOrEqual(t, len(chunk.Text), 50)
	}
}

func TestChunkText_MetadataIsCopied(t *testing.T) {
	c := newTestChunker(t, WithChunkSize(100), WithChunkOverlap(10))
	meta := map[string]string{"author": "ann"}

	chunks, err := c.ChunkText("doc_m", sampleText(4), meta)
	require.NoError(t, err)
	require.Greater(t, len(chunks), 1)

	chunks[0].Metadata["author"] = "changed"
	assert.Equal(t, "ann", meta["author"])
	assert.Equal(t, "ann", chunks[1].Metadata["author"])
}

func TestChunkPages(t *testing.T) {
	c := newTestChunker(t, WithChunkSize(120), WithChunkOverlap(20))
	pages := []Page{
		{Number: 1, Text: sampleText(3)},
		{Number: 2, Text: "   "},
		{Number: 3, Text: sampleText(2)},
	}

	chunks, err := c.ChunkPages("doc_pdf", "manual.pdf", pages)
	require.NoError(t, err)
	require.NotEmpty(t, chunks)

	seenPages := map[int]bool{}
	lastPage := 0
	for i, chunk := range chunks {
		assert.Equal(t, i, chunk.ChunkIndex, "indices continue across pages")
		require.NotNil(t, chunk.PageNumber)
		page := *chunk.PageNumber
		assert.GreaterOrEqual(t, page, lastPage, "pages appear in order")
		lastPage = page
		seenPages[page] = true

		assert.Equal(t, "manual.pdf", chunk.Metadata[MetaSource])
		assert.Equal(t, fmt.Sprint(page), chunk.Metadata[MetaPage])
	}

	assert.True(t, seenPages[1])
	assert.False(t, seenPages[2], "blank page contributes no chunks")
	assert.True(t, seenPages[3])
}

func TestChunkPages_Empty(t *testing.T) {
	c := newTestChunker(t)

	chunks, err := c.ChunkPages("doc_empty", "empty.pdf", nil)
	require.NoError(t, err)
	assert.Empty(t, chunks)
}
