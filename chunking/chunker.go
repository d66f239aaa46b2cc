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

package chunking

import (
	"fmt"
	"log/slog"
	"maps"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/poiesic/marginalia/core"
	"github.com/poiesic/marginalia/tokens"
	"github.com/tmc/langchaingo/textsplitter"
)

const (
	DefaultChunkSize    = 1000
	DefaultChunkOverlap = 200
)

// SentenceSeparator ends a sentence. The period stays with the sentence it
// terminates; only the space moves to the next piece.
const SentenceSeparator = ". "

// Separators are tried in order: paragraphs, lines, sentences, words,
// then raw characters.
var Separators = []string{"\n\n", "\n", SentenceSeparator, " ", ""}

// sentenceMark is inserted between a sentence's period and the following
// space before splitting, so the splitter can cut there without taking the
// period along. It is stripped from the input first and from every chunk after.
const sentenceMark = "\x1f"

// Metadata keys set on page-aware chunks.
const (
	MetaSource = "source"
	MetaPage   = "page"
)

// Page is the text of one page of a paginated source. Number is 1-based.
type Page struct {
	Number int
	Text   string
}

// Chunker splits document text into overlapping chunks and counts their tokens.
type Chunker struct {
	counter      tokens.Counter
	chunkSize    int
	chunkOverlap int
	splitter     textsplitter.RecursiveCharacter
	logger       *slog.Logger
}

// Option configures a Chunker.
type Option func(*Chunker) error

// WithChunkSize sets the maximum chunk length in characters.
// Default is 1000.
func WithChunkSize(size int) Option {
	return func(c *Chunker) error {
		if size < 1 {
			return fmt.Errorf("%w: chunk size must be positive, got %d", core.ErrConfiguration, size)
		}
		c.chunkSize = size
		return nil
	}
}

// WithChunkOverlap sets how many characters consecutive chunks share.
// Default is 200.
func WithChunkOverlap(overlap int) Option {
	return func(c *Chunker) error {
		if overlap < 0 {
			return fmt.Errorf("%w: chunk overlap must not be negative, got %d", core.ErrConfiguration, overlap)
		}
		c.chunkOverlap = overlap
		return nil
	}
}

// WithLogger sets a custom logger.
// Default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(c *Chunker) error {
		if logger == nil {
			logger = slog.Default()
		}
		c.logger = logger
		return nil
	}
}

// NewChunker creates a chunker that counts tokens with counter.
func NewChunker(counter tokens.Counter, opts ...Option) (*Chunker, error) {
	if counter == nil {
		return nil, ErrCounterRequired
	}

	c := &Chunker{
		counter:      counter,
		chunkSize:    DefaultChunkSize,
		chunkOverlap: DefaultChunkOverlap,
		logger:       slog.Default(),
	}

	for _, opt := range opts {
		if err := opt(c); err != nil {
			return nil, err
		}
	}

	if c.chunkOverlap >= c.chunkSize {
		return nil, fmt.Errorf("%w: chunk overlap %d must be smaller than chunk size %d",
			core.ErrConfiguration, c.chunkOverlap, c.chunkSize)
	}

	c.splitter = textsplitter.NewRecursiveCharacter(
		textsplitter.WithChunkSize(c.chunkSize),
		textsplitter.WithChunkOverlap(c.chunkOverlap),
		textsplitter.WithSeparators(splitterSeparators()),
		textsplitter.WithKeepSeparator(true),
		textsplitter.WithLenFunc(runeLen),
	)
	c.logger = c.logger.With("component", "chunker")

	return c, nil
}

// ChunkSize returns the configured maximum chunk length.
func (c *Chunker) ChunkSize() int {
	return c.chunkSize
}

// ChunkOverlap returns the configured overlap.
func (c *Chunker) ChunkOverlap() int {
	return c.chunkOverlap
}

// ChunkText splits text into chunks numbered from 0. Blank text yields no
// chunks. Each chunk carries a copy of metadata.
func (c *Chunker) ChunkText(documentID, text string, metadata map[string]string) ([]core.Chunk, error) {
	pieces, err := c.split(text)
	if err != nil {
		return nil, err
	}

	chunks := make([]core.Chunk, 0, len(pieces))
	for _, piece := range pieces {
		chunks = append(chunks, c.newChunk(documentID, len(chunks), piece, nil, metadata))
	}

	c.logger.Debug("chunked text", "documentID", documentID, "chunks", len(chunks))
	return chunks, nil
}

// ChunkPages splits each page independently. Chunk indices continue across
// pages so they stay contiguous for the whole document, and every chunk
// records its page number and source.
func (c *Chunker) ChunkPages(documentID, source string, pages []Page) ([]core.Chunk, error) {
	var chunks []core.Chunk
	for _, page := range pages {
		pieces, err := c.split(page.Text)
		if err != nil {
			return nil, fmt.Errorf("page %d: %w", page.Number, err)
		}

		meta := map[string]string{
			MetaSource: source,
			MetaPage:   strconv.Itoa(page.Number),
		}
		for _, piece := range pieces {
			chunks = append(chunks, c.newChunk(documentID, len(chunks), piece, core.IntPtr(page.Number), meta))
		}
	}

	c.logger.Debug("chunked pages", "documentID", documentID, "pages", len(pages), "chunks", len(chunks))
	return chunks, nil
}

func (c *Chunker) split(text string) ([]string, error) {
	if strings.TrimSpace(text) == "" {
		return nil, nil
	}

	text = strings.ReplaceAll(text, sentenceMark, "")
	marked := strings.ReplaceAll(text, SentenceSeparator, markedSentenceEnd)

	pieces, err := c.splitter.SplitText(marked)
	if err != nil {
		return nil, fmt.Errorf("split text: %w", err)
	}

	out := make([]string, 0, len(pieces))
	for _, p := range pieces {
		p = strings.TrimSpace(strings.ReplaceAll(p, sentenceMark, ""))
		if p != "" {
			out = append(out, p)
		}
	}
	return out, nil
}

// markedSentenceEnd replaces SentenceSeparator in the text handed to the
// splitter, which cuts on markedSeparator and keeps it on the next piece.
var (
	markedSentenceEnd = strings.TrimSuffix(SentenceSeparator, " ") + sentenceMark + " "
	markedSeparator   = sentenceMark + " "
)

func splitterSeparators() []string {
	seps := make([]string, len(Separators))
	for i, sep := range Separators {
		if sep == SentenceSeparator {
			sep = markedSeparator
		}
		seps[i] = sep
	}
	return seps
}

// runeLen measures text as it will appear in the chunk.
func runeLen(s string) int {
	return utf8.RuneCountInString(s) - strings.Count(s, sentenceMark)
}

func (c *Chunker) newChunk(documentID string, index int, text string, page *int, metadata map[string]string) core.Chunk {
	meta := maps.Clone(metadata)
	if meta == nil {
		meta = make(map[string]string)
	}
	return core.Chunk{
		ChunkID:    core.ChunkIDFor(documentID, index),
		DocumentID: documentID,
		Text:       text,
		ChunkIndex: index,
		PageNumber: page,
		TokenCount: c.counter.Count(text),
		Metadata:   meta,
	}
}
