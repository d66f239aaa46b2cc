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

package core

// Role identifies the author of a conversation turn.
type Role string

const (
	// RoleUser marks a turn written by the person asking questions.
	RoleUser Role = "user"
	// RoleAssistant marks a turn produced by the model.
	RoleAssistant Role = "assistant"
)

// ConversationTurn is one prior message supplied as history for a query.
type ConversationTurn struct {
	Role    Role
	Content string
}

// Chunk is a bounded slice of a source document, the unit of embedding and retrieval.
type Chunk struct {
	ChunkID    string
	DocumentID string
	Text       string
	ChunkIndex int  // zero-based, contiguous within a document
	PageNumber *int // nil when the source has no pages
	TokenCount int
	Metadata   map[string]string
}

// Page returns the chunk's page number and whether it is known.
func (c *Chunk) Page() (int, bool) {
	if c.PageNumber == nil {
		return 0, false
	}
	return *c.PageNumber, true
}

// EmbeddedChunk pairs a chunk with its embedding vector.
// It only lives between embedding and upsert.
type EmbeddedChunk struct {
	Chunk
	Embedding []float32
}

// UnknownSource names a retrieved document whose payload carries no source.
const UnknownSource = "Unknown"

// RetrievedDocument is a chunk returned by a similarity query, reconstructed
// from the index payload.
type RetrievedDocument struct {
	ChunkID    string
	DocumentID string
	Text       string
	Source     string
	Page       *int
	Score      float32
	Metadata   map[string]any
}

// Citation is the user-facing reference to a retrieved document.
type Citation struct {
	Source         string
	Page           *int
	ChunkID        string
	RelevanceScore float32
	TextSnippet    string
}

// SnippetLength is the maximum number of characters kept in a citation snippet.
const SnippetLength = 200

// Snippet truncates text to SnippetLength characters, appending "..." when
// anything was cut.
func Snippet(text string) string {
	runes := []rune(text)
	if len(runes) <= SnippetLength {
		return text
	}
	return string(runes[:SnippetLength]) + "..."
}

// NewCitation builds a citation for a retrieved document.
func NewCitation(doc RetrievedDocument) Citation {
	return Citation{
		Source:         doc.Source,
		Page:           doc.Page,
		ChunkID:        doc.ChunkID,
		RelevanceScore: doc.Score,
		TextSnippet:    Snippet(doc.Text),
	}
}

// IntPtr returns a pointer to v.
func IntPtr(v int) *int {
	return &v
}
