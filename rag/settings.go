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
	"fmt"
	"time"

	"github.com/poiesic/marginalia/chunking"
	"github.com/poiesic/marginalia/core"
	"github.com/poiesic/marginalia/embedding"
	"github.com/poiesic/marginalia/retrieval"
	"github.com/poiesic/marginalia/synthesis"
)

// DefaultTopK is the number of neighbors retrieved when a request names none.
const DefaultTopK = 5

// Settings tunes chunking, batching and retrieval.
type Settings struct {
	// ChunkSize and ChunkOverlap are measured in characters.
	ChunkSize    int
	ChunkOverlap int

	// SimilarityThreshold is the default minimum score for retrieved chunks.
	SimilarityThreshold float32

	// EmbeddingBatchSize bounds the texts sent per embedding call.
	EmbeddingBatchSize int

	// EmbeddingPacing is the pause between embedding calls.
	EmbeddingPacing time.Duration

	// UpsertBatchSize bounds the vectors sent per index write.
	UpsertBatchSize int

	// TopK is the default number of neighbors to retrieve.
	TopK int

	// MaxTokens bounds generated answers.
	MaxTokens int
}

// DefaultSettings returns the settings used when none are supplied.
func DefaultSettings() Settings {
	return Settings{
		ChunkSize:           chunking.DefaultChunkSize,
		ChunkOverlap:        chunking.DefaultChunkOverlap,
		SimilarityThreshold: retrieval.DefaultSimilarityThreshold,
		EmbeddingBatchSize:  embedding.DefaultBatchSize,
		EmbeddingPacing:     embedding.DefaultPacing,
		UpsertBatchSize:     100,
		TopK:                DefaultTopK,
		MaxTokens:           synthesis.DefaultMaxTokens,
	}
}

// Validate checks that every setting is usable.
func (s Settings) Validate() error {
	switch {
	case s.ChunkSize < 1:
		return settingsError("chunk size must be positive")
	case s.ChunkOverlap < 0 || s.ChunkOverlap >= s.ChunkSize:
		return settingsError("chunk overlap must be in [0, chunk size)")
	case s.SimilarityThreshold < -1 || s.SimilarityThreshold > 1:
		return settingsError("similarity threshold must be in [-1, 1]")
	case s.EmbeddingBatchSize < 1:
		return settingsError("embedding batch size must be positive")
	case s.EmbeddingPacing < 0:
		return settingsError("embedding pacing must not be negative")
	case s.UpsertBatchSize < 1:
		return settingsError("upsert batch size must be positive")
	case s.TopK < 1:
		return settingsError("top k must be positive")
	case s.MaxTokens < 1:
		return settingsError("max tokens must be positive")
	}
	return nil
}

func settingsError(msg string) error {
	return fmt.Errorf("%w: rag settings: %s", core.ErrConfiguration, msg)
}
