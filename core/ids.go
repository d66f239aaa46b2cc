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

import (
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"

	"github.com/go-crypt/x/blake2b"
	"github.com/google/uuid"
)

// DocumentIDPrefix starts every generated document id.
const DocumentIDPrefix = "doc_"

// ChunkIDFor returns the id of the chunk at index within a document.
// The result depends only on its inputs, so re-ingesting a document
// overwrites its chunks instead of duplicating them.
func ChunkIDFor(documentID string, index int) string {
	return documentID + "_chunk_" + strconv.Itoa(index)
}

// IDStrategy selects how document ids are generated.
type IDStrategy int

const (
	// IDStrategyContentHash derives the id from title and content hash.
	// The same document always maps to the same id.
	IDStrategyContentHash IDStrategy = iota
	// IDStrategyRandom generates a fresh id on every call.
	IDStrategyRandom
)

func (s IDStrategy) String() string {
	switch s {
	case IDStrategyContentHash:
		return "content"
	case IDStrategyRandom:
		return "random"
	default:
		return "IDStrategy(" + strconv.Itoa(int(s)) + ")"
	}
}

// ParseIDStrategy converts "content" or "random" into an IDStrategy.
func ParseIDStrategy(s string) (IDStrategy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "content", "hash", "content_hash":
		return IDStrategyContentHash, nil
	case "random":
		return IDStrategyRandom, nil
	}
	return 0, fmt.Errorf("%w: unknown id strategy %q", ErrConfiguration, s)
}

// NewDocumentID generates a document id using the given strategy.
// ContentHash mode requires a non-empty contentHash.
func NewDocumentID(strategy IDStrategy, title, contentHash string) (string, error) {
	switch strategy {
	case IDStrategyContentHash:
		if contentHash == "" {
			return "", ErrMissingContentHash
		}
		h, err := blake2b.New(8, nil) // 8 bytes = 16 hex chars
		if err != nil {
			return "", fmt.Errorf("document id digest: %w", err)
		}
		h.Write([]byte(title + "_" + contentHash))
		return DocumentIDPrefix + hex.EncodeToString(h.Sum(nil)), nil
	case IDStrategyRandom:
		raw := strings.ReplaceAll(uuid.New().String(), "-", "")
		return DocumentIDPrefix + raw[:16], nil
	default:
		return "", fmt.Errorf("%w: %s", ErrConfiguration, strategy)
	}
}

// ContentHash returns the hex encoded BLAKE2b-256 digest of data.
func ContentHash(data []byte) string {
	sum := blake2b.Sum256(data)
	return hex.EncodeToString(sum[:])
}
