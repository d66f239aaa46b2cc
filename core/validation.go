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
	"fmt"
	"strings"
)

// ValidateChunk validates a Chunk according to domain rules.
//
// Validation rules:
//   - Text must not be blank
//   - DocumentID must not be empty
//   - ChunkIndex must not be negative
//   - ChunkID must equal ChunkIDFor(DocumentID, ChunkIndex)
//
// NOT validated:
//   - TokenCount (zero means "not counted yet")
//   - Metadata
func ValidateChunk(chunk *Chunk) error {
	if chunk == nil {
		return fmt.Errorf("%w: chunk is nil", ErrInvalidChunk)
	}

	if strings.TrimSpace(chunk.Text) == "" {
		return fmt.Errorf("%w: %w", ErrInvalidChunk, ErrEmptyContent)
	}

	if chunk.DocumentID == "" {
		return fmt.Errorf("%w: document id is empty", ErrInvalidChunk)
	}

	if chunk.ChunkIndex < 0 {
		return fmt.Errorf("%w: negative index %d", ErrInvalidChunk, chunk.ChunkIndex)
	}

	if want := ChunkIDFor(chunk.DocumentID, chunk.ChunkIndex); chunk.ChunkID != want {
		return fmt.Errorf("%w: id %q, expected %q", ErrInvalidChunk, chunk.ChunkID, want)
	}

	return nil
}

// ValidateRole validates that a Role has a valid value.
func ValidateRole(role Role) error {
	if role != RoleUser && role != RoleAssistant {
		return fmt.Errorf("%w: value %q", ErrInvalidRole, role)
	}
	return nil
}

// ValidateTurn validates a ConversationTurn.
func ValidateTurn(turn ConversationTurn) error {
	if err := ValidateRole(turn.Role); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidTurn, err)
	}
	if turn.Content == "" {
		return fmt.Errorf("%w: %w", ErrInvalidTurn, ErrEmptyContent)
	}
	return nil
}

// ValidateHistory validates every turn in a conversation history.
func ValidateHistory(history []ConversationTurn) error {
	for i, turn := range history {
		if err := ValidateTurn(turn); err != nil {
			return fmt.Errorf("turn %d: %w", i, err)
		}
	}
	return nil
}
