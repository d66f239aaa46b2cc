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

import "errors"

// Domain errors
var (
	// ErrConfiguration indicates missing or invalid settings. It is raised
	// before any external call is attempted.
	ErrConfiguration = errors.New("configuration error")

	// ErrInvalidChunk indicates a Chunk failed validation.
	ErrInvalidChunk = errors.New("invalid chunk")

	// ErrInvalidTurn indicates a ConversationTurn failed validation.
	ErrInvalidTurn = errors.New("invalid conversation turn")

	// ErrEmptyContent indicates a text field is empty.
	ErrEmptyContent = errors.New("content cannot be empty")

	// ErrInvalidRole indicates a role other than user or assistant.
	ErrInvalidRole = errors.New("invalid role")

	// ErrMissingContentHash indicates content-hash id generation without a hash.
	ErrMissingContentHash = errors.New("content hash required for content-derived document id")

	// ErrInvalidDocumentStatus indicates an unknown document status.
	ErrInvalidDocumentStatus = errors.New("invalid document status")
)
