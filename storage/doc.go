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

// Package storage provides the storage abstraction layer for marginalia.
//
// This package defines the interfaces that decouple storage implementations
// from retrieval and ingestion logic:
//
//   - VectorIndex: upsert, filtered nearest-neighbor query, filtered delete
//   - DocumentRepository: the catalog of ingested documents
//
// Two backends implement VectorIndex: storage/badger keeps vectors in an
// embedded BadgerDB and scans them exactly, storage/qdrant talks to a Qdrant
// server over its REST API. storage/badger also implements DocumentRepository.
//
// # Constructor Return Type Pattern
//
// Public constructors return interfaces:
//
//	index, err := badger.NewVectorIndex(backend)   // storage.VectorIndex
//	docs, err := badger.NewDocumentRepository(backend)
//
// # Filters
//
// Filter is exact equality over payload keys. Every chunk written by the
// RAG pipeline carries chunk_id, document_id, text, source, chunk_index and,
// when known, page, plus the chunk's own metadata.
//
// # Thread Safety
//
// All implementations must be thread-safe and support concurrent access
// from multiple goroutines.
package storage
