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

// Package rag answers questions over an indexed document corpus.
//
// A Pipeline owns the retrieval, synthesis and embedding stages, all built
// from handles passed to NewPipeline:
//
//   - Query embeds the question, retrieves similar chunks above the
//     similarity threshold and asks the generator for a cited answer. When
//     nothing is retrieved it returns FallbackAnswer without calling the
//     generator.
//   - UpsertChunks embeds chunks in batches and writes them to the index in
//     separately sized batches.
//   - DeleteDocument removes a document's chunks by metadata filter.
package rag
