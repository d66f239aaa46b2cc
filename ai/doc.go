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

// Package ai provides abstractions for the model services used by Marginalia.
//
// The retrieval and synthesis code depends only on the interfaces declared
// here, never on a concrete backend.
//
//   - Embedder: turns text into vectors for similarity search
//   - Generator: produces a chat completion from conversation turns
//   - AIProvider: bundles an Embedder and a Generator with a shared lifecycle
//
// # Implementation Packages
//
//   - ai/openai: OpenAI-compatible embeddings and chat via langchaingo
//   - ai/anthropic: Anthropic chat via langchaingo
//   - ai/llm: the langchaingo adapter shared by both chat backends
//   - ai/mock: test doubles with call counting and behavior injection
//
// # Constructor Return Type Pattern
//
// Public constructors (openai.NewEmbedder, anthropic.NewGenerator, ...)
// return interface types. Mock constructors return concrete types so tests
// can inspect call counts and inject behavior.
//
//	embedder, err := openai.NewEmbedder(cfg)        // ai.Embedder
//	generator, err := anthropic.NewGenerator(cfg)   // ai.Generator
//	provider, err := ai.NewProvider(embedder, generator)
//
//	mockGen := mock.NewMockGenerator()              // *mock.MockGenerator
//	mockGen.GenerateFunc = ...
//	count := mockGen.CallCount()
//
// Backend errors are returned wrapped with %w and are never translated, so
// callers can still match them with errors.Is and errors.As.
package ai
