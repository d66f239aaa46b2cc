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

package openai

import (
	"log/slog"

	"github.com/poiesic/marginalia/ai"
	"github.com/poiesic/marginalia/ai/llm"
	"github.com/tmc/langchaingo/llms/openai"
)

// newGenerator builds a chat generator for an OpenAI-compatible endpoint.
func newGenerator(config *ai.Config) (*llm.Generator, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	opts := []openai.Option{
		openai.WithToken(tokenOrNone(config.GeneratorToken)),
		openai.WithModel(config.GeneratorModel),
	}
	if config.GeneratorHost != "" {
		opts = append(opts, openai.WithBaseURL(config.GeneratorHost))
	}

	client, err := openai.New(opts...)
	if err != nil {
		return nil, err
	}

	return llm.New(client, config.GeneratorModel,
		llm.WithLogger(slog.Default().With("backend", "openai"))), nil
}

// NewGenerator creates a chat generator using the provided configuration.
func NewGenerator(config *ai.Config) (ai.Generator, error) {
	return newGenerator(config)
}
