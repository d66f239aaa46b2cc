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

// Package anthropic provides an ai.Generator backed by Anthropic's Messages
// API through langchaingo.
//
//	gen, err := anthropic.NewGenerator(ai.NewConfig(
//	    ai.WithGeneratorToken(os.Getenv("ANTHROPIC_API_KEY")),
//	))
package anthropic

import (
	"fmt"
	"log/slog"

	"github.com/poiesic/marginalia/ai"
	"github.com/poiesic/marginalia/ai/llm"
	"github.com/poiesic/marginalia/core"
	"github.com/tmc/langchaingo/llms/anthropic"
)

// NewGenerator creates an Anthropic chat generator.
// The config must select the anthropic backend.
func NewGenerator(config *ai.Config) (ai.Generator, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	if config.Generator != ai.GeneratorAnthropic {
		return nil, fmt.Errorf("%w: generator %q is not anthropic", core.ErrConfiguration, config.Generator)
	}

	opts := []anthropic.Option{
		anthropic.WithToken(config.GeneratorToken),
		anthropic.WithModel(config.GeneratorModel),
	}
	if config.GeneratorHost != "" {
		opts = append(opts, anthropic.WithBaseURL(config.GeneratorHost))
	}

	client, err := anthropic.New(opts...)
	if err != nil {
		return nil, err
	}

	return llm.New(client, config.GeneratorModel,
		llm.WithLogger(slog.Default().With("backend", "anthropic"))), nil
}
