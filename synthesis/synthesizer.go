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

// Package synthesis turns retrieved documents and a question into a cited
// answer with a single generator call.
package synthesis

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/poiesic/marginalia/ai"
	"github.com/poiesic/marginalia/core"
)

// DefaultMaxTokens bounds the generated answer.
const DefaultMaxTokens = 4000

// Metadata describes one generation call.
type Metadata struct {
	Model        string
	InputTokens  int
	OutputTokens int
	TotalTokens  int
	LatencyMs    float64
	StopReason   string
}

// Synthesizer builds prompts and asks the generator for an answer.
type Synthesizer struct {
	generator ai.Generator
	maxTokens int
	logger    *slog.Logger
}

// Option configures a Synthesizer.
type Option func(*Synthesizer) error

// WithMaxTokens sets the reply token limit.
// Default is DefaultMaxTokens.
func WithMaxTokens(maxTokens int) Option {
	return func(s *Synthesizer) error {
		if maxTokens < 1 {
			return fmt.Errorf("%w: max tokens must be positive, got %d", core.ErrConfiguration, maxTokens)
		}
		s.maxTokens = maxTokens
		return nil
	}
}

// WithLogger sets a custom logger.
// Default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(s *Synthesizer) error {
		if logger == nil {
			logger = slog.Default()
		}
		s.logger = logger
		return nil
	}
}

// NewSynthesizer creates a synthesizer answering with generator.
func NewSynthesizer(generator ai.Generator, opts ...Option) (*Synthesizer, error) {
	if generator == nil {
		return nil, ErrGeneratorRequired
	}

	s := &Synthesizer{
		generator: generator,
		maxTokens: DefaultMaxTokens,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		if err := opt(s); err != nil {
			return nil, err
		}
	}
	s.logger = s.logger.With("component", "synthesizer")
	return s, nil
}

// Model names the generator's model.
func (s *Synthesizer) Model() string {
	return s.generator.Model()
}

// Synthesize answers query from docs. History turns are sent unmodified
// ahead of the prompt. Generator errors are returned wrapped, never retried.
func (s *Synthesizer) Synthesize(
	ctx context.Context,
	query string,
	docs []core.RetrievedDocument,
	history []core.ConversationTurn,
) (string, *Metadata, error) {
	turns := make([]core.ConversationTurn, 0, len(history)+1)
	turns = append(turns, history...)
	turns = append(turns, core.ConversationTurn{
		Role:    core.RoleUser,
		Content: BuildUserPrompt(query, docs),
	})

	start := time.Now()
	completion, err := s.generator.Generate(ctx, turns, s.maxTokens)
	latency := time.Since(start)
	if err != nil {
		s.logger.Error("error generating answer", "model", s.generator.Model(), "err", err)
		return "", nil, fmt.Errorf("synthesize: %w", err)
	}
	if completion == nil {
		return "", nil, ErrNilCompletion
	}

	meta := &Metadata{
		Model:        s.generator.Model(),
		InputTokens:  completion.InputTokens,
		OutputTokens: completion.OutputTokens,
		TotalTokens:  completion.InputTokens + completion.OutputTokens,
		LatencyMs:    float64(latency.Microseconds()) / 1000,
		StopReason:   completion.StopReason,
	}
	s.logger.Debug("answer generated",
		"documents", len(docs),
		"historyTurns", len(history),
		"tokens", meta.TotalTokens,
		"latencyMs", meta.LatencyMs)
	return completion.Text, meta, nil
}
