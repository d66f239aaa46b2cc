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

// Package llm adapts any langchaingo chat model to ai.Generator.
package llm

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/poiesic/marginalia/ai"
	"github.com/poiesic/marginalia/core"
	"github.com/tmc/langchaingo/llms"
)

// ErrEmptyResponse is returned when the model answers with no choices.
var ErrEmptyResponse = errors.New("model returned no choices")

// Generator implements ai.Generator on top of an llms.Model.
type Generator struct {
	model       llms.Model
	modelName   string
	temperature float64
	logger      *slog.Logger
}

var _ ai.Generator = (*Generator)(nil)

// Option configures a Generator.
type Option func(*Generator)

// WithTemperature sets the sampling temperature. Default is 0.
func WithTemperature(t float64) Option {
	return func(g *Generator) {
		g.temperature = t
	}
}

// WithLogger sets a custom logger.
func WithLogger(logger *slog.Logger) Option {
	return func(g *Generator) {
		if logger == nil {
			logger = slog.Default()
		}
		g.logger = logger
	}
}

// New wraps model. modelName is reported by Model() and in answer metadata.
func New(model llms.Model, modelName string, opts ...Option) *Generator {
	g := &Generator{
		model:     model,
		modelName: modelName,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(g)
	}
	g.logger = g.logger.With("component", "llm-generator", "model", modelName)
	return g
}

// Model returns the configured model identifier.
func (g *Generator) Model() string {
	return g.modelName
}

// Generate sends the turns to the model in a single call.
func (g *Generator) Generate(ctx context.Context, turns []core.ConversationTurn, maxTokens int) (*ai.Completion, error) {
	messages := Messages(turns)
	g.logger.Debug("generating completion", "turns", len(messages), "maxTokens", maxTokens)

	resp, err := g.model.GenerateContent(ctx, messages,
		llms.WithMaxTokens(maxTokens),
		llms.WithTemperature(g.temperature),
	)
	if err != nil {
		g.logger.Error("generation failed", "err", err)
		return nil, fmt.Errorf("generate: %w", err)
	}
	if resp == nil || len(resp.Choices) == 0 {
		return nil, ErrEmptyResponse
	}

	choice := resp.Choices[0]
	in, out := Usage(choice.GenerationInfo)
	return &ai.Completion{
		Text:         choice.Content,
		InputTokens:  in,
		OutputTokens: out,
		StopReason:   choice.StopReason,
	}, nil
}

// Messages converts conversation turns into langchaingo message content.
func Messages(turns []core.ConversationTurn) []llms.MessageContent {
	messages := make([]llms.MessageContent, 0, len(turns))
	for _, turn := range turns {
		role := llms.ChatMessageTypeHuman
		if turn.Role == core.RoleAssistant {
			role = llms.ChatMessageTypeAI
		}
		messages = append(messages, llms.TextParts(role, turn.Content))
	}
	return messages
}

// Usage extracts prompt and completion token counts from generation info.
// OpenAI reports PromptTokens/CompletionTokens, Anthropic reports
// InputTokens/OutputTokens. Missing values are zero.
func Usage(info map[string]any) (input, output int) {
	input = firstInt(info, "InputTokens", "PromptTokens", "input_tokens", "prompt_tokens")
	output = firstInt(info, "OutputTokens", "CompletionTokens", "output_tokens", "completion_tokens")
	return input, output
}

func firstInt(info map[string]any, keys ...string) int {
	for _, k := range keys {
		v, ok := info[k]
		if !ok {
			continue
		}
		switch n := v.(type) {
		case int:
			return n
		case int32:
			return int(n)
		case int64:
			return int(n)
		case float64:
			return int(n)
		case float32:
			return int(n)
		}
	}
	return 0
}
