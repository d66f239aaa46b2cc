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

package ai

import (
	"fmt"
	"strings"

	"github.com/poiesic/marginalia/core"
)

// Generator backends understood by Config.
const (
	GeneratorAnthropic = "anthropic"
	GeneratorOpenAI    = "openai"
)

// Config holds configuration for AI service providers.
type Config struct {
	// EmbeddingHost is the base URL for the embedding service API.
	// Example: "https://api.openai.com/v1" or "http://localhost:11434/v1"
	EmbeddingHost string

	// EmbeddingModel is the model identifier to use for text embeddings.
	// Example: "text-embedding-3-large", "embeddinggemma"
	EmbeddingModel string

	// EmbeddingToken authenticates against the embedding service.
	// Required for api.openai.com, optional for local servers.
	EmbeddingToken string

	// Generator selects the answer generation backend: "anthropic" or "openai".
	Generator string

	// GeneratorHost overrides the generation API base URL.
	// Empty means the backend's public endpoint.
	GeneratorHost string

	// GeneratorModel is the chat model used to synthesize answers.
	GeneratorModel string

	// GeneratorToken authenticates against the generation service.
	GeneratorToken string

	// MaxTokens bounds the length of a generated answer.
	// Default: 4000
	MaxTokens int
}

// ConfigOption is a functional option for configuring a Config.
type ConfigOption func(*Config)

// WithEmbeddingHost sets the embedding service host URL.
func WithEmbeddingHost(host string) ConfigOption {
	return func(c *Config) {
		c.EmbeddingHost = host
	}
}

// WithEmbeddingModel sets the embedding model identifier.
func WithEmbeddingModel(model string) ConfigOption {
	return func(c *Config) {
		c.EmbeddingModel = model
	}
}

// WithEmbeddingToken sets the embedding API key.
func WithEmbeddingToken(token string) ConfigOption {
	return func(c *Config) {
		c.EmbeddingToken = token
	}
}

// WithGenerator selects the generation backend.
func WithGenerator(name string) ConfigOption {
	return func(c *Config) {
		c.Generator = name
	}
}

// WithGeneratorHost sets the generation service host URL.
func WithGeneratorHost(host string) ConfigOption {
	return func(c *Config) {
		c.GeneratorHost = host
	}
}

// WithGeneratorModel sets the generation model identifier.
func WithGeneratorModel(model string) ConfigOption {
	return func(c *Config) {
		c.GeneratorModel = model
	}
}

// WithGeneratorToken sets the generation API key.
func WithGeneratorToken(token string) ConfigOption {
	return func(c *Config) {
		c.GeneratorToken = token
	}
}

// WithMaxTokens sets the answer length limit.
func WithMaxTokens(n int) ConfigOption {
	return func(c *Config) {
		c.MaxTokens = n
	}
}

// DefaultConfig returns a Config targeting OpenAI embeddings and Anthropic generation.
// Tokens are left empty and must be supplied before Validate succeeds.
func DefaultConfig() *Config {
	return &Config{
		EmbeddingHost:  "https://api.openai.com/v1",
		EmbeddingModel: "text-embedding-3-large",
		Generator:      GeneratorAnthropic,
		GeneratorModel: "claude-sonnet-4-20250514",
		MaxTokens:      4000,
	}
}

// NewConfig creates a Config with the default values and applies the provided options.
//
// Example:
//
//	cfg := NewConfig(
//	    WithEmbeddingToken(os.Getenv("OPENAI_API_KEY")),
//	    WithGeneratorToken(os.Getenv("ANTHROPIC_API_KEY")),
//	)
//
// Example with a local OpenAI-compatible server for both roles:
//
//	cfg := NewConfig(
//	    WithEmbeddingHost("http://localhost:11434"),
//	    WithEmbeddingModel("embeddinggemma"),
//	    WithGenerator(GeneratorOpenAI),
//	    WithGeneratorHost("http://localhost:11434"),
//	    WithGeneratorModel("qwen2.5:7b"),
//	)
func NewConfig(opts ...ConfigOption) *Config {
	cfg := DefaultConfig()
	for _, opt := range opts {
		opt(cfg)
	}
	return cfg
}

// Normalize ensures the configuration is in a canonical form.
// OpenAI-compatible hosts get a /v1 suffix when missing.
func (c *Config) Normalize() {
	c.EmbeddingHost = withV1(c.EmbeddingHost)
	c.Generator = strings.ToLower(strings.TrimSpace(c.Generator))
	if c.Generator == GeneratorOpenAI {
		c.GeneratorHost = withV1(c.GeneratorHost)
	}
}

func withV1(host string) string {
	if host == "" || strings.HasSuffix(host, "/v1") {
		return host
	}
	return strings.TrimSuffix(host, "/") + "/v1"
}

// RequiresEmbeddingToken reports whether the embedding host is the public
// OpenAI API, which rejects unauthenticated calls.
func (c *Config) RequiresEmbeddingToken() bool {
	return strings.Contains(c.EmbeddingHost, "api.openai.com")
}

// Validate checks that the configuration is valid and complete.
// It automatically normalizes the configuration before validation.
// Every failure wraps core.ErrConfiguration.
func (c *Config) Validate() error {
	c.Normalize()

	if c.EmbeddingHost == "" {
		return configError("EmbeddingHost is required")
	}
	if c.EmbeddingModel == "" {
		return configError("EmbeddingModel is required")
	}
	if c.RequiresEmbeddingToken() && c.EmbeddingToken == "" {
		return configError("EmbeddingToken is required for " + c.EmbeddingHost)
	}
	if c.GeneratorModel == "" {
		return configError("GeneratorModel is required")
	}
	switch c.Generator {
	case GeneratorAnthropic:
		if c.GeneratorToken == "" {
			return configError("GeneratorToken is required for anthropic")
		}
	case GeneratorOpenAI:
		if c.GeneratorHost == "" && c.GeneratorToken == "" {
			return configError("GeneratorToken is required for the public OpenAI API")
		}
	default:
		return configError(fmt.Sprintf("unknown Generator %q", c.Generator))
	}
	if c.MaxTokens < 1 {
		return configError("MaxTokens must be positive")
	}
	return nil
}

func configError(msg string) error {
	return fmt.Errorf("%w: ai config: %s", core.ErrConfiguration, msg)
}
