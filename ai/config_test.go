package ai

import (
	"testing"

	"github.com/poiesic/marginalia/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validConfig() *Config {
	return NewConfig(
		WithEmbeddingToken("sk-embed"),
		WithGeneratorToken("sk-ant"),
	)
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	assert.NotNil(t, cfg)
	assert.Equal(t, "https://api.openai.com/v1", cfg.EmbeddingHost)
	assert.Equal(t, "text-embedding-3-large", cfg.EmbeddingModel)
	assert.Equal(t, GeneratorAnthropic, cfg.Generator)
	assert.Equal(t, 4000, cfg.MaxTokens)
	assert.Empty(t, cfg.EmbeddingToken)
	assert.Empty(t, cfg.GeneratorToken)
}

func TestNewConfig(t *testing.T) {
	t.Run("with no options", func(t *testing.T) {
		cfg := NewConfig()

		assert.Equal(t, DefaultConfig(), cfg)
	})

	t.Run("with custom models", func(t *testing.T) {
		cfg := NewConfig(
			WithEmbeddingModel("text-embedding-3-small"),
			WithGeneratorModel("gpt-4o-mini"),
		)

		assert.Equal(t, "text-embedding-3-small", cfg.EmbeddingModel)
		assert.Equal(t, "gpt-4o-mini", cfg.GeneratorModel)
	})

	t.Run("with local backends", func(t *testing.T) {
		cfg := NewConfig(
			WithEmbeddingHost("http://localhost:11434"),
			WithGenerator(GeneratorOpenAI),
			WithGeneratorHost("http://localhost:11434"),
			WithMaxTokens(512),
		)

		assert.Equal(t, "http://localhost:11434", cfg.EmbeddingHost)
		assert.Equal(t, GeneratorOpenAI, cfg.Generator)
		assert.Equal(t, 512, cfg.MaxTokens)
	})
}

func TestConfigNormalize(t *testing.T) {
	tests := []struct {
		name              string
		embeddingHost     string
		generator         string
		generatorHost     string
		expectedEmbedding string
		expectedGenerator string
	}{
		{
			name:              "already has /v1",
			embeddingHost:     "http://localhost:11434/v1",
			generator:         GeneratorOpenAI,
			generatorHost:     "http://localhost:11434/v1",
			expectedEmbedding: "http://localhost:11434/v1",
			expectedGenerator: "http://localhost:11434/v1",
		},
		{
			name:              "missing /v1",
			embeddingHost:     "http://localhost:11434",
			generator:         GeneratorOpenAI,
			generatorHost:     "http://localhost:11434",
			expectedEmbedding: "http://localhost:11434/v1",
			expectedGenerator: "http://localhost:11434/v1",
		},
		{
			name:              "has trailing slash",
			embeddingHost:     "http://localhost:11434/",
			generator:         GeneratorOpenAI,
			generatorHost:     "http://localhost:11434/",
			expectedEmbedding: "http://localhost:11434/v1",
			expectedGenerator: "http://localhost:11434/v1",
		},
		{
			name:              "anthropic host untouched",
			embeddingHost:     "http://embed:8080",
			generator:         GeneratorAnthropic,
			generatorHost:     "https://proxy.internal/anthropic",
			expectedEmbedding: "http://embed:8080/v1",
			expectedGenerator: "https://proxy.internal/anthropic",
		},
		{
			name:              "empty hosts",
			generator:         GeneratorOpenAI,
			expectedEmbedding: "",
			expectedGenerator: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := &Config{
				EmbeddingHost: tt.embeddingHost,
				Generator:     tt.generator,
				GeneratorHost: tt.generatorHost,
			}

			cfg.Normalize()

			assert.Equal(t, tt.expectedEmbedding, cfg.EmbeddingHost)
			assert.Equal(t, tt.expectedGenerator, cfg.GeneratorHost)
		})
	}
}

func TestConfigValidate(t *testing.T) {
	t.Run("valid config", func(t *testing.T) {
		cfg := validConfig()
		assert.NoError(t, cfg.Validate())
	})

	t.Run("generator name is case insensitive", func(t *testing.T) {
		cfg := validConfig()
		cfg.Generator = " Anthropic "

		require.NoError(t, cfg.Validate())
		assert.Equal(t, GeneratorAnthropic, cfg.Generator)
	})

	tests := []struct {
		name   string
		mutate func(*Config)
		field  string
	}{
		{name: "missing embedding host", mutate: func(c *Config) { c.EmbeddingHost = "" }, field: "EmbeddingHost"},
		{name: "missing embedding model", mutate: func(c *Config) { c.EmbeddingModel = "" }, field: "EmbeddingModel"},
		{name: "missing openai embedding token", mutate: func(c *Config) { c.EmbeddingToken = "" }, field: "EmbeddingToken"},
		{name: "missing generator model", mutate: func(c *Config) { c.GeneratorModel = "" }, field: "GeneratorModel"},
		{name: "missing anthropic token", mutate: func(c *Config) { c.GeneratorToken = "" }, field: "GeneratorToken"},
		{name: "unknown generator", mutate: func(c *Config) { c.Generator = "bard" }, field: "Generator"},
		{name: "zero max tokens", mutate: func(c *Config) { c.MaxTokens = 0 }, field: "MaxTokens"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)

			err := cfg.Validate()
			require.Error(t, err)
			assert.ErrorIs(t, err, core.ErrConfiguration)
			assert.Contains(t, err.Error(), tt.field)
		})
	}

	t.Run("local embedding host needs no token", func(t *testing.T) {
		cfg := validConfig()
		cfg.EmbeddingHost = "http://localhost:11434"
		cfg.EmbeddingToken = ""

		assert.NoError(t, cfg.Validate())
	})

	t.Run("local openai generator needs no token", func(t *testing.T) {
		cfg := validConfig()
		cfg.Generator = GeneratorOpenAI
		cfg.GeneratorHost = "http://localhost:11434"
		cfg.GeneratorToken = ""

		assert.NoError(t, cfg.Validate())
	})
}

func TestNewProvider(t *testing.T) {
	_, err := NewProvider(nil, nil)
	assert.ErrorIs(t, err, ErrEmbedderRequired)
}
