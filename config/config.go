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

// Package config loads application settings from YAML.
//
// Missing keys keep their defaults. API keys are never stored in the file;
// the file names the environment variables that hold them.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/poiesic/marginalia/ai"
	"github.com/poiesic/marginalia/core"
	"github.com/poiesic/marginalia/rag"
	"github.com/poiesic/marginalia/tokens"
	"gopkg.in/yaml.v3"
)

// Storage backends.
const (
	BackendBadger = "badger"
	BackendQdrant = "qdrant"
)

// AIConfig configures the embedding and generation services.
type AIConfig struct {
	EmbeddingHost      string `yaml:"embedding_host"`
	EmbeddingModel     string `yaml:"embedding_model"`
	EmbeddingAPIKeyEnv string `yaml:"embedding_api_key_env"`
	Generator          string `yaml:"generator"`
	GeneratorHost      string `yaml:"generator_host"`
	GeneratorModel     string `yaml:"generator_model"`
	GeneratorAPIKeyEnv string `yaml:"generator_api_key_env"`
	MaxTokens          int    `yaml:"max_tokens"`
	TokenizerModel     string `yaml:"tokenizer_model"`
}

// RAGConfig tunes chunking, batching and retrieval.
type RAGConfig struct {
	ChunkSize           int     `yaml:"chunk_size"`
	ChunkOverlap        int     `yaml:"chunk_overlap"`
	SimilarityThreshold float32 `yaml:"similarity_threshold"`
	EmbeddingBatchSize  int     `yaml:"embedding_batch_size"`
	UpsertBatchSize     int     `yaml:"upsert_batch_size"`
	TopK                int     `yaml:"top_k"`
	EmbeddingPacingMs   int     `yaml:"embedding_pacing_ms"`
}

// QdrantConfig contains connection details for a Qdrant server.
type QdrantConfig struct {
	URL         string `yaml:"url"`
	APIKeyEnv   string `yaml:"api_key_env"`
	Collection  string `yaml:"collection"`
	TimeoutSecs int    `yaml:"timeout_secs"`
}

// StorageConfig selects where vectors and the document catalog live.
// The catalog always uses badger at Path; vectors go to Backend.
type StorageConfig struct {
	Backend  string       `yaml:"backend"`
	Path     string       `yaml:"path"`
	InMemory bool         `yaml:"in_memory"`
	Qdrant   QdrantConfig `yaml:"qdrant"`
}

// IngestionConfig configures file ingestion.
type IngestionConfig struct {
	PoolSize    int    `yaml:"pool_size"`
	MaxFileSize int64  `yaml:"max_file_size"`
	IDStrategy  string `yaml:"id_strategy"`
}

// Config is the root application configuration.
type Config struct {
	AI        AIConfig        `yaml:"ai"`
	RAG       RAGConfig       `yaml:"rag"`
	Storage   StorageConfig   `yaml:"storage"`
	Ingestion IngestionConfig `yaml:"ingestion"`
}

// Default returns the configuration used when no file exists.
func Default() *Config {
	aiDefaults := ai.DefaultConfig()
	settings := rag.DefaultSettings()
	return &Config{
		AI: AIConfig{
			EmbeddingHost:      aiDefaults.EmbeddingHost,
			EmbeddingModel:     aiDefaults.EmbeddingModel,
			EmbeddingAPIKeyEnv: "OPENAI_API_KEY",
			Generator:          aiDefaults.Generator,
			GeneratorModel:     aiDefaults.GeneratorModel,
			GeneratorAPIKeyEnv: "ANTHROPIC_API_KEY",
			MaxTokens:          aiDefaults.MaxTokens,
			TokenizerModel:     tokens.DefaultModel,
		},
		RAG: RAGConfig{
			ChunkSize:           settings.ChunkSize,
			ChunkOverlap:        settings.ChunkOverlap,
			SimilarityThreshold: settings.SimilarityThreshold,
			EmbeddingBatchSize:  settings.EmbeddingBatchSize,
			UpsertBatchSize:     settings.UpsertBatchSize,
			TopK:                settings.TopK,
			EmbeddingPacingMs:   int(settings.EmbeddingPacing / time.Millisecond),
		},
		Storage: StorageConfig{
			Backend: BackendBadger,
			Path:    "./marginalia_db",
			Qdrant: QdrantConfig{
				URL:         "http://localhost:6333",
				APIKeyEnv:   "QDRANT_API_KEY",
				Collection:  "documents",
				TimeoutSecs: 15,
			},
		},
		Ingestion: IngestionConfig{
			PoolSize:    2,
			MaxFileSize: 10 * 1024 * 1024,
			IDStrategy:  core.IDStrategyContentHash.String(),
		},
	}
}

// Load reads a config from path. If the file does not exist, returns defaults.
func Load(path string) (*Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return cfg, nil
		}
		return nil, err
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("%w: parse %s: %w", core.ErrConfiguration, path, err)
	}
	return cfg, nil
}

// Save writes the config to path, creating directories as needed.
func Save(path string, cfg *Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

// Validate checks every section. Failures wrap core.ErrConfiguration.
// Credentials are checked later, by AIConfig().Validate().
func (c *Config) Validate() error {
	if err := c.Settings().Validate(); err != nil {
		return err
	}
	if c.AI.TokenizerModel == "" {
		return configError("ai.tokenizer_model is required")
	}

	switch strings.ToLower(c.Storage.Backend) {
	case BackendBadger:
		if c.Storage.Path == "" && !c.Storage.InMemory {
			return configError("storage.path is required unless storage.in_memory is set")
		}
	case BackendQdrant:
		if c.Storage.Path == "" && !c.Storage.InMemory {
			return configError("storage.path is required for the document catalog")
		}
		if c.Storage.Qdrant.URL == "" {
			return configError("storage.qdrant.url is required")
		}
		if c.Storage.Qdrant.Collection == "" {
			return configError("storage.qdrant.collection is required")
		}
	default:
		return configError(fmt.Sprintf("unknown storage.backend %q", c.Storage.Backend))
	}

	if c.Ingestion.PoolSize < 1 {
		return configError("ingestion.pool_size must be positive")
	}
	if c.Ingestion.MaxFileSize < 1 {
		return configError("ingestion.max_file_size must be positive")
	}
	if _, err := c.IDStrategy(); err != nil {
		return err
	}
	return nil
}

// Settings converts the rag section into pipeline settings.
func (c *Config) Settings() rag.Settings {
	return rag.Settings{
		ChunkSize:           c.RAG.ChunkSize,
		ChunkOverlap:        c.RAG.ChunkOverlap,
		SimilarityThreshold: c.RAG.SimilarityThreshold,
		EmbeddingBatchSize:  c.RAG.EmbeddingBatchSize,
		EmbeddingPacing:     time.Duration(c.RAG.EmbeddingPacingMs) * time.Millisecond,
		UpsertBatchSize:     c.RAG.UpsertBatchSize,
		TopK:                c.RAG.TopK,
		MaxTokens:           c.AI.MaxTokens,
	}
}

// AIConfig builds the AI service configuration, reading API keys from the
// environment variables named in the file.
func (c *Config) AIConfig() *ai.Config {
	return ai.NewConfig(
		ai.WithEmbeddingHost(c.AI.EmbeddingHost),
		ai.WithEmbeddingModel(c.AI.EmbeddingModel),
		ai.WithEmbeddingToken(env(c.AI.EmbeddingAPIKeyEnv)),
		ai.WithGenerator(c.AI.Generator),
		ai.WithGeneratorHost(c.AI.GeneratorHost),
		ai.WithGeneratorModel(c.AI.GeneratorModel),
		ai.WithGeneratorToken(env(c.AI.GeneratorAPIKeyEnv)),
		ai.WithMaxTokens(c.AI.MaxTokens),
	)
}

// IDStrategy parses ingestion.id_strategy.
func (c *Config) IDStrategy() (core.IDStrategy, error) {
	return core.ParseIDStrategy(c.Ingestion.IDStrategy)
}

// QdrantAPIKey reads the Qdrant API key from its environment variable.
func (c *Config) QdrantAPIKey() string {
	return env(c.Storage.Qdrant.APIKeyEnv)
}

func env(name string) string {
	if name == "" {
		return ""
	}
	return os.Getenv(name)
}

func configError(msg string) error {
	return fmt.Errorf("%w: config: %s", core.ErrConfiguration, msg)
}
