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

import "errors"

var (
	// ErrEmbedderRequired is returned when a provider is built without an embedder.
	ErrEmbedderRequired = errors.New("embedder required")

	// ErrGeneratorRequired is returned when a provider is built without a generator.
	ErrGeneratorRequired = errors.New("generator required")
)

// compositeProvider pairs an embedder and a generator that may come from
// different backends, such as OpenAI embeddings with Anthropic generation.
type compositeProvider struct {
	embedder  Embedder
	generator Generator
	closers   []func() error
}

// NewProvider combines an embedder and a generator into an AIProvider.
// closers run in order on Close.
func NewProvider(embedder Embedder, generator Generator, closers ...func() error) (AIProvider, error) {
	if embedder == nil {
		return nil, ErrEmbedderRequired
	}
	if generator == nil {
		return nil, ErrGeneratorRequired
	}
	return &compositeProvider{
		embedder:  embedder,
		generator: generator,
		closers:   closers,
	}, nil
}

func (p *compositeProvider) Embedder() Embedder {
	return p.embedder
}

func (p *compositeProvider) Generator() Generator {
	return p.generator
}

func (p *compositeProvider) Close() error {
	var errs []error
	for _, c := range p.closers {
		if err := c(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
