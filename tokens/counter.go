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

// Package tokens counts tokens the way the generation models bill them.
//
// NewCounter prefers a tiktoken encoding. Loading an encoding can require
// downloading its BPE ranks, so when that fails the deterministic Estimator
// is used instead and a warning is logged.
package tokens

import (
	"log/slog"
	"strings"
	"unicode/utf8"

	"github.com/pkoukk/tiktoken-go"
)

// Counter returns the token count of a text. Implementations are
// deterministic and safe for concurrent use.
type Counter interface {
	Count(text string) int
}

// DefaultModel selects the encoding used when no model is configured.
const DefaultModel = "gpt-4"

// Tiktoken counts tokens with a tiktoken BPE encoding.
type Tiktoken struct {
	enc *tiktoken.Tiktoken
}

var _ Counter = (*Tiktoken)(nil)

// NewTiktoken loads the encoding used by model.
func NewTiktoken(model string) (*Tiktoken, error) {
	if model == "" {
		model = DefaultModel
	}
	enc, err := tiktoken.EncodingForModel(model)
	if err != nil {
		// Unknown model names still get the common cl100k encoding.
		enc, err = tiktoken.GetEncoding("cl100k_base")
		if err != nil {
			return nil, err
		}
	}
	return &Tiktoken{enc: enc}, nil
}

// Count returns the number of BPE tokens in text.
func (t *Tiktoken) Count(text string) int {
	if text == "" {
		return 0
	}
	return len(t.enc.Encode(text, nil, nil))
}

// Estimator approximates token counts at one token per four characters.
type Estimator struct{}

var _ Counter = Estimator{}

// Count returns ceil(runes/4), and at least 1 for any non-blank text.
func (Estimator) Count(text string) int {
	if strings.TrimSpace(text) == "" {
		return 0
	}
	n := utf8.RuneCountInString(text)
	return max((n+3)/4, 1)
}

// NewCounter returns a tiktoken counter for model, falling back to the
// Estimator when the encoding cannot be loaded.
func NewCounter(model string, logger *slog.Logger) Counter {
	if logger == nil {
		logger = slog.Default()
	}
	tk, err := NewTiktoken(model)
	if err != nil {
		logger.Warn("tiktoken unavailable, estimating token counts", "model", model, "err", err)
		return Estimator{}
	}
	return tk
}
