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

// Package qdrant implements storage.VectorIndex against a Qdrant server's
// REST API. The collection is created on first upsert with cosine distance.
package qdrant

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/poiesic/marginalia/storage"
)

// idKey holds the caller's vector ID in the payload, since Qdrant point IDs
// must be integers or UUIDs.
const idKey = "_vector_id"

// DefaultTimeout bounds each HTTP request.
const DefaultTimeout = 15 * time.Second

// ErrStatus is wrapped by every non-2xx response.
var ErrStatus = errors.New("qdrant request failed")

// Config configures an Index.
type Config struct {
	URL        string
	APIKey     string
	Collection string
	Timeout    time.Duration
}

// Index is a storage.VectorIndex backed by a Qdrant collection.
type Index struct {
	baseURL    string
	apiKey     string
	collection string
	client     *http.Client
	logger     *slog.Logger

	mu  sync.Mutex
	dim int // 0 until the collection is known to exist
}

var _ storage.VectorIndex = (*Index)(nil)

// Option configures an Index.
type Option func(*Index)

// WithHTTPClient replaces the default HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(i *Index) {
		i.client = client
	}
}

// WithLogger sets a custom logger.
func WithLogger(logger *slog.Logger) Option {
	return func(i *Index) {
		if logger == nil {
			logger = slog.Default()
		}
		i.logger = logger
	}
}

// New creates an index for cfg.Collection on the server at cfg.URL.
// No request is made until the first operation.
func New(cfg Config, opts ...Option) (*Index, error) {
	if cfg.URL == "" {
		return nil, errors.New("qdrant: URL required")
	}
	if cfg.Collection == "" {
		return nil, errors.New("qdrant: collection required")
	}
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = DefaultTimeout
	}

	idx := &Index{
		baseURL:    strings.TrimSuffix(cfg.URL, "/"),
		apiKey:     cfg.APIKey,
		collection: cfg.Collection,
		client:     &http.Client{Timeout: timeout},
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(idx)
	}
	idx.logger = idx.logger.With("component", "qdrant", "collection", cfg.Collection)
	return idx, nil
}

// Close is a no-op; the HTTP client holds no exclusive resources.
func (i *Index) Close() error {
	return nil
}

// PointID maps a vector ID to the deterministic UUID used as Qdrant point ID.
func PointID(id string) string {
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte(id)).String()
}

type point struct {
	ID      string          `json:"id"`
	Vector  []float32       `json:"vector"`
	Payload storage.Payload `json:"payload,omitempty"`
}

// Upsert writes vectors to the collection, creating it if needed.
func (i *Index) Upsert(ctx context.Context, vectors []storage.Vector) error {
	if len(vectors) == 0 {
		return nil
	}

	dim := len(vectors[0].Values)
	points := make([]point, len(vectors))
	for n, vec := range vectors {
		if vec.ID == "" {
			return fmt.Errorf("%w: vector without id", storage.ErrInvalidQuery)
		}
		if len(vec.Values) == 0 || len(vec.Values) != dim {
			return fmt.Errorf("%w: %s has %d values, batch has %d",
				storage.ErrDimensionMismatch, vec.ID, len(vec.Values), dim)
		}
		payload := make(storage.Payload, len(vec.Payload)+1)
		for k, v := range vec.Payload {
			payload[k] = v
		}
		payload[idKey] = vec.ID
		points[n] = point{ID: PointID(vec.ID), Vector: vec.Values, Payload: payload}
	}

	if err := i.ensureCollection(ctx, dim); err != nil {
		return err
	}

	body := map[string]any{"points": points}
	_, err := i.do(ctx, http.MethodPut, i.collectionPath("points")+"?wait=true", body, nil)
	return err
}

// Query searches the collection. A missing collection yields no matches.
func (i *Index) Query(ctx context.Context, vector []float32, topK int, filter storage.Filter) ([]storage.Match, error) {
	if topK < 1 {
		return nil, fmt.Errorf("%w: topK must be positive", storage.ErrInvalidQuery)
	}

	req := map[string]any{
		"vector":       vector,
		"limit":        topK,
		"with_payload": true,
	}
	if f := toQdrantFilter(filter); f != nil {
		req["filter"] = f
	}

	var resp struct {
		Result []struct {
			ID      any             `json:"id"`
			Score   float32         `json:"score"`
			Payload storage.Payload `json:"payload"`
		} `json:"result"`
	}
	status, err := i.do(ctx, http.MethodPost, i.collectionPath("points/search"), req, &resp)
	if status == http.StatusNotFound {
		return []storage.Match{}, nil
	}
	if err != nil {
		return nil, err
	}

	matches := make([]storage.Match, 0, len(resp.Result))
	for _, r := range resp.Result {
		id, _ := r.Payload[idKey].(string)
		if id == "" {
			id = fmt.Sprint(r.ID)
		}
		delete(r.Payload, idKey)
		matches = append(matches, storage.Match{ID: id, Score: r.Score, Payload: r.Payload})
	}
	return matches, nil
}

// Delete removes points matching filter. A missing collection is not an error.
func (i *Index) Delete(ctx context.Context, filter storage.Filter) error {
	if len(filter) == 0 {
		return storage.ErrEmptyFilter
	}

	body := map[string]any{"filter": toQdrantFilter(filter)}
	status, err := i.do(ctx, http.MethodPost, i.collectionPath("points/delete")+"?wait=true", body, nil)
	if status == http.StatusNotFound {
		return nil
	}
	return err
}

// ensureCollection creates the collection on first use and checks that its
// vector size equals dim.
func (i *Index) ensureCollection(ctx context.Context, dim int) error {
	i.mu.Lock()
	defer i.mu.Unlock()

	if i.dim == 0 {
		var info struct {
			Result struct {
				Config struct {
					Params struct {
						Vectors struct {
							Size int `json:"size"`
						} `json:"vectors"`
					} `json:"params"`
				} `json:"config"`
			} `json:"result"`
		}
		status, err := i.do(ctx, http.MethodGet, i.collectionPath(""), nil, &info)
		switch {
		case status == http.StatusNotFound:
			i.logger.Info("creating collection", "dimension", dim)
			create := map[string]any{
				"vectors": map[string]any{"size": dim, "distance": "Cosine"},
			}
			if _, err := i.do(ctx, http.MethodPut, i.collectionPath(""), create, nil); err != nil {
				return err
			}
			i.dim = dim
		case err != nil:
			return err
		default:
			i.dim = info.Result.Config.Params.Vectors.Size
		}
	}

	if i.dim != 0 && i.dim != dim {
		return fmt.Errorf("%w: vectors have %d values, collection has %d",
			storage.ErrDimensionMismatch, dim, i.dim)
	}
	return nil
}

func (i *Index) collectionPath(suffix string) string {
	p := i.baseURL + "/collections/" + url.PathEscape(i.collection)
	if suffix != "" {
		p += "/" + suffix
	}
	return p
}

// do sends a JSON request and decodes a JSON response into out.
// The HTTP status is returned even when err is non-nil.
func (i *Index) do(ctx context.Context, method, target string, body, out any) (int, error) {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return 0, err
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, target, reader)
	if err != nil {
		return 0, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if i.apiKey != "" {
		req.Header.Set("api-key", i.apiKey)
	}

	resp, err := i.client.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return resp.StatusCode, fmt.Errorf("%w: %s %s: %s: %s",
			ErrStatus, method, target, resp.Status, strings.TrimSpace(string(msg)))
	}
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return resp.StatusCode, fmt.Errorf("%w: %w", storage.ErrSerializationFailed, err)
		}
	}
	return resp.StatusCode, nil
}

// toQdrantFilter converts exact-match conditions into a "must" clause.
// Keys are sorted so requests are reproducible.
func toQdrantFilter(f storage.Filter) map[string]any {
	if len(f) == 0 {
		return nil
	}
	keys := make([]string, 0, len(f))
	for k := range f {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	must := make([]map[string]any, 0, len(keys))
	for _, k := range keys {
		must = append(must, condition(k, f[k]))
	}
	return map[string]any{"must": must}
}

// condition matches key against value. Qdrant compares types strictly, so a
// number or bool also matches its text form, the way chunk metadata strings
// are stored.
func condition(key string, value any) map[string]any {
	text, scalar := storage.FormatScalar(value)
	if !scalar {
		return matchValue(key, value)
	}
	return map[string]any{"should": []map[string]any{
		typedCondition(key, value),
		matchValue(key, text),
	}}
}

// typedCondition matches a number or bool. Match only takes integers, so
// fractional numbers use a closed range.
func typedCondition(key string, value any) map[string]any {
	var f float64
	switch v := value.(type) {
	case float32:
		f = float64(v)
	case float64:
		f = v
	case json.Number:
		if i, err := v.Int64(); err == nil {
			return matchValue(key, i)
		}
		parsed, err := v.Float64()
		if err != nil {
			return matchValue(key, v.String())
		}
		f = parsed
	default:
		return matchValue(key, value)
	}
	if f != math.Trunc(f) {
		return map[string]any{"key": key, "range": map[string]any{"gte": f, "lte": f}}
	}
	return matchValue(key, int64(f))
}

func matchValue(key string, value any) map[string]any {
	return map[string]any{
		"key":   key,
		"match": map[string]any{"value": value},
	}
}
