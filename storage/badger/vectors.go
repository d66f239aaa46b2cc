package badger

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"slices"
	"strconv"
	"strings"
	"sync"

	"github.com/dgraph-io/badger/v4"
	"github.com/poiesic/marginalia/storage"
)

// vectorRecord is the stored form of a storage.Vector.
type vectorRecord struct {
	ID      string          `json:"id"`
	Values  []float32       `json:"values"`
	Payload storage.Payload `json:"payload,omitempty"`
}

// VectorIndex implements storage.VectorIndex on BadgerDB with an exact
// cosine-similarity scan. It suits corpora that fit a single process.
type VectorIndex struct {
	backend *Backend
	mu      sync.RWMutex
	dim     int // 0 until the first vector is stored
}

var _ storage.VectorIndex = (*VectorIndex)(nil)

// newVectorIndex loads the index dimension, if any, and returns the concrete type.
func newVectorIndex(backend *Backend) (*VectorIndex, error) {
	idx := &VectorIndex{backend: backend}

	err := backend.WithTx(func(tx *badger.Txn) error {
		item, err := tx.Get([]byte(vectorDimKey))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			dim, err := strconv.Atoi(string(val))
			if err != nil {
				return fmt.Errorf("%w: dimension %q", storage.ErrSerializationFailed, val)
			}
			idx.dim = dim
			return nil
		})
	}, false)
	if err != nil {
		return nil, err
	}

	return idx, nil
}

// NewVectorIndex creates a vector index stored in backend.
func NewVectorIndex(backend *Backend) (storage.VectorIndex, error) {
	return newVectorIndex(backend)
}

// Dimension returns the vector length fixed by the first upsert, or 0.
func (v *VectorIndex) Dimension() int {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.dim
}

// Close is a no-op; the backend owns the database.
func (v *VectorIndex) Close() error {
	return nil
}

// Upsert stores vectors, replacing any with the same ID.
// The first vector ever stored fixes the index dimension.
func (v *VectorIndex) Upsert(ctx context.Context, vectors []storage.Vector) error {
	if len(vectors) == 0 {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	v.mu.Lock()
	defer v.mu.Unlock()

	dim := v.dim
	if dim == 0 {
		dim = len(vectors[0].Values)
	}
	for _, vec := range vectors {
		if vec.ID == "" {
			return fmt.Errorf("%w: vector without id", storage.ErrInvalidQuery)
		}
		if len(vec.Values) == 0 || len(vec.Values) != dim {
			return fmt.Errorf("%w: %s has %d values, index has %d",
				storage.ErrDimensionMismatch, vec.ID, len(vec.Values), dim)
		}
	}

	err := v.backend.WithWriteBatch(func(wb *badger.WriteBatch) error {
		if v.dim == 0 {
			if err := wb.Set([]byte(vectorDimKey), []byte(strconv.Itoa(dim))); err != nil {
				return err
			}
		}
		for _, vec := range vectors {
			value, err := json.Marshal(vectorRecord{ID: vec.ID, Values: vec.Values, Payload: vec.Payload})
			if err != nil {
				return fmt.Errorf("%w: %w", storage.ErrSerializationFailed, err)
			}
			if err := wb.Set(makeVectorKey(vec.ID), value); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	v.dim = dim
	return nil
}

// Query scores every stored vector against vector and returns the topK best
// among those matching filter. Ties are broken by ID.
func (v *VectorIndex) Query(ctx context.Context, vector []float32, topK int, filter storage.Filter) ([]storage.Match, error) {
	if topK < 1 {
		return nil, fmt.Errorf("%w: topK must be positive", storage.ErrInvalidQuery)
	}

	v.mu.RLock()
	defer v.mu.RUnlock()

	if v.dim == 0 {
		return []storage.Match{}, nil
	}
	if len(vector) != v.dim {
		return nil, fmt.Errorf("%w: query has %d values, index has %d",
			storage.ErrDimensionMismatch, len(vector), v.dim)
	}

	var matches []storage.Match
	err := v.scan(ctx, func(rec *vectorRecord) error {
		if !filter.Matches(rec.Payload) {
			return nil
		}
		matches = append(matches, storage.Match{
			ID:      rec.ID,
			Score:   cosineSimilarity(vector, rec.Values),
			Payload: rec.Payload,
		})
		return nil
	})
	if err != nil {
		return nil, err
	}

	slices.SortFunc(matches, func(a, b storage.Match) int {
		if a.Score > b.Score {
			return -1
		}
		if a.Score < b.Score {
			return 1
		}
		return strings.Compare(a.ID, b.ID)
	})

	if len(matches) > topK {
		matches = matches[:topK]
	}
	if matches == nil {
		matches = []storage.Match{}
	}
	return matches, nil
}

// Delete removes every vector whose payload matches filter.
func (v *VectorIndex) Delete(ctx context.Context, filter storage.Filter) error {
	if len(filter) == 0 {
		return storage.ErrEmptyFilter
	}

	v.mu.Lock()
	defer v.mu.Unlock()

	var keys [][]byte
	err := v.scan(ctx, func(rec *vectorRecord) error {
		if filter.Matches(rec.Payload) {
			keys = append(keys, makeVectorKey(rec.ID))
		}
		return nil
	})
	if err != nil {
		return err
	}
	if len(keys) == 0 {
		return nil
	}

	v.backend.logger.Debug("deleting vectors", "count", len(keys))
	return v.backend.WithWriteBatch(func(wb *badger.WriteBatch) error {
		for _, key := range keys {
			if err := wb.Delete(key); err != nil {
				return err
			}
		}
		return nil
	})
}

// Count returns the number of stored vectors.
func (v *VectorIndex) Count(ctx context.Context) (int, error) {
	v.mu.RLock()
	defer v.mu.RUnlock()

	n := 0
	err := v.scan(ctx, func(*vectorRecord) error {
		n++
		return nil
	})
	return n, err
}

// scan decodes every stored vector in key order.
func (v *VectorIndex) scan(ctx context.Context, fn func(rec *vectorRecord) error) error {
	return v.backend.WithTx(func(tx *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(vectorPrefix)
		iter := tx.NewIterator(opts)
		defer iter.Close()

		for iter.Rewind(); iter.Valid(); iter.Next() {
			if err := ctx.Err(); err != nil {
				return err
			}

			var rec vectorRecord
			err := iter.Item().Value(func(val []byte) error {
				if err := json.Unmarshal(val, &rec); err != nil {
					return fmt.Errorf("%w: %w", storage.ErrSerializationFailed, err)
				}
				return nil
			})
			if err != nil {
				return err
			}
			if err := fn(&rec); err != nil {
				return err
			}
		}
		return nil
	}, false)
}

// dotProduct calculates the dot product of two vectors.
func dotProduct(a, b []float32) float32 {
	var sum float32
	minLen := len(a)
	if len(b) < minLen {
		minLen = len(b)
	}
	for i := 0; i < minLen; i++ {
		sum += a[i] * b[i]
	}
	return sum
}

// cosineSimilarity returns the cosine of the angle between a and b,
// or 0 when either vector has zero length.
func cosineSimilarity(a, b []float32) float32 {
	na := math.Sqrt(float64(dotProduct(a, a)))
	nb := math.Sqrt(float64(dotProduct(b, b)))
	if na == 0 || nb == 0 {
		return 0
	}
	return float32(float64(dotProduct(a, b)) / (na * nb))
}
