package retrieval

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"sync"

	"github.com/google/uuid"
)

// VectorAdapter defines the interface for vector similarity search.
type VectorAdapter interface {
	// Search finds the k nearest neighbors to the query vector.
	Search(ctx context.Context, query []float32, k int, filters VectorFilters) ([]VectorResult, error)

	// Insert adds vectors to the index. Existing ids are left untouched.
	Insert(ctx context.Context, vectors []VectorEntry) error

	// Delete removes vectors from the index.
	Delete(ctx context.Context, ids []uuid.UUID) error

	// Count returns the number of vectors matching filters.
	Count(ctx context.Context, filters VectorFilters) (int64, error)

	// Close releases resources.
	Close() error
}

// VectorFilters restricts a search to one dataset version. Empty fields do
// not filter.
type VectorFilters struct {
	SourceID       string
	DatasetVersion string
}

// VectorEntry is one embedded dataset row.
type VectorEntry struct {
	ID             uuid.UUID
	SourceID       string
	DatasetVersion string
	RowIndex       int // 0-based position in Dataset.Rows
	Vector         []float32
}

// VectorResult represents a search result.
type VectorResult struct {
	ID       uuid.UUID
	RowIndex int
	Distance float32
	Score    float32 // 1 - distance for cosine
}

// ErrVectorDimensionMismatch indicates a dimension mismatch.
var ErrVectorDimensionMismatch = errors.New("vector dimension mismatch")

// MemoryVectorAdapter keeps normalized vectors in process and searches them
// by brute-force cosine distance.
type MemoryVectorAdapter struct {
	mu        sync.RWMutex
	dimension int
	vectors   map[uuid.UUID]indexedVector
}

type indexedVector struct {
	entry  VectorEntry
	vector []float32
}

// NewMemoryVectorAdapter creates an in-memory adapter. The dimension is
// fixed by the first inserted vector.
func NewMemoryVectorAdapter() *MemoryVectorAdapter {
	return &MemoryVectorAdapter{vectors: make(map[uuid.UUID]indexedVector)}
}

// Search finds the k nearest neighbors using cosine similarity. A query of
// the wrong dimension finds nothing so callers fall back to lexical results.
func (a *MemoryVectorAdapter) Search(ctx context.Context, query []float32, k int, filters VectorFilters) ([]VectorResult, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()

	if len(query) == 0 || len(query) != a.dimension || k <= 0 {
		return []VectorResult{}, nil
	}

	q := normalizeVector(query)
	results := make([]VectorResult, 0, len(a.vectors))
	for id, iv := range a.vectors {
		if !matchesFilters(iv.entry, filters) {
			continue
		}
		dist := cosineDistance(q, iv.vector)
		results = append(results, VectorResult{
			ID:       id,
			RowIndex: iv.entry.RowIndex,
			Distance: dist,
			Score:    1 - dist,
		})
	}

	// Row index breaks distance ties so results do not depend on map order.
	sort.Slice(results, func(i, j int) bool {
		if results[i].Distance != results[j].Distance {
			return results[i].Distance < results[j].Distance
		}
		return results[i].RowIndex < results[j].RowIndex
	})
	if len(results) > k {
		results = results[:k]
	}
	return results, nil
}

// Insert adds vectors to the index.
func (a *MemoryVectorAdapter) Insert(ctx context.Context, vectors []VectorEntry) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	for _, v := range vectors {
		if len(v.Vector) == 0 {
			continue
		}
		if a.dimension == 0 {
			a.dimension = len(v.Vector)
		}
		if len(v.Vector) != a.dimension {
			return fmt.Errorf("%w: expected %d, got %d for id %s",
				ErrVectorDimensionMismatch, a.dimension, len(v.Vector), v.ID)
		}
		if _, exists := a.vectors[v.ID]; exists {
			continue
		}
		a.vectors[v.ID] = indexedVector{entry: v, vector: normalizeVector(v.Vector)}
	}
	return nil
}

// Delete removes vectors from the index.
func (a *MemoryVectorAdapter) Delete(ctx context.Context, ids []uuid.UUID) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	for _, id := range ids {
		delete(a.vectors, id)
	}
	if len(a.vectors) == 0 {
		a.dimension = 0
	}
	return nil
}

// Count returns the number of vectors matching filters.
func (a *MemoryVectorAdapter) Count(ctx context.Context, filters VectorFilters) (int64, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()

	var n int64
	for _, iv := range a.vectors {
		if matchesFilters(iv.entry, filters) {
			n++
		}
	}
	return n, nil
}

// Close releases resources.
func (a *MemoryVectorAdapter) Close() error {
	return nil
}

func matchesFilters(entry VectorEntry, filters VectorFilters) bool {
	if filters.SourceID != "" && entry.SourceID != filters.SourceID {
		return false
	}
	if filters.DatasetVersion != "" && entry.DatasetVersion != filters.DatasetVersion {
		return false
	}
	return true
}

// cosineDistance computes cosine distance between two normalized vectors.
func cosineDistance(a, b []float32) float32 {
	if len(a) != len(b) {
		return 1.0
	}

	var dot float32
	for i := range a {
		dot += a[i] * b[i]
	}
	// Clamp floating point drift.
	if dot > 1 {
		dot = 1
	} else if dot < -1 {
		dot = -1
	}
	return 1 - dot
}

// normalizeVector returns a unit vector.
func normalizeVector(v []float32) []float32 {
	var norm float64
	for _, x := range v {
		norm += float64(x) * float64(x)
	}
	norm = math.Sqrt(norm)
	if norm == 0 {
		return v
	}

	normalized := make([]float32, len(v))
	for i, x := range v {
		normalized[i] = float32(float64(x) / norm)
	}
	return normalized
}

var _ VectorAdapter = (*MemoryVectorAdapter)(nil)
