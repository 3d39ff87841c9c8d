package retrieval

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"

	"github.com/spherical-ai/spherical/libs/sheet-assistant/internal/dataset"
	"github.com/spherical-ai/spherical/libs/sheet-assistant/internal/embedding"
	"github.com/spherical-ai/spherical/libs/sheet-assistant/internal/observability"
)

// rowNamespace seeds deterministic row vector ids.
var rowNamespace = uuid.MustParse("6f1c2a8e-5d0b-4f6a-9d3e-2b7c4a1e9f05")

// SemanticIndex embeds dataset rows into a VectorAdapter and answers
// nearest-row queries. Each dataset version is indexed once.
type SemanticIndex struct {
	logger    *observability.Logger
	embedder  embedding.Embedder
	vectors   VectorAdapter
	batchSize int

	group   singleflight.Group
	mu      sync.Mutex
	indexed map[string]bool
}

// NewSemanticIndex creates a semantic index over vectors.
func NewSemanticIndex(logger *observability.Logger, embedder embedding.Embedder, vectors VectorAdapter, batchSize int) *SemanticIndex {
	if batchSize <= 0 {
		batchSize = 64
	}
	return &SemanticIndex{
		logger:    observability.OrNop(logger).WithOperation("semantic_index"),
		embedder:  embedder,
		vectors:   vectors,
		batchSize: batchSize,
		indexed:   make(map[string]bool),
	}
}

// RowText renders a row as "column: value | ..." for embedding.
func RowText(ds *dataset.Dataset, i int) string {
	row := ds.Rows[i]
	parts := make([]string, 0, len(row))
	for col, cell := range row {
		cell = strings.TrimSpace(cell)
		if cell == "" {
			continue
		}
		parts = append(parts, ds.ColumnName(col)+": "+cell)
	}
	return strings.Join(parts, " | ")
}

// RowID is the vector id of row i of a dataset version.
func RowID(sourceID, version string, i int) uuid.UUID {
	return uuid.NewSHA1(rowNamespace, []byte(fmt.Sprintf("%s\x00%s\x00%d", sourceID, version, i)))
}

// Index embeds every row of ds that the adapter does not hold yet. progress,
// when set, receives the number of rows embedded so far and the total.
// Concurrent calls for the same snapshot share one indexing run.
func (s *SemanticIndex) Index(ctx context.Context, ds *dataset.Dataset, progress func(done, total int)) error {
	return s.ensureIndexed(ctx, ds, ds.Fingerprint(), progress)
}

func (s *SemanticIndex) ensureIndexed(ctx context.Context, ds *dataset.Dataset, version string, progress func(done, total int)) error {
	key := ds.SourceID + "@" + version
	if s.isIndexed(key) {
		return nil
	}

	_, err, _ := s.group.Do(key, func() (interface{}, error) {
		if s.isIndexed(key) {
			return nil, nil
		}
		if err := s.index(ctx, ds, version, progress); err != nil {
			return nil, err
		}
		s.mu.Lock()
		s.indexed[key] = true
		s.mu.Unlock()
		return nil, nil
	})
	return err
}

func (s *SemanticIndex) isIndexed(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.indexed[key]
}

func (s *SemanticIndex) index(ctx context.Context, ds *dataset.Dataset, version string, progress func(done, total int)) error {
	filters := VectorFilters{SourceID: ds.SourceID, DatasetVersion: version}
	have, err := s.vectors.Count(ctx, filters)
	if err != nil {
		return fmt.Errorf("count vectors: %w", err)
	}
	if have >= int64(ds.Len()) {
		return nil
	}

	texts := make([]string, ds.Len())
	for i := range ds.Rows {
		texts[i] = RowText(ds, i)
	}

	total := len(texts)
	vecs, err := embedding.EmbedBatch(ctx, s.embedder, texts, s.batchSize, func(done int) {
		if progress != nil {
			progress(done, total)
		}
	})
	if err != nil {
		return fmt.Errorf("embed rows: %w", err)
	}

	entries := make([]VectorEntry, len(vecs))
	for i, v := range vecs {
		entries[i] = VectorEntry{
			ID:             RowID(ds.SourceID, version, i),
			SourceID:       ds.SourceID,
			DatasetVersion: version,
			RowIndex:       i,
			Vector:         v,
		}
	}
	if err := s.vectors.Insert(ctx, entries); err != nil {
		return fmt.Errorf("insert vectors: %w", err)
	}

	s.logger.Info().
		Str("source_id", ds.SourceID).
		Str("version", version).
		Int("rows", total).
		Str("model", s.embedder.Model()).
		Msg("Dataset rows indexed")
	return nil
}

// SearchRows indexes ds if needed and returns the rows nearest to query.
func (s *SemanticIndex) SearchRows(ctx context.Context, ds *dataset.Dataset, query string, k int) ([]RowHit, error) {
	version := ds.Fingerprint()
	if err := s.ensureIndexed(ctx, ds, version, nil); err != nil {
		return nil, err
	}

	qv, err := s.embedder.EmbedSingle(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}

	results, err := s.vectors.Search(ctx, qv, k, VectorFilters{
		SourceID:       ds.SourceID,
		DatasetVersion: version,
	})
	if err != nil {
		return nil, fmt.Errorf("vector search: %w", err)
	}

	hits := make([]RowHit, 0, len(results))
	for _, r := range results {
		hits = append(hits, RowHit{Row: r.RowIndex, Score: float64(r.Score)})
	}
	return hits, nil
}

var _ RowSearcher = (*SemanticIndex)(nil)
