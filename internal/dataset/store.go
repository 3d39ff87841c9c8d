package dataset

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/spherical-ai/spherical/libs/sheet-assistant/internal/cache"
	"github.com/spherical-ai/spherical/libs/sheet-assistant/internal/observability"
)

// StoreConfig holds Store configuration.
type StoreConfig struct {
	SourceID     string
	TTL          time.Duration // freshness window, default 5m
	FetchTimeout time.Duration // default 10s
}

// Store serves the current snapshot of one source. Lookups go to the
// in-process snapshot, then the shared cache, then the source itself.
// Concurrent misses share a single fetch.
type Store struct {
	logger *observability.Logger
	source Source
	shared cache.Client
	cfg    StoreConfig
	now    func() time.Time
	group  singleflight.Group

	mu       sync.RWMutex
	sourceID string
	current  *Dataset
}

// NewStore creates a snapshot store. shared may be nil.
func NewStore(logger *observability.Logger, source Source, shared cache.Client, cfg StoreConfig) *Store {
	if cfg.TTL <= 0 {
		cfg.TTL = 5 * time.Minute
	}
	if cfg.FetchTimeout <= 0 {
		cfg.FetchTimeout = 10 * time.Second
	}

	return &Store{
		logger:   observability.OrNop(logger).WithOperation("dataset_store"),
		source:   source,
		shared:   shared,
		cfg:      cfg,
		now:      time.Now,
		sourceID: cfg.SourceID,
	}
}

// SourceID returns the identifier currently served.
func (s *Store) SourceID() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.sourceID
}

// SetSourceID re-points the store at another source and drops the current snapshot.
func (s *Store) SetSourceID(ctx context.Context, sourceID string) {
	s.mu.Lock()
	previous := s.sourceID
	s.sourceID = sourceID
	s.current = nil
	s.mu.Unlock()

	if previous != sourceID {
		s.logger.Info().Str("from", previous).Str("to", sourceID).Msg("Dataset source changed")
	}
}

// Get returns a snapshot no older than the freshness window. Concurrent
// misses share one fetch, and a caller that gives up does not cancel it for
// the others. Every failure wraps ErrUnavailable.
func (s *Store) Get(ctx context.Context) (*Dataset, error) {
	s.mu.RLock()
	current, sourceID := s.current, s.sourceID
	s.mu.RUnlock()

	if current != nil && current.FreshAt(s.now(), s.cfg.TTL) {
		return current, nil
	}

	// The fetch outlives any single caller; FetchTimeout bounds it.
	fetchCtx := context.WithoutCancel(ctx)
	ch := s.group.DoChan(sourceID, func() (interface{}, error) {
		return s.load(fetchCtx, sourceID)
	})

	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("%w: %w", ErrUnavailable, ctx.Err())
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		if res.Shared {
			s.logger.Debug().Str("source_id", sourceID).Msg("Joined in-flight dataset fetch")
		}
		return res.Val.(*Dataset), nil
	}
}

// Refresh drops every cached copy and fetches again.
func (s *Store) Refresh(ctx context.Context) (*Dataset, error) {
	s.Invalidate(ctx)
	return s.Get(ctx)
}

// Invalidate drops the in-process and shared snapshot.
func (s *Store) Invalidate(ctx context.Context) {
	s.mu.Lock()
	sourceID := s.sourceID
	s.current = nil
	s.mu.Unlock()

	s.group.Forget(sourceID)
	if s.shared != nil {
		if err := s.shared.Delete(ctx, cache.DatasetKey(sourceID)); err != nil {
			s.logger.Warn().Err(err).Str("source_id", sourceID).Msg("Failed to drop shared snapshot")
		}
	}
}

func (s *Store) load(ctx context.Context, sourceID string) (*Dataset, error) {
	if ds := s.loadShared(ctx, sourceID); ds != nil {
		s.install(sourceID, ds)
		return ds, nil
	}

	start := s.now()
	fetchCtx, cancel := context.WithTimeout(ctx, s.cfg.FetchTimeout)
	defer cancel()

	ds, err := s.source.Fetch(fetchCtx, sourceID)
	if err != nil {
		if !errors.Is(err, ErrUnavailable) {
			err = fmt.Errorf("%w: %w", ErrUnavailable, err)
		}
		s.logger.Warn().Err(err).Str("source_id", sourceID).Msg("Dataset fetch failed")
		return nil, err
	}

	s.logger.Info().
		Str("source_id", sourceID).
		Int("rows", ds.Len()).
		Int("columns", ds.Columns()).
		Dur("elapsed", s.now().Sub(start)).
		Msg("Dataset fetched")

	s.install(sourceID, ds)
	s.storeShared(ctx, sourceID, ds)
	return ds, nil
}

func (s *Store) install(sourceID string, ds *Dataset) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.sourceID == sourceID {
		s.current = ds
	}
}

func (s *Store) loadShared(ctx context.Context, sourceID string) *Dataset {
	if s.shared == nil {
		return nil
	}

	data, err := s.shared.Get(ctx, cache.DatasetKey(sourceID))
	if err != nil {
		if !errors.Is(err, cache.ErrCacheMiss) {
			s.logger.Warn().Err(err).Msg("Shared snapshot lookup failed")
		}
		return nil
	}

	var ds Dataset
	if err := json.Unmarshal(data, &ds); err != nil {
		s.logger.Warn().Err(err).Msg("Discarding undecodable shared snapshot")
		return nil
	}
	if !ds.FreshAt(s.now(), s.cfg.TTL) {
		return nil
	}
	ds.seal()
	return &ds
}

func (s *Store) storeShared(ctx context.Context, sourceID string, ds *Dataset) {
	if s.shared == nil {
		return
	}

	data, err := json.Marshal(ds)
	if err != nil {
		s.logger.Warn().Err(err).Msg("Failed to encode snapshot")
		return
	}
	if err := s.shared.Set(ctx, cache.DatasetKey(sourceID), data, s.cfg.TTL); err != nil {
		s.logger.Warn().Err(err).Msg("Failed to share snapshot")
	}
}
