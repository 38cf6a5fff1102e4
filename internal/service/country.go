package service

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/atlasgate/atlasgate/internal/cache"
	"github.com/atlasgate/atlasgate/internal/metrics"
	"github.com/atlasgate/atlasgate/internal/model"
	"github.com/atlasgate/atlasgate/internal/repository"
	"github.com/atlasgate/atlasgate/internal/upstream"
)

// CountryService resolves countries by name through the Redis hot tier,
// then the store, then the upstream API. Fetched results are persisted
// with last-write-wins semantics and never expire.
type CountryService struct {
	store   CountryStore
	cache   CountryCache
	fetcher CountryFetcher
	timeout time.Duration
	logger  *slog.Logger
	metrics metrics.Recorder
	now     func() time.Time
}

// NewCountryService creates a new CountryService. hot may be nil, in which
// case only the store is consulted before fetching. A non-positive timeout
// means upstream.DefaultTimeout.
func NewCountryService(store CountryStore, hot CountryCache, fetcher CountryFetcher, timeout time.Duration, logger *slog.Logger, recorder metrics.Recorder) *CountryService {
	if timeout <= 0 {
		timeout = upstream.DefaultTimeout
	}
	if logger == nil {
		logger = slog.Default()
	}
	if recorder == nil {
		recorder = metrics.NewNoop()
	}
	return &CountryService{
		store:   store,
		cache:   hot,
		fetcher: fetcher,
		timeout: timeout,
		logger:  logger.With("component", "country"),
		metrics: recorder,
		now:     utcNow,
	}
}

// WithClock replaces the time source. Used by tests.
func (s *CountryService) WithClock(now func() time.Time) *CountryService {
	s.now = now
	return s
}

// Resolve returns the country matching name, case-insensitively.
// Upstream "no match" yields ErrNotFound; any other upstream failure
// yields ErrUpstreamUnavailable and nothing is stored.
func (s *CountryService) Resolve(ctx context.Context, name string) (*model.Country, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, inputError("country name is required")
	}

	start := time.Now()
	defer func() {
		s.metrics.ObserveLookupDuration(time.Since(start))
	}()

	if c := s.fromHotTier(ctx, name); c != nil {
		s.metrics.IncLookupCacheHit(metrics.TierRedis)
		return c, nil
	}

	c, err := s.store.GetCountryByName(ctx, name)
	switch {
	case err == nil:
		s.metrics.IncLookupCacheHit(metrics.TierStore)
		s.toHotTier(ctx, c)
		return c, nil
	case !errors.Is(err, repository.ErrCountryNotFound):
		return nil, persistenceError("load country", err)
	}

	s.metrics.IncLookupCacheMiss()

	if s.isNegative(ctx, name) {
		return nil, ErrNotFound
	}

	raw, err := s.fetch(ctx, name)
	if err != nil {
		return nil, err
	}

	c = raw.ToCountry(s.now())
	if err := s.store.UpsertCountry(ctx, c); err != nil {
		s.logger.Error("persist fetched country failed",
			slog.String("country", c.Name),
			slog.String("error", err.Error()),
		)
		return nil, persistenceError("upsert country", err)
	}
	s.toHotTier(ctx, c)
	if model.NormalizeCountryName(name) != model.NormalizeCountryName(c.Name) {
		s.aliasInHotTier(ctx, name, c)
	}

	s.logger.Info("country fetched from upstream",
		slog.String("query", name),
		slog.String("country", c.Name),
	)
	return c, nil
}

func (s *CountryService) fetch(ctx context.Context, name string) (*upstream.RawCountry, error) {
	fetchCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	start := time.Now()
	raw, err := s.fetcher.FetchCountry(fetchCtx, name)
	s.metrics.ObserveUpstreamDuration(time.Since(start))

	if err == nil {
		s.metrics.IncUpstreamFetch(metrics.StatusSuccess)
		return raw, nil
	}

	if errors.Is(err, upstream.ErrNotFound) {
		s.metrics.IncUpstreamFetch(metrics.StatusNotFound)
		s.markNegative(ctx, name)
		return nil, ErrNotFound
	}

	s.metrics.IncUpstreamFetch(metrics.StatusUnavailable)
	s.logger.Warn("upstream fetch failed",
		slog.String("query", name),
		slog.String("error", err.Error()),
	)
	return nil, errors.Join(ErrUpstreamUnavailable, err)
}

// The hot tier is best effort; Redis failures fall through to the store.

func (s *CountryService) fromHotTier(ctx context.Context, name string) *model.Country {
	if s.cache == nil {
		return nil
	}
	c, err := s.cache.GetCountry(ctx, name)
	if err != nil {
		if !errors.Is(err, cache.ErrCacheMiss) {
			s.logger.Warn("country cache read failed", slog.String("error", err.Error()))
		}
		return nil
	}
	return c
}

func (s *CountryService) toHotTier(ctx context.Context, c *model.Country) {
	if s.cache == nil {
		return
	}
	if err := s.cache.SetCountry(ctx, c); err != nil {
		s.logger.Warn("country cache write failed",
			slog.String("country", c.Name),
			slog.String("error", err.Error()),
		)
	}
}

// aliasInHotTier keeps a query that differs from the canonical name. The
// store is keyed by canonical name only, so without Redis such queries
// reach the upstream every time.
func (s *CountryService) aliasInHotTier(ctx context.Context, query string, c *model.Country) {
	if s.cache == nil {
		return
	}
	if err := s.cache.SetCountryAlias(ctx, query, c); err != nil {
		s.logger.Warn("country alias cache write failed",
			slog.String("query", query),
			slog.String("error", err.Error()),
		)
	}
}

func (s *CountryService) isNegative(ctx context.Context, name string) bool {
	if s.cache == nil {
		return false
	}
	neg, err := s.cache.IsNegativelyCached(ctx, name)
	if err != nil {
		s.logger.Warn("negative cache read failed", slog.String("error", err.Error()))
		return false
	}
	return neg
}

func (s *CountryService) markNegative(ctx context.Context, name string) {
	if s.cache == nil {
		return
	}
	if err := s.cache.SetNegativeCache(ctx, name); err != nil {
		s.logger.Warn("negative cache write failed", slog.String("error", err.Error()))
	}
}
