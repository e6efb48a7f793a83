package transit

import (
	"context"
	"errors"
	"time"

	"github.com/bluele/gcache"
	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"
)

// ServiceConfig holds configuration for the transit service.
type ServiceConfig struct {
	// Provider is the live arrival provider.
	Provider ArrivalProvider

	// Logger for service operations.
	Logger zerolog.Logger

	// CacheTTL is how long fetched arrivals are served without refetching (default: 30 seconds).
	CacheTTL time.Duration

	// StaleIfErrorTTL allows serving stale arrivals on provider errors (default: 5 minutes).
	StaleIfErrorTTL time.Duration

	// CacheSize is the maximum number of stations kept in the LRU cache (default: 1024).
	CacheSize int

	// Clock overrides the cache clock. Defaults to the real clock.
	Clock gcache.Clock
}

// Service provides live arrivals with caching. It implements ArrivalProvider.
type Service struct {
	provider        ArrivalProvider
	logger          zerolog.Logger
	cacheTTL        time.Duration
	staleIfErrorTTL time.Duration
	clock           gcache.Clock

	cache gcache.Cache
	group singleflight.Group
}

type cachedArrivals struct {
	arrivals  []Arrival
	fetchedAt time.Time
}

// NewService creates a new transit service.
func NewService(cfg ServiceConfig) *Service {
	cacheTTL := cfg.CacheTTL
	if cacheTTL == 0 {
		cacheTTL = 30 * time.Second
	}

	staleIfErrorTTL := cfg.StaleIfErrorTTL
	if staleIfErrorTTL == 0 {
		staleIfErrorTTL = 5 * time.Minute
	}
	if staleIfErrorTTL < cacheTTL {
		staleIfErrorTTL = cacheTTL
	}

	size := cfg.CacheSize
	if size <= 0 {
		size = 1024
	}

	clock := cfg.Clock
	if clock == nil {
		clock = gcache.NewRealClock()
	}

	// Entries live for the stale window; freshness is decided against cacheTTL on read.
	cache := gcache.New(size).
		LRU().
		Expiration(staleIfErrorTTL).
		Clock(clock).
		Build()

	return &Service{
		provider:        cfg.Provider,
		logger:          cfg.Logger,
		cacheTTL:        cacheTTL,
		staleIfErrorTTL: staleIfErrorTTL,
		clock:           clock,
		cache:           cache,
	}
}

// Name returns the underlying provider name.
func (s *Service) Name() string {
	return s.provider.Name()
}

// GetArrivals returns live arrivals for a station, served from cache when fresh.
// Cached arrival seconds are aged by the time elapsed since the fetch.
func (s *Service) GetArrivals(ctx context.Context, station string) ([]Arrival, error) {
	key := StripStationSuffix(station)

	if entry, ok := s.lookup(key); ok && s.clock.Now().Sub(entry.fetchedAt) < s.cacheTTL {
		return s.aged(entry), nil
	}

	// The shared fetch outlives any single caller; each caller waits on its own ctx.
	fetchCtx := context.WithoutCancel(ctx)
	ch := s.group.DoChan(key, func() (interface{}, error) {
		return s.fetch(fetchCtx, key)
	})

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return s.aged(res.Val.(*cachedArrivals)), nil
	}
}

func (s *Service) fetch(ctx context.Context, station string) (*cachedArrivals, error) {
	// Double-check cache
	if entry, ok := s.lookup(station); ok && s.clock.Now().Sub(entry.fetchedAt) < s.cacheTTL {
		return entry, nil
	}

	s.logger.Debug().
		Str("provider", s.provider.Name()).
		Str("station", station).
		Msg("fetching arrivals from provider")

	arrivals, err := s.provider.GetArrivals(ctx, station)
	if err != nil {
		s.logger.Error().Err(err).
			Str("station", station).
			Msg("failed to fetch arrivals")

		// Entries still present in the cache are within the stale window.
		if entry, ok := s.lookup(station); ok {
			s.logger.Warn().
				Time("fetched_at", entry.fetchedAt).
				Str("station", station).
				Msg("serving stale arrival data due to provider error")
			return entry, nil
		}

		return nil, errors.Join(ErrProviderUnavailable, err)
	}

	entry := &cachedArrivals{
		arrivals:  arrivals,
		fetchedAt: s.clock.Now(),
	}
	if err := s.cache.Set(station, entry); err != nil {
		s.logger.Warn().Err(err).Str("station", station).Msg("failed to cache arrivals")
	}

	return entry, nil
}

func (s *Service) lookup(station string) (*cachedArrivals, bool) {
	v, err := s.cache.Get(station)
	if err != nil {
		return nil, false
	}
	entry, ok := v.(*cachedArrivals)
	return entry, ok
}

// aged returns a copy of the cached arrivals with elapsed time subtracted.
func (s *Service) aged(entry *cachedArrivals) []Arrival {
	elapsed := int(s.clock.Now().Sub(entry.fetchedAt) / time.Second)

	out := make([]Arrival, len(entry.arrivals))
	for i, a := range entry.arrivals {
		a.ArrivalSeconds -= elapsed
		if a.ArrivalSeconds < 0 {
			a.ArrivalSeconds = 0
		}
		out[i] = a
	}
	return out
}

// InvalidateCache clears all cached arrivals.
func (s *Service) InvalidateCache() {
	s.cache.Purge()
}

// CacheStats returns cache statistics.
func (s *Service) CacheStats() CacheStats {
	return CacheStats{
		Provider:     s.provider.Name(),
		Entries:      s.cache.Len(true),
		HitCount:     s.cache.HitCount(),
		MissCount:    s.cache.MissCount(),
		HitRate:      s.cache.HitRate(),
		CacheTTL:     s.cacheTTL,
		StaleIfError: s.staleIfErrorTTL,
	}
}

// CacheStats contains cache statistics.
type CacheStats struct {
	Provider     string
	Entries      int
	HitCount     uint64
	MissCount    uint64
	HitRate      float64
	CacheTTL     time.Duration
	StaleIfError time.Duration
}

// Ensure Service implements ArrivalProvider.
var _ ArrivalProvider = (*Service)(nil)
