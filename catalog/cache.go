package catalog

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/patrickmn/go-cache"
	"github.com/warp/tourguide/engine"
	"go.uber.org/zap"
)

const attractionsCacheKey = "attractions"

// CachedProvider caches the catalog of an upstream provider. User locations
// always go upstream.
type CachedProvider struct {
	upstream engine.LocationProvider
	cache    *cache.Cache
	logger   *zap.Logger
}

// NewCachedProvider caches upstream's catalog for ttl. ttl <= 0 caches forever.
func NewCachedProvider(upstream engine.LocationProvider, ttl time.Duration, logger *zap.Logger) *CachedProvider {
	if logger == nil {
		logger = zap.NewNop()
	}
	if ttl <= 0 {
		ttl = cache.NoExpiration
	}
	return &CachedProvider{
		upstream: upstream,
		cache:    cache.New(ttl, 2*ttl),
		logger:   logger,
	}
}

// Attractions returns the cached catalog, fetching it on a miss. Failed
// fetches are not cached.
func (p *CachedProvider) Attractions(ctx context.Context) ([]engine.Attraction, error) {
	if cached, found := p.cache.Get(attractionsCacheKey); found {
		if attractions, ok := cached.([]engine.Attraction); ok {
			return attractions, nil
		}
	}

	attractions, err := p.upstream.Attractions(ctx)
	if err != nil {
		return nil, err
	}
	p.cache.Set(attractionsCacheKey, attractions, cache.DefaultExpiration)
	p.logger.Debug("attraction catalog cached", zap.Int("count", len(attractions)))
	return attractions, nil
}

func (p *CachedProvider) UserLocation(ctx context.Context, userID uuid.UUID) (engine.VisitedLocation, error) {
	return p.upstream.UserLocation(ctx, userID)
}

// Invalidate drops the cached catalog.
func (p *CachedProvider) Invalidate() {
	p.cache.Delete(attractionsCacheKey)
}
