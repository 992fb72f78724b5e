package catalog

import (
	"context"
	"math"
	"math/rand"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/warp/tourguide/engine"
)

// =============================================================================
// STATIC PROVIDER
// =============================================================================

// Web Mercator latitude limit used for simulated positions.
const maxSimulatedLatitude = 85.05112878

// StaticProvider serves a fixed catalog and simulates user positions.
type StaticProvider struct {
	attractions []engine.Attraction

	mu  sync.Mutex
	rng *rand.Rand
	now func() time.Time
}

// NewStaticProvider returns a provider over a copy of attractions.
func NewStaticProvider(attractions []engine.Attraction) *StaticProvider {
	own := make([]engine.Attraction, len(attractions))
	copy(own, attractions)
	return &StaticProvider{
		attractions: own,
		rng:         rand.New(rand.NewSource(time.Now().UnixNano())),
		now:         time.Now,
	}
}

// WithSeed makes simulated positions reproducible.
func (p *StaticProvider) WithSeed(seed int64) *StaticProvider {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.rng = rand.New(rand.NewSource(seed))
	return p
}

// Attractions returns a copy of the catalog.
func (p *StaticProvider) Attractions(ctx context.Context) ([]engine.Attraction, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	out := make([]engine.Attraction, len(p.attractions))
	copy(out, p.attractions)
	return out, nil
}

// UserLocation reports a random position for the user, rounded to 6 decimals.
func (p *StaticProvider) UserLocation(ctx context.Context, userID uuid.UUID) (engine.VisitedLocation, error) {
	if err := ctx.Err(); err != nil {
		return engine.VisitedLocation{}, err
	}
	return engine.VisitedLocation{
		UserID:    userID,
		Location:  p.RandomCoordinate(),
		VisitedAt: p.now().UTC(),
	}, nil
}

// RandomCoordinate returns a uniformly random coordinate.
func (p *StaticProvider) RandomCoordinate() engine.Coordinate {
	p.mu.Lock()
	lat := -maxSimulatedLatitude + p.rng.Float64()*2*maxSimulatedLatitude
	lon := -180 + p.rng.Float64()*360
	p.mu.Unlock()

	return engine.Coordinate{Latitude: round6(lat), Longitude: round6(lon)}
}

func round6(v float64) float64 {
	return math.Round(v*1e6) / 1e6
}
