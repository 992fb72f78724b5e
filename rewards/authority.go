/*
Package rewards provides reward point authorities.

PURPOSE:
  The engine treats the reward point authority as an opaque, possibly
  slow oracle: given an attraction and a user it answers with an integer
  point value or fails. This package provides the simulated authority
  used by the server and by load tests.

SIMULATED AUTHORITY:
  - Points are in [MinPoints, MaxPoints] and stable per (attraction, user)
    pair, so repeated lookups agree
  - Optional latency, with random jitter on top, to model a remote call
  - Optional failure rate, returning engine.ErrAuthorityUnavailable
  - Honours context cancellation while waiting

EXAMPLE:
  authority := rewards.NewSimulatedAuthority(
      rewards.WithLatency(100*time.Millisecond, 900*time.Millisecond),
  )
  points, err := authority.Points(ctx, attraction.ID, user.ID)

SEE ALSO:
  - engine/provider.go: PointAuthority interface
*/
package rewards

import (
	"context"
	"encoding/binary"
	"math/rand"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/warp/tourguide/engine"
)

// =============================================================================
// POINT RANGE
// =============================================================================

const (
	MinPoints = 1
	MaxPoints = 1000
)

// =============================================================================
// SIMULATED AUTHORITY
// =============================================================================

// SimulatedAuthority implements engine.PointAuthority without a remote service.
type SimulatedAuthority struct {
	latency     time.Duration
	jitter      time.Duration
	failureRate float64

	mu  sync.Mutex
	rng *rand.Rand
}

// Option configures a SimulatedAuthority.
type Option func(*SimulatedAuthority)

// WithLatency adds a fixed delay plus up to jitter of random delay per lookup.
func WithLatency(base, jitter time.Duration) Option {
	return func(a *SimulatedAuthority) {
		a.latency = base
		a.jitter = jitter
	}
}

// WithFailureRate makes a fraction of lookups fail. 0 never fails, 1 always.
func WithFailureRate(rate float64) Option {
	return func(a *SimulatedAuthority) {
		a.failureRate = rate
	}
}

// WithSeed fixes the random source for latency jitter and failures.
func WithSeed(seed int64) Option {
	return func(a *SimulatedAuthority) {
		a.rng = rand.New(rand.NewSource(seed))
	}
}

func NewSimulatedAuthority(opts ...Option) *SimulatedAuthority {
	a := &SimulatedAuthority{rng: rand.New(rand.NewSource(time.Now().UnixNano()))}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Points returns the reward points for the pair.
func (a *SimulatedAuthority) Points(ctx context.Context, attractionID, userID uuid.UUID) (int, error) {
	a.mu.Lock()
	delay := a.latency
	if a.jitter > 0 {
		delay += time.Duration(a.rng.Int63n(int64(a.jitter)))
	}
	fail := a.failureRate > 0 && a.rng.Float64() < a.failureRate
	a.mu.Unlock()

	if delay > 0 {
		timer := time.NewTimer(delay)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			return 0, ctx.Err()
		case <-timer.C:
		}
	} else if err := ctx.Err(); err != nil {
		return 0, err
	}

	if fail {
		return 0, engine.ErrAuthorityUnavailable
	}
	return PairPoints(attractionID, userID), nil
}

// PairPoints is the stable point value the simulated authority assigns to a pair.
func PairPoints(attractionID, userID uuid.UUID) int {
	seed := int64(binary.BigEndian.Uint64(attractionID[:8]) ^
		binary.BigEndian.Uint64(attractionID[8:]) ^
		binary.BigEndian.Uint64(userID[:8]) ^
		binary.BigEndian.Uint64(userID[8:]))
	return MinPoints + rand.New(rand.NewSource(seed)).Intn(MaxPoints-MinPoints+1)
}
