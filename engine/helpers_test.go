package engine_test

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/warp/tourguide/engine"
)

// =============================================================================
// TEST DOUBLES
// =============================================================================

type fakeProvider struct {
	attractions []engine.Attraction
	err         error
	calls       atomic.Int32
}

func (f *fakeProvider) Attractions(context.Context) ([]engine.Attraction, error) {
	f.calls.Add(1)
	if f.err != nil {
		return nil, f.err
	}
	return f.attractions, nil
}

func (f *fakeProvider) UserLocation(_ context.Context, userID uuid.UUID) (engine.VisitedLocation, error) {
	return engine.VisitedLocation{UserID: userID, VisitedAt: time.Now()}, nil
}

// fakeAuthority returns 100 points, or fails for attractions listed in fail.
type fakeAuthority struct {
	mu    sync.Mutex
	fail  map[uuid.UUID]error
	delay time.Duration
	calls int

	// hook, when set, runs inside every Points call before it answers.
	hook func(ctx context.Context)
}

func (f *fakeAuthority) Points(ctx context.Context, attractionID, _ uuid.UUID) (int, error) {
	f.mu.Lock()
	f.calls++
	err := f.fail[attractionID]
	hook := f.hook
	f.mu.Unlock()

	if hook != nil {
		hook(ctx)
	}
	if f.delay > 0 {
		time.Sleep(f.delay)
	}
	if err != nil {
		return 0, err
	}
	return 100, nil
}

func (f *fakeAuthority) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

// =============================================================================
// FIXTURES
// =============================================================================

// testAttractions are spaced 1 degree of longitude apart on the equator,
// about 69 miles, so a visit on one is never within 10 miles of another.
func testAttractions(n int) []engine.Attraction {
	out := make([]engine.Attraction, n)
	for i := range out {
		out[i] = engine.Attraction{
			ID:       uuid.New(),
			Name:     fmt.Sprintf("Attraction %02d", i),
			Location: engine.Coordinate{Latitude: 0, Longitude: float64(i)},
		}
	}
	return out
}

func userVisiting(name string, at ...engine.Attraction) *engine.User {
	u := engine.NewUser(uuid.New(), name)
	for _, a := range at {
		u.AddVisitedLocation(engine.VisitedLocation{UserID: u.ID, Location: a.Location, VisitedAt: time.Now()})
	}
	return u
}

func rewardNames(u *engine.User) map[string]int {
	names := make(map[string]int)
	for _, r := range u.Rewards() {
		names[r.Attraction.Name]++
	}
	return names
}
