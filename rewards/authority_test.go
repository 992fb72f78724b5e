package rewards_test

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/tourguide/engine"
	"github.com/warp/tourguide/rewards"
)

func TestSimulatedAuthority_PointsInRangeAndStable(t *testing.T) {
	a := rewards.NewSimulatedAuthority()
	ctx := context.Background()

	for i := 0; i < 200; i++ {
		attractionID, userID := uuid.New(), uuid.New()

		first, err := a.Points(ctx, attractionID, userID)
		require.NoError(t, err)
		second, err := a.Points(ctx, attractionID, userID)
		require.NoError(t, err)

		assert.Equal(t, first, second, "same pair, same points")
		assert.GreaterOrEqual(t, first, rewards.MinPoints)
		assert.LessOrEqual(t, first, rewards.MaxPoints)
		assert.Equal(t, rewards.PairPoints(attractionID, userID), first)
	}
}

func TestSimulatedAuthority_AlwaysFails(t *testing.T) {
	a := rewards.NewSimulatedAuthority(rewards.WithFailureRate(1), rewards.WithSeed(7))

	_, err := a.Points(context.Background(), uuid.New(), uuid.New())
	assert.ErrorIs(t, err, engine.ErrAuthorityUnavailable)
}

func TestSimulatedAuthority_LatencyAndCancellation(t *testing.T) {
	a := rewards.NewSimulatedAuthority(rewards.WithLatency(20*time.Millisecond, 0))

	start := time.Now()
	_, err := a.Points(context.Background(), uuid.New(), uuid.New())
	require.NoError(t, err)
	assert.GreaterOrEqual(t, time.Since(start), 20*time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), time.Millisecond)
	defer cancel()
	slow := rewards.NewSimulatedAuthority(rewards.WithLatency(time.Second, 0))
	_, err = slow.Points(ctx, uuid.New(), uuid.New())
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestSimulatedAuthority_WorksWithLedger(t *testing.T) {
	// GIVEN: A user standing on an attraction and the simulated authority
	attraction := engine.Attraction{ID: uuid.New(), Name: "Disneyland", Location: engine.Coordinate{Latitude: 33.817595, Longitude: -117.922008}}
	u := engine.NewUser(uuid.New(), "jon")
	u.AddVisitedLocation(engine.VisitedLocation{UserID: u.ID, Location: attraction.Location, VisitedAt: time.Now()})

	provider := staticAttractions{attraction}
	ledger := engine.NewRewardLedger(provider, rewards.NewSimulatedAuthority(), nil)

	// WHEN/THEN: The recorded points match the pair's stable value
	require.NoError(t, ledger.AwardRewards(context.Background(), u))
	require.Len(t, u.Rewards(), 1)
	assert.Equal(t, rewards.PairPoints(attraction.ID, u.ID), u.Rewards()[0].Points)
}

type staticAttractions []engine.Attraction

func (s staticAttractions) Attractions(context.Context) ([]engine.Attraction, error) {
	return s, nil
}

func (s staticAttractions) UserLocation(_ context.Context, id uuid.UUID) (engine.VisitedLocation, error) {
	return engine.VisitedLocation{UserID: id}, nil
}
