package engine_test

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/warp/tourguide/engine"
)

func TestProximity_Defaults(t *testing.T) {
	p := engine.NewProximity()

	assert.Equal(t, engine.DefaultRewardRadius, p.RewardRadius())
	assert.Equal(t, engine.DefaultDisplayRadius, p.DisplayRadius())
}

func TestProximity_SetAndReset(t *testing.T) {
	p := engine.NewProximity()

	p.SetRewardRadius(1500)
	assert.Equal(t, 1500.0, p.RewardRadius())
	assert.Equal(t, engine.DefaultDisplayRadius, p.DisplayRadius(), "display radius is fixed")

	p.ResetRewardRadius()
	assert.Equal(t, engine.DefaultRewardRadius, p.RewardRadius())
}

func TestProximity_RewardBoundaryIsInclusive(t *testing.T) {
	// GIVEN: A visit at a known distance from an attraction
	a := engine.Attraction{ID: uuid.New(), Name: "Equator Marker", Location: engine.Coordinate{Latitude: 0, Longitude: 0}}
	v := engine.VisitedLocation{
		UserID:    uuid.New(),
		Location:  engine.Coordinate{Latitude: 0.1, Longitude: 0},
		VisitedAt: time.Now(),
	}
	d := engine.Distance(a.Location, v.Location)
	p := engine.NewProximity()

	// WHEN: The radius equals the distance exactly
	p.SetRewardRadius(d)

	// THEN: The visit counts
	assert.True(t, p.IsWithinRewardRange(a, v))

	// WHEN: The radius is one mile short
	p.SetRewardRadius(d - 1)

	// THEN: The visit no longer counts
	assert.False(t, p.IsWithinRewardRange(a, v))
}

func TestProximity_DefaultRewardRadius(t *testing.T) {
	a := engine.Attraction{Name: "Equator Marker", Location: engine.Coordinate{Latitude: 0, Longitude: 0}}
	// ~6.9 and ~13.8 miles due north
	near := engine.VisitedLocation{Location: engine.Coordinate{Latitude: 0.1, Longitude: 0}}
	far := engine.VisitedLocation{Location: engine.Coordinate{Latitude: 0.2, Longitude: 0}}

	p := engine.NewProximity()
	assert.True(t, p.IsWithinRewardRange(a, near))
	assert.False(t, p.IsWithinRewardRange(a, far))
}

func TestProximity_DisplayRangeSeparateFromRewardRange(t *testing.T) {
	// GIVEN: A location ~69 miles away: outside the reward radius, inside display
	a := engine.Attraction{Name: "Equator Marker", Location: engine.Coordinate{Latitude: 0, Longitude: 0}}
	c := engine.Coordinate{Latitude: 1, Longitude: 0}
	p := engine.NewProximity()

	assert.False(t, p.IsWithinRewardRange(a, engine.VisitedLocation{Location: c}))
	assert.True(t, p.IsWithinDisplayRange(a, c))

	// AND: Widening the reward radius leaves display untouched
	p.SetRewardRadius(1)
	assert.True(t, p.IsWithinDisplayRange(a, c))
	assert.False(t, p.IsWithinDisplayRange(a, engine.Coordinate{Latitude: 3, Longitude: 0}))
}
