package ingest

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/tourguide/engine"
)

type recordingSink struct {
	users    map[string]*engine.User
	recorded []LocationUpdate
	err      error
}

func newRecordingSink(names ...string) *recordingSink {
	s := &recordingSink{users: make(map[string]*engine.User)}
	for _, n := range names {
		s.users[n] = engine.NewUser(uuid.New(), n)
	}
	return s
}

func (s *recordingSink) GetUser(ctx context.Context, name string) (*engine.User, error) {
	u, ok := s.users[name]
	if !ok {
		return nil, engine.ErrUserNotFound
	}
	return u, nil
}

func (s *recordingSink) RecordLocation(ctx context.Context, u *engine.User, c engine.Coordinate, at time.Time) (engine.VisitedLocation, error) {
	if s.err != nil {
		return engine.VisitedLocation{}, s.err
	}
	s.recorded = append(s.recorded, LocationUpdate{UserName: u.Name, Location: c, At: at})
	return engine.VisitedLocation{UserID: u.ID, Location: c, VisitedAt: at}, nil
}

func TestUserNameFromTopic(t *testing.T) {
	tests := []struct {
		topic   string
		want    string
		wantErr bool
	}{
		{"tourguide/locations/jon", "jon", false},
		{TopicPath("internalUser7"), "internalUser7", false},
		{"tourguide/locations/", "", true},
		{"tourguide/locations/jon/extra", "", true},
		{"beacons/jon/readings", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.topic, func(t *testing.T) {
			got, err := UserNameFromTopic(tt.topic)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidTopic)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestDecode(t *testing.T) {
	t.Run("full payload", func(t *testing.T) {
		got, err := Decode("tourguide/locations/jon",
			[]byte(`{"latitude": 33.817595, "longitude": -117.922008, "timestamp": "2025-07-04T12:00:00+02:00"}`))

		require.NoError(t, err)
		assert.Equal(t, "jon", got.UserName)
		assert.Equal(t, engine.Coordinate{Latitude: 33.817595, Longitude: -117.922008}, got.Location)
		assert.Equal(t, time.Date(2025, 7, 4, 10, 0, 0, 0, time.UTC), got.At)
	})

	t.Run("no timestamp", func(t *testing.T) {
		got, err := Decode("tourguide/locations/jon", []byte(`{"latitude": 0, "longitude": 0}`))

		require.NoError(t, err)
		assert.True(t, got.At.IsZero())
	})

	t.Run("user name from payload", func(t *testing.T) {
		got, err := Decode("devices/abc", []byte(`{"user_name": "ann", "latitude": 1, "longitude": 2}`))

		require.NoError(t, err)
		assert.Equal(t, "ann", got.UserName)
	})

	rejects := []struct {
		name    string
		topic   string
		payload string
		want    error
	}{
		{"not json", "tourguide/locations/jon", `lat=1`, ErrInvalidPayload},
		{"missing latitude", "tourguide/locations/jon", `{"longitude": 2}`, ErrInvalidPayload},
		{"bad timestamp", "tourguide/locations/jon", `{"latitude": 1, "longitude": 2, "timestamp": "noon"}`, ErrInvalidPayload},
		{"out of range", "tourguide/locations/jon", `{"latitude": 91, "longitude": 2}`, engine.ErrInvalidLocation},
		{"no user", "devices/abc", `{"latitude": 1, "longitude": 2}`, ErrInvalidTopic},
	}
	for _, tt := range rejects {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Decode(tt.topic, []byte(tt.payload))
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestSubscriber_Handle(t *testing.T) {
	// GIVEN: A subscriber over a sink that knows one user
	sink := newRecordingSink("jon")
	sub := NewSubscriber("tcp://localhost:1883", "", sink, nil)
	ctx := context.Background()

	// WHEN: One good message, one for an unknown user, one malformed
	require.NoError(t, sub.Handle(ctx, Message{
		Topic:   TopicPath("jon"),
		Payload: []byte(`{"latitude": 40.741112, "longitude": -73.989723}`),
	}))
	err := sub.Handle(ctx, Message{
		Topic:   TopicPath("ghost"),
		Payload: []byte(`{"latitude": 1, "longitude": 1}`),
	})
	assert.ErrorIs(t, err, engine.ErrUserNotFound)
	err = sub.Handle(ctx, Message{Topic: TopicPath("jon"), Payload: []byte(`{}`)})
	assert.ErrorIs(t, err, ErrInvalidPayload)

	// THEN: Only the good message reached the sink
	require.Len(t, sink.recorded, 1)
	assert.Equal(t, "jon", sink.recorded[0].UserName)
	assert.Equal(t, Stats{Received: 3, Recorded: 1, Dropped: 2}, sub.Stats())
}

func TestSubscriber_HandleRecordFailure(t *testing.T) {
	sink := newRecordingSink("jon")
	sink.err = errors.New("disk full")
	sub := NewSubscriber("tcp://localhost:1883", "", sink, nil)

	err := sub.Handle(context.Background(), Message{
		Topic:   TopicPath("jon"),
		Payload: []byte(`{"latitude": 1, "longitude": 1}`),
	})

	assert.EqualError(t, err, "disk full")
	assert.Equal(t, int64(1), sub.Stats().Dropped)
}

func TestSubscriber_StopWithoutStart(t *testing.T) {
	sub := NewSubscriber("tcp://localhost:1883", "", newRecordingSink(), nil)
	sub.Stop()
	assert.Equal(t, DefaultTopic, sub.topic)
}
