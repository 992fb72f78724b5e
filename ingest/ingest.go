/*
ingest.go - MQTT location ingestion

PURPOSE:
  Lets devices report user positions over MQTT instead of HTTP. Each
  message is decoded into a location update and recorded through the
  service, which also awards any rewards the visit earns.

TOPICS:
  tourguide/locations/{userName}

PAYLOAD:
  {"latitude": 33.8176, "longitude": -117.9220, "timestamp": "2025-07-04T10:00:00Z"}
  timestamp is RFC3339 and optional. A user_name field is used when the
  topic does not carry one.

FAILURES:
  Bad messages and unknown users are logged and dropped. MQTT has no
  reply channel, so nothing is sent back to the publisher.

SEE ALSO:
  - cmd/tracksim: Publishes simulated locations to these topics
  - tourguide/service.go: RecordLocation
*/
package ingest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/warp/tourguide/engine"
	"go.uber.org/zap"
)

// DefaultTopic subscribes to every user's location topic.
const DefaultTopic = "tourguide/locations/+"

const (
	topicPrefix   = "tourguide/locations/"
	recordTimeout = 2 * time.Second
)

var (
	// ErrInvalidTopic is returned when no user name can be taken from a message.
	ErrInvalidTopic = errors.New("invalid location topic")

	// ErrInvalidPayload is returned when a payload cannot be decoded.
	ErrInvalidPayload = errors.New("invalid location payload")
)

// Message is one received publish.
type Message struct {
	Topic   string
	Payload []byte
}

// LocationPayload is the JSON body of a location message.
type LocationPayload struct {
	UserName  string   `json:"user_name,omitempty"`
	Latitude  *float64 `json:"latitude"`
	Longitude *float64 `json:"longitude"`
	Timestamp string   `json:"timestamp,omitempty"`
}

// LocationUpdate is a decoded location message. A zero At means the
// receive time.
type LocationUpdate struct {
	UserName string
	Location engine.Coordinate
	At       time.Time
}

// LocationSink records decoded updates. *tourguide.Service satisfies it.
type LocationSink interface {
	GetUser(ctx context.Context, name string) (*engine.User, error)
	RecordLocation(ctx context.Context, u *engine.User, c engine.Coordinate, at time.Time) (engine.VisitedLocation, error)
}

// =============================================================================
// DECODING
// =============================================================================

// TopicPath builds the topic a user's locations are published on.
func TopicPath(userName string) string {
	return topicPrefix + userName
}

// UserNameFromTopic returns the user segment of a location topic.
func UserNameFromTopic(topic string) (string, error) {
	name, ok := strings.CutPrefix(topic, topicPrefix)
	if !ok || name == "" || strings.Contains(name, "/") {
		return "", fmt.Errorf("%w: %q", ErrInvalidTopic, topic)
	}
	return name, nil
}

// Decode parses a location message. The coordinate is validated; the
// user's existence is not.
func Decode(topic string, payload []byte) (LocationUpdate, error) {
	var p LocationPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return LocationUpdate{}, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}
	if p.Latitude == nil || p.Longitude == nil {
		return LocationUpdate{}, fmt.Errorf("%w: latitude and longitude are required", ErrInvalidPayload)
	}

	name, err := UserNameFromTopic(topic)
	if err != nil {
		if p.UserName == "" {
			return LocationUpdate{}, err
		}
		name = p.UserName
	}

	update := LocationUpdate{
		UserName: name,
		Location: engine.Coordinate{Latitude: *p.Latitude, Longitude: *p.Longitude},
	}
	if err := update.Location.Validate(); err != nil {
		return LocationUpdate{}, err
	}
	if p.Timestamp != "" {
		at, err := time.Parse(time.RFC3339Nano, p.Timestamp)
		if err != nil {
			return LocationUpdate{}, fmt.Errorf("%w: timestamp: %v", ErrInvalidPayload, err)
		}
		update.At = at.UTC()
	}
	return update, nil
}

// =============================================================================
// SUBSCRIBER
// =============================================================================

// Subscriber consumes location messages from an MQTT broker.
type Subscriber struct {
	broker string
	topic  string
	sink   LocationSink
	logger *zap.Logger

	mu     sync.Mutex
	client mqtt.Client

	ctxMu sync.RWMutex
	ctx   context.Context

	received atomic.Int64
	recorded atomic.Int64
	dropped  atomic.Int64
}

// Stats counts messages handled since start.
type Stats struct {
	Received int64
	Recorded int64
	Dropped  int64
}

// NewSubscriber creates a subscriber. An empty topic uses DefaultTopic.
func NewSubscriber(broker, topic string, sink LocationSink, logger *zap.Logger) *Subscriber {
	if topic == "" {
		topic = DefaultTopic
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Subscriber{
		broker: broker,
		topic:  topic,
		sink:   sink,
		logger: logger.Named("ingest"),
		ctx:    context.Background(),
	}
}

// Start connects to the broker and subscribes. Messages are handled with
// ctx until Stop is called. The subscription is renewed on every reconnect.
func (s *Subscriber) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.client != nil {
		return nil
	}
	s.ctxMu.Lock()
	s.ctx = ctx
	s.ctxMu.Unlock()

	clientID := fmt.Sprintf("tourguide-ingest-%d", time.Now().UnixNano())
	opts := mqtt.NewClientOptions().
		AddBroker(s.broker).
		SetClientID(clientID).
		SetOrderMatters(false).
		SetAutoReconnect(true).
		SetConnectTimeout(10 * time.Second).
		SetOnConnectHandler(func(c mqtt.Client) {
			token := c.Subscribe(s.topic, 0, s.onMessage)
			token.Wait()
			if err := token.Error(); err != nil {
				s.logger.Error("subscribe failed", zap.String("topic", s.topic), zap.Error(err))
				return
			}
			s.logger.Info("subscribed", zap.String("broker", s.broker), zap.String("topic", s.topic))
		}).
		SetConnectionLostHandler(func(_ mqtt.Client, err error) {
			s.logger.Warn("connection lost", zap.Error(err))
		})

	client := mqtt.NewClient(opts)
	if token := client.Connect(); token.Wait() && token.Error() != nil {
		return fmt.Errorf("connect to %s: %w", s.broker, token.Error())
	}
	s.client = client
	return nil
}

// Stop unsubscribes and disconnects.
func (s *Subscriber) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.client == nil {
		return
	}
	s.client.Unsubscribe(s.topic).WaitTimeout(time.Second)
	s.client.Disconnect(250)
	s.client = nil
	s.logger.Info("stopped", zap.Any("stats", s.Stats()))
}

// Stats returns the message counters.
func (s *Subscriber) Stats() Stats {
	return Stats{
		Received: s.received.Load(),
		Recorded: s.recorded.Load(),
		Dropped:  s.dropped.Load(),
	}
}

func (s *Subscriber) onMessage(_ mqtt.Client, m mqtt.Message) {
	s.ctxMu.RLock()
	ctx := s.ctx
	s.ctxMu.RUnlock()

	_ = s.Handle(ctx, Message{Topic: m.Topic(), Payload: m.Payload()})
}

// Handle decodes and records one message. Errors are logged and returned.
func (s *Subscriber) Handle(ctx context.Context, msg Message) error {
	s.received.Add(1)

	update, err := Decode(msg.Topic, msg.Payload)
	if err != nil {
		s.dropped.Add(1)
		s.logger.Warn("location message rejected", zap.String("topic", msg.Topic), zap.Error(err))
		return err
	}

	recordCtx, cancel := context.WithTimeout(ctx, recordTimeout)
	defer cancel()

	u, err := s.sink.GetUser(recordCtx, update.UserName)
	if err != nil {
		s.dropped.Add(1)
		s.logger.Warn("location for unknown user", zap.String("user", update.UserName), zap.Error(err))
		return err
	}

	v, err := s.sink.RecordLocation(recordCtx, u, update.Location, update.At)
	if err != nil {
		s.dropped.Add(1)
		s.logger.Error("failed to record location", zap.String("user", update.UserName), zap.Error(err))
		return err
	}

	s.recorded.Add(1)
	s.logger.Debug("location recorded",
		zap.String("user", update.UserName),
		zap.Stringer("location", v.Location),
		zap.Time("visited_at", v.VisitedAt))
	return nil
}
