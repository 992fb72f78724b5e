// Command tracksim publishes simulated user locations to the MQTT topics
// the server's ingester subscribes to.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"math/rand"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/warp/tourguide/catalog"
	"github.com/warp/tourguide/engine"
	"github.com/warp/tourguide/ingest"
	"github.com/warp/tourguide/logger"
	"go.uber.org/zap"
)

func main() {
	brokerAddr := flag.String("broker", "tcp://localhost:1883", "MQTT broker address, e.g. tcp://localhost:1883")
	users := flag.String("users", "internalUser0,internalUser1,internalUser2", "Comma-separated user names to simulate")
	interval := flag.Duration("interval", 2*time.Second, "Interval between published locations")
	nearProbability := flag.Float64("near", 0.3, "Probability that a location is placed next to an attraction")
	logLevel := flag.String("log-level", "info", "Log level")
	flag.Parse()

	log, err := logger.New(*logLevel, logger.FormatConsole)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = log.Sync() }()

	names := splitNames(*users)
	if len(names) == 0 {
		log.Fatal("no users to simulate")
	}

	clientID := fmt.Sprintf("tourguide-tracksim-%d", time.Now().UnixNano())
	opts := mqtt.NewClientOptions().AddBroker(*brokerAddr).SetClientID(clientID)
	opts = opts.SetOrderMatters(false)

	client := mqtt.NewClient(opts)
	if token := client.Connect(); token.Wait() && token.Error() != nil {
		log.Fatal("failed to connect to broker", zap.Error(token.Error()))
	}
	log.Info("connected to MQTT broker", zap.String("broker", *brokerAddr), zap.String("client_id", clientID))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	sim := &simulator{
		rng:         rand.New(rand.NewSource(time.Now().UnixNano())),
		attractions: catalog.DefaultAttractions(),
		near:        *nearProbability,
	}

	ticker := time.NewTicker(*interval)
	defer ticker.Stop()

	publish := func() {
		for _, name := range names {
			data, err := json.Marshal(sim.next(name))
			if err != nil {
				log.Error("failed to encode payload", zap.Error(err))
				return
			}

			topic := ingest.TopicPath(name)
			token := client.Publish(topic, 0, false, data)
			token.Wait()
			if err := token.Error(); err != nil {
				log.Warn("publish error", zap.String("topic", topic), zap.Error(err))
				continue
			}
			log.Debug("published", zap.String("topic", topic), zap.ByteString("payload", data))
		}
		log.Info("published locations", zap.Int("users", len(names)))
	}

	publish()

	for {
		select {
		case <-ctx.Done():
			log.Info("received shutdown signal, disconnecting")
			client.Disconnect(250)
			return
		case <-ticker.C:
			publish()
		}
	}
}

type simulator struct {
	rng         *rand.Rand
	attractions []engine.Attraction
	near        float64
}

// next returns a random position, sometimes just next to an attraction so
// the server has rewards to grant.
func (s *simulator) next(name string) ingest.LocationPayload {
	var c engine.Coordinate
	if len(s.attractions) > 0 && s.rng.Float64() < s.near {
		a := s.attractions[s.rng.Intn(len(s.attractions))]
		c = engine.Coordinate{
			Latitude:  a.Location.Latitude + (s.rng.Float64()-0.5)*0.05,
			Longitude: a.Location.Longitude + (s.rng.Float64()-0.5)*0.05,
		}
	} else {
		c = engine.Coordinate{
			Latitude:  -85 + s.rng.Float64()*170,
			Longitude: -180 + s.rng.Float64()*360,
		}
	}

	lat, lon := c.Latitude, c.Longitude
	return ingest.LocationPayload{
		UserName:  name,
		Latitude:  &lat,
		Longitude: &lon,
		Timestamp: time.Now().UTC().Format(time.RFC3339Nano),
	}
}

func splitNames(s string) []string {
	var names []string
	for _, n := range strings.Split(s, ",") {
		if n = strings.TrimSpace(n); n != "" {
			names = append(names, n)
		}
	}
	return names
}
