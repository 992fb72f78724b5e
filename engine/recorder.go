package engine

import "go.opentelemetry.io/otel"

const tracerName = "github.com/warp/tourguide/engine"

var tracer = otel.Tracer(tracerName)

// Recorder receives engine events for metrics. metrics.Collector implements it.
type Recorder interface {
	RewardsAwarded(n int)
	AuthorityFailed()
	BatchCompleted(result BatchResult, err error)
}

type nopRecorder struct{}

func (nopRecorder) RewardsAwarded(int)                {}
func (nopRecorder) AuthorityFailed()                  {}
func (nopRecorder) BatchCompleted(BatchResult, error) {}
