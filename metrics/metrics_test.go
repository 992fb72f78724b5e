package metrics

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/tourguide/engine"
)

func newTestCollector(t *testing.T) (*Collector, *prometheus.Registry) {
	t.Helper()
	reg := prometheus.NewRegistry()
	c, err := NewCollector(reg)
	require.NoError(t, err)
	return c, reg
}

func TestCollector_RecordsEngineEvents(t *testing.T) {
	c, _ := newTestCollector(t)

	c.RewardsAwarded(3)
	c.RewardsAwarded(0)
	c.AuthorityFailed()
	c.BatchCompleted(engine.BatchResult{Users: 42, Duration: 250 * time.Millisecond}, nil)

	assert.Equal(t, 3.0, testutil.ToFloat64(c.Awarded))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.AuthorityErrors))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.BatchRuns.WithLabelValues(OutcomeCompleted)))
	assert.Equal(t, 42.0, testutil.ToFloat64(c.BatchUsers))
}

func TestOutcome(t *testing.T) {
	partial := &engine.BatchError{Failures: map[uuid.UUID]error{uuid.New(): engine.ErrAuthorityUnavailable}}
	cancelled := &engine.BatchError{Skipped: []uuid.UUID{uuid.New()}, Cause: context.Canceled}

	assert.Equal(t, OutcomeCompleted, Outcome(nil))
	assert.Equal(t, OutcomePartial, Outcome(partial))
	assert.Equal(t, OutcomeCancelled, Outcome(cancelled))
	assert.Equal(t, OutcomeCancelled, Outcome(fmt.Errorf("run: %w", engine.ErrPoolClosed)))
}

func TestNewCollector_ReusesRegistered(t *testing.T) {
	reg := prometheus.NewRegistry()
	first, err := NewCollector(reg)
	require.NoError(t, err)
	second, err := NewCollector(reg)
	require.NoError(t, err)

	second.RewardsAwarded(2)
	assert.Equal(t, 2.0, testutil.ToFloat64(first.Awarded))
}

func TestCollector_Handler(t *testing.T) {
	c, _ := newTestCollector(t)
	c.AuthorityFailed()

	rec := httptest.NewRecorder()
	c.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, strings.Contains(rec.Body.String(), "tourguide_authority_errors_total 1"))
}
