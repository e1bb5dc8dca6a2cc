package handler

import (
	"context"
	"errors"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/noah-isme/sortify-api/internal/service"
)

func TestReadyReportsFailingDependency(t *testing.T) {
	handler := NewMetricsHandler(service.NewMetricsService(),
		ReadinessCheck{Name: "postgres", Check: func(context.Context) error { return nil }},
		ReadinessCheck{Name: "redis", Check: func(context.Context) error { return errors.New("dial tcp: refused") }},
	)
	c, w := newTestContext(http.MethodGet, "/ready", nil)
	handler.Ready(c)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	body := decodeEnvelope(t, w)
	assert.Equal(t, "degraded", body["status"])
	assert.Equal(t, "ok", body["checks"].(map[string]interface{})["postgres"])
}

func TestPrometheusEndpoint(t *testing.T) {
	metrics := service.NewMetricsService()
	metrics.RecordTransition("collection", "accept", nil)
	handler := NewMetricsHandler(metrics)
	c, w := newTestContext(http.MethodGet, "/metrics", nil)
	handler.Prometheus(c)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "sortify_transitions_total")
}
