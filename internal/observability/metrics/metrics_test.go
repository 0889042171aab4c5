package metrics

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric/noop"
)

func TestFilterAttributesDropsForbiddenLabels(t *testing.T) {
	attrs := FilterAttributes(
		attribute.String("status", "success"),
		attribute.String("user_id", "456"),
		attribute.String("item_type", "coupon"),
	)
	if len(attrs) != 2 {
		t.Fatalf("expected 2 attributes, got %d", len(attrs))
	}
	for _, attr := range attrs {
		if attr.Key == "user_id" {
			t.Fatalf("user_id must not be a metric label")
		}
	}
}

func TestNilMetricsAreSafe(t *testing.T) {
	var m *Metrics
	m.RecordRedemption(context.Background(), "success", "coupon", 10, time.Millisecond)
	m.RecordReplay(context.Background())
}

func TestNewWithNoopProvider(t *testing.T) {
	m, err := New(Config{ServiceName: "loyalty-test"}, noop.NewMeterProvider())
	if err != nil {
		t.Fatalf("new metrics: %v", err)
	}
	m.RecordRedemption(context.Background(), "success", "virtual", 25, 3*time.Millisecond)
}

func TestNewHTTPMetricsRegistersOnce(t *testing.T) {
	reg := prometheus.NewRegistry()
	if _, err := NewHTTPMetrics(reg); err != nil {
		t.Fatalf("register: %v", err)
	}
	if _, err := NewHTTPMetrics(reg); err == nil {
		t.Fatalf("expected duplicate registration error")
	}
}

func TestGinMiddlewareCountsByRoute(t *testing.T) {
	gin.SetMode(gin.TestMode)
	reg := prometheus.NewRegistry()
	m, err := NewHTTPMetrics(reg)
	if err != nil {
		t.Fatalf("register: %v", err)
	}

	r := gin.New()
	r.Use(GinMiddleware(m))
	r.GET("/v1/users/:user_id/balance", func(c *gin.Context) { c.Status(http.StatusOK) })

	for _, path := range []string{"/v1/users/1/balance", "/v1/users/2/balance", "/missing"} {
		r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, path, nil))
	}

	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	var requests *dto.MetricFamily
	for _, mf := range families {
		if mf.GetName() == "loyalty_http_requests_total" {
			requests = mf
		}
	}
	if requests == nil {
		t.Fatalf("loyalty_http_requests_total not gathered")
	}

	counts := map[string]float64{}
	for _, metric := range requests.GetMetric() {
		labels := map[string]string{}
		for _, lp := range metric.GetLabel() {
			labels[lp.GetName()] = lp.GetValue()
		}
		counts[labels["route"]+" "+labels["status"]] += metric.GetCounter().GetValue()
	}
	if got := counts["/v1/users/:user_id/balance 200"]; got != 2 {
		t.Fatalf("expected 2 balance requests, got %v", got)
	}
	if got := counts["unknown 404"]; got != 1 {
		t.Fatalf("expected 1 unmatched request, got %v", got)
	}
}
