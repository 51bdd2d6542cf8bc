package observability

import (
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

func TestMetricsRecordAndExpose(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())

	m.RecordRequest("/api/tickets", "POST", 201, 15*time.Millisecond)
	m.RecordRequest("/api/tickets", "POST", 201, 5*time.Millisecond)
	m.RecordError("/api/tickets/:id", "GET", "NOT_FOUND")
	m.RecordTicketCreated("critical")
	m.RecordTicketResolved("repair")
	m.RecordEventDropped()

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body := rec.Body.String()

	for _, line := range []string{
		`http_requests_total{method="POST",route="/api/tickets",status="201"} 2`,
		`http_errors_total{code="NOT_FOUND",method="GET",route="/api/tickets/:id"} 1`,
		`tickets_created_total{priority="critical"} 1`,
		`tickets_resolved_total{resolution_type="repair"} 1`,
		`events_dropped_total 1`,
	} {
		if !strings.Contains(body, line) {
			t.Fatalf("exposition is missing %q\n%s", line, body)
		}
	}
}

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	m.RecordRequest("/", "GET", 200, time.Millisecond)
	m.RecordError("/", "GET", "X")
	m.RecordTicketCreated("low")
	m.RecordTicketResolved("repair")
	m.RecordEventDropped()
}
