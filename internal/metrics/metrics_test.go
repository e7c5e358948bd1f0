package metrics

import (
	"testing"
	"time"

	dto "github.com/prometheus/client_model/go"
)

func counterValue(t *testing.T, counter interface{ Write(*dto.Metric) error }) float64 {
	t.Helper()
	metric := &dto.Metric{}
	if err := counter.Write(metric); err != nil {
		t.Fatalf("write metric: %v", err)
	}
	return metric.GetCounter().GetValue()
}

func TestRecordCarryForward(t *testing.T) {
	carryForwardTotal.Reset()
	before := counterValue(t, carriedTasksTotal)

	RecordCarryForward("ok", 3)
	RecordCarryForward("ok", 0)
	RecordCarryForward("conflict", 0)

	if got := counterValue(t, carryForwardTotal.WithLabelValues("ok")); got != 2 {
		t.Fatalf("expected 2 ok outcomes, got %f", got)
	}
	if got := counterValue(t, carryForwardTotal.WithLabelValues("conflict")); got != 1 {
		t.Fatalf("expected 1 conflict, got %f", got)
	}
	if got := counterValue(t, carriedTasksTotal) - before; got != 3 {
		t.Fatalf("expected 3 carried tasks, got %f", got)
	}
}

func TestRecordHTTPRequest(t *testing.T) {
	httpRequestsTotal.Reset()

	RecordHTTPRequest("/v1/sites", "GET", 200, 12*time.Millisecond)
	RecordHTTPRequest("/v1/sites", "GET", 200, 3*time.Millisecond)
	RecordHTTPRequest("/v1/sites", "GET", 404, time.Millisecond)

	if got := counterValue(t, httpRequestsTotal.WithLabelValues("/v1/sites", "GET", "200")); got != 2 {
		t.Fatalf("expected 2 ok requests, got %f", got)
	}
	if got := counterValue(t, httpRequestsTotal.WithLabelValues("/v1/sites", "GET", "404")); got != 1 {
		t.Fatalf("expected 1 not found, got %f", got)
	}
}

func TestRecordReportCache(t *testing.T) {
	reportCacheTotal.Reset()

	RecordReportCache("sites", false)
	RecordReportCache("sites", true)
	RecordReportCache("sites", true)

	if got := counterValue(t, reportCacheTotal.WithLabelValues("sites", "hit")); got != 2 {
		t.Fatalf("expected 2 hits, got %f", got)
	}
}
