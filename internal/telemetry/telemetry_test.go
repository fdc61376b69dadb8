package telemetry

import (
	"context"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/ziadkadry99/perfreview/internal/config"
)

func TestNewMetricsRegisters(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)

	m.AuditRecords.WithLabelValues("success").Inc()
	m.ReviewTransitions.WithLabelValues("shared", "SHARED").Add(2)

	if got := testutil.ToFloat64(m.AuditRecords.WithLabelValues("success")); got != 1 {
		t.Errorf("audit records = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.ReviewTransitions.WithLabelValues("shared", "SHARED")); got != 2 {
		t.Errorf("transitions = %v, want 2", got)
	}

	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("Gather: %v", err)
	}
	if len(families) == 0 {
		t.Error("expected registered metric families")
	}
}

func TestInitTracerDisabled(t *testing.T) {
	shutdown, err := InitTracer(context.Background(), config.TracingConfig{Enabled: false})
	if err != nil {
		t.Fatalf("InitTracer: %v", err)
	}
	if err := shutdown(context.Background()); err != nil {
		t.Errorf("shutdown: %v", err)
	}
	if Tracer("test") == nil {
		t.Error("expected a tracer from the global provider")
	}
}
