package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestNewWithRegistersMetrics(t *testing.T) {
	registry := prometheus.NewRegistry()

	m := NewWith(registry)

	if m.TransfersStarted == nil || m.GatewayCalls == nil || m.Compensations == nil {
		t.Fatalf("expected key metrics to be initialized: %+v", m)
	}

	m.TransfersStarted.Inc()
	m.GatewayCalls.WithLabelValues("debit", "ok").Inc()

	metricFamilies, err := registry.Gather()
	if err != nil {
		t.Fatalf("failed to gather metrics: %v", err)
	}

	if len(metricFamilies) == 0 {
		t.Fatalf("expected registered metrics, got none")
	}

	if got := testutil.ToFloat64(m.TransfersStarted); got != 1 {
		t.Fatalf("expected transfers started 1, got %v", got)
	}
}

func TestNewWithRejectsDuplicateRegistration(t *testing.T) {
	registry := prometheus.NewRegistry()
	NewWith(registry)

	defer func() {
		if recover() == nil {
			t.Fatalf("expected duplicate registration to panic")
		}
	}()

	NewWith(registry)
}
