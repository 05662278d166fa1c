package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestRegisterIsIdempotent(t *testing.T) {
	reg := prometheus.NewRegistry()
	if err := Register(reg); err != nil {
		t.Fatalf("register: %v", err)
	}
	if err := Register(reg); err != nil {
		t.Fatalf("second register should be tolerated: %v", err)
	}
}

func TestObserveEvaluationNormalisesOutcome(t *testing.T) {
	before := testutil.ToFloat64(evaluationsTotal.WithLabelValues(OutcomeSuccess))
	ObserveEvaluation(-time.Second, "weird")
	after := testutil.ToFloat64(evaluationsTotal.WithLabelValues(OutcomeSuccess))
	if after != before+1 {
		t.Fatalf("expected success counter to increase by 1, got %v -> %v", before, after)
	}
}

func TestSetRiskDefaultsDeployment(t *testing.T) {
	SetRisk("", 61.5, 42)
	if got := testutil.ToFloat64(healthScore.WithLabelValues("default")); got != 61.5 {
		t.Fatalf("expected health gauge 61.5, got %v", got)
	}
	if got := testutil.ToFloat64(failureProbability.WithLabelValues("default")); got != 42 {
		t.Fatalf("expected probability gauge 42, got %v", got)
	}
}
