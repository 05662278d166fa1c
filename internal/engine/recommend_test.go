package engine

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/miradorstack/mirador-forecast/internal/models"
)

func writeRules(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "rules.yaml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write rules: %v", err)
	}
	return path
}

func TestRuleEngineRecommend(t *testing.T) {
	path := writeRules(t, `rules:
  - id: latency-ranker
    match:
      deployment: "ranker"
      alert_type: "PERFORMANCE"
      issues: ["High Latency"]
    recommendations: ["Page the inference on-call", "Shed batch traffic"]
  - id: risky
    match:
      min_probability: 60
      max_health: 70
    recommendations: ["Freeze deployments", "Shed batch traffic"]
  - id: drift
    match:
      categories: ["Data Quality"]
    recommendations: ["Snapshot the feature store"]
`)

	engine, err := NewRuleEngine(path, slog.New(slog.NewTextHandler(os.Stdout, nil)))
	if err != nil {
		t.Fatalf("new rule engine: %v", err)
	}

	report := models.RiskReport{
		Deployment:         "ranker",
		HealthScore:        55,
		FailureProbability: models.FailureProbability{Overall: 80},
		RootCauses:         []models.RootCause{{Issue: "High Latency", Category: models.CategoryPerformance}},
	}
	alert := models.Alert{Type: "PERFORMANCE", Severity: models.SeverityCritical}

	if engine.Len() != 3 {
		t.Fatalf("expected three rules, got %d", engine.Len())
	}
	recs := engine.Recommend(report, alert)
	want := []string{"Page the inference on-call", "Shed batch traffic", "Freeze deployments"}
	if len(recs) != len(want) {
		t.Fatalf("expected %v, got %v", want, recs)
	}
	for i := range want {
		if recs[i] != want[i] {
			t.Fatalf("expected %v, got %v", want, recs)
		}
	}

	report.Deployment = "fraud"
	report.FailureProbability.Overall = 30
	if recs := engine.Recommend(report, alert); len(recs) != 0 {
		t.Fatalf("expected no matches, got %v", recs)
	}
}

func TestRuleEngineNoFile(t *testing.T) {
	engine, err := NewRuleEngine("non-existent", nil)
	if err != nil {
		t.Fatalf("expected nil error, got %v", err)
	}
	if engine != nil {
		t.Fatalf("expected nil engine when file missing")
	}
	if recs := engine.Recommend(models.RiskReport{}, models.Alert{}); recs != nil {
		t.Fatalf("nil engine should recommend nothing, got %v", recs)
	}
}

func TestRuleEngineBadYAML(t *testing.T) {
	if _, err := NewRuleEngine(writeRules(t, "rules: [::"), nil); err == nil {
		t.Fatalf("expected parse error")
	}
}

func TestRuleEngineRejectsInvalidRules(t *testing.T) {
	cases := map[string]string{
		"missing id": `rules:
  - recommendations: ["x"]
`,
		"duplicate id": `rules:
  - id: a
    recommendations: ["x"]
  - id: a
    recommendations: ["y"]
`,
		"empty recommendations": `rules:
  - id: a
`,
		"bad severity": `rules:
  - id: a
    match:
      severity: urgent
    recommendations: ["x"]
`,
	}
	for name, body := range cases {
		if _, err := NewRuleEngine(writeRules(t, body), nil); err == nil {
			t.Fatalf("%s: expected validation error", name)
		}
	}
}

func TestDefaultRulePackLoads(t *testing.T) {
	engine, err := NewRuleEngine(filepath.Join("..", "..", "configs", "rules", "default.yaml"), nil)
	if err != nil {
		t.Fatalf("default rule pack: %v", err)
	}
	if engine.Len() == 0 {
		t.Fatalf("expected default rules")
	}
}
