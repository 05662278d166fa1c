package services

import (
	"context"
	"math"
	"testing"
	"time"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/miradorstack/mirador-forecast/internal/alerts"
	"github.com/miradorstack/mirador-forecast/internal/api"
	"github.com/miradorstack/mirador-forecast/internal/cache"
	"github.com/miradorstack/mirador-forecast/internal/engine"
	"github.com/miradorstack/mirador-forecast/internal/models"
	"github.com/miradorstack/mirador-forecast/internal/patterns"
	"github.com/miradorstack/mirador-forecast/internal/predictor"
	"github.com/miradorstack/mirador-forecast/internal/simulator"
	"github.com/miradorstack/mirador-forecast/internal/source"
)

type seriesSource map[string]models.MetricSeries

func (s seriesSource) FetchSeries(ctx context.Context, deployment string, start, end time.Time) (models.MetricSeries, error) {
	series, ok := s[deployment]
	if !ok {
		return nil, source.ErrNoSamples
	}
	return series, nil
}

func degradedSeries() models.MetricSeries {
	series := simulator.NewGenerator(simulator.Config{Seed: 11, Now: time.Date(2026, 7, 1, 0, 0, 0, 0, time.UTC)}).Generate(240)
	last := &series[len(series)-1]
	last.Accuracy = 0.80
	last.LatencyMs = 250
	last.ErrorRate = 0.07
	last.CPUUtilization = 90
	last.MemoryUtilization = 88
	last.DataDriftScore = 0.6
	return series
}

func newTestService(src source.Source, pred *predictor.Predictor, provider cache.Provider) *ForecastService {
	book := alerts.NewBook(alerts.BookConfig{Cooldown: alerts.DefaultCooldown}, provider, nil)
	pipeline := engine.NewPipeline(nil, src, nil, pred, nil, nil, book, patterns.NewReportLog(10), engine.Options{})
	store := patterns.NewCacheStore(provider, time.Minute)
	return NewForecastService(nil, pipeline, patterns.NewMiner(nil, store), store, provider, Options{
		FleetDeployments: []string{"ranker", "missing"},
		RequestTimeout:   time.Minute,
	})
}

func mustStruct(t *testing.T, v any) *structpb.Struct {
	t.Helper()
	s, err := api.ToStruct(v)
	if err != nil {
		t.Fatalf("encode request: %v", err)
	}
	return s
}

func TestEvaluateAndAlertLifecycle(t *testing.T) {
	ctx := context.Background()
	service := newTestService(seriesSource{"ranker": degradedSeries()}, nil, cache.NewMemoryProvider(time.Minute))

	resp, err := service.Evaluate(ctx, mustStruct(t, api.EvaluateRequest{Deployment: "ranker"}))
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	var eval engine.Evaluation
	if err := api.FromStruct(resp, &eval); err != nil {
		t.Fatalf("decode evaluation: %v", err)
	}
	if eval.Report.Deployment != "ranker" || len(eval.Degraded) != 2 {
		t.Fatalf("unexpected evaluation: %+v", eval)
	}
	if len(eval.Recorded) == 0 {
		t.Fatalf("expected recorded alerts")
	}

	resp, err = service.ListAlerts(ctx, mustStruct(t, api.ListAlertsRequest{IncludeHistory: true}))
	if err != nil {
		t.Fatalf("list alerts: %v", err)
	}
	var listed api.ListAlertsResponse
	if err := api.FromStruct(resp, &listed); err != nil {
		t.Fatalf("decode alerts: %v", err)
	}
	if len(listed.Active) != len(eval.Recorded) || len(listed.History) != len(eval.Recorded) {
		t.Fatalf("expected %d alerts, got active=%d history=%d", len(eval.Recorded), len(listed.Active), len(listed.History))
	}

	id := listed.Active[0].ID
	resp, err = service.AcknowledgeAlert(ctx, mustStruct(t, api.AlertRequest{ID: id}))
	if err != nil {
		t.Fatalf("acknowledge: %v", err)
	}
	var acked models.Alert
	if err := api.FromStruct(resp, &acked); err != nil {
		t.Fatalf("decode alert: %v", err)
	}
	if acked.Status != models.AlertAcknowledged {
		t.Fatalf("expected acknowledged, got %s", acked.Status)
	}

	if _, err := service.ResolveAlert(ctx, mustStruct(t, api.AlertRequest{ID: id})); err != nil {
		t.Fatalf("resolve: %v", err)
	}
	_, err = service.ResolveAlert(ctx, mustStruct(t, api.AlertRequest{ID: id}))
	if status.Code(err) != codes.NotFound {
		t.Fatalf("expected not found, got %v", err)
	}

	resp, err = service.GetPatterns(ctx, mustStruct(t, api.PatternsRequest{Deployment: "ranker"}))
	if err != nil {
		t.Fatalf("patterns: %v", err)
	}
	var found api.PatternsResponse
	if err := api.FromStruct(resp, &found); err != nil {
		t.Fatalf("decode patterns: %v", err)
	}
	if found.Reports != 1 || len(found.Patterns) != len(eval.Report.RootCauses) {
		t.Fatalf("unexpected patterns: %+v", found)
	}
}

func TestGetPatternsFallsBackToStore(t *testing.T) {
	ctx := context.Background()
	provider := cache.NewMemoryProvider(time.Minute)
	store := patterns.NewCacheStore(provider, time.Minute)
	stored := []models.RecurringCause{{Issue: "High Latency", Occurrences: 3, Prevalence: 0.5}}
	if err := store.StorePatterns(ctx, "ranker", stored); err != nil {
		t.Fatalf("store: %v", err)
	}

	service := newTestService(seriesSource{}, nil, provider)
	resp, err := service.GetPatterns(ctx, mustStruct(t, api.PatternsRequest{Deployment: "ranker"}))
	if err != nil {
		t.Fatalf("patterns: %v", err)
	}
	var found api.PatternsResponse
	if err := api.FromStruct(resp, &found); err != nil {
		t.Fatalf("decode patterns: %v", err)
	}
	if found.Reports != 0 || len(found.Patterns) != 1 || found.Patterns[0].Issue != "High Latency" {
		t.Fatalf("expected stored pattern, got %+v", found)
	}
}

func TestErrorMapping(t *testing.T) {
	ctx := context.Background()
	invalid := degradedSeries()
	invalid[5].Accuracy = math.NaN()
	service := newTestService(seriesSource{"bad": invalid}, nil, nil)

	cases := []struct {
		name string
		call func() error
		code codes.Code
	}{
		{"missing deployment", func() error {
			_, err := service.Evaluate(ctx, mustStruct(t, map[string]any{}))
			return err
		}, codes.InvalidArgument},
		{"unknown field", func() error {
			_, err := service.Evaluate(ctx, mustStruct(t, map[string]any{"deployment": "x", "tenant": "y"}))
			return err
		}, codes.InvalidArgument},
		{"no samples", func() error {
			_, err := service.Evaluate(ctx, mustStruct(t, api.EvaluateRequest{Deployment: "missing"}))
			return err
		}, codes.NotFound},
		{"invalid series", func() error {
			_, err := service.Evaluate(ctx, mustStruct(t, api.EvaluateRequest{Deployment: "bad"}))
			return err
		}, codes.InvalidArgument},
		{"unknown alert", func() error {
			_, err := service.AcknowledgeAlert(ctx, mustStruct(t, api.AlertRequest{ID: "nope"}))
			return err
		}, codes.NotFound},
		{"bad severity", func() error {
			_, err := service.ListAlerts(ctx, mustStruct(t, api.ListAlertsRequest{Severity: "URGENT"}))
			return err
		}, codes.InvalidArgument},
	}
	for _, tc := range cases {
		if got := status.Code(tc.call()); got != tc.code {
			t.Fatalf("%s: expected %s, got %s", tc.name, tc.code, got)
		}
	}
}

func TestEvaluateFleetReportsPerDeployment(t *testing.T) {
	service := newTestService(seriesSource{"ranker": degradedSeries()}, nil, nil)

	resp, err := service.EvaluateFleet(context.Background(), mustStruct(t, api.EvaluateFleetRequest{}))
	if err != nil {
		t.Fatalf("fleet: %v", err)
	}
	var fleet api.EvaluateFleetResponse
	if err := api.FromStruct(resp, &fleet); err != nil {
		t.Fatalf("decode fleet: %v", err)
	}
	if len(fleet.Results) != 2 {
		t.Fatalf("expected two results, got %d", len(fleet.Results))
	}
	if fleet.Results[0].Deployment != "ranker" || fleet.Results[0].Error != "" || fleet.Results[0].Evaluation == nil {
		t.Fatalf("unexpected ranker result: %+v", fleet.Results[0])
	}
	if fleet.Results[1].Deployment != "missing" || fleet.Results[1].Error == "" {
		t.Fatalf("expected missing deployment to fail: %+v", fleet.Results[1])
	}

	empty := NewForecastService(nil, engine.NewPipeline(nil, nil, nil, nil, nil, nil, nil, nil, engine.Options{}), nil, nil, nil, Options{})
	if _, err := empty.EvaluateFleet(context.Background(), mustStruct(t, api.EvaluateFleetRequest{})); status.Code(err) != codes.InvalidArgument {
		t.Fatalf("expected invalid argument without deployments, got %v", err)
	}
}

func TestHealthCheckReportsUntrainedModel(t *testing.T) {
	pred := predictor.New(predictor.DefaultConfig(), predictor.FullCapabilities(), nil)
	service := newTestService(seriesSource{}, pred, nil)

	resp, err := service.HealthCheck(context.Background(), nil)
	if err != nil {
		t.Fatalf("health: %v", err)
	}
	var health api.HealthResponse
	if err := api.FromStruct(resp, &health); err != nil {
		t.Fatalf("decode health: %v", err)
	}
	if health.Status != "SERVING" || health.ModelState != string(predictor.StateUntrained) || len(health.Degraded) != 2 {
		t.Fatalf("unexpected health: %+v", health)
	}
}

// takeoverProvider hands the training lock to another replica right after it is
// acquired, as happens when a run outlives the lock TTL.
type takeoverProvider struct {
	*cache.MemoryProvider
}

func (p takeoverProvider) SetNX(ctx context.Context, key string, value []byte, ttl time.Duration) (bool, error) {
	ok, err := p.MemoryProvider.SetNX(ctx, key, value, ttl)
	if ok && key == trainLockKey {
		_ = p.MemoryProvider.Set(ctx, key, []byte("other-replica"), ttl)
	}
	return ok, err
}

func TestTrainKeepsLockTakenOverByAnotherReplica(t *testing.T) {
	ctx := context.Background()
	provider := takeoverProvider{cache.NewMemoryProvider(time.Minute)}
	service := newTestService(seriesSource{"ranker": degradedSeries()},
		predictor.New(predictor.DefaultConfig(), predictor.FullCapabilities(), nil), provider)

	// the outcome of training does not matter here, only the lock left behind
	_, _ = service.TrainDeployment(ctx, "ranker", 240)

	got, err := provider.Get(ctx, trainLockKey)
	if err != nil || string(got) != "other-replica" {
		t.Fatalf("expected the other replica's lock to survive, got %q %v", got, err)
	}
}

func TestTrainHonoursLockAndSharesModel(t *testing.T) {
	ctx := context.Background()
	provider := cache.NewMemoryProvider(time.Minute)
	src := source.NewSimulatorSource(source.SimulatorConfig{Seed: 3, Degraded: map[string]int{"ranker": 96}})
	trainer := newTestService(src, predictor.New(predictor.DefaultConfig(), predictor.FullCapabilities(), nil), provider)

	if ok, _ := provider.SetNX(ctx, trainLockKey, []byte("other"), time.Minute); !ok {
		t.Fatalf("expected to take the lock")
	}
	_, err := trainer.Train(ctx, mustStruct(t, api.TrainRequest{Deployment: "ranker", HistoryHours: 720}))
	if status.Code(err) != codes.Aborted {
		t.Fatalf("expected aborted while locked, got %v", err)
	}
	if err := provider.Del(ctx, trainLockKey); err != nil {
		t.Fatalf("release: %v", err)
	}

	resp, err := trainer.Train(ctx, mustStruct(t, api.TrainRequest{Deployment: "ranker", HistoryHours: 720}))
	if err != nil {
		t.Fatalf("train: %v", err)
	}
	var report predictor.TrainingReport
	if err := api.FromStruct(resp, &report); err != nil {
		t.Fatalf("decode report: %v", err)
	}
	if report.Samples != 720 || report.Version == "" {
		t.Fatalf("unexpected report: %+v", report)
	}
	if _, err := provider.Get(ctx, trainLockKey); err == nil {
		t.Fatalf("expected lock released after training")
	}

	replica := newTestService(src, predictor.New(predictor.DefaultConfig(), predictor.FullCapabilities(), nil), provider)
	installed, err := replica.LoadSharedModel(ctx)
	if err != nil || !installed {
		t.Fatalf("expected shared model installed: %v %v", installed, err)
	}
	again, err := replica.LoadSharedModel(ctx)
	if err != nil || again {
		t.Fatalf("expected same version to be skipped: %v %v", again, err)
	}

	resp, err = replica.HealthCheck(ctx, nil)
	if err != nil {
		t.Fatalf("health: %v", err)
	}
	var health api.HealthResponse
	if err := api.FromStruct(resp, &health); err != nil {
		t.Fatalf("decode health: %v", err)
	}
	if health.ModelState != string(predictor.StateTrained) || health.ModelVersion != report.Version {
		t.Fatalf("unexpected replica health: %+v", health)
	}
	if len(health.Degraded) != len(report.Degraded) {
		t.Fatalf("expected degraded %v, got %v", report.Degraded, health.Degraded)
	}
}
