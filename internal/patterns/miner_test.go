package patterns

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/miradorstack/mirador-forecast/internal/cache"
	"github.com/miradorstack/mirador-forecast/internal/models"
)

type fakePatternStore struct {
	stored int
}

func (f *fakePatternStore) StorePatterns(ctx context.Context, deployment string, causes []models.RecurringCause) error {
	f.stored += len(causes)
	return nil
}

func cause(issue string, category models.Category, sev models.Severity, value float64) models.RootCause {
	return models.RootCause{Issue: issue, Category: category, Severity: sev, CurrentValue: value}
}

func TestMinerMinesRecurringCauses(t *testing.T) {
	store := &fakePatternStore{}
	miner := NewMiner(nil, store)

	now := time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)
	reports := []models.RiskReport{
		{Timestamp: now, RootCauses: []models.RootCause{
			cause("High Latency", models.CategoryPerformance, models.SeverityCritical, 250),
			cause("Cost Overrun", models.CategoryCost, models.SeverityWarning, 35),
		}},
		{Timestamp: now.Add(time.Hour), RootCauses: []models.RootCause{
			cause("High Latency", models.CategoryPerformance, models.SeverityWarning, 150),
		}},
		{Timestamp: now.Add(2 * time.Hour)},
		{Timestamp: now.Add(3 * time.Hour), RootCauses: []models.RootCause{
			cause("Cost Overrun", models.CategoryCost, models.SeverityWarning, 45),
		}},
	}

	causes, err := miner.Mine(context.Background(), "ranker", reports)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(causes) != 2 {
		t.Fatalf("expected two recurring causes, got %+v", causes)
	}
	// equal prevalence falls back to issue name
	if causes[0].Issue != "Cost Overrun" || causes[1].Issue != "High Latency" {
		t.Fatalf("unexpected order: %+v", causes)
	}
	latency := causes[1]
	if latency.Prevalence != 0.5 || latency.CriticalShare != 0.5 || latency.MeanValue != 200 {
		t.Fatalf("unexpected latency aggregate: %+v", latency)
	}
	if !latency.LastSeen.Equal(now.Add(time.Hour)) {
		t.Fatalf("unexpected last seen: %v", latency.LastSeen)
	}
	if store.stored != 2 {
		t.Fatalf("expected patterns to be stored, got %d", store.stored)
	}
}

func TestMinerEmptyHistory(t *testing.T) {
	causes, err := NewMiner(nil, nil).Mine(context.Background(), "ranker", nil)
	if err != nil || causes != nil {
		t.Fatalf("expected nil result, got %v %v", causes, err)
	}
}

func TestCacheStoreRoundTrip(t *testing.T) {
	ctx := context.Background()
	store := NewCacheStore(cache.NewMemoryProvider(time.Minute), time.Hour)

	if got, err := store.LoadPatterns(ctx, "ranker"); err != nil || got != nil {
		t.Fatalf("expected empty store, got %v %v", got, err)
	}
	in := []models.RecurringCause{{Issue: "High Latency", Occurrences: 3, Prevalence: 0.75}}
	if err := store.StorePatterns(ctx, "ranker", in); err != nil {
		t.Fatalf("store: %v", err)
	}
	out, err := store.LoadPatterns(ctx, "ranker")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(out) != 1 || out[0].Occurrences != 3 {
		t.Fatalf("unexpected patterns: %+v", out)
	}
}

func TestReportLogKeepsMostRecent(t *testing.T) {
	log := NewReportLog(2)
	base := time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < 3; i++ {
		log.Append(models.RiskReport{Deployment: "ranker", Timestamp: base.Add(time.Duration(i) * time.Hour)})
	}
	log.Append(models.RiskReport{Deployment: "fraud", Timestamp: base})

	recent := log.Recent("ranker")
	if len(recent) != 2 || !recent[0].Timestamp.Equal(base.Add(time.Hour)) {
		t.Fatalf("unexpected reports: %+v", recent)
	}
	if len(log.Recent("fraud")) != 1 || len(log.Recent("missing")) != 0 {
		t.Fatalf("expected reports to be partitioned by deployment")
	}
}

type brokenRepo struct{}

func (brokenRepo) StorePatterns(context.Context, string, []models.RecurringCause) error {
	return errors.New("archive down")
}

func (brokenRepo) LoadPatterns(context.Context, string) ([]models.RecurringCause, error) {
	return nil, errors.New("archive down")
}

func TestChainFansOutAndFallsBack(t *testing.T) {
	ctx := context.Background()
	store := NewCacheStore(cache.NewMemoryProvider(time.Minute), time.Minute)
	chain := Chain{brokenRepo{}, store}

	causes := []models.RecurringCause{{Issue: "High Latency", Prevalence: 0.5}}
	if err := chain.StorePatterns(ctx, "ranker", causes); err == nil {
		t.Fatalf("expected broken repository error to surface")
	}
	loaded, err := chain.LoadPatterns(ctx, "ranker")
	if err != nil {
		t.Fatalf("expected fallback to cache store, got %v", err)
	}
	if len(loaded) != 1 || loaded[0].Issue != "High Latency" {
		t.Fatalf("unexpected patterns: %+v", loaded)
	}

	if _, err := chain.LoadPatterns(ctx, "fraud"); err == nil {
		t.Fatalf("expected error when no repository has patterns")
	}
}
