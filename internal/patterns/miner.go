package patterns

import (
	"context"
	"log/slog"
	"sort"
	"time"

	"github.com/miradorstack/mirador-forecast/internal/models"
)

// Store abstracts persistence for mined patterns.
type Store interface {
	StorePatterns(ctx context.Context, deployment string, causes []models.RecurringCause) error
}

// Miner finds root causes that keep coming back across a deployment's recent reports.
type Miner struct {
	store  Store
	logger *slog.Logger
}

// NewMiner constructs a Miner; store may be nil for dry runs.
func NewMiner(logger *slog.Logger, store Store) *Miner {
	if logger == nil {
		logger = slog.Default()
	}
	return &Miner{store: store, logger: logger}
}

// Mine aggregates root causes by issue. Prevalence is the share of reports carrying the
// issue; results are ordered by prevalence, then issue name.
func (m *Miner) Mine(ctx context.Context, deployment string, reports []models.RiskReport) ([]models.RecurringCause, error) {
	if len(reports) == 0 {
		return nil, nil
	}

	stats := make(map[string]*causeAggregate)
	for _, report := range reports {
		seen := make(map[string]struct{})
		for _, cause := range report.RootCauses {
			if _, dup := seen[cause.Issue]; dup {
				continue
			}
			seen[cause.Issue] = struct{}{}
			agg := ensureAggregate(stats, cause)
			agg.count++
			agg.sum += cause.CurrentValue
			if cause.Severity == models.SeverityCritical {
				agg.critical++
			}
			if report.Timestamp.After(agg.lastSeen) {
				agg.lastSeen = report.Timestamp
			}
		}
	}

	causes := make([]models.RecurringCause, 0, len(stats))
	for issue, agg := range stats {
		causes = append(causes, models.RecurringCause{
			Issue:         issue,
			Category:      agg.category,
			Metric:        agg.metric,
			Occurrences:   agg.count,
			Prevalence:    float64(agg.count) / float64(len(reports)),
			CriticalShare: float64(agg.critical) / float64(agg.count),
			MeanValue:     agg.sum / float64(agg.count),
			LastSeen:      agg.lastSeen,
		})
	}

	sort.Slice(causes, func(i, j int) bool {
		if causes[i].Prevalence != causes[j].Prevalence {
			return causes[i].Prevalence > causes[j].Prevalence
		}
		return causes[i].Issue < causes[j].Issue
	})

	if m.store != nil && len(causes) > 0 {
		if err := m.store.StorePatterns(ctx, deployment, causes); err != nil {
			m.logger.Warn("pattern store failed", slog.Any("error", err))
		}
	}

	return causes, nil
}

type causeAggregate struct {
	category models.Category
	metric   models.Field
	count    int
	critical int
	sum      float64
	lastSeen time.Time
}

func ensureAggregate(m map[string]*causeAggregate, cause models.RootCause) *causeAggregate {
	agg, ok := m[cause.Issue]
	if !ok {
		agg = &causeAggregate{category: cause.Category, metric: cause.Metric}
		m[cause.Issue] = agg
	}
	return agg
}
