package patterns

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/miradorstack/mirador-forecast/internal/cache"
	"github.com/miradorstack/mirador-forecast/internal/models"
)

// StoreFunc adapts a function to the Store interface.
type StoreFunc func(ctx context.Context, deployment string, causes []models.RecurringCause) error

// StorePatterns implements Store.
func (f StoreFunc) StorePatterns(ctx context.Context, deployment string, causes []models.RecurringCause) error {
	return f(ctx, deployment, causes)
}

// Loader reads previously stored patterns.
type Loader interface {
	LoadPatterns(ctx context.Context, deployment string) ([]models.RecurringCause, error)
}

// Repository both stores and loads patterns.
type Repository interface {
	Store
	Loader
}

// Chain writes to every repository and loads from the first that has patterns.
type Chain []Repository

// StorePatterns implements Store. Every repository is attempted; errors are joined.
func (c Chain) StorePatterns(ctx context.Context, deployment string, causes []models.RecurringCause) error {
	var errs []error
	for _, repo := range c {
		if err := repo.StorePatterns(ctx, deployment, causes); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// LoadPatterns implements Loader. A failing repository is skipped when a later one
// has patterns.
func (c Chain) LoadPatterns(ctx context.Context, deployment string) ([]models.RecurringCause, error) {
	var firstErr error
	for _, repo := range c {
		causes, err := repo.LoadPatterns(ctx, deployment)
		if err != nil {
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		if len(causes) > 0 {
			return causes, nil
		}
	}
	return nil, firstErr
}

const patternKeyPrefix = "forecast:patterns:"

// CacheStore keeps the latest mined patterns per deployment in a cache provider.
type CacheStore struct {
	provider cache.Provider
	ttl      time.Duration
}

// NewCacheStore constructs a CacheStore.
func NewCacheStore(provider cache.Provider, ttl time.Duration) *CacheStore {
	if provider == nil {
		provider = cache.NoopProvider{}
	}
	return &CacheStore{provider: provider, ttl: ttl}
}

// StorePatterns implements Store.
func (s *CacheStore) StorePatterns(ctx context.Context, deployment string, causes []models.RecurringCause) error {
	raw, err := json.Marshal(causes)
	if err != nil {
		return fmt.Errorf("marshal patterns: %w", err)
	}
	return s.provider.Set(ctx, patternKeyPrefix+deployment, raw, s.ttl)
}

// LoadPatterns returns the last stored patterns, or nil when none are cached.
func (s *CacheStore) LoadPatterns(ctx context.Context, deployment string) ([]models.RecurringCause, error) {
	raw, err := s.provider.Get(ctx, patternKeyPrefix+deployment)
	if errors.Is(err, cache.ErrCacheMiss) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var causes []models.RecurringCause
	if err := json.Unmarshal(raw, &causes); err != nil {
		return nil, fmt.Errorf("decode patterns: %w", err)
	}
	return causes, nil
}

// ReportLog retains the most recent reports per deployment for mining.
type ReportLog struct {
	mu      sync.RWMutex
	limit   int
	reports map[string][]models.RiskReport
}

// NewReportLog keeps up to limit reports per deployment; limit <= 0 selects 168.
func NewReportLog(limit int) *ReportLog {
	if limit <= 0 {
		limit = 168
	}
	return &ReportLog{limit: limit, reports: make(map[string][]models.RiskReport)}
}

// Append records a report under its deployment.
func (l *ReportLog) Append(report models.RiskReport) {
	l.mu.Lock()
	defer l.mu.Unlock()
	list := append(l.reports[report.Deployment], report)
	if len(list) > l.limit {
		list = append([]models.RiskReport(nil), list[len(list)-l.limit:]...)
	}
	l.reports[report.Deployment] = list
}

// Recent returns a copy of the stored reports for deployment, oldest first.
func (l *ReportLog) Recent(deployment string) []models.RiskReport {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return append([]models.RiskReport(nil), l.reports[deployment]...)
}
