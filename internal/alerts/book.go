package alerts

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/miradorstack/mirador-forecast/internal/cache"
	"github.com/miradorstack/mirador-forecast/internal/metrics"
	"github.com/miradorstack/mirador-forecast/internal/models"
)

// ErrAlertNotFound is returned when an id is not in the active view.
var ErrAlertNotFound = errors.New("alert not found")

// DefaultCooldown is the per-condition quiet period applied by Book.
const DefaultCooldown = 6 * time.Hour

// BookConfig controls alert retention and deduplication.
type BookConfig struct {
	// Cooldown suppresses a condition that fired less than Cooldown ago, measured on
	// report timestamps. Zero disables suppression.
	Cooldown time.Duration

	// HistoryLimit bounds the append-only history and the active view, oldest first;
	// zero keeps everything.
	HistoryLimit int
}

// Book keeps the append-only alert history and the mutable active view.
type Book struct {
	mu         sync.RWMutex
	cfg        BookConfig
	history    []models.Alert
	active     []models.Alert
	seen       map[string]struct{}
	suppressed int
	cooldowns  *cooldownStore
	logger     *slog.Logger
}

// NewBook creates a book. provider shares cooldown state across replicas; nil keeps
// it in process.
func NewBook(cfg BookConfig, provider cache.Provider, logger *slog.Logger) *Book {
	if cfg.Cooldown < 0 {
		cfg.Cooldown = 0
	}
	if provider == nil {
		provider = cache.NewMemoryProvider(time.Minute)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Book{
		cfg:       cfg,
		seen:      make(map[string]struct{}),
		cooldowns: &cooldownStore{provider: provider, ttl: cfg.Cooldown},
		logger:    logger,
	}
}

// Record adds alerts to history and the active view and returns those accepted.
// Alerts already recorded (same id) are ignored; alerts whose condition is cooling
// down are counted as suppressed.
func (b *Book) Record(ctx context.Context, alerts []models.Alert) []models.Alert {
	b.mu.Lock()
	defer b.mu.Unlock()

	accepted := make([]models.Alert, 0, len(alerts))
	for _, a := range alerts {
		if _, dup := b.seen[a.ID]; dup {
			continue
		}
		if b.cfg.Cooldown > 0 && !b.cooldowns.allow(ctx, a.Condition(), a.Timestamp, b.cfg.Cooldown, b.logger) {
			b.suppressed++
			metrics.ObserveSuppressed()
			b.logger.Debug("alert suppressed by cooldown", slog.String("condition", a.Condition()))
			continue
		}
		b.seen[a.ID] = struct{}{}
		b.history = append(b.history, a)
		b.active = append(b.active, a)
		accepted = append(accepted, a)
		metrics.ObserveAlert(string(a.Severity))
	}
	b.trim()
	return accepted
}

// trim enforces HistoryLimit. Ids leaving the history are forgotten; the cooldown
// still guards their conditions.
func (b *Book) trim() {
	limit := b.cfg.HistoryLimit
	if limit <= 0 {
		return
	}
	if over := len(b.history) - limit; over > 0 {
		for _, a := range b.history[:over] {
			delete(b.seen, a.ID)
		}
		b.history = append([]models.Alert(nil), b.history[over:]...)
	}
	if over := len(b.active) - limit; over > 0 {
		b.logger.Debug("dropping oldest active alerts", slog.Int("dropped", over))
		b.active = append([]models.Alert(nil), b.active[over:]...)
	}
}

// Active returns a copy of the active view, optionally filtered by severity.
func (b *Book) Active(severity models.Severity) []models.Alert {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make([]models.Alert, 0, len(b.active))
	for _, a := range b.active {
		if severity == "" || a.Severity == severity {
			out = append(out, a)
		}
	}
	return out
}

// History returns up to limit of the most recent recorded alerts, oldest first.
func (b *Book) History(limit int) []models.Alert {
	b.mu.RLock()
	defer b.mu.RUnlock()
	h := b.history
	if limit > 0 && len(h) > limit {
		h = h[len(h)-limit:]
	}
	return append([]models.Alert(nil), h...)
}

// Acknowledge marks an active alert acknowledged.
func (b *Book) Acknowledge(id string) (models.Alert, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for i := range b.active {
		if b.active[i].ID == id {
			b.active[i].Status = models.AlertAcknowledged
			return b.active[i], nil
		}
	}
	return models.Alert{}, ErrAlertNotFound
}

// Resolve removes an alert from the active view. History keeps the original entry.
func (b *Book) Resolve(id string) (models.Alert, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for i := range b.active {
		if b.active[i].ID == id {
			a := b.active[i]
			a.Status = models.AlertResolved
			b.active = append(b.active[:i], b.active[i+1:]...)
			return a, nil
		}
	}
	return models.Alert{}, ErrAlertNotFound
}

// Summary counts active alerts by severity alongside history and suppression totals.
func (b *Book) Summary() models.AlertSummary {
	b.mu.RLock()
	defer b.mu.RUnlock()
	s := models.AlertSummary{
		TotalActive:     len(b.active),
		TotalHistorical: len(b.history),
		Suppressed:      b.suppressed,
	}
	for _, a := range b.active {
		switch a.Severity {
		case models.SeverityCritical:
			s.Critical++
		case models.SeverityWarning:
			s.Warning++
		case models.SeverityInfo:
			s.Info++
		}
	}
	return s
}

// cooldownStore remembers when each condition last fired.
type cooldownStore struct {
	provider cache.Provider
	ttl      time.Duration
}

const cooldownKeyPrefix = "forecast:alert:cooldown:"

func (c *cooldownStore) allow(ctx context.Context, condition string, at time.Time, cooldown time.Duration, logger *slog.Logger) bool {
	key := cooldownKeyPrefix + condition
	raw, err := c.provider.Get(ctx, key)
	switch {
	case err == nil:
		last, perr := time.Parse(time.RFC3339Nano, string(raw))
		if perr == nil && !at.Before(last) && at.Sub(last) < cooldown {
			return false
		}
	case !errors.Is(err, cache.ErrCacheMiss):
		logger.Warn("cooldown lookup failed, allowing alert", slog.Any("error", err))
	}
	if err := c.provider.Set(ctx, key, []byte(at.UTC().Format(time.RFC3339Nano)), c.ttl); err != nil {
		logger.Warn("cooldown store failed", slog.Any("error", err))
	}
	return true
}
