package utils

import (
	"sync"
	"time"

	"github.com/caio/go-tdigest/v4"
)

// LatencyTracker estimates duration percentiles over a rolling window of samples.
// The window rotates every maxSize samples; the previous window answers queries until
// the new one has data.
type LatencyTracker struct {
	mu       sync.RWMutex
	current  *tdigest.TDigest
	previous *tdigest.TDigest
	count    int
	maxSize  int
}

// NewLatencyTracker creates a tracker whose window holds up to maxSize samples.
func NewLatencyTracker(maxSize int) *LatencyTracker {
	if maxSize <= 0 {
		maxSize = 512
	}
	return &LatencyTracker{current: newDigest(), maxSize: maxSize}
}

func newDigest() *tdigest.TDigest {
	d, _ := tdigest.New()
	return d
}

// Observe records a new duration.
func (l *LatencyTracker) Observe(d time.Duration) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.count >= l.maxSize {
		l.previous, l.current, l.count = l.current, newDigest(), 0
	}
	if err := l.current.Add(float64(d)); err == nil {
		l.count++
	}
}

// Percentile returns the percentile (0-100) duration. Returns zero if no samples.
func (l *LatencyTracker) Percentile(p float64) time.Duration {
	l.mu.RLock()
	defer l.mu.RUnlock()

	digest := l.current
	if l.count == 0 {
		digest = l.previous
	}
	if digest == nil || digest.Count() == 0 {
		return 0
	}
	q := p / 100
	if q < 0 {
		q = 0
	}
	if q > 1 {
		q = 1
	}
	return time.Duration(digest.Quantile(q))
}

// Count returns the number of samples in the current window.
func (l *LatencyTracker) Count() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.count
}
