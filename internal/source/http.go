package source

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"path"
	"strings"
	"time"

	"github.com/miradorstack/mirador-forecast/internal/cache"
	"github.com/miradorstack/mirador-forecast/internal/models"
)

// DefaultSeriesPath is the feed endpoint queried for metric series.
const DefaultSeriesPath = "/api/v1/metrics/series"

// HTTPConfig configures the HTTP feed client.
type HTTPConfig struct {
	BaseURL    string
	SeriesPath string
	Timeout    time.Duration
	CacheTTL   time.Duration
}

// HTTPSource fetches metric series from a JSON feed.
type HTTPSource struct {
	baseURL    string
	seriesPath string
	httpClient *http.Client
	cache      cache.Provider
	cacheTTL   time.Duration
	logger     *slog.Logger
}

// NewHTTPSource constructs a feed client. provider caches responses for CacheTTL; a nil
// provider or zero TTL disables caching.
func NewHTTPSource(cfg HTTPConfig, provider cache.Provider, logger *slog.Logger) *HTTPSource {
	if cfg.SeriesPath == "" {
		cfg.SeriesPath = DefaultSeriesPath
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 5 * time.Second
	}
	if provider == nil {
		provider = cache.NoopProvider{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &HTTPSource{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		seriesPath: cfg.SeriesPath,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		cache:      provider,
		cacheTTL:   cfg.CacheTTL,
		logger:     logger,
	}
}

type seriesResponse struct {
	Series models.MetricSeries `json:"series"`
}

// FetchSeries queries the feed for the deployment's snapshots in [start, end).
func (c *HTTPSource) FetchSeries(ctx context.Context, deployment string, start, end time.Time) (models.MetricSeries, error) {
	if c == nil {
		return nil, fmt.Errorf("feed client not initialised")
	}
	if c.baseURL == "" {
		return nil, fmt.Errorf("feed base URL not configured")
	}

	key := c.cacheKey(deployment, start, end)
	if c.cacheTTL > 0 {
		if raw, err := c.cache.Get(ctx, key); err == nil {
			var cached seriesResponse
			if err := json.Unmarshal(raw, &cached); err == nil && len(cached.Series) > 0 {
				return cached.Series, nil
			}
		} else if !errors.Is(err, cache.ErrCacheMiss) {
			c.logger.Warn("feed cache lookup failed", slog.Any("error", err))
		}
	}

	payload := map[string]any{
		"deployment": deployment,
		"start":      start.UTC().Format(time.RFC3339),
		"end":        end.UTC().Format(time.RFC3339),
	}
	var response seriesResponse
	if err := c.postJSON(ctx, c.resolvePath(c.seriesPath), payload, &response); err != nil {
		return nil, fmt.Errorf("feed series request failed: %w", err)
	}
	if len(response.Series) == 0 {
		return nil, ErrNoSamples
	}

	if c.cacheTTL > 0 {
		if raw, err := json.Marshal(response); err == nil {
			if err := c.cache.Set(ctx, key, raw, c.cacheTTL); err != nil {
				c.logger.Warn("feed cache store failed", slog.Any("error", err))
			}
		}
	}
	return response.Series, nil
}

func (c *HTTPSource) cacheKey(deployment string, start, end time.Time) string {
	return fmt.Sprintf("forecast:feed:%s:%d:%d", deployment, start.Unix(), end.Unix())
}

func (c *HTTPSource) resolvePath(p string) string {
	cleaned := "/" + strings.TrimLeft(p, "/")
	u, err := url.Parse(c.baseURL)
	if err != nil {
		return c.baseURL + cleaned
	}
	u.Path = path.Join(u.Path, cleaned)
	return u.String()
}

func (c *HTTPSource) postJSON(ctx context.Context, endpoint string, payload any, out any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("feed returned %s", resp.Status)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
