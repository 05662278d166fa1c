package source

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"testing"
	"time"

	"github.com/miradorstack/mirador-forecast/internal/cache"
	"github.com/miradorstack/mirador-forecast/internal/models"
)

func jsonResponse(t *testing.T, status int, payload any) *http.Response {
	t.Helper()
	data, err := json.Marshal(payload)
	if err != nil {
		t.Fatalf("marshal payload: %v", err)
	}
	return &http.Response{
		StatusCode: status,
		Status:     http.StatusText(status),
		Body:       io.NopCloser(bytes.NewReader(data)),
		Header:     make(http.Header),
	}
}

func TestHTTPSourceCachesSeries(t *testing.T) {
	hits := 0
	start := time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)
	end := start.Add(2 * time.Hour)

	client := NewHTTPSource(HTTPConfig{BaseURL: "https://feed.example.com/base", CacheTTL: time.Minute}, cache.NewMemoryProvider(time.Minute), nil)
	client.httpClient = newTestClient(roundTripFunc(func(req *http.Request) (*http.Response, error) {
		hits++
		if req.URL.Path != "/base/api/v1/metrics/series" {
			t.Fatalf("unexpected path: %s", req.URL.Path)
		}
		var body map[string]string
		if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		if body["deployment"] != "ranker" || body["start"] != "2026-05-01T00:00:00Z" {
			t.Fatalf("unexpected request body: %+v", body)
		}
		return jsonResponse(t, http.StatusOK, map[string]any{
			"series": []models.MetricSnapshot{
				{Timestamp: start, Accuracy: 0.93, LatencyMs: 70},
				{Timestamp: start.Add(time.Hour), Accuracy: 0.92, LatencyMs: 75},
			},
		}), nil
	}))

	ctx := context.Background()
	series, err := client.FetchSeries(ctx, "ranker", start, end)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(series) != 2 || series[1].LatencyMs != 75 {
		t.Fatalf("unexpected series: %+v", series)
	}

	cached, err := client.FetchSeries(ctx, "ranker", start, end)
	if err != nil {
		t.Fatalf("unexpected cached error: %v", err)
	}
	if hits != 1 {
		t.Fatalf("cache miss triggered network call; hits=%d", hits)
	}
	if len(cached) != 2 || !cached[0].Timestamp.Equal(start) {
		t.Fatalf("unexpected cached payload: %+v", cached)
	}
}

func TestHTTPSourceErrors(t *testing.T) {
	start := time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)
	ctx := context.Background()

	if _, err := NewHTTPSource(HTTPConfig{}, nil, nil).FetchSeries(ctx, "ranker", start, start.Add(time.Hour)); err == nil {
		t.Fatalf("expected error without base URL")
	}

	client := NewHTTPSource(HTTPConfig{BaseURL: "https://feed.example.com"}, nil, nil)
	client.httpClient = newTestClient(roundTripFunc(func(req *http.Request) (*http.Response, error) {
		return jsonResponse(t, http.StatusBadGateway, map[string]any{}), nil
	}))
	if _, err := client.FetchSeries(ctx, "ranker", start, start.Add(time.Hour)); err == nil {
		t.Fatalf("expected error for non-200 response")
	}

	client.httpClient = newTestClient(roundTripFunc(func(req *http.Request) (*http.Response, error) {
		return jsonResponse(t, http.StatusOK, map[string]any{"series": []any{}}), nil
	}))
	if _, err := client.FetchSeries(ctx, "ranker", start, start.Add(time.Hour)); !errors.Is(err, ErrNoSamples) {
		t.Fatalf("expected ErrNoSamples, got %v", err)
	}
}

func TestSimulatorSourceIsStablePerDeployment(t *testing.T) {
	end := time.Date(2026, 5, 10, 0, 0, 0, 0, time.UTC)
	start := end.Add(-72 * time.Hour)
	src := NewSimulatorSource(SimulatorConfig{Seed: 7, Degraded: map[string]int{"fraud": 24}})
	ctx := context.Background()

	a, err := src.FetchSeries(ctx, "ranker", start, end)
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	b, _ := src.FetchSeries(ctx, "ranker", start, end)
	if len(a) != 72 {
		t.Fatalf("expected 72 hourly samples, got %d", len(a))
	}
	if a[71] != b[71] {
		t.Fatalf("expected identical series for the same deployment")
	}
	if !a[len(a)-1].Timestamp.Before(end) {
		t.Fatalf("series must end before the window end")
	}

	other, _ := src.FetchSeries(ctx, "fraud", start, end)
	if other[71].Accuracy == a[71].Accuracy {
		t.Fatalf("expected different deployments to diverge")
	}

	if _, err := src.FetchSeries(ctx, "ranker", end, start); !errors.Is(err, ErrNoSamples) {
		t.Fatalf("expected ErrNoSamples for empty window, got %v", err)
	}
}
