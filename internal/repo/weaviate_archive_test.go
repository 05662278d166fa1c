package repo

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/miradorstack/mirador-forecast/internal/cache"
	"github.com/miradorstack/mirador-forecast/internal/models"
)

type roundTripFunc func(*http.Request) (*http.Response, error)

func (f roundTripFunc) RoundTrip(req *http.Request) (*http.Response, error) {
	return f(req)
}

func archiveWithTransport(ttl time.Duration, provider cache.Provider, rt roundTripFunc) *PatternArchive {
	r := NewPatternArchive("https://weaviate.test/", "secret", time.Second, provider, ttl)
	r.httpClient = &http.Client{Transport: rt}
	return r
}

func jsonResponse(body string) *http.Response {
	return &http.Response{
		StatusCode: http.StatusOK,
		Body:       io.NopCloser(bytes.NewReader([]byte(body))),
		Header:     make(http.Header),
	}
}

func TestArchiveNoEndpointIsNoop(t *testing.T) {
	r := NewPatternArchive("", "", time.Second, cache.NoopProvider{}, 0)
	causes := []models.RecurringCause{{Issue: "High Latency", Prevalence: 0.5}}
	if err := r.StorePatterns(context.Background(), "ranker", causes); err != nil {
		t.Fatalf("expected nil error, got %v", err)
	}
	loaded, err := r.LoadPatterns(context.Background(), "ranker")
	if err != nil || loaded != nil {
		t.Fatalf("expected nothing loaded, got %v %v", loaded, err)
	}
}

func TestStorePatternsUpsertsByIssue(t *testing.T) {
	var paths []string
	r := archiveWithTransport(0, nil, func(req *http.Request) (*http.Response, error) {
		if req.Method != http.MethodPut {
			t.Fatalf("expected PUT, got %s", req.Method)
		}
		if got := req.Header.Get("Authorization"); got != "Bearer secret" {
			t.Fatalf("unexpected auth header %q", got)
		}
		var payload map[string]any
		if err := json.NewDecoder(req.Body).Decode(&payload); err != nil {
			t.Fatalf("decode payload: %v", err)
		}
		props := payload["properties"].(map[string]any)
		if props["deployment"] != "ranker" {
			t.Fatalf("unexpected properties: %v", props)
		}
		paths = append(paths, req.URL.Path)
		return jsonResponse(`{}`), nil
	})

	causes := []models.RecurringCause{{Issue: "High Latency"}, {Issue: "Cost Overrun"}}
	ctx := context.Background()
	if err := r.StorePatterns(ctx, "ranker", causes); err != nil {
		t.Fatalf("store: %v", err)
	}
	if err := r.StorePatterns(ctx, "ranker", causes[:1]); err != nil {
		t.Fatalf("store again: %v", err)
	}
	if len(paths) != 3 || paths[0] != paths[2] || paths[0] == paths[1] {
		t.Fatalf("expected stable per-issue object paths, got %v", paths)
	}
	if !strings.HasPrefix(paths[0], "/v1/objects/RecurringCause/") {
		t.Fatalf("unexpected path %s", paths[0])
	}
}

func TestLoadPatternsCachesResults(t *testing.T) {
	var hits int
	r := archiveWithTransport(time.Hour, cache.NewMemoryProvider(time.Minute), func(req *http.Request) (*http.Response, error) {
		hits++
		if req.URL.Path != "/v1/graphql" {
			t.Fatalf("unexpected path: %s", req.URL.Path)
		}
		return jsonResponse(`{"data":{"Get":{"RecurringCause":[
			{"issue":"Cost Overrun","category":"Cost","metric":"cost_per_hour","occurrences":2,"prevalence":0.2,"criticalShare":0,"meanValue":61,"lastSeen":"2026-07-01T10:00:00Z"},
			{"issue":"High Latency","category":"Performance","metric":"latency_ms","occurrences":5,"prevalence":0.5,"criticalShare":0.4,"meanValue":240,"lastSeen":"2026-07-01T11:00:00Z"}]}}}`), nil
	})

	ctx := context.Background()
	first, err := r.LoadPatterns(ctx, "ranker")
	if err != nil {
		t.Fatalf("unexpected error on first load: %v", err)
	}
	if hits != 1 {
		t.Fatalf("expected one upstream call, got %d", hits)
	}
	if len(first) != 2 || first[0].Issue != "High Latency" || first[0].Category != models.CategoryPerformance {
		t.Fatalf("unexpected pattern payload: %+v", first)
	}

	second, err := r.LoadPatterns(ctx, "ranker")
	if err != nil {
		t.Fatalf("unexpected error on cached load: %v", err)
	}
	if hits != 1 {
		t.Fatalf("expected cached response without new hit, hits=%d", hits)
	}
	if len(second) != 2 || !second[1].LastSeen.Equal(time.Date(2026, 7, 1, 10, 0, 0, 0, time.UTC)) {
		t.Fatalf("unexpected cached pattern payload: %+v", second)
	}
}

func TestLoadPatternsSurfacesGraphQLErrors(t *testing.T) {
	r := archiveWithTransport(0, nil, func(req *http.Request) (*http.Response, error) {
		return jsonResponse(`{"errors":[{"message":"class RecurringCause not found"}]}`), nil
	})
	if _, err := r.LoadPatterns(context.Background(), "ranker"); err == nil || !strings.Contains(err.Error(), "not found") {
		t.Fatalf("expected graphql error, got %v", err)
	}
}
