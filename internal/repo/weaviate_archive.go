package repo

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/miradorstack/mirador-forecast/internal/cache"
	"github.com/miradorstack/mirador-forecast/internal/models"
)

const patternClass = "RecurringCause"

var patternNamespace = uuid.MustParse("6f1c5b1e-3a43-4c1f-9a59-0d3c1b7e2f10")

// PatternArchive keeps mined recurring causes in Weaviate so they outlive the
// in-memory report log and the cache TTL.
type PatternArchive struct {
	endpoint   string
	apiKey     string
	httpClient *http.Client
	cache      cache.Provider
	patternTTL time.Duration
}

// NewPatternArchive constructs a Weaviate-backed archive. An empty endpoint turns
// every operation into a no-op.
func NewPatternArchive(endpoint, apiKey string, timeout time.Duration, cacheProvider cache.Provider, patternTTL time.Duration) *PatternArchive {
	if cacheProvider == nil {
		cacheProvider = cache.NoopProvider{}
	}
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	if patternTTL < 0 {
		patternTTL = 0
	}
	return &PatternArchive{
		endpoint:   strings.TrimRight(endpoint, "/"),
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: timeout},
		cache:      cacheProvider,
		patternTTL: patternTTL,
	}
}

// StorePatterns upserts one object per recurring cause, keyed by deployment and issue.
func (r *PatternArchive) StorePatterns(ctx context.Context, deployment string, causes []models.RecurringCause) error {
	if r == nil {
		return fmt.Errorf("pattern archive not initialised")
	}
	if r.endpoint == "" {
		return nil
	}

	for _, cause := range causes {
		id := patternID(deployment, cause.Issue)
		payload := map[string]interface{}{
			"class":      patternClass,
			"id":         id,
			"properties": buildPatternProperties(deployment, cause),
		}
		body, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("marshal pattern: %w", err)
		}
		if err := r.do(ctx, http.MethodPut, "/v1/objects/"+patternClass+"/"+id, body, nil); err != nil {
			return fmt.Errorf("store pattern %q: %w", cause.Issue, err)
		}
	}

	if r.patternTTL > 0 {
		_ = r.cache.Del(ctx, cachePatternsKey(deployment))
	}
	return nil
}

// LoadPatterns returns archived causes for deployment, most prevalent first.
func (r *PatternArchive) LoadPatterns(ctx context.Context, deployment string) ([]models.RecurringCause, error) {
	if r == nil {
		return nil, fmt.Errorf("pattern archive not initialised")
	}
	if r.endpoint == "" {
		return nil, nil
	}

	cacheKey := cachePatternsKey(deployment)
	if r.patternTTL > 0 {
		if data, err := r.cache.Get(ctx, cacheKey); err == nil {
			var cached []models.RecurringCause
			if err := json.Unmarshal(data, &cached); err == nil {
				return cached, nil
			}
		}
	}

	gql := map[string]interface{}{
		"query": fmt.Sprintf(`{
          Get {
            %s(
              where: {path: ["deployment"], operator: Equal, valueText: %q}
            ) {
              issue
              category
              metric
              occurrences
              prevalence
              criticalShare
              meanValue
              lastSeen
            }
          }
        }`, patternClass, deployment),
	}
	body, err := json.Marshal(gql)
	if err != nil {
		return nil, err
	}

	var response struct {
		Data struct {
			Get map[string][]struct {
				Issue         string  `json:"issue"`
				Category      string  `json:"category"`
				Metric        string  `json:"metric"`
				Occurrences   int     `json:"occurrences"`
				Prevalence    float64 `json:"prevalence"`
				CriticalShare float64 `json:"criticalShare"`
				MeanValue     float64 `json:"meanValue"`
				LastSeen      string  `json:"lastSeen"`
			} `json:"Get"`
		} `json:"data"`
		Errors []struct {
			Message string `json:"message"`
		} `json:"errors"`
	}
	if err := r.do(ctx, http.MethodPost, "/v1/graphql", body, &response); err != nil {
		return nil, fmt.Errorf("query patterns: %w", err)
	}
	if len(response.Errors) > 0 {
		return nil, fmt.Errorf("query patterns: %s", response.Errors[0].Message)
	}

	rows := response.Data.Get[patternClass]
	causes := make([]models.RecurringCause, 0, len(rows))
	for _, p := range rows {
		lastSeen, _ := time.Parse(time.RFC3339, p.LastSeen)
		causes = append(causes, models.RecurringCause{
			Issue:         p.Issue,
			Category:      models.Category(p.Category),
			Metric:        models.Field(p.Metric),
			Occurrences:   p.Occurrences,
			Prevalence:    p.Prevalence,
			CriticalShare: p.CriticalShare,
			MeanValue:     p.MeanValue,
			LastSeen:      lastSeen,
		})
	}
	sort.SliceStable(causes, func(i, j int) bool {
		if causes[i].Prevalence != causes[j].Prevalence {
			return causes[i].Prevalence > causes[j].Prevalence
		}
		return causes[i].Issue < causes[j].Issue
	})

	if r.patternTTL > 0 && len(causes) > 0 {
		if payload, err := json.Marshal(causes); err == nil {
			_ = r.cache.Set(ctx, cacheKey, payload, r.patternTTL)
		}
	}
	return causes, nil
}

func (r *PatternArchive) do(ctx context.Context, method, path string, body []byte, out any) error {
	req, err := http.NewRequestWithContext(ctx, method, r.endpoint+path, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if r.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+r.apiKey)
	}

	resp, err := r.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		data, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("weaviate returned %d: %s", resp.StatusCode, strings.TrimSpace(string(data)))
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func patternID(deployment, issue string) string {
	return uuid.NewSHA1(patternNamespace, []byte(deployment+"|"+issue)).String()
}

func cachePatternsKey(deployment string) string {
	return "weaviate:patterns:" + deployment
}

func buildPatternProperties(deployment string, cause models.RecurringCause) map[string]interface{} {
	lastSeen := cause.LastSeen
	if lastSeen.IsZero() {
		lastSeen = time.Now().UTC()
	}
	return map[string]interface{}{
		"deployment":    deployment,
		"issue":         cause.Issue,
		"category":      string(cause.Category),
		"metric":        string(cause.Metric),
		"occurrences":   cause.Occurrences,
		"prevalence":    cause.Prevalence,
		"criticalShare": cause.CriticalShare,
		"meanValue":     cause.MeanValue,
		"lastSeen":      lastSeen.UTC().Format(time.RFC3339),
	}
}
