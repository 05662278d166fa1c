package engine

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/miradorstack/mirador-forecast/internal/models"
)

// RuleEngine adds operator-defined recommendations on top of the built-in lists.
type RuleEngine struct {
	rules  []Rule
	logger *slog.Logger
}

// Rule represents a single recommendation rule.
type Rule struct {
	ID              string    `yaml:"id"`
	Match           RuleMatch `yaml:"match"`
	Recommendations []string  `yaml:"recommendations"`
}

// RuleMatch defines optional attributes for rule matching. Empty attributes match
// everything.
type RuleMatch struct {
	Deployment     string   `yaml:"deployment"`
	AlertType      string   `yaml:"alert_type"`
	Severity       string   `yaml:"severity"`
	Issues         []string `yaml:"issues"`
	Categories     []string `yaml:"categories"`
	MinProbability float64  `yaml:"min_probability"`
	MaxHealth      float64  `yaml:"max_health"`
}

// RuleConfigFile is the YAML root structure.
type RuleConfigFile struct {
	Rules []Rule `yaml:"rules"`
}

// NewRuleEngine loads rules from the provided path. If path is empty, returns nil engine.
func NewRuleEngine(path string, logger *slog.Logger) (*RuleEngine, error) {
	if path == "" {
		return nil, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}
	var cfg RuleConfigFile
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}
	if err := validateRules(cfg.Rules); err != nil {
		return nil, fmt.Errorf("rule pack %s: %w", path, err)
	}
	if logger == nil {
		logger = slog.Default()
	}
	logger.Debug("recommendation rules loaded", slog.String("path", path), slog.Int("rules", len(cfg.Rules)))
	return &RuleEngine{rules: cfg.Rules, logger: logger}, nil
}

// Recommend returns the recommendations of every rule matching the alert and its report.
func (e *RuleEngine) Recommend(report models.RiskReport, alert models.Alert) []string {
	if e == nil {
		return nil
	}

	matched := make([]string, 0)
	for _, rule := range e.rules {
		m := rule.Match
		if m.Deployment != "" && !strings.EqualFold(m.Deployment, report.Deployment) {
			continue
		}
		if m.AlertType != "" && !strings.EqualFold(m.AlertType, alert.Type) {
			continue
		}
		if m.Severity != "" && !strings.EqualFold(m.Severity, string(alert.Severity)) {
			continue
		}
		if len(m.Issues) > 0 && !reportHasIssue(m.Issues, report) {
			continue
		}
		if len(m.Categories) > 0 && !reportHasCategory(m.Categories, report) {
			continue
		}
		if m.MinProbability > 0 && report.FailureProbability.Overall < m.MinProbability {
			continue
		}
		if m.MaxHealth > 0 && report.HealthScore > m.MaxHealth {
			continue
		}
		matched = appendUnique(matched, rule.Recommendations...)
	}
	return matched
}

// Len reports the number of loaded rules.
func (e *RuleEngine) Len() int {
	if e == nil {
		return 0
	}
	return len(e.rules)
}

func validateRules(rules []Rule) error {
	seen := make(map[string]struct{}, len(rules))
	for i, rule := range rules {
		if strings.TrimSpace(rule.ID) == "" {
			return fmt.Errorf("rule %d: id is required", i)
		}
		if _, dup := seen[rule.ID]; dup {
			return fmt.Errorf("rule %s: duplicate id", rule.ID)
		}
		seen[rule.ID] = struct{}{}
		if len(rule.Recommendations) == 0 {
			return fmt.Errorf("rule %s: no recommendations", rule.ID)
		}
		switch models.Severity(strings.ToLower(rule.Match.Severity)) {
		case "", models.SeverityInfo, models.SeverityWarning, models.SeverityCritical:
		default:
			return fmt.Errorf("rule %s: unknown severity %q", rule.ID, rule.Match.Severity)
		}
		if rule.Match.MinProbability < 0 || rule.Match.MinProbability > 100 {
			return fmt.Errorf("rule %s: min_probability must be within [0, 100]", rule.ID)
		}
	}
	return nil
}

func reportHasIssue(issues []string, report models.RiskReport) bool {
	for _, cause := range report.RootCauses {
		for _, issue := range issues {
			if issue != "" && strings.EqualFold(issue, cause.Issue) {
				return true
			}
		}
	}
	return false
}

func reportHasCategory(categories []string, report models.RiskReport) bool {
	for _, c := range categories {
		if report.HasCategory(models.Category(c)) {
			return true
		}
	}
	return false
}

func appendUnique(existing []string, additions ...string) []string {
	seen := make(map[string]struct{}, len(existing))
	for _, rec := range existing {
		seen[rec] = struct{}{}
	}
	for _, item := range additions {
		if item == "" {
			continue
		}
		if _, ok := seen[item]; ok {
			continue
		}
		existing = append(existing, item)
		seen[item] = struct{}{}
	}
	return existing
}
