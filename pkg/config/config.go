// Package config holds the detection policy: scoring weights, severity
// multipliers, decision thresholds and remediation bounds. Policy is an
// explicit value threaded through every component entry point - scoring
// never reads ambient global state, so concurrent passes can run against
// different policy snapshots during a rollover.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Weights are the per-extractor contributions to the composite score.
// The defaults are the documented benchmark contract and should not be
// tuned casually: downstream severity expectations are calibrated to them.
type Weights struct {
	Pattern     float64 `yaml:"pattern"`
	Metadata    float64 `yaml:"metadata"`
	Statistical float64 `yaml:"statistical"`
	Behavioral  float64 `yaml:"behavioral"`
}

// Policy is the complete tunable configuration for a scoring pass.
// A Policy value is immutable once published by a Provider.
type Policy struct {
	// Scoring
	Weights           Weights            `yaml:"weights"`
	Multipliers       map[string]float64 `yaml:"multipliers"`        // per attack category, valid range 1.0-1.5
	DefaultMultiplier float64            `yaml:"default_multiplier"` // applied when no category multiplier matches

	// Decision thresholds on the 0-10 severity scale.
	QuarantineThreshold float64 `yaml:"quarantine_threshold"` // final >= this -> QUARANTINE
	ReviewThreshold     float64 `yaml:"review_threshold"`     // final in [review, quarantine) -> SUSPICIOUS

	// Statistical normalization
	OutlierZ float64 `yaml:"outlier_z"` // |z| beyond this is an outlier
	ZCap     float64 `yaml:"z_cap"`     // saturation point for the geometric sub-score

	// Provenance rules
	AllowedSources []string `yaml:"allowed_sources"`  // claimed sources outside this list are suspicious
	ClockSkewSec   int      `yaml:"clock_skew_sec"`   // tolerated future-timestamp drift
	RequireSigned  bool     `yaml:"require_signed"`   // unsigned documents count against the metadata score

	// Remediation bounds
	IsolationBudgetMs int `yaml:"isolation_budget_ms"` // time budget for one isolation attempt
	MaxRetries        int `yaml:"max_retries"`         // storage action retries before FAILED
	RetryBackoffMs    int `yaml:"retry_backoff_ms"`    // base for exponential backoff

	// Scan concurrency
	MaxConcurrentScans int `yaml:"max_concurrent_scans"`
}

// NewDefaultPolicy returns the documented default policy.
// Environment variables (RAGSHIELD_*) override individual values.
func NewDefaultPolicy() *Policy {
	return &Policy{
		Weights: Weights{
			Pattern:     0.40,
			Metadata:    0.25,
			Statistical: 0.20,
			Behavioral:  0.15,
		},
		Multipliers:         map[string]float64{},
		DefaultMultiplier:   GetEnvFloat("RAGSHIELD_DEFAULT_MULTIPLIER", 1.0),
		QuarantineThreshold: GetEnvFloat("RAGSHIELD_QUARANTINE_THRESHOLD", 7.0),
		ReviewThreshold:     GetEnvFloat("RAGSHIELD_REVIEW_THRESHOLD", 4.0),
		OutlierZ:            GetEnvFloat("RAGSHIELD_OUTLIER_Z", 3.0),
		ZCap:                GetEnvFloat("RAGSHIELD_Z_CAP", 3.0),
		AllowedSources:      GetEnvSlice("RAGSHIELD_ALLOWED_SOURCES", []string{"internal-knowledge-base"}),
		ClockSkewSec:        GetEnvInt("RAGSHIELD_CLOCK_SKEW_SEC", 300),
		RequireSigned:       GetEnvBool("RAGSHIELD_REQUIRE_SIGNED", false),
		IsolationBudgetMs:   GetEnvInt("RAGSHIELD_ISOLATION_BUDGET_MS", 5000),
		MaxRetries:          GetEnvInt("RAGSHIELD_MAX_RETRIES", 3),
		RetryBackoffMs:      GetEnvInt("RAGSHIELD_RETRY_BACKOFF_MS", 250),
		MaxConcurrentScans:  GetEnvInt("RAGSHIELD_MAX_CONCURRENT_SCANS", 16),
	}
}

// Load reads a YAML policy file over the defaults and validates the
// result. An empty path returns the validated defaults.
func Load(path string) (*Policy, error) {
	p := NewDefaultPolicy()
	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read policy %s: %w", path, err)
		}
		if err := yaml.Unmarshal(raw, p); err != nil {
			return nil, fmt.Errorf("parse policy %s: %w", path, err)
		}
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return p, nil
}

// IsolationBudget returns the isolation time budget as a duration.
func (p *Policy) IsolationBudget() time.Duration {
	return time.Duration(p.IsolationBudgetMs) * time.Millisecond
}

// RetryBackoff returns the base retry backoff as a duration.
func (p *Policy) RetryBackoff() time.Duration {
	return time.Duration(p.RetryBackoffMs) * time.Millisecond
}

// ClockSkew returns the tolerated future-timestamp drift.
func (p *Policy) ClockSkew() time.Duration {
	return time.Duration(p.ClockSkewSec) * time.Second
}

// MultiplierFor returns the severity multiplier for an attack category,
// falling back to the policy default.
func (p *Policy) MultiplierFor(category string) float64 {
	if m, ok := p.Multipliers[category]; ok {
		return m
	}
	return p.DefaultMultiplier
}

// SourceAllowed reports whether a claimed source is on the allow-list.
// An empty allow-list trusts nothing.
func (p *Policy) SourceAllowed(source string) bool {
	for _, s := range p.AllowedSources {
		if strings.EqualFold(s, source) {
			return true
		}
	}
	return false
}

// InvalidConfigurationError describes a policy value out of valid range.
// It is fatal at startup and at reload time: an invalid policy is never
// adopted, and scoring never runs against silently substituted defaults.
type InvalidConfigurationError struct {
	Field  string
	Reason string
}

func (e *InvalidConfigurationError) Error() string {
	return fmt.Sprintf("invalid configuration: %s: %s", e.Field, e.Reason)
}

const weightSumTolerance = 1e-9

// Validate checks every policy value against its valid range.
func (p *Policy) Validate() error {
	w := p.Weights
	for field, v := range map[string]float64{
		"weights.pattern":     w.Pattern,
		"weights.metadata":    w.Metadata,
		"weights.statistical": w.Statistical,
		"weights.behavioral":  w.Behavioral,
	} {
		if v < 0 {
			return &InvalidConfigurationError{Field: field, Reason: "weight must not be negative"}
		}
	}
	sum := w.Pattern + w.Metadata + w.Statistical + w.Behavioral
	if sum < 1-weightSumTolerance || sum > 1+weightSumTolerance {
		return &InvalidConfigurationError{Field: "weights", Reason: fmt.Sprintf("weights must sum to 1.0, got %v", sum)}
	}

	if p.QuarantineThreshold < 0 || p.QuarantineThreshold > 10 {
		return &InvalidConfigurationError{Field: "quarantine_threshold", Reason: "must be within [0,10]"}
	}
	if p.ReviewThreshold < 0 || p.ReviewThreshold > 10 {
		return &InvalidConfigurationError{Field: "review_threshold", Reason: "must be within [0,10]"}
	}
	if p.ReviewThreshold > p.QuarantineThreshold {
		return &InvalidConfigurationError{Field: "review_threshold", Reason: "review band must sit below the quarantine threshold"}
	}

	if p.DefaultMultiplier < 1.0 || p.DefaultMultiplier > 1.5 {
		return &InvalidConfigurationError{Field: "default_multiplier", Reason: "must be within [1.0,1.5]"}
	}
	for cat, m := range p.Multipliers {
		if m < 1.0 || m > 1.5 {
			return &InvalidConfigurationError{Field: "multipliers." + cat, Reason: "must be within [1.0,1.5]"}
		}
	}

	if p.OutlierZ <= 0 {
		return &InvalidConfigurationError{Field: "outlier_z", Reason: "must be positive"}
	}
	if p.ZCap <= 0 {
		return &InvalidConfigurationError{Field: "z_cap", Reason: "must be positive"}
	}

	if p.IsolationBudgetMs <= 0 {
		return &InvalidConfigurationError{Field: "isolation_budget_ms", Reason: "must be positive"}
	}
	if p.MaxRetries < 0 {
		return &InvalidConfigurationError{Field: "max_retries", Reason: "must not be negative"}
	}
	if p.RetryBackoffMs <= 0 {
		return &InvalidConfigurationError{Field: "retry_backoff_ms", Reason: "must be positive"}
	}
	if p.MaxConcurrentScans <= 0 {
		return &InvalidConfigurationError{Field: "max_concurrent_scans", Reason: "must be positive"}
	}

	return nil
}

// Helper functions for environment variable parsing.
// These are exported for use by other packages.

// GetEnv returns the value of an environment variable or a default value.
func GetEnv(key, defaultValue string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultValue
}

// GetEnvBool returns the boolean value of an environment variable or a default value.
func GetEnvBool(key string, defaultValue bool) bool {
	if v := os.Getenv(key); v != "" {
		b, err := strconv.ParseBool(v)
		if err == nil {
			return b
		}
	}
	return defaultValue
}

// GetEnvFloat returns the float64 value of an environment variable or a default value.
func GetEnvFloat(key string, defaultValue float64) float64 {
	if v := os.Getenv(key); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err == nil {
			return f
		}
	}
	return defaultValue
}

// GetEnvInt returns the integer value of an environment variable or a default value.
func GetEnvInt(key string, defaultValue int) int {
	if v := os.Getenv(key); v != "" {
		i, err := strconv.Atoi(v)
		if err == nil {
			return i
		}
	}
	return defaultValue
}

// GetEnvSlice returns a comma-separated list from an environment variable or a default value.
func GetEnvSlice(key string, defaultValue []string) []string {
	if v := os.Getenv(key); v != "" {
		var parts []string
		for _, p := range strings.Split(v, ",") {
			trimmed := strings.TrimSpace(p)
			if trimmed != "" {
				parts = append(parts, trimmed)
			}
		}
		if len(parts) > 0 {
			return parts
		}
	}
	return defaultValue
}
