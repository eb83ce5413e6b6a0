package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefaultPolicyIsValid(t *testing.T) {
	p := NewDefaultPolicy()
	if err := p.Validate(); err != nil {
		t.Fatalf("default policy should validate: %v", err)
	}

	if p.Weights.Pattern != 0.40 || p.Weights.Metadata != 0.25 ||
		p.Weights.Statistical != 0.20 || p.Weights.Behavioral != 0.15 {
		t.Errorf("default weights deviate from the documented contract: %+v", p.Weights)
	}
	if p.QuarantineThreshold != 7.0 || p.ReviewThreshold != 4.0 {
		t.Errorf("default thresholds deviate: quarantine=%f review=%f", p.QuarantineThreshold, p.ReviewThreshold)
	}
}

func TestValidateRejectsBadValues(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Policy)
	}{
		{"negative weight", func(p *Policy) { p.Weights.Pattern = -0.1; p.Weights.Metadata = 0.75 }},
		{"weights not summing to one", func(p *Policy) { p.Weights.Pattern = 0.5 }},
		{"threshold above range", func(p *Policy) { p.QuarantineThreshold = 11 }},
		{"threshold below range", func(p *Policy) { p.ReviewThreshold = -1 }},
		{"inverted band", func(p *Policy) { p.ReviewThreshold = 8 }},
		{"multiplier too large", func(p *Policy) { p.Multipliers = map[string]float64{"command_injection": 2.0} }},
		{"multiplier too small", func(p *Policy) { p.DefaultMultiplier = 0.5 }},
		{"zero z cap", func(p *Policy) { p.ZCap = 0 }},
		{"negative retries", func(p *Policy) { p.MaxRetries = -1 }},
		{"zero isolation budget", func(p *Policy) { p.IsolationBudgetMs = 0 }},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			p := NewDefaultPolicy()
			tc.mutate(p)
			err := p.Validate()
			if err == nil {
				t.Fatal("expected validation error")
			}
			if _, ok := err.(*InvalidConfigurationError); !ok {
				t.Fatalf("expected InvalidConfigurationError, got %T: %v", err, err)
			}
		})
	}
}

func TestLoadYAMLOverrides(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "policy.yaml")
	yml := `
quarantine_threshold: 8.5
review_threshold: 5.0
default_multiplier: 1.2
multipliers:
  command_injection: 1.5
allowed_sources: [internal-knowledge-base, security-team]
max_retries: 5
`
	if err := os.WriteFile(path, []byte(yml), 0o644); err != nil {
		t.Fatal(err)
	}

	p, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if p.QuarantineThreshold != 8.5 {
		t.Errorf("quarantine_threshold = %f, want 8.5", p.QuarantineThreshold)
	}
	if p.MultiplierFor("command_injection") != 1.5 {
		t.Errorf("command_injection multiplier = %f, want 1.5", p.MultiplierFor("command_injection"))
	}
	if p.MultiplierFor("unlisted") != 1.2 {
		t.Errorf("default multiplier = %f, want 1.2", p.MultiplierFor("unlisted"))
	}
	if !p.SourceAllowed("Security-Team") {
		t.Error("allow-list match should be case-insensitive")
	}
	if p.SourceAllowed("malicious-mirror") {
		t.Error("unlisted source should not be allowed")
	}
	// Untouched fields keep their defaults.
	if p.Weights.Pattern != 0.40 {
		t.Errorf("pattern weight should keep default, got %f", p.Weights.Pattern)
	}
}

func TestLoadRejectsInvalidFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "policy.yaml")
	if err := os.WriteFile(path, []byte("quarantine_threshold: 42\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(path); err == nil {
		t.Fatal("out-of-range threshold should fail to load")
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("RAGSHIELD_QUARANTINE_THRESHOLD", "9.0")
	t.Setenv("RAGSHIELD_MAX_RETRIES", "7")
	t.Setenv("RAGSHIELD_ALLOWED_SOURCES", "a, b ,c")

	p := NewDefaultPolicy()
	if p.QuarantineThreshold != 9.0 {
		t.Errorf("env override ignored: quarantine=%f", p.QuarantineThreshold)
	}
	if p.MaxRetries != 7 {
		t.Errorf("env override ignored: retries=%d", p.MaxRetries)
	}
	if len(p.AllowedSources) != 3 || p.AllowedSources[1] != "b" {
		t.Errorf("env slice parsed wrong: %v", p.AllowedSources)
	}
}

func TestFileProviderHotReload(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "policy.yaml")
	if err := os.WriteFile(path, []byte("quarantine_threshold: 7.0\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	prov, err := NewFileProvider(path, nil)
	if err != nil {
		t.Fatal(err)
	}
	defer prov.Close()

	if got := prov.Snapshot().QuarantineThreshold; got != 7.0 {
		t.Fatalf("initial threshold = %f, want 7.0", got)
	}

	// Valid rewrite is adopted.
	if err := os.WriteFile(path, []byte("quarantine_threshold: 8.0\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	waitFor(t, func() bool { return prov.Snapshot().QuarantineThreshold == 8.0 })

	// Invalid rewrite is rejected; last valid policy stays in force.
	if err := os.WriteFile(path, []byte("quarantine_threshold: 99\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	waitFor(t, func() bool { return prov.LastReloadError() != nil })
	if got := prov.Snapshot().QuarantineThreshold; got != 8.0 {
		t.Errorf("invalid reload must not change the active policy, got %f", got)
	}
}

func TestFileProviderTornWriteKeepsLastValid(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "policy.yaml")
	if err := os.WriteFile(path, []byte("quarantine_threshold: 5.5\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	prov, err := NewFileProvider(path, nil)
	if err != nil {
		t.Fatal(err)
	}
	defer prov.Close()

	// Truncate without writing, as the first half of a rewrite does. The
	// empty intermediate state must never be adopted as the defaults.
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		t.Fatal(err)
	}
	f.Close()

	waitFor(t, func() bool { return prov.LastReloadError() != nil })
	if got := prov.Snapshot().QuarantineThreshold; got != 5.5 {
		t.Fatalf("torn write must keep the last valid policy, got threshold %f", got)
	}

	// The second half of the rewrite lands and is adopted normally.
	if err := os.WriteFile(path, []byte("quarantine_threshold: 6.5\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	waitFor(t, func() bool { return prov.Snapshot().QuarantineThreshold == 6.5 })
	if err := prov.LastReloadError(); err != nil {
		t.Errorf("completed rewrite should clear the reload error, got %v", err)
	}
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatal("condition not met within deadline")
}
