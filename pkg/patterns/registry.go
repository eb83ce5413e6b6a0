// Package patterns provides a centralized, high-performance registry of
// poisoning-attack indicators. All regex patterns are compiled once at
// first use and shared across every extractor and rescan.
//
// Design principles:
// - COMPILE ONCE: All patterns compiled at init, not per-document
// - DRY: Single source of truth for all attack indicators
// - CATEGORIZED: Patterns organized by attack scenario for targeted scans
// - EXTENSIBLE: New scenarios are added here without touching extractor code
package patterns

import (
	"regexp"
	"sync"
)

// Category identifies the attack scenario a pattern belongs to.
type Category string

const (
	// Text-payload scenarios (pattern extractor)
	CategoryCommandInjection   Category = "command_injection"
	CategoryTriggerPhrase      Category = "trigger_phrase"
	CategoryEmbeddingAttractor Category = "embedding_attractor"
	CategoryCredentialLeak     Category = "credential_leakage"
	CategoryInvisibleUnicode   Category = "invisible_unicode"

	// Provenance scenarios (metadata extractor)
	CategoryMetadataSpoofing  Category = "metadata_spoofing"
	CategoryPopularityPumping Category = "popularity_pumping"
	CategoryCrossSource       Category = "cross_source_inconsistency"

	// Temporal scenarios (behavioral extractor)
	CategoryDelayedActivation Category = "delayed_activation"
	CategorySignatureReplay   Category = "signature_replay"
)

// categoryWeights maps each scenario to its contribution weight on the
// [0,1] sub-score scale. Command injection and credential leakage are the
// highest-impact scenarios and carry full weight.
var categoryWeights = map[Category]float64{
	CategoryCommandInjection:   1.0,
	CategoryCredentialLeak:     1.0,
	CategoryDelayedActivation:  0.9,
	CategoryTriggerPhrase:      0.8,
	CategoryEmbeddingAttractor: 0.7,
	CategoryMetadataSpoofing:   0.6,
	CategorySignatureReplay:    0.6,
	CategoryInvisibleUnicode:   0.5,
	CategoryPopularityPumping:  0.5,
	CategoryCrossSource:        0.5,
}

// CategoryWeight returns the scenario weight in [0,1]. Unknown categories
// get a middle-of-the-road 0.5 so a forgotten entry never silences a hit.
func CategoryWeight(cat Category) float64 {
	if w, ok := categoryWeights[cat]; ok {
		return w
	}
	return 0.5
}

// Pattern holds a compiled regex with metadata.
type Pattern struct {
	Name        string         // Human-readable name for evidence records
	Regex       *regexp.Regexp // Compiled regex (never nil after init)
	Category    Category       // Attack scenario
	Severity    int            // Risk contribution within its category (0-100)
	Description string         // What this pattern detects
}

// Registry holds all compiled patterns, organized by category.
type Registry struct {
	mu         sync.RWMutex
	byCategory map[Category][]*Pattern
	all        []*Pattern
}

// global singleton - initialized once at first use
var (
	globalRegistry *Registry
	initOnce       sync.Once
)

// Get returns the global pattern registry (singleton).
// Thread-safe and guaranteed to be initialized.
func Get() *Registry {
	initOnce.Do(func() {
		globalRegistry = newRegistry()
	})
	return globalRegistry
}

// newRegistry creates and populates the pattern registry.
func newRegistry() *Registry {
	r := &Registry{
		byCategory: make(map[Category][]*Pattern),
		all:        make([]*Pattern, 0, 96),
	}

	r.registerCommandInjectionPatterns()
	r.registerTriggerPhrasePatterns()
	r.registerEmbeddingAttractorPatterns()
	r.registerCredentialLeakPatterns()
	r.registerInvisibleUnicodePatterns()
	r.registerMetadataSpoofingPatterns()
	r.registerPopularityPumpingPatterns()
	r.registerCrossSourcePatterns()
	r.registerDelayedActivationPatterns()
	r.registerSignatureReplayPatterns()

	return r
}

// register adds a pattern to the registry (internal use only).
func (r *Registry) register(name string, pattern string, category Category, severity int, description string) {
	compiled := regexp.MustCompile(pattern)
	p := &Pattern{
		Name:        name,
		Regex:       compiled,
		Category:    category,
		Severity:    severity,
		Description: description,
	}

	r.byCategory[category] = append(r.byCategory[category], p)
	r.all = append(r.all, p)
}

// GetByCategory returns all patterns for a specific category.
// Returns empty slice if category not found (never nil).
func (r *Registry) GetByCategory(cat Category) []*Pattern {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if patterns, ok := r.byCategory[cat]; ok {
		return patterns
	}
	return []*Pattern{}
}

// GetMultipleCategories returns patterns from multiple categories.
// Useful for extractors that scan multiple scenario types in one pass.
func (r *Registry) GetMultipleCategories(cats ...Category) []*Pattern {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var result []*Pattern
	for _, cat := range cats {
		if patterns, ok := r.byCategory[cat]; ok {
			result = append(result, patterns...)
		}
	}
	return result
}

// MatchAny checks if text matches any pattern in the given categories.
// Returns the first matching pattern or nil.
// This is optimized for early exit on first match.
func (r *Registry) MatchAny(text string, cats ...Category) *Pattern {
	patterns := r.GetMultipleCategories(cats...)
	for _, p := range patterns {
		if p.Regex.MatchString(text) {
			return p
		}
	}
	return nil
}

// MatchAll returns all patterns that match the text in given categories.
// Use when you need to know ALL matches (for comprehensive scoring).
func (r *Registry) MatchAll(text string, cats ...Category) []*Pattern {
	patterns := r.GetMultipleCategories(cats...)
	var matches []*Pattern
	for _, p := range patterns {
		if p.Regex.MatchString(text) {
			matches = append(matches, p)
		}
	}
	return matches
}

// Categories returns every registered category in registration order.
func (r *Registry) Categories() []Category {
	r.mu.RLock()
	defer r.mu.RUnlock()

	seen := make(map[Category]bool, len(r.byCategory))
	var cats []Category
	for _, p := range r.all {
		if !seen[p.Category] {
			seen[p.Category] = true
			cats = append(cats, p.Category)
		}
	}
	return cats
}

// TotalPatterns returns the total count of registered patterns.
func (r *Registry) TotalPatterns() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.all)
}

// CategoryCount returns the number of patterns in a category.
func (r *Registry) CategoryCount(cat Category) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byCategory[cat])
}
