// Package detect implements the poisoning detection engine: four feature
// extractors, the composite severity scorer, the verdict engine and the
// concurrent scoring pipeline that ties them together.
package detect

import "github.com/TryMightyAI/ragshield/pkg/patterns"

// ExtractorKind identifies which analyzer produced a sub-score. The set
// is closed: the composite scorer requires exactly one sub-score of each
// kind per scoring pass.
type ExtractorKind string

const (
	KindPattern     ExtractorKind = "pattern"
	KindMetadata    ExtractorKind = "metadata"
	KindStatistical ExtractorKind = "statistical"
	KindBehavioral  ExtractorKind = "behavioral"
)

// Kinds returns every extractor kind in canonical order.
func Kinds() []ExtractorKind {
	return []ExtractorKind{KindPattern, KindMetadata, KindStatistical, KindBehavioral}
}

// Evidence is one structured finding supporting a sub-score. Downstream
// consumers (remediation, reporting) rely on its shape, so findings are
// tagged records rather than free-form strings.
type Evidence struct {
	Category patterns.Category `json:"category"`
	Detail   string            `json:"detail"`
	Severity int               `json:"severity,omitempty"` // 0-100, within its category
}

// SubScore is the output of one extractor for one document: a value in
// [0,1] plus the findings that justify it. Created once per
// (document, extractor) pair per scoring pass.
type SubScore struct {
	Kind     ExtractorKind `json:"kind"`
	Value    float64       `json:"value"`
	Evidence []Evidence    `json:"evidence"`
}

// clamp caps a sub-score value to [0,1].
func clamp(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
