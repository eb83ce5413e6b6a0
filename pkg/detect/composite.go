package detect

import (
	"math"

	"github.com/TryMightyAI/ragshield/pkg/config"
	"github.com/TryMightyAI/ragshield/pkg/patterns"
)

// Tier is the CVSS-like severity band of a final score.
type Tier string

const (
	TierLow      Tier = "LOW"      // [0,4)
	TierMedium   Tier = "MEDIUM"   // [4,7)
	TierHigh     Tier = "HIGH"     // [7,9)
	TierCritical Tier = "CRITICAL" // [9,10]
)

// TierFor maps a final score to its severity tier. Boundary values belong
// to the higher tier (closed lower bound).
func TierFor(final float64) Tier {
	switch {
	case final >= 9:
		return TierCritical
	case final >= 7:
		return TierHigh
	case final >= 4:
		return TierMedium
	default:
		return TierLow
	}
}

// Composite is the combined severity result for one document. It is a
// deterministic, monotonic function of the sub-scores: raising any
// sub-score with weights fixed never lowers Final.
type Composite struct {
	Raw              float64                   `json:"raw"`      // weighted sum in [0,1]
	Severity         float64                   `json:"severity"` // raw scaled to [0,10]
	Multiplier       float64                   `json:"multiplier"`
	Final            float64                   `json:"final"` // min(10, severity*multiplier)
	Tier             Tier                      `json:"tier"`
	DominantCategory patterns.Category         `json:"dominant_category,omitempty"`
	Weighted         map[ExtractorKind]float64 `json:"weighted"` // per-kind weight*value contributions
}

// ScoreComposite combines exactly one sub-score per extractor kind into a
// severity score. A missing or duplicated kind is IncompleteEvidence:
// partial scoring must never produce a false "clean".
func ScoreComposite(docID string, subs []SubScore, pol *config.Policy) (Composite, error) {
	byKind := make(map[ExtractorKind]SubScore, len(subs))
	var dups []ExtractorKind
	for _, s := range subs {
		if _, seen := byKind[s.Kind]; seen {
			dups = append(dups, s.Kind)
			continue
		}
		byKind[s.Kind] = s
	}

	var missing []ExtractorKind
	for _, k := range Kinds() {
		if _, ok := byKind[k]; !ok {
			missing = append(missing, k)
		}
	}
	if len(missing) > 0 || len(dups) > 0 {
		return Composite{}, &IncompleteEvidenceError{DocumentID: docID, Missing: missing, Duplicates: dups}
	}

	w := pol.Weights
	weighted := map[ExtractorKind]float64{
		KindPattern:     w.Pattern * byKind[KindPattern].Value,
		KindMetadata:    w.Metadata * byKind[KindMetadata].Value,
		KindStatistical: w.Statistical * byKind[KindStatistical].Value,
		KindBehavioral:  w.Behavioral * byKind[KindBehavioral].Value,
	}

	raw := weighted[KindPattern] + weighted[KindMetadata] + weighted[KindStatistical] + weighted[KindBehavioral]
	severity := raw * 10

	dominant := dominantCategory(byKind)
	multiplier := pol.MultiplierFor(string(dominant))
	if dominant == "" {
		multiplier = pol.DefaultMultiplier
	}

	final := math.Min(10.0, severity*multiplier)

	return Composite{
		Raw:              raw,
		Severity:         severity,
		Multiplier:       multiplier,
		Final:            final,
		Tier:             TierFor(final),
		DominantCategory: dominant,
		Weighted:         weighted,
	}, nil
}

// dominantCategory returns the attack category of the highest-severity
// evidence entry across all sub-scores, iterating kinds in canonical
// order so ties resolve deterministically.
func dominantCategory(byKind map[ExtractorKind]SubScore) patterns.Category {
	var best patterns.Category
	bestSeverity := -1
	for _, k := range Kinds() {
		for _, ev := range byKind[k].Evidence {
			if ev.Severity > bestSeverity && ev.Category != "" {
				bestSeverity = ev.Severity
				best = ev.Category
			}
		}
	}
	return best
}
