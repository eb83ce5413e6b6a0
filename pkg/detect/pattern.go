package detect

import (
	"fmt"

	"golang.org/x/text/unicode/norm"

	"github.com/TryMightyAI/ragshield/pkg/baseline"
	"github.com/TryMightyAI/ragshield/pkg/config"
	"github.com/TryMightyAI/ragshield/pkg/corpus"
	"github.com/TryMightyAI/ragshield/pkg/patterns"
)

// textCategories are the attack scenarios the pattern extractor owns.
// Provenance and temporal scenarios belong to the other extractors.
var textCategories = []patterns.Category{
	patterns.CategoryCommandInjection,
	patterns.CategoryTriggerPhrase,
	patterns.CategoryEmbeddingAttractor,
	patterns.CategoryCredentialLeak,
}

// PatternExtractor scans document text for known attack-indicator phrase
// classes. Each matched pattern contributes its severity to its category;
// the sub-score is the strongest category, scaled by that category's
// scenario weight and capped at 1.0.
type PatternExtractor struct {
	registry *patterns.Registry
}

func NewPatternExtractor() *PatternExtractor {
	return &PatternExtractor{registry: patterns.Get()}
}

func (x *PatternExtractor) Kind() ExtractorKind { return KindPattern }

func (x *PatternExtractor) Score(doc *corpus.Document, base baseline.Snapshot, pol *config.Policy) (SubScore, error) {
	if err := doc.Validate(); err != nil {
		return SubScore{}, &ExtractorFailureError{DocumentID: doc.ID, Kind: KindPattern, Err: err}
	}

	sub := SubScore{Kind: KindPattern, Evidence: []Evidence{}}

	// NFKC folds fullwidth and compatibility forms so keyword scans can't
	// be dodged with cosmetic Unicode variants.
	folded := norm.NFKC.String(doc.Text)

	var best float64
	for _, cat := range textCategories {
		var catSeverity float64
		for _, p := range x.registry.GetByCategory(cat) {
			if !p.Regex.MatchString(folded) {
				continue
			}
			catSeverity += float64(p.Severity) / 100
			sub.Evidence = append(sub.Evidence, Evidence{
				Category: cat,
				Detail:   fmt.Sprintf("%s: %s", p.Name, p.Description),
				Severity: p.Severity,
			})
		}
		if score := clamp(catSeverity) * patterns.CategoryWeight(cat); score > best {
			best = score
		}
	}

	// Invisible-unicode hits are scanned on the raw text: normalization
	// may fold away the very characters being detected.
	var invisSeverity float64
	for _, p := range x.registry.GetByCategory(patterns.CategoryInvisibleUnicode) {
		if !p.Regex.MatchString(doc.Text) {
			continue
		}
		invisSeverity += float64(p.Severity) / 100
		sub.Evidence = append(sub.Evidence, Evidence{
			Category: patterns.CategoryInvisibleUnicode,
			Detail:   fmt.Sprintf("%s: %s", p.Name, p.Description),
			Severity: p.Severity,
		})
	}
	if score := clamp(invisSeverity) * patterns.CategoryWeight(patterns.CategoryInvisibleUnicode); score > best {
		best = score
	}

	sub.Value = clamp(best)
	return sub, nil
}
