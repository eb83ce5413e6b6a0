package detect

import (
	"fmt"
	"time"

	"github.com/TryMightyAI/ragshield/pkg/baseline"
	"github.com/TryMightyAI/ragshield/pkg/config"
	"github.com/TryMightyAI/ragshield/pkg/corpus"
	"github.com/TryMightyAI/ragshield/pkg/patterns"
)

// provenanceCategories are the inline trust-assertion scenarios scanned
// by the metadata extractor. They are JSON-ish provenance claims planted
// in document text, distinct from the structured metadata rules below.
var provenanceCategories = []patterns.Category{
	patterns.CategoryMetadataSpoofing,
	patterns.CategoryPopularityPumping,
	patterns.CategoryCrossSource,
}

// Rule weights for structural metadata findings. Binary-ish indicators
// aggregated into [0,1] - a document failing several checks saturates.
const (
	wUntrustedSource  = 0.40
	wFutureTimestamp  = 0.30
	wMissingSignature = 0.30
	wUnsignedDocument = 0.20
	wPoisonMarker     = 0.50
	wExperimentMarker = 0.30
	wSpoofPattern     = 0.40 // scale for inline claim severities
)

// MetadataExtractor checks source-attribution fields for inconsistency:
// claimed source off the allow-list, timestamps in the future, missing or
// hollow signatures, and inline trust assertions in the text.
type MetadataExtractor struct {
	registry *patterns.Registry
	now      func() time.Time
}

func NewMetadataExtractor() *MetadataExtractor {
	return &MetadataExtractor{registry: patterns.Get(), now: time.Now}
}

func (x *MetadataExtractor) Kind() ExtractorKind { return KindMetadata }

func (x *MetadataExtractor) Score(doc *corpus.Document, base baseline.Snapshot, pol *config.Policy) (SubScore, error) {
	if err := doc.Validate(); err != nil {
		return SubScore{}, &ExtractorFailureError{DocumentID: doc.ID, Kind: KindMetadata, Err: err}
	}

	sub := SubScore{Kind: KindMetadata, Evidence: []Evidence{}}
	meta := doc.Metadata
	var score float64

	addRule := func(weight float64, severity int, detail string) {
		score += weight
		sub.Evidence = append(sub.Evidence, Evidence{
			Category: patterns.CategoryMetadataSpoofing,
			Detail:   detail,
			Severity: severity,
		})
	}

	if meta.Source == "" || !pol.SourceAllowed(meta.Source) {
		addRule(wUntrustedSource, 70, fmt.Sprintf("claimed source %q is not on the allow-list", meta.Source))
	}

	if !meta.CreatedAt.IsZero() && meta.CreatedAt.After(x.now().Add(pol.ClockSkew())) {
		addRule(wFutureTimestamp, 65, fmt.Sprintf("claimed creation time %s is in the future", meta.CreatedAt.UTC().Format(time.RFC3339)))
	}

	if meta.Signed && meta.Signature == "" {
		addRule(wMissingSignature, 70, "document claims to be signed but carries no signature")
	} else if !meta.Signed && pol.RequireSigned {
		addRule(wUnsignedDocument, 50, "unsigned document in a corpus requiring signatures")
	}

	switch meta.Tag("type") {
	case "poisoned":
		addRule(wPoisonMarker, 90, "explicit poisoned marker in provenance tags")
	}
	if meta.Tag("experiment") != "" {
		addRule(wExperimentMarker, 60, "experiment marker in provenance tags")
	}

	// Inline trust assertions planted in the text itself.
	for _, cat := range provenanceCategories {
		for _, p := range x.registry.GetByCategory(cat) {
			if !p.Regex.MatchString(doc.Text) {
				continue
			}
			score += float64(p.Severity) / 100 * wSpoofPattern
			sub.Evidence = append(sub.Evidence, Evidence{
				Category: cat,
				Detail:   fmt.Sprintf("%s: %s", p.Name, p.Description),
				Severity: p.Severity,
			})
		}
	}

	sub.Value = clamp(score)
	return sub, nil
}
