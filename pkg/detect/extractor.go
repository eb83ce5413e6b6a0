package detect

import (
	"github.com/TryMightyAI/ragshield/pkg/baseline"
	"github.com/TryMightyAI/ragshield/pkg/config"
	"github.com/TryMightyAI/ragshield/pkg/corpus"
)

// Extractor turns one document into a bounded-range sub-score plus
// supporting evidence. Implementations must be pure with respect to their
// inputs: read-only access to the document and the baseline snapshot,
// no mutation, no shared state. That purity is what lets the pipeline run
// all four extractors concurrently for a document.
type Extractor interface {
	Kind() ExtractorKind
	Score(doc *corpus.Document, base baseline.Snapshot, pol *config.Policy) (SubScore, error)
}

// ReplayLedger answers whether a content hash belongs to previously
// purged content. The remediation coordinator maintains it.
type ReplayLedger interface {
	SeenPurged(contentHash string) bool
}

// DefaultExtractors returns the closed set of analyzers in canonical
// order. ledger may be nil when no purge history is available.
func DefaultExtractors(ledger ReplayLedger) []Extractor {
	return []Extractor{
		NewPatternExtractor(),
		NewMetadataExtractor(),
		NewStatisticalExtractor(),
		NewBehavioralExtractor(ledger),
	}
}
