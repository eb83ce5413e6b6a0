package detect

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/TryMightyAI/ragshield/pkg/baseline"
	"github.com/TryMightyAI/ragshield/pkg/config"
	"github.com/TryMightyAI/ragshield/pkg/corpus"
	"github.com/TryMightyAI/ragshield/pkg/patterns"
)

// temporalCategories are the time-based scenarios scanned in text.
var temporalCategories = []patterns.Category{
	patterns.CategoryDelayedActivation,
	patterns.CategorySignatureReplay,
}

var (
	reConditional = regexp.MustCompile(`(?i)\bIF\b[^.\n]{0,80}\bTHEN\b`)
)

// Behavioral rule weights.
const (
	wFutureActivation = 0.50
	wPurgedReplay     = 0.70
	wConditionalLogic = 0.30
	wMultiCloudRefs   = 0.30
	wTemporalPattern  = 0.50 // scale for temporal pattern severities
)

// BehavioralExtractor flags delayed-activation and replay behavior:
// activation timestamps far in the future, re-ingestion of previously
// purged content, conditional trigger logic and cross-cloud confusion.
type BehavioralExtractor struct {
	registry *patterns.Registry
	ledger   ReplayLedger
	now      func() time.Time
}

func NewBehavioralExtractor(ledger ReplayLedger) *BehavioralExtractor {
	return &BehavioralExtractor{registry: patterns.Get(), ledger: ledger, now: time.Now}
}

func (x *BehavioralExtractor) Kind() ExtractorKind { return KindBehavioral }

func (x *BehavioralExtractor) Score(doc *corpus.Document, base baseline.Snapshot, pol *config.Policy) (SubScore, error) {
	if err := doc.Validate(); err != nil {
		return SubScore{}, &ExtractorFailureError{DocumentID: doc.ID, Kind: KindBehavioral, Err: err}
	}

	sub := SubScore{Kind: KindBehavioral, Evidence: []Evidence{}}
	var score float64

	add := func(weight float64, cat patterns.Category, severity int, detail string) {
		score += weight
		sub.Evidence = append(sub.Evidence, Evidence{Category: cat, Detail: detail, Severity: severity})
	}

	if at := doc.Metadata.ActivatesAt; at != nil && at.After(x.now().Add(pol.ClockSkew())) {
		add(wFutureActivation, patterns.CategoryDelayedActivation, 90,
			fmt.Sprintf("activation timestamp %s is in the future", at.UTC().Format(time.RFC3339)))
	}

	if x.ledger != nil && x.ledger.SeenPurged(doc.ContentHash()) {
		add(wPurgedReplay, patterns.CategorySignatureReplay, 95,
			"content hash matches a previously purged document")
	}

	for _, cat := range temporalCategories {
		for _, p := range x.registry.GetByCategory(cat) {
			if !p.Regex.MatchString(doc.Text) {
				continue
			}
			score += float64(p.Severity) / 100 * wTemporalPattern
			sub.Evidence = append(sub.Evidence, Evidence{
				Category: cat,
				Detail:   fmt.Sprintf("%s: %s", p.Name, p.Description),
				Severity: p.Severity,
			})
		}
	}

	if reConditional.MatchString(doc.Text) {
		add(wConditionalLogic, patterns.CategoryTriggerPhrase, 60,
			"conditional IF/THEN trigger logic in content")
	}

	upper := strings.ToUpper(doc.Text)
	var cloudRefs int
	for _, cloud := range []string{"AWS", "AZURE", "GCP"} {
		if strings.Contains(upper, cloud) {
			cloudRefs++
		}
	}
	if cloudRefs > 1 {
		add(wMultiCloudRefs, patterns.CategoryCrossSource, 50,
			fmt.Sprintf("references %d distinct cloud providers", cloudRefs))
	}

	sub.Value = clamp(score)
	return sub, nil
}
