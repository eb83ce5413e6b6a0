package detect

import (
	"fmt"
	"math"
	"unicode"

	"github.com/TryMightyAI/ragshield/pkg/baseline"
	"github.com/TryMightyAI/ragshield/pkg/config"
	"github.com/TryMightyAI/ragshield/pkg/corpus"
	"github.com/TryMightyAI/ragshield/pkg/patterns"
)

// Content-feature anomaly thresholds. A poisoned payload tends to be
// short, shouty and dense in markup compared to organic prose.
const (
	entropyThreshold    = 4.5
	uppercaseThreshold  = 0.5
	specialThreshold    = 0.3
	shortDocRunes       = 50
	longDocRunes        = 2000
	wHighEntropy        = 0.2
	wHighUppercase      = 0.4
	wAbnormalLength     = 0.3
	wLongDocument       = 0.2
	wSpecialCharDensity = 0.3
)

// StatisticalExtractor scores geometric and distributional anomalies:
// primarily the z-score of the embedding magnitude against the
// embedding-norms baseline, secondarily content-feature anomalies
// (entropy, case ratio, length, special-character density).
//
// The geometric rule contributes only when |z| exceeds the policy outlier
// threshold; it then saturates at 1.0 via min(1, |z|/z_cap) so further
// magnitude increases cannot escalate it past full score.
type StatisticalExtractor struct{}

func NewStatisticalExtractor() *StatisticalExtractor {
	return &StatisticalExtractor{}
}

func (x *StatisticalExtractor) Kind() ExtractorKind { return KindStatistical }

func (x *StatisticalExtractor) Score(doc *corpus.Document, base baseline.Snapshot, pol *config.Policy) (SubScore, error) {
	if err := doc.Validate(); err != nil {
		return SubScore{}, &ExtractorFailureError{DocumentID: doc.ID, Kind: KindStatistical, Err: err}
	}
	if len(doc.Embedding) == 0 {
		return SubScore{}, &ExtractorFailureError{
			DocumentID: doc.ID,
			Kind:       KindStatistical,
			Err:        fmt.Errorf("document carries no embedding vector"),
		}
	}

	sub := SubScore{Kind: KindStatistical, Evidence: []Evidence{}}

	geometric := x.geometricComponent(doc, base, pol, &sub)
	content := x.contentComponent(doc.Text, &sub)

	sub.Value = clamp(math.Max(geometric, content))
	return sub, nil
}

func (x *StatisticalExtractor) geometricComponent(doc *corpus.Document, base baseline.Snapshot, pol *config.Policy, sub *SubScore) float64 {
	z, err := base.ZScore(doc.EmbeddingNorm())
	if err != nil {
		// No reference population yet: the very first documents of a run
		// must still be scorable, so the geometric rule abstains.
		sub.Evidence = append(sub.Evidence, Evidence{
			Category: patterns.CategoryEmbeddingAttractor,
			Detail:   "no embedding-norm baseline available; geometric rule skipped",
		})
		return 0
	}

	if math.Abs(z) <= pol.OutlierZ {
		return 0
	}

	score := math.Min(1, math.Abs(z)/pol.ZCap)
	sub.Evidence = append(sub.Evidence, Evidence{
		Category: patterns.CategoryEmbeddingAttractor,
		Detail:   fmt.Sprintf("embedding magnitude %.4f has z-score %.2f against baseline of %d documents", doc.EmbeddingNorm(), z, base.Count),
		Severity: 80,
	})
	return score
}

func (x *StatisticalExtractor) contentComponent(text string, sub *SubScore) float64 {
	runes := []rune(text)
	n := len(runes)
	if n == 0 {
		return 0
	}

	var score float64
	add := func(weight float64, severity int, detail string) {
		score += weight
		sub.Evidence = append(sub.Evidence, Evidence{
			Category: patterns.CategoryEmbeddingAttractor,
			Detail:   detail,
			Severity: severity,
		})
	}

	if n < shortDocRunes {
		add(wAbnormalLength, 50, fmt.Sprintf("suspiciously short document (%d runes)", n))
	} else if n > longDocRunes {
		add(wLongDocument, 40, fmt.Sprintf("abnormally long document (%d runes)", n))
	}

	var upper, letters, special int
	for _, r := range runes {
		switch {
		case unicode.IsUpper(r):
			upper++
			letters++
		case unicode.IsLetter(r):
			letters++
		case !unicode.IsDigit(r) && !unicode.IsSpace(r):
			special++
		}
	}
	if letters > 0 {
		if ratio := float64(upper) / float64(n); ratio > uppercaseThreshold {
			add(wHighUppercase, 60, fmt.Sprintf("uppercase ratio %.2f indicates directive-style content", ratio))
		}
	}
	if ratio := float64(special) / float64(n); ratio > specialThreshold {
		add(wSpecialCharDensity, 50, fmt.Sprintf("special-character density %.2f", ratio))
	}

	if entropy := shannonEntropy(text); entropy > entropyThreshold {
		add(wHighEntropy, 40, fmt.Sprintf("character entropy %.2f suggests encoded or random content", entropy))
	}

	return clamp(score)
}

// shannonEntropy computes per-rune Shannon entropy in bits. Organic prose
// sits around 4.0-4.3; encoded payloads push past 4.5.
func shannonEntropy(text string) float64 {
	if text == "" {
		return 0
	}
	freq := make(map[rune]int)
	var total float64
	for _, r := range text {
		freq[r]++
		total++
	}
	var entropy float64
	for _, count := range freq {
		p := float64(count) / total
		entropy -= p * math.Log2(p)
	}
	return entropy
}
