package detect

import (
	"time"

	"github.com/google/uuid"

	"github.com/TryMightyAI/ragshield/pkg/config"
)

// Decision is the thresholded outcome of a scoring pass.
type Decision string

const (
	DecisionClean      Decision = "CLEAN"      // terminal, no further action
	DecisionSuspicious Decision = "SUSPICIOUS" // surfaced for review, no isolation
	DecisionQuarantine Decision = "QUARANTINE" // forwarded to remediation
)

// Verdict is the immutable record of one scoring pass over one document.
// A re-scoring pass produces a new Verdict rather than mutating the old
// one, preserving the audit trail.
type Verdict struct {
	VerdictID  string     `json:"verdict_id"`
	DocumentID string     `json:"document_id"`
	Composite  Composite  `json:"composite"`
	Decision   Decision   `json:"decision"`
	SubScores  []SubScore `json:"sub_scores"` // canonical kind order
	CreatedAt  time.Time  `json:"created_at"`
}

// Decide combines the sub-scores into a composite and thresholds it into
// a decision. The entry state of a pass is SCORED (a composite exists);
// the quarantine threshold and review band come from the policy snapshot.
func Decide(docID string, subs []SubScore, pol *config.Policy) (*Verdict, error) {
	comp, err := ScoreComposite(docID, subs, pol)
	if err != nil {
		return nil, err
	}

	decision := DecisionClean
	switch {
	case comp.Final >= pol.QuarantineThreshold:
		decision = DecisionQuarantine
	case comp.Final >= pol.ReviewThreshold:
		decision = DecisionSuspicious
	}

	ordered := make([]SubScore, 0, len(Kinds()))
	for _, k := range Kinds() {
		for _, s := range subs {
			if s.Kind == k {
				ordered = append(ordered, s)
				break
			}
		}
	}

	return &Verdict{
		VerdictID:  uuid.NewString(),
		DocumentID: docID,
		Composite:  comp,
		Decision:   decision,
		SubScores:  ordered,
		CreatedAt:  time.Now().UTC(),
	}, nil
}
