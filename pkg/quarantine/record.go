// Package quarantine implements the remediation side of the engine: the
// lifecycle state machine for flagged documents, durable remediation
// records and the coordinator that drives isolation, verification and
// final disposition.
package quarantine

import (
	"fmt"
	"time"
)

// State is a remediation lifecycle stage. RESTORED, PURGED and FAILED
// are terminal; FAILED is reachable from any non-terminal state when a
// storage action exhausts its retries.
type State string

const (
	StatePending   State = "PENDING"
	StateIsolated  State = "ISOLATED"
	StateVerifying State = "VERIFYING"
	StateRestored  State = "RESTORED"
	StatePurged    State = "PURGED"
	StateFailed    State = "FAILED"
)

var validNext = map[State][]State{
	StatePending:   {StateIsolated},
	StateIsolated:  {StateVerifying},
	StateVerifying: {StateRestored, StatePurged},
}

// Terminal reports whether no further transitions are allowed from s.
func (s State) Terminal() bool {
	return s == StateRestored || s == StatePurged || s == StateFailed
}

// CanTransition reports whether s -> to is a legal lifecycle step.
func (s State) CanTransition(to State) bool {
	if s.Terminal() {
		return false
	}
	if to == StateFailed {
		return true
	}
	for _, n := range validNext[s] {
		if n == to {
			return true
		}
	}
	return false
}

// InvalidTransitionError reports an attempted illegal lifecycle step.
type InvalidTransitionError struct {
	DocumentID string
	From       State
	To         State
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("invalid quarantine transition %s -> %s for document %s", e.From, e.To, e.DocumentID)
}

// Transition is one recorded lifecycle step.
type Transition struct {
	From   State     `json:"from"`
	To     State     `json:"to"`
	At     time.Time `json:"at"`
	Reason string    `json:"reason,omitempty"`
}

// Record is the durable remediation record for one quarantined document.
// Every state change is appended to History, so the full lifecycle can
// be reconstructed from the transition log alone.
type Record struct {
	DocumentID  string       `json:"document_id"`
	VerdictID   string       `json:"verdict_id"`
	ContentHash string       `json:"content_hash"`
	State       State        `json:"state"`
	History     []Transition `json:"history"`
	CreatedAt   time.Time    `json:"created_at"`
	UpdatedAt   time.Time    `json:"updated_at"`
}

// NewRecord opens a remediation record in PENDING.
func NewRecord(documentID, verdictID, contentHash string) *Record {
	now := time.Now().UTC()
	return &Record{
		DocumentID:  documentID,
		VerdictID:   verdictID,
		ContentHash: contentHash,
		State:       StatePending,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

// Apply performs one lifecycle step, appending it to the history.
func (r *Record) Apply(to State, reason string) (Transition, error) {
	if !r.State.CanTransition(to) {
		return Transition{}, &InvalidTransitionError{DocumentID: r.DocumentID, From: r.State, To: to}
	}
	tr := Transition{From: r.State, To: to, At: time.Now().UTC(), Reason: reason}
	r.History = append(r.History, tr)
	r.State = to
	r.UpdatedAt = tr.At
	return tr, nil
}

// Replay rebuilds a record from its transition log, verifying that the
// log forms a legal chain starting at PENDING. A record rebuilt from its
// own history always matches the original final state.
func Replay(documentID, verdictID, contentHash string, history []Transition) (*Record, error) {
	r := NewRecord(documentID, verdictID, contentHash)
	for i, tr := range history {
		if tr.From != r.State {
			return nil, fmt.Errorf("broken transition chain for document %s: step %d starts at %s, record is at %s",
				documentID, i, tr.From, r.State)
		}
		if !r.State.CanTransition(tr.To) {
			return nil, &InvalidTransitionError{DocumentID: documentID, From: r.State, To: tr.To}
		}
		r.History = append(r.History, tr)
		r.State = tr.To
		r.UpdatedAt = tr.At
	}
	if len(history) > 0 {
		r.CreatedAt = history[0].At
	}
	return r, nil
}
