// Package sink fans verdicts and remediation transitions out to
// monitoring backends. Sinks are egress only: a sink failure is reported
// to the caller but never blocks scoring or remediation.
package sink

import (
	"context"
	"errors"

	"github.com/TryMightyAI/ragshield/pkg/detect"
	"github.com/TryMightyAI/ragshield/pkg/quarantine"
)

// Sink receives both verdicts and lifecycle transitions. It satisfies
// detect.VerdictSink and quarantine.TransitionSink.
type Sink interface {
	EmitVerdict(ctx context.Context, v *detect.Verdict) error
	EmitTransition(ctx context.Context, documentID string, tr quarantine.Transition) error
}

// Multi fans every event out to all member sinks, attempting each one
// even when an earlier member fails.
type Multi []Sink

func (m Multi) EmitVerdict(ctx context.Context, v *detect.Verdict) error {
	var errs []error
	for _, s := range m {
		if err := s.EmitVerdict(ctx, v); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (m Multi) EmitTransition(ctx context.Context, documentID string, tr quarantine.Transition) error {
	var errs []error
	for _, s := range m {
		if err := s.EmitTransition(ctx, documentID, tr); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
