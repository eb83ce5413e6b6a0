package sink

import (
	"context"
	"fmt"
	"testing"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/TryMightyAI/ragshield/pkg/detect"
	"github.com/TryMightyAI/ragshield/pkg/quarantine"
)

func sampleVerdict() *detect.Verdict {
	return &detect.Verdict{
		VerdictID:  "verdict-1",
		DocumentID: "doc-1",
		Decision:   detect.DecisionQuarantine,
		Composite: detect.Composite{
			Final: 8.4,
			Tier:  detect.TierHigh,
		},
		CreatedAt: time.Now().UTC(),
	}
}

func TestLogSinkEmitsStructuredFields(t *testing.T) {
	core, observed := observer.New(zap.InfoLevel)
	s := NewLogSink(zap.New(core))

	if err := s.EmitVerdict(context.Background(), sampleVerdict()); err != nil {
		t.Fatalf("EmitVerdict failed: %v", err)
	}
	if err := s.EmitTransition(context.Background(), "doc-1", quarantine.Transition{
		From: quarantine.StatePending, To: quarantine.StateIsolated, At: time.Now(),
	}); err != nil {
		t.Fatalf("EmitTransition failed: %v", err)
	}

	entries := observed.All()
	if len(entries) != 2 {
		t.Fatalf("logged %d entries, expected 2", len(entries))
	}

	fields := entries[0].ContextMap()
	if fields["document_id"] != "doc-1" {
		t.Fatalf("verdict entry missing document id: %v", fields)
	}
	if fields["decision"] != string(detect.DecisionQuarantine) {
		t.Fatalf("verdict entry missing decision: %v", fields)
	}

	fields = entries[1].ContextMap()
	if fields["to"] != string(quarantine.StateIsolated) {
		t.Fatalf("transition entry missing target state: %v", fields)
	}
}

type flakySink struct {
	verdicts    int
	transitions int
	fail        bool
}

func (s *flakySink) EmitVerdict(ctx context.Context, v *detect.Verdict) error {
	s.verdicts++
	if s.fail {
		return fmt.Errorf("backend down")
	}
	return nil
}

func (s *flakySink) EmitTransition(ctx context.Context, documentID string, tr quarantine.Transition) error {
	s.transitions++
	if s.fail {
		return fmt.Errorf("backend down")
	}
	return nil
}

func TestMultiSinkAttemptsEveryMember(t *testing.T) {
	bad := &flakySink{fail: true}
	good := &flakySink{}
	m := Multi{bad, good}

	err := m.EmitVerdict(context.Background(), sampleVerdict())
	if err == nil {
		t.Fatal("failing member error was swallowed")
	}
	if bad.verdicts != 1 || good.verdicts != 1 {
		t.Fatalf("members saw %d/%d verdicts, expected 1/1", bad.verdicts, good.verdicts)
	}

	err = m.EmitTransition(context.Background(), "doc-1", quarantine.Transition{})
	if err == nil {
		t.Fatal("failing member error was swallowed")
	}
	if bad.transitions != 1 || good.transitions != 1 {
		t.Fatalf("members saw %d/%d transitions, expected 1/1", bad.transitions, good.transitions)
	}
}

func TestMultiSinkAllHealthy(t *testing.T) {
	m := Multi{&flakySink{}, &flakySink{}}
	if err := m.EmitVerdict(context.Background(), sampleVerdict()); err != nil {
		t.Fatalf("healthy multi sink errored: %v", err)
	}
}
