package sink

import (
	"context"

	"go.uber.org/zap"

	"github.com/TryMightyAI/ragshield/pkg/detect"
	"github.com/TryMightyAI/ragshield/pkg/quarantine"
)

// LogSink writes every verdict and transition to the structured log.
// It is the default sink: even a bare CLI run leaves an audit trail.
type LogSink struct {
	logger *zap.Logger
}

func NewLogSink(logger *zap.Logger) *LogSink {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogSink{logger: logger}
}

func (s *LogSink) EmitVerdict(ctx context.Context, v *detect.Verdict) error {
	s.logger.Info("verdict",
		zap.String("verdict_id", v.VerdictID),
		zap.String("document_id", v.DocumentID),
		zap.String("decision", string(v.Decision)),
		zap.Float64("final", v.Composite.Final),
		zap.String("tier", string(v.Composite.Tier)),
		zap.String("dominant_category", string(v.Composite.DominantCategory)),
	)
	return nil
}

func (s *LogSink) EmitTransition(ctx context.Context, documentID string, tr quarantine.Transition) error {
	s.logger.Info("quarantine transition",
		zap.String("document_id", documentID),
		zap.String("from", string(tr.From)),
		zap.String("to", string(tr.To)),
		zap.String("reason", tr.Reason),
	)
	return nil
}
