package detect

import (
	"context"
	"errors"
	"io"
	"math"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/TryMightyAI/ragshield/pkg/baseline"
	"github.com/TryMightyAI/ragshield/pkg/config"
	"github.com/TryMightyAI/ragshield/pkg/corpus"
	"github.com/TryMightyAI/ragshield/pkg/metrics"
	"github.com/TryMightyAI/ragshield/pkg/syncutil"
)

// VerdictSink receives every emitted verdict as a structured record.
// Sinks are monitoring egress: a sink failure is logged, never allowed to
// abort a scoring pass.
type VerdictSink interface {
	EmitVerdict(ctx context.Context, v *Verdict) error
}

// QuarantineHandler receives verdicts whose decision is QUARANTINE.
// The remediation coordinator implements this.
type QuarantineHandler interface {
	OnQuarantine(ctx context.Context, v *Verdict) error
}

// PipelineOptions wires a Pipeline. Zero-value fields get safe defaults.
type PipelineOptions struct {
	Extractors []Extractor
	Tracker    *baseline.Tracker
	Policies   *config.Provider
	Sink       VerdictSink       // optional
	Quarantine QuarantineHandler // optional
	Ingest     *corpus.Index     // optional: documents are indexed before scoring
	Logger     *zap.Logger
}

// Pipeline runs scoring passes. Extractors for a single document run
// concurrently and are joined deterministically before composite scoring;
// across documents, passes run in parallel behind a bounded semaphore.
// The baseline tracker is the only shared mutable state and serializes
// its own appends.
type Pipeline struct {
	extractors []Extractor
	tracker    *baseline.Tracker
	policies   *config.Provider
	sink       VerdictSink
	quarantine QuarantineHandler
	ingest     *corpus.Index
	logger     *zap.Logger
	sem        *syncutil.Semaphore
}

// NewPipeline builds a pipeline from options.
func NewPipeline(opts PipelineOptions) *Pipeline {
	if opts.Extractors == nil {
		opts.Extractors = DefaultExtractors(nil)
	}
	if opts.Tracker == nil {
		opts.Tracker = baseline.NewTracker()
	}
	if opts.Policies == nil {
		opts.Policies = config.NewStaticProvider(config.NewDefaultPolicy())
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	return &Pipeline{
		extractors: opts.Extractors,
		tracker:    opts.Tracker,
		policies:   opts.Policies,
		sink:       opts.Sink,
		quarantine: opts.Quarantine,
		ingest:     opts.Ingest,
		logger:     opts.Logger,
		sem:        syncutil.NewSemaphore(opts.Policies.Snapshot().MaxConcurrentScans),
	}
}

// Tracker exposes the baseline tracker for reporting.
func (p *Pipeline) Tracker() *baseline.Tracker { return p.tracker }

type extractorResult struct {
	sub SubScore
	err error
}

// ScanDocument runs one full scoring pass over one document. On an
// extractor failure the pass is indeterminate: the failure surfaces as
// IncompleteEvidence, no verdict is emitted, and the document is eligible
// for retry on the next pass.
func (p *Pipeline) ScanDocument(ctx context.Context, doc corpus.Document) (*Verdict, error) {
	start := time.Now()
	pol := p.policies.Snapshot()

	// One snapshot for the whole pass: all four extractors normalize
	// against the same reference population.
	base, _ := p.tracker.SnapshotOf(baseline.PopEmbeddingNorms)

	results := make(chan extractorResult, len(p.extractors))
	var wg sync.WaitGroup
	for _, ex := range p.extractors {
		wg.Add(1)
		go func(ex Extractor) {
			defer wg.Done()
			sub, err := ex.Score(&doc, base, pol)
			if err != nil {
				metrics.ExtractorFailures.WithLabelValues(string(ex.Kind())).Inc()
			}
			results <- extractorResult{sub: sub, err: err}
		}(ex)
	}
	wg.Wait()
	close(results)

	var subs []SubScore
	var causes []error
	for r := range results {
		if r.err != nil {
			causes = append(causes, r.err)
			continue
		}
		subs = append(subs, r.sub)
	}

	verdict, err := Decide(doc.ID, subs, pol)
	if err != nil {
		var incomplete *IncompleteEvidenceError
		if errors.As(err, &incomplete) {
			incomplete.Causes = causes
		}
		metrics.IndeterminateDocuments.Inc()
		p.logger.Warn("scoring pass indeterminate",
			zap.String("document_id", doc.ID),
			zap.Int("extractor_failures", len(causes)),
			zap.Error(err),
		)
		return nil, err
	}

	p.observe(doc, verdict, base, time.Since(start))

	metrics.DocumentsScanned.WithLabelValues(string(verdict.Decision)).Inc()
	metrics.ScanDuration.Observe(time.Since(start).Seconds())

	p.logger.Debug("document scored",
		zap.String("document_id", doc.ID),
		zap.Float64("final", verdict.Composite.Final),
		zap.String("tier", string(verdict.Composite.Tier)),
		zap.String("decision", string(verdict.Decision)),
	)

	if p.sink != nil {
		if err := p.sink.EmitVerdict(ctx, verdict); err != nil {
			p.logger.Error("verdict sink failed",
				zap.String("document_id", doc.ID),
				zap.Error(err),
			)
		}
	}

	if verdict.Decision == DecisionQuarantine && p.quarantine != nil {
		if err := p.quarantine.OnQuarantine(ctx, verdict); err != nil {
			p.logger.Error("quarantine handoff failed",
				zap.String("document_id", doc.ID),
				zap.Error(err),
			)
		}
	}

	return verdict, nil
}

// observe records this pass's observations. Appends happen after scoring,
// so the document was normalized against the population as it stood when
// the pass began.
func (p *Pipeline) observe(doc corpus.Document, v *Verdict, base baseline.Snapshot, elapsed time.Duration) {
	if len(doc.Embedding) > 0 {
		norm := doc.EmbeddingNorm()
		if z, err := base.ZScore(norm); err == nil {
			p.tracker.Observe(baseline.PopDriftScores, math.Abs(z))
		}
		p.tracker.Observe(baseline.PopEmbeddingNorms, norm)
	}
	p.tracker.Observe(baseline.PopDetectionLatency, float64(elapsed.Microseconds())/1000)
	p.tracker.Observe(baseline.PopCompositeScores, v.Composite.Final)
}

// Run drains a feed, scoring documents in parallel up to the policy's
// concurrency bound, and returns the aggregate scan report.
func (p *Pipeline) Run(ctx context.Context, feed corpus.Feed) (*ScanReport, error) {
	report := newScanReport()
	var wg sync.WaitGroup

	for {
		doc, err := feed.Next(ctx)
		if err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			wg.Wait()
			report.finish()
			return report, err
		}

		if p.ingest != nil {
			if err := p.ingest.Add(ctx, doc); err != nil {
				p.logger.Error("corpus index rejected document",
					zap.String("document_id", doc.ID),
					zap.Error(err),
				)
			}
		}

		if err := p.sem.Acquire(ctx); err != nil {
			wg.Wait()
			report.finish()
			return report, err
		}
		wg.Add(1)
		go func(doc corpus.Document) {
			defer wg.Done()
			defer p.sem.Release()
			v, err := p.ScanDocument(ctx, doc)
			if err != nil {
				report.addIndeterminate()
				return
			}
			report.add(v)
		}(doc)
	}

	wg.Wait()
	report.finish()
	return report, nil
}
