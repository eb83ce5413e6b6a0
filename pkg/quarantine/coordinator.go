package quarantine

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/TryMightyAI/ragshield/pkg/config"
	"github.com/TryMightyAI/ragshield/pkg/corpus"
	"github.com/TryMightyAI/ragshield/pkg/detect"
	"github.com/TryMightyAI/ragshield/pkg/metrics"
)

// Storage is the corpus side of remediation: moving a document out of
// and back into the retrievable index. corpus.Index implements it.
type Storage interface {
	Isolate(ctx context.Context, documentID string) error
	Restore(ctx context.Context, documentID string) error
	Purge(ctx context.Context, documentID string) error
	Get(documentID string) (corpus.Document, bool)
}

// Rescanner re-evaluates an isolated document so verification runs
// against fresh sub-scores rather than the verdict that triggered
// remediation.
type Rescanner interface {
	Rescan(ctx context.Context, documentID string) (*detect.Verdict, error)
}

// TransitionSink receives every applied lifecycle transition.
type TransitionSink interface {
	EmitTransition(ctx context.Context, documentID string, tr Transition) error
}

// RemediationFailedError reports that a storage action exhausted its
// retry budget and the record was moved to FAILED.
type RemediationFailedError struct {
	DocumentID string
	Action     string
	Attempts   int
	Err        error
}

func (e *RemediationFailedError) Error() string {
	return fmt.Sprintf("remediation %s failed for document %s after %d attempts: %v",
		e.Action, e.DocumentID, e.Attempts, e.Err)
}

func (e *RemediationFailedError) Unwrap() error { return e.Err }

// CoordinatorOptions wires a Coordinator.
type CoordinatorOptions struct {
	Store    RecordStore
	Storage  Storage
	Rescan   Rescanner // optional: without it, verification upholds the verdict
	Policies *config.Provider
	Sink     TransitionSink // optional
	Logger   *zap.Logger
}

// Coordinator drives the remediation lifecycle for quarantined
// documents: PENDING -> ISOLATED -> VERIFYING -> RESTORED or PURGED,
// with FAILED reachable from any step. It holds the per-document store
// lease for the duration of a remediation, so concurrent verdicts for
// the same document cannot interleave transitions.
type Coordinator struct {
	store    RecordStore
	storage  Storage
	rescan   Rescanner
	policies *config.Provider
	sink     TransitionSink
	logger   *zap.Logger
}

func NewCoordinator(opts CoordinatorOptions) *Coordinator {
	if opts.Store == nil {
		opts.Store = NewMemoryStore()
	}
	if opts.Policies == nil {
		opts.Policies = config.NewStaticProvider(config.NewDefaultPolicy())
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	return &Coordinator{
		store:    opts.Store,
		storage:  opts.Storage,
		rescan:   opts.Rescan,
		policies: opts.Policies,
		sink:     opts.Sink,
		logger:   opts.Logger,
	}
}

// SeenPurged reports whether a content hash belongs to previously
// purged content. Implements detect.ReplayLedger.
func (c *Coordinator) SeenPurged(contentHash string) bool {
	seen, err := c.store.IsPurged(context.Background(), contentHash)
	if err != nil {
		c.logger.Error("purged-hash lookup failed", zap.Error(err))
		return false
	}
	return seen
}

// Record returns the remediation record for a document.
func (c *Coordinator) Record(ctx context.Context, documentID string) (*Record, error) {
	return c.store.Get(ctx, documentID)
}

// Records returns every remediation record.
func (c *Coordinator) Records(ctx context.Context) ([]*Record, error) {
	return c.store.List(ctx)
}

// OnQuarantine runs the full remediation lifecycle for a quarantine
// verdict. Implements detect.QuarantineHandler.
func (c *Coordinator) OnQuarantine(ctx context.Context, v *detect.Verdict) error {
	pol := c.policies.Snapshot()

	// Lease TTL covers the worst case: every action exhausting its
	// full isolation budget across all retries.
	ttl := pol.IsolationBudget() * time.Duration(3*(pol.MaxRetries+1))
	held, err := c.store.AcquireLease(ctx, v.DocumentID, ttl)
	if err != nil {
		return fmt.Errorf("acquire remediation lease for %s: %w", v.DocumentID, err)
	}
	if !held {
		c.logger.Info("remediation already in progress",
			zap.String("document_id", v.DocumentID))
		return nil
	}
	defer func() {
		if err := c.store.ReleaseLease(context.WithoutCancel(ctx), v.DocumentID); err != nil {
			c.logger.Error("lease release failed",
				zap.String("document_id", v.DocumentID), zap.Error(err))
		}
	}()

	var contentHash string
	if doc, ok := c.storage.Get(v.DocumentID); ok {
		contentHash = doc.ContentHash()
	}

	rec := NewRecord(v.DocumentID, v.VerdictID, contentHash)
	if err := c.store.Save(ctx, rec); err != nil {
		return fmt.Errorf("open remediation record for %s: %w", v.DocumentID, err)
	}
	metrics.QuarantineActive.Inc()
	// The record leaves the active set on every exit path, terminal
	// or failed.
	defer metrics.QuarantineActive.Dec()

	// Isolation: remove the document from the retrievable set within
	// the time budget, retrying transient storage failures.
	if err := c.attempt(ctx, pol, "isolate", v.DocumentID, c.storage.Isolate); err != nil {
		return c.fail(ctx, rec, err)
	}
	if err := c.transition(ctx, rec, StateIsolated, "removed from retrievable index"); err != nil {
		return c.fail(ctx, rec, err)
	}

	if err := c.transition(ctx, rec, StateVerifying, "re-evaluating in isolation"); err != nil {
		return c.fail(ctx, rec, err)
	}

	upheld, reason := c.verify(ctx, v, pol)

	if upheld {
		if err := c.attempt(ctx, pol, "purge", v.DocumentID, c.storage.Purge); err != nil {
			return c.fail(ctx, rec, err)
		}
		if contentHash != "" {
			if err := c.store.MarkPurged(ctx, contentHash); err != nil {
				c.logger.Error("purged-hash ledger update failed",
					zap.String("document_id", v.DocumentID), zap.Error(err))
			}
		}
		if err := c.transition(ctx, rec, StatePurged, reason); err != nil {
			return err
		}
	} else {
		if err := c.attempt(ctx, pol, "restore", v.DocumentID, c.storage.Restore); err != nil {
			return c.fail(ctx, rec, err)
		}
		if err := c.transition(ctx, rec, StateRestored, reason); err != nil {
			return err
		}
	}

	c.logger.Info("remediation complete",
		zap.String("document_id", v.DocumentID),
		zap.String("state", string(rec.State)),
	)
	return nil
}

// verify decides the final disposition. A rescan that drops below the
// quarantine threshold clears the document; without a rescanner the
// original verdict stands.
func (c *Coordinator) verify(ctx context.Context, v *detect.Verdict, pol *config.Policy) (upheld bool, reason string) {
	if c.rescan == nil {
		return true, fmt.Sprintf("verdict %s upheld without re-scan, final score %.2f", v.VerdictID, v.Composite.Final)
	}

	fresh, err := c.rescan.Rescan(ctx, v.DocumentID)
	if err != nil {
		// An indeterminate re-scan never clears a quarantined document.
		c.logger.Warn("verification re-scan failed, upholding verdict",
			zap.String("document_id", v.DocumentID), zap.Error(err))
		return true, fmt.Sprintf("re-scan failed (%v), verdict upheld", err)
	}

	if fresh.Composite.Final >= pol.QuarantineThreshold {
		return true, fmt.Sprintf("re-scan confirmed at %.2f", fresh.Composite.Final)
	}
	return false, fmt.Sprintf("re-scan cleared at %.2f", fresh.Composite.Final)
}

// attempt runs one storage action under the isolation budget with
// exponential backoff between retries.
func (c *Coordinator) attempt(ctx context.Context, pol *config.Policy, action, documentID string, fn func(context.Context, string) error) error {
	var last error
	attempts := pol.MaxRetries + 1
	for i := 0; i < attempts; i++ {
		actionCtx, cancel := context.WithTimeout(ctx, pol.IsolationBudget())
		err := fn(actionCtx, documentID)
		cancel()
		if err == nil {
			return nil
		}
		last = err
		c.logger.Warn("remediation action failed",
			zap.String("document_id", documentID),
			zap.String("action", action),
			zap.Int("attempt", i+1),
			zap.Error(err),
		)
		if i == attempts-1 {
			break
		}
		select {
		case <-time.After(pol.RetryBackoff() << i):
		case <-ctx.Done():
			return &RemediationFailedError{DocumentID: documentID, Action: action, Attempts: i + 1, Err: ctx.Err()}
		}
	}
	return &RemediationFailedError{DocumentID: documentID, Action: action, Attempts: attempts, Err: last}
}

// fail moves the record to FAILED and surfaces the cause. The active
// gauge is handled by OnQuarantine's deferred decrement.
func (c *Coordinator) fail(ctx context.Context, rec *Record, cause error) error {
	if err := c.transition(ctx, rec, StateFailed, cause.Error()); err != nil {
		c.logger.Error("failed-state transition rejected",
			zap.String("document_id", rec.DocumentID), zap.Error(err))
	}
	return cause
}

// transition applies one lifecycle step, persists it and notifies
// observers.
func (c *Coordinator) transition(ctx context.Context, rec *Record, to State, reason string) error {
	tr, err := rec.Apply(to, reason)
	if err != nil {
		return err
	}
	if err := c.store.Save(ctx, rec); err != nil {
		return fmt.Errorf("persist quarantine record %s: %w", rec.DocumentID, err)
	}
	metrics.QuarantineTransitions.WithLabelValues(string(to)).Inc()
	if c.sink != nil {
		if err := c.sink.EmitTransition(ctx, rec.DocumentID, tr); err != nil {
			c.logger.Error("transition sink failed",
				zap.String("document_id", rec.DocumentID), zap.Error(err))
		}
	}
	return nil
}
