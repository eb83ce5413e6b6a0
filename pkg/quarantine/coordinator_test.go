package quarantine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/TryMightyAI/ragshield/pkg/config"
	"github.com/TryMightyAI/ragshield/pkg/corpus"
	"github.com/TryMightyAI/ragshield/pkg/detect"
	"github.com/TryMightyAI/ragshield/pkg/metrics"
)

// fastPolicy shrinks the remediation timing knobs so retry paths finish
// quickly under test.
func fastPolicy(t *testing.T) *config.Provider {
	t.Helper()
	pol := config.NewDefaultPolicy()
	pol.IsolationBudgetMs = 100
	pol.RetryBackoffMs = 1
	pol.MaxRetries = 2
	if err := pol.Validate(); err != nil {
		t.Fatalf("policy invalid: %v", err)
	}
	return config.NewStaticProvider(pol)
}

func quarantineVerdict(docID string) *detect.Verdict {
	return &detect.Verdict{
		VerdictID:  "verdict-" + docID,
		DocumentID: docID,
		Composite:  detect.Composite{Final: 9.2, Tier: detect.TierCritical},
		Decision:   detect.DecisionQuarantine,
		CreatedAt:  time.Now().UTC(),
	}
}

type stubRescanner struct {
	final float64
	err   error
}

func (r *stubRescanner) Rescan(ctx context.Context, documentID string) (*detect.Verdict, error) {
	if r.err != nil {
		return nil, r.err
	}
	return &detect.Verdict{
		VerdictID:  "rescan-" + documentID,
		DocumentID: documentID,
		Composite:  detect.Composite{Final: r.final},
	}, nil
}

type captureTransitions struct {
	mu          sync.Mutex
	transitions []Transition
}

func (c *captureTransitions) EmitTransition(ctx context.Context, documentID string, tr Transition) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.transitions = append(c.transitions, tr)
	return nil
}

func indexWithDoc(t *testing.T, id string) *corpus.Index {
	t.Helper()
	ix, err := corpus.OpenIndex("")
	if err != nil {
		t.Fatalf("OpenIndex failed: %v", err)
	}
	doc := corpus.Document{
		ID:        id,
		Text:      "content under remediation review for document " + id,
		Embedding: []float32{3, 4},
		Metadata:  corpus.Metadata{Source: "internal-knowledge-base"},
	}
	if err := ix.Add(context.Background(), doc); err != nil {
		t.Fatalf("Add failed: %v", err)
	}
	return ix
}

func TestCoordinatorRestoresClearedDocument(t *testing.T) {
	ix := indexWithDoc(t, "doc-1")
	store := NewMemoryStore()
	sink := &captureTransitions{}

	c := NewCoordinator(CoordinatorOptions{
		Store:    store,
		Storage:  ix,
		Rescan:   &stubRescanner{final: 1.5}, // clears on re-scan
		Policies: fastPolicy(t),
		Sink:     sink,
	})

	if err := c.OnQuarantine(context.Background(), quarantineVerdict("doc-1")); err != nil {
		t.Fatalf("OnQuarantine failed: %v", err)
	}

	rec, err := store.Get(context.Background(), "doc-1")
	if err != nil {
		t.Fatalf("record missing: %v", err)
	}
	if rec.State != StateRestored {
		t.Fatalf("final state %s, expected %s", rec.State, StateRestored)
	}
	if len(rec.History) != 3 {
		t.Fatalf("restore lifecycle recorded %d transitions, expected exactly 3", len(rec.History))
	}
	if got := ix.LiveCount(); got != 1 {
		t.Fatalf("live count %d after restore, expected 1", got)
	}

	sink.mu.Lock()
	defer sink.mu.Unlock()
	if len(sink.transitions) != 3 {
		t.Fatalf("sink saw %d transitions, expected 3", len(sink.transitions))
	}
}

func TestCoordinatorPurgesConfirmedDocument(t *testing.T) {
	ix := indexWithDoc(t, "doc-1")
	doc, _ := ix.Get("doc-1")
	store := NewMemoryStore()

	c := NewCoordinator(CoordinatorOptions{
		Store:    store,
		Storage:  ix,
		Rescan:   &stubRescanner{final: 8.8}, // still over the threshold
		Policies: fastPolicy(t),
	})

	if err := c.OnQuarantine(context.Background(), quarantineVerdict("doc-1")); err != nil {
		t.Fatalf("OnQuarantine failed: %v", err)
	}

	rec, err := store.Get(context.Background(), "doc-1")
	if err != nil {
		t.Fatalf("record missing: %v", err)
	}
	if rec.State != StatePurged {
		t.Fatalf("final state %s, expected %s", rec.State, StatePurged)
	}
	if got := ix.LiveCount(); got != 0 {
		t.Fatalf("live count %d after purge, expected 0", got)
	}
	if _, ok := ix.Get("doc-1"); ok {
		t.Fatal("purged document still tracked by the index")
	}

	// The purged ledger feeds replay detection.
	if !c.SeenPurged(doc.ContentHash()) {
		t.Fatal("purged content hash not recorded")
	}
}

func TestCoordinatorWithoutRescannerUpholdsVerdict(t *testing.T) {
	ix := indexWithDoc(t, "doc-1")
	store := NewMemoryStore()

	c := NewCoordinator(CoordinatorOptions{
		Store:    store,
		Storage:  ix,
		Policies: fastPolicy(t),
	})

	if err := c.OnQuarantine(context.Background(), quarantineVerdict("doc-1")); err != nil {
		t.Fatalf("OnQuarantine failed: %v", err)
	}
	rec, err := store.Get(context.Background(), "doc-1")
	if err != nil {
		t.Fatalf("record missing: %v", err)
	}
	if rec.State != StatePurged {
		t.Fatalf("final state %s, expected %s", rec.State, StatePurged)
	}
}

func TestCoordinatorFailedRescanNeverClears(t *testing.T) {
	ix := indexWithDoc(t, "doc-1")
	store := NewMemoryStore()

	c := NewCoordinator(CoordinatorOptions{
		Store:    store,
		Storage:  ix,
		Rescan:   &stubRescanner{err: fmt.Errorf("extractor offline")},
		Policies: fastPolicy(t),
	})

	if err := c.OnQuarantine(context.Background(), quarantineVerdict("doc-1")); err != nil {
		t.Fatalf("OnQuarantine failed: %v", err)
	}
	rec, _ := store.Get(context.Background(), "doc-1")
	if rec.State != StatePurged {
		t.Fatalf("indeterminate re-scan ended at %s, expected %s", rec.State, StatePurged)
	}
}

type failingStorage struct {
	calls int
}

func (s *failingStorage) Isolate(ctx context.Context, id string) error {
	s.calls++
	return fmt.Errorf("backend unavailable")
}
func (s *failingStorage) Restore(ctx context.Context, id string) error { return nil }
func (s *failingStorage) Purge(ctx context.Context, id string) error   { return nil }
func (s *failingStorage) Get(id string) (corpus.Document, bool)        { return corpus.Document{}, false }

func TestCoordinatorExhaustedRetriesEndInFailed(t *testing.T) {
	storage := &failingStorage{}
	store := NewMemoryStore()

	c := NewCoordinator(CoordinatorOptions{
		Store:    store,
		Storage:  storage,
		Policies: fastPolicy(t),
	})

	err := c.OnQuarantine(context.Background(), quarantineVerdict("doc-1"))
	var failed *RemediationFailedError
	if !errors.As(err, &failed) {
		t.Fatalf("expected RemediationFailedError, got %v", err)
	}
	if failed.Action != "isolate" {
		t.Fatalf("failed action %s, expected isolate", failed.Action)
	}
	if storage.calls != 3 { // MaxRetries 2 -> 3 attempts
		t.Fatalf("storage called %d times, expected 3", storage.calls)
	}

	rec, err := store.Get(context.Background(), "doc-1")
	if err != nil {
		t.Fatalf("record missing: %v", err)
	}
	if rec.State != StateFailed {
		t.Fatalf("final state %s, expected %s", rec.State, StateFailed)
	}
	if !rec.State.Terminal() {
		t.Fatal("FAILED must be terminal")
	}
}

// flakyRecordStore fails the nth Save and works otherwise.
type flakyRecordStore struct {
	*MemoryStore
	saves  int
	failOn int
}

func (s *flakyRecordStore) Save(ctx context.Context, rec *Record) error {
	s.saves++
	if s.saves == s.failOn {
		return fmt.Errorf("record store unavailable")
	}
	return s.MemoryStore.Save(ctx, rec)
}

func TestCoordinatorRecordSaveFailureReleasesActiveGauge(t *testing.T) {
	ix := indexWithDoc(t, "doc-1")
	// Opening the record succeeds; persisting the ISOLATED transition
	// does not.
	store := &flakyRecordStore{MemoryStore: NewMemoryStore(), failOn: 2}

	c := NewCoordinator(CoordinatorOptions{
		Store:    store,
		Storage:  ix,
		Policies: fastPolicy(t),
	})

	before := testutil.ToFloat64(metrics.QuarantineActive)
	if err := c.OnQuarantine(context.Background(), quarantineVerdict("doc-1")); err == nil {
		t.Fatal("failed record save must surface an error")
	}
	if after := testutil.ToFloat64(metrics.QuarantineActive); after != before {
		t.Fatalf("active gauge leaked: before=%f after=%f", before, after)
	}

	rec, err := store.Get(context.Background(), "doc-1")
	if err != nil {
		t.Fatalf("record missing: %v", err)
	}
	if rec.State != StateFailed {
		t.Fatalf("final state %s, expected %s", rec.State, StateFailed)
	}
}

func TestCoordinatorLeaseBlocksConcurrentRemediation(t *testing.T) {
	ix := indexWithDoc(t, "doc-1")
	store := NewMemoryStore()

	if ok, err := store.AcquireLease(context.Background(), "doc-1", time.Minute); err != nil || !ok {
		t.Fatalf("pre-acquire: ok=%v err=%v", ok, err)
	}

	c := NewCoordinator(CoordinatorOptions{
		Store:    store,
		Storage:  ix,
		Policies: fastPolicy(t),
	})

	if err := c.OnQuarantine(context.Background(), quarantineVerdict("doc-1")); err != nil {
		t.Fatalf("held lease must be a quiet no-op, got %v", err)
	}
	if _, err := store.Get(context.Background(), "doc-1"); err == nil {
		t.Fatal("remediation record opened despite a held lease")
	}
}
