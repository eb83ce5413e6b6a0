package quarantine

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// RecordNotFoundError reports a lookup for a document with no
// remediation record.
type RecordNotFoundError struct {
	DocumentID string
}

func (e *RecordNotFoundError) Error() string {
	return fmt.Sprintf("no quarantine record for document %s", e.DocumentID)
}

// RecordStore persists remediation records, the purged-content ledger
// and the per-document coordination lease.
type RecordStore interface {
	// Save upserts the full record.
	Save(ctx context.Context, rec *Record) error
	// Get returns the record for a document, or RecordNotFoundError.
	Get(ctx context.Context, documentID string) (*Record, error)
	// List returns every stored record.
	List(ctx context.Context) ([]*Record, error)

	// AcquireLease takes the exclusive remediation lease for a document.
	// It returns false when another coordinator already holds it.
	AcquireLease(ctx context.Context, documentID string, ttl time.Duration) (bool, error)
	ReleaseLease(ctx context.Context, documentID string) error

	// MarkPurged adds a content hash to the purged ledger.
	MarkPurged(ctx context.Context, contentHash string) error
	// IsPurged reports whether a content hash was purged before.
	IsPurged(ctx context.Context, contentHash string) (bool, error)
}

// MemoryStore is the in-process RecordStore used by the CLI scan mode
// and by tests.
type MemoryStore struct {
	mu      sync.RWMutex
	records map[string]*Record
	leases  map[string]time.Time
	purged  map[string]bool
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		records: make(map[string]*Record),
		leases:  make(map[string]time.Time),
		purged:  make(map[string]bool),
	}
}

func (s *MemoryStore) Save(ctx context.Context, rec *Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *rec
	cp.History = append([]Transition(nil), rec.History...)
	s.records[rec.DocumentID] = &cp
	return nil
}

func (s *MemoryStore) Get(ctx context.Context, documentID string) (*Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.records[documentID]
	if !ok {
		return nil, &RecordNotFoundError{DocumentID: documentID}
	}
	cp := *rec
	cp.History = append([]Transition(nil), rec.History...)
	return &cp, nil
}

func (s *MemoryStore) List(ctx context.Context) ([]*Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*Record, 0, len(s.records))
	for _, rec := range s.records {
		cp := *rec
		cp.History = append([]Transition(nil), rec.History...)
		out = append(out, &cp)
	}
	return out, nil
}

func (s *MemoryStore) AcquireLease(ctx context.Context, documentID string, ttl time.Duration) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if expiry, held := s.leases[documentID]; held && time.Now().Before(expiry) {
		return false, nil
	}
	s.leases[documentID] = time.Now().Add(ttl)
	return true, nil
}

func (s *MemoryStore) ReleaseLease(ctx context.Context, documentID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.leases, documentID)
	return nil
}

func (s *MemoryStore) MarkPurged(ctx context.Context, contentHash string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.purged[contentHash] = true
	return nil
}

func (s *MemoryStore) IsPurged(ctx context.Context, contentHash string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.purged[contentHash], nil
}
