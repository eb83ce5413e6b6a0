package corpus

import (
	"context"
	"fmt"
	"sync"

	chromem "github.com/philippgille/chromem-go"
)

// Collection names inside the chromem store. Retrieval traffic only ever
// queries the live collection, so moving a document to quarantine removes
// it from retrieval without destroying it.
const (
	liveCollection       = "corpus_live"
	quarantineCollection = "corpus_quarantine"
)

// Index is the retrieval-side view of the corpus, backed by an embedded
// chromem-go vector store. It doubles as the storage adapter consumed by
// the remediation coordinator: isolate/restore/purge move documents
// between the live and quarantine collections.
type Index struct {
	db          *chromem.DB
	live        *chromem.Collection
	quarantined *chromem.Collection

	mu   sync.Mutex
	docs map[string]Document // last accepted copy by id
}

// rejectEmbedding guards against chromem ever trying to compute an
// embedding itself. Every document in this system arrives with one.
func rejectEmbedding(ctx context.Context, text string) ([]float32, error) {
	return nil, fmt.Errorf("embeddings are precomputed; refusing to embed %d bytes", len(text))
}

// OpenIndex opens a persistent index at path, or an in-memory one when
// path is empty.
func OpenIndex(path string) (*Index, error) {
	var (
		db  *chromem.DB
		err error
	)
	if path == "" {
		db = chromem.NewDB()
	} else {
		db, err = chromem.NewPersistentDB(path, false)
		if err != nil {
			return nil, fmt.Errorf("open corpus index %s: %w", path, err)
		}
	}

	live, err := db.GetOrCreateCollection(liveCollection, nil, rejectEmbedding)
	if err != nil {
		return nil, fmt.Errorf("create live collection: %w", err)
	}
	quarantined, err := db.GetOrCreateCollection(quarantineCollection, nil, rejectEmbedding)
	if err != nil {
		return nil, fmt.Errorf("create quarantine collection: %w", err)
	}

	return &Index{
		db:          db,
		live:        live,
		quarantined: quarantined,
		docs:        make(map[string]Document),
	}, nil
}

func toChromem(doc Document) chromem.Document {
	return chromem.Document{
		ID:        doc.ID,
		Content:   doc.Text,
		Embedding: doc.Embedding,
		Metadata: map[string]string{
			"source": doc.Metadata.Source,
		},
	}
}

// Add inserts a document into the live collection. Documents without an
// embedding are still tracked but not vector-searchable.
func (ix *Index) Add(ctx context.Context, doc Document) error {
	ix.mu.Lock()
	defer ix.mu.Unlock()

	if len(doc.Embedding) > 0 {
		if err := ix.live.AddDocument(ctx, toChromem(doc)); err != nil {
			return fmt.Errorf("index document %s: %w", doc.ID, err)
		}
	}
	ix.docs[doc.ID] = doc
	return nil
}

// Get returns the last accepted copy of a document.
func (ix *Index) Get(id string) (Document, bool) {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	doc, ok := ix.docs[id]
	return doc, ok
}

// Isolate removes a document from the live collection and parks it in the
// quarantine collection. The document content is preserved.
func (ix *Index) Isolate(ctx context.Context, id string) error {
	ix.mu.Lock()
	defer ix.mu.Unlock()

	doc, ok := ix.docs[id]
	if !ok {
		return fmt.Errorf("isolate %s: document not indexed", id)
	}
	if len(doc.Embedding) > 0 {
		if err := ix.live.Delete(ctx, nil, nil, id); err != nil {
			return fmt.Errorf("isolate %s: remove from live collection: %w", id, err)
		}
		if err := ix.quarantined.AddDocument(ctx, toChromem(doc)); err != nil {
			return fmt.Errorf("isolate %s: add to quarantine collection: %w", id, err)
		}
	}
	return nil
}

// Restore moves a quarantined document back into active retrieval.
func (ix *Index) Restore(ctx context.Context, id string) error {
	ix.mu.Lock()
	defer ix.mu.Unlock()

	doc, ok := ix.docs[id]
	if !ok {
		return fmt.Errorf("restore %s: document not indexed", id)
	}
	if len(doc.Embedding) > 0 {
		if err := ix.quarantined.Delete(ctx, nil, nil, id); err != nil {
			return fmt.Errorf("restore %s: remove from quarantine collection: %w", id, err)
		}
		if err := ix.live.AddDocument(ctx, toChromem(doc)); err != nil {
			return fmt.Errorf("restore %s: add to live collection: %w", id, err)
		}
	}
	return nil
}

// Purge removes a document from both collections and drops the tracked
// copy. This is irreversible.
func (ix *Index) Purge(ctx context.Context, id string) error {
	ix.mu.Lock()
	defer ix.mu.Unlock()

	doc, ok := ix.docs[id]
	if !ok {
		return fmt.Errorf("purge %s: document not indexed", id)
	}
	if len(doc.Embedding) > 0 {
		if err := ix.live.Delete(ctx, nil, nil, id); err != nil {
			return fmt.Errorf("purge %s: remove from live collection: %w", id, err)
		}
		if err := ix.quarantined.Delete(ctx, nil, nil, id); err != nil {
			return fmt.Errorf("purge %s: remove from quarantine collection: %w", id, err)
		}
	}
	delete(ix.docs, id)
	return nil
}

// LiveCount reports how many vector-searchable documents are currently
// retrievable.
func (ix *Index) LiveCount() int {
	return ix.live.Count()
}
