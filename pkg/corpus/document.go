// Package corpus defines the document model shared by every detection
// component and the feeds that deliver documents into a scoring pass.
//
// A Document is immutable once created. Quarantine and restore actions
// change where the document lives (live index vs. quarantine), never its
// content, so evidence recorded against a document stays valid forever.
package corpus

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"math"
	"time"
)

// Metadata carries the provenance claims a document arrives with.
// Claims are exactly that - the provenance extractor decides whether
// to believe them.
type Metadata struct {
	Source      string            `json:"source"`
	CreatedAt   time.Time         `json:"created_at"`
	Signed      bool              `json:"signed"`
	Signature   string            `json:"signature,omitempty"`
	ActivatesAt *time.Time        `json:"activates_at,omitempty"`
	Tags        map[string]string `json:"tags,omitempty"`
}

// Tag returns the named provenance tag, or "" if absent.
func (m Metadata) Tag(key string) string {
	if m.Tags == nil {
		return ""
	}
	return m.Tags[key]
}

// Document is a single corpus entry: text, provenance claims and the
// precomputed embedding vector. Embeddings are supplied by the ingestion
// pipeline; this engine never computes them.
type Document struct {
	ID         string    `json:"id"`
	Text       string    `json:"content"`
	Metadata   Metadata  `json:"meta"`
	Embedding  []float32 `json:"embedding,omitempty"`
	IngestedAt time.Time `json:"ingested_at"`
}

// Validate reports whether the document is well-formed enough to score.
// A document without an ID or text cannot produce a usable verdict.
func (d *Document) Validate() error {
	if d.ID == "" {
		return fmt.Errorf("document has no id")
	}
	if d.Text == "" {
		return fmt.Errorf("document %s has no text", d.ID)
	}
	for i, v := range d.Embedding {
		if math.IsNaN(float64(v)) || math.IsInf(float64(v), 0) {
			return fmt.Errorf("document %s embedding component %d is not finite", d.ID, i)
		}
	}
	return nil
}

// ContentHash returns the SHA-256 of the raw text, used by the behavioral
// extractor to recognize re-ingestion of previously purged content.
func (d *Document) ContentHash() string {
	sum := sha256.Sum256([]byte(d.Text))
	return hex.EncodeToString(sum[:])
}

// EmbeddingNorm returns the L2 magnitude of the embedding vector,
// or 0 when no embedding is attached.
func (d *Document) EmbeddingNorm() float64 {
	var sum float64
	for _, v := range d.Embedding {
		sum += float64(v) * float64(v)
	}
	return math.Sqrt(sum)
}
