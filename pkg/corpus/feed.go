package corpus

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"
)

// Feed is the abstract document ingress. The engine does not care whether
// documents come from a local corpus file, object storage or a live
// pipeline - only that each one carries id, text, metadata and embedding.
type Feed interface {
	// Next returns the next document, or io.EOF when the feed is drained.
	Next(ctx context.Context) (Document, error)
	Close() error
}

// SliceFeed serves documents from memory. Used in tests and for ad-hoc
// scans of already-loaded corpora.
type SliceFeed struct {
	docs []Document
	pos  int
}

func NewSliceFeed(docs []Document) *SliceFeed {
	return &SliceFeed{docs: docs}
}

func (f *SliceFeed) Next(ctx context.Context) (Document, error) {
	if err := ctx.Err(); err != nil {
		return Document{}, err
	}
	if f.pos >= len(f.docs) {
		return Document{}, io.EOF
	}
	doc := f.docs[f.pos]
	f.pos++
	return doc, nil
}

func (f *SliceFeed) Close() error { return nil }

// JSONLFeed reads one document per line from a seed-corpus file.
// Lines follow the generated corpus shape:
//
//	{"id": "...", "content": "...", "meta": {...}, "embedding": [...]}
//
// Blank lines are skipped. A malformed line is a hard error - a corpus
// file that cannot be parsed should not be half-scanned silently.
type JSONLFeed struct {
	f       *os.File
	scanner *bufio.Scanner
	line    int
}

func OpenJSONLFeed(path string) (*JSONLFeed, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open corpus %s: %w", path, err)
	}
	sc := bufio.NewScanner(f)
	// Documents with large embedded vectors easily exceed the default
	// 64KB token limit.
	sc.Buffer(make([]byte, 0, 64*1024), 8*1024*1024)
	return &JSONLFeed{f: f, scanner: sc}, nil
}

func (f *JSONLFeed) Next(ctx context.Context) (Document, error) {
	for {
		if err := ctx.Err(); err != nil {
			return Document{}, err
		}
		if !f.scanner.Scan() {
			if err := f.scanner.Err(); err != nil {
				return Document{}, fmt.Errorf("read corpus line %d: %w", f.line+1, err)
			}
			return Document{}, io.EOF
		}
		f.line++
		raw := f.scanner.Bytes()
		if len(raw) == 0 {
			continue
		}
		var doc Document
		if err := json.Unmarshal(raw, &doc); err != nil {
			return Document{}, fmt.Errorf("parse corpus line %d: %w", f.line, err)
		}
		if doc.IngestedAt.IsZero() {
			doc.IngestedAt = time.Now().UTC()
		}
		return doc, nil
	}
}

func (f *JSONLFeed) Close() error { return f.f.Close() }
