package detect

import (
	"errors"
	"fmt"
	"strings"
)

// ExtractorFailureError reports that one extractor could not process a
// document (text or vector absent or corrupt). It carries enough context
// to reconstruct the failure without replaying the input.
type ExtractorFailureError struct {
	DocumentID string
	Kind       ExtractorKind
	Err        error
}

func (e *ExtractorFailureError) Error() string {
	return fmt.Sprintf("extractor %s failed on document %s: %v", e.Kind, e.DocumentID, e.Err)
}

func (e *ExtractorFailureError) Unwrap() error { return e.Err }

// IncompleteEvidenceError reports that composite scoring was attempted
// without exactly one sub-score per extractor kind. It is a hard failure
// for the document: no verdict is emitted, because partial scoring must
// never produce a false "clean".
type IncompleteEvidenceError struct {
	DocumentID string
	Missing    []ExtractorKind
	Duplicates []ExtractorKind
	Causes     []error // extractor failures that led here, if any
}

func (e *IncompleteEvidenceError) Error() string {
	var parts []string
	if len(e.Missing) > 0 {
		parts = append(parts, fmt.Sprintf("missing %v", e.Missing))
	}
	if len(e.Duplicates) > 0 {
		parts = append(parts, fmt.Sprintf("duplicated %v", e.Duplicates))
	}
	if len(parts) == 0 {
		parts = append(parts, "incomplete sub-scores")
	}
	return fmt.Sprintf("incomplete evidence for document %s: %s", e.DocumentID, strings.Join(parts, ", "))
}

func (e *IncompleteEvidenceError) Unwrap() []error { return e.Causes }

// IsIncompleteEvidence reports whether err is an IncompleteEvidenceError.
func IsIncompleteEvidence(err error) bool {
	var e *IncompleteEvidenceError
	return errors.As(err, &e)
}
