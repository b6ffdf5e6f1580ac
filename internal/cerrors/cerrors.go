// Package cerrors defines the error kinds the rest of the program
// classifies failures into, and the exit codes the CLI maps them to.
package cerrors

import (
	"context"
	"errors"
	"fmt"
)

// Kind tags an error with how the CLI should treat it.
type Kind string

const (
	KindTranscriptUnreadable Kind = "transcript_unreadable" // single-file read/parse failure, recovered locally
	KindTranscriptEmpty      Kind = "transcript_empty"      // zero extractable messages, not indexed, not an error
	KindEmbedderUnavailable  Kind = "embedder_unavailable"  // model missing or init failed, lexical-only mode
	KindStoreCorrupt         Kind = "index_store_corrupt"   // integrity check failed on open
	KindStoreBusy            Kind = "index_store_busy"      // another writer holds the lock
	KindQueryInvalid         Kind = "query_invalid"         // empty query after sanitization
	KindCancelled            Kind = "cancel_requested"      // cooperative cancellation
	KindInternal             Kind = "internal"              // unexpected invariant break
)

// Error wraps an underlying error with its kind classification.
type Error struct {
	Kind Kind
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return e.Err.Error()
	}
	return string(e.Kind)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// New creates a classified error from a format string.
func New(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Err: fmt.Errorf(format, args...)}
}

// Wrap classifies an existing error. Returns nil if err is nil.
func Wrap(kind Kind, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, Err: err}
}

// KindOf returns the kind of an error, or KindInternal when it carries
// no classification. Context cancellation is recognized regardless of
// wrapping so signal handling works through every layer.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	var ce *Error
	if errors.As(err, &ce) {
		return ce.Kind
	}
	if errors.Is(err, context.Canceled) {
		return KindCancelled
	}
	return KindInternal
}

// ExitCode maps an error to the process exit code: 0 success, 1 user
// error, 2 internal error, 130 cancelled.
func ExitCode(err error) int {
	if err == nil {
		return 0
	}
	switch KindOf(err) {
	case KindQueryInvalid:
		return 1
	case KindCancelled:
		return 130
	default:
		return 2
	}
}
