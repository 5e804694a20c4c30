// Package failure classifies the errors raised while converting and merging
// regions. Every error that crosses a component boundary carries a Kind so
// callers can decide whether it is contained (feature, region, merge step) or
// fatal for the whole run.
package failure

import (
	"errors"
	"fmt"
)

// Kind is a failure class.
type Kind string

const (
	// DecodeError: the region payload's text encoding could not be determined
	// or the payload is not a readable document.
	DecodeError Kind = "DECODE_ERROR"
	// EmptyResult: the payload is an explicit "no matches" sentinel. Not an
	// error for the region; carried so callers can report it.
	EmptyResult Kind = "EMPTY_RESULT"
	// FeatureParseError: one malformed feature entry, skipped.
	FeatureParseError Kind = "FEATURE_PARSE_ERROR"
	// CrsFormatError: a CRS identifier is present but not "<authority>:<code>".
	CrsFormatError Kind = "CRS_FORMAT_ERROR"
	// StoreOperationError: any failure reported by a feature store.
	StoreOperationError Kind = "STORE_OPERATION_ERROR"
	// FatalOrchestrationError: the run itself cannot continue.
	FatalOrchestrationError Kind = "FATAL_ORCHESTRATION_ERROR"
)

// Error is a classified error.
type Error struct {
	Kind    Kind
	Op      string // operation, e.g. "create_collection"
	Subject string // region, store or field the operation worked on
	Err     error
}

func (e *Error) Error() string {
	msg := string(e.Kind)
	if e.Op != "" {
		msg += ": " + e.Op
	}
	if e.Subject != "" {
		msg += " " + e.Subject
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

// New returns a classified error.
func New(kind Kind, op, subject string, err error) error {
	return &Error{Kind: kind, Op: op, Subject: subject, Err: err}
}

// Newf returns a classified error with a formatted cause.
func Newf(kind Kind, op, subject, format string, args ...any) error {
	return &Error{Kind: kind, Op: op, Subject: subject, Err: fmt.Errorf(format, args...)}
}

// Store wraps a feature store failure.
func Store(op, subject string, err error) error {
	if err == nil {
		return nil
	}
	var fe *Error
	if errors.As(err, &fe) && fe.Kind == StoreOperationError {
		return err
	}
	return New(StoreOperationError, op, subject, err)
}

// KindOf returns the Kind of the outermost classified error in err's chain,
// or "" when err is nil or unclassified.
func KindOf(err error) Kind {
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Kind
	}
	return ""
}

// Is reports whether err's chain carries a classified error of kind.
func Is(err error, kind Kind) bool {
	for err != nil {
		var fe *Error
		if !errors.As(err, &fe) {
			return false
		}
		if fe.Kind == kind {
			return true
		}
		err = fe.Err
	}
	return false
}
