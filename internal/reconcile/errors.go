package reconcile

import (
	"errors"
	"fmt"
)

var (
	errMissing          = errors.New("missing")
	errNotANumber       = errors.New("not a number")
	errUnrecognizedDate = errors.New("unrecognized date format")
)

// RecordValidationError reports a malformed row. It is always recovered as
// a Skip.
type RecordValidationError struct {
	Row    int
	Field  string
	Value  string
	Reason string
}

func (e *RecordValidationError) Error() string {
	if e.Value == "" {
		return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
	}
	return fmt.Sprintf("invalid %s %q: %s", e.Field, e.Value, e.Reason)
}

// ResolutionError reports an account or category reference that did not
// resolve. An account failure skips the row; a category failure is a warning.
type ResolutionError struct {
	Row    int
	Kind   string // "account" or "category"
	Ref    string
	Reason string
}

func (e *ResolutionError) Error() string {
	if e.Reason != "" {
		return fmt.Sprintf("%s %q: %s", e.Kind, e.Ref, e.Reason)
	}
	if e.Ref == "" {
		return fmt.Sprintf("%s not found: none given", e.Kind)
	}
	return fmt.Sprintf("%s not found: %q", e.Kind, e.Ref)
}

// DuplicateClaimError reports a row whose best match was already claimed
// by an earlier row in the same run. For a row that would create a new
// transaction, ExternalID names the id an earlier row already creates.
type DuplicateClaimError struct {
	Row           int
	TransactionID string
	ExternalID    string
	ClaimedBy     int
}

func (e *DuplicateClaimError) Error() string {
	if e.TransactionID == "" {
		return fmt.Sprintf("duplicate match: external id %s already created by row %d", e.ExternalID, e.ClaimedBy)
	}
	return fmt.Sprintf("duplicate match: transaction %s already matched by row %d", e.TransactionID, e.ClaimedBy)
}

// PersistenceError reports a failed batch write. The batch was rolled back.
type PersistenceError struct {
	Op  string
	Row int // 0 when the failure is not tied to a row
	Err error
}

func (e *PersistenceError) Error() string {
	if e.Row > 0 {
		return fmt.Sprintf("persisting batch: %s (row %d): %v", e.Op, e.Row, e.Err)
	}
	return fmt.Sprintf("persisting batch: %s: %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }
