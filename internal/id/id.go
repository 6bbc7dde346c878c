package id

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// Prefixes identify what kind of record an id belongs to.
const (
	PrefixTransaction = "txn"
	PrefixAccount     = "acct"
	PrefixCategory    = "cat"
	PrefixRun         = "run"
)

// New returns an id like "txn_5f0c...".
func New(prefix string) string {
	return prefix + "_" + uuid.NewString()
}

// NewTransactionID returns a fresh transaction id.
func NewTransactionID() string { return New(PrefixTransaction) }

// NewAccountID returns a fresh account id.
func NewAccountID() string { return New(PrefixAccount) }

// NewCategoryID returns a fresh category id.
func NewCategoryID() string { return New(PrefixCategory) }

// NewRunID returns a fresh reconciliation run id.
func NewRunID() string { return New(PrefixRun) }

// Kind returns the prefix of an id, or "" if it has none.
// "txn_5f0c..." -> "txn"
func Kind(s string) string {
	prefix, _, ok := strings.Cut(s, "_")
	if !ok {
		return ""
	}
	return prefix
}

// Validate checks that s is a prefix_uuid id of the given kind.
func Validate(s, prefix string) error {
	kind, rest, ok := strings.Cut(s, "_")
	if !ok {
		return fmt.Errorf("invalid id format: %q", s)
	}
	if kind != prefix {
		return fmt.Errorf("id %q: expected kind %q, got %q", s, prefix, kind)
	}
	if _, err := uuid.Parse(rest); err != nil {
		return fmt.Errorf("invalid uuid in id %q: %w", s, err)
	}
	return nil
}
