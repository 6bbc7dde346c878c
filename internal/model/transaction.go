package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// Transaction is a stored household transaction.
type Transaction struct {
	ID           string
	ExternalID   string // stable id from the aggregator, if any
	AccountID    string
	Date         time.Time
	Amount       decimal.Decimal // negative = outflow, positive = inflow
	Description  string
	MerchantName string
	CategoryID   string
	Notes        string
	IsManual     bool // true when not backed by an external sync
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// TransactionUpdate lists the fields to overwrite. Nil fields are left alone.
type TransactionUpdate struct {
	Description  *string
	MerchantName *string
	CategoryID   *string
	Notes        *string
	Amount       *decimal.Decimal
}

// Empty reports whether the update changes nothing.
func (u TransactionUpdate) Empty() bool {
	return u.Description == nil && u.MerchantName == nil && u.CategoryID == nil &&
		u.Notes == nil && u.Amount == nil
}

// Apply returns a copy of t with the update applied.
func (u TransactionUpdate) Apply(t Transaction) Transaction {
	if u.Description != nil {
		t.Description = *u.Description
	}
	if u.MerchantName != nil {
		t.MerchantName = *u.MerchantName
	}
	if u.CategoryID != nil {
		t.CategoryID = *u.CategoryID
	}
	if u.Notes != nil {
		t.Notes = *u.Notes
	}
	if u.Amount != nil {
		t.Amount = *u.Amount
	}
	return t
}
