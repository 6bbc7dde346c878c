// Package banksync fetches account feeds from a bank aggregator and turns
// them into incoming records for reconciliation.
package banksync

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/Sal-Romano/Otter.Money3-sub000/internal/reconcile"
)

// Transaction types and statuses reported by the aggregator.
const (
	TypeDebit  = "DEBIT"
	TypeCredit = "CREDIT"

	StatusPending = "PENDING"
	StatusPosted  = "POSTED"
)

// Account is an aggregator account.
type Account struct {
	ID           string `json:"id"`
	Name         string `json:"name"`
	Type         string `json:"type"`
	CurrencyCode string `json:"currencyCode"`
	Balance      string `json:"balance"` // decimal text
	UpdatedAt    string `json:"updatedAt"`
}

// Transaction is an aggregator transaction. Amount is unsigned text when
// Type is set; otherwise its sign is taken as is.
type Transaction struct {
	ID          string  `json:"id"`
	AccountID   string  `json:"accountId"`
	Description string  `json:"description"`
	Merchant    *string `json:"merchant,omitempty"`
	Category    *string `json:"category,omitempty"`
	Amount      string  `json:"amount"`
	Date        string  `json:"date"` // "2006-01-02 15:04:05" or "2006-01-02"
	Type        string  `json:"type"`
	Status      string  `json:"status"`
}

// Feed is one fetch: accounts with their balances plus transactions.
type Feed struct {
	Accounts     []Account     `json:"accounts"`
	Transactions []Transaction `json:"transactions"`
}

// LoadFile reads a feed saved as JSON, for offline syncs and tests.
func LoadFile(path string) (*Feed, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading feed file: %w", err)
	}
	var f Feed
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parsing feed file: %w", err)
	}
	return &f, nil
}

// Account returns the feed account with the given aggregator id.
func (f *Feed) Account(externalID string) (Account, bool) {
	for _, a := range f.Accounts {
		if a.ID == externalID {
			return a, true
		}
	}
	return Account{}, false
}

// Balance returns the reported balance of an account.
func (f *Feed) Balance(externalID string) (decimal.Decimal, bool, error) {
	a, ok := f.Account(externalID)
	if !ok || a.Balance == "" {
		return decimal.Zero, false, nil
	}
	bal, err := decimal.NewFromString(a.Balance)
	if err != nil {
		return decimal.Zero, false, fmt.Errorf("account %s: bad balance %q: %w", externalID, a.Balance, err)
	}
	return bal, true, nil
}

// ToIncoming converts the feed's transactions for one aggregator account
// into records, in feed order. The aggregator id becomes the external id.
func (f *Feed) ToIncoming(externalAccountID string) []reconcile.IncomingRecord {
	var out []reconcile.IncomingRecord
	for _, t := range f.Transactions {
		if t.AccountID != externalAccountID {
			continue
		}
		rec := reconcile.IncomingRecord{
			RowNumber:         len(out) + 1,
			Date:              t.Date,
			Amount:            signedAmount(t),
			Description:       strings.TrimSpace(t.Description),
			ExternalID:        t.ID,
			AccountExternalID: externalAccountID,
		}
		if t.Merchant != nil {
			rec.Merchant = *t.Merchant
		}
		if t.Category != nil {
			rec.CategoryName = *t.Category
		}
		out = append(out, rec)
	}
	return out
}

// signedAmount applies the DEBIT/CREDIT type to the amount. Text that does
// not parse is passed through for validation to report.
func signedAmount(t Transaction) string {
	typ := strings.ToUpper(t.Type)
	if typ != TypeDebit && typ != TypeCredit {
		return t.Amount
	}
	d, err := reconcile.ParseAmount(t.Amount)
	if err != nil {
		return t.Amount
	}
	d = d.Abs()
	if typ == TypeDebit {
		d = d.Neg()
	}
	return d.String()
}
