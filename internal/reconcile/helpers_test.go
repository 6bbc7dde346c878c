package reconcile

import (
	"context"
	"errors"
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/Sal-Romano/Otter.Money3-sub000/internal/model"
)

func date(y, m, d int) time.Time {
	return time.Date(y, time.Month(m), d, 0, 0, 0, 0, time.UTC)
}

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

// memStore is an in-memory Store. Writes inside InTx are staged on copies
// and only become visible when fn returns nil.
type memStore struct {
	txns     []model.Transaction
	balances map[string]decimal.Decimal
	queries  []TransactionQuery
	failOn   string // "create", "update", "balance" or "set-balance"
}

func newMemStore(txns ...model.Transaction) *memStore {
	return &memStore{txns: txns, balances: make(map[string]decimal.Decimal)}
}

func sorted(in []model.Transaction) []model.Transaction {
	out := append([]model.Transaction(nil), in...)
	sort.SliceStable(out, func(i, j int) bool {
		if !out[i].Date.Equal(out[j].Date) {
			return out[i].Date.Before(out[j].Date)
		}
		return out[i].ID < out[j].ID
	})
	return out
}

func (m *memStore) FindTransactions(_ context.Context, q TransactionQuery) ([]model.Transaction, error) {
	m.queries = append(m.queries, q)
	var out []model.Transaction
	for _, t := range m.txns {
		if t.Date.Before(q.From) || t.Date.After(q.To) {
			continue
		}
		if q.AccountID != "" && t.AccountID != q.AccountID {
			continue
		}
		out = append(out, t)
	}
	return sorted(out), nil
}

func (m *memStore) FindTransactionsByExternalIDs(_ context.Context, accountID string, ids []string) ([]model.Transaction, error) {
	want := make(map[string]bool)
	for _, id := range ids {
		want[id] = true
	}
	var out []model.Transaction
	for _, t := range m.txns {
		if want[t.ExternalID] && (accountID == "" || t.AccountID == accountID) {
			out = append(out, t)
		}
	}
	return sorted(out), nil
}

func (m *memStore) FindTransactionsByIDs(_ context.Context, accountID string, ids []string) ([]model.Transaction, error) {
	want := make(map[string]bool)
	for _, id := range ids {
		want[id] = true
	}
	var out []model.Transaction
	for _, t := range m.txns {
		if want[t.ID] && (accountID == "" || t.AccountID == accountID) {
			out = append(out, t)
		}
	}
	return sorted(out), nil
}

func (m *memStore) InTx(ctx context.Context, fn func(w Writer) error) error {
	w := &memWriter{
		txns:     append([]model.Transaction(nil), m.txns...),
		balances: make(map[string]decimal.Decimal, len(m.balances)),
		failOn:   m.failOn,
	}
	for k, v := range m.balances {
		w.balances[k] = v
	}
	if err := fn(w); err != nil {
		return err
	}
	m.txns = w.txns
	m.balances = w.balances
	return nil
}

func (m *memStore) get(id string) (model.Transaction, bool) {
	for _, t := range m.txns {
		if t.ID == id {
			return t, true
		}
	}
	return model.Transaction{}, false
}

type memWriter struct {
	txns     []model.Transaction
	balances map[string]decimal.Decimal
	failOn   string
}

var errInjected = errors.New("injected failure")

func (w *memWriter) CreateTransaction(_ context.Context, t model.Transaction) error {
	if w.failOn == "create" {
		return errInjected
	}
	w.txns = append(w.txns, t)
	return nil
}

func (w *memWriter) UpdateTransaction(_ context.Context, id string, u model.TransactionUpdate) error {
	if w.failOn == "update" {
		return errInjected
	}
	for i, t := range w.txns {
		if t.ID == id {
			w.txns[i] = u.Apply(t)
			return nil
		}
	}
	return errors.New("transaction not found: " + id)
}

func (w *memWriter) AdjustAccountBalance(_ context.Context, accountID string, delta decimal.Decimal) error {
	if w.failOn == "balance" {
		return errInjected
	}
	w.balances[accountID] = w.balances[accountID].Add(delta)
	return nil
}

func (w *memWriter) SetAccountBalance(_ context.Context, accountID string, balance decimal.Decimal) error {
	if w.failOn == "set-balance" {
		return errInjected
	}
	w.balances[accountID] = balance
	return nil
}

// fakeDirectory resolves accounts by id, external id, or case-insensitive
// name, and categories by id or name.
type fakeDirectory struct {
	accounts   []model.Account
	categories []model.Category
}

func (d *fakeDirectory) ResolveAccount(ref AccountRef) (model.Account, bool) {
	for _, a := range d.accounts {
		switch {
		case ref.ID != "" && a.ID == ref.ID,
			ref.ID == "" && ref.ExternalID != "" && a.ExternalID == ref.ExternalID,
			ref.ID == "" && ref.ExternalID == "" && ref.Name != "" && strings.EqualFold(a.Name, ref.Name):
			return a, true
		}
	}
	return model.Account{}, false
}

func (d *fakeDirectory) ResolveCategory(ref CategoryRef) (model.Category, bool) {
	for _, c := range d.categories {
		if (ref.ID != "" && c.ID == ref.ID) || (ref.ID == "" && strings.EqualFold(c.Name, ref.Name)) {
			return c, true
		}
	}
	return model.Category{}, false
}

func (d *fakeDirectory) AccountByID(id string) (model.Account, bool) {
	for _, a := range d.accounts {
		if a.ID == id {
			return a, true
		}
	}
	return model.Account{}, false
}

const (
	checkingID = "acct_checking"
	cardID     = "acct_card"
	groceryID  = "cat_groceries"
	shoppingID = "cat_shopping"
)

func testDirectory() *fakeDirectory {
	return &fakeDirectory{
		accounts: []model.Account{
			{ID: checkingID, Name: "Checking", Type: model.AccountTypeChecking, IsManual: true},
			{ID: cardID, Name: "Visa", Type: model.AccountTypeCredit, ExternalID: "agg-visa", IsManual: false},
		},
		categories: []model.Category{
			{ID: groceryID, Name: "Groceries"},
			{ID: shoppingID, Name: "Shopping"},
		},
	}
}

// fixedCategorizer assigns one category to descriptions containing match.
type fixedCategorizer struct {
	match      string
	categoryID string
}

func (c fixedCategorizer) Categorize(t model.Transaction) (string, bool) {
	if strings.Contains(strings.ToLower(t.Description), c.match) {
		return c.categoryID, true
	}
	return "", false
}
