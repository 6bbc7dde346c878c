package reconcile

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/Sal-Romano/Otter.Money3-sub000/internal/model"
)

// TransactionQuery selects stored transactions dated within [From, To].
type TransactionQuery struct {
	From      time.Time
	To        time.Time
	AccountID string // empty = all accounts
}

// TransactionReader loads candidates for a run. Results must come back in
// a stable order (date, then id); the fuzzy tie-break depends on it.
type TransactionReader interface {
	FindTransactions(ctx context.Context, q TransactionQuery) ([]model.Transaction, error)
	FindTransactionsByExternalIDs(ctx context.Context, accountID string, externalIDs []string) ([]model.Transaction, error)
	FindTransactionsByIDs(ctx context.Context, accountID string, ids []string) ([]model.Transaction, error)
}

// Writer applies a batch inside one database transaction.
type Writer interface {
	CreateTransaction(ctx context.Context, t model.Transaction) error
	UpdateTransaction(ctx context.Context, id string, u model.TransactionUpdate) error
	AdjustAccountBalance(ctx context.Context, accountID string, delta decimal.Decimal) error
	SetAccountBalance(ctx context.Context, accountID string, balance decimal.Decimal) error
}

// Store is the persistence the engine needs. InTx commits when fn returns
// nil and rolls back otherwise.
type Store interface {
	TransactionReader
	InTx(ctx context.Context, fn func(w Writer) error) error
}

// Resolver maps record references to accounts and categories.
type Resolver interface {
	ResolveAccount(ref AccountRef) (model.Account, bool)
	ResolveCategory(ref CategoryRef) (model.Category, bool)
}

// AccountLookup finds an account by id.
type AccountLookup interface {
	AccountByID(id string) (model.Account, bool)
}

// Directory is a Resolver that can also look accounts up by id.
type Directory interface {
	Resolver
	AccountLookup
}

// Categorizer suggests a category for an uncategorized transaction.
type Categorizer interface {
	Categorize(t model.Transaction) (categoryID string, ok bool)
}
