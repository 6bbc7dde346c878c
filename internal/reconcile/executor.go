package reconcile

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/Sal-Romano/Otter.Money3-sub000/internal/id"
	"github.com/Sal-Romano/Otter.Money3-sub000/internal/model"
)

// SkippedByUser is the skip reason for rows the reviewer excluded.
const SkippedByUser = "skipped by user"

// Executor applies classified rows to the store in one transaction.
type Executor struct {
	store       Store
	accounts    AccountLookup
	categorizer Categorizer
	log         zerolog.Logger
	newID       func() string

	setAccountID string
	setBalance   decimal.Decimal
}

// NewExecutor returns an Executor. categorizer may be nil.
func NewExecutor(store Store, accounts AccountLookup, categorizer Categorizer) *Executor {
	return &Executor{
		store:       store,
		accounts:    accounts,
		categorizer: categorizer,
		log:         zerolog.Nop(),
		newID:       id.NewTransactionID,
	}
}

// SetBalance makes every Execute also overwrite the balance of accountID,
// inside the batch transaction.
func (x *Executor) SetBalance(accountID string, balance decimal.Decimal) {
	x.setAccountID = accountID
	x.setBalance = balance
}

type createOp struct {
	row      int
	txn      model.Transaction
	fromRule bool
}

type updateOp struct {
	row    int
	id     string
	update model.TransactionUpdate
}

// plan is the full set of writes for a batch, computed before touching
// the store.
type plan struct {
	creates  []createOp
	updates  []updateOp
	balances map[string]decimal.Decimal
	result   ExecuteResult

	setAccountID string
	setBalance   decimal.Decimal
}

// Execute persists the Create and Update rows of results that are not in
// skipRows. Either every write lands or none does.
func (x *Executor) Execute(ctx context.Context, source Source, results []MatchResult, skipRows []int) (*ExecuteResult, error) {
	p := x.plan(source, results, skipRows)

	// Cancellation is honored up to here; the write itself is not interruptible.
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("execute canceled before write: %w", err)
	}

	if len(p.creates) > 0 || len(p.updates) > 0 || p.setAccountID != "" {
		if err := x.store.InTx(context.WithoutCancel(ctx), func(w Writer) error { return p.apply(ctx, w) }); err != nil {
			x.log.Error().Err(err).Int("creates", len(p.creates)).Int("updates", len(p.updates)).Msg("Batch rolled back")
			var perr *PersistenceError
			if errors.As(err, &perr) {
				return nil, perr
			}
			return nil, &PersistenceError{Op: "commit", Err: err}
		}
	}

	res := p.result
	if res.SkippedDetails == nil {
		res.SkippedDetails = []SkipDetail{}
	}
	return &res, nil
}

func (x *Executor) plan(source Source, results []MatchResult, skipRows []int) *plan {
	forceSkip := make(map[int]bool, len(skipRows))
	for _, r := range skipRows {
		forceSkip[r] = true
	}

	p := &plan{
		balances:     make(map[string]decimal.Decimal),
		setAccountID: x.setAccountID,
		setBalance:   x.setBalance,
	}
	for _, res := range results {
		switch res.Action {
		case ActionSkip:
			p.skip(res.RowNumber, res.SkipReason)
			continue
		case ActionUnchanged:
			p.result.Unchanged++
			continue
		}
		if forceSkip[res.RowNumber] {
			p.skip(res.RowNumber, SkippedByUser)
			continue
		}

		switch res.Action {
		case ActionCreate:
			op := x.planCreate(source, res)
			p.creates = append(p.creates, op)
			if x.isManual(op.txn.AccountID) {
				p.addBalance(op.txn.AccountID, op.txn.Amount)
			}
		case ActionUpdate:
			op, delta := planUpdate(res)
			p.updates = append(p.updates, op)
			if !delta.IsZero() && x.isManual(res.Matched.AccountID) {
				p.addBalance(res.Matched.AccountID, delta)
			}
		}
	}
	return p
}

func (x *Executor) planCreate(source Source, res MatchResult) createOp {
	rec := res.Parsed
	txn := model.Transaction{
		ID:           x.newID(),
		ExternalID:   rec.ExternalID,
		AccountID:    rec.AccountID,
		Date:         rec.Date,
		Amount:       rec.Amount,
		Description:  rec.Description,
		MerchantName: rec.Merchant,
		CategoryID:   rec.CategoryID,
		Notes:        rec.Notes,
		IsManual:     source == SourceImport,
	}
	op := createOp{row: res.RowNumber, txn: txn}
	if txn.CategoryID == "" && x.categorizer != nil {
		if catID, ok := x.categorizer.Categorize(txn); ok {
			op.txn.CategoryID = catID
			op.fromRule = true
		}
	}
	return op
}

// planUpdate builds the update from the diffed fields only and returns the
// amount delta.
func planUpdate(res MatchResult) (updateOp, decimal.Decimal) {
	rec := res.Parsed
	var u model.TransactionUpdate
	delta := decimal.Zero
	for _, ch := range res.Changes {
		switch ch.Field {
		case FieldDescription:
			u.Description = &rec.Description
		case FieldMerchant:
			u.MerchantName = &rec.Merchant
		case FieldCategory:
			u.CategoryID = &rec.CategoryID
		case FieldNotes:
			u.Notes = &rec.Notes
		case FieldAmount:
			u.Amount = &rec.Amount
			delta = rec.Amount.Sub(res.Matched.Amount)
		}
	}
	return updateOp{row: res.RowNumber, id: res.Matched.ID, update: u}, delta
}

func (x *Executor) isManual(accountID string) bool {
	if x.accounts == nil {
		return false
	}
	acct, ok := x.accounts.AccountByID(accountID)
	return ok && acct.IsManual
}

func (p *plan) skip(row int, reason string) {
	p.result.Skipped++
	p.result.SkippedDetails = append(p.result.SkippedDetails, SkipDetail{RowNumber: row, Reason: reason})
}

func (p *plan) addBalance(accountID string, delta decimal.Decimal) {
	p.balances[accountID] = p.balances[accountID].Add(delta)
}

func (p *plan) apply(ctx context.Context, w Writer) error {
	ctx = context.WithoutCancel(ctx)
	for _, op := range p.creates {
		if err := w.CreateTransaction(ctx, op.txn); err != nil {
			return &PersistenceError{Op: "create transaction", Row: op.row, Err: err}
		}
	}
	for _, op := range p.updates {
		if err := w.UpdateTransaction(ctx, op.id, op.update); err != nil {
			return &PersistenceError{Op: "update transaction " + op.id, Row: op.row, Err: err}
		}
	}

	accountIDs := make([]string, 0, len(p.balances))
	for acctID := range p.balances {
		accountIDs = append(accountIDs, acctID)
	}
	sort.Strings(accountIDs)
	for _, acctID := range accountIDs {
		delta := p.balances[acctID]
		if delta.IsZero() {
			continue
		}
		if err := w.AdjustAccountBalance(ctx, acctID, delta); err != nil {
			return &PersistenceError{Op: "adjust balance of " + acctID, Err: err}
		}
	}
	if p.setAccountID != "" {
		if err := w.SetAccountBalance(ctx, p.setAccountID, p.setBalance); err != nil {
			return &PersistenceError{Op: "set balance of " + p.setAccountID, Err: err}
		}
	}

	p.result.Created = len(p.creates)
	p.result.Updated = len(p.updates)
	for _, op := range p.creates {
		if op.fromRule {
			p.result.RulesApplied++
		}
	}
	return nil
}
