package storage

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"

	"github.com/Sal-Romano/Otter.Money3-sub000/internal/model"
	"github.com/Sal-Romano/Otter.Money3-sub000/internal/reconcile"
)

type transactionRow struct {
	ID           string `db:"id"`
	ExternalID   string `db:"external_id"`
	AccountID    string `db:"account_id"`
	Date         string `db:"date"`
	Amount       string `db:"amount"`
	Description  string `db:"description"`
	MerchantName string `db:"merchant_name"`
	CategoryID   string `db:"category_id"`
	Notes        string `db:"notes"`
	IsManual     bool   `db:"is_manual"`
	CreatedAt    string `db:"created_at"`
	UpdatedAt    string `db:"updated_at"`
}

const transactionColumns = `id, external_id, account_id, date, amount, description, merchant_name, category_id, notes, is_manual, created_at, updated_at`

func toRow(t model.Transaction) transactionRow {
	return transactionRow{
		ID:           t.ID,
		ExternalID:   t.ExternalID,
		AccountID:    t.AccountID,
		Date:         t.Date.Format(dateLayout),
		Amount:       t.Amount.String(),
		Description:  t.Description,
		MerchantName: t.MerchantName,
		CategoryID:   t.CategoryID,
		Notes:        t.Notes,
		IsManual:     t.IsManual,
		CreatedAt:    t.CreatedAt.Format(timestampLayout),
		UpdatedAt:    t.UpdatedAt.Format(timestampLayout),
	}
}

func (r transactionRow) model() (model.Transaction, error) {
	date, err := time.Parse(dateLayout, r.Date)
	if err != nil {
		return model.Transaction{}, fmt.Errorf("transaction %s: bad date %q: %w", r.ID, r.Date, err)
	}
	amount, err := decimal.NewFromString(r.Amount)
	if err != nil {
		return model.Transaction{}, fmt.Errorf("transaction %s: bad amount %q: %w", r.ID, r.Amount, err)
	}
	created, _ := time.Parse(timestampLayout, r.CreatedAt)
	updated, _ := time.Parse(timestampLayout, r.UpdatedAt)
	return model.Transaction{
		ID:           r.ID,
		ExternalID:   r.ExternalID,
		AccountID:    r.AccountID,
		Date:         date,
		Amount:       amount,
		Description:  r.Description,
		MerchantName: r.MerchantName,
		CategoryID:   r.CategoryID,
		Notes:        r.Notes,
		IsManual:     r.IsManual,
		CreatedAt:    created,
		UpdatedAt:    updated,
	}, nil
}

func toModels(rows []transactionRow) ([]model.Transaction, error) {
	out := make([]model.Transaction, 0, len(rows))
	for _, r := range rows {
		t, err := r.model()
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, nil
}

// TransactionFilter narrows ListTransactions. Zero values are unbounded.
type TransactionFilter struct {
	AccountID string
	From      time.Time
	To        time.Time
}

func (f TransactionFilter) where() (string, []any) {
	var clauses []string
	var args []any
	if !f.From.IsZero() {
		clauses = append(clauses, "date >= ?")
		args = append(args, f.From.Format(dateLayout))
	}
	if !f.To.IsZero() {
		clauses = append(clauses, "date <= ?")
		args = append(args, f.To.Format(dateLayout))
	}
	if f.AccountID != "" {
		clauses = append(clauses, "account_id = ?")
		args = append(args, f.AccountID)
	}
	if len(clauses) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(clauses, " AND "), args
}

// ListTransactions returns transactions matching f ordered by date, then id.
func (s *Store) ListTransactions(ctx context.Context, f TransactionFilter) (_ []model.Transaction, err error) {
	ctx, span := s.startSpan(ctx, "ListTransactions")
	defer func() { endSpan(span, err) }()

	where, args := f.where()
	var rows []transactionRow
	query := s.db.Rebind(`SELECT ` + transactionColumns + ` FROM transactions` + where + ` ORDER BY date, id`)
	if err = s.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("listing transactions: %w", err)
	}
	return toModels(rows)
}

// FindTransactions returns the candidate window for a reconciliation run.
func (s *Store) FindTransactions(ctx context.Context, q reconcile.TransactionQuery) ([]model.Transaction, error) {
	return s.ListTransactions(ctx, TransactionFilter{AccountID: q.AccountID, From: q.From, To: q.To})
}

// FindTransactionsByExternalIDs returns transactions carrying any of ids,
// optionally restricted to one account.
func (s *Store) FindTransactionsByExternalIDs(ctx context.Context, accountID string, ids []string) ([]model.Transaction, error) {
	return s.findIn(ctx, "FindTransactionsByExternalIDs", "external_id", accountID, ids)
}

// FindTransactionsByIDs returns the transactions with any of ids,
// optionally restricted to one account.
func (s *Store) FindTransactionsByIDs(ctx context.Context, accountID string, ids []string) ([]model.Transaction, error) {
	return s.findIn(ctx, "FindTransactionsByIDs", "id", accountID, ids)
}

func (s *Store) findIn(ctx context.Context, op, column, accountID string, ids []string) (_ []model.Transaction, err error) {
	if len(ids) == 0 {
		return nil, nil
	}
	ctx, span := s.startSpan(ctx, op)
	defer func() { endSpan(span, err) }()

	query := `SELECT ` + transactionColumns + ` FROM transactions WHERE ` + column + ` IN (?)`
	args := []any{ids}
	if accountID != "" {
		query += ` AND account_id = ?`
		args = append(args, accountID)
	}
	query, args, err = sqlx.In(query+` ORDER BY date, id`, args...)
	if err != nil {
		return nil, fmt.Errorf("building %s query: %w", op, err)
	}

	var rows []transactionRow
	if err = s.db.SelectContext(ctx, &rows, s.db.Rebind(query), args...); err != nil {
		return nil, fmt.Errorf("querying transactions by %s: %w", column, err)
	}
	return toModels(rows)
}

// InTx runs fn in a database transaction, committing when fn returns nil.
func (s *Store) InTx(ctx context.Context, fn func(w reconcile.Writer) error) (err error) {
	ctx, span := s.startSpan(ctx, "InTx")
	defer func() { endSpan(span, err) }()

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	if err = fn(&txWriter{store: s, tx: tx}); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			s.log.Error().Err(rbErr).Msg("Rollback failed")
		}
		return err
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}
	return nil
}

// txWriter implements reconcile.Writer on an open transaction.
type txWriter struct {
	store *Store
	tx    *sqlx.Tx
}

func (w *txWriter) CreateTransaction(ctx context.Context, t model.Transaction) error {
	now := w.store.now()
	if t.CreatedAt.IsZero() {
		t.CreatedAt = now
	}
	t.UpdatedAt = now
	_, err := w.tx.NamedExecContext(ctx, `
		INSERT INTO transactions (`+transactionColumns+`)
		VALUES (:id, :external_id, :account_id, :date, :amount, :description, :merchant_name,
			:category_id, :notes, :is_manual, :created_at, :updated_at)`, toRow(t))
	if err != nil {
		return fmt.Errorf("inserting transaction %s: %w", t.ID, err)
	}
	return nil
}

func (w *txWriter) UpdateTransaction(ctx context.Context, id string, u model.TransactionUpdate) error {
	if u.Empty() {
		return nil
	}
	var sets []string
	var args []any
	set := func(column string, v any) {
		sets = append(sets, column+" = ?")
		args = append(args, v)
	}
	if u.Description != nil {
		set("description", *u.Description)
	}
	if u.MerchantName != nil {
		set("merchant_name", *u.MerchantName)
	}
	if u.CategoryID != nil {
		set("category_id", *u.CategoryID)
	}
	if u.Notes != nil {
		set("notes", *u.Notes)
	}
	if u.Amount != nil {
		set("amount", u.Amount.String())
	}
	set("updated_at", w.store.now().Format(timestampLayout))
	args = append(args, id)

	query := w.tx.Rebind(`UPDATE transactions SET ` + strings.Join(sets, ", ") + ` WHERE id = ?`)
	res, err := w.tx.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("updating transaction %s: %w", id, err)
	}
	return expectOne(res, "transaction", id)
}

func (w *txWriter) AdjustAccountBalance(ctx context.Context, accountID string, delta decimal.Decimal) error {
	return w.store.adjustBalance(ctx, w.tx, accountID, delta)
}

func (w *txWriter) SetAccountBalance(ctx context.Context, accountID string, balance decimal.Decimal) error {
	return w.store.setBalance(ctx, w.tx, accountID, balance)
}
