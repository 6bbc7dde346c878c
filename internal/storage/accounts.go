package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"

	"github.com/Sal-Romano/Otter.Money3-sub000/internal/model"
)

const timestampLayout = "2006-01-02T15:04:05Z07:00"

type accountRow struct {
	ID         string `db:"id"`
	Name       string `db:"name"`
	Type       string `db:"type"`
	ExternalID string `db:"external_id"`
	IsManual   bool   `db:"is_manual"`
	Balance    string `db:"balance"`
	CreatedAt  string `db:"created_at"`
	UpdatedAt  string `db:"updated_at"`
}

func (r accountRow) model() (model.Account, error) {
	bal, err := decimal.NewFromString(r.Balance)
	if err != nil {
		return model.Account{}, fmt.Errorf("account %s: bad balance %q: %w", r.ID, r.Balance, err)
	}
	return model.Account{
		ID:         r.ID,
		Name:       r.Name,
		Type:       model.AccountType(r.Type),
		ExternalID: r.ExternalID,
		IsManual:   r.IsManual,
		Balance:    bal,
	}, nil
}

const accountColumns = `id, name, type, external_id, is_manual, balance, created_at, updated_at`

// CreateAccount inserts a new account.
func (s *Store) CreateAccount(ctx context.Context, a model.Account) (err error) {
	ctx, span := s.startSpan(ctx, "CreateAccount")
	defer func() { endSpan(span, err) }()

	now := s.now().Format(timestampLayout)
	row := accountRow{
		ID:         a.ID,
		Name:       a.Name,
		Type:       string(a.Type),
		ExternalID: a.ExternalID,
		IsManual:   a.IsManual,
		Balance:    a.Balance.String(),
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	_, err = s.db.NamedExecContext(ctx, `
		INSERT INTO accounts (`+accountColumns+`)
		VALUES (:id, :name, :type, :external_id, :is_manual, :balance, :created_at, :updated_at)`, row)
	if err != nil {
		return fmt.Errorf("inserting account %q: %w", a.Name, err)
	}
	return nil
}

// ListAccounts returns all accounts ordered by name.
func (s *Store) ListAccounts(ctx context.Context) (_ []model.Account, err error) {
	ctx, span := s.startSpan(ctx, "ListAccounts")
	defer func() { endSpan(span, err) }()

	var rows []accountRow
	if err = s.db.SelectContext(ctx, &rows, `SELECT `+accountColumns+` FROM accounts ORDER BY name`); err != nil {
		return nil, fmt.Errorf("listing accounts: %w", err)
	}
	out := make([]model.Account, 0, len(rows))
	for _, r := range rows {
		a, err := r.model()
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, nil
}

// GetAccount returns the account with the given id, or ErrNotFound.
func (s *Store) GetAccount(ctx context.Context, id string) (_ model.Account, err error) {
	ctx, span := s.startSpan(ctx, "GetAccount")
	defer func() { endSpan(span, err) }()

	var row accountRow
	err = s.db.GetContext(ctx, &row, s.db.Rebind(`SELECT `+accountColumns+` FROM accounts WHERE id = ?`), id)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Account{}, fmt.Errorf("account %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return model.Account{}, fmt.Errorf("loading account %s: %w", id, err)
	}
	return row.model()
}

// setBalance overwrites an account balance inside tx. Synced accounts take
// the aggregator's reported balance this way.
func (s *Store) setBalance(ctx context.Context, tx *sqlx.Tx, id string, balance decimal.Decimal) error {
	res, err := tx.ExecContext(ctx, tx.Rebind(`UPDATE accounts SET balance = ?, updated_at = ? WHERE id = ?`),
		balance.String(), s.now().Format(timestampLayout), id)
	if err != nil {
		return fmt.Errorf("setting balance of %s: %w", id, err)
	}
	return expectOne(res, "account", id)
}

// adjustBalance adds delta to an account balance inside tx.
func (s *Store) adjustBalance(ctx context.Context, tx *sqlx.Tx, id string, delta decimal.Decimal) error {
	query := `SELECT balance FROM accounts WHERE id = ?`
	if s.driver == DriverPostgres {
		query += ` FOR UPDATE`
	}
	var current string
	err := tx.GetContext(ctx, &current, tx.Rebind(query), id)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("account %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return fmt.Errorf("reading balance of %s: %w", id, err)
	}
	bal, err := decimal.NewFromString(current)
	if err != nil {
		return fmt.Errorf("account %s: bad balance %q: %w", id, current, err)
	}

	_, err = tx.ExecContext(ctx, tx.Rebind(`UPDATE accounts SET balance = ?, updated_at = ? WHERE id = ?`),
		bal.Add(delta).String(), s.now().Format(timestampLayout), id)
	if err != nil {
		return fmt.Errorf("updating balance of %s: %w", id, err)
	}
	return nil
}

// CreateCategory inserts a new category.
func (s *Store) CreateCategory(ctx context.Context, c model.Category) (err error) {
	ctx, span := s.startSpan(ctx, "CreateCategory")
	defer func() { endSpan(span, err) }()

	_, err = s.db.ExecContext(ctx, s.db.Rebind(`INSERT INTO categories (id, name) VALUES (?, ?)`), c.ID, c.Name)
	if err != nil {
		return fmt.Errorf("inserting category %q: %w", c.Name, err)
	}
	return nil
}

// ListCategories returns all categories ordered by name.
func (s *Store) ListCategories(ctx context.Context) (_ []model.Category, err error) {
	ctx, span := s.startSpan(ctx, "ListCategories")
	defer func() { endSpan(span, err) }()

	var rows []struct {
		ID   string `db:"id"`
		Name string `db:"name"`
	}
	if err = s.db.SelectContext(ctx, &rows, `SELECT id, name FROM categories ORDER BY name`); err != nil {
		return nil, fmt.Errorf("listing categories: %w", err)
	}
	out := make([]model.Category, 0, len(rows))
	for _, r := range rows {
		out = append(out, model.Category{ID: r.ID, Name: r.Name})
	}
	return out, nil
}

func expectOne(res sql.Result, kind, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking %s %s update: %w", kind, id, err)
	}
	if n == 0 {
		return fmt.Errorf("%s %s: %w", kind, id, ErrNotFound)
	}
	return nil
}
