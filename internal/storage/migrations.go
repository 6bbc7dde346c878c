package storage

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
)

// Migration is one versioned schema change.
type Migration struct {
	Version int
	Name    string
	Up      func(*sqlx.Tx) error
}

var allMigrations = []Migration{
	{Version: 1, Name: "initial_schema", Up: migration001InitialSchema},
	{Version: 2, Name: "transaction_indexes", Up: migration002TransactionIndexes},
}

func (s *Store) runMigrations(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version INTEGER PRIMARY KEY,
			name TEXT NOT NULL,
			applied_at TEXT NOT NULL
		)`); err != nil {
		return fmt.Errorf("creating migrations table: %w", err)
	}

	var versions []int
	if err := s.db.SelectContext(ctx, &versions, `SELECT version FROM schema_migrations`); err != nil {
		return fmt.Errorf("reading applied migrations: %w", err)
	}
	applied := make(map[int]bool, len(versions))
	for _, v := range versions {
		applied[v] = true
	}

	for _, m := range allMigrations {
		if applied[m.Version] {
			continue
		}
		s.log.Info().Int("version", m.Version).Str("name", m.Name).Msg("Running migration")

		tx, err := s.db.BeginTxx(ctx, nil)
		if err != nil {
			return fmt.Errorf("beginning migration %d: %w", m.Version, err)
		}
		if err := m.Up(tx); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("migration %d (%s): %w", m.Version, m.Name, err)
		}
		if _, err := tx.Exec(tx.Rebind(`INSERT INTO schema_migrations (version, name, applied_at) VALUES (?, ?, ?)`),
			m.Version, m.Name, s.now().Format(timestampLayout)); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("recording migration %d: %w", m.Version, err)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("committing migration %d: %w", m.Version, err)
		}
	}
	return nil
}

func execAll(tx *sqlx.Tx, stmts ...string) error {
	for _, stmt := range stmts {
		if _, err := tx.Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}

// Amounts and balances are TEXT holding exact decimals; dates are
// YYYY-MM-DD text so they sort and compare correctly on both backends.
func migration001InitialSchema(tx *sqlx.Tx) error {
	return execAll(tx,
		`CREATE TABLE accounts (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL UNIQUE,
			type TEXT NOT NULL,
			external_id TEXT NOT NULL DEFAULT '',
			is_manual BOOLEAN NOT NULL,
			balance TEXT NOT NULL DEFAULT '0',
			created_at TEXT NOT NULL,
			updated_at TEXT NOT NULL
		)`,
		`CREATE TABLE categories (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL UNIQUE
		)`,
		`CREATE TABLE transactions (
			id TEXT PRIMARY KEY,
			external_id TEXT NOT NULL DEFAULT '',
			account_id TEXT NOT NULL REFERENCES accounts(id),
			date TEXT NOT NULL,
			amount TEXT NOT NULL,
			description TEXT NOT NULL,
			merchant_name TEXT NOT NULL DEFAULT '',
			category_id TEXT NOT NULL DEFAULT '',
			notes TEXT NOT NULL DEFAULT '',
			is_manual BOOLEAN NOT NULL,
			created_at TEXT NOT NULL,
			updated_at TEXT NOT NULL
		)`,
	)
}

func migration002TransactionIndexes(tx *sqlx.Tx) error {
	return execAll(tx,
		`CREATE INDEX idx_transactions_date ON transactions (date, id)`,
		`CREATE INDEX idx_transactions_account_date ON transactions (account_id, date)`,
		`CREATE UNIQUE INDEX idx_transactions_external_id ON transactions (account_id, external_id) WHERE external_id <> ''`,
		`CREATE UNIQUE INDEX idx_accounts_external_id ON accounts (external_id) WHERE external_id <> ''`,
	)
}
