package service

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Sal-Romano/Otter.Money3-sub000/internal/accounts"
	"github.com/Sal-Romano/Otter.Money3-sub000/internal/auditlog"
	"github.com/Sal-Romano/Otter.Money3-sub000/internal/banksync"
	"github.com/Sal-Romano/Otter.Money3-sub000/internal/config"
	"github.com/Sal-Romano/Otter.Money3-sub000/internal/model"
	"github.com/Sal-Romano/Otter.Money3-sub000/internal/reconcile"
	"github.com/Sal-Romano/Otter.Money3-sub000/internal/storage"
)

const testRules = `rules:
  - name: groceries
    pattern: whole foods
    category: Groceries
`

const testFeed = `{
  "accounts": [{"id": "agg-visa", "name": "Visa", "type": "CREDIT", "balance": "-1523.40"}],
  "transactions": [
    {"id": "tx-100", "accountId": "agg-visa", "description": "SPOTIFY USA", "category": "Entertainment", "amount": "11.99", "date": "2025-03-01 03:00:00", "type": "DEBIT"},
    {"id": "tx-101", "accountId": "agg-visa", "description": "PAYMENT THANK YOU", "amount": "500.00", "date": "2025-03-03 03:00:00", "type": "CREDIT"},
    {"id": "tx-102", "accountId": "agg-visa", "description": "WHOLE FOODS #10", "amount": "-64.10", "date": "2025-03-04", "status": "PENDING"},
    {"id": "tx-900", "accountId": "agg-other", "description": "NOT OURS", "amount": "-1.00", "date": "2025-03-04"}
  ]
}`

type fixture struct {
	root  string
	store *storage.Store
	h     *Household
	visa  model.Account
	chk   model.Account
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()
	root := t.TempDir()

	store, err := storage.Open(ctx, storage.DriverSQLite, filepath.Join(root, "otter.db"), zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	svc := accounts.NewService(store, zerolog.Nop())
	_, err = svc.Seed(ctx, accounts.DefaultAccounts(), accounts.DefaultCategories())
	require.NoError(t, err)
	visa, err := svc.Add(ctx, model.Account{Name: "Visa", Type: model.AccountTypeCredit, ExternalID: "agg-visa"})
	require.NoError(t, err)
	chk, err := svc.ByName(ctx, "Checking")
	require.NoError(t, err)

	cfg := config.Default("Test")
	require.NoError(t, os.MkdirAll(filepath.Join(root, "rules"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(root, cfg.Rules.Path), []byte(testRules), 0o644))

	h, err := New(store, cfg, root,
		WithRegisterer(prometheus.NewRegistry()),
		WithClock(func() time.Time { return time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC) }),
	)
	require.NoError(t, err)
	return &fixture{root: root, store: store, h: h, visa: visa, chk: chk}
}

func (f *fixture) feedSource(t *testing.T) banksync.Source {
	t.Helper()
	path := filepath.Join(f.root, "feed.json")
	require.NoError(t, os.WriteFile(path, []byte(testFeed), 0o644))
	return banksync.FileSource{Path: path}
}

func importRows() []reconcile.IncomingRecord {
	return []reconcile.IncomingRecord{
		{RowNumber: 1, Date: "03/01/2025", Amount: "-82.13", Description: "WHOLE FOODS MKT 123"},
		{RowNumber: 2, Date: "03/02/2025", Amount: "-4.50", Description: "BLUE BOTTLE"},
		{RowNumber: 3, Date: "03/03/2025", Amount: "2500.00", Description: "ACME PAYROLL"},
	}
}

func TestImport_ExecuteTwice(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	svc := NewImportService(f.h)

	req := ImportRequest{Records: importRows(), DefaultAccount: "checking", Input: "march.csv"}

	report, err := svc.Preview(ctx, req)
	require.NoError(t, err)
	assert.Equal(t, reconcile.Summary{Create: 3}, report.Summary)

	first, err := svc.Execute(ctx, req)
	require.NoError(t, err)
	assert.Equal(t, 3, first.Created)
	assert.Equal(t, 1, first.RulesApplied)
	assert.NotEmpty(t, first.RunID)

	second, err := svc.Execute(ctx, req)
	require.NoError(t, err)
	assert.Equal(t, 0, second.Created)
	assert.Equal(t, 3, second.Unchanged)

	acct, err := f.store.GetAccount(ctx, f.chk.ID)
	require.NoError(t, err)
	assert.Equal(t, "2413.37", acct.Balance.StringFixed(2))

	txns, err := f.store.ListTransactions(ctx, storage.TransactionFilter{AccountID: f.chk.ID})
	require.NoError(t, err)
	require.Len(t, txns, 3)
	assert.Equal(t, "WHOLE FOODS MKT 123", txns[0].Description)
	assert.NotEmpty(t, txns[0].CategoryID)
	assert.Empty(t, txns[1].CategoryID)

	runs, err := f.h.Runs(10)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, second.RunID, runs[0].RunID)
	assert.Equal(t, "import", runs[0].Source)
	assert.Equal(t, "march.csv", runs[0].Input)
	assert.Equal(t, auditlog.StatusCommitted, runs[1].Status)
	assert.Equal(t, 3, runs[1].Created)
}

func TestImport_SkipRows(t *testing.T) {
	f := newFixture(t)
	res, err := NewImportService(f.h).Execute(context.Background(), ImportRequest{
		Records: importRows(), DefaultAccount: f.chk.ID, SkipRows: []int{2},
	})
	require.NoError(t, err)
	assert.Equal(t, 2, res.Created)
	assert.Equal(t, []reconcile.SkipDetail{{RowNumber: 2, Reason: reconcile.SkippedByUser}}, res.SkippedDetails)
}

func TestImport_BadRulesFile(t *testing.T) {
	f := newFixture(t)
	bad := "rules:\n  - name: x\n    pattern: y\n    category: Nope\n"
	require.NoError(t, os.WriteFile(f.h.RulesPath(), []byte(bad), 0o644))

	_, err := NewImportService(f.h).Preview(context.Background(), ImportRequest{Records: importRows()})
	assert.ErrorContains(t, err, "compiling rules")
}

func TestSync_ExecuteRefreshesBalance(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	svc := NewSyncService(f.h, f.feedSource(t))

	report, err := svc.Preview(ctx, f.visa.ID)
	require.NoError(t, err)
	assert.Equal(t, 3, report.TotalRows)
	assert.Equal(t, reconcile.Summary{Create: 3}, report.Summary)

	res, err := svc.Execute(ctx, f.visa.ID, nil)
	require.NoError(t, err)
	assert.Equal(t, 3, res.Created)
	assert.Equal(t, 1, res.RulesApplied)

	acct, err := f.store.GetAccount(ctx, f.visa.ID)
	require.NoError(t, err)
	assert.True(t, acct.Balance.Equal(decimal.RequireFromString("-1523.40")), "balance = %s", acct.Balance)

	txns, err := f.store.ListTransactions(ctx, storage.TransactionFilter{AccountID: f.visa.ID})
	require.NoError(t, err)
	require.Len(t, txns, 3)
	assert.Equal(t, "tx-100", txns[0].ExternalID)
	assert.Equal(t, "-11.99", txns[0].Amount.StringFixed(2))
	assert.False(t, txns[0].IsManual)

	again, err := svc.Execute(ctx, f.visa.ID, nil)
	require.NoError(t, err)
	assert.Equal(t, 0, again.Created)
	assert.Equal(t, 3, again.Unchanged)

	runs, err := f.h.Runs(1)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, "sync", runs[0].Source)
	assert.Equal(t, f.visa.ID, runs[0].AccountID)
}

// balanceFailStore fails every balance overwrite made inside a batch.
type balanceFailStore struct {
	*storage.Store
}

var errBalanceWrite = errors.New("balance write failed")

func (s balanceFailStore) InTx(ctx context.Context, fn func(w reconcile.Writer) error) error {
	return s.Store.InTx(ctx, func(w reconcile.Writer) error {
		return fn(balanceFailWriter{w})
	})
}

type balanceFailWriter struct {
	reconcile.Writer
}

func (balanceFailWriter) SetAccountBalance(context.Context, string, decimal.Decimal) error {
	return errBalanceWrite
}

func TestSync_BalanceFailureRollsBackBatch(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	h, err := New(balanceFailStore{f.store}, f.h.cfg, f.root, WithRegisterer(prometheus.NewRegistry()))
	require.NoError(t, err)
	svc := NewSyncService(h, f.feedSource(t))

	_, err = svc.Execute(ctx, f.visa.ID, nil)
	var perr *reconcile.PersistenceError
	require.ErrorAs(t, err, &perr)
	assert.ErrorIs(t, err, errBalanceWrite)

	txns, err := f.store.ListTransactions(ctx, storage.TransactionFilter{AccountID: f.visa.ID})
	require.NoError(t, err)
	assert.Empty(t, txns)

	acct, err := f.store.GetAccount(ctx, f.visa.ID)
	require.NoError(t, err)
	assert.True(t, acct.Balance.IsZero(), "balance = %s", acct.Balance)

	runs, err := h.Runs(1)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, auditlog.StatusFailed, runs[0].Status)
	assert.Zero(t, runs[0].Created)
}

func TestSync_RejectsManualAndUnknownAccounts(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	svc := NewSyncService(f.h, f.feedSource(t))

	_, err := svc.Preview(ctx, f.chk.ID)
	assert.ErrorIs(t, err, ErrNotSynced)

	_, err = svc.Execute(ctx, "acct_missing", nil)
	assert.ErrorIs(t, err, ErrUnknownAccount)
}

func TestSync_ConcurrentExecutesAreSafe(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	svc := NewSyncService(f.h, f.feedSource(t))

	var wg sync.WaitGroup
	var created atomic.Int64
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := svc.Execute(ctx, f.visa.ID, nil)
			if assert.NoError(t, err) {
				created.Add(int64(res.Created))
			}
		}()
	}
	wg.Wait()

	txns, err := f.store.ListTransactions(ctx, storage.TransactionFilter{AccountID: f.visa.ID})
	require.NoError(t, err)
	assert.Len(t, txns, 3)
}

func TestLocker_HouseholdExcludesAccounts(t *testing.T) {
	l := NewLocker()

	unlockA := l.LockAccount("a")
	unlockB := l.LockAccount("b")

	var got atomic.Bool
	done := make(chan struct{})
	go func() {
		unlock := l.LockHousehold()
		got.Store(true)
		unlock()
		close(done)
	}()

	time.Sleep(20 * time.Millisecond)
	assert.False(t, got.Load())

	unlockA()
	unlockB()
	<-done
	assert.True(t, got.Load())
}

func TestFlightKey(t *testing.T) {
	assert.Equal(t, "acct_1", flightKey("acct_1", nil))
	assert.Equal(t, "acct_1,2,5", flightKey("acct_1", []int{2, 5}))
}
