// Package service wires the reconciliation engine to storage, rules,
// locking, and the run log for the import and sync workflows.
package service

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/Sal-Romano/Otter.Money3-sub000/internal/auditlog"
	"github.com/Sal-Romano/Otter.Money3-sub000/internal/config"
	"github.com/Sal-Romano/Otter.Money3-sub000/internal/model"
	"github.com/Sal-Romano/Otter.Money3-sub000/internal/reconcile"
	"github.com/Sal-Romano/Otter.Money3-sub000/internal/resolve"
	"github.com/Sal-Romano/Otter.Money3-sub000/internal/rules"
)

// Store is everything the workflows need from persistence.
type Store interface {
	reconcile.Store
	resolve.Source
}

// Household holds the shared pieces both workflows run on.
type Household struct {
	store   Store
	cfg     *config.Config
	root    string
	dir     *resolve.Directory
	canon   *reconcile.Canonicalizer
	metrics *reconcile.Metrics
	runs    *auditlog.Log
	locks   *Locker
	log     zerolog.Logger
	now     func() time.Time
}

// Option configures a Household.
type Option func(*Household)

// WithLogger sets the logger.
func WithLogger(l zerolog.Logger) Option {
	return func(h *Household) { h.log = l }
}

// WithRegisterer registers reconciliation metrics with reg.
func WithRegisterer(reg prometheus.Registerer) Option {
	return func(h *Household) { h.metrics = reconcile.NewMetrics(reg) }
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(h *Household) { h.now = now }
}

// New builds a Household rooted at the data directory root.
func New(store Store, cfg *config.Config, root string, opts ...Option) (*Household, error) {
	aliases := make([]reconcile.MerchantAlias, 0, len(cfg.Matching.MerchantAliases))
	for _, a := range cfg.Matching.MerchantAliases {
		aliases = append(aliases, reconcile.MerchantAlias{Pattern: a.Pattern, Merchant: a.Merchant})
	}
	canon, err := reconcile.NewCanonicalizer(aliases)
	if err != nil {
		return nil, fmt.Errorf("merchant aliases: %w", err)
	}

	h := &Household{
		store: store,
		cfg:   cfg,
		root:  root,
		dir:   resolve.New(store),
		canon: canon,
		runs:  auditlog.New(root),
		locks: NewLocker(),
		log:   zerolog.Nop(),
		now:   time.Now,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h, nil
}

// Runs returns up to n logged runs, newest first.
func (h *Household) Runs(n int) ([]auditlog.Entry, error) {
	return h.runs.Recent(n)
}

// Accounts returns the current accounts.
func (h *Household) Accounts(ctx context.Context) ([]model.Account, error) {
	return h.store.ListAccounts(ctx)
}

// RulesPath returns the rules file location.
func (h *Household) RulesPath() string {
	p := h.cfg.Rules.Path
	if p == "" || filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(h.root, p)
}

// engine refreshes the directory and compiles the rules, then returns an
// engine for one run.
func (h *Household) engine(ctx context.Context) (*reconcile.Engine, error) {
	if err := h.dir.Refresh(ctx); err != nil {
		return nil, err
	}

	opts := []reconcile.Option{
		reconcile.WithCanonicalizer(h.canon),
		reconcile.WithAutoConfirm(decimal.NewFromFloat(h.cfg.Matching.AutoConfirm)),
		reconcile.WithMetrics(h.metrics),
		reconcile.WithLogger(h.log),
	}

	if path := h.RulesPath(); path != "" {
		rs, err := rules.Load(path)
		if err != nil {
			return nil, err
		}
		cat, err := rules.Compile(rs, h.dir)
		if err != nil {
			return nil, fmt.Errorf("compiling rules: %w", err)
		}
		h.log.Debug().Int("rules", cat.Len()).Str("path", path).Msg("categorization rules loaded")
		opts = append(opts, reconcile.WithCategorizer(cat))
	}

	return reconcile.NewEngine(h.store, h.dir, opts...), nil
}

// RunResult is an execute result tagged with its run id.
type RunResult struct {
	RunID string `json:"runId"`
	reconcile.ExecuteResult
}

// record appends the run to the log. A log failure is reported but does
// not undo a committed run.
func (h *Household) record(e auditlog.Entry, res *reconcile.ExecuteResult, runErr error) {
	e.Timestamp = h.now()
	e.Status = auditlog.StatusCommitted
	if runErr != nil {
		e.Status = auditlog.StatusFailed
		e.Error = runErr.Error()
	}
	e = e.FromResult(res)
	if err := h.runs.Append(e); err != nil {
		h.log.Error().Err(err).Str("run_id", e.RunID).Msg("appending run log")
	}
}
