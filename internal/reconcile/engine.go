// Package reconcile matches incoming transaction records against stored
// transactions and applies the resulting creates and updates.
//
// Both the CSV import and the bank sync workflows feed the same engine;
// they differ only in Scope (candidate window and account restriction).
//
// Usage:
//
//	engine := reconcile.NewEngine(store, directory, reconcile.WithCategorizer(rules))
//	report, err := engine.Preview(ctx, reconcile.ImportScope(3), records)
//	// ... user reviews report.Rows ...
//	result, err := engine.Execute(ctx, reconcile.ImportScope(3), records, skipRows)
//
// Matching is greedy and sequential: rows are classified in order and each
// stored transaction can be claimed by at most one row per run.
package reconcile

import (
	"context"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

// Engine runs preview and execute for a batch of records.
type Engine struct {
	store       Store
	directory   Directory
	categorizer Categorizer
	scorer      *Scorer
	autoConfirm decimal.Decimal
	metrics     *Metrics
	log         zerolog.Logger
}

// Option configures an Engine.
type Option func(*Engine)

// WithCategorizer sets the rule engine used for uncategorized creates.
func WithCategorizer(c Categorizer) Option {
	return func(e *Engine) { e.categorizer = c }
}

// WithCanonicalizer sets the merchant alias table used by the scorer.
func WithCanonicalizer(c *Canonicalizer) Option {
	return func(e *Engine) { e.scorer = NewScorer(c) }
}

// WithAutoConfirm sets the confidence below which fuzzy matches are flagged
// for review.
func WithAutoConfirm(v decimal.Decimal) Option {
	return func(e *Engine) { e.autoConfirm = v }
}

// WithMetrics records classification counters.
func WithMetrics(m *Metrics) Option {
	return func(e *Engine) { e.metrics = m }
}

// WithLogger sets the engine logger.
func WithLogger(l zerolog.Logger) Option {
	return func(e *Engine) { e.log = l }
}

// NewEngine returns an Engine over store and directory.
func NewEngine(store Store, directory Directory, opts ...Option) *Engine {
	e := &Engine{
		store:       store,
		directory:   directory,
		scorer:      NewScorer(nil),
		autoConfirm: DefaultAutoConfirm,
		log:         zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Classify validates records, loads their candidate pool, and classifies
// every row. It never writes.
func (e *Engine) Classify(ctx context.Context, scope Scope, records []IncomingRecord) ([]MatchResult, error) {
	valid := make([]ParsedRecord, 0, len(records))
	for _, rec := range records {
		if p, err := Validate(rec); err == nil {
			valid = append(valid, p)
		}
	}

	pool, err := BuildPool(ctx, e.store, scope, valid)
	if err != nil {
		return nil, err
	}

	c := NewClassifier(e.directory, e.scorer)
	c.autoConfirm = e.autoConfirm
	c.log = e.log.With().Str("source", string(scope.Source)).Logger()
	c.onDuplicate = func() { e.metrics.duplicateClaim(scope.Source) }

	results := c.Classify(records, pool, scope)
	e.metrics.observeRows(scope.Source, results)
	return results, nil
}

// Preview classifies records and returns the review report.
func (e *Engine) Preview(ctx context.Context, scope Scope, records []IncomingRecord) (*Report, error) {
	start := time.Now()
	results, err := e.Classify(ctx, scope, records)
	if err != nil {
		return nil, err
	}
	report := NewReport(results)
	e.log.Info().
		Str("source", string(scope.Source)).
		Str("account_id", scope.AccountID).
		Int("rows", report.TotalRows).
		Int("create", report.Summary.Create).
		Int("update", report.Summary.Update).
		Int("unchanged", report.Summary.Unchanged).
		Int("skip", report.Summary.Skip).
		Dur("duration", time.Since(start)).
		Msg("Preview complete")
	return report, nil
}

// Execute classifies records and applies every Create and Update whose row
// is not in skipRows. A returned error means nothing was written.
func (e *Engine) Execute(ctx context.Context, scope Scope, records []IncomingRecord, skipRows []int) (*ExecuteResult, error) {
	start := time.Now()
	results, err := e.Classify(ctx, scope, records)
	if err != nil {
		return nil, err
	}

	x := NewExecutor(e.store, e.directory, e.categorizer)
	x.log = e.log.With().Str("source", string(scope.Source)).Logger()
	if scope.Balance != nil && scope.AccountID != "" {
		x.SetBalance(scope.AccountID, *scope.Balance)
	}
	res, err := x.Execute(ctx, scope.Source, results, skipRows)
	e.metrics.execution(scope.Source, err)
	if err != nil {
		return nil, err
	}

	e.log.Info().
		Str("source", string(scope.Source)).
		Str("account_id", scope.AccountID).
		Int("created", res.Created).
		Int("updated", res.Updated).
		Int("unchanged", res.Unchanged).
		Int("skipped", res.Skipped).
		Int("rules_applied", res.RulesApplied).
		Dur("duration", time.Since(start)).
		Msg("Execute complete")
	return res, nil
}
