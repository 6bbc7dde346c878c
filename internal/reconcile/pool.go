package reconcile

import (
	"context"
	"fmt"
	"time"

	"github.com/Sal-Romano/Otter.Money3-sub000/internal/model"
)

// Pool holds the stored transactions a run may match against, in load order.
type Pool struct {
	From time.Time
	To   time.Time

	candidates   []model.Transaction
	byExternalID map[string]int
	byID         map[string]int
	byAccount    map[string][]int
}

// NewPool indexes window candidates for exact and fuzzy lookup. extra
// transactions, fetched by id outside the window, are indexed for exact
// lookup only.
func NewPool(from, to time.Time, window, extra []model.Transaction) *Pool {
	p := &Pool{
		From:         from,
		To:           to,
		candidates:   make([]model.Transaction, 0, len(window)+len(extra)),
		byExternalID: make(map[string]int),
		byID:         make(map[string]int),
		byAccount:    make(map[string][]int),
	}
	for _, t := range window {
		if i, added := p.add(t); added {
			p.byAccount[t.AccountID] = append(p.byAccount[t.AccountID], i)
		}
	}
	for _, t := range extra {
		p.add(t)
	}
	return p
}

func (p *Pool) add(t model.Transaction) (int, bool) {
	if _, dup := p.byID[t.ID]; dup {
		return 0, false
	}
	i := len(p.candidates)
	p.candidates = append(p.candidates, t)
	p.byID[t.ID] = i
	if t.ExternalID != "" {
		// First loaded wins if the store holds duplicates.
		if _, ok := p.byExternalID[t.ExternalID]; !ok {
			p.byExternalID[t.ExternalID] = i
		}
	}
	return i, true
}

// Len returns the number of indexed transactions.
func (p *Pool) Len() int { return len(p.candidates) }

// At returns the candidate at index i.
func (p *Pool) At(i int) model.Transaction { return p.candidates[i] }

// ByExternalID returns the index of the candidate with the external id.
func (p *Pool) ByExternalID(externalID string) (int, bool) {
	if externalID == "" {
		return 0, false
	}
	i, ok := p.byExternalID[externalID]
	return i, ok
}

// ByID returns the index of the candidate with the stored id.
func (p *Pool) ByID(id string) (int, bool) {
	if id == "" {
		return 0, false
	}
	i, ok := p.byID[id]
	return i, ok
}

// ForAccount returns the fuzzy candidates of an account in load order.
func (p *Pool) ForAccount(accountID string) []int {
	return p.byAccount[accountID]
}

// Window returns [min(dates) - days, max(dates) + days]. ok is false when
// dates is empty.
func Window(dates []time.Time, days int) (from, to time.Time, ok bool) {
	if len(dates) == 0 {
		return time.Time{}, time.Time{}, false
	}
	lo, hi := dates[0], dates[0]
	for _, d := range dates[1:] {
		if d.Before(lo) {
			lo = d
		}
		if d.After(hi) {
			hi = d
		}
	}
	return CalendarDay(lo).AddDate(0, 0, -days), CalendarDay(hi).AddDate(0, 0, days), true
}

// BuildPool loads the candidates for a batch of validated records.
func BuildPool(ctx context.Context, reader TransactionReader, scope Scope, records []ParsedRecord) (*Pool, error) {
	dates := make([]time.Time, 0, len(records))
	for _, r := range records {
		dates = append(dates, r.Date)
	}
	from, to, ok := Window(dates, scope.WindowDays)
	if !ok {
		return NewPool(from, to, nil, nil), nil
	}

	window, err := reader.FindTransactions(ctx, TransactionQuery{From: from, To: to, AccountID: scope.AccountID})
	if err != nil {
		return nil, fmt.Errorf("loading candidates %s..%s: %w", from.Format(time.DateOnly), to.Format(time.DateOnly), err)
	}
	pool := NewPool(from, to, window, nil)

	var externalIDs, ids []string
	for _, r := range records {
		if _, found := pool.ByExternalID(r.ExternalID); r.ExternalID != "" && !found {
			externalIDs = append(externalIDs, r.ExternalID)
		}
		if _, found := pool.ByID(r.InternalID); r.InternalID != "" && !found {
			ids = append(ids, r.InternalID)
		}
	}
	if len(externalIDs) == 0 && len(ids) == 0 {
		return pool, nil
	}

	var extra []model.Transaction
	if len(externalIDs) > 0 {
		found, err := reader.FindTransactionsByExternalIDs(ctx, scope.AccountID, dedupe(externalIDs))
		if err != nil {
			return nil, fmt.Errorf("loading candidates by external id: %w", err)
		}
		extra = append(extra, found...)
	}
	if len(ids) > 0 {
		found, err := reader.FindTransactionsByIDs(ctx, scope.AccountID, dedupe(ids))
		if err != nil {
			return nil, fmt.Errorf("loading candidates by id: %w", err)
		}
		extra = append(extra, found...)
	}
	return NewPool(from, to, window, extra), nil
}

func dedupe(in []string) []string {
	seen := make(map[string]bool, len(in))
	out := in[:0]
	for _, s := range in {
		if !seen[s] {
			seen[s] = true
			out = append(out, s)
		}
	}
	return out
}
