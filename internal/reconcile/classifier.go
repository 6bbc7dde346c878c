package reconcile

import (
	"errors"
	"fmt"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/Sal-Romano/Otter.Money3-sub000/internal/model"
)

// DefaultAutoConfirm is the fuzzy confidence below which a match carries a
// review warning.
var DefaultAutoConfirm = decimal.RequireFromString("0.95")

// Claims maps a claimed stored transaction id to the row that claimed it.
// External ids of rows that will be created are claimed too, under
// newExternalKey. It lives for one run and is threaded through
// classification explicitly.
type Claims map[string]int

func newExternalKey(accountID, externalID string) string {
	return "ext:" + accountID + ":" + externalID
}

// Classifier decides what to do with each incoming row.
type Classifier struct {
	resolver    Resolver
	scorer      *Scorer
	autoConfirm decimal.Decimal
	log         zerolog.Logger
	onDuplicate func()
}

// NewClassifier returns a Classifier. scorer may be nil for the default.
func NewClassifier(resolver Resolver, scorer *Scorer) *Classifier {
	if scorer == nil {
		scorer = NewScorer(nil)
	}
	return &Classifier{
		resolver:    resolver,
		scorer:      scorer,
		autoConfirm: DefaultAutoConfirm,
		log:         zerolog.Nop(),
	}
}

// Classify classifies records in order against pool. Every record gets a
// result; invalid rows become Skips.
func (c *Classifier) Classify(records []IncomingRecord, pool *Pool, scope Scope) []MatchResult {
	claims := make(Claims)
	results := make([]MatchResult, 0, len(records))
	for _, rec := range records {
		var res MatchResult
		res, claims = c.ClassifyRow(rec, pool, scope, claims)
		results = append(results, res)
	}
	return results
}

// ClassifyRow classifies one record and returns the claims updated with
// any stored transaction it matched.
func (c *Classifier) ClassifyRow(rec IncomingRecord, pool *Pool, scope Scope, claims Claims) (MatchResult, Claims) {
	res := MatchResult{RowNumber: rec.RowNumber}

	parsed, err := Validate(rec)
	if err != nil {
		return skip(res, err), claims
	}

	acctRef := rec.AccountRef()
	acct, ok := c.resolver.ResolveAccount(acctRef)
	if !ok {
		res.Parsed = &parsed
		return skip(res, &ResolutionError{Row: rec.RowNumber, Kind: "account", Ref: acctRef.String()}), claims
	}
	if scope.AccountID != "" && acct.ID != scope.AccountID {
		res.Parsed = &parsed
		return skip(res, &ResolutionError{Row: rec.RowNumber, Kind: "account", Ref: acctRef.String(), Reason: "outside the synced account"}), claims
	}
	parsed.AccountID = acct.ID

	if catRef := rec.CategoryRef(); !catRef.Empty() {
		if cat, ok := c.resolver.ResolveCategory(catRef); ok {
			parsed.CategoryID = cat.ID
		} else {
			rerr := &ResolutionError{Row: rec.RowNumber, Kind: "category", Ref: catRef.String()}
			res.Warnings = append(res.Warnings, rerr.Error()+"; left uncategorized")
		}
	}
	res.Parsed = &parsed

	idx, kind, score, found := c.match(parsed, pool)
	if !found {
		if parsed.ExternalID != "" {
			key := newExternalKey(parsed.AccountID, parsed.ExternalID)
			if by, taken := claims[key]; taken {
				dup := &DuplicateClaimError{Row: rec.RowNumber, ExternalID: parsed.ExternalID, ClaimedBy: by}
				c.duplicate(dup, "", score)
				return skip(res, dup), claims
			}
			claims[key] = rec.RowNumber
		}
		res.Action = ActionCreate
		return res, claims
	}

	txn := pool.At(idx)
	if by, taken := claims[txn.ID]; taken {
		dup := &DuplicateClaimError{Row: rec.RowNumber, TransactionID: txn.ID, ClaimedBy: by}
		c.duplicate(dup, kind, score)
		return skip(res, dup), claims
	}
	claims[txn.ID] = rec.RowNumber

	res.Matched = &txn
	res.MatchedBy = kind
	res.Confidence = &score
	res.Changes = Diff(parsed, txn)
	if len(res.Changes) == 0 {
		res.Action = ActionUnchanged
	} else {
		res.Action = ActionUpdate
	}
	if kind == MatchFuzzy && score.LessThan(c.autoConfirm) {
		res.Warnings = append(res.Warnings, fmt.Sprintf("fuzzy match at %s confidence; review before executing", score.StringFixed(2)))
	}
	return res, claims
}

func (c *Classifier) duplicate(dup *DuplicateClaimError, kind MatchKind, score decimal.Decimal) {
	c.log.Warn().
		Int("row", dup.Row).
		Str("transaction_id", dup.TransactionID).
		Str("external_id", dup.ExternalID).
		Int("claimed_by", dup.ClaimedBy).
		Str("match", string(kind)).
		Str("score", score.String()).
		Msg("Duplicate claim")
	if c.onDuplicate != nil {
		c.onDuplicate()
	}
}

// match tries external id, then internal id, then the best fuzzy score in
// the record's account. Fuzzy ties go to the earliest loaded candidate.
func (c *Classifier) match(rec ParsedRecord, pool *Pool) (int, MatchKind, decimal.Decimal, bool) {
	one := decimal.NewFromInt(1)
	if i, ok := pool.ByExternalID(rec.ExternalID); ok {
		return i, MatchExternalID, one, true
	}
	if i, ok := pool.ByID(rec.InternalID); ok {
		return i, MatchInternalID, one, true
	}

	best, bestScore := -1, decimal.Zero
	for _, i := range pool.ForAccount(rec.AccountID) {
		s := c.scorer.Score(rec, pool.At(i))
		if best < 0 || s.GreaterThan(bestScore) {
			best, bestScore = i, s
		}
	}
	if best < 0 || !MeetsThreshold(bestScore) {
		return 0, "", decimal.Zero, false
	}
	return best, MatchFuzzy, bestScore, true
}

// Diff lists the fields an incoming record would change on t. Empty
// optional fields on the record never clear stored values.
func Diff(rec ParsedRecord, t model.Transaction) []FieldChange {
	var changes []FieldChange
	if rec.Description != t.Description {
		changes = append(changes, FieldChange{Field: FieldDescription, From: t.Description, To: rec.Description})
	}
	if rec.Merchant != "" && rec.Merchant != t.MerchantName {
		changes = append(changes, FieldChange{Field: FieldMerchant, From: t.MerchantName, To: rec.Merchant})
	}
	if rec.CategoryID != "" && rec.CategoryID != t.CategoryID {
		changes = append(changes, FieldChange{Field: FieldCategory, From: t.CategoryID, To: rec.CategoryID})
	}
	if rec.Notes != "" && rec.Notes != t.Notes {
		changes = append(changes, FieldChange{Field: FieldNotes, From: t.Notes, To: rec.Notes})
	}
	if rec.Amount.Sub(t.Amount).Abs().GreaterThanOrEqual(amountChangeAtLeast) {
		changes = append(changes, FieldChange{Field: FieldAmount, From: t.Amount.StringFixed(2), To: rec.Amount.StringFixed(2)})
	}
	return changes
}

func skip(res MatchResult, err error) MatchResult {
	res.Action = ActionSkip
	res.SkipReason = err.Error()
	res.Err = err
	return res
}

// IsDuplicateClaim reports whether a result was skipped by the claim guard.
func IsDuplicateClaim(res MatchResult) bool {
	var dup *DuplicateClaimError
	return errors.As(res.Err, &dup)
}
