package reconcile

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Sal-Romano/Otter.Money3-sub000/internal/model"
)

func classify(t *testing.T, scope Scope, stored []model.Transaction, records ...IncomingRecord) []MatchResult {
	t.Helper()
	canon, err := NewCanonicalizer(DefaultMerchantAliases())
	require.NoError(t, err)
	engine := NewEngine(newMemStore(stored...), testDirectory(), WithCanonicalizer(canon))
	results, err := engine.Classify(context.Background(), scope, records)
	require.NoError(t, err)
	require.Len(t, results, len(records))
	return results
}

func row(n int, d, amount, desc string) IncomingRecord {
	return IncomingRecord{RowNumber: n, Date: d, Amount: amount, Description: desc, AccountName: "Checking"}
}

func TestClassify_ValidationGate(t *testing.T) {
	tests := []struct {
		name   string
		rec    IncomingRecord
		reason string
	}{
		{"zero amount", row(1, "2024-03-01", "0.00", "Coffee"), `invalid amount "0.00": must be non-zero`},
		{"missing amount", row(1, "2024-03-01", "", "Coffee"), "invalid amount: missing"},
		{"unparseable amount", row(1, "2024-03-01", "twelve", "Coffee"), `invalid amount "twelve": not a number`},
		{"missing date", row(1, "", "-3.00", "Coffee"), "invalid date: missing"},
		{"bad date", row(1, "03-01-24", "-3.00", "Coffee"), `invalid date "03-01-24": unrecognized date format`},
		{"empty description", row(1, "2024-03-01", "-3.00", "   "), "invalid description: empty"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := classify(t, ImportScope(3), nil, tt.rec)[0]
			assert.Equal(t, ActionSkip, res.Action)
			assert.Equal(t, tt.reason, res.SkipReason)
			assert.Nil(t, res.Parsed)
			var verr *RecordValidationError
			assert.ErrorAs(t, res.Err, &verr)
		})
	}
}

func TestClassify_ScenarioZeroAmountWinsOverOtherFields(t *testing.T) {
	stored := []model.Transaction{
		{ID: "t1", AccountID: checkingID, Date: date(2024, 3, 1), Amount: dec("-10.00"), Description: "Coffee", ExternalID: "ext-1"},
	}
	rec := IncomingRecord{RowNumber: 7, Date: "not a date", Amount: "0", Description: "", ExternalID: "ext-1", AccountName: "Checking"}

	res := classify(t, ImportScope(3), stored, rec)[0]
	assert.Equal(t, ActionSkip, res.Action)
	assert.Contains(t, res.SkipReason, "invalid amount")
	assert.Empty(t, res.MatchedID())
}

func TestClassify_UnresolvedAccountSkips(t *testing.T) {
	rec := row(1, "2024-03-01", "-3.00", "Coffee")
	rec.AccountName = "Brokerage"

	res := classify(t, ImportScope(3), nil, rec)[0]
	assert.Equal(t, ActionSkip, res.Action)
	assert.Equal(t, `account not found: "Brokerage"`, res.SkipReason)
	var rerr *ResolutionError
	require.ErrorAs(t, res.Err, &rerr)
	assert.Equal(t, "account", rerr.Kind)
}

func TestClassify_UnresolvedCategoryWarns(t *testing.T) {
	rec := row(1, "2024-03-01", "-3.00", "Coffee")
	rec.CategoryName = "Espresso"

	res := classify(t, ImportScope(3), nil, rec)[0]
	assert.Equal(t, ActionCreate, res.Action)
	require.NotNil(t, res.Parsed)
	assert.Empty(t, res.Parsed.CategoryID)
	require.Len(t, res.Warnings, 1)
	assert.Contains(t, res.Warnings[0], `category not found: "Espresso"`)
}

func TestClassify_ResolvedCategory(t *testing.T) {
	rec := row(1, "2024-03-01", "-3.00", "Coffee")
	rec.CategoryName = "groceries"

	res := classify(t, ImportScope(3), nil, rec)[0]
	require.NotNil(t, res.Parsed)
	assert.Equal(t, groceryID, res.Parsed.CategoryID)
	assert.Empty(t, res.Warnings)
}

func TestClassify_SyncRowForOtherAccountSkips(t *testing.T) {
	rec := row(1, "2024-03-01", "-3.00", "Coffee")

	res := classify(t, SyncScope(cardID, 5), nil, rec)[0]
	assert.Equal(t, ActionSkip, res.Action)
	assert.Contains(t, res.SkipReason, "outside the synced account")
}

func TestClassify_ExactExternalID(t *testing.T) {
	stored := []model.Transaction{
		{ID: "t1", ExternalID: "ext-1", AccountID: cardID, Date: date(2024, 3, 1), Amount: dec("-9.99"), Description: "NETFLIX.COM"},
	}
	rec := IncomingRecord{RowNumber: 1, Date: "2024-03-04", Amount: "-9.99", Description: "NETFLIX.COM", ExternalID: "ext-1", AccountID: cardID}

	res := classify(t, SyncScope(cardID, 5), stored, rec)[0]
	assert.Equal(t, ActionUnchanged, res.Action)
	assert.Equal(t, "t1", res.MatchedID())
	assert.Equal(t, MatchExternalID, res.MatchedBy)
	require.NotNil(t, res.Confidence)
	assert.True(t, res.Confidence.Equal(dec("1")))
	assert.Empty(t, res.Changes)
}

func TestClassify_ExactInternalID(t *testing.T) {
	stored := []model.Transaction{
		{ID: "t1", AccountID: checkingID, Date: date(2024, 3, 1), Amount: dec("-60.00"), Description: "Rent share"},
	}
	rec := row(1, "2024-03-01", "-60.00", "Rent share")
	rec.InternalID = "t1"
	rec.Notes = "March"

	res := classify(t, ImportScope(3), stored, rec)[0]
	assert.Equal(t, ActionUpdate, res.Action)
	assert.Equal(t, MatchInternalID, res.MatchedBy)
	assert.Equal(t, []FieldChange{{Field: FieldNotes, From: "", To: "March"}}, res.Changes)
}

func TestClassify_ExternalIDBeatsFuzzy(t *testing.T) {
	stored := []model.Transaction{
		{ID: "fuzzy", AccountID: checkingID, Date: date(2024, 3, 1), Amount: dec("-5.00"), Description: "Coffee"},
		{ID: "exact", ExternalID: "ext-9", AccountID: checkingID, Date: date(2024, 3, 3), Amount: dec("-5.00"), Description: "Bean Bar"},
	}
	rec := row(1, "2024-03-01", "-5.00", "Coffee")
	rec.ExternalID = "ext-9"

	res := classify(t, ImportScope(3), stored, rec)[0]
	assert.Equal(t, "exact", res.MatchedID())
}

func TestClassify_DiffMinimality_NotesOnly(t *testing.T) {
	stored := []model.Transaction{
		{ID: "t1", AccountID: checkingID, Date: date(2024, 3, 1), Amount: dec("-18.20"), Description: "Farmers Market", MerchantName: "Farmers Market", CategoryID: groceryID, Notes: "veggies"},
	}
	rec := row(1, "2024-03-01", "-18.20", "Farmers Market")
	rec.Merchant = "Farmers Market"
	rec.CategoryName = "Groceries"
	rec.Notes = "veggies and eggs"

	res := classify(t, ImportScope(3), stored, rec)[0]
	assert.Equal(t, ActionUpdate, res.Action)
	assert.Equal(t, []FieldChange{{Field: "Notes", From: "veggies", To: "veggies and eggs"}}, res.Changes)
}

func TestClassify_AmountChangeThreshold(t *testing.T) {
	stored := []model.Transaction{
		{ID: "t1", AccountID: checkingID, Date: date(2024, 3, 1), Amount: dec("-18.20"), Description: "Gas"},
	}

	res := classify(t, ImportScope(3), stored, row(1, "2024-03-01", "-18.205", "Gas"))[0]
	assert.Equal(t, ActionUnchanged, res.Action)

	res = classify(t, ImportScope(3), stored, row(1, "2024-03-01", "-18.21", "Gas"))[0]
	assert.Equal(t, ActionUpdate, res.Action)
	assert.Equal(t, []FieldChange{{Field: FieldAmount, From: "-18.20", To: "-18.21"}}, res.Changes)
}

func TestClassify_ScenarioAmazonUpdate(t *testing.T) {
	stored := []model.Transaction{
		{ID: "t1", AccountID: checkingID, Date: date(2024, 3, 1), Amount: dec("-45.00"), Description: "AMZN MKTP US*1234"},
	}
	rec := row(1, "2024-03-02", "-45.00", "Amazon.com")
	rec.Merchant = "Amazon"

	res := classify(t, ImportScope(3), stored, rec)[0]
	assert.Equal(t, ActionUpdate, res.Action)
	assert.Equal(t, "t1", res.MatchedID())
	assert.Equal(t, MatchFuzzy, res.MatchedBy)
	require.NotNil(t, res.Confidence)
	assert.True(t, res.Confidence.GreaterThanOrEqual(dec("0.70")))
	assert.Equal(t, []FieldChange{
		{Field: FieldDescription, From: "AMZN MKTP US*1234", To: "Amazon.com"},
		{Field: FieldMerchant, From: "", To: "Amazon"},
	}, res.Changes)
}

func TestClassify_ScenarioDuplicateMatch(t *testing.T) {
	stored := []model.Transaction{
		{ID: "t1", AccountID: checkingID, Date: date(2024, 3, 1), Amount: dec("-32.10"), Description: "Trader Joes"},
	}
	results := classify(t, ImportScope(3), stored,
		row(1, "2024-03-01", "-32.10", "Trader Joes #552"),
		row(2, "2024-03-01", "-32.10", "TRADER JOES"),
	)

	assert.Equal(t, ActionUpdate, results[0].Action)
	assert.Equal(t, "t1", results[0].MatchedID())

	assert.Equal(t, ActionSkip, results[1].Action)
	assert.Contains(t, results[1].SkipReason, "duplicate match")
	assert.True(t, IsDuplicateClaim(results[1]))
	assert.Empty(t, results[1].MatchedID())
}

func TestClassify_DuplicateExternalIDInBatch(t *testing.T) {
	stored := []model.Transaction{
		{ID: "t1", ExternalID: "ext-1", AccountID: cardID, Date: date(2024, 3, 1), Amount: dec("-9.99"), Description: "NETFLIX.COM"},
	}
	rec := IncomingRecord{RowNumber: 1, Date: "2024-03-01", Amount: "-9.99", Description: "NETFLIX.COM", ExternalID: "ext-1", AccountID: cardID}
	again := rec
	again.RowNumber = 2

	results := classify(t, SyncScope(cardID, 5), stored, rec, again)
	assert.Equal(t, ActionUnchanged, results[0].Action)
	assert.Equal(t, ActionSkip, results[1].Action)
	assert.Equal(t, "duplicate match: transaction t1 already matched by row 1", results[1].SkipReason)
}

func TestClassify_RepeatedNewExternalIDInBatch(t *testing.T) {
	rec := IncomingRecord{RowNumber: 1, Date: "2024-03-01", Amount: "-9.99", Description: "NETFLIX.COM", ExternalID: "ext-new", AccountID: cardID}
	again := rec
	again.RowNumber = 2
	other := rec
	other.RowNumber = 3
	other.ExternalID = "ext-other"

	results := classify(t, SyncScope(cardID, 5), nil, rec, again, other)
	assert.Equal(t, ActionCreate, results[0].Action)
	assert.Equal(t, ActionSkip, results[1].Action)
	assert.Equal(t, "duplicate match: external id ext-new already created by row 1", results[1].SkipReason)
	assert.True(t, IsDuplicateClaim(results[1]))
	assert.Equal(t, ActionCreate, results[2].Action)
}

func TestClassify_TieGoesToFirstLoaded(t *testing.T) {
	// Identical candidates; load order is date then id.
	stored := []model.Transaction{
		{ID: "b", AccountID: checkingID, Date: date(2024, 3, 1), Amount: dec("-4.00"), Description: "Parking"},
		{ID: "a", AccountID: checkingID, Date: date(2024, 3, 1), Amount: dec("-4.00"), Description: "Parking"},
	}
	for i := 0; i < 5; i++ {
		results := classify(t, ImportScope(3), stored,
			row(1, "2024-03-01", "-4.00", "Parking"),
			row(2, "2024-03-01", "-4.00", "Parking"),
		)
		assert.Equal(t, "a", results[0].MatchedID())
		assert.Equal(t, ActionSkip, results[1].Action, "second row hits the claimed winner")
	}
}

func TestClassify_FuzzyRestrictedToAccount(t *testing.T) {
	stored := []model.Transaction{
		{ID: "card-txn", AccountID: cardID, Date: date(2024, 3, 1), Amount: dec("-15.00"), Description: "Cinema"},
	}
	res := classify(t, ImportScope(3), stored, row(1, "2024-03-01", "-15.00", "Cinema"))[0]
	assert.Equal(t, ActionCreate, res.Action)
}

func TestClassify_BelowThresholdCreates(t *testing.T) {
	stored := []model.Transaction{
		{ID: "t1", AccountID: checkingID, Date: date(2024, 3, 1), Amount: dec("-15.00"), Description: "Cinema"},
	}
	// Same amount and day but unrelated text: 0.65.
	res := classify(t, ImportScope(3), stored, row(1, "2024-03-01", "-15.00", "Hardware store"))[0]
	assert.Equal(t, ActionCreate, res.Action)
	assert.Nil(t, res.Confidence)
}

func TestClassify_LowConfidenceWarning(t *testing.T) {
	stored := []model.Transaction{
		{ID: "t1", AccountID: checkingID, Date: date(2024, 3, 1), Amount: dec("-15.00"), Description: "Cinema"},
	}
	res := classify(t, ImportScope(3), stored, row(1, "2024-03-03", "-15.00", "Cinema"))[0]
	assert.Equal(t, ActionUnchanged, res.Action)
	require.Len(t, res.Warnings, 1)
	assert.Contains(t, res.Warnings[0], "fuzzy match at 0.80")
}

func TestClassify_AtMostOneClaim(t *testing.T) {
	var stored []model.Transaction
	for i := 0; i < 6; i++ {
		stored = append(stored, model.Transaction{
			ID:          fmt.Sprintf("t%d", i),
			AccountID:   checkingID,
			Date:        date(2024, 4, 1+i%3),
			Amount:      dec(fmt.Sprintf("-%d.00", 10+i%2)),
			Description: []string{"Lunch", "Lunch spot", "Lunch"}[i%3],
		})
	}
	var records []IncomingRecord
	for i := 0; i < 20; i++ {
		records = append(records, row(i+1, fmt.Sprintf("2024-04-0%d", 1+i%4), fmt.Sprintf("-%d.00", 10+i%3), "Lunch"))
	}

	results := classify(t, ImportScope(3), stored, records...)

	seen := make(map[string]int)
	for _, r := range results {
		if r.Action == ActionUpdate || r.Action == ActionUnchanged {
			id := r.MatchedID()
			require.NotEmpty(t, id)
			prev, dup := seen[id]
			assert.False(t, dup, "rows %d and %d both claimed %s", prev, r.RowNumber, id)
			seen[id] = r.RowNumber
		}
	}
}

func TestClassifyRow_ThreadsClaims(t *testing.T) {
	pool := NewPool(date(2024, 1, 1), date(2024, 12, 31), []model.Transaction{
		{ID: "t1", AccountID: checkingID, Date: date(2024, 3, 1), Amount: dec("-5.00"), Description: "Coffee"},
	}, nil)
	c := NewClassifier(testDirectory(), nil)

	claims := Claims{}
	res, claims := c.ClassifyRow(row(1, "2024-03-01", "-5.00", "Coffee"), pool, ImportScope(3), claims)
	assert.Equal(t, ActionUnchanged, res.Action)
	assert.Equal(t, Claims{"t1": 1}, claims)

	// A fresh claim set lets the same row match again.
	res, _ = c.ClassifyRow(row(2, "2024-03-01", "-5.00", "Coffee"), pool, ImportScope(3), Claims{})
	assert.Equal(t, ActionUnchanged, res.Action)

	res, _ = c.ClassifyRow(row(3, "2024-03-01", "-5.00", "Coffee"), pool, ImportScope(3), claims)
	assert.Equal(t, ActionSkip, res.Action)
}

func TestClassify_NeverAbortsBatch(t *testing.T) {
	records := []IncomingRecord{
		row(1, "garbage", "x", ""),
		{RowNumber: 2},
		row(3, "2024-03-01", "-1.00", "Valid"),
	}
	results := classify(t, ImportScope(3), nil, records...)
	assert.Equal(t, ActionSkip, results[0].Action)
	assert.Equal(t, ActionSkip, results[1].Action)
	assert.Equal(t, ActionCreate, results[2].Action)
}
