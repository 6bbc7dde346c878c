package rules

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Sal-Romano/Otter.Money3-sub000/internal/model"
	"github.com/Sal-Romano/Otter.Money3-sub000/internal/reconcile"
)

type testResolver struct{}

func (testResolver) ResolveAccount(ref reconcile.AccountRef) (model.Account, bool) {
	if ref.ID == "acct_chk" || strings.EqualFold(ref.Name, "Checking") {
		return model.Account{ID: "acct_chk", Name: "Checking"}, true
	}
	return model.Account{}, false
}

func (testResolver) ResolveCategory(ref reconcile.CategoryRef) (model.Category, bool) {
	for _, c := range []model.Category{{ID: "cat_food", Name: "Groceries"}, {ID: "cat_fun", Name: "Entertainment"}, {ID: "cat_pay", Name: "Income"}} {
		if ref.ID == c.ID || (ref.Name != "" && strings.EqualFold(ref.Name, c.Name)) {
			return c, true
		}
	}
	return model.Category{}, false
}

func dec(s string) *decimal.Decimal {
	d := decimal.RequireFromString(s)
	return &d
}

func txn(desc, merchant, amount string) model.Transaction {
	return model.Transaction{AccountID: "acct_chk", Description: desc, MerchantName: merchant, Amount: decimal.RequireFromString(amount)}
}

const sampleRules = `
rules:
  - name: streaming
    pattern: "netflix|spotify"
    regex: true
    category: Entertainment
  - name: big grocery runs
    priority: 10
    pattern: market
    amount_min: 100
    direction: outflow
    category: Groceries
  - name: grocery
    pattern: market
    category: groceries
  - name: payroll
    pattern: payroll
    direction: inflow
    account: Checking
    category: Income
`

func TestLoadAndCategorize(t *testing.T) {
	path := filepath.Join(t.TempDir(), "categorization-rules.yaml")
	require.NoError(t, os.WriteFile(path, []byte(sampleRules), 0o644))

	rules, err := Load(path)
	require.NoError(t, err)
	require.Len(t, rules, 4)
	require.NotNil(t, rules[1].AmountMin)
	assert.True(t, rules[1].AmountMin.Equal(decimal.NewFromInt(100)))

	e, err := Compile(rules, testResolver{})
	require.NoError(t, err)
	assert.Equal(t, 4, e.Len())

	tests := []struct {
		name string
		t    model.Transaction
		want string
		rule string
	}{
		{"regex on description", txn("NETFLIX.COM 866-579", "", "-15.49"), "cat_fun", "streaming"},
		{"regex on merchant", txn("POS 4411", "Spotify USA", "-9.99"), "cat_fun", "streaming"},
		{"priority wins", txn("Super Market #12", "", "-150.00"), "cat_food", "big grocery runs"},
		{"falls through to lower priority", txn("Super Market #12", "", "-20.00"), "cat_food", "grocery"},
		{"direction", txn("ACME PAYROLL", "", "2500.00"), "cat_pay", "payroll"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := e.Categorize(tt.t)
			require.True(t, ok)
			assert.Equal(t, tt.want, got)
			c, ok := e.match(tt.t)
			require.True(t, ok)
			assert.Equal(t, tt.rule, c.rule.Name)
		})
	}

	_, ok := e.Categorize(txn("ACME PAYROLL REVERSAL", "", "-2500.00"))
	assert.False(t, ok, "outflow must not match an inflow rule")

	other := txn("ACME PAYROLL", "", "2500.00")
	other.AccountID = "acct_visa"
	_, ok = e.Categorize(other)
	assert.False(t, ok, "account-restricted rule")
}

func TestAmountRange(t *testing.T) {
	e, err := Compile([]Rule{{Name: "small", AmountMin: dec("1"), AmountMax: dec("5"), Category: "Groceries"}}, testResolver{})
	require.NoError(t, err)

	for amount, want := range map[string]bool{"-1": true, "5": true, "-5.01": false, "0.99": false} {
		_, ok := e.Categorize(txn("anything", "", amount))
		assert.Equal(t, want, ok, "amount %s", amount)
	}
}

func TestCompileErrors(t *testing.T) {
	tests := []struct {
		name string
		rule Rule
		want string
	}{
		{"unknown category", Rule{Name: "x", Pattern: "a", Category: "Travel"}, `unknown category "Travel"`},
		{"unknown account", Rule{Name: "x", Pattern: "a", Account: "Savings", Category: "Groceries"}, `unknown account "Savings"`},
		{"bad regex", Rule{Name: "x", Pattern: "(", Regex: true, Category: "Groceries"}, "bad pattern"},
		{"no conditions", Rule{Name: "x", Category: "Groceries"}, "at least one condition"},
		{"bad direction", Rule{Name: "x", Pattern: "a", Direction: "sideways", Category: "Groceries"}, "unknown direction"},
		{"inverted range", Rule{Name: "x", AmountMin: dec("10"), AmountMax: dec("1"), Category: "Groceries"}, "amount_min above amount_max"},
		{"unnamed", Rule{Pattern: "a", Category: "Nope"}, "rule #1"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Compile([]Rule{tt.rule}, testResolver{})
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestLoad_MissingFileIsEmpty(t *testing.T) {
	rules, err := Load(filepath.Join(t.TempDir(), "none.yaml"))
	require.NoError(t, err)
	assert.Empty(t, rules)
}

func TestSaveRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rules.yaml")
	in := []Rule{{Name: "coffee", Priority: 2, Pattern: "blue bottle", AmountMax: dec("20"), Category: "Groceries"}}
	require.NoError(t, Save(path, in))

	got, err := Load(path)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "coffee", got[0].Name)
	assert.Equal(t, 2, got[0].Priority)
	require.NotNil(t, got[0].AmountMax)
	assert.True(t, got[0].AmountMax.Equal(decimal.NewFromInt(20)))

	require.NoError(t, Save(path, nil))
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "rules: []\n", string(data))
}

func TestNilEngine(t *testing.T) {
	var e *Engine
	_, ok := e.Categorize(txn("x", "", "-1"))
	assert.False(t, ok)
	assert.Zero(t, e.Len())
}
