package model

import "github.com/shopspring/decimal"

// AccountType classifies household accounts.
type AccountType string

const (
	AccountTypeChecking   AccountType = "checking"
	AccountTypeSavings    AccountType = "savings"
	AccountTypeCredit     AccountType = "credit"
	AccountTypeCash       AccountType = "cash"
	AccountTypeInvestment AccountType = "investment"
	AccountTypeLoan       AccountType = "loan"
)

// ValidAccountType reports whether t is a known account type.
func ValidAccountType(t AccountType) bool {
	switch t {
	case AccountTypeChecking, AccountTypeSavings, AccountTypeCredit,
		AccountTypeCash, AccountTypeInvestment, AccountTypeLoan:
		return true
	}
	return false
}

// Account is a household account. Manual accounts keep a cached balance
// that follows imported transactions; synced accounts get their balance
// from the aggregator feed.
type Account struct {
	ID         string
	Name       string
	Type       AccountType
	ExternalID string // aggregator account id, empty for manual accounts
	IsManual   bool
	Balance    decimal.Decimal
}

// Category groups transactions for budgeting.
type Category struct {
	ID   string
	Name string
}
