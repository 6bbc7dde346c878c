package accounts

import "github.com/Sal-Romano/Otter.Money3-sub000/internal/model"

// DefaultAccounts returns the starter accounts for a new household.
func DefaultAccounts() []model.Account {
	return []model.Account{
		{Name: "Checking", Type: model.AccountTypeChecking, IsManual: true},
		{Name: "Savings", Type: model.AccountTypeSavings, IsManual: true},
		{Name: "Cash", Type: model.AccountTypeCash, IsManual: true},
	}
}

// DefaultCategories returns the starter budget categories.
func DefaultCategories() []model.Category {
	names := []string{
		"Dining",
		"Entertainment",
		"Gas",
		"Groceries",
		"Healthcare",
		"Housing",
		"Income",
		"Shopping",
		"Subscriptions",
		"Transfer",
		"Travel",
		"Utilities",
	}
	out := make([]model.Category, 0, len(names))
	for _, n := range names {
		out = append(out, model.Category{Name: n})
	}
	return out
}
