// Package resolve maps the account and category references carried by
// incoming records onto stored accounts and categories.
package resolve

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/Sal-Romano/Otter.Money3-sub000/internal/model"
	"github.com/Sal-Romano/Otter.Money3-sub000/internal/reconcile"
)

// Source lists the household's accounts and categories.
type Source interface {
	ListAccounts(ctx context.Context) ([]model.Account, error)
	ListCategories(ctx context.Context) ([]model.Category, error)
}

// Directory is an in-memory snapshot of accounts and categories. Refresh it
// at the start of each run; lookups never touch the database.
type Directory struct {
	src Source

	mu            sync.RWMutex
	accountByID   map[string]model.Account
	accountByName map[string]model.Account
	accountByExt  map[string]model.Account
	categoryByID  map[string]model.Category
	categoryByKey map[string]model.Category
}

var _ reconcile.Directory = (*Directory)(nil)

// New returns an empty Directory over src. Call Refresh before use.
func New(src Source) *Directory {
	return &Directory{src: src}
}

// Refresh reloads the snapshot.
func (d *Directory) Refresh(ctx context.Context) error {
	accounts, err := d.src.ListAccounts(ctx)
	if err != nil {
		return fmt.Errorf("loading accounts: %w", err)
	}
	categories, err := d.src.ListCategories(ctx)
	if err != nil {
		return fmt.Errorf("loading categories: %w", err)
	}

	byID := make(map[string]model.Account, len(accounts))
	byName := make(map[string]model.Account, len(accounts))
	byExt := make(map[string]model.Account)
	for _, a := range accounts {
		byID[a.ID] = a
		byName[key(a.Name)] = a
		if a.ExternalID != "" {
			byExt[a.ExternalID] = a
		}
	}
	catByID := make(map[string]model.Category, len(categories))
	catByName := make(map[string]model.Category, len(categories))
	for _, c := range categories {
		catByID[c.ID] = c
		catByName[key(c.Name)] = c
	}

	d.mu.Lock()
	d.accountByID, d.accountByName, d.accountByExt = byID, byName, byExt
	d.categoryByID, d.categoryByKey = catByID, catByName
	d.mu.Unlock()
	return nil
}

// ResolveAccount looks up by id, then aggregator id, then name
// (case-insensitive). The first non-empty part of ref decides.
func (d *Directory) ResolveAccount(ref reconcile.AccountRef) (model.Account, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	switch {
	case ref.ID != "":
		a, ok := d.accountByID[ref.ID]
		return a, ok
	case ref.ExternalID != "":
		a, ok := d.accountByExt[ref.ExternalID]
		return a, ok
	case ref.Name != "":
		a, ok := d.accountByName[key(ref.Name)]
		return a, ok
	}
	return model.Account{}, false
}

// ResolveCategory looks up by id, then by name (case-insensitive).
func (d *Directory) ResolveCategory(ref reconcile.CategoryRef) (model.Category, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if ref.ID != "" {
		c, ok := d.categoryByID[ref.ID]
		return c, ok
	}
	if ref.Name != "" {
		c, ok := d.categoryByKey[key(ref.Name)]
		return c, ok
	}
	return model.Category{}, false
}

// AccountByID returns the account with id.
func (d *Directory) AccountByID(id string) (model.Account, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	a, ok := d.accountByID[id]
	return a, ok
}

// CategoryIDByName returns the id of the named category.
func (d *Directory) CategoryIDByName(name string) (string, bool) {
	c, ok := d.ResolveCategory(reconcile.CategoryRef{Name: name})
	return c.ID, ok
}

func key(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
