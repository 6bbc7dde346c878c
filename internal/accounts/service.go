package accounts

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/rs/zerolog"

	"github.com/Sal-Romano/Otter.Money3-sub000/internal/id"
	"github.com/Sal-Romano/Otter.Money3-sub000/internal/model"
)

// Store is the persistence the Service needs.
type Store interface {
	CreateAccount(ctx context.Context, a model.Account) error
	ListAccounts(ctx context.Context) ([]model.Account, error)
	CreateCategory(ctx context.Context, c model.Category) error
	ListCategories(ctx context.Context) ([]model.Category, error)
}

// ErrDuplicateName is returned by Add when the name is already taken.
var ErrDuplicateName = errors.New("account name already exists")

// Service manages the household's accounts and categories.
type Service struct {
	store Store
	log   zerolog.Logger
}

// NewService creates a Service backed by store.
func NewService(store Store, log zerolog.Logger) *Service {
	return &Service{store: store, log: log}
}

// SeedResult counts what Seed inserted.
type SeedResult struct {
	Accounts   int
	Categories int
}

// Seed inserts accounts and categories whose names are not already present.
// Names compare case-insensitively. Missing ids are generated.
func (s *Service) Seed(ctx context.Context, accts []model.Account, cats []model.Category) (SeedResult, error) {
	var res SeedResult

	existing, err := s.store.ListAccounts(ctx)
	if err != nil {
		return res, err
	}
	seen := make(map[string]bool, len(existing))
	for _, a := range existing {
		seen[key(a.Name)] = true
	}
	for _, a := range accts {
		if seen[key(a.Name)] {
			s.log.Debug().Str("account", a.Name).Msg("account exists, skipping")
			continue
		}
		if a.ID == "" {
			a.ID = id.NewAccountID()
		}
		if err := s.store.CreateAccount(ctx, a); err != nil {
			return res, err
		}
		seen[key(a.Name)] = true
		res.Accounts++
	}

	existingCats, err := s.store.ListCategories(ctx)
	if err != nil {
		return res, err
	}
	seen = make(map[string]bool, len(existingCats))
	for _, c := range existingCats {
		seen[key(c.Name)] = true
	}
	for _, c := range cats {
		if seen[key(c.Name)] {
			continue
		}
		if c.ID == "" {
			c.ID = id.NewCategoryID()
		}
		if err := s.store.CreateCategory(ctx, c); err != nil {
			return res, err
		}
		seen[key(c.Name)] = true
		res.Categories++
	}

	s.log.Info().Int("accounts", res.Accounts).Int("categories", res.Categories).Msg("seeded household")
	return res, nil
}

// Add creates one account after validating it.
func (s *Service) Add(ctx context.Context, a model.Account) (model.Account, error) {
	a.Name = strings.TrimSpace(a.Name)
	if a.Name == "" {
		return model.Account{}, fmt.Errorf("account name is required")
	}
	if !model.ValidAccountType(a.Type) {
		return model.Account{}, fmt.Errorf("unknown account type %q", a.Type)
	}
	if !a.IsManual && a.ExternalID == "" {
		return model.Account{}, fmt.Errorf("synced account %q needs an external id", a.Name)
	}

	res, err := s.Seed(ctx, []model.Account{a}, nil)
	if err != nil {
		return model.Account{}, err
	}
	if res.Accounts == 0 {
		return model.Account{}, fmt.Errorf("%q: %w", a.Name, ErrDuplicateName)
	}
	return s.ByName(ctx, a.Name)
}

// AddCategory creates a category unless one with the same name exists.
func (s *Service) AddCategory(ctx context.Context, name string) (bool, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return false, fmt.Errorf("category name is required")
	}
	res, err := s.Seed(ctx, nil, []model.Category{{Name: name}})
	if err != nil {
		return false, err
	}
	return res.Categories == 1, nil
}

// All returns every account ordered by name.
func (s *Service) All(ctx context.Context) ([]model.Account, error) {
	return s.store.ListAccounts(ctx)
}

// Categories returns every category ordered by name.
func (s *Service) Categories(ctx context.Context) ([]model.Category, error) {
	return s.store.ListCategories(ctx)
}

// ByName returns the account with the given name, ignoring case.
func (s *Service) ByName(ctx context.Context, name string) (model.Account, error) {
	all, err := s.store.ListAccounts(ctx)
	if err != nil {
		return model.Account{}, err
	}
	for _, a := range all {
		if key(a.Name) == key(name) {
			return a, nil
		}
	}
	return model.Account{}, fmt.Errorf("account %q not found", name)
}

// ByType returns all accounts of the given type.
func (s *Service) ByType(ctx context.Context, accountType model.AccountType) ([]model.Account, error) {
	all, err := s.store.ListAccounts(ctx)
	if err != nil {
		return nil, err
	}
	var result []model.Account
	for _, a := range all {
		if a.Type == accountType {
			result = append(result, a)
		}
	}
	return result, nil
}

// Import seeds accounts from an accounts.csv stream.
func (s *Service) Import(ctx context.Context, r io.Reader) (int, error) {
	accts, err := ReadAccounts(r)
	if err != nil {
		return 0, err
	}
	res, err := s.Seed(ctx, accts, nil)
	return res.Accounts, err
}

// ImportFile seeds accounts from a CSV file on disk.
func (s *Service) ImportFile(ctx context.Context, path string) (int, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, fmt.Errorf("opening accounts file: %w", err)
	}
	defer f.Close()
	return s.Import(ctx, f)
}

// Export writes every account as CSV.
func (s *Service) Export(ctx context.Context, w io.Writer) error {
	all, err := s.store.ListAccounts(ctx)
	if err != nil {
		return err
	}
	return WriteAccounts(w, all)
}

func key(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
