package commands

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"

	"github.com/Sal-Romano/Otter.Money3-sub000/internal/accounts"
	"github.com/Sal-Romano/Otter.Money3-sub000/internal/config"
	"github.com/Sal-Romano/Otter.Money3-sub000/internal/logging"
	"github.com/Sal-Romano/Otter.Money3-sub000/internal/service"
	"github.com/Sal-Romano/Otter.Money3-sub000/internal/storage"
)

// env is everything a command needs once the data directory is opened.
type env struct {
	root      string
	cfg       *config.Config
	log       zerolog.Logger
	store     *storage.Store
	household *service.Household
	accounts  *accounts.Service
}

// openEnv loads otter.yaml from dir, opens the database, and wires the
// household. reg may be nil.
func openEnv(ctx context.Context, dir string, reg prometheus.Registerer) (*env, error) {
	root, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("resolving path: %w", err)
	}

	cfg, err := config.Load(filepath.Join(root, config.FileName))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%s is not an otter household (run `otter init` first)", root)
		}
		return nil, err
	}

	log, err := logging.New(cfg.Logging.Level, cfg.Logging.Format, os.Stderr)
	if err != nil {
		return nil, err
	}

	store, err := storage.Open(ctx, cfg.Database.Driver, dsn(root, cfg.Database), log)
	if err != nil {
		return nil, err
	}

	opts := []service.Option{service.WithLogger(log)}
	if reg != nil {
		opts = append(opts, service.WithRegisterer(reg))
	}
	h, err := service.New(store, cfg, root, opts...)
	if err != nil {
		_ = store.Close()
		return nil, err
	}

	return &env{
		root:      root,
		cfg:       cfg,
		log:       log,
		store:     store,
		household: h,
		accounts:  accounts.NewService(store, log),
	}, nil
}

func (e *env) Close() error {
	return e.store.Close()
}

// dsn resolves a relative sqlite path against the data directory.
func dsn(root string, db config.DatabaseConfig) string {
	if db.Driver != storage.DriverSQLite {
		return db.DSN
	}
	if db.DSN == ":memory:" || strings.HasPrefix(db.DSN, "file:") || filepath.IsAbs(db.DSN) {
		return db.DSN
	}
	return filepath.Join(root, db.DSN)
}
