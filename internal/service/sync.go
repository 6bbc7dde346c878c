package service

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"golang.org/x/sync/singleflight"

	"github.com/Sal-Romano/Otter.Money3-sub000/internal/auditlog"
	"github.com/Sal-Romano/Otter.Money3-sub000/internal/banksync"
	"github.com/Sal-Romano/Otter.Money3-sub000/internal/id"
	"github.com/Sal-Romano/Otter.Money3-sub000/internal/model"
	"github.com/Sal-Romano/Otter.Money3-sub000/internal/reconcile"
)

var (
	// ErrUnknownAccount is returned for an account id the household lacks.
	ErrUnknownAccount = errors.New("unknown account")
	// ErrNotSynced is returned when syncing a manual account.
	ErrNotSynced = errors.New("account is not linked to a bank feed")
)

// SyncService reconciles one account against its aggregator feed.
type SyncService struct {
	h      *Household
	source banksync.Source
	flight singleflight.Group
}

// NewSyncService returns the sync workflow reading feeds from source.
func NewSyncService(h *Household, source banksync.Source) *SyncService {
	return &SyncService{h: h, source: source}
}

func (s *SyncService) scope(accountID string) reconcile.Scope {
	return reconcile.SyncScope(accountID, s.h.cfg.Matching.SyncWindowDays)
}

// fetch refreshes the directory, checks the account is synced, and pulls
// its feed.
func (s *SyncService) fetch(ctx context.Context, accountID string) (model.Account, *banksync.Feed, *reconcile.Engine, error) {
	engine, err := s.h.engine(ctx)
	if err != nil {
		return model.Account{}, nil, nil, err
	}
	acct, ok := s.h.dir.AccountByID(accountID)
	if !ok {
		return model.Account{}, nil, nil, fmt.Errorf("%s: %w", accountID, ErrUnknownAccount)
	}
	if acct.IsManual || acct.ExternalID == "" {
		return model.Account{}, nil, nil, fmt.Errorf("%s: %w", acct.Name, ErrNotSynced)
	}

	since := s.h.now().AddDate(0, 0, -s.h.cfg.Sync.LookbackDays)
	feed, err := s.source.Fetch(ctx, acct.ExternalID, since)
	if err != nil {
		return model.Account{}, nil, nil, fmt.Errorf("fetching feed for %s: %w", acct.Name, err)
	}
	return acct, feed, engine, nil
}

// Preview classifies the feed rows for an account without writing.
func (s *SyncService) Preview(ctx context.Context, accountID string) (*reconcile.Report, error) {
	acct, feed, engine, err := s.fetch(ctx, accountID)
	if err != nil {
		return nil, err
	}
	return engine.Preview(ctx, s.scope(acct.ID), feed.ToIncoming(acct.ExternalID))
}

// Execute applies the feed rows for an account and refreshes its balance
// from the feed. Concurrent identical calls share one run.
func (s *SyncService) Execute(ctx context.Context, accountID string, skipRows []int) (*RunResult, error) {
	v, err, shared := s.flight.Do(flightKey(accountID, skipRows), func() (any, error) {
		return s.execute(ctx, accountID, skipRows)
	})
	if err != nil {
		return nil, err
	}
	if shared {
		s.h.log.Debug().Str("account_id", accountID).Msg("sync coalesced with in-flight run")
	}
	return v.(*RunResult), nil
}

func (s *SyncService) execute(ctx context.Context, accountID string, skipRows []int) (*RunResult, error) {
	unlock := s.h.locks.LockAccount(accountID)
	defer unlock()

	runID := id.NewRunID()
	log := s.h.log.With().Str("run_id", runID).Str("account_id", accountID).Logger()
	entry := auditlog.Entry{RunID: runID, Source: string(reconcile.SourceSync), AccountID: accountID}

	acct, feed, engine, err := s.fetch(ctx, accountID)
	if err != nil {
		return nil, err
	}
	scope := s.scope(acct.ID)
	bal, ok, err := feed.Balance(acct.ExternalID)
	if err != nil {
		log.Warn().Err(err).Msg("feed balance unusable, keeping stored balance")
	} else if ok {
		scope = scope.WithBalance(bal)
	}

	res, err := engine.Execute(ctx, scope, feed.ToIncoming(acct.ExternalID), skipRows)
	if err != nil {
		s.h.record(entry, nil, err)
		log.Error().Err(err).Msg("sync failed")
		return nil, err
	}

	s.h.record(entry, res, nil)
	return &RunResult{RunID: runID, ExecuteResult: *res}, nil
}

func flightKey(accountID string, skipRows []int) string {
	var b strings.Builder
	b.WriteString(accountID)
	for _, r := range skipRows {
		b.WriteByte(',')
		b.WriteString(strconv.Itoa(r))
	}
	return b.String()
}
