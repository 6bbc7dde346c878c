package service

import (
	"context"

	"github.com/Sal-Romano/Otter.Money3-sub000/internal/auditlog"
	"github.com/Sal-Romano/Otter.Money3-sub000/internal/id"
	"github.com/Sal-Romano/Otter.Money3-sub000/internal/importer"
	"github.com/Sal-Romano/Otter.Money3-sub000/internal/reconcile"
)

// ImportRequest is one file's worth of rows.
type ImportRequest struct {
	Records        []reconcile.IncomingRecord
	DefaultAccount string // id or name applied to rows without an account
	Input          string // file name, for the run log
	SkipRows       []int
}

// ImportService reconciles file imports household-wide.
type ImportService struct {
	h *Household
}

// NewImportService returns the import workflow for h.
func NewImportService(h *Household) *ImportService {
	return &ImportService{h: h}
}

func (s *ImportService) scope() reconcile.Scope {
	return reconcile.ImportScope(s.h.cfg.Matching.ImportWindowDays)
}

func (req ImportRequest) records() []reconcile.IncomingRecord {
	if req.DefaultAccount == "" {
		return req.Records
	}
	recs := append([]reconcile.IncomingRecord(nil), req.Records...)
	importer.ApplyDefaultAccount(recs, req.DefaultAccount)
	return recs
}

// Preview classifies the rows without writing.
func (s *ImportService) Preview(ctx context.Context, req ImportRequest) (*reconcile.Report, error) {
	engine, err := s.h.engine(ctx)
	if err != nil {
		return nil, err
	}
	return engine.Preview(ctx, s.scope(), req.records())
}

// Execute classifies and applies the rows under the household lock.
func (s *ImportService) Execute(ctx context.Context, req ImportRequest) (*RunResult, error) {
	unlock := s.h.locks.LockHousehold()
	defer unlock()

	runID := id.NewRunID()
	log := s.h.log.With().Str("run_id", runID).Logger()

	engine, err := s.h.engine(ctx)
	if err != nil {
		return nil, err
	}
	res, err := engine.Execute(ctx, s.scope(), req.records(), req.SkipRows)
	s.h.record(auditlog.Entry{RunID: runID, Source: string(reconcile.SourceImport), Input: req.Input}, res, err)
	if err != nil {
		log.Error().Err(err).Msg("import failed")
		return nil, err
	}
	return &RunResult{RunID: runID, ExecuteResult: *res}, nil
}
