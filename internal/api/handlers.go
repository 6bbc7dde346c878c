package api

import (
	"encoding/json"
	"errors"
	"io"
	"mime"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/Sal-Romano/Otter.Money3-sub000/internal/api/middleware"
	"github.com/Sal-Romano/Otter.Money3-sub000/internal/banksync"
	"github.com/Sal-Romano/Otter.Money3-sub000/internal/buildinfo"
	"github.com/Sal-Romano/Otter.Money3-sub000/internal/logging"
	"github.com/Sal-Romano/Otter.Money3-sub000/internal/reconcile"
	"github.com/Sal-Romano/Otter.Money3-sub000/internal/service"
)

const maxBody = 10 << 20

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	status, code := "healthy", http.StatusOK
	if s.deps.DB != nil {
		if err := s.deps.DB.Ping(r.Context()); err != nil {
			log := logging.FromContext(r.Context())
			log.Error().Err(err).Msg("database ping failed")
			status, code = "unhealthy", http.StatusServiceUnavailable
		}
	}
	middleware.WriteJSON(w, code, map[string]string{
		"status":  status,
		"version": buildinfo.String(),
		"time":    time.Now().UTC().Format(time.RFC3339),
	})
}

func (s *Server) listAccounts(w http.ResponseWriter, r *http.Request) {
	accts, err := s.deps.Household.Accounts(r.Context())
	if err != nil {
		s.internalError(w, r, err, "listing accounts")
		return
	}

	type accountJSON struct {
		ID         string `json:"id"`
		Name       string `json:"name"`
		Type       string `json:"type"`
		ExternalID string `json:"externalId,omitempty"`
		IsManual   bool   `json:"isManual"`
		Balance    string `json:"balance"`
	}
	out := make([]accountJSON, 0, len(accts))
	for _, a := range accts {
		out = append(out, accountJSON{
			ID:         a.ID,
			Name:       a.Name,
			Type:       string(a.Type),
			ExternalID: a.ExternalID,
			IsManual:   a.IsManual,
			Balance:    a.Balance.StringFixed(2),
		})
	}
	middleware.WriteJSON(w, http.StatusOK, map[string]any{
		"accounts": out,
		"count":    len(out),
	})
}

func (s *Server) listRuns(w http.ResponseWriter, r *http.Request) {
	limit := parseIntParam(r, "limit", 20)
	runs, err := s.deps.Household.Runs(limit)
	if err != nil {
		s.internalError(w, r, err, "reading run log")
		return
	}
	middleware.WriteJSON(w, http.StatusOK, map[string]any{
		"runs":  nonNil(runs),
		"count": len(runs),
	})
}

// importBody is the JSON form of an import request.
type importBody struct {
	Rows     []reconcile.IncomingRecord `json:"rows"`
	Account  string                     `json:"account,omitempty"`
	Input    string                     `json:"input,omitempty"`
	SkipRows []int                      `json:"skipRows,omitempty"`
}

// readImport decodes either a JSON body or a CSV body. For CSV, format,
// account, input, and skipRows come from the query string.
func (s *Server) readImport(w http.ResponseWriter, r *http.Request) (service.ImportRequest, error) {
	body := http.MaxBytesReader(w, r.Body, maxBody)
	ct, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))

	if ct == "text/csv" {
		q := r.URL.Query()
		format := q.Get("format")
		if format == "" {
			format = "generic"
		}
		records, err := s.deps.Parsers.Parse(format, body)
		if err != nil {
			return service.ImportRequest{}, err
		}
		skip, err := parseSkipRows(q.Get("skipRows"))
		if err != nil {
			return service.ImportRequest{}, err
		}
		return service.ImportRequest{
			Records:        records,
			DefaultAccount: q.Get("account"),
			Input:          q.Get("input"),
			SkipRows:       skip,
		}, nil
	}

	var b importBody
	dec := json.NewDecoder(body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&b); err != nil {
		return service.ImportRequest{}, errors.New("invalid request body: " + err.Error())
	}
	// Rows without a rowNumber take their 1-based position. The result must
	// still be unique, since skipRows and the report address rows by number.
	seen := make(map[int]bool, len(b.Rows))
	for i := range b.Rows {
		if b.Rows[i].RowNumber == 0 {
			b.Rows[i].RowNumber = i + 1
		}
		n := b.Rows[i].RowNumber
		if seen[n] {
			return service.ImportRequest{}, errors.New("duplicate rowNumber " + strconv.Itoa(n))
		}
		seen[n] = true
	}
	return service.ImportRequest{
		Records:        b.Rows,
		DefaultAccount: b.Account,
		Input:          b.Input,
		SkipRows:       b.SkipRows,
	}, nil
}

func (s *Server) importPreview(w http.ResponseWriter, r *http.Request) {
	req, err := s.readImport(w, r)
	if err != nil {
		middleware.WriteError(w, http.StatusBadRequest, middleware.CodeBadRequest, err.Error())
		return
	}
	report, err := s.deps.Imports.Preview(r.Context(), req)
	if err != nil {
		s.runError(w, r, err)
		return
	}
	middleware.WriteJSON(w, http.StatusOK, report)
}

func (s *Server) importExecute(w http.ResponseWriter, r *http.Request) {
	req, err := s.readImport(w, r)
	if err != nil {
		middleware.WriteError(w, http.StatusBadRequest, middleware.CodeBadRequest, err.Error())
		return
	}
	res, err := s.deps.Imports.Execute(r.Context(), req)
	if err != nil {
		s.runError(w, r, err)
		return
	}
	middleware.WriteJSON(w, http.StatusOK, res)
}

func (s *Server) syncPreview(w http.ResponseWriter, r *http.Request) {
	report, err := s.deps.Syncs.Preview(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.runError(w, r, err)
		return
	}
	middleware.WriteJSON(w, http.StatusOK, report)
}

func (s *Server) syncExecute(w http.ResponseWriter, r *http.Request) {
	var b struct {
		SkipRows []int `json:"skipRows"`
	}
	if r.ContentLength != 0 {
		if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBody)).Decode(&b); err != nil && !errors.Is(err, io.EOF) {
			middleware.WriteError(w, http.StatusBadRequest, middleware.CodeBadRequest, "invalid request body: "+err.Error())
			return
		}
	}
	res, err := s.deps.Syncs.Execute(r.Context(), chi.URLParam(r, "id"), b.SkipRows)
	if err != nil {
		s.runError(w, r, err)
		return
	}
	middleware.WriteJSON(w, http.StatusOK, res)
}

// runError maps workflow errors to responses.
func (s *Server) runError(w http.ResponseWriter, r *http.Request, err error) {
	var perr *reconcile.PersistenceError
	switch {
	case errors.Is(err, service.ErrUnknownAccount):
		middleware.WriteError(w, http.StatusNotFound, middleware.CodeNotFound, err.Error())
	case errors.Is(err, service.ErrNotSynced):
		middleware.WriteError(w, http.StatusConflict, middleware.CodeConflict, err.Error())
	case errors.Is(err, banksync.ErrUnauthorized):
		middleware.WriteError(w, http.StatusBadGateway, middleware.CodeBadGateway, "bank feed rejected the API key")
	case errors.As(err, &perr):
		s.internalError(w, r, err, "batch rolled back")
	default:
		s.internalError(w, r, err, "run failed")
	}
}

func (s *Server) internalError(w http.ResponseWriter, r *http.Request, err error, msg string) {
	log := logging.FromContext(r.Context())
	log.Error().Err(err).Msg(msg)
	middleware.WriteError(w, http.StatusInternalServerError, middleware.CodeInternal, msg)
}

func parseIntParam(r *http.Request, name string, def int) int {
	v := r.URL.Query().Get(name)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return def
	}
	return n
}

func parseSkipRows(s string) ([]int, error) {
	if s == "" {
		return nil, nil
	}
	var out []int
	for _, part := range strings.Split(s, ",") {
		n, err := strconv.Atoi(strings.TrimSpace(part))
		if err != nil {
			return nil, errors.New("skipRows: " + strconv.Quote(part) + " is not a row number")
		}
		out = append(out, n)
	}
	return out, nil
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
