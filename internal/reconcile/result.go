package reconcile

import (
	"encoding/json"

	"github.com/shopspring/decimal"

	"github.com/Sal-Romano/Otter.Money3-sub000/internal/model"
)

// Action is the classifier's decision for one row.
type Action string

const (
	ActionCreate    Action = "create"
	ActionUpdate    Action = "update"
	ActionUnchanged Action = "unchanged"
	ActionSkip      Action = "skip"
)

// MatchKind records how a row found its stored transaction.
type MatchKind string

const (
	MatchExternalID MatchKind = "external_id"
	MatchInternalID MatchKind = "internal_id"
	MatchFuzzy      MatchKind = "fuzzy"
)

// Diffed field names.
const (
	FieldDescription = "Description"
	FieldMerchant    = "Merchant"
	FieldCategory    = "Category"
	FieldNotes       = "Notes"
	FieldAmount      = "Amount"
)

// FieldChange is one difference between an incoming row and its match.
type FieldChange struct {
	Field string `json:"field"`
	From  string `json:"from"`
	To    string `json:"to"`
}

// MatchResult is the classification of one incoming row.
type MatchResult struct {
	RowNumber  int
	Action     Action
	Parsed     *ParsedRecord // nil when validation failed
	Matched    *model.Transaction
	MatchedBy  MatchKind
	Confidence *decimal.Decimal
	Changes    []FieldChange
	SkipReason string
	Warnings   []string
	Err        error // cause of a Skip
}

// MatchedID returns the id of the matched stored transaction, or "".
func (r MatchResult) MatchedID() string {
	if r.Matched == nil {
		return ""
	}
	return r.Matched.ID
}

// Summary counts rows per action.
type Summary struct {
	Create    int `json:"create"`
	Update    int `json:"update"`
	Skip      int `json:"skip"`
	Unchanged int `json:"unchanged"`
}

// Report is the preview output for a batch.
type Report struct {
	TotalRows int           `json:"totalRows"`
	Summary   Summary       `json:"summary"`
	Rows      []MatchResult `json:"rows"`
}

// NewReport tallies results into a Report.
func NewReport(results []MatchResult) *Report {
	r := &Report{TotalRows: len(results), Rows: results}
	for _, res := range results {
		switch res.Action {
		case ActionCreate:
			r.Summary.Create++
		case ActionUpdate:
			r.Summary.Update++
		case ActionSkip:
			r.Summary.Skip++
		case ActionUnchanged:
			r.Summary.Unchanged++
		}
	}
	return r
}

// SkipDetail explains why a row was not persisted.
type SkipDetail struct {
	RowNumber int    `json:"rowNumber"`
	Reason    string `json:"reason"`
}

// ExecuteResult is the execute output for a batch.
type ExecuteResult struct {
	Created        int          `json:"created"`
	Updated        int          `json:"updated"`
	Skipped        int          `json:"skipped"`
	Unchanged      int          `json:"unchanged"`
	RulesApplied   int          `json:"rulesApplied"`
	SkippedDetails []SkipDetail `json:"skippedDetails"`
}

type parsedJSON struct {
	Date        string `json:"date"`
	Amount      string `json:"amount"`
	Description string `json:"description"`
	Merchant    string `json:"merchant,omitempty"`
	ExternalID  string `json:"externalId,omitempty"`
	InternalID  string `json:"internalId,omitempty"`
	AccountID   string `json:"accountId,omitempty"`
	CategoryID  string `json:"categoryId,omitempty"`
	Notes       string `json:"notes,omitempty"`
}

type transactionJSON struct {
	ID           string `json:"id"`
	ExternalID   string `json:"externalId,omitempty"`
	AccountID    string `json:"accountId"`
	Date         string `json:"date"`
	Amount       string `json:"amount"`
	Description  string `json:"description"`
	MerchantName string `json:"merchantName,omitempty"`
	CategoryID   string `json:"categoryId,omitempty"`
	Notes        string `json:"notes,omitempty"`
	IsManual     bool   `json:"isManual"`
}

type rowJSON struct {
	RowNumber          int              `json:"rowNumber"`
	Action             Action           `json:"action"`
	Parsed             *parsedJSON      `json:"parsed"`
	MatchedTransaction *transactionJSON `json:"matchedTransaction,omitempty"`
	MatchedBy          MatchKind        `json:"matchedBy,omitempty"`
	MatchConfidence    *float64         `json:"matchConfidence,omitempty"`
	Changes            []FieldChange    `json:"changes,omitempty"`
	SkipReason         string           `json:"skipReason,omitempty"`
	Warnings           []string         `json:"warnings"`
}

// MarshalJSON renders the row in the preview wire format.
func (r MatchResult) MarshalJSON() ([]byte, error) {
	out := rowJSON{
		RowNumber:  r.RowNumber,
		Action:     r.Action,
		MatchedBy:  r.MatchedBy,
		Changes:    r.Changes,
		SkipReason: r.SkipReason,
		Warnings:   r.Warnings,
	}
	if out.Warnings == nil {
		out.Warnings = []string{}
	}
	if p := r.Parsed; p != nil {
		out.Parsed = &parsedJSON{
			Date:        p.Date.Format(dateLayouts[0]),
			Amount:      p.Amount.StringFixed(2),
			Description: p.Description,
			Merchant:    p.Merchant,
			ExternalID:  p.ExternalID,
			InternalID:  p.InternalID,
			AccountID:   p.AccountID,
			CategoryID:  p.CategoryID,
			Notes:       p.Notes,
		}
	}
	if t := r.Matched; t != nil {
		out.MatchedTransaction = &transactionJSON{
			ID:           t.ID,
			ExternalID:   t.ExternalID,
			AccountID:    t.AccountID,
			Date:         t.Date.Format(dateLayouts[0]),
			Amount:       t.Amount.StringFixed(2),
			Description:  t.Description,
			MerchantName: t.MerchantName,
			CategoryID:   t.CategoryID,
			Notes:        t.Notes,
			IsManual:     t.IsManual,
		}
	}
	if r.Confidence != nil {
		f := r.Confidence.InexactFloat64()
		out.MatchConfidence = &f
	}
	return json.Marshal(out)
}
