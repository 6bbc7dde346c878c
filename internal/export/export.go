// Package export writes stored transactions as CSV or JSON. The CSV header
// is one the generic importer understands, so an export can be re-imported
// and reconciles as unchanged.
package export

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/Sal-Romano/Otter.Money3-sub000/internal/model"
)

// Header is the CSV header for transaction exports.
const Header = "internal_id,external_id,date,account_id,account,description,merchant,category,amount,notes,is_manual"

const (
	numFields      = 11
	dateFormat     = "2006-01-02"
	colInternalID  = 0
	colExternalID  = 1
	colDate        = 2
	colAccountID   = 3
	colAccountName = 4
	colDesc        = 5
	colMerchant    = 6
	colCategory    = 7
	colAmount      = 8
	colNotes       = 9
	colManual      = 10
)

// Names maps account and category ids to display names.
type Names struct {
	Accounts   map[string]string
	Categories map[string]string
}

// NewNames indexes the given accounts and categories.
func NewNames(accounts []model.Account, categories []model.Category) Names {
	n := Names{
		Accounts:   make(map[string]string, len(accounts)),
		Categories: make(map[string]string, len(categories)),
	}
	for _, a := range accounts {
		n.Accounts[a.ID] = a.Name
	}
	for _, c := range categories {
		n.Categories[c.ID] = c.Name
	}
	return n
}

// Row is the exported shape of one transaction.
type Row struct {
	ID          string `json:"id"`
	ExternalID  string `json:"externalId,omitempty"`
	Date        string `json:"date"`
	AccountID   string `json:"accountId"`
	Account     string `json:"account"`
	Description string `json:"description"`
	Merchant    string `json:"merchant,omitempty"`
	Category    string `json:"category,omitempty"`
	Amount      string `json:"amount"`
	Notes       string `json:"notes,omitempty"`
	IsManual    bool   `json:"isManual"`
}

// ToRow converts a transaction using names for display fields.
func (n Names) ToRow(t model.Transaction) Row {
	return Row{
		ID:          t.ID,
		ExternalID:  t.ExternalID,
		Date:        t.Date.Format(dateFormat),
		AccountID:   t.AccountID,
		Account:     n.Accounts[t.AccountID],
		Description: t.Description,
		Merchant:    t.MerchantName,
		Category:    n.Categories[t.CategoryID],
		Amount:      t.Amount.StringFixed(2),
		Notes:       t.Notes,
		IsManual:    t.IsManual,
	}
}

// MarshalRow converts a Row to a CSV record.
func MarshalRow(r Row) []string {
	rec := make([]string, numFields)
	rec[colInternalID] = r.ID
	rec[colExternalID] = r.ExternalID
	rec[colDate] = r.Date
	rec[colAccountID] = r.AccountID
	rec[colAccountName] = r.Account
	rec[colDesc] = r.Description
	rec[colMerchant] = r.Merchant
	rec[colCategory] = r.Category
	rec[colAmount] = r.Amount
	rec[colNotes] = r.Notes
	rec[colManual] = strconv.FormatBool(r.IsManual)
	return rec
}

// WriteCSV writes transactions with a header row.
func WriteCSV(w io.Writer, txns []model.Transaction, names Names) error {
	cw := csv.NewWriter(w)
	defer cw.Flush()

	if err := cw.Write(strings.Split(Header, ",")); err != nil {
		return fmt.Errorf("writing header: %w", err)
	}

	for i, t := range txns {
		if err := cw.Write(MarshalRow(names.ToRow(t))); err != nil {
			return fmt.Errorf("writing row %d: %w", i+2, err)
		}
	}
	return cw.Error()
}

// WriteJSON writes transactions as an indented JSON array.
func WriteJSON(w io.Writer, txns []model.Transaction, names Names) error {
	rows := make([]Row, 0, len(txns))
	for _, t := range txns {
		rows = append(rows, names.ToRow(t))
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(rows); err != nil {
		return fmt.Errorf("encoding transactions: %w", err)
	}
	return nil
}

// Write dispatches on format ("csv" or "json").
func Write(w io.Writer, format string, txns []model.Transaction, names Names) error {
	switch strings.ToLower(format) {
	case "", "csv":
		return WriteCSV(w, txns, names)
	case "json":
		return WriteJSON(w, txns, names)
	default:
		return fmt.Errorf("unknown export format %q", format)
	}
}
