package importer

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/Sal-Romano/Otter.Money3-sub000/internal/reconcile"
)

// GenericParser reads any CSV with a header row, mapping columns by name.
// It needs a date column, a description column, and either an amount
// column or a debit/credit pair (debits become outflows).
type GenericParser struct{}

// Format returns the parser name.
func (p *GenericParser) Format() string { return "generic" }

type field int

const (
	colDate field = iota
	colAmount
	colDebit
	colCredit
	colDescription
	colMerchant
	colExternalID
	colInternalID
	colAccountID
	colAccountName
	colCategory
	colNotes
	numFields
)

var headerAliases = map[string]field{
	"date":             colDate,
	"posting date":     colDate,
	"posted date":      colDate,
	"transaction date": colDate,
	"amount":           colAmount,
	"debit":            colDebit,
	"withdrawal":       colDebit,
	"credit":           colCredit,
	"deposit":          colCredit,
	"description":      colDescription,
	"details":          colDescription,
	"name":             colDescription,
	"merchant":         colMerchant,
	"payee":            colMerchant,
	"external id":      colExternalID,
	"externalid":       colExternalID,
	"transaction id":   colExternalID,
	"reference":        colExternalID,
	"internal id":      colInternalID,
	"internalid":       colInternalID,
	"otter id":         colInternalID,
	"account id":       colAccountID,
	"accountid":        colAccountID,
	"account":          colAccountName,
	"account name":     colAccountName,
	"category":         colCategory,
	"notes":            colNotes,
	"memo":             colNotes,
}

func normalizeHeader(h string) string {
	h = strings.TrimPrefix(h, "\ufeff")
	h = strings.NewReplacer("_", " ", "-", " ").Replace(strings.ToLower(strings.TrimSpace(h)))
	return strings.Join(strings.Fields(h), " ")
}

// columns maps each field to its column index, or -1.
type columns [numFields]int

func mapHeader(header []string) (columns, error) {
	var c columns
	for i := range c {
		c[i] = -1
	}
	for i, h := range header {
		if f, ok := headerAliases[normalizeHeader(h)]; ok && c[f] < 0 {
			c[f] = i
		}
	}

	var missing []string
	if c[colDate] < 0 {
		missing = append(missing, "date")
	}
	if c[colDescription] < 0 {
		missing = append(missing, "description")
	}
	if c[colAmount] < 0 && c[colDebit] < 0 && c[colCredit] < 0 {
		missing = append(missing, "amount (or debit/credit)")
	}
	if len(missing) > 0 {
		return c, fmt.Errorf("header lacks %s column", strings.Join(missing, ", "))
	}
	return c, nil
}

// Parse reads the header and every data row.
func (p *GenericParser) Parse(r io.Reader) ([]reconcile.IncomingRecord, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading header: %w", err)
	}
	cols, err := mapHeader(header)
	if err != nil {
		return nil, err
	}

	var records []reconcile.IncomingRecord
	for n := 1; ; n++ {
		row, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("reading row %d: %w", n, err)
		}
		if blank(row) {
			n--
			continue
		}
		records = append(records, cols.record(n, row))
	}
	return records, nil
}

func (c columns) get(row []string, f field) string {
	i := c[f]
	if i < 0 || i >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[i])
}

func (c columns) record(n int, row []string) reconcile.IncomingRecord {
	rec := reconcile.IncomingRecord{
		RowNumber:    n,
		Date:         c.get(row, colDate),
		Description:  c.get(row, colDescription),
		Merchant:     c.get(row, colMerchant),
		ExternalID:   c.get(row, colExternalID),
		InternalID:   c.get(row, colInternalID),
		AccountID:    c.get(row, colAccountID),
		AccountName:  c.get(row, colAccountName),
		CategoryName: c.get(row, colCategory),
		Notes:        c.get(row, colNotes),
	}
	if c[colAmount] >= 0 {
		rec.Amount = c.get(row, colAmount)
	} else {
		rec.Amount = debitCredit(c.get(row, colDebit), c.get(row, colCredit))
	}
	return rec
}

// debitCredit folds a debit/credit pair into one signed amount. Text that
// does not parse is returned as is so validation can name it.
func debitCredit(debit, credit string) string {
	if debit == "" && credit == "" {
		return ""
	}
	d, err := amountOrZero(debit)
	if err != nil {
		return debit
	}
	cr, err := amountOrZero(credit)
	if err != nil {
		return credit
	}
	return cr.Abs().Sub(d.Abs()).StringFixed(2)
}

func amountOrZero(s string) (decimal.Decimal, error) {
	if s == "" {
		return decimal.Zero, nil
	}
	return reconcile.ParseAmount(s)
}

func blank(row []string) bool {
	for _, v := range row {
		if strings.TrimSpace(v) != "" {
			return false
		}
	}
	return true
}
