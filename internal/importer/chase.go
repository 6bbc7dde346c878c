package importer

import (
	"encoding/csv"
	"fmt"
	"io"
	"strings"

	"github.com/Sal-Romano/Otter.Money3-sub000/internal/reconcile"
)

// ChaseParser parses Chase checking CSV exports. The export carries no
// account column, so callers supply one with ApplyDefaultAccount.
type ChaseParser struct{}

const (
	chaseNumFields = 7
	chaseColDate   = 1
	chaseColDesc   = 2
	chaseColAmount = 3
	chaseColCheck  = 6
)

// Format returns the parser name.
func (p *ChaseParser) Format() string { return "chase" }

// Parse reads a Chase CSV. Only a malformed file is an error.
func (p *ChaseParser) Parse(r io.Reader) ([]reconcile.IncomingRecord, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = chaseNumFields

	rows, err := cr.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("reading chase CSV: %w", err)
	}

	if len(rows) <= 1 {
		return nil, nil
	}

	records := make([]reconcile.IncomingRecord, 0, len(rows)-1)
	for i, row := range rows[1:] {
		records = append(records, parseChaseRow(i+1, row))
	}
	return records, nil
}

func parseChaseRow(n int, row []string) reconcile.IncomingRecord {
	rec := reconcile.IncomingRecord{
		RowNumber:   n,
		Date:        strings.TrimSpace(row[chaseColDate]),
		Amount:      strings.TrimSpace(row[chaseColAmount]),
		Description: strings.TrimSpace(row[chaseColDesc]),
	}
	if check := strings.TrimSpace(row[chaseColCheck]); check != "" {
		rec.Notes = "check #" + check
	}
	return rec
}
