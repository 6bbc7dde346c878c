package accounts

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/Sal-Romano/Otter.Money3-sub000/internal/model"
)

const (
	numFields     = 6
	colID         = 0
	colName       = 1
	colType       = 2
	colExternalID = 3
	colManual     = 4
	colBalance    = 5
)

// Header is the CSV header for accounts.csv.
var Header = []string{"account_id", "account_name", "account_type", "external_id", "is_manual", "balance"}

// ReadAccounts reads an accounts.csv seed file.
func ReadAccounts(r io.Reader) ([]model.Account, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = numFields
	cr.TrimLeadingSpace = true

	records, err := cr.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("reading accounts CSV: %w", err)
	}

	if len(records) == 0 {
		return nil, nil
	}

	var accounts []model.Account
	for i, rec := range records[1:] {
		acct, err := UnmarshalAccount(rec)
		if err != nil {
			return nil, fmt.Errorf("row %d: %w", i+2, err)
		}
		accounts = append(accounts, acct)
	}
	return accounts, nil
}

// WriteAccounts writes accounts.csv.
func WriteAccounts(w io.Writer, accounts []model.Account) error {
	cw := csv.NewWriter(w)
	defer cw.Flush()

	if err := cw.Write(Header); err != nil {
		return fmt.Errorf("writing header: %w", err)
	}

	for i, acct := range accounts {
		if err := cw.Write(MarshalAccount(acct)); err != nil {
			return fmt.Errorf("writing row %d: %w", i+2, err)
		}
	}
	return cw.Error()
}

// MarshalAccount converts an Account to a CSV row.
func MarshalAccount(acct model.Account) []string {
	row := make([]string, numFields)
	row[colID] = acct.ID
	row[colName] = acct.Name
	row[colType] = string(acct.Type)
	row[colExternalID] = acct.ExternalID
	row[colManual] = strconv.FormatBool(acct.IsManual)
	row[colBalance] = acct.Balance.StringFixed(2)
	return row
}

// UnmarshalAccount converts a CSV row to an Account. The id may be blank;
// Seed assigns one. A blank is_manual means manual unless the account has
// an external id.
func UnmarshalAccount(record []string) (model.Account, error) {
	if len(record) != numFields {
		return model.Account{}, fmt.Errorf("expected %d fields, got %d", numFields, len(record))
	}

	acct := model.Account{
		ID:         strings.TrimSpace(record[colID]),
		Name:       strings.TrimSpace(record[colName]),
		Type:       model.AccountType(strings.ToLower(strings.TrimSpace(record[colType]))),
		ExternalID: strings.TrimSpace(record[colExternalID]),
	}

	if acct.Name == "" {
		return model.Account{}, fmt.Errorf("account_name is required")
	}
	if !model.ValidAccountType(acct.Type) {
		return model.Account{}, fmt.Errorf("unknown account_type %q", record[colType])
	}

	if s := strings.TrimSpace(record[colManual]); s != "" {
		manual, err := strconv.ParseBool(s)
		if err != nil {
			return model.Account{}, fmt.Errorf("parsing is_manual %q: %w", s, err)
		}
		acct.IsManual = manual
	} else {
		acct.IsManual = acct.ExternalID == ""
	}

	if s := strings.TrimSpace(record[colBalance]); s != "" {
		bal, err := decimal.NewFromString(s)
		if err != nil {
			return model.Account{}, fmt.Errorf("parsing balance %q: %w", s, err)
		}
		acct.Balance = bal
	}
	return acct, nil
}
