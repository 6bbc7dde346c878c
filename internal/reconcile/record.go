package reconcile

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Source names the workflow that produced a batch.
type Source string

const (
	SourceImport Source = "import"
	SourceSync   Source = "sync"
)

// Default candidate windows, in days on either side of the batch's dates.
// Sync gets a wider window to absorb pending-to-posted date drift.
const (
	DefaultImportWindowDays = 3
	DefaultSyncWindowDays   = 5
)

// Scope parameterizes one reconciliation run.
type Scope struct {
	Source     Source
	WindowDays int
	AccountID  string // empty = whole household

	// Balance, when set, is written to AccountID in the same database
	// transaction as the batch.
	Balance *decimal.Decimal
}

// WithBalance returns a copy of s that also sets the account balance.
func (s Scope) WithBalance(balance decimal.Decimal) Scope {
	s.Balance = &balance
	return s
}

// ImportScope returns the scope for a household-wide file import.
func ImportScope(windowDays int) Scope {
	if windowDays <= 0 {
		windowDays = DefaultImportWindowDays
	}
	return Scope{Source: SourceImport, WindowDays: windowDays}
}

// SyncScope returns the scope for a single-account bank sync.
func SyncScope(accountID string, windowDays int) Scope {
	if windowDays <= 0 {
		windowDays = DefaultSyncWindowDays
	}
	return Scope{Source: SourceSync, WindowDays: windowDays, AccountID: accountID}
}

// IncomingRecord is one row delivered by an import file or sync feed.
// Date and Amount hold the text as delivered; Validate parses them.
type IncomingRecord struct {
	RowNumber         int    `json:"rowNumber"`
	Date              string `json:"date"`
	Amount            string `json:"amount"`
	Description       string `json:"description"`
	Merchant          string `json:"merchant,omitempty"`
	ExternalID        string `json:"externalId,omitempty"`
	InternalID        string `json:"internalId,omitempty"`
	AccountID         string `json:"accountId,omitempty"`
	AccountName       string `json:"accountName,omitempty"`
	AccountExternalID string `json:"accountExternalId,omitempty"`
	CategoryID        string `json:"categoryId,omitempty"`
	CategoryName      string `json:"categoryName,omitempty"`
	Notes             string `json:"notes,omitempty"`
}

// AccountRef identifies an account by id, name, or aggregator id.
type AccountRef struct {
	ID         string
	Name       string
	ExternalID string
}

// String returns the most specific part of the reference.
func (r AccountRef) String() string {
	switch {
	case r.ID != "":
		return r.ID
	case r.ExternalID != "":
		return r.ExternalID
	default:
		return r.Name
	}
}

// CategoryRef identifies a category by id or name.
type CategoryRef struct {
	ID   string
	Name string
}

// Empty reports whether the reference names no category.
func (r CategoryRef) Empty() bool { return r.ID == "" && r.Name == "" }

// String returns the most specific part of the reference.
func (r CategoryRef) String() string {
	if r.ID != "" {
		return r.ID
	}
	return r.Name
}

// AccountRef returns the record's account reference.
func (r IncomingRecord) AccountRef() AccountRef {
	return AccountRef{
		ID:         strings.TrimSpace(r.AccountID),
		Name:       strings.TrimSpace(r.AccountName),
		ExternalID: strings.TrimSpace(r.AccountExternalID),
	}
}

// CategoryRef returns the record's category reference.
func (r IncomingRecord) CategoryRef() CategoryRef {
	return CategoryRef{
		ID:   strings.TrimSpace(r.CategoryID),
		Name: strings.TrimSpace(r.CategoryName),
	}
}

// ParsedRecord is an IncomingRecord that passed validation. AccountID and
// CategoryID are filled in by resolution.
type ParsedRecord struct {
	RowNumber   int
	Date        time.Time
	Amount      decimal.Decimal
	Description string
	Merchant    string
	ExternalID  string
	InternalID  string
	AccountID   string
	CategoryID  string
	Notes       string
}

// Validate parses and checks a record. Amount is checked first, then date,
// then description.
func Validate(rec IncomingRecord) (ParsedRecord, error) {
	amount, err := ParseAmount(rec.Amount)
	if err != nil {
		return ParsedRecord{}, &RecordValidationError{Row: rec.RowNumber, Field: "amount", Value: rec.Amount, Reason: err.Error()}
	}
	if amount.IsZero() {
		return ParsedRecord{}, &RecordValidationError{Row: rec.RowNumber, Field: "amount", Value: rec.Amount, Reason: "must be non-zero"}
	}

	date, err := ParseDate(rec.Date)
	if err != nil {
		return ParsedRecord{}, &RecordValidationError{Row: rec.RowNumber, Field: "date", Value: rec.Date, Reason: err.Error()}
	}

	desc := strings.TrimSpace(rec.Description)
	if desc == "" {
		return ParsedRecord{}, &RecordValidationError{Row: rec.RowNumber, Field: "description", Reason: "empty"}
	}

	return ParsedRecord{
		RowNumber:   rec.RowNumber,
		Date:        date,
		Amount:      amount,
		Description: desc,
		Merchant:    strings.TrimSpace(rec.Merchant),
		ExternalID:  strings.TrimSpace(rec.ExternalID),
		InternalID:  strings.TrimSpace(rec.InternalID),
		Notes:       strings.TrimSpace(rec.Notes),
	}, nil
}

var dateLayouts = []string{
	"2006-01-02",
	"01/02/2006",
	"1/2/2006",
	"2006/01/02",
	"2006-01-02 15:04:05",
	time.RFC3339,
}

// ParseDate accepts the date formats banks and aggregators commonly emit and
// returns the calendar date at UTC midnight.
func ParseDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, errMissing
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return CalendarDay(t), nil
		}
	}
	return time.Time{}, errUnrecognizedDate
}

// ParseAmount parses a signed amount. It tolerates a currency symbol,
// thousands separators, and accounting-style parentheses for negatives.
func ParseAmount(s string) (decimal.Decimal, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return decimal.Zero, errMissing
	}
	negative := false
	if strings.HasPrefix(s, "(") && strings.HasSuffix(s, ")") {
		negative = true
		s = strings.TrimSuffix(strings.TrimPrefix(s, "("), ")")
	}
	s = strings.NewReplacer("$", "", ",", "", " ", "").Replace(s)
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, errNotANumber
	}
	if negative {
		d = d.Neg()
	}
	return d, nil
}

// CalendarDay truncates t to its calendar date at UTC midnight.
func CalendarDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
