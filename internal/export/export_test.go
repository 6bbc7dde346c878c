package export

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Sal-Romano/Otter.Money3-sub000/internal/importer"
	"github.com/Sal-Romano/Otter.Money3-sub000/internal/model"
)

func fixtures() ([]model.Transaction, Names) {
	txns := []model.Transaction{
		{
			ID: "txn_1", AccountID: "acct_chk", Date: time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC),
			Amount: decimal.RequireFromString("-45"), Description: "AMZN MKTP US*1234",
			MerchantName: "Amazon", CategoryID: "cat_shop", Notes: "gift, wrapped", IsManual: true,
		},
		{
			ID: "txn_2", ExternalID: "agg-9", AccountID: "acct_visa", Date: time.Date(2024, 3, 2, 0, 0, 0, 0, time.UTC),
			Amount: decimal.RequireFromString("1500.00"), Description: "PAYROLL",
		},
	}
	names := NewNames(
		[]model.Account{{ID: "acct_chk", Name: "Checking"}, {ID: "acct_visa", Name: "Visa"}},
		[]model.Category{{ID: "cat_shop", Name: "Shopping"}},
	)
	return txns, names
}

func TestWriteCSV(t *testing.T) {
	txns, names := fixtures()

	var buf bytes.Buffer
	require.NoError(t, WriteCSV(&buf, txns, names))

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 3)
	assert.Equal(t, Header, lines[0])
	assert.Equal(t, `txn_1,,2024-03-01,acct_chk,Checking,AMZN MKTP US*1234,Amazon,Shopping,-45.00,"gift, wrapped",true`, lines[1])
	assert.Equal(t, `txn_2,agg-9,2024-03-02,acct_visa,Visa,PAYROLL,,,1500.00,,false`, lines[2])
}

func TestWriteJSON(t *testing.T) {
	txns, names := fixtures()

	var buf bytes.Buffer
	require.NoError(t, Write(&buf, "json", txns, names))

	var rows []Row
	require.NoError(t, json.Unmarshal(buf.Bytes(), &rows))
	require.Len(t, rows, 2)
	assert.Equal(t, "Shopping", rows[0].Category)
	assert.Equal(t, "-45.00", rows[0].Amount)
	assert.Equal(t, "agg-9", rows[1].ExternalID)
}

func TestWrite_UnknownFormat(t *testing.T) {
	err := Write(&bytes.Buffer{}, "xlsx", nil, Names{})
	assert.ErrorContains(t, err, "unknown export format")
}

func TestExportReimportsThroughGenericParser(t *testing.T) {
	txns, names := fixtures()

	var buf bytes.Buffer
	require.NoError(t, WriteCSV(&buf, txns, names))

	records, err := (&importer.GenericParser{}).Parse(&buf)
	require.NoError(t, err)
	require.Len(t, records, 2)

	assert.Equal(t, "txn_1", records[0].InternalID)
	assert.Equal(t, "acct_chk", records[0].AccountID)
	assert.Equal(t, "-45.00", records[0].Amount)
	assert.Equal(t, "Shopping", records[0].CategoryName)
	assert.Equal(t, "gift, wrapped", records[0].Notes)
	assert.Equal(t, "agg-9", records[1].ExternalID)
}
