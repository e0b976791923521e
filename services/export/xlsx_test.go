package exportsvc

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/trezcool/bursar/core/finance"
	testutil "github.com/trezcool/bursar/tests"
)

func TestXLSXExporter_ExportLedger(t *testing.T) {
	day := time.Date(2024, time.March, 15, 0, 0, 0, 0, time.UTC)
	entries := []finance.LedgerEntry{ // newest first, as listed
		{ID: "e3", Seq: 3, Date: day, Type: finance.EntryDebit, Category: finance.CategoryReversal, ReferenceNumber: "RCP-2024-000001",
			Description: "bounced", Amount: testutil.Dec("250"), Balance: testutil.Dec("1000"), ReversalOf: "e2"},
		{ID: "e2", Seq: 2, Date: day, Type: finance.EntryCredit, Category: finance.CategoryFeeCollection, ReferenceNumber: "RCP-2024-000001",
			Description: "Tuition", Amount: testutil.Dec("250"), Balance: testutil.Dec("1250"), ReversedBy: "e3"},
		{ID: "e1", Seq: 1, Date: day.AddDate(0, 0, -1), Type: finance.EntryDebit, Category: "salaries", ReferenceID: "PAY-7",
			Description: "March", Amount: testutil.Dec("1500.25"), Balance: testutil.Dec("1000")},
	}

	buf := new(bytes.Buffer)
	require.NoError(t, XLSXExporter{}.ExportLedger(buf, entries, testutil.Dec("1000")))

	f, err := excelize.OpenReader(buf)
	require.NoError(t, err)
	defer f.Close()

	assert.Equal(t, []string{ledgerSheet}, f.GetSheetList())
	rows, err := f.GetRows(ledgerSheet)
	require.NoError(t, err)
	require.Len(t, rows, 6) // header, 3 entries, blank, balance

	assert.Equal(t, "Seq", rows[0][0])
	assert.Equal(t, []string{"1", "2024-03-14", "debit", "salaries", "PAY-7", "March"}, rows[1][:6])
	assert.Equal(t, "2", rows[2][0])
	assert.Equal(t, "e3", rows[2][10])
	assert.Equal(t, "3", rows[3][0])
	assert.Equal(t, "e2", rows[3][9])

	debit, err := f.GetCellValue(ledgerSheet, "H2", excelize.Options{RawCellValue: true})
	require.NoError(t, err)
	assert.Equal(t, "1500.25", debit)
	credit, err := f.GetCellValue(ledgerSheet, "G3", excelize.Options{RawCellValue: true})
	require.NoError(t, err)
	assert.Equal(t, "250", credit)

	label, err := f.GetCellValue(ledgerSheet, "H6")
	require.NoError(t, err)
	assert.Equal(t, "Balance", label)
	balance, err := f.GetCellValue(ledgerSheet, "I6", excelize.Options{RawCellValue: true})
	require.NoError(t, err)
	assert.Equal(t, "1000", balance)
}

func TestXLSXExporter_emptyLedger(t *testing.T) {
	buf := new(bytes.Buffer)
	require.NoError(t, XLSXExporter{}.ExportLedger(buf, nil, testutil.Dec("42")))

	f, err := excelize.OpenReader(buf)
	require.NoError(t, err)
	defer f.Close()
	balance, err := f.GetCellValue(ledgerSheet, "I3", excelize.Options{RawCellValue: true})
	require.NoError(t, err)
	assert.Equal(t, "42", balance)
}
