package exportsvc

import (
	"io"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/xuri/excelize/v2"

	"github.com/trezcool/bursar/core/finance"
)

const (
	ledgerSheet = "Ledger"
	XLSXType    = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

	numFmtAmount = 4 // #,##0.00
)

var ledgerHeaders = []interface{}{
	"Seq", "Date", "Type", "Category", "Reference", "Description", "Credit", "Debit", "Balance", "Reversal of", "Reversed by",
}

// XLSXExporter writes the ledger as an Excel workbook, oldest entry first.
type XLSXExporter struct{}

var _ finance.LedgerExporter = XLSXExporter{}

func (XLSXExporter) ExportLedger(w io.Writer, entries []finance.LedgerEntry, balance decimal.Decimal) (err error) {
	f := excelize.NewFile()
	defer func() {
		if cerr := f.Close(); err == nil {
			err = cerr
		}
	}()

	index, err := f.NewSheet(ledgerSheet)
	if err != nil {
		return errors.Wrap(err, "creating sheet")
	}
	f.SetActiveSheet(index)
	if err = f.DeleteSheet("Sheet1"); err != nil {
		return errors.Wrap(err, "removing default sheet")
	}

	headerStyle, err := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true},
		Fill: excelize.Fill{Type: "pattern", Color: []string{"#DDEBF7"}, Pattern: 1},
	})
	if err != nil {
		return errors.Wrap(err, "creating header style")
	}
	amountStyle, err := f.NewStyle(&excelize.Style{NumFmt: numFmtAmount})
	if err != nil {
		return errors.Wrap(err, "creating amount style")
	}

	if err = f.SetSheetRow(ledgerSheet, "A1", &ledgerHeaders); err != nil {
		return errors.Wrap(err, "writing headers")
	}
	if err = f.SetCellStyle(ledgerSheet, "A1", "K1", headerStyle); err != nil {
		return errors.Wrap(err, "styling headers")
	}

	row := 2
	for i := len(entries) - 1; i >= 0; i-- {
		e := entries[i]
		var credit, debit interface{}
		if e.Type == finance.EntryCredit {
			credit = e.Amount.InexactFloat64()
		} else {
			debit = e.Amount.InexactFloat64()
		}
		reference := e.ReferenceNumber
		if reference == "" {
			reference = e.ReferenceID
		}
		values := []interface{}{
			e.Seq, e.Date.Format("2006-01-02"), string(e.Type), e.Category, reference, e.Description,
			credit, debit, e.Balance.InexactFloat64(), e.ReversalOf, e.ReversedBy,
		}
		if err = f.SetSheetRow(ledgerSheet, cellName(1, row), &values); err != nil {
			return errors.Wrapf(err, "writing entry %d", e.Seq)
		}
		row++
	}

	if err = f.SetSheetRow(ledgerSheet, cellName(8, row+1), &[]interface{}{"Balance", balance.InexactFloat64()}); err != nil {
		return errors.Wrap(err, "writing balance")
	}
	if err = f.SetCellStyle(ledgerSheet, "G2", cellName(9, row+1), amountStyle); err != nil {
		return errors.Wrap(err, "styling amounts")
	}

	for col, width := range map[string]float64{"A": 8, "B": 12, "C": 8, "D": 18, "E": 20, "F": 40, "G": 14, "H": 14, "I": 14, "J": 38, "K": 38} {
		if err = f.SetColWidth(ledgerSheet, col, col, width); err != nil {
			return errors.Wrap(err, "sizing columns")
		}
	}
	if err = f.SetPanes(ledgerSheet, &excelize.Panes{Freeze: true, YSplit: 1, TopLeftCell: "A2", ActivePane: "bottomLeft"}); err != nil {
		return errors.Wrap(err, "freezing header")
	}

	return errors.Wrap(f.Write(w), "writing workbook")
}

func cellName(col, row int) string {
	name, _ := excelize.CoordinatesToCellName(col, row)
	return name
}
