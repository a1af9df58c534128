package reports

import (
	"context"
	"fmt"

	"github.com/xuri/excelize/v2"
)

// ExportStockSummaryExcel renders the stock summary as a spreadsheet
// for head-office distribution planning.
func ExportStockSummaryExcel(ctx context.Context, outletId *int) (*excelize.File, error) {

	data, err := GetStockSummaryReport(ctx, outletId)
	if err != nil {
		return nil, err
	}

	f := excelize.NewFile()
	sheet := "Sheet1"
	if _, err := f.NewSheet(sheet); err != nil {
		return nil, err
	}

	// Add headers
	f.SetCellValue(sheet, "A1", "Outlet")
	f.SetCellValue(sheet, "B1", "OnHand")
	f.SetCellValue(sheet, "C1", "Incoming")
	f.SetCellValue(sheet, "D1", "Reserved")
	f.SetCellValue(sheet, "E1", "Available")
	f.SetCellValue(sheet, "F1", "ClaimRatio")

	// Add data
	for i, d := range data {
		row := fmt.Sprint(i + 2)
		f.SetCellValue(sheet, "A"+row, d.OutletName)
		f.SetCellValue(sheet, "B"+row, d.OnHand.InexactFloat64())
		f.SetCellValue(sheet, "C"+row, d.Incoming.InexactFloat64())
		f.SetCellValue(sheet, "D"+row, d.Reserved.InexactFloat64())
		f.SetCellValue(sheet, "E"+row, d.Available.InexactFloat64())
		f.SetCellValue(sheet, "F"+row, d.ClaimRatio.InexactFloat64())
	}

	return f, nil
}
