package inventory

import (
	"encoding/csv"
	"io"
	"strconv"
	"time"

	"github.com/shopspring/decimal"
	"github.com/xuri/excelize/v2"
)

const exportSheet = "Inventory"

var exportHeaders = []string{
	"Chassis Number", "Brand", "Model", "Year", "Grade", "Country", "Status",
	"Purchase Price", "CIF Value", "LC Value", "Tax", "Duty", "Landed Cost",
	"Selling Price", "Net Profit", "Advance Payment", "Rest Payment",
	"Shipping Company", "Shipping Date", "Arrival Date",
	"Purchaser", "Purchaser Phone", "Added By", "Sold At", "Created At",
}

// moneyColumns are the zero-based header positions holding amounts.
var moneyColumns = []int{7, 8, 9, 10, 11, 12, 13, 14, 15, 16}

func exportRow(v Vehicle) []any {
	return []any{
		v.ChassisNumber, v.Brand, v.Model, v.Year, v.Grade, v.Country, string(v.Status),
		v.PurchasePrice.InexactFloat64(), v.CIFValue.InexactFloat64(), v.LCValue.InexactFloat64(),
		v.Tax.InexactFloat64(), v.Duty.InexactFloat64(), v.LandedCost().InexactFloat64(),
		v.SellingPrice.InexactFloat64(), v.NetProfit.InexactFloat64(),
		v.AdvancePayment.InexactFloat64(), v.RestPayment.InexactFloat64(),
		v.ShippingCompany, exportDate(v.ShippingDate), exportDate(v.ArrivalDate),
		v.PurchaserName, v.PurchaserPhone, v.AddedByName, exportDate(v.SoldAt),
		v.CreatedAt.UTC().Format(time.RFC3339),
	}
}

// WriteCSV serialises vehicles with the same columns as the workbook.
func WriteCSV(w io.Writer, vehicles []Vehicle) error {
	writer := csv.NewWriter(w)
	defer writer.Flush()

	if err := writer.Write(exportHeaders); err != nil {
		return err
	}
	for _, v := range vehicles {
		cells := exportRow(v)
		record := make([]string, len(cells))
		for i, cell := range cells {
			record[i] = csvCell(cell)
		}
		if err := writer.Write(record); err != nil {
			return err
		}
	}
	writer.Flush()
	return writer.Error()
}

// WriteXLSX writes a single-sheet workbook with a bold header row, frozen
// header and a totals row for the money columns.
func WriteXLSX(w io.Writer, vehicles []Vehicle) error {
	f := excelize.NewFile()
	defer func() { _ = f.Close() }()

	if err := f.SetSheetName("Sheet1", exportSheet); err != nil {
		return err
	}
	header := make([]any, len(exportHeaders))
	for i, h := range exportHeaders {
		header[i] = h
	}
	if err := f.SetSheetRow(exportSheet, "A1", &header); err != nil {
		return err
	}
	for i, v := range vehicles {
		row := exportRow(v)
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		if err := f.SetSheetRow(exportSheet, cell, &row); err != nil {
			return err
		}
	}

	bold, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return err
	}
	lastCol, err := excelize.ColumnNumberToName(len(exportHeaders))
	if err != nil {
		return err
	}
	if err := f.SetCellStyle(exportSheet, "A1", lastCol+"1", bold); err != nil {
		return err
	}

	if len(vehicles) > 0 {
		amount, err := f.NewStyle(&excelize.Style{NumFmt: 4})
		if err != nil {
			return err
		}
		totalRow := len(vehicles) + 2
		if err := f.SetCellValue(exportSheet, "A"+strconv.Itoa(totalRow), "Total"); err != nil {
			return err
		}
		for _, idx := range moneyColumns {
			col, err := excelize.ColumnNumberToName(idx + 1)
			if err != nil {
				return err
			}
			formula := "SUM(" + col + "2:" + col + strconv.Itoa(totalRow-1) + ")"
			if err := f.SetCellFormula(exportSheet, col+strconv.Itoa(totalRow), formula); err != nil {
				return err
			}
			if err := f.SetCellStyle(exportSheet, col+"2", col+strconv.Itoa(totalRow), amount); err != nil {
				return err
			}
		}
		if err := f.SetCellStyle(exportSheet, "A"+strconv.Itoa(totalRow), lastCol+strconv.Itoa(totalRow), bold); err != nil {
			return err
		}
	}

	if err := f.SetPanes(exportSheet, &excelize.Panes{Freeze: true, YSplit: 1, TopLeftCell: "A2", ActivePane: "bottomLeft"}); err != nil {
		return err
	}
	_, err = f.WriteTo(w)
	return err
}

func exportDate(t *time.Time) string {
	if t == nil || t.IsZero() {
		return ""
	}
	return t.Format("2006-01-02")
}

func csvCell(v any) string {
	switch val := v.(type) {
	case string:
		return val
	case int:
		return strconv.Itoa(val)
	case float64:
		return decimal.NewFromFloat(val).StringFixed(2)
	default:
		return ""
	}
}
