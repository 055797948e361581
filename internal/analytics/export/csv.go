package export

import (
	"encoding/csv"
	"io"
	"strconv"

	"github.com/daya-auto/carsale/internal/analytics"
)

// WriteSummaryCSV serialises the headline figures, the status breakdown and
// each ranking as consecutive CSV sections separated by a blank record.
func WriteSummaryCSV(w io.Writer, s analytics.Summary) error {
	writer := csv.NewWriter(w)
	// A single empty field separates sections.
	blank := []string{""}

	records := [][]string{
		{"Metric", "Value"},
		{"Generated At", s.GeneratedAt.Format("2006-01-02 15:04 MST")},
		{"Total Vehicles", strconv.Itoa(s.TotalVehicles)},
		{"Inventory Value", s.InventoryValue.StringFixed(2)},
		{"Potential Profit", s.PotentialProfit.StringFixed(2)},
		{"Average Price", s.AveragePrice.StringFixed(2)},
		{"Available", strconv.Itoa(s.Status.Available)},
		{"Reserved", strconv.Itoa(s.Status.Reserved)},
		{"Sold", strconv.Itoa(s.Status.Sold)},
		blank,
		{"Month", "Vehicles Sold", "Revenue"},
	}
	for _, m := range s.SalesByMonth {
		records = append(records, []string{m.Month, strconv.Itoa(m.Count), m.Revenue.StringFixed(2)})
	}
	records = append(records, blank, []string{"Brand", "Model", "Vehicles", "Revenue"})
	for _, m := range s.TopModels {
		records = append(records, []string{m.Brand, m.Model, strconv.Itoa(m.Count), m.Revenue.StringFixed(2)})
	}
	records = append(records, blank, []string{"Brand", "Vehicles", "Revenue", "Net Profit", "Margin %"})
	for _, b := range s.BrandMargins {
		records = append(records, []string{b.Brand, strconv.Itoa(b.Count), b.Revenue.StringFixed(2), b.NetProfit.StringFixed(2), b.Margin.StringFixed(2)})
	}

	if err := writer.WriteAll(records); err != nil {
		return err
	}
	return writer.Error()
}
