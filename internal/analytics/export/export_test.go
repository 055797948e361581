package export

import (
	"bytes"
	"encoding/csv"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/daya-auto/carsale/internal/analytics"
)

func TestWriteSummaryCSV(t *testing.T) {
	summary := analytics.Summary{
		TotalVehicles:   2,
		InventoryValue:  decimal.NewFromInt(5_000_000),
		PotentialProfit: decimal.NewFromInt(800_000),
		AveragePrice:    decimal.NewFromInt(2_500_000),
		Status:          analytics.StatusCounts{Available: 1, Sold: 1},
		SalesByMonth:    []analytics.MonthlySales{{Month: "2025-06", Count: 1, Revenue: decimal.NewFromInt(3_000_000)}},
		TopModels:       []analytics.ModelRevenue{{Brand: "Toyota", Model: "Aqua", Count: 1, Revenue: decimal.NewFromInt(3_000_000)}},
		BrandMargins:    []analytics.BrandMargin{{Brand: "Toyota", Count: 1, Revenue: decimal.NewFromInt(3_000_000), NetProfit: decimal.NewFromInt(600_000), Margin: decimal.NewFromInt(20)}},
		GeneratedAt:     time.Date(2025, 6, 1, 9, 30, 0, 0, time.UTC),
	}

	buf := &bytes.Buffer{}
	require.NoError(t, WriteSummaryCSV(buf, summary))

	reader := csv.NewReader(bytes.NewReader(buf.Bytes()))
	reader.FieldsPerRecord = -1
	records, err := reader.ReadAll()
	require.NoError(t, err)

	assert.Equal(t, []string{"Metric", "Value"}, records[0])
	assert.Equal(t, []string{"Inventory Value", "5000000.00"}, records[3])
	assert.Contains(t, records, []string{"2025-06", "1", "3000000.00"})
	assert.Contains(t, records, []string{"Toyota", "Aqua", "1", "3000000.00"})
	assert.Contains(t, records, []string{"Toyota", "1", "3000000.00", "600000.00", "20.00"})
}
