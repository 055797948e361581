package analytics

import (
	"time"

	"github.com/shopspring/decimal"
)

const (
	// SalesWindowMonths is how many calendar months the sales trend covers,
	// the current month included.
	SalesWindowMonths = 6
	// TopLimit caps the top models and brand margin rankings.
	TopLimit = 5
)

// Summary is the admin analytics snapshot of the whole inventory.
type Summary struct {
	TotalVehicles   int             `json:"total_vehicles"`
	InventoryValue  decimal.Decimal `json:"inventory_value"`
	PotentialProfit decimal.Decimal `json:"potential_profit"`
	AveragePrice    decimal.Decimal `json:"average_price"`
	Status          StatusCounts    `json:"status"`
	SalesByMonth    []MonthlySales  `json:"sales_by_month"`
	TopModels       []ModelRevenue  `json:"top_models"`
	BrandMargins    []BrandMargin   `json:"brand_margins"`
	GeneratedAt     time.Time       `json:"generated_at"`
}

// StatusCounts breaks the inventory down by status.
type StatusCounts struct {
	Available int `json:"available"`
	Reserved  int `json:"reserved"`
	Sold      int `json:"sold"`
}

// MonthlySales counts vehicles sold within one calendar month.
type MonthlySales struct {
	Month   string          `json:"month"`
	Label   string          `json:"label"`
	Count   int             `json:"count"`
	Revenue decimal.Decimal `json:"revenue"`
}

// ModelRevenue aggregates selling prices for one brand and model.
type ModelRevenue struct {
	Brand   string          `json:"brand"`
	Model   string          `json:"model"`
	Count   int             `json:"count"`
	Revenue decimal.Decimal `json:"revenue"`
}

// Name is the label shown in rankings.
func (m ModelRevenue) Name() string {
	return m.Brand + " " + m.Model
}

// BrandMargin is net profit as a percentage of selling price for a brand.
type BrandMargin struct {
	Brand     string          `json:"brand"`
	Count     int             `json:"count"`
	Revenue   decimal.Decimal `json:"revenue"`
	NetProfit decimal.Decimal `json:"net_profit"`
	Margin    decimal.Decimal `json:"margin"`
}
