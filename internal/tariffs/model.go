package tariffs

import (
	"time"

	"github.com/shopspring/decimal"
)

// Tariff is the tax and duty configuration applied to vehicles imported
// from a country. Percentages are stored as whole numbers, 12.5 meaning 12.5%.
type Tariff struct {
	ID             int64           `json:"id"`
	Country        string          `json:"country"`
	TaxPercentage  decimal.Decimal `json:"tax_percentage"`
	DutyPercentage decimal.Decimal `json:"duty_percentage"`
	CreatedAt      time.Time       `json:"created_at"`
	UpdatedAt      time.Time       `json:"updated_at"`
}

// ListFilters narrows the tariff list page.
type ListFilters struct {
	Search  string
	SortBy  string
	SortDir string
}
