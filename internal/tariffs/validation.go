package tariffs

import (
	"strings"

	"github.com/shopspring/decimal"

	"github.com/daya-auto/carsale/internal/shared"
)

var maxPercentage = decimal.NewFromInt(1000)

func normalize(t Tariff) Tariff {
	t.Country = strings.Join(strings.Fields(t.Country), " ")
	t.TaxPercentage = t.TaxPercentage.Round(2)
	t.DutyPercentage = t.DutyPercentage.Round(2)
	return t
}

func validate(t Tariff) error {
	verr := shared.NewValidationError(nil)
	if t.Country == "" {
		verr.Add("Country", "Country is required")
	} else if len(t.Country) > 80 {
		verr.Add("Country", "Country must be at most 80 characters")
	}
	checkPercentage(verr, "TaxPercentage", t.TaxPercentage)
	checkPercentage(verr, "DutyPercentage", t.DutyPercentage)
	return verr.Err()
}

func checkPercentage(verr *shared.ValidationError, field string, v decimal.Decimal) {
	if v.IsNegative() {
		verr.Add(field, "Must not be negative")
	} else if v.GreaterThan(maxPercentage) {
		verr.Add(field, "Must be at most 1000")
	}
}

// ParsePercentage reads a form value, treating blank input as zero.
func ParsePercentage(raw string) (decimal.Decimal, error) {
	raw = strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(raw), "%"))
	if raw == "" {
		return decimal.Zero, nil
	}
	return decimal.NewFromString(raw)
}
