package inventory

import (
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/daya-auto/carsale/internal/media"
	"github.com/daya-auto/carsale/internal/shared"
)

const minYear = 1900

// maxAmount is the largest value a NUMERIC(14,2) money column holds.
var maxAmount = decimal.RequireFromString("999999999999.99")

const tooLarge = "Must not exceed 999,999,999,999.99"

var titleCaser = cases.Title(language.English)

func normalizeInput(in Input) Input {
	in.ChassisNumber = strings.ToUpper(strings.TrimSpace(in.ChassisNumber))
	in.Brand = normalizeName(in.Brand)
	in.Model = collapse(in.Model)
	in.Grade = collapse(in.Grade)
	in.Country = collapse(in.Country)
	in.ShippingCompany = collapse(in.ShippingCompany)
	in.PurchaserName = collapse(in.PurchaserName)
	in.PurchaserPhone = strings.TrimSpace(in.PurchaserPhone)
	in.PurchaserIDNumber = strings.TrimSpace(in.PurchaserIDNumber)
	in.PurchaserAddress = strings.TrimSpace(in.PurchaserAddress)
	urls := in.ImageURLs[:0:0]
	for _, u := range in.ImageURLs {
		if u = strings.TrimSpace(u); u != "" {
			urls = append(urls, u)
		}
	}
	in.ImageURLs = urls
	return in
}

func collapse(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// normalizeName title-cases brands typed entirely in lower case and leaves
// deliberate casing such as "BMW" alone.
func normalizeName(s string) string {
	s = collapse(s)
	if s != "" && s == strings.ToLower(s) {
		return titleCaser.String(s)
	}
	return s
}

// validateInput checks in. imageCount is the number of images the vehicle
// would hold afterwards; requireImages enforces at least one.
func validateInput(v *validator.Validate, in Input, now time.Time, imageCount int, requireImages bool) error {
	verr := shared.ValidateStruct(v, in)

	maxYear := now.Year() + 1
	if in.Year < minYear || in.Year > maxYear {
		verr.Add("Year", "Year must be between "+strconv.Itoa(minYear)+" and "+strconv.Itoa(maxYear))
	}

	for field, amount := range map[string]decimal.Decimal{
		"PurchasePrice":  in.PurchasePrice,
		"CIFValue":       in.CIFValue,
		"LCValue":        in.LCValue,
		"SellingPrice":   in.SellingPrice,
		"AdvancePayment": in.AdvancePayment,
		"Price":          in.Price,
		"Tax":            in.Tax,
		"Duty":           in.Duty,
	} {
		switch {
		case amount.IsNegative():
			verr.Add(field, "Must not be negative")
		case amount.Round(2).GreaterThan(maxAmount):
			verr.Add(field, tooLarge)
		}
	}
	if in.AdvancePayment.GreaterThan(in.SellingPrice) && in.SellingPrice.IsPositive() {
		verr.Add("AdvancePayment", "Advance payment cannot exceed the selling price")
	}
	if in.ShippingDate != nil && in.ArrivalDate != nil && in.ArrivalDate.Before(*in.ShippingDate) {
		verr.Add("ArrivalDate", "Arrival date cannot be before the shipping date")
	}

	switch {
	case requireImages && imageCount == 0:
		verr.Add("Images", "Upload at least one image")
	case imageCount > media.MaxVehicleImages:
		verr.Add("Images", "At most "+strconv.Itoa(media.MaxVehicleImages)+" images are allowed")
	}
	return verr.Err()
}

// validateDerived rejects vehicles whose computed totals would not fit the
// money columns even though every input does.
func validateDerived(v Vehicle) error {
	verr := shared.NewValidationError(nil)
	if v.TotalAmount.GreaterThan(maxAmount) {
		verr.Add("CIFValue", "CIF value, tax and duty together must not exceed 999,999,999,999.99")
	}
	if v.NetProfit.Abs().GreaterThan(maxAmount) {
		verr.Add("SellingPrice", "Net profit must stay within ±999,999,999,999.99")
	}
	return verr.Err()
}
