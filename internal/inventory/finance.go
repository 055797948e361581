package inventory

import "github.com/shopspring/decimal"

var hundred = decimal.NewFromInt(100)

// NetProfit is the selling price minus CIF value and tax.
func NetProfit(selling, cif, tax decimal.Decimal) decimal.Decimal {
	return selling.Sub(cif.Add(tax)).Round(2)
}

// RestPayment is what the purchaser still owes after the advance.
func RestPayment(selling, advance decimal.Decimal) decimal.Decimal {
	return selling.Sub(advance).Round(2)
}

// TotalCost is the outcome of applying tax and duty rates to a base value.
type TotalCost struct {
	Tax   decimal.Decimal
	Duty  decimal.Decimal
	Total decimal.Decimal
}

// CalculateTotalCost applies percentage rates to base.
func CalculateTotalCost(base, taxPct, dutyPct decimal.Decimal) TotalCost {
	tax := base.Mul(taxPct).Div(hundred).Round(2)
	duty := base.Mul(dutyPct).Div(hundred).Round(2)
	return TotalCost{Tax: tax, Duty: duty, Total: base.Add(tax).Add(duty).Round(2)}
}

// LandedCost is CIF value plus tax and duty.
func LandedCost(v Vehicle) decimal.Decimal {
	return v.CIFValue.Add(v.Tax).Add(v.Duty).Round(2)
}

// ProfitMargin is net profit as a percentage of selling price, zero when
// nothing was sold.
func ProfitMargin(v Vehicle) decimal.Decimal {
	if v.SellingPrice.IsZero() {
		return decimal.Zero
	}
	return v.NetProfit.Div(v.SellingPrice).Mul(hundred).Round(2)
}

// applyDerived recomputes every server-owned money field of v.
func applyDerived(v *Vehicle) {
	if v.Price.IsZero() {
		v.Price = v.PurchasePrice
	}
	v.NetProfit = NetProfit(v.SellingPrice, v.CIFValue, v.Tax)
	v.RestPayment = RestPayment(v.SellingPrice, v.AdvancePayment)
	v.TotalAmount = LandedCost(*v)
}
