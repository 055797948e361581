package shared

import (
	"strconv"
	"strings"

	"golang.org/x/text/currency"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

var currencySymbols = map[string]string{
	"LKR": "Rs.",
	"USD": "$",
	"JPY": "¥",
	"GBP": "£",
	"EUR": "€",
}

// MoneyFormatter renders amounts for a single currency.
type MoneyFormatter struct {
	symbol  string
	scale   int
	printer *message.Printer
}

// NewMoneyFormatter builds a formatter for an ISO 4217 code, defaulting to LKR.
func NewMoneyFormatter(code string) MoneyFormatter {
	unit, err := currency.ParseISO(strings.ToUpper(strings.TrimSpace(code)))
	if err != nil {
		unit = currency.MustParseISO("LKR")
	}
	scale, _ := currency.Standard.Rounding(unit)
	symbol, ok := currencySymbols[unit.String()]
	if !ok {
		symbol = unit.String()
	}
	return MoneyFormatter{symbol: symbol, scale: scale, printer: message.NewPrinter(language.English)}
}

// Format renders amount with grouping separators, e.g. "Rs. 1,250,000.00".
func (f MoneyFormatter) Format(amount float64) string {
	if f.printer == nil {
		f = NewMoneyFormatter("")
	}
	sign := ""
	if amount < 0 {
		sign = "-"
		amount = -amount
	}
	return sign + f.symbol + " " + f.printer.Sprintf(f.verb(), amount)
}

func (f MoneyFormatter) verb() string {
	return "%." + strconv.Itoa(f.scale) + "f"
}

// Symbol returns the display symbol.
func (f MoneyFormatter) Symbol() string {
	return f.symbol
}
