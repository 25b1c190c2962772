package pricing

import (
	"github.com/shopspring/decimal"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

// FormatBRL renders an amount the way Brazilian invoices print it, with two
// decimals, a comma separator and dot grouping: 1.234,50.
func FormatBRL(v decimal.Decimal) string {
	p := message.NewPrinter(language.BrazilianPortuguese)
	return p.Sprintf("%.2f", v.Round(2).InexactFloat64())
}
