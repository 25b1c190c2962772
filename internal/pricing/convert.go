package pricing

import (
	"strings"

	"github.com/shopspring/decimal"
)

// CurrencyBRL and CurrencyUSD are the two currencies a PDA is quoted in.
const (
	CurrencyBRL = "BRL"
	CurrencyUSD = "USD"
)

func isBRL(currency string) bool {
	return strings.EqualFold(strings.TrimSpace(currency), CurrencyBRL)
}

// ToBRL converts value to reais. Non-BRL values are treated as USD and
// multiplied by roe; a zero roe yields zero.
func ToBRL(value float64, currency string, roe float64) decimal.Decimal {
	v := decimal.NewFromFloat(finite(value))
	if isBRL(currency) {
		return v
	}
	r := decimal.NewFromFloat(finite(roe))
	if r.IsZero() {
		return decimal.Zero
	}
	return v.Mul(r)
}

// ToUSD converts value to dollars. BRL values are divided by roe; a zero roe
// yields zero.
func ToUSD(value float64, currency string, roe float64) decimal.Decimal {
	v := decimal.NewFromFloat(finite(value))
	if !isBRL(currency) {
		return v
	}
	r := decimal.NewFromFloat(finite(roe))
	if r.IsZero() {
		return decimal.Zero
	}
	return v.Div(r)
}
