package pricing

import (
	"strings"

	"github.com/shopspring/decimal"
)

// Tax line labels. They are matched against item names after trimming and
// upper-casing.
const (
	LabelMunicipalTax = "MUNICIPAL TAX"
	LabelBankCharges  = "BANK CHARGES"
	LabelFederalTax   = "FEDERAL GOVERNMENTAL FINANCIAL TAX"
)

// TaxLabels lists the tax lines in the order they close a PDA.
var TaxLabels = []string{LabelMunicipalTax, LabelBankCharges, LabelFederalTax}

var (
	municipalRate = decimal.RequireFromString("0.05")
	federalRate   = decimal.RequireFromString("0.0038")
	bankCharges   = decimal.NewFromInt(250)
	sameTolerance = decimal.RequireFromString("0.005")
)

// DraftItem is an editable PDA line. AutoCalc false marks a tax line the user
// edited by hand; nil is treated as automatic.
type DraftItem struct {
	ServiceName string `json:"service_name"`
	Value       Amount `json:"value"`
	Currency    string `json:"currency"`
	AutoCalc    *bool  `json:"auto_calc,omitempty"`
}

// Draft is the state tax derivation works on.
type Draft struct {
	ROE   float64
	Items []DraftItem
	// Taxable holds the normalized names of services subject to municipal tax.
	Taxable map[string]bool
	// Suppressed holds tax labels the user removed from this draft.
	Suppressed []string
}

// LabelKey normalizes a service name for comparisons.
func LabelKey(name string) string {
	return strings.ToUpper(strings.TrimSpace(name))
}

// IsTaxLabel reports whether name is one of the derived tax lines.
func IsTaxLabel(name string) bool {
	key := LabelKey(name)
	for _, l := range TaxLabels {
		if key == l {
			return true
		}
	}
	return false
}

// DeriveTaxes recomputes the tax lines of a draft and returns the new item
// list: base items in their original order followed by tax lines in
// TaxLabels order. A draft without items is returned unchanged.
func DeriveTaxes(d Draft) []DraftItem {
	if len(d.Items) == 0 {
		return d.Items
	}

	suppressed := make(map[string]struct{}, len(d.Suppressed))
	for _, l := range d.Suppressed {
		suppressed[LabelKey(l)] = struct{}{}
	}

	base := make([]DraftItem, 0, len(d.Items))
	taxes := make(map[string]DraftItem, len(TaxLabels))
	totalBRL := decimal.Zero
	taxableBRL := decimal.Zero
	for _, it := range d.Items {
		key := LabelKey(it.ServiceName)
		if IsTaxLabel(key) {
			if _, dup := taxes[key]; !dup {
				taxes[key] = it
			}
			continue
		}
		base = append(base, it)
		brl := ToBRL(it.Value.Float64(), it.Currency, d.ROE)
		totalBRL = totalBRL.Add(brl)
		if d.Taxable[key] {
			taxableBRL = taxableBRL.Add(brl)
		}
	}

	computed := map[string]decimal.Decimal{
		LabelMunicipalTax: taxableBRL.Mul(municipalRate),
		LabelBankCharges:  bankCharges,
		LabelFederalTax:   totalBRL.Mul(federalRate),
	}

	out := base
	for _, label := range TaxLabels {
		if _, ok := suppressed[label]; ok {
			continue
		}
		value := computed[label]
		existing, ok := taxes[label]
		switch {
		case ok && existing.AutoCalc != nil && !*existing.AutoCalc:
			out = append(out, existing)
		case ok:
			out = append(out, refreshTax(existing, value))
		case label != LabelBankCharges && !value.IsPositive():
			// nothing to charge
		default:
			out = append(out, newTax(label, value))
		}
	}
	return out
}

func refreshTax(existing DraftItem, value decimal.Decimal) DraftItem {
	cur := decimal.NewFromFloat(existing.Value.Float64())
	if isBRL(existing.Currency) && cur.Sub(value).Abs().LessThan(sameTolerance) {
		return existing
	}
	auto := true
	existing.Value = Amount(value.InexactFloat64())
	existing.Currency = CurrencyBRL
	existing.AutoCalc = &auto
	return existing
}

func newTax(label string, value decimal.Decimal) DraftItem {
	auto := true
	return DraftItem{
		ServiceName: label,
		Value:       Amount(value.InexactFloat64()),
		Currency:    CurrencyBRL,
		AutoCalc:    &auto,
	}
}

// PricedItem is a draft line with both currency values and their pt-BR
// renderings.
type PricedItem struct {
	DraftItem
	ValueBRL   float64 `json:"value_brl"`
	ValueUSD   float64 `json:"value_usd"`
	DisplayBRL string  `json:"display_brl"`
	DisplayUSD string  `json:"display_usd"`
}

// Summary is the rendered draft returned to clients.
type Summary struct {
	Items      []PricedItem `json:"items"`
	TotalBRL   float64      `json:"total_brl"`
	TotalUSD   float64      `json:"total_usd"`
	DisplayBRL string       `json:"display_total_brl"`
	DisplayUSD string       `json:"display_total_usd"`
}

// Summarize converts every item into both currencies and totals them.
func Summarize(items []DraftItem, roe float64) Summary {
	out := Summary{Items: make([]PricedItem, 0, len(items))}
	totalBRL, totalUSD := decimal.Zero, decimal.Zero
	for _, it := range items {
		brl := ToBRL(it.Value.Float64(), it.Currency, roe)
		usd := ToUSD(it.Value.Float64(), it.Currency, roe)
		totalBRL = totalBRL.Add(brl)
		totalUSD = totalUSD.Add(usd)
		out.Items = append(out.Items, PricedItem{
			DraftItem:  it,
			ValueBRL:   brl.InexactFloat64(),
			ValueUSD:   usd.InexactFloat64(),
			DisplayBRL: FormatBRL(brl),
			DisplayUSD: FormatBRL(usd),
		})
	}
	out.TotalBRL = totalBRL.InexactFloat64()
	out.TotalUSD = totalUSD.InexactFloat64()
	out.DisplayBRL = FormatBRL(totalBRL)
	out.DisplayUSD = FormatBRL(totalUSD)
	return out
}
