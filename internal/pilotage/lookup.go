package pilotage

import (
	"errors"
	"fmt"

	"github.com/portagency/pdadesk/internal/pricing"
)

// ErrNoRange is returned when no band contains the basis value.
var ErrNoRange = errors.New("pilotage: no range covers the basis value")

// BasisValue resolves the tariff's basis against a vessel scope. PU tariffs
// evaluate their formula; a PU tariff without a formula is an error.
func BasisValue(t Tariff, scope pricing.Scope) (float64, error) {
	switch t.Basis {
	case BasisGRT:
		return scope.Lookup(pricing.VarGRT), nil
	case BasisDWT:
		return scope.Lookup(pricing.VarDWT), nil
	case BasisPU:
		if t.PUFormula == nil {
			return 0, fmt.Errorf("pilotage: tariff %s has no pu_formula", t.TagName)
		}
		if !pricing.IsFormulaSafe(*t.PUFormula) {
			return 0, pricing.ErrUnsafeFormula
		}
		return pricing.EvaluateFormula(*t.PUFormula, scope)
	default:
		return 0, fmt.Errorf("pilotage: unknown basis %q", t.Basis)
	}
}

// Lookup returns the first range, in the given order, containing value.
// Ranges are expected sorted by range_start.
func Lookup(ranges []Range, value float64) (Range, error) {
	for _, r := range ranges {
		if r.Contains(value) {
			return r, nil
		}
	}
	return Range{}, ErrNoRange
}
