// Package pilotage manages pilotage tariffs: per-port tables whose ranges map
// a vessel basis value (GRT, DWT or a derived PU figure) to a charge.
package pilotage

import (
	"fmt"
	"strings"
	"time"

	"github.com/portagency/pdadesk/internal/platform/httpx"
	"github.com/portagency/pdadesk/internal/pricing"
)

// Basis is the vessel attribute a tariff's ranges are keyed on.
type Basis string

const (
	BasisGRT Basis = "GRT"
	BasisDWT Basis = "DWT"
	BasisPU  Basis = "PU"
)

// Tariff is a pilotage table, unique per port and per tag within a company.
type Tariff struct {
	ID           int64     `json:"id"`
	Name         string    `json:"name"`
	TagName      string    `json:"tag_name"`
	Basis        Basis     `json:"basis"`
	PUFormula    *string   `json:"pu_formula"`
	PortID       int64     `json:"port_id"`
	CompanyID    int64     `json:"company_id"`
	PortName     string    `json:"port_name,omitempty"`
	PortTerminal *string   `json:"port_terminal,omitempty"`
	PortBerth    *string   `json:"port_berth,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
}

// Range is one band of a tariff. Bounds are inclusive.
type Range struct {
	ID         int64   `json:"id"`
	TariffID   int64   `json:"tariff_id"`
	RangeStart float64 `json:"range_start"`
	RangeEnd   float64 `json:"range_end"`
	Value      float64 `json:"value"`
}

// Contains reports whether v falls inside the band.
func (r Range) Contains(v float64) bool {
	return v >= r.RangeStart && v <= r.RangeEnd
}

// TariffInput is the body of a tariff save. A non-zero ID updates.
type TariffInput struct {
	ID        int64   `json:"id"`
	Name      string  `json:"name" validate:"required"`
	TagName   string  `json:"tag_name" validate:"required"`
	Basis     Basis   `json:"basis" validate:"required,oneof=GRT DWT PU"`
	PUFormula *string `json:"pu_formula"`
	PortID    int64   `json:"port_id" validate:"required,gt=0"`
}

// Normalize trims text fields and upper-cases the tag and basis.
func (in *TariffInput) Normalize() {
	in.Name = strings.TrimSpace(in.Name)
	in.TagName = strings.ToUpper(strings.TrimSpace(in.TagName))
	in.Basis = Basis(strings.ToUpper(strings.TrimSpace(string(in.Basis))))
	if in.PUFormula != nil {
		f := strings.TrimSpace(*in.PUFormula)
		if f == "" || in.Basis != BasisPU {
			in.PUFormula = nil
		} else {
			in.PUFormula = &f
		}
	}
}

// Validate checks required fields and the PU formula's safety.
func (in TariffInput) Validate() error {
	if err := httpx.Validate(in); err != nil {
		return err
	}
	if in.PUFormula != nil && !pricing.IsFormulaSafe(*in.PUFormula) {
		return fmt.Errorf("%w: pu_formula contains forbidden tokens", httpx.ErrValidation)
	}
	return nil
}

// RangeInput is one submitted band. Values accept pt-BR formatted strings.
type RangeInput struct {
	RangeStart pricing.Amount `json:"range_start"`
	RangeEnd   pricing.Amount `json:"range_end"`
	Value      pricing.Amount `json:"value"`
}

// ReplaceRangesInput is the body of a wholesale range save.
type ReplaceRangesInput struct {
	Ranges []RangeInput `json:"ranges"`
}

// Validate rejects a missing ranges array and inverted bands.
func (in ReplaceRangesInput) Validate() error {
	if in.Ranges == nil {
		return fmt.Errorf("%w: ranges is required", httpx.ErrValidation)
	}
	for i, r := range in.Ranges {
		if r.RangeStart > r.RangeEnd {
			return fmt.Errorf("%w: ranges[%d]: range_start exceeds range_end", httpx.ErrValidation, i)
		}
	}
	return nil
}
