// Package calculations stores the per-port pricing rules of each service and
// serves them to the pricing engine.
package calculations

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/portagency/pdadesk/internal/platform/httpx"
	"github.com/portagency/pdadesk/internal/pricing"
)

// Calculation is a stored rule, unique per (port, service, currency, company).
type Calculation struct {
	ID          int64     `json:"id"`
	PortID      int64     `json:"port_id"`
	ServiceID   int64     `json:"service_id"`
	ServiceName string    `json:"service_name"`
	Currency    string    `json:"currency"`
	Formula     string    `json:"formula"`
	Method      string    `json:"calculation_method"`
	CompanyID   int64     `json:"company_id"`
	CreatedAt   time.Time `json:"created_at"`
}

// Rule parses the stored method and payload. An unparseable row yields an
// Invalid rule together with the parse error.
func (c Calculation) Rule() (pricing.Rule, error) {
	return pricing.ParseRule(c.Method, c.Formula)
}

// Priced converts the row into the engine's representation.
func (c Calculation) Priced() pricing.Calculation {
	rule, _ := c.Rule()
	return pricing.Calculation{
		ID:          c.ID,
		ServiceID:   c.ServiceID,
		ServiceName: c.ServiceName,
		Currency:    c.Currency,
		Rule:        rule,
	}
}

// Input is the body of create, upsert and update requests.
type Input struct {
	PortID    int64  `json:"port_id" validate:"required,gt=0"`
	ServiceID int64  `json:"service_id" validate:"required,gt=0"`
	Currency  string `json:"currency" validate:"required,oneof=USD BRL"`
	Formula   string `json:"formula" validate:"required"`
	Method    string `json:"calculation_method" validate:"required,oneof=FIXED FORMULA CONDITIONAL"`
}

// UnmarshalJSON implements json.Unmarshaler. Ids may arrive as numbers or as
// numeric strings from form selects.
func (in *Input) UnmarshalJSON(data []byte) error {
	type plain Input
	aux := struct {
		*plain
		PortID    any `json:"port_id"`
		ServiceID any `json:"service_id"`
	}{plain: (*plain)(in)}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	in.PortID = int64(pricing.Normalize(aux.PortID))
	in.ServiceID = int64(pricing.Normalize(aux.ServiceID))
	return nil
}

// Normalize upper-cases the enum fields and trims the payload.
func (in *Input) Normalize() {
	in.Currency = strings.ToUpper(strings.TrimSpace(in.Currency))
	in.Method = string(pricing.ParseMethod(in.Method))
	in.Formula = strings.TrimSpace(in.Formula)
}

// Validate checks required fields and that conditional payloads decode.
func (in Input) Validate() error {
	if err := httpx.Validate(in); err != nil {
		return err
	}
	if pricing.ParseMethod(in.Method) == pricing.MethodConditional {
		if _, err := pricing.ParseRule(in.Method, in.Formula); err != nil {
			return fmt.Errorf("%w: formula: %v", httpx.ErrValidation, err)
		}
	}
	return nil
}
