// Package pda prices vessel port calls and persists the resulting
// Proforma Disbursement Accounts.
package pda

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/portagency/pdadesk/internal/masterdata"
	"github.com/portagency/pdadesk/internal/pilotage"
	"github.com/portagency/pdadesk/internal/platform/httpx"
	"github.com/portagency/pdadesk/internal/pricing"
)

// Ref is an entity id that clients send either as a number or as a numeric
// string. Anything unparseable decodes to 0.
type Ref int64

// UnmarshalJSON implements json.Unmarshaler.
func (r *Ref) UnmarshalJSON(data []byte) error {
	var raw any
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*r = Ref(int64(pricing.Normalize(raw)))
	return nil
}

// Timestamp is an optional voyage time. Empty strings and null decode to the
// zero value, which is stored as NULL.
type Timestamp struct {
	time.Time
}

var timestampLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// UnmarshalJSON implements json.Unmarshaler.
func (t *Timestamp) UnmarshalJSON(data []byte) error {
	if bytes.Equal(data, []byte("null")) {
		*t = Timestamp{}
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	s = strings.TrimSpace(s)
	if s == "" {
		*t = Timestamp{}
		return nil
	}
	for _, layout := range timestampLayouts {
		if parsed, err := time.Parse(layout, s); err == nil {
			*t = Timestamp{Time: parsed}
			return nil
		}
	}
	return fmt.Errorf("unrecognised timestamp %q", s)
}

// MarshalJSON implements json.Marshaler.
func (t Timestamp) MarshalJSON() ([]byte, error) {
	if t.IsZero() {
		return []byte("null"), nil
	}
	return json.Marshal(t.Time)
}

// Ptr returns nil for the zero value, for nullable columns.
func (t Timestamp) Ptr() *time.Time {
	if t.IsZero() {
		return nil
	}
	v := t.Time
	return &v
}

func timestampOf(v *time.Time) Timestamp {
	if v == nil {
		return Timestamp{}
	}
	return Timestamp{Time: *v}
}

// Ship is the vessel record the engine reads.
type Ship struct {
	ID    int64    `json:"id"`
	Name  string   `json:"name"`
	DWT   *float64 `json:"dwt"`
	GRT   *float64 `json:"grt"`
	NET   *float64 `json:"net"`
	LOA   *float64 `json:"loa"`
	Beam  *float64 `json:"beam"`
	Draft *float64 `json:"draft"`
	Depth *float64 `json:"depth"`
	Flag  *string  `json:"flag"`
	Year  *int     `json:"year"`
}

// Vessel extracts the pricing attributes of the ship.
func (s Ship) Vessel() pricing.Vessel {
	return pricing.Vessel{
		DWT:   s.DWT,
		GRT:   s.GRT,
		NET:   s.NET,
		LOA:   s.LOA,
		Beam:  s.Beam,
		Draft: s.Draft,
		Depth: s.Depth,
		Year:  s.Year,
	}
}

// Port is the port of call.
type Port struct {
	ID       int64   `json:"id"`
	Name     string  `json:"name"`
	Terminal *string `json:"terminal"`
	Berth    *string `json:"berth"`
}

// Client is the party the PDA is addressed to.
type Client struct {
	ID        int64   `json:"id"`
	Name      string  `json:"name"`
	PONumber  *string `json:"po_number"`
	VATNumber *string `json:"vat_number"`
	Address   *string `json:"address"`
}

// CalculateRequest is the body of POST /calculate.
type CalculateRequest struct {
	ShipID     Ref            `json:"ship_id"`
	PortID     Ref            `json:"port_id"`
	ClientID   Ref            `json:"client_id"`
	ROE        pricing.Amount `json:"roe"`
	TotalCargo pricing.Amount `json:"totalCargo"`
	Cargo      string         `json:"cargo"`
	PDANumber  string         `json:"pdaNumber"`
	ETA        Timestamp      `json:"eta"`
	ETB        Timestamp      `json:"etb"`
	ETD        Timestamp      `json:"etd"`
}

// Validate checks the mandatory voyage inputs.
func (in CalculateRequest) Validate() error {
	if in.ShipID <= 0 || in.PortID <= 0 || in.ClientID <= 0 || in.ROE.Float64() == 0 {
		return fmt.Errorf("%w: ship, port, client and ROE are required", httpx.ErrValidation)
	}
	return nil
}

// Preview is a priced but unsaved PDA.
type Preview struct {
	Ship            Ship                `json:"ship"`
	Port            Port                `json:"port"`
	Client          Client              `json:"client"`
	ROE             float64             `json:"roe"`
	Items           []pricing.LineItem  `json:"items"`
	Remarks         []masterdata.Remark `json:"remarks"`
	PilotageTariffs []pilotage.Tariff   `json:"pilotage_tariffs"`
	PDANumber       string              `json:"pdaNumber"`
	Cargo           string              `json:"cargo"`
	TotalCargo      float64             `json:"totalCargo"`
	ETA             Timestamp           `json:"eta"`
	ETB             Timestamp           `json:"etb"`
	ETD             Timestamp           `json:"etd"`
}

type entityRef struct {
	ID Ref `json:"id"`
}

// Draft is an edited preview submitted for saving.
type Draft struct {
	PDANumber  string              `json:"pdaNumber"`
	Ship       entityRef           `json:"ship"`
	Port       entityRef           `json:"port"`
	Client     entityRef           `json:"client"`
	ROE        pricing.Amount      `json:"roe"`
	Cargo      string              `json:"cargo"`
	TotalCargo pricing.Amount      `json:"totalCargo"`
	ETA        Timestamp           `json:"eta"`
	ETB        Timestamp           `json:"etb"`
	ETD        Timestamp           `json:"etd"`
	Items      []pricing.DraftItem `json:"items"`
}

// SaveRequest is the body of POST /save.
type SaveRequest struct {
	PDAData *Draft `json:"pdaData"`

	// IdempotencyKey comes from the Idempotency-Key header.
	IdempotencyKey string `json:"-"`
}

// Validate checks that the draft references its ship, port and client.
func (in SaveRequest) Validate() error {
	if in.PDAData == nil {
		return fmt.Errorf("%w: pdaData is required", httpx.ErrValidation)
	}
	d := in.PDAData
	if d.Ship.ID <= 0 || d.Port.ID <= 0 || d.Client.ID <= 0 {
		return fmt.Errorf("%w: ship, port and client are required", httpx.ErrValidation)
	}
	for i, it := range d.Items {
		if strings.TrimSpace(it.ServiceName) == "" {
			return fmt.Errorf("%w: item %d has no service_name", httpx.ErrValidation, i)
		}
	}
	return nil
}

// Header is the pdas row written by Save.
type Header struct {
	PDANumber  string
	ShipID     int64
	ClientID   int64
	PortID     int64
	ROE        float64
	CompanyID  int64
	Cargo      string
	TotalCargo float64
	ETA        *time.Time
	ETB        *time.Time
	ETD        *time.Time
}

// Line is one pda_items row.
type Line struct {
	ServiceName string
	Value       float64
	Currency    string
}

// Summary is a row of the PDA listing.
type Summary struct {
	ID           int64     `json:"id"`
	PDANumber    string    `json:"pda_number"`
	CreatedAt    time.Time `json:"created_at"`
	ClientName   string    `json:"client_name"`
	ShipName     string    `json:"ship_name"`
	PortName     string    `json:"port_name"`
	PortTerminal *string   `json:"port_terminal"`
}

// Item is a persisted PDA line.
type Item struct {
	ID          int64   `json:"id"`
	PDAID       int64   `json:"pda_id"`
	ServiceName string  `json:"service_name"`
	Value       float64 `json:"value"`
	Currency    string  `json:"currency"`
}

// Detail is a persisted PDA with its parties, lines and port remarks.
type Detail struct {
	ID         int64               `json:"id"`
	Ship       Ship                `json:"ship"`
	Port       Port                `json:"port"`
	Client     Client              `json:"client"`
	ROE        float64             `json:"roe"`
	Items      []Item              `json:"items"`
	Remarks    []masterdata.Remark `json:"remarks"`
	PDANumber  string              `json:"pda_number"`
	Cargo      string              `json:"cargo"`
	TotalCargo float64             `json:"totalCargo"`
	ETA        Timestamp           `json:"eta"`
	ETB        Timestamp           `json:"etb"`
	ETD        Timestamp           `json:"etd"`
	CreatedAt  time.Time           `json:"created_at"`
}

// TaxRequest is the body of POST /taxes.
type TaxRequest struct {
	ROE        pricing.Amount      `json:"roe"`
	Items      []pricing.DraftItem `json:"items"`
	Suppressed []string            `json:"suppressed"`
}

// TaxResult is the draft after tax derivation, with conversions.
type TaxResult struct {
	pricing.Summary
	Suppressed []string `json:"suppressed"`
}
