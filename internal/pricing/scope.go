package pricing

// Scope maps @-prefixed variable names to their numeric values.
type Scope map[string]float64

// Scope variable names.
const (
	VarDWT        = "@DWT"
	VarGRT        = "@GRT"
	VarNET        = "@NET"
	VarLOA        = "@LOA"
	VarBeam       = "@BEAM"
	VarDraft      = "@DRAFT"
	VarDepth      = "@DEPTH"
	VarYear       = "@YEAR"
	VarTotalCargo = "@TOTAL_CARGO"
	VarROE        = "@ROE"
)

// Variables lists the scope names in display order.
var Variables = []string{VarDWT, VarGRT, VarNET, VarLOA, VarBeam, VarDraft, VarDepth, VarYear, VarTotalCargo, VarROE}

// Vessel carries the ship attributes that feed the pricing scope.
type Vessel struct {
	DWT   *float64
	GRT   *float64
	NET   *float64
	LOA   *float64
	Beam  *float64
	Draft *float64
	Depth *float64
	Year  *int
}

// Voyage carries the per-call inputs that feed the pricing scope.
type Voyage struct {
	TotalCargo float64
	ROE        float64
}

// NewScope builds the variable scope for a vessel call. A missing or zero
// draft falls back to the depth.
func NewScope(v Vessel, voyage Voyage) Scope {
	draft := Normalize(v.Draft)
	if draft == 0 {
		draft = Normalize(v.Depth)
	}
	return Scope{
		VarDWT:        Normalize(v.DWT),
		VarGRT:        Normalize(v.GRT),
		VarNET:        Normalize(v.NET),
		VarLOA:        Normalize(v.LOA),
		VarBeam:       Normalize(v.Beam),
		VarDraft:      draft,
		VarDepth:      Normalize(v.Depth),
		VarYear:       Normalize(v.Year),
		VarTotalCargo: finite(voyage.TotalCargo),
		VarROE:        finite(voyage.ROE),
	}
}

// Lookup resolves a variable, treating missing names as 0.
func (s Scope) Lookup(name string) float64 {
	return finite(s[name])
}
