package calculations

import (
	"net/http"

	"github.com/invopop/jsonschema"

	"github.com/portagency/pdadesk/internal/platform/httpx"
	"github.com/portagency/pdadesk/internal/pricing"
)

// conditionalDoc mirrors the stored CONDITIONAL payload for schema generation.
type conditionalDoc struct {
	Rules        []conditionalBranch `json:"rules" jsonschema:"required" jsonschema_description:"Branches tried in order; the first match wins."`
	DefaultValue string              `json:"defaultValue,omitempty" jsonschema_description:"Amount used when no branch matches. Accepts 1.234,56 style numbers."`
}

type conditionalBranch struct {
	Variable string `json:"variable" jsonschema:"required" jsonschema_description:"Scope variable compared on the left."`
	Operator string `json:"operator" jsonschema:"required"`
	Value    string `json:"value" jsonschema:"required" jsonschema_description:"Right-hand amount."`
	Result   string `json:"result" jsonschema:"required" jsonschema_description:"Amount charged when the branch matches."`
}

// JSONSchemaExtend pins the variable and operator vocabularies.
func (conditionalBranch) JSONSchemaExtend(s *jsonschema.Schema) {
	if v, ok := s.Properties.Get("variable"); ok {
		v.Enum = toAny(pricing.Variables)
	}
	if op, ok := s.Properties.Get("operator"); ok {
		op.Enum = toAny([]string{">", "<", ">=", "<=", "==", "===", "!=", "!=="})
	}
}

func toAny(values []string) []any {
	out := make([]any, len(values))
	for i, v := range values {
		out[i] = v
	}
	return out
}

// RuleSchema describes the editor vocabulary for calculation rules.
type RuleSchema struct {
	Methods     []pricing.Method   `json:"methods"`
	Variables   []string           `json:"variables"`
	Conditional *jsonschema.Schema `json:"conditional"`
}

// NewRuleSchema reflects the conditional payload schema.
func NewRuleSchema() RuleSchema {
	reflector := jsonschema.Reflector{
		AllowAdditionalProperties: false,
		DoNotReference:            true,
	}
	return RuleSchema{
		Methods:     []pricing.Method{pricing.MethodFixed, pricing.MethodFormula, pricing.MethodConditional},
		Variables:   pricing.Variables,
		Conditional: reflector.Reflect(conditionalDoc{}),
	}
}

func (h *Handler) schema(w http.ResponseWriter, _ *http.Request) {
	httpx.JSON(w, http.StatusOK, h.ruleSchema)
}
