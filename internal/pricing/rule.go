package pricing

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
)

// Method tags the calculation strategy stored next to a rule payload.
type Method string

const (
	MethodFixed       Method = "FIXED"
	MethodFormula     Method = "FORMULA"
	MethodConditional Method = "CONDITIONAL"
)

// ParseMethod normalises a stored method tag.
func ParseMethod(raw string) Method {
	return Method(strings.ToUpper(strings.TrimSpace(raw)))
}

// Valid reports whether m is one of the supported strategies.
func (m Method) Valid() bool {
	switch m {
	case MethodFixed, MethodFormula, MethodConditional:
		return true
	}
	return false
}

// ErrUnknownMethod is returned for method tags outside the supported set.
var ErrUnknownMethod = errors.New("pricing: unknown calculation method")

// ErrMalformedConditional is returned when a conditional payload cannot be decoded.
var ErrMalformedConditional = errors.New("pricing: malformed conditional rule")

// Rule is a parsed pricing strategy: Fixed, Formula, Conditional or Invalid.
type Rule interface {
	Method() Method
	isRule()
}

// Fixed yields a literal amount.
type Fixed struct {
	Value float64
}

// Formula yields the value of an arithmetic expression over the scope.
type Formula struct {
	Expression string
}

// Conditional yields the result of the first matching branch, or Default.
type Conditional struct {
	Branches []Branch
	Default  float64
}

// Branch is one comparison of a Conditional rule.
type Branch struct {
	Variable string  `json:"variable"`
	Operator string  `json:"operator"`
	Value    float64 `json:"value"`
	Result   float64 `json:"result"`
}

// Invalid carries a payload that could not be parsed. Evaluating it always
// fails with Err.
type Invalid struct {
	Tag Method
	Err error
}

func (Fixed) Method() Method       { return MethodFixed }
func (Formula) Method() Method     { return MethodFormula }
func (Conditional) Method() Method { return MethodConditional }
func (r Invalid) Method() Method   { return r.Tag }

func (Fixed) isRule()       {}
func (Formula) isRule()     {}
func (Conditional) isRule() {}
func (Invalid) isRule()     {}

type conditionalBranch struct {
	Variable any `json:"variable"`
	Operator any `json:"operator"`
	Value    any `json:"value"`
	Result   any `json:"result"`
}

type conditionalPayload struct {
	Rules        []*conditionalBranch `json:"rules"`
	DefaultValue any                  `json:"defaultValue"`
}

// ParseRule decodes the (method, formula) column pair into a Rule. It always
// returns a usable Rule; on failure the Rule is Invalid and the error explains
// why.
func ParseRule(method, formula string) (Rule, error) {
	tag := ParseMethod(method)
	switch tag {
	case MethodFixed:
		return Fixed{Value: Normalize(formula)}, nil
	case MethodFormula:
		return Formula{Expression: formula}, nil
	case MethodConditional:
		c, err := parseConditional(formula)
		if err != nil {
			return Invalid{Tag: tag, Err: err}, err
		}
		return c, nil
	default:
		err := fmt.Errorf("%w: %q", ErrUnknownMethod, method)
		return Invalid{Tag: tag, Err: err}, err
	}
}

func parseConditional(formula string) (Conditional, error) {
	dec := json.NewDecoder(strings.NewReader(formula))
	dec.UseNumber()
	var payload conditionalPayload
	if err := dec.Decode(&payload); err != nil {
		return Conditional{}, fmt.Errorf("%w: %v", ErrMalformedConditional, err)
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return Conditional{}, fmt.Errorf("%w: trailing data after payload", ErrMalformedConditional)
	}
	if payload.Rules == nil {
		return Conditional{}, fmt.Errorf("%w: rules missing", ErrMalformedConditional)
	}
	branches := make([]Branch, 0, len(payload.Rules))
	for i, r := range payload.Rules {
		if r == nil {
			return Conditional{}, fmt.Errorf("%w: rule %d is null", ErrMalformedConditional, i)
		}
		branches = append(branches, Branch{
			Variable: stringify(r.Variable),
			Operator: strings.TrimSpace(stringify(r.Operator)),
			Value:    Normalize(r.Value),
			Result:   Normalize(r.Result),
		})
	}
	return Conditional{Branches: branches, Default: Normalize(payload.DefaultValue)}, nil
}

// EncodeConditional renders a Conditional back into its stored JSON payload.
func EncodeConditional(c Conditional) (string, error) {
	type branch struct {
		Variable string  `json:"variable"`
		Operator string  `json:"operator"`
		Value    float64 `json:"value"`
		Result   float64 `json:"result"`
	}
	payload := struct {
		Rules        []branch `json:"rules"`
		DefaultValue float64  `json:"defaultValue"`
	}{Rules: make([]branch, 0, len(c.Branches)), DefaultValue: c.Default}
	for _, b := range c.Branches {
		payload.Rules = append(payload.Rules, branch(b))
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return "", err
	}
	return string(raw), nil
}

func stringify(v any) string {
	switch s := v.(type) {
	case nil:
		return ""
	case string:
		return s
	default:
		return fmt.Sprint(s)
	}
}
