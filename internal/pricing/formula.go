package pricing

import (
	"errors"
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"

	"github.com/expr-lang/expr"
)

var (
	// ErrUnsafeFormula marks formulas rejected by the denylist filter.
	ErrUnsafeFormula = errors.New("pricing: formula contains forbidden tokens")
	// ErrInvalidFormula marks formulas that fail to compile or run.
	ErrInvalidFormula = errors.New("pricing: invalid formula")
	// ErrNonNumericResult marks formulas whose result is not a number.
	ErrNonNumericResult = errors.New("pricing: formula result is not numeric")
)

var (
	forbiddenTokens = regexp.MustCompile(`(?i);|\bprocess\b|\brequire\b|\bfs\b|\bchild_process\b|\beval\b|\bconsole\b`)
	variableRef     = regexp.MustCompile(`@([A-Za-z_][A-Za-z0-9_]*)`)
)

// IsFormulaSafe applies the token denylist. Empty formulas are never safe.
func IsFormulaSafe(formula string) bool {
	if formula == "" {
		return false
	}
	return !forbiddenTokens.MatchString(formula)
}

// EvaluateFormula evaluates an arithmetic expression against scope. Variables
// are referenced as @NAME; the evaluator only sees the scope values and the
// expression language's pure builtins. Callers decide what an error means.
func EvaluateFormula(formula string, scope Scope) (float64, error) {
	out, err := run(formula, scope)
	if err != nil {
		return 0, err
	}
	switch v := out.(type) {
	case float64:
		return finite(v), nil
	case int:
		return float64(v), nil
	case int64:
		return float64(v), nil
	case float32:
		return finite(float64(v)), nil
	default:
		return 0, fmt.Errorf("%w: %T", ErrNonNumericResult, out)
	}
}

// evaluateCondition runs a literal comparison such as "500 <> 600" and
// reports the truthiness of its result.
func evaluateCondition(left float64, operator string, right float64) (bool, error) {
	src := formatOperand(left) + " " + operator + " " + formatOperand(right)
	out, err := run(src, nil)
	if err != nil {
		return false, err
	}
	switch v := out.(type) {
	case bool:
		return v, nil
	case float64:
		return v != 0, nil
	case int:
		return v != 0, nil
	case nil:
		return false, nil
	default:
		return true, nil
	}
}

func run(formula string, scope Scope) (any, error) {
	src := strings.TrimSpace(formula)
	if src == "" {
		return nil, fmt.Errorf("%w: empty expression", ErrInvalidFormula)
	}
	src = variableRef.ReplaceAllString(src, "${1}")

	env := make(map[string]any, len(scope))
	for name, value := range scope {
		env[strings.TrimPrefix(name, "@")] = value
	}

	opts := append([]expr.Option{expr.Env(env)}, modOperator...)
	program, err := expr.Compile(src, opts...)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidFormula, err)
	}
	out, err := expr.Run(program, env)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidFormula, err)
	}
	return out, nil
}

// modOperator makes % a floored modulo over any numeric operands. The sign
// follows the divisor and x % 0 is x.
var modOperator = []expr.Option{
	expr.Function("mod", func(params ...any) (any, error) {
		x, y := toFloat(params[0]), toFloat(params[1])
		if y == 0 {
			return x, nil
		}
		return x - y*math.Floor(x/y), nil
	},
		new(func(float64, float64) float64),
		new(func(float64, int) float64),
		new(func(int, float64) float64),
		new(func(int, int) float64),
	),
	expr.Operator("%", "mod"),
}

func toFloat(v any) float64 {
	switch n := v.(type) {
	case float64:
		return n
	case int:
		return float64(n)
	case int64:
		return float64(n)
	case float32:
		return float64(n)
	default:
		return math.NaN()
	}
}

func formatOperand(v float64) string {
	s := strconv.FormatFloat(v, 'f', -1, 64)
	if v < 0 {
		return "(" + s + ")"
	}
	return s
}
