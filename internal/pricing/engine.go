package pricing

import (
	"context"
	"fmt"
	"log/slog"
)

// Calculation is a parsed pricing rule attached to a service at a port.
type Calculation struct {
	ID          int64
	ServiceID   int64
	ServiceName string
	Currency    string
	Rule        Rule
}

// LineItem is one priced service of a PDA.
type LineItem struct {
	ServiceName string  `json:"service_name"`
	Value       float64 `json:"value"`
	Currency    string  `json:"currency"`
}

// Input groups everything the engine prices in a single call.
type Input struct {
	Scope        Scope
	Linked       map[int64]struct{}
	Calculations []Calculation
}

// Engine evaluates calculation rules. A rule that fails to evaluate prices at
// zero and is logged; it never fails the whole PDA.
type Engine struct {
	logger  *slog.Logger
	metrics *Metrics
}

// NewEngine constructs an Engine. Metrics may be nil.
func NewEngine(logger *slog.Logger, metrics *Metrics) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{logger: logger, metrics: metrics}
}

// Price evaluates every calculation whose service is linked to the port, in
// input order.
func (e *Engine) Price(ctx context.Context, in Input) []LineItem {
	items := make([]LineItem, 0, len(in.Calculations))
	for _, calc := range in.Calculations {
		if _, ok := in.Linked[calc.ServiceID]; !ok {
			continue
		}
		value, err := Evaluate(calc.Rule, in.Scope)
		if err != nil {
			method := MethodFormula
			if calc.Rule != nil {
				method = calc.Rule.Method()
			}
			e.logger.WarnContext(ctx, "calculation evaluated to zero",
				slog.Int64("calculation_id", calc.ID),
				slog.String("service", calc.ServiceName),
				slog.String("method", string(method)),
				slog.Any("error", err),
			)
			e.metrics.observeFailure(method)
			value = 0
		}
		items = append(items, LineItem{
			ServiceName: calc.ServiceName,
			Value:       Normalize(value),
			Currency:    calc.Currency,
		})
	}
	return items
}

// Evaluate computes a single rule against scope.
func Evaluate(rule Rule, scope Scope) (float64, error) {
	switch r := rule.(type) {
	case Fixed:
		return finite(r.Value), nil
	case Formula:
		if !IsFormulaSafe(r.Expression) {
			return 0, ErrUnsafeFormula
		}
		return EvaluateFormula(r.Expression, scope)
	case Conditional:
		return r.resolve(scope), nil
	case Invalid:
		return 0, r.Err
	case nil:
		return 0, fmt.Errorf("%w: nil rule", ErrUnknownMethod)
	default:
		return 0, fmt.Errorf("%w: %T", ErrUnknownMethod, rule)
	}
}

func (c Conditional) resolve(scope Scope) float64 {
	for _, b := range c.Branches {
		if b.matches(scope) {
			return b.Result
		}
	}
	return c.Default
}

func (b Branch) matches(scope Scope) bool {
	left := scope.Lookup(b.Variable)
	right := b.Value
	switch b.Operator {
	case ">":
		return left > right
	case "<":
		return left < right
	case ">=":
		return left >= right
	case "<=":
		return left <= right
	case "==", "===":
		return left == right
	case "!=", "!==":
		return left != right
	default:
		ok, err := evaluateCondition(left, b.Operator, right)
		return err == nil && ok
	}
}
