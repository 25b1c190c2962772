package pricing

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestEngine(t *testing.T) (*Engine, *Metrics) {
	t.Helper()
	metrics := NewMetrics(prometheus.NewRegistry())
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewEngine(logger, metrics), metrics
}

func mustRule(t *testing.T, method, formula string) Rule {
	t.Helper()
	rule, err := ParseRule(method, formula)
	require.NoError(t, err)
	return rule
}

func TestEvaluateFixed(t *testing.T) {
	v, err := Evaluate(mustRule(t, "FIXED", "150"), Scope{VarDWT: 99999})
	require.NoError(t, err)
	assert.Equal(t, 150.0, v)
}

func TestEvaluateFormulaRule(t *testing.T) {
	v, err := Evaluate(mustRule(t, "FORMULA", "@DWT * 1.25"), Scope{VarDWT: 1000})
	require.NoError(t, err)
	assert.Equal(t, 1250.0, v)

	v, err = Evaluate(mustRule(t, "FORMULA", "require('fs')"), Scope{})
	assert.ErrorIs(t, err, ErrUnsafeFormula)
	assert.Equal(t, 0.0, v)
}

func TestEvaluateConditional(t *testing.T) {
	rule := mustRule(t, "CONDITIONAL", `{"rules":[{"variable":"@GRT","operator":"<=","value":"500","result":"100"}],"defaultValue":"200"}`)

	v, err := Evaluate(rule, Scope{VarGRT: 500})
	require.NoError(t, err)
	assert.Equal(t, 100.0, v)

	v, err = Evaluate(rule, Scope{VarGRT: 600})
	require.NoError(t, err)
	assert.Equal(t, 200.0, v)
}

func TestEvaluateConditionalFirstMatchWins(t *testing.T) {
	rule := mustRule(t, "CONDITIONAL", `{"rules":[
		{"variable":"@GRT","operator":">","value":"100","result":"10"},
		{"variable":"@GRT","operator":">","value":"1000","result":"20"}
	],"defaultValue":"0"}`)

	v, err := Evaluate(rule, Scope{VarGRT: 5000})
	require.NoError(t, err)
	assert.Equal(t, 10.0, v)
}

func TestEvaluateConditionalOperators(t *testing.T) {
	cases := []struct {
		op    string
		left  float64
		match bool
	}{
		{">", 11, true},
		{"<", 9, true},
		{">=", 10, true},
		{"<=", 10, true},
		{"==", 10, true},
		{"===", 10, true},
		{"!=", 10, false},
		{"!==", 11, true},
		{"<>", 10, false},
	}
	for _, tc := range cases {
		c := Conditional{Branches: []Branch{{Variable: VarDWT, Operator: tc.op, Value: 10, Result: 1}}, Default: 2}
		want := 2.0
		if tc.match {
			want = 1.0
		}
		v, err := Evaluate(c, Scope{VarDWT: tc.left})
		require.NoError(t, err)
		assert.Equal(t, want, v, "operator %s", tc.op)
	}
}

func TestEvaluateConditionalMissingVariableIsZero(t *testing.T) {
	c := Conditional{Branches: []Branch{{Variable: "@NOPE", Operator: "==", Value: 0, Result: 7}}, Default: 1}
	v, err := Evaluate(c, Scope{})
	require.NoError(t, err)
	assert.Equal(t, 7.0, v)
}

func TestPriceSkipsUnlinkedServices(t *testing.T) {
	engine, _ := newTestEngine(t)
	in := Input{
		Scope:  Scope{VarDWT: 1000},
		Linked: map[int64]struct{}{1: {}},
		Calculations: []Calculation{
			{ID: 1, ServiceID: 1, ServiceName: "AGENCY FEE", Currency: "USD", Rule: Fixed{Value: 150}},
			{ID: 2, ServiceID: 2, ServiceName: "MOORING", Currency: "BRL", Rule: Fixed{Value: 999}},
			{ID: 3, ServiceID: 2, ServiceName: "MOORING", Currency: "USD", Rule: Formula{Expression: "@DWT"}},
		},
	}

	items := engine.Price(context.Background(), in)
	require.Len(t, items, 1)
	assert.Equal(t, LineItem{ServiceName: "AGENCY FEE", Value: 150, Currency: "USD"}, items[0])
}

func TestPriceCollapsesFailuresToZero(t *testing.T) {
	engine, metrics := newTestEngine(t)
	invalid, _ := ParseRule("CONDITIONAL", "oops")
	in := Input{
		Scope:  Scope{VarDWT: 1000},
		Linked: map[int64]struct{}{1: {}, 2: {}, 3: {}, 4: {}},
		Calculations: []Calculation{
			{ID: 1, ServiceID: 1, ServiceName: "BLOCKED", Currency: "BRL", Rule: Formula{Expression: "require('fs')"}},
			{ID: 2, ServiceID: 2, ServiceName: "BROKEN", Currency: "BRL", Rule: Formula{Expression: "@DWT * "}},
			{ID: 3, ServiceID: 3, ServiceName: "BAD JSON", Currency: "USD", Rule: invalid},
			{ID: 4, ServiceID: 4, ServiceName: "OK", Currency: "USD", Rule: Formula{Expression: "@DWT / 4"}},
		},
	}

	items := engine.Price(context.Background(), in)
	require.Len(t, items, 4)
	assert.Equal(t, 0.0, items[0].Value)
	assert.Equal(t, 0.0, items[1].Value)
	assert.Equal(t, 0.0, items[2].Value)
	assert.Equal(t, 250.0, items[3].Value)
	assert.Equal(t, "BAD JSON", items[2].ServiceName)

	assert.Equal(t, 2.0, testutil.ToFloat64(metrics.failures.WithLabelValues(string(MethodFormula))))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.failures.WithLabelValues(string(MethodConditional))))
}

func TestPricePreservesOrder(t *testing.T) {
	engine, _ := newTestEngine(t)
	in := Input{
		Scope:  Scope{},
		Linked: map[int64]struct{}{1: {}, 2: {}, 3: {}},
		Calculations: []Calculation{
			{ServiceID: 3, ServiceName: "C", Currency: "USD", Rule: Fixed{Value: 3}},
			{ServiceID: 1, ServiceName: "A", Currency: "USD", Rule: Fixed{Value: 1}},
			{ServiceID: 2, ServiceName: "B", Currency: "USD", Rule: Fixed{Value: 2}},
		},
	}
	items := engine.Price(context.Background(), in)
	names := []string{items[0].ServiceName, items[1].ServiceName, items[2].ServiceName}
	assert.Equal(t, []string{"C", "A", "B"}, names)
}

func TestNewScopeDraftFallsBackToDepth(t *testing.T) {
	depth := 18.0
	grt := 30000.0
	year := 2010
	scope := NewScope(Vessel{GRT: &grt, Depth: &depth, Year: &year}, Voyage{TotalCargo: 45000, ROE: 5.2})

	assert.Equal(t, 18.0, scope[VarDraft])
	assert.Equal(t, 18.0, scope[VarDepth])
	assert.Equal(t, 30000.0, scope[VarGRT])
	assert.Equal(t, 0.0, scope[VarDWT])
	assert.Equal(t, 2010.0, scope[VarYear])
	assert.Equal(t, 45000.0, scope[VarTotalCargo])
	assert.Equal(t, 5.2, scope[VarROE])
	assert.Len(t, scope, len(Variables))

	draft := 12.5
	scope = NewScope(Vessel{Draft: &draft, Depth: &depth}, Voyage{})
	assert.Equal(t, 12.5, scope[VarDraft])
}
