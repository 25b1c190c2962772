package pricing

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Normalize converts heterogeneous numeric input into a finite float64.
// It accepts Go numbers, json.Number and strings written with either "." or
// "," as decimal separator ("1.234,56", "1234,56", "1234.56"). When both
// separators appear, "." is taken as the thousands separator. Anything that
// cannot be parsed, including NaN and infinities, yields 0.
func Normalize(raw any) float64 {
	switch v := raw.(type) {
	case nil:
		return 0
	case float64:
		return finite(v)
	case float32:
		return finite(float64(v))
	case int:
		return float64(v)
	case int32:
		return float64(v)
	case int64:
		return float64(v)
	case uint:
		return float64(v)
	case uint32:
		return float64(v)
	case uint64:
		return float64(v)
	case Amount:
		return finite(float64(v))
	case *float64:
		if v == nil {
			return 0
		}
		return finite(*v)
	case *int:
		if v == nil {
			return 0
		}
		return float64(*v)
	case json.Number:
		return parseNumeric(string(v))
	case string:
		return parseNumeric(v)
	case *string:
		if v == nil {
			return 0
		}
		return parseNumeric(*v)
	case bool:
		return 0
	default:
		return parseNumeric(fmt.Sprint(v))
	}
}

func parseNumeric(s string) float64 {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0
	}
	hasDot := strings.Contains(s, ".")
	hasComma := strings.Contains(s, ",")
	switch {
	case hasDot && hasComma:
		s = strings.ReplaceAll(s, ".", "")
		s = strings.Replace(s, ",", ".", 1)
	case hasComma:
		s = strings.Replace(s, ",", ".", 1)
	}
	n, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0
	}
	return finite(n)
}

func finite(v float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	return v
}

// Amount is a float64 that accepts any JSON scalar (number, numeric string,
// null) and stores its normalized value.
type Amount float64

// UnmarshalJSON implements json.Unmarshaler. It never fails.
func (a *Amount) UnmarshalJSON(b []byte) error {
	var raw any
	dec := json.NewDecoder(bytes.NewReader(b))
	dec.UseNumber()
	if err := dec.Decode(&raw); err != nil {
		*a = 0
		return nil
	}
	*a = Amount(Normalize(raw))
	return nil
}

// Float64 returns the amount as a plain float.
func (a Amount) Float64() float64 {
	return float64(a)
}
