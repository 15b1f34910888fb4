package evaluator

import (
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"

	"github.com/roach88/fixharness/internal/asyncgen"
)

var errorName = regexp.MustCompile(`^[A-Z][A-Za-z]*Error(: |$)`)

// Stringify renders a Go value the way the engine's print does.
//
// Numbers follow Number.prototype.toString, errors render as
// "Name: message", slices join with commas, and a generator Result
// renders as "{ value: v, done: b }".
func Stringify(v any) string {
	switch val := v.(type) {
	case nil:
		return "null"
	case asyncgen.Undefined:
		return "undefined"
	case string:
		return val
	case bool:
		return strconv.FormatBool(val)
	case int:
		return strconv.Itoa(val)
	case int32:
		return strconv.FormatInt(int64(val), 10)
	case int64:
		return strconv.FormatInt(val, 10)
	case float32:
		return formatNumber(float64(val))
	case float64:
		return formatNumber(val)
	case asyncgen.Result:
		return fmt.Sprintf("{ value: %s, done: %t }", inspect(val.Value), val.Done)
	case error:
		msg := val.Error()
		if errorName.MatchString(msg) {
			return msg
		}
		return "Error: " + msg
	case fmt.Stringer:
		return val.String()
	case []any:
		parts := make([]string, len(val))
		for i, e := range val {
			if e != nil {
				parts[i] = Stringify(e)
			}
		}
		return strings.Join(parts, ",")
	case map[string]any:
		return "[object Object]"
	default:
		return fmt.Sprint(val)
	}
}

// inspect renders nested values with strings quoted, as a REPL would.
func inspect(v any) string {
	if s, ok := v.(string); ok {
		return "'" + strings.ReplaceAll(s, "'", `\'`) + "'"
	}
	if v == nil {
		return "undefined"
	}
	return Stringify(v)
}

// formatNumber implements Number.prototype.toString for radix 10.
func formatNumber(f float64) string {
	switch {
	case math.IsNaN(f):
		return "NaN"
	case math.IsInf(f, 1):
		return "Infinity"
	case math.IsInf(f, -1):
		return "-Infinity"
	case f == 0:
		return "0"
	}
	abs := math.Abs(f)
	if abs >= 1e21 || abs < 1e-6 {
		s := strconv.FormatFloat(f, 'e', -1, 64)
		mant, exp, _ := strings.Cut(s, "e")
		n, _ := strconv.Atoi(exp)
		if n >= 0 {
			return mant + "e+" + strconv.Itoa(n)
		}
		return mant + "e-" + strconv.Itoa(-n)
	}
	return strconv.FormatFloat(f, 'f', -1, 64)
}

// Join stringifies values and joins them with a space, like a
// multi-argument print.
func Join(values ...any) string {
	parts := make([]string, len(values))
	for i, v := range values {
		parts[i] = Stringify(v)
	}
	return strings.Join(parts, " ")
}
