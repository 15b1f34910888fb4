package oracle

import (
	"context"
	"regexp"
	"strings"

	"github.com/roach88/fixharness/internal/fixture"
)

var (
	intLiteral   = regexp.MustCompile(`^-?(0[xX][0-9a-fA-F_]+|0[oO][0-7_]+|0[bB][01_]+|[0-9][0-9_]*)$`)
	floatLiteral = regexp.MustCompile(`^-?([0-9][0-9_]*\.[0-9_]*|\.[0-9][0-9_]*|[0-9][0-9_]*)([eE][+-]?[0-9_]+)?$`)
)

// Literal answers sites whose value is a literal, using the engine's
// narrow literal types: integer numerals are "int", other numerals are
// "double". Everything else is left unanswered.
type Literal struct{}

func (Literal) Check(_ context.Context, fx *fixture.Fixture) (*Report, error) {
	r := NewReport()
	for _, site := range fx.Assertions {
		if t, ok := LiteralType(site.ExprKind, site.Expr); ok {
			r.Types[site.Index] = t
		}
	}
	return r, nil
}

// LiteralType renders the type of a literal expression given its grammar
// node kind and source text.
func LiteralType(kind, expr string) (string, bool) {
	expr = strings.TrimSpace(expr)
	switch kind {
	case "number", "unary_expression":
		if strings.HasSuffix(expr, "n") {
			return "bigint", intLiteral.MatchString(strings.TrimSuffix(expr, "n"))
		}
		if intLiteral.MatchString(expr) {
			return "int", true
		}
		if floatLiteral.MatchString(expr) {
			return "double", true
		}
		return "", false
	case "string":
		return "string", true
	case "template_string":
		if strings.Contains(expr, "${") {
			return "", false
		}
		return "string", true
	case "true", "false":
		return "boolean", true
	case "null":
		return "null", true
	case "undefined":
		return "undefined", true
	case "identifier":
		if expr == "undefined" {
			return "undefined", true
		}
	}
	return "", false
}
