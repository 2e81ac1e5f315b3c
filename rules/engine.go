// Package rules evaluates transition guard conditions against an
// instance's context data.
//
// A condition is a whitespace-separated triple "field op literal", e.g.
// "kyc_score >= 70" or "channel == mobile". Comparison is numeric when
// both sides parse as floats; otherwise == and != compare
// lexicographically, and the ordered operators (> >= < <=) evaluate to
// false when exactly one side is numeric, since ordering a number
// against a word is meaningless. Evaluation is deliberately forgiving:
// an absent field or a malformed expression never errors, it evaluates
// to false and is logged, so a bad rule stalls one transition instead
// of crashing the orchestrator.
package rules

import (
	"log/slog"
	"strconv"
	"strings"
)

// Engine evaluates guard conditions.
type Engine struct {
	logger *slog.Logger
}

// NewEngine creates a condition evaluator. A nil logger falls back to
// slog.Default().
func NewEngine(logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{logger: logger}
}

// Evaluate reports whether a single condition holds against data.
// Malformed conditions and absent fields evaluate to false.
func (e *Engine) Evaluate(condition string, data map[string]string) bool {
	tokens := strings.Fields(condition)
	if len(tokens) != 3 {
		e.logger.Warn("malformed guard condition",
			slog.String("condition", condition),
			slog.Int("tokens", len(tokens)))
		return false
	}
	field, op, literal := tokens[0], tokens[1], tokens[2]

	actual, ok := data[field]
	if !ok {
		e.logger.Warn("guard condition references absent field",
			slog.String("condition", condition),
			slog.String("field", field))
		return false
	}

	cmp, mixed := compare(actual, literal)
	switch op {
	case "==", "=":
		return cmp == 0
	case "!=":
		return cmp != 0
	case ">", ">=", "<", "<=":
		if mixed {
			e.logger.Warn("ordered guard comparison with mixed numeric/string operands",
				slog.String("condition", condition),
				slog.String("value", actual))
			return false
		}
		switch op {
		case ">":
			return cmp > 0
		case ">=":
			return cmp >= 0
		case "<":
			return cmp < 0
		default:
			return cmp <= 0
		}
	default:
		e.logger.Warn("unknown guard operator",
			slog.String("condition", condition),
			slog.String("op", op))
		return false
	}
}

// EvaluateAll evaluates conditions in order with AND semantics, short-
// circuiting on the first failure. It returns the first unmet condition
// and false, or "" and true when every condition holds.
func (e *Engine) EvaluateAll(conditions []string, data map[string]string) (string, bool) {
	for _, cond := range conditions {
		if !e.Evaluate(cond, data) {
			return cond, false
		}
	}
	return "", true
}

// compare orders two string values. When both parse as floats the
// comparison is numeric; otherwise it falls back to byte-wise
// lexicographic order. mixed reports that exactly one side was numeric,
// which makes an ordering between them meaningless.
func compare(a, b string) (cmp int, mixed bool) {
	fa, errA := strconv.ParseFloat(a, 64)
	fb, errB := strconv.ParseFloat(b, 64)
	if errA == nil && errB == nil {
		switch {
		case fa < fb:
			return -1, false
		case fa > fb:
			return 1, false
		default:
			return 0, false
		}
	}
	return strings.Compare(a, b), errA == nil || errB == nil
}
