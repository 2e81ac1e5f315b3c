package rules

import (
	"io"
	"log/slog"
	"testing"
)

func testEngine() *Engine {
	return NewEngine(slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestEvaluate(t *testing.T) {
	data := map[string]string{
		"kyc_score":    "72.5",
		"otp_verified": "true",
		"channel":      "mobile",
		"attempts":     "3",
	}

	tests := []struct {
		name      string
		condition string
		want      bool
	}{
		{"numeric gte holds", "kyc_score >= 70", true},
		{"numeric gte fails", "kyc_score >= 90", false},
		{"numeric gt", "attempts > 2", true},
		{"numeric lt", "attempts < 2", false},
		{"numeric lte boundary", "attempts <= 3", true},
		{"numeric eq", "attempts == 3", true},
		{"single equals alias", "attempts = 3", true},
		{"numeric ne", "attempts != 3", false},
		{"string eq", "channel == mobile", true},
		{"string ne", "channel != web", true},
		{"ordered with mixed operands is false", "channel > 100", false},
		{"boolean as string", "otp_verified == true", true},
		{"absent field is false", "missing_field == 1", false},
		{"absent field with ne is still false", "missing_field != 1", false},
		{"malformed two tokens", "kyc_score >=70", false},
		{"malformed four tokens", "kyc_score >= 70 extra", false},
		{"empty condition", "", false},
		{"unknown operator", "kyc_score ~= 70", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := testEngine().Evaluate(tt.condition, data); got != tt.want {
				t.Errorf("Evaluate(%q) = %v, want %v", tt.condition, got, tt.want)
			}
		})
	}
}

func TestEvaluate_NumericBeatsLexicographic(t *testing.T) {
	// Lexicographically "9" > "70", numerically 9 < 70. Numeric must win
	// when both sides parse.
	data := map[string]string{"score": "9"}
	if testEngine().Evaluate("score > 70", data) {
		t.Error("Evaluate(score > 70) with score=9 should be numeric and false")
	}
}

func TestEvaluate_OrderedMixedOperandsFail(t *testing.T) {
	// A numeric threshold against a non-numeric value must not hold:
	// "eighty" > "80" lexicographically, but ordering a word against a
	// number is nonsense and the guard has to fail closed.
	data := map[string]string{"score": "eighty"}
	for _, cond := range []string{"score >= 80", "score > 80", "score < 80", "score <= 80"} {
		if testEngine().Evaluate(cond, data) {
			t.Errorf("Evaluate(%q) with score=eighty = true, want false", cond)
		}
	}

	// Equality keeps plain string semantics on mixed operands.
	if testEngine().Evaluate("score == 80", data) {
		t.Error(`Evaluate("score == 80") with score=eighty should be false`)
	}
	if !testEngine().Evaluate("score != 80", data) {
		t.Error(`Evaluate("score != 80") with score=eighty should be true`)
	}
}

func TestEvaluateAll(t *testing.T) {
	data := map[string]string{"a": "1", "b": "2"}

	unmet, ok := testEngine().EvaluateAll([]string{"a == 1", "b == 2"}, data)
	if !ok || unmet != "" {
		t.Errorf("EvaluateAll(all true) = (%q, %v), want (\"\", true)", unmet, ok)
	}

	unmet, ok = testEngine().EvaluateAll([]string{"a == 1", "b == 9", "c == 1"}, data)
	if ok {
		t.Error("EvaluateAll should fail when a condition is unmet")
	}
	if unmet != "b == 9" {
		t.Errorf("unmet = %q, want first failing condition \"b == 9\"", unmet)
	}

	if _, ok := testEngine().EvaluateAll(nil, data); !ok {
		t.Error("EvaluateAll(nil) should be vacuously true")
	}
}
