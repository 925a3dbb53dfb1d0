package session

import (
	"math"
	"regexp"
	"strconv"
	"strings"
)

// AnswerInputHint is shown for any typed answer that is not a single integer.
const AnswerInputHint = "Enter a single integer answer (e.g. 42 or -17)."

const maxAnswerLength = 64

var (
	integerPattern = regexp.MustCompile(`^[+-]?\d+$`)
	// Only well-formed thousands groups count as separators; "4,2" is not one.
	groupedPattern = regexp.MustCompile(`^[+-]?\d{1,3}(,\d{3})+$`)
)

// ValidationInputError reports a typed answer rejected before reaching the
// backend.
type ValidationInputError struct {
	Input   string
	Message string
}

func (e *ValidationInputError) Error() string {
	return e.Message
}

// ParseAnswerText parses a typed answer. Surrounding whitespace is trimmed and
// thousands separators in canonical groups are dropped.
func ParseAnswerText(raw string) (int64, error) {
	cleaned := strings.TrimSpace(raw)
	if groupedPattern.MatchString(cleaned) {
		cleaned = strings.ReplaceAll(cleaned, ",", "")
	}

	if cleaned == "" || len(cleaned) > maxAnswerLength || !integerPattern.MatchString(cleaned) {
		return 0, &ValidationInputError{Input: raw, Message: AnswerInputHint}
	}

	v, err := strconv.ParseInt(cleaned, 10, 64)
	if err != nil {
		return 0, &ValidationInputError{Input: raw, Message: AnswerInputHint}
	}
	return v, nil
}

// Validation is the outcome of one submitted answer.
type Validation struct {
	ExpectedSum int64 `json:"expected_sum"`
	ProvidedSum int64 `json:"provided_sum"`
	Correct     bool  `json:"correct"`
	Delta       int64 `json:"delta"`
}

// Validate compares a provided sum against the expected one.
func Validate(expected, provided int64) Validation {
	delta := saturatingSub(provided, expected)
	return Validation{
		ExpectedSum: expected,
		ProvidedSum: provided,
		Correct:     delta == 0,
		Delta:       delta,
	}
}

func saturatingSub(a, b int64) int64 {
	d := a - b
	switch {
	case b > 0 && d > a:
		return math.MinInt64
	case b < 0 && d < a:
		return math.MaxInt64
	}
	return d
}
