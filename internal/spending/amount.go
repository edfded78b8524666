// internal/spending/amount.go
package spending

import (
	"regexp"
	"strings"

	"github.com/shopspring/decimal"
)

// maxScale is the number of fractional digits the ledger stores exactly.
const maxScale = 2

// maxExponent and minExponent bound the decimal exponent before any
// rescaling, which costs time proportional to the exponent.
const (
	maxExponent = 18
	minExponent = -20
)

// maxAmount is the first value a NUMERIC(20,2) column cannot hold.
var maxAmount = decimal.New(1, maxExponent)

var (
	// plain digits with an optional fraction; no exponent notation
	amountPattern = regexp.MustCompile(`^[+-]?\d+(\.\d+)?$`)
	// "1,000" reads as a thousand to some users and as one to others
	groupedPattern = regexp.MustCompile(`^[+-]?\d+,\d{3}$`)
)

// ParseAmount turns user input into a spend amount, accepting a comma as the
// decimal separator. A comma followed by exactly three digits is rejected as
// ambiguous.
func ParseAmount(raw string) (decimal.Decimal, error) {
	s := strings.TrimSpace(raw)
	s = strings.ReplaceAll(s, " ", "")
	if s == "" {
		return decimal.Zero, &ValidationError{Field: "amount", Input: raw, Reason: "empty"}
	}
	if groupedPattern.MatchString(s) {
		return decimal.Zero, &ValidationError{Field: "amount", Input: raw, Reason: "ambiguous separator"}
	}
	s = strings.Replace(s, ",", ".", 1)
	if !amountPattern.MatchString(s) {
		return decimal.Zero, &ValidationError{Field: "amount", Input: raw, Reason: "not a number"}
	}

	amount, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, &ValidationError{Field: "amount", Input: raw, Reason: "not a number"}
	}
	if reason := amountProblem(amount); reason != "" {
		return decimal.Zero, &ValidationError{Field: "amount", Input: raw, Reason: reason}
	}
	return amount, nil
}

// ValidateAmount rejects non-positive amounts, sub-cent precision and values too large to store.
func ValidateAmount(amount decimal.Decimal) error {
	if reason := amountProblem(amount); reason != "" {
		return &ValidationError{Field: "amount", Input: amount.String(), Reason: reason}
	}
	return nil
}

func amountProblem(amount decimal.Decimal) string {
	switch {
	case !amount.IsPositive():
		return "must be positive"
	case amount.Exponent() > maxExponent:
		return "too large"
	case amount.Exponent() < minExponent:
		return "at most two decimal places"
	case !amount.Equal(amount.Round(maxScale)):
		return "at most two decimal places"
	case amount.GreaterThanOrEqual(maxAmount):
		return "too large"
	}
	return ""
}
