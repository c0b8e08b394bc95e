package shared

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// AmountPrecision is the number of fraction digits of the smallest unit.
const AmountPrecision int32 = 8

// ValidateAmount rejects non-positive amounts and amounts finer than the
// smallest unit.
func ValidateAmount(amount decimal.Decimal) error {
	if !amount.IsPositive() {
		return fmt.Errorf("%w: amount must be positive, got %s", ErrInvalidArgument, amount.String())
	}
	if !HasValidPrecision(amount) {
		return fmt.Errorf("%w: amount %s has more than %d fraction digits", ErrInvalidArgument, amount.String(), AmountPrecision)
	}
	return nil
}

// HasValidPrecision reports whether amount is representable in whole units of
// the smallest denomination.
func HasValidPrecision(amount decimal.Decimal) bool {
	return amount.Equal(amount.Truncate(AmountPrecision))
}

// ParseAmount parses a decimal string and validates it as a transfer amount.
func ParseAmount(s string) (decimal.Decimal, error) {
	amount, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, fmt.Errorf("%w: malformed amount %q", ErrInvalidArgument, s)
	}
	if err := ValidateAmount(amount); err != nil {
		return decimal.Zero, err
	}
	return amount, nil
}

// SplitProportionally divides total across weights in proportion to each
// weight, rounded down to the smallest unit. The rounding remainder goes to
// the largest weight, so the parts always sum to total exactly.
func SplitProportionally(total decimal.Decimal, weights []decimal.Decimal) []decimal.Decimal {
	parts := make([]decimal.Decimal, len(weights))
	if len(weights) == 0 {
		return parts
	}

	sum := decimal.Zero
	largest := 0
	for i, w := range weights {
		sum = sum.Add(w)
		if w.GreaterThan(weights[largest]) {
			largest = i
		}
	}

	allocated := decimal.Zero
	for i, w := range weights {
		if sum.IsZero() {
			parts[i] = decimal.Zero
			continue
		}
		parts[i] = total.Mul(w).Div(sum).Truncate(AmountPrecision)
		allocated = allocated.Add(parts[i])
	}
	parts[largest] = parts[largest].Add(total.Sub(allocated))

	return parts
}
