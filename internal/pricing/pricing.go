// Package pricing computes order totals. Everything here is pure decimal
// arithmetic; persistence and rounding-sensitive currency handling stay on
// shopspring/decimal so totals reproduce exactly across runs.
package pricing

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

// ErrInvalidPricingInput indicates a caller bug upstream: the state machine
// never feeds negative components or an out-of-range margin here.
var ErrInvalidPricingInput = errors.New("invalid pricing input")

var oneHundred = decimal.NewFromInt(100)

// Snapshot is the cost breakdown a margin is applied to. All components are
// non-negative amounts with two decimal places.
type Snapshot struct {
	BaseOps      decimal.Decimal
	Transport    decimal.Decimal
	CatalogTotal decimal.Decimal
	CustomTotal  decimal.Decimal
}

// Totals is the result of a margin application.
type Totals struct {
	Subtotal     decimal.Decimal
	MarginAmount decimal.Decimal
	Total        decimal.Decimal
}

// ComputeTotals applies marginPercent to the snapshot subtotal.
// marginAmount is rounded half-up to 2 decimal places before it is added,
// so total = subtotal + round2(subtotal * percent / 100).
func ComputeTotals(in Snapshot, marginPercent decimal.Decimal) (Totals, error) {
	for _, c := range []struct {
		name string
		val  decimal.Decimal
	}{
		{"base_ops_total", in.BaseOps},
		{"transport_rate", in.Transport},
		{"catalog_total", in.CatalogTotal},
		{"custom_total", in.CustomTotal},
	} {
		if c.val.IsNegative() {
			return Totals{}, fmt.Errorf("%w: %s is negative", ErrInvalidPricingInput, c.name)
		}
	}
	if marginPercent.IsNegative() || marginPercent.GreaterThan(oneHundred) {
		return Totals{}, fmt.Errorf("%w: margin percent %s outside [0,100]", ErrInvalidPricingInput, marginPercent)
	}

	subtotal := in.BaseOps.Add(in.Transport).Add(in.CatalogTotal).Add(in.CustomTotal)
	marginAmount := subtotal.Mul(marginPercent).Div(oneHundred).Round(2)

	return Totals{
		Subtotal:     subtotal,
		MarginAmount: marginAmount,
		Total:        subtotal.Add(marginAmount),
	}, nil
}
