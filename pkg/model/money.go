package model

import (
	"fmt"
	"math"

	"github.com/cockroachdb/apd/v3"
)

func moneyContext() *apd.Context {
	ctx := apd.BaseContext.WithPrecision(34)
	ctx.Rounding = apd.RoundHalfUp
	return ctx
}

// RoundCents rounds v half-up to two decimal places. NaN and infinities round to 0.
func RoundCents(v float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	var d apd.Decimal
	if _, err := d.SetFloat64(v); err != nil {
		return math.Round(v*100) / 100
	}
	var out apd.Decimal
	if _, err := moneyContext().Quantize(&out, &d, -2); err != nil {
		return math.Round(v*100) / 100
	}
	f, err := out.Float64()
	if err != nil {
		return math.Round(v*100) / 100
	}
	return f
}

// SumAmounts adds decimal amount strings as reported by billing APIs.
// Empty strings count as zero.
func SumAmounts(amounts ...string) (float64, error) {
	ctx := moneyContext()
	var total apd.Decimal
	for _, a := range amounts {
		if a == "" {
			continue
		}
		var d apd.Decimal
		if _, _, err := d.SetString(a); err != nil {
			return 0, fmt.Errorf("parse amount %q: %w", a, err)
		}
		if _, err := ctx.Add(&total, &total, &d); err != nil {
			return 0, fmt.Errorf("sum amounts: %w", err)
		}
	}
	f, err := total.Float64()
	if err != nil {
		return 0, fmt.Errorf("convert amount: %w", err)
	}
	return f, nil
}
