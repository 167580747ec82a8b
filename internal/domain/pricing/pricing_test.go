package pricing

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func TestFinalPrice(t *testing.T) {
	tests := []struct {
		name     string
		base     string
		standing string
		extra    string
		want     int64
	}{
		{"no discounts", "1000", "0", "0", 1000},
		{"no discounts rounds", "99.5", "0", "0", 100},
		{"standing only", "1000", "10", "0", 900},
		{"extra only", "1000", "0", "20", 800},
		{"sequential", "1000", "10", "20", 720},
		{"half and half is a quarter", "100", "50", "50", 25},
		{"full standing discount", "1000", "100", "30", 0},
		{"full extra discount", "1000", "25", "100", 0},
		{"half rounds up", "5", "10", "0", 5},
		{"below half rounds down", "14", "3", "0", 14},
		{"fractional base", "333.33", "33.33", "0", 222},
		{"zero base", "0", "50", "50", 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, FinalPrice(d(tt.base), d(tt.standing), d(tt.extra)))
		})
	}
}

func TestFinalPrice_NotAdditive(t *testing.T) {
	// Summing 50% + 50% would give a free item.
	assert.NotZero(t, FinalPrice(d("100"), d("50"), d("50")))
}

func TestFinalPrice_Monotonic(t *testing.T) {
	bases := []string{"0", "1", "49.99", "100", "1000", "12345.67"}
	percents := []string{"0", "0.5", "1", "10", "33.3", "50", "99", "100"}

	for _, b := range bases {
		base := d(b)
		full := FinalPrice(base, decimal.Zero, decimal.Zero)
		assert.Equal(t, base.Round(0).IntPart(), full)

		for i, s := range percents {
			for j, e := range percents {
				got := FinalPrice(base, d(s), d(e))
				assert.LessOrEqual(t, got, full, "base=%s standing=%s extra=%s", b, s, e)

				if i > 0 {
					prev := FinalPrice(base, d(percents[i-1]), d(e))
					assert.LessOrEqual(t, got, prev, "standing not monotonic at base=%s", b)
				}
				if j > 0 {
					prev := FinalPrice(base, d(s), d(percents[j-1]))
					assert.LessOrEqual(t, got, prev, "extra not monotonic at base=%s", b)
				}
			}
		}
	}
}

func TestFinalPrice_StrictlyLessWithDiscount(t *testing.T) {
	base := d("1000")
	full := FinalPrice(base, decimal.Zero, decimal.Zero)
	assert.Less(t, FinalPrice(base, d("10"), decimal.Zero), full)
	assert.Less(t, FinalPrice(base, decimal.Zero, d("10")), full)
}

func TestFinalPrice_PanicsOnOutOfRange(t *testing.T) {
	assert.Panics(t, func() { FinalPrice(d("100"), d("-1"), decimal.Zero) })
	assert.Panics(t, func() { FinalPrice(d("100"), decimal.Zero, d("100.01")) })
	assert.Panics(t, func() { FinalPrice(d("-5"), decimal.Zero, decimal.Zero) })
}

func TestClampPercent(t *testing.T) {
	assert.True(t, ClampPercent(d("-3")).Equal(decimal.Zero))
	assert.True(t, ClampPercent(d("150")).Equal(d("100")))
	assert.True(t, ClampPercent(d("42.5")).Equal(d("42.5")))
}
