package domain

import (
	"github.com/shopspring/decimal"
)

// TotalsTolerance is the maximum drift allowed between the stored total and
// the recomputed subtotal + shipping + VAT, covering float rounding in legacy
// records.
var TotalsTolerance = decimal.NewFromFloat(0.01)

// SubtotalOf sums the line items at two-decimal precision.
func SubtotalOf(items []OrderItem) float64 {
	sum := decimal.Zero
	for _, item := range items {
		line := decimal.NewFromFloat(item.UnitPrice).Mul(decimal.NewFromInt(int64(item.Quantity)))
		sum = sum.Add(line)
	}
	f, _ := sum.Round(2).Float64()
	return f
}

// TotalsConsistent verifies total == subtotal + shippingCost + vatAmount
// within TotalsTolerance.
func TotalsConsistent(o Order) bool {
	expected := decimal.NewFromFloat(o.Subtotal).
		Add(decimal.NewFromFloat(o.ShippingCost)).
		Add(decimal.NewFromFloat(o.VATAmount))
	diff := decimal.NewFromFloat(o.Total).Sub(expected).Abs()
	return diff.LessThanOrEqual(TotalsTolerance)
}

// ApplyDealerDiscount returns the unit price after the dealer-group discount,
// rounded to two decimals. Percentages outside (0, 100] pass the price through.
func ApplyDealerDiscount(unitPrice, discountPct float64) float64 {
	if discountPct <= 0 || discountPct > 100 {
		return unitPrice
	}
	price := decimal.NewFromFloat(unitPrice)
	factor := decimal.NewFromInt(100).Sub(decimal.NewFromFloat(discountPct)).Div(decimal.NewFromInt(100))
	f, _ := price.Mul(factor).Round(2).Float64()
	return f
}

// VATOver computes the VAT amount over a net base at the given rate, rounded
// to two decimals. Rates are whole percentages (21, 9, 0).
func VATOver(netAmount, ratePct float64) float64 {
	base := decimal.NewFromFloat(netAmount)
	rate := decimal.NewFromFloat(ratePct).Div(decimal.NewFromInt(100))
	f, _ := base.Mul(rate).Round(2).Float64()
	return f
}
