package cart

import "github.com/shopspring/decimal"

// PricingConfig holds the configuration constants for cart totals. Totals are
// a pure function of the item list and these values.
type PricingConfig struct {
	// TaxRate is applied to the discounted subtotal (0.10 = 10%).
	TaxRate decimal.Decimal
	// FreeShippingThreshold is the discounted subtotal at which shipping
	// becomes free.
	FreeShippingThreshold decimal.Decimal
	// FlatShippingFee is charged below the free-shipping threshold. An empty
	// cart has a zero subtotal, which is below the threshold, so it prices
	// with the flat fee.
	FlatShippingFee decimal.Decimal
}

// DefaultPricing returns the standard storefront pricing constants.
func DefaultPricing() PricingConfig {
	return PricingConfig{
		TaxRate:               decimal.RequireFromString("0.10"),
		FreeShippingThreshold: decimal.RequireFromString("50"),
		FlatShippingFee:       decimal.RequireFromString("5.99"),
	}
}

// ComputeTotals derives cart totals from the item list:
//
//	subtotal = Σ(unitPrice × quantity)
//	discount = 0 (coupons are out of scope)
//	tax      = (subtotal − discount) × TaxRate
//	shipping = 0 when (subtotal − discount) ≥ FreeShippingThreshold, else FlatShippingFee
//	total    = subtotal − discount + tax + shipping
func (c PricingConfig) ComputeTotals(items []Item) Totals {
	subtotal := decimal.Zero
	for _, it := range items {
		qty := decimal.NewFromInt(int64(it.Quantity))
		subtotal = subtotal.Add(it.UnitPrice.Mul(qty))
	}

	discount := decimal.Zero
	taxable := subtotal.Sub(discount)
	tax := taxable.Mul(c.TaxRate).Round(2)

	shipping := c.FlatShippingFee
	if taxable.GreaterThanOrEqual(c.FreeShippingThreshold) {
		shipping = decimal.Zero
	}

	return Totals{
		Subtotal: subtotal,
		Discount: discount,
		Tax:      tax,
		Shipping: shipping,
		Total:    subtotal.Sub(discount).Add(tax).Add(shipping),
	}
}

// ShippingCost returns the shipping charge for the given merchandise subtotal.
func (c PricingConfig) ShippingCost(subtotal decimal.Decimal) decimal.Decimal {
	if subtotal.GreaterThanOrEqual(c.FreeShippingThreshold) {
		return decimal.Zero
	}
	return c.FlatShippingFee
}
