package promotion

import (
	"github.com/shopspring/decimal"

	"kasirinaja/checkout/internal/domain"
)

var hundred = decimal.NewFromInt(100)

// Discount computes what p would take off cart. ok is false when the
// promotion does not apply: its gate is unmet, a required line is missing,
// or its conditions do not match its type. The amount is not clamped.
func Discount(p domain.Promotion, cart []domain.CartLine) (amount decimal.Decimal, free []domain.FreeItem, ok bool) {
	if p.Conditions == nil || p.Conditions.PromotionType() != p.Type {
		return decimal.Zero, nil, false
	}

	switch c := p.Conditions.(type) {
	case domain.BuyXGetY:
		return buyXGetY(c, cart)
	case domain.SpendAmount:
		return spendAmount(c, cart)
	case domain.CartPercentage:
		subtotal := domain.Subtotal(cart)
		if !meetsMinimum(c.MinAmount, subtotal) {
			return decimal.Zero, nil, false
		}
		return percentOf(subtotal, c.Value), nil, true
	case domain.CartFixed:
		if !meetsMinimum(c.MinAmount, domain.Subtotal(cart)) {
			return decimal.Zero, nil, false
		}
		return c.Value, nil, true
	case domain.ProductDiscount:
		return productDiscount(c, cart)
	case domain.BundlePrice:
		return bundlePrice(c, cart)
	}
	return decimal.Zero, nil, false
}

func buyXGetY(c domain.BuyXGetY, cart []domain.CartLine) (decimal.Decimal, []domain.FreeItem, bool) {
	bought, found := findLine(cart, c.BuyProductID)
	if !found || !c.BuyQuantity.IsPositive() || bought.Quantity.LessThan(c.BuyQuantity) {
		return decimal.Zero, nil, false
	}

	reward := bought
	if c.GetProductID != "" && c.GetProductID != c.BuyProductID {
		// Without a catalog the free product is priced from its own line.
		if reward, found = findLine(cart, c.GetProductID); !found {
			return decimal.Zero, nil, false
		}
	}

	sets := floorDiv(bought.Quantity, c.BuyQuantity)
	freeUnits := sets.Mul(c.GetQuantity)
	free := []domain.FreeItem{{
		ProductID: reward.ProductID,
		Quantity:  freeUnits,
		UnitPrice: reward.UnitPrice,
	}}
	return reward.UnitPrice.Mul(freeUnits), free, true
}

func spendAmount(c domain.SpendAmount, cart []domain.CartLine) (decimal.Decimal, []domain.FreeItem, bool) {
	subtotal := domain.Subtotal(cart)
	if subtotal.LessThan(c.MinAmount) {
		return decimal.Zero, nil, false
	}
	if c.DiscountType == domain.DiscountPercentage {
		return percentOf(subtotal, c.Value), nil, true
	}
	return c.Value, nil, true
}

func productDiscount(c domain.ProductDiscount, cart []domain.CartLine) (decimal.Decimal, []domain.FreeItem, bool) {
	line, found := findLine(cart, c.BuyProductID)
	if !found {
		return decimal.Zero, nil, false
	}
	if c.DiscountType == domain.DiscountPercentage {
		return percentOf(line.Total(), c.Value), nil, true
	}
	// Fixed discounts are per unit.
	return c.Value.Mul(line.Quantity), nil, true
}

func bundlePrice(c domain.BundlePrice, cart []domain.CartLine) (decimal.Decimal, []domain.FreeItem, bool) {
	line, found := findLine(cart, c.BuyProductID)
	if !found || !c.BundleQuantity.IsPositive() || line.Quantity.LessThan(c.BundleQuantity) {
		return decimal.Zero, nil, false
	}

	bundles := floorDiv(line.Quantity, c.BundleQuantity)
	remainder := line.Quantity.Sub(bundles.Mul(c.BundleQuantity))

	normalTotal := line.UnitPrice.Mul(line.Quantity)
	bundleTotal := bundles.Mul(c.BundlePrice).Add(remainder.Mul(line.UnitPrice))
	// Negative when the bundle costs more than its units; selection ignores it.
	return normalTotal.Sub(bundleTotal), nil, true
}

func findLine(cart []domain.CartLine, productID string) (domain.CartLine, bool) {
	for _, line := range cart {
		if line.ProductID == productID {
			return line, true
		}
	}
	return domain.CartLine{}, false
}

func meetsMinimum(minimum *decimal.Decimal, subtotal decimal.Decimal) bool {
	return minimum == nil || subtotal.GreaterThanOrEqual(*minimum)
}

func percentOf(base, percent decimal.Decimal) decimal.Decimal {
	return base.Mul(percent).Div(hundred)
}

// floorDiv is floor(a / b) for non-negative a and positive b.
func floorDiv(a, b decimal.Decimal) decimal.Decimal {
	q, _ := a.QuoRem(b, 0)
	return q
}
