// Package recommendation suggests small cart changes that unlock a better
// promotion, so the cashier can tell the customer before payment.
package recommendation

import (
	"time"

	"github.com/shopspring/decimal"

	"kasirinaja/checkout/internal/domain"
	"kasirinaja/checkout/internal/promotion"
)

type Engine struct {
	maxMissingUnits   decimal.Decimal
	maxShortfallRatio decimal.Decimal
}

// NewEngine limits nudges to at most maxMissingUnits extra units, or to a
// spend shortfall of at most maxShortfallRatio of the promotion minimum.
// Non-positive limits fall back to 2 units and 20%.
func NewEngine(maxMissingUnits decimal.Decimal, maxShortfallRatio decimal.Decimal) *Engine {
	if !maxMissingUnits.IsPositive() {
		maxMissingUnits = decimal.NewFromInt(2)
	}
	if !maxShortfallRatio.IsPositive() {
		maxShortfallRatio = decimal.RequireFromString("0.2")
	}
	return &Engine{
		maxMissingUnits:   maxMissingUnits,
		maxShortfallRatio: maxShortfallRatio,
	}
}

// Recommend returns the nudge with the largest gain over current, or nil.
func (e *Engine) Recommend(
	lines []domain.CartLine,
	promos []domain.Promotion,
	customer domain.CustomerType,
	now time.Time,
	current domain.DiscountResult,
) *domain.Nudge {
	if len(lines) == 0 {
		return nil
	}

	subtotal := domain.Subtotal(lines)
	var best *domain.Nudge

	for _, p := range promos {
		if !promotion.Eligible(p, customer, now) || p.Conditions == nil {
			continue
		}

		nudge, hypothetical := e.candidate(p, lines, subtotal)
		if nudge == nil {
			continue
		}
		amount, _, ok := promotion.Discount(p, hypothetical)
		if !ok {
			continue
		}
		gain := amount.Sub(current.Discount)
		if !gain.IsPositive() {
			continue
		}

		nudge.PromotionID = p.ID
		nudge.PromotionName = p.Name
		nudge.Gain = gain
		if best == nil || gain.GreaterThan(best.Gain) {
			best = nudge
		}
	}
	return best
}

// candidate builds the nudge for p and the cart it would produce, or nil
// when p is out of reach.
func (e *Engine) candidate(p domain.Promotion, lines []domain.CartLine, subtotal decimal.Decimal) (*domain.Nudge, []domain.CartLine) {
	switch c := p.Conditions.(type) {
	case domain.BuyXGetY:
		if c.GetProductID != "" && c.GetProductID != c.BuyProductID && !inCart(lines, c.GetProductID) {
			return nil, nil
		}
		return e.unitsNudge(lines, c.BuyProductID, c.BuyQuantity, domain.NudgeUnitsToFreeItem)
	case domain.BundlePrice:
		return e.unitsNudge(lines, c.BuyProductID, c.BundleQuantity, domain.NudgeUnitsToBundle)
	case domain.SpendAmount:
		return e.spendNudge(lines, subtotal, &c.MinAmount)
	case domain.CartPercentage:
		return e.spendNudge(lines, subtotal, c.MinAmount)
	case domain.CartFixed:
		return e.spendNudge(lines, subtotal, c.MinAmount)
	}
	return nil, nil
}

func (e *Engine) unitsNudge(lines []domain.CartLine, productID string, step decimal.Decimal, reason string) (*domain.Nudge, []domain.CartLine) {
	if !step.IsPositive() {
		return nil, nil
	}
	idx := lineIndex(lines, productID)
	if idx < 0 {
		return nil, nil
	}

	owned := lines[idx].Quantity
	sets, _ := owned.QuoRem(step, 0)
	missing := sets.Add(decimal.NewFromInt(1)).Mul(step).Sub(owned)
	if missing.GreaterThan(e.maxMissingUnits) {
		return nil, nil
	}

	hypothetical := append([]domain.CartLine(nil), lines...)
	hypothetical[idx].Quantity = owned.Add(missing)
	return &domain.Nudge{
		ReasonCode:      reason,
		ProductID:       productID,
		MissingQuantity: missing,
		MissingAmount:   missing.Mul(lines[idx].UnitPrice),
	}, hypothetical
}

func (e *Engine) spendNudge(lines []domain.CartLine, subtotal decimal.Decimal, minimum *decimal.Decimal) (*domain.Nudge, []domain.CartLine) {
	if minimum == nil || !subtotal.LessThan(*minimum) {
		return nil, nil
	}
	shortfall := minimum.Sub(subtotal)
	if shortfall.GreaterThan(minimum.Mul(e.maxShortfallRatio)) {
		return nil, nil
	}

	// Spend gates only look at the subtotal, so an anonymous line stands in
	// for whatever the customer adds.
	hypothetical := append(append([]domain.CartLine(nil), lines...), domain.CartLine{
		Quantity:  decimal.NewFromInt(1),
		UnitPrice: shortfall,
	})
	return &domain.Nudge{
		ReasonCode:    domain.NudgeSpendToThreshold,
		MissingAmount: shortfall,
	}, hypothetical
}

func lineIndex(lines []domain.CartLine, productID string) int {
	for i, line := range lines {
		if line.ProductID == productID {
			return i
		}
	}
	return -1
}

func inCart(lines []domain.CartLine, productID string) bool {
	return lineIndex(lines, productID) >= 0
}
