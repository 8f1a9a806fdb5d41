// Package promotion selects the single best discount for a cart. Everything
// here is pure: the same cart, promotions, customer type and time always give
// the same result, so calls are safe from any goroutine.
package promotion

import (
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"kasirinaja/checkout/internal/domain"
)

// Resolve returns the largest single-promotion discount for lines. Promotions
// are evaluated in the given order and the first of several equal discounts
// wins, so callers pass them through SortCandidates first. Promotions never
// stack.
func Resolve(lines []domain.CartLine, promos []domain.Promotion, customer domain.CustomerType, now time.Time) domain.DiscountResult {
	result := domain.NoDiscount()
	if len(lines) == 0 || len(promos) == 0 {
		return result
	}

	best := decimal.Zero
	for i := range promos {
		p := promos[i]
		if !Eligible(p, customer, now) {
			continue
		}
		amount, free, ok := Discount(p, lines)
		if !ok || !amount.GreaterThan(best) {
			continue
		}

		best = amount
		applied := p
		result.AppliedPromotion = &applied
		result.FreeItems = free
	}

	result.Discount = best
	if result.FreeItems == nil {
		result.FreeItems = []domain.FreeItem{}
	}
	return result
}

// Candidates returns the promotions eligible at now, in their given order.
func Candidates(promos []domain.Promotion, customer domain.CustomerType, now time.Time) []domain.Promotion {
	out := make([]domain.Promotion, 0, len(promos))
	for _, p := range promos {
		if Eligible(p, customer, now) {
			out = append(out, p)
		}
	}
	return out
}

// SortCandidates orders promotions by priority, highest first, then newest
// first. Equal keys keep their relative order.
func SortCandidates(promos []domain.Promotion) {
	sort.SliceStable(promos, func(i, j int) bool {
		if promos[i].Priority != promos[j].Priority {
			return promos[i].Priority > promos[j].Priority
		}
		return promos[i].CreatedAt.After(promos[j].CreatedAt)
	})
}
