package recommendation

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"kasirinaja/checkout/internal/domain"
	"kasirinaja/checkout/internal/promotion"
)

var now = time.Date(2024, 3, 15, 10, 30, 0, 0, time.UTC)

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func activePromo(id string, c domain.Conditions) domain.Promotion {
	return domain.Promotion{
		ID: id, Name: id, Type: c.PromotionType(), Conditions: c, Active: true,
		CustomerType: domain.CustomerAll, Schedule: domain.Schedule{Type: domain.ScheduleAlways},
	}
}

func recommend(e *Engine, lines []domain.CartLine, promos []domain.Promotion) *domain.Nudge {
	current := promotion.Resolve(lines, promos, domain.CustomerAll, now)
	return e.Recommend(lines, promos, domain.CustomerAll, now, current)
}

func TestNudgeTowardsFreeItem(t *testing.T) {
	e := NewEngine(decimal.Zero, decimal.Zero)
	lines := []domain.CartLine{{ProductID: "mie", Quantity: dec("3"), UnitPrice: dec("3500")}}
	promos := []domain.Promotion{
		activePromo("b4g1", domain.BuyXGetY{BuyProductID: "mie", BuyQuantity: dec("4"), GetQuantity: dec("1")}),
	}

	got := recommend(e, lines, promos)
	require.NotNil(t, got)
	assert.Equal(t, "b4g1", got.PromotionID)
	assert.Equal(t, domain.NudgeUnitsToFreeItem, got.ReasonCode)
	assert.True(t, got.MissingQuantity.Equal(dec("1")))
	assert.True(t, got.MissingAmount.Equal(dec("3500")))
	assert.True(t, got.Gain.Equal(dec("3500")))
}

func TestNudgeTowardsNextBundle(t *testing.T) {
	e := NewEngine(decimal.Zero, decimal.Zero)
	lines := []domain.CartLine{{ProductID: "kopi", Quantity: dec("9"), UnitPrice: dec("2600")}}
	promos := []domain.Promotion{
		activePromo("kopi10", domain.BundlePrice{BuyProductID: "kopi", BundleQuantity: dec("10"), BundlePrice: dec("24000")}),
	}

	got := recommend(e, lines, promos)
	require.NotNil(t, got)
	assert.Equal(t, domain.NudgeUnitsToBundle, got.ReasonCode)
	assert.True(t, got.Gain.Equal(dec("2000")), "gain %s", got.Gain)
}

func TestNoNudgeWhenTooFarAway(t *testing.T) {
	e := NewEngine(decimal.Zero, decimal.Zero)
	lines := []domain.CartLine{{ProductID: "kopi", Quantity: dec("5"), UnitPrice: dec("2600")}}
	promos := []domain.Promotion{
		activePromo("kopi10", domain.BundlePrice{BuyProductID: "kopi", BundleQuantity: dec("10"), BundlePrice: dec("24000")}),
		activePromo("spend", domain.SpendAmount{MinAmount: dec("100000"), DiscountType: domain.DiscountFixed, Value: dec("5000")}),
	}

	assert.Nil(t, recommend(e, lines, promos))
}

func TestNudgeTowardsSpendThreshold(t *testing.T) {
	e := NewEngine(decimal.Zero, decimal.Zero)
	lines := []domain.CartLine{{ProductID: "susu", Quantity: dec("5"), UnitPrice: dec("18900")}}
	promos := []domain.Promotion{
		activePromo("spend100k", domain.SpendAmount{MinAmount: dec("100000"), DiscountType: domain.DiscountPercentage, Value: dec("5")}),
	}

	got := recommend(e, lines, promos)
	require.NotNil(t, got)
	assert.Equal(t, domain.NudgeSpendToThreshold, got.ReasonCode)
	assert.True(t, got.MissingAmount.Equal(dec("5500")), "missing %s", got.MissingAmount)
	assert.True(t, got.Gain.Equal(dec("5000")), "gain %s", got.Gain)
}

func TestNoNudgeWhenCurrentDiscountIsBetter(t *testing.T) {
	e := NewEngine(decimal.Zero, decimal.Zero)
	lines := []domain.CartLine{{ProductID: "mie", Quantity: dec("3"), UnitPrice: dec("3500")}}
	promos := []domain.Promotion{
		activePromo("flat", domain.CartFixed{Value: dec("9000")}),
		activePromo("b4g1", domain.BuyXGetY{BuyProductID: "mie", BuyQuantity: dec("4"), GetQuantity: dec("1")}),
	}

	assert.Nil(t, recommend(e, lines, promos))
}

func TestNudgeSkipsIneligible(t *testing.T) {
	e := NewEngine(decimal.Zero, decimal.Zero)
	lines := []domain.CartLine{{ProductID: "mie", Quantity: dec("3"), UnitPrice: dec("3500")}}
	p := activePromo("b4g1", domain.BuyXGetY{BuyProductID: "mie", BuyQuantity: dec("4"), GetQuantity: dec("1")})
	p.CustomerType = domain.CustomerProfessional

	assert.Nil(t, recommend(e, lines, []domain.Promotion{p}))
	assert.Nil(t, e.Recommend(nil, []domain.Promotion{p}, domain.CustomerAll, now, domain.NoDiscount()))
}
