package domain

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeConditionsVariants(t *testing.T) {
	tests := []struct {
		name    string
		typ     PromotionType
		payload string
		want    Conditions
	}{
		{
			name:    "buy x get y defaults free product to bought product",
			typ:     PromoBuyXGetY,
			payload: `{"buy_product_id":"p1","buy_quantity":3,"get_quantity":1}`,
			want:    BuyXGetY{BuyProductID: "p1", BuyQuantity: decimal.NewFromInt(3), GetQuantity: decimal.NewFromInt(1)},
		},
		{
			name:    "spend amount percentage",
			typ:     PromoSpendAmount,
			payload: `{"min_amount":"100","discount_type":"percentage","value":5}`,
			want:    SpendAmount{MinAmount: decimal.NewFromInt(100), DiscountType: DiscountPercentage, Value: decimal.NewFromInt(5)},
		},
		{
			name:    "cart fixed without minimum",
			typ:     PromoCartFixed,
			payload: `{"value":10}`,
			want:    CartFixed{Value: decimal.NewFromInt(10)},
		},
		{
			name:    "product discount defaults to fixed",
			typ:     PromoProductDiscount,
			payload: `{"buy_product_id":"p2","value":"0.5"}`,
			want:    ProductDiscount{BuyProductID: "p2", DiscountType: DiscountFixed, Value: decimal.RequireFromString("0.5")},
		},
		{
			name:    "bundle size from buy_quantity",
			typ:     PromoBundlePrice,
			payload: `{"buy_product_id":"p3","buy_quantity":2,"bundle_price":"2.50"}`,
			want:    BundlePrice{BuyProductID: "p3", BundleQuantity: decimal.NewFromInt(2), BundlePrice: decimal.RequireFromString("2.50")},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := DecodeConditions(tt.typ, []byte(tt.payload))
			require.NoError(t, err)
			assert.Equal(t, tt.typ, got.PromotionType())
			assert.Equal(t, tt.want.PromotionType(), got.PromotionType())
			assertConditionsEqual(t, tt.want, got)
		})
	}
}

func TestDecodeCartPercentageKeepsOptionalMinimum(t *testing.T) {
	got, err := DecodeConditions(PromoCartPercentage, []byte(`{"min_amount":50,"value":10}`))
	require.NoError(t, err)

	c, ok := got.(CartPercentage)
	require.True(t, ok)
	require.NotNil(t, c.MinAmount)
	assert.True(t, c.MinAmount.Equal(decimal.NewFromInt(50)))
	assert.True(t, c.Value.Equal(decimal.NewFromInt(10)))
}

func TestDecodeConditionsRejectsInconsistentRecords(t *testing.T) {
	tests := []struct {
		name    string
		typ     PromotionType
		payload string
	}{
		{"buy x get y without product", PromoBuyXGetY, `{"buy_quantity":3,"get_quantity":1}`},
		{"buy x get y with zero quantity", PromoBuyXGetY, `{"buy_product_id":"p1","buy_quantity":0,"get_quantity":1}`},
		{"spend amount without minimum", PromoSpendAmount, `{"value":5}`},
		{"cart percentage without value", PromoCartPercentage, `{"min_amount":5}`},
		{"product discount without product", PromoProductDiscount, `{"value":5}`},
		{"bundle without price", PromoBundlePrice, `{"buy_product_id":"p1","bundle_quantity":2}`},
		{"bundle without size", PromoBundlePrice, `{"buy_product_id":"p1","bundle_price":2}`},
		{"unknown type", PromotionType("mystery"), `{}`},
		{"malformed json", PromoCartFixed, `{"value":`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := DecodeConditions(tt.typ, []byte(tt.payload))
			assert.Error(t, err)
		})
	}
}

func TestEncodeDecodeConditions(t *testing.T) {
	original := BundlePrice{BuyProductID: "p9", BundleQuantity: decimal.NewFromInt(3), BundlePrice: decimal.RequireFromString("4.99")}

	payload, err := EncodeConditions(original)
	require.NoError(t, err)

	decoded, err := DecodeConditions(PromoBundlePrice, payload)
	require.NoError(t, err)
	assertConditionsEqual(t, original, decoded)
}

func TestCartLineTotalAndSubtotal(t *testing.T) {
	lines := []CartLine{
		{ProductID: "a", Quantity: decimal.RequireFromString("1.5"), UnitPrice: decimal.RequireFromString("2.00")},
		{ProductID: "b", Quantity: decimal.NewFromInt(2), UnitPrice: decimal.RequireFromString("0.25")},
	}
	assert.True(t, lines[0].Total().Equal(decimal.RequireFromString("3")))
	assert.True(t, Subtotal(lines).Equal(decimal.RequireFromString("3.5")))
	assert.True(t, Subtotal(nil).IsZero())
}

func TestCustomerTypeValid(t *testing.T) {
	assert.True(t, CustomerProfessional.Valid())
	assert.False(t, CustomerType("vip").Valid())
	assert.True(t, PromoBundlePrice.Valid())
	assert.False(t, PromotionType("").Valid())
}

// assertConditionsEqual compares decimals by value rather than representation.
func assertConditionsEqual(t *testing.T, want, got Conditions) {
	t.Helper()
	wantJSON, err := EncodeConditions(normalizeConditions(want))
	require.NoError(t, err)
	gotJSON, err := EncodeConditions(normalizeConditions(got))
	require.NoError(t, err)
	assert.JSONEq(t, string(wantJSON), string(gotJSON))
}

func normalizeConditions(c Conditions) Conditions {
	norm := func(d decimal.Decimal) decimal.Decimal { return decimal.RequireFromString(d.String()) }
	switch v := c.(type) {
	case BuyXGetY:
		v.BuyQuantity, v.GetQuantity = norm(v.BuyQuantity), norm(v.GetQuantity)
		return v
	case SpendAmount:
		v.MinAmount, v.Value = norm(v.MinAmount), norm(v.Value)
		return v
	case CartFixed:
		v.Value = norm(v.Value)
		return v
	case ProductDiscount:
		v.Value = norm(v.Value)
		return v
	case BundlePrice:
		v.BundleQuantity, v.BundlePrice = norm(v.BundleQuantity), norm(v.BundlePrice)
		return v
	}
	return c
}
