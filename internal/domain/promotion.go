package domain

import (
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"

	"kasirinaja/checkout/internal/errs"
)

type PromotionType string

const (
	PromoBuyXGetY        PromotionType = "buy_x_get_y"
	PromoSpendAmount     PromotionType = "spend_amount_get_discount"
	PromoCartPercentage  PromotionType = "cart_percentage"
	PromoCartFixed       PromotionType = "cart_fixed"
	PromoProductDiscount PromotionType = "product_discount"
	PromoBundlePrice     PromotionType = "bundle_price"
)

func (t PromotionType) Valid() bool {
	switch t {
	case PromoBuyXGetY, PromoSpendAmount, PromoCartPercentage, PromoCartFixed, PromoProductDiscount, PromoBundlePrice:
		return true
	}
	return false
}

type CustomerType string

const (
	CustomerAll          CustomerType = "all"
	CustomerProfessional CustomerType = "professional"
	CustomerIndividual   CustomerType = "individual"
)

func (c CustomerType) Valid() bool {
	return c == CustomerAll || c == CustomerProfessional || c == CustomerIndividual
}

type DiscountType string

const (
	DiscountPercentage DiscountType = "percentage"
	DiscountFixed      DiscountType = "fixed"
)

type ScheduleType string

const (
	ScheduleAlways        ScheduleType = "always"
	ScheduleSpecificDates ScheduleType = "specific_dates"
	ScheduleRecurringDays ScheduleType = "recurring_days"
	ScheduleDateRange     ScheduleType = "date_range"
)

// Schedule holds the date and time-of-day windows of a promotion. Dates are
// YYYY-MM-DD, weekdays are 0=Sunday..6=Saturday, times are zero-padded HH:MM.
type Schedule struct {
	Type      ScheduleType `json:"schedule_type"`
	Dates     []string     `json:"dates,omitempty"`
	Weekdays  []int        `json:"days,omitempty"`
	DateStart string       `json:"date_start,omitempty"`
	DateEnd   string       `json:"date_end,omitempty"`
	TimeStart string       `json:"time_start,omitempty"`
	TimeEnd   string       `json:"time_end,omitempty"`
}

type Promotion struct {
	ID           string        `json:"id"`
	Name         string        `json:"name"`
	Type         PromotionType `json:"type"`
	Conditions   Conditions    `json:"-"`
	Active       bool          `json:"is_active"`
	CustomerType CustomerType  `json:"customer_type"`
	Schedule     Schedule      `json:"schedule"`
	Priority     int           `json:"priority"`
	CreatedAt    time.Time     `json:"created_at"`
}

// Conditions is the per-type rule payload of a promotion. Exactly one
// variant struct exists per PromotionType.
type Conditions interface {
	PromotionType() PromotionType
}

type BuyXGetY struct {
	BuyProductID string          `json:"buy_product_id"`
	BuyQuantity  decimal.Decimal `json:"buy_quantity"`
	GetProductID string          `json:"get_product_id,omitempty"`
	GetQuantity  decimal.Decimal `json:"get_quantity"`
}

type SpendAmount struct {
	MinAmount    decimal.Decimal `json:"min_amount"`
	DiscountType DiscountType    `json:"discount_type"`
	Value        decimal.Decimal `json:"value"`
}

type CartPercentage struct {
	MinAmount *decimal.Decimal `json:"min_amount,omitempty"`
	Value     decimal.Decimal  `json:"value"`
}

type CartFixed struct {
	MinAmount *decimal.Decimal `json:"min_amount,omitempty"`
	Value     decimal.Decimal  `json:"value"`
}

type ProductDiscount struct {
	BuyProductID string          `json:"buy_product_id"`
	DiscountType DiscountType    `json:"discount_type"`
	Value        decimal.Decimal `json:"value"`
}

type BundlePrice struct {
	BuyProductID   string          `json:"buy_product_id"`
	BundleQuantity decimal.Decimal `json:"bundle_quantity"`
	BundlePrice    decimal.Decimal `json:"bundle_price"`
}

func (BuyXGetY) PromotionType() PromotionType        { return PromoBuyXGetY }
func (SpendAmount) PromotionType() PromotionType     { return PromoSpendAmount }
func (CartPercentage) PromotionType() PromotionType  { return PromoCartPercentage }
func (CartFixed) PromotionType() PromotionType       { return PromoCartFixed }
func (ProductDiscount) PromotionType() PromotionType { return PromoProductDiscount }
func (BundlePrice) PromotionType() PromotionType     { return PromoBundlePrice }

type rawConditions struct {
	BuyProductID   *string          `json:"buy_product_id"`
	BuyQuantity    *decimal.Decimal `json:"buy_quantity"`
	GetProductID   *string          `json:"get_product_id"`
	GetQuantity    *decimal.Decimal `json:"get_quantity"`
	MinAmount      *decimal.Decimal `json:"min_amount"`
	DiscountType   *string          `json:"discount_type"`
	Value          *decimal.Decimal `json:"value"`
	BundleQuantity *decimal.Decimal `json:"bundle_quantity"`
	BundlePrice    *decimal.Decimal `json:"bundle_price"`
}

// DecodeConditions parses a stored conditions record into the variant for t.
// A record missing a field that t requires is reported as an error.
func DecodeConditions(t PromotionType, payload []byte) (Conditions, error) {
	var raw rawConditions
	if len(payload) > 0 {
		if err := json.Unmarshal(payload, &raw); err != nil {
			return nil, errs.Wrapf(err, "decode %s conditions", t)
		}
	}

	missing := func(field string) error {
		return errs.Newf("%s conditions: missing %s", t, field)
	}

	switch t {
	case PromoBuyXGetY:
		if raw.BuyProductID == nil || *raw.BuyProductID == "" {
			return nil, missing("buy_product_id")
		}
		if raw.BuyQuantity == nil || !raw.BuyQuantity.IsPositive() {
			return nil, missing("buy_quantity")
		}
		if raw.GetQuantity == nil || !raw.GetQuantity.IsPositive() {
			return nil, missing("get_quantity")
		}
		c := BuyXGetY{BuyProductID: *raw.BuyProductID, BuyQuantity: *raw.BuyQuantity, GetQuantity: *raw.GetQuantity}
		if raw.GetProductID != nil {
			c.GetProductID = *raw.GetProductID
		}
		return c, nil
	case PromoSpendAmount:
		if raw.MinAmount == nil {
			return nil, missing("min_amount")
		}
		if raw.Value == nil {
			return nil, missing("value")
		}
		c := SpendAmount{MinAmount: *raw.MinAmount, DiscountType: DiscountFixed, Value: *raw.Value}
		if raw.DiscountType != nil && DiscountType(*raw.DiscountType) == DiscountPercentage {
			c.DiscountType = DiscountPercentage
		}
		return c, nil
	case PromoCartPercentage:
		if raw.Value == nil {
			return nil, missing("value")
		}
		return CartPercentage{MinAmount: raw.MinAmount, Value: *raw.Value}, nil
	case PromoCartFixed:
		if raw.Value == nil {
			return nil, missing("value")
		}
		return CartFixed{MinAmount: raw.MinAmount, Value: *raw.Value}, nil
	case PromoProductDiscount:
		if raw.BuyProductID == nil || *raw.BuyProductID == "" {
			return nil, missing("buy_product_id")
		}
		if raw.Value == nil {
			return nil, missing("value")
		}
		c := ProductDiscount{BuyProductID: *raw.BuyProductID, DiscountType: DiscountFixed, Value: *raw.Value}
		if raw.DiscountType != nil && DiscountType(*raw.DiscountType) == DiscountPercentage {
			c.DiscountType = DiscountPercentage
		}
		return c, nil
	case PromoBundlePrice:
		if raw.BuyProductID == nil || *raw.BuyProductID == "" {
			return nil, missing("buy_product_id")
		}
		qty := raw.BundleQuantity
		if qty == nil {
			// The bundle size may be stored as buy_quantity.
			qty = raw.BuyQuantity
		}
		if qty == nil || !qty.IsPositive() {
			return nil, missing("bundle_quantity")
		}
		if raw.BundlePrice == nil {
			return nil, missing("bundle_price")
		}
		return BundlePrice{BuyProductID: *raw.BuyProductID, BundleQuantity: *qty, BundlePrice: *raw.BundlePrice}, nil
	}
	return nil, errs.Newf("unknown promotion type %q", t)
}

// EncodeConditions is the inverse of DecodeConditions for storage.
func EncodeConditions(c Conditions) ([]byte, error) {
	if c == nil {
		return []byte("{}"), nil
	}
	return json.Marshal(c)
}
