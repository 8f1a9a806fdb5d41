package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

type Product struct {
	ID       string          `json:"id"`
	Name     string          `json:"name"`
	Barcode  string          `json:"barcode,omitempty"`
	Price    decimal.Decimal `json:"price"`
	VATRate  decimal.Decimal `json:"vat_rate"`
	Stock    decimal.Decimal `json:"stock"`
	MinStock decimal.Decimal `json:"min_stock"`
	Active   bool            `json:"active"`
}

// BarcodeAlias maps a secondary barcode to a canonical product.
type BarcodeAlias struct {
	Barcode   string `json:"barcode"`
	ProductID string `json:"product_id"`
}

type CartLine struct {
	ProductID string          `json:"product_id"`
	Quantity  decimal.Decimal `json:"quantity"`
	UnitPrice decimal.Decimal `json:"unit_price"`
}

// Total is the pre-discount line amount.
func (l CartLine) Total() decimal.Decimal {
	return l.Quantity.Mul(l.UnitPrice)
}

func Subtotal(lines []CartLine) decimal.Decimal {
	total := decimal.Zero
	for _, line := range lines {
		total = total.Add(line.Total())
	}
	return total
}

type FreeItem struct {
	ProductID string          `json:"product_id"`
	Quantity  decimal.Decimal `json:"quantity"`
	UnitPrice decimal.Decimal `json:"unit_price"`
}

type DiscountResult struct {
	Discount         decimal.Decimal `json:"discount"`
	AppliedPromotion *Promotion      `json:"applied_promotion,omitempty"`
	FreeItems        []FreeItem      `json:"free_items"`
}

func NoDiscount() DiscountResult {
	return DiscountResult{Discount: decimal.Zero, FreeItems: []FreeItem{}}
}

// KeyEvent is one raw key press as delivered by the input layer. LogicalKey
// is the physical key code (e.g. "Digit4", "Numpad4", "Enter"); ShiftedChar
// is the produced character when available.
type KeyEvent struct {
	LogicalKey       string `json:"logical_key"`
	ShiftedChar      string `json:"shifted_char,omitempty"`
	TimestampMS      int64  `json:"timestamp_ms"`
	TargetIsEditable bool   `json:"target_is_editable"`
	TargetOptsIn     bool   `json:"target_opts_in"`
}

func (e KeyEvent) Time() time.Time {
	return time.UnixMilli(e.TimestampMS)
}

// ScanEvent is reported once per completed burst, found or not.
type ScanEvent struct {
	Barcode   string    `json:"barcode"`
	Product   *Product  `json:"product,omitempty"`
	ScannedAt time.Time `json:"scanned_at"`
}

type StockAlert struct {
	ID        string          `json:"id"`
	Key       string          `json:"key"`
	Code      string          `json:"code"`
	Severity  string          `json:"severity"`
	ProductID string          `json:"product_id"`
	Name      string          `json:"name"`
	Title     string          `json:"title"`
	Stock     decimal.Decimal `json:"stock"`
	MinStock  decimal.Decimal `json:"min_stock"`
	CreatedAt time.Time       `json:"created_at"`
}

const (
	AlertCodeLowStock   = "low_stock"
	AlertCodeOutOfStock = "out_of_stock"
)

const (
	SeverityHigh   = "high"
	SeverityMedium = "medium"
)

const (
	NudgeUnitsToFreeItem  = "units_to_free_item"
	NudgeUnitsToBundle    = "units_to_bundle"
	NudgeSpendToThreshold = "spend_to_threshold"
)

// Nudge suggests the smallest cart change that unlocks a better promotion
// than the one currently applied.
type Nudge struct {
	PromotionID     string          `json:"promotion_id"`
	PromotionName   string          `json:"promotion_name"`
	ReasonCode      string          `json:"reason_code"`
	ProductID       string          `json:"product_id,omitempty"`
	MissingQuantity decimal.Decimal `json:"missing_quantity"`
	MissingAmount   decimal.Decimal `json:"missing_amount"`
	// Gain is how much more discount the change would bring.
	Gain decimal.Decimal `json:"gain"`
}
