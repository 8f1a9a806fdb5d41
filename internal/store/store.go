package store

import (
	"context"

	"github.com/shopspring/decimal"

	"kasirinaja/checkout/internal/domain"
	"kasirinaja/checkout/internal/errs"
)

var (
	ErrNotFound          = errs.ErrNotFound
	ErrDuplicateBarcode  = errs.New("barcode already assigned")
	ErrInsufficientStock = errs.New("insufficient stock")
	ErrInvalidPromotion  = errs.ErrInvalidPromotion
)

// StockChange is one product's stock delta within a batch.
type StockChange struct {
	ProductID string
	Delta     decimal.Decimal
}

// Repository is the catalog and promotion store behind a checkout terminal.
type Repository interface {
	ListProducts(ctx context.Context) ([]domain.Product, error)
	GetProduct(ctx context.Context, id string) (*domain.Product, error)
	GetProductsByIDs(ctx context.Context, ids []string) (map[string]domain.Product, error)
	UpsertProduct(ctx context.Context, product domain.Product) (*domain.Product, error)
	// FindProductByBarcode resolves digits through the alias table first and
	// the product's own barcode second. Matching ignores case.
	FindProductByBarcode(ctx context.Context, digits string) (*domain.Product, error)
	AddBarcodeAlias(ctx context.Context, alias domain.BarcodeAlias) error
	// ListBarcodeAliases returns the alias barcodes that resolve to productID.
	ListBarcodeAliases(ctx context.Context, productID string) ([]string, error)
	// ListPromotions returns every stored promotion, highest priority first
	// and newest first within a priority.
	ListPromotions(ctx context.Context) ([]domain.Promotion, error)
	CreatePromotion(ctx context.Context, promo domain.Promotion) (*domain.Promotion, error)
	SetPromotionActive(ctx context.Context, id string, active bool) (*domain.Promotion, error)
	AdjustStock(ctx context.Context, productID string, delta decimal.Decimal) (*domain.Product, error)
	// ApplyStockChanges applies every change or none of them. A change that
	// would take stock below zero fails the batch with ErrInsufficientStock.
	ApplyStockChanges(ctx context.Context, changes []StockChange) error
}
