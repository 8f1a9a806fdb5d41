package cache

import (
	"context"
	"time"

	"kasirinaja/checkout/internal/domain"
)

// ProductCache memoizes barcode lookups. Only hits are cached so that a
// product created after an unknown scan is found on the next one.
type ProductCache interface {
	Get(ctx context.Context, barcode string) (*domain.Product, bool, error)
	Set(ctx context.Context, barcode string, product *domain.Product, ttl time.Duration) error
	Delete(ctx context.Context, barcode string) error
}

type NoopProductCache struct{}

func (NoopProductCache) Get(_ context.Context, _ string) (*domain.Product, bool, error) {
	return nil, false, nil
}

func (NoopProductCache) Set(_ context.Context, _ string, _ *domain.Product, _ time.Duration) error {
	return nil
}

func (NoopProductCache) Delete(_ context.Context, _ string) error {
	return nil
}

func barcodeKey(barcode string) string {
	return "pos:barcode:" + barcode
}
