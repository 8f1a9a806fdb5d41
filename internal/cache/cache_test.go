package cache

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"kasirinaja/checkout/internal/domain"
)

func TestNoopCacheAlwaysMisses(t *testing.T) {
	ctx := context.Background()
	var c ProductCache = NoopProductCache{}

	require.NoError(t, c.Set(ctx, "123456", &domain.Product{ID: "p"}, time.Minute))
	got, ok, err := c.Get(ctx, "123456")
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Nil(t, got)
	assert.NoError(t, c.Delete(ctx, "123456"))
}

func TestBarcodeKey(t *testing.T) {
	assert.Equal(t, "pos:barcode:8998866200301", barcodeKey("8998866200301"))
}

func TestRedisProductCacheRoundTrip(t *testing.T) {
	addr := os.Getenv("KASIRINAJA_TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("set KASIRINAJA_TEST_REDIS_ADDR to run redis integration test")
	}

	ctx := context.Background()
	c := NewRedisProductCache(addr, os.Getenv("KASIRINAJA_TEST_REDIS_PASSWORD"), 0)
	t.Cleanup(func() { _ = c.Close() })
	require.NoError(t, c.Ping(ctx))

	barcode := fmt.Sprintf("it%d", time.Now().UnixNano())
	t.Cleanup(func() { _ = c.Delete(ctx, barcode) })

	_, ok, err := c.Get(ctx, barcode)
	require.NoError(t, err)
	assert.False(t, ok)

	product := &domain.Product{ID: "prd-it", Name: "Teh Celup", Barcode: barcode, Price: decimal.RequireFromString("9800.50")}
	require.NoError(t, c.Set(ctx, barcode, product, time.Minute))

	got, ok, err := c.Get(ctx, barcode)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, product.ID, got.ID)
	assert.True(t, got.Price.Equal(product.Price))

	require.NoError(t, c.Delete(ctx, barcode))
	_, ok, err = c.Get(ctx, barcode)
	require.NoError(t, err)
	assert.False(t, ok)
}
