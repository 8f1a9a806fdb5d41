package cache

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	redis "github.com/redis/go-redis/v9"

	"kasirinaja/checkout/internal/domain"
	"kasirinaja/checkout/internal/errs"
)

type RedisProductCache struct {
	client redis.UniversalClient
}

func NewRedisProductCache(addr string, password string, db int) *RedisProductCache {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	return &RedisProductCache{client: client}
}

// NewRedisProductCacheFromClient wraps an existing client, e.g. a shared pool.
func NewRedisProductCacheFromClient(client redis.UniversalClient) *RedisProductCache {
	return &RedisProductCache{client: client}
}

func (c *RedisProductCache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

func (c *RedisProductCache) Close() error {
	return c.client.Close()
}

func (c *RedisProductCache) Get(ctx context.Context, barcode string) (*domain.Product, bool, error) {
	val, err := c.client.Get(ctx, barcodeKey(barcode)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, errs.Wrapf(err, "redis get %s", barcode)
	}

	var product domain.Product
	if err := json.Unmarshal(val, &product); err != nil {
		return nil, false, errs.Wrapf(err, "decode cached product %s", barcode)
	}
	return &product, true, nil
}

func (c *RedisProductCache) Set(ctx context.Context, barcode string, product *domain.Product, ttl time.Duration) error {
	if product == nil {
		return nil
	}
	payload, err := json.Marshal(product)
	if err != nil {
		return errs.Wrap(err, "encode product")
	}
	return errs.Wrapf(c.client.Set(ctx, barcodeKey(barcode), payload, ttl).Err(), "redis set %s", barcode)
}

func (c *RedisProductCache) Delete(ctx context.Context, barcode string) error {
	return errs.Wrapf(c.client.Del(ctx, barcodeKey(barcode)).Err(), "redis del %s", barcode)
}
