package service

import (
	"context"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"kasirinaja/checkout/internal/alerts"
	"kasirinaja/checkout/internal/cache"
	"kasirinaja/checkout/internal/clock"
	"kasirinaja/checkout/internal/domain"
	"kasirinaja/checkout/internal/errs"
	"kasirinaja/checkout/internal/logging"
	"kasirinaja/checkout/internal/metrics"
	"kasirinaja/checkout/internal/recommendation"
	"kasirinaja/checkout/internal/scanner"
	"kasirinaja/checkout/internal/store"
)

type Options struct {
	BarcodeCacheTTL      time.Duration
	FeedbackMaxPerSecond float64
	Feedback             scanner.Feedback
	Metrics              *metrics.Recorder
	Clock                clock.Clock
	// Nudges is optional; quotes carry no nudge without it.
	Nudges *recommendation.Engine
}

type Service struct {
	repo    store.Repository
	cache   cache.ProductCache
	logger  logrus.FieldLogger
	opts    Options
	clock   clock.Clock
	catalog *cachedCatalog
}

func New(repo store.Repository, productCache cache.ProductCache, logger logrus.FieldLogger, opts Options) *Service {
	if productCache == nil {
		productCache = cache.NoopProductCache{}
	}
	if logger == nil {
		logger = logging.Discard()
	}
	if opts.BarcodeCacheTTL <= 0 {
		opts.BarcodeCacheTTL = 5 * time.Minute
	}
	if opts.Clock == nil {
		opts.Clock = clock.NewRealClock()
	}

	s := &Service{
		repo:   repo,
		cache:  productCache,
		logger: logger,
		opts:   opts,
		clock:  opts.Clock,
	}
	s.catalog = &cachedCatalog{
		repo:   repo,
		cache:  productCache,
		ttl:    opts.BarcodeCacheTTL,
		logger: logger.WithField("component", "catalog"),
	}
	return s
}

// Catalog resolves scanned barcodes through the cache and then the store.
func (s *Service) Catalog() scanner.Catalog {
	return s.catalog
}

func (s *Service) ListProducts(ctx context.Context) ([]domain.Product, error) {
	return s.repo.ListProducts(ctx)
}

// UpsertProduct saves product and drops the cached lookup for its barcode.
func (s *Service) UpsertProduct(ctx context.Context, product domain.Product) (domain.Product, error) {
	product.Barcode = scanner.NormalizeBarcode(product.Barcode)

	var previous string
	if product.ID != "" {
		if existing, err := s.repo.GetProduct(ctx, product.ID); err == nil {
			previous = existing.Barcode
		}
	}

	saved, err := s.repo.UpsertProduct(ctx, product)
	if err != nil {
		return domain.Product{}, err
	}
	s.catalog.invalidate(ctx, previous)
	s.catalog.invalidate(ctx, saved.Barcode)
	// Alias keys cache the product too.
	aliases, err := s.repo.ListBarcodeAliases(ctx, saved.ID)
	if err != nil {
		s.logger.WithError(err).WithField("product_id", saved.ID).Warn("list barcode aliases for cache eviction")
	}
	for _, alias := range aliases {
		s.catalog.invalidate(ctx, alias)
	}

	s.logger.WithFields(logrus.Fields{
		"product_id": saved.ID,
		"barcode":    saved.Barcode,
	}).Info("product saved")
	return *saved, nil
}

// AddBarcodeAlias maps a secondary barcode to a product, e.g. after an
// unknown scan turned out to be a repack of an existing item.
func (s *Service) AddBarcodeAlias(ctx context.Context, barcode string, productID string) error {
	digits := scanner.NormalizeBarcode(barcode)
	if digits == "" {
		return errs.Mark(errs.Newf("barcode %q has no digits", barcode), errs.ErrInvalidCart)
	}
	if err := s.repo.AddBarcodeAlias(ctx, domain.BarcodeAlias{Barcode: digits, ProductID: productID}); err != nil {
		return err
	}
	s.catalog.invalidate(ctx, digits)

	s.logger.WithFields(logrus.Fields{
		"barcode":    digits,
		"product_id": productID,
	}).Info("barcode alias added")
	return nil
}

// LowStockAlerts reports stock alerts not yet in fired and records them there.
func (s *Service) LowStockAlerts(ctx context.Context, fired alerts.FiredSet) ([]domain.StockAlert, error) {
	products, err := s.repo.ListProducts(ctx)
	if err != nil {
		return nil, errs.Wrap(err, "list products for stock check")
	}

	raised := alerts.CheckStock(products, fired, s.clock.Now())
	for _, a := range raised {
		s.logger.WithFields(logrus.Fields{
			"product_id": a.ProductID,
			"code":       a.Code,
			"stock":      a.Stock.String(),
		}).Warn(a.Title)
	}
	return raised, nil
}

type cachedCatalog struct {
	repo   store.Repository
	cache  cache.ProductCache
	ttl    time.Duration
	logger logrus.FieldLogger
}

func (c *cachedCatalog) FindByBarcode(ctx context.Context, digits string) (*domain.Product, error) {
	digits = strings.TrimSpace(digits)

	product, ok, err := c.cache.Get(ctx, digits)
	if err != nil {
		c.logger.WithError(err).WithField("barcode", digits).Warn("barcode cache unavailable")
	} else if ok {
		return product, nil
	}

	product, err = c.repo.FindProductByBarcode(ctx, digits)
	if err != nil {
		return nil, err
	}
	if err := c.cache.Set(ctx, digits, product, c.ttl); err != nil {
		c.logger.WithError(err).WithField("barcode", digits).Warn("barcode cache write failed")
	}
	return product, nil
}

func (c *cachedCatalog) invalidate(ctx context.Context, barcode string) {
	if barcode == "" {
		return
	}
	if err := c.cache.Delete(ctx, barcode); err != nil {
		c.logger.WithError(err).WithField("barcode", barcode).Warn("barcode cache invalidation failed")
	}
}
