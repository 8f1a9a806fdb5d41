package memory

import (
	"context"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"kasirinaja/checkout/internal/domain"
	"kasirinaja/checkout/internal/errs"
	"kasirinaja/checkout/internal/promotion"
	"kasirinaja/checkout/internal/store"
	"kasirinaja/checkout/internal/xid"
)

type Store struct {
	mu             sync.RWMutex
	products       map[string]domain.Product
	aliases        map[string]string
	promotionsByID map[string]domain.Promotion
}

func New() *Store {
	return &Store{
		products:       make(map[string]domain.Product),
		aliases:        make(map[string]string),
		promotionsByID: make(map[string]domain.Promotion),
	}
}

// NewSeeded returns a store with a small demo catalog for dev mode.
func NewSeeded() *Store {
	s := New()

	price := decimal.RequireFromString
	products := []domain.Product{
		{ID: "prd-mie", Name: "Mie Goreng Instan", Barcode: "8998866200301", Price: price("3500"), VATRate: price("11"), Stock: price("120"), MinStock: price("24"), Active: true},
		{ID: "prd-telur", Name: "Telur 10 Butir", Barcode: "8992222100105", Price: price("26500"), VATRate: price("0"), Stock: price("40"), MinStock: price("10"), Active: true},
		{ID: "prd-susu", Name: "Susu UHT 1L", Barcode: "8993007000109", Price: price("18900"), VATRate: price("11"), Stock: price("60"), MinStock: price("12"), Active: true},
		{ID: "prd-kopi", Name: "Kopi Sachet", Barcode: "8991002101005", Price: price("2600"), VATRate: price("11"), Stock: price("200"), MinStock: price("50"), Active: true},
		{ID: "prd-gula", Name: "Gula 1kg", Barcode: "8997001800011", Price: price("17400"), VATRate: price("0"), Stock: price("8"), MinStock: price("15"), Active: true},
		{ID: "prd-air", Name: "Air Mineral 600ml", Barcode: "8886008101053", Price: price("3900"), VATRate: price("11"), Stock: price("144"), MinStock: price("48"), Active: true},
		{ID: "prd-jeruk", Name: "Jeruk Nipis (kg)", Price: price("24000"), VATRate: price("0"), Stock: price("12.5"), MinStock: price("5"), Active: true},
	}
	for _, p := range products {
		s.products[p.ID] = p
	}
	// Supplier repack of the instant noodles.
	s.aliases["8998866200318"] = "prd-mie"

	seededAt := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	promos := []domain.Promotion{
		{
			ID: "promo-mie-b4g1", Name: "Beli 4 Gratis 1 Mie", Type: domain.PromoBuyXGetY,
			Conditions: domain.BuyXGetY{BuyProductID: "prd-mie", BuyQuantity: price("4"), GetQuantity: price("1")},
			Active:     true, CustomerType: domain.CustomerAll, Schedule: domain.Schedule{Type: domain.ScheduleAlways},
			Priority: 10, CreatedAt: seededAt,
		},
		{
			ID: "promo-kopi-bundle", Name: "Kopi 10 Sachet", Type: domain.PromoBundlePrice,
			Conditions: domain.BundlePrice{BuyProductID: "prd-kopi", BundleQuantity: price("10"), BundlePrice: price("24000")},
			Active:     true, CustomerType: domain.CustomerAll, Schedule: domain.Schedule{Type: domain.ScheduleAlways},
			Priority: 5, CreatedAt: seededAt,
		},
		{
			ID: "promo-belanja-100k", Name: "Belanja 100rb Hemat 5%", Type: domain.PromoSpendAmount,
			Conditions: domain.SpendAmount{MinAmount: price("100000"), DiscountType: domain.DiscountPercentage, Value: price("5")},
			Active:     true, CustomerType: domain.CustomerAll, Schedule: domain.Schedule{Type: domain.ScheduleAlways},
			Priority: 1, CreatedAt: seededAt,
		},
		{
			ID: "promo-grosir", Name: "Diskon Grosir", Type: domain.PromoCartPercentage,
			Conditions: domain.CartPercentage{Value: price("3")},
			Active:     true, CustomerType: domain.CustomerProfessional,
			Schedule: domain.Schedule{Type: domain.ScheduleRecurringDays, Weekdays: []int{1, 2, 3, 4, 5}, TimeStart: "06:00", TimeEnd: "12:00"},
			Priority: 1, CreatedAt: seededAt,
		},
	}
	for _, p := range promos {
		s.promotionsByID[p.ID] = p
	}

	return s
}

func (s *Store) ListProducts(_ context.Context) ([]domain.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	products := make([]domain.Product, 0, len(s.products))
	for _, p := range s.products {
		products = append(products, p)
	}
	slices.SortFunc(products, func(a, b domain.Product) int {
		if a.Name == b.Name {
			return strings.Compare(a.ID, b.ID)
		}
		return strings.Compare(a.Name, b.Name)
	})
	return products, nil
}

func (s *Store) GetProduct(_ context.Context, id string) (*domain.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.products[id]
	if !ok {
		return nil, errs.Wrapf(store.ErrNotFound, "product %s", id)
	}
	return &p, nil
}

func (s *Store) GetProductsByIDs(_ context.Context, ids []string) (map[string]domain.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make(map[string]domain.Product, len(ids))
	for _, id := range ids {
		if p, ok := s.products[id]; ok {
			out[id] = p
		}
	}
	return out, nil
}

func (s *Store) UpsertProduct(_ context.Context, product domain.Product) (*domain.Product, error) {
	product.Name = strings.TrimSpace(product.Name)
	if product.Name == "" || product.Price.IsNegative() {
		return nil, errs.Newf("invalid product %q", product.ID)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if product.ID == "" {
		product.ID = xid.New("prd")
	}
	if product.Barcode != "" {
		for id, other := range s.products {
			if id != product.ID && strings.EqualFold(other.Barcode, product.Barcode) {
				return nil, errs.Wrapf(store.ErrDuplicateBarcode, "barcode %s", product.Barcode)
			}
		}
	}
	s.products[product.ID] = product
	return &product, nil
}

func (s *Store) FindProductByBarcode(_ context.Context, digits string) (*domain.Product, error) {
	key := strings.ToLower(strings.TrimSpace(digits))
	if key == "" {
		return nil, errs.Wrap(store.ErrNotFound, "empty barcode")
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	if id, ok := s.aliases[key]; ok {
		if p, ok := s.products[id]; ok {
			return &p, nil
		}
	}
	for _, p := range s.products {
		if p.Barcode != "" && strings.EqualFold(p.Barcode, key) {
			return &p, nil
		}
	}
	return nil, errs.Wrapf(store.ErrNotFound, "barcode %s", digits)
}

func (s *Store) AddBarcodeAlias(_ context.Context, alias domain.BarcodeAlias) error {
	key := strings.ToLower(strings.TrimSpace(alias.Barcode))
	if key == "" {
		return errs.New("alias barcode is required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.products[alias.ProductID]; !ok {
		return errs.Wrapf(store.ErrNotFound, "product %s", alias.ProductID)
	}
	if current, ok := s.aliases[key]; ok && current != alias.ProductID {
		return errs.Wrapf(store.ErrDuplicateBarcode, "alias %s", alias.Barcode)
	}
	s.aliases[key] = alias.ProductID
	return nil
}

func (s *Store) ListBarcodeAliases(_ context.Context, productID string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]string, 0, 2)
	for barcode, id := range s.aliases {
		if id == productID {
			out = append(out, barcode)
		}
	}
	slices.Sort(out)
	return out, nil
}

func (s *Store) ListPromotions(_ context.Context) ([]domain.Promotion, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	promos := make([]domain.Promotion, 0, len(s.promotionsByID))
	for _, p := range s.promotionsByID {
		promos = append(promos, p)
	}
	// Map order is random; fix it before the stable priority sort.
	slices.SortFunc(promos, func(a, b domain.Promotion) int {
		return strings.Compare(a.ID, b.ID)
	})
	promotion.SortCandidates(promos)
	return promos, nil
}

func (s *Store) CreatePromotion(_ context.Context, promo domain.Promotion) (*domain.Promotion, error) {
	if strings.TrimSpace(promo.Name) == "" || !promo.Type.Valid() {
		return nil, store.ErrInvalidPromotion
	}
	if promo.Conditions == nil || promo.Conditions.PromotionType() != promo.Type {
		return nil, store.ErrInvalidPromotion
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if promo.ID == "" {
		promo.ID = xid.New("promo")
	}
	if promo.CreatedAt.IsZero() {
		promo.CreatedAt = time.Now().UTC()
	}
	s.promotionsByID[promo.ID] = promo
	saved := promo
	return &saved, nil
}

func (s *Store) SetPromotionActive(_ context.Context, id string, active bool) (*domain.Promotion, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	promo, ok := s.promotionsByID[id]
	if !ok {
		return nil, errs.Wrapf(store.ErrNotFound, "promotion %s", id)
	}
	promo.Active = active
	s.promotionsByID[id] = promo
	return &promo, nil
}

func (s *Store) AdjustStock(_ context.Context, productID string, delta decimal.Decimal) (*domain.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.products[productID]
	if !ok {
		return nil, errs.Wrapf(store.ErrNotFound, "product %s", productID)
	}
	next := p.Stock.Add(delta)
	if next.IsNegative() {
		return nil, errs.Wrapf(store.ErrInsufficientStock, "product %s has %s", productID, p.Stock)
	}
	p.Stock = next
	s.products[productID] = p
	return &p, nil
}

func (s *Store) ApplyStockChanges(_ context.Context, changes []store.StockChange) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	staged := make(map[string]decimal.Decimal, len(changes))
	for _, c := range changes {
		current, ok := staged[c.ProductID]
		if !ok {
			p, found := s.products[c.ProductID]
			if !found {
				return errs.Wrapf(store.ErrNotFound, "product %s", c.ProductID)
			}
			current = p.Stock
		}
		next := current.Add(c.Delta)
		if next.IsNegative() {
			return errs.Wrapf(store.ErrInsufficientStock, "product %s has %s", c.ProductID, current)
		}
		staged[c.ProductID] = next
	}

	for id, stock := range staged {
		p := s.products[id]
		p.Stock = stock
		s.products[id] = p
	}
	return nil
}
