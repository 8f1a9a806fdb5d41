package service

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"kasirinaja/checkout/internal/domain"
	"kasirinaja/checkout/internal/errs"
	"kasirinaja/checkout/internal/promotion"
	"kasirinaja/checkout/internal/store"
)

var hundred = decimal.NewFromInt(100)

// Quote is the priced view of a cart. Amounts are rounded to two places;
// the resolver itself never rounds.
type Quote struct {
	Lines            []domain.CartLine `json:"lines"`
	Subtotal         decimal.Decimal   `json:"subtotal"`
	Discount         decimal.Decimal   `json:"discount"`
	AppliedPromotion *domain.Promotion `json:"applied_promotion,omitempty"`
	FreeItems        []domain.FreeItem `json:"free_items"`
	VAT              decimal.Decimal   `json:"vat"`
	Total            decimal.Decimal   `json:"total"`
	Nudge            *domain.Nudge     `json:"nudge,omitempty"`
}

func (s *Service) Quote(ctx context.Context, sess *Session, customer domain.CustomerType, now time.Time) (Quote, error) {
	if customer == "" {
		customer = domain.CustomerAll
	}
	if !customer.Valid() {
		return Quote{}, errs.Mark(errs.Newf("unknown customer type %q", customer), errs.ErrInvalidCart)
	}

	lines := sess.Lines()
	promos, err := s.repo.ListPromotions(ctx)
	if err != nil {
		return Quote{}, errs.Wrap(err, "list promotions")
	}
	promotion.SortCandidates(promos)

	result := promotion.Resolve(lines, promos, customer, now)
	s.opts.Metrics.Resolution(result.AppliedPromotion != nil)

	vat, err := s.vat(ctx, lines)
	if err != nil {
		return Quote{}, err
	}

	subtotal := domain.Subtotal(lines)
	q := Quote{
		Lines:            lines,
		Subtotal:         subtotal.Round(2),
		Discount:         result.Discount.Round(2),
		AppliedPromotion: result.AppliedPromotion,
		FreeItems:        result.FreeItems,
		VAT:              vat.Round(2),
		Total:            subtotal.Sub(result.Discount).Add(vat).Round(2),
	}
	if s.opts.Nudges != nil {
		q.Nudge = s.opts.Nudges.Recommend(lines, promos, customer, now, result)
	}

	if result.AppliedPromotion != nil {
		sess.logger.WithFields(logrus.Fields{
			"promotion_id": result.AppliedPromotion.ID,
			"discount":     q.Discount.String(),
		}).Debug("promotion applied")
	}
	return q, nil
}

// vat is computed on pre-discount line totals.
func (s *Service) vat(ctx context.Context, lines []domain.CartLine) (decimal.Decimal, error) {
	if len(lines) == 0 {
		return decimal.Zero, nil
	}
	ids := make([]string, 0, len(lines))
	for _, line := range lines {
		ids = append(ids, line.ProductID)
	}
	products, err := s.repo.GetProductsByIDs(ctx, ids)
	if err != nil {
		return decimal.Zero, errs.Wrap(err, "load products for vat")
	}

	total := decimal.Zero
	for _, line := range lines {
		p, ok := products[line.ProductID]
		if !ok {
			continue
		}
		total = total.Add(line.Total().Mul(p.VATRate).Div(hundred))
	}
	return total, nil
}

// CompleteSale quotes the cart, takes the sold units out of stock in one
// batch and removes them from the cart. Free items are always priced from a
// cart line, so the lines already cover them. Lines scanned while the sale
// was in flight stay in the cart.
func (s *Service) CompleteSale(ctx context.Context, sess *Session, customer domain.CustomerType, now time.Time) (Quote, error) {
	q, err := s.Quote(ctx, sess, customer, now)
	if err != nil {
		return Quote{}, err
	}
	if len(q.Lines) == 0 {
		return Quote{}, errs.Mark(errs.New("cart is empty"), errs.ErrInvalidCart)
	}

	changes := make([]store.StockChange, 0, len(q.Lines))
	for _, line := range q.Lines {
		changes = append(changes, store.StockChange{ProductID: line.ProductID, Delta: line.Quantity.Neg()})
	}
	if err := s.repo.ApplyStockChanges(ctx, changes); err != nil {
		return Quote{}, errs.Wrap(err, "apply stock changes")
	}
	sess.deduct(q.Lines)

	sess.logger.WithFields(logrus.Fields{
		"total":    q.Total.String(),
		"discount": q.Discount.String(),
		"lines":    len(q.Lines),
	}).Info("sale completed")
	return q, nil
}
