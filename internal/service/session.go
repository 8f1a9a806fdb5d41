package service

import (
	"context"
	"sync"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"kasirinaja/checkout/internal/domain"
	"kasirinaja/checkout/internal/errs"
	"kasirinaja/checkout/internal/scanner"
	"kasirinaja/checkout/internal/xid"
)

// Session is one terminal's open cart plus the scanner feeding it. Cart
// methods are safe to call while scans are arriving.
type Session struct {
	id         string
	terminalID string
	svc        *Service
	recognizer *scanner.Recognizer
	onScan     scanner.ScanFunc
	logger     logrus.FieldLogger

	mu    sync.Mutex
	lines []domain.CartLine
}

// OpenSession starts a cart for terminalID. Every completed scan is
// forwarded to onScan after a found, active product has been added to the
// cart; unknown barcodes arrive with a nil product.
func (s *Service) OpenSession(terminalID string, cfg scanner.Config, onScan scanner.ScanFunc) (*Session, error) {
	sess := &Session{
		id:         xid.New("cart"),
		terminalID: terminalID,
		svc:        s,
		onScan:     onScan,
	}
	sess.logger = s.logger.WithFields(logrus.Fields{
		"terminal_id": terminalID,
		"cart_id":     sess.id,
	})

	rec, err := scanner.NewRecognizer(cfg,
		scanner.WithCatalog(s.catalog),
		scanner.WithClock(s.clock),
		scanner.WithFeedback(s.opts.Feedback),
		scanner.WithFeedbackRate(s.opts.FeedbackMaxPerSecond, 1),
		scanner.WithLogger(sess.logger.WithField("component", "scanner")),
		scanner.WithMetrics(s.opts.Metrics),
		scanner.WithOnScan(sess.handleScan),
	)
	if err != nil {
		return nil, err
	}
	sess.recognizer = rec

	sess.logger.Info("checkout session opened")
	return sess, nil
}

func (s *Session) ID() string {
	return s.id
}

func (s *Session) TerminalID() string {
	return s.terminalID
}

func (s *Session) HandleKey(ev domain.KeyEvent) bool {
	return s.recognizer.HandleKey(ev)
}

func (s *Session) SetScannerEnabled(enabled bool) {
	s.recognizer.SetEnabled(enabled)
}

// Close waits for pending scans to be delivered before returning.
func (s *Session) Close() {
	s.recognizer.Close()
	s.logger.Info("checkout session closed")
}

func (s *Session) handleScan(ev domain.ScanEvent) {
	log := s.logger.WithField("barcode", ev.Barcode)
	switch {
	case ev.Product == nil:
		log.Info("unknown barcode scanned")
	case !ev.Product.Active:
		log.WithField("product_id", ev.Product.ID).Warn("inactive product scanned; not added")
	default:
		s.mu.Lock()
		s.addLocked(*ev.Product, decimal.NewFromInt(1))
		s.mu.Unlock()
		log.WithField("product_id", ev.Product.ID).Debug("scanned product added")
	}

	if s.onScan != nil {
		s.onScan(ev)
	}
}

// AddProduct adds qty units at the catalog price, merging with an existing
// line for the same product.
func (s *Session) AddProduct(ctx context.Context, productID string, qty decimal.Decimal) error {
	if !qty.IsPositive() {
		return errs.Mark(errs.Newf("quantity must be positive, got %s", qty), errs.ErrInvalidCart)
	}
	product, err := s.svc.repo.GetProduct(ctx, productID)
	if err != nil {
		return err
	}
	if !product.Active {
		return errs.Mark(errs.Newf("product %s is inactive", productID), errs.ErrInvalidCart)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.addLocked(*product, qty)
	return nil
}

func (s *Session) addLocked(product domain.Product, qty decimal.Decimal) {
	for i := range s.lines {
		if s.lines[i].ProductID == product.ID {
			s.lines[i].Quantity = s.lines[i].Quantity.Add(qty)
			return
		}
	}
	s.lines = append(s.lines, domain.CartLine{
		ProductID: product.ID,
		Quantity:  qty,
		UnitPrice: product.Price,
	})
}

// SetQuantity replaces a line's quantity; zero or less removes the line.
func (s *Session) SetQuantity(productID string, qty decimal.Decimal) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	idx := s.indexLocked(productID)
	if idx < 0 {
		return errs.Wrapf(errs.ErrNotFound, "cart line %s", productID)
	}
	if !qty.IsPositive() {
		s.lines = append(s.lines[:idx], s.lines[idx+1:]...)
		return nil
	}
	s.lines[idx].Quantity = qty
	return nil
}

// OverridePrice sets a manual unit price on a line.
func (s *Session) OverridePrice(productID string, price decimal.Decimal) error {
	if price.IsNegative() {
		return errs.Mark(errs.Newf("price must not be negative, got %s", price), errs.ErrInvalidCart)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	idx := s.indexLocked(productID)
	if idx < 0 {
		return errs.Wrapf(errs.ErrNotFound, "cart line %s", productID)
	}
	s.lines[idx].UnitPrice = price
	s.logger.WithFields(logrus.Fields{
		"product_id": productID,
		"price":      price.String(),
	}).Info("manual price override")
	return nil
}

func (s *Session) Lines() []domain.CartLine {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]domain.CartLine(nil), s.lines...)
}

func (s *Session) Clear() {
	s.mu.Lock()
	s.lines = nil
	s.mu.Unlock()
}

func (s *Session) indexLocked(productID string) int {
	for i, line := range s.lines {
		if line.ProductID == productID {
			return i
		}
	}
	return -1
}

// deduct takes sold quantities out of the cart. Units scanned after the
// sale was quoted stay behind.
func (s *Session) deduct(sold []domain.CartLine) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, line := range sold {
		idx := s.indexLocked(line.ProductID)
		if idx < 0 {
			continue
		}
		left := s.lines[idx].Quantity.Sub(line.Quantity)
		if !left.IsPositive() {
			s.lines = append(s.lines[:idx], s.lines[idx+1:]...)
			continue
		}
		s.lines[idx].Quantity = left
	}
}
