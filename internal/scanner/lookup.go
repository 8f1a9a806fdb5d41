package scanner

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"kasirinaja/checkout/internal/domain"
	"kasirinaja/checkout/internal/errs"
	"kasirinaja/checkout/internal/metrics"
)

type pendingLookup struct {
	barcode   string
	scannedAt time.Time
}

// lookupQueue is an unbounded FIFO. push never blocks, so it can be called
// with the recognizer lock held without stalling key handling.
type lookupQueue struct {
	mu     sync.Mutex
	items  []pendingLookup
	closed bool
	notify chan struct{}
}

func newLookupQueue() *lookupQueue {
	return &lookupQueue{notify: make(chan struct{}, 1)}
}

func (q *lookupQueue) push(item pendingLookup) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return false
	}
	q.items = append(q.items, item)
	q.signal()
	return true
}

func (q *lookupQueue) close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.closed = true
	q.signal()
}

func (q *lookupQueue) signal() {
	select {
	case q.notify <- struct{}{}:
	default:
	}
}

// drain takes every queued item and reports whether the queue is closed.
func (q *lookupQueue) drain() ([]pendingLookup, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	items := q.items
	q.items = nil
	return items, q.closed
}

func (r *Recognizer) runLookups() {
	defer close(r.workerDone)

	for range r.queue.notify {
		items, closed := r.queue.drain()
		for _, item := range items {
			r.resolve(item)
		}
		if closed {
			// Anything pushed between drain and close was rejected by push.
			return
		}
	}
}

func (r *Recognizer) resolve(item pendingLookup) {
	log := r.logger.WithField("barcode", item.barcode)
	product := r.lookup(item.barcode, log)

	r.deliver(domain.ScanEvent{
		Barcode:   item.barcode,
		Product:   product,
		ScannedAt: item.scannedAt,
	}, log)
	r.signalFeedback(product != nil, log)
}

func (r *Recognizer) lookup(barcode string, log logrus.FieldLogger) *domain.Product {
	if r.catalog == nil {
		r.metrics.ScanLookup(metrics.LookupNotFound)
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), r.lookupTimeout)
	defer cancel()

	product, err := r.catalog.FindByBarcode(ctx, barcode)
	switch {
	case err != nil && errs.Is(err, errs.ErrNotFound):
		r.metrics.ScanLookup(metrics.LookupNotFound)
		return nil
	case err != nil:
		log.WithError(err).Warn("catalog lookup failed; treating scan as unknown product")
		r.metrics.ScanLookup(metrics.LookupError)
		return nil
	case product == nil:
		r.metrics.ScanLookup(metrics.LookupNotFound)
		return nil
	}
	r.metrics.ScanLookup(metrics.LookupFound)
	return product
}

func (r *Recognizer) deliver(ev domain.ScanEvent, log logrus.FieldLogger) {
	if r.onScan == nil {
		return
	}
	defer func() {
		if rec := recover(); rec != nil {
			log.WithField("panic", fmt.Sprint(rec)).Error("scan callback panicked")
		}
	}()
	r.onScan(ev)
}

// signalFeedback fires the cue on its own goroutine so a slow or broken
// device never holds up the lookup worker.
func (r *Recognizer) signalFeedback(found bool, log logrus.FieldLogger) {
	if r.feedback == nil {
		return
	}
	if r.feedbackLimiter != nil && !r.feedbackLimiter.Allow() {
		log.Debug("feedback throttled")
		return
	}

	r.feedbackWG.Add(1)
	go func() {
		defer r.feedbackWG.Done()
		defer func() {
			if rec := recover(); rec != nil {
				log.WithField("panic", fmt.Sprint(rec)).Warn("feedback panicked")
			}
		}()

		ctx, cancel := context.WithTimeout(context.Background(), r.lookupTimeout)
		defer cancel()
		if err := r.feedback.Signal(ctx, found); err != nil {
			log.WithError(err).Warn("feedback unavailable")
		}
	}()
}
