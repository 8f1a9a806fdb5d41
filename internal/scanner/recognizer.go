package scanner

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"kasirinaja/checkout/internal/clock"
	"kasirinaja/checkout/internal/domain"
	"kasirinaja/checkout/internal/logging"
	"kasirinaja/checkout/internal/metrics"
)

type State int

const (
	StateIdle State = iota
	StateAccumulating
)

func (s State) String() string {
	if s == StateAccumulating {
		return "accumulating"
	}
	return "idle"
}

//go:generate mockgen -source=recognizer.go -destination=mock/mock.go -package=mock

// Catalog resolves a decoded barcode to a product. Implementations check the
// alias table before the product's own barcode.
type Catalog interface {
	FindByBarcode(ctx context.Context, digits string) (*domain.Product, error)
}

// Feedback is a best-effort haptic or audio cue.
type Feedback interface {
	Signal(ctx context.Context, found bool) error
}

type ScanFunc func(domain.ScanEvent)

type Option func(*Recognizer)

func WithClock(c clock.Clock) Option {
	return func(r *Recognizer) { r.clock = c }
}

func WithCatalog(c Catalog) Option {
	return func(r *Recognizer) { r.catalog = c }
}

func WithFeedback(f Feedback) Option {
	return func(r *Recognizer) { r.feedback = f }
}

// WithFeedbackRate caps feedback signals; extra signals are dropped.
func WithFeedbackRate(perSecond float64, burst int) Option {
	return func(r *Recognizer) {
		if perSecond > 0 {
			r.feedbackLimiter = rate.NewLimiter(rate.Limit(perSecond), max(1, burst))
		}
	}
}

func WithLogger(l logrus.FieldLogger) Option {
	return func(r *Recognizer) { r.logger = l }
}

func WithMetrics(m *metrics.Recorder) Option {
	return func(r *Recognizer) { r.metrics = m }
}

func WithOnScan(fn ScanFunc) Option {
	return func(r *Recognizer) { r.onScan = fn }
}

func WithLookupTimeout(d time.Duration) Option {
	return func(r *Recognizer) {
		if d > 0 {
			r.lookupTimeout = d
		}
	}
}

// scanBuffer is the transient state of one burst.
type scanBuffer struct {
	digits    []byte
	startedAt time.Time
	lastKeyAt time.Time
	scanning  bool
}

func (b *scanBuffer) reset() {
	b.digits = b.digits[:0]
	b.startedAt = time.Time{}
	b.lastKeyAt = time.Time{}
	b.scanning = false
}

// Recognizer classifies a key stream into scanner bursts and ordinary typing.
// HandleKey is safe for concurrent use; emitted barcodes are looked up one at
// a time on a single worker goroutine, in emit order.
type Recognizer struct {
	cfg             Config
	clock           clock.Clock
	catalog         Catalog
	feedback        Feedback
	feedbackLimiter *rate.Limiter
	logger          logrus.FieldLogger
	metrics         *metrics.Recorder
	onScan          ScanFunc
	lookupTimeout   time.Duration

	mu         sync.Mutex
	enabled    bool
	buf        scanBuffer
	timer      clock.Timer
	generation uint64
	recent     map[string]time.Time

	queue      *lookupQueue
	workerDone chan struct{}
	feedbackWG sync.WaitGroup
	closeOnce  sync.Once
}

func NewRecognizer(cfg Config, opts ...Option) (*Recognizer, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	r := &Recognizer{
		cfg:           cfg,
		clock:         clock.NewRealClock(),
		logger:        logging.Discard(),
		lookupTimeout: 3 * time.Second,
		enabled:       cfg.Enabled,
		recent:        make(map[string]time.Time),
		queue:         newLookupQueue(),
		workerDone:    make(chan struct{}),
	}
	for _, opt := range opts {
		opt(r)
	}

	go r.runLookups()
	return r, nil
}

// HandleKey feeds one key event into the state machine and reports whether
// the key was consumed as part of a burst.
func (r *Recognizer) HandleKey(ev domain.KeyEvent) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.enabled {
		return false
	}
	if isModifier(ev.LogicalKey) {
		return r.buf.scanning
	}

	if isTerminator(ev.LogicalKey) {
		if !r.buf.scanning {
			return false
		}
		if len(r.buf.digits) >= r.cfg.MinLength {
			r.emitLocked("terminator")
		} else {
			r.discardLocked("short burst at terminator")
		}
		return true
	}

	digit, ok := DecodeKey(ev)
	if !r.buf.scanning {
		if !ok {
			return false
		}
		if ev.TargetIsEditable && !ev.TargetOptsIn {
			return false
		}
		r.buf.scanning = true
		r.buf.startedAt = r.eventTime(ev)
	} else if !ok {
		r.discardLocked("non-digit key " + ev.LogicalKey)
		return false
	}

	r.buf.digits = append(r.buf.digits, digit)
	r.buf.lastKeyAt = r.eventTime(ev)
	r.armIdleTimerLocked()
	return true
}

// SetEnabled toggles recognition. Disabling drops the current burst and its
// idle timer; lookups already queued still complete.
func (r *Recognizer) SetEnabled(enabled bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.enabled = enabled
	if !enabled {
		r.resetLocked()
	}
}

func (r *Recognizer) Enabled() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.enabled
}

func (r *Recognizer) State() State {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.buf.scanning {
		return StateAccumulating
	}
	return StateIdle
}

// Close drops any partial burst, waits for queued lookups and in-flight
// feedback, then stops the worker.
func (r *Recognizer) Close() {
	r.closeOnce.Do(func() {
		r.mu.Lock()
		r.enabled = false
		r.resetLocked()
		r.mu.Unlock()

		r.queue.close()
		<-r.workerDone
		r.feedbackWG.Wait()
	})
}

func (r *Recognizer) eventTime(ev domain.KeyEvent) time.Time {
	if ev.TimestampMS > 0 {
		return ev.Time()
	}
	return r.clock.Now()
}

func (r *Recognizer) armIdleTimerLocked() {
	r.stopTimerLocked()
	if r.cfg.IdleTimeout <= 0 {
		return
	}
	gen := r.generation
	r.timer = r.clock.AfterFunc(r.cfg.IdleTimeout, func() { r.onIdle(gen) })
}

func (r *Recognizer) stopTimerLocked() {
	if r.timer != nil {
		r.timer.Stop()
		r.timer = nil
	}
	r.generation++
}

func (r *Recognizer) onIdle(gen uint64) {
	r.mu.Lock()
	defer r.mu.Unlock()

	// A newer key or a reset re-armed or cancelled this timer.
	if gen != r.generation || !r.buf.scanning {
		return
	}
	if len(r.buf.digits) >= r.cfg.MinLength {
		r.emitLocked("idle")
	} else {
		r.discardLocked("short burst at idle timeout")
	}
}

func (r *Recognizer) resetLocked() {
	r.stopTimerLocked()
	r.buf.reset()
}

func (r *Recognizer) discardLocked(reason string) {
	r.logger.WithFields(logrus.Fields{
		"length": len(r.buf.digits),
		"reason": reason,
	}).Debug("scan burst discarded")
	r.metrics.ScanBurst(metrics.BurstDiscarded)
	r.resetLocked()
}

func (r *Recognizer) emitLocked(trigger string) {
	barcode := string(r.buf.digits)
	burst := r.buf.lastKeyAt.Sub(r.buf.startedAt)
	r.resetLocked()

	now := r.clock.Now()
	r.pruneRecentLocked(now)
	if last, seen := r.recent[barcode]; seen && now.Sub(last) < r.cfg.Cooldown {
		r.logger.WithField("barcode", barcode).Debug("duplicate scan suppressed")
		r.metrics.ScanBurst(metrics.BurstSuppressed)
		return
	}
	r.recent[barcode] = now

	r.logger.WithFields(logrus.Fields{
		"barcode":  barcode,
		"trigger":  trigger,
		"burst_ms": burst.Milliseconds(),
	}).Debug("scan burst emitted")
	r.metrics.ScanBurst(metrics.BurstEmitted)

	if !r.queue.push(pendingLookup{barcode: barcode, scannedAt: now}) {
		r.logger.WithField("barcode", barcode).Warn("scan emitted after close; dropped")
	}
}

func (r *Recognizer) pruneRecentLocked(now time.Time) {
	for code, at := range r.recent {
		if now.Sub(at) >= r.cfg.Cooldown {
			delete(r.recent, code)
		}
	}
}
