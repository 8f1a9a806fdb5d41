package main

import (
	"bufio"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"kasirinaja/checkout/internal/alerts"
	"kasirinaja/checkout/internal/cache"
	"kasirinaja/checkout/internal/config"
	"kasirinaja/checkout/internal/domain"
	"kasirinaja/checkout/internal/errs"
	"kasirinaja/checkout/internal/logging"
	"kasirinaja/checkout/internal/metrics"
	"kasirinaja/checkout/internal/recommendation"
	"kasirinaja/checkout/internal/service"
	"kasirinaja/checkout/internal/store"
	"kasirinaja/checkout/internal/store/memory"
	pgstore "kasirinaja/checkout/internal/store/postgres"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logrus.WithError(err).Fatal("load configuration")
	}
	logger := logging.New(cfg.LogLevel, cfg.LogFormat)
	if err := validateConfig(cfg); err != nil {
		logger.WithError(err).Fatal("invalid configuration")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger, os.Stdin, os.Stdout); err != nil {
		logger.WithError(err).Fatal("posd stopped")
	}
	logger.Info("posd stopped")
}

// input is one line on stdin: either a raw key event from the keyboard
// wedge bridge or a cashier command.
type input struct {
	domain.KeyEvent
	Command      string              `json:"command,omitempty"`
	CustomerType domain.CustomerType `json:"customer_type,omitempty"`
}

type output struct {
	Type   string              `json:"type"`
	Scan   *domain.ScanEvent   `json:"scan,omitempty"`
	Quote  *service.Quote      `json:"quote,omitempty"`
	Alerts []domain.StockAlert `json:"alerts,omitempty"`
	Error  string              `json:"error,omitempty"`
}

func run(ctx context.Context, cfg config.Config, logger *logrus.Logger, in io.Reader, out io.Writer) error {
	startCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	closers := make([]func() error, 0, 3)
	defer func() {
		for i := len(closers) - 1; i >= 0; i-- {
			if err := closers[i](); err != nil {
				logger.WithError(err).Warn("close error")
			}
		}
	}()

	var repo store.Repository
	if cfg.DatabaseURL != "" {
		pg, err := pgstore.New(startCtx, cfg.DatabaseURL, logger.WithField("component", "postgres"))
		if err != nil {
			return errs.Wrap(err, "postgres unavailable and DATABASE_URL is set; refusing to start with in-memory fallback")
		}
		closers = append(closers, pg.Close)
		if err := pg.Migrate(startCtx); err != nil {
			return errs.Wrap(err, "migrate postgres schema")
		}
		repo = pg
		logger.Info("repository: postgres")
	} else {
		repo = memory.NewSeeded()
		logger.Info("repository: in-memory")
	}

	productCache := cache.ProductCache(cache.NoopProductCache{})
	if cfg.RedisAddr != "" {
		redisCache := cache.NewRedisProductCache(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		if err := redisCache.Ping(startCtx); err != nil {
			logger.WithError(err).Warn("redis unavailable, using noop cache")
			_ = redisCache.Close()
		} else {
			productCache = redisCache
			closers = append(closers, redisCache.Close)
			logger.Info("cache: redis")
		}
	} else {
		logger.Info("cache: noop")
	}

	registry := prometheus.NewRegistry()
	recorder := metrics.NewRecorder(registry)
	if cfg.MetricsAddr != "" {
		closers = append(closers, serveMetrics(cfg.MetricsAddr, registry, logger))
	}

	svc := service.New(repo, productCache, logger, service.Options{
		BarcodeCacheTTL:      cfg.BarcodeCacheTTL(),
		FeedbackMaxPerSecond: cfg.FeedbackMaxPerSecond,
		Feedback:             &bell{w: os.Stderr},
		Metrics:              recorder,
		Nudges:               recommendation.NewEngine(decimal.Zero, decimal.Zero),
	})

	w := &writer{enc: json.NewEncoder(out), logger: logger}
	fired := alerts.NewFiredSet()
	reportAlerts(ctx, svc, fired, w)

	// Scan callbacks run on the lookup worker while commands may switch
	// the customer type.
	var customer atomic.Value
	customer.Store(cfg.CustomerType())
	currentCustomer := func() domain.CustomerType {
		return customer.Load().(domain.CustomerType)
	}

	var sess *service.Session
	sess, err := svc.OpenSession(cfg.TerminalID, cfg.ScannerConfig(), func(ev domain.ScanEvent) {
		w.write(output{Type: "scan", Scan: &ev})
		if ev.Product == nil {
			return
		}
		q, err := svc.Quote(ctx, sess, currentCustomer(), time.Now())
		if err != nil {
			w.write(output{Type: "error", Error: err.Error()})
			return
		}
		w.write(output{Type: "quote", Quote: &q})
	})
	if err != nil {
		return err
	}
	defer sess.Close()

	lines := make(chan []byte)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(in)
		for scanner.Scan() {
			line := append([]byte(nil), scanner.Bytes()...)
			select {
			case lines <- line:
			case <-ctx.Done():
				return
			}
		}
		if err := scanner.Err(); err != nil {
			logger.WithError(err).Warn("stdin read error")
		}
	}()

	logger.WithField("terminal_id", cfg.TerminalID).Info("reading key events from stdin")
	for {
		select {
		case <-ctx.Done():
			logger.Info("shutdown signal received")
			return nil
		case line, ok := <-lines:
			if !ok {
				return nil
			}
			var msg input
			if err := json.Unmarshal(line, &msg); err != nil {
				logger.WithError(err).Warn("skipping malformed input line")
				continue
			}
			if msg.CustomerType != "" {
				customer.Store(msg.CustomerType)
			}
			handle(ctx, svc, sess, fired, currentCustomer(), msg, w)
		}
	}
}

func handle(ctx context.Context, svc *service.Service, sess *service.Session, fired alerts.FiredSet, customer domain.CustomerType, msg input, w *writer) {
	switch msg.Command {
	case "":
		sess.HandleKey(msg.KeyEvent)
	case "quote":
		q, err := svc.Quote(ctx, sess, customer, time.Now())
		if err != nil {
			w.write(output{Type: "error", Error: err.Error()})
			return
		}
		w.write(output{Type: "quote", Quote: &q})
	case "checkout":
		q, err := svc.CompleteSale(ctx, sess, customer, time.Now())
		if err != nil {
			w.write(output{Type: "error", Error: err.Error()})
			return
		}
		w.write(output{Type: "sale", Quote: &q})
		reportAlerts(ctx, svc, fired, w)
	case "clear":
		sess.Clear()
	case "alerts":
		reportAlerts(ctx, svc, fired, w)
	case "scanner_on", "scanner_off":
		sess.SetScannerEnabled(msg.Command == "scanner_on")
	default:
		w.write(output{Type: "error", Error: "unknown command " + msg.Command})
	}
}

func reportAlerts(ctx context.Context, svc *service.Service, fired alerts.FiredSet, w *writer) {
	raised, err := svc.LowStockAlerts(ctx, fired)
	if err != nil {
		w.write(output{Type: "error", Error: err.Error()})
		return
	}
	if len(raised) > 0 {
		w.write(output{Type: "alerts", Alerts: raised})
	}
}

func serveMetrics(addr string, registry *prometheus.Registry, logger *logrus.Logger) func() error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
	server := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.WithField("addr", addr).Info("metrics listening")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.WithError(err).Error("metrics server error")
		}
	}()

	return func() error {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return server.Shutdown(ctx)
	}
}

// writer serializes output records; scans arrive from the lookup worker.
type writer struct {
	mu     sync.Mutex
	enc    *json.Encoder
	logger logrus.FieldLogger
}

func (w *writer) write(rec output) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if err := w.enc.Encode(rec); err != nil {
		w.logger.WithError(err).Warn("write output record")
	}
}

// bell rings the terminal once for a found product and twice otherwise.
type bell struct {
	mu sync.Mutex
	w  io.Writer
}

func (b *bell) Signal(_ context.Context, found bool) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	cue := "\a"
	if !found {
		cue = "\a\a"
	}
	_, err := io.WriteString(b.w, cue)
	return err
}

func validateConfig(cfg config.Config) error {
	if !cfg.CustomerType().Valid() {
		return errs.Mark(errs.Newf("DEFAULT_CUSTOMER_TYPE %q is not one of all, individual, professional", cfg.DefaultCustomerType), errs.ErrInvalidConfig)
	}
	if cfg.TerminalID == "" {
		return errs.Mark(errs.New("TERMINAL_ID must be set"), errs.ErrInvalidConfig)
	}
	if cfg.FeedbackMaxPerSecond < 0 {
		return errs.Mark(errs.Newf("FEEDBACK_MAX_PER_SECOND must not be negative, got %v", cfg.FeedbackMaxPerSecond), errs.ErrInvalidConfig)
	}
	return cfg.ScannerConfig().Validate()
}
