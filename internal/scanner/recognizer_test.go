package scanner_test

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"kasirinaja/checkout/internal/clock"
	"kasirinaja/checkout/internal/domain"
	"kasirinaja/checkout/internal/errs"
	"kasirinaja/checkout/internal/metrics"
	"kasirinaja/checkout/internal/scanner"
	scannermock "kasirinaja/checkout/internal/scanner/mock"
)

var epoch = time.Date(2024, 3, 15, 10, 0, 0, 0, time.UTC)

type harness struct {
	clock *clock.Fake
	rec   *scanner.Recognizer

	mu     sync.Mutex
	events []domain.ScanEvent
}

func newHarness(t *testing.T, cfg scanner.Config, opts ...scanner.Option) *harness {
	t.Helper()
	h := &harness{clock: clock.NewFake(epoch)}
	opts = append([]scanner.Option{
		scanner.WithClock(h.clock),
		scanner.WithOnScan(func(ev domain.ScanEvent) {
			h.mu.Lock()
			h.events = append(h.events, ev)
			h.mu.Unlock()
		}),
	}, opts...)

	rec, err := scanner.NewRecognizer(cfg, opts...)
	require.NoError(t, err)
	h.rec = rec
	t.Cleanup(rec.Close)
	return h
}

func (h *harness) typeDigits(digits string, gap time.Duration) {
	for _, d := range digits {
		h.rec.HandleKey(domain.KeyEvent{LogicalKey: "Digit" + string(d)})
		h.clock.Advance(gap)
	}
}

// flush waits for every queued lookup and returns the delivered events.
func (h *harness) flush() []domain.ScanEvent {
	h.rec.Close()
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]domain.ScanEvent(nil), h.events...)
}

func barcodes(events []domain.ScanEvent) []string {
	out := make([]string, 0, len(events))
	for _, ev := range events {
		out = append(out, ev.Barcode)
	}
	return out
}

func TestEmitsAfterIdleTimeout(t *testing.T) {
	h := newHarness(t, scanner.DefaultConfig())

	h.typeDigits("30176204", 20*time.Millisecond)
	assert.Equal(t, scanner.StateAccumulating, h.rec.State())

	h.clock.Advance(200 * time.Millisecond)
	assert.Equal(t, scanner.StateIdle, h.rec.State())

	events := h.flush()
	require.Len(t, events, 1)
	assert.Equal(t, "30176204", events[0].Barcode)
	assert.Nil(t, events[0].Product)
}

func TestIdleTimerRearmsOnEveryKey(t *testing.T) {
	h := newHarness(t, scanner.DefaultConfig())

	// Each key lands just before the previous deadline.
	h.typeDigits("12345678", 190*time.Millisecond)
	assert.Equal(t, scanner.StateAccumulating, h.rec.State())
	assert.Equal(t, 1, h.clock.Pending())

	h.clock.Advance(10 * time.Millisecond)
	assert.Equal(t, []string{"12345678"}, barcodes(h.flush()))
}

func TestShortBurstNeverEmits(t *testing.T) {
	reg := prometheus.NewRegistry()
	h := newHarness(t, scanner.DefaultConfig(), scanner.WithMetrics(metrics.NewRecorder(reg)))

	h.typeDigits("12345", 10*time.Millisecond)
	h.clock.Advance(time.Second)

	consumed := h.rec.HandleKey(domain.KeyEvent{LogicalKey: "Digit1"})
	assert.True(t, consumed)
	h.rec.HandleKey(domain.KeyEvent{LogicalKey: "Enter"})

	assert.Empty(t, h.flush())
	expected := `
# HELP pos_scan_bursts_total Key bursts classified by the scan recognizer.
# TYPE pos_scan_bursts_total counter
pos_scan_bursts_total{outcome="discarded"} 2
`
	assert.NoError(t, testutil.GatherAndCompare(reg, strings.NewReader(expected), "pos_scan_bursts_total"))
}

func TestTerminatorEmitsImmediately(t *testing.T) {
	for _, key := range []string{"Enter", "NumpadEnter", "Tab"} {
		t.Run(key, func(t *testing.T) {
			h := newHarness(t, scanner.DefaultConfig())
			h.typeDigits("4006381", 5*time.Millisecond)

			assert.True(t, h.rec.HandleKey(domain.KeyEvent{LogicalKey: key}))
			assert.Equal(t, scanner.StateIdle, h.rec.State())
			assert.Zero(t, h.clock.Pending())
			assert.Equal(t, []string{"4006381"}, barcodes(h.flush()))
		})
	}
}

func TestTerminatorWhileIdleIsNotConsumed(t *testing.T) {
	h := newHarness(t, scanner.DefaultConfig())
	assert.False(t, h.rec.HandleKey(domain.KeyEvent{LogicalKey: "Enter"}))
	assert.Empty(t, h.flush())
}

func TestZeroIdleTimeoutRequiresTerminator(t *testing.T) {
	cfg := scanner.DefaultConfig()
	cfg.IdleTimeout = 0
	h := newHarness(t, cfg)

	h.typeDigits("12345678", 0)
	h.clock.Advance(time.Minute)
	assert.Equal(t, scanner.StateAccumulating, h.rec.State())

	h.rec.HandleKey(domain.KeyEvent{LogicalKey: "Enter"})
	assert.Equal(t, []string{"12345678"}, barcodes(h.flush()))
}

func TestDuplicateWithinCooldownSuppressed(t *testing.T) {
	h := newHarness(t, scanner.DefaultConfig())
	scan := func() {
		h.typeDigits("5449000000996", 0)
		h.rec.HandleKey(domain.KeyEvent{LogicalKey: "Enter"})
	}

	scan()
	h.clock.Advance(time.Second)
	scan()
	h.clock.Advance(500 * time.Millisecond)
	scan()

	assert.Equal(t, []string{"5449000000996", "5449000000996"}, barcodes(h.flush()))
}

func TestCooldownIsPerBarcode(t *testing.T) {
	h := newHarness(t, scanner.DefaultConfig())
	for _, code := range []string{"111111", "222222", "111111"} {
		h.typeDigits(code, 0)
		h.rec.HandleKey(domain.KeyEvent{LogicalKey: "Enter"})
	}
	assert.Equal(t, []string{"111111", "222222"}, barcodes(h.flush()))
}

func TestEditableTargetIgnoredUnlessOptedIn(t *testing.T) {
	h := newHarness(t, scanner.DefaultConfig())

	consumed := h.rec.HandleKey(domain.KeyEvent{LogicalKey: "Digit1", TargetIsEditable: true})
	assert.False(t, consumed)
	assert.Equal(t, scanner.StateIdle, h.rec.State())

	consumed = h.rec.HandleKey(domain.KeyEvent{LogicalKey: "Digit1", TargetIsEditable: true, TargetOptsIn: true})
	assert.True(t, consumed)
	h.typeDigits("23456", 0)
	h.rec.HandleKey(domain.KeyEvent{LogicalKey: "Enter"})

	assert.Equal(t, []string{"123456"}, barcodes(h.flush()))
}

func TestNonDigitKeyAbortsBurst(t *testing.T) {
	h := newHarness(t, scanner.DefaultConfig())

	h.typeDigits("1234567", 0)
	consumed := h.rec.HandleKey(domain.KeyEvent{LogicalKey: "KeyA", ShiftedChar: "a"})
	assert.False(t, consumed)
	assert.Equal(t, scanner.StateIdle, h.rec.State())

	h.clock.Advance(time.Second)
	assert.Empty(t, h.flush())
}

func TestModifierKeysDoNotBreakBurst(t *testing.T) {
	h := newHarness(t, scanner.DefaultConfig())

	for _, ch := range []string{"&", "é", "\"", "'", "(", "-"} {
		h.rec.HandleKey(domain.KeyEvent{LogicalKey: "ShiftLeft"})
		h.rec.HandleKey(domain.KeyEvent{LogicalKey: "Unidentified", ShiftedChar: ch})
	}
	h.clock.Advance(200 * time.Millisecond)

	assert.Equal(t, []string{"123456"}, barcodes(h.flush()))
}

func TestDisableClearsBurst(t *testing.T) {
	h := newHarness(t, scanner.DefaultConfig())

	h.typeDigits("1234567", 0)
	h.rec.SetEnabled(false)
	assert.False(t, h.rec.Enabled())
	assert.Equal(t, scanner.StateIdle, h.rec.State())
	assert.Zero(t, h.clock.Pending())

	assert.False(t, h.rec.HandleKey(domain.KeyEvent{LogicalKey: "Digit8"}))
	h.clock.Advance(time.Second)

	h.rec.SetEnabled(true)
	h.typeDigits("87654321", 0)
	h.rec.HandleKey(domain.KeyEvent{LogicalKey: "Enter"})

	assert.Equal(t, []string{"87654321"}, barcodes(h.flush()))
}

func TestStartsDisabled(t *testing.T) {
	cfg := scanner.DefaultConfig()
	cfg.Enabled = false
	h := newHarness(t, cfg)

	assert.False(t, h.rec.HandleKey(domain.KeyEvent{LogicalKey: "Digit1"}))
	assert.Equal(t, scanner.StateIdle, h.rec.State())
}

func TestInvalidConfigRejected(t *testing.T) {
	tests := map[string]func(*scanner.Config){
		"zero min length":   func(c *scanner.Config) { c.MinLength = 0 },
		"negative idle":     func(c *scanner.Config) { c.IdleTimeout = -time.Millisecond },
		"negative cooldown": func(c *scanner.Config) { c.Cooldown = -time.Second },
	}
	for name, mutate := range tests {
		t.Run(name, func(t *testing.T) {
			cfg := scanner.DefaultConfig()
			mutate(&cfg)
			_, err := scanner.NewRecognizer(cfg)
			require.Error(t, err)
			assert.True(t, errs.Is(err, errs.ErrInvalidConfig))
		})
	}
}

func TestLookupResolvesProduct(t *testing.T) {
	ctrl := gomock.NewController(t)
	catalog := scannermock.NewMockCatalog(ctrl)
	feedback := scannermock.NewMockFeedback(ctrl)

	product := &domain.Product{ID: "p-1", Name: "Coffee", Price: decimal.NewFromInt(4)}
	catalog.EXPECT().FindByBarcode(gomock.Any(), "3017620422003").Return(product, nil)
	feedback.EXPECT().Signal(gomock.Any(), true).Return(nil)

	h := newHarness(t, scanner.DefaultConfig(), scanner.WithCatalog(catalog), scanner.WithFeedback(feedback))
	h.typeDigits("3017620422003", 0)
	h.rec.HandleKey(domain.KeyEvent{LogicalKey: "Enter"})

	events := h.flush()
	require.Len(t, events, 1)
	assert.Same(t, product, events[0].Product)
	assert.Equal(t, epoch, events[0].ScannedAt)
}

func TestLookupFailuresReportUnknownProduct(t *testing.T) {
	tests := map[string]error{
		"not found":     errs.Wrap(errs.ErrNotFound, "barcode 999999"),
		"backend error": errors.New("connection refused"),
	}
	for name, lookupErr := range tests {
		t.Run(name, func(t *testing.T) {
			ctrl := gomock.NewController(t)
			catalog := scannermock.NewMockCatalog(ctrl)
			feedback := scannermock.NewMockFeedback(ctrl)
			catalog.EXPECT().FindByBarcode(gomock.Any(), "999999").Return(nil, lookupErr)
			feedback.EXPECT().Signal(gomock.Any(), false).Return(nil)

			h := newHarness(t, scanner.DefaultConfig(), scanner.WithCatalog(catalog), scanner.WithFeedback(feedback))
			h.typeDigits("999999", 0)
			h.rec.HandleKey(domain.KeyEvent{LogicalKey: "Tab"})

			events := h.flush()
			require.Len(t, events, 1)
			assert.Equal(t, "999999", events[0].Barcode)
			assert.Nil(t, events[0].Product)
		})
	}
}

func TestFeedbackFailureDoesNotAffectScan(t *testing.T) {
	ctrl := gomock.NewController(t)
	feedback := scannermock.NewMockFeedback(ctrl)
	feedback.EXPECT().Signal(gomock.Any(), false).Return(errors.New("vibration unsupported"))
	feedback.EXPECT().Signal(gomock.Any(), false).DoAndReturn(func(context.Context, bool) error {
		panic("device gone")
	})

	h := newHarness(t, scanner.DefaultConfig(), scanner.WithFeedback(feedback))
	for _, code := range []string{"123456", "654321"} {
		h.typeDigits(code, 0)
		h.rec.HandleKey(domain.KeyEvent{LogicalKey: "Enter"})
	}

	assert.Equal(t, []string{"123456", "654321"}, barcodes(h.flush()))
}

func TestFeedbackRateLimited(t *testing.T) {
	ctrl := gomock.NewController(t)
	feedback := scannermock.NewMockFeedback(ctrl)
	feedback.EXPECT().Signal(gomock.Any(), gomock.Any()).Return(nil).Times(1)

	h := newHarness(t, scanner.DefaultConfig(),
		scanner.WithFeedback(feedback),
		scanner.WithFeedbackRate(0.001, 1),
	)
	for _, code := range []string{"111111", "222222", "333333"} {
		h.typeDigits(code, 0)
		h.rec.HandleKey(domain.KeyEvent{LogicalKey: "Enter"})
	}

	assert.Len(t, h.flush(), 3)
}

func TestLookupsDeliveredInEmitOrder(t *testing.T) {
	ctrl := gomock.NewController(t)
	catalog := scannermock.NewMockCatalog(ctrl)
	catalog.EXPECT().FindByBarcode(gomock.Any(), gomock.Any()).DoAndReturn(
		func(_ context.Context, digits string) (*domain.Product, error) {
			if digits == "100001" {
				// A slow first lookup must not let later scans overtake it.
				time.Sleep(20 * time.Millisecond)
			}
			return &domain.Product{ID: "p-" + digits}, nil
		},
	).Times(4)

	h := newHarness(t, scanner.DefaultConfig(), scanner.WithCatalog(catalog))
	codes := []string{"100001", "100002", "100003", "100004"}
	for _, code := range codes {
		h.typeDigits(code, 0)
		h.rec.HandleKey(domain.KeyEvent{LogicalKey: "Enter"})
	}

	assert.Equal(t, codes, barcodes(h.flush()))
}

func TestScanCallbackPanicIsContained(t *testing.T) {
	calls := 0
	rec, err := scanner.NewRecognizer(scanner.DefaultConfig(),
		scanner.WithClock(clock.NewFake(epoch)),
		scanner.WithOnScan(func(domain.ScanEvent) {
			calls++
			panic("cart closed")
		}),
	)
	require.NoError(t, err)

	for _, code := range []string{"123456", "654321"} {
		for _, d := range code {
			rec.HandleKey(domain.KeyEvent{LogicalKey: "Numpad" + string(d)})
		}
		rec.HandleKey(domain.KeyEvent{LogicalKey: "NumpadEnter"})
	}
	rec.Close()

	assert.Equal(t, 2, calls)
}

func TestCloseIsIdempotentAndStopsRecognition(t *testing.T) {
	h := newHarness(t, scanner.DefaultConfig())
	h.rec.Close()
	h.rec.Close()

	assert.False(t, h.rec.HandleKey(domain.KeyEvent{LogicalKey: "Digit1"}))
	assert.Empty(t, h.flush())
}
