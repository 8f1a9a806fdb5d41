package metrics

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	BurstEmitted    = "emitted"
	BurstDiscarded  = "discarded"
	BurstSuppressed = "suppressed"

	LookupFound    = "found"
	LookupNotFound = "not_found"
	LookupError    = "error"
)

// Recorder owns the pipeline counters. A nil *Recorder is valid and records nothing.
type Recorder struct {
	scanBursts  *prometheus.CounterVec
	scanLookups *prometheus.CounterVec
	resolutions *prometheus.CounterVec
}

func NewRecorder(reg prometheus.Registerer) *Recorder {
	r := &Recorder{
		scanBursts: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pos_scan_bursts_total",
				Help: "Key bursts classified by the scan recognizer.",
			},
			[]string{"outcome"},
		),
		scanLookups: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pos_scan_lookups_total",
				Help: "Catalog lookups for decoded barcodes.",
			},
			[]string{"result"},
		),
		resolutions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pos_promotion_resolutions_total",
				Help: "Promotion resolutions by whether a promotion was applied.",
			},
			[]string{"applied"},
		),
	}
	if reg != nil {
		reg.MustRegister(r.scanBursts, r.scanLookups, r.resolutions)
	}
	return r
}

func (r *Recorder) ScanBurst(outcome string) {
	if r == nil {
		return
	}
	r.scanBursts.WithLabelValues(outcome).Inc()
}

func (r *Recorder) ScanLookup(result string) {
	if r == nil {
		return
	}
	r.scanLookups.WithLabelValues(result).Inc()
}

func (r *Recorder) Resolution(applied bool) {
	if r == nil {
		return
	}
	r.resolutions.WithLabelValues(strconv.FormatBool(applied)).Inc()
}
