package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Gauges
var (
	ActiveSessions = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "pulsegen_active_sessions",
		Help: "Number of transmission sessions currently playing (0 or 1)",
	})
	BurstSamples = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "pulsegen_burst_samples",
		Help: "Length in samples of the most recently assembled burst",
	})
)

// Counters
var (
	SessionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pulsegen_sessions_total",
		Help: "Transmission sessions by outcome (started, rejected, completed, stopped)",
	}, []string{"outcome"})
	CyclesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pulsegen_cycles_total",
		Help: "Burst cycles by result (dispatched, late, failed)",
	}, []string{"result"})
	WatchdogFiredTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "pulsegen_watchdog_fired_total",
		Help: "Sessions forced to completion by the watchdog",
	})
	ExportsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pulsegen_exports_total",
		Help: "WAV exports by outcome (ok, insufficient_duration, error)",
	}, []string{"outcome"})
)

// Histograms
var (
	DispatchLead = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "pulsegen_dispatch_lead_ms",
		Help:    "Time between a cycle dispatch and its anchor, in milliseconds",
		Buckets: []float64{0, 5, 10, 25, 50, 75, 100, 150},
	})
	ExportBytes = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "pulsegen_export_bytes",
		Help:    "Size of exported WAV files",
		Buckets: prometheus.ExponentialBuckets(64*1024, 4, 8),
	})
)
