package monitoring

import (
	"runtime"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	validations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "checkin_validations_total",
			Help: "Scan submissions by event, outcome and entry mode",
		},
		[]string{"event_id", "outcome", "manual"},
	)

	ledgerLatency = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "checkin_ledger_latency_seconds",
			Help:    "Latency of the atomic ledger transition",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 12),
		},
	)

	auditGaps = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "checkin_audit_gaps_total",
			Help: "Accepted redemptions whose attempt row could not be written",
		},
		[]string{"event_id"},
	)

	suppressedScans = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "checkin_suppressed_scans_total",
			Help: "Duplicate scans dropped by the per-device cool-down window",
		},
	)

	ticketAdminOps = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "checkin_ticket_admin_ops_total",
			Help: "Refund and reopen operations on tickets",
		},
		[]string{"operation", "status"},
	)

	goroutineCount = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "active_goroutines_total",
			Help: "Current number of active goroutines",
		},
	)
)

func TrackValidation(eventID, outcome string, manual bool) {
	validations.WithLabelValues(eventID, outcome, strconv.FormatBool(manual)).Inc()
}

func ObserveLedgerLatency(d time.Duration) {
	ledgerLatency.Observe(d.Seconds())
}

func TrackAuditGap(eventID string) {
	auditGaps.WithLabelValues(eventID).Inc()
}

func TrackSuppressedScan() {
	suppressedScans.Inc()
}

func TrackAdminOp(operation, status string) {
	ticketAdminOps.WithLabelValues(operation, status).Inc()
}

// StartRuntimeCollector samples process-level gauges in the
// background.
func StartRuntimeCollector(stop <-chan struct{}) {
	go func() {
		ticker := time.NewTicker(30 * time.Second)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				goroutineCount.Set(float64(runtime.NumGoroutine()))
			case <-stop:
				return
			}
		}
	}()
}
