package monitoring

import (
	"context"
	"runtime"
	"time"

	"blocktix/models"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	reservations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "reservations_total",
			Help: "Capacity reservations by outcome",
		},
		[]string{"result"},
	)

	conflictRetries = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "store_conflict_retries_total",
			Help: "Optimistic writes retried after a concurrent update",
		},
	)

	ticketsMinted = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "tickets_minted_total",
			Help: "Tickets minted by primary purchases",
		},
	)

	resaleTransfers = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "resale_operations_total",
			Help: "Resale market operations by kind and outcome",
		},
		[]string{"operation", "result"},
	)

	paymentRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "payment_requests_total",
			Help: "Wallet payment requests by outcome",
		},
		[]string{"result"},
	)

	unfulfilledPayments = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "unfulfilled_payments_total",
			Help: "Payments that cleared while the purchase did not complete",
		},
		[]string{"operation"},
	)

	purchaseDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "purchase_duration_seconds",
			Help:    "End-to-end purchase latency including wallet confirmation",
			Buckets: prometheus.ExponentialBuckets(0.05, 2, 10),
		},
		[]string{"operation"},
	)

	slotAvailability = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "slot_available_seats",
			Help: "Remaining seats per event slot",
		},
		[]string{"event_id", "slot"},
	)

	eventRemaining = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "event_remaining_seats",
			Help: "Remaining seats per event across all slots",
		},
		[]string{"event_id"},
	)

	goroutineCount = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "active_goroutines_total",
			Help: "Current number of active goroutines",
		},
	)
)

// CapacitySource exposes the latest known events.
type CapacitySource interface {
	Events() []*models.Event
}

type Monitor struct {
	source   CapacitySource
	interval time.Duration
}

func NewMonitor(source CapacitySource, interval time.Duration) *Monitor {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	return &Monitor{source: source, interval: interval}
}

// Start collects gauges every interval until ctx is done.
func (m *Monitor) Start(ctx context.Context) {
	go func() {
		ticker := time.NewTicker(m.interval)
		defer ticker.Stop()

		for {
			m.Collect()
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
			}
		}
	}()
}

// Collect refreshes the capacity and runtime gauges once.
func (m *Monitor) Collect() {
	slotAvailability.Reset()
	eventRemaining.Reset()

	for _, ev := range m.source.Events() {
		if s, ok := ev.Capacity.(*models.Slotted); ok {
			for _, label := range s.Labels {
				slotAvailability.WithLabelValues(ev.ID, label).Set(float64(s.Available[label]))
			}
		}
		if ev.Capacity != nil {
			_, remaining := ev.Capacity.Seats()
			eventRemaining.WithLabelValues(ev.ID).Set(float64(remaining))
		}
	}

	goroutineCount.Set(float64(runtime.NumGoroutine()))
}

func TrackReservation(result string) {
	reservations.WithLabelValues(result).Inc()
}

func TrackConflictRetry() {
	conflictRetries.Inc()
}

func TrackTicketsMinted(n int) {
	ticketsMinted.Add(float64(n))
}

func TrackResale(operation, result string) {
	resaleTransfers.WithLabelValues(operation, result).Inc()
}

func TrackPayment(result string) {
	paymentRequests.WithLabelValues(result).Inc()
}

func TrackUnfulfilledPayment(operation string) {
	unfulfilledPayments.WithLabelValues(operation).Inc()
}

func TrackPurchase(operation string, duration time.Duration) {
	purchaseDuration.WithLabelValues(operation).Observe(duration.Seconds())
}
