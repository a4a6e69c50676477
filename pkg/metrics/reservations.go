package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Reservation outcomes.
const (
	ResultOK          = "ok"
	ResultDuplicate   = "duplicate"
	ResultOutOfStock  = "out_of_stock"
	ResultLockBusy    = "lock_unavailable"
	ResultConflict    = "state_conflict"
	ResultNotFound    = "not_found"
	ResultFailed      = "failed"
	RollbackPersist   = "persistence_failed"
	RollbackNegative  = "negative_counter"
	RollbackDuplicate = "duplicate"
	RollbackStale     = "stale_counter"
)

// ReservationMetrics instruments the claim path, the lock and event delivery.
type ReservationMetrics struct {
	outcomes  *prometheus.CounterVec
	lockWait  *prometheus.HistogramVec
	rollbacks *prometheus.CounterVec
	events    *prometheus.CounterVec
	reclaimed prometheus.Counter
}

func NewReservationMetrics(reg prometheus.Registerer) *ReservationMetrics {
	if reg == nil {
		return &ReservationMetrics{}
	}
	m := &ReservationMetrics{
		outcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "reservations",
			Name:      "operations_total",
			Help:      "Reservation operations by outcome.",
		}, []string{"operation", "result"}),
		lockWait: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "lock",
			Name:      "wait_seconds",
			Help:      "Time spent acquiring reservation locks.",
			Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
		}, []string{"acquired"}),
		rollbacks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "stock",
			Name:      "counter_rollbacks_total",
			Help:      "Compensating counter increments or invalidations.",
		}, []string{"reason"}),
		events: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "events",
			Name:      "published_total",
			Help:      "Lifecycle events handed to the event log.",
		}, []string{"event_type", "result"}),
		reclaimed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "reservations",
			Name:      "reclaimed_total",
			Help:      "Expired reservations cancelled by the reclaimer.",
		}),
	}
	reg.MustRegister(m.outcomes, m.lockWait, m.rollbacks, m.events, m.reclaimed)
	return m
}

func (m *ReservationMetrics) ObserveOutcome(operation, result string) {
	if m == nil || m.outcomes == nil {
		return
	}
	m.outcomes.WithLabelValues(normalizeLabel(operation), normalizeLabel(result)).Inc()
}

// ObserveLockWait satisfies lock.WaitObserver.
func (m *ReservationMetrics) ObserveLockWait(wait time.Duration, acquired bool) {
	if m == nil || m.lockWait == nil {
		return
	}
	m.lockWait.WithLabelValues(strconv.FormatBool(acquired)).Observe(wait.Seconds())
}

func (m *ReservationMetrics) IncCounterRollback(reason string) {
	if m == nil || m.rollbacks == nil {
		return
	}
	m.rollbacks.WithLabelValues(normalizeLabel(reason)).Inc()
}

// ObserveEvent satisfies events.Recorder.
func (m *ReservationMetrics) ObserveEvent(eventType string, ok bool) {
	if m == nil || m.events == nil {
		return
	}
	result := ResultOK
	if !ok {
		result = ResultFailed
	}
	m.events.WithLabelValues(normalizeLabel(eventType), result).Inc()
}

func (m *ReservationMetrics) AddReclaimed(n int) {
	if m == nil || m.reclaimed == nil || n <= 0 {
		return
	}
	m.reclaimed.Add(float64(n))
}
