package metrics

import "github.com/prometheus/client_golang/prometheus"

// BookingMetrics exposes counters/histograms for the booking engine.
type BookingMetrics struct {
	bookingsTotal        *prometheus.CounterVec
	bookingLatency       *prometheus.HistogramVec
	lockWaitSeconds      prometheus.Histogram
	licenseVerifications *prometheus.CounterVec
}

func NewBookingMetrics(reg prometheus.Registerer) *BookingMetrics {
	m := &BookingMetrics{
		bookingsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "spabooking",
			Subsystem: "engine",
			Name:      "bookings_total",
			Help:      "Booking attempts by outcome and error code",
		}, []string{"operation", "outcome", "code"}),
		bookingLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "spabooking",
			Subsystem: "engine",
			Name:      "booking_latency_seconds",
			Help:      "End-to-end latency of booking operations",
			Buckets:   prometheus.DefBuckets,
		}, []string{"operation"}),
		lockWaitSeconds: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "spabooking",
			Subsystem: "engine",
			Name:      "provider_lock_wait_seconds",
			Help:      "Time spent waiting for the per-provider lock",
			Buckets:   []float64{.001, .005, .01, .05, .1, .5, 1, 3},
		}),
		licenseVerifications: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "spabooking",
			Subsystem: "license",
			Name:      "verifications_total",
			Help:      "License verifications by result and cache state",
		}, []string{"result", "cached"}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(m.bookingsTotal, m.bookingLatency, m.lockWaitSeconds, m.licenseVerifications)
	return m
}

func (m *BookingMetrics) ObserveBooking(operation, outcome, code string, seconds float64) {
	if m == nil {
		return
	}
	m.bookingsTotal.WithLabelValues(operation, outcome, code).Inc()
	m.bookingLatency.WithLabelValues(operation).Observe(seconds)
}

func (m *BookingMetrics) ObserveLockWait(seconds float64) {
	if m == nil {
		return
	}
	m.lockWaitSeconds.Observe(seconds)
}

func (m *BookingMetrics) ObserveLicenseVerification(result string, cached bool) {
	if m == nil {
		return
	}
	label := "false"
	if cached {
		label = "true"
	}
	m.licenseVerifications.WithLabelValues(result, label).Inc()
}
