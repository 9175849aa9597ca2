package util

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	BookingsCreatedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "bookings_created_total",
		Help: "Total number of bookings created",
	})

	BookingsPaidTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "bookings_paid_total",
		Help: "Total number of bookings confirmed paid",
	})

	BookingsFailedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "bookings_failed_total",
		Help: "Total number of failed booking attempts",
	}, []string{"reason"})

	BookingsCancelledTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "bookings_cancelled_total",
		Help: "Total number of cancelled bookings",
	})

	SlotConflictsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "slot_conflicts_total",
		Help: "Total number of booking attempts rejected because the slot was taken",
	})

	DuplicateRequestsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "duplicate_requests_total",
		Help: "Total number of requests deduplicated by idempotency key",
	})

	AvailabilityResolveLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "availability_resolve_latency_seconds",
		Help:    "Latency of availability resolution",
		Buckets: prometheus.DefBuckets,
	})

	CalendarLookupFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "calendar_lookup_failures_total",
		Help: "Total number of calendar busy-period lookups that failed open",
	})

	WebhookEventsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "webhook_events_total",
		Help: "Total number of payment-provider webhook events by result",
	}, []string{"result"})

	CheckoutSessionLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "checkout_session_latency_seconds",
		Help:    "Latency of provider checkout-session creation",
		Buckets: prometheus.DefBuckets,
	})

	SubscriberFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "event_subscriber_failures_total",
		Help: "Total number of event subscriber failures",
	}, []string{"event_type"})

	RemindersSentTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "reminders_sent_total",
		Help: "Total number of booking reminders emitted",
	})

	IdempotencyRecordsCleaned = promauto.NewCounter(prometheus.CounterOpts{
		Name: "idempotency_records_cleaned_total",
		Help: "Total number of expired idempotency records removed",
	})

	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "http_request_duration_seconds",
		Help:    "HTTP request latency",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path", "status"})

	HTTPRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "http_requests_total",
		Help: "Total number of HTTP requests",
	}, []string{"method", "path", "status"})
)
