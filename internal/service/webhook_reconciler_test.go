package service

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"booking-service/internal/events"
	"booking-service/internal/models"
	"booking-service/internal/provider"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type reconcilerFixture struct {
	repo     *fakeRepo
	guard    *fakeGuard
	verifier *provider.WebhookVerifier
	bus      *events.Bus
	wr       *WebhookReconciler

	bookingID int64
}

func newReconcilerFixture(t *testing.T) *reconcilerFixture {
	t.Helper()

	repo := newFakeRepo()
	repo.tenants[1] = &models.Tenant{ID: 1, Slug: "glamping-co", CommissionPercent: 8, Active: true}
	repo.tiers[10] = &models.Tier{
		ID: 10, TenantID: 1, Name: "Deluxe Cabin",
		BasePriceCents: 170000, BookingType: models.BookingTypeDate, Active: true,
	}

	booking := &models.Booking{
		TenantID:       1,
		TierID:         10,
		TotalCents:     170000,
		Status:         models.BookingStatusPending,
		IdempotencyKey: "key-wr",
		SlotStart:      time.Date(2025, 12, 20, 0, 0, 0, 0, time.UTC),
		CustomerEmail:  "ada@example.com",
	}
	require.NoError(t, repo.CreateBooking(context.Background(), booking))

	guard := newFakeGuard()
	verifier := provider.NewWebhookVerifier("whsec_test", 5*time.Minute)
	bus := events.NewBus()

	return &reconcilerFixture{
		repo:      repo,
		guard:     guard,
		verifier:  verifier,
		bus:       bus,
		wr:        NewWebhookReconciler(repo, guard, verifier, NewCommissionService(repo), bus),
		bookingID: booking.ID,
	}
}

func (fx *reconcilerFixture) signedEvent(t *testing.T, event provider.WebhookEvent) ([]byte, string) {
	t.Helper()
	payload, err := json.Marshal(event)
	require.NoError(t, err)
	return payload, fx.verifier.Sign(payload, time.Now())
}

func (fx *reconcilerFixture) paymentSucceeded(eventID string) provider.WebhookEvent {
	return provider.WebhookEvent{
		ID:          eventID,
		Type:        provider.EventPaymentSucceeded,
		AmountCents: 170000,
		Metadata:    map[string]string{provider.MetadataBookingID: "1"},
	}
}

func TestHandlePaymentSucceeded(t *testing.T) {
	fx := newReconcilerFixture(t)
	capture := &eventCapture{}
	capture.subscribe(fx.bus, models.EventTypeBookingPaid)

	payload, sig := fx.signedEvent(t, fx.paymentSucceeded("evt_1"))
	require.NoError(t, fx.wr.HandleProviderEvent(context.Background(), payload, sig))

	booking, err := fx.repo.GetBookingByID(context.Background(), fx.bookingID)
	require.NoError(t, err)
	assert.Equal(t, models.BookingStatusPaid, booking.Status)

	// 8% of 170000, rounded half-up; fee + payout covers the total.
	require.NotNil(t, booking.PlatformFeeCents)
	require.NotNil(t, booking.TenantPayoutCents)
	assert.Equal(t, int64(13600), *booking.PlatformFeeCents)
	assert.Equal(t, int64(156400), *booking.TenantPayoutCents)

	require.Equal(t, 1, capture.count())
	paid := capture.payloads[0].(*models.BookingPaidEvent)
	assert.Equal(t, fx.bookingID, paid.BookingID)
	assert.Equal(t, "evt_1", paid.ProviderEventID)
	assert.Equal(t, int64(170000), paid.TotalCents)
}

func TestHandleRedeliveredEventAppliesOnce(t *testing.T) {
	fx := newReconcilerFixture(t)
	capture := &eventCapture{}
	capture.subscribe(fx.bus, models.EventTypeBookingPaid)

	payload, sig := fx.signedEvent(t, fx.paymentSucceeded("evt_dup"))

	require.NoError(t, fx.wr.HandleProviderEvent(context.Background(), payload, sig))
	require.NoError(t, fx.wr.HandleProviderEvent(context.Background(), payload, sig))

	assert.Equal(t, 1, fx.repo.setPaidCalls)
	assert.Equal(t, 1, capture.count())
}

func TestHandleInFlightDuplicateRejected(t *testing.T) {
	fx := newReconcilerFixture(t)
	capture := &eventCapture{}
	capture.subscribe(fx.bus, models.EventTypeBookingPaid)

	payload, sig := fx.signedEvent(t, fx.paymentSucceeded("evt_racy"))

	// A copy of this event is mid-flight. If that copy later dies on a
	// transient failure, an ack here would lose the event for good, so
	// this delivery must be rejected.
	fx.guard.state["evt:evt_racy"] = "inflight"

	err := fx.wr.HandleProviderEvent(context.Background(), payload, sig)
	assert.ErrorIs(t, err, ErrIdempotencyConflict)
	assert.Equal(t, 0, fx.repo.setPaidCalls)

	booking, gerr := fx.repo.GetBookingByID(context.Background(), fx.bookingID)
	require.NoError(t, gerr)
	assert.Equal(t, models.BookingStatusPending, booking.Status)

	// The in-flight copy died and released the key; the provider's
	// redelivery now applies the transition.
	fx.guard.Release(context.Background(), "evt:evt_racy")
	require.NoError(t, fx.wr.HandleProviderEvent(context.Background(), payload, sig))
	assert.Equal(t, 1, fx.repo.setPaidCalls)
	assert.Equal(t, 1, capture.count())
}

func TestHandleInvalidSignature(t *testing.T) {
	fx := newReconcilerFixture(t)

	payload, sig := fx.signedEvent(t, fx.paymentSucceeded("evt_sig"))
	tampered := append([]byte{}, payload...)
	tampered[len(tampered)-2] ^= 0xff

	err := fx.wr.HandleProviderEvent(context.Background(), tampered, sig)
	assert.ErrorIs(t, err, ErrInvalidSignature)

	booking, gerr := fx.repo.GetBookingByID(context.Background(), fx.bookingID)
	require.NoError(t, gerr)
	assert.Equal(t, models.BookingStatusPending, booking.Status)
}

func TestHandleStaleSignatureRejected(t *testing.T) {
	fx := newReconcilerFixture(t)

	payload, err := json.Marshal(fx.paymentSucceeded("evt_old"))
	require.NoError(t, err)
	sig := fx.verifier.Sign(payload, time.Now().Add(-time.Hour))

	assert.ErrorIs(t, fx.wr.HandleProviderEvent(context.Background(), payload, sig), ErrInvalidSignature)
}

func TestHandleOrphanedEventAcknowledged(t *testing.T) {
	fx := newReconcilerFixture(t)

	cases := []struct {
		name     string
		metadata map[string]string
	}{
		{"missing booking_id", nil},
		{"malformed booking_id", map[string]string{provider.MetadataBookingID: "not-a-number"}},
		{"unknown booking", map[string]string{provider.MetadataBookingID: "9999"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			event := fx.paymentSucceeded("evt_orphan_" + tc.name)
			event.Metadata = tc.metadata
			payload, sig := fx.signedEvent(t, event)

			// Acknowledged so the provider stops retrying, but nothing
			// transitions.
			require.NoError(t, fx.wr.HandleProviderEvent(context.Background(), payload, sig))
			assert.Equal(t, 0, fx.repo.setPaidCalls)
		})
	}

	booking, err := fx.repo.GetBookingByID(context.Background(), fx.bookingID)
	require.NoError(t, err)
	assert.Equal(t, models.BookingStatusPending, booking.Status)
}

func TestHandlePaymentFailed(t *testing.T) {
	fx := newReconcilerFixture(t)
	capture := &eventCapture{}
	capture.subscribe(fx.bus, models.EventTypeBookingPaymentFailed)

	event := provider.WebhookEvent{
		ID:            "evt_fail",
		Type:          provider.EventPaymentFailed,
		FailureReason: "card_declined",
		Metadata:      map[string]string{provider.MetadataBookingID: "1"},
	}
	payload, sig := fx.signedEvent(t, event)
	require.NoError(t, fx.wr.HandleProviderEvent(context.Background(), payload, sig))

	booking, err := fx.repo.GetBookingByID(context.Background(), fx.bookingID)
	require.NoError(t, err)
	assert.Equal(t, models.BookingStatusFailed, booking.Status)
	assert.False(t, booking.Occupies(), "failed booking must release its slot")

	require.Equal(t, 1, capture.count())
	failed := capture.payloads[0].(*models.BookingPaymentFailedEvent)
	assert.Equal(t, "card_declined", failed.Reason)
}

func TestHandleEventForNonPendingBookingIsNoop(t *testing.T) {
	fx := newReconcilerFixture(t)
	capture := &eventCapture{}
	capture.subscribe(fx.bus, models.EventTypeBookingPaid)

	_, err := fx.repo.TransitionBookingStatus(context.Background(), fx.bookingID,
		models.BookingStatusPending, models.BookingStatusCancelled)
	require.NoError(t, err)

	payload, sig := fx.signedEvent(t, fx.paymentSucceeded("evt_late"))
	require.NoError(t, fx.wr.HandleProviderEvent(context.Background(), payload, sig))

	// CANCELLED is terminal; the late success event changes nothing.
	booking, gerr := fx.repo.GetBookingByID(context.Background(), fx.bookingID)
	require.NoError(t, gerr)
	assert.Equal(t, models.BookingStatusCancelled, booking.Status)
	assert.Equal(t, 0, capture.count())
}

func TestHandleUnknownEventTypeIgnored(t *testing.T) {
	fx := newReconcilerFixture(t)

	event := provider.WebhookEvent{
		ID:       "evt_other",
		Type:     "payout.settled",
		Metadata: map[string]string{provider.MetadataBookingID: "1"},
	}
	payload, sig := fx.signedEvent(t, event)
	require.NoError(t, fx.wr.HandleProviderEvent(context.Background(), payload, sig))

	booking, err := fx.repo.GetBookingByID(context.Background(), fx.bookingID)
	require.NoError(t, err)
	assert.Equal(t, models.BookingStatusPending, booking.Status)
}
