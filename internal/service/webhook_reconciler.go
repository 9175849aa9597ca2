package service

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"booking-service/internal/events"
	"booking-service/internal/idempotency"
	"booking-service/internal/models"
	"booking-service/internal/provider"
	"booking-service/internal/store"
	"booking-service/internal/util"

	"go.uber.org/zap"
)

// WebhookReconciler consumes asynchronous payment-provider events and
// applies at-most-once booking state transitions. Only it and the
// cancellation path mutate booking status after creation.
type WebhookReconciler struct {
	repo       Repository
	guard      IdempotencyGuard
	verifier   *provider.WebhookVerifier
	commission *CommissionService
	bus        *events.Bus
	logger     *zap.Logger
}

// NewWebhookReconciler creates a new webhook reconciler
func NewWebhookReconciler(
	repo Repository,
	guard IdempotencyGuard,
	verifier *provider.WebhookVerifier,
	commission *CommissionService,
	bus *events.Bus,
) *WebhookReconciler {
	return &WebhookReconciler{
		repo:       repo,
		guard:      guard,
		verifier:   verifier,
		commission: commission,
		bus:        bus,
		logger:     util.GetLogger(),
	}
}

// HandleProviderEvent verifies, deduplicates and applies one provider
// delivery. A nil return means the delivery is acknowledged and the
// provider must stop retrying; any error means reject so the provider
// re-delivers (bad signature, a copy still in flight, or a transient
// store failure).
func (wr *WebhookReconciler) HandleProviderEvent(ctx context.Context, rawBody []byte, sigHeader string) error {
	ctx, span := util.StartSpan(ctx, "WebhookReconciler.HandleProviderEvent")
	defer span.End()

	event, err := wr.verifier.VerifyAndParse(rawBody, sigHeader)
	if err != nil {
		util.WebhookEventsTotal.WithLabelValues("rejected").Inc()
		return fmt.Errorf("%w: %v", ErrInvalidSignature, err)
	}

	guardKey := "evt:" + event.ID
	check, err := wr.guard.CheckOrReserve(ctx, guardKey)
	if err != nil {
		return fmt.Errorf("failed to check event idempotency: %w", err)
	}
	switch check.Outcome {
	case idempotency.Duplicate:
		// Re-delivered event: acknowledged without re-triggering effects.
		wr.logger.Info("Webhook event already processed", zap.String("event_id", event.ID))
		util.WebhookEventsTotal.WithLabelValues("duplicate").Inc()
		return nil
	case idempotency.Conflict:
		// The first delivery is still mid-flight and may yet fail and
		// release the key. Rejecting this copy keeps the provider
		// retrying until one delivery completes or the event is recorded.
		wr.logger.Info("Webhook event in flight, rejecting duplicate delivery",
			zap.String("event_id", event.ID))
		util.WebhookEventsTotal.WithLabelValues("in_flight").Inc()
		return fmt.Errorf("%w: event %s still in flight", ErrIdempotencyConflict, event.ID)
	}

	completed := false
	defer func() {
		if !completed {
			wr.guard.Release(ctx, guardKey)
		}
	}()

	booking, orphanReason, err := wr.lookupBooking(ctx, event)
	if err != nil {
		return err
	}
	if booking == nil {
		// Acknowledge orphans so the provider stops retrying.
		wr.logger.Warn("Orphaned webhook event",
			zap.String("event_id", event.ID),
			zap.String("event_type", event.Type),
			zap.String("reason", orphanReason))
		util.WebhookEventsTotal.WithLabelValues("orphaned").Inc()
		if err := wr.guard.Complete(ctx, guardKey, nil, "orphaned"); err != nil {
			wr.logger.Error("Failed to record orphaned event", zap.Error(err))
		}
		completed = true
		return nil
	}

	switch event.Type {
	case provider.EventPaymentSucceeded:
		err = wr.applyPaymentSucceeded(ctx, event, booking)
	case provider.EventPaymentFailed:
		err = wr.applyPaymentFailed(ctx, event, booking)
	default:
		wr.logger.Info("Unhandled webhook event type",
			zap.String("event_id", event.ID),
			zap.String("event_type", event.Type))
		util.WebhookEventsTotal.WithLabelValues("ignored").Inc()
	}
	if err != nil {
		return err
	}

	if err := wr.guard.Complete(ctx, guardKey, &booking.ID, booking.Status); err != nil {
		wr.logger.Error("Failed to record processed event", zap.Error(err))
	}
	completed = true
	return nil
}

// applyPaymentSucceeded transitions PENDING -> PAID, records the
// commission split and emits BookingPaid. A booking already past PENDING
// makes this a no-op.
func (wr *WebhookReconciler) applyPaymentSucceeded(ctx context.Context, event *provider.WebhookEvent, booking *models.Booking) error {
	tenant, err := wr.repo.GetTenantByID(ctx, booking.TenantID)
	if err != nil {
		return fmt.Errorf("failed to load tenant: %w", err)
	}

	fee, payout := wr.commission.Split(booking.TotalCents, tenant.CommissionPercent)

	applied, err := wr.repo.SetBookingPaid(ctx, booking.ID, fee, payout)
	if err != nil {
		return fmt.Errorf("failed to mark booking paid: %w", err)
	}
	if !applied {
		wr.logger.Info("Booking already past PENDING, payment event is a no-op",
			zap.Int64("booking_id", booking.ID),
			zap.String("status", booking.Status))
		util.WebhookEventsTotal.WithLabelValues("noop").Inc()
		return nil
	}

	booking.Status = models.BookingStatusPaid
	booking.PlatformFeeCents = &fee
	booking.TenantPayoutCents = &payout

	util.BookingsPaidTotal.Inc()
	util.WebhookEventsTotal.WithLabelValues("paid").Inc()
	wr.logger.Info("Booking paid",
		zap.Int64("booking_id", booking.ID),
		zap.Int64("platform_fee_cents", fee),
		zap.Int64("tenant_payout_cents", payout))

	// Downstream effects (email, calendar sync) subscribe to this event;
	// their failure never rolls back the transition.
	wr.bus.Emit(ctx, models.EventTypeBookingPaid, &models.BookingPaidEvent{
		BaseEvent:         newBaseEvent(models.EventTypeBookingPaid),
		BookingID:         booking.ID,
		TenantID:          booking.TenantID,
		TierID:            booking.TierID,
		TotalCents:        booking.TotalCents,
		PlatformFeeCents:  fee,
		TenantPayoutCents: payout,
		SlotStart:         booking.SlotStart,
		SlotEnd:           booking.SlotEnd,
		CustomerEmail:     booking.CustomerEmail,
		ProviderEventID:   event.ID,
	})
	return nil
}

// applyPaymentFailed transitions PENDING -> FAILED, which releases the
// slot since FAILED bookings hold no capacity.
func (wr *WebhookReconciler) applyPaymentFailed(ctx context.Context, event *provider.WebhookEvent, booking *models.Booking) error {
	applied, err := wr.repo.TransitionBookingStatus(ctx, booking.ID, models.BookingStatusPending, models.BookingStatusFailed)
	if err != nil {
		return fmt.Errorf("failed to mark booking failed: %w", err)
	}
	if !applied {
		util.WebhookEventsTotal.WithLabelValues("noop").Inc()
		return nil
	}

	booking.Status = models.BookingStatusFailed
	util.BookingsFailedTotal.WithLabelValues("payment_declined").Inc()
	util.WebhookEventsTotal.WithLabelValues("failed").Inc()
	wr.logger.Warn("Booking payment failed",
		zap.Int64("booking_id", booking.ID),
		zap.String("reason", event.FailureReason))

	wr.bus.Emit(ctx, models.EventTypeBookingPaymentFailed, &models.BookingPaymentFailedEvent{
		BaseEvent:       newBaseEvent(models.EventTypeBookingPaymentFailed),
		BookingID:       booking.ID,
		TenantID:        booking.TenantID,
		Reason:          event.FailureReason,
		CustomerEmail:   booking.CustomerEmail,
		ProviderEventID: event.ID,
	})
	return nil
}

func (wr *WebhookReconciler) lookupBooking(ctx context.Context, event *provider.WebhookEvent) (*models.Booking, string, error) {
	raw, ok := event.Metadata[provider.MetadataBookingID]
	if !ok || raw == "" {
		return nil, "missing booking_id metadata", nil
	}
	bookingID, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return nil, "malformed booking_id metadata", nil
	}

	booking, err := wr.repo.GetBookingByID(ctx, bookingID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, "no matching booking", nil
		}
		// Store failure is not an orphan; surface it so the delivery is
		// retried.
		return nil, "", fmt.Errorf("failed to load booking for webhook: %w", err)
	}
	return booking, "", nil
}
