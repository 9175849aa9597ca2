// Package subscriber wires the side-effecting consumers of domain events:
// customer email and external-calendar sync. Subscribers run after the
// state transition commits; their failures are logged by the bus and
// never roll back payment confirmation.
package subscriber

import (
	"context"
	"fmt"
	"time"

	"booking-service/internal/events"
	"booking-service/internal/models"
	"booking-service/internal/provider"
	"booking-service/internal/util"

	"go.uber.org/zap"
)

// EmailSubscriber sends customer notifications for booking lifecycle
// events.
type EmailSubscriber struct {
	notifier provider.Notifier
}

// NewEmailSubscriber creates an email subscriber
func NewEmailSubscriber(notifier provider.Notifier) *EmailSubscriber {
	return &EmailSubscriber{notifier: notifier}
}

// Register subscribes the email handlers on the bus
func (s *EmailSubscriber) Register(bus *events.Bus) {
	bus.Subscribe(models.EventTypeBookingPaid, s.onBookingPaid)
	bus.Subscribe(models.EventTypeBookingPaymentFailed, s.onPaymentFailed)
	bus.Subscribe(models.EventTypeBookingReminderDue, s.onReminderDue)
}

func (s *EmailSubscriber) onBookingPaid(ctx context.Context, payload interface{}) error {
	event, ok := payload.(*models.BookingPaidEvent)
	if !ok {
		return fmt.Errorf("unexpected payload type %T", payload)
	}
	return s.notifier.SendBookingConfirmation(ctx, event.CustomerEmail, &provider.BookingDetails{
		BookingID:  event.BookingID,
		SlotStart:  event.SlotStart,
		TotalCents: event.TotalCents,
	})
}

func (s *EmailSubscriber) onPaymentFailed(ctx context.Context, payload interface{}) error {
	event, ok := payload.(*models.BookingPaymentFailedEvent)
	if !ok {
		return fmt.Errorf("unexpected payload type %T", payload)
	}
	return s.notifier.SendPaymentFailed(ctx, event.CustomerEmail, &provider.BookingDetails{
		BookingID: event.BookingID,
	})
}

func (s *EmailSubscriber) onReminderDue(ctx context.Context, payload interface{}) error {
	event, ok := payload.(*models.BookingReminderDueEvent)
	if !ok {
		return fmt.Errorf("unexpected payload type %T", payload)
	}
	return s.notifier.SendReminder(ctx, event.CustomerEmail, &provider.BookingDetails{
		BookingID: event.BookingID,
		SlotStart: event.SlotStart,
	})
}

// CalendarRepository is the booking lookup/update slice the calendar
// subscriber needs.
type CalendarRepository interface {
	GetBookingByID(ctx context.Context, id int64) (*models.Booking, error)
	SetBookingCalendarEvent(ctx context.Context, bookingID int64, eventID string) error
}

// CalendarSubscriber mirrors paid bookings onto the tenant's external
// calendar and removes them on cancellation. Sync is best-effort.
type CalendarSubscriber struct {
	calendar provider.CalendarClient
	repo     CalendarRepository
	timeout  time.Duration
	logger   *zap.Logger
}

// NewCalendarSubscriber creates a calendar-sync subscriber
func NewCalendarSubscriber(calendar provider.CalendarClient, repo CalendarRepository, timeout time.Duration) *CalendarSubscriber {
	return &CalendarSubscriber{
		calendar: calendar,
		repo:     repo,
		timeout:  timeout,
		logger:   util.GetLogger(),
	}
}

// Register subscribes the calendar handlers on the bus
func (s *CalendarSubscriber) Register(bus *events.Bus) {
	bus.Subscribe(models.EventTypeBookingPaid, s.onBookingPaid)
	bus.Subscribe(models.EventTypeBookingCancelled, s.onBookingCancelled)
}

func (s *CalendarSubscriber) onBookingPaid(ctx context.Context, payload interface{}) error {
	event, ok := payload.(*models.BookingPaidEvent)
	if !ok {
		return fmt.Errorf("unexpected payload type %T", payload)
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	eventID, err := s.calendar.CreateEvent(ctx, event.TenantID, &provider.CalendarEvent{
		Title: fmt.Sprintf("Booking #%d", event.BookingID),
		Start: event.SlotStart,
		End:   event.SlotEnd,
	})
	if err != nil {
		// Left unsynced; the booking stays confirmed regardless.
		return fmt.Errorf("calendar sync failed for booking %d: %w", event.BookingID, err)
	}
	if eventID == "" {
		return nil
	}

	if err := s.repo.SetBookingCalendarEvent(ctx, event.BookingID, eventID); err != nil {
		s.logger.Error("Failed to record calendar event id",
			zap.Int64("booking_id", event.BookingID),
			zap.Error(err))
	}
	return nil
}

func (s *CalendarSubscriber) onBookingCancelled(ctx context.Context, payload interface{}) error {
	event, ok := payload.(*models.BookingCancelledEvent)
	if !ok {
		return fmt.Errorf("unexpected payload type %T", payload)
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	booking, err := s.repo.GetBookingByID(ctx, event.BookingID)
	if err != nil {
		return fmt.Errorf("failed to load cancelled booking %d: %w", event.BookingID, err)
	}
	if booking.CalendarEventID == nil || *booking.CalendarEventID == "" {
		return nil
	}

	if err := s.calendar.CancelEvent(ctx, event.TenantID, *booking.CalendarEventID); err != nil {
		return fmt.Errorf("calendar cancel failed for booking %d: %w", event.BookingID, err)
	}
	return nil
}
