package broker

import (
	"context"
	"fmt"

	"booking-service/internal/events"
	"booking-service/internal/models"
)

// Relay mirrors in-process domain events to the booking-events topic so
// external consumers (reporting, payout batch jobs) can follow booking
// state without polling the store.
type Relay struct {
	producer *Producer
}

// NewRelay creates a relay over the producer
func NewRelay(producer *Producer) *Relay {
	return &Relay{producer: producer}
}

// Register subscribes the relay to every outbound domain event type
func (r *Relay) Register(bus *events.Bus) {
	for _, eventType := range []string{
		models.EventTypeBookingCreated,
		models.EventTypeAppointmentBooked,
		models.EventTypeBookingPaid,
		models.EventTypeBookingPaymentFailed,
		models.EventTypeBookingCancelled,
		models.EventTypeBookingReminderDue,
	} {
		bus.Subscribe(eventType, r.publish)
	}
}

func (r *Relay) publish(ctx context.Context, payload interface{}) error {
	return r.producer.PublishJSON(ctx, partitionKey(payload), payload)
}

// partitionKey keys messages by booking so per-booking ordering is
// preserved across partitions.
func partitionKey(payload interface{}) string {
	switch e := payload.(type) {
	case *models.BookingCreatedEvent:
		return fmt.Sprintf("booking-%d", e.BookingID)
	case *models.AppointmentBookedEvent:
		return fmt.Sprintf("booking-%d", e.BookingID)
	case *models.BookingPaidEvent:
		return fmt.Sprintf("booking-%d", e.BookingID)
	case *models.BookingPaymentFailedEvent:
		return fmt.Sprintf("booking-%d", e.BookingID)
	case *models.BookingCancelledEvent:
		return fmt.Sprintf("booking-%d", e.BookingID)
	case *models.BookingReminderDueEvent:
		return fmt.Sprintf("booking-%d", e.BookingID)
	default:
		return "booking-events"
	}
}
