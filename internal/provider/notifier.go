package provider

import (
	"context"
	"time"

	"booking-service/internal/util"

	"go.uber.org/zap"
)

// BookingDetails is the payload for customer-facing notifications
type BookingDetails struct {
	BookingID  int64
	TenantName string
	TierName   string
	SlotStart  time.Time
	TotalCents int64
}

// Notifier delivers outbound customer email. It is invoked only from
// event subscribers, never inline in the booking flow.
type Notifier interface {
	SendBookingConfirmation(ctx context.Context, email string, details *BookingDetails) error
	SendPaymentFailed(ctx context.Context, email string, details *BookingDetails) error
	SendReminder(ctx context.Context, email string, details *BookingDetails) error
}

// LogNotifier writes notifications to the log instead of sending mail.
// Wired when no mail transport is configured.
type LogNotifier struct {
	logger *zap.Logger
}

// NewLogNotifier creates a log-only notifier
func NewLogNotifier() *LogNotifier {
	return &LogNotifier{logger: util.GetLogger()}
}

func (n *LogNotifier) SendBookingConfirmation(_ context.Context, email string, details *BookingDetails) error {
	n.logger.Info("Booking confirmation",
		zap.String("email", email),
		zap.Int64("booking_id", details.BookingID),
		zap.Time("slot_start", details.SlotStart))
	return nil
}

func (n *LogNotifier) SendPaymentFailed(_ context.Context, email string, details *BookingDetails) error {
	n.logger.Info("Payment failed notification",
		zap.String("email", email),
		zap.Int64("booking_id", details.BookingID))
	return nil
}

func (n *LogNotifier) SendReminder(_ context.Context, email string, details *BookingDetails) error {
	n.logger.Info("Booking reminder",
		zap.String("email", email),
		zap.Int64("booking_id", details.BookingID),
		zap.Time("slot_start", details.SlotStart))
	return nil
}
