package worker

import (
	"context"
	"errors"
	"time"

	"booking-service/internal/broker"
	"booking-service/internal/events"
	"booking-service/internal/models"
	"booking-service/internal/service"
	"booking-service/internal/util"

	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

const signatureHeader = "signature"

// WebhookWorker consumes payment-provider deliveries from the webhook
// topic and feeds them to the reconciler. The gateway enqueues the raw
// body as the message value with the signature header attached.
type WebhookWorker struct {
	consumer   *broker.Consumer
	reconciler *service.WebhookReconciler
	logger     *zap.Logger
}

// NewWebhookWorker creates a new webhook worker
func NewWebhookWorker(consumer *broker.Consumer, reconciler *service.WebhookReconciler) *WebhookWorker {
	return &WebhookWorker{
		consumer:   consumer,
		reconciler: reconciler,
		logger:     util.GetLogger(),
	}
}

// Start starts the worker
func (w *WebhookWorker) Start(ctx context.Context) error {
	w.logger.Info("Starting webhook worker")
	return w.consumer.StartConsuming(ctx, w.handleMessage)
}

// Stop stops the worker
func (w *WebhookWorker) Stop() error {
	w.logger.Info("Stopping webhook worker")
	return w.consumer.Close()
}

func (w *WebhookWorker) handleMessage(ctx context.Context, msg kafka.Message) error {
	var signature string
	for _, h := range msg.Headers {
		if h.Key == signatureHeader {
			signature = string(h.Value)
		}
	}

	err := w.reconciler.HandleProviderEvent(ctx, msg.Value, signature)
	if errors.Is(err, service.ErrInvalidSignature) {
		// Poison message; committing it beats redelivering forever.
		w.logger.Warn("Dropping unverifiable webhook message", zap.Error(err))
		return nil
	}
	return err
}

// CleanupRepository is the store slice the cleanup worker uses
type CleanupRepository interface {
	DeleteExpiredIdempotencyRecords(ctx context.Context, cutoff time.Time) (int64, error)
}

// CleanupWorker removes idempotency records older than the retention
// window. Records whose booking is still PENDING are kept by the query.
type CleanupWorker struct {
	repo      CleanupRepository
	retention time.Duration
	interval  time.Duration
	logger    *zap.Logger
}

// NewCleanupWorker creates a new cleanup worker
func NewCleanupWorker(repo CleanupRepository, retention, interval time.Duration) *CleanupWorker {
	return &CleanupWorker{
		repo:      repo,
		retention: retention,
		interval:  interval,
		logger:    util.GetLogger(),
	}
}

// Start runs the cleanup loop until the context is cancelled
func (w *CleanupWorker) Start(ctx context.Context) error {
	w.logger.Info("Starting idempotency cleanup worker",
		zap.Duration("retention", w.retention),
		zap.Duration("interval", w.interval))

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			w.runOnce(ctx)
		}
	}
}

func (w *CleanupWorker) runOnce(ctx context.Context) {
	cutoff := time.Now().Add(-w.retention)
	removed, err := w.repo.DeleteExpiredIdempotencyRecords(ctx, cutoff)
	if err != nil {
		w.logger.Error("Idempotency cleanup failed", zap.Error(err))
		return
	}
	if removed > 0 {
		util.IdempotencyRecordsCleaned.Add(float64(removed))
		w.logger.Info("Cleaned expired idempotency records", zap.Int64("removed", removed))
	}
}

// ReminderRepository is the store slice the reminder worker uses
type ReminderRepository interface {
	GetRemindableBookings(ctx context.Context, cutoff time.Time) ([]models.Booking, error)
	MarkBookingReminded(ctx context.Context, bookingID int64) (bool, error)
}

// ReminderWorker emits BookingReminderDue for PAID bookings approaching
// their slot. The reminded flag makes repeated scans no-ops.
type ReminderWorker struct {
	repo     ReminderRepository
	bus      *events.Bus
	lead     time.Duration
	interval time.Duration
	logger   *zap.Logger
}

// NewReminderWorker creates a new reminder worker
func NewReminderWorker(repo ReminderRepository, bus *events.Bus, lead, interval time.Duration) *ReminderWorker {
	return &ReminderWorker{
		repo:     repo,
		bus:      bus,
		lead:     lead,
		interval: interval,
		logger:   util.GetLogger(),
	}
}

// Start runs the reminder loop until the context is cancelled
func (w *ReminderWorker) Start(ctx context.Context) error {
	w.logger.Info("Starting reminder worker",
		zap.Duration("lead", w.lead),
		zap.Duration("interval", w.interval))

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			w.runOnce(ctx)
		}
	}
}

func (w *ReminderWorker) runOnce(ctx context.Context) {
	bookings, err := w.repo.GetRemindableBookings(ctx, time.Now().Add(w.lead))
	if err != nil {
		w.logger.Error("Failed to scan remindable bookings", zap.Error(err))
		return
	}

	for _, booking := range bookings {
		applied, err := w.repo.MarkBookingReminded(ctx, booking.ID)
		if err != nil {
			w.logger.Error("Failed to mark booking reminded",
				zap.Int64("booking_id", booking.ID),
				zap.Error(err))
			continue
		}
		if !applied {
			continue
		}

		util.RemindersSentTotal.Inc()
		w.bus.Emit(ctx, models.EventTypeBookingReminderDue, &models.BookingReminderDueEvent{
			BaseEvent: models.BaseEvent{
				EventID:   uuid.New().String(),
				EventType: models.EventTypeBookingReminderDue,
				Timestamp: time.Now().UTC(),
			},
			BookingID:     booking.ID,
			TenantID:      booking.TenantID,
			SlotStart:     booking.SlotStart,
			CustomerEmail: booking.CustomerEmail,
		})
	}
}
