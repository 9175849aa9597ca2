package provider

import (
	"context"
	"time"

	"booking-service/internal/util"

	"go.uber.org/zap"
)

// BusyPeriod is an occupied range on an external calendar
type BusyPeriod struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// CalendarEvent describes an event to create on the tenant's calendar
type CalendarEvent struct {
	Title       string
	Description string
	Start       time.Time
	End         *time.Time
}

// CalendarClient reads and writes the tenant's external calendar.
// ListBusyPeriods is best-effort: availability resolution degrades open
// when it fails. CreateEvent and CancelEvent are fire-and-forget from the
// booking flow's perspective.
type CalendarClient interface {
	ListBusyPeriods(ctx context.Context, tenantID int64, from, to time.Time) ([]BusyPeriod, error)
	CreateEvent(ctx context.Context, tenantID int64, event *CalendarEvent) (string, error)
	CancelEvent(ctx context.Context, tenantID int64, eventID string) error
}

// NoopCalendar is wired when a tenant has no calendar credentials
// configured. It reports no busy periods and swallows writes.
type NoopCalendar struct {
	logger *zap.Logger
}

// NewNoopCalendar creates a calendar client that does nothing
func NewNoopCalendar() *NoopCalendar {
	return &NoopCalendar{logger: util.GetLogger()}
}

func (n *NoopCalendar) ListBusyPeriods(_ context.Context, _ int64, _, _ time.Time) ([]BusyPeriod, error) {
	return nil, nil
}

func (n *NoopCalendar) CreateEvent(_ context.Context, tenantID int64, event *CalendarEvent) (string, error) {
	n.logger.Debug("Calendar disabled, skipping event creation",
		zap.Int64("tenant_id", tenantID),
		zap.String("title", event.Title))
	return "", nil
}

func (n *NoopCalendar) CancelEvent(_ context.Context, _ int64, _ string) error {
	return nil
}
