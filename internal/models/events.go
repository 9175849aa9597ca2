package models

import "time"

// Event types
const (
	EventTypeBookingCreated       = "BOOKING_CREATED"
	EventTypeBookingPaid          = "BOOKING_PAID"
	EventTypeBookingPaymentFailed = "BOOKING_PAYMENT_FAILED"
	EventTypeBookingCancelled     = "BOOKING_CANCELLED"
	EventTypeAppointmentBooked    = "APPOINTMENT_BOOKED"
	EventTypeBookingReminderDue   = "BOOKING_REMINDER_DUE"
)

// BaseEvent contains common fields for all events
type BaseEvent struct {
	EventID   string    `json:"event_id"`
	EventType string    `json:"event_type"`
	Timestamp time.Time `json:"timestamp"`
}

// BookingCreatedEvent published when a PENDING booking is persisted
type BookingCreatedEvent struct {
	BaseEvent
	BookingID  int64     `json:"booking_id"`
	TenantID   int64     `json:"tenant_id"`
	TierID     int64     `json:"tier_id"`
	TotalCents int64     `json:"total_cents"`
	SlotStart  time.Time `json:"slot_start"`
}

// AppointmentBookedEvent published alongside BookingCreated for TIMESLOT
// tiers, carrying the concrete appointment window
type AppointmentBookedEvent struct {
	BaseEvent
	BookingID int64      `json:"booking_id"`
	TenantID  int64      `json:"tenant_id"`
	TierID    int64      `json:"tier_id"`
	SlotStart time.Time  `json:"slot_start"`
	SlotEnd   *time.Time `json:"slot_end,omitempty"`
}

// BookingPaidEvent published when payment is confirmed
type BookingPaidEvent struct {
	BaseEvent
	BookingID         int64      `json:"booking_id"`
	TenantID          int64      `json:"tenant_id"`
	TierID            int64      `json:"tier_id"`
	TotalCents        int64      `json:"total_cents"`
	PlatformFeeCents  int64      `json:"platform_fee_cents"`
	TenantPayoutCents int64      `json:"tenant_payout_cents"`
	SlotStart         time.Time  `json:"slot_start"`
	SlotEnd           *time.Time `json:"slot_end,omitempty"`
	CustomerEmail     string     `json:"customer_email"`
	ProviderEventID   string     `json:"provider_event_id"`
}

// BookingPaymentFailedEvent published when the provider reports failure
type BookingPaymentFailedEvent struct {
	BaseEvent
	BookingID       int64  `json:"booking_id"`
	TenantID        int64  `json:"tenant_id"`
	Reason          string `json:"reason"`
	CustomerEmail   string `json:"customer_email"`
	ProviderEventID string `json:"provider_event_id"`
}

// BookingCancelledEvent published on explicit cancellation
type BookingCancelledEvent struct {
	BaseEvent
	BookingID  int64  `json:"booking_id"`
	TenantID   int64  `json:"tenant_id"`
	WasPaid    bool   `json:"was_paid"`
	Reason     string `json:"reason"`
	TotalCents int64  `json:"total_cents"`
}

// BookingReminderDueEvent published by the reminder worker ahead of the
// scheduled slot
type BookingReminderDueEvent struct {
	BaseEvent
	BookingID     int64     `json:"booking_id"`
	TenantID      int64     `json:"tenant_id"`
	SlotStart     time.Time `json:"slot_start"`
	CustomerEmail string    `json:"customer_email"`
}
