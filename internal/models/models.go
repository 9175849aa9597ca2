package models

import (
	"time"

	"github.com/lib/pq"
)

// Tenant represents a business selling bookable packages
type Tenant struct {
	ID                int64     `db:"id" json:"id"`
	Slug              string    `db:"slug" json:"slug"`
	Name              string    `db:"name" json:"name"`
	CommissionPercent float64   `db:"commission_percent" json:"commission_percent"`
	Active            bool      `db:"active" json:"active"`
	CalendarAccountID *string   `db:"calendar_account_id" json:"-"`
	CreatedAt         time.Time `db:"created_at" json:"created_at"`
}

// Segment groups tiers for storefront presentation; not used in pricing
type Segment struct {
	ID       int64  `db:"id" json:"id"`
	TenantID int64  `db:"tenant_id" json:"tenant_id"`
	Slug     string `db:"slug" json:"slug"`
	Name     string `db:"name" json:"name"`
}

// Booking types
const (
	BookingTypeDate     = "DATE"
	BookingTypeTimeslot = "TIMESLOT"
)

// Tier is a sellable package offering
type Tier struct {
	ID                int64  `db:"id" json:"id"`
	TenantID          int64  `db:"tenant_id" json:"tenant_id"`
	SegmentID         *int64 `db:"segment_id" json:"segment_id,omitempty"`
	Slug              string `db:"slug" json:"slug"`
	Name              string `db:"name" json:"name"`
	BasePriceCents    int64  `db:"base_price_cents" json:"base_price_cents"`
	DisplayPriceCents *int64 `db:"display_price_cents" json:"display_price_cents,omitempty"`
	BookingType       string `db:"booking_type" json:"booking_type"`
	DurationMinutes   *int   `db:"duration_minutes" json:"duration_minutes,omitempty"`
	MaxGuests         *int   `db:"max_guests" json:"max_guests,omitempty"`
	Active            bool   `db:"active" json:"active"`

	// Loaded separately, not a column
	ScalingComponents []ScalingComponent `db:"-" json:"scaling_components,omitempty"`
}

// ScalingComponent adds per-unit cost beyond an included baseline
type ScalingComponent struct {
	ID            int64  `db:"id" json:"id"`
	TierID        int64  `db:"tier_id" json:"tier_id"`
	Name          string `db:"name" json:"name"`
	IncludedUnits int    `db:"included_units" json:"included_units"`
	PerUnitCents  int64  `db:"per_unit_cents" json:"per_unit_cents"`
	MaxUnits      *int   `db:"max_units" json:"max_units,omitempty"`
}

// AddOn is an optional extra purchasable with a tier. A zero price is
// valid (bundled/no-charge add-on).
type AddOn struct {
	ID         int64  `db:"id" json:"id"`
	TenantID   int64  `db:"tenant_id" json:"tenant_id"`
	SegmentID  *int64 `db:"segment_id" json:"segment_id,omitempty"`
	Slug       string `db:"slug" json:"slug"`
	Name       string `db:"name" json:"name"`
	PriceCents int64  `db:"price_cents" json:"price_cents"`
}

// BlackoutDate blocks all bookings for a tenant on a date. Unique per
// (tenant, date).
type BlackoutDate struct {
	ID       int64     `db:"id" json:"id"`
	TenantID int64     `db:"tenant_id" json:"tenant_id"`
	Date     time.Time `db:"date" json:"date"`
	Reason   string    `db:"reason" json:"reason,omitempty"`
}

// AvailabilityRule defines tenant opening hours for one weekday, used to
// generate TIMESLOT-type slots. Minutes are counted from midnight.
type AvailabilityRule struct {
	ID          int64 `db:"id" json:"id"`
	TenantID    int64 `db:"tenant_id" json:"tenant_id"`
	Weekday     int   `db:"weekday" json:"weekday"` // 0=Sunday .. 6=Saturday
	OpenMinute  int   `db:"open_minute" json:"open_minute"`
	CloseMinute int   `db:"close_minute" json:"close_minute"`
}

// Booking statuses
const (
	BookingStatusPending   = "PENDING"
	BookingStatusPaid      = "PAID"
	BookingStatusFailed    = "FAILED"
	BookingStatusCancelled = "CANCELLED"
)

// Booking is the transactional record. Status transitions: PENDING->PAID,
// PENDING->FAILED, PENDING->CANCELLED, PAID->CANCELLED (refund). Never
// back to PENDING.
type Booking struct {
	ID                int64         `db:"id" json:"id"`
	TenantID          int64         `db:"tenant_id" json:"tenant_id"`
	TierID            int64         `db:"tier_id" json:"tier_id"`
	AddOnIDs          pq.Int64Array `db:"add_on_ids" json:"add_on_ids"`
	UnitCount         int           `db:"unit_count" json:"unit_count"`
	TotalCents        int64         `db:"total_cents" json:"total_cents"`
	PlatformFeeCents  *int64        `db:"platform_fee_cents" json:"platform_fee_cents,omitempty"`
	TenantPayoutCents *int64        `db:"tenant_payout_cents" json:"tenant_payout_cents,omitempty"`
	Status            string        `db:"status" json:"status"`
	IdempotencyKey    string        `db:"idempotency_key" json:"idempotency_key,omitempty"`
	SlotStart         time.Time     `db:"slot_start" json:"slot_start"`
	SlotEnd           *time.Time    `db:"slot_end" json:"slot_end,omitempty"`
	CustomerName      string        `db:"customer_name" json:"customer_name"`
	CustomerEmail     string        `db:"customer_email" json:"customer_email"`
	CheckoutSessionID string        `db:"checkout_session_id" json:"checkout_session_id,omitempty"`
	CalendarEventID   *string       `db:"calendar_event_id" json:"calendar_event_id,omitempty"`
	ReminderSent      bool          `db:"reminder_sent" json:"reminder_sent"`
	CreatedAt         time.Time     `db:"created_at" json:"created_at"`
	UpdatedAt         time.Time     `db:"updated_at" json:"updated_at"`
}

// Occupies reports whether the booking holds its slot. CANCELLED and
// FAILED bookings release capacity.
func (b *Booking) Occupies() bool {
	return b.Status == BookingStatusPending || b.Status == BookingStatusPaid
}

// AvailableSlot is one bookable slot or date returned by the resolver
type AvailableSlot struct {
	Start time.Time  `json:"start"`
	End   *time.Time `json:"end,omitempty"`
}

// IdempotencyRecord persists the result snapshot for a processed key
type IdempotencyRecord struct {
	Key       string    `db:"key" json:"key"`
	BookingID *int64    `db:"booking_id" json:"booking_id,omitempty"`
	Result    string    `db:"result" json:"result"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

// CommissionReport aggregates payout figures over PAID bookings
type CommissionReport struct {
	GrossTotalCents   int64 `db:"gross_total_cents" json:"gross_total_cents"`
	PlatformFeeCents  int64 `db:"platform_fee_cents" json:"platform_fee_cents"`
	TenantPayoutCents int64 `db:"tenant_payout_cents" json:"tenant_payout_cents"`
}
