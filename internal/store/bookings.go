package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"booking-service/internal/models"
)

// CreateBooking inserts a PENDING booking. Both unique indexes are
// partial over occupying rows (PENDING, PAID): (tenant_id, tier_id,
// slot_start) is the final slot-concurrency arbiter, surfaced as
// ErrSlotConflict, and (idempotency_key) catches concurrent same-key
// requests as ErrDuplicateKey while letting a retry after a FAILED
// attempt insert a fresh row.
func (s *Store) CreateBooking(ctx context.Context, booking *models.Booking) error {
	query := `
		INSERT INTO bookings (
			tenant_id, tier_id, add_on_ids, unit_count, total_cents, status,
			idempotency_key, slot_start, slot_end, customer_name, customer_email
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		RETURNING id, created_at, updated_at`

	err := s.db.GetContext(ctx, booking, query,
		booking.TenantID, booking.TierID, booking.AddOnIDs, booking.UnitCount,
		booking.TotalCents, booking.Status, booking.IdempotencyKey,
		booking.SlotStart, booking.SlotEnd, booking.CustomerName, booking.CustomerEmail)
	if err != nil {
		return mapConstraintError(err)
	}
	return nil
}

// GetBookingByID retrieves a booking by ID
func (s *Store) GetBookingByID(ctx context.Context, id int64) (*models.Booking, error) {
	var booking models.Booking
	err := s.db.GetContext(ctx, &booking, "SELECT * FROM bookings WHERE id = $1", id)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("%w: booking %d", ErrNotFound, id)
	}
	if err != nil {
		return nil, err
	}
	return &booking, nil
}

// GetBookingByIdempotencyKey retrieves a booking by idempotency key.
// Returns (nil, nil) when no booking carries the key. FAILED attempts do
// not hold the key, so a key can accumulate dead rows plus at most one
// occupying one; prefer the occupying row, then the newest.
func (s *Store) GetBookingByIdempotencyKey(ctx context.Context, key string) (*models.Booking, error) {
	query := `
		SELECT * FROM bookings WHERE idempotency_key = $1
		ORDER BY (status IN ('PENDING', 'PAID')) DESC, created_at DESC
		LIMIT 1`

	var booking models.Booking
	err := s.db.GetContext(ctx, &booking, query, key)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &booking, nil
}

// GetOccupyingBookings retrieves non-released bookings for a tier whose
// slot start falls in [from, to). PENDING and PAID rows hold capacity.
func (s *Store) GetOccupyingBookings(ctx context.Context, tenantID, tierID int64, from, to time.Time) ([]models.Booking, error) {
	var bookings []models.Booking
	err := s.db.SelectContext(ctx, &bookings, `
		SELECT * FROM bookings
		WHERE tenant_id = $1 AND tier_id = $2
		  AND status IN ('PENDING', 'PAID')
		  AND slot_start >= $3 AND slot_start < $4
		ORDER BY slot_start`,
		tenantID, tierID, from, to)
	return bookings, err
}

// TransitionBookingStatus flips status only when the booking is still in
// the expected state. Returns false without error when the row was already
// past the transition, which makes replayed webhooks no-ops.
func (s *Store) TransitionBookingStatus(ctx context.Context, bookingID int64, from, to string) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		"UPDATE bookings SET status = $1, updated_at = NOW() WHERE id = $2 AND status = $3",
		to, bookingID, from)
	if err != nil {
		return false, err
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return rows > 0, nil
}

// SetBookingPaid transitions PENDING -> PAID and records the commission
// split in the same statement.
func (s *Store) SetBookingPaid(ctx context.Context, bookingID, platformFeeCents, tenantPayoutCents int64) (bool, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE bookings
		SET status = $1, platform_fee_cents = $2, tenant_payout_cents = $3, updated_at = NOW()
		WHERE id = $4 AND status = $5`,
		models.BookingStatusPaid, platformFeeCents, tenantPayoutCents,
		bookingID, models.BookingStatusPending)
	if err != nil {
		return false, err
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return rows > 0, nil
}

// SetBookingCheckoutSession records the provider session handle
func (s *Store) SetBookingCheckoutSession(ctx context.Context, bookingID int64, sessionID string) error {
	_, err := s.db.ExecContext(ctx,
		"UPDATE bookings SET checkout_session_id = $1, updated_at = NOW() WHERE id = $2",
		sessionID, bookingID)
	return err
}

// SetBookingCalendarEvent records the external calendar event id
func (s *Store) SetBookingCalendarEvent(ctx context.Context, bookingID int64, eventID string) error {
	_, err := s.db.ExecContext(ctx,
		"UPDATE bookings SET calendar_event_id = $1, updated_at = NOW() WHERE id = $2",
		eventID, bookingID)
	return err
}

// GetRemindableBookings retrieves PAID bookings starting before the cutoff
// that have not yet been reminded.
func (s *Store) GetRemindableBookings(ctx context.Context, cutoff time.Time) ([]models.Booking, error) {
	var bookings []models.Booking
	err := s.db.SelectContext(ctx, &bookings, `
		SELECT * FROM bookings
		WHERE status = 'PAID' AND NOT reminder_sent
		  AND slot_start > NOW() AND slot_start <= $1
		ORDER BY slot_start`,
		cutoff)
	return bookings, err
}

// MarkBookingReminded flips the reminder flag; returns false when another
// worker got there first.
func (s *Store) MarkBookingReminded(ctx context.Context, bookingID int64) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		"UPDATE bookings SET reminder_sent = TRUE, updated_at = NOW() WHERE id = $1 AND NOT reminder_sent",
		bookingID)
	if err != nil {
		return false, err
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return rows > 0, nil
}

// GetCommissionReport sums payout figures across PAID bookings for the
// tenant whose slot falls within the range.
func (s *Store) GetCommissionReport(ctx context.Context, tenantID int64, from, to time.Time) (*models.CommissionReport, error) {
	var report models.CommissionReport
	err := s.db.GetContext(ctx, &report, `
		SELECT
			COALESCE(SUM(total_cents), 0)          AS gross_total_cents,
			COALESCE(SUM(platform_fee_cents), 0)   AS platform_fee_cents,
			COALESCE(SUM(tenant_payout_cents), 0)  AS tenant_payout_cents
		FROM bookings
		WHERE tenant_id = $1 AND status = 'PAID'
		  AND slot_start >= $2 AND slot_start <= $3`,
		tenantID, from, to)
	if err != nil {
		return nil, err
	}
	return &report, nil
}

// CreateIdempotencyRecord persists the result snapshot for a key
func (s *Store) CreateIdempotencyRecord(ctx context.Context, rec *models.IdempotencyRecord) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO idempotency_records (key, booking_id, result)
		VALUES ($1, $2, $3)
		ON CONFLICT (key) DO NOTHING`,
		rec.Key, rec.BookingID, rec.Result)
	return err
}

// GetIdempotencyRecord retrieves the snapshot for a key, (nil, nil) when absent
func (s *Store) GetIdempotencyRecord(ctx context.Context, key string) (*models.IdempotencyRecord, error) {
	var rec models.IdempotencyRecord
	err := s.db.GetContext(ctx, &rec, "SELECT * FROM idempotency_records WHERE key = $1", key)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

// DeleteExpiredIdempotencyRecords removes records older than the cutoff,
// keeping any whose booking is still PENDING.
func (s *Store) DeleteExpiredIdempotencyRecords(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, `
		DELETE FROM idempotency_records r
		WHERE r.created_at < $1
		  AND NOT EXISTS (
			SELECT 1 FROM bookings b
			WHERE b.id = r.booking_id AND b.status = 'PENDING'
		  )`,
		cutoff)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
