package service

import "errors"

// Error taxonomy for the booking engine. Validation and pricing errors are
// caller mistakes; slot and provider errors are retryable; a uniqueness
// violation from the store is surfaced as ErrSlotUnavailable.
var (
	// ErrValidation covers bad input shape: unknown tenant/tier, inactive
	// tenant, missing idempotency key, malformed dates.
	ErrValidation = errors.New("validation failed")

	// ErrSlotUnavailable means the requested slot is taken or blacked out.
	// Retryable with a different slot.
	ErrSlotUnavailable = errors.New("slot unavailable")

	// ErrIdempotencyConflict means a request with the same key is still in
	// flight. Callers should retry after backoff.
	ErrIdempotencyConflict = errors.New("idempotency conflict")

	// ErrProviderUnavailable means the payment provider could not be
	// reached. Booking creation fails closed on it.
	ErrProviderUnavailable = errors.New("payment provider unavailable")

	// ErrInvalidSignature means a webhook payload failed verification. The
	// delivery is rejected so the provider retries.
	ErrInvalidSignature = errors.New("invalid webhook signature")

	// ErrNotFound is returned for lookups of missing bookings or tiers.
	ErrNotFound = errors.New("not found")

	// ErrInvalidTransition is returned for a disallowed status change,
	// e.g. cancelling an already FAILED booking.
	ErrInvalidTransition = errors.New("invalid status transition")
)
