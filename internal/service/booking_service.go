package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"booking-service/internal/events"
	"booking-service/internal/idempotency"
	"booking-service/internal/models"
	"booking-service/internal/pricing"
	"booking-service/internal/provider"
	"booking-service/internal/store"
	"booking-service/internal/util"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"go.uber.org/zap"
)

// Repository is the persistence surface the booking engine depends on,
// implemented by store.Store.
type Repository interface {
	GetTenantByID(ctx context.Context, id int64) (*models.Tenant, error)
	GetTierByID(ctx context.Context, id int64) (*models.Tier, error)
	GetAddOnsByTenant(ctx context.Context, tenantID int64) ([]models.AddOn, error)
	CreateBooking(ctx context.Context, booking *models.Booking) error
	GetBookingByID(ctx context.Context, id int64) (*models.Booking, error)
	GetBookingByIdempotencyKey(ctx context.Context, key string) (*models.Booking, error)
	TransitionBookingStatus(ctx context.Context, bookingID int64, from, to string) (bool, error)
	SetBookingPaid(ctx context.Context, bookingID, platformFeeCents, tenantPayoutCents int64) (bool, error)
	SetBookingCheckoutSession(ctx context.Context, bookingID int64, sessionID string) error
	GetCommissionReport(ctx context.Context, tenantID int64, from, to time.Time) (*models.CommissionReport, error)
}

// AvailabilityResolver is implemented by availability.Resolver
type AvailabilityResolver interface {
	Resolve(ctx context.Context, tier *models.Tier, from, to time.Time) ([]models.AvailableSlot, error)
}

// IdempotencyGuard is implemented by idempotency.Guard
type IdempotencyGuard interface {
	CheckOrReserve(ctx context.Context, key string) (*idempotency.Check, error)
	Complete(ctx context.Context, key string, bookingID *int64, result string) error
	Release(ctx context.Context, key string)
}

// BookingService orchestrates booking creation: validation, availability
// re-check, pricing, reservation, payment-session creation and event
// emission.
type BookingService struct {
	repo     Repository
	resolver AvailabilityResolver
	guard    IdempotencyGuard
	payment  provider.PaymentClient
	bus      *events.Bus
	logger   *zap.Logger
}

// NewBookingService creates a new booking service
func NewBookingService(
	repo Repository,
	resolver AvailabilityResolver,
	guard IdempotencyGuard,
	payment provider.PaymentClient,
	bus *events.Bus,
) *BookingService {
	return &BookingService{
		repo:     repo,
		resolver: resolver,
		guard:    guard,
		payment:  payment,
		bus:      bus,
		logger:   util.GetLogger(),
	}
}

// CreateBookingRequest carries everything needed to create a booking
type CreateBookingRequest struct {
	TenantID       int64     `json:"tenant_id" binding:"required"`
	TierID         int64     `json:"tier_id" binding:"required"`
	AddOnIDs       []int64   `json:"add_on_ids"`
	UnitCount      int       `json:"unit_count"`
	SlotStart      time.Time `json:"slot_start" binding:"required"`
	CustomerName   string    `json:"customer_name" binding:"required"`
	CustomerEmail  string    `json:"customer_email" binding:"required,email"`
	IdempotencyKey string    `json:"idempotency_key,omitempty"`
}

// CreateBookingResponse is the booking plus the payment redirect handle
type CreateBookingResponse struct {
	Booking     *models.Booking `json:"booking"`
	CheckoutURL string          `json:"checkout_url,omitempty"`
	Duplicate   bool            `json:"duplicate,omitempty"`
}

// CreateBooking creates a PENDING booking and initiates payment. Retried
// requests bearing the same idempotency key return the original booking
// instead of creating a second one.
func (s *BookingService) CreateBooking(ctx context.Context, req *CreateBookingRequest) (*CreateBookingResponse, error) {
	ctx, span := util.StartSpan(ctx, "BookingService.CreateBooking")
	defer span.End()

	if req.IdempotencyKey == "" {
		req.IdempotencyKey = uuid.New().String()
	}

	check, err := s.guard.CheckOrReserve(ctx, req.IdempotencyKey)
	if err != nil {
		return nil, fmt.Errorf("failed to check idempotency: %w", err)
	}
	switch check.Outcome {
	case idempotency.Duplicate:
		util.DuplicateRequestsTotal.Inc()
		return s.priorResponse(ctx, req.IdempotencyKey, check.Prior)
	case idempotency.Conflict:
		return nil, ErrIdempotencyConflict
	}

	// The key is reserved from here on; release it on any failure so the
	// caller can retry with the same key.
	completed := false
	defer func() {
		if !completed {
			s.guard.Release(ctx, req.IdempotencyKey)
		}
	}()

	tenant, tier, err := s.loadActiveTier(ctx, req.TenantID, req.TierID)
	if err != nil {
		util.BookingsFailedTotal.WithLabelValues("validation").Inc()
		return nil, err
	}

	// DATE tiers book whole days; drop any time-of-day from the request.
	req.SlotStart = normalizeSlotStart(tier, req.SlotStart)

	if err := s.checkSlotAvailable(ctx, tier, req.SlotStart); err != nil {
		util.BookingsFailedTotal.WithLabelValues("slot_unavailable").Inc()
		return nil, err
	}

	addOns, err := s.repo.GetAddOnsByTenant(ctx, req.TenantID)
	if err != nil {
		return nil, fmt.Errorf("failed to load add-ons: %w", err)
	}
	price, err := pricing.Compute(tier, addOns, req.AddOnIDs, req.UnitCount)
	if err != nil {
		util.BookingsFailedTotal.WithLabelValues("pricing").Inc()
		return nil, err
	}

	booking := &models.Booking{
		TenantID:       req.TenantID,
		TierID:         req.TierID,
		AddOnIDs:       pq.Int64Array(req.AddOnIDs),
		UnitCount:      req.UnitCount,
		TotalCents:     price.TotalCents,
		Status:         models.BookingStatusPending,
		IdempotencyKey: req.IdempotencyKey,
		SlotStart:      req.SlotStart,
		SlotEnd:        slotEnd(tier, req.SlotStart),
		CustomerName:   req.CustomerName,
		CustomerEmail:  req.CustomerEmail,
	}

	if err := s.repo.CreateBooking(ctx, booking); err != nil {
		switch {
		case errors.Is(err, store.ErrSlotConflict), errors.Is(err, store.ErrUniqueViolation):
			// Lost the race for the slot. The constraint is the final
			// arbiter, so this is a conflict, not a fault.
			util.SlotConflictsTotal.Inc()
			return nil, ErrSlotUnavailable
		case errors.Is(err, store.ErrDuplicateKey):
			// A concurrent request with the same key won; return its booking.
			util.DuplicateRequestsTotal.Inc()
			return s.priorResponse(ctx, req.IdempotencyKey, nil)
		default:
			util.BookingsFailedTotal.WithLabelValues("db_error").Inc()
			return nil, fmt.Errorf("failed to create booking: %w", err)
		}
	}

	util.BookingsCreatedTotal.Inc()
	s.logger.Info("Booking created",
		zap.Int64("booking_id", booking.ID),
		zap.Int64("tenant_id", booking.TenantID),
		zap.Int64("total_cents", booking.TotalCents))

	session, err := s.createCheckoutSession(ctx, booking)
	if err != nil {
		// Payment fails closed: the booking is marked FAILED and the slot
		// released before the error is surfaced.
		if _, terr := s.repo.TransitionBookingStatus(ctx, booking.ID, models.BookingStatusPending, models.BookingStatusFailed); terr != nil {
			s.logger.Error("Failed to fail booking after provider error", zap.Error(terr))
		}
		util.BookingsFailedTotal.WithLabelValues("provider").Inc()
		return nil, fmt.Errorf("%w: %v", ErrProviderUnavailable, err)
	}

	booking.CheckoutSessionID = session.ID
	if err := s.repo.SetBookingCheckoutSession(ctx, booking.ID, session.ID); err != nil {
		s.logger.Error("Failed to record checkout session", zap.Error(err))
	}

	snapshot, _ := json.Marshal(map[string]int64{"booking_id": booking.ID})
	if err := s.guard.Complete(ctx, req.IdempotencyKey, &booking.ID, string(snapshot)); err != nil {
		s.logger.Error("Failed to complete idempotency record", zap.Error(err))
	}
	completed = true

	s.bus.Emit(ctx, models.EventTypeBookingCreated, &models.BookingCreatedEvent{
		BaseEvent:  newBaseEvent(models.EventTypeBookingCreated),
		BookingID:  booking.ID,
		TenantID:   tenant.ID,
		TierID:     tier.ID,
		TotalCents: booking.TotalCents,
		SlotStart:  booking.SlotStart,
	})
	if tier.BookingType == models.BookingTypeTimeslot {
		s.bus.Emit(ctx, models.EventTypeAppointmentBooked, &models.AppointmentBookedEvent{
			BaseEvent: newBaseEvent(models.EventTypeAppointmentBooked),
			BookingID: booking.ID,
			TenantID:  tenant.ID,
			TierID:    tier.ID,
			SlotStart: booking.SlotStart,
			SlotEnd:   booking.SlotEnd,
		})
	}

	return &CreateBookingResponse{Booking: booking, CheckoutURL: session.URL}, nil
}

// GetAvailability resolves available slots for a tier over a date range
func (s *BookingService) GetAvailability(ctx context.Context, tenantID, tierID int64, from, to time.Time) ([]models.AvailableSlot, error) {
	ctx, span := util.StartSpan(ctx, "BookingService.GetAvailability")
	defer span.End()

	start := time.Now()
	defer func() {
		util.AvailabilityResolveLatency.Observe(time.Since(start).Seconds())
	}()

	_, tier, err := s.loadActiveTier(ctx, tenantID, tierID)
	if err != nil {
		return nil, err
	}
	return s.resolver.Resolve(ctx, tier, from, to)
}

// PreviewPrice computes the price without reserving anything. Pricing is
// pure, so the preview always matches the later charge for equal input.
func (s *BookingService) PreviewPrice(ctx context.Context, tenantID, tierID int64, addOnIDs []int64, unitCount int) (*pricing.Result, error) {
	_, tier, err := s.loadActiveTier(ctx, tenantID, tierID)
	if err != nil {
		return nil, err
	}
	addOns, err := s.repo.GetAddOnsByTenant(ctx, tenantID)
	if err != nil {
		return nil, fmt.Errorf("failed to load add-ons: %w", err)
	}
	return pricing.Compute(tier, addOns, addOnIDs, unitCount)
}

// GetBooking retrieves a booking scoped to a tenant
func (s *BookingService) GetBooking(ctx context.Context, tenantID, bookingID int64) (*models.Booking, error) {
	booking, err := s.repo.GetBookingByID(ctx, bookingID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	if booking.TenantID != tenantID {
		return nil, ErrNotFound
	}
	return booking, nil
}

// CancelBooking applies PENDING->CANCELLED or PAID->CANCELLED (the refund
// path). Terminal FAILED/CANCELLED bookings cannot be cancelled again.
func (s *BookingService) CancelBooking(ctx context.Context, tenantID, bookingID int64, reason string) (*models.Booking, error) {
	ctx, span := util.StartSpan(ctx, "BookingService.CancelBooking")
	defer span.End()

	booking, err := s.GetBooking(ctx, tenantID, bookingID)
	if err != nil {
		return nil, err
	}

	wasPaid := booking.Status == models.BookingStatusPaid
	switch booking.Status {
	case models.BookingStatusPending, models.BookingStatusPaid:
	default:
		return nil, fmt.Errorf("%w: cannot cancel %s booking", ErrInvalidTransition, booking.Status)
	}

	applied, err := s.repo.TransitionBookingStatus(ctx, bookingID, booking.Status, models.BookingStatusCancelled)
	if err != nil {
		return nil, fmt.Errorf("failed to cancel booking: %w", err)
	}
	if !applied {
		// Raced with a webhook transition; report the current state.
		return nil, ErrInvalidTransition
	}

	booking.Status = models.BookingStatusCancelled
	util.BookingsCancelledTotal.Inc()
	s.logger.Info("Booking cancelled",
		zap.Int64("booking_id", bookingID),
		zap.Bool("was_paid", wasPaid))

	s.bus.Emit(ctx, models.EventTypeBookingCancelled, &models.BookingCancelledEvent{
		BaseEvent:  newBaseEvent(models.EventTypeBookingCancelled),
		BookingID:  bookingID,
		TenantID:   tenantID,
		WasPaid:    wasPaid,
		Reason:     reason,
		TotalCents: booking.TotalCents,
	})

	return booking, nil
}

func (s *BookingService) loadActiveTier(ctx context.Context, tenantID, tierID int64) (*models.Tenant, *models.Tier, error) {
	tenant, err := s.repo.GetTenantByID(ctx, tenantID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, nil, fmt.Errorf("%w: unknown tenant %d", ErrValidation, tenantID)
		}
		return nil, nil, err
	}
	if !tenant.Active {
		return nil, nil, fmt.Errorf("%w: tenant %d is inactive", ErrValidation, tenantID)
	}

	tier, err := s.repo.GetTierByID(ctx, tierID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, nil, fmt.Errorf("%w: unknown tier %d", ErrValidation, tierID)
		}
		return nil, nil, err
	}
	if tier.TenantID != tenantID {
		return nil, nil, fmt.Errorf("%w: tier %d does not belong to tenant %d", ErrValidation, tierID, tenantID)
	}
	if !tier.Active {
		return nil, nil, fmt.Errorf("%w: tier %d is inactive", ErrValidation, tierID)
	}

	return tenant, tier, nil
}

// checkSlotAvailable re-validates the requested slot at reservation time.
// The persistence constraint still has the final word under concurrency.
func (s *BookingService) checkSlotAvailable(ctx context.Context, tier *models.Tier, slotStart time.Time) error {
	slots, err := s.resolver.Resolve(ctx, tier, slotStart, slotStart)
	if err != nil {
		return fmt.Errorf("failed to resolve availability: %w", err)
	}
	for _, slot := range slots {
		if slot.Start.Equal(slotStart) {
			return nil
		}
	}
	return ErrSlotUnavailable
}

func (s *BookingService) createCheckoutSession(ctx context.Context, booking *models.Booking) (*provider.CheckoutSession, error) {
	start := time.Now()
	defer func() {
		util.CheckoutSessionLatency.Observe(time.Since(start).Seconds())
	}()

	metadata := map[string]string{
		provider.MetadataBookingID:      fmt.Sprintf("%d", booking.ID),
		provider.MetadataIdempotencyKey: booking.IdempotencyKey,
	}
	return s.payment.CreateCheckoutSession(ctx, booking.TotalCents, metadata)
}

func (s *BookingService) priorResponse(ctx context.Context, key string, prior *models.IdempotencyRecord) (*CreateBookingResponse, error) {
	var booking *models.Booking
	var err error

	if prior != nil && prior.BookingID != nil {
		booking, err = s.repo.GetBookingByID(ctx, *prior.BookingID)
	} else {
		booking, err = s.repo.GetBookingByIdempotencyKey(ctx, key)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load prior booking: %w", err)
	}
	if booking == nil {
		// The key was used by an operation that never produced a booking.
		return nil, ErrIdempotencyConflict
	}

	s.logger.Info("Duplicate booking request",
		zap.String("idempotency_key", key),
		zap.Int64("booking_id", booking.ID))
	return &CreateBookingResponse{Booking: booking, Duplicate: true}, nil
}

func normalizeSlotStart(tier *models.Tier, start time.Time) time.Time {
	if tier.BookingType != models.BookingTypeDate {
		return start
	}
	start = start.UTC()
	return time.Date(start.Year(), start.Month(), start.Day(), 0, 0, 0, 0, time.UTC)
}

func slotEnd(tier *models.Tier, start time.Time) *time.Time {
	if tier.BookingType != models.BookingTypeTimeslot || tier.DurationMinutes == nil {
		return nil
	}
	end := start.Add(time.Duration(*tier.DurationMinutes) * time.Minute)
	return &end
}

func newBaseEvent(eventType string) models.BaseEvent {
	return models.BaseEvent{
		EventID:   uuid.New().String(),
		EventType: eventType,
		Timestamp: time.Now().UTC(),
	}
}
