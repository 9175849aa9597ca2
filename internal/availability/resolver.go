// Package availability computes bookable capacity for a tier from
// blackout dates, existing bookings, tenant opening hours and external
// calendar busy periods.
package availability

import (
	"context"
	"fmt"
	"sort"
	"time"

	"booking-service/internal/models"
	"booking-service/internal/provider"
	"booking-service/internal/util"

	"go.uber.org/zap"
)

// Repository is the slice of the store the resolver reads from
type Repository interface {
	GetBlackoutDates(ctx context.Context, tenantID int64, from, to time.Time) ([]models.BlackoutDate, error)
	GetOccupyingBookings(ctx context.Context, tenantID, tierID int64, from, to time.Time) ([]models.Booking, error)
	GetAvailabilityRules(ctx context.Context, tenantID int64) ([]models.AvailabilityRule, error)
}

// Resolver merges store state and external calendar data into an ordered
// set of available slots.
type Resolver struct {
	repo            Repository
	calendar        provider.CalendarClient
	calendarTimeout time.Duration
	logger          *zap.Logger
}

// NewResolver creates a new availability resolver
func NewResolver(repo Repository, calendar provider.CalendarClient, calendarTimeout time.Duration) *Resolver {
	return &Resolver{
		repo:            repo,
		calendar:        calendar,
		calendarTimeout: calendarTimeout,
		logger:          util.GetLogger(),
	}
}

// Resolve returns available slots for the tier in [from, to], ascending,
// non-overlapping. TIMESLOT tiers without availability rules resolve to
// an empty set, which is not an error.
func (r *Resolver) Resolve(ctx context.Context, tier *models.Tier, from, to time.Time) ([]models.AvailableSlot, error) {
	ctx, span := util.StartSpan(ctx, "Resolver.Resolve")
	defer span.End()

	from = truncateDay(from)
	rangeEnd := truncateDay(to).Add(24 * time.Hour)

	blackouts, err := r.repo.GetBlackoutDates(ctx, tier.TenantID, from, rangeEnd)
	if err != nil {
		return nil, fmt.Errorf("failed to load blackout dates: %w", err)
	}
	blocked := make(map[string]bool, len(blackouts))
	for _, b := range blackouts {
		blocked[dayKey(b.Date)] = true
	}

	bookings, err := r.repo.GetOccupyingBookings(ctx, tier.TenantID, tier.ID, from, rangeEnd)
	if err != nil {
		return nil, fmt.Errorf("failed to load bookings: %w", err)
	}

	busy := r.listBusyPeriods(ctx, tier.TenantID, from, rangeEnd)

	switch tier.BookingType {
	case models.BookingTypeTimeslot:
		return r.resolveTimeslots(ctx, tier, from, rangeEnd, blocked, bookings, busy)
	default:
		return r.resolveDates(tier, from, rangeEnd, blocked, bookings, busy), nil
	}
}

// resolveDates yields one slot per open day. DATE tiers take a single
// booking per day, so any occupying booking removes the day.
func (r *Resolver) resolveDates(tier *models.Tier, from, rangeEnd time.Time, blocked map[string]bool, bookings []models.Booking, busy []provider.BusyPeriod) []models.AvailableSlot {
	booked := make(map[string]bool, len(bookings))
	for _, b := range bookings {
		booked[dayKey(b.SlotStart)] = true
	}

	var slots []models.AvailableSlot
	for day := from; day.Before(rangeEnd); day = day.Add(24 * time.Hour) {
		key := dayKey(day)
		if blocked[key] || booked[key] {
			continue
		}
		if dayBusy(day, busy) {
			continue
		}
		slots = append(slots, models.AvailableSlot{Start: day})
	}
	return slots
}

// resolveTimeslots generates duration-sized slots from the tenant's
// opening-hour rules and subtracts occupied ranges. A nil duration means
// the whole rule window is offered as one slot.
func (r *Resolver) resolveTimeslots(ctx context.Context, tier *models.Tier, from, rangeEnd time.Time, blocked map[string]bool, bookings []models.Booking, busy []provider.BusyPeriod) ([]models.AvailableSlot, error) {
	rules, err := r.repo.GetAvailabilityRules(ctx, tier.TenantID)
	if err != nil {
		return nil, fmt.Errorf("failed to load availability rules: %w", err)
	}
	if len(rules) == 0 {
		// No rules configured is "no slots", not a resolver failure.
		return []models.AvailableSlot{}, nil
	}

	byWeekday := make(map[int][]models.AvailabilityRule)
	for _, rule := range rules {
		byWeekday[rule.Weekday] = append(byWeekday[rule.Weekday], rule)
	}

	var slots []models.AvailableSlot
	for day := from; day.Before(rangeEnd); day = day.Add(24 * time.Hour) {
		if blocked[dayKey(day)] {
			continue
		}
		for _, rule := range byWeekday[int(day.Weekday())] {
			open := day.Add(time.Duration(rule.OpenMinute) * time.Minute)
			closing := day.Add(time.Duration(rule.CloseMinute) * time.Minute)

			width := closing.Sub(open)
			if tier.DurationMinutes != nil {
				width = time.Duration(*tier.DurationMinutes) * time.Minute
			}
			if width <= 0 {
				continue
			}

			for start := open; !start.Add(width).After(closing); start = start.Add(width) {
				end := start.Add(width)
				if rangeOccupied(start, end, bookings) || rangeBusy(start, end, busy) {
					continue
				}
				endCopy := end
				slots = append(slots, models.AvailableSlot{Start: start, End: &endCopy})
			}
		}
	}

	sort.Slice(slots, func(i, j int) bool { return slots[i].Start.Before(slots[j].Start) })
	return slots, nil
}

// listBusyPeriods queries the external calendar under a short timeout.
// Provider failure degrades to "no busy periods" so calendar outages
// never block availability resolution.
func (r *Resolver) listBusyPeriods(ctx context.Context, tenantID int64, from, to time.Time) []provider.BusyPeriod {
	if r.calendar == nil {
		return nil
	}

	ctx, cancel := context.WithTimeout(ctx, r.calendarTimeout)
	defer cancel()

	busy, err := r.calendar.ListBusyPeriods(ctx, tenantID, from, to)
	if err != nil {
		r.logger.Warn("Calendar busy lookup failed, treating all days as open",
			zap.Int64("tenant_id", tenantID),
			zap.Error(err))
		util.CalendarLookupFailures.Inc()
		return nil
	}
	return busy
}

func truncateDay(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

func dayKey(t time.Time) string {
	return t.UTC().Format("2006-01-02")
}

func dayBusy(day time.Time, busy []provider.BusyPeriod) bool {
	dayEnd := day.Add(24 * time.Hour)
	return rangeBusy(day, dayEnd, busy)
}

func rangeBusy(start, end time.Time, busy []provider.BusyPeriod) bool {
	for _, p := range busy {
		if p.Start.Before(end) && p.End.After(start) {
			return true
		}
	}
	return false
}

func rangeOccupied(start, end time.Time, bookings []models.Booking) bool {
	for _, b := range bookings {
		bookedEnd := b.SlotStart.Add(time.Minute)
		if b.SlotEnd != nil {
			bookedEnd = *b.SlotEnd
		}
		if b.SlotStart.Before(end) && bookedEnd.After(start) {
			return true
		}
	}
	return false
}
