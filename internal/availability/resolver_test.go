package availability

import (
	"context"
	"testing"
	"time"

	"booking-service/internal/models"
	"booking-service/internal/provider"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeRepo struct {
	blackouts []models.BlackoutDate
	bookings  []models.Booking
	rules     []models.AvailabilityRule
}

func (f *fakeRepo) GetBlackoutDates(_ context.Context, _ int64, _, _ time.Time) ([]models.BlackoutDate, error) {
	return f.blackouts, nil
}

func (f *fakeRepo) GetOccupyingBookings(_ context.Context, _, _ int64, _, _ time.Time) ([]models.Booking, error) {
	return f.bookings, nil
}

func (f *fakeRepo) GetAvailabilityRules(_ context.Context, _ int64) ([]models.AvailabilityRule, error) {
	return f.rules, nil
}

type fakeCalendar struct {
	busy []provider.BusyPeriod
	err  error
}

func (f *fakeCalendar) ListBusyPeriods(_ context.Context, _ int64, _, _ time.Time) ([]provider.BusyPeriod, error) {
	return f.busy, f.err
}

func (f *fakeCalendar) CreateEvent(_ context.Context, _ int64, _ *provider.CalendarEvent) (string, error) {
	return "", nil
}

func (f *fakeCalendar) CancelEvent(_ context.Context, _ int64, _ string) error {
	return nil
}

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func dateTier() *models.Tier {
	return &models.Tier{ID: 1, TenantID: 1, BookingType: models.BookingTypeDate, Active: true}
}

func TestResolveDatesBlackoutNeverReturned(t *testing.T) {
	repo := &fakeRepo{
		blackouts: []models.BlackoutDate{{TenantID: 1, Date: day(2025, 12, 25)}},
	}
	resolver := NewResolver(repo, &fakeCalendar{}, time.Second)

	slots, err := resolver.Resolve(context.Background(), dateTier(), day(2025, 12, 20), day(2025, 12, 31))
	require.NoError(t, err)

	assert.Len(t, slots, 11)
	for _, slot := range slots {
		assert.False(t, slot.Start.Equal(day(2025, 12, 25)), "blackout date must be excluded")
	}
}

func TestResolveDatesExcludesBookedDays(t *testing.T) {
	repo := &fakeRepo{
		bookings: []models.Booking{
			{TierID: 1, Status: models.BookingStatusPending, SlotStart: day(2025, 6, 2)},
			{TierID: 1, Status: models.BookingStatusPaid, SlotStart: day(2025, 6, 4)},
		},
	}
	resolver := NewResolver(repo, &fakeCalendar{}, time.Second)

	slots, err := resolver.Resolve(context.Background(), dateTier(), day(2025, 6, 1), day(2025, 6, 5))
	require.NoError(t, err)

	got := make([]time.Time, 0, len(slots))
	for _, s := range slots {
		got = append(got, s.Start)
	}
	assert.Equal(t, []time.Time{day(2025, 6, 1), day(2025, 6, 3), day(2025, 6, 5)}, got)
}

func TestResolveDatesCalendarBusyExcluded(t *testing.T) {
	cal := &fakeCalendar{
		busy: []provider.BusyPeriod{
			{Start: day(2025, 6, 2).Add(10 * time.Hour), End: day(2025, 6, 2).Add(12 * time.Hour)},
		},
	}
	resolver := NewResolver(&fakeRepo{}, cal, time.Second)

	slots, err := resolver.Resolve(context.Background(), dateTier(), day(2025, 6, 1), day(2025, 6, 3))
	require.NoError(t, err)

	got := make([]time.Time, 0, len(slots))
	for _, s := range slots {
		got = append(got, s.Start)
	}
	assert.Equal(t, []time.Time{day(2025, 6, 1), day(2025, 6, 3)}, got)
}

func TestResolveDatesCalendarFailureDegradesOpen(t *testing.T) {
	cal := &fakeCalendar{err: assert.AnError}
	resolver := NewResolver(&fakeRepo{}, cal, time.Second)

	slots, err := resolver.Resolve(context.Background(), dateTier(), day(2025, 6, 1), day(2025, 6, 3))
	require.NoError(t, err, "calendar failure must not fail resolution")
	assert.Len(t, slots, 3)
}

func TestResolveTimeslots(t *testing.T) {
	duration := 60
	tier := &models.Tier{
		ID: 1, TenantID: 1,
		BookingType:     models.BookingTypeTimeslot,
		DurationMinutes: &duration,
	}
	// 2025-06-02 is a Monday. Open 09:00-12:00.
	repo := &fakeRepo{
		rules: []models.AvailabilityRule{
			{TenantID: 1, Weekday: 1, OpenMinute: 9 * 60, CloseMinute: 12 * 60},
		},
	}
	resolver := NewResolver(repo, &fakeCalendar{}, time.Second)

	slots, err := resolver.Resolve(context.Background(), tier, day(2025, 6, 2), day(2025, 6, 2))
	require.NoError(t, err)

	require.Len(t, slots, 3)
	assert.Equal(t, day(2025, 6, 2).Add(9*time.Hour), slots[0].Start)
	assert.Equal(t, day(2025, 6, 2).Add(10*time.Hour), slots[1].Start)
	assert.Equal(t, day(2025, 6, 2).Add(11*time.Hour), slots[2].Start)

	// Ascending and non-overlapping
	for i := 1; i < len(slots); i++ {
		assert.True(t, slots[i].Start.After(slots[i-1].Start))
		require.NotNil(t, slots[i-1].End)
		assert.False(t, slots[i].Start.Before(*slots[i-1].End))
	}
}

func TestResolveTimeslotsSubtractsBookings(t *testing.T) {
	duration := 60
	tier := &models.Tier{
		ID: 1, TenantID: 1,
		BookingType:     models.BookingTypeTimeslot,
		DurationMinutes: &duration,
	}
	slotEnd := day(2025, 6, 2).Add(11 * time.Hour)
	repo := &fakeRepo{
		rules: []models.AvailabilityRule{
			{TenantID: 1, Weekday: 1, OpenMinute: 9 * 60, CloseMinute: 12 * 60},
		},
		bookings: []models.Booking{
			{TierID: 1, Status: models.BookingStatusPending, SlotStart: day(2025, 6, 2).Add(10 * time.Hour), SlotEnd: &slotEnd},
		},
	}
	resolver := NewResolver(repo, &fakeCalendar{}, time.Second)

	slots, err := resolver.Resolve(context.Background(), tier, day(2025, 6, 2), day(2025, 6, 2))
	require.NoError(t, err)

	require.Len(t, slots, 2)
	assert.Equal(t, day(2025, 6, 2).Add(9*time.Hour), slots[0].Start)
	assert.Equal(t, day(2025, 6, 2).Add(11*time.Hour), slots[1].Start)
}

func TestResolveTimeslotsNoRulesMeansNoSlots(t *testing.T) {
	duration := 60
	tier := &models.Tier{
		ID: 1, TenantID: 1,
		BookingType:     models.BookingTypeTimeslot,
		DurationMinutes: &duration,
	}
	resolver := NewResolver(&fakeRepo{}, &fakeCalendar{}, time.Second)

	slots, err := resolver.Resolve(context.Background(), tier, day(2025, 6, 2), day(2025, 6, 6))
	require.NoError(t, err, "no rules is no slots, not a failure")
	assert.Empty(t, slots)
}

func TestResolveTimeslotsOpenEndedUsesWholeWindow(t *testing.T) {
	tier := &models.Tier{
		ID: 1, TenantID: 1,
		BookingType: models.BookingTypeTimeslot,
	}
	repo := &fakeRepo{
		rules: []models.AvailabilityRule{
			{TenantID: 1, Weekday: 1, OpenMinute: 9 * 60, CloseMinute: 17 * 60},
		},
	}
	resolver := NewResolver(repo, &fakeCalendar{}, time.Second)

	slots, err := resolver.Resolve(context.Background(), tier, day(2025, 6, 2), day(2025, 6, 2))
	require.NoError(t, err)

	require.Len(t, slots, 1)
	assert.Equal(t, day(2025, 6, 2).Add(9*time.Hour), slots[0].Start)
	require.NotNil(t, slots[0].End)
	assert.Equal(t, day(2025, 6, 2).Add(17*time.Hour), *slots[0].End)
}
