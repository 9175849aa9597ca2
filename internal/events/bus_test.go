package events

import (
	"context"
	"errors"
	"testing"

	"booking-service/internal/models"

	"github.com/stretchr/testify/assert"
)

func TestEmitDeliversToAllSubscribers(t *testing.T) {
	bus := NewBus()

	var got []int
	bus.Subscribe(models.EventTypeBookingPaid, func(_ context.Context, _ interface{}) error {
		got = append(got, 1)
		return nil
	})
	bus.Subscribe(models.EventTypeBookingPaid, func(_ context.Context, _ interface{}) error {
		got = append(got, 2)
		return nil
	})

	bus.Emit(context.Background(), models.EventTypeBookingPaid, &models.BookingPaidEvent{})
	assert.Equal(t, []int{1, 2}, got)
}

func TestEmitIsolatesFailingSubscriber(t *testing.T) {
	bus := NewBus()

	var ran bool
	bus.Subscribe(models.EventTypeBookingPaid, func(_ context.Context, _ interface{}) error {
		return errors.New("smtp down")
	})
	bus.Subscribe(models.EventTypeBookingPaid, func(_ context.Context, _ interface{}) error {
		ran = true
		return nil
	})

	bus.Emit(context.Background(), models.EventTypeBookingPaid, &models.BookingPaidEvent{})
	assert.True(t, ran, "later subscribers run despite an earlier failure")
}

func TestEmitRecoversPanickingSubscriber(t *testing.T) {
	bus := NewBus()

	var ran bool
	bus.Subscribe(models.EventTypeBookingPaid, func(_ context.Context, _ interface{}) error {
		panic("boom")
	})
	bus.Subscribe(models.EventTypeBookingPaid, func(_ context.Context, _ interface{}) error {
		ran = true
		return nil
	})

	assert.NotPanics(t, func() {
		bus.Emit(context.Background(), models.EventTypeBookingPaid, &models.BookingPaidEvent{})
	})
	assert.True(t, ran)
}

func TestEmitUnknownTypeIsNoop(t *testing.T) {
	bus := NewBus()
	assert.NotPanics(t, func() {
		bus.Emit(context.Background(), "UNKNOWN", nil)
	})
}
