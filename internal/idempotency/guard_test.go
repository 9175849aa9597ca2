package idempotency

import (
	"context"
	"sync"
	"testing"
	"time"

	"booking-service/internal/models"
	"booking-service/internal/redisclient"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// memKeyStore mimics the Redis reserve/complete/release semantics in memory
type memKeyStore struct {
	mu     sync.Mutex
	states map[string]string
	result map[string]string
	failed bool
}

func newMemKeyStore() *memKeyStore {
	return &memKeyStore{states: map[string]string{}, result: map[string]string{}}
}

func (m *memKeyStore) ReserveKey(_ context.Context, key string, _ time.Duration) (int, string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failed {
		return 0, "", assert.AnError
	}
	switch m.states[key] {
	case "":
		m.states[key] = "inflight"
		return redisclient.StateFresh, "", nil
	case "done":
		return redisclient.StateDone, m.result[key], nil
	default:
		return redisclient.StateInFlight, "", nil
	}
}

func (m *memKeyStore) CompleteKey(_ context.Context, key, result string, _ time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.states[key] = "done"
	m.result[key] = result
	return nil
}

func (m *memKeyStore) ReleaseKey(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.states[key] == "inflight" {
		delete(m.states, key)
	}
	return nil
}

type memRecordStore struct {
	mu      sync.Mutex
	records map[string]*models.IdempotencyRecord
}

func newMemRecordStore() *memRecordStore {
	return &memRecordStore{records: map[string]*models.IdempotencyRecord{}}
}

func (m *memRecordStore) CreateIdempotencyRecord(_ context.Context, rec *models.IdempotencyRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.records[rec.Key]; !ok {
		m.records[rec.Key] = rec
	}
	return nil
}

func (m *memRecordStore) GetIdempotencyRecord(_ context.Context, key string) (*models.IdempotencyRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.records[key], nil
}

func TestCheckOrReserveFresh(t *testing.T) {
	guard := NewGuard(newMemKeyStore(), newMemRecordStore(), time.Hour)

	check, err := guard.CheckOrReserve(context.Background(), "key-1")
	require.NoError(t, err)
	assert.Equal(t, Fresh, check.Outcome)
}

func TestCheckOrReserveConflictWhileInFlight(t *testing.T) {
	guard := NewGuard(newMemKeyStore(), newMemRecordStore(), time.Hour)
	ctx := context.Background()

	first, err := guard.CheckOrReserve(ctx, "key-1")
	require.NoError(t, err)
	require.Equal(t, Fresh, first.Outcome)

	second, err := guard.CheckOrReserve(ctx, "key-1")
	require.NoError(t, err)
	assert.Equal(t, Conflict, second.Outcome)
}

func TestCheckOrReserveDuplicateAfterComplete(t *testing.T) {
	guard := NewGuard(newMemKeyStore(), newMemRecordStore(), time.Hour)
	ctx := context.Background()

	first, err := guard.CheckOrReserve(ctx, "key-1")
	require.NoError(t, err)
	require.Equal(t, Fresh, first.Outcome)

	bookingID := int64(42)
	require.NoError(t, guard.Complete(ctx, "key-1", &bookingID, `{"booking_id":42}`))

	second, err := guard.CheckOrReserve(ctx, "key-1")
	require.NoError(t, err)
	assert.Equal(t, Duplicate, second.Outcome)
	require.NotNil(t, second.Prior)
	require.NotNil(t, second.Prior.BookingID)
	assert.Equal(t, int64(42), *second.Prior.BookingID)
}

func TestReleaseAllowsRetry(t *testing.T) {
	guard := NewGuard(newMemKeyStore(), newMemRecordStore(), time.Hour)
	ctx := context.Background()

	first, err := guard.CheckOrReserve(ctx, "key-1")
	require.NoError(t, err)
	require.Equal(t, Fresh, first.Outcome)

	guard.Release(ctx, "key-1")

	retry, err := guard.CheckOrReserve(ctx, "key-1")
	require.NoError(t, err)
	assert.Equal(t, Fresh, retry.Outcome)
}

func TestRedisFailureFallsBackToRecords(t *testing.T) {
	keys := newMemKeyStore()
	keys.failed = true
	records := newMemRecordStore()
	guard := NewGuard(keys, records, time.Hour)
	ctx := context.Background()

	check, err := guard.CheckOrReserve(ctx, "key-1")
	require.NoError(t, err)
	assert.Equal(t, Fresh, check.Outcome)

	bookingID := int64(7)
	_ = records.CreateIdempotencyRecord(ctx, &models.IdempotencyRecord{Key: "key-1", BookingID: &bookingID})

	check, err = guard.CheckOrReserve(ctx, "key-1")
	require.NoError(t, err)
	assert.Equal(t, Duplicate, check.Outcome)
}

func TestExpiredRedisMarkerRehydratedFromRecords(t *testing.T) {
	keys := newMemKeyStore()
	records := newMemRecordStore()
	guard := NewGuard(keys, records, time.Hour)
	ctx := context.Background()

	bookingID := int64(9)
	_ = records.CreateIdempotencyRecord(ctx, &models.IdempotencyRecord{Key: "key-1", BookingID: &bookingID, Result: `{"booking_id":9}`})

	// Redis knows nothing about the key, but the durable snapshot exists.
	check, err := guard.CheckOrReserve(ctx, "key-1")
	require.NoError(t, err)
	assert.Equal(t, Duplicate, check.Outcome)
	require.NotNil(t, check.Prior.BookingID)
	assert.Equal(t, int64(9), *check.Prior.BookingID)
}

func TestConcurrentSameKeyExactlyOneFresh(t *testing.T) {
	guard := NewGuard(newMemKeyStore(), newMemRecordStore(), time.Hour)
	ctx := context.Background()

	const n = 16
	var wg sync.WaitGroup
	outcomes := make([]Outcome, n)

	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			check, err := guard.CheckOrReserve(ctx, "same-key")
			if assert.NoError(t, err) {
				outcomes[i] = check.Outcome
			}
		}(i)
	}
	wg.Wait()

	fresh := 0
	for _, o := range outcomes {
		if o == Fresh {
			fresh++
		} else {
			assert.Equal(t, Conflict, o)
		}
	}
	assert.Equal(t, 1, fresh, "exactly one caller proceeds")
}
