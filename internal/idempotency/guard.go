// Package idempotency deduplicates booking-creation requests and webhook
// deliveries. Redis holds the fast in-flight/done marker; the relational
// store keeps the durable result snapshot for the retention window.
package idempotency

import (
	"context"
	"encoding/json"
	"time"

	"booking-service/internal/models"
	"booking-service/internal/redisclient"
	"booking-service/internal/util"

	"go.uber.org/zap"
)

// Outcome of a CheckOrReserve call
type Outcome int

const (
	// Fresh means the key is now reserved and the caller must execute the
	// operation, then call Complete (or Release on failure).
	Fresh Outcome = iota
	// Duplicate means the operation already completed; Prior holds its
	// result snapshot.
	Duplicate
	// Conflict means another request with the same key is still in
	// flight. Callers map this to a retry-after response.
	Conflict
)

// Check is the result of CheckOrReserve
type Check struct {
	Outcome Outcome
	Prior   *models.IdempotencyRecord
}

// KeyStore is the fast reservation store, implemented by redisclient.Client
type KeyStore interface {
	ReserveKey(ctx context.Context, key string, ttl time.Duration) (int, string, error)
	CompleteKey(ctx context.Context, key, result string, ttl time.Duration) error
	ReleaseKey(ctx context.Context, key string) error
}

// RecordStore is the durable snapshot store, implemented by store.Store
type RecordStore interface {
	CreateIdempotencyRecord(ctx context.Context, rec *models.IdempotencyRecord) error
	GetIdempotencyRecord(ctx context.Context, key string) (*models.IdempotencyRecord, error)
}

// Guard implements check-or-reserve deduplication with a bounded
// retention window.
type Guard struct {
	keys      KeyStore
	records   RecordStore
	retention time.Duration
	logger    *zap.Logger
}

// NewGuard creates a new idempotency guard
func NewGuard(keys KeyStore, records RecordStore, retention time.Duration) *Guard {
	return &Guard{
		keys:      keys,
		records:   records,
		retention: retention,
		logger:    util.GetLogger(),
	}
}

// CheckOrReserve reserves the key for the caller, or reports the prior
// result / in-flight conflict. A Redis failure degrades to the durable
// record store alone rather than blocking the request.
func (g *Guard) CheckOrReserve(ctx context.Context, key string) (*Check, error) {
	state, stored, err := g.keys.ReserveKey(ctx, key, g.retention)
	if err != nil {
		g.logger.Warn("Redis reservation failed, falling back to record store",
			zap.String("key", key),
			zap.Error(err))
		return g.checkRecordOnly(ctx, key)
	}

	switch state {
	case redisclient.StateDone:
		prior, err := g.lookupPrior(ctx, key, stored)
		if err != nil {
			return nil, err
		}
		return &Check{Outcome: Duplicate, Prior: prior}, nil

	case redisclient.StateInFlight:
		return &Check{Outcome: Conflict}, nil
	}

	// Redis says fresh, but the marker may have expired while the durable
	// record survives. The snapshot wins.
	rec, err := g.records.GetIdempotencyRecord(ctx, key)
	if err != nil {
		return nil, err
	}
	if rec != nil {
		if err := g.keys.CompleteKey(ctx, key, rec.Result, g.retention); err != nil {
			g.logger.Warn("Failed to rehydrate idempotency marker", zap.Error(err))
		}
		return &Check{Outcome: Duplicate, Prior: rec}, nil
	}

	return &Check{Outcome: Fresh}, nil
}

// Complete stores the result snapshot so retries with the same key return
// it instead of re-executing side effects.
func (g *Guard) Complete(ctx context.Context, key string, bookingID *int64, result string) error {
	rec := &models.IdempotencyRecord{
		Key:       key,
		BookingID: bookingID,
		Result:    result,
	}
	if err := g.records.CreateIdempotencyRecord(ctx, rec); err != nil {
		return err
	}

	snapshot, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	if err := g.keys.CompleteKey(ctx, key, string(snapshot), g.retention); err != nil {
		g.logger.Warn("Failed to mark key done in Redis",
			zap.String("key", key),
			zap.Error(err))
	}
	return nil
}

// Release drops a Fresh reservation after a failed operation so the
// caller can retry with the same key.
func (g *Guard) Release(ctx context.Context, key string) {
	if err := g.keys.ReleaseKey(ctx, key); err != nil {
		g.logger.Warn("Failed to release idempotency key",
			zap.String("key", key),
			zap.Error(err))
	}
}

func (g *Guard) checkRecordOnly(ctx context.Context, key string) (*Check, error) {
	rec, err := g.records.GetIdempotencyRecord(ctx, key)
	if err != nil {
		return nil, err
	}
	if rec != nil {
		return &Check{Outcome: Duplicate, Prior: rec}, nil
	}
	return &Check{Outcome: Fresh}, nil
}

func (g *Guard) lookupPrior(ctx context.Context, key, stored string) (*models.IdempotencyRecord, error) {
	rec, err := g.records.GetIdempotencyRecord(ctx, key)
	if err != nil {
		return nil, err
	}
	if rec != nil {
		return rec, nil
	}

	// Durable record already cleaned up; fall back to the Redis snapshot.
	var fromRedis models.IdempotencyRecord
	if stored != "" {
		if err := json.Unmarshal([]byte(stored), &fromRedis); err == nil {
			return &fromRedis, nil
		}
	}
	return &models.IdempotencyRecord{Key: key}, nil
}
