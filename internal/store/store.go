package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"booking-service/internal/models"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
)

// Sentinel errors surfaced from postgres constraint violations so callers
// can tell a slot conflict from a duplicate idempotency key.
var (
	ErrNotFound        = errors.New("store: not found")
	ErrSlotConflict    = errors.New("store: slot already booked")
	ErrDuplicateKey    = errors.New("store: duplicate idempotency key")
	ErrUniqueViolation = errors.New("store: unique constraint violation")
)

// Both are partial unique indexes over occupying rows (PENDING, PAID),
// so FAILED and CANCELLED attempts release the slot and the key.
const (
	constraintBookingSlot    = "bookings_slot_unique"
	constraintIdempotencyKey = "bookings_idempotency_key_unique"
)

type Store struct {
	db *sqlx.DB
}

// NewStore creates a new database store
func NewStore(databaseURL string) (*Store, error) {
	db, err := sqlx.Connect("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &Store{db: db}, nil
}

// Close closes the database connection
func (s *Store) Close() error {
	return s.db.Close()
}

// GetDB returns the underlying database connection
func (s *Store) GetDB() *sqlx.DB {
	return s.db
}

// mapConstraintError translates a pq unique violation into a sentinel the
// booking service can act on. Anything else passes through unchanged.
func mapConstraintError(err error) error {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == "23505" {
		switch pqErr.Constraint {
		case constraintBookingSlot:
			return ErrSlotConflict
		case constraintIdempotencyKey:
			return ErrDuplicateKey
		default:
			return fmt.Errorf("%w: %s", ErrUniqueViolation, pqErr.Constraint)
		}
	}
	return err
}

// GetTenantByID retrieves a tenant by ID
func (s *Store) GetTenantByID(ctx context.Context, id int64) (*models.Tenant, error) {
	var tenant models.Tenant
	err := s.db.GetContext(ctx, &tenant, "SELECT * FROM tenants WHERE id = $1", id)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("%w: tenant %d", ErrNotFound, id)
	}
	if err != nil {
		return nil, err
	}
	return &tenant, nil
}

// GetTenantBySlug retrieves a tenant by slug
func (s *Store) GetTenantBySlug(ctx context.Context, slug string) (*models.Tenant, error) {
	var tenant models.Tenant
	err := s.db.GetContext(ctx, &tenant, "SELECT * FROM tenants WHERE slug = $1", slug)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("%w: tenant %s", ErrNotFound, slug)
	}
	if err != nil {
		return nil, err
	}
	return &tenant, nil
}

// GetTierByID retrieves a tier with its scaling components loaded
func (s *Store) GetTierByID(ctx context.Context, id int64) (*models.Tier, error) {
	var tier models.Tier
	err := s.db.GetContext(ctx, &tier, "SELECT * FROM tiers WHERE id = $1", id)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("%w: tier %d", ErrNotFound, id)
	}
	if err != nil {
		return nil, err
	}

	err = s.db.SelectContext(ctx, &tier.ScalingComponents,
		"SELECT * FROM scaling_components WHERE tier_id = $1 ORDER BY id", id)
	if err != nil {
		return nil, err
	}
	return &tier, nil
}

// GetTiersByTenant retrieves all active tiers for a tenant
func (s *Store) GetTiersByTenant(ctx context.Context, tenantID int64) ([]models.Tier, error) {
	var tiers []models.Tier
	err := s.db.SelectContext(ctx, &tiers,
		"SELECT * FROM tiers WHERE tenant_id = $1 AND active ORDER BY id", tenantID)
	return tiers, err
}

// GetAddOnsByTenant retrieves the tenant's add-on catalog
func (s *Store) GetAddOnsByTenant(ctx context.Context, tenantID int64) ([]models.AddOn, error) {
	var addOns []models.AddOn
	err := s.db.SelectContext(ctx, &addOns,
		"SELECT * FROM add_ons WHERE tenant_id = $1 ORDER BY id", tenantID)
	return addOns, err
}

// GetBlackoutDates retrieves blackout dates for a tenant within the range
func (s *Store) GetBlackoutDates(ctx context.Context, tenantID int64, from, to time.Time) ([]models.BlackoutDate, error) {
	var dates []models.BlackoutDate
	err := s.db.SelectContext(ctx, &dates,
		"SELECT * FROM blackout_dates WHERE tenant_id = $1 AND date >= $2 AND date <= $3 ORDER BY date",
		tenantID, from, to)
	return dates, err
}

// GetAvailabilityRules retrieves the tenant's opening-hour rules
func (s *Store) GetAvailabilityRules(ctx context.Context, tenantID int64) ([]models.AvailabilityRule, error) {
	var rules []models.AvailabilityRule
	err := s.db.SelectContext(ctx, &rules,
		"SELECT * FROM availability_rules WHERE tenant_id = $1 ORDER BY weekday, open_minute", tenantID)
	return rules, err
}
