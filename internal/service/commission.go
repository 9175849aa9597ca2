package service

import (
	"context"
	"math"
	"time"

	"booking-service/internal/models"
)

// CommissionReader is the reporting slice of the store
type CommissionReader interface {
	GetCommissionReport(ctx context.Context, tenantID int64, from, to time.Time) (*models.CommissionReport, error)
}

// CommissionService computes the platform's cut of a booking total and
// the remaining tenant payout. It never mutates booking state; the
// webhook reconciler records what it computes.
type CommissionService struct {
	repo CommissionReader
}

// NewCommissionService creates a new commission service
func NewCommissionService(repo CommissionReader) *CommissionService {
	return &CommissionService{repo: repo}
}

// Split divides a total into platform fee and tenant payout. The fee is
// rounded half-up from total * percent / 100, so fee + payout == total
// always holds.
func (cs *CommissionService) Split(totalCents int64, commissionPercent float64) (platformFeeCents, tenantPayoutCents int64) {
	platformFeeCents = int64(math.Round(float64(totalCents) * commissionPercent / 100))
	tenantPayoutCents = totalCents - platformFeeCents
	return platformFeeCents, tenantPayoutCents
}

// Report sums payout figures across the tenant's PAID bookings in range
func (cs *CommissionService) Report(ctx context.Context, tenantID int64, from, to time.Time) (*models.CommissionReport, error) {
	return cs.repo.GetCommissionReport(ctx, tenantID, from, to)
}
