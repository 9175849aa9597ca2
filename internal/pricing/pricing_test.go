package pricing

import (
	"testing"

	"booking-service/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func intPtr(v int) *int { return &v }

func int64Ptr(v int64) *int64 { return &v }

func TestComputeScalingComponent(t *testing.T) {
	// $500 base, "Additional Person" includes 3, 100.00 per extra person
	tier := &models.Tier{
		ID:             1,
		TenantID:       1,
		BasePriceCents: 50000,
		ScalingComponents: []models.ScalingComponent{
			{Name: "Additional Person", IncludedUnits: 3, PerUnitCents: 10000},
		},
	}

	res, err := Compute(tier, nil, nil, 5)
	require.NoError(t, err)
	assert.Equal(t, int64(70000), res.TotalCents)
	assert.Equal(t, int64(20000), res.ScalingCents)
}

func TestComputeUnitCountBelowIncluded(t *testing.T) {
	tier := &models.Tier{
		BasePriceCents: 50000,
		ScalingComponents: []models.ScalingComponent{
			{Name: "Additional Person", IncludedUnits: 3, PerUnitCents: 10000},
		},
	}

	res, err := Compute(tier, nil, nil, 2)
	require.NoError(t, err)
	assert.Equal(t, int64(50000), res.TotalCents, "base price is the floor")
}

func TestComputeMaxUnitsClamp(t *testing.T) {
	tier := &models.Tier{
		BasePriceCents: 10000,
		ScalingComponents: []models.ScalingComponent{
			{Name: "Extra Hour", IncludedUnits: 2, PerUnitCents: 5000, MaxUnits: intPtr(4)},
		},
	}

	res, err := Compute(tier, nil, nil, 10)
	require.NoError(t, err)
	// Only 2 chargeable units despite 8 extra requested
	assert.Equal(t, int64(20000), res.TotalCents)
}

func TestComputeAddOns(t *testing.T) {
	tier := &models.Tier{ID: 1, TenantID: 7, BasePriceCents: 30000}
	addOns := []models.AddOn{
		{ID: 10, TenantID: 7, PriceCents: 2500},
		{ID: 11, TenantID: 7, PriceCents: 0}, // bundled add-on, zero price is valid
	}

	res, err := Compute(tier, addOns, []int64{10, 11}, 0)
	require.NoError(t, err)
	assert.Equal(t, int64(32500), res.TotalCents)
	assert.Equal(t, int64(2500), res.AddOnCents)
}

func TestComputeUnknownAddOn(t *testing.T) {
	tier := &models.Tier{ID: 1, TenantID: 7, BasePriceCents: 30000}
	addOns := []models.AddOn{{ID: 10, TenantID: 8, PriceCents: 2500}} // other tenant

	_, err := Compute(tier, addOns, []int64{10}, 0)
	var perr *Error
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, ReasonUnknownAddOn, perr.Reason)

	_, err = Compute(tier, addOns, []int64{99}, 0)
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, ReasonUnknownAddOn, perr.Reason)
}

func TestComputeSegmentScopedAddOn(t *testing.T) {
	weddings := int64Ptr(3)
	farms := int64Ptr(4)

	tier := &models.Tier{ID: 1, TenantID: 7, SegmentID: weddings, BasePriceCents: 30000}
	addOns := []models.AddOn{
		{ID: 10, TenantID: 7, SegmentID: farms, PriceCents: 2500},
		{ID: 11, TenantID: 7, SegmentID: weddings, PriceCents: 1500},
		{ID: 12, TenantID: 7, PriceCents: 500}, // tenant-wide
	}

	_, err := Compute(tier, addOns, []int64{10}, 0)
	var perr *Error
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, ReasonUnknownAddOn, perr.Reason)

	res, err := Compute(tier, addOns, []int64{11, 12}, 0)
	require.NoError(t, err)
	assert.Equal(t, int64(32000), res.TotalCents)
}

func TestComputeGuestCap(t *testing.T) {
	tier := &models.Tier{BasePriceCents: 30000, MaxGuests: intPtr(20)}

	_, err := Compute(tier, nil, nil, 21)
	var perr *Error
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, ReasonGuestCapExceeded, perr.Reason)

	_, err = Compute(tier, nil, nil, 20)
	assert.NoError(t, err)
}

func TestComputeNegativeUnits(t *testing.T) {
	tier := &models.Tier{BasePriceCents: 30000}

	_, err := Compute(tier, nil, nil, -1)
	var perr *Error
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, ReasonNegativeUnits, perr.Reason)
}

func TestComputeDeterministic(t *testing.T) {
	tier := &models.Tier{
		ID: 1, TenantID: 7, BasePriceCents: 50000,
		ScalingComponents: []models.ScalingComponent{
			{Name: "Additional Person", IncludedUnits: 3, PerUnitCents: 10000},
			{Name: "Extra Hour", IncludedUnits: 0, PerUnitCents: 2000, MaxUnits: intPtr(3)},
		},
	}
	addOns := []models.AddOn{
		{ID: 10, TenantID: 7, PriceCents: 2500},
		{ID: 11, TenantID: 7, PriceCents: 999},
	}

	first, err := Compute(tier, addOns, []int64{10, 11}, 5)
	require.NoError(t, err)

	for i := 0; i < 50; i++ {
		again, err := Compute(tier, addOns, []int64{10, 11}, 5)
		require.NoError(t, err)
		assert.Equal(t, first, again)
	}
}
