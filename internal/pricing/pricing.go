// Package pricing computes booking totals from a tier's base price,
// scaling rule components and selected add-ons. It performs no I/O and is
// deterministic, so the same call can serve both the price preview and the
// final charge validation.
package pricing

import (
	"fmt"

	"booking-service/internal/models"
)

// Error reasons
const (
	ReasonUnknownAddOn     = "UNKNOWN_ADD_ON"
	ReasonGuestCapExceeded = "GUEST_CAP_EXCEEDED"
	ReasonNegativeUnits    = "NEGATIVE_UNIT_COUNT"
)

// Error is returned for caller mistakes: an add-on that does not belong to
// the tier's tenant or segment, or a unit count over the tier's guest cap.
type Error struct {
	Reason string
	Detail string
}

func (e *Error) Error() string {
	return fmt.Sprintf("pricing: %s: %s", e.Reason, e.Detail)
}

// Result is the computed price breakdown
type Result struct {
	TotalCents     int64            `json:"total_cents"`
	BaseCents      int64            `json:"base_cents"`
	ScalingCents   int64            `json:"scaling_cents"`
	AddOnCents     int64            `json:"add_on_cents"`
	ComponentCosts map[string]int64 `json:"component_costs,omitempty"`
}

// Compute prices a booking of unitCount units of the tier with the given
// add-ons selected. addOns must be the tenant's add-on catalog; selection
// is validated against it. If the tier has no scaling components the unit
// count only matters for the guest cap.
func Compute(tier *models.Tier, addOns []models.AddOn, selectedAddOnIDs []int64, unitCount int) (*Result, error) {
	if unitCount < 0 {
		return nil, &Error{Reason: ReasonNegativeUnits, Detail: fmt.Sprintf("unit count %d", unitCount)}
	}
	if tier.MaxGuests != nil && unitCount > *tier.MaxGuests {
		return nil, &Error{
			Reason: ReasonGuestCapExceeded,
			Detail: fmt.Sprintf("unit count %d exceeds cap %d", unitCount, *tier.MaxGuests),
		}
	}

	res := &Result{BaseCents: tier.BasePriceCents}

	if len(tier.ScalingComponents) > 0 {
		res.ComponentCosts = make(map[string]int64, len(tier.ScalingComponents))
		for _, comp := range tier.ScalingComponents {
			extra := unitCount - comp.IncludedUnits
			if extra < 0 {
				extra = 0
			}
			if comp.MaxUnits != nil {
				if limit := *comp.MaxUnits - comp.IncludedUnits; extra > limit {
					extra = limit
				}
			}
			cost := int64(extra) * comp.PerUnitCents
			res.ScalingCents += cost
			res.ComponentCosts[comp.Name] = cost
		}
	}

	catalog := make(map[int64]*models.AddOn, len(addOns))
	for i := range addOns {
		catalog[addOns[i].ID] = &addOns[i]
	}

	for _, id := range selectedAddOnIDs {
		addOn, ok := catalog[id]
		if !ok || addOn.TenantID != tier.TenantID {
			return nil, &Error{Reason: ReasonUnknownAddOn, Detail: fmt.Sprintf("add-on %d", id)}
		}
		// Segment-scoped add-ons only apply to tiers of the same segment;
		// a nil segment means tenant-wide.
		if addOn.SegmentID != nil {
			if tier.SegmentID == nil || *tier.SegmentID != *addOn.SegmentID {
				return nil, &Error{Reason: ReasonUnknownAddOn, Detail: fmt.Sprintf("add-on %d scoped to another segment", id)}
			}
		}
		res.AddOnCents += addOn.PriceCents
	}

	res.TotalCents = res.BaseCents + res.ScalingCents + res.AddOnCents
	return res, nil
}
