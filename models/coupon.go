package models

import "time"

type DiscountType string

const (
	DiscountPercentage DiscountType = "percentage"
	DiscountFixed      DiscountType = "fixed"
)

// Coupon validity: active flag, date window (nil bound = unbounded), usage
// cap (nil = unlimited) and minimum cart value (nil = none). UsageCount moves
// forward exactly once per successful redemption.
type Coupon struct {
	Code         string       `json:"code"`
	DiscountType DiscountType `json:"discount_type"`
	// Percent for percentage coupons (e.g. 10 = 10%), minor units for fixed.
	Value        int64      `json:"value"`
	Active       bool       `json:"active"`
	StartDate    *time.Time `json:"start_date,omitempty"`
	EndDate      *time.Time `json:"end_date,omitempty"`
	UsageLimit   *int       `json:"usage_limit,omitempty"`
	UsageCount   int        `json:"usage_count"`
	MinCartValue *int64     `json:"min_cart_value,omitempty"`
}

// Usable checks everything except the usage cap race, which is re-checked by
// the guarded increment inside the order-creation transaction.
func (c Coupon) Usable(now time.Time, subtotal int64) bool {
	if !c.Active {
		return false
	}
	if c.StartDate != nil && now.Before(*c.StartDate) {
		return false
	}
	if c.EndDate != nil && now.After(*c.EndDate) {
		return false
	}
	if c.UsageLimit != nil && c.UsageCount >= *c.UsageLimit {
		return false
	}
	if c.MinCartValue != nil && subtotal < *c.MinCartValue {
		return false
	}
	return true
}
