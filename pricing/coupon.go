package pricing

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	apperrors "github.com/yashrajoria/graphql-gateway/errors"
)

// Scope is what a coupon can be redeemed against.
type Scope string

const (
	ScopeStore        Scope = "store"
	ScopeCategories   Scope = "categories"
	ScopeBaseProducts Scope = "base_products"
)

// Coupon as returned by the stores backend. ActivatedByCustomer is computed
// by the backend for the calling customer.
type Coupon struct {
	ID                  int64      `json:"id"`
	StoreID             int64      `json:"store_id"`
	Code                string     `json:"code"`
	Percent             int        `json:"percent"`
	Quantity            int        `json:"quantity"`
	ExpiresAt           *time.Time `json:"expires_at,omitempty"`
	IsActive            bool       `json:"is_active"`
	Scope               Scope      `json:"scope"`
	ActivatedByCustomer bool       `json:"activated_by_customer"`
	BaseProductIDs      []int64    `json:"base_product_ids,omitempty"`
}

// CouponState is the usability of a coupon at one instant.
type CouponState int

const (
	Valid CouponState = iota
	NotActive
	HasExpired
	NoActivationsAvailable
	AlreadyActivated
)

func (s CouponState) String() string {
	switch s {
	case Valid:
		return "valid"
	case NotActive:
		return "not_active"
	case HasExpired:
		return "has_expired"
	case NoActivationsAvailable:
		return "no_activations_available"
	case AlreadyActivated:
		return "already_activated"
	default:
		return "unknown"
	}
}

// ScopeSupport fails for scopes the gateway cannot price. Only coupons bound
// to base products are supported.
func ScopeSupport(c *Coupon) error {
	switch c.Scope {
	case ScopeBaseProducts:
		return nil
	case ScopeStore:
		return apperrors.Domain(apperrors.CouponScopeNotSupported, "store-wide coupons are not supported yet")
	case ScopeCategories:
		return apperrors.Domain(apperrors.CouponScopeNotSupported, "category coupons are not supported yet")
	default:
		return apperrors.Domain(apperrors.CouponScopeNotSupported, fmt.Sprintf("unknown coupon scope %q", c.Scope))
	}
}

// Classify checks, in order, activity, expiry, remaining activations and
// prior use by the customer.
func Classify(c *Coupon, now time.Time) CouponState {
	switch {
	case !c.IsActive:
		return NotActive
	case c.ExpiresAt != nil && c.ExpiresAt.Before(now):
		return HasExpired
	case c.Quantity <= 0:
		return NoActivationsAvailable
	case c.ActivatedByCustomer:
		return AlreadyActivated
	default:
		return Valid
	}
}

// Validate turns a state into an error, nil only for Valid.
func Validate(state CouponState) error {
	switch state {
	case Valid:
		return nil
	case NotActive:
		return apperrors.Domain(apperrors.CouponNotActive, "coupon is not active")
	case HasExpired:
		return apperrors.Domain(apperrors.CouponExpired, "coupon has expired")
	case NoActivationsAvailable:
		return apperrors.Domain(apperrors.CouponNoActivations, "coupon has no activations left")
	case AlreadyActivated:
		return apperrors.Domain(apperrors.CouponAlreadyActivated, "coupon was already used by this customer")
	default:
		return apperrors.Unknown(fmt.Errorf("unknown coupon state %d", state))
	}
}

// Usable runs ScopeSupport then Classify and Validate.
func Usable(c *Coupon, now time.Time) error {
	if err := ScopeSupport(c); err != nil {
		return err
	}
	return Validate(Classify(c, now))
}

// UnitReduction is the amount a percent coupon takes off one unit.
func UnitReduction(unitPrice decimal.Decimal, percent int) decimal.Decimal {
	return unitPrice.Mul(decimal.NewFromInt(int64(percent))).Div(decimal.NewFromInt(100))
}
