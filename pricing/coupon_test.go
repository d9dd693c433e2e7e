package pricing

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"

	apperrors "github.com/yashrajoria/graphql-gateway/errors"
)

var now = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

func validCoupon() *Coupon {
	expires := now.Add(24 * time.Hour)
	return &Coupon{
		ID:        1,
		Percent:   20,
		Quantity:  5,
		ExpiresAt: &expires,
		IsActive:  true,
		Scope:     ScopeBaseProducts,
	}
}

func TestClassify(t *testing.T) {
	past := now.Add(-time.Minute)

	cases := []struct {
		name   string
		mutate func(c *Coupon)
		want   CouponState
		err    error
	}{
		{"valid", func(*Coupon) {}, Valid, nil},
		{"no expiry", func(c *Coupon) { c.ExpiresAt = nil }, Valid, nil},
		{"inactive", func(c *Coupon) { c.IsActive = false }, NotActive, apperrors.ErrCouponNotActive},
		{"expired", func(c *Coupon) { c.ExpiresAt = &past }, HasExpired, apperrors.ErrCouponExpired},
		{"no activations", func(c *Coupon) { c.Quantity = 0 }, NoActivationsAvailable, apperrors.ErrCouponNoActivations},
		{"already used", func(c *Coupon) { c.ActivatedByCustomer = true }, AlreadyActivated, apperrors.ErrCouponAlreadyActivated},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			c := validCoupon()
			tc.mutate(c)
			state := Classify(c, now)
			assert.Equal(t, tc.want, state)

			err := Validate(state)
			if tc.err == nil {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, tc.err)
		})
	}
}

func TestClassifyOrder(t *testing.T) {
	past := now.Add(-time.Minute)
	c := &Coupon{IsActive: false, ExpiresAt: &past, Quantity: 0, ActivatedByCustomer: true}
	assert.Equal(t, NotActive, Classify(c, now))

	c.IsActive = true
	assert.Equal(t, HasExpired, Classify(c, now))

	c.ExpiresAt = nil
	assert.Equal(t, NoActivationsAvailable, Classify(c, now))

	c.Quantity = 1
	assert.Equal(t, AlreadyActivated, Classify(c, now))
}

func TestValidateErrorsAreDistinct(t *testing.T) {
	states := []CouponState{NotActive, HasExpired, NoActivationsAvailable, AlreadyActivated}
	sentinels := []error{
		apperrors.ErrCouponNotActive,
		apperrors.ErrCouponExpired,
		apperrors.ErrCouponNoActivations,
		apperrors.ErrCouponAlreadyActivated,
	}
	for i, s := range states {
		err := Validate(s)
		for j, sentinel := range sentinels {
			if i == j {
				assert.ErrorIs(t, err, sentinel)
			} else {
				assert.NotErrorIs(t, err, sentinel)
			}
		}
	}
}

func TestScopeSupport(t *testing.T) {
	c := validCoupon()
	assert.NoError(t, ScopeSupport(c))

	for _, scope := range []Scope{ScopeStore, ScopeCategories, Scope("brand")} {
		c.Scope = scope
		err := ScopeSupport(c)
		assert.ErrorIs(t, err, apperrors.ErrCouponScopeNotSupported, string(scope))
		assert.NotEmpty(t, apperrors.From(err).Message)
	}
}

func TestUsable(t *testing.T) {
	c := validCoupon()
	assert.NoError(t, Usable(c, now))

	c.Scope = ScopeStore
	c.IsActive = false
	assert.ErrorIs(t, Usable(c, now), apperrors.ErrCouponScopeNotSupported)
}

func TestUnitReduction(t *testing.T) {
	assert.True(t, decimal.NewFromInt(10).Equal(UnitReduction(decimal.NewFromInt(50), 20)))
	assert.True(t, decimal.Zero.Equal(UnitReduction(decimal.NewFromInt(50), 0)))
	assert.True(t, decimal.NewFromInt(50).Equal(UnitReduction(decimal.NewFromInt(50), 100)))
	assert.True(t, decimal.RequireFromString("3.33").Equal(UnitReduction(decimal.RequireFromString("11.10"), 30)))
}
