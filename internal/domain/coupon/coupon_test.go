package coupon

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalizeCode(t *testing.T) {
	assert.Equal(t, "SAVE10", NormalizeCode("  save10 "))
	assert.Equal(t, "GIFT1A2B3C", NormalizeCode("gift1a2b3c"))
	assert.Equal(t, "", NormalizeCode("   "))
}

func TestRedeem(t *testing.T) {
	t.Run("public coupon stays active", func(t *testing.T) {
		c := &Coupon{Code: "PUB", Active: true, Public: true}

		c.Redeem("u1")

		assert.Equal(t, 1, c.UsedCount)
		assert.Equal(t, []string{"u1"}, c.UsedBy)
		assert.True(t, c.Active)
	})

	t.Run("private owned coupon deactivates", func(t *testing.T) {
		c := &Coupon{Code: "PRIV", Active: true, OwnerID: ptr("u1")}

		c.Redeem("u1")

		assert.False(t, c.Active)
	})

	t.Run("reaching max uses deactivates", func(t *testing.T) {
		c := &Coupon{Code: "LIM", Active: true, Public: true, MaxUses: ptr(2), UsedCount: 1}

		c.Redeem("u1")

		assert.Equal(t, 2, c.UsedCount)
		assert.False(t, c.Active)
	})

	t.Run("repeat redemption does not duplicate user", func(t *testing.T) {
		c := &Coupon{Code: "PUB", Active: true, Public: true, UsedBy: []string{"u1"}}

		c.Redeem("u1")

		assert.Equal(t, []string{"u1"}, c.UsedBy)
		assert.Equal(t, 1, c.UsedCount)
	})
}

func TestIsGift(t *testing.T) {
	assert.True(t, (&Coupon{Description: "Thank-you gift for your recent order"}).IsGift())
	assert.True(t, (&Coupon{Description: "GIFT promo"}).IsGift())
	assert.False(t, (&Coupon{Description: "10% off everything"}).IsGift())
	assert.False(t, (&Coupon{}).IsGift())
}
