package coupon

import (
	"math/rand/v2"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

const codeAlphabet = "0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZ"

// GiftValidity is how long an issued gift coupon remains redeemable.
const GiftValidity = 30 * 24 * time.Hour

var (
	giftTierMid     = decimal.NewFromInt(300)
	giftTierTop     = decimal.NewFromInt(500)
	giftMinPurchase = decimal.NewFromInt(50)
)

// GenerateCode returns prefix followed by 6 random base36 uppercase
// characters. The random source is injected so callers can generate
// deterministic codes in tests.
func GenerateCode(prefix string, rng *rand.Rand) string {
	b := make([]byte, 0, len(prefix)+6)
	b = append(b, prefix...)
	for range 6 {
		b = append(b, codeAlphabet[rng.IntN(len(codeAlphabet))])
	}
	return string(b)
}

// GiftTier returns the percentage discount a gift coupon grants for the
// given order total: 20% from $500, 15% from $300, 10% below that.
func GiftTier(orderTotal decimal.Decimal) decimal.Decimal {
	switch {
	case orderTotal.GreaterThanOrEqual(giftTierTop):
		return decimal.NewFromInt(20)
	case orderTotal.GreaterThanOrEqual(giftTierMid):
		return decimal.NewFromInt(15)
	default:
		return decimal.NewFromInt(10)
	}
}

// NewGift builds a loyalty gift coupon for the given owner. The coupon is
// private, single-use per user, expires after GiftValidity, and its discount
// tier depends on the qualifying order total.
func NewGift(ownerID string, orderTotal decimal.Decimal, now time.Time, rng *rand.Rand) *Coupon {
	one := 1
	owner := ownerID
	return &Coupon{
		ID:              uuid.New().String(),
		Code:            GenerateCode("GIFT", rng),
		Type:            TypePercentage,
		DiscountValue:   GiftTier(orderTotal),
		MinimumPurchase: giftMinPurchase,
		ExpiresAt:       now.Add(GiftValidity),
		Active:          true,
		Public:          false,
		OwnerID:         &owner,
		MaxUses:         &one,
		OnePerUser:      true,
		Description:     "Thank-you gift for your recent order",
		CreatedAt:       now,
	}
}
