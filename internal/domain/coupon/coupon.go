package coupon

import (
	"context"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

// Type enumerates the supported coupon discount strategies.
type Type string

const (
	// TypePercentage applies a percentage-based discount to the cart total.
	TypePercentage Type = "percentage"
	// TypeFixed applies a fixed monetary discount capped at the cart total.
	TypeFixed Type = "fixed"
	// TypeFreeShipping waives the shipping cost. The monetary discount is
	// zero; the caller applies the waiver to the shipping line.
	TypeFreeShipping Type = "free_shipping"
)

var (
	// ErrNotFound is returned when no coupon exists for a code or ID.
	ErrNotFound = errors.New("coupon not found")
	// ErrRedemptionConflict is returned when an atomic redemption is rejected
	// because a concurrent redemption consumed the coupon first.
	ErrRedemptionConflict = errors.New("coupon redemption conflict")
)

// Coupon holds a discount rule together with its eligibility constraints and
// redemption state.
type Coupon struct {
	ID              string
	Code            string
	Type            Type
	DiscountValue   decimal.Decimal
	MinimumPurchase decimal.Decimal
	MaxDiscount     *decimal.Decimal
	ExpiresAt       time.Time
	Active          bool
	Public          bool
	OwnerID         *string
	MaxUses         *int
	UsedCount       int
	UsedBy          []string
	OnePerUser      bool
	Description     string
	// Categories and ProductIDs are allow-lists carried on the entity but not
	// consulted by Validate. Kept for admin tooling compatibility.
	Categories []string
	ProductIDs []string
	CreatedAt  time.Time
}

// NormalizeCode uppercases and trims a coupon code for case-insensitive lookup.
func NormalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// UsedByUser reports whether userID has already redeemed this coupon.
func (c *Coupon) UsedByUser(userID string) bool {
	for _, u := range c.UsedBy {
		if u == userID {
			return true
		}
	}
	return false
}

// IsGift reports whether this coupon was issued as a loyalty gift.
// Gift coupons are matched by description, case-insensitive.
func (c *Coupon) IsGift() bool {
	return strings.Contains(strings.ToLower(c.Description), "gift")
}

// Redeem applies the redemption state transition: increments the usage
// counter, records the user, and deactivates the coupon when it is private
// to an owner (single-use semantics) or when the usage limit is reached.
//
// Redeem mutates only the in-memory entity. Persisting the transition under
// concurrent access must go through Repository.Redeem, which performs the
// eligibility re-check and the write as one guarded update.
func (c *Coupon) Redeem(userID string) {
	c.UsedCount++
	if !c.UsedByUser(userID) {
		c.UsedBy = append(c.UsedBy, userID)
	}
	if !c.Public && c.OwnerID != nil {
		c.Active = false
	}
	if c.MaxUses != nil && c.UsedCount >= *c.MaxUses {
		c.Active = false
	}
}

// Repository provides persistence for coupons.
//
// Redeem must perform the usage-limit and one-per-user checks together with
// the redemption write as a single atomic operation: two concurrent
// redemptions of a coupon with one remaining use must yield exactly one
// success and one ErrRedemptionConflict.
type Repository interface {
	FindByCode(ctx context.Context, code string) (*Coupon, error)
	FindByID(ctx context.Context, id string) (*Coupon, error)
	List(ctx context.Context, userID string) ([]Coupon, error)
	Create(ctx context.Context, c *Coupon) error
	Update(ctx context.Context, c *Coupon) error
	Delete(ctx context.Context, id string) error
	Redeem(ctx context.Context, code, userID string) (*Coupon, error)
	DeleteGiftCoupons(ctx context.Context, ownerID string) error
}
