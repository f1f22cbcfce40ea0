package coupon

import (
	"fmt"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

// Eligibility failures. The message text of each is surfaced verbatim to the
// client, so it must stay stable.
var (
	ErrNotActive         = errors.New("no longer active")
	ErrExpired           = errors.New("expired")
	ErrUsageLimitReached = errors.New("usage limit reached")
	ErrNotOwned          = errors.New("not available for your account")
	ErrAlreadyUsed       = errors.New("already used")
)

// MinimumPurchaseError indicates the cart total does not meet the coupon's
// minimum purchase requirement.
type MinimumPurchaseError struct {
	Minimum decimal.Decimal
}

func (e *MinimumPurchaseError) Error() string {
	return fmt.Sprintf("minimum purchase of $%s required", e.Minimum.StringFixed(2))
}

// IsInvalid reports whether err is one of the coupon eligibility failures.
func IsInvalid(err error) bool {
	if errors.Is(err, ErrNotActive) ||
		errors.Is(err, ErrExpired) ||
		errors.Is(err, ErrUsageLimitReached) ||
		errors.Is(err, ErrNotOwned) ||
		errors.Is(err, ErrAlreadyUsed) {
		return true
	}
	var mpErr *MinimumPurchaseError
	return errors.As(err, &mpErr)
}

var hundred = decimal.NewFromInt(100)

// Validate checks coupon eligibility for the given user and cart total at the
// given instant. Checks run in a fixed order and short-circuit on the first
// failure. Validate is a pure function of its inputs: no side effects, no
// wall-clock reads.
func Validate(c *Coupon, userID string, cartTotal decimal.Decimal, now time.Time) error {
	if !c.Active {
		return ErrNotActive
	}
	// Strict inequality: a coupon expiring exactly now is already expired.
	if !now.Before(c.ExpiresAt) {
		return ErrExpired
	}
	if c.MaxUses != nil && c.UsedCount >= *c.MaxUses {
		return ErrUsageLimitReached
	}
	if !c.Public && c.OwnerID != nil && *c.OwnerID != userID {
		return ErrNotOwned
	}
	if c.Public && c.OnePerUser && c.UsedByUser(userID) {
		return ErrAlreadyUsed
	}
	if cartTotal.LessThan(c.MinimumPurchase) {
		return &MinimumPurchaseError{Minimum: c.MinimumPurchase}
	}
	return nil
}

// Discount computes the monetary discount this coupon yields for the given
// cart total. The result is rounded half-up to the cent and never exceeds
// the cart total or goes negative.
func Discount(c *Coupon, cartTotal decimal.Decimal) decimal.Decimal {
	var amount decimal.Decimal

	switch c.Type {
	case TypePercentage:
		amount = cartTotal.Mul(c.DiscountValue).Div(hundred)
		if c.MaxDiscount != nil && amount.GreaterThan(*c.MaxDiscount) {
			amount = *c.MaxDiscount
		}
	case TypeFixed:
		amount = decimal.Min(c.DiscountValue, cartTotal)
	case TypeFreeShipping:
		// The shipping waiver is applied by the caller on the shipping line.
		amount = decimal.Zero
	default:
		amount = decimal.Zero
	}

	if amount.IsNegative() {
		amount = decimal.Zero
	}
	return amount.Round(2)
}
