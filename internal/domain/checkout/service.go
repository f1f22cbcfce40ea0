package checkout

import (
	"context"
	"fmt"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/dripmart/storefront/internal/domain/coupon"
	"github.com/dripmart/storefront/internal/domain/order"
	"github.com/dripmart/storefront/internal/domain/product"
)

const (
	// gatewayMinimumMinor is the smallest chargeable amount in minor units.
	gatewayMinimumMinor = 50
	// giftThresholdMinor is the paid amount from which a loyalty gift coupon
	// is issued ($200.00).
	giftThresholdMinor = 20000

	defaultCurrency = "usd"
)

var (
	// ErrInvalidRequest is returned for a missing amount or an empty cart.
	ErrInvalidRequest = errors.New("amount and cart items are required")
	// ErrAmountTooSmall is returned when the final amount is below the
	// gateway's chargeable minimum.
	ErrAmountTooSmall = errors.New("amount below gateway minimum")
)

// PaymentNotSucceededError is returned when the gateway reports any status
// other than succeeded at confirmation time.
type PaymentNotSucceededError struct {
	Status string
}

func (e *PaymentNotSucceededError) Error() string {
	return fmt.Sprintf("payment not succeeded: gateway status %q", e.Status)
}

// CartItem is a line item in a checkout request.
type CartItem struct {
	ProductID string
	Name      string
	Quantity  int
	UnitPrice decimal.Decimal
	Size      string
	Color     string
}

// CreateIntentRequest is the input for creating a payment intent.
type CreateIntentRequest struct {
	UserID     string
	Amount     decimal.Decimal
	Items      []CartItem
	CouponCode string
	Shipping   order.Address
}

// CreateIntentResult is the client-facing output of intent creation.
type CreateIntentResult struct {
	IntentID     string
	ClientSecret string
	Discount     decimal.Decimal
	FinalAmount  decimal.Decimal
}

// ConfirmRequest is the input for confirming a completed payment. Totals are
// cosmetic: the intent metadata is the source of truth for line items.
type ConfirmRequest struct {
	IntentID     string
	UserID       string
	Subtotal     decimal.Decimal
	Discount     decimal.Decimal
	ShippingCost decimal.Decimal
	Shipping     order.Address
}

// StockAdjustment is the per-item outcome of the post-order stock decrement.
type StockAdjustment struct {
	ProductID string
	Quantity  int
	NewStock  int
	Clamped   bool
	Err       error
}

// ConfirmResult reports the created order and the per-item stock outcomes.
type ConfirmResult struct {
	OrderID          string
	OrderNumber      string
	StockAdjustments []StockAdjustment
	GiftCouponCode   string
}

// Service orchestrates the checkout flow: intent creation with coupon
// discounts, and payment confirmation with order creation, stock adjustment,
// coupon redemption, and gift coupon issuance.
type Service struct {
	coupons  coupon.Repository
	products product.Repository
	orders   order.Repository
	gateway  Gateway
	lg       *zap.Logger

	now func() time.Time

	// rngMu serializes draws from rng: rand/v2 generators are not safe for
	// concurrent use, and confirmations run on per-request goroutines.
	rngMu sync.Mutex
	rng   *rand.Rand
}

// NewService constructs a checkout Service. The gateway is injected, never a
// process-wide client. The clock and random source default to real ones and
// are overridable in tests.
func NewService(
	coupons coupon.Repository,
	products product.Repository,
	orders order.Repository,
	gateway Gateway,
	lg *zap.Logger,
) *Service {
	return &Service{
		coupons:  coupons,
		products: products,
		orders:   orders,
		gateway:  gateway,
		lg:       lg,
		now:      time.Now,
		rng:      rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64())),
	}
}

// CreateIntent validates the request, applies an optional coupon through the
// rule engine, and creates a gateway payment intent carrying the serialized
// cart as metadata.
//
// Coupon discounts here go through the same Validate/Discount engine as the
// standalone validation endpoint.
func (s *Service) CreateIntent(ctx context.Context, req CreateIntentRequest) (*CreateIntentResult, error) {
	if !req.Amount.IsPositive() || len(req.Items) == 0 {
		return nil, ErrInvalidRequest
	}
	for _, item := range req.Items {
		if item.Quantity < 1 {
			return nil, errors.Wrapf(ErrInvalidRequest, "product %s: quantity %d", item.ProductID, item.Quantity)
		}
	}

	discount := decimal.Zero
	couponCode := ""
	if req.CouponCode != "" {
		code := coupon.NormalizeCode(req.CouponCode)
		c, err := s.coupons.FindByCode(ctx, code)
		if err != nil {
			if errors.Is(err, coupon.ErrNotFound) {
				return nil, coupon.ErrNotFound
			}
			return nil, errors.Wrap(err, "lookup coupon")
		}
		if err := coupon.Validate(c, req.UserID, req.Amount, s.now()); err != nil {
			return nil, err
		}
		discount = coupon.Discount(c, req.Amount)
		couponCode = code
	}

	finalAmount := req.Amount.Sub(discount).Round(2)
	minor := finalAmount.Mul(decimal.NewFromInt(100)).Round(0).IntPart()
	if minor < gatewayMinimumMinor {
		return nil, errors.Wrapf(ErrAmountTooSmall, "%d minor units", minor)
	}

	meta := Metadata{
		UserID:     req.UserID,
		CouponCode: couponCode,
		Items:      cartToMeta(req.Items),
		Shipping:   req.Shipping,
	}
	encoded, err := meta.Encode()
	if err != nil {
		return nil, errors.Wrap(err, "encode metadata")
	}

	ref, err := s.gateway.CreateIntent(ctx, minor, defaultCurrency, encoded)
	if err != nil {
		return nil, errors.Wrap(err, "create payment intent")
	}

	return &CreateIntentResult{
		IntentID:     ref.ID,
		ClientSecret: ref.ClientSecret,
		Discount:     discount,
		FinalAmount:  finalAmount,
	}, nil
}

// ConfirmPayment finalizes a checkout after the client completed payment out
// of band. It re-fetches the intent, requires a succeeded status, creates
// the order from the intent's metadata snapshot, decrements stock per line
// item best-effort, redeems the coupon, and issues a gift coupon when the
// paid amount crosses the loyalty threshold.
//
// A failure creating the order aborts the confirmation. Failures after the
// order exists (stock, coupon, gift) are logged and do not void the
// already-paid order.
func (s *Service) ConfirmPayment(ctx context.Context, req ConfirmRequest) (*ConfirmResult, error) {
	intent, err := s.gateway.GetIntent(ctx, req.IntentID)
	if err != nil {
		return nil, errors.Wrap(err, "retrieve payment intent")
	}
	if intent.Status != IntentStatusSucceeded {
		return nil, &PaymentNotSucceededError{Status: intent.Status}
	}

	meta, err := DecodeMetadata(intent.Metadata)
	if err != nil {
		return nil, errors.Wrap(err, "decode intent metadata")
	}

	now := s.now()
	o := s.buildOrder(req, meta, intent, now)
	if err := s.orders.Create(ctx, o); err != nil {
		return nil, errors.Wrap(err, "create order")
	}

	// Redeem after the order exists: the payment is already captured, so a
	// redemption failure must not void the order.
	if meta.CouponCode != "" {
		if _, err := s.coupons.Redeem(ctx, meta.CouponCode, meta.UserID); err != nil {
			s.lg.Warn("coupon redemption failed after paid order",
				zap.String("order", o.Number),
				zap.String("coupon", meta.CouponCode),
				zap.Error(err))
		}
	}

	adjustments := s.adjustStock(ctx, o)

	giftCode := ""
	if intent.AmountMinor >= giftThresholdMinor {
		giftCode = s.issueGiftCoupon(ctx, meta.UserID, o.Total, now)
	}

	return &ConfirmResult{
		OrderID:          o.ID,
		OrderNumber:      o.Number,
		StockAdjustments: adjustments,
		GiftCouponCode:   giftCode,
	}, nil
}

// buildOrder assembles the immutable order record. Line items come from the
// intent metadata; the request totals are used for the stored breakdown,
// with the grand total derived by construction.
func (s *Service) buildOrder(req ConfirmRequest, meta *Metadata, intent *Intent, now time.Time) *order.Order {
	items := make([]order.Item, len(meta.Items))
	subtotal := decimal.Zero
	for i, it := range meta.Items {
		items[i] = order.Item{
			ProductID: it.ProductID,
			Name:      it.Name,
			Quantity:  it.Quantity,
			UnitPrice: it.UnitPrice,
			Size:      it.Size,
			Color:     it.Color,
		}
		subtotal = subtotal.Add(it.UnitPrice.Mul(decimal.NewFromInt(int64(it.Quantity))))
	}

	// Stored subtotal prefers the client-reported value, falling back to the
	// recomputed one when absent.
	if !req.Subtotal.IsPositive() {
		req.Subtotal = subtotal.Round(2)
	}

	// Shipping address fallback chain: metadata snapshot first, then the
	// confirmation request body, then empty.
	shipping := meta.Shipping
	if shipping == (order.Address{}) {
		shipping = req.Shipping
	}

	total := req.Subtotal.Sub(req.Discount).Add(req.ShippingCost).Round(2)
	if total.IsNegative() {
		total = decimal.Zero
	}

	return &order.Order{
		ID:              uuid.New().String(),
		UserID:          meta.UserID,
		Number:          s.orderNumber(now),
		Items:           items,
		Subtotal:        req.Subtotal,
		ShippingCost:    req.ShippingCost,
		Discount:        req.Discount,
		Total:           total,
		CouponCode:      meta.CouponCode,
		ShippingAddress: shipping,
		Status:          order.StatusPending,
		PaymentStatus:   order.PaymentPaid,
		PaymentMethod:   "card",
		PaymentIntentID: intent.ID,
		PaidAt:          &now,
		CreatedAt:       now,
	}
}

// adjustStock decrements the aggregate stock for every line item
// independently. One failing item never blocks the others and never rolls
// anything back; failures and oversell clamps are logged and reported in the
// per-item results.
func (s *Service) adjustStock(ctx context.Context, o *order.Order) []StockAdjustment {
	adjustments := make([]StockAdjustment, 0, len(o.Items))
	for _, item := range o.Items {
		newStock, clamped, err := s.products.DecrementStock(ctx, item.ProductID, item.Quantity)
		adj := StockAdjustment{
			ProductID: item.ProductID,
			Quantity:  item.Quantity,
			NewStock:  newStock,
			Clamped:   clamped,
			Err:       err,
		}
		switch {
		case err != nil:
			s.lg.Error("stock decrement failed",
				zap.String("order", o.Number),
				zap.String("product", item.ProductID),
				zap.Int("quantity", item.Quantity),
				zap.Error(err))
		case clamped:
			// No reservation exists between intent creation and confirmation,
			// so an oversell here means a race was lost. Flag it loudly.
			s.lg.Warn("stock decrement clamped at zero, possible oversell",
				zap.String("order", o.Number),
				zap.String("product", item.ProductID),
				zap.Int("quantity", item.Quantity))
		}
		adjustments = append(adjustments, adj)
	}
	return adjustments
}

// issueGiftCoupon replaces any previous gift coupon for the user with a new
// tiered one. Failures are logged, never fatal: the customer keeps the order
// either way.
func (s *Service) issueGiftCoupon(ctx context.Context, userID string, orderTotal decimal.Decimal, now time.Time) string {
	if err := s.coupons.DeleteGiftCoupons(ctx, userID); err != nil {
		s.lg.Warn("deleting previous gift coupons failed",
			zap.String("user", userID),
			zap.Error(err))
	}

	s.rngMu.Lock()
	gift := coupon.NewGift(userID, orderTotal, now, s.rng)
	s.rngMu.Unlock()
	if err := s.coupons.Create(ctx, gift); err != nil {
		s.lg.Error("creating gift coupon failed",
			zap.String("user", userID),
			zap.Error(err))
		return ""
	}

	s.lg.Info("gift coupon issued",
		zap.String("user", userID),
		zap.String("code", gift.Code),
		zap.String("discount", gift.DiscountValue.String()))
	return gift.Code
}

func (s *Service) orderNumber(now time.Time) string {
	s.rngMu.Lock()
	defer s.rngMu.Unlock()
	return order.GenerateNumber(now, s.rng)
}

func cartToMeta(items []CartItem) []ItemMeta {
	out := make([]ItemMeta, len(items))
	for i, it := range items {
		out[i] = ItemMeta{
			ProductID: it.ProductID,
			Name:      it.Name,
			Quantity:  it.Quantity,
			UnitPrice: it.UnitPrice,
			Size:      it.Size,
			Color:     it.Color,
		}
	}
	return out
}
