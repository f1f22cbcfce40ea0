package checkout

import (
	"context"
	"math/rand/v2"
	"sync"
	"testing"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/dripmart/storefront/internal/domain/coupon"
	"github.com/dripmart/storefront/internal/domain/order"
	"github.com/dripmart/storefront/internal/domain/product"
)

type fakeCouponRepo struct {
	mu      sync.Mutex
	coupons map[string]*coupon.Coupon
	created []*coupon.Coupon
	deleted []string
}

func newFakeCouponRepo(coupons ...*coupon.Coupon) *fakeCouponRepo {
	r := &fakeCouponRepo{coupons: make(map[string]*coupon.Coupon)}
	for _, c := range coupons {
		r.coupons[c.Code] = c
	}
	return r
}

func (r *fakeCouponRepo) FindByCode(_ context.Context, code string) (*coupon.Coupon, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.coupons[code]
	if !ok {
		return nil, coupon.ErrNotFound
	}
	cp := *c
	return &cp, nil
}

func (r *fakeCouponRepo) FindByID(_ context.Context, id string) (*coupon.Coupon, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, c := range r.coupons {
		if c.ID == id {
			cp := *c
			return &cp, nil
		}
	}
	return nil, coupon.ErrNotFound
}

func (r *fakeCouponRepo) List(_ context.Context, _ string) ([]coupon.Coupon, error) {
	return nil, nil
}

func (r *fakeCouponRepo) Create(_ context.Context, c *coupon.Coupon) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.coupons[c.Code] = c
	r.created = append(r.created, c)
	return nil
}

func (r *fakeCouponRepo) Update(_ context.Context, c *coupon.Coupon) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.coupons[c.Code] = c
	return nil
}

func (r *fakeCouponRepo) Delete(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for code, c := range r.coupons {
		if c.ID == id {
			delete(r.coupons, code)
			return nil
		}
	}
	return coupon.ErrNotFound
}

// Redeem mirrors the guarded-update semantics of the SQL implementation: the
// eligibility re-check and the write happen under one lock, so concurrent
// callers racing for the last use see exactly one success.
func (r *fakeCouponRepo) Redeem(_ context.Context, code, userID string) (*coupon.Coupon, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.coupons[code]
	if !ok {
		return nil, coupon.ErrNotFound
	}
	if !c.Active ||
		(c.MaxUses != nil && c.UsedCount >= *c.MaxUses) ||
		(c.OnePerUser && c.UsedByUser(userID)) {
		return nil, coupon.ErrRedemptionConflict
	}
	c.Redeem(userID)
	cp := *c
	return &cp, nil
}

func (r *fakeCouponRepo) DeleteGiftCoupons(_ context.Context, ownerID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for code, c := range r.coupons {
		if c.IsGift() && c.OwnerID != nil && *c.OwnerID == ownerID {
			delete(r.coupons, code)
			r.deleted = append(r.deleted, code)
		}
	}
	return nil
}

type fakeProductRepo struct {
	mu    sync.Mutex
	stock map[string]int
	errs  map[string]error
}

func newFakeProductRepo(stock map[string]int) *fakeProductRepo {
	return &fakeProductRepo{stock: stock, errs: make(map[string]error)}
}

func (r *fakeProductRepo) List(_ context.Context) ([]product.Product, error) { return nil, nil }

func (r *fakeProductRepo) GetByID(_ context.Context, id string) (*product.Product, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.stock[id]
	if !ok {
		return nil, product.ErrNotFound
	}
	return &product.Product{ID: id, TotalStock: s}, nil
}

func (r *fakeProductRepo) GetByIDs(_ context.Context, _ []string) ([]product.Product, error) {
	return nil, nil
}

func (r *fakeProductRepo) Create(_ context.Context, _ *product.Product) error { return nil }
func (r *fakeProductRepo) Update(_ context.Context, _ *product.Product) error { return nil }
func (r *fakeProductRepo) Delete(_ context.Context, _ string) error           { return nil }

func (r *fakeProductRepo) DecrementStock(_ context.Context, id string, qty int) (int, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.errs[id]; err != nil {
		return 0, false, err
	}
	s, ok := r.stock[id]
	if !ok {
		return 0, false, product.ErrNotFound
	}
	clamped := s < qty
	s -= qty
	if s < 0 {
		s = 0
	}
	r.stock[id] = s
	return s, clamped, nil
}

type fakeOrderRepo struct {
	mu        sync.Mutex
	created   []*order.Order
	createErr error
}

func (r *fakeOrderRepo) Create(_ context.Context, o *order.Order) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.createErr != nil {
		return r.createErr
	}
	r.created = append(r.created, o)
	return nil
}

func (r *fakeOrderRepo) GetByID(_ context.Context, _ string) (*order.Order, error) {
	return nil, order.ErrNotFound
}

func (r *fakeOrderRepo) GetByNumber(_ context.Context, _ string) (*order.Order, error) {
	return nil, order.ErrNotFound
}

func (r *fakeOrderRepo) ListByUser(_ context.Context, _ string) ([]order.Order, error) {
	return nil, nil
}

func (r *fakeOrderRepo) Update(_ context.Context, _ *order.Order) error { return nil }

func (r *fakeOrderRepo) CountByStatus(_ context.Context) (map[order.Status]int, error) {
	return nil, nil
}

type fakeGateway struct {
	intents      map[string]*Intent
	lastAmount   int64
	lastCurrency string
	lastMetadata map[string]string
	createErr    error
	getErr       error
}

func newFakeGateway() *fakeGateway {
	return &fakeGateway{intents: make(map[string]*Intent)}
}

func (g *fakeGateway) CreateIntent(_ context.Context, amountMinor int64, currency string, metadata map[string]string) (*IntentRef, error) {
	if g.createErr != nil {
		return nil, g.createErr
	}
	g.lastAmount = amountMinor
	g.lastCurrency = currency
	g.lastMetadata = metadata
	g.intents["pi_test"] = &Intent{
		ID:          "pi_test",
		Status:      IntentStatusSucceeded,
		AmountMinor: amountMinor,
		Metadata:    metadata,
	}
	return &IntentRef{ID: "pi_test", ClientSecret: "pi_test_secret"}, nil
}

func (g *fakeGateway) GetIntent(_ context.Context, id string) (*Intent, error) {
	if g.getErr != nil {
		return nil, g.getErr
	}
	intent, ok := g.intents[id]
	if !ok {
		return nil, errors.New("no such intent")
	}
	return intent, nil
}

var fixedNow = time.Date(2026, 3, 15, 12, 0, 0, 0, time.UTC)

func newTestService(coupons *fakeCouponRepo, products *fakeProductRepo, orders *fakeOrderRepo, gw *fakeGateway) *Service {
	s := NewService(coupons, products, orders, gw, zap.NewNop())
	s.now = func() time.Time { return fixedNow }
	s.rng = rand.New(rand.NewPCG(1, 2))
	return s
}

func TestCreateIntent(t *testing.T) {
	items := []CartItem{
		{ProductID: "prod-1", Name: "Classic Logo Tee", Quantity: 2, UnitPrice: decimal.NewFromFloat(29.99)},
	}

	tests := []struct {
		name         string
		coupons      []*coupon.Coupon
		req          CreateIntentRequest
		wantErr      error
		wantInvalid  bool
		wantDiscount string
		wantFinal    string
		wantMinor    int64
	}{
		{
			name: "no coupon charges full amount",
			req: CreateIntentRequest{
				UserID: "u1",
				Amount: decimal.NewFromFloat(59.98),
				Items:  items,
			},
			wantDiscount: "0.00",
			wantFinal:    "59.98",
			wantMinor:    5998,
		},
		{
			name: "percentage coupon applied",
			coupons: []*coupon.Coupon{{
				Code:          "SAVE10",
				Type:          coupon.TypePercentage,
				DiscountValue: decimal.NewFromInt(10),
				ExpiresAt:     fixedNow.Add(time.Hour),
				Active:        true,
				Public:        true,
			}},
			req: CreateIntentRequest{
				UserID:     "u1",
				Amount:     decimal.NewFromInt(100),
				Items:      items,
				CouponCode: "save10",
			},
			wantDiscount: "10.00",
			wantFinal:    "90.00",
			wantMinor:    9000,
		},
		{
			name: "unknown coupon",
			req: CreateIntentRequest{
				UserID:     "u1",
				Amount:     decimal.NewFromInt(100),
				Items:      items,
				CouponCode: "BOGUS",
			},
			wantErr: coupon.ErrNotFound,
		},
		{
			name: "expired coupon",
			coupons: []*coupon.Coupon{{
				Code:          "OLD",
				Type:          coupon.TypePercentage,
				DiscountValue: decimal.NewFromInt(10),
				ExpiresAt:     fixedNow.Add(-time.Hour),
				Active:        true,
				Public:        true,
			}},
			req: CreateIntentRequest{
				UserID:     "u1",
				Amount:     decimal.NewFromInt(100),
				Items:      items,
				CouponCode: "OLD",
			},
			wantErr: coupon.ErrExpired,
		},
		{
			name: "zero amount",
			req: CreateIntentRequest{
				UserID: "u1",
				Amount: decimal.Zero,
				Items:  items,
			},
			wantErr: ErrInvalidRequest,
		},
		{
			name: "empty cart",
			req: CreateIntentRequest{
				UserID: "u1",
				Amount: decimal.NewFromInt(100),
			},
			wantErr: ErrInvalidRequest,
		},
		{
			name: "zero quantity item",
			req: CreateIntentRequest{
				UserID: "u1",
				Amount: decimal.NewFromInt(100),
				Items:  []CartItem{{ProductID: "prod-1", Quantity: 0, UnitPrice: decimal.NewFromInt(100)}},
			},
			wantErr: ErrInvalidRequest,
		},
		{
			name: "final amount below gateway minimum",
			coupons: []*coupon.Coupon{{
				Code:          "BIG",
				Type:          coupon.TypeFixed,
				DiscountValue: decimal.NewFromInt(10),
				ExpiresAt:     fixedNow.Add(time.Hour),
				Active:        true,
				Public:        true,
			}},
			req: CreateIntentRequest{
				UserID:     "u1",
				Amount:     decimal.NewFromFloat(10.25),
				Items:      items,
				CouponCode: "BIG",
			},
			wantErr: ErrAmountTooSmall,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gw := newFakeGateway()
			s := newTestService(newFakeCouponRepo(tt.coupons...), newFakeProductRepo(nil), &fakeOrderRepo{}, gw)

			got, err := s.CreateIntent(context.Background(), tt.req)

			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, "pi_test", got.IntentID)
			assert.Equal(t, "pi_test_secret", got.ClientSecret)
			assert.Equal(t, tt.wantDiscount, got.Discount.StringFixed(2))
			assert.Equal(t, tt.wantFinal, got.FinalAmount.StringFixed(2))
			assert.Equal(t, tt.wantMinor, gw.lastAmount)
			assert.Equal(t, "usd", gw.lastCurrency)
			assert.Equal(t, tt.req.UserID, gw.lastMetadata["userId"])
			assert.NotEmpty(t, gw.lastMetadata["items"])
		})
	}
}

func TestConfirmPayment(t *testing.T) {
	// A qualifying order: $250 cart with a 10% coupon, paid in full.
	cart := []CartItem{
		{ProductID: "prod-2", Name: "Heavyweight Hoodie", Quantity: 2, UnitPrice: decimal.NewFromInt(100), Size: "M"},
		{ProductID: "prod-4", Name: "Canvas Tote Bag", Quantity: 2, UnitPrice: decimal.NewFromInt(25)},
	}

	setup := func(t *testing.T) (*Service, *fakeCouponRepo, *fakeProductRepo, *fakeOrderRepo, *fakeGateway) {
		t.Helper()
		coupons := newFakeCouponRepo(&coupon.Coupon{
			ID:            "c1",
			Code:          "SAVE10",
			Type:          coupon.TypePercentage,
			DiscountValue: decimal.NewFromInt(10),
			ExpiresAt:     fixedNow.Add(time.Hour),
			Active:        true,
			Public:        true,
		})
		products := newFakeProductRepo(map[string]int{"prod-2": 10, "prod-4": 10})
		orders := &fakeOrderRepo{}
		gw := newFakeGateway()
		s := newTestService(coupons, products, orders, gw)

		_, err := s.CreateIntent(context.Background(), CreateIntentRequest{
			UserID:     "u1",
			Amount:     decimal.NewFromInt(250),
			Items:      cart,
			CouponCode: "SAVE10",
			Shipping:   order.Address{Name: "Jane Doe", Street: "1 Main St", City: "Springfield"},
		})
		require.NoError(t, err)
		return s, coupons, products, orders, gw
	}

	confirmReq := ConfirmRequest{
		IntentID:     "pi_test",
		UserID:       "u1",
		Subtotal:     decimal.NewFromInt(250),
		Discount:     decimal.NewFromInt(25),
		ShippingCost: decimal.NewFromInt(5),
	}

	t.Run("creates paid order, adjusts stock, redeems coupon, issues gift", func(t *testing.T) {
		s, coupons, products, orders, _ := setup(t)

		got, err := s.ConfirmPayment(context.Background(), confirmReq)
		require.NoError(t, err)

		require.Len(t, orders.created, 1)
		o := orders.created[0]
		assert.Equal(t, got.OrderID, o.ID)
		assert.Equal(t, got.OrderNumber, o.Number)
		assert.Regexp(t, `^DM2603-[0-9A-Z]{6}$`, o.Number)
		assert.Equal(t, order.StatusPending, o.Status)
		assert.Equal(t, order.PaymentPaid, o.PaymentStatus)
		assert.Equal(t, "pi_test", o.PaymentIntentID)
		require.NotNil(t, o.PaidAt)
		assert.Equal(t, fixedNow, *o.PaidAt)
		assert.Equal(t, "230.00", o.Total.StringFixed(2))
		assert.Equal(t, "SAVE10", o.CouponCode)
		assert.Equal(t, "Jane Doe", o.ShippingAddress.Name)
		require.Len(t, o.Items, 2)
		assert.Equal(t, "M", o.Items[0].Size)

		// Stock decremented per line item.
		assert.Equal(t, 8, products.stock["prod-2"])
		assert.Equal(t, 8, products.stock["prod-4"])
		require.Len(t, got.StockAdjustments, 2)
		for _, adj := range got.StockAdjustments {
			assert.NoError(t, adj.Err)
			assert.False(t, adj.Clamped)
		}

		// Coupon usage recorded.
		c, err := coupons.FindByCode(context.Background(), "SAVE10")
		require.NoError(t, err)
		assert.Equal(t, 1, c.UsedCount)
		assert.True(t, c.UsedByUser("u1"))

		// The paid amount clears the loyalty threshold; the tier below $300 is 10%.
		require.NotEmpty(t, got.GiftCouponCode)
		gift, err := coupons.FindByCode(context.Background(), got.GiftCouponCode)
		require.NoError(t, err)
		assert.True(t, decimal.NewFromInt(10).Equal(gift.DiscountValue))
		require.NotNil(t, gift.OwnerID)
		assert.Equal(t, "u1", *gift.OwnerID)
	})

	t.Run("replaces previous gift coupon", func(t *testing.T) {
		s, coupons, _, _, _ := setup(t)
		old := coupon.NewGift("u1", decimal.NewFromInt(100), fixedNow.Add(-time.Hour), s.rng)
		require.NoError(t, coupons.Create(context.Background(), old))

		got, err := s.ConfirmPayment(context.Background(), confirmReq)
		require.NoError(t, err)

		assert.Contains(t, coupons.deleted, old.Code)
		assert.NotEqual(t, old.Code, got.GiftCouponCode)
	})

	t.Run("no gift below threshold", func(t *testing.T) {
		coupons := newFakeCouponRepo()
		products := newFakeProductRepo(map[string]int{"prod-4": 10})
		orders := &fakeOrderRepo{}
		gw := newFakeGateway()
		s := newTestService(coupons, products, orders, gw)

		_, err := s.CreateIntent(context.Background(), CreateIntentRequest{
			UserID: "u1",
			Amount: decimal.NewFromInt(50),
			Items:  []CartItem{{ProductID: "prod-4", Quantity: 2, UnitPrice: decimal.NewFromInt(25)}},
		})
		require.NoError(t, err)

		got, err := s.ConfirmPayment(context.Background(), ConfirmRequest{
			IntentID: "pi_test",
			UserID:   "u1",
			Subtotal: decimal.NewFromInt(50),
		})
		require.NoError(t, err)
		assert.Empty(t, got.GiftCouponCode)
		assert.Empty(t, coupons.created)
	})

	t.Run("stock clamp reported, order kept", func(t *testing.T) {
		s, _, products, orders, _ := setup(t)
		products.stock["prod-2"] = 1

		got, err := s.ConfirmPayment(context.Background(), confirmReq)
		require.NoError(t, err)

		require.Len(t, orders.created, 1)
		require.Len(t, got.StockAdjustments, 2)
		assert.True(t, got.StockAdjustments[0].Clamped)
		assert.Equal(t, 0, got.StockAdjustments[0].NewStock)
		assert.False(t, got.StockAdjustments[1].Clamped)
		assert.Equal(t, 0, products.stock["prod-2"])
	})

	t.Run("stock error for one item does not block the rest", func(t *testing.T) {
		s, _, products, orders, _ := setup(t)
		products.errs["prod-2"] = errors.New("db down")

		got, err := s.ConfirmPayment(context.Background(), confirmReq)
		require.NoError(t, err)

		require.Len(t, orders.created, 1)
		require.Len(t, got.StockAdjustments, 2)
		assert.Error(t, got.StockAdjustments[0].Err)
		assert.NoError(t, got.StockAdjustments[1].Err)
		assert.Equal(t, 8, products.stock["prod-4"])
	})

	t.Run("payment not succeeded", func(t *testing.T) {
		s, _, _, orders, gw := setup(t)
		gw.intents["pi_test"].Status = "requires_payment_method"

		_, err := s.ConfirmPayment(context.Background(), confirmReq)

		var payErr *PaymentNotSucceededError
		require.ErrorAs(t, err, &payErr)
		assert.Equal(t, "requires_payment_method", payErr.Status)
		assert.Empty(t, orders.created)
	})

	t.Run("order create failure aborts confirmation", func(t *testing.T) {
		s, coupons, products, orders, _ := setup(t)
		orders.createErr = errors.New("insert failed")

		_, err := s.ConfirmPayment(context.Background(), confirmReq)

		require.Error(t, err)
		// Nothing downstream of the order ran.
		c, findErr := coupons.FindByCode(context.Background(), "SAVE10")
		require.NoError(t, findErr)
		assert.Equal(t, 0, c.UsedCount)
		assert.Equal(t, 10, products.stock["prod-2"])
	})

	t.Run("redemption conflict does not void the order", func(t *testing.T) {
		s, coupons, _, orders, _ := setup(t)
		exhausted := coupons.coupons["SAVE10"]
		exhausted.MaxUses = ptrInt(1)
		exhausted.UsedCount = 1

		got, err := s.ConfirmPayment(context.Background(), confirmReq)

		require.NoError(t, err)
		require.Len(t, orders.created, 1)
		assert.NotEmpty(t, got.OrderNumber)
	})

	t.Run("corrupt metadata rejected", func(t *testing.T) {
		s, _, _, orders, gw := setup(t)
		gw.intents["pi_test"].Metadata["items"] = "not json"

		_, err := s.ConfirmPayment(context.Background(), confirmReq)

		require.Error(t, err)
		assert.Empty(t, orders.created)
	})
}

// Order numbers and gift codes draw from one random source shared by every
// request goroutine; access to it must be serialized. Run with -race.
func TestConcurrentConfirmations(t *testing.T) {
	coupons := newFakeCouponRepo()
	products := newFakeProductRepo(map[string]int{"prod-2": 1 << 20})
	orders := &fakeOrderRepo{}
	gw := newFakeGateway()
	s := newTestService(coupons, products, orders, gw)

	_, err := s.CreateIntent(context.Background(), CreateIntentRequest{
		UserID: "u1",
		Amount: decimal.NewFromInt(250),
		Items:  []CartItem{{ProductID: "prod-2", Name: "Heavyweight Hoodie", Quantity: 1, UnitPrice: decimal.NewFromInt(250)}},
	})
	require.NoError(t, err)

	const workers, rounds = 8, 50
	var wg sync.WaitGroup
	errs := make([]error, workers)
	for w := range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range rounds {
				if _, err := s.ConfirmPayment(context.Background(), ConfirmRequest{
					IntentID: "pi_test",
					UserID:   "u1",
					Subtotal: decimal.NewFromInt(250),
				}); err != nil {
					errs[w] = err
					return
				}
			}
		}()
	}
	wg.Wait()

	for _, err := range errs {
		require.NoError(t, err)
	}

	orders.mu.Lock()
	defer orders.mu.Unlock()
	assert.Len(t, orders.created, workers*rounds)
}

func TestConcurrentRedemption(t *testing.T) {
	coupons := newFakeCouponRepo(&coupon.Coupon{
		ID:            "c1",
		Code:          "LASTONE",
		Type:          coupon.TypeFixed,
		DiscountValue: decimal.NewFromInt(5),
		ExpiresAt:     fixedNow.Add(time.Hour),
		Active:        true,
		Public:        true,
		MaxUses:       ptrInt(1),
	})

	var wg sync.WaitGroup
	results := make([]error, 2)
	for i := range results {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, results[i] = coupons.Redeem(context.Background(), "LASTONE", "u1")
		}()
	}
	wg.Wait()

	var succeeded, conflicted int
	for _, err := range results {
		switch {
		case err == nil:
			succeeded++
		case errors.Is(err, coupon.ErrRedemptionConflict):
			conflicted++
		}
	}
	assert.Equal(t, 1, succeeded)
	assert.Equal(t, 1, conflicted)

	c, err := coupons.FindByCode(context.Background(), "LASTONE")
	require.NoError(t, err)
	assert.Equal(t, 1, c.UsedCount)
	assert.False(t, c.Active)
}

func ptrInt(v int) *int { return &v }
