// Package handler exposes the storefront HTTP API on a chi router.
package handler

import (
	"github.com/go-chi/chi/v5"

	"github.com/dripmart/storefront/internal/domain/auth"
	"github.com/dripmart/storefront/internal/domain/checkout"
	"github.com/dripmart/storefront/internal/domain/coupon"
	"github.com/dripmart/storefront/internal/domain/order"
	"github.com/dripmart/storefront/internal/domain/product"
)

// Config holds non-dependency configuration for the Handler.
type Config struct {
	// Debug includes internal error detail in 500 responses. Keep off in
	// production.
	Debug bool
	// APIKeyPepper is the HMAC pepper for admin API key hashing.
	APIKeyPepper string
}

// Handler implements the storefront HTTP API, delegating business logic to
// the checkout service and the domain repositories.
type Handler struct {
	coupons  coupon.Repository
	products product.Repository
	orders   order.Repository
	checkout *checkout.Service
	apikeys  auth.Repository

	debug  bool
	pepper []byte
}

// New constructs a Handler with the required domain dependencies.
func New(
	cfg Config,
	coupons coupon.Repository,
	products product.Repository,
	orders order.Repository,
	checkoutSvc *checkout.Service,
	apikeys auth.Repository,
) *Handler {
	return &Handler{
		coupons:  coupons,
		products: products,
		orders:   orders,
		checkout: checkoutSvc,
		apikeys:  apikeys,
		debug:    cfg.Debug,
		pepper:   []byte(cfg.APIKeyPepper),
	}
}

// Routes mounts all API routes under /api.
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()

	r.Route("/api", func(r chi.Router) {
		// Storefront surface.
		r.Get("/products", h.ListProducts)
		r.Get("/products/{id}", h.GetProduct)

		r.Post("/payments/intent", h.CreatePaymentIntent)
		r.Post("/payments/confirm", h.ConfirmPayment)

		r.Get("/coupons", h.ListCoupons)
		r.Get("/coupons/{code}", h.GetCoupon)
		r.Post("/coupons/validate", h.ValidateCoupon)

		r.Get("/orders", h.ListOrders)
		r.Get("/orders/{id}", h.GetOrder)
		r.Post("/orders/{id}/cancel", h.CancelOrder)

		// Admin surface, API-key protected.
		r.Group(func(r chi.Router) {
			r.Use(h.RequireAPIKey)

			r.Post("/coupons", h.CreateCoupon)
			r.Put("/coupons/{code}", h.UpdateCoupon)
			r.Delete("/coupons/{code}", h.DeleteCoupon)

			r.Post("/products", h.CreateProduct)
			r.Put("/products/{id}", h.UpdateProduct)
			r.Delete("/products/{id}", h.DeleteProduct)
			r.Post("/products/{id}/stock/decrement", h.DecrementVariantStock)

			r.Post("/orders/{id}/status", h.UpdateOrderStatus)
			r.Get("/admin/orders/stats", h.OrderStats)
		})
	})

	return r
}
