package handler

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/dripmart/storefront/internal/domain/coupon"
)

// couponJSON mirrors the coupon field names the admin frontend expects.
type couponJSON struct {
	ID              string    `json:"id"`
	Code            string    `json:"code"`
	Type            string    `json:"type"`
	DiscountValue   float64   `json:"discountValue"`
	MinimumPurchase float64   `json:"minimumPurchase"`
	MaxDiscount     *float64  `json:"maxDiscount,omitempty"`
	ExpirationDate  time.Time `json:"expirationDate"`
	IsActive        bool      `json:"isActive"`
	IsPublic        bool      `json:"isPublic"`
	Owner           *string   `json:"owner,omitempty"`
	MaxUses         *int      `json:"maxUses,omitempty"`
	UsedCount       int       `json:"usedCount"`
	OnePerUser      bool      `json:"onePerUser"`
	Description     string    `json:"description"`
	Categories      []string  `json:"applicableCategories,omitempty"`
	Products        []string  `json:"applicableProducts,omitempty"`
}

func couponToJSON(c *coupon.Coupon) couponJSON {
	out := couponJSON{
		ID:              c.ID,
		Code:            c.Code,
		Type:            string(c.Type),
		DiscountValue:   c.DiscountValue.InexactFloat64(),
		MinimumPurchase: c.MinimumPurchase.InexactFloat64(),
		ExpirationDate:  c.ExpiresAt,
		IsActive:        c.Active,
		IsPublic:        c.Public,
		Owner:           c.OwnerID,
		MaxUses:         c.MaxUses,
		UsedCount:       c.UsedCount,
		OnePerUser:      c.OnePerUser,
		Description:     c.Description,
		Categories:      c.Categories,
		Products:        c.ProductIDs,
	}
	if c.MaxDiscount != nil {
		v := c.MaxDiscount.InexactFloat64()
		out.MaxDiscount = &v
	}
	return out
}

type couponUpsertRequest struct {
	Code            string    `json:"code"`
	Type            string    `json:"type"`
	DiscountValue   float64   `json:"discountValue"`
	MinimumPurchase float64   `json:"minimumPurchase"`
	MaxDiscount     *float64  `json:"maxDiscount"`
	ExpirationDate  time.Time `json:"expirationDate"`
	IsActive        *bool     `json:"isActive"`
	IsPublic        *bool     `json:"isPublic"`
	Owner           *string   `json:"owner"`
	MaxUses         *int      `json:"maxUses"`
	OnePerUser      bool      `json:"onePerUser"`
	Description     string    `json:"description"`
	Categories      []string  `json:"applicableCategories"`
	Products        []string  `json:"applicableProducts"`
}

func (req *couponUpsertRequest) apply(c *coupon.Coupon) error {
	t := coupon.Type(req.Type)
	switch t {
	case coupon.TypePercentage, coupon.TypeFixed, coupon.TypeFreeShipping:
	default:
		return &validationError{"unknown coupon type"}
	}
	if req.DiscountValue < 0 {
		return &validationError{"discountValue must not be negative"}
	}
	if t == coupon.TypePercentage && req.DiscountValue > 100 {
		return &validationError{"percentage discount must not exceed 100"}
	}
	if req.MinimumPurchase < 0 {
		return &validationError{"minimumPurchase must not be negative"}
	}

	c.Code = coupon.NormalizeCode(req.Code)
	c.Type = t
	c.DiscountValue = decimal.NewFromFloat(req.DiscountValue)
	c.MinimumPurchase = decimal.NewFromFloat(req.MinimumPurchase)
	c.MaxDiscount = nil
	if req.MaxDiscount != nil {
		v := decimal.NewFromFloat(*req.MaxDiscount)
		c.MaxDiscount = &v
	}
	c.ExpiresAt = req.ExpirationDate
	c.Active = req.IsActive == nil || *req.IsActive
	c.Public = req.IsPublic == nil || *req.IsPublic
	c.OwnerID = req.Owner
	c.MaxUses = req.MaxUses
	c.OnePerUser = req.OnePerUser
	c.Description = req.Description
	c.Categories = req.Categories
	c.ProductIDs = req.Products
	return nil
}

// validationError is a 400-mapped bad-input failure with a stable message.
type validationError struct {
	msg string
}

func (e *validationError) Error() string { return e.msg }

type validateCouponRequest struct {
	Code      string  `json:"code"`
	UserID    string  `json:"userId"`
	CartTotal float64 `json:"cartTotal"`
}

type validateCouponResponse struct {
	Valid    bool    `json:"valid"`
	Reason   string  `json:"reason,omitempty"`
	Discount float64 `json:"discount"`
	Type     string  `json:"type,omitempty"`
}

// ValidateCoupon checks coupon eligibility for a user and cart total without
// redeeming it. Eligibility failures come back as a structured result, not
// an error status: the frontend renders the reason inline.
func (h *Handler) ValidateCoupon(w http.ResponseWriter, r *http.Request) {
	var req validateCouponRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.Code == "" {
		writeError(w, http.StatusBadRequest, "code is required")
		return
	}

	c, err := h.coupons.FindByCode(r.Context(), coupon.NormalizeCode(req.Code))
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}

	cartTotal := decimal.NewFromFloat(req.CartTotal)
	if err := coupon.Validate(c, req.UserID, cartTotal, time.Now()); err != nil {
		if coupon.IsInvalid(err) {
			writeJSON(w, http.StatusOK, validateCouponResponse{Valid: false, Reason: err.Error()})
			return
		}
		h.writeDomainError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, validateCouponResponse{
		Valid:    true,
		Discount: coupon.Discount(c, cartTotal).InexactFloat64(),
		Type:     string(c.Type),
	})
}

// ListCoupons returns the coupons visible to a user: public ones plus the
// user's private ones. Without a userId query parameter it lists everything.
func (h *Handler) ListCoupons(w http.ResponseWriter, r *http.Request) {
	coupons, err := h.coupons.List(r.Context(), r.URL.Query().Get("userId"))
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}

	out := make([]couponJSON, len(coupons))
	for i := range coupons {
		out[i] = couponToJSON(&coupons[i])
	}
	writeJSON(w, http.StatusOK, out)
}

// GetCoupon returns a single coupon by its code.
func (h *Handler) GetCoupon(w http.ResponseWriter, r *http.Request) {
	c, err := h.coupons.FindByCode(r.Context(), coupon.NormalizeCode(chi.URLParam(r, "code")))
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, couponToJSON(c))
}

// CreateCoupon creates a coupon from an admin request.
func (h *Handler) CreateCoupon(w http.ResponseWriter, r *http.Request) {
	var req couponUpsertRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.Code == "" {
		writeError(w, http.StatusBadRequest, "code is required")
		return
	}

	c := &coupon.Coupon{
		ID:        uuid.New().String(),
		CreatedAt: time.Now(),
	}
	if err := req.apply(c); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := h.coupons.Create(r.Context(), c); err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, couponToJSON(c))
}

// UpdateCoupon rewrites a coupon's rule fields. Redemption state
// (usedCount, usedBy) is owned by the redemption path and not writable here.
func (h *Handler) UpdateCoupon(w http.ResponseWriter, r *http.Request) {
	var req couponUpsertRequest
	if !decodeBody(w, r, &req) {
		return
	}

	c, err := h.coupons.FindByCode(r.Context(), coupon.NormalizeCode(chi.URLParam(r, "code")))
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}

	req.Code = c.Code // code is immutable
	if err := req.apply(c); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := h.coupons.Update(r.Context(), c); err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, couponToJSON(c))
}

// DeleteCoupon hard-deletes a coupon by its code. Business flows only
// deactivate; deletion is an explicit admin action.
func (h *Handler) DeleteCoupon(w http.ResponseWriter, r *http.Request) {
	c, err := h.coupons.FindByCode(r.Context(), coupon.NormalizeCode(chi.URLParam(r, "code")))
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	if err := h.coupons.Delete(r.Context(), c.ID); err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
